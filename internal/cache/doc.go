// Package cache implements the time-windowed, stale-while-revalidate cache
// that backs the analytics screens of the point-of-sale application.
//
// Every screen asks for "records of domain D inside window W". The cache
// answers from memory when it holds a sufficiently fresh snapshot for that
// exact window, and otherwise signals a miss so the caller fetches from the
// backing service. Key properties:
//   - Windows are identified by a deterministic fingerprint of their boundary
//     instants, so "today" asked twice is one bucket, while "today" and
//     "this month" are distinct buckets even though they overlap.
//   - Staleness never evicts: an aged bucket stays retrievable and keeps the
//     last good numbers on screen while a background refresh replaces it.
//   - Optimistic local mutations (insert/update/delete of single records)
//     land in the affected buckets immediately, ahead of any network
//     confirmation.
//   - A snapshot of whitelisted domains persists across restarts so a
//     relaunch renders cached data before the first network call resolves.
package cache
