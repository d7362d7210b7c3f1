package cache

import "time"

// Record is implemented by every item a domain bucket holds. The integer
// identity is stable and unique within its domain; it is what the mutation
// propagator scans for when applying optimistic updates and deletes.
type Record interface {
	RecordID() int64
}

// Entry is one cached result set: the full authoritative snapshot the
// backing service returned for one window of one domain. There is at most
// one Entry per (domain, fingerprint).
type Entry struct {
	// Range is the window this snapshot answers.
	Range Range

	// Fingerprint is Range.Fingerprint(), precomputed at insertion.
	Fingerprint Fingerprint

	// Records is the ordered result set. Mutations replace the slice
	// wholesale, so what Get hands out stays stable; callers must still
	// treat it as read-only.
	Records []Record

	// CapturedAt is when the snapshot was taken. It only moves forward:
	// network refresh and optimistic local mutation both bump it.
	CapturedAt time.Time
}

// Age returns how long ago the snapshot was captured.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CapturedAt)
}

// FreshWithin reports whether the entry is young enough to serve without a
// network round-trip. A false result does not evict; the entry stays
// retrievable for stale-while-revalidate rendering.
func (e *Entry) FreshWithin(now time.Time, validity time.Duration) bool {
	return e.Age(now) < validity
}
