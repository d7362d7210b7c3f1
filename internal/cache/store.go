package cache

import (
	"container/list"
	"sync"
	"time"
)

// Default tuning values. The staleness threshold is intentionally shorter
// than the validity window so background refresh fires before passive reads
// start missing.
const (
	// DefaultValidity is how long a bucket is served as fresh (5 minutes).
	DefaultValidity = 5 * time.Minute

	// DefaultStaleAfter is the age at which the background scheduler
	// refetches the active bucket (2 minutes).
	DefaultStaleAfter = 2 * time.Minute

	// DefaultRefreshInterval is the scheduler tick (30 seconds).
	DefaultRefreshInterval = 30 * time.Second

	// DefaultBucketCap bounds retained buckets per domain. A session that
	// wanders across many distinct windows evicts its least recently served
	// bucket past this point instead of growing without bound.
	DefaultBucketCap = 32
)

// Store is the shared, process-wide bucket map: domain name to fingerprint
// to entry. It is a plain in-memory structure — every operation completes
// without blocking on I/O. One Store is constructed at application start
// and handed to every session; tests build their own isolated instances.
//
// Thread-safe. The original ran on a single UI event loop; a library shared
// across goroutines takes a lock instead.
type Store struct {
	mu       sync.RWMutex
	domains  map[string]*domainBuckets
	validity time.Duration
	cap      int

	// now is the clock, swappable in tests.
	now func() time.Time
}

// domainBuckets holds one domain's entries plus the recency list that backs
// the per-domain bucket cap. Front of the list is the most recently served
// fingerprint.
type domainBuckets struct {
	entries map[Fingerprint]*Entry
	recency *list.List
	elems   map[Fingerprint]*list.Element
}

// StoreOption customizes a Store at construction.
type StoreOption func(*Store)

// WithValidity overrides how long entries are served as fresh.
func WithValidity(d time.Duration) StoreOption {
	return func(s *Store) { s.validity = d }
}

// WithBucketCap overrides the per-domain retained-bucket limit.
// A cap of 0 disables eviction entirely.
func WithBucketCap(n int) StoreOption {
	return func(s *Store) { s.cap = n }
}

// WithClock overrides the wall clock. Tests use this to age entries
// deterministically instead of sleeping.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store with the default validity window and
// bucket cap.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		domains:  make(map[string]*domainBuckets),
		validity: DefaultValidity,
		cap:      DefaultBucketCap,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validity returns the freshness window entries are served within.
func (s *Store) Validity() time.Duration {
	return s.validity
}

// Get returns the cached result set for the window if an entry exists and is
// still within the validity window; otherwise it returns fallback (typically
// an empty slice). A stale entry is left untouched — reading never deletes,
// and the staleness only means the caller should consider refetching.
func (s *Store) Get(domain string, r Range, fallback []Record) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.domains[domain]
	if !ok {
		return fallback
	}
	fp := r.Fingerprint()
	ent, ok := db.entries[fp]
	if !ok {
		return fallback
	}

	if !ent.FreshWithin(s.now(), s.validity) {
		return fallback
	}

	db.touch(fp)
	return ent.Records
}

// Lookup returns the entry for the window regardless of freshness, along
// with whether it exists. This is the stale-tolerant read path: the session
// uses it to keep the last good numbers on screen while a refresh runs, and
// the scheduler uses it to measure age.
func (s *Store) Lookup(domain string, r Range) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, ok := s.domains[domain]
	if !ok {
		return nil, false
	}
	ent, ok := db.entries[r.Fingerprint()]
	return ent, ok
}

// Put inserts or wholesale-overwrites the entry for the window, stamping it
// with the current clock. Last write wins; there is no merging with whatever
// the bucket held before.
func (s *Store) Put(domain string, r Range, records []Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(domain, r, records, s.now())
}

// putLocked is the shared insertion path for Put and snapshot restoration.
// Caller holds s.mu.
func (s *Store) putLocked(domain string, r Range, records []Record, capturedAt time.Time) {
	db, ok := s.domains[domain]
	if !ok {
		db = &domainBuckets{
			entries: make(map[Fingerprint]*Entry),
			recency: list.New(),
			elems:   make(map[Fingerprint]*list.Element),
		}
		s.domains[domain] = db
	}

	fp := r.Fingerprint()
	db.entries[fp] = &Entry{
		Range:       r,
		Fingerprint: fp,
		Records:     records,
		CapturedAt:  capturedAt,
	}
	db.touch(fp)

	if s.cap > 0 {
		for len(db.entries) > s.cap {
			db.evictOldest()
		}
	}
}

// Clear drops all entries for the named domains, or every domain when none
// are given. This is the only path to the ABSENT state — aging alone never
// removes an entry.
func (s *Store) Clear(domains ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(domains) == 0 {
		s.domains = make(map[string]*domainBuckets)
		return
	}
	for _, d := range domains {
		delete(s.domains, d)
	}
}

// DomainStats summarizes one domain for operator inspection.
type DomainStats struct {
	Buckets     int
	YoungestAge time.Duration
	OldestAge   time.Duration
}

// Stats returns per-domain bucket counts and age extremes. Used by the
// snapshot inspect command.
func (s *Store) Stats() map[string]DomainStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make(map[string]DomainStats, len(s.domains))
	for name, db := range s.domains {
		st := DomainStats{Buckets: len(db.entries)}
		first := true
		for _, ent := range db.entries {
			age := ent.Age(now)
			if first || age < st.YoungestAge {
				st.YoungestAge = age
			}
			if first || age > st.OldestAge {
				st.OldestAge = age
			}
			first = false
		}
		out[name] = st
	}
	return out
}

// touch marks fp as the most recently served bucket.
func (db *domainBuckets) touch(fp Fingerprint) {
	if el, ok := db.elems[fp]; ok {
		db.recency.MoveToFront(el)
		return
	}
	db.elems[fp] = db.recency.PushFront(fp)
}

// evictOldest removes the least recently served bucket.
func (db *domainBuckets) evictOldest() {
	back := db.recency.Back()
	if back == nil {
		return
	}
	fp, _ := back.Value.(Fingerprint)
	db.recency.Remove(back)
	delete(db.elems, fp)
	delete(db.entries, fp)
}
