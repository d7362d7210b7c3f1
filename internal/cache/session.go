package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Fetcher is the contract with the backing data service. A successful Fetch
// returns the full authoritative snapshot for the window — it replaces, not
// merges with, whatever the cache held. Any error is surfaced to the session
// as ErrFetch with the cache left untouched.
type Fetcher interface {
	Fetch(ctx context.Context, domain string, r Range) ([]Record, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, domain string, r Range) ([]Record, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, domain string, r Range) ([]Record, error) {
	return f(ctx, domain, r)
}

// SessionConfig configures a Session. Zero durations fall back to the
// package defaults.
type SessionConfig struct {
	// Domain is the logical collection this session serves.
	Domain string

	// Fetcher reaches the backing data service.
	Fetcher Fetcher

	// StaleAfter is the age past which the background scheduler refetches
	// the active bucket. Deliberately shorter than the store's validity
	// window so background refresh is more eager than the passive
	// serve-or-miss decision.
	StaleAfter time.Duration

	// RefreshInterval is the scheduler tick. Negative disables the
	// background scheduler entirely (used by tests and one-shot CLI reads).
	RefreshInterval time.Duration

	// Logger receives refresh diagnostics. Defaults to a disabled logger.
	Logger *zerolog.Logger

	// onMutate, when set, runs after every optimistic mutation. The service
	// uses it to mark the snapshot dirty.
	onMutate func()
}

// Session is the consumption surface a screen holds: it detects window
// changes, decides fetch-versus-serve-from-cache, exposes loading state, and
// routes optimistic mutations into the shared store. Sessions are cheap;
// the store behind them is the long-lived shared structure.
//
// Errors are local to the session that issued the failing call; there is no
// global error bus.
type Session struct {
	store      *Store
	fetcher    Fetcher
	domain     string
	staleAfter time.Duration
	log        zerolog.Logger

	sf    singleflight.Group
	sched *Scheduler

	mu     sync.Mutex
	active Range
	lastFP Fingerprint
	seenFP bool
	data   []Record
	// inflight counts every fetch currently on the wire; coldFetches counts
	// the subset that started with no cached data for their window. Counters
	// rather than booleans: flipping windows can overlap two fetches, and the
	// first one returning must not report the second one finished.
	inflight    int
	coldFetches int
	lastErr     error
	closed      bool
	onMutate    func()
}

// NewSession attaches a consumer to the store and starts its background
// refresh scheduler. Callers must Close the session when the consumer
// detaches or the scheduler goroutine leaks.
func NewSession(store *Store, cfg SessionConfig) *Session {
	staleAfter := cfg.StaleAfter
	if staleAfter == 0 {
		staleAfter = DefaultStaleAfter
	}
	interval := cfg.RefreshInterval
	if interval == 0 {
		interval = DefaultRefreshInterval
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "cache_session").Str("domain", cfg.Domain).Logger()
	}

	s := &Session{
		store:      store,
		fetcher:    cfg.Fetcher,
		domain:     cfg.Domain,
		staleAfter: staleAfter,
		log:        log,
		onMutate:   cfg.onMutate,
	}

	if interval > 0 {
		s.sched = NewScheduler(interval, s.refreshIfStale)
		s.sched.Start(context.Background())
	}
	return s
}

// SetRange makes r the active window. On a genuine change (fingerprint
// differs from the last seen one) the session serves cached non-empty data
// without any network call, and fetches only on a miss. Setting the same
// window again is a no-op.
func (s *Session) SetRange(ctx context.Context, r Range) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	fp := r.Fingerprint()
	if s.seenFP && fp == s.lastFP {
		s.mu.Unlock()
		return nil
	}
	s.active = r
	s.lastFP = fp
	s.seenFP = true
	s.mu.Unlock()

	if recs := s.store.Get(s.domain, r, nil); len(recs) > 0 {
		s.mu.Lock()
		s.data = recs
		s.mu.Unlock()
		s.log.Debug().Str("range", r.String()).Msg("served window from cache")
		return nil
	}
	return s.Fetch(ctx, false)
}

// Fetch populates the active window. With force false it first consults the
// store and returns without a network call when a fresh non-empty bucket
// exists; with force true it always hits the backing service, bypassing the
// validity check.
//
// Concurrent fetches for the same window share one flight: a scheduler tick
// cannot start a second refresh while a manual one is in progress. A failed
// fetch leaves the cache and the currently rendered data untouched.
func (s *Session) Fetch(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	active := s.active
	s.mu.Unlock()

	fp := active.Fingerprint()

	if !force {
		if recs := s.store.Get(s.domain, active, nil); len(recs) > 0 {
			s.mu.Lock()
			s.data = recs
			s.mu.Unlock()
			return nil
		}
	}

	// Loading is only true while no cached data exists at all for the
	// window; a background refresh of rendered data must not flash the
	// screen to empty.
	ent, cached := s.store.Lookup(s.domain, active)
	cold := !cached || len(ent.Records) == 0
	s.mu.Lock()
	s.inflight++
	if cold {
		s.coldFetches++
	}
	s.mu.Unlock()

	key := s.domain + "|" + fp.String()
	v, err, _ := s.sf.Do(key, func() (any, error) {
		return s.fetcher.Fetch(ctx, s.domain, active)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if cold {
		s.coldFetches--
	}

	if err != nil {
		s.lastErr = fmt.Errorf("%w: %v", ErrFetch, err)
		s.log.Warn().Err(err).Str("range", active.String()).Msg("fetch failed, keeping cached data")
		return s.lastErr
	}

	recs, _ := v.([]Record)
	s.store.Put(s.domain, active, recs)
	// Adopt the result only if the user has not flipped windows mid-flight.
	// The store write above is safe either way: last write wins and the
	// store outlives any one consumer.
	if s.active.Fingerprint() == fp {
		s.data = recs
	}
	s.lastErr = nil
	return nil
}

// Refresh bypasses the validity check unconditionally: it always issues a
// network fetch and overwrites the bucket on success. This is the only
// recovery path after a failed fetch — there is no automatic retry.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Fetch(ctx, true)
}

// refreshIfStale is the scheduler tick: refetch the active bucket when it is
// missing or older than the staleness threshold.
func (s *Session) refreshIfStale(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	active := s.active
	s.mu.Unlock()

	if active.IsZero() {
		return
	}
	if ent, ok := s.store.Lookup(s.domain, active); ok && ent.Age(s.store.now()) <= s.staleAfter {
		return
	}
	if err := s.Fetch(ctx, true); err != nil {
		s.log.Debug().Err(err).Msg("scheduled refresh failed")
	}
}

// Add appends a record to the active window's bucket (and only that bucket)
// as an optimistic local write.
func (s *Session) Add(rec Record) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	s.store.Insert(s.domain, active, rec)
	s.reloadActive()
	s.mutated()
}

// Update patches the record with the given id in every bucket of the domain
// that holds it, so overlapping windows stay consistent.
func (s *Session) Update(id int64, fn func(Record) Record) {
	s.store.UpdateRecord(s.domain, id, fn)
	s.reloadActive()
	s.mutated()
}

// Delete removes the record with the given id from every bucket of the
// domain.
func (s *Session) Delete(id int64) {
	s.store.DeleteRecord(s.domain, id)
	s.reloadActive()
	s.mutated()
}

// reloadActive re-reads the active bucket so Data reflects the mutation
// immediately.
func (s *Session) reloadActive() {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if ent, ok := s.store.Lookup(s.domain, active); ok {
		s.mu.Lock()
		s.data = ent.Records
		s.mu.Unlock()
	}
}

func (s *Session) mutated() {
	if s.onMutate != nil {
		s.onMutate()
	}
}

// Data returns the records currently rendered for the active window.
// Callers must treat the slice as read-only.
func (s *Session) Data() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Loading reports whether the session is fetching a window for which no
// cached data exists yet. A background refresh of already-rendered data
// never flips it.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coldFetches > 0
}

// Refreshing reports whether any fetch is in flight, cache-backed or not.
// It stays true across a mid-flight window flip until the last outstanding
// fetch returns.
func (s *Session) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Err returns the error from the most recent failed fetch, or nil after a
// success. The UI renders it as a dismissible indicator next to the last
// good data.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// ClearErr dismisses the error indicator.
func (s *Session) ClearErr() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}

// ActiveRange returns the window the session currently serves.
func (s *Session) ActiveRange() Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close detaches the consumer and stops its scheduler. An in-flight fetch is
// not canceled; its eventual write to the shared store is harmless because
// the store outlives any single consumer. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.sched != nil {
		s.sched.Stop()
	}
}
