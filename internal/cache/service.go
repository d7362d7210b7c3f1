package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig configures a Service. Zero values fall back to package
// defaults; an empty SnapshotPath disables persistence.
type ServiceConfig struct {
	// Validity is how long buckets are served as fresh.
	Validity time.Duration

	// StaleAfter is the background-refresh staleness threshold for sessions.
	StaleAfter time.Duration

	// RefreshInterval is the session scheduler tick.
	RefreshInterval time.Duration

	// BucketCap bounds retained buckets per domain (0 keeps the default;
	// negative disables eviction).
	BucketCap int

	// SnapshotPath is the persistence slot. Empty disables persistence:
	// the cache then lives and dies with the process.
	SnapshotPath string

	// Codecs whitelist the domains that survive restarts.
	Codecs []Codec

	// Logger is the base logger; component loggers are derived from it.
	Logger *zerolog.Logger

	// Clock overrides the wall clock in tests.
	Clock func() time.Time
}

// Service owns the shared store and the persistence slot, and constructs
// sessions for screens. One Service is built at application start —
// explicitly, so tests can instantiate isolated instances instead of
// binding to a global. Rehydration from the snapshot happens inside
// NewService, before any session exists.
type Service struct {
	store   *Store
	persist *Persister
	log     zerolog.Logger
	now     func() time.Time

	cfg ServiceConfig

	mu     sync.Mutex
	active Range
	dirty  bool
}

// NewService builds the store, restores the persisted snapshot when one is
// configured, and computes the default "today" window when there is nothing
// to restore. A corrupt or incompatible slot is logged and discarded, never
// fatal.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = cfg.Logger.With().Str("component", "cache_service").Logger()
	}

	storeOpts := []StoreOption{WithClock(now)}
	if cfg.Validity > 0 {
		storeOpts = append(storeOpts, WithValidity(cfg.Validity))
	}
	if cfg.BucketCap != 0 {
		bucketCap := cfg.BucketCap
		if bucketCap < 0 {
			bucketCap = 0
		}
		storeOpts = append(storeOpts, WithBucketCap(bucketCap))
	}

	svc := &Service{
		store:  NewStore(storeOpts...),
		log:    log,
		now:    now,
		cfg:    cfg,
		active: Today(now()),
	}

	if cfg.SnapshotPath != "" {
		svc.persist = NewPersister(cfg.SnapshotPath, log, cfg.Codecs...)
		svc.persist.now = now

		active, err := svc.persist.Load(svc.store)
		switch {
		case err == nil:
			svc.active = active
			log.Info().Str("window", active.String()).Msg("cache rehydrated from snapshot")
		case errors.Is(err, ErrNoSnapshot):
			log.Debug().Msg("no snapshot to restore, starting cold")
		default:
			// Corrupt or incompatible: discard and start from today.
			log.Warn().Err(err).Msg("discarding unusable snapshot")
			_ = svc.persist.Clear()
			svc.store.Clear()
		}
	}

	return svc
}

// Store exposes the shared bucket map, mainly for operator tooling and
// tests. Screens go through sessions instead.
func (svc *Service) Store() *Store {
	return svc.store
}

// ActiveWindow returns the application-level active window (the one
// persisted with the snapshot).
func (svc *Service) ActiveWindow() Range {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.active
}

// SetActiveWindow records a new application-level active window and marks
// the snapshot dirty.
func (svc *Service) SetActiveWindow(r Range) {
	svc.mu.Lock()
	svc.active = r
	svc.dirty = true
	svc.mu.Unlock()
}

// NewSession attaches a screen to the store for one domain. The session
// starts with the service's active window already set, so a screen opened
// after rehydration renders persisted data before its first network call.
func (svc *Service) NewSession(domain string, fetcher Fetcher) *Session {
	s := NewSession(svc.store, SessionConfig{
		Domain:          domain,
		Fetcher:         fetcher,
		StaleAfter:      svc.cfg.StaleAfter,
		RefreshInterval: svc.cfg.RefreshInterval,
		Logger:          svc.cfg.Logger,
		onMutate:        svc.saveOpportunistic,
	})

	svc.mu.Lock()
	active := svc.active
	svc.mu.Unlock()
	if !active.IsZero() {
		s.mu.Lock()
		s.active = active
		s.lastFP = active.Fingerprint()
		s.seenFP = true
		if ent, ok := svc.store.Lookup(domain, active); ok {
			s.data = ent.Records
		}
		s.mu.Unlock()
	}
	return s
}

// Save writes the snapshot now. A no-op when persistence is disabled.
func (svc *Service) Save() error {
	if svc.persist == nil {
		return nil
	}
	svc.mu.Lock()
	active := svc.active
	svc.mu.Unlock()

	if err := svc.persist.Save(svc.store, active); err != nil {
		return err
	}
	svc.mu.Lock()
	svc.dirty = false
	svc.mu.Unlock()
	return nil
}

// saveOpportunistic persists after a mutation on a best-effort basis.
// Persistence is a warm-start optimization, not a durability guarantee, so
// failures are logged and swallowed.
func (svc *Service) saveOpportunistic() {
	svc.mu.Lock()
	svc.dirty = true
	svc.mu.Unlock()

	if svc.persist == nil {
		return
	}
	if err := svc.Save(); err != nil {
		svc.log.Warn().Err(err).Msg("opportunistic snapshot save failed")
	}
}

// Close flushes the snapshot if anything changed since the last save.
func (svc *Service) Close() error {
	svc.mu.Lock()
	dirty := svc.dirty
	svc.mu.Unlock()

	if dirty {
		return svc.Save()
	}
	return nil
}
