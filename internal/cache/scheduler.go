package cache

import (
	"context"
	"sync"
	"time"
)

// Scheduler is a cancelable periodic tick. Each session owns one; it drives
// the staleness check for the session's active window. Modeling it as an
// explicit handle (rather than a fire-and-forget interval per consumer)
// means repeated attach/detach cannot leak tickers: Stop is idempotent and
// waits for the loop goroutine to exit.
type Scheduler struct {
	interval time.Duration
	tick     func(ctx context.Context)

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a stopped scheduler that will invoke tick every
// interval once started.
func NewScheduler(interval time.Duration, tick func(ctx context.Context)) *Scheduler {
	return &Scheduler{
		interval: interval,
		tick:     tick,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. The loop exits when Stop is called or ctx is
// canceled, whichever comes first. Starting twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop and, if it was started, blocks until the loop
// goroutine has exited. Safe to call more than once and on a scheduler that
// was never started.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		<-s.done
	}
}
