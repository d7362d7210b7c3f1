package cache

import (
	"context"
	"sync"
	"time"
)

// testRecord is the minimal Record used across cache tests.
type testRecord struct {
	id    int64
	total int64
}

func (r testRecord) RecordID() int64 { return r.id }

// fakeClock is a manually advanced clock so tests age entries without
// sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeFetcher counts calls and optionally blocks until released, to observe
// in-flight state.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results [][]Record
	err     error
	gate    chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string, _ Range) ([]Record, error) {
	f.mu.Lock()
	f.calls++
	var recs []Record
	if len(f.results) > 0 {
		recs = f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
	}
	err := f.err
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stagedFetcher gives each call its own release gate, so tests can finish
// overlapping fetches one at a time.
type stagedFetcher struct {
	mu    sync.Mutex
	gates []chan struct{}
}

func (f *stagedFetcher) Fetch(_ context.Context, _ string, _ Range) ([]Record, error) {
	f.mu.Lock()
	gate := f.gates[0]
	f.gates = f.gates[1:]
	f.mu.Unlock()

	<-gate
	return []Record{testRecord{id: 1}}, nil
}

// dayRange builds the closed window for one calendar day in UTC.
func dayRange(y int, m time.Month, d int) Range {
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return NewRange(start, start.Add(24*time.Hour-time.Millisecond))
}

// monthRange builds the closed window for one calendar month in UTC.
func monthRange(y int, m time.Month) Range {
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return NewRange(start, start.AddDate(0, 1, 0).Add(-time.Millisecond))
}
