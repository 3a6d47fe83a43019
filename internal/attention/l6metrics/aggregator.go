package l6metrics

import (
	"sync"
	"time"

	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/timeutil"
)

// DefaultRefreshInterval is the snapshot throttle used when none is given.
const DefaultRefreshInterval = time.Second

// Source yields the manager currently exposed to readers. The pipeline swaps
// managers on reset and recompute.
type Source interface {
	Manager() *l5states.Manager
}

type cached struct {
	snap    Snapshot
	manager *l5states.Manager
	at      time.Time
}

// Aggregator serves throttled snapshots. A cached snapshot is reused while
// the manager is unchanged, or while it is younger than the refresh interval
// and the manager has not been swapped.
type Aggregator struct {
	src     Source
	clock   timeutil.Clock
	refresh time.Duration

	mu    sync.Mutex
	cache map[l2volumes.ObserverID]cached
}

// NewAggregator creates an aggregator. A nil clock uses the real clock and a
// non-positive refresh uses DefaultRefreshInterval.
func NewAggregator(src Source, clock timeutil.Clock, refresh time.Duration) *Aggregator {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &Aggregator{
		src:     src,
		clock:   clock,
		refresh: refresh,
		cache:   make(map[l2volumes.ObserverID]cached),
	}
}

// Snapshot returns the metrics for observer.
func (a *Aggregator) Snapshot(observer l2volumes.ObserverID) Snapshot {
	m := a.src.Manager()

	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.cache[observer]; ok && c.manager == m {
		if c.snap.Version == m.Version() || a.clock.Since(c.at) < a.refresh {
			return c.snap
		}
	}
	now := a.clock.Now()
	snap := Compute(m, observer, now)
	a.cache[observer] = cached{snap: snap, manager: m, at: now}
	return snap
}

// Invalidate drops every cached snapshot.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.cache)
}
