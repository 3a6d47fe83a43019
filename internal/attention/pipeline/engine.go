package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/monitoring"
)

// gridEpsilon treats tick times within a nanosecond as equal.
const gridEpsilon = 1e-9

// Engine is the live detection pipeline. Advance, Reset and the swap at the
// end of a recompute are serialised by mu; queries go through Manager and
// never block on a running recompute.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	source PoseSource
	clock  Clock
	sink   l5states.Sink

	// tolerance and volumes are the latest requested configuration; cur
	// holds the one its events were computed with.
	tolerance l3tolerance.Config
	volumes   []l2volumes.Volume
	cur       *detection
	ticks     []tick

	rendering bool
	hasTick   bool
	lastTick  float64
	hasSim    bool
	lastSim   float64

	generation atomic.Uint64
	manager    atomic.Pointer[l5states.Manager]
}

// NewEngine creates an engine reading poses from source and time from clock.
func NewEngine(cfg Config, tol l3tolerance.Config, source PoseSource, clock Clock) *Engine {
	e := &Engine{
		cfg:       cfg,
		source:    source,
		clock:     clock,
		tolerance: tol,
		rendering: true,
	}
	e.install(newDetection(cfg, tol, nil))
	return e
}

func (e *Engine) install(d *detection) {
	e.cur = d
	e.manager.Store(d.manager)
}

// Manager returns the event manager currently exposed to readers.
func (e *Engine) Manager() *l5states.Manager {
	return e.manager.Load()
}

// SetSink registers a receiver for emitted events. Pass nil to remove it.
func (e *Engine) SetSink(s l5states.Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

// SetRendering selects the active (true) or idle sampling interval.
func (e *Engine) SetRendering(rendering bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rendering = rendering
}

// Volumes returns a copy of the observer volumes the exposed events were
// computed with.
func (e *Engine) Volumes() []l2volumes.Volume {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]l2volumes.Volume(nil), e.cur.volumes...)
}

// Tolerance returns the tolerance configuration the exposed events were
// computed with.
func (e *Engine) Tolerance() l3tolerance.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur.tolerance.Config()
}

// Thresholds returns the effective thresholds for an observer.
func (e *Engine) Thresholds(observer l2volumes.ObserverID) l3tolerance.Thresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur.tolerance.For(string(observer))
}

// TickCount returns the number of ticks since the last reset.
func (e *Engine) TickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ticks)
}

// LastTick returns the time of the most recent tick.
func (e *Engine) LastTick() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTick, e.hasTick
}

// Reset discards all detection state and the tick log and supersedes any
// running recompute.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	e.hasSim = false
}

func (e *Engine) resetLocked() {
	e.generation.Add(1)
	e.install(newDetection(e.cfg, e.tolerance, e.volumes))
	e.ticks = nil
	e.hasTick = false
	if e.sink != nil {
		e.sink.OnReset()
	}
}

func (e *Engine) interval() float64 {
	if e.rendering {
		return e.cfg.SampleInterval.Seconds()
	}
	return e.cfg.IdleSampleInterval.Seconds()
}

// Advance reads the clock and runs every tick due since the last call.
// It returns the number of ticks run.
func (e *Engine) Advance(ctx context.Context) (int, error) {
	if e.source == nil || e.clock == nil {
		return 0, ErrNoSource
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.SimulationTime()
	if e.clock.IsReset() {
		monitoring.Logf("[pipeline] playback reset at t=%.3f", now)
		e.resetLocked()
	} else if e.hasSim && now < e.lastSim {
		jump := e.lastSim - now
		if jump <= e.cfg.ResetJumpTolerance.Seconds() {
			monitoring.Debugf("[pipeline] ignoring backward step of %.3fs", jump)
			return 0, nil
		}
		monitoring.Logf("[pipeline] backward jump of %.3fs, resetting", jump)
		e.resetLocked()
	}
	e.hasSim, e.lastSim = true, now

	if e.clock.PlaybackSpeed() <= 0 {
		return 0, nil
	}

	var out emitted
	n := 0
	if !e.hasTick {
		e.liveTick(now, true, &out)
		n++
	} else {
		step := e.interval()
		if step <= 0 || now-e.lastTick < step-gridEpsilon {
			return 0, nil
		}
		if maxDelta := e.cfg.MaxTickDelta.Seconds(); maxDelta > 0 && now-e.lastTick > maxDelta {
			monitoring.Debugf("[pipeline] clamping %.3fs of pending ticks to %.3fs", now-e.lastTick, maxDelta)
			e.lastTick = now - maxDelta
		}
		for next := e.lastTick + step; next <= now+gridEpsilon; next = e.lastTick + step {
			e.liveTick(next, next >= now-gridEpsilon, &out)
			n++
		}
	}
	e.emit(&out)
	return n, nil
}

// liveTick samples every agent at t and runs one step. Agents without a
// pose at t are left out of the tick.
func (e *Engine) liveTick(t float64, current bool, out *emitted) {
	ids := e.source.Agents()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	agents := make([]l1history.AgentID, 0, len(ids))
	samples := make([]l1history.PoseSample, 0, len(ids))
	for _, id := range ids {
		var (
			s  l1history.PoseSample
			ok bool
		)
		if current {
			s, ok = e.source.CurrentPose(id)
		} else {
			var err error
			s, err = e.source.PoseAtTime(id, t)
			ok = err == nil
		}
		if !ok {
			continue
		}
		s.Time = t
		agents = append(agents, id)
		samples = append(samples, s)
	}

	e.cur.step(t, agents, samples, out)
	e.ticks = append(e.ticks, tick{time: t, agents: agents})
	e.hasTick, e.lastTick = true, t
}

func (e *Engine) emit(out *emitted) {
	if e.sink == nil {
		return
	}
	for _, ev := range out.completed {
		e.sink.OnCompleted(ev)
	}
	for _, ev := range out.points {
		e.sink.OnPoint(ev)
	}
}

// SetVolumes validates and installs new observer geometry, then recomputes
// every event against it.
func (e *Engine) SetVolumes(ctx context.Context, volumes []l2volumes.Volume) error {
	seen := make(map[l2volumes.ObserverID]bool, len(volumes))
	for _, v := range volumes {
		if err := v.Validate(); err != nil {
			return err
		}
		if v.ID == l5states.GlobalObserver {
			return fmt.Errorf("%w: %s is reserved", l2volumes.ErrInvalidVolume, v.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("%w: duplicate id %s", l2volumes.ErrInvalidVolume, v.ID)
		}
		seen[v.ID] = true
	}
	vols := append([]l2volumes.Volume(nil), volumes...)
	return e.recompute(ctx, func(tol l3tolerance.Config, _ []l2volumes.Volume) (l3tolerance.Config, []l2volumes.Volume) {
		return tol, vols
	})
}

// SetTolerance installs a new tolerance configuration and recomputes every
// event from the first tick.
func (e *Engine) SetTolerance(ctx context.Context, tol l3tolerance.Config) error {
	return e.recompute(ctx, func(_ l3tolerance.Config, vols []l2volumes.Volume) (l3tolerance.Config, []l2volumes.Volume) {
		return tol, vols
	})
}
