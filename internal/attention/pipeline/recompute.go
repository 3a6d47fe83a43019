package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
	"github.com/banshee-data/attention.report/internal/monitoring"
)

type change func(l3tolerance.Config, []l2volumes.Volume) (l3tolerance.Config, []l2volumes.Volume)

// recompute rebuilds detection state under a new configuration by replaying
// the tick log. The replay runs without holding mu, so live ticks continue
// against the old state meanwhile; ticks appended during the replay are
// caught up under the lock just before the swap.
func (e *Engine) recompute(ctx context.Context, apply change) error {
	e.mu.Lock()
	gen := e.generation.Add(1)
	e.tolerance, e.volumes = apply(e.tolerance, e.volumes)
	tol, vols, cfg := e.tolerance, e.volumes, e.cfg
	ticks := e.ticks[:len(e.ticks):len(e.ticks)]
	e.mu.Unlock()

	start := time.Now()
	fresh := newDetection(cfg, tol, vols)
	if err := e.replay(ctx, gen, fresh, ticks); err != nil {
		e.abandon(gen, err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation.Load() != gen {
		return ErrSuperseded
	}
	if tail := e.ticks[len(ticks):]; len(tail) > 0 {
		if err := e.replay(context.WithoutCancel(ctx), gen, fresh, tail); err != nil {
			e.revertLocked(err)
			return err
		}
	}

	e.install(fresh)
	monitoring.Logf("[recompute] generation %d replayed %d ticks in %s", gen, len(e.ticks), time.Since(start).Round(time.Millisecond))

	if e.sink != nil {
		e.sink.OnReset()
		for _, ev := range fresh.manager.Completed(l5states.Filter{}) {
			e.sink.OnCompleted(ev)
		}
		for _, ev := range fresh.manager.Points(l5states.Filter{}) {
			e.sink.OnPoint(ev)
		}
	}
	return nil
}

// abandon restores the requested configuration to the one in force, unless
// a newer request has already replaced it.
func (e *Engine) abandon(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.generation.Load() != gen {
		return
	}
	e.revertLocked(err)
}

func (e *Engine) revertLocked(err error) {
	e.tolerance = e.cur.tolerance.Config()
	e.volumes = e.cur.volumes
	monitoring.Logf("[recompute] keeping previous state: %v", err)
}

// replay runs ticks into d, stopping if ctx is cancelled or gen is no longer
// current.
func (e *Engine) replay(ctx context.Context, gen uint64, d *detection, ticks []tick) error {
	for _, tk := range ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.generation.Load() != gen {
			return ErrSuperseded
		}

		samples := make([]l1history.PoseSample, len(tk.agents))
		for i, a := range tk.agents {
			s, err := e.source.PoseAtTime(a, tk.time)
			if err != nil {
				return fmt.Errorf("%w: agent %s at t=%.3f: %v", ErrPoseUnavailable, a, tk.time, err)
			}
			s.Time = tk.time
			samples[i] = s
		}
		d.step(tk.time, tk.agents, samples, nil)
	}
	return nil
}
