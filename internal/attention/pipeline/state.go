package pipeline

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
)

// tick is one entry of the replay schedule.
type tick struct {
	time   float64
	agents []l1history.AgentID
}

// detection is everything derived from the pose stream. A recompute builds a
// new one from scratch.
type detection struct {
	cfg       Config
	volumes   []l2volumes.Volume
	history   *l1history.Store
	memory    map[l1history.AgentID][]l4detect.PairMemory
	tolerance *l3tolerance.Engine
	manager   *l5states.Manager
}

func newDetection(cfg Config, tol l3tolerance.Config, volumes []l2volumes.Volume) *detection {
	te := l3tolerance.NewEngine(tol)
	sizes := make(map[string]float64, len(volumes))
	for _, v := range volumes {
		sizes[string(v.ID)] = v.Footprint()
	}
	te.SetVolumeSizes(sizes)

	return &detection{
		cfg:       cfg,
		volumes:   volumes,
		history:   l1history.NewStore(l1history.CapacityFor(cfg.HistoryWindow, cfg.SampleInterval)),
		memory:    make(map[l1history.AgentID][]l4detect.PairMemory),
		tolerance: te,
		manager:   l5states.NewManager(),
	}
}

// emitted collects the events produced by one or more ticks.
type emitted struct {
	completed []l5states.CompletedEvent
	points    []l5states.PointEvent
}

// step runs one tick. samples must be sorted by agent and all carry time t.
// out may be nil.
func (d *detection) step(t float64, agents []l1history.AgentID, samples []l1history.PoseSample, out *emitted) {
	d.tolerance.SetAgentCount(len(agents))
	observers := make([]l4detect.Observer, len(d.volumes))
	for i, v := range d.volumes {
		observers[i] = l4detect.Observer{Volume: v, Thresholds: d.tolerance.For(string(v.ID))}
	}

	mems := make([][]l4detect.PairMemory, len(agents))
	for i, a := range agents {
		d.history.Ensure(a)
		mem, ok := d.memory[a]
		if !ok || len(mem) != len(observers)+1 {
			mem = make([]l4detect.PairMemory, len(observers)+1)
			d.memory[a] = mem
		}
		mems[i] = mem
	}

	windows := d.tolerance.Config().Windows
	span := d.cfg.HistoryWindow.Seconds()
	masks := make([][]l4detect.StateMask, len(agents))
	evaluate := func(i int) {
		a := agents[i]
		d.history.Push(a, samples[i])
		m := l4detect.Measure(d.history.Window(a, span), windows)
		masks[i] = l4detect.EvaluateAgent(m, observers, mems[i])
	}

	if d.cfg.ParallelAgents > 0 && len(agents) >= d.cfg.ParallelAgents {
		// Each agent is owned by exactly one goroutine: its ring, its
		// memory slice and its mask slot.
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := range agents {
			g.Go(func() error {
				evaluate(i)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range agents {
			evaluate(i)
		}
	}

	// Single writer: apply in agent order so the event log is identical
	// whether or not evaluation was sharded.
	for i, a := range agents {
		d.manager.Observe(a, t)
		for j, v := range d.volumes {
			c, p := d.manager.Apply(a, v.ID, masks[i][j], t)
			out.add(c, p)
		}
		c, p := d.manager.Apply(a, l5states.GlobalObserver, masks[i][len(d.volumes)], t)
		out.add(c, p)
	}
}

func (e *emitted) add(c []l5states.CompletedEvent, p []l5states.PointEvent) {
	if e == nil {
		return
	}
	e.completed = append(e.completed, c...)
	e.points = append(e.points, p...)
}
