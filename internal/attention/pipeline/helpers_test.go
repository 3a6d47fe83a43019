package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
	"github.com/banshee-data/attention.report/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

type testClock struct {
	mu    sync.Mutex
	now   float64
	speed float64
	reset bool
}

func newTestClock() *testClock { return &testClock{speed: 1} }

func (c *testClock) SimulationTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) PlaybackSpeed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

func (c *testClock) IsReset() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.reset
	c.reset = false
	return r
}

func (c *testClock) set(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type poseFunc func(agent l1history.AgentID, t float64) (position, gaze r3.Vec)

var errNoRecording = errors.New("no recording")

// testSource computes poses from a function of (agent, time).
type testSource struct {
	clock  *testClock
	agents []l1history.AgentID
	pose   poseFunc

	mu      sync.Mutex
	failing bool
	gate    chan struct{} // PoseAtTime blocks on it once when set
	entered chan struct{}
}

func (s *testSource) Agents() []l1history.AgentID {
	return append([]l1history.AgentID(nil), s.agents...)
}

func (s *testSource) CurrentPose(a l1history.AgentID) (l1history.PoseSample, bool) {
	t := s.clock.SimulationTime()
	p, g := s.pose(a, t)
	return l1history.PoseSample{Time: t, Position: p, Orientation: g}, true
}

func (s *testSource) PoseAtTime(a l1history.AgentID, t float64) (l1history.PoseSample, error) {
	s.mu.Lock()
	failing, gate, entered := s.failing, s.gate, s.entered
	s.gate = nil
	s.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}
	if failing {
		return l1history.PoseSample{}, fmt.Errorf("%w for %s", errNoRecording, a)
	}
	p, g := s.pose(a, t)
	return l1history.PoseSample{Time: t, Position: p, Orientation: g}, nil
}

func room() l2volumes.Volume {
	return l2volumes.Volume{
		ID:     "room",
		Kind:   l2volumes.KindBox,
		Width:  10,
		Depth:  10,
		Height: 3,
		Face:   l2volumes.Face{Offset: -5},
	}
}

func gridConfig(interval time.Duration) Config {
	cfg := DefaultConfig()
	cfg.SampleInterval = interval
	cfg.IdleSampleInterval = 2 * interval
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, tol l3tolerance.Config, agents []l1history.AgentID, pose poseFunc, vols ...l2volumes.Volume) (*Engine, *testClock, *testSource) {
	t.Helper()
	clk := newTestClock()
	src := &testSource{clock: clk, agents: agents, pose: pose}
	e := NewEngine(cfg, tol, src, clk)
	if len(vols) > 0 {
		require.NoError(t, e.SetVolumes(context.Background(), vols))
	}
	return e, clk, src
}

// runTo advances the clock in steps of dt up to and including end.
func runTo(t *testing.T, e *Engine, clk *testClock, start, end, dt float64) {
	t.Helper()
	for i := 0; ; i++ {
		ts := start + float64(i)*dt
		if ts > end+1e-9 {
			return
		}
		clk.set(ts)
		_, err := e.Advance(context.Background())
		require.NoError(t, err)
	}
}

// pauseProfile drifts at 0.1 m/s until t=4, walks at 1 m/s until t=6, then
// stands still.
func pauseProfile(_ l1history.AgentID, t float64) (r3.Vec, r3.Vec) {
	var x float64
	switch {
	case t < 4:
		x = -4 + 0.1*t
	case t < 6:
		x = -3.6 + (t - 4)
	default:
		x = -1.6
	}
	return r3.Vec{X: x, Y: 1.6}, r3.Vec{Z: -1}
}

// wander gives each agent a distinct path with changing speed and gaze.
func wander(a l1history.AgentID, t float64) (r3.Vec, r3.Vec) {
	phase := float64(len(a)) + float64(a[len(a)-1])
	speed := 0.05 + 0.8*float64(int(t+phase)%4)
	x := -4 + speed*math.Mod(t, 8)
	yaw := float64(int(t*2+phase)%5) * 0.9
	return r3.Vec{X: x, Y: 1.6, Z: float64(int(phase)%3) - 1},
		r3.Vec{X: math.Sin(yaw), Y: 0.2 * float64(int(t+phase)%3-1), Z: -math.Cos(yaw)}
}
