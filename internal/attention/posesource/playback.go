package posesource

import (
	"sync"
	"time"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
)

// Playback plays a Recording on a simulation clock. Step advances simulation
// time by wall time scaled by the playback speed.
type Playback struct {
	rec *Recording

	mu    sync.Mutex
	now   float64
	speed float64
	reset bool
}

// NewPlayback starts a playback at the beginning of rec at normal speed.
func NewPlayback(rec *Recording) *Playback {
	return &Playback{rec: rec, now: rec.Start(), speed: 1}
}

// Recording returns the recording being played.
func (p *Playback) Recording() *Recording { return p.rec }

// SimulationTime returns the current simulation time in seconds.
func (p *Playback) SimulationTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

// PlaybackSpeed returns the simulation seconds per wall second. Zero means
// paused.
func (p *Playback) PlaybackSpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// IsReset reports, once, that playback was rewound to the start.
func (p *Playback) IsReset() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.reset
	p.reset = false
	return r
}

// SetSpeed sets the playback speed; negative values are treated as paused.
func (p *Playback) SetSpeed(speed float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if speed < 0 {
		speed = 0
	}
	p.speed = speed
}

// Step advances simulation time by wall × speed, stopping at the end of the
// recording. It returns the new simulation time.
func (p *Playback) Step(wall time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now += wall.Seconds() * p.speed
	if end := p.rec.End(); p.now > end {
		p.now = end
	}
	return p.now
}

// Seek jumps to t. Seeking to or before the start raises the reset signal.
func (p *Playback) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t <= p.rec.Start() {
		t = p.rec.Start()
		p.reset = true
	}
	if end := p.rec.End(); t > end {
		t = end
	}
	p.now = t
}

// Done reports whether playback reached the end of the recording.
func (p *Playback) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now >= p.rec.End()
}

// Agents lists the agents present at the current time.
func (p *Playback) Agents() []l1history.AgentID {
	return p.rec.AgentsAt(p.SimulationTime())
}

// CurrentPose returns the agent's pose at the current time.
func (p *Playback) CurrentPose(agent l1history.AgentID) (l1history.PoseSample, bool) {
	s, err := p.rec.PoseAt(agent, p.SimulationTime())
	return s, err == nil
}

// PoseAtTime returns the agent's pose at t.
func (p *Playback) PoseAtTime(agent l1history.AgentID, t float64) (l1history.PoseSample, error) {
	return p.rec.PoseAt(agent, t)
}
