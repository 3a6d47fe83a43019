package pipeline

import (
	"errors"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
)

var (
	// ErrPoseUnavailable is returned when a replay cannot obtain a pose the
	// live pass used. The previous state is kept.
	ErrPoseUnavailable = errors.New("pose unavailable")

	// ErrSuperseded is returned by a recompute overtaken by a newer recompute
	// or a reset.
	ErrSuperseded = errors.New("recompute superseded")

	// ErrNoSource is returned when the engine has no pose source or clock.
	ErrNoSource = errors.New("no pose source")
)

// PoseSource exposes agent poses from the playback collaborator. A recompute
// calls PoseAtTime from its own goroutine while live ticks continue, so
// implementations must be safe for concurrent use.
type PoseSource interface {
	// Agents lists the agents currently present.
	Agents() []l1history.AgentID
	// CurrentPose returns the pose at the current simulation time.
	CurrentPose(agent l1history.AgentID) (l1history.PoseSample, bool)
	// PoseAtTime returns the pose at simulation time t.
	PoseAtTime(agent l1history.AgentID, t float64) (l1history.PoseSample, error)
}

// Clock is the simulation clock owned by the playback collaborator.
type Clock interface {
	SimulationTime() float64
	PlaybackSpeed() float64
	// IsReset reports that playback restarted from the beginning since the
	// last call.
	IsReset() bool
}
