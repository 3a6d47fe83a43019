package l1history

import "gonum.org/v1/gonum/spatial/r3"

// AgentID identifies one tracked moving entity.
type AgentID string

// PoseSample is one timestamped observation of an agent: head position and
// unit gaze direction at a simulation time (seconds).
type PoseSample struct {
	Time        float64
	Position    r3.Vec
	Orientation r3.Vec
}
