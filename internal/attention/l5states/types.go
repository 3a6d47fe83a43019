package l5states

import (
	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
)

// GlobalObserver is the reserved id of the pseudo-observer spanning every
// real observer.
const GlobalObserver l2volumes.ObserverID = "*global*"

// DetectionKey identifies one state of one agent against one observer.
type DetectionKey struct {
	Agent    l1history.AgentID    `json:"agent"`
	Observer l2volumes.ObserverID `json:"observer"`
	State    l4detect.StateType   `json:"state"`
}

// ActiveState is an open duration state.
type ActiveState struct {
	Key   DetectionKey `json:"key"`
	Start float64      `json:"start"`
}

// CompletedEvent is a closed duration state.
type CompletedEvent struct {
	Key      DetectionKey `json:"key"`
	Start    float64      `json:"start"`
	End      float64      `json:"end"`
	Duration float64      `json:"duration"`
}

// PointEvent is an instantaneous edge-triggered state.
type PointEvent struct {
	Key  DetectionKey `json:"key"`
	Time float64      `json:"time"`
}

// Sink receives events as they are emitted. OnReset is called whenever the
// event set is discarded, either by a reset or by a recompute swap.
type Sink interface {
	OnCompleted(CompletedEvent)
	OnPoint(PointEvent)
	OnReset()
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Agent    l1history.AgentID
	Observer l2volumes.ObserverID
	States   l4detect.StateMask
}

// Match reports whether k passes the filter.
func (f Filter) Match(k DetectionKey) bool {
	if f.Agent != "" && f.Agent != k.Agent {
		return false
	}
	if f.Observer != "" && f.Observer != k.Observer {
		return false
	}
	return f.States == 0 || f.States.Has(k.State)
}

// StateStats are the running aggregates for one state on one observer.
type StateStats struct {
	Count          int     `json:"count"` // completed events, or point events for point states
	TotalDuration  float64 `json:"total_duration"`
	MaxDuration    float64 `json:"max_duration"`
	Active         int     `json:"active"`
	PeakConcurrent int     `json:"peak_concurrent"`
}

// AverageDuration returns TotalDuration / Count, or 0.
func (s StateStats) AverageDuration() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalDuration / float64(s.Count)
}

// ObserverStats is a copy of every aggregate held for an observer.
type ObserverStats struct {
	States             [l4detect.NumStates]StateStats
	Agents             int
	NoticedAgents      int
	EnteredAgents      int
	NoticeToEnterSum   float64
	NoticeToEnterCount int
}
