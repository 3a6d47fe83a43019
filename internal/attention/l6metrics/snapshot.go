package l6metrics

import (
	"time"

	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l4detect"
	"github.com/banshee-data/attention.report/internal/attention/l5states"
)

// StateMetrics summarises one state on one observer.
type StateMetrics struct {
	Count           int     `json:"count"`
	AverageDuration float64 `json:"average_duration"`
	MaxDuration     float64 `json:"max_duration"`
	TotalDuration   float64 `json:"total_duration"`
	Active          int     `json:"active"`
	PeakConcurrent  int     `json:"peak_concurrent"`
}

// GlobalContext is the same data for the global pseudo-observer plus
// session-wide figures.
type GlobalContext struct {
	StateCounts           map[l4detect.StateType]int     `json:"state_counts"`
	MaxDurations          map[l4detect.StateType]float64 `json:"max_durations"`
	AverageSimulationTime float64                        `json:"average_simulation_time"`
	TotalAgents           int                            `json:"total_agents"`
}

// Snapshot is the metrics view of one observer.
type Snapshot struct {
	Observer   l2volumes.ObserverID `json:"observer"`
	Version    uint64               `json:"version"`
	ComputedAt time.Time            `json:"computed_at"`

	States map[l4detect.StateType]StateMetrics `json:"states"`

	Agents               int     `json:"agents"`
	NoticedAgents        int     `json:"noticed_agents"`
	EnteredAgents        int     `json:"entered_agents"`
	AverageNoticeToEnter float64 `json:"average_notice_to_enter"`
	NoticeToEnterSamples int     `json:"notice_to_enter_samples"`

	Global GlobalContext `json:"global"`
}

// Compute builds a snapshot from the manager's running aggregates. It does
// not scan event lists, so its cost is independent of session length.
func Compute(m *l5states.Manager, observer l2volumes.ObserverID, now time.Time) Snapshot {
	st := m.Stats(observer)
	snap := Snapshot{
		Observer:             observer,
		Version:              m.Version(),
		ComputedAt:           now,
		States:               make(map[l4detect.StateType]StateMetrics, l4detect.NumStates),
		Agents:               st.Agents,
		NoticedAgents:        st.NoticedAgents,
		EnteredAgents:        st.EnteredAgents,
		NoticeToEnterSamples: st.NoticeToEnterCount,
	}
	if st.NoticeToEnterCount > 0 {
		snap.AverageNoticeToEnter = st.NoticeToEnterSum / float64(st.NoticeToEnterCount)
	}
	for _, s := range l4detect.AllStates() {
		ss := st.States[s]
		snap.States[s] = StateMetrics{
			Count:           ss.Count,
			AverageDuration: ss.AverageDuration(),
			MaxDuration:     ss.MaxDuration,
			TotalDuration:   ss.TotalDuration,
			Active:          ss.Active,
			PeakConcurrent:  ss.PeakConcurrent,
		}
	}

	global := m.Stats(l5states.GlobalObserver)
	snap.Global = GlobalContext{
		StateCounts:           make(map[l4detect.StateType]int, l4detect.NumStates),
		MaxDurations:          make(map[l4detect.StateType]float64, l4detect.NumStates),
		AverageSimulationTime: m.AverageSimulationTime(),
		TotalAgents:           m.AgentCount(),
	}
	for _, s := range l4detect.AllStates() {
		snap.Global.StateCounts[s] = global.States[s].Count
		if s.Shape() == l4detect.ShapeDuration {
			snap.Global.MaxDurations[s] = global.States[s].MaxDuration
		}
	}
	return snap
}
