package pipeline

import (
	"time"

	"github.com/banshee-data/attention.report/internal/config"
)

// Config controls tick scheduling.
type Config struct {
	SampleInterval     time.Duration // tick spacing while the consumer renders
	IdleSampleInterval time.Duration // tick spacing otherwise
	MaxTickDelta       time.Duration // longest simulation span caught up per Advance
	ResetJumpTolerance time.Duration // backward jumps beyond this reset the engine
	HistoryWindow      time.Duration // per-agent ring span
	ParallelAgents     int           // shard evaluation at or above this agent count; 0 disables
}

// ConfigFromTuning builds a Config from the tuning document.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		SampleInterval:     cfg.GetSampleInterval(),
		IdleSampleInterval: cfg.GetIdleSampleInterval(),
		MaxTickDelta:       cfg.GetMaxTickDelta(),
		ResetJumpTolerance: cfg.GetResetJumpTolerance(),
		HistoryWindow:      cfg.GetHistoryWindow(),
		ParallelAgents:     cfg.GetParallelAgents(),
	}
}

// DefaultConfig returns the code defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}
