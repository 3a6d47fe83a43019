package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tolerance values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for detection tolerances
// and sampling cadence. The schema matches the /api/tolerance endpoint so the
// same JSON can be used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Sampling params
	HistoryWindow      *string `json:"history_window,omitempty"`       // duration string like "2s"
	SampleInterval     *string `json:"sample_interval,omitempty"`      // active rendering cadence, e.g. "33ms"
	IdleSampleInterval *string `json:"idle_sample_interval,omitempty"` // cadence when not rendering, e.g. "100ms"
	MaxTickDelta       *string `json:"max_tick_delta,omitempty"`       // clamp for a single catch-up burst
	ResetJumpTolerance *string `json:"reset_jump_tolerance,omitempty"` // backward jump treated as reset
	ParallelAgents     *int    `json:"parallel_agents,omitempty"`      // agent count above which ticks are sharded

	// Orientation params (degrees, degrees/second)
	ScanMinDegPerSec  *float64 `json:"scan_min_deg_per_sec,omitempty"`
	FocusMaxDegPerSec *float64 `json:"focus_max_deg_per_sec,omitempty"`
	LookUpMinDeg      *float64 `json:"look_up_min_deg,omitempty"`
	LookUpMaxDeg      *float64 `json:"look_up_max_deg,omitempty"`
	LookDownMinDeg    *float64 `json:"look_down_min_deg,omitempty"`
	LookDownMaxDeg    *float64 `json:"look_down_max_deg,omitempty"`

	// Movement params (m/s)
	PauseMaxSpeed  *float64 `json:"pause_max_speed,omitempty"`
	LingerMaxSpeed *float64 `json:"linger_max_speed,omitempty"`
	WalkMinSpeed   *float64 `json:"walk_min_speed,omitempty"`
	RushMinSpeed   *float64 `json:"rush_min_speed,omitempty"`
	SpeedWindow    *string  `json:"speed_window,omitempty"`
	PauseWindow    *string  `json:"pause_window,omitempty"`
	LingerWindow   *string  `json:"linger_window,omitempty"`
	WindowCoverage *float64 `json:"window_coverage,omitempty"` // fraction of a window that samples must span

	// Object params
	AttendConeDeg  *float64 `json:"attend_cone_deg,omitempty"`
	NoticeMaxRange *float64 `json:"notice_max_range,omitempty"` // metres

	// Hysteresis (fraction the band widens by while a state is active)
	MovementHysteresis    *float64 `json:"movement_hysteresis,omitempty"`
	OrientationHysteresis *float64 `json:"orientation_hysteresis,omitempty"`
	ObjectHysteresis      *float64 `json:"object_hysteresis,omitempty"`

	// Context scaling
	ReferenceVolumeSize *float64 `json:"reference_volume_size,omitempty"` // footprint m²
	SizeExponent        *float64 `json:"size_exponent,omitempty"`
	ReferenceDensity    *float64 `json:"reference_density,omitempty"` // agents per m²
	DensityWeight       *float64 `json:"density_weight,omitempty"`
	FactorMin           *float64 `json:"factor_min,omitempty"`
	FactorMax           *float64 `json:"factor_max,omitempty"`

	// Metrics
	MetricsRefreshInterval *string `json:"metrics_refresh_interval,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Every Get* accessor falls back to its default for nil fields.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with the built-in defaults. It mirrors config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		HistoryWindow:      ptrString("2s"),
		SampleInterval:     ptrString("33ms"),
		IdleSampleInterval: ptrString("100ms"),
		MaxTickDelta:       ptrString("500ms"),
		ResetJumpTolerance: ptrString("250ms"),
		ParallelAgents:     ptrInt(64),

		ScanMinDegPerSec:  ptrFloat64(110),
		FocusMaxDegPerSec: ptrFloat64(15),
		LookUpMinDeg:      ptrFloat64(91),
		LookUpMaxDeg:      ptrFloat64(120),
		LookDownMinDeg:    ptrFloat64(70),
		LookDownMaxDeg:    ptrFloat64(89),

		PauseMaxSpeed:  ptrFloat64(0.15),
		LingerMaxSpeed: ptrFloat64(0.5),
		WalkMinSpeed:   ptrFloat64(0.5),
		RushMinSpeed:   ptrFloat64(2.0),
		SpeedWindow:    ptrString("500ms"),
		PauseWindow:    ptrString("1s"),
		LingerWindow:   ptrString("1.5s"),
		WindowCoverage: ptrFloat64(0.5),

		AttendConeDeg:  ptrFloat64(20),
		NoticeMaxRange: ptrFloat64(12),

		MovementHysteresis:    ptrFloat64(0),
		OrientationHysteresis: ptrFloat64(0),
		ObjectHysteresis:      ptrFloat64(0),

		ReferenceVolumeSize: ptrFloat64(4),
		SizeExponent:        ptrFloat64(0),
		ReferenceDensity:    ptrFloat64(0.25),
		DensityWeight:       ptrFloat64(0),
		FactorMin:           ptrFloat64(0.5),
		FactorMax:           ptrFloat64(2),

		MetricsRefreshInterval: ptrString("1s"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to their defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseTuningConfig(data)
}

// ParseTuningConfig decodes and validates a JSON tuning document.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/attention/l3tolerance/
		"../../../../" + DefaultConfigPath, // from internal/attention/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Clone returns a deep copy so callers can mutate a config without
// affecting one already handed to the engine.
func (c *TuningConfig) Clone() *TuningConfig {
	data, err := json.Marshal(c)
	if err != nil {
		return DefaultTuningConfig()
	}
	out := EmptyTuningConfig()
	if err := json.Unmarshal(data, out); err != nil {
		return DefaultTuningConfig()
	}
	return out
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	durations := map[string]*string{
		"history_window":           c.HistoryWindow,
		"sample_interval":          c.SampleInterval,
		"idle_sample_interval":     c.IdleSampleInterval,
		"max_tick_delta":           c.MaxTickDelta,
		"reset_jump_tolerance":     c.ResetJumpTolerance,
		"speed_window":             c.SpeedWindow,
		"pause_window":             c.PauseWindow,
		"linger_window":            c.LingerWindow,
		"metrics_refresh_interval": c.MetricsRefreshInterval,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.GetSampleInterval() <= 0 || c.GetIdleSampleInterval() <= 0 {
		return fmt.Errorf("sample intervals must be positive")
	}
	if c.GetHistoryWindow() < c.GetSampleInterval() {
		return fmt.Errorf("history_window (%s) must be at least sample_interval (%s)",
			c.GetHistoryWindow(), c.GetSampleInterval())
	}
	for name, w := range map[string]time.Duration{
		"speed_window":  c.GetSpeedWindow(),
		"pause_window":  c.GetPauseWindow(),
		"linger_window": c.GetLingerWindow(),
	} {
		if w > c.GetHistoryWindow() {
			return fmt.Errorf("%s (%s) exceeds history_window (%s)", name, w, c.GetHistoryWindow())
		}
	}

	if c.GetScanMinDegPerSec() <= c.GetFocusMaxDegPerSec() {
		return fmt.Errorf("scan_min_deg_per_sec (%f) must exceed focus_max_deg_per_sec (%f)",
			c.GetScanMinDegPerSec(), c.GetFocusMaxDegPerSec())
	}
	if c.GetLookUpMinDeg() > c.GetLookUpMaxDeg() {
		return fmt.Errorf("look_up_min_deg must not exceed look_up_max_deg")
	}
	if c.GetLookDownMinDeg() > c.GetLookDownMaxDeg() {
		return fmt.Errorf("look_down_min_deg must not exceed look_down_max_deg")
	}
	if c.GetLookUpMinDeg() < 0 || c.GetLookUpMaxDeg() > 180 || c.GetLookDownMinDeg() < 0 || c.GetLookDownMaxDeg() > 180 {
		return fmt.Errorf("vertical angle bands must lie within [0, 180] degrees")
	}

	for name, v := range map[string]float64{
		"pause_max_speed":  c.GetPauseMaxSpeed(),
		"linger_max_speed": c.GetLingerMaxSpeed(),
		"walk_min_speed":   c.GetWalkMinSpeed(),
		"rush_min_speed":   c.GetRushMinSpeed(),
		"attend_cone_deg":  c.GetAttendConeDeg(),
		"notice_max_range": c.GetNoticeMaxRange(),
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, v)
		}
	}
	if c.GetWalkMinSpeed() > c.GetRushMinSpeed() {
		return fmt.Errorf("walk_min_speed (%f) must not exceed rush_min_speed (%f)",
			c.GetWalkMinSpeed(), c.GetRushMinSpeed())
	}

	if cov := c.GetWindowCoverage(); cov < 0 || cov > 1 {
		return fmt.Errorf("window_coverage must be between 0 and 1, got %f", cov)
	}
	for name, h := range map[string]float64{
		"movement_hysteresis":    c.GetMovementHysteresis(),
		"orientation_hysteresis": c.GetOrientationHysteresis(),
		"object_hysteresis":      c.GetObjectHysteresis(),
	} {
		if h < 0 || h > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, h)
		}
	}

	if c.GetFactorMin() <= 0 || c.GetFactorMin() > c.GetFactorMax() {
		return fmt.Errorf("factor bounds invalid: min=%f max=%f", c.GetFactorMin(), c.GetFactorMax())
	}
	if c.GetReferenceVolumeSize() <= 0 {
		return fmt.Errorf("reference_volume_size must be positive, got %f", c.GetReferenceVolumeSize())
	}
	if c.ParallelAgents != nil && *c.ParallelAgents < 0 {
		return fmt.Errorf("parallel_agents must be non-negative, got %d", *c.ParallelAgents)
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// GetHistoryWindow returns the per-agent ring buffer window.
func (c *TuningConfig) GetHistoryWindow() time.Duration {
	return durationOr(c.HistoryWindow, 2*time.Second)
}

// GetSampleInterval returns the tick interval while the consumer is rendering.
func (c *TuningConfig) GetSampleInterval() time.Duration {
	return durationOr(c.SampleInterval, 33*time.Millisecond)
}

// GetIdleSampleInterval returns the tick interval while the consumer is not rendering.
func (c *TuningConfig) GetIdleSampleInterval() time.Duration {
	return durationOr(c.IdleSampleInterval, 100*time.Millisecond)
}

// GetMaxTickDelta returns the clamp on simulation time covered by one Advance.
func (c *TuningConfig) GetMaxTickDelta() time.Duration {
	return durationOr(c.MaxTickDelta, 500*time.Millisecond)
}

// GetResetJumpTolerance returns how far the clock may step backwards before
// the engine treats it as a reset.
func (c *TuningConfig) GetResetJumpTolerance() time.Duration {
	return durationOr(c.ResetJumpTolerance, 250*time.Millisecond)
}

// GetParallelAgents returns the agent count at which ticks are sharded.
// Zero disables sharding.
func (c *TuningConfig) GetParallelAgents() int {
	if c.ParallelAgents == nil {
		return 64
	}
	return *c.ParallelAgents
}

func (c *TuningConfig) GetScanMinDegPerSec() float64  { return floatOr(c.ScanMinDegPerSec, 110) }
func (c *TuningConfig) GetFocusMaxDegPerSec() float64 { return floatOr(c.FocusMaxDegPerSec, 15) }
func (c *TuningConfig) GetLookUpMinDeg() float64      { return floatOr(c.LookUpMinDeg, 91) }
func (c *TuningConfig) GetLookUpMaxDeg() float64      { return floatOr(c.LookUpMaxDeg, 120) }
func (c *TuningConfig) GetLookDownMinDeg() float64    { return floatOr(c.LookDownMinDeg, 70) }
func (c *TuningConfig) GetLookDownMaxDeg() float64    { return floatOr(c.LookDownMaxDeg, 89) }

func (c *TuningConfig) GetPauseMaxSpeed() float64  { return floatOr(c.PauseMaxSpeed, 0.15) }
func (c *TuningConfig) GetLingerMaxSpeed() float64 { return floatOr(c.LingerMaxSpeed, 0.5) }
func (c *TuningConfig) GetWalkMinSpeed() float64   { return floatOr(c.WalkMinSpeed, 0.5) }
func (c *TuningConfig) GetRushMinSpeed() float64   { return floatOr(c.RushMinSpeed, 2.0) }

// GetSpeedWindow returns the smoothing window for walk/rush speed.
func (c *TuningConfig) GetSpeedWindow() time.Duration {
	return durationOr(c.SpeedWindow, 500*time.Millisecond)
}

// GetPauseWindow returns the window over which pause speed must be sustained.
func (c *TuningConfig) GetPauseWindow() time.Duration {
	return durationOr(c.PauseWindow, time.Second)
}

// GetLingerWindow returns the window over which linger speed must be sustained.
func (c *TuningConfig) GetLingerWindow() time.Duration {
	return durationOr(c.LingerWindow, 1500*time.Millisecond)
}

func (c *TuningConfig) GetWindowCoverage() float64 { return floatOr(c.WindowCoverage, 0.5) }
func (c *TuningConfig) GetAttendConeDeg() float64  { return floatOr(c.AttendConeDeg, 20) }
func (c *TuningConfig) GetNoticeMaxRange() float64 { return floatOr(c.NoticeMaxRange, 12) }

func (c *TuningConfig) GetMovementHysteresis() float64    { return floatOr(c.MovementHysteresis, 0) }
func (c *TuningConfig) GetOrientationHysteresis() float64 { return floatOr(c.OrientationHysteresis, 0) }
func (c *TuningConfig) GetObjectHysteresis() float64      { return floatOr(c.ObjectHysteresis, 0) }

func (c *TuningConfig) GetReferenceVolumeSize() float64 { return floatOr(c.ReferenceVolumeSize, 4) }
func (c *TuningConfig) GetSizeExponent() float64        { return floatOr(c.SizeExponent, 0) }
func (c *TuningConfig) GetReferenceDensity() float64    { return floatOr(c.ReferenceDensity, 0.25) }
func (c *TuningConfig) GetDensityWeight() float64       { return floatOr(c.DensityWeight, 0) }
func (c *TuningConfig) GetFactorMin() float64           { return floatOr(c.FactorMin, 0.5) }
func (c *TuningConfig) GetFactorMax() float64           { return floatOr(c.FactorMax, 2) }

// GetMetricsRefreshInterval returns the minimum wall-clock interval between
// recomputed metrics snapshots for the same observer.
func (c *TuningConfig) GetMetricsRefreshInterval() time.Duration {
	return durationOr(c.MetricsRefreshInterval, time.Second)
}
