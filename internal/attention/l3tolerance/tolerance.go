package l3tolerance

import (
	"math"
	"time"

	"github.com/banshee-data/attention.report/internal/config"
)

// Family groups states that share a hysteresis margin.
type Family uint8

const (
	Movement Family = iota
	Orientation
	Object
)

// Band is an inclusive [Min, Max] interval.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies within the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// scale multiplies the half-width by f, keeping the centre fixed.
func (b Band) scale(f float64) Band {
	c := (b.Min + b.Max) / 2
	h := (b.Max - b.Min) / 2 * f
	return Band{Min: c - h, Max: c + h}
}

// Thresholds is the set of detector limits in force for one observer.
type Thresholds struct {
	PauseMaxSpeed     float64 `json:"pause_max_speed"`
	LingerMaxSpeed    float64 `json:"linger_max_speed"`
	WalkMinSpeed      float64 `json:"walk_min_speed"`
	RushMinSpeed      float64 `json:"rush_min_speed"`
	ScanMinDegPerSec  float64 `json:"scan_min_deg_per_sec"`
	FocusMaxDegPerSec float64 `json:"focus_max_deg_per_sec"`
	LookUp            Band    `json:"look_up"`
	LookDown          Band    `json:"look_down"`
	AttendConeDeg     float64 `json:"attend_cone_deg"`
	NoticeMaxRange    float64 `json:"notice_max_range"`

	Hysteresis Hysteresis `json:"hysteresis"`
}

// Hysteresis holds the fractional margin by which a limit is relaxed while
// the corresponding state is already active.
type Hysteresis struct {
	Movement    float64 `json:"movement"`
	Orientation float64 `json:"orientation"`
	Object      float64 `json:"object"`
}

func (h Hysteresis) of(f Family) float64 {
	switch f {
	case Movement:
		return h.Movement
	case Orientation:
		return h.Orientation
	case Object:
		return h.Object
	}
	return 0
}

// Upper returns an upper limit (value must stay below it), raised by the
// family margin while active.
func (t Thresholds) Upper(limit float64, f Family, active bool) float64 {
	if !active {
		return limit
	}
	return limit * (1 + t.Hysteresis.of(f))
}

// Lower returns a lower limit (value must stay above it), lowered by the
// family margin while active.
func (t Thresholds) Lower(limit float64, f Family, active bool) float64 {
	if !active {
		return limit
	}
	return limit * (1 - t.Hysteresis.of(f))
}

// Widen returns b with its half-width grown by the family margin while
// active.
func (t Thresholds) Widen(b Band, f Family, active bool) Band {
	if !active {
		return b
	}
	return b.scale(1 + t.Hysteresis.of(f))
}

// scaled applies the context factor to every limit. Bands keep their centre.
func (t Thresholds) scaled(f float64) Thresholds {
	if f == 1 {
		return t
	}
	out := t
	out.PauseMaxSpeed *= f
	out.LingerMaxSpeed *= f
	out.WalkMinSpeed *= f
	out.RushMinSpeed *= f
	out.ScanMinDegPerSec *= f
	out.FocusMaxDegPerSec *= f
	out.LookUp = t.LookUp.scale(f)
	out.LookDown = t.LookDown.scale(f)
	out.AttendConeDeg *= f
	out.NoticeMaxRange *= f
	return out
}

// Windows are the trailing spans over which movement speed is smoothed.
type Windows struct {
	Speed    time.Duration
	Pause    time.Duration
	Linger   time.Duration
	Coverage float64 // fraction of a window the samples must span
}

// Config is the complete tolerance configuration.
type Config struct {
	Base    Thresholds
	Windows Windows

	ReferenceVolumeSize float64 // m² footprint at which the size factor is 1
	SizeExponent        float64
	ReferenceDensity    float64 // agents per m² at which the density term is 0
	DensityWeight       float64
	FactorMin           float64
	FactorMax           float64
}

// ConfigFromTuning builds a Config from the tuning document.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		Base: Thresholds{
			PauseMaxSpeed:     cfg.GetPauseMaxSpeed(),
			LingerMaxSpeed:    cfg.GetLingerMaxSpeed(),
			WalkMinSpeed:      cfg.GetWalkMinSpeed(),
			RushMinSpeed:      cfg.GetRushMinSpeed(),
			ScanMinDegPerSec:  cfg.GetScanMinDegPerSec(),
			FocusMaxDegPerSec: cfg.GetFocusMaxDegPerSec(),
			LookUp:            Band{Min: cfg.GetLookUpMinDeg(), Max: cfg.GetLookUpMaxDeg()},
			LookDown:          Band{Min: cfg.GetLookDownMinDeg(), Max: cfg.GetLookDownMaxDeg()},
			AttendConeDeg:     cfg.GetAttendConeDeg(),
			NoticeMaxRange:    cfg.GetNoticeMaxRange(),
			Hysteresis: Hysteresis{
				Movement:    cfg.GetMovementHysteresis(),
				Orientation: cfg.GetOrientationHysteresis(),
				Object:      cfg.GetObjectHysteresis(),
			},
		},
		Windows: Windows{
			Speed:    cfg.GetSpeedWindow(),
			Pause:    cfg.GetPauseWindow(),
			Linger:   cfg.GetLingerWindow(),
			Coverage: cfg.GetWindowCoverage(),
		},
		ReferenceVolumeSize: cfg.GetReferenceVolumeSize(),
		SizeExponent:        cfg.GetSizeExponent(),
		ReferenceDensity:    cfg.GetReferenceDensity(),
		DensityWeight:       cfg.GetDensityWeight(),
		FactorMin:           cfg.GetFactorMin(),
		FactorMax:           cfg.GetFactorMax(),
	}
}

// DefaultConfig returns the configuration built from the code defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// Context describes the situation an observer's thresholds are adjusted for.
// A zero VolumeSize is the neutral context used by the global pseudo-observer.
type Context struct {
	VolumeSize   float64 // footprint in m²
	AgentDensity float64 // agents per m² of footprint
}

// Factor returns the multiplicative threshold adjustment for ctx, clamped to
// [FactorMin, FactorMax].
func (c Config) Factor(ctx Context) float64 {
	if ctx.VolumeSize <= 0 {
		return 1
	}
	f := 1.0
	if c.ReferenceVolumeSize > 0 && c.SizeExponent != 0 {
		f = math.Pow(ctx.VolumeSize/c.ReferenceVolumeSize, c.SizeExponent)
	}
	f *= 1 + c.DensityWeight*(ctx.AgentDensity-c.ReferenceDensity)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 1
	}
	return math.Max(c.FactorMin, math.Min(c.FactorMax, f))
}

// Effective returns the base thresholds scaled for ctx.
func (c Config) Effective(ctx Context) Thresholds {
	return c.Base.scaled(c.Factor(ctx))
}
