package l4detect

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
)

// coverageSlack absorbs float drift when comparing a window span against the
// required coverage on a tick grid.
const coverageSlack = 1e-9

// AngularVelocityDeg returns the angle between a and b in degrees divided by
// dt seconds. Zero-length vectors and non-positive dt yield 0.
func AngularVelocityDeg(a, b r3.Vec, dt float64) float64 {
	deg, ok := angleBetweenDeg(a, b)
	if !ok || dt <= 0 {
		return 0
	}
	return deg / dt
}

func angleBetweenDeg(a, b r3.Vec) (float64, bool) {
	na, nb := r3.Norm(a), r3.Norm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	c := r3.Dot(a, b) / (na * nb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi, true
}

// VerticalAngleDeg returns 90 + the elevation of v in degrees: 90 is
// horizontal, 180 straight up, 0 straight down. A zero vector yields 90.
func VerticalAngleDeg(v r3.Vec) float64 {
	h := math.Hypot(v.X, v.Z)
	if h == 0 && v.Y == 0 {
		return 90
	}
	return 90 + math.Atan2(v.Y, h)*180/math.Pi
}

// Speed is a smoothed linear speed over a trailing window. OK is false when
// the history does not cover enough of the window.
type Speed struct {
	Value float64
	OK    bool
}

// SmoothedSpeed returns the time-weighted mean of consecutive segment speeds
// for the samples within window seconds of the newest, which equals path
// length over elapsed time. samples must be oldest first.
func SmoothedSpeed(samples []l1history.PoseSample, window, coverage float64) Speed {
	if len(samples) < 2 || window <= 0 {
		return Speed{}
	}
	newest := samples[len(samples)-1].Time
	start := len(samples) - 1
	for start > 0 && samples[start-1].Time >= newest-window-coverageSlack {
		start--
	}
	w := samples[start:]
	if len(w) < 2 {
		return Speed{}
	}
	if span := newest - w[0].Time; span < coverage*window-coverageSlack {
		return Speed{}
	}

	speeds := make([]float64, 0, len(w)-1)
	weights := make([]float64, 0, len(w)-1)
	for i := 1; i < len(w); i++ {
		dt := w[i].Time - w[i-1].Time
		if dt <= 0 {
			continue
		}
		speeds = append(speeds, r3.Norm(r3.Sub(w[i].Position, w[i-1].Position))/dt)
		weights = append(weights, dt)
	}
	if len(speeds) == 0 {
		return Speed{}
	}
	return Speed{Value: stat.Mean(speeds, weights), OK: true}
}

// Measurements are the per-agent quantities shared by every observer on a
// tick.
type Measurements struct {
	Time     float64
	Position r3.Vec
	Gaze     r3.Vec

	Speed  Speed // over the speed window, for walk and rush
	Pause  Speed // over the pause window
	Linger Speed // over the linger window

	AngularRate float64 // deg/s from the previous sample
	HasRate     bool
	Vertical    float64 // VerticalAngleDeg of the gaze
	HasGaze     bool
}

// Measure derives Measurements from an agent's history window (oldest first,
// newest sample last). An empty window yields the zero value.
func Measure(samples []l1history.PoseSample, w l3tolerance.Windows) Measurements {
	if len(samples) == 0 {
		return Measurements{}
	}
	cur := samples[len(samples)-1]
	m := Measurements{
		Time:     cur.Time,
		Position: cur.Position,
		Gaze:     cur.Orientation,
		Speed:    SmoothedSpeed(samples, w.Speed.Seconds(), w.Coverage),
		Pause:    SmoothedSpeed(samples, w.Pause.Seconds(), w.Coverage),
		Linger:   SmoothedSpeed(samples, w.Linger.Seconds(), w.Coverage),
	}
	if r3.Norm(cur.Orientation) > 0 {
		m.HasGaze = true
		m.Vertical = VerticalAngleDeg(cur.Orientation)
	}
	if len(samples) >= 2 {
		prev := samples[len(samples)-2]
		dt := cur.Time - prev.Time
		if _, ok := angleBetweenDeg(prev.Orientation, cur.Orientation); ok && dt > 0 {
			m.AngularRate = AngularVelocityDeg(prev.Orientation, cur.Orientation, dt)
			m.HasRate = true
		}
	}
	return m
}
