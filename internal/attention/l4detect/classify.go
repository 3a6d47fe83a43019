package l4detect

import (
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
)

// PairMemory is what the detectors remember about one (agent, observer) pair
// between ticks.
type PairMemory struct {
	Inside  bool      // raw containment on the previous tick
	FaceHit bool      // raw gaze/face hit on the previous tick
	Active  StateMask // duration states reported on the previous tick
}

// Signals are the spatial tests of one agent against one volume.
type Signals struct {
	Inside       bool
	FaceHit      bool
	FaceAngle    float64 // degrees between gaze and the line to the face centre
	HasAngle     bool
	FaceDistance float64
}

// Observe runs the geometric tests for m against v.
func Observe(v l2volumes.Volume, m Measurements, th l3tolerance.Thresholds) Signals {
	var s Signals
	s.Inside = l2volumes.Contains(v, m.Position)
	if !m.HasGaze {
		return s
	}
	s.FaceDistance, s.FaceHit = l2volumes.IntersectsFace(v, m.Position, m.Gaze, th.NoticeMaxRange)
	s.FaceAngle, s.HasAngle = l2volumes.AngleToFaceDeg(v, m.Position, m.Gaze)
	return s
}

// Classify evaluates every state for one (agent, observer) pair and returns
// the mask of states that are true on this tick together with the memory
// for the next one.
//
// Movement and orientation states only hold while the agent is inside the
// volume. attend and noticed depend on gaze alone, so an agent can notice a
// volume from outside it.
func Classify(m Measurements, sig Signals, th l3tolerance.Thresholds, prev PairMemory) (StateMask, PairMemory) {
	var mask StateMask
	was := prev.Active

	if sig.Inside {
		mask = mask.With(Occupy)
		mask |= movementStates(m, th, was)
		mask |= orientationStates(m, th, was)
	}

	if sig.FaceHit && sig.HasAngle &&
		sig.FaceAngle <= th.Upper(th.AttendConeDeg, l3tolerance.Object, was.Has(Attend)) {
		mask = mask.With(Attend)
	}

	if sig.FaceHit && !prev.FaceHit {
		mask = mask.With(Noticed)
	}
	if sig.Inside && !prev.Inside {
		mask = mask.With(Entered)
	}

	return mask, PairMemory{
		Inside:  sig.Inside,
		FaceHit: sig.FaceHit,
		Active:  mask & DurationMask,
	}
}

func movementStates(m Measurements, th l3tolerance.Thresholds, was StateMask) StateMask {
	var mask StateMask
	if m.Pause.OK && m.Pause.Value < th.Upper(th.PauseMaxSpeed, l3tolerance.Movement, was.Has(Pause)) {
		mask = mask.With(Pause)
	}
	if m.Linger.OK && m.Linger.Value < th.Upper(th.LingerMaxSpeed, l3tolerance.Movement, was.Has(Linger)) {
		mask = mask.With(Linger)
	}
	if m.Speed.OK {
		if m.Speed.Value > th.Lower(th.RushMinSpeed, l3tolerance.Movement, was.Has(Rush)) {
			mask = mask.With(Rush)
		}
		walk := l3tolerance.Band{Min: th.WalkMinSpeed, Max: th.RushMinSpeed}
		if th.Widen(walk, l3tolerance.Movement, was.Has(Walk)).Contains(m.Speed.Value) {
			mask = mask.With(Walk)
		}
	}
	return mask
}

func orientationStates(m Measurements, th l3tolerance.Thresholds, was StateMask) StateMask {
	var mask StateMask
	if m.HasRate {
		if m.AngularRate > th.Lower(th.ScanMinDegPerSec, l3tolerance.Orientation, was.Has(Scan)) {
			mask = mask.With(Scan)
		}
		if m.AngularRate < th.Upper(th.FocusMaxDegPerSec, l3tolerance.Orientation, was.Has(Focus)) {
			mask = mask.With(Focus)
		}
	}
	if m.HasGaze {
		if th.Widen(th.LookUp, l3tolerance.Orientation, was.Has(LookUp)).Contains(m.Vertical) {
			mask = mask.With(LookUp)
		}
		if th.Widen(th.LookDown, l3tolerance.Orientation, was.Has(LookDown)).Contains(m.Vertical) {
			mask = mask.With(LookDown)
		}
	}
	return mask
}

// CombineGlobal derives the global pseudo-observer mask from the per-observer
// results of one agent. Duration states are the union across observers;
// point states are edges of "inside any" and "face hit on any".
func CombineGlobal(masks []StateMask, signals []Signals, prev PairMemory) (StateMask, PairMemory) {
	var mask StateMask
	var insideAny, hitAny bool
	for i, m := range masks {
		mask |= m & DurationMask
		insideAny = insideAny || signals[i].Inside
		hitAny = hitAny || signals[i].FaceHit
	}
	if hitAny && !prev.FaceHit {
		mask = mask.With(Noticed)
	}
	if insideAny && !prev.Inside {
		mask = mask.With(Entered)
	}
	return mask, PairMemory{Inside: insideAny, FaceHit: hitAny, Active: mask & DurationMask}
}

// Observer couples a volume with its effective thresholds for a tick.
type Observer struct {
	Volume     l2volumes.Volume
	Thresholds l3tolerance.Thresholds
}

// EvaluateAgent classifies one agent against every observer. memory must have
// len(observers)+1 entries, the last being the global pseudo-observer; it is
// updated in place. The returned slice is laid out the same way.
func EvaluateAgent(m Measurements, observers []Observer, memory []PairMemory) []StateMask {
	masks := make([]StateMask, len(observers)+1)
	signals := make([]Signals, len(observers))
	for i, o := range observers {
		signals[i] = Observe(o.Volume, m, o.Thresholds)
		masks[i], memory[i] = Classify(m, signals[i], o.Thresholds, memory[i])
	}
	g := len(observers)
	masks[g], memory[g] = CombineGlobal(masks[:g], signals, memory[g])
	return masks
}
