package l4detect

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/attention.report/internal/attention/l1history"
	"github.com/banshee-data/attention.report/internal/attention/l2volumes"
	"github.com/banshee-data/attention.report/internal/attention/l3tolerance"
)

func TestOrientationBoundaries(t *testing.T) {
	t.Parallel()
	g := r3.Vec{X: 0.3, Y: 0.1, Z: -0.9}

	assert.Equal(t, 0.0, AngularVelocityDeg(g, g, 0.1), "identical vectors")
	assert.Equal(t, 0.0, AngularVelocityDeg(r3.Vec{}, g, 0.1), "zero vector")
	assert.Equal(t, 0.0, AngularVelocityDeg(g, r3.Vec{X: 1}, 0), "zero dt")
	assert.InDelta(t, 900.0, AngularVelocityDeg(r3.Vec{Z: -1}, r3.Vec{X: 1}, 0.1), 1e-9)

	assert.InDelta(t, 180.0, VerticalAngleDeg(r3.Vec{Y: 1}), 1e-12)
	assert.InDelta(t, 0.0, VerticalAngleDeg(r3.Vec{Y: -1}), 1e-12)
	assert.InDelta(t, 90.0, VerticalAngleDeg(r3.Vec{X: 1}), 1e-12)
	assert.Equal(t, 90.0, VerticalAngleDeg(r3.Vec{}))
	assert.False(t, math.IsNaN(AngularVelocityDeg(r3.Vec{X: 1}, r3.Vec{X: 1 + 1e-16}, 0.033)))
}

func TestStateTaxonomy(t *testing.T) {
	t.Parallel()
	assert.Len(t, AllStates(), 12)
	for _, s := range AllStates() {
		parsed, ok := ParseStateType(s.String())
		require.True(t, ok, s.String())
		assert.Equal(t, s, parsed)
		assert.Equal(t, s.Shape() == ShapePoint, PointMask.Has(s))
		assert.Equal(t, s.Shape() == ShapeDuration, DurationMask.Has(s))
	}
	_, ok := ParseStateType("dance")
	assert.False(t, ok)
	assert.Equal(t, "state(99)", StateType(99).String())

	b, err := json.Marshal(map[StateType]int{LookUp: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lookUp":2}`, string(b))

	var s StateType
	require.NoError(t, json.Unmarshal([]byte(`"occupy"`), &s))
	assert.Equal(t, Occupy, s)

	assert.Equal(t, "{pause,noticed}", MaskOf(Noticed, Pause).String())
}

func track(speed float64, dt float64, n int) []l1history.PoseSample {
	out := make([]l1history.PoseSample, n)
	for i := range out {
		ts := float64(i) * dt
		out[i] = l1history.PoseSample{
			Time:        ts,
			Position:    r3.Vec{X: speed * ts, Y: 1.6},
			Orientation: r3.Vec{Z: -1},
		}
	}
	return out
}

func TestSmoothedSpeed(t *testing.T) {
	t.Parallel()

	s := SmoothedSpeed(track(1.2, 0.1, 20), 0.5, 0.5)
	require.True(t, s.OK)
	assert.InDelta(t, 1.2, s.Value, 1e-9)

	short := SmoothedSpeed(track(1.2, 0.1, 2), 1.0, 0.5)
	assert.False(t, short.OK, "0.1s of history does not cover half of a 1s window")

	assert.False(t, SmoothedSpeed(track(1, 0.1, 1), 1, 0.5).OK)
	assert.False(t, SmoothedSpeed(nil, 1, 0.5).OK)

	// Uneven spacing: 0..0.1 at 2 m/s, 0.1..0.4 at 0 m/s gives 0.2m over 0.4s.
	uneven := []l1history.PoseSample{
		{Time: 0, Position: r3.Vec{}},
		{Time: 0.1, Position: r3.Vec{X: 0.2}},
		{Time: 0.4, Position: r3.Vec{X: 0.2}},
	}
	u := SmoothedSpeed(uneven, 0.4, 0.5)
	require.True(t, u.OK)
	assert.InDelta(t, 0.5, u.Value, 1e-9)
}

func TestMeasure(t *testing.T) {
	t.Parallel()
	w := l3tolerance.DefaultConfig().Windows

	assert.Equal(t, Measurements{}, Measure(nil, w))

	m := Measure(track(0.05, 0.1, 20), w)
	assert.InDelta(t, 1.9, m.Time, 1e-9)
	assert.True(t, m.Pause.OK)
	assert.True(t, m.Linger.OK)
	assert.True(t, m.HasRate)
	assert.Equal(t, 0.0, m.AngularRate)
	assert.Equal(t, 90.0, m.Vertical)

	zero := []l1history.PoseSample{{Time: 0, Orientation: r3.Vec{Z: 1}}, {Time: 0.1}}
	zm := Measure(zero, w)
	assert.False(t, zm.HasGaze)
	assert.False(t, zm.HasRate, "degenerate gaze is neutral")
}

func room() l2volumes.Volume {
	return l2volumes.Volume{
		ID:       "room",
		Kind:     l2volumes.KindBox,
		Width:    4,
		Depth:    4,
		Height:   3,
		Position: r3.Vec{Z: 5},
		Face:     l2volumes.Face{Offset: -2},
	}
}

func TestClassify_MovementBands(t *testing.T) {
	t.Parallel()
	th := l3tolerance.DefaultConfig().Base
	inside := Signals{Inside: true}

	tests := []struct {
		name  string
		speed float64
		want  []StateType
		not   []StateType
	}{
		{"still", 0.05, []StateType{Pause, Linger}, []StateType{Walk, Rush}},
		{"slow", 0.3, []StateType{Linger}, []StateType{Pause, Walk, Rush}},
		{"walking", 1.2, []StateType{Walk}, []StateType{Pause, Linger, Rush}},
		{"running", 3, []StateType{Rush}, []StateType{Walk, Pause}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := Speed{Value: tt.speed, OK: true}
			m := Measurements{Speed: sp, Pause: sp, Linger: sp}
			mask, _ := Classify(m, inside, th, PairMemory{})
			for _, s := range tt.want {
				assert.True(t, mask.Has(s), "%s should hold", s)
			}
			for _, s := range tt.not {
				assert.False(t, mask.Has(s), "%s should not hold", s)
			}
			assert.True(t, mask.Has(Occupy))
		})
	}
}

func TestClassify_OutsideGatesAgentStates(t *testing.T) {
	t.Parallel()
	th := l3tolerance.DefaultConfig().Base
	sp := Speed{Value: 0, OK: true}
	m := Measurements{Speed: sp, Pause: sp, Linger: sp, HasRate: true, HasGaze: true, Vertical: 90}

	mask, mem := Classify(m, Signals{}, th, PairMemory{})
	assert.Equal(t, StateMask(0), mask)
	assert.Equal(t, PairMemory{}, mem)
}

func TestClassify_Hysteresis(t *testing.T) {
	t.Parallel()
	th := l3tolerance.DefaultConfig().Base
	th.Hysteresis.Movement = 0.2
	sp := Speed{Value: 0.17, OK: true} // above 0.15, below 0.18
	m := Measurements{Speed: sp, Pause: sp, Linger: sp}
	in := Signals{Inside: true}

	mask, _ := Classify(m, in, th, PairMemory{Inside: true})
	assert.False(t, mask.Has(Pause), "entering needs the base limit")

	mask, _ = Classify(m, in, th, PairMemory{Inside: true, Active: MaskOf(Pause)})
	assert.True(t, mask.Has(Pause), "an active pause survives inside the margin")
}

func TestClassify_Edges(t *testing.T) {
	t.Parallel()
	th := l3tolerance.DefaultConfig().Base
	sig := Signals{Inside: true, FaceHit: true, HasAngle: true, FaceAngle: 5}

	mask, mem := Classify(Measurements{}, sig, th, PairMemory{})
	assert.True(t, mask.Has(Entered))
	assert.True(t, mask.Has(Noticed))
	assert.True(t, mask.Has(Attend))

	mask, _ = Classify(Measurements{}, sig, th, mem)
	assert.False(t, mask.Has(Entered), "no edge while still inside")
	assert.False(t, mask.Has(Noticed))
	assert.True(t, mask.Has(Attend))

	wide := sig
	wide.FaceAngle = 25
	mask, _ = Classify(Measurements{}, wide, th, mem)
	assert.False(t, mask.Has(Attend), "outside the cone")

	// Noticing from outside the volume.
	outside := Signals{FaceHit: true, HasAngle: true}
	mask, _ = Classify(Measurements{}, outside, th, PairMemory{})
	assert.True(t, mask.Has(Noticed))
	assert.False(t, mask.Has(Entered))
}

func TestEvaluateAgent_FocusThenScan(t *testing.T) {
	t.Parallel()
	cfg := l3tolerance.DefaultConfig()
	obs := []Observer{{Volume: room(), Thresholds: cfg.Base}}
	mem := make([]PairMemory, 2)
	ring := l1history.NewRing(16)

	rotated := r3.Vec{X: 0.5, Z: math.Sqrt(3) / 2} // 150° from -Z
	steps := []struct {
		t     float64
		gaze  r3.Vec
		focus bool
		scan  bool
	}{
		{0.0, r3.Vec{Z: -1}, false, false},
		{0.2, r3.Vec{Z: -1}, true, false},
		{0.4, r3.Vec{Z: -1}, true, false},
		{0.5, rotated, false, true},
	}
	for _, st := range steps {
		ring.Add(l1history.PoseSample{Time: st.t, Position: r3.Vec{Y: 1.6, Z: 5}, Orientation: st.gaze})
		m := Measure(ring.Window(2), cfg.Windows)
		masks := EvaluateAgent(m, obs, mem)
		require.Len(t, masks, 2)
		assert.Equal(t, st.focus, masks[0].Has(Focus), "focus at t=%.1f", st.t)
		assert.Equal(t, st.scan, masks[0].Has(Scan), "scan at t=%.1f", st.t)
		assert.Equal(t, masks[0]&DurationMask, masks[1]&DurationMask, "global mirrors the only observer")
	}
	assert.InDelta(t, 1500, Measure(ring.Window(2), cfg.Windows).AngularRate, 1e-6)
}

func TestCombineGlobal(t *testing.T) {
	t.Parallel()
	masks := []StateMask{MaskOf(Occupy, Pause), MaskOf(Attend)}
	signals := []Signals{{Inside: true}, {FaceHit: true}}

	g, mem := CombineGlobal(masks, signals, PairMemory{})
	assert.Equal(t, MaskOf(Occupy, Pause, Attend, Noticed, Entered), g)

	g, _ = CombineGlobal([]StateMask{MaskOf(Occupy), 0}, []Signals{{Inside: true}, {FaceHit: true}}, mem)
	assert.Equal(t, MaskOf(Occupy), g, "no new edges while any observer keeps the signal")
}

func TestObserve(t *testing.T) {
	t.Parallel()
	th := l3tolerance.DefaultConfig().Base
	v := room()

	m := Measurements{Position: r3.Vec{Y: 1.5, Z: 10}, Gaze: r3.Vec{Z: -1}, HasGaze: true}
	s := Observe(v, m, th)
	assert.False(t, s.Inside)
	assert.True(t, s.FaceHit)
	assert.InDelta(t, 7, s.FaceDistance, 1e-9)

	m.Gaze = r3.Vec{}
	m.HasGaze = false
	assert.False(t, Observe(v, m, th).FaceHit)
}
