package l2volumes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func unitBox(yaw float64) Volume {
	return Volume{
		ID:     "shelf",
		Kind:   KindBox,
		Width:  2,
		Depth:  2,
		Height: 2,
		YawDeg: yaw,
		Face:   Face{Offset: 1},
	}
}

func TestContains_Box(t *testing.T) {
	t.Parallel()
	v := unitBox(0)

	assert.True(t, Contains(v, r3.Vec{X: 0, Y: 1, Z: 0}))
	assert.True(t, Contains(v, r3.Vec{X: 1, Y: 2, Z: -1}), "boundary is inside")
	assert.False(t, Contains(v, r3.Vec{X: 1.3, Y: 1, Z: 0}))
	assert.False(t, Contains(v, r3.Vec{X: 0, Y: -0.01, Z: 0}), "below floor")
	assert.False(t, Contains(v, r3.Vec{X: 0, Y: 2.01, Z: 0}), "above ceiling")
}

func TestContains_RotatedBox(t *testing.T) {
	t.Parallel()
	v := unitBox(45)

	// The rotated corner reaches sqrt(2) along world X.
	assert.True(t, Contains(v, r3.Vec{X: 1.3, Y: 1, Z: 0}))
	assert.False(t, Contains(v, r3.Vec{X: 0.95, Y: 1, Z: 0.95}))
}

func TestContains_TranslatedBox(t *testing.T) {
	t.Parallel()
	v := unitBox(0)
	v.Position = r3.Vec{X: 10, Y: 0, Z: -3}

	assert.True(t, Contains(v, r3.Vec{X: 10.5, Y: 0.5, Z: -3.5}))
	assert.False(t, Contains(v, r3.Vec{X: 0, Y: 0.5, Z: 0}))
}

func TestContains_Cylinder(t *testing.T) {
	t.Parallel()
	v := Volume{ID: "kiosk", Kind: KindCylinder, Radius: 1, Height: 2}

	assert.True(t, Contains(v, r3.Vec{X: 0.7, Y: 0.5, Z: 0.7}))
	assert.False(t, Contains(v, r3.Vec{X: 0.8, Y: 0.5, Z: 0.8}))
	assert.False(t, Contains(v, r3.Vec{X: 0, Y: 2.5, Z: 0}))
}

func TestIntersectsFace(t *testing.T) {
	t.Parallel()
	v := unitBox(0)
	eye := r3.Vec{X: 0, Y: 1, Z: 5}

	tests := []struct {
		name     string
		origin   r3.Vec
		dir      r3.Vec
		maxRange float64
		wantOK   bool
		wantDist float64
	}{
		{"head on", eye, r3.Vec{Z: -1}, 10, true, 4},
		{"unnormalised direction", eye, r3.Vec{Z: -3}, 10, true, 4},
		{"out of range", eye, r3.Vec{Z: -1}, 3, false, 0},
		{"facing away", eye, r3.Vec{Z: 1}, 10, false, 0},
		{"parallel", eye, r3.Vec{X: 1}, 10, false, 0},
		{"zero direction", eye, r3.Vec{}, 10, false, 0},
		{"misses rectangle", r3.Vec{X: 5, Y: 1, Z: 5}, r3.Vec{Z: -1}, 10, false, 0},
		{"from behind", r3.Vec{X: 0, Y: 1, Z: -5}, r3.Vec{Z: 1}, 10, true, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := IntersectsFace(v, tt.origin, tt.dir, tt.maxRange)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantDist, d, 1e-9)
		})
	}
}

func TestIntersectsFace_Rotated(t *testing.T) {
	t.Parallel()
	v := unitBox(90)

	n := v.FaceNormal()
	assert.InDelta(t, 1, n.X, 1e-9)
	assert.InDelta(t, 0, n.Z, 1e-9)

	d, ok := IntersectsFace(v, r3.Vec{X: 5, Y: 1, Z: 0}, r3.Vec{X: -1}, 10)
	require.True(t, ok)
	assert.InDelta(t, 4, d, 1e-9)
}

func TestFaceDefaults(t *testing.T) {
	t.Parallel()
	box := unitBox(0)
	assert.Equal(t, 2.0, box.FaceWidth())
	assert.Equal(t, 2.0, box.FaceHeight())

	cyl := Volume{ID: "c", Kind: KindCylinder, Radius: 1.5, Height: 3, Face: Face{Height: 1}}
	assert.Equal(t, 3.0, cyl.FaceWidth())
	assert.Equal(t, 1.0, cyl.FaceHeight())
}

func TestAngleToFaceDeg(t *testing.T) {
	t.Parallel()
	v := unitBox(0)

	deg, ok := AngleToFaceDeg(v, r3.Vec{X: 0, Y: 1, Z: 5}, r3.Vec{Z: -1})
	require.True(t, ok)
	assert.InDelta(t, 0, deg, 1e-9)

	deg, ok = AngleToFaceDeg(v, r3.Vec{X: 0, Y: 1, Z: 5}, r3.Vec{X: 1})
	require.True(t, ok)
	assert.InDelta(t, 90, deg, 1e-9)

	_, ok = AngleToFaceDeg(v, r3.Vec{X: 0, Y: 1, Z: 5}, r3.Vec{})
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		v       Volume
		wantErr bool
	}{
		{"valid box", unitBox(0), false},
		{"valid cylinder", Volume{ID: "c", Kind: KindCylinder, Radius: 1, Height: 1}, false},
		{"missing id", Volume{Kind: KindCylinder, Radius: 1, Height: 1}, true},
		{"zero height", Volume{ID: "c", Kind: KindCylinder, Radius: 1}, true},
		{"flat box", Volume{ID: "b", Kind: KindBox, Width: 1, Height: 1}, true},
		{"unknown kind", Volume{ID: "x", Kind: "sphere", Height: 1}, true},
		{"negative face", Volume{ID: "c", Kind: KindCylinder, Radius: 1, Height: 1, Face: Face{Width: -1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.v.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidVolume))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFootprint(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 4.0, unitBox(30).Footprint())
	assert.InDelta(t, 3.14159, Volume{Kind: KindCylinder, Radius: 1}.Footprint(), 1e-4)
}
