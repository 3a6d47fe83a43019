package l2volumes

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ObserverID identifies an observer volume.
type ObserverID string

// Kind is the shape of an observer volume.
type Kind string

const (
	KindBox      Kind = "box"
	KindCylinder Kind = "cylinder"
)

// ErrInvalidVolume is returned by Validate for unusable geometry.
var ErrInvalidVolume = errors.New("invalid observer volume")

// Face is the 2D sub-region used for directional tests. It lies in the
// volume's local XY plane at z = Offset, centred horizontally and at half the
// volume height. Zero Width/Height default to the volume's own extents.
type Face struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Offset float64 `json:"offset"`
}

// Volume is a static 3D detection region.
type Volume struct {
	ID       ObserverID `json:"id"`
	Name     string     `json:"name,omitempty"`
	Kind     Kind       `json:"kind"`
	Width    float64    `json:"width,omitempty"`  // box, local X
	Depth    float64    `json:"depth,omitempty"`  // box, local Z
	Radius   float64    `json:"radius,omitempty"` // cylinder
	Height   float64    `json:"height"`
	Position r3.Vec     `json:"position"`
	YawDeg   float64    `json:"yaw_deg"`
	Face     Face       `json:"face"`
}

// Validate checks that the volume has a usable shape.
func (v Volume) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidVolume)
	}
	if v.Height <= 0 {
		return fmt.Errorf("%w: %s height must be positive", ErrInvalidVolume, v.ID)
	}
	switch v.Kind {
	case KindBox:
		if v.Width <= 0 || v.Depth <= 0 {
			return fmt.Errorf("%w: box %s needs positive width and depth", ErrInvalidVolume, v.ID)
		}
	case KindCylinder:
		if v.Radius <= 0 {
			return fmt.Errorf("%w: cylinder %s needs a positive radius", ErrInvalidVolume, v.ID)
		}
	default:
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidVolume, v.ID, v.Kind)
	}
	if v.Face.Width < 0 || v.Face.Height < 0 {
		return fmt.Errorf("%w: %s face extents must be non-negative", ErrInvalidVolume, v.ID)
	}
	return nil
}

// Footprint returns the floor area of the volume in m².
func (v Volume) Footprint() float64 {
	switch v.Kind {
	case KindBox:
		return v.Width * v.Depth
	case KindCylinder:
		return math.Pi * v.Radius * v.Radius
	}
	return 0
}

// FaceWidth returns the effective face width.
func (v Volume) FaceWidth() float64 {
	if v.Face.Width > 0 {
		return v.Face.Width
	}
	if v.Kind == KindCylinder {
		return 2 * v.Radius
	}
	return v.Width
}

// FaceHeight returns the effective face height.
func (v Volume) FaceHeight() float64 {
	if v.Face.Height > 0 {
		return v.Face.Height
	}
	return v.Height
}

// toLocal maps a world point into the volume frame (origin at the base
// centre, axes rotated by -Yaw about +Y).
func (v Volume) toLocal(p r3.Vec) r3.Vec {
	return rotateY(r3.Sub(p, v.Position), -v.YawDeg)
}

// toWorld maps a local-frame point into world space.
func (v Volume) toWorld(p r3.Vec) r3.Vec {
	return r3.Add(rotateY(p, v.YawDeg), v.Position)
}

// rotateY rotates p about +Y by deg degrees (right-handed).
func rotateY(p r3.Vec, deg float64) r3.Vec {
	if deg == 0 {
		return p
	}
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return r3.Vec{
		X: c*p.X + s*p.Z,
		Y: p.Y,
		Z: -s*p.X + c*p.Z,
	}
}

// FaceCenter returns the world-space centre of the face rectangle.
func (v Volume) FaceCenter() r3.Vec {
	return v.toWorld(r3.Vec{Y: v.Height / 2, Z: v.Face.Offset})
}

// FaceNormal returns the world-space unit normal of the face (local +Z).
func (v Volume) FaceNormal() r3.Vec {
	return rotateY(r3.Vec{Z: 1}, v.YawDeg)
}
