package l2volumes

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// parallelEpsilon is the smallest |dir·normal| treated as a real crossing.
const parallelEpsilon = 1e-9

// Contains reports whether point lies inside the volume (boundaries count as
// inside).
func Contains(v Volume, point r3.Vec) bool {
	local := v.toLocal(point)
	if local.Y < 0 || local.Y > v.Height {
		return false
	}
	switch v.Kind {
	case KindBox:
		return math.Abs(local.X) <= v.Width/2 && math.Abs(local.Z) <= v.Depth/2
	case KindCylinder:
		return local.X*local.X+local.Z*local.Z <= v.Radius*v.Radius
	}
	return false
}

// IntersectsFace casts a ray from origin along direction and returns the
// distance to the face rectangle. ok is false if the direction is degenerate,
// the ray is parallel to the face, points away from it, misses the finite
// rectangle, or the hit lies beyond maxRange. The face is two-sided.
func IntersectsFace(v Volume, origin, direction r3.Vec, maxRange float64) (distance float64, ok bool) {
	n := r3.Norm(direction)
	if n == 0 || math.IsNaN(n) {
		return 0, false
	}
	dir := r3.Scale(1/n, direction)

	normal := v.FaceNormal()
	denom := r3.Dot(dir, normal)
	if math.Abs(denom) < parallelEpsilon {
		return 0, false
	}

	center := v.FaceCenter()
	t := r3.Dot(r3.Sub(center, origin), normal) / denom
	if t < 0 || t > maxRange {
		return 0, false
	}

	hit := r3.Add(origin, r3.Scale(t, dir))
	local := rotateY(r3.Sub(hit, center), -v.YawDeg)
	if math.Abs(local.X) > v.FaceWidth()/2 || math.Abs(local.Y) > v.FaceHeight()/2 {
		return 0, false
	}
	return t, true
}

// AngleToFaceDeg returns the angle in degrees between direction and the line
// from origin to the face centre. ok is false for degenerate vectors.
func AngleToFaceDeg(v Volume, origin, direction r3.Vec) (deg float64, ok bool) {
	toFace := r3.Sub(v.FaceCenter(), origin)
	na, nb := r3.Norm(direction), r3.Norm(toFace)
	if na == 0 || nb == 0 {
		return 0, false
	}
	c := r3.Dot(direction, toFace) / (na * nb)
	c = math.Max(-1, math.Min(1, c))
	return math.Acos(c) * 180 / math.Pi, true
}
