package bvh

import "github.com/achilleasa/accel/types"

// Ray is a half-line starting at Origin. Direction does not need to be
// normalized; hit distances are expressed in units of Direction.
type Ray struct {
	Origin    types.Vec3
	Direction types.Vec3

	invDir types.Vec3
}

// Create a ray and precompute its inverse direction.
func NewRay(origin, direction types.Vec3) Ray {
	r := Ray{Origin: origin, Direction: direction}
	for axis := 0; axis < 3; axis++ {
		if direction[axis] != 0 {
			r.invDir[axis] = 1.0 / direction[axis]
		}
	}
	return r
}

// At returns the point at distance t along the ray.
func (r *Ray) At(t float32) types.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Transform maps the ray through m. The direction is not renormalized so
// distances along the transformed ray match distances along the original.
func (r *Ray) Transform(m types.Mat4) Ray {
	return NewRay(m.TransformPoint(r.Origin), m.TransformDir(r.Direction))
}
