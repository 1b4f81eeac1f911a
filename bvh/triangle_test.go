package bvh

import (
	"math"
	"testing"

	"github.com/achilleasa/accel/types"
)

func unitTriangle() Triangle {
	return Triangle{
		Positions: [3]types.Vec3{types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)},
		Indices:   [3]uint32{0, 1, 2},
	}
}

func TestIntersectTriangle(t *testing.T) {
	tri := unitTriangle()
	inf := float32(math.Inf(1))

	type spec struct {
		origin, dir types.Vec3
		tMax        float32
		hit         bool
		t, u, v     float32
	}
	specs := []spec{
		{types.XYZ(0.25, 0.25, 5), types.XYZ(0, 0, -1), inf, true, 5, 0.25, 0.25},
		{types.XYZ(0.25, 0.25, 5), types.XYZ(0, 0, -2), inf, true, 2.5, 0.25, 0.25},
		{types.XYZ(0.25, 0.25, 5), types.XYZ(0, 0, 1), inf, false, 0, 0, 0},
		{types.XYZ(0.25, 0.25, 5), types.XYZ(0, 0, -1), 4, false, 0, 0, 0},
		{types.XYZ(0.75, 0.75, 5), types.XYZ(0, 0, -1), inf, false, 0, 0, 0},
		// Parallel to the triangle plane
		{types.XYZ(-1, 0.25, 0), types.XYZ(1, 0, 0), inf, false, 0, 0, 0},
	}

	for index, s := range specs {
		r := NewRay(s.origin, s.dir)
		tHit, u, v, hit := IntersectTriangle(&r, &tri, s.tMax)
		if hit != s.hit {
			t.Errorf("[spec %d] expected hit to be %t; got %t", index, s.hit, hit)
			continue
		}
		if !hit {
			continue
		}
		if math.Abs(float64(tHit-s.t)) > 1e-5 || math.Abs(float64(u-s.u)) > 1e-5 || math.Abs(float64(v-s.v)) > 1e-5 {
			t.Errorf("[spec %d] expected (t, u, v) = (%f, %f, %f); got (%f, %f, %f)", index, s.t, s.u, s.v, tHit, u, v)
		}
	}
}

func TestClosestPointOnTriangle(t *testing.T) {
	a, b, c := types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)

	type spec struct {
		p, exp types.Vec3
	}
	specs := []spec{
		{types.XYZ(0.25, 0.25, 1), types.XYZ(0.25, 0.25, 0)},
		{types.XYZ(-1, -1, 0), a},
		{types.XYZ(2, -0.5, 0), b},
		{types.XYZ(-0.5, 2, 3), c},
		{types.XYZ(0.5, -1, 0), types.XYZ(0.5, 0, 0)},
		{types.XYZ(1, 1, 0), types.XYZ(0.5, 0.5, 0)},
	}

	for index, s := range specs {
		got := ClosestPointOnTriangle(s.p, a, b, c)
		if !got.ApproxEqual(s.exp, 1e-5) {
			t.Errorf("[spec %d] expected closest point to %v to be %v; got %v", index, s.p, s.exp, got)
		}
	}
}

func TestTriangleOverlapsBox(t *testing.T) {
	a, b, c := types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), types.XYZ(0, 1, 0)

	type spec struct {
		box Box
		exp bool
	}
	specs := []spec{
		{NewBox(types.XYZ(0.1, 0.1, -0.1), types.XYZ(0.2, 0.2, 0.1)), true},
		// Inside the triangle AABB but past the hypotenuse
		{NewBox(types.XYZ(0.8, 0.8, -0.1), types.XYZ(0.9, 0.9, 0.1)), false},
		// Above the triangle plane
		{NewBox(types.XYZ(0.1, 0.1, 0.5), types.XYZ(0.2, 0.2, 0.6)), false},
		// Box enclosing the whole triangle
		{NewBox(types.XYZ(-1, -1, -1), types.XYZ(2, 2, 1)), true},
		{EmptyBox(), false},
	}

	for index, s := range specs {
		if got := TriangleOverlapsBox(a, b, c, s.box); got != s.exp {
			t.Errorf("[spec %d] expected overlap test to return %t; got %t", index, s.exp, got)
		}
	}
}
