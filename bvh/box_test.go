package bvh

import (
	"math"
	"testing"

	"github.com/achilleasa/accel/types"
)

func TestEmptyBoxGrow(t *testing.T) {
	empty := EmptyBox()
	if !empty.IsEmpty() {
		t.Fatal("expected empty box to report IsEmpty")
	}
	if empty.Volume() > 0 {
		t.Fatalf("expected empty box volume to be <= 0; got %f", empty.Volume())
	}
	if empty.HalfArea() != 0 {
		t.Fatalf("expected empty box half area to be 0; got %f", empty.HalfArea())
	}

	p := types.XYZ(1, -2, 3)
	b := EmptyBox()
	b.GrowPoint(p)
	if b.Min != p || b.Max != p {
		t.Fatalf("expected box grown by a point to equal the point %v; got %v", p, b)
	}

	other := NewBox(types.XYZ(-1, -1, -1), types.XYZ(2, 3, 4))
	b = EmptyBox()
	b.GrowBox(other)
	if b != other {
		t.Fatalf("expected box grown by %v to equal it; got %v", other, b)
	}
}

func TestBoxMetrics(t *testing.T) {
	b := NewBox(types.XYZ(0, 0, 0), types.XYZ(1, 2, 3))

	if exp := float32((1+2)*3 + 1*2); b.HalfArea() != exp {
		t.Fatalf("expected half area %f; got %f", exp, b.HalfArea())
	}
	if exp := float32(6); b.Volume() != exp {
		t.Fatalf("expected volume %f; got %f", exp, b.Volume())
	}
	if exp := types.XYZ(0.5, 1, 1.5); b.Center() != exp {
		t.Fatalf("expected center %v; got %v", exp, b.Center())
	}
	if axis := b.LongestAxis(); axis != 2 {
		t.Fatalf("expected longest axis 2; got %d", axis)
	}
	if c := b.Corner(5); c != types.XYZ(1, 0, 3) {
		t.Fatalf("expected corner 5 to be (1, 0, 3); got %v", c)
	}
}

func TestBoxOverlapAndContainment(t *testing.T) {
	a := NewBox(types.XYZ(0, 0, 0), types.XYZ(2, 2, 2))

	type spec struct {
		other    Box
		overlaps bool
		contains bool
	}
	specs := []spec{
		{NewBox(types.XYZ(0.5, 0.5, 0.5), types.XYZ(1, 1, 1)), true, true},
		{NewBox(types.XYZ(1, 1, 1), types.XYZ(3, 3, 3)), true, false},
		{NewBox(types.XYZ(2, 0, 0), types.XYZ(3, 1, 1)), true, false},
		{NewBox(types.XYZ(2.1, 0, 0), types.XYZ(3, 1, 1)), false, false},
		{EmptyBox(), false, false},
	}

	for index, s := range specs {
		if got := a.Overlaps(s.other); got != s.overlaps {
			t.Errorf("[spec %d] expected Overlaps to return %t; got %t", index, s.overlaps, got)
		}
		if s.other.IsEmpty() {
			continue
		}
		if got := a.Contains(s.other); got != s.contains {
			t.Errorf("[spec %d] expected Contains to return %t; got %t", index, s.contains, got)
		}
	}

	ext := OverlappingExtents(a, NewBox(types.XYZ(1, 1, 3), types.XYZ(3, 3, 4)))
	if ext != types.XYZ(1, 1, -1) {
		t.Fatalf("expected overlapping extents (1, 1, -1); got %v", ext)
	}
}

func TestBoxTransform(t *testing.T) {
	b := NewBox(types.XYZ(-1, -1, -1), types.XYZ(1, 1, 1))

	moved := b.Transform(types.Translate4(types.XYZ(5, 0, 0)))
	if !moved.Min.ApproxEqual(types.XYZ(4, -1, -1), 1e-5) || !moved.Max.ApproxEqual(types.XYZ(6, 1, 1), 1e-5) {
		t.Fatalf("expected translated box (4,-1,-1)-(6,1,1); got %v", moved)
	}

	// A 45 degree rotation around Y must still contain every transformed corner
	m := types.Rotate4(types.XYZ(0, math.Pi/4, 0))
	rotated := b.Transform(m)
	for i := 0; i < 8; i++ {
		p := m.TransformPoint(b.Corner(i))
		if !rotated.Expand(1e-5).ContainsPoint(p) {
			t.Fatalf("expected rotated box %v to contain transformed corner %v", rotated, p)
		}
	}

	if !EmptyBox().Transform(m).IsEmpty() {
		t.Fatal("expected transformed empty box to remain empty")
	}
}

func TestBoxIntersectRay(t *testing.T) {
	b := NewBox(types.XYZ(-1, -1, -1), types.XYZ(1, 1, 1))

	type spec struct {
		origin, dir types.Vec3
		tMax        float32
		hit         bool
		tNear       float32
	}
	inf := float32(math.Inf(1))
	specs := []spec{
		{types.XYZ(0, 0, 5), types.XYZ(0, 0, -1), inf, true, 4},
		{types.XYZ(0, 0, 5), types.XYZ(0, 0, 1), inf, false, 0},
		{types.XYZ(0, 0, 5), types.XYZ(0, 0, -1), 3, false, 0},
		{types.XYZ(0, 0, 0), types.XYZ(1, 0, 0), inf, true, 0},
		{types.XYZ(2, 0, 5), types.XYZ(0, 0, -1), inf, false, 0},
		{types.XYZ(-5, 0.5, 0.5), types.XYZ(1, 0, 0), inf, true, 4},
	}

	for index, s := range specs {
		r := NewRay(s.origin, s.dir)
		tNear, hit := b.IntersectRay(&r, s.tMax)
		if hit != s.hit {
			t.Errorf("[spec %d] expected hit to be %t; got %t", index, s.hit, hit)
			continue
		}
		if hit && tNear != s.tNear {
			t.Errorf("[spec %d] expected tNear %f; got %f", index, s.tNear, tNear)
		}
	}

	r := NewRay(types.XYZ(0, 0, 0), types.XYZ(0, 0, 1))
	empty := EmptyBox()
	if _, hit := empty.IntersectRay(&r, inf); hit {
		t.Fatal("expected ray to miss the empty box")
	}
}
