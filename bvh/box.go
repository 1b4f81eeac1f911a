package bvh

import (
	"github.com/achilleasa/accel/types"
	"github.com/chewxy/math32"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min types.Vec3
	Max types.Vec3
}

// Create a box from its min and max corners.
func NewBox(min, max types.Vec3) Box {
	return Box{Min: min, Max: max}
}

// EmptyBox returns the sentinel box with Min set to +Inf and Max set to -Inf.
// Growing the sentinel by a point or box yields exactly that point or box.
func EmptyBox() Box {
	inf := math32.Inf(1)
	return Box{
		Min: types.Vec3{inf, inf, inf},
		Max: types.Vec3{-inf, -inf, -inf},
	}
}

// Create the smallest box that contains all points.
func BoxFromPoints(points ...types.Vec3) Box {
	b := EmptyBox()
	for _, p := range points {
		b.GrowPoint(p)
	}
	return b
}

// Grow the box so it contains point p.
func (b *Box) GrowPoint(p types.Vec3) {
	b.Min = types.MinVec3(b.Min, p)
	b.Max = types.MaxVec3(b.Max, p)
}

// Grow the box so it contains box o.
func (b *Box) GrowBox(o Box) {
	b.Min = types.MinVec3(b.Min, o.Min)
	b.Max = types.MaxVec3(b.Max, o.Max)
}

// Grow the box so it contains all vertices of a triangle.
func (b *Box) GrowTriangle(tri *Triangle) {
	b.GrowPoint(tri.Positions[0])
	b.GrowPoint(tri.Positions[1])
	b.GrowPoint(tri.Positions[2])
}

// Union returns a box containing both b and o.
func (b Box) Union(o Box) Box {
	b.GrowBox(o)
	return b
}

// IsEmpty returns true if the box does not contain any point.
func (b Box) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

func (b Box) Center() types.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b Box) Size() types.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b Box) HalfSize() types.Vec3 {
	return b.Size().Mul(0.5)
}

// Volume of the box. The empty sentinel has a non-positive volume.
func (b Box) Volume() float32 {
	size := b.Size()
	return size[0] * size[1] * size[2]
}

// HalfArea returns half of the box surface area; the SAH cost proxy.
// Empty boxes have a zero area.
func (b Box) HalfArea() float32 {
	if b.IsEmpty() {
		return 0
	}
	size := b.Size()
	return (size[0]+size[1])*size[2] + size[0]*size[1]
}

// LongestAxis returns the axis (0=X, 1=Y, 2=Z) with the largest extent.
func (b Box) LongestAxis() int {
	size := b.Size()
	axis := 0
	if size[1] > size[axis] {
		axis = 1
	}
	if size[2] > size[axis] {
		axis = 2
	}
	return axis
}

// Corner returns one of the 8 box corners. Bits 0, 1 and 2 of index select
// the max coordinate for the X, Y and Z axis respectively.
func (b Box) Corner(index int) types.Vec3 {
	var c types.Vec3
	for axis := 0; axis < 3; axis++ {
		if index&(1<<uint(axis)) != 0 {
			c[axis] = b.Max[axis]
		} else {
			c[axis] = b.Min[axis]
		}
	}
	return c
}

// Transform maps all 8 corners through m and returns their bounding box.
// The result always contains the exact transformed box.
func (b Box) Transform(m types.Mat4) Box {
	if b.IsEmpty() {
		return b
	}

	out := EmptyBox()
	for i := 0; i < 8; i++ {
		out.GrowPoint(m.TransformPoint(b.Corner(i)))
	}
	return out
}

// Expand returns a box grown by amount along every direction.
func (b Box) Expand(amount float32) Box {
	e := types.Splat3(amount)
	return Box{Min: b.Min.Sub(e), Max: b.Max.Add(e)}
}

// Overlaps returns true if the two boxes share at least one point.
func (b Box) Overlaps(o Box) bool {
	return b.Min[0] <= o.Max[0] && b.Max[0] >= o.Min[0] &&
		b.Min[1] <= o.Max[1] && b.Max[1] >= o.Min[1] &&
		b.Min[2] <= o.Max[2] && b.Max[2] >= o.Min[2]
}

// Contains returns true if o lies entirely inside b.
func (b Box) Contains(o Box) bool {
	return b.Min[0] <= o.Min[0] && b.Max[0] >= o.Max[0] &&
		b.Min[1] <= o.Min[1] && b.Max[1] >= o.Max[1] &&
		b.Min[2] <= o.Min[2] && b.Max[2] >= o.Max[2]
}

func (b Box) ContainsPoint(p types.Vec3) bool {
	return b.Min[0] <= p[0] && b.Max[0] >= p[0] &&
		b.Min[1] <= p[1] && b.Max[1] >= p[1] &&
		b.Min[2] <= p[2] && b.Max[2] >= p[2]
}

// OverlappingExtents returns the per-axis overlap of two boxes. Negative
// components indicate a gap along that axis.
func OverlappingExtents(a, b Box) types.Vec3 {
	bounds := a.Union(b)
	return a.Size().Add(b.Size()).Sub(bounds.Size())
}

// IntersectRay runs a slab test and returns the distance at which the ray
// enters the box (clamped to 0 when the origin is inside).
func (b Box) IntersectRay(r *Ray, tMax float32) (float32, bool) {
	if b.IsEmpty() {
		return 0, false
	}

	tNear := float32(0)
	tFar := tMax

	for axis := 0; axis < 3; axis++ {
		if r.Direction[axis] == 0 {
			if r.Origin[axis] < b.Min[axis] || r.Origin[axis] > b.Max[axis] {
				return 0, false
			}
			continue
		}

		t1 := (b.Min[axis] - r.Origin[axis]) * r.invDir[axis]
		t2 := (b.Max[axis] - r.Origin[axis]) * r.invDir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		if t1 > tNear {
			tNear = t1
		}
		if t2 < tFar {
			tFar = t2
		}
		if tNear > tFar {
			return 0, false
		}
	}

	return tNear, true
}
