package bvh

import (
	"github.com/achilleasa/accel/types"
	"github.com/chewxy/math32"
)

// Determinants below this threshold are treated as rays parallel to the
// triangle plane.
const rayTriEpsilon float32 = 1e-9

// Triangle stores the vertex positions of a mesh triangle together with the
// original vertex indices so interpolated attributes can be recovered after
// a hit.
type Triangle struct {
	Positions [3]types.Vec3
	Indices   [3]uint32
}

func (tri *Triangle) Centroid() types.Vec3 {
	return tri.Positions[0].Add(tri.Positions[1]).Add(tri.Positions[2]).Mul(1.0 / 3.0)
}

// Get the triangle AABB.
func (tri *Triangle) Box() Box {
	b := EmptyBox()
	b.GrowTriangle(tri)
	return b
}

// Get the (unnormalized) face normal; its length is twice the triangle area.
func (tri *Triangle) Normal() types.Vec3 {
	return tri.Positions[1].Sub(tri.Positions[0]).Cross(tri.Positions[2].Sub(tri.Positions[0]))
}

func (tri *Triangle) Area() float32 {
	return 0.5 * tri.Normal().Len()
}

// Interpolate a point from barycentric coordinates (u, v) of vertices 1 and 2.
func (tri *Triangle) PointAt(u, v float32) types.Vec3 {
	w := 1 - u - v
	return tri.Positions[0].Mul(w).Add(tri.Positions[1].Mul(u)).Add(tri.Positions[2].Mul(v))
}

// Return a copy of the triangle with all positions transformed by m.
func (tri *Triangle) Transform(m types.Mat4) Triangle {
	return Triangle{
		Positions: [3]types.Vec3{
			m.TransformPoint(tri.Positions[0]),
			m.TransformPoint(tri.Positions[1]),
			m.TransformPoint(tri.Positions[2]),
		},
		Indices: tri.Indices,
	}
}

// IntersectTriangle runs the Möller–Trumbore test and returns the hit
// distance and the barycentric coordinates (u, v) of vertices 1 and 2.
// Only hits with 0 < t < tMax are reported.
func IntersectTriangle(r *Ray, tri *Triangle, tMax float32) (t, u, v float32, hit bool) {
	e1 := tri.Positions[1].Sub(tri.Positions[0])
	e2 := tri.Positions[2].Sub(tri.Positions[0])

	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < rayTriEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1.0 / det

	s := r.Origin.Sub(tri.Positions[0])
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = r.Direction.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	t = e2.Dot(q) * invDet
	if t <= 0 || t >= tMax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}

// ClosestPointOnTriangle returns the point of triangle (a, b, c) closest to p.
// See "Real-Time Collision Detection", Christer Ericson, section 5.1.5.
func ClosestPointOnTriangle(p, a, b, c types.Vec3) types.Vec3 {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Mul(v))
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Mul(w))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(w))
	}

	denom := 1.0 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(w))
}

// TriangleOverlapsBox runs a separating axis test between triangle (a, b, c)
// and a box. See "Real-Time Collision Detection", Christer Ericson, page 169.
func TriangleOverlapsBox(a, b, c types.Vec3, box Box) bool {
	if box.IsEmpty() {
		return false
	}

	center := box.Center()
	extents := box.HalfSize()

	v := [3]types.Vec3{a.Sub(center), b.Sub(center), c.Sub(center)}
	f := [3]types.Vec3{v[1].Sub(v[0]), v[2].Sub(v[1]), v[0].Sub(v[2])}

	// Cross products of the box face normals and the triangle edges (9 axes).
	for i := 0; i < 3; i++ {
		for _, axis := range [3]types.Vec3{
			{0, -f[i][2], f[i][1]},
			{f[i][2], 0, -f[i][0]},
			{-f[i][1], f[i][0], 0},
		} {
			if separatedOnAxis(v, extents, axis) {
				return false
			}
		}
	}

	// Box face normals.
	for axis := 0; axis < 3; axis++ {
		lo := math32.Min(v[0][axis], math32.Min(v[1][axis], v[2][axis]))
		hi := math32.Max(v[0][axis], math32.Max(v[1][axis], v[2][axis]))
		if hi < -extents[axis] || lo > extents[axis] {
			return false
		}
	}

	// Triangle face normal.
	n := f[0].Cross(f[1])
	r := extents.Dot(n.Abs())
	return math32.Abs(n.Dot(v[0])) <= r
}

func separatedOnAxis(v [3]types.Vec3, extents, axis types.Vec3) bool {
	p0 := v[0].Dot(axis)
	p1 := v[1].Dot(axis)
	p2 := v[2].Dot(axis)
	r := extents.Dot(axis.Abs())
	return math32.Max(-math32.Max(p0, math32.Max(p1, p2)), math32.Min(p0, math32.Min(p1, p2))) > r
}
