package bvh

import (
	"iter"

	"github.com/achilleasa/accel/types"
)

// Hit describes the closest intersection between a ray and the scene.
type Hit struct {
	// Distance along the world space ray.
	T float32

	// Barycentric coordinates of the hit point relative to vertices 1 and 2.
	U, V float32

	// The hit triangle in mesh local space.
	Triangle Triangle

	TriangleIndex uint32
	MeshIndex     uint32
	InstanceIndex uint32
}

// Barycentric returns the weights of the three triangle vertices.
func (h *Hit) Barycentric() types.Vec3 {
	return types.Vec3{1 - h.U - h.V, h.U, h.V}
}

// BoxHit describes a triangle reported by a box query.
type BoxHit struct {
	// The triangle in mesh local space.
	Triangle Triangle

	// Triangle vertex positions in world space.
	Positions [3]types.Vec3

	TriangleIndex uint32
	MeshIndex     uint32
	InstanceIndex uint32
}

// Intersect returns the closest hit with 0 < t < tMax. The ray is mapped into
// the local space of each candidate instance without renormalizing its
// direction so hit distances remain comparable across instances.
func (t *Tlas) Intersect(r Ray, tMax float32) (Hit, bool) {
	var best Hit
	best.T = tMax
	if !t.queryable() {
		return best, false
	}

	tRoot, ok := t.Nodes[0].BBox().IntersectRay(&r, best.T)
	if !ok {
		return best, false
	}

	found := false
	var buf [traversalStackSize]stackEntry
	stack := append(buf[:0], stackEntry{node: 0, tNear: tRoot})
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if entry.tNear >= best.T {
			continue
		}

		node := &t.Nodes[entry.node]
		if !node.IsLeaf() {
			stack = pushNearFirst(t.Nodes, node, &r, best.T, stack)
			continue
		}
		if node.RData == 0 {
			continue
		}

		instIndex := node.Instance()
		inst := &t.Instances[instIndex]
		blas := t.Blases[inst.MeshIndex]
		if blas.State() == Empty {
			continue
		}

		localRay := r.Transform(inst.InvTransform)
		if hit, ok := blas.Intersect(&localRay, best.T); ok {
			best = Hit{
				T:             hit.T,
				U:             hit.U,
				V:             hit.V,
				Triangle:      blas.Triangles[hit.TriangleIndex],
				TriangleIndex: hit.TriangleIndex,
				MeshIndex:     inst.MeshIndex,
				InstanceIndex: instIndex,
			}
			found = true
		}
	}

	return best, found
}

// Occluded returns true if the ray hits any triangle with 0 < t < tMax.
func (t *Tlas) Occluded(r Ray, tMax float32) bool {
	if !t.queryable() {
		return false
	}

	var buf [traversalStackSize]uint32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		node := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if _, ok := node.BBox().IntersectRay(&r, tMax); !ok {
			continue
		}

		if !node.IsLeaf() {
			left, right := node.ChildNodes()
			stack = append(stack, right, left)
			continue
		}
		if node.RData == 0 {
			continue
		}

		inst := &t.Instances[node.Instance()]
		blas := t.Blases[inst.MeshIndex]
		if blas.State() == Empty {
			continue
		}
		localRay := r.Transform(inst.InvTransform)
		if blas.Occluded(&localRay, tMax) {
			return true
		}
	}
	return false
}

// QueryBox lazily yields every triangle whose box overlaps the query box.
// The test runs in the local space of each instance against the bounding box
// of the transformed query box, so the results are a conservative superset
// of the triangles that intersect the query box. Results are not ordered.
// Breaking out of the range loop stops the traversal.
func (t *Tlas) QueryBox(box Box) iter.Seq[BoxHit] {
	return func(yield func(BoxHit) bool) {
		t.visitBox(box, false, yield)
	}
}

// IntersectBox invokes visitor for every triangle reported by QueryBox. The
// visitor is never invoked if nothing overlaps.
func (t *Tlas) IntersectBox(box Box, visitor func(hit BoxHit)) {
	t.visitBox(box, false, func(hit BoxHit) bool {
		visitor(hit)
		return true
	})
}

// IntersectBoxExact is like IntersectBox but only reports triangles that
// intersect the query box itself.
func (t *Tlas) IntersectBoxExact(box Box, visitor func(hit BoxHit)) {
	t.visitBox(box, true, func(hit BoxHit) bool {
		visitor(hit)
		return true
	})
}

func (t *Tlas) visitBox(box Box, exact bool, yield func(BoxHit) bool) {
	if !t.queryable() || box.IsEmpty() {
		return
	}

	var buf [traversalStackSize]uint32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		node := &t.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if !node.BBox().Overlaps(box) {
			continue
		}

		if !node.IsLeaf() {
			left, right := node.ChildNodes()
			stack = append(stack, right, left)
			continue
		}
		if node.RData == 0 {
			continue
		}

		instIndex := node.Instance()
		inst := &t.Instances[instIndex]
		blas := t.Blases[inst.MeshIndex]
		if blas.State() == Empty {
			continue
		}

		localBox := box.Transform(inst.InvTransform)
		keepGoing := blas.VisitBox(localBox, func(triIndex uint32) bool {
			tri := &blas.Triangles[triIndex]
			hit := BoxHit{
				Triangle:      *tri,
				TriangleIndex: triIndex,
				MeshIndex:     inst.MeshIndex,
				InstanceIndex: instIndex,
			}
			for i := 0; i < 3; i++ {
				hit.Positions[i] = inst.Transform.TransformPoint(tri.Positions[i])
			}

			if exact && !TriangleOverlapsBox(hit.Positions[0], hit.Positions[1], hit.Positions[2], box) {
				return true
			}
			return yield(hit)
		})
		if !keepGoing {
			return
		}
	}
}

func (t *Tlas) queryable() bool {
	if len(t.Nodes) == 0 {
		assertf(false, "query on a TLAS that was never built")
		return false
	}
	return len(t.Instances) != 0
}
