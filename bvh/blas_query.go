package bvh

// Initial capacity of the traversal stacks; they grow if a tree is deeper.
const traversalStackSize = 64

// BlasHit describes the closest triangle hit inside a single hierarchy.
type BlasHit struct {
	T, U, V       float32
	TriangleIndex uint32
}

// Intersect returns the closest triangle hit with 0 < t < tMax. Children are
// visited nearest first and subtrees whose entry distance is not closer than
// the current best hit are pruned.
func (b *Blas) Intersect(r *Ray, tMax float32) (BlasHit, bool) {
	var best BlasHit
	if !b.queryable() {
		return best, false
	}

	found := false
	best.T = tMax

	tRoot, ok := b.Nodes[0].BBox().IntersectRay(r, best.T)
	if !ok {
		return best, false
	}

	var buf [traversalStackSize]stackEntry
	stack := append(buf[:0], stackEntry{node: 0, tNear: tRoot})
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// The best hit may have improved since this entry was pushed
		if entry.tNear >= best.T {
			continue
		}

		node := &b.Nodes[entry.node]
		if node.IsLeaf() {
			first, count := node.Primitives()
			for i := first; i < first+count; i++ {
				if t, u, v, hit := IntersectTriangle(r, &b.Triangles[i], best.T); hit {
					best = BlasHit{T: t, U: u, V: v, TriangleIndex: i}
					found = true
				}
			}
			continue
		}

		stack = pushNearFirst(b.Nodes, node, r, best.T, stack)
	}

	return best, found
}

// Occluded returns true as soon as any triangle is hit with 0 < t < tMax.
func (b *Blas) Occluded(r *Ray, tMax float32) bool {
	if !b.queryable() {
		return false
	}

	var buf [traversalStackSize]uint32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		node := &b.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if _, ok := node.BBox().IntersectRay(r, tMax); !ok {
			continue
		}

		if node.IsLeaf() {
			first, count := node.Primitives()
			for i := first; i < first+count; i++ {
				if _, _, _, hit := IntersectTriangle(r, &b.Triangles[i], tMax); hit {
					return true
				}
			}
			continue
		}

		left, right := node.ChildNodes()
		stack = append(stack, right, left)
	}
	return false
}

// VisitBox invokes visit with the index of every triangle whose box overlaps
// the query box. Traversal stops early if visit returns false, in which case
// VisitBox also returns false.
func (b *Blas) VisitBox(box Box, visit func(triIndex uint32) bool) bool {
	if !b.queryable() || box.IsEmpty() {
		return true
	}

	var buf [traversalStackSize]uint32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		node := &b.Nodes[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if !node.BBox().Overlaps(box) {
			continue
		}

		if node.IsLeaf() {
			first, count := node.Primitives()
			for i := first; i < first+count; i++ {
				if b.Triangles[i].Box().Overlaps(box) && !visit(i) {
					return false
				}
			}
			continue
		}

		left, right := node.ChildNodes()
		stack = append(stack, right, left)
	}
	return true
}

func (b *Blas) queryable() bool {
	if b == nil || len(b.Nodes) == 0 {
		assertf(false, "query on a BLAS that was never built")
		return false
	}
	return b.state != Empty
}

type stackEntry struct {
	node  uint32
	tNear float32
}

// Push the children of an internal node that the ray enters before tMax so
// that the nearest one is popped first.
func pushNearFirst(nodes []Node, node *Node, r *Ray, tMax float32, stack []stackEntry) []stackEntry {
	left, right := node.ChildNodes()
	tLeft, hitLeft := nodes[left].BBox().IntersectRay(r, tMax)
	tRight, hitRight := nodes[right].BBox().IntersectRay(r, tMax)

	switch {
	case hitLeft && hitRight:
		if tRight < tLeft {
			return append(stack, stackEntry{left, tLeft}, stackEntry{right, tRight})
		}
		return append(stack, stackEntry{right, tRight}, stackEntry{left, tLeft})
	case hitLeft:
		return append(stack, stackEntry{left, tLeft})
	case hitRight:
		return append(stack, stackEntry{right, tRight})
	}
	return stack
}
