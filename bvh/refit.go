package bvh

import (
	"fmt"

	"github.com/achilleasa/accel/types"
)

// Refit rewrites the triangle positions from an updated vertex list and then
// recomputes all node bounds. The vertex list must describe the same
// topology the hierarchy was built from; if a triangle references a vertex
// outside the list, ErrTopologyChanged is returned and the hierarchy is left
// untouched.
func (b *Blas) Refit(vertices []types.Vec3) error {
	vertCount := uint32(len(vertices))
	for i := range b.Triangles {
		idx := b.Triangles[i].Indices
		if idx[0] >= vertCount || idx[1] >= vertCount || idx[2] >= vertCount {
			assertf(false, "refit of mesh %q with %d vertices; triangle %d references vertex %v", b.Name, vertCount, i, idx)
			return fmt.Errorf("mesh %q: triangle %d references vertex beyond %d: %w", b.Name, i, vertCount, ErrTopologyChanged)
		}
	}

	for i := range b.Triangles {
		tri := &b.Triangles[i]
		for j := 0; j < 3; j++ {
			tri.Positions[j] = vertices[tri.Indices[j]]
		}
	}

	b.RefitBounds()
	return nil
}

// RefitBounds recomputes node bounds from the current triangle positions
// without changing the partition. Nodes are visited in reverse index order
// so both children of an internal node are updated before their parent.
func (b *Blas) RefitBounds() {
	refitNodes(b.Nodes, func(leaf *Node) Box {
		first, count := leaf.Primitives()
		box := EmptyBox()
		for i := first; i < first+count; i++ {
			box.GrowTriangle(&b.Triangles[i])
		}
		return box
	})

	if b.state == Stale {
		b.state = Built
	}
}

func refitNodes(nodes []Node, leafBox func(leaf *Node) Box) {
	for i := len(nodes) - 1; i >= 0; i-- {
		node := &nodes[i]
		if node.IsLeaf() {
			node.SetBBox(leafBox(node))
			continue
		}

		left, right := node.ChildNodes()
		node.SetBBox(nodes[left].BBox().Union(nodes[right].BBox()))
	}
}
