package bvh

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// State describes whether a hierarchy can be queried.
type State uint8

const (
	// No nodes or a single sentinel leaf without primitives.
	Empty State = iota

	// Bounds match the current primitive positions.
	Built

	// Primitives moved after the last build or refit.
	Stale
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Built:
		return "built"
	case Stale:
		return "stale"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Blas is the bottom level hierarchy over the triangles of a single mesh.
// The node list root is stored at index 0 and leaves reference contiguous
// ranges of the triangle list.
type Blas struct {
	Name      string
	Nodes     []Node
	Triangles []Triangle

	state State
}

// NewBlas builds a hierarchy over a triangle list. The triangle list is
// reordered into leaf order; the caller's slice is not modified.
func NewBlas(name string, tris []Triangle, opts Options) (*Blas, error) {
	opts = opts.withDefaults()
	strategy, err := opts.Strategy()
	if err != nil {
		return nil, err
	}

	refs := make([]PrimRef, len(tris))
	for i := range tris {
		refs[i] = PrimRef{Box: tris[i].Box(), Centroid: tris[i].Centroid()}
	}

	b := &Blas{
		Name:      name,
		Triangles: make([]Triangle, 0, len(tris)),
	}
	b.Nodes, _ = Build(refs, opts.LeafTriangles, strategy, func(leaf *Node, prims []uint32) {
		leaf.SetPrimitives(uint32(len(b.Triangles)), uint32(len(prims)))
		for _, primIndex := range prims {
			b.Triangles = append(b.Triangles, tris[primIndex])
		}
	})

	b.state = Built
	if len(b.Triangles) == 0 {
		b.state = Empty
	}
	return b, nil
}

// BuildBlas assembles the triangles of a geometry and builds a hierarchy
// over them.
func BuildBlas(geom *Geometry, opts Options) (*Blas, error) {
	return NewBlas(geom.Name, geom.Triangles(), opts)
}

// BuildBlases builds one hierarchy per geometry using a bounded pool of
// opts.Workers goroutines and waits for all of them to complete. The context
// is checked before each build starts; builds that already started always
// run to completion.
func BuildBlases(ctx context.Context, geoms []*Geometry, opts Options) ([]*Blas, error) {
	opts = opts.withDefaults()
	if _, err := opts.Strategy(); err != nil {
		return nil, err
	}

	out := make([]*Blas, len(geoms))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, geom := range geoms {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			blas, err := BuildBlas(geom, opts)
			if err != nil {
				return fmt.Errorf("bvh: building mesh %d (%q): %w", i, geom.Name, err)
			}
			out[i] = blas
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// NewBlasFromNodes wraps a previously built node and triangle list, such as
// one restored from a flattened scene. The node encoding is validated.
func NewBlasFromNodes(name string, nodes []Node, tris []Triangle) (*Blas, error) {
	if err := validateNodes(nodes, uint32(len(tris)), false); err != nil {
		return nil, fmt.Errorf("mesh %q: %w", name, err)
	}

	b := &Blas{Name: name, Nodes: nodes, Triangles: tris, state: Built}
	if len(tris) == 0 {
		b.state = Empty
	}
	return b, nil
}

// State returns the current state of the hierarchy.
func (b *Blas) State() State {
	if b == nil {
		return Empty
	}
	return b.state
}

// MarkStale flags the hierarchy as needing a refit.
func (b *Blas) MarkStale() {
	if b.state == Built {
		b.state = Stale
	}
}

// Bounds returns the root box or the empty box if the hierarchy has no nodes.
func (b *Blas) Bounds() Box {
	if b == nil || len(b.Nodes) == 0 {
		return EmptyBox()
	}
	return b.Nodes[0].BBox()
}

// Check that a node list is well formed: child indices point forward and
// inside the list, and leaf ranges lie inside [0, primCount).
func validateNodes(nodes []Node, primCount uint32, instanceLeaves bool) error {
	if len(nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidNodes)
	}

	for i := range nodes {
		node := &nodes[i]
		if !node.IsLeaf() {
			left, right := node.ChildNodes()
			if left <= uint32(i) || right <= uint32(i) || left >= uint32(len(nodes)) || right >= uint32(len(nodes)) {
				return fmt.Errorf("%w: node %d has invalid children (%d, %d)", ErrInvalidNodes, i, left, right)
			}
			continue
		}

		if instanceLeaves {
			if node.RData > 0 && node.Instance() >= primCount {
				return fmt.Errorf("%w: leaf %d references instance %d; instance count %d", ErrInvalidNodes, i, node.Instance(), primCount)
			}
			continue
		}

		first, count := node.Primitives()
		if node.RData < 0 || uint64(first)+uint64(count) > uint64(primCount) {
			return fmt.Errorf("%w: leaf %d references triangles [%d, %d); triangle count %d", ErrInvalidNodes, i, first, uint64(first)+uint64(count), primCount)
		}
	}
	return nil
}
