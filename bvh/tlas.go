package bvh

import (
	"fmt"
	"time"

	"github.com/achilleasa/accel/log"
	"github.com/achilleasa/accel/types"
)

// Tlas is the top level hierarchy over mesh instances. Each leaf references
// exactly one instance. The Tlas owns its node and instance lists; the mesh
// hierarchies are referenced but owned by the caller.
type Tlas struct {
	logger log.Logger

	Nodes     []Node
	Blases    []*Blas
	Instances []Instance

	// Per mesh node and triangle ranges inside the flattened scene layout.
	Ranges []GeometryRange

	opts     Options
	strategy SplitStrategy

	// World space box of every instance as of the last build or refit.
	worldBoxes []Box

	// Parent of each node (-1 for the root) and leaf node of each instance.
	parents []int32
	leafOf  []uint32

	needsRebuild bool
	moved        bool
}

// Create an empty Tlas that builds its hierarchy with the supplied options.
func NewTlas(opts Options) (*Tlas, error) {
	opts = opts.withDefaults()
	strategy, err := opts.Strategy()
	if err != nil {
		return nil, err
	}

	return &Tlas{
		logger:   log.New("tlas"),
		opts:     opts,
		strategy: strategy,
	}, nil
}

// NewTlasFromNodes wraps a previously built instance hierarchy, such as one
// restored from a flattened scene.
func NewTlasFromNodes(nodes []Node, blases []*Blas, instances []Instance, opts Options) (*Tlas, error) {
	t, err := NewTlas(opts)
	if err != nil {
		return nil, err
	}
	if err = validateNodes(nodes, uint32(len(instances)), true); err != nil {
		return nil, fmt.Errorf("tlas: %w", err)
	}
	for index, inst := range instances {
		if err = t.checkMeshIndex(inst.MeshIndex, blases); err != nil {
			return nil, fmt.Errorf("instance %d: %w", index, err)
		}
	}

	t.Nodes = nodes
	t.Blases = blases
	t.Instances = instances
	t.updateWorldBoxes()
	t.indexNodes()
	t.updateRanges()
	return t, nil
}

// SetBlases replaces the list of mesh hierarchies and schedules a rebuild.
func (t *Tlas) SetBlases(blases []*Blas) {
	t.Blases = blases
	t.needsRebuild = true
}

// AddBlas appends a mesh hierarchy, schedules a rebuild and returns the
// mesh index that instances should use to reference it.
func (t *Tlas) AddBlas(b *Blas) uint32 {
	t.Blases = append(t.Blases, b)
	t.needsRebuild = true
	return uint32(len(t.Blases) - 1)
}

// ReplaceBlas swaps the hierarchy of a mesh whose topology changed and
// schedules a rebuild.
func (t *Tlas) ReplaceBlas(meshIndex uint32, b *Blas) error {
	if int(meshIndex) >= len(t.Blases) {
		return fmt.Errorf("%w: %d", ErrInvalidMeshIndex, meshIndex)
	}
	t.Blases[meshIndex] = b
	t.needsRebuild = true
	return nil
}

// AddInstances appends instances, schedules a rebuild and returns the index
// of the first added instance.
func (t *Tlas) AddInstances(instances ...Instance) (uint32, error) {
	for index, inst := range instances {
		if err := t.checkMeshIndex(inst.MeshIndex, t.Blases); err != nil {
			return 0, fmt.Errorf("instance %d: %w", len(t.Instances)+index, err)
		}
	}

	first := uint32(len(t.Instances))
	t.Instances = append(t.Instances, instances...)
	t.needsRebuild = true
	return first, nil
}

// SetTransform moves an instance. The change becomes visible to queries
// after the next call to Refit, Update or Build.
func (t *Tlas) SetTransform(index uint32, transform types.Mat4) error {
	if int(index) >= len(t.Instances) {
		return fmt.Errorf("%w: %d", ErrInvalidInstance, index)
	}
	t.Instances[index].SetTransform(transform)
	t.moved = true
	return nil
}

// MarkMoved flags the Tlas for a refit. It should be called after one of
// the referenced mesh hierarchies was refit.
func (t *Tlas) MarkMoved() {
	t.moved = true
}

// NeedsRebuild returns true if the instance or mesh set changed since the
// last build.
func (t *Tlas) NeedsRebuild() bool {
	return t.needsRebuild || t.Nodes == nil
}

// State returns the current state of the hierarchy.
func (t *Tlas) State() State {
	switch {
	case t.Nodes == nil || (len(t.Instances) == 0 && !t.needsRebuild):
		return Empty
	case t.needsRebuild || t.moved:
		return Stale
	}
	return Built
}

// Bounds returns the world space box of the whole scene.
func (t *Tlas) Bounds() Box {
	if len(t.Nodes) == 0 {
		return EmptyBox()
	}
	return t.Nodes[0].BBox()
}

// InstanceBounds returns the world space box of an instance as of the last
// build or refit.
func (t *Tlas) InstanceBounds(index uint32) Box {
	if int(index) >= len(t.worldBoxes) {
		return EmptyBox()
	}
	return t.worldBoxes[index]
}

// LeafCount returns the number of leaves that reference an instance.
func (t *Tlas) LeafCount() int {
	count := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() && t.Nodes[i].RData > 0 {
			count++
		}
	}
	return count
}

// Update applies pending changes with the cheapest operation that keeps the
// hierarchy valid.
func (t *Tlas) Update() error {
	if t.NeedsRebuild() {
		return t.Build()
	}
	if t.moved {
		return t.Refit()
	}
	return nil
}

// Build rebuilds the instance hierarchy from scratch.
func (t *Tlas) Build() error {
	for index, inst := range t.Instances {
		if err := t.checkMeshIndex(inst.MeshIndex, t.Blases); err != nil {
			return fmt.Errorf("instance %d: %w", index, err)
		}
	}

	start := time.Now()
	t.updateWorldBoxes()

	refs := make([]PrimRef, len(t.Instances))
	for i, box := range t.worldBoxes {
		refs[i] = PrimRef{Box: box}
		if !box.IsEmpty() {
			refs[i].Centroid = box.Center()
		}
	}

	t.Nodes, _ = Build(refs, 1, t.strategy, func(leaf *Node, prims []uint32) {
		leaf.SetInstance(prims[0])
	})
	t.indexNodes()
	t.updateRanges()
	t.needsRebuild = false
	t.moved = false

	t.logger.Debugf("built TLAS over %d instances in %d ms", len(t.Instances), time.Since(start).Milliseconds())
	return nil
}

// Refit recomputes the world box of every instance and updates the bounds
// of the leaves whose box changed and of their ancestors. If the instance or
// mesh set changed since the last build a full rebuild is performed instead.
func (t *Tlas) Refit() error {
	if t.NeedsRebuild() {
		return t.Build()
	}

	prev := t.worldBoxes
	t.worldBoxes = nil
	t.updateWorldBoxes()

	dirty := make([]bool, len(t.Nodes))
	for index, box := range t.worldBoxes {
		if box == prev[index] {
			continue
		}
		for node := int32(t.leafOf[index]); node >= 0 && !dirty[node]; node = t.parents[node] {
			dirty[node] = true
		}
	}

	for i := len(t.Nodes) - 1; i >= 0; i-- {
		if !dirty[i] {
			continue
		}
		node := &t.Nodes[i]
		if node.IsLeaf() {
			node.SetBBox(t.worldBoxes[node.Instance()])
			continue
		}
		left, right := node.ChildNodes()
		node.SetBBox(t.Nodes[left].BBox().Union(t.Nodes[right].BBox()))
	}

	t.moved = false
	return nil
}

func (t *Tlas) checkMeshIndex(meshIndex uint32, blases []*Blas) error {
	if int(meshIndex) >= len(blases) || blases[meshIndex] == nil {
		return fmt.Errorf("%w: %d", ErrInvalidMeshIndex, meshIndex)
	}
	return nil
}

func (t *Tlas) updateWorldBoxes() {
	if cap(t.worldBoxes) < len(t.Instances) {
		t.worldBoxes = make([]Box, len(t.Instances))
	}
	t.worldBoxes = t.worldBoxes[:len(t.Instances)]
	for i := range t.Instances {
		inst := &t.Instances[i]
		t.worldBoxes[i] = t.Blases[inst.MeshIndex].Bounds().Transform(inst.Transform)
	}
}

// Populate the parent list and the instance to leaf mapping.
func (t *Tlas) indexNodes() {
	t.parents = make([]int32, len(t.Nodes))
	t.leafOf = make([]uint32, len(t.Instances))
	t.parents[0] = -1
	for i := range t.Nodes {
		node := &t.Nodes[i]
		if !node.IsLeaf() {
			left, right := node.ChildNodes()
			t.parents[left] = int32(i)
			t.parents[right] = int32(i)
			continue
		}
		if node.RData > 0 {
			t.leafOf[node.Instance()] = uint32(i)
		}
	}
}

func (t *Tlas) updateRanges() {
	t.Ranges = make([]GeometryRange, len(t.Blases))
	nodeOffset := uint32(len(t.Nodes))
	triOffset := uint32(0)
	for i, b := range t.Blases {
		if b == nil {
			continue
		}
		t.Ranges[i] = GeometryRange{
			NodeOffset:     nodeOffset,
			NodeCount:      uint32(len(b.Nodes)),
			TriangleOffset: triOffset,
			TriangleCount:  uint32(len(b.Triangles)),
		}
		nodeOffset += uint32(len(b.Nodes))
		triOffset += uint32(len(b.Triangles))
	}
}
