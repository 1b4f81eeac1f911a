package bvh

import (
	"cmp"
	"slices"
	"time"

	"github.com/achilleasa/accel/log"
)

// A callback that is called whenever the BVH builder creates a new leaf. The
// prims slice lists the indices of the primitives assigned to the leaf and
// is only valid for the duration of the call.
type LeafCallback func(leaf *Node, prims []uint32)

// BuildStats summarizes the shape of a built hierarchy.
type BuildStats struct {
	Primitives int
	Nodes      int
	Leaves     int
	MaxDepth   int
}

type buildTask struct {
	node       uint32
	start, end int
	depth      int
}

type builder struct {
	logger log.Logger

	refs  []PrimRef
	order []uint32

	// Bvh nodes stored as a contiguous list; children always follow their parent.
	nodes []Node

	// The max number of items that can be stored in a leaf.
	maxLeafItems int

	strategy SplitStrategy
	leafCb   LeafCallback

	stats BuildStats
}

// Build a BVH over a set of primitive references.
//
// The builder processes an explicit work stack instead of recursing. Each
// split allocates both children as a contiguous pair at the end of the node
// list so a child index is always greater than its parent index. Work items
// with at most maxLeafItems primitives become leaves; leaves are emitted in
// depth-first, left-first order and leafCb is invoked for each one.
//
// An empty primitive list yields a single leaf with an empty box that holds
// zero primitives.
func Build(refs []PrimRef, maxLeafItems int, strategy SplitStrategy, leafCb LeafCallback) ([]Node, BuildStats) {
	if maxLeafItems < 1 {
		maxLeafItems = 1
	}

	b := &builder{
		logger:       log.New("bvh builder"),
		refs:         refs,
		order:        make([]uint32, len(refs)),
		nodes:        make([]Node, 1, max(1, 2*len(refs)-1)),
		maxLeafItems: maxLeafItems,
		strategy:     strategy,
		leafCb:       leafCb,
		stats:        BuildStats{Primitives: len(refs)},
	}
	for i := range b.order {
		b.order[i] = uint32(i)
	}

	if len(refs) == 0 {
		b.nodes[0].SetBBox(EmptyBox())
		b.nodes[0].SetPrimitives(0, 0)
		b.stats.Nodes, b.stats.Leaves = 1, 1
		return b.nodes, b.stats
	}

	start := time.Now()
	b.run()
	b.logger.Debugf(
		"BVH tree build time: %d ms, prims: %d, maxDepth: %d, nodes: %d, leafs: %d",
		time.Since(start).Milliseconds(),
		b.stats.Primitives, b.stats.MaxDepth, b.stats.Nodes, b.stats.Leaves,
	)
	return b.nodes, b.stats
}

func (b *builder) run() {
	stack := []buildTask{{node: 0, start: 0, end: len(b.order)}}

	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		b.stats.Nodes++
		if task.depth > b.stats.MaxDepth {
			b.stats.MaxDepth = task.depth
		}

		// Calculate the bounding box of the node and of the item centroids
		bounds := EmptyBox()
		centroidBounds := EmptyBox()
		for _, primIndex := range b.order[task.start:task.end] {
			bounds.GrowBox(b.refs[primIndex].Box)
			centroidBounds.GrowPoint(b.refs[primIndex].Centroid)
		}
		b.nodes[task.node].SetBBox(bounds)

		// Do we have few enough items to create a leaf?
		if task.end-task.start <= b.maxLeafItems {
			b.createLeaf(task)
			continue
		}

		mid := b.partition(task, bounds, centroidBounds)

		// Allocate both children as a contiguous pair
		left := uint32(len(b.nodes))
		b.nodes = append(b.nodes, Node{}, Node{})
		b.nodes[task.node].SetChildNodes(left, left+1)

		// Push the right child first so the left subtree is processed first
		stack = append(stack,
			buildTask{node: left + 1, start: mid, end: task.end, depth: task.depth + 1},
			buildTask{node: left, start: task.start, end: mid, depth: task.depth + 1},
		)
	}
}

// Partition the task range in place and return the index of the first item
// of the right half. Both halves are guaranteed to be non-empty.
func (b *builder) partition(task buildTask, bounds, centroidBounds Box) int {
	order := b.order[task.start:task.end]

	if split, ok := b.strategy.FindSplit(b.refs, order, bounds, centroidBounds); ok {
		i, j := 0, len(order)-1
		for i <= j {
			if split.Left(b.refs[order[i]].Centroid) {
				i++
			} else {
				order[i], order[j] = order[j], order[i]
				j--
			}
		}
		if i > 0 && i < len(order) {
			return task.start + i
		}
	}

	// Force a median split by count. This also covers the case where all
	// centroids coincide.
	axis := centroidBounds.LongestAxis()
	slices.SortStableFunc(order, func(a, c uint32) int {
		return cmp.Compare(b.refs[a].Centroid[axis], b.refs[c].Centroid[axis])
	})
	return task.start + len(order)/2
}

func (b *builder) createLeaf(task buildTask) {
	leaf := &b.nodes[task.node]
	leaf.SetPrimitives(0, uint32(task.end-task.start))
	if b.leafCb != nil {
		b.leafCb(leaf, b.order[task.start:task.end])
	}
	b.stats.Leaves++
}
