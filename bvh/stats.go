package bvh

// Traversal and intersection costs used when estimating the SAH cost of a
// tree.
const (
	sahTraversalCost    float32 = 1.0
	sahIntersectionCost float32 = 1.0
)

// TreeStats describes the shape and estimated quality of a hierarchy.
type TreeStats struct {
	Nodes       int
	Leaves      int
	EmptyLeaves int
	Primitives  int
	MaxDepth    int
	MaxLeafSize int

	// SAH cost of the tree relative to the root box area. Lower is better.
	SAHCost float32
}

// Stats walks the hierarchy and collects statistics.
func (b *Blas) Stats() TreeStats {
	return treeStats(b.Nodes)
}

// Stats walks the instance hierarchy and collects statistics.
func (t *Tlas) Stats() TreeStats {
	return treeStats(t.Nodes)
}

func treeStats(nodes []Node) TreeStats {
	var stats TreeStats
	if len(nodes) == 0 {
		return stats
	}

	rootArea := nodes[0].BBox().HalfArea()

	type item struct {
		node  uint32
		depth int
	}
	stack := []item{{0, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &nodes[it.node]
		stats.Nodes++
		if it.depth > stats.MaxDepth {
			stats.MaxDepth = it.depth
		}

		var areaRatio float32
		if rootArea > 0 {
			areaRatio = node.BBox().HalfArea() / rootArea
		}

		if !node.IsLeaf() {
			stats.SAHCost += sahTraversalCost * areaRatio
			left, right := node.ChildNodes()
			stack = append(stack, item{right, it.depth + 1}, item{left, it.depth + 1})
			continue
		}

		count := int(node.RData)
		stats.Leaves++
		stats.Primitives += count
		if count == 0 {
			stats.EmptyLeaves++
		}
		if count > stats.MaxLeafSize {
			stats.MaxLeafSize = count
		}
		stats.SAHCost += sahIntersectionCost * float32(count) * areaRatio
	}

	return stats
}
