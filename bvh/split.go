package bvh

import (
	"math"

	"github.com/achilleasa/accel/types"
)

var (
	// Split along the axis with the largest centroid extent at its spatial
	// midpoint.
	LongestAxisMidpoint = midpointSplit{}

	// Binned surface area heuristic split with 16 bins per axis.
	SurfaceAreaHeuristic = SAHSplit{Bins: 16}
)

// PrimRef describes a primitive (triangle or instance) that can be
// partitioned by the builder.
type PrimRef struct {
	Box      Box
	Centroid types.Vec3
}

// Split describes a partitioning plane. Primitives for which Left returns
// true are placed in the left child.
type Split struct {
	Axis  int
	Plane float32

	// Set by binned strategies so that partitioning classifies centroids
	// exactly like the scoring pass did.
	bins     int
	bin      int
	binMin   float32
	binScale float32
}

// Left returns true if a primitive with centroid c belongs to the left side.
func (s Split) Left(c types.Vec3) bool {
	if s.bins > 0 {
		return binIndex(c[s.Axis], s.binMin, s.binScale, s.bins) <= s.bin
	}
	return c[s.Axis] < s.Plane
}

// A split selection strategy.
type SplitStrategy interface {
	// Select a split for the primitives refs[order[i]]. Bounds and
	// centroidBounds are the boxes of the primitives and of their
	// centroids. Returns false if no useful split exists; the builder then
	// falls back to a median split.
	FindSplit(refs []PrimRef, order []uint32, bounds, centroidBounds Box) (Split, bool)
}

type midpointSplit struct{}

func (midpointSplit) FindSplit(_ []PrimRef, _ []uint32, _, centroidBounds Box) (Split, bool) {
	axis := centroidBounds.LongestAxis()
	if centroidBounds.Size()[axis] <= 0 {
		return Split{}, false
	}
	return Split{Axis: axis, Plane: centroidBounds.Center()[axis]}, true
}

// SAHSplit scores Bins-1 candidate planes on every axis with a non-zero
// centroid extent using cost = leftCount*leftHalfArea + rightCount*rightHalfArea.
// Ties are resolved in favor of the lowest axis and then the lowest bin.
type SAHSplit struct {
	Bins int
}

type sahBin struct {
	box   Box
	count int
}

func (s SAHSplit) FindSplit(refs []PrimRef, order []uint32, _, centroidBounds Box) (Split, bool) {
	bins := s.Bins
	if bins < 2 {
		bins = SurfaceAreaHeuristic.Bins
	}

	binList := make([]sahBin, bins)
	rightArea := make([]float32, bins)
	rightCount := make([]int, bins)

	var best Split
	bestCost := float32(math.MaxFloat32)
	found := false

	extent := centroidBounds.Size()
	for axis := 0; axis < 3; axis++ {
		if extent[axis] <= 0 {
			continue
		}

		binMin := centroidBounds.Min[axis]
		binScale := float32(bins) / extent[axis]

		for i := range binList {
			binList[i] = sahBin{box: EmptyBox()}
		}
		for _, primIndex := range order {
			ref := &refs[primIndex]
			b := &binList[binIndex(ref.Centroid[axis], binMin, binScale, bins)]
			b.box.GrowBox(ref.Box)
			b.count++
		}

		// Sweep from the right to collect suffix areas and counts
		acc := EmptyBox()
		count := 0
		for i := bins - 1; i > 0; i-- {
			acc.GrowBox(binList[i].box)
			count += binList[i].count
			rightArea[i] = acc.HalfArea()
			rightCount[i] = count
		}

		// Sweep from the left and score the plane after each bin
		acc = EmptyBox()
		count = 0
		for i := 0; i < bins-1; i++ {
			acc.GrowBox(binList[i].box)
			count += binList[i].count
			if count == 0 || rightCount[i+1] == 0 {
				continue
			}

			cost := float32(count)*acc.HalfArea() + float32(rightCount[i+1])*rightArea[i+1]
			if cost < bestCost {
				bestCost = cost
				found = true
				best = Split{
					Axis:     axis,
					Plane:    binMin + float32(i+1)/binScale,
					bins:     bins,
					bin:      i,
					binMin:   binMin,
					binScale: binScale,
				}
			}
		}
	}

	return best, found
}

func binIndex(c, binMin, binScale float32, bins int) int {
	index := int((c - binMin) * binScale)
	if index < 0 {
		return 0
	}
	if index >= bins {
		return bins - 1
	}
	return index
}
