package bvh

import (
	"math/rand"
	"testing"

	"github.com/achilleasa/accel/types"
)

// Turn on DebugChecks until the test completes. DebugChecks is package
// state so tests using this helper must not call t.Parallel.
func enableDebugChecks(t *testing.T) {
	t.Helper()

	prev := DebugChecks
	DebugChecks = true
	t.Cleanup(func() { DebugChecks = prev })
}

// Generate a soup of small random triangles inside [-extent, extent]^3.
func randomTriangles(rng *rand.Rand, count int, extent float32) []Triangle {
	randVec := func(scale float32) types.Vec3 {
		return types.XYZ(
			(rng.Float32()*2-1)*scale,
			(rng.Float32()*2-1)*scale,
			(rng.Float32()*2-1)*scale,
		)
	}

	tris := make([]Triangle, count)
	for i := range tris {
		center := randVec(extent)
		for j := 0; j < 3; j++ {
			tris[i].Positions[j] = center.Add(randVec(1))
			tris[i].Indices[j] = uint32(i*3 + j)
		}
	}
	return tris
}

// Collect the vertices of a triangle soup in index order.
func soupVertices(tris []Triangle) []types.Vec3 {
	vertices := make([]types.Vec3, len(tris)*3)
	for _, tri := range tris {
		for j := 0; j < 3; j++ {
			vertices[tri.Indices[j]] = tri.Positions[j]
		}
	}
	return vertices
}

func randomRay(rng *rand.Rand, extent float32) Ray {
	origin := types.XYZ(
		(rng.Float32()*2-1)*extent,
		(rng.Float32()*2-1)*extent,
		(rng.Float32()*2-1)*extent,
	)
	var dir types.Vec3
	for dir.LenSqr() < 1e-3 {
		dir = types.XYZ(rng.Float32()*2-1, rng.Float32()*2-1, rng.Float32()*2-1)
	}
	return NewRay(origin, dir.Normalize())
}

// Visit every leaf of a node list in depth-first, left-first order.
func walkTree(nodes []Node, visitLeaf func(index int, leaf *Node)) {
	stack := []uint32{0}
	for len(stack) > 0 {
		index := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &nodes[index]
		if node.IsLeaf() {
			visitLeaf(int(index), node)
			continue
		}
		left, right := node.ChildNodes()
		stack = append(stack, right, left)
	}
}
