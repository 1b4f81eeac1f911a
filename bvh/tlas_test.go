package bvh

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/achilleasa/accel/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleTriangleScene(t *testing.T) *Tlas {
	t.Helper()

	blas, err := NewBlas("tri", []Triangle{unitTriangle()}, Options{})
	require.NoError(t, err)

	tlas, err := NewTlas(Options{})
	require.NoError(t, err)
	mesh := tlas.AddBlas(blas)
	_, err = tlas.AddInstances(NewInstance(mesh, types.Ident4()))
	require.NoError(t, err)
	require.NoError(t, tlas.Build())
	return tlas
}

func TestTlasSingleTriangleRay(t *testing.T) {
	tlas := singleTriangleScene(t)

	hit, ok := tlas.Intersect(NewRay(types.XYZ(0.25, 0.25, 5), types.XYZ(0, 0, -1)), float32(math.Inf(1)))
	require.True(t, ok)
	assert.InDelta(t, 5, hit.T, 1e-5)
	assert.InDelta(t, 0.25, hit.U, 1e-5)
	assert.InDelta(t, 0.25, hit.V, 1e-5)

	bary := hit.Barycentric()
	for i := 0; i < 3; i++ {
		assert.True(t, bary[i] > 0 && bary[i] < 1, "barycentric weight %d out of range: %f", i, bary[i])
	}
	assert.Equal(t, unitTriangle(), hit.Triangle)
	assert.Equal(t, uint32(0), hit.MeshIndex)
	assert.Equal(t, uint32(0), hit.InstanceIndex)

	_, ok = tlas.Intersect(NewRay(types.XYZ(2, 2, 5), types.XYZ(0, 0, -1)), float32(math.Inf(1)))
	assert.False(t, ok)
}

func TestTlasInstances(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	blas, err := NewBlas("soup", randomTriangles(rng, 100, 2), Options{})
	require.NoError(t, err)

	tlas, err := NewTlas(Options{})
	require.NoError(t, err)
	mesh := tlas.AddBlas(blas)

	const instCount = 25
	for i := 0; i < instCount; i++ {
		m := types.TRS(
			types.XYZ(float32(i%5)*10, 0, float32(i/5)*10),
			types.XYZ(0, float32(i)*0.3, 0),
			types.Splat3(1+float32(i)*0.1),
		)
		_, err = tlas.AddInstances(NewInstance(mesh, m))
		require.NoError(t, err)
	}
	assert.Equal(t, Stale, tlas.State())
	require.NoError(t, tlas.Build())
	assert.Equal(t, Built, tlas.State())

	assert.Equal(t, instCount, tlas.LeafCount())

	root := tlas.Bounds()
	for i := range tlas.Instances {
		instBox := blas.Bounds().Transform(tlas.Instances[i].Transform)
		assert.True(t, root.Contains(instBox), "root box does not contain instance %d", i)
		assert.Equal(t, instBox, tlas.InstanceBounds(uint32(i)))
	}

	// Every instance is referenced by exactly one leaf
	seen := make(map[uint32]bool)
	walkTree(tlas.Nodes, func(_ int, leaf *Node) {
		require.EqualValues(t, 1, leaf.RData)
		require.False(t, seen[leaf.Instance()], "instance %d referenced twice", leaf.Instance())
		seen[leaf.Instance()] = true
	})
	assert.Len(t, seen, instCount)

	stats := tlas.Stats()
	assert.Equal(t, instCount, stats.Primitives)
	assert.Equal(t, 1, stats.MaxLeafSize)
}

// Intersect the ray with every triangle of every instance.
func bruteForceIntersect(tlas *Tlas, r Ray, tMax float32) (float32, bool) {
	best := tMax
	found := false
	for _, inst := range tlas.Instances {
		localRay := r.Transform(inst.InvTransform)
		blas := tlas.Blases[inst.MeshIndex]
		for i := range blas.Triangles {
			if t, _, _, hit := IntersectTriangle(&localRay, &blas.Triangles[i], best); hit {
				best = t
				found = true
			}
		}
	}
	return best, found
}

func randomScene(t *testing.T, rng *rand.Rand, split string) *Tlas {
	t.Helper()

	tlas, err := NewTlas(Options{Split: split})
	require.NoError(t, err)
	for m := 0; m < 3; m++ {
		blas, err := NewBlas("soup", randomTriangles(rng, 150, 4), Options{Split: split, LeafTriangles: 3})
		require.NoError(t, err)
		tlas.AddBlas(blas)
	}
	for i := 0; i < 12; i++ {
		m := types.TRS(
			types.XYZ((rng.Float32()*2-1)*10, (rng.Float32()*2-1)*10, (rng.Float32()*2-1)*10),
			types.XYZ(rng.Float32()*3, rng.Float32()*3, rng.Float32()*3),
			types.Splat3(0.5+rng.Float32()),
		)
		_, err = tlas.AddInstances(NewInstance(uint32(i%3), m))
		require.NoError(t, err)
	}
	require.NoError(t, tlas.Build())
	return tlas
}

func TestTlasIntersectMatchesBruteForce(t *testing.T) {
	for _, split := range []string{"sah", "midpoint"} {
		rng := rand.New(rand.NewSource(1234))
		tlas := randomScene(t, rng, split)

		hits := 0
		for i := 0; i < 2000; i++ {
			r := randomRay(rng, 15)
			tMax := float32(math.Inf(1))
			if i%4 == 0 {
				tMax = rng.Float32() * 20
			}

			expT, expHit := bruteForceIntersect(tlas, r, tMax)
			hit, ok := tlas.Intersect(r, tMax)
			require.Equal(t, expHit, ok, "[%s] ray %d: hit mismatch", split, i)
			if ok {
				hits++
				require.InDelta(t, expT, hit.T, 1e-4, "[%s] ray %d: distance mismatch", split, i)
			}

			require.Equal(t, expHit, tlas.Occluded(r, tMax), "[%s] ray %d: occlusion mismatch", split, i)
		}
		assert.NotZero(t, hits, "[%s] expected some rays to hit the scene", split)
	}
}

func TestTlasRefitAfterMove(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	tlas := randomScene(t, rng, "sah")
	nodeCount := len(tlas.Nodes)

	delta := types.XYZ(100, 0, 0)
	moved := tlas.Instances[4].Transform
	require.NoError(t, tlas.SetTransform(4, types.Translate4(delta).Mul4(moved)))
	assert.Equal(t, Stale, tlas.State())

	require.NoError(t, tlas.Update())
	assert.Equal(t, Built, tlas.State())
	assert.Len(t, tlas.Nodes, nodeCount, "refit must not rebuild the hierarchy")

	instBox := tlas.Blases[tlas.Instances[4].MeshIndex].Bounds().Transform(tlas.Instances[4].Transform)
	assert.True(t, tlas.Bounds().Contains(instBox))

	// Every ancestor of every leaf contains the leaf box
	for i := range tlas.Nodes {
		node := &tlas.Nodes[i]
		if node.IsLeaf() {
			continue
		}
		left, right := node.ChildNodes()
		require.True(t, node.BBox().Contains(tlas.Nodes[left].BBox()))
		require.True(t, node.BBox().Contains(tlas.Nodes[right].BBox()))
	}

	// Rays still agree with brute force after the refit
	for i := 0; i < 500; i++ {
		r := randomRay(rng, 15)
		if i%2 == 0 {
			r = NewRay(r.Origin.Add(delta), r.Direction)
		}
		expT, expHit := bruteForceIntersect(tlas, r, float32(math.Inf(1)))
		hit, ok := tlas.Intersect(r, float32(math.Inf(1)))
		require.Equal(t, expHit, ok, "ray %d: hit mismatch", i)
		if ok {
			require.InDelta(t, expT, hit.T, 1e-4)
		}
	}

	assert.ErrorIs(t, tlas.SetTransform(1000, types.Ident4()), ErrInvalidInstance)
}

func TestTlasRefitAfterBlasRefit(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	tris := randomTriangles(rng, 40, 3)
	vertices := soupVertices(tris)

	blas, err := NewBlas("anim", tris, Options{})
	require.NoError(t, err)
	tlas, err := NewTlas(Options{})
	require.NoError(t, err)
	tlas.AddBlas(blas)
	_, err = tlas.AddInstances(NewInstance(0, types.Ident4()), NewInstance(0, types.Translate4(types.XYZ(20, 0, 0))))
	require.NoError(t, err)
	require.NoError(t, tlas.Build())

	delta := types.XYZ(0, 5, 0)
	for i := range vertices {
		vertices[i] = vertices[i].Add(delta)
	}
	require.NoError(t, blas.Refit(vertices))
	tlas.MarkMoved()
	require.NoError(t, tlas.Refit())

	for i := range tlas.Instances {
		exp := blas.Bounds().Transform(tlas.Instances[i].Transform)
		assert.True(t, tlas.Bounds().Contains(exp), "root box does not contain refit instance %d", i)
	}
}

func TestTlasInvalidMeshIndex(t *testing.T) {
	tlas, err := NewTlas(Options{})
	require.NoError(t, err)

	_, err = tlas.AddInstances(NewInstance(3, types.Ident4()))
	assert.True(t, errors.Is(err, ErrInvalidMeshIndex), "expected %v; got %v", ErrInvalidMeshIndex, err)
	assert.ErrorIs(t, tlas.ReplaceBlas(1, nil), ErrInvalidMeshIndex)
}

func TestTlasEmptyAndUnbuilt(t *testing.T) {
	r := NewRay(types.XYZ(0, 0, 5), types.XYZ(0, 0, -1))
	inf := float32(math.Inf(1))

	// Never built
	tlas, err := NewTlas(Options{})
	require.NoError(t, err)
	assert.Equal(t, Empty, tlas.State())
	_, ok := tlas.Intersect(r, inf)
	assert.False(t, ok)
	assert.False(t, tlas.Occluded(r, inf))

	called := false
	tlas.IntersectBox(NewBox(types.XYZ(-1, -1, -1), types.XYZ(1, 1, 1)), func(BoxHit) { called = true })
	assert.False(t, called)

	// Built without instances
	require.NoError(t, tlas.Build())
	assert.Equal(t, Empty, tlas.State())
	require.Len(t, tlas.Nodes, 1)
	assert.True(t, tlas.Nodes[0].IsLeaf())
	assert.Zero(t, tlas.Nodes[0].RData)
	_, ok = tlas.Intersect(r, inf)
	assert.False(t, ok)

	// Instance of an empty mesh
	empty, err := NewBlas("empty", nil, Options{})
	require.NoError(t, err)
	tlas.AddBlas(empty)
	_, err = tlas.AddInstances(NewInstance(0, types.Ident4()))
	require.NoError(t, err)
	require.NoError(t, tlas.Build())
	_, ok = tlas.Intersect(r, inf)
	assert.False(t, ok)

	// Debug checks turn queries on a never built TLAS into panics
	unbuilt, err := NewTlas(Options{})
	require.NoError(t, err)
	enableDebugChecks(t)
	assert.Panics(t, func() { unbuilt.Intersect(r, inf) })
}

func TestEnableDebugChecksRestoresState(t *testing.T) {
	prev := DebugChecks
	t.Run("enabled", func(t *testing.T) {
		enableDebugChecks(t)
		assert.True(t, DebugChecks)
		assert.Panics(t, func() { assertf(false, "boom") })
	})
	assert.Equal(t, prev, DebugChecks)
	if !prev {
		assert.NotPanics(t, func() { assertf(false, "boom") })
	}
}

func TestTlasBoxQuery(t *testing.T) {
	tlas := singleTriangleScene(t)

	// A box overlapping no triangle never invokes the visitor
	called := 0
	tlas.IntersectBox(NewBox(types.XYZ(5, 5, 5), types.XYZ(6, 6, 6)), func(BoxHit) { called++ })
	assert.Zero(t, called)
	tlas.IntersectBox(EmptyBox(), func(BoxHit) { called++ })
	assert.Zero(t, called)

	var hits []BoxHit
	tlas.IntersectBox(NewBox(types.XYZ(0.1, 0.1, -0.1), types.XYZ(0.2, 0.2, 0.1)), func(hit BoxHit) {
		hits = append(hits, hit)
	})
	require.Len(t, hits, 1)
	assert.Equal(t, uint32(0), hits[0].TriangleIndex)
	assert.Equal(t, unitTriangle().Positions, hits[0].Positions)

	// The box lies inside the triangle AABB but past its hypotenuse
	corner := NewBox(types.XYZ(0.8, 0.8, -0.1), types.XYZ(0.9, 0.9, 0.1))
	called = 0
	tlas.IntersectBox(corner, func(BoxHit) { called++ })
	assert.Equal(t, 1, called)
	called = 0
	tlas.IntersectBoxExact(corner, func(BoxHit) { called++ })
	assert.Zero(t, called)
}

func TestTlasBoxQueryMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(4321))
	tlas := randomScene(t, rng, "sah")

	type key struct{ inst, tri uint32 }
	for i := 0; i < 100; i++ {
		center := types.XYZ((rng.Float32()*2-1)*12, (rng.Float32()*2-1)*12, (rng.Float32()*2-1)*12)
		query := Box{Min: center, Max: center}.Expand(rng.Float32() * 4)

		exp := make(map[key]bool)
		exact := make(map[key]bool)
		for instIndex, inst := range tlas.Instances {
			blas := tlas.Blases[inst.MeshIndex]
			localQuery := query.Transform(inst.InvTransform)
			for triIndex := range blas.Triangles {
				k := key{uint32(instIndex), uint32(triIndex)}
				if blas.Triangles[triIndex].Box().Overlaps(localQuery) {
					exp[k] = true
				}
				world := blas.Triangles[triIndex].Transform(inst.Transform)
				if TriangleOverlapsBox(world.Positions[0], world.Positions[1], world.Positions[2], query) {
					exact[k] = true
				}
			}
		}

		got := make(map[key]bool)
		for hit := range tlas.QueryBox(query) {
			k := key{hit.InstanceIndex, hit.TriangleIndex}
			require.False(t, got[k], "query %d: triangle reported twice", i)
			got[k] = true
		}
		require.Equal(t, exp, got, "query %d", i)

		gotExact := make(map[key]bool)
		tlas.IntersectBoxExact(query, func(hit BoxHit) {
			gotExact[key{hit.InstanceIndex, hit.TriangleIndex}] = true
		})
		for k := range exact {
			require.True(t, gotExact[k], "query %d: exact query missed triangle %v", i, k)
		}
		for k := range gotExact {
			require.True(t, got[k], "query %d: exact result %v not reported by the conservative query", i, k)
		}
	}
}

func TestTlasQueryBoxEarlyExit(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	tlas := randomScene(t, rng, "sah")

	count := 0
	for range tlas.QueryBox(tlas.Bounds()) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func BenchmarkTlasIntersect(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	blas, err := NewBlas("soup", randomTriangles(rng, 10000, 20), Options{})
	if err != nil {
		b.Fatal(err)
	}
	tlas, _ := NewTlas(Options{})
	tlas.AddBlas(blas)
	_, _ = tlas.AddInstances(NewInstance(0, types.Ident4()), NewInstance(0, types.Translate4(types.XYZ(50, 0, 0))))
	if err = tlas.Build(); err != nil {
		b.Fatal(err)
	}

	rays := make([]Ray, 1024)
	for i := range rays {
		rays[i] = randomRay(rng, 30)
	}
	inf := float32(math.Inf(1))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		tlas.Intersect(rays[i%len(rays)], inf)
	}
}
