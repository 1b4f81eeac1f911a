package bvh

import (
	"github.com/achilleasa/accel/log"
	"github.com/achilleasa/accel/types"
)

var geomLogger = log.New("geometry")

// Geometry is an indexed triangle list. Every 3 consecutive entries of
// Indices define a triangle.
type Geometry struct {
	Name     string
	Vertices []types.Vec3
	Indices  []uint32
}

// Triangles assembles the triangle list for this geometry. Triangles that
// reference a missing vertex are skipped with a warning; so are trailing
// indices that do not form a complete triangle.
func (g *Geometry) Triangles() []Triangle {
	triCount := len(g.Indices) / 3
	if rem := len(g.Indices) % 3; rem != 0 {
		geomLogger.Warningf("mesh %q: ignoring %d trailing indices", g.Name, rem)
	}

	tris := make([]Triangle, 0, triCount)
	vertCount := uint32(len(g.Vertices))
	skipped := 0
	for i := 0; i < triCount; i++ {
		idx := [3]uint32{g.Indices[i*3], g.Indices[i*3+1], g.Indices[i*3+2]}
		if idx[0] >= vertCount || idx[1] >= vertCount || idx[2] >= vertCount {
			geomLogger.Warningf("mesh %q: skipping triangle %d with out of range vertex index (%d, %d, %d); vertex count %d", g.Name, i, idx[0], idx[1], idx[2], vertCount)
			skipped++
			continue
		}
		tris = append(tris, Triangle{
			Positions: [3]types.Vec3{g.Vertices[idx[0]], g.Vertices[idx[1]], g.Vertices[idx[2]]},
			Indices:   idx,
		})
	}

	if skipped > 0 {
		geomLogger.Warningf("mesh %q: skipped %d of %d triangles", g.Name, skipped, triCount)
	}
	return tris
}
