package input

import (
	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/types"
)

// A mesh is an indexed triangle list. Every 3 consecutive entries of Indices
// reference the vertices of a triangle.
type Mesh struct {
	Name     string
	Vertices []types.Vec3
	Indices  []uint32

	bbox            bvh.Box
	bboxNeedsUpdate bool
}

// Create a new mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:            name,
		bboxNeedsUpdate: true,
	}
}

// Append a vertex and return its index.
func (m *Mesh) AddVertex(v types.Vec3) uint32 {
	m.Vertices = append(m.Vertices, v)
	m.bboxNeedsUpdate = true
	return uint32(len(m.Vertices) - 1)
}

// Append a triangle.
func (m *Mesh) AddTriangle(i0, i1, i2 uint32) {
	m.Indices = append(m.Indices, i0, i1, i2)
}

// Get the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// Mark the bbox of this mesh as dirty.
func (m *Mesh) MarkBBoxDirty() {
	m.bboxNeedsUpdate = true
}

// Get mesh bounding box.
func (m *Mesh) BBox() bvh.Box {
	if m.bboxNeedsUpdate {
		m.bbox = bvh.BoxFromPoints(m.Vertices...)
		m.bboxNeedsUpdate = false
	}

	return m.bbox
}

// Geometry returns a view of the mesh suitable for building a BLAS. The
// vertex and index lists are shared with the mesh.
func (m *Mesh) Geometry() *bvh.Geometry {
	return &bvh.Geometry{
		Name:     m.Name,
		Vertices: m.Vertices,
		Indices:  m.Indices,
	}
}

// A mesh instance applies a transformation to a particular Mesh.
type MeshInstance struct {
	MeshIndex uint32
	Transform types.Mat4
}

// Get the world space AABB of the instance given the mesh it references.
func (mi *MeshInstance) BBox(mesh *Mesh) bvh.Box {
	return mesh.BBox().Transform(mi.Transform)
}

// The scene contains all elements that are processed by the scene compiler.
type Scene struct {
	Meshes        []*Mesh
	MeshInstances []*MeshInstance
}

// Create a new scene.
func NewScene() *Scene {
	return &Scene{
		Meshes:        make([]*Mesh, 0),
		MeshInstances: make([]*MeshInstance, 0),
	}
}

// Find a mesh by name. Returns -1 if no mesh matches.
func (sc *Scene) MeshIndex(name string) int {
	for index, mesh := range sc.Meshes {
		if mesh.Name == name {
			return index
		}
	}
	return -1
}

// Get the total number of triangles across all meshes.
func (sc *Scene) TriangleCount() int {
	count := 0
	for _, mesh := range sc.Meshes {
		count += mesh.TriangleCount()
	}
	return count
}
