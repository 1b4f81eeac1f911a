package bvh

import "github.com/achilleasa/accel/types"

// Instance places a mesh hierarchy in the world.
type Instance struct {
	Transform    types.Mat4
	InvTransform types.Mat4
	MeshIndex    uint32
}

// Create an instance and derive its inverse transform.
func NewInstance(meshIndex uint32, transform types.Mat4) Instance {
	return Instance{
		Transform:    transform,
		InvTransform: transform.Inv(),
		MeshIndex:    meshIndex,
	}
}

// Replace the instance transform and its inverse.
func (in *Instance) SetTransform(transform types.Mat4) {
	in.Transform = transform
	in.InvTransform = transform.Inv()
}

// GeometryRange locates the nodes and triangles of one mesh inside a
// flattened scene where the TLAS nodes come first, followed by the nodes of
// every mesh in mesh index order.
type GeometryRange struct {
	NodeOffset     uint32
	NodeCount      uint32
	TriangleOffset uint32
	TriangleCount  uint32
}
