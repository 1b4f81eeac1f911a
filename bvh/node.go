package bvh

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/achilleasa/accel/types"
)

// NodeSize is the size in bytes of an encoded Node.
const NodeSize = 32

// Bvh nodes are comprised of two Vec3 and two multipurpose int32 parameters
// whose value depends on the node type. The same record is used by both the
// top level (TLAS) and the bottom level (BLAS) hierarchies:
//
//   - For internal nodes LData and RData are both > 0 and hold the indices of
//     the left and right child. Children are always stored after their
//     parent so a child index can never be 0 (the root).
//   - For BLAS leaves LData is <= 0 and -LData is the index of the first
//     triangle; RData holds the triangle count.
//   - For TLAS leaves LData is <= 0 and -LData is the instance index; RData
//     holds the instance count (1, or 0 for the empty sentinel leaf).
//
// The encoded form is 32 bytes, little endian: Min.xyz, LData, Max.xyz, RData.
type Node struct {
	Min   types.Vec3
	LData int32

	Max   types.Vec3
	RData int32
}

// Get the node bounding box.
func (n *Node) BBox() Box {
	return Box{Min: n.Min, Max: n.Max}
}

// Set bounding box.
func (n *Node) SetBBox(b Box) {
	n.Min = b.Min
	n.Max = b.Max
}

func (n *Node) IsLeaf() bool {
	return n.LData <= 0
}

// Set left and right child node indices.
func (n *Node) SetChildNodes(left, right uint32) {
	n.LData = int32(left)
	n.RData = int32(right)
}

// Get left and right child node indices.
func (n *Node) ChildNodes() (left, right uint32) {
	return uint32(n.LData), uint32(n.RData)
}

// Set primitive index and count.
func (n *Node) SetPrimitives(firstPrimIndex, count uint32) {
	n.LData = -int32(firstPrimIndex)
	n.RData = int32(count)
}

// Get primitive index and count.
func (n *Node) Primitives() (firstPrimIndex, count uint32) {
	return uint32(-n.LData), uint32(n.RData)
}

// Set mesh instance index.
func (n *Node) SetInstance(index uint32) {
	n.LData = -int32(index)
	n.RData = 1
}

// Get mesh instance index.
func (n *Node) Instance() uint32 {
	return uint32(-n.LData)
}

// Add offset to indices of child nodes. Leaves are not modified.
func (n *Node) OffsetChildNodes(offset int32) {
	if n.LData <= 0 {
		return
	}

	n.LData += offset
	n.RData += offset
}

// Add offset to the first primitive index of a leaf. Internal nodes are not
// modified.
func (n *Node) OffsetPrimitives(offset int32) {
	if n.LData > 0 {
		return
	}

	n.LData -= offset
}

// Encode the node using the 32-byte little endian layout.
func (n Node) MarshalBinary() ([]byte, error) {
	return n.AppendBinary(make([]byte, 0, NodeSize))
}

// Append the 32-byte encoding of the node to buf.
func (n Node) AppendBinary(buf []byte) ([]byte, error) {
	for i := 0; i < 3; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.Min[i]))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n.LData))
	for i := 0; i < 3; i++ {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.Max[i]))
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(n.RData))
	return buf, nil
}

// Decode a node from its 32-byte encoding.
func (n *Node) UnmarshalBinary(data []byte) error {
	if len(data) != NodeSize {
		return fmt.Errorf("bvh: invalid node encoding length %d; expected %d", len(data), NodeSize)
	}

	for i := 0; i < 3; i++ {
		n.Min[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
		n.Max[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[16+i*4:]))
	}
	n.LData = int32(binary.LittleEndian.Uint32(data[12:]))
	n.RData = int32(binary.LittleEndian.Uint32(data[28:]))
	return nil
}

// Encode a node list as a flat byte slice.
func EncodeNodes(nodes []Node) []byte {
	buf := make([]byte, 0, len(nodes)*NodeSize)
	for _, n := range nodes {
		buf, _ = n.AppendBinary(buf)
	}
	return buf
}

// Decode a flat byte slice produced by EncodeNodes.
func DecodeNodes(data []byte) ([]Node, error) {
	if len(data)%NodeSize != 0 {
		return nil, fmt.Errorf("bvh: node data length %d is not a multiple of %d", len(data), NodeSize)
	}

	nodes := make([]Node, len(data)/NodeSize)
	for i := range nodes {
		if err := nodes[i].UnmarshalBinary(data[i*NodeSize : (i+1)*NodeSize]); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}
