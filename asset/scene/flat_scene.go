package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/types"
	"github.com/olekukonko/tablewriter"
)

// Entries of a compressed scene archive.
const (
	// Gob encoded Scene without its node list.
	DataFile = "scene.bin"

	// Node list using the 32-byte node encoding.
	NodeFile = "nodes.bin"
)

// The MeshInstance structure positions a mesh inside the scene.
type MeshInstance struct {
	MeshIndex uint32

	// The BVH root node of the mesh geometry. This is shared by all
	// instances of the same mesh.
	BvhRoot uint32

	padding [2]uint32

	// Local to world transformation and its inverse.
	Transform    types.Mat4
	InvTransform types.Mat4
}

// Mesh metadata.
type Mesh struct {
	Name string

	// Length of the vertex list the mesh triangles index into.
	VertexCount uint32
}

// Scene is a flat mirror of a two-level hierarchy. All node lists share a
// single array: the instance hierarchy comes first (root at index 0)
// followed by the hierarchy of each mesh in mesh index order. Child indices
// are absolute and leaf triangle indices point into TriangleList so the
// layout can be uploaded and traversed as is.
type Scene struct {
	BvhNodeList      []bvh.Node
	TriangleList     []bvh.Triangle
	MeshInstanceList []MeshInstance
	MeshList         []Mesh

	// Location of each mesh inside BvhNodeList and TriangleList.
	GeometryRanges []bvh.GeometryRange

	// Number of instance hierarchy nodes at the start of BvhNodeList.
	TlasNodeCount uint32
}

// Flatten copies a built hierarchy into the flat layout. geoms supplies the
// vertex count of each mesh; if it is nil the vertex count is derived from
// the highest vertex index referenced by the mesh triangles.
func Flatten(tlas *bvh.Tlas, geoms []*bvh.Geometry) (*Scene, error) {
	if tlas.NeedsRebuild() {
		return nil, fmt.Errorf("scene: flatten: %w", bvh.ErrNotBuilt)
	}
	if tlas.State() == bvh.Stale {
		return nil, fmt.Errorf("scene: flatten: instances: %w", bvh.ErrStale)
	}
	for meshIndex, blas := range tlas.Blases {
		if blas.State() == bvh.Stale {
			return nil, fmt.Errorf("scene: flatten: mesh %d: %w", meshIndex, bvh.ErrStale)
		}
	}
	if geoms != nil && len(geoms) != len(tlas.Blases) {
		return nil, fmt.Errorf("scene: flatten: got %d geometries for %d meshes", len(geoms), len(tlas.Blases))
	}

	sc := &Scene{
		MeshInstanceList: make([]MeshInstance, len(tlas.Instances)),
		MeshList:         make([]Mesh, len(tlas.Blases)),
		GeometryRanges:   append([]bvh.GeometryRange(nil), tlas.Ranges...),
		TlasNodeCount:    uint32(len(tlas.Nodes)),
	}

	totalNodes := len(tlas.Nodes)
	totalTris := 0
	for _, blas := range tlas.Blases {
		totalNodes += len(blas.Nodes)
		totalTris += len(blas.Triangles)
	}
	sc.BvhNodeList = make([]bvh.Node, 0, totalNodes)
	sc.TriangleList = make([]bvh.Triangle, 0, totalTris)
	sc.BvhNodeList = append(sc.BvhNodeList, tlas.Nodes...)

	for meshIndex, blas := range tlas.Blases {
		rng := sc.GeometryRanges[meshIndex]
		for _, node := range blas.Nodes {
			node.OffsetChildNodes(int32(rng.NodeOffset))
			node.OffsetPrimitives(int32(rng.TriangleOffset))
			sc.BvhNodeList = append(sc.BvhNodeList, node)
		}
		sc.TriangleList = append(sc.TriangleList, blas.Triangles...)

		sc.MeshList[meshIndex] = Mesh{Name: blas.Name}
		if geoms != nil {
			sc.MeshList[meshIndex].VertexCount = uint32(len(geoms[meshIndex].Vertices))
		} else {
			sc.MeshList[meshIndex].VertexCount = referencedVertices(blas.Triangles)
		}
	}

	for index, inst := range tlas.Instances {
		sc.MeshInstanceList[index] = MeshInstance{
			MeshIndex:    inst.MeshIndex,
			BvhRoot:      sc.GeometryRanges[inst.MeshIndex].NodeOffset,
			Transform:    inst.Transform,
			InvTransform: inst.InvTransform,
		}
	}

	return sc, nil
}

// Unflatten rebuilds the two-level hierarchy and the mesh geometries from
// the flat layout. Vertices that are not referenced by any triangle are
// restored at the origin.
func (sc *Scene) Unflatten(opts bvh.Options) (*bvh.Tlas, []*bvh.Geometry, error) {
	if len(sc.GeometryRanges) != len(sc.MeshList) {
		return nil, nil, fmt.Errorf("scene: got %d geometry ranges for %d meshes", len(sc.GeometryRanges), len(sc.MeshList))
	}
	if int(sc.TlasNodeCount) > len(sc.BvhNodeList) {
		return nil, nil, fmt.Errorf("scene: %w: instance node count %d exceeds node list length %d", bvh.ErrInvalidNodes, sc.TlasNodeCount, len(sc.BvhNodeList))
	}

	blases := make([]*bvh.Blas, len(sc.MeshList))
	geoms := make([]*bvh.Geometry, len(sc.MeshList))
	for meshIndex, mesh := range sc.MeshList {
		rng := sc.GeometryRanges[meshIndex]
		nodeEnd := uint64(rng.NodeOffset) + uint64(rng.NodeCount)
		triEnd := uint64(rng.TriangleOffset) + uint64(rng.TriangleCount)
		if nodeEnd > uint64(len(sc.BvhNodeList)) || triEnd > uint64(len(sc.TriangleList)) {
			return nil, nil, fmt.Errorf("scene: mesh %q: %w: range out of bounds", mesh.Name, bvh.ErrInvalidNodes)
		}

		tris := append([]bvh.Triangle(nil), sc.TriangleList[rng.TriangleOffset:triEnd]...)
		geom, err := restoreGeometry(mesh, tris)
		if err != nil {
			return nil, nil, err
		}
		geoms[meshIndex] = geom

		if rng.NodeCount == 0 {
			blases[meshIndex] = &bvh.Blas{Name: mesh.Name}
			continue
		}

		nodes := append([]bvh.Node(nil), sc.BvhNodeList[rng.NodeOffset:nodeEnd]...)
		for i := range nodes {
			nodes[i].OffsetChildNodes(-int32(rng.NodeOffset))
			nodes[i].OffsetPrimitives(-int32(rng.TriangleOffset))
		}
		if blases[meshIndex], err = bvh.NewBlasFromNodes(mesh.Name, nodes, tris); err != nil {
			return nil, nil, fmt.Errorf("scene: %w", err)
		}
	}

	instances := make([]bvh.Instance, len(sc.MeshInstanceList))
	for index, mi := range sc.MeshInstanceList {
		if int(mi.MeshIndex) < len(sc.GeometryRanges) && mi.BvhRoot != sc.GeometryRanges[mi.MeshIndex].NodeOffset {
			return nil, nil, fmt.Errorf("scene: instance %d: %w: root %d does not match mesh %d", index, bvh.ErrInvalidNodes, mi.BvhRoot, mi.MeshIndex)
		}
		instances[index] = bvh.Instance{
			Transform:    mi.Transform,
			InvTransform: mi.InvTransform,
			MeshIndex:    mi.MeshIndex,
		}
	}

	tlasNodes := append([]bvh.Node(nil), sc.BvhNodeList[:sc.TlasNodeCount]...)
	tlas, err := bvh.NewTlasFromNodes(tlasNodes, blases, instances, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("scene: %w", err)
	}
	return tlas, geoms, nil
}

// Assemble an indexed geometry from the triangle list of a mesh.
func restoreGeometry(mesh Mesh, tris []bvh.Triangle) (*bvh.Geometry, error) {
	geom := &bvh.Geometry{
		Name:     mesh.Name,
		Vertices: make([]types.Vec3, mesh.VertexCount),
		Indices:  make([]uint32, 0, 3*len(tris)),
	}
	for triIndex, tri := range tris {
		for i, vIndex := range tri.Indices {
			if vIndex >= mesh.VertexCount {
				return nil, fmt.Errorf("scene: mesh %q: triangle %d references vertex %d; vertex count %d", mesh.Name, triIndex, vIndex, mesh.VertexCount)
			}
			geom.Vertices[vIndex] = tri.Positions[i]
		}
		geom.Indices = append(geom.Indices, tri.Indices[:]...)
	}
	return geom, nil
}

func referencedVertices(tris []bvh.Triangle) uint32 {
	var count uint32
	for _, tri := range tris {
		for _, vIndex := range tri.Indices {
			count = max(count, vIndex+1)
		}
	}
	return count
}

// Build a tabular representation of scene statistics.
func (sc *Scene) Stats() string {
	split := min(int(sc.TlasNodeCount), len(sc.BvhNodeList))
	tlasNodes := sc.BvhNodeList[:split]
	meshNodes := sc.BvhNodeList[split:]

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Asset Type", "Asset", "Count", "Size"})
	table.Append([]string{"Geometry", "---", "", fmtSize(sc.TriangleList, meshNodes)})
	table.Append([]string{"", "Meshes", strconv.Itoa(len(sc.MeshList)), fmtSize(sc.GeometryRanges)})
	table.Append([]string{"", "Triangles", strconv.Itoa(len(sc.TriangleList)), fmtSize(sc.TriangleList)})
	table.Append([]string{"", "Mesh BVH nodes", strconv.Itoa(len(meshNodes)), fmtSize(meshNodes)})
	table.Append([]string{" ", " ", " ", " "})
	table.Append([]string{"Instances", "---", "", fmtSize(sc.MeshInstanceList, tlasNodes)})
	table.Append([]string{"", "Mesh instances", strconv.Itoa(len(sc.MeshInstanceList)), fmtSize(sc.MeshInstanceList)})
	table.Append([]string{"", "Scene BVH nodes", strconv.Itoa(len(tlasNodes)), fmtSize(tlasNodes)})
	table.SetFooter([]string{"Total", " ", " ", strings.TrimLeft(fmtSize(sc.BvhNodeList, sc.TriangleList, sc.MeshInstanceList, sc.GeometryRanges), " ")})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...any) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
