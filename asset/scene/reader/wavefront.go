package reader

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/accel/asset"
	"github.com/achilleasa/accel/asset/compiler"
	"github.com/achilleasa/accel/asset/compiler/input"
	"github.com/achilleasa/accel/log"
	"github.com/achilleasa/accel/registry"
	"github.com/achilleasa/accel/types"
)

var errIndexOutOfBounds = errors.New("index out of bounds")

type wavefrontSceneReader struct {
	logger log.Logger

	// The parsed scene.
	rawScene *input.Scene

	// Global vertex list shared by all included files.
	vertexList []types.Vec3

	// Maps global vertex indices to indices into the vertex list of the
	// mesh that is currently being parsed.
	vertexRemap map[int]uint32

	// Number of faces skipped because they referenced missing vertices.
	skippedFaces int

	// An error stack that provides additional error information when
	// scene files include other files.
	errStack []string
}

// Create a new wavefront scene reader.
func newWavefrontReader() *wavefrontSceneReader {
	return &wavefrontSceneReader{
		logger:      log.New("wavefront scene reader"),
		rawScene:    input.NewScene(),
		vertexList:  make([]types.Vec3, 0),
		vertexRemap: make(map[int]uint32),
		errStack:    make([]string, 0),
	}
}

// Read parses the scene and compiles it into a registry.
func (r *wavefrontSceneReader) Read(ctx context.Context, sceneRes *asset.Resource, opts registry.Options) (*registry.Registry, error) {
	rawScene, err := r.Parse(sceneRes)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(ctx, rawScene, opts)
}

// Parse the scene definition without building any hierarchies.
func (r *wavefrontSceneReader) Parse(sceneRes *asset.Resource) (*input.Scene, error) {
	r.logger.Noticef(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	err := r.parse(sceneRes)
	if err != nil {
		return nil, err
	}

	// If no mesh instances are defined, create instances for each defined mesh
	if len(r.rawScene.MeshInstances) == 0 {
		r.createDefaultMeshInstances()
	}

	if r.skippedFaces > 0 {
		r.logger.Warningf("skipped %d faces referencing missing vertices", r.skippedFaces)
	}
	r.logger.Noticef("parsed scene in %d ms (%d meshes, %d instances, %d triangles)", time.Since(start).Milliseconds(), len(r.rawScene.Meshes), len(r.rawScene.MeshInstances), r.rawScene.TriangleCount())
	return r.rawScene, nil
}

// Generate a mesh instance with an identity transformation for each defined mesh.
func (r *wavefrontSceneReader) createDefaultMeshInstances() {
	for meshIndex := range r.rawScene.Meshes {
		r.rawScene.MeshInstances = append(r.rawScene.MeshInstances, &input.MeshInstance{
			MeshIndex: uint32(meshIndex),
			Transform: types.Ident4(),
		})
	}
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = strings.Trim(
			fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	} else {
		errMsg = strings.Trim(
			fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	}

	return errors.New(errMsg)
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Start a new mesh. Vertices are copied into the mesh on first use so each
// mesh only stores the vertices its faces reference.
func (r *wavefrontSceneReader) beginMesh(name string) {
	r.verifyLastParsedMesh()
	r.rawScene.Meshes = append(r.rawScene.Meshes, input.NewMesh(name))
	clear(r.vertexRemap)
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *asset.Resource) error {
	var lineNum int = 0

	// The main obj file may include (call) several other object files. Each
	// object file contains 1-based indices (when they are positive). By
	// tracking the current vertex offset we can apply it while parsing faces
	// to select the correct coordinates.
	relVertexOffset := len(r.vertexList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			err = r.parse(incRes)
			incRes.Close()
			if err != nil {
				return err
			}
			r.popFrame()
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			r.beginMesh(lineTokens[1])
		case "f":
			faceIndices, err := r.parseFace(lineTokens, relVertexOffset)
			if errors.Is(err, errIndexOutOfBounds) {
				r.logger.Warningf("[%s: %d] skipping face: %s", res.Path(), lineNum, err.Error())
				r.skippedFaces++
				continue
			} else if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			// If no object has been defined create a default one
			if len(r.rawScene.Meshes) == 0 {
				r.beginMesh("default")
			}
			r.appendFace(faceIndices)
		case "instance":
			instance, err := r.parseMeshInstance(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.rawScene.MeshInstances = append(r.rawScene.MeshInstances, instance)
		case "vt", "vn", "mtllib", "usemtl", "s", "l":
			// Only positions are needed for building hierarchies.
		default:
			r.logger.Debugf(`[%s: %d] ignoring unsupported statement "%s"`, res.Path(), lineNum, lineTokens[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return r.emitError(res.Path(), lineNum, "%s", err.Error())
	}

	r.verifyLastParsedMesh()
	return nil
}

// Append a triangle or quad to the current mesh. Quads are split in two
// triangles.
func (r *wavefrontSceneReader) appendFace(faceIndices []int) {
	mesh := r.rawScene.Meshes[len(r.rawScene.Meshes)-1]

	var local [4]uint32
	for arg, globalIndex := range faceIndices {
		localIndex, exists := r.vertexRemap[globalIndex]
		if !exists {
			localIndex = mesh.AddVertex(r.vertexList[globalIndex])
			r.vertexRemap[globalIndex] = localIndex
		}
		local[arg] = localIndex
	}

	mesh.AddTriangle(local[0], local[1], local[2])
	if len(faceIndices) == 4 {
		mesh.AddTriangle(local[0], local[2], local[3])
	}
}

// Drop the last parsed mesh if it contains no triangles.
func (r *wavefrontSceneReader) verifyLastParsedMesh() {
	lastMeshIndex := len(r.rawScene.Meshes) - 1
	if lastMeshIndex >= 0 && r.rawScene.Meshes[lastMeshIndex].TriangleCount() == 0 {
		r.logger.Warningf(`dropping mesh "%s" as it contains no polygons`, r.rawScene.Meshes[lastMeshIndex].Name)
		r.rawScene.Meshes = r.rawScene.Meshes[:lastMeshIndex]
	}
}

// Parse mesh instance definition. Definitions use the following format:
// instance mesh_name tX tY tZ yaw pitch roll sX sY sZ
// where:
// - tX, tY, tZ       : translation vector
// - yaw, pitch, roll : rotation angles in degrees
// - sX, sY, sZ	      : scale
func (r *wavefrontSceneReader) parseMeshInstance(lineTokens []string) (*input.MeshInstance, error) {
	if len(lineTokens) != 11 {
		return nil, fmt.Errorf(`unsupported syntax for "instance"; expected 10 arguments: mesh_name tX tY tZ yaw pitch roll sX sY sZ; got %d`, len(lineTokens)-1)
	}

	meshName := lineTokens[1]
	meshIndex := r.rawScene.MeshIndex(meshName)
	if meshIndex == -1 {
		return nil, fmt.Errorf(`unknown mesh with name "%s"`, meshName)
	}

	var params [9]float32
	for index := range params {
		v, err := strconv.ParseFloat(lineTokens[index+2], 32)
		if err != nil {
			return nil, err
		}
		params[index] = float32(v)
	}

	translation := types.Vec3{params[0], params[1], params[2]}
	rotation := types.Vec3{params[3], params[4], params[5]}.Mul(math.Pi / 180.0)
	scale := types.Vec3{params[6], params[7], params[8]}

	return &input.MeshInstance{
		MeshIndex: uint32(meshIndex),
		Transform: types.TRS(translation, rotation, scale),
	}, nil
}

// Parse face definition. Each face definitions consists of 3 or 4 arguments,
// one for each vertex. Each one of the vertex arguments is comprised of
// 1, 2 or 3 args separated by a slash character. The following formats are
// supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Only the vertex index is used. Indices start from 1 and may be negative
// to indicate an offset off the end of the vertex list. The returned
// indices point into the global vertex list.
func (r *wavefrontSceneReader) parseFace(lineTokens []string, relVertexOffset int) ([]int, error) {
	if len(lineTokens) < 4 || len(lineTokens) > 5 {
		return nil, fmt.Errorf(`unsupported syntax for "f"; expected 3 arguments for triangular face or 4 arguments for a quad face; got %d. Select the triangulation option in your exporter`, len(lineTokens)-1)
	}

	faceIndices := make([]int, 0, 4)
	expIndices := 0
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return nil, fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return nil, fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return nil, fmt.Errorf("could not parse vertex coord for face argument %d: %w", arg, err)
		}
		faceIndices = append(faceIndices, vOffset)
	}

	return faceIndices, nil
}

// Given an index for a face coord calculate the proper offset into the coord
// list. Wavefront format can also use negative indices to reference elements
// from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if index == 0 || vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("%w: %d", errIndexOutOfBounds, index)
	}
	return vOffset, nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
