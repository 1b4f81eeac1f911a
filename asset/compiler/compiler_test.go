package compiler

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/achilleasa/accel/asset/compiler/input"
	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/registry"
	"github.com/achilleasa/accel/types"
)

func quadMesh(name string) *input.Mesh {
	mesh := input.NewMesh(name)
	for _, v := range []types.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}} {
		mesh.AddVertex(v)
	}
	mesh.AddTriangle(0, 1, 2)
	mesh.AddTriangle(0, 2, 3)
	return mesh
}

func TestCompile(t *testing.T) {
	sc := input.NewScene()
	sc.Meshes = append(sc.Meshes, quadMesh("a"), quadMesh("b"))
	sc.MeshInstances = append(sc.MeshInstances,
		&input.MeshInstance{MeshIndex: 0, Transform: types.Ident4()},
		&input.MeshInstance{MeshIndex: 1, Transform: types.Translate4(types.XYZ(4, 0, 0))},
		&input.MeshInstance{MeshIndex: 1, Transform: types.Translate4(types.XYZ(0, 0, -3))},
	)

	reg, err := Compile(context.Background(), sc, registry.Options{Build: bvh.Options{Workers: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if reg.MeshCount() != 2 {
		t.Fatalf("expected 2 meshes; got %d", reg.MeshCount())
	}
	if reg.Pending() {
		t.Fatal("expected compiled registry to have no pending changes")
	}

	specs := []struct {
		origin  types.Vec3
		expHit  bool
		expInst uint32
		expT    float32
	}{
		{types.XYZ(0.6, 0.3, 5), true, 0, 5},
		{types.XYZ(4.6, 0.3, 5), true, 1, 5},
		{types.XYZ(2.5, 0.5, 5), false, 0, 0},
	}

	inf := float32(math.Inf(1))
	for specIndex, spec := range specs {
		hit, ok := reg.Intersect(bvh.NewRay(spec.origin, types.XYZ(0, 0, -1)), inf)
		if ok != spec.expHit {
			t.Errorf("[spec %d] expected hit to be %t; got %t", specIndex, spec.expHit, ok)
			continue
		}
		if !ok {
			continue
		}
		if hit.InstanceIndex != spec.expInst {
			t.Errorf("[spec %d] expected instance %d; got %d", specIndex, spec.expInst, hit.InstanceIndex)
		}
		if math.Abs(float64(hit.T-spec.expT)) > 1e-5 {
			t.Errorf("[spec %d] expected t = %f; got %f", specIndex, spec.expT, hit.T)
		}
	}

	// The instance below the first one is only visible to occlusion rays
	// that start between both quads.
	if !reg.Occluded(bvh.NewRay(types.XYZ(0.6, 0.3, -1), types.XYZ(0, 0, -1)), inf) {
		t.Fatal("expected ray to be occluded by the lower instance")
	}
}

func TestCompileInvalidMeshIndex(t *testing.T) {
	sc := input.NewScene()
	sc.Meshes = append(sc.Meshes, quadMesh("a"))
	sc.MeshInstances = append(sc.MeshInstances, &input.MeshInstance{MeshIndex: 2, Transform: types.Ident4()})

	_, err := Compile(context.Background(), sc, registry.Options{})
	if !errors.Is(err, bvh.ErrInvalidMeshIndex) {
		t.Fatalf("expected error %v; got %v", bvh.ErrInvalidMeshIndex, err)
	}
}

func TestCompileEmptyScene(t *testing.T) {
	reg, err := Compile(context.Background(), input.NewScene(), registry.Options{})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := reg.Intersect(bvh.NewRay(types.XYZ(0, 0, 5), types.XYZ(0, 0, -1)), 100); ok {
		t.Fatal("expected no hit in an empty scene")
	}
	reg.View(func(tlas *bvh.Tlas, _ []*bvh.Geometry) {
		if tlas.State() != bvh.Empty {
			t.Fatalf("expected state %s; got %s", bvh.Empty, tlas.State())
		}
	})
}
