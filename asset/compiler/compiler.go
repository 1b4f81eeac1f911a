package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/achilleasa/accel/asset/compiler/input"
	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/log"
	"github.com/achilleasa/accel/registry"
)

type sceneCompiler struct {
	parsedScene *input.Scene
	opts        registry.Options
	logger      log.Logger

	geoms  []*bvh.Geometry
	blases []*bvh.Blas
	tlas   *bvh.Tlas
}

// Compile a scene representation parsed by a scene reader into a registry
// holding a two-level hierarchy over the scene geometry.
func Compile(ctx context.Context, parsedScene *input.Scene, opts registry.Options) (*registry.Registry, error) {
	compiler := &sceneCompiler{
		parsedScene: parsedScene,
		opts:        opts,
		logger:      log.New("scene compiler"),
	}

	start := time.Now()
	compiler.logger.Noticef("compiling scene")

	err := compiler.partitionMeshes(ctx)
	if err != nil {
		return nil, err
	}

	err = compiler.partitionInstances()
	if err != nil {
		return nil, err
	}

	compiler.logger.Noticef("compiled scene in %d ms", time.Since(start).Milliseconds())
	return registry.NewFromTlas(compiler.geoms, compiler.tlas, opts)
}

// Build a BVH tree for each scene mesh. Meshes are processed in parallel.
func (sc *sceneCompiler) partitionMeshes(ctx context.Context) error {
	start := time.Now()
	sc.logger.Notice("partitioning geometry")

	sc.geoms = make([]*bvh.Geometry, len(sc.parsedScene.Meshes))
	for index, pm := range sc.parsedScene.Meshes {
		sc.logger.Infof(`building BVH tree for "%s" (%d primitives)`, pm.Name, pm.TriangleCount())
		sc.geoms[index] = pm.Geometry()
	}

	var err error
	sc.blases, err = bvh.BuildBlases(ctx, sc.geoms, sc.opts.Build)
	if err != nil {
		return err
	}

	for _, blas := range sc.blases {
		stats := blas.Stats()
		sc.logger.Debugf(`mesh "%s": %d nodes, %d leaves, depth %d, SAH cost %.2f`, blas.Name, stats.Nodes, stats.Leaves, stats.MaxDepth, stats.SAHCost)
	}

	sc.logger.Noticef("partitioned %d meshes in %d ms", len(sc.blases), time.Since(start).Milliseconds())
	return nil
}

// Build the scene BVH tree so that each mesh instance ends up in its own leaf.
func (sc *sceneCompiler) partitionInstances() error {
	sc.logger.Infof("building scene BVH tree (%d meshes, %d mesh instances)", len(sc.parsedScene.Meshes), len(sc.parsedScene.MeshInstances))

	var err error
	sc.tlas, err = bvh.NewTlas(sc.opts.Build)
	if err != nil {
		return err
	}
	sc.tlas.SetBlases(sc.blases)

	instances := make([]bvh.Instance, len(sc.parsedScene.MeshInstances))
	for index, pmi := range sc.parsedScene.MeshInstances {
		instances[index] = bvh.NewInstance(pmi.MeshIndex, pmi.Transform)
	}
	if _, err = sc.tlas.AddInstances(instances...); err != nil {
		return fmt.Errorf("compiler: %w", err)
	}

	return sc.tlas.Build()
}
