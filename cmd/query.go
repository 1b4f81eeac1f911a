package cmd

import (
	"errors"
	"maps"
	"math"
	"slices"

	"github.com/achilleasa/accel/bvh"
	"github.com/urfave/cli"
)

// Cast a single ray into the scene and report the closest hit.
func Raycast(ctx *cli.Context) error {
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}

	origin, err := vec3Flag(ctx, "origin")
	if err != nil {
		return err
	}
	dir, err := vec3Flag(ctx, "dir")
	if err != nil {
		return err
	}
	if dir.LenSqr() == 0 {
		return errors.New("--dir must be a non-zero vector")
	}

	tMax := float32(ctx.Float64("tmax"))
	if tMax <= 0 {
		tMax = float32(math.Inf(1))
	}

	reg, err := loadScene(ctx, cfg)
	if err != nil {
		return err
	}

	ray := bvh.NewRay(origin, dir.Normalize())
	if ctx.Bool("any") {
		logger.Noticef("occluded: %t", reg.Occluded(ray, tMax))
		return nil
	}

	hit, ok := reg.Intersect(ray, tMax)
	if !ok {
		logger.Notice("no hit")
		return nil
	}

	logger.Noticef(
		"hit instance %d (mesh %d, triangle %d) at t=%.4f, point %v, barycentrics (%.4f, %.4f)",
		hit.InstanceIndex, hit.MeshIndex, hit.TriangleIndex, hit.T, ray.At(hit.T), hit.U, hit.V,
	)
	return nil
}

// Sweep a sphere through the scene and report every resolved contact.
func Sweep(ctx *cli.Context) error {
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}

	from, err := vec3Flag(ctx, "from")
	if err != nil {
		return err
	}
	to, err := vec3Flag(ctx, "to")
	if err != nil {
		return err
	}
	radius := float32(ctx.Float64("radius"))
	if radius <= 0 {
		return errors.New("--radius must be positive")
	}

	reg, err := loadScene(ctx, cfg)
	if err != nil {
		return err
	}

	sphere := bvh.Sphere{Center: from, Radius: radius}
	res := reg.SweepSphere(cfg.Sweep, sphere, to, to.Sub(from), func(hit bvh.SweepHit) {
		logger.Infof(
			"contact with instance %d (mesh %d, triangle %d) at step fraction %.4f: point %v, normal %v, penetration %.4f",
			hit.InstanceIndex, hit.MeshIndex, hit.TriangleIndex, hit.Time, hit.Point, hit.Normal, hit.Penetration,
		)
	})

	if res.Exhausted {
		logger.Warningf("sweep stopped after %d contacts; increase sweep.recursive_steps for a more accurate result", res.Hits)
	}
	logger.Noticef("final position %v (%d contacts), velocity %v", res.Position, res.Hits, res.Velocity)
	return nil
}

// List the triangles that overlap a box.
func QueryBox(ctx *cli.Context) error {
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}

	boxMin, err := vec3Flag(ctx, "min")
	if err != nil {
		return err
	}
	boxMax, err := vec3Flag(ctx, "max")
	if err != nil {
		return err
	}
	box := bvh.BoxFromPoints(boxMin, boxMax)

	reg, err := loadScene(ctx, cfg)
	if err != nil {
		return err
	}

	perInstance := make(map[uint32]int)
	count := 0
	visit := func(hit bvh.BoxHit) {
		logger.Debugf("instance %d, mesh %d, triangle %d: %v", hit.InstanceIndex, hit.MeshIndex, hit.TriangleIndex, hit.Positions)
		perInstance[hit.InstanceIndex]++
		count++
	}
	if ctx.Bool("exact") {
		reg.IntersectBoxExact(box, visit)
	} else {
		for hit := range reg.QueryBox(box) {
			visit(hit)
		}
	}

	for _, instIndex := range slices.Sorted(maps.Keys(perInstance)) {
		logger.Infof("instance %d: %d triangles", instIndex, perInstance[instIndex])
	}
	logger.Noticef("%d triangles from %d instances overlap the box", count, len(perInstance))
	return nil
}
