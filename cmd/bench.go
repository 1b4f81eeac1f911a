package cmd

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/registry"
	"github.com/achilleasa/accel/types"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"
)

// Number of rays traced by a bench worker between context checks.
const benchBatchSize = 1024

// BenchResult summarizes a ray benchmark run.
type BenchResult struct {
	Rays     int
	Hits     int64
	Occluded int64
	Elapsed  time.Duration
}

// RaysPerSecond returns the measured query throughput.
func (r BenchResult) RaysPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Rays) / r.Elapsed.Seconds()
}

// Generate rays that start on a sphere enclosing the scene and point to a
// random location inside the scene bounds.
func benchRays(bounds bvh.Box, count int, seed int64) []bvh.Ray {
	rng := rand.New(rand.NewSource(seed))
	center := bounds.Center()
	radius := max(bounds.HalfSize().Len()*2, 1)

	randomPoint := func() types.Vec3 {
		return types.XYZ(
			bounds.Min[0]+rng.Float32()*(bounds.Max[0]-bounds.Min[0]),
			bounds.Min[1]+rng.Float32()*(bounds.Max[1]-bounds.Min[1]),
			bounds.Min[2]+rng.Float32()*(bounds.Max[2]-bounds.Min[2]),
		)
	}

	rays := make([]bvh.Ray, 0, count)
	for len(rays) < count {
		dir := types.XYZ(float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64()))
		if dir.LenSqr() == 0 {
			continue
		}
		origin := center.Add(dir.Normalize().Mul(radius))
		toTarget := randomPoint().Sub(origin)
		if toTarget.LenSqr() == 0 {
			continue
		}
		rays = append(rays, bvh.NewRay(origin, toTarget.Normalize()))
	}
	return rays
}

// Trace the rays using a pool of workers that query the registry
// concurrently. Each ray is submitted both as a closest hit and as an any
// hit query.
func runBench(ctx context.Context, reg *registry.Registry, rays []bvh.Ray, workers int) (BenchResult, error) {
	res := BenchResult{Rays: len(rays)}
	if workers <= 0 {
		workers = bvh.DefaultOptions().Workers
	}

	var hits, occluded atomic.Int64
	inf := float32(math.Inf(1))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for first := 0; first < len(rays); first += benchBatchSize {
		batch := rays[first:min(first+benchBatchSize, len(rays))]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for _, ray := range batch {
				if _, ok := reg.Intersect(ray, inf); ok {
					hits.Add(1)
				}
				if reg.Occluded(ray, inf) {
					occluded.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(start)
	res.Hits, res.Occluded = hits.Load(), occluded.Load()
	if res.Hits != res.Occluded {
		logger.Warningf("closest hit queries reported %d hits; any hit queries reported %d", res.Hits, res.Occluded)
	}
	return res, nil
}

// Displace the vertices of every mesh and time the refit of the hierarchies.
func runRefitBench(ctx context.Context, reg *registry.Registry, iterations int) (time.Duration, error) {
	meshCount := reg.MeshCount()
	rest := make([][]types.Vec3, meshCount)
	for meshIndex := range rest {
		geom, err := reg.Geometry(uint32(meshIndex))
		if err != nil {
			return 0, err
		}
		rest[meshIndex] = append([]types.Vec3(nil), geom.Vertices...)
	}

	var total time.Duration
	for iteration := 0; iteration < iterations; iteration++ {
		phase := float32(iteration+1) * 0.1
		for meshIndex, verts := range rest {
			moved := make([]types.Vec3, len(verts))
			for i, v := range verts {
				wobble := float32(math.Sin(float64(phase + v[0])))
				moved[i] = v.Add(types.XYZ(0, 0.01*wobble, 0))
			}
			if err := reg.UpdateVertices(uint32(meshIndex), moved); err != nil {
				return total, err
			}
		}

		start := time.Now()
		reg.RefitNow()
		if err := reg.Update(ctx); err != nil {
			return total, err
		}
		total += time.Since(start)
	}
	return total, nil
}

// Benchmark ray queries and refits against a scene.
func Bench(ctx *cli.Context) error {
	cfg, err := setup(ctx)
	if err != nil {
		return err
	}

	rayCount := ctx.Int("rays")
	if rayCount <= 0 {
		return errors.New("--rays must be positive")
	}

	reg, err := loadScene(ctx, cfg)
	if err != nil {
		return err
	}

	var bounds bvh.Box
	reg.View(func(tlas *bvh.Tlas, _ []*bvh.Geometry) {
		bounds = tlas.Bounds()
	})
	if bounds.IsEmpty() {
		return errors.New("scene does not contain any geometry")
	}

	rays := benchRays(bounds, rayCount, ctx.Int64("seed"))
	res, err := runBench(context.Background(), reg, rays, cfg.Registry.Build.Workers)
	if err != nil {
		return err
	}
	logger.Noticef(
		"traced %d rays in %d ms (%.0f rays/s, %d hits)",
		res.Rays, res.Elapsed.Milliseconds(), res.RaysPerSecond(), res.Hits,
	)

	if iterations := ctx.Int("refits"); iterations > 0 {
		elapsed, err := runRefitBench(context.Background(), reg, iterations)
		if err != nil {
			return err
		}
		logger.Noticef("refitted %d meshes %d times in %d ms", reg.MeshCount(), iterations, elapsed.Milliseconds())
	}
	return nil
}
