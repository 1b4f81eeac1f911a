package registry

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/achilleasa/accel/bvh"
	"github.com/achilleasa/accel/log"
	"github.com/achilleasa/accel/types"
	"golang.org/x/sync/errgroup"
)

// Options configures a Registry.
type Options struct {
	// Options for building mesh and instance hierarchies.
	Build bvh.Options `toml:"build"`

	// If set, Update refits every mesh whose vertices changed. Otherwise
	// refits only happen after an explicit call to RefitNow.
	ContinuousRefit bool `toml:"continuous_refit"`
}

// Registry owns the geometry of a dynamic scene together with its two-level
// hierarchy. Mutations are recorded and applied by Update with the cheapest
// operation that keeps the hierarchy valid. All methods are safe for
// concurrent use; queries wait for an in-flight Update to complete.
type Registry struct {
	logger log.Logger

	mu    sync.RWMutex
	opts  Options
	geoms []*bvh.Geometry
	tlas  *bvh.Tlas

	// Per mesh pending work.
	needsRefit   []bool
	needsRebuild []bool

	refitRequested bool
}

// Create an empty registry.
func New(opts Options) (*Registry, error) {
	tlas, err := bvh.NewTlas(opts.Build)
	if err != nil {
		return nil, err
	}

	return &Registry{
		logger: log.New("registry"),
		opts:   opts,
		tlas:   tlas,
	}, nil
}

// NewFromTlas creates a registry around an already built hierarchy. geoms
// must contain the geometry of each mesh referenced by the hierarchy, in
// mesh index order.
func NewFromTlas(geoms []*bvh.Geometry, tlas *bvh.Tlas, opts Options) (*Registry, error) {
	if len(geoms) != len(tlas.Blases) {
		return nil, fmt.Errorf("registry: got %d geometries for %d meshes", len(geoms), len(tlas.Blases))
	}

	return &Registry{
		logger:       log.New("registry"),
		opts:         opts,
		geoms:        geoms,
		tlas:         tlas,
		needsRefit:   make([]bool, len(geoms)),
		needsRebuild: make([]bool, len(geoms)),
	}, nil
}

// Options returns the registry options.
func (r *Registry) Options() Options {
	return r.opts
}

// AddMesh registers a mesh and returns its index. The mesh hierarchy is
// built by the next call to Update; until then instances of the mesh are
// not visible to queries.
func (r *Registry) AddMesh(geom *bvh.Geometry) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.geoms = append(r.geoms, geom)
	r.needsRefit = append(r.needsRefit, false)
	r.needsRebuild = append(r.needsRebuild, true)
	return r.tlas.AddBlas(&bvh.Blas{Name: geom.Name})
}

// AddInstance places a mesh in the world and returns the instance index.
func (r *Registry) AddInstance(meshIndex uint32, transform types.Mat4) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tlas.AddInstances(bvh.NewInstance(meshIndex, transform))
}

// SetInstanceTransform moves an instance.
func (r *Registry) SetInstanceTransform(index uint32, transform types.Mat4) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tlas.SetTransform(index, transform)
}

// UpdateVertices replaces the vertex positions of a mesh. The number of
// vertices must not change; use ReplaceGeometry for topology changes. The
// mesh hierarchy is refit by Update when continuous refitting is enabled or
// after a call to RefitNow.
func (r *Registry) UpdateVertices(meshIndex uint32, vertices []types.Vec3) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	geom, err := r.geometry(meshIndex)
	if err != nil {
		return err
	}
	if len(vertices) != len(geom.Vertices) {
		return fmt.Errorf("registry: mesh %q has %d vertices; got %d: %w", geom.Name, len(geom.Vertices), len(vertices), bvh.ErrTopologyChanged)
	}

	geom.Vertices = vertices
	r.needsRefit[meshIndex] = true
	r.tlas.Blases[meshIndex].MarkStale()
	return nil
}

// ReplaceGeometry swaps the geometry of a mesh. The mesh hierarchy is
// rebuilt by the next call to Update.
func (r *Registry) ReplaceGeometry(meshIndex uint32, geom *bvh.Geometry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.geometry(meshIndex); err != nil {
		return err
	}
	r.geoms[meshIndex] = geom
	r.needsRebuild[meshIndex] = true
	r.needsRefit[meshIndex] = false
	return nil
}

// RefitNow requests that the next call to Update refits every mesh whose
// vertices changed.
func (r *Registry) RefitNow() {
	r.mu.Lock()
	r.refitRequested = true
	r.mu.Unlock()
}

// Update applies all pending changes. Meshes with a new topology are rebuilt
// in parallel, meshes with moved vertices are refit and finally the instance
// hierarchy is rebuilt (instance or mesh set changed) or refit (instances
// moved).
func (r *Registry) Update(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	rebuilt, err := r.rebuildMeshes(ctx)
	if err != nil {
		return err
	}

	refit := 0
	if r.opts.ContinuousRefit || r.refitRequested {
		if refit, err = r.refitMeshes(ctx); err != nil {
			return err
		}
		r.refitRequested = false
	}

	if err = r.tlas.Update(); err != nil {
		return err
	}

	if rebuilt+refit > 0 {
		r.logger.Debugf("update: rebuilt %d and refit %d meshes in %d ms", rebuilt, refit, time.Since(start).Milliseconds())
	}
	return nil
}

func (r *Registry) rebuildMeshes(ctx context.Context) (int, error) {
	var (
		indices []uint32
		geoms   []*bvh.Geometry
	)
	for index, pending := range r.needsRebuild {
		if pending {
			indices = append(indices, uint32(index))
			geoms = append(geoms, r.geoms[index])
		}
	}
	if len(geoms) == 0 {
		return 0, nil
	}

	blases, err := bvh.BuildBlases(ctx, geoms, r.opts.Build)
	if err != nil {
		return 0, err
	}
	for i, meshIndex := range indices {
		if err = r.tlas.ReplaceBlas(meshIndex, blases[i]); err != nil {
			return 0, err
		}
		r.needsRebuild[meshIndex] = false
	}
	return len(indices), nil
}

func (r *Registry) refitMeshes(ctx context.Context) (int, error) {
	workers := r.opts.Build.Workers
	if workers <= 0 {
		workers = bvh.DefaultOptions().Workers
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	refit := 0
	for index, pending := range r.needsRefit {
		if !pending {
			continue
		}
		refit++
		blas := r.tlas.Blases[index]
		geom := r.geoms[index]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return blas.Refit(geom.Vertices)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	for index := range r.needsRefit {
		r.needsRefit[index] = false
	}
	if refit > 0 {
		r.tlas.MarkMoved()
	}
	return refit, nil
}

func (r *Registry) geometry(meshIndex uint32) (*bvh.Geometry, error) {
	if int(meshIndex) >= len(r.geoms) {
		return nil, fmt.Errorf("registry: %w: %d", bvh.ErrInvalidMeshIndex, meshIndex)
	}
	return r.geoms[meshIndex], nil
}

// Get the number of registered meshes.
func (r *Registry) MeshCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.geoms)
}

// Get the geometry of a mesh.
func (r *Registry) Geometry(meshIndex uint32) (*bvh.Geometry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.geometry(meshIndex)
}

// Pending returns true if there are recorded changes that were not applied
// yet.
func (r *Registry) Pending() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for index := range r.geoms {
		if r.needsRebuild[index] || r.needsRefit[index] {
			return true
		}
	}
	return r.tlas.State() == bvh.Stale
}

// View invokes fn with the instance hierarchy and the mesh geometries while
// holding a read lock. fn must not retain or modify its arguments and must
// not call any Registry method that mutates the registry.
func (r *Registry) View(fn func(tlas *bvh.Tlas, geoms []*bvh.Geometry)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn(r.tlas, r.geoms)
}

// Intersect returns the closest hit along a ray with 0 < t < tMax.
func (r *Registry) Intersect(ray bvh.Ray, tMax float32) (bvh.Hit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tlas.Intersect(ray, tMax)
}

// Occluded returns true if anything lies along the ray with 0 < t < tMax.
func (r *Registry) Occluded(ray bvh.Ray, tMax float32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tlas.Occluded(ray, tMax)
}

// QueryBox yields the triangles whose box overlaps the query box. The read
// lock is held until the iteration completes.
func (r *Registry) QueryBox(box bvh.Box) iter.Seq[bvh.BoxHit] {
	return func(yield func(bvh.BoxHit) bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for hit := range r.tlas.QueryBox(box) {
			if !yield(hit) {
				return
			}
		}
	}
}

// IntersectBoxExact invokes visitor for every triangle that intersects the
// box itself rather than just its bounding box.
func (r *Registry) IntersectBoxExact(box bvh.Box, visitor func(hit bvh.BoxHit)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	r.tlas.IntersectBoxExact(box, visitor)
}

// SweepSphere moves a sphere towards target while sliding along the scene
// geometry.
func (r *Registry) SweepSphere(settings bvh.SweepSettings, sphere bvh.Sphere, target, velocity types.Vec3, onHit func(hit bvh.SweepHit)) bvh.SweepResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return bvh.SweepSphere(r.tlas, settings, sphere, target, velocity, onHit)
}
