package bvh

import (
	"github.com/achilleasa/accel/types"
	"github.com/chewxy/math32"
)

// Motion shorter than this is considered to be fully resolved.
const minSweepMotion float32 = 1e-6

type Sphere struct {
	Center types.Vec3
	Radius float32
}

// Box returns the bounding box of the sphere.
func (s Sphere) Box() Box {
	return Box{Min: s.Center, Max: s.Center}.Expand(s.Radius)
}

// Plane is defined by a unit normal and the signed distance of the plane
// from the origin along that normal.
type Plane struct {
	Normal   types.Vec3
	Distance float32
}

// Create a plane from a unit normal and a point on the plane.
func PlaneFromPoint(normal, point types.Vec3) Plane {
	return Plane{Normal: normal, Distance: normal.Dot(point)}
}

// Project removes the component of v along the plane normal.
func (p Plane) Project(v types.Vec3) types.Vec3 {
	return v.Sub(p.Normal.Mul(v.Dot(p.Normal)))
}

// SignedDistance returns the distance of point from the plane; positive on
// the side the normal points to.
func (p Plane) SignedDistance(point types.Vec3) float32 {
	return p.Normal.Dot(point) - p.Distance
}

// SweepSettings bounds the amount of work performed by SweepSphere.
type SweepSettings struct {
	// Number of sub-steps the remaining motion is split into per iteration.
	TestSteps int `toml:"test_steps"`

	// Max number of contact corrections.
	RecursiveSteps int `toml:"recursive_steps"`

	// Extra distance the sphere is pushed away from a contact.
	EpsilonNormalOffset float32 `toml:"epsilon_normal_offset"`
}

// DefaultSweepSettings returns the settings used when a field is left unset.
func DefaultSweepSettings() SweepSettings {
	return SweepSettings{
		TestSteps:           3,
		RecursiveSteps:      12,
		EpsilonNormalOffset: 0.001,
	}
}

func (s SweepSettings) withDefaults() SweepSettings {
	def := DefaultSweepSettings()
	if s.TestSteps <= 0 {
		s.TestSteps = def.TestSteps
	}
	if s.RecursiveSteps <= 0 {
		s.RecursiveSteps = def.RecursiveSteps
	}
	if s.EpsilonNormalOffset <= 0 {
		s.EpsilonNormalOffset = def.EpsilonNormalOffset
	}
	return s
}

// SweepHit describes a contact resolved by SweepSphere.
type SweepHit struct {
	BoxHit

	// The contact point on the triangle.
	Point types.Vec3

	// Contact normal pointing from the triangle towards the sphere center.
	Normal types.Vec3

	// Fraction of the sub-step travelled before the contact.
	Time float32

	// Overlap depth of triangles that already intersected the sphere when
	// the sub-step started; zero for contacts found along the motion.
	Penetration float32

	// Plane that the remaining motion and the velocity were projected on.
	SlidingPlane Plane

	// Sphere center after it was pushed out of the triangle.
	Center types.Vec3
}

// SweepResult is the outcome of SweepSphere.
type SweepResult struct {
	// Final sphere center.
	Position types.Vec3

	// Velocity after projection onto every sliding plane.
	Velocity types.Vec3

	// Number of resolved contacts.
	Hits int

	// True if the step limits were reached while contacts were still being
	// resolved. The returned position is valid but may fall short of the
	// target.
	Exhausted bool
}

// SweepSphere moves a sphere towards target. Every iteration advances the
// sphere along the remaining motion in settings.TestSteps sub-steps. Each
// sub-step collects the triangles inside the swept box of the sphere and
// moves the sphere up to the earliest contact. The contact is resolved by
// pushing the sphere away from the triangle along the contact normal; the
// remaining motion and the velocity are projected onto the sliding plane
// and onHit (if not nil) is invoked. The sweep ends when an iteration
// completes without contacts or after settings.RecursiveSteps contacts have
// been resolved; the latter sets Exhausted.
func SweepSphere(tlas *Tlas, settings SweepSettings, sphere Sphere, target, velocity types.Vec3, onHit func(hit SweepHit)) SweepResult {
	settings = settings.withDefaults()

	res := SweepResult{Position: sphere.Center, Velocity: velocity}
	remaining := target.Sub(sphere.Center)

	for iteration := 0; ; iteration++ {
		// Once the motion is used up keep testing in place so that contacts
		// introduced by the last push-out are resolved too.
		steps := settings.TestSteps
		if remaining.Len() < minSweepMotion {
			remaining = types.Vec3{}
			steps = 1
		}

		step := remaining.Mul(1.0 / float32(steps))
		contact := false
		for i := 0; i < steps; i++ {
			hit, ok := earliestContact(tlas, Sphere{Center: res.Position, Radius: sphere.Radius}, step)
			if !ok {
				res.Position = res.Position.Add(step)
				remaining = remaining.Sub(step)
				continue
			}

			travelled := step.Mul(hit.Time)
			remaining = remaining.Sub(travelled)
			res.Position = res.Position.Add(travelled).Add(hit.Normal.Mul(hit.Penetration + settings.EpsilonNormalOffset))
			hit.SlidingPlane = PlaneFromPoint(hit.Normal, hit.Point)
			hit.Center = res.Position
			remaining = hit.SlidingPlane.Project(remaining)
			res.Velocity = hit.SlidingPlane.Project(res.Velocity)
			res.Hits++
			if onHit != nil {
				onHit(hit)
			}
			contact = true
			break
		}

		if !contact {
			return res
		}
		if iteration+1 >= settings.RecursiveSteps {
			res.Exhausted = true
			return res
		}
	}
}

// Find the first triangle touched by the sphere while it moves by motion.
// Overlapping triangles are reported at time zero; ties are broken by the
// overlap depth.
func earliestContact(tlas *Tlas, sphere Sphere, motion types.Vec3) (SweepHit, bool) {
	var best SweepHit
	found := false

	end := Sphere{Center: sphere.Center.Add(motion), Radius: sphere.Radius}
	for candidate := range tlas.QueryBox(sphere.Box().Union(end.Box())) {
		hit, ok := sweepSphereTriangle(sphere, motion, candidate.Positions)
		if !ok {
			continue
		}
		if found && (hit.Time > best.Time || (hit.Time == best.Time && hit.Penetration <= best.Penetration)) {
			continue
		}

		hit.BoxHit = candidate
		best = hit
		found = true
	}

	return best, found
}

// Compute the contact between a sphere moving by motion and a triangle. The
// triangle is treated as double sided. The earliest of the face, edge and
// vertex contacts wins.
func sweepSphereTriangle(sphere Sphere, motion types.Vec3, tri [3]types.Vec3) (SweepHit, bool) {
	a, b, c := tri[0], tri[1], tri[2]
	radius := sphere.Radius
	faceNormal := b.Sub(a).Cross(c.Sub(a))

	closest := ClosestPointOnTriangle(sphere.Center, a, b, c)
	delta := sphere.Center.Sub(closest)
	if distSq := delta.LenSqr(); distSq < radius*radius {
		dist := math32.Sqrt(distSq)
		var normal types.Vec3
		if dist > minSweepMotion {
			normal = delta.Mul(1 / dist)
		} else {
			// The center lies on the triangle; face against the motion.
			normal = faceNormal.Normalize()
			if normal.Dot(motion) > 0 {
				normal = normal.Mul(-1)
			}
		}
		return SweepHit{Point: closest, Normal: normal, Penetration: radius - dist}, true
	}

	bestT := math32.Inf(1)
	var point types.Vec3

	// Face interior: the sphere touches the plane offset by the radius.
	if faceNormal.LenSqr() > 0 {
		n := faceNormal.Normalize()
		dist := n.Dot(sphere.Center.Sub(a))
		if dist < 0 {
			n, dist = n.Mul(-1), -dist
		}
		if approach := -n.Dot(motion); approach > 0 {
			t := max((dist-radius)/approach, 0)
			p := sphere.Center.Add(motion.Mul(t)).Sub(n.Mul(dist - approach*t))
			if t <= 1 && pointInTriangle(p, a, b, c, faceNormal) {
				bestT, point = t, p
			}
		}
	}

	for _, edge := range [3][2]types.Vec3{{a, b}, {b, c}, {c, a}} {
		if t, p, ok := sweepSphereSegment(sphere, motion, edge[0], edge[1]); ok && t < bestT {
			bestT, point = t, p
		}
	}
	for _, v := range tri {
		if t, ok := sweepSpherePoint(sphere, motion, v); ok && t < bestT {
			bestT, point = t, v
		}
	}

	if bestT > 1 {
		return SweepHit{}, false
	}

	center := sphere.Center.Add(motion.Mul(bestT))
	return SweepHit{Point: point, Normal: center.Sub(point).Normalize(), Time: bestT}, true
}

// Time at which a moving sphere first touches point p.
func sweepSpherePoint(sphere Sphere, motion, p types.Vec3) (float32, bool) {
	m := sphere.Center.Sub(p)
	a := motion.Dot(motion)
	b := m.Dot(motion)
	c := m.Dot(m) - sphere.Radius*sphere.Radius
	if a == 0 || b >= 0 {
		return 0, false
	}

	disc := b*b - a*c
	if disc < 0 {
		return 0, false
	}
	t := max((-b-math32.Sqrt(disc))/a, 0)
	return t, t <= 1
}

// Time at which a moving sphere first touches the interior of segment
// p0-p1 and the touched point. Motion parallel to the segment is left to the
// end point tests.
func sweepSphereSegment(sphere Sphere, motion, p0, p1 types.Vec3) (float32, types.Vec3, bool) {
	e := p1.Sub(p0)
	m := sphere.Center.Sub(p0)
	ee := e.Dot(e)
	ed := e.Dot(motion)
	em := e.Dot(m)

	a := ee*motion.Dot(motion) - ed*ed
	if ee == 0 || a <= 1e-9*ee*motion.LenSqr() {
		return 0, types.Vec3{}, false
	}
	b := ee*m.Dot(motion) - ed*em
	c := ee*(m.Dot(m)-sphere.Radius*sphere.Radius) - em*em
	disc := b*b - a*c
	if b >= 0 || disc < 0 {
		return 0, types.Vec3{}, false
	}

	t := max((-b-math32.Sqrt(disc))/a, 0)
	if t > 1 {
		return 0, types.Vec3{}, false
	}
	f := (em + t*ed) / ee
	if f < 0 || f > 1 {
		return 0, types.Vec3{}, false
	}
	return t, p0.Add(e.Mul(f)), true
}

// Check whether p, which lies on the plane of triangle (a, b, c), is inside
// the triangle. n is the unnormalized face normal.
func pointInTriangle(p, a, b, c, n types.Vec3) bool {
	return n.Dot(b.Sub(a).Cross(p.Sub(a))) >= 0 &&
		n.Dot(c.Sub(b).Cross(p.Sub(b))) >= 0 &&
		n.Dot(a.Sub(c).Cross(p.Sub(c))) >= 0
}
