package types

import "github.com/go-gl/mathgl/mgl32"

// A 4x4 affine transformation stored in column-major order. Points are
// treated as column vectors so a matrix composed as T.Mul4(R).Mul4(S)
// applies S first.
type Mat4 mgl32.Mat4

// Create the identity matrix.
func Ident4() Mat4 {
	return Mat4(mgl32.Ident4())
}

// Create a translation matrix.
func Translate4(v Vec3) Mat4 {
	return Mat4(mgl32.Translate3D(v[0], v[1], v[2]))
}

// Create a scale matrix.
func Scale4(v Vec3) Mat4 {
	return Mat4(mgl32.Scale3D(v[0], v[1], v[2]))
}

// Create a rotation matrix from yaw (X), pitch (Y) and roll (Z) angles in
// radians. Rotations are applied in X, Y, Z order.
func Rotate4(angles Vec3) Mat4 {
	q := mgl32.AnglesToQuat(angles[2], angles[1], angles[0], mgl32.ZYX)
	return Mat4(q.Normalize().Mat4())
}

// Compose a transformation matrix from a translation, rotation and scale: M = T * R * S.
func TRS(translation, rotation, scale Vec3) Mat4 {
	return Translate4(translation).Mul4(Rotate4(rotation)).Mul4(Scale4(scale))
}

// Multiply with another matrix.
func (m Mat4) Mul4(m2 Mat4) Mat4 {
	return Mat4(mgl32.Mat4(m).Mul4(mgl32.Mat4(m2)))
}

// Multiply with a 4 component column vector.
func (m Mat4) Mul4x1(v Vec4) Vec4 {
	return Vec4(mgl32.Mat4(m).Mul4x1(mgl32.Vec4(v)))
}

// Calculate the inverse matrix. Singular matrices return the zero matrix.
func (m Mat4) Inv() Mat4 {
	return Mat4(mgl32.Mat4(m).Inv())
}

// Transform a point (w = 1).
func (m Mat4) TransformPoint(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[4]*v[1] + m[8]*v[2] + m[12],
		m[1]*v[0] + m[5]*v[1] + m[9]*v[2] + m[13],
		m[2]*v[0] + m[6]*v[1] + m[10]*v[2] + m[14],
	}
}

// Transform a direction (w = 0); translation is ignored.
func (m Mat4) TransformDir(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[4]*v[1] + m[8]*v[2],
		m[1]*v[0] + m[5]*v[1] + m[9]*v[2],
		m[2]*v[0] + m[6]*v[1] + m[10]*v[2],
	}
}

// Get the translation component.
func (m Mat4) Translation() Vec3 {
	return Vec3{m[12], m[13], m[14]}
}

// Check whether this is the identity matrix.
func (m Mat4) IsIdentity() bool {
	return m == Ident4()
}

// Compare two matrices using the given per-element threshold.
func (m Mat4) ApproxEqual(m2 Mat4, eps float32) bool {
	return mgl32.Mat4(m).ApproxEqualThreshold(mgl32.Mat4(m2), eps)
}
