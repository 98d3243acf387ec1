// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"github.com/chewxy/math32"
)

// Translate sets m to contain a translation matrix.
func (m *M4) Translate(x, y, z float32) {
	m.I()
	m[3] = V4{x, y, z, 1}
}

// Scale sets m to contain a scaling matrix.
func (m *M4) Scale(x, y, z float32) {
	*m = M4{{x}, {1: y}, {2: z}, {3: 1}}
}

// RotateQ sets m to contain the rotation matrix of q.
// q must be normalized.
func (m *M4) RotateQ(q *Q) {
	x, y, z, w := q.V[0], q.V[1], q.V[2], q.R
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	xw, yw, zw := x*w, y*w, z*w
	*m = M4{
		{1 - 2*(yy+zz), 2 * (xy + zw), 2 * (xz - yw), 0},
		{2 * (xy - zw), 1 - 2*(xx+zz), 2 * (yz + xw), 0},
		{2 * (xz + yw), 2 * (yz - xw), 1 - 2*(xx+yy), 0},
		{3: 1},
	}
}

// TRS sets m to contain T ⋅ R ⋅ S.
func (m *M4) TRS(t *V3, r *Q, s *V3) {
	m.RotateQ(r)
	for i := range 3 {
		for j := range 3 {
			m[i][j] *= s[i]
		}
	}
	m[3] = V4{t[0], t[1], t[2], 1}
}

// LookAt sets m to contain a right-handed view matrix
// looking from eye towards center.
func (m *M4) LookAt(eye, center, up *V3) {
	var f, s, u V3
	f.Sub(center, eye)
	f.Norm(&f)
	s.Cross(&f, up)
	s.Norm(&s)
	u.Cross(&s, &f)
	*m = M4{
		{s[0], u[0], -f[0], 0},
		{s[1], u[1], -f[1], 0},
		{s[2], u[2], -f[2], 0},
		{-s.Dot(eye), -u.Dot(eye), f.Dot(eye), 1},
	}
}

// Perspective sets m to contain a right-handed perspective
// projection whose clip space depth is in the [0, 1]
// interval.
// If reverse is set, the near plane maps to 1 and the far
// plane maps to 0.
func (m *M4) Perspective(fovY, aspect, near, far float32, reverse bool) {
	f := 1 / math32.Tan(fovY*0.5)
	*m = M4{{f / aspect}, {1: f}, {2: 0, 3: -1}, {}}
	if reverse {
		m[2][2] = near / (far - near)
		m[3][2] = far * near / (far - near)
	} else {
		m[2][2] = far / (near - far)
		m[3][2] = near * far / (near - far)
	}
}

// Ortho sets m to contain a right-handed orthographic
// projection whose clip space depth is in the [0, 1]
// interval.
func (m *M4) Ortho(left, right, bottom, top, near, far float32, reverse bool) {
	*m = M4{
		{2 / (right - left)},
		{1: 2 / (top - bottom)},
		{},
		{-(right + left) / (right - left), -(top + bottom) / (top - bottom), 0, 1},
	}
	if reverse {
		m[2][2] = 1 / (far - near)
		m[3][2] = far / (far - near)
	} else {
		m[2][2] = -1 / (far - near)
		m[3][2] = -near / (far - near)
	}
}
