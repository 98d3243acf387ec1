// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"github.com/chewxy/math32"
)

// AABB is an axis-aligned bounding box.
type AABB struct {
	Min, Max V3
}

// EmptyAABB returns an AABB that contains nothing.
// Extending it with a point yields a box around that
// point.
func EmptyAABB() AABB {
	inf := math32.Inf(1)
	return AABB{Min: V3{inf, inf, inf}, Max: V3{-inf, -inf, -inf}}
}

// IsEmpty returns whether b contains no points.
func (b *AABB) IsEmpty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Extend grows b to contain p.
func (b *AABB) Extend(p *V3) {
	b.Min.Min(&b.Min, p)
	b.Max.Max(&b.Max, p)
}

// Center returns the center of b.
func (b *AABB) Center() (c V3) {
	c.Add(&b.Min, &b.Max)
	c.Scale(0.5, &c)
	return
}

// Corners returns the eight corners of b.
func (b *AABB) Corners() (c [8]V3) {
	for i := range c {
		for j := range 3 {
			if i&(1<<j) == 0 {
				c[i][j] = b.Min[j]
			} else {
				c[i][j] = b.Max[j]
			}
		}
	}
	return
}

// Transform sets b to contain the bounds of a
// transformed by m.
func (b *AABB) Transform(m *M4, a *AABB) {
	if a.IsEmpty() {
		*b = *a
		return
	}
	c := a.Corners()
	r := EmptyAABB()
	for i := range c {
		v := V4{c[i][0], c[i][1], c[i][2], 1}
		v.Mul(m, &v)
		p := v.XYZ()
		r.Extend(&p)
	}
	*b = r
}

// Frustum is a set of six planes whose normals point
// inwards.
// Each plane is stored as (n, d), with n ⋅ p + d = 0.
type Frustum [6]V4

// SetViewProj sets f to contain the planes of the
// clip volume of m, with depth in the [0, 1] interval.
func (f *Frustum) SetViewProj(m *M4) {
	var row [4]V4
	for i := range row {
		row[i] = V4{m[0][i], m[1][i], m[2][i], m[3][i]}
	}
	f[0].Add(&row[3], &row[0])
	f[1].Sub(&row[3], &row[0])
	f[2].Add(&row[3], &row[1])
	f[3].Sub(&row[3], &row[1])
	f[4] = row[2]
	f[5].Sub(&row[3], &row[2])
	for i := range f {
		n := f[i].XYZ()
		if l := n.Len(); l > 0 {
			f[i].Scale(1/l, &f[i])
		}
	}
}

// Intersects returns whether b is not entirely outside f.
func (f *Frustum) Intersects(b *AABB) bool {
	for i := range f {
		var p V3
		for j := range p {
			if f[i][j] >= 0 {
				p[j] = b.Max[j]
			} else {
				p[j] = b.Min[j]
			}
		}
		if f[i][0]*p[0]+f[i][1]*p[1]+f[i][2]*p[2]+f[i][3] < 0 {
			return false
		}
	}
	return true
}
