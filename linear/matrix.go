// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"github.com/chewxy/math32"
)

// M4 is a column-major 4x4 matrix of float32.
type M4 [4]V4

// I makes m an identity matrix.
func (m *M4) I() { *m = M4{{0: 1}, {1: 1}, {2: 1}, {3: 1}} }

// Mul sets m to contain l ⋅ r.
// m may alias l or r.
func (m *M4) Mul(l, r *M4) {
	var p M4
	for c := range p {
		for k := range r[c] {
			if s := r[c][k]; s != 0 {
				for i := range p[c] {
					p[c][i] += l[k][i] * s
				}
			}
		}
	}
	*m = p
}

// Invert sets m to contain the inverse of n.
// It returns false, leaving m unchanged, if n is
// singular.
func (m *M4) Invert(n *M4) bool {
	// Gauss-Jordan elimination on the rows of [n | I]
	// with partial pivoting.
	var a [4][8]float32
	for r := range 4 {
		for c := range 4 {
			a[r][c] = n[c][r]
		}
		a[r][4+r] = 1
	}
	for c := range 4 {
		p := c
		for r := c + 1; r < 4; r++ {
			if math32.Abs(a[r][c]) > math32.Abs(a[p][c]) {
				p = r
			}
		}
		if math32.Abs(a[p][c]) < 1e-20 {
			return false
		}
		a[c], a[p] = a[p], a[c]
		inv := 1 / a[c][c]
		for j := range a[c] {
			a[c][j] *= inv
		}
		for r := range 4 {
			if f := a[r][c]; r != c && f != 0 {
				for j := range a[r] {
					a[r][j] -= f * a[c][j]
				}
			}
		}
	}
	for r := range 4 {
		for c := range 4 {
			m[c][r] = a[r][4+c]
		}
	}
	return true
}
