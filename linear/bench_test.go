// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"testing"
)

func BenchmarkM4(b *testing.B) {
	var q Q
	q.Rotate(0.5, &V3{0, 1, 0})
	var l, r, m M4
	l.TRS(&V3{1, 2, 3}, &q, &V3{1, 1, 1})
	r.Perspective(1, 16.0/9, 0.1, 100, true)
	b.Run("Mul", func(b *testing.B) {
		for b.Loop() {
			m.Mul(&l, &r)
		}
	})
	b.Run("Invert", func(b *testing.B) {
		for b.Loop() {
			m.Invert(&l)
		}
	})
}

func BenchmarkCulling(b *testing.B) {
	var v, p, vp M4
	v.LookAt(&V3{0, 2, 6}, &V3{}, &V3{0, 1, 0})
	p.Perspective(1, 16.0/9, 0.1, 100, true)
	vp.Mul(&p, &v)
	var f Frustum
	f.SetViewProj(&vp)

	local := AABB{Min: V3{-0.5, -0.5, -0.5}, Max: V3{0.5, 0.5, 0.5}}
	var world M4
	world.Translate(3, 0, -4)
	var box AABB
	b.Run("AABB.Transform", func(b *testing.B) {
		for b.Loop() {
			box.Transform(&world, &local)
		}
	})
	box.Transform(&world, &local)
	b.Run("Frustum.Intersects", func(b *testing.B) {
		for b.Loop() {
			f.Intersects(&box)
		}
	})
}
