// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package linear

import (
	"math"
	"testing"
)

func TestV(t *testing.T) {
	var u V3
	v := V3{1, 2, 4}
	w := V3{0, -1, 2}

	if u.Add(&v, &w); u != (V3{1, 1, 6}) {
		t.Fatalf("V3.Add\nhave %v\nwant [1 1 6]", u)
	}
	if u.Sub(&v, &w); u != (V3{1, 3, 2}) {
		t.Fatalf("V3.Sub\nhave %v\nwant [1 3 2]", u)
	}
	if u.Scale(-1, &v); u != (V3{-1, -2, -4}) {
		t.Fatalf("V3.Scale\nhave %v\nwant [-1 -2 -4]", u)
	}
	if u.Scale(2, &w); u != (V3{0, -2, 4}) {
		t.Fatalf("V3.Scale\nhave %v\nwant [0 -2 4]", u)
	}
	if d := v.Dot(&w); d != 6 {
		t.Fatalf("V3.Dot\nhave %v\nwant 6\n", d)
	}
	if d := v.Dot(&v); d != 21 {
		t.Fatalf("V3.Dot\nhave %v\nwant 21\n", d)
	}
	if l := v.Len(); l != float32(math.Sqrt(21)) {
		t.Fatalf("V3.Len\nhave %v\nwant %v\n", l, math.Sqrt(21))
	}
	if l := w.Len(); l != float32(math.Sqrt(5)) {
		t.Fatalf("V3.Len\nhave %v\nwant %v\n", l, math.Sqrt(5))
	}

	v = V3{0, 0, -2}
	w = V3{0, 4, 0}

	if v.Norm(&v); v != (V3{0, 0, -1}) {
		t.Fatalf("V3.Norm\nhave %v\nwant [0 0 -1]", v)
	}
	if w.Norm(&w); w != (V3{0, 1, 0}) {
		t.Fatalf("V3.Norm\nhave %v\nwant [0 1 0]", w)
	}
	if u.Cross(&v, &w); u != (V3{1, 0, 0}) {
		t.Fatalf("V3.Cross\nhave %v\nwant [1 0 0]", u)
	}
	if u.Cross(&w, &v); u != (V3{-1, 0, 0}) {
		t.Fatalf("V3.Cross\nhave %v\nwant [-1 0 0]", u)
	}
}

func TestM(t *testing.T) {
	var l M4
	m := M4{
		{1, 5, 9, 13},
		{2, 6, 10, 14},
		{3, 7, 11, 15},
		{4, 8, 12, 16},
	}
	// Cyclic permutation of the columns.
	n := M4{
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{1, 0, 0, 0},
	}

	if l.I(); l != (M4{{1}, {0, 1}, {0, 0, 1}, {0, 0, 0, 1}}) {
		t.Fatalf("M4.I\nhave %v\nwant identity", l)
	}
	if l.Mul(&m, &n); l != (M4{m[1], m[2], m[3], m[0]}) {
		t.Fatalf("M4.Mul\nhave %v\nwant %v", l, M4{m[1], m[2], m[3], m[0]})
	}
	l = m
	if l.Mul(&l, &n); l != (M4{m[1], m[2], m[3], m[0]}) {
		t.Fatalf("M4.Mul: aliased\nhave %v\nwant %v", l, M4{m[1], m[2], m[3], m[0]})
	}
	if !l.Invert(&n) || l != (M4{n[2], n[3], n[0], n[1]}) {
		t.Fatalf("M4.Invert\nhave %v\nwant %v", l, M4{n[2], n[3], n[0], n[1]})
	}

	l.I()
	m[1] = V4{}
	if l.Invert(&m) {
		t.Fatal("M4.Invert: singular\nhave true\nwant false")
	}
	if l != (M4{{1}, {0, 1}, {0, 0, 1}, {0, 0, 0, 1}}) {
		t.Fatalf("M4.Invert: singular\nhave %v\nwant identity", l)
	}

	var x, y, p M4
	var q Q
	q.Rotate(0.7, &V3{0, 1, 0})
	x.TRS(&V3{1, -2, 3}, &q, &V3{2, 2, 0.5})
	if !y.Invert(&x) {
		t.Fatal("M4.Invert: TRS\nhave false\nwant true")
	}
	p.Mul(&x, &y)
	for i := range p {
		for j := range p[i] {
			want := float32(0)
			if i == j {
				want = 1
			}
			if !near(p[i][j], want) {
				t.Fatalf("M4.Invert: M * M⁻¹\nhave %v\nwant identity", p)
			}
		}
	}
}

func TestQ(t *testing.T) {
	var r Q
	q := Q{V: V3{1, 0, 0}, R: 3}
	p := Q{V: V3{0, 1, 0}, R: 3}

	if r.Mul(&q, &p); r.V != (V3{3, 3, 1}) || r.R != 9 {
		t.Fatalf("Q.Mul\nhave %v\nwant {[3 3 1] 9}", r)
	}
	if r.Mul(&p, &q); r.V != (V3{3, 3, -1}) || r.R != 9 {
		t.Fatalf("Q.Mul\nhave %v\nwant {[3 3 -1] 9}", r)
	}
	if q.Mul(&q, &q); q.V != (V3{6}) || q.R != 8 {
		t.Fatalf("Q.Mul\nhave %v\nwant {[6 0 0] 8}", q)
	}
}

func TestTRS(t *testing.T) {
	var x, r, s M4
	var q Q

	x.Translate(-1, -2, -3)
	q.Rotate(0, &V3{1})
	r.RotateQ(&q)
	s.Scale(5, 5, 5)
	x.Mul(&x, &r)
	x.Mul(&x, &s)
	if x != (M4{{5}, {1: 5}, {2: 5}, {-1, -2, -3, 1}}) {
		t.Fatalf("T*R*S\nhave %v\nwant %v", x, M4{{5}, {1: 5}, {2: 5}, {-1, -2, -3, 1}})
	}
	v := V4{1, 1, 1, 1}
	v.Mul(&x, &v)
	if v != (V4{4, 3, 2, 1}) {
		t.Fatalf("TRS*v\nhave %v\nwant %v", v, V4{4, 3, 2, 1})
	}
}

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-5 }

func TestPerspective(t *testing.T) {
	var m M4
	for _, rev := range [...]bool{false, true} {
		m.Perspective(math.Pi/2, 1, 1, 100, rev)
		zn, zf := float32(0), float32(1)
		if rev {
			zn, zf = 1, 0
		}
		v := V4{0, 0, -1, 1}
		v.Mul(&m, &v)
		if d := v[2] / v[3]; !near(d, zn) {
			t.Fatalf("M4.Perspective(reverse=%t): near depth\nhave %v\nwant %v", rev, d, zn)
		}
		v = V4{0, 0, -100, 1}
		v.Mul(&m, &v)
		if d := v[2] / v[3]; !near(d, zf) {
			t.Fatalf("M4.Perspective(reverse=%t): far depth\nhave %v\nwant %v", rev, d, zf)
		}
	}
}

func TestOrtho(t *testing.T) {
	var m M4
	for _, rev := range [...]bool{false, true} {
		m.Ortho(-2, 2, -1, 1, 0, 10, rev)
		v := V4{2, -1, -10, 1}
		v.Mul(&m, &v)
		want := V4{1, -1, 1, 1}
		if rev {
			want[2] = 0
		}
		for i := range v {
			if !near(v[i], want[i]) {
				t.Fatalf("M4.Ortho(reverse=%t)\nhave %v\nwant %v", rev, v, want)
			}
		}
	}
}

func TestLookAt(t *testing.T) {
	var m M4
	m.LookAt(&V3{0, 0, 5}, &V3{}, &V3{0, 1, 0})
	v := V4{0, 0, 0, 1}
	v.Mul(&m, &v)
	if v != (V4{0, 0, -5, 1}) {
		t.Fatalf("M4.LookAt\nhave %v\nwant %v", v, V4{0, 0, -5, 1})
	}
	v = V4{1, 2, 5, 1}
	v.Mul(&m, &v)
	if v != (V4{1, 2, 0, 1}) {
		t.Fatalf("M4.LookAt\nhave %v\nwant %v", v, V4{1, 2, 0, 1})
	}
}

func TestAABB(t *testing.T) {
	b := EmptyAABB()
	if !b.IsEmpty() {
		t.Fatal("EmptyAABB: IsEmpty\nhave false\nwant true")
	}
	b.Extend(&V3{1, -1, 2})
	b.Extend(&V3{-1, 1, 0})
	if b.Min != (V3{-1, -1, 0}) || b.Max != (V3{1, 1, 2}) {
		t.Fatalf("AABB.Extend\nhave %v\nwant {[-1 -1 0] [1 1 2]}", b)
	}
	if c := b.Center(); c != (V3{0, 0, 1}) {
		t.Fatalf("AABB.Center\nhave %v\nwant [0 0 1]", c)
	}
	var m M4
	m.Translate(10, 0, 0)
	b.Transform(&m, &b)
	if b.Min != (V3{9, -1, 0}) || b.Max != (V3{11, 1, 2}) {
		t.Fatalf("AABB.Transform\nhave %v\nwant {[9 -1 0] [11 1 2]}", b)
	}
}

func TestFrustum(t *testing.T) {
	var v, p, vp M4
	v.LookAt(&V3{0, 0, 5}, &V3{}, &V3{0, 1, 0})
	p.Perspective(math.Pi/3, 1, 0.1, 50, true)
	vp.Mul(&p, &v)
	var f Frustum
	f.SetViewProj(&vp)

	in := AABB{Min: V3{-1, -1, -1}, Max: V3{1, 1, 1}}
	if !f.Intersects(&in) {
		t.Fatalf("Frustum.Intersects(%v)\nhave false\nwant true", in)
	}
	behind := AABB{Min: V3{-1, -1, 6}, Max: V3{1, 1, 8}}
	if f.Intersects(&behind) {
		t.Fatalf("Frustum.Intersects(%v)\nhave true\nwant false", behind)
	}
	side := AABB{Min: V3{40, -1, -1}, Max: V3{42, 1, 1}}
	if f.Intersects(&side) {
		t.Fatalf("Frustum.Intersects(%v)\nhave true\nwant false", side)
	}
}
