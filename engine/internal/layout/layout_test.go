// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package layout

import (
	"math/rand"
	"testing"
	"time"
	"unsafe"

	"gviegas/rend3/linear"
)

func checkSlicesT(x, y []float32, t *testing.T, prefix string) {
	n := min(len(x), len(y))
	for i := 0; i < n; i++ {
		if x[i] != y[i] {
			t.Fatalf("%s: slices differ at index %d\n%v != %v", prefix, i, x[i], y[i])
		}
	}
}

func m4Slice(m *linear.M4) []float32 { return unsafe.Slice((*float32)(unsafe.Pointer(m)), 16) }

func testM4(base float32) (m linear.M4) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = base + float32(i*4+j)
		}
	}
	return
}

func TestGlobalLayout(t *testing.T) {
	vp, pvp, v, p, ivp, lvp := testM4(0), testM4(100), testM4(200), testM4(300), testM4(400), testM4(500)
	pos := linear.V3{1, 2, 3}
	tm := 1500 * time.Millisecond
	rnd := rand.Float32()

	var l GlobalLayout
	l.SetVP(&vp)
	l.SetPrevVP(&pvp)
	l.SetV(&v)
	l.SetP(&p)
	l.SetInvVP(&ivp)
	l.SetCamera(&pos, 0.1, 500)
	l.SetResolution(1920, 1080)
	l.SetTime(tm)
	l.SetJitter(rnd, -rnd)
	l.SetBloom(0.2)
	l.SetSharpen(1, 0.35)
	l.SetFXAA(1.75, 0.125, 0.0312)
	l.SetBlur(1, 0, 2)
	l.SetFrame(1<<24 + 3)
	l.SetLightVP(&lvp)
	l.SetReverseZ(true)
	sun, col := linear.V3{0, -1, 0}, linear.V3{1, 0.9, 0.8}
	l.SetSun(&sun, &col, 3)

	s := "GlobalLayout."
	checkSlicesT(l[0:16], m4Slice(&vp), t, s+"SetVP")
	checkSlicesT(l[16:32], m4Slice(&pvp), t, s+"SetPrevVP")
	checkSlicesT(l[32:48], m4Slice(&v), t, s+"SetV")
	checkSlicesT(l[48:64], m4Slice(&p), t, s+"SetP")
	checkSlicesT(l[64:80], m4Slice(&ivp), t, s+"SetInvVP")
	checkSlicesT(l[80:84], []float32{1, 2, 3, 0.1}, t, s+"SetCamera")
	checkSlicesT(l[84:88], []float32{1920, 1080, 500, 1.5}, t, s+"SetResolution/SetTime")
	checkSlicesT(l[88:100], []float32{rnd, -rnd, 0.2, 1, 0.35, 1.75, 0.125, 0.0312, 1, 0, 2, 3}, t, s+"Set*")
	checkSlicesT(l[100:116], m4Slice(&lvp), t, s+"SetLightVP")
	if l[116] != 1 {
		t.Fatalf("%sSetReverseZ:\nhave %f\nwant 1", s, l[116])
	}
	checkSlicesT(l[120:128], []float32{0, -1, 0, 0, 1, 0.9, 0.8, 3}, t, s+"SetSun")
}

func TestDrawLayout(t *testing.T) {
	w, pw := testM4(-50), testM4(50)
	alb := linear.V4{0.5, 0.25, 0.125, 1}

	var l DrawLayout
	l.SetWorld(&w)
	l.SetPrevWorld(&pw)
	l.SetAlbedo(&alb)
	l.SetMaterial(0.7, 0.1, 2)

	s := "DrawLayout."
	checkSlicesT(l[0:16], m4Slice(&w), t, s+"SetWorld")
	checkSlicesT(l[16:32], m4Slice(&pw), t, s+"SetPrevWorld")
	checkSlicesT(l[32:36], alb[:], t, s+"SetAlbedo")
	checkSlicesT(l[36:39], []float32{0.7, 0.1, 2}, t, s+"SetMaterial")
}

func TestLightLayout(t *testing.T) {
	col, pos, dir := linear.V3{1, 0.5, 0.25}, linear.V3{-1, 2, -3}, linear.V3{0, 0, -1}

	var l LightLayout
	l.SetColor(&col)
	l.SetIntensity(100)
	l.SetPosition(&pos)
	l.SetRange(25)
	l.SetDirection(&dir)
	l.SetType(SpotLight)
	l.SetCone(0.9, 0.8)
	l.SetShadow(true)

	s := "LightLayout."
	checkSlicesT(l[0:11], []float32{1, 0.5, 0.25, 100, -1, 2, -3, 25, 0, 0, -1}, t, s+"Set*")
	if x := *(*int32)(unsafe.Pointer(&l[11])); x != SpotLight {
		t.Fatalf("%sSetType:\nhave %d\nwant %d", s, x, SpotLight)
	}
	checkSlicesT(l[12:15], []float32{0.9, 0.8, 1}, t, s+"SetCone/SetShadow")
}

func TestPassLayout(t *testing.T) {
	var l PassLayout
	l.SetInputSize(4, 2)
	l.SetParams(1, 2, 3, 4)
	c0, c1 := linear.V4{0.1, 0.2, 0.3, 1}, linear.V4{0.4, 0.5, 0.6, 1}
	l.SetColors(&c0, &c1)
	checkSlicesT(l[:], []float32{0.25, 0.5, 4, 2, 1, 2, 3, 4, 0.1, 0.2, 0.3, 1, 0.4, 0.5, 0.6, 1}, t, "PassLayout")

	l.SetInputSize(0, 0)
	checkSlicesT(l[:4], []float32{1, 1, 1, 1}, t, "PassLayout.SetInputSize(0, 0)")
}

func TestSizes(t *testing.T) {
	for _, x := range [...]struct {
		name string
		have uintptr
		want uintptr
	}{
		{"GlobalLayout", unsafe.Sizeof(GlobalLayout{}), 512},
		{"DrawLayout", unsafe.Sizeof(DrawLayout{}), BlockSize},
		{"LightLayout", unsafe.Sizeof(LightLayout{}), 64},
		{"PassLayout", unsafe.Sizeof(PassLayout{}), 64},
	} {
		if x.have != x.want {
			t.Fatalf("unsafe.Sizeof(%s):\nhave %d\nwant %d", x.name, x.have, x.want)
		}
	}
	if globalSpan != 2 || drawSpan != 1 {
		t.Fatalf("spans:\nhave %d, %d\nwant 2, 1", globalSpan, drawSpan)
	}
}
