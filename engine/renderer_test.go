// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
	"gviegas/rend3/linear"
)

func TestRendererHeadless(t *testing.T) {
	r, dev, drv := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	warmUp(t, r)

	require.NoError(t, r.Render(sc))
	s := r.Stats()
	assert.Equal(t, uint64(1), s.Frames)
	assert.Equal(t, []string{"brdf", "shadow", "gbuffer", "lighting", "composition", "tonemapping", "present"}, s.Passes)
	assert.Empty(t, s.PassesSkip)
	assert.Equal(t, 2, s.Draws)
	assert.Equal(t, 0, s.Culled)
	assert.Greater(t, s.Cache.Entries, 0)

	bb := r.BackBuffer()
	require.NotNil(t, bb)
	assert.True(t, bb.IsValid())
	assert.Equal(t, driver.LColorTarget, bb.Layout())
	w, h := bb.Size()
	assert.Equal(t, 320, w)
	assert.Equal(t, 180, h)

	subs := drv.GPU().Submissions()
	require.NotEmpty(t, subs)
	last := subs[len(subs)-1]
	assert.Contains(t, last, "BeginPass color=4 ds=true", "G-buffer pass")
	assert.Contains(t, last, "DrawIndexed 36 1", "cube")
	assert.Contains(t, last, "DrawIndexed 6 1", "plane")

	// The BRDF LUT persists.
	require.NoError(t, r.Render(sc))
	s = r.Stats()
	assert.Equal(t, uint64(2), s.Frames)
	assert.NotContains(t, s.Passes, "brdf")
	assert.Contains(t, s.Passes, "gbuffer")
}

func TestRendererEffects(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(SSAO|SSR|TAA|Bloom|FXAA|Sharpening|ChromaticAberration|Correction))
	sc := testScene(t, dev)
	warmUp(t, r)

	require.NoError(t, r.Render(sc))
	s := r.Stats()
	assert.Empty(t, s.PassesSkip)
	assert.Equal(t, []string{
		"brdf", "shadow", "gbuffer", "ssao", "lighting", "composition",
		"taa", "bloom", "tonemapping", "fxaa", "sharpening", "chromatic_aberration", "present",
	}, s.Passes, "no SSR without history")
	assert.True(t, r.historyValid)

	require.NoError(t, r.Render(sc))
	s = r.Stats()
	assert.Empty(t, s.PassesSkip)
	assert.Contains(t, s.Passes, "ssr")
	assert.True(t, r.ssrHistoryValid)
	assert.Equal(t, uint64(0), s.Skipped)
}

func TestRendererCorrection(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(Correction))
	sc := testScene(t, dev)

	d := r.tonemappingDesc(r.Flags())
	assert.True(t, d.Frag.Has("PASS_TONEMAPPING"))
	assert.True(t, d.Frag.Has("PASS_GAMMA_CORRECTION"))
	assert.False(t, d.Frag.Has("PASS_TEXTURE"))

	flags := r.Flags()
	flags.Unset(Correction)
	r.SetFlags(flags)
	d = r.tonemappingDesc(r.Flags())
	assert.True(t, d.Frag.Has("PASS_TEXTURE"))
	assert.False(t, d.Frag.Has("PASS_TONEMAPPING"))
	assert.False(t, d.Frag.Has("PASS_GAMMA_CORRECTION"))
	assert.Equal(t, d.Vert.Defines, d.Frag.Defines)

	// tLDR is still produced for the passes that follow.
	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	s := r.Stats()
	assert.Empty(t, s.PassesSkip)
	assert.Contains(t, s.Passes, "tonemapping")
	assert.Contains(t, s.Passes, "present")
}

func TestRendererTransparent(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	cube, err := NewCube(dev, 0.5)
	require.NoError(t, err)
	defer cube.Destroy()
	glass := DefaultMaterial()
	glass.Albedo[3] = 0.5
	glass.Transparent = true
	addNode(sc.Root, &Model{Mesh: cube, Material: &glass}, 0, 1.5, 0)
	warmUp(t, r)

	require.NoError(t, r.Render(sc))
	s := r.Stats()
	assert.Empty(t, s.PassesSkip)
	i := slices.Index(s.Passes, "transparent")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "composition", s.Passes[i-1])
	assert.Equal(t, 3, s.Draws)
}

func TestRendererVisualization(t *testing.T) {
	for _, vis := range []Flags{Albedo, Normal, MaterialParams, Velocity, Depth} {
		r, dev, _ := newTest(t, nil, testConfig(vis))
		sc := testScene(t, dev)
		warmUp(t, r)
		require.NoError(t, r.Render(sc))
		s := r.Stats()
		assert.Empty(t, s.PassesSkip, vis.String())
		assert.Contains(t, s.Passes, "present", vis.String())
	}
}

func TestRendererCulling(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	cube, err := NewCube(dev, 1)
	require.NoError(t, err)
	defer cube.Destroy()
	// Behind the camera.
	addNode(sc.Root, &Model{Mesh: cube}, 0, 2, 20)
	hidden := &Model{Mesh: cube, Hidden: true}
	addNode(sc.Root, hidden, 0, 0.5, 0)
	warmUp(t, r)

	require.NoError(t, r.Render(sc))
	s := r.Stats()
	assert.Equal(t, 2, s.Draws)
	assert.Equal(t, 1, s.Culled)
}

func TestRendererDestroyedMesh(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	cube, err := NewCube(dev, 1)
	require.NoError(t, err)
	addNode(sc.Root, &Model{Mesh: cube}, 1, 0.5, 0)
	warmUp(t, r)

	require.NoError(t, r.Render(sc))
	assert.Equal(t, 3, r.Stats().Draws)
	cube.Destroy()
	cube.Destroy()
	assert.False(t, cube.IsValid())
	require.NotPanics(t, func() { require.NoError(t, r.Render(sc)) })
	assert.Equal(t, 2, r.Stats().Draws)
}

func TestRendererState(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	assert.Equal(t, Idle, r.State())
	assert.False(t, r.IsRendering())

	var states []FrameState
	var during struct {
		rendering  bool
		inPass     bool
		presenting bool
		render     error
		resize     error
	}
	r.onState = func(s FrameState) {
		states = append(states, s)
		switch s {
		case Rendering:
			ch := make(chan bool)
			go func() { ch <- r.IsRendering() }()
			during.rendering = <-ch
			during.render = r.Render(sc)
			during.resize = r.SetResolution(64, 64)
		case Presenting:
			during.presenting = r.IsRendering()
		}
	}
	// Hold the G-buffer pass while another goroutine
	// observes the renderer.
	i := slices.IndexFunc(r.passes, func(p PassDesc) bool { return p.Name == "gbuffer" })
	require.GreaterOrEqual(t, i, 0)
	exec := r.passes[i].exec
	r.passes[i].exec = func(r *Renderer, f *frame, p *PassDesc) error {
		ch := make(chan bool)
		go func() {
			time.Sleep(10 * time.Millisecond)
			ch <- r.IsRendering()
		}()
		during.inPass = <-ch
		return exec(r, f, p)
	}
	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	assert.Equal(t, []FrameState{Rendering, Presenting, Idle}, states)
	assert.Contains(t, r.Stats().Passes, "gbuffer")
	assert.True(t, during.rendering)
	assert.True(t, during.inPass)
	assert.False(t, during.presenting)
	assert.False(t, r.IsRendering())
	assert.ErrorIs(t, during.render, ErrRendering)
	assert.ErrorIs(t, during.resize, ErrRendering)
	assert.Equal(t, Idle, r.State())
	assert.Equal(t, "presenting", Presenting.String())

	w, h := r.Resolution()
	assert.Equal(t, 320, w)
	assert.Equal(t, 180, h)
}

func TestRendererPending(t *testing.T) {
	r, dev, drv := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	drv.GPU().SetPipelineDelay(100 * time.Millisecond)

	require.NoError(t, r.Render(sc))
	s := r.Stats()
	assert.Equal(t, uint64(1), s.Frames, "frames are submitted even if every pass is skipped")
	assert.NotContains(t, s.Passes, "gbuffer")
	assert.Contains(t, s.PassesSkip, "gbuffer")
	assert.Contains(t, s.PassesSkip, "present")
	assert.Greater(t, s.Skipped, uint64(0))
	assert.Equal(t, driver.LColorTarget, r.BackBuffer().Layout())

	drv.GPU().SetPipelineDelay(0)
	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	s = r.Stats()
	assert.Empty(t, s.PassesSkip)
	assert.Contains(t, s.Passes, "gbuffer")
	assert.Contains(t, s.Passes, "brdf")
}

func TestRendererDeviceLost(t *testing.T) {
	r, dev, drv := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	require.Equal(t, uint64(1), dev.Generation())

	drv.GPU().SetLost(true)
	err := r.Render(sc)
	require.Error(t, err)
	assert.True(t, driver.IsDeviceLost(err))
	assert.True(t, dev.Lost())
	assert.Equal(t, uint64(1), r.Stats().Frames)
	assert.Equal(t, Idle, r.State())

	require.NoError(t, r.Render(sc))
	assert.Equal(t, uint64(2), dev.Generation())
	assert.False(t, dev.Lost())
	assert.True(t, r.BackBuffer().IsValid())

	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	s := r.Stats()
	assert.Empty(t, s.PassesSkip)
	assert.Contains(t, s.Passes, "gbuffer")
	assert.Equal(t, uint64(3), s.Frames)
}

func TestRendererSubmitFailure(t *testing.T) {
	r, dev, drv := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	warmUp(t, r)

	drv.GPU().Fail("Submit", driver.ErrFatal)
	assert.ErrorIs(t, r.Render(sc), driver.ErrFatal)
	// The next frames must not block on the fence of
	// the failed submission.
	for range 3 {
		require.NoError(t, r.Render(sc))
	}
	assert.Equal(t, uint64(3), r.Stats().Frames)
}

func TestRendererResolution(t *testing.T) {
	r, _, _ := newTest(t, nil, testConfig(0))

	assert.ErrorIs(t, r.SetResolution(2, 2), ErrInvalidResolution)
	assert.ErrorIs(t, r.SetResolution(-1, 0), ErrInvalidResolution)
	w, h := r.Resolution()
	assert.Equal(t, [2]int{320, 180}, [2]int{w, h})

	require.NoError(t, r.SetResolution(160, 90))
	w, h = r.Resolution()
	assert.Equal(t, [2]int{160, 90}, [2]int{w, h})
	w, h = r.BackBufferSize()
	assert.Equal(t, [2]int{320, 180}, [2]int{w, h})
	w, h = r.BackBuffer().Size()
	assert.Equal(t, [2]int{320, 180}, [2]int{w, h})

	require.NoError(t, r.SetResolution(0, 0))
	require.NoError(t, r.SetBackBufferSize(640, 360))
	w, h = r.Resolution()
	assert.Equal(t, [2]int{640, 360}, [2]int{w, h})
	w, h = r.BackBuffer().Size()
	assert.Equal(t, [2]int{640, 360}, [2]int{w, h})

	assert.ErrorIs(t, r.SetBackBufferSize(0, 360), ErrInvalidResolution)
	w, h = r.BackBufferSize()
	assert.Equal(t, [2]int{640, 360}, [2]int{w, h})
}

func TestRendererSwapchain(t *testing.T) {
	win := &testWindow{320, 180}
	r, dev, drv := newTest(t, win, testConfig(0))
	sc := testScene(t, dev)
	assert.Nil(t, r.BackBuffer())
	warmUp(t, r)

	for range 3 {
		require.NoError(t, r.Render(sc))
	}
	assert.Equal(t, 3, drv.GPU().Calls("Next"))
	assert.Equal(t, 3, drv.GPU().Calls("Present"))
	assert.Empty(t, r.Stats().PassesSkip)

	win.w, win.h = 400, 200
	require.NoError(t, r.SetBackBufferSize(0, 0))
	w, h := r.BackBufferSize()
	assert.Equal(t, [2]int{400, 200}, [2]int{w, h})
	w, h = r.Resolution()
	assert.Equal(t, [2]int{400, 200}, [2]int{w, h})
	require.NoError(t, r.Render(sc))
}

func TestRendererPresentFailure(t *testing.T) {
	win := &testWindow{320, 180}
	r, dev, drv := newTest(t, win, testConfig(0))
	sc := testScene(t, dev)
	warmUp(t, r)

	drv.GPU().Fail("Present", driver.NewError(driver.ErrSwapchain, "Present", "", "OUT_OF_DATE"))
	assert.ErrorIs(t, r.Render(sc), driver.ErrSwapchain)
	recreated := drv.GPU().Calls("Recreate")
	require.NoError(t, r.Render(sc))
	assert.Equal(t, recreated+1, drv.GPU().Calls("Recreate"), "swapchain recreated")
	assert.Equal(t, uint64(1), dev.Generation())
}

func TestRendererPick(t *testing.T) {
	r, dev, drv := newTest(t, nil, testConfig(PickingRay))
	sc := testScene(t, dev)
	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	subs := drv.GPU().Submissions()
	assert.NotContains(t, subs[len(subs)-1], "Draw 2 1", "no ray yet")

	origin, dir := r.Pick(160, 90)
	var want linear.V3
	want.Norm(&linear.V3{0, -2, -6})
	for i := range dir {
		assert.InDelta(t, want[i], dir[i], 2e-3)
	}
	var d linear.V3
	d.Sub(&origin, &linear.V3{0, 2, 6})
	assert.InDelta(t, 0.1, d.Len(), 0.01, "origin on the near plane")
	assert.InDelta(t, 1, dir.Len(), 1e-5)

	require.NoError(t, r.Render(sc))
	assert.Contains(t, r.Stats().Passes, "overlay")
	subs = drv.GPU().Submissions()
	assert.Contains(t, subs[len(subs)-1], "Draw 2 1")
}

func TestRendererLines(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(SceneGrid))
	sc := testScene(t, dev)
	warmUp(t, r)
	r.SetFlags(0)

	r.AddLine(linear.V3{}, linear.V3{1, 1, 1}, linear.V4{1, 0, 0, 1}, linear.V4{0, 0, 1, 1})
	r.AddBoundingBox(linear.AABB{Min: linear.V3{-1, -1, -1}, Max: linear.V3{1, 1, 1}}, linear.V4{1, 1, 1, 1})
	assert.Len(t, r.lines, 2+24)
	require.NoError(t, r.Render(sc))
	assert.Contains(t, r.Stats().Passes, "overlay")
	assert.Empty(t, r.lines)

	require.NoError(t, r.Render(sc))
	assert.NotContains(t, r.Stats().Passes, "overlay")
}

func TestRendererTableGrowth(t *testing.T) {
	cfg := testConfig(0)
	cfg.Frames = 1
	cfg.MaxDraw = 1
	r, dev, _ := newTest(t, nil, cfg)
	sc := testScene(t, dev)
	warmUp(t, r)

	// Passes still run when the table is full, but
	// draws that do not fit are dropped.
	require.NoError(t, r.Render(sc))
	assert.Empty(t, r.Stats().PassesSkip)
	assert.Less(t, r.Stats().Draws, 2)
	want := r.slots[0].want
	assert.Greater(t, want, 1)

	// The whole demand of the previous frame was counted,
	// so a single growth suffices.
	require.NoError(t, r.Render(sc))
	assert.GreaterOrEqual(t, r.slots[0].tab.Cap(), want)
	assert.GreaterOrEqual(t, r.slots[0].tab.Cap(), r.slots[0].tab.Len())
	assert.Zero(t, r.slots[0].want)
	assert.Empty(t, r.Stats().PassesSkip)
	assert.Equal(t, 2, r.Stats().Draws)
}

func TestRendererDestroy(t *testing.T) {
	dev, _ := openTest(t, nil)
	r, err := New(dev, testConfig(DefaultFlags))
	require.NoError(t, err)
	assert.NotEmpty(t, dev.Live())
	r.Destroy()
	r.Destroy()
	assert.Empty(t, dev.Live())

	assert.ErrorIs(t, r.Render(NewScene()), ErrDestroyed)
	assert.ErrorIs(t, r.SetResolution(64, 64), ErrDestroyed)
	assert.ErrorIs(t, r.WarmUp(t.Context()), ErrDestroyed)
}

func TestRendererNilScene(t *testing.T) {
	r, _, _ := newTest(t, nil, testConfig(0))
	assert.Error(t, r.Render(nil))
	assert.Equal(t, Idle, r.State())
}

func TestHalton(t *testing.T) {
	assert.Equal(t, float32(0.5), halton(1, 2))
	assert.Equal(t, float32(0.25), halton(2, 2))
	assert.InDelta(t, 1.0/3, halton(1, 3), 1e-6)
	assert.InDelta(t, 2.0/3, halton(2, 3), 1e-6)
	for i := range uint64(16) {
		h := halton(i+1, 3)
		assert.True(t, h > 0 && h < 1)
	}
}

func TestLightViewProj(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	require.NotNil(t, r.rend.sun)

	var lvp linear.M4
	r.lightViewProj(&lvp, r.rend.sun)
	// Every corner of every opaque model is inside the
	// light's clip volume.
	for _, it := range r.rend.opaque {
		for _, c := range it.bounds.Corners() {
			var p linear.V4
			p.Mul(&lvp, &linear.V4{c[0], c[1], c[2], 1})
			for i := range 2 {
				assert.LessOrEqual(t, math32.Abs(p[i]/p[3]), float32(1.001))
			}
			z := p[2] / p[3]
			assert.True(t, z >= -0.001 && z <= 1.001, "depth %v", z)
		}
	}
}

func TestStatsIsolation(t *testing.T) {
	r, dev, _ := newTest(t, nil, testConfig(0))
	sc := testScene(t, dev)
	warmUp(t, r)
	require.NoError(t, r.Render(sc))
	a, b := r.Stats(), r.Stats()
	require.NotEmpty(t, a.Passes)
	a.Passes[0] = strings.ToUpper(a.Passes[0])
	a.PassesSkip = append(a.PassesSkip[:0], "x")
	assert.Equal(t, "brdf", b.Passes[0])
	assert.Equal(t, "brdf", r.Stats().Passes[0])
	assert.NotContains(t, r.Stats().PassesSkip, "x")
}
