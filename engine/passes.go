// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"gviegas/rend3/driver"
	"gviegas/rend3/engine/internal/layout"
	"gviegas/rend3/linear"
	"gviegas/rend3/rhi"
	"gviegas/rend3/shader"
)

// defaultPasses returns the passes of a frame, in
// execution order.
func defaultPasses() []PassDesc {
	return []PassDesc{
		{
			Name:    "brdf",
			Outputs: []string{tBRDF},
			cond:    func(r *Renderer, _ *frame) bool { return !r.lutReady },
			exec:    (*Renderer).brdfPass,
		},
		{
			Name:    "shadow",
			Outputs: []string{tShadow},
			cond:    func(_ *Renderer, f *frame) bool { return f.rend.sun != nil && len(f.rend.opaque) > 0 },
			exec:    (*Renderer).shadowPass,
		},
		{
			Name:    "gbuffer",
			Outputs: []string{tAlbedo, tNormal, tMaterial, tVelocity, tDepth},
			exec:    (*Renderer).gbufferPass,
		},
		{
			Name:    "ssao",
			Flag:    SSAO,
			Inputs:  []string{tDepth, tNormal},
			Outputs: []string{tSSAOHalf, tSSAOBlur, tSSAO},
			exec:    (*Renderer).ssaoPass,
		},
		{
			// The trace reads the previous frame's color,
			// which only TAA keeps.
			Name:    "ssr",
			Flag:    SSR | TAA,
			Inputs:  []string{tDepth, tNormal, tMaterial, tVelocity, tTAAHistory, tSSRHistory},
			Outputs: []string{tSSRTrace, tSSRCurrent},
			cond:    func(r *Renderer, _ *frame) bool { return r.historyValid },
			exec:    (*Renderer).ssrPass,
		},
		{
			Name:     "lighting",
			Inputs:   []string{tAlbedo, tNormal, tMaterial, tDepth},
			Optional: []string{tShadow},
			Outputs:  []string{tDiffuse, tSpecular, tVolumetric},
			exec:     (*Renderer).lightingPass,
		},
		{
			Name:     "composition",
			Inputs:   []string{tAlbedo, tMaterial, tDiffuse, tSpecular, tVolumetric, tDepth},
			Optional: []string{tSSAO, tSSRCurrent},
			Outputs:  []string{tHDR},
			exec:     (*Renderer).compositionPass,
		},
		{
			Name:    "transparent",
			Outputs: []string{tHDR, tDepth},
			cond:    func(_ *Renderer, f *frame) bool { return len(f.rend.transparent) > 0 },
			exec:    (*Renderer).transparentPass,
		},
		{
			Name:    "taa",
			Flag:    TAA,
			Inputs:  []string{tHDR, tVelocity, tTAAHistory},
			Outputs: []string{tHDR2, tTAACurrent},
			Swap:    [2]string{tHDR, tHDR2},
			exec:    (*Renderer).taaPass,
		},
		{
			Name:   "bloom",
			Flag:   Bloom,
			Inputs: []string{tHDR},
			exec:   (*Renderer).bloomPass,
		},
		{
			Name:    "tonemapping",
			Inputs:  []string{tHDR},
			Outputs: []string{tLDR},
			exec:    (*Renderer).tonemappingPass,
		},
		{
			Name:    "fxaa",
			Flag:    FXAA,
			Inputs:  []string{tLDR},
			Outputs: []string{tLDR2},
			Swap:    [2]string{tLDR, tLDR2},
			exec:    postPass("PASS_FXAA"),
		},
		{
			Name:    "sharpening",
			Flag:    Sharpening,
			Inputs:  []string{tLDR},
			Outputs: []string{tLDR2},
			Swap:    [2]string{tLDR, tLDR2},
			exec:    postPass("PASS_LUMA_SHARPEN"),
		},
		{
			Name:    "chromatic_aberration",
			Flag:    ChromaticAberration,
			Inputs:  []string{tLDR},
			Outputs: []string{tLDR2},
			Swap:    [2]string{tLDR, tLDR2},
			exec:    postPass("PASS_CHROMATIC_ABERRATION"),
		},
		{
			Name: "present",
			exec: (*Renderer).presentPass,
		},
		{
			Name: "overlay",
			cond: func(r *Renderer, f *frame) bool {
				return len(r.lines) > 0 || f.flags&(AABB|LightGizmos|SceneGrid|PickingRay|PerformanceMetrics) != 0
			},
			exec: (*Renderer).overlayPass,
		},
	}
}

// halton returns the i-th element of the Halton sequence
// of the given base.
func halton(i uint64, base uint64) float32 {
	var r float32
	f := float32(1)
	for ; i > 0; i /= base {
		f /= float32(base)
		r += f * float32(i%base)
	}
	return r
}

// prepare computes the view, gathers the renderables
// and writes the constants of the frame.
func (r *Renderer) prepare(f *frame, sc *Scene) {
	r.rend.reset()
	w, h := r.targets.width, r.targets.height

	cam := DefaultCamera()
	var world linear.M4
	world.I()
	if n := r.rend.findCamera(sc); n != nil {
		cam = *n.Value.(*Camera)
		world = *n.World()
		r.rend.camera = n
	}
	f.view.setCamera(&cam, &world, float32(w)/float32(h), r.reverseZ)
	if r.hasPrevVP {
		f.view.prevVP = r.prevVP
	} else {
		f.view.prevVP = f.view.vp
	}
	r.rend.gather(sc, &f.view)
	r.lastView = f.view

	g := f.tab.Global()
	*g = layout.GlobalLayout{}
	g.SetVP(&f.view.vp)
	g.SetPrevVP(&f.view.prevVP)
	g.SetV(&f.view.v)
	g.SetP(&f.view.p)
	g.SetInvVP(&f.view.invVP)
	g.SetCamera(&f.view.pos, f.view.near, f.view.far)
	g.SetResolution(w, h)
	g.SetTime(f.time)
	if f.flags.IsSet(TAA) {
		i := f.n%8 + 1
		g.SetJitter((halton(i, 2)*2-1)/float32(w), (halton(i, 3)*2-1)/float32(h))
	}
	s := &r.cfg.Settings
	g.SetBloom(s.BloomIntensity)
	g.SetSharpen(s.SharpenStrength, s.SharpenClamp)
	g.SetFXAA(s.FXAASubpix, s.FXAAEdgeThreshold, s.FXAAEdgeThresholdMin)
	g.SetBlur(1, 0, 2)
	g.SetFrame(f.n)
	g.SetReverseZ(r.reverseZ)

	var sun *lightItem
	for i := range r.rend.lights {
		if r.rend.lights[i].light.typ == LDistant {
			sun = &r.rend.lights[i]
			break
		}
	}
	if r.rend.sun != nil {
		sun = r.rend.sun
	}
	if sun != nil {
		dir := sun.light.worldDirection(sun.world)
		g.SetSun(&dir, &sun.light.color, sun.light.intensity)
	}
	if r.rend.sun != nil {
		var lvp linear.M4
		r.lightViewProj(&lvp, r.rend.sun)
		g.SetLightVP(&lvp)
	}

	for _, s := range [][]drawItem{r.rend.opaque, r.rend.transparent} {
		for i := range s {
			blk, ok := f.alloc()
			if !ok {
				// Not drawn.
				continue
			}
			s[i].blk = blk
			d := f.tab.Draw(blk)
			*d = layout.DrawLayout{}
			d.SetWorld(s[i].world)
			d.SetPrevWorld(s[i].prevWorld())
			mat := s[i].model.Material
			if mat == nil {
				m := DefaultMaterial()
				mat = &m
			}
			d.SetAlbedo(&mat.Albedo)
			d.SetMaterial(mat.clamped())
		}
	}
}

// lightViewProj computes the view-projection matrix of
// a shadow-casting distant light. The projection bounds
// every visible opaque model.
func (r *Renderer) lightViewProj(dst *linear.M4, sun *lightItem) {
	box := linear.EmptyAABB()
	for i := range r.rend.opaque {
		b := &r.rend.opaque[i].bounds
		box.Extend(&b.Min)
		box.Extend(&b.Max)
	}
	c := box.Center()
	var ext linear.V3
	ext.Sub(&box.Max, &c)
	rad := max(ext.Len(), 1e-3)

	dir := sun.light.worldDirection(sun.world)
	var eye linear.V3
	eye.Scale(-2*rad, &dir)
	eye.Add(&eye, &c)
	up := linear.V3{0, 1, 0}
	if math32.Abs(dir[1]) > 0.99 {
		up = linear.V3{0, 0, 1}
	}
	var v, p linear.M4
	v.LookAt(&eye, &c, &up)
	p.Ortho(-rad, rad, -rad, rad, rad*0.01, rad*4, r.reverseZ)
	dst.Mul(&p, &v)
}

// clearDepth returns the depth clear value.
func (r *Renderer) clearDepth() float32 {
	if r.reverseZ {
		return 0
	}
	return 1
}

func setViewport(cb driver.CmdBuffer, width, height int) {
	cb.SetViewport(driver.Viewport{Width: float32(width), Height: float32(height), Zfar: 1})
	cb.SetScissor(driver.Scissor{Width: width, Height: height})
}

// quadDesc describes a full-screen pipeline.
// Both stages are compiled from file with the same
// defines.
func (r *Renderer) quadDesc(file string, binds driver.BindLayout, bs int, color []driver.PixelFmt, defines ...string) rhi.PipelineDesc {
	d := rhi.PipelineDesc{
		Vert:     shader.NewSource(file, driver.SVertex, defines...),
		Frag:     shader.NewSource(file, driver.SFragment, defines...),
		Layout:   binds,
		Vertex:   quadInput,
		Topology: driver.TTriStrip,
		Raster:   r.res.raster[rsCullNone].State(),
		Blend:    r.res.blend[bs].State(),
		DS:       r.res.ds[dsDisabled].State(),
	}
	copy(d.Color[:], color)
	return d
}

// meshDesc describes a pipeline that draws meshes.
func (r *Renderer) meshDesc(file string, binds driver.BindLayout, rs, bs, ds int, color []driver.PixelFmt) rhi.PipelineDesc {
	d := rhi.PipelineDesc{
		Vert:     shader.NewSource(file, driver.SVertex),
		Frag:     shader.NewSource(file, driver.SFragment),
		Layout:   binds,
		Vertex:   meshInput,
		Topology: driver.TTriangle,
		Raster:   r.res.raster[rs].State(),
		Blend:    r.res.blend[bs].State(),
		DS:       r.res.ds[ds].State(),
		DSFmt:    driver.D32f,
	}
	copy(d.Color[:], color)
	return d
}

var (
	gbufferFmts = []driver.PixelFmt{driver.RGBA8un, driver.RGBA16f, driver.RGBA8un, driver.RG16f}
	lightFmts   = []driver.PixelFmt{driver.RGBA16f, driver.RGBA16f, driver.RGBA16f}
	hdrFmt      = []driver.PixelFmt{driver.RGBA16f}
	ldrFmt      = []driver.PixelFmt{driver.RGBA8un}
	aoFmt       = []driver.PixelFmt{driver.R8un}
)

func (r *Renderer) brdfDesc() rhi.PipelineDesc {
	return r.quadDesc("brdf.wgsl", brdfBinds, bsDisabled, []driver.PixelFmt{driver.RG16f})
}

func (r *Renderer) shadowDesc() rhi.PipelineDesc {
	return rhi.PipelineDesc{
		Vert:     shader.NewSource("shadow.wgsl", driver.SVertex),
		Layout:   shadowBinds,
		Vertex:   shadowInput,
		Topology: driver.TTriangle,
		Raster:   r.res.raster[rsCullBackNoClip].State(),
		Blend:    r.res.blend[bsDisabled].State(),
		DS:       r.res.ds[dsEnabled].State(),
		DSFmt:    driver.D32f,
	}
}

func (r *Renderer) gbufferDesc() rhi.PipelineDesc {
	return r.meshDesc("gbuffer.wgsl", geometryBinds, rsCullBack, bsDisabled, dsEnabled, gbufferFmts)
}

func (r *Renderer) forwardDesc() rhi.PipelineDesc {
	return r.meshDesc("forward.wgsl", forwardBinds, rsCullNone, bsAlpha, dsReadOnly, hdrFmt)
}

// lightDefine returns the light shader permutation for
// typ.
func lightDefine(typ LightType) string {
	switch typ {
	case LPoint:
		return "POINT"
	case LSpot:
		return "SPOT"
	}
	return "DIRECTIONAL"
}

func (r *Renderer) lightDesc(typ LightType) rhi.PipelineDesc {
	return r.quadDesc("light.wgsl", lightBinds, bsColorAdd, lightFmts, lightDefine(typ))
}

// tonemappingDesc describes the pipeline that resolves
// tHDR into tLDR. Without Correction, tHDR is copied
// as is.
func (r *Renderer) tonemappingDesc(flags Flags) rhi.PipelineDesc {
	if flags.IsSet(Correction) {
		return r.quadDesc("quad.wgsl", quadBinds, bsDisabled, ldrFmt, "PASS_TONEMAPPING", "PASS_GAMMA_CORRECTION")
	}
	return r.quadDesc("quad.wgsl", quadBinds, bsDisabled, ldrFmt, "PASS_TEXTURE")
}

// presentDesc describes the pipeline that copies to the
// final target. Depth visualization needs its own
// permutation.
func (r *Renderer) presentDesc(format driver.PixelFmt, depth bool) rhi.PipelineDesc {
	out := []driver.PixelFmt{format}
	if depth {
		return r.quadDesc("quad.wgsl", depthQuadBinds, bsDisabled, out, "PASS_TEXTURE", "VIS_DEPTH")
	}
	return r.quadDesc("quad.wgsl", quadBinds, bsDisabled, out, "PASS_TEXTURE")
}

func (r *Renderer) lineDesc(format driver.PixelFmt) rhi.PipelineDesc {
	d := rhi.PipelineDesc{
		Vert:     shader.NewSource("line.wgsl", driver.SVertex),
		Frag:     shader.NewSource("line.wgsl", driver.SFragment),
		Layout:   lineBinds,
		Vertex:   lineInput,
		Topology: driver.TLine,
		Raster:   r.res.raster[rsCullNone].State(),
		Blend:    r.res.blend[bsAlpha].State(),
		DS:       r.res.ds[dsDisabled].State(),
	}
	d.Color[0] = format
	return d
}

func (r *Renderer) textDesc(format driver.PixelFmt) rhi.PipelineDesc {
	return r.quadDesc("quad.wgsl", quadBinds, bsAlpha, []driver.PixelFmt{format}, "PASS_TEXTURE")
}

// outputFormat returns the format of the final target.
func (r *Renderer) outputFormat() driver.PixelFmt {
	if r.sc != nil {
		return r.sc.Format()
	}
	return driver.RGBA8un
}

// pipelineSet returns the description of every pipeline
// that the current flags may use.
func (r *Renderer) pipelineSet() []rhi.PipelineDesc {
	flags := r.cfg.Flags
	out := r.outputFormat()
	set := []rhi.PipelineDesc{
		r.brdfDesc(),
		r.shadowDesc(),
		r.gbufferDesc(),
		r.lightDesc(LDistant),
		r.lightDesc(LPoint),
		r.lightDesc(LSpot),
		r.quadDesc("composition.wgsl", compositionBinds, bsDisabled, hdrFmt),
		r.forwardDesc(),
		r.tonemappingDesc(flags),
		r.presentDesc(out, flags.visualization() == Depth),
	}
	if flags.IsSet(SSAO) {
		set = append(set,
			r.quadDesc("ssao.wgsl", ssaoBinds, bsDisabled, aoFmt, "SSAO_GENERATE"),
			r.quadDesc("ssao.wgsl", quadBinds, bsDisabled, aoFmt, "SSAO_BLUR"),
			r.quadDesc("ssao.wgsl", quadBinds, bsDisabled, aoFmt, "SSAO_UPSAMPLE"))
	}
	if flags.IsSet(SSR | TAA) {
		set = append(set,
			r.quadDesc("ssr.wgsl", ssrTraceBinds, bsDisabled, hdrFmt, "SSR_TRACE"),
			r.quadDesc("ssr.wgsl", ssrResolveBinds, bsDisabled, hdrFmt, "SSR_RESOLVE"))
	}
	if flags.IsSet(TAA) {
		set = append(set, r.quadDesc("quad.wgsl", taaBinds, bsDisabled, lightFmts[:2], "PASS_TAA_RESOLVE"))
	}
	if flags.IsSet(Bloom) {
		set = append(set,
			r.quadDesc("quad.wgsl", quadBinds, bsDisabled, hdrFmt, "PASS_BLOOM_DOWNSAMPLE_LUMINANCE"),
			r.quadDesc("quad.wgsl", quadBinds, bsDisabled, hdrFmt, "PASS_BLOOM_DOWNSAMPLE"),
			r.quadDesc("quad.wgsl", quadBinds, bsBloom, hdrFmt, "PASS_BLOOM_UPSAMPLE_BLEND"))
	}
	for _, x := range []struct {
		flag   Flags
		define string
	}{
		{FXAA, "PASS_FXAA"},
		{Sharpening, "PASS_LUMA_SHARPEN"},
		{ChromaticAberration, "PASS_CHROMATIC_ABERRATION"},
	} {
		if flags.IsSet(x.flag) {
			set = append(set, r.quadDesc("quad.wgsl", quadBinds, bsDisabled, ldrFmt, x.define))
		}
	}
	if flags&(AABB|LightGizmos|SceneGrid|PickingRay) != 0 {
		set = append(set, r.lineDesc(out))
	}
	if flags.IsSet(PerformanceMetrics) {
		set = append(set, r.textDesc(out))
	}
	return set
}

// pipelines returns the driver pipelines of descs, or an
// error if any of them is not ready.
func (r *Renderer) pipelines(descs ...rhi.PipelineDesc) ([]driver.Pipeline, error) {
	pls := make([]driver.Pipeline, len(descs))
	var errs []error
	for i := range descs {
		pl, err := r.pipeline(&descs[i])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pls[i] = pl
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return pls, nil
}

// passConst allocates and fills a PassLayout.
func (f *frame) passConst(inWidth, inHeight int, x, y, z, w float32) int {
	blk, _ := f.alloc()
	l := f.tab.Pass(blk)
	*l = layout.PassLayout{}
	l.SetInputSize(inWidth, inHeight)
	l.SetParams(x, y, z, w)
	return blk
}

// quadDraw is a full-screen draw.
type quadDraw struct {
	pl     driver.Pipeline
	blk    int
	out    []driver.ImageView
	width  int
	height int
	load   driver.LoadOp
	tex    []driver.ImageView
	splr   *rhi.Sampler
}

// into sets the outputs of q to ts.
func (q quadDraw) into(ts ...*rhi.Texture) quadDraw {
	q.out = make([]driver.ImageView, len(ts))
	for i, t := range ts {
		q.out[i] = t.View()
	}
	q.width, q.height = ts[0].Size()
	return q
}

// drawQuad records q.
func (r *Renderer) drawQuad(f *frame, q quadDraw) {
	color := make([]driver.ColorTarget, len(q.out))
	for i, v := range q.out {
		color[i] = driver.ColorTarget{View: v, Load: q.load, Store: driver.SStore}
	}
	cb := f.cb
	cb.BeginPass(&driver.PassDesc{Color: color})
	cb.SetPipeline(q.pl)
	setViewport(cb, q.width, q.height)
	f.tab.BindGlobal(cb)
	if q.blk != 0 {
		f.tab.Bind(cb, q.blk)
	}
	for i, t := range q.tex {
		cb.SetTexture(i, t)
	}
	if q.splr != nil {
		cb.SetSampler(0, q.splr.Sampler())
	}
	r.res.drawQuad(cb)
	cb.EndPass()
}

func (r *Renderer) brdfPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(r.brdfDesc())
	if err != nil {
		return err
	}
	lut := r.target(f, tBRDF)
	r.drawQuad(f, quadDraw{pl: pls[0], load: driver.LDontCare}.into(lut))
	r.lutReady = true
	return nil
}

func (r *Renderer) shadowPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(r.shadowDesc())
	if err != nil {
		return err
	}
	shadow := r.target(f, tShadow)
	w, h := shadow.Size()
	cb := f.cb
	cb.BeginPass(&driver.PassDesc{DS: &driver.DSTarget{
		View:  shadow.View(),
		Load:  driver.LClear,
		Store: driver.SStore,
		Clear: r.clearDepth(),
	}})
	cb.SetPipeline(pls[0])
	setViewport(cb, w, h)
	f.tab.BindGlobal(cb)
	for i := range f.rend.opaque {
		it := &f.rend.opaque[i]
		if it.blk == 0 {
			continue
		}
		f.tab.Bind(cb, it.blk)
		it.model.Mesh.draw(cb)
	}
	cb.EndPass()
	return nil
}

// albedoView returns the albedo texture of it, or the
// white placeholder.
func (r *Renderer) albedoView(it *drawItem) driver.ImageView {
	if m := it.model.Material; m != nil && m.AlbedoTex != nil && m.AlbedoTex.IsValid() {
		return m.AlbedoTex.View()
	}
	return r.res.white.View()
}

func (r *Renderer) gbufferPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(r.gbufferDesc())
	if err != nil {
		return err
	}
	color := make([]driver.ColorTarget, 0, 4)
	for _, name := range []string{tAlbedo, tNormal, tMaterial, tVelocity} {
		color = append(color, driver.ColorTarget{View: r.target(f, name).View(), Load: driver.LClear, Store: driver.SStore})
	}
	depth := r.target(f, tDepth)
	w, h := depth.Size()
	cb := f.cb
	cb.BeginPass(&driver.PassDesc{
		Color: color,
		DS:    &driver.DSTarget{View: depth.View(), Load: driver.LClear, Store: driver.SStore, Clear: r.clearDepth()},
	})
	cb.SetPipeline(pls[0])
	setViewport(cb, w, h)
	f.tab.BindGlobal(cb)
	cb.SetSampler(0, r.res.splr[ssAnisoWrap].Sampler())
	for i := range f.rend.opaque {
		it := &f.rend.opaque[i]
		if it.blk == 0 {
			continue
		}
		f.tab.Bind(cb, it.blk)
		cb.SetTexture(0, r.albedoView(it))
		it.model.Mesh.draw(cb)
	}
	cb.EndPass()
	return nil
}

func (r *Renderer) ssaoPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(
		r.quadDesc("ssao.wgsl", ssaoBinds, bsDisabled, aoFmt, "SSAO_GENERATE"),
		r.quadDesc("ssao.wgsl", quadBinds, bsDisabled, aoFmt, "SSAO_BLUR"),
		r.quadDesc("ssao.wgsl", quadBinds, bsDisabled, aoFmt, "SSAO_UPSAMPLE"))
	if err != nil {
		return err
	}
	half, blurred, full := r.target(f, tSSAOHalf), r.target(f, tSSAOBlur), r.target(f, tSSAO)
	hw, hh := half.Size()
	var blk [3]int
	for i := range blk {
		blk[i] = f.passConst(hw, hh, 0, 0, 0, 0)
	}
	depth, normal := r.target(f, tDepth), r.target(f, tNormal)
	r.drawQuad(f, quadDraw{
		pl:   pls[0],
		blk:  blk[0],
		load: driver.LDontCare,
		tex:  []driver.ImageView{depth.View(), normal.View()},
	}.into(half))
	half.Transition(f.cb, driver.LShaderRead)
	r.drawQuad(f, quadDraw{
		pl:   pls[1],
		blk:  blk[1],
		load: driver.LDontCare,
		tex:  []driver.ImageView{half.View()},
		splr: r.res.splr[ssBilinearClamp],
	}.into(blurred))
	blurred.Transition(f.cb, driver.LShaderRead)
	r.drawQuad(f, quadDraw{
		pl:   pls[2],
		blk:  blk[2],
		load: driver.LDontCare,
		tex:  []driver.ImageView{blurred.View()},
		splr: r.res.splr[ssBilinearClamp],
	}.into(full))
	return nil
}

func (r *Renderer) ssrPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(
		r.quadDesc("ssr.wgsl", ssrTraceBinds, bsDisabled, hdrFmt, "SSR_TRACE"),
		r.quadDesc("ssr.wgsl", ssrResolveBinds, bsDisabled, hdrFmt, "SSR_RESOLVE"))
	if err != nil {
		return err
	}
	trace, cur, hist := r.target(f, tSSRTrace), r.target(f, tSSRCurrent), r.target(f, tSSRHistory)
	tw, th := trace.Size()
	blkTrace := f.passConst(tw, th, 0, 0, 0, 0)
	var weight float32
	if r.ssrHistoryValid {
		weight = 1
	}
	w, h := cur.Size()
	blkResolve := f.passConst(w, h, weight, 0, 0, 0)
	r.drawQuad(f, quadDraw{
		pl:   pls[0],
		blk:  blkTrace,
		load: driver.LDontCare,
		tex: []driver.ImageView{
			r.target(f, tDepth).View(),
			r.target(f, tNormal).View(),
			r.target(f, tMaterial).View(),
			r.target(f, tTAAHistory).View(),
		},
	}.into(trace))
	trace.Transition(f.cb, driver.LShaderRead)
	r.drawQuad(f, quadDraw{
		pl:   pls[1],
		blk:  blkResolve,
		load: driver.LDontCare,
		tex:  []driver.ImageView{trace.View(), hist.View(), r.target(f, tVelocity).View()},
		splr: r.res.splr[ssBilinearClamp],
	}.into(cur))
	return nil
}

func (r *Renderer) lightingPass(f *frame, _ *PassDesc) error {
	var descs [3]rhi.PipelineDesc
	var used [3]bool
	for _, l := range f.rend.lights {
		used[l.light.typ] = true
	}
	var need []rhi.PipelineDesc
	for typ := range descs {
		if used[typ] {
			descs[typ] = r.lightDesc(LightType(typ))
			need = append(need, descs[typ])
		}
	}
	if _, err := r.pipelines(need...); err != nil {
		return err
	}
	blks := make([]int, len(f.rend.lights))
	shadow := r.producedOptional(f, tShadow) != nil
	for i := range f.rend.lights {
		l := &f.rend.lights[i]
		blk, _ := f.alloc()
		blks[i] = blk
		l.light.store(f.tab.Light(blk), l.world, shadow && l == f.rend.sun)
	}

	// The shadow map is bound even if no light uses it.
	r.targets.get(tShadow).Transition(f.cb, driver.LShaderRead)

	color := make([]driver.ColorTarget, 0, 3)
	for _, name := range []string{tDiffuse, tSpecular, tVolumetric} {
		color = append(color, driver.ColorTarget{View: r.target(f, name).View(), Load: driver.LClear, Store: driver.SStore})
	}
	w, h := r.target(f, tDiffuse).Size()
	cb := f.cb
	cb.BeginPass(&driver.PassDesc{Color: color})
	setViewport(cb, w, h)
	for i, name := range []string{tAlbedo, tNormal, tMaterial, tDepth} {
		cb.SetTexture(i, r.target(f, name).View())
	}
	cb.SetTexture(4, r.targets.get(tShadow).View())
	cb.SetSampler(0, r.res.splr[ssCompareDepth].Sampler())
	for i := range f.rend.lights {
		pl, _ := r.pipeline(&descs[f.rend.lights[i].light.typ])
		cb.SetPipeline(pl)
		f.tab.BindGlobal(cb)
		f.tab.Bind(cb, blks[i])
		r.res.drawQuad(cb)
	}
	cb.EndPass()
	return nil
}

func (r *Renderer) compositionPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(r.quadDesc("composition.wgsl", compositionBinds, bsDisabled, hdrFmt))
	if err != nil {
		return err
	}
	hdr := r.target(f, tHDR)
	w, h := hdr.Size()
	amb := f.sky.Ambient
	blk := f.passConst(w, h, amb[0], amb[1], amb[2], 0)
	f.tab.Pass(blk).SetColors(&f.sky.Zenith, &f.sky.Horizon)
	tex := make([]driver.ImageView, 0, 8)
	for _, name := range []string{tAlbedo, tMaterial, tDiffuse, tSpecular, tVolumetric, tDepth} {
		tex = append(tex, r.target(f, name).View())
	}
	tex = append(tex, r.optional(f, tSSAO, r.res.white), r.optional(f, tSSRCurrent, r.res.black))
	r.drawQuad(f, quadDraw{
		pl:   pls[0],
		blk:  blk,
		load: driver.LDontCare,
		tex:  tex,
		splr: r.res.splr[ssBilinearClamp],
	}.into(hdr))
	return nil
}

func (r *Renderer) transparentPass(f *frame, _ *PassDesc) error {
	if !f.produced[f.resolve(tHDR)] {
		return fmt.Errorf("input %s was not produced", f.resolve(tHDR))
	}
	pls, err := r.pipelines(r.forwardDesc())
	if err != nil {
		return err
	}
	lut := r.res.black.View()
	if r.lutReady {
		t := r.target(f, tBRDF)
		t.Transition(f.cb, driver.LShaderRead)
		lut = t.View()
	}
	hdr, depth := r.target(f, tHDR), r.target(f, tDepth)
	w, h := hdr.Size()
	cb := f.cb
	cb.BeginPass(&driver.PassDesc{
		Color: []driver.ColorTarget{{View: hdr.View(), Load: driver.LLoad, Store: driver.SStore}},
		DS:    &driver.DSTarget{View: depth.View(), Load: driver.LLoad, Store: driver.SStore},
	})
	cb.SetPipeline(pls[0])
	setViewport(cb, w, h)
	f.tab.BindGlobal(cb)
	cb.SetTexture(1, lut)
	cb.SetSampler(0, r.res.splr[ssAnisoWrap].Sampler())
	for i := range f.rend.transparent {
		it := &f.rend.transparent[i]
		if it.blk == 0 {
			continue
		}
		f.tab.Bind(cb, it.blk)
		cb.SetTexture(0, r.albedoView(it))
		it.model.Mesh.draw(cb)
	}
	cb.EndPass()
	return nil
}

func (r *Renderer) taaPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(r.quadDesc("quad.wgsl", taaBinds, bsDisabled, lightFmts[:2], "PASS_TAA_RESOLVE"))
	if err != nil {
		return err
	}
	hdr := r.target(f, tHDR)
	w, h := hdr.Size()
	var weight float32
	if r.historyValid {
		weight = 1
	}
	blk := f.passConst(w, h, weight, 0, 0, 0)
	r.drawQuad(f, quadDraw{
		pl:   pls[0],
		blk:  blk,
		load: driver.LDontCare,
		tex:  []driver.ImageView{hdr.View(), r.target(f, tTAAHistory).View(), r.target(f, tVelocity).View()},
		splr: r.res.splr[ssBilinearClamp],
	}.into(r.target(f, tHDR2), r.target(f, tTAACurrent)))
	return nil
}

func (r *Renderer) bloomPass(f *frame, _ *PassDesc) error {
	n := len(r.targets.bloom)
	if n == 0 {
		return errors.New("no bloom levels at this resolution")
	}
	levels := make([]*rhi.Texture, n)
	for i := range levels {
		name := bloomName(i)
		if err := r.targets.check(name); err != nil {
			return err
		}
		levels[i] = r.targets.get(name)
	}
	pls, err := r.pipelines(
		r.quadDesc("quad.wgsl", quadBinds, bsDisabled, hdrFmt, "PASS_BLOOM_DOWNSAMPLE_LUMINANCE"),
		r.quadDesc("quad.wgsl", quadBinds, bsDisabled, hdrFmt, "PASS_BLOOM_DOWNSAMPLE"),
		r.quadDesc("quad.wgsl", quadBinds, bsBloom, hdrFmt, "PASS_BLOOM_UPSAMPLE_BLEND"))
	if err != nil {
		return err
	}
	hdr := r.target(f, tHDR)
	s := &r.cfg.Settings

	// Downsample: hdr → 0 → 1 → … → n-1.
	// Upsample: n-1 → n-2 → … → 0 → hdr.
	down := make([]int, n)
	up := make([]int, n)
	for i := range n {
		src := hdr
		if i > 0 {
			src = levels[i-1]
		}
		w, h := src.Size()
		down[i] = f.passConst(w, h, s.BloomThreshold, 0, 0, 0)
		w, h = levels[i].Size()
		intensity := float32(1)
		if i == 0 {
			intensity = s.BloomIntensity
		}
		up[i] = f.passConst(w, h, 0, intensity, 0, 0)
	}

	splr := r.res.splr[ssBilinearClamp]
	for i := range n {
		src, pl := hdr, pls[0]
		if i > 0 {
			src, pl = levels[i-1], pls[1]
			src.Transition(f.cb, driver.LShaderRead)
		}
		levels[i].Transition(f.cb, driver.LColorTarget)
		r.drawQuad(f, quadDraw{
			pl:   pl,
			blk:  down[i],
			load: driver.LDontCare,
			tex:  []driver.ImageView{src.View()},
			splr: splr,
		}.into(levels[i]))
	}
	for i := n - 1; i >= 0; i-- {
		dst := hdr
		if i > 0 {
			dst = levels[i-1]
		}
		levels[i].Transition(f.cb, driver.LShaderRead)
		dst.Transition(f.cb, driver.LColorTarget)
		r.drawQuad(f, quadDraw{
			pl:   pls[2],
			blk:  up[i],
			load: driver.LLoad,
			tex:  []driver.ImageView{levels[i].View()},
			splr: splr,
		}.into(dst))
	}
	return nil
}

func (r *Renderer) tonemappingPass(f *frame, _ *PassDesc) error {
	pls, err := r.pipelines(r.tonemappingDesc(f.flags))
	if err != nil {
		return err
	}
	hdr := r.target(f, tHDR)
	w, h := hdr.Size()
	blk := f.passConst(w, h, 0, 0, 0, 0)
	r.drawQuad(f, quadDraw{
		pl:   pls[0],
		blk:  blk,
		load: driver.LDontCare,
		tex:  []driver.ImageView{hdr.View()},
		splr: r.res.splr[ssBilinearClamp],
	}.into(r.target(f, tLDR)))
	return nil
}

// postPass returns the exec function of an LDR
// post-processing pass that reads tLDR and writes tLDR2.
func postPass(define string) func(*Renderer, *frame, *PassDesc) error {
	return func(r *Renderer, f *frame, _ *PassDesc) error {
		pls, err := r.pipelines(r.quadDesc("quad.wgsl", quadBinds, bsDisabled, ldrFmt, define))
		if err != nil {
			return err
		}
		src := r.target(f, tLDR)
		w, h := src.Size()
		blk := f.passConst(w, h, r.cfg.Settings.ChromaticAberration, 0, 0, 0)
		r.drawQuad(f, quadDraw{
			pl:   pls[0],
			blk:  blk,
			load: driver.LDontCare,
			tex:  []driver.ImageView{src.View()},
			splr: r.res.splr[ssBilinearClamp],
		}.into(r.target(f, tLDR2)))
		return nil
	}
}

// visualized maps visualization flags to the G-buffer
// target they show.
var visualized = map[Flags]string{
	Albedo:         tAlbedo,
	Normal:         tNormal,
	MaterialParams: tMaterial,
	Velocity:       tVelocity,
	Depth:          tDepth,
}

// presentPass copies the final image (or the visualized
// G-buffer target) to the output.
// The output is cleared if there is nothing to copy, so
// that it is always defined when presented.
func (r *Renderer) presentPass(f *frame, _ *PassDesc) error {
	vis := f.flags.visualization()
	name := tLDR
	if vis != 0 {
		name = visualized[vis]
	}
	var (
		pls []driver.Pipeline
		blk int
		err error
	)
	src := r.target(f, name)
	if !f.produced[f.resolve(name)] {
		err = fmt.Errorf("input %s was not produced", f.resolve(name))
	} else if pls, err = r.pipelines(r.presentDesc(f.outFmt, vis == Depth)); err == nil {
		w, h := src.Size()
		blk = f.passConst(w, h, 0, 0, 0, 0)
	}
	if err != nil {
		f.cb.BeginPass(&driver.PassDesc{Color: []driver.ColorTarget{{
			View:  f.out,
			Load:  driver.LClear,
			Store: driver.SStore,
			Clear: [4]float32{0, 0, 0, 1},
		}}})
		f.cb.EndPass()
		return err
	}
	src.Transition(f.cb, driver.LShaderRead)
	splr := r.res.splr[ssBilinearClamp]
	if vis == Depth {
		splr = r.res.splr[ssPointClamp]
	}
	r.drawQuad(f, quadDraw{
		pl:     pls[0],
		blk:    blk,
		out:    []driver.ImageView{f.out},
		width:  f.outW,
		height: f.outH,
		load:   driver.LDontCare,
		tex:    []driver.ImageView{src.View()},
		splr:   splr,
	})
	return nil
}
