// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"unsafe"

	"gviegas/rend3/driver"
	"gviegas/rend3/rhi"
)

// Depth/stencil modes.
const (
	dsEnabled = iota
	dsReadOnly
	dsDisabled
	dsCount
)

// Rasterizer modes.
const (
	rsCullBack = iota
	rsCullFront
	rsCullNone
	rsCullBackWire
	rsCullFrontWire
	rsCullNoneWire
	rsCullBackNoClip
	rsCount
)

// Blend modes.
const (
	bsDisabled = iota
	bsAlpha
	bsColorAdd
	bsBloom
	bsCount
)

// Samplers.
const (
	ssCompareDepth = iota
	ssPointClamp
	ssBilinearClamp
	ssBilinearWrap
	ssTrilinearClamp
	ssAnisoWrap
	ssCount
)

// Vertex layouts.
var (
	meshInput = rhi.VertexLayout{
		Stride: vertexStride,
		N:      3,
		In: [rhi.MaxVertexIn]driver.VertexIn{
			{Format: driver.Float32x3, Offset: 0, Nr: 0},
			{Format: driver.Float32x3, Offset: 12, Nr: 1},
			{Format: driver.Float32x2, Offset: 24, Nr: 2},
		},
	}
	shadowInput = rhi.VertexLayout{
		Stride: vertexStride,
		N:      1,
		In:     [rhi.MaxVertexIn]driver.VertexIn{{Format: driver.Float32x3}},
	}
	quadInput = rhi.VertexLayout{
		Stride: 16,
		N:      2,
		In: [rhi.MaxVertexIn]driver.VertexIn{
			{Format: driver.Float32x2, Offset: 0, Nr: 0},
			{Format: driver.Float32x2, Offset: 8, Nr: 1},
		},
	}
	lineInput = rhi.VertexLayout{
		Stride: lineStride,
		N:      2,
		In: [rhi.MaxVertexIn]driver.VertexIn{
			{Format: driver.Float32x3, Offset: 0, Nr: 0},
			{Format: driver.Float32x4, Offset: 12, Nr: 1},
		},
	}
)

// Bind layouts.
// Constant slot 0 holds the global constants and slot 1
// the per-draw, per-light or per-pass constants.
var (
	geometryBinds    = driver.BindLayout{Const: 2, Tex: 1, Splr: 1}
	forwardBinds     = driver.BindLayout{Const: 2, Tex: 2, Splr: 1}
	shadowBinds      = driver.BindLayout{Const: 2}
	lightBinds       = driver.BindLayout{Const: 2, Tex: 5, Splr: 1, DepthTex: 1<<3 | 1<<4, CmpSplr: 1}
	compositionBinds = driver.BindLayout{Const: 2, Tex: 8, Splr: 1, DepthTex: 1 << 5}
	ssaoBinds        = driver.BindLayout{Const: 2, Tex: 2, DepthTex: 1}
	ssrTraceBinds    = driver.BindLayout{Const: 2, Tex: 4, DepthTex: 1}
	ssrResolveBinds  = driver.BindLayout{Const: 2, Tex: 3, Splr: 1}
	quadBinds        = driver.BindLayout{Const: 2, Tex: 1, Splr: 1}
	depthQuadBinds   = driver.BindLayout{Const: 2, Tex: 1, Splr: 1, DepthTex: 1}
	taaBinds         = driver.BindLayout{Const: 2, Tex: 3, Splr: 1}
	brdfBinds        = driver.BindLayout{Const: 1}
	lineBinds        = driver.BindLayout{Const: 1}
)

// quadVertices is a triangle strip of position and
// texture coordinates covering the viewport.
var quadVertices = [16]float32{
	-1, -1, 0, 1,
	1, -1, 1, 1,
	-1, 1, 0, 0,
	1, 1, 1, 0,
}

// resources holds the states, samplers and placeholder
// textures that passes share.
type resources struct {
	ds     [dsCount]*rhi.DepthStencilState
	raster [rsCount]*rhi.RasterizerState
	blend  [bsCount]*rhi.BlendState
	splr   [ssCount]*rhi.Sampler
	quad   *rhi.VertexBuffer
	// 1x1 placeholders for optional inputs.
	white *rhi.Texture
	black *rhi.Texture
}

func newResources(dev *rhi.Device, reverseZ bool) (*resources, error) {
	var r resources
	cmp, cmpEq := driver.CLess, driver.CLessEqual
	if reverseZ {
		cmp, cmpEq = driver.CGreater, driver.CGreaterEqual
	}

	r.ds[dsEnabled] = rhi.NewDepthStencilState(dev, &rhi.DepthStencilDesc{Name: "depth enabled", Test: true, Write: true, Cmp: cmp})
	r.ds[dsReadOnly] = rhi.NewDepthStencilState(dev, &rhi.DepthStencilDesc{Name: "depth read-only", Test: true, Cmp: cmpEq})
	r.ds[dsDisabled] = rhi.NewDepthStencilState(dev, &rhi.DepthStencilDesc{Name: "depth disabled"})

	for i, x := range [rsCount]struct {
		name string
		cull driver.CullMode
		fill driver.FillMode
		clip bool
	}{
		{"cull back", driver.CBack, driver.FFill, true},
		{"cull front", driver.CFront, driver.FFill, true},
		{"cull none", driver.CNone, driver.FFill, true},
		{"cull back wireframe", driver.CBack, driver.FLines, true},
		{"cull front wireframe", driver.CFront, driver.FLines, true},
		{"cull none wireframe", driver.CNone, driver.FLines, true},
		{"cull back no clip", driver.CBack, driver.FFill, false},
	} {
		if x.fill != driver.FFill && !dev.Caps().NonSolidFill {
			continue
		}
		r.raster[i] = rhi.NewRasterizerState(dev, &rhi.RasterizerDesc{
			Name:      x.name,
			Cull:      x.cull,
			Fill:      x.fill,
			DepthClip: x.clip,
		})
	}

	r.blend[bsDisabled] = rhi.NewBlendState(dev, &rhi.BlendDesc{Name: "blend disabled"})
	r.blend[bsAlpha] = rhi.NewBlendState(dev, &rhi.BlendDesc{
		Name:     "alpha blend",
		Enable:   true,
		SrcColor: driver.BSrcAlpha,
		DstColor: driver.BInvSrcAlpha,
		SrcAlpha: driver.BOne,
		DstAlpha: driver.BInvSrcAlpha,
	})
	r.blend[bsColorAdd] = rhi.NewBlendState(dev, &rhi.BlendDesc{
		Name:     "color add",
		Enable:   true,
		SrcColor: driver.BOne,
		DstColor: driver.BOne,
		SrcAlpha: driver.BZero,
		DstAlpha: driver.BOne,
	})
	r.blend[bsBloom] = rhi.NewBlendState(dev, &rhi.BlendDesc{
		Name:     "bloom",
		Enable:   true,
		SrcColor: driver.BOne,
		DstColor: driver.BOne,
		SrcAlpha: driver.BOne,
		DstAlpha: driver.BOne,
	})

	r.splr[ssCompareDepth] = rhi.NewSampler(dev, &rhi.SamplerDesc{
		Name:    "compare depth",
		Min:     driver.FLinear,
		Mag:     driver.FLinear,
		Addr:    driver.AClamp,
		Compare: true,
		Cmp:     cmp,
	})
	r.splr[ssPointClamp] = rhi.NewSampler(dev, &rhi.SamplerDesc{Name: "point clamp", Addr: driver.AClamp})
	r.splr[ssBilinearClamp] = rhi.NewSampler(dev, &rhi.SamplerDesc{Name: "bilinear clamp", Min: driver.FLinear, Mag: driver.FLinear, Addr: driver.AClamp})
	r.splr[ssBilinearWrap] = rhi.NewSampler(dev, &rhi.SamplerDesc{Name: "bilinear wrap", Min: driver.FLinear, Mag: driver.FLinear, Addr: driver.AWrap})
	r.splr[ssTrilinearClamp] = rhi.NewSampler(dev, &rhi.SamplerDesc{Name: "trilinear clamp", Min: driver.FLinear, Mag: driver.FLinear, Mip: driver.FLinear, Addr: driver.AClamp})
	r.splr[ssAnisoWrap] = rhi.NewSampler(dev, &rhi.SamplerDesc{Name: "anisotropic wrap", Min: driver.FLinear, Mag: driver.FLinear, Mip: driver.FLinear, Addr: driver.AWrap, Anisotropy: 16})

	r.white = solidTexture(dev, "white", driver.RGBA8un, []byte{255, 255, 255, 255})
	r.black = solidTexture(dev, "black", driver.RGBA8un, []byte{0, 0, 0, 0})

	if err := r.newQuad(dev); err != nil {
		r.destroy()
		return nil, err
	}
	if err := r.check(); err != nil {
		r.destroy()
		return nil, err
	}
	return &r, nil
}

// newQuad (re)creates the full-screen quad.
func (r *resources) newQuad(dev *rhi.Device) error {
	if r.quad != nil {
		r.quad.Destroy()
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&quadVertices[0])), len(quadVertices)*4)
	r.quad = rhi.NewVertexBuffer(dev, data, 16).SetName("quad")
	return r.quad.Err()
}

// check returns the errors of every invalid resource.
func (r *resources) check() error {
	var errs []error
	add := func(v interface {
		IsValid() bool
		Err() error
	}) {
		if !v.IsValid() {
			errs = append(errs, v.Err())
		}
	}
	for _, x := range r.ds {
		add(x)
	}
	for _, x := range r.raster {
		if x != nil {
			add(x)
		}
	}
	for _, x := range r.blend {
		add(x)
	}
	for _, x := range r.splr {
		add(x)
	}
	add(r.white)
	add(r.black)
	add(r.quad)
	return errors.Join(errs...)
}

// drawQuad draws the full-screen quad.
func (r *resources) drawQuad(cb driver.CmdBuffer) {
	cb.SetVertexBuf(r.quad.Buffer(), 0)
	cb.Draw(4, 1, 0, 0)
}

func (r *resources) destroy() {
	for _, x := range r.ds {
		if x != nil {
			x.Destroy()
		}
	}
	for _, x := range r.raster {
		if x != nil {
			x.Destroy()
		}
	}
	for _, x := range r.blend {
		if x != nil {
			x.Destroy()
		}
	}
	for _, x := range r.splr {
		if x != nil {
			x.Destroy()
		}
	}
	for _, x := range []*rhi.Texture{r.white, r.black} {
		if x != nil {
			x.Destroy()
		}
	}
	if r.quad != nil {
		r.quad.Destroy()
	}
}
