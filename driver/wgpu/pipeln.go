// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"gviegas/rend3/driver"
)

// bindLayout is the bind group layout and pipeline
// layout that a driver.BindLayout describes.
// All bindings live in group 0.
type bindLayout struct {
	desc driver.BindLayout
	bgl  hal.BindGroupLayout
	pl   hal.PipelineLayout
}

func (l *bindLayout) destroy(dev hal.Device) {
	if l.pl != nil {
		dev.DestroyPipelineLayout(l.pl)
	}
	if l.bgl != nil {
		dev.DestroyBindGroupLayout(l.bgl)
	}
	*l = bindLayout{}
}

// layoutEntries returns the bind group layout entries
// for desc.
// Depth textures are declared as unfilterable since
// shaders read them with textureLoad.
func layoutEntries(desc driver.BindLayout) []gputypes.BindGroupLayoutEntry {
	const vis = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	ents := make([]gputypes.BindGroupLayoutEntry, 0, desc.Const+desc.Tex+desc.Splr)
	for i := range desc.Const {
		ents = append(ents, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(driver.ConstBinding(i)),
			Visibility: vis,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		})
	}
	for i := range desc.Tex {
		st := gputypes.TextureSampleTypeFloat
		if desc.DepthTex&(1<<i) != 0 {
			st = gputypes.TextureSampleTypeUnfilterableFloat
		}
		ents = append(ents, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(driver.TexBinding(i)),
			Visibility: vis,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    st,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	for i := range desc.Splr {
		typ := gputypes.SamplerBindingTypeFiltering
		if desc.CmpSplr&(1<<i) != 0 {
			typ = gputypes.SamplerBindingTypeComparison
		}
		ents = append(ents, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(driver.SplrBinding(i)),
			Visibility: vis,
			Sampler:    &gputypes.SamplerBindingLayout{Type: typ},
		})
	}
	return ents
}

// layoutFor returns the cached layout for desc,
// creating it if needed.
func (g *GPU) layoutFor(desc driver.BindLayout) (*bindLayout, error) {
	if desc.Const > driver.MaxConstBuf || desc.Tex > driver.MaxTexture || desc.Splr > driver.MaxSampler {
		return nil, driver.NewError(driver.ErrResource, "CreateBindGroupLayout", "", fmt.Sprintf("too many bindings %+v", desc))
	}
	g.bglMu.Lock()
	defer g.bglMu.Unlock()
	if l, ok := g.bgls[desc]; ok {
		return l, nil
	}
	l := &bindLayout{desc: desc}
	var err error
	if l.bgl, err = g.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Entries: layoutEntries(desc)}); err != nil {
		return nil, halError(err, "CreateBindGroupLayout", "")
	}
	if l.pl, err = g.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		BindGroupLayouts: []hal.BindGroupLayout{l.bgl},
	}); err != nil {
		l.destroy(g.dev)
		return nil, halError(err, "CreatePipelineLayout", "")
	}
	g.bgls[desc] = l
	return l, nil
}

// pipeline implements driver.Pipeline.
type pipeline struct {
	g      *GPU
	pl     hal.RenderPipeline
	layout *bindLayout
}

// NewPipeline creates a new graphics pipeline.
func (g *GPU) NewPipeline(state *driver.GraphState) (driver.Pipeline, error) {
	vs, ok := state.VertFunc.Code.(*shaderCode)
	if !ok || vs == nil {
		return nil, driver.NewError(driver.ErrResource, "CreateRenderPipeline", "", "missing vertex function")
	}
	if state.Raster.Fill != driver.FFill {
		return nil, driver.NewError(driver.ErrResource, "CreateRenderPipeline", "", "non-solid fill mode not supported")
	}
	layout, err := g.layoutFor(state.Layout)
	if err != nil {
		return nil, err
	}

	desc := hal.RenderPipelineDescriptor{
		Layout: layout.pl,
		Vertex: hal.VertexState{Module: vs.mod, EntryPoint: state.VertFunc.Name},
		Primitive: gputypes.PrimitiveState{
			Topology: convTopology(state.Topology),
			CullMode: convCullMode(state.Raster.Cull),
			// Depth clip is the WebGPU default.
			UnclippedDepth: !state.Raster.DepthClip,
		},
		Multisample: gputypes.DefaultMultisampleState(),
	}
	if state.Raster.Clockwise {
		desc.Primitive.FrontFace = gputypes.FrontFaceCW
	}
	if state.Topology == driver.TTriStrip || state.Topology == driver.TLnStrip {
		f := gputypes.IndexFormatUint32
		desc.Primitive.StripIndexFormat = &f
	}
	if len(state.Input) > 0 {
		attrs := make([]gputypes.VertexAttribute, len(state.Input))
		for i, in := range state.Input {
			attrs[i] = gputypes.VertexAttribute{
				Format:         convVertexFmt(in.Format),
				Offset:         uint64(in.Offset),
				ShaderLocation: uint32(in.Nr),
			}
		}
		desc.Vertex.Buffers = []gputypes.VertexBufferLayout{{
			ArrayStride: uint64(state.Stride),
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  attrs,
		}}
	}

	if state.DSFmt != driver.FNone {
		ds := &hal.DepthStencilState{
			Format:            convPixelFmt(state.DSFmt),
			DepthWriteEnabled: state.DS.DepthTest && state.DS.DepthWrite,
			DepthCompare:      gputypes.CompareFunctionAlways,
			StencilFront:      hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilBack:       hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
		}
		if state.DS.DepthTest {
			ds.DepthCompare = convCmpFunc(state.DS.DepthCmp)
		}
		if state.Raster.DepthBias {
			ds.DepthBias = int32(state.Raster.BiasValue)
			ds.DepthBiasSlopeScale = state.Raster.BiasSlope
			ds.DepthBiasClamp = state.Raster.BiasClamp
		}
		desc.DepthStencil = ds
	}

	if len(state.ColorFmt) > 0 {
		fs, ok := state.FragFunc.Code.(*shaderCode)
		if !ok || fs == nil {
			return nil, driver.NewError(driver.ErrResource, "CreateRenderPipeline", "", "missing fragment function")
		}
		targs := make([]gputypes.ColorTargetState, len(state.ColorFmt))
		for i, f := range state.ColorFmt {
			targs[i] = gputypes.ColorTargetState{
				Format:    convPixelFmt(f),
				WriteMask: convColorMask(state.Blend.WriteMask),
			}
			if state.Blend.Blend {
				b := state.Blend
				targs[i].Blend = &gputypes.BlendState{
					Color: gputypes.BlendComponent{
						SrcFactor: convBlendFac(b.SrcFac[0]),
						DstFactor: convBlendFac(b.DstFac[0]),
						Operation: convBlendOp(b.Op[0]),
					},
					Alpha: gputypes.BlendComponent{
						SrcFactor: convBlendFac(b.SrcFac[1]),
						DstFactor: convBlendFac(b.DstFac[1]),
						Operation: convBlendOp(b.Op[1]),
					},
				}
			}
		}
		desc.Fragment = &hal.FragmentState{Module: fs.mod, EntryPoint: state.FragFunc.Name, Targets: targs}
	}

	pl, err := g.dev.CreateRenderPipeline(&desc)
	if err != nil {
		return nil, halError(err, "CreateRenderPipeline", state.VertFunc.Name)
	}
	return &pipeline{g: g, pl: pl, layout: layout}, nil
}

// Destroy destroys the pipeline.
// The layout is cached by the GPU and outlives it.
func (p *pipeline) Destroy() {
	if p == nil || p.pl == nil {
		return
	}
	p.g.dev.DestroyRenderPipeline(p.pl)
	p.pl = nil
	p.layout = nil
}
