// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// descLayout is the descriptor set layout and pipeline
// layout that a driver.BindLayout describes.
// All bindings live in set 0.
type descLayout struct {
	desc driver.BindLayout
	set  vk.DescriptorSetLayout
	pl   vk.PipelineLayout
}

func (l *descLayout) destroy(dev vk.Device) {
	if l.pl != nil {
		vk.DestroyPipelineLayout(dev, l.pl, nil)
	}
	if l.set != nil {
		vk.DestroyDescriptorSetLayout(dev, l.set, nil)
	}
	*l = descLayout{}
}

// empty returns whether the layout has no bindings.
func (l *descLayout) empty() bool {
	return l.desc.Const+l.desc.Tex+l.desc.Splr == 0
}

// layoutBindings returns the descriptor set layout
// bindings for desc.
// Textures and samplers are separate descriptors so
// that slots can be combined freely in shaders.
func layoutBindings(desc driver.BindLayout) []vk.DescriptorSetLayoutBinding {
	const stages = vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
	binds := make([]vk.DescriptorSetLayoutBinding, 0, desc.Const+desc.Tex+desc.Splr)
	add := func(n int, typ vk.DescriptorType) {
		binds = append(binds, vk.DescriptorSetLayoutBinding{
			Binding:         uint32(n),
			DescriptorType:  typ,
			DescriptorCount: 1,
			StageFlags:      stages,
		})
	}
	for i := range desc.Const {
		add(driver.ConstBinding(i), vk.DescriptorTypeUniformBuffer)
	}
	for i := range desc.Tex {
		add(driver.TexBinding(i), vk.DescriptorTypeSampledImage)
	}
	for i := range desc.Splr {
		add(driver.SplrBinding(i), vk.DescriptorTypeSampler)
	}
	return binds
}

// layoutFor returns the cached layout for desc,
// creating it if needed.
func (g *GPU) layoutFor(desc driver.BindLayout) (*descLayout, error) {
	if desc.Const > driver.MaxConstBuf || desc.Tex > driver.MaxTexture || desc.Splr > driver.MaxSampler {
		return nil, driver.NewError(driver.ErrResource, "vkCreateDescriptorSetLayout", "", fmt.Sprintf("too many bindings %+v", desc))
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.layouts[desc]; ok {
		return l, nil
	}
	l := &descLayout{desc: desc}
	binds := layoutBindings(desc)
	if err := checkResult(vk.CreateDescriptorSetLayout(g.dev, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}, nil, &l.set), "vkCreateDescriptorSetLayout", ""); err != nil {
		return nil, err
	}
	if err := checkResult(vk.CreatePipelineLayout(g.dev, &vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{l.set},
	}, nil, &l.pl), "vkCreatePipelineLayout", ""); err != nil {
		l.destroy(g.dev)
		return nil, err
	}
	g.layouts[desc] = l
	return l, nil
}

// pipeline implements driver.Pipeline.
type pipeline struct {
	g      *GPU
	pl     vk.Pipeline
	layout *descLayout
}

// NewPipeline creates a new graphics pipeline.
// Viewport and scissor are dynamic state.
func (g *GPU) NewPipeline(state *driver.GraphState) (driver.Pipeline, error) {
	vs, ok := state.VertFunc.Code.(*shaderCode)
	if !ok || vs == nil {
		return nil, driver.NewError(driver.ErrResource, "vkCreateGraphicsPipelines", "", "missing vertex function")
	}
	if state.Raster.Fill != driver.FFill && !g.caps.NonSolidFill {
		return nil, driver.NewError(driver.ErrResource, "vkCreateGraphicsPipelines", "", "non-solid fill mode not supported")
	}
	if len(state.ColorFmt) > maxColorTargets {
		return nil, driver.NewError(driver.ErrResource, "vkCreateGraphicsPipelines", "", fmt.Sprintf("too many color targets %d", len(state.ColorFmt)))
	}
	layout, err := g.layoutFor(state.Layout)
	if err != nil {
		return nil, err
	}
	rp, err := g.renderPassFor(compatKey(state.ColorFmt, state.DSFmt))
	if err != nil {
		return nil, err
	}

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vs.mod,
		PName:  cstr(state.VertFunc.Name),
	}}
	if len(state.ColorFmt) > 0 {
		fs, ok := state.FragFunc.Code.(*shaderCode)
		if !ok || fs == nil {
			return nil, driver.NewError(driver.ErrResource, "vkCreateGraphicsPipelines", "", "missing fragment function")
		}
		stages = append(stages, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fs.mod,
			PName:  cstr(state.FragFunc.Name),
		})
	}

	input := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if len(state.Input) > 0 {
		attrs := make([]vk.VertexInputAttributeDescription, len(state.Input))
		for i, in := range state.Input {
			attrs[i] = vk.VertexInputAttributeDescription{
				Location: uint32(in.Nr),
				Binding:  0,
				Format:   convVertexFmt(in.Format),
				Offset:   uint32(in.Offset),
			}
		}
		input.VertexBindingDescriptionCount = 1
		input.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    uint32(state.Stride),
			InputRate: vk.VertexInputRateVertex,
		}}
		input.VertexAttributeDescriptionCount = uint32(len(attrs))
		input.PVertexAttributeDescriptions = attrs
	}

	rs := state.Raster
	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: convFillMode(rs.Fill),
		CullMode:    convCullMode(rs.Cull),
		FrontFace:   vk.FrontFaceCounterClockwise,
		LineWidth:   1,
	}
	if rs.Clockwise {
		raster.FrontFace = vk.FrontFaceClockwise
	}
	if !rs.DepthClip {
		raster.DepthClampEnable = vk.True
	}
	if rs.DepthBias {
		raster.DepthBiasEnable = vk.True
		raster.DepthBiasConstantFactor = rs.BiasValue
		raster.DepthBiasSlopeFactor = rs.BiasSlope
		raster.DepthBiasClamp = rs.BiasClamp
	}

	ds := vk.PipelineDepthStencilStateCreateInfo{
		SType:          vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthCompareOp: vk.CompareOpAlways,
		Front:          vk.StencilOpState{FailOp: vk.StencilOpKeep, PassOp: vk.StencilOpKeep, CompareOp: vk.CompareOpAlways},
		Back:           vk.StencilOpState{FailOp: vk.StencilOpKeep, PassOp: vk.StencilOpKeep, CompareOp: vk.CompareOpAlways},
		MaxDepthBounds: 1,
	}
	if state.DS.DepthTest {
		ds.DepthTestEnable = vk.True
		ds.DepthCompareOp = convCmpFunc(state.DS.DepthCmp)
		if state.DS.DepthWrite {
			ds.DepthWriteEnable = vk.True
		}
	}

	b := state.Blend
	atts := make([]vk.PipelineColorBlendAttachmentState, len(state.ColorFmt))
	for i := range atts {
		atts[i] = vk.PipelineColorBlendAttachmentState{ColorWriteMask: convColorMask(b.WriteMask)}
		if b.Blend {
			atts[i].BlendEnable = vk.True
			atts[i].SrcColorBlendFactor = convBlendFac(b.SrcFac[0])
			atts[i].DstColorBlendFactor = convBlendFac(b.DstFac[0])
			atts[i].ColorBlendOp = convBlendOp(b.Op[0])
			atts[i].SrcAlphaBlendFactor = convBlendFac(b.SrcFac[1])
			atts[i].DstAlphaBlendFactor = convBlendFac(b.DstFac[1])
			atts[i].AlphaBlendOp = convBlendOp(b.Op[1])
		}
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:             vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:        uint32(len(stages)),
		PStages:           stages,
		PVertexInputState: &input,
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: convTopology(state.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &raster,
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PDepthStencilState: &ds,
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: uint32(len(atts)),
			PAttachments:    atts,
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
		},
		Layout:     layout.pl,
		RenderPass: rp,
	}
	pls := make([]vk.Pipeline, 1)
	res := vk.CreateGraphicsPipelines(g.dev, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pls)
	if err := checkResult(res, "vkCreateGraphicsPipelines", state.VertFunc.Name); err != nil {
		return nil, err
	}
	return &pipeline{g: g, pl: pls[0], layout: layout}, nil
}

// Destroy destroys the pipeline.
// The layout is cached by the GPU and outlives it.
func (p *pipeline) Destroy() {
	if p == nil || p.pl == nil {
		return
	}
	vk.DestroyPipeline(p.g.dev, p.pl, nil)
	p.pl = nil
	p.layout = nil
}
