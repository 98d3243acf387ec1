// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// maxColorTargets is the number of color targets
// a render pass can have.
const maxColorTargets = 8

type attKey struct {
	pf    driver.PixelFmt
	load  driver.LoadOp
	store driver.StoreOp
}

// passKey identifies a cached render pass.
// Render passes that differ only in load/store
// operations are compatible, so pipelines are
// created against the key that compatKey returns.
type passKey struct {
	ncolor int
	color  [maxColorTargets]attKey
	ds     attKey
}

// keyOf returns the passKey for pass.
func keyOf(pass *driver.PassDesc) passKey {
	var k passKey
	k.ncolor = len(pass.Color)
	for i, c := range pass.Color {
		k.color[i] = attKey{c.View.(*imageView).img.param.Format, c.Load, c.Store}
	}
	if ds := pass.DS; ds != nil {
		k.ds = attKey{ds.View.(*imageView).img.param.Format, ds.Load, ds.Store}
	}
	return k
}

// compatKey returns the passKey used to create pipelines
// that render to the given formats.
func compatKey(color []driver.PixelFmt, ds driver.PixelFmt) passKey {
	k := passKey{ncolor: len(color)}
	for i, pf := range color {
		k.color[i] = attKey{pf, driver.LDontCare, driver.SStore}
	}
	if ds != driver.FNone {
		k.ds = attKey{ds, driver.LDontCare, driver.SStore}
	}
	return k
}

// attachment returns the attachment description of a.
// Unless its contents are loaded, the attachment starts
// in the undefined layout.
func (a attKey) attachment(lay vk.ImageLayout) vk.AttachmentDescription {
	init := vk.ImageLayoutUndefined
	if a.load == driver.LLoad {
		init = lay
	}
	desc := vk.AttachmentDescription{
		Format:         convPixelFmt(a.pf),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         convLoadOp(a.load),
		StoreOp:        convStoreOp(a.store),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  init,
		FinalLayout:    lay,
	}
	return desc
}

// renderPassFor returns the cached render pass for k,
// creating it if needed.
func (g *GPU) renderPassFor(k passKey) (vk.RenderPass, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rp, ok := g.passes[k]; ok {
		return rp, nil
	}
	atts := make([]vk.AttachmentDescription, 0, k.ncolor+1)
	refs := make([]vk.AttachmentReference, k.ncolor)
	for i := range k.ncolor {
		atts = append(atts, k.color[i].attachment(vk.ImageLayoutColorAttachmentOptimal))
		refs[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	}
	sub := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(k.ncolor),
		PColorAttachments:    refs,
	}
	if k.ds.pf != driver.FNone {
		atts = append(atts, k.ds.attachment(vk.ImageLayoutDepthStencilAttachmentOptimal))
		sub.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(k.ncolor),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}
	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(atts)),
		PAttachments:    atts,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{sub},
	}
	var rp vk.RenderPass
	if err := checkResult(vk.CreateRenderPass(g.dev, &info, nil, &rp), "vkCreateRenderPass", ""); err != nil {
		return vk.NullRenderPass, err
	}
	g.passes[k] = rp
	return rp, nil
}

// newFramebuffer creates a framebuffer for pass.
// It also returns the render area.
func (g *GPU) newFramebuffer(rp vk.RenderPass, pass *driver.PassDesc) (vk.Framebuffer, vk.Extent2D, error) {
	views := make([]vk.ImageView, 0, len(pass.Color)+1)
	var w, h int
	add := func(iv driver.ImageView) {
		v := iv.(*imageView)
		views = append(views, v.view)
		if len(views) == 1 {
			w, h = v.img.size(v.level)
		}
	}
	for _, c := range pass.Color {
		add(c.View)
	}
	if pass.DS != nil {
		add(pass.DS.View)
	}
	ext := vk.Extent2D{Width: uint32(w), Height: uint32(h)}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           ext.Width,
		Height:          ext.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := checkResult(vk.CreateFramebuffer(g.dev, &info, nil, &fb), "vkCreateFramebuffer", ""); err != nil {
		return vk.NullFramebuffer, ext, err
	}
	return fb, ext, nil
}
