// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"gviegas/rend3/driver"
)

// buffer implements driver.Buffer.
// WebGPU does not allow vertex/index/uniform buffers to be
// mapped, so host-visible buffers keep a shadow copy that
// is written to the GPU on Unmap.
type buffer struct {
	g       *GPU
	buf     hal.Buffer
	size    int64
	visible bool
	shadow  []byte
	mapped  bool
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, driver.NewError(driver.ErrResource, "CreateBuffer", "", fmt.Sprintf("invalid size %d", size))
	}
	// Uniform and copy sizes must be multiples of 4.
	asz := (size + 3) &^ 3
	buf, err := g.dev.CreateBuffer(&hal.BufferDescriptor{
		Size:  uint64(asz),
		Usage: convBufUsage(usg),
	})
	if err != nil {
		return nil, halError(err, "CreateBuffer", "")
	}
	b := &buffer{g: g, buf: buf, size: size, visible: visible}
	if visible {
		b.shadow = make([]byte, asz)
	}
	return b, nil
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.visible }

// Cap returns the capacity of the buffer.
func (b *buffer) Cap() int64 { return b.size }

// Map returns the shadow copy of the buffer.
func (b *buffer) Map() ([]byte, error) {
	switch {
	case !b.visible:
		return nil, driver.NewError(driver.ErrMapMisuse, "Map", "", "buffer not host visible")
	case b.mapped:
		return nil, driver.NewError(driver.ErrMapMisuse, "Map", "", "already mapped")
	}
	b.mapped = true
	return b.shadow[:b.size], nil
}

// Unmap writes the shadow copy to the GPU buffer.
func (b *buffer) Unmap() error {
	if !b.mapped {
		return driver.NewError(driver.ErrMapMisuse, "Unmap", "", "not mapped")
	}
	b.mapped = false
	b.g.qmu.Lock()
	err := b.g.que.WriteBuffer(b.buf, 0, b.shadow)
	b.g.qmu.Unlock()
	if err != nil {
		return halError(err, "WriteBuffer", "")
	}
	return nil
}

// Destroy destroys the buffer.
func (b *buffer) Destroy() {
	if b == nil || b.buf == nil {
		return
	}
	b.mapped = false
	b.shadow = nil
	b.g.dev.DestroyBuffer(b.buf)
	b.buf = nil
}

// image implements driver.Image.
// Swapchain images alias whatever surface texture is
// currently acquired, and are not destroyed through
// Destroy.
type image struct {
	g     *GPU
	tex   hal.Texture
	param driver.ImageParam
	sc    bool
}

// NewImage creates a new image.
func (g *GPU) NewImage(param *driver.ImageParam) (driver.Image, error) {
	f := convPixelFmt(param.Format)
	if f == gputypes.TextureFormatUndefined || param.Width <= 0 || param.Height <= 0 || param.Levels <= 0 {
		return nil, driver.NewError(driver.ErrResource, "CreateTexture", "", fmt.Sprintf("invalid parameters %+v", *param))
	}
	tex, err := g.dev.CreateTexture(&hal.TextureDescriptor{
		Size: hal.Extent3D{
			Width:              uint32(param.Width),
			Height:             uint32(param.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: uint32(param.Levels),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        f,
		Usage:         convTexUsage(param.Usage),
	})
	if err != nil {
		return nil, halError(err, "CreateTexture", "")
	}
	return &image{g: g, tex: tex, param: *param}, nil
}

func aspectOf(pf driver.PixelFmt) gputypes.TextureAspect {
	if pf.IsDS() {
		return gputypes.TextureAspectDepthOnly
	}
	return gputypes.TextureAspectAll
}

// NewView creates a new image view.
func (im *image) NewView(level, levels int) (driver.ImageView, error) {
	if level < 0 || levels <= 0 || level+levels > im.param.Levels {
		return nil, driver.NewError(driver.ErrResource, "CreateTextureView", "", "invalid level range")
	}
	v, err := im.g.dev.CreateTextureView(im.tex, &hal.TextureViewDescriptor{
		Format:          convPixelFmt(im.param.Format),
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          aspectOf(im.param.Format),
		BaseMipLevel:    uint32(level),
		MipLevelCount:   uint32(levels),
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, halError(err, "CreateTextureView", "")
	}
	return &imageView{img: im, view: v, level: level}, nil
}

// Destroy destroys the image.
func (im *image) Destroy() {
	if im == nil || im.tex == nil || im.sc {
		return
	}
	im.g.dev.DestroyTexture(im.tex)
	im.tex = nil
}

// imageView implements driver.ImageView.
// Swapchain views replace view every frame.
type imageView struct {
	img   *image
	view  hal.TextureView
	level int
}

// Image returns the viewed image.
func (v *imageView) Image() driver.Image { return v.img }

// Destroy destroys the image view.
func (v *imageView) Destroy() {
	if v == nil || v.view == nil || v.img.sc {
		return
	}
	v.img.g.dev.DestroyTextureView(v.view)
	v.view = nil
}

// sampler implements driver.Sampler.
type sampler struct {
	g    *GPU
	splr hal.Sampler
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	aniso := min(spln.MaxAniso, g.caps.MaxAnisotropy)
	mode, cmp := driver.ResolveFilter(spln.Min, spln.Mag, spln.Mipmap, aniso > 1, spln.Compare)
	filt := filterModes[mode]
	desc := hal.SamplerDescriptor{
		AddressModeU: convAddrMode(spln.AddrU),
		AddressModeV: convAddrMode(spln.AddrV),
		AddressModeW: convAddrMode(spln.AddrW),
		MinFilter:    filt[0],
		MagFilter:    filt[1],
		MipmapFilter: filt[2],
		LodMinClamp:  spln.MinLOD,
		LodMaxClamp:  spln.MaxLOD,
		Anisotropy:   1,
	}
	if mode == driver.Anisotropic {
		desc.Anisotropy = uint16(aniso)
	}
	if cmp {
		desc.Compare = convCmpFunc(spln.Cmp)
	}
	s, err := g.dev.CreateSampler(&desc)
	if err != nil {
		return nil, halError(err, "CreateSampler", mode.String())
	}
	return &sampler{g: g, splr: s}, nil
}

// Destroy destroys the sampler.
func (s *sampler) Destroy() {
	if s == nil || s.splr == nil {
		return
	}
	s.g.dev.DestroySampler(s.splr)
	s.splr = nil
}

// shaderCode implements driver.ShaderCode.
type shaderCode struct {
	g   *GPU
	mod hal.ShaderModule
}

// NewShaderCode creates a new shader module from WGSL
// source.
func (g *GPU) NewShaderCode(stage driver.Stage, data []byte) (driver.ShaderCode, error) {
	if len(data) == 0 {
		return nil, driver.NewError(driver.ErrResource, "CreateShaderModule", "", "empty source")
	}
	mod, err := g.dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Source: hal.ShaderSource{WGSL: string(data)},
	})
	if err != nil {
		return nil, halError(err, "CreateShaderModule", "")
	}
	return &shaderCode{g: g, mod: mod}, nil
}

// Destroy destroys the shader code.
func (s *shaderCode) Destroy() {
	if s == nil || s.mod == nil {
		return
	}
	s.g.dev.DestroyShaderModule(s.mod)
	s.mod = nil
}
