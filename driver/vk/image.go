// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// image implements driver.Image.
// Swapchain images are owned by the swapchain and
// are not destroyed through Destroy.
type image struct {
	g     *GPU
	m     *memory
	img   vk.Image
	param driver.ImageParam
	sc    bool
}

// NewImage creates a new image.
func (g *GPU) NewImage(param *driver.ImageParam) (driver.Image, error) {
	f := convPixelFmt(param.Format)
	if f == vk.FormatUndefined || param.Width <= 0 || param.Height <= 0 || param.Levels <= 0 {
		return nil, driver.NewError(driver.ErrResource, "vkCreateImage", "", fmt.Sprintf("invalid parameters %+v", *param))
	}
	if param.Width > g.lim.MaxImage2D || param.Height > g.lim.MaxImage2D {
		return nil, driver.NewError(driver.ErrResource, "vkCreateImage", "", fmt.Sprintf("size %dx%d exceeds limit", param.Width, param.Height))
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    f,
		Extent: vk.Extent3D{
			Width:  uint32(param.Width),
			Height: uint32(param.Height),
			Depth:  1,
		},
		MipLevels:     uint32(param.Levels),
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         convImgUsage(param.Usage, param.Format),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := checkResult(vk.CreateImage(g.dev, &info, nil, &img), "vkCreateImage", ""); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(g.dev, img, &req)
	req.Deref()
	m, err := g.newMemory(req, false, "image")
	if err != nil {
		vk.DestroyImage(g.dev, img, nil)
		return nil, err
	}
	if err := checkResult(vk.BindImageMemory(g.dev, img, m.mem, 0), "vkBindImageMemory", ""); err != nil {
		m.free()
		vk.DestroyImage(g.dev, img, nil)
		return nil, err
	}
	return &image{g: g, m: m, img: img, param: *param}, nil
}

// NewView creates a new image view.
func (im *image) NewView(level, levels int) (driver.ImageView, error) {
	if level < 0 || levels <= 0 || level+levels > im.param.Levels {
		return nil, driver.NewError(driver.ErrResource, "vkCreateImageView", "", "invalid level range")
	}
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    im.img,
		ViewType: vk.ImageViewType2d,
		Format:   convPixelFmt(im.param.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:   aspectOf(im.param.Format),
			BaseMipLevel: uint32(level),
			LevelCount:   uint32(levels),
			LayerCount:   1,
		},
	}
	var view vk.ImageView
	if err := checkResult(vk.CreateImageView(im.g.dev, &info, nil, &view), "vkCreateImageView", ""); err != nil {
		return nil, err
	}
	return &imageView{img: im, view: view, level: level}, nil
}

// size returns the size of mip level.
func (im *image) size(level int) (w, h int) {
	return max(1, im.param.Width>>level), max(1, im.param.Height>>level)
}

// Destroy destroys the image.
func (im *image) Destroy() {
	if im == nil || im.g == nil || im.sc {
		return
	}
	im.m.free()
	vk.DestroyImage(im.g.dev, im.img, nil)
	*im = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	img   *image
	view  vk.ImageView
	level int
}

// Image returns the viewed image.
func (v *imageView) Image() driver.Image { return v.img }

// Destroy destroys the image view.
// Swapchain views are destroyed by the swapchain.
func (v *imageView) Destroy() {
	if v == nil || v.img == nil || v.img.sc {
		return
	}
	vk.DestroyImageView(v.img.g.dev, v.view, nil)
	*v = imageView{}
}

// sampler implements driver.Sampler.
type sampler struct {
	g    *GPU
	splr vk.Sampler
}

// NewSampler creates a new sampler.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	aniso := min(spln.MaxAniso, g.caps.MaxAnisotropy)
	mode, cmp := driver.ResolveFilter(spln.Min, spln.Mag, spln.Mipmap, aniso > 1, spln.Compare)
	filt := filterModes[mode]
	info := vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    filt.mag,
		MinFilter:    filt.min,
		MipmapMode:   filt.mip,
		AddressModeU: convAddrMode(spln.AddrU),
		AddressModeV: convAddrMode(spln.AddrV),
		AddressModeW: convAddrMode(spln.AddrW),
		MaxAnisotropy: 1,
		MinLod:        spln.MinLOD,
		MaxLod:        spln.MaxLOD,
		BorderColor:   vk.BorderColorFloatOpaqueBlack,
	}
	if mode == driver.Anisotropic {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = float32(aniso)
	}
	if cmp {
		info.CompareEnable = vk.True
		info.CompareOp = convCmpFunc(spln.Cmp)
	}
	var splr vk.Sampler
	if err := checkResult(vk.CreateSampler(g.dev, &info, nil, &splr), "vkCreateSampler", mode.String()); err != nil {
		return nil, err
	}
	return &sampler{g: g, splr: splr}, nil
}

// Destroy destroys the sampler.
func (s *sampler) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	vk.DestroySampler(s.g.dev, s.splr, nil)
	*s = sampler{}
}
