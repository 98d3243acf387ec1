// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"gviegas/rend3/driver"
)

// NewSwapchain creates a new swapchain.
func (g presentGPU) NewSwapchain(imageCount int, vsync bool) (driver.Swapchain, error) {
	caps := g.adapter.Adapter.SurfaceCapabilities(g.surf)
	if caps == nil || len(caps.Formats) == 0 {
		return nil, driver.ErrCannotPresent
	}
	var modes []driver.PresentMode
	for _, m := range caps.PresentModes {
		if pm, ok := presentModeFrom(m); ok {
			modes = append(modes, pm)
		}
	}
	s := &swapchain{
		g:     g.GPU,
		count: max(imageCount, 2),
		mode:  driver.ChoosePresentMode(modes, vsync),
		alpha: gputypes.CompositeAlphaModeOpaque,
	}
	// Prefer a non-sRGB format since shaders encode
	// the final output themselves.
	s.format = caps.Formats[0]
	for _, f := range [...]gputypes.TextureFormat{gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA8Unorm} {
		if slices.Contains(caps.Formats, f) {
			s.format = f
			break
		}
	}
	if pixelFmtFrom(s.format) == driver.FNone {
		return nil, fmt.Errorf("%w (unsupported surface format %v)", driver.ErrCannotPresent, s.format)
	}
	if len(caps.AlphaModes) > 0 && !slices.Contains(caps.AlphaModes, s.alpha) {
		s.alpha = caps.AlphaModes[0]
	}
	if err := s.Recreate(); err != nil {
		return nil, err
	}
	driver.Logger().Debug("wgpu: swapchain created", "mode", s.mode.String(), "images", s.count)
	return s, nil
}

// swapchain implements driver.Swapchain.
// The surface hands out one texture per acquisition, so
// the swapchain exposes a fixed set of views whose
// underlying texture views are replaced by Next.
type swapchain struct {
	g      *GPU
	count  int
	mode   driver.PresentMode
	format gputypes.TextureFormat
	alpha  gputypes.CompositeAlphaMode
	w, h   int
	imgs   []*image
	views  []*imageView
	dviews []driver.ImageView
	next   int
	cur    int
	st     hal.SurfaceTexture
}

// Views returns the swapchain's image views.
func (s *swapchain) Views() []driver.ImageView { return s.dviews }

func (s *swapchain) release() {
	if s.st == nil {
		return
	}
	v := s.views[s.cur]
	if v.view != nil {
		s.g.dev.DestroyTextureView(v.view)
		v.view = nil
	}
	s.imgs[s.cur].tex = nil
	s.st = nil
}

// Next acquires the next backbuffer.
func (s *swapchain) Next(acquired driver.Semaphore) (int, error) {
	if s.st != nil {
		return -1, driver.ErrNoBackbuffer
	}
	ast, err := s.g.surf.AcquireTexture(nil)
	if err != nil {
		if errors.Is(err, hal.ErrTimeout) {
			return -1, driver.ErrNoBackbuffer
		}
		return -1, halError(err, "AcquireTexture", "")
	}
	i := s.next
	v, err := s.g.dev.CreateTextureView(ast.Texture, &hal.TextureViewDescriptor{
		Format:          s.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		s.g.surf.DiscardTexture(ast.Texture)
		return -1, halError(err, "CreateTextureView", "")
	}
	s.st = ast.Texture
	s.cur = i
	s.imgs[i].tex = ast.Texture
	s.views[i].view = v
	s.next = (i + 1) % s.count
	if ast.Suboptimal {
		driver.Logger().Debug("wgpu: suboptimal surface texture")
	}
	return i, nil
}

// Present presents the backbuffer at index.
func (s *swapchain) Present(index int, wait driver.Semaphore) error {
	if s.st == nil || index != s.cur {
		return driver.NewError(driver.ErrSwapchain, "Present", "", fmt.Sprintf("backbuffer %d not acquired", index))
	}
	st := s.st
	s.g.qmu.Lock()
	err := s.g.que.Present(s.g.surf, st, nil)
	s.g.qmu.Unlock()
	s.release()
	if err != nil {
		return halError(err, "Present", "")
	}
	return nil
}

// Recreate reconfigures the surface to match the
// window's current size.
func (s *swapchain) Recreate() error {
	if s.st != nil {
		s.g.surf.DiscardTexture(s.st)
		s.release()
	}
	w, h := s.g.win.Size()
	if w <= 0 || h <= 0 {
		return driver.NewError(driver.ErrSwapchain, "Configure", "", "zero-sized window")
	}
	err := s.g.surf.Configure(s.g.dev, &hal.SurfaceConfiguration{
		Width:       uint32(w),
		Height:      uint32(h),
		Format:      s.format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: convPresentMode(s.mode),
		AlphaMode:   s.alpha,
	})
	if err != nil {
		return halError(err, "Configure", "")
	}
	s.w, s.h = w, h
	if s.imgs == nil {
		s.imgs = make([]*image, s.count)
		s.views = make([]*imageView, s.count)
		s.dviews = make([]driver.ImageView, s.count)
		for i := range s.count {
			s.imgs[i] = &image{g: s.g, sc: true}
			s.views[i] = &imageView{img: s.imgs[i]}
			s.dviews[i] = s.views[i]
		}
	}
	for _, img := range s.imgs {
		img.param = driver.ImageParam{
			Format: pixelFmtFrom(s.format),
			Width:  w,
			Height: h,
			Levels: 1,
			Usage:  driver.URenderTarget,
		}
	}
	s.next = 0
	return nil
}

// Format returns the pixel format of the backbuffers.
func (s *swapchain) Format() driver.PixelFmt { return pixelFmtFrom(s.format) }

// Size returns the size of the backbuffers.
func (s *swapchain) Size() (w, h int) { return s.w, s.h }

// Destroy destroys the swapchain.
func (s *swapchain) Destroy() {
	if s == nil || s.g == nil {
		return
	}
	if s.st != nil {
		s.g.surf.DiscardTexture(s.st)
		s.release()
	}
	s.g.surf.Unconfigure(s.g.dev)
	s.g = nil
}
