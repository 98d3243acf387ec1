// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// NewSwapchain creates a new swapchain.
func (g presentGPU) NewSwapchain(imageCount int, vsync bool) (driver.Swapchain, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sc != nil {
		return nil, driver.NewError(driver.ErrSwapchain, "vkCreateSwapchainKHR", "", "swapchain already exists")
	}
	var n uint32
	vk.GetPhysicalDeviceSurfacePresentModes(g.pdev, g.surf, &n, nil)
	vmodes := make([]vk.PresentMode, n)
	vk.GetPhysicalDeviceSurfacePresentModes(g.pdev, g.surf, &n, vmodes)
	var modes []driver.PresentMode
	for _, m := range vmodes {
		if pm, ok := presentModeFrom(m); ok {
			modes = append(modes, pm)
		}
	}
	vk.GetPhysicalDeviceSurfaceFormats(g.pdev, g.surf, &n, nil)
	if n == 0 {
		return nil, driver.ErrCannotPresent
	}
	fmts := make([]vk.SurfaceFormat, n)
	vk.GetPhysicalDeviceSurfaceFormats(g.pdev, g.surf, &n, fmts)
	s := &swapchain{
		g:     g.GPU,
		count: max(imageCount, 2),
		mode:  driver.ChoosePresentMode(modes, vsync),
	}
	// Prefer a non-sRGB format since shaders encode
	// the final output themselves.
	s.format = vk.FormatUndefined
	for i := range fmts {
		fmts[i].Deref()
		f := fmts[i].Format
		if f == vk.FormatB8g8r8a8Unorm || f == vk.FormatR8g8b8a8Unorm {
			s.format, s.space = f, fmts[i].ColorSpace
			break
		}
		if s.format == vk.FormatUndefined && pixelFmtFrom(f) != driver.FNone {
			s.format, s.space = f, fmts[i].ColorSpace
		}
	}
	if s.format == vk.FormatUndefined {
		return nil, fmt.Errorf("%w (no supported surface format)", driver.ErrCannotPresent)
	}
	if err := s.recreate(); err != nil {
		return nil, err
	}
	g.sc = s
	driver.Logger().Debug("vk: swapchain created", "mode", s.mode.String(), "images", len(s.views))
	return s, nil
}

// swapchain implements driver.Swapchain.
type swapchain struct {
	g      *GPU
	count  int
	mode   driver.PresentMode
	format vk.Format
	space  vk.ColorSpace
	sc     vk.Swapchain
	w, h   int
	imgs   []*image
	views  []*imageView
	dviews []driver.ImageView

	mu sync.Mutex
	// Number of images that can be acquired at
	// once without blocking.
	maxAcq int
	// Number of images currently acquired.
	acq    int
	broken bool
}

// Views returns the swapchain's image views.
func (s *swapchain) Views() []driver.ImageView { return s.dviews }

// Next acquires the next backbuffer.
func (s *swapchain) Next(acquired driver.Semaphore) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return -1, driver.ErrSwapchain
	}
	if s.acq >= s.maxAcq {
		return -1, driver.ErrNoBackbuffer
	}
	sem := vk.NullSemaphore
	if acquired != nil {
		sem = acquired.(*semaphore).sem
	}
	var idx uint32
	res := vk.AcquireNextImage(s.g.dev, s.sc, vk.MaxUint64, sem, vk.NullFence, &idx)
	switch res {
	case vk.Success, vk.Suboptimal:
		s.acq++
		// Suboptimal images can still be presented,
		// but further acquisitions fail until the
		// swapchain is recreated.
		s.broken = res == vk.Suboptimal
		return int(idx), nil
	case vk.ErrorOutOfDate:
		s.broken = true
		return -1, driver.ErrSwapchain
	}
	return -1, checkResult(res, "vkAcquireNextImageKHR", "")
}

// Present presents the backbuffer at index.
func (s *swapchain) Present(index int, wait driver.Semaphore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.views) || s.acq == 0 {
		return driver.NewError(driver.ErrSwapchain, "vkQueuePresentKHR", "", fmt.Sprintf("backbuffer %d not acquired", index))
	}
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.sc},
		PImageIndices:  []uint32{uint32(index)},
	}
	if wait != nil {
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{wait.(*semaphore).sem}
	}
	s.g.qmu.Lock()
	res := vk.QueuePresent(s.g.pque, &info)
	s.g.qmu.Unlock()
	s.acq--
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		s.broken = true
		return driver.ErrSwapchain
	}
	return checkResult(res, "vkQueuePresentKHR", "")
}

// Recreate recreates the swapchain to match the
// window's current size.
func (s *swapchain) Recreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recreate()
}

func (s *swapchain) recreate() error {
	g := s.g
	var capab vk.SurfaceCapabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(g.pdev, g.surf, &capab), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR", ""); err != nil {
		return err
	}
	capab.Deref()
	capab.CurrentExtent.Deref()
	capab.MinImageExtent.Deref()
	capab.MaxImageExtent.Deref()
	ext := capab.CurrentExtent
	if ext.Width == vk.MaxUint32 {
		w, h := g.win.Size()
		ext.Width = min(max(uint32(w), capab.MinImageExtent.Width), capab.MaxImageExtent.Width)
		ext.Height = min(max(uint32(h), capab.MinImageExtent.Height), capab.MaxImageExtent.Height)
	}
	if ext.Width == 0 || ext.Height == 0 {
		return driver.NewError(driver.ErrSwapchain, "vkCreateSwapchainKHR", "", "zero-sized window")
	}
	count := max(uint32(s.count), capab.MinImageCount)
	if capab.MaxImageCount > 0 {
		count = min(count, capab.MaxImageCount)
	}
	transf := vk.SurfaceTransformIdentityBit
	if vk.SurfaceTransformFlagBits(capab.SupportedTransforms)&transf == 0 {
		transf = capab.CurrentTransform
	}
	alpha := vk.CompositeAlphaOpaqueBit
	for _, a := range [...]vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if capab.SupportedCompositeAlpha&vk.CompositeAlphaFlags(a) != 0 {
			alpha = a
			break
		}
	}
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          g.surf,
		MinImageCount:    count,
		ImageFormat:      s.format,
		ImageColorSpace:  s.space,
		ImageExtent:      ext,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     transf,
		CompositeAlpha:   alpha,
		PresentMode:      convPresentMode(s.mode),
		Clipped:          vk.True,
		OldSwapchain:     s.sc,
	}
	if g.caps.Families.Graphics != g.caps.Families.Present {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{uint32(g.caps.Families.Graphics), uint32(g.caps.Families.Present)}
	}
	var sc vk.Swapchain
	if err := checkResult(vk.CreateSwapchain(g.dev, &info, nil, &sc), "vkCreateSwapchainKHR", ""); err != nil {
		if errors.Is(err, driver.ErrSwapchain) {
			s.broken = true
		}
		return err
	}
	s.release()
	s.sc = sc
	s.w, s.h = int(ext.Width), int(ext.Height)

	var n uint32
	vk.GetSwapchainImages(g.dev, sc, &n, nil)
	vimgs := make([]vk.Image, n)
	if err := checkResult(vk.GetSwapchainImages(g.dev, sc, &n, vimgs), "vkGetSwapchainImagesKHR", ""); err != nil {
		return err
	}
	param := driver.ImageParam{
		Format: pixelFmtFrom(s.format),
		Width:  s.w,
		Height: s.h,
		Levels: 1,
		Usage:  driver.URenderTarget,
	}
	s.imgs = make([]*image, n)
	s.views = make([]*imageView, n)
	s.dviews = make([]driver.ImageView, n)
	for i, vi := range vimgs {
		s.imgs[i] = &image{g: g, img: vi, param: param, sc: true}
		vinfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    vi,
			ViewType: vk.ImageViewType2d,
			Format:   s.format,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		var view vk.ImageView
		if err := checkResult(vk.CreateImageView(g.dev, &vinfo, nil, &view), "vkCreateImageView", "swapchain"); err != nil {
			s.imgs = s.imgs[:i]
			return err
		}
		s.views[i] = &imageView{img: s.imgs[i], view: view}
		s.dviews[i] = s.views[i]
	}
	// Acquiring more than this many images may
	// block forever.
	s.maxAcq = int(n) - int(capab.MinImageCount) + 1
	s.acq = 0
	s.broken = false
	return nil
}

// release destroys the views and the old swapchain.
func (s *swapchain) release() {
	for _, v := range s.views {
		if v != nil {
			vk.DestroyImageView(s.g.dev, v.view, nil)
		}
	}
	s.imgs, s.views, s.dviews = nil, nil, nil
	if s.sc != vk.NullSwapchain {
		vk.DestroySwapchain(s.g.dev, s.sc, nil)
		s.sc = vk.NullSwapchain
	}
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
	s.mu.Lock()
	s.release()
	s.mu.Unlock()
	s.g.mu.Lock()
	s.g.sc = nil
	s.g.mu.Unlock()
	s.g = nil
}
