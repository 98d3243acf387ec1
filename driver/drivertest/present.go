// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"gviegas/rend3/driver"
)

// NewSwapchain implements driver.Presenter.
func (g presentGPU) NewSwapchain(imageCount int, vsync bool) (driver.Swapchain, error) {
	if err := g.call("NewSwapchain"); err != nil {
		return nil, err
	}
	sc := &Swapchain{g: g.GPU, count: max(imageCount, 2), Vsync: vsync}
	if err := sc.Recreate(); err != nil {
		return nil, err
	}
	return sc, nil
}

// Swapchain is an in-memory driver.Swapchain.
// Its size follows the size of the window given to Open.
type Swapchain struct {
	g      *GPU
	count  int
	imgs   []*Image
	views  []driver.ImageView
	next   int
	w, h   int
	Vsync  bool
	// Presented counts successful presentations.
	Presented int
}

func (s *Swapchain) destroyViews() {
	for i := range s.views {
		s.views[i].Destroy()
		s.imgs[i].Destroy()
	}
	s.views = s.views[:0]
	s.imgs = s.imgs[:0]
}

// Views implements driver.Swapchain.
func (s *Swapchain) Views() []driver.ImageView { return s.views }

// Next implements driver.Swapchain.
func (s *Swapchain) Next(acquired driver.Semaphore) (int, error) {
	if err := s.g.call("Next"); err != nil {
		return -1, err
	}
	i := s.next
	s.next = (s.next + 1) % len(s.views)
	return i, nil
}

// Present implements driver.Swapchain.
func (s *Swapchain) Present(index int, wait driver.Semaphore) error {
	if err := s.g.call("Present"); err != nil {
		return err
	}
	s.Presented++
	return nil
}

// Recreate implements driver.Swapchain.
func (s *Swapchain) Recreate() error {
	if err := s.g.call("Recreate"); err != nil {
		return err
	}
	s.destroyViews()
	s.w, s.h = s.g.cfg.Window.Size()
	if s.w <= 0 || s.h <= 0 {
		return driver.NewError(driver.ErrSwapchain, "Recreate", "", "zero-sized window")
	}
	for range s.count {
		img, _ := s.g.NewImage(&driver.ImageParam{
			Format: driver.BGRA8un,
			Width:  s.w,
			Height: s.h,
			Levels: 1,
			Usage:  driver.URenderTarget,
		})
		view, _ := img.NewView(0, 1)
		s.imgs = append(s.imgs, img.(*Image))
		s.views = append(s.views, view)
	}
	s.next = 0
	return nil
}

// Format implements driver.Swapchain.
func (s *Swapchain) Format() driver.PixelFmt { return driver.BGRA8un }

// Size implements driver.Swapchain.
func (s *Swapchain) Size() (int, int) { return s.w, s.h }

// Destroy implements driver.Destroyer.
func (s *Swapchain) Destroy() { s.destroyViews() }
