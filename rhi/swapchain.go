// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"fmt"

	"gviegas/rend3/driver"
)

// Swapchain presents images to the device's window.
// Presentation uses FIFO when Config.VSync is set.
type Swapchain struct {
	base
	count int
	h     Handle[driver.Swapchain]
}

func (s *Swapchain) create() error {
	const op = "NewSwapchain"
	g, err := s.gpu(op)
	if err != nil {
		return s.fail(op, err)
	}
	pres, ok := g.(driver.Presenter)
	if !ok {
		return s.fail(op, driver.ErrCannotPresent)
	}
	sc, err := pres.NewSwapchain(s.count, s.dev.cfg.VSync)
	if err != nil {
		return s.fail(op, err)
	}
	s.h = newHandle(s.dev, sc)
	s.err = nil
	w, h := sc.Size()
	s.dev.log.Info("rhi: swapchain created", "width", w, "height", h, "images", len(sc.Views()), "vsync", s.dev.cfg.VSync)
	return nil
}

func (s *Swapchain) native(op string) (driver.Swapchain, error) {
	if !s.IsValid() {
		return nil, s.refuse(op)
	}
	sc, ok := s.h.Get(s.dev)
	if !ok {
		return nil, s.refuse(op)
	}
	return sc, nil
}

// Views returns the backbuffer views.
// They change when the swapchain is recreated.
func (s *Swapchain) Views() []driver.ImageView {
	sc, err := s.native("Views")
	if err != nil {
		return nil
	}
	return sc.Views()
}

// Next acquires the next backbuffer.
// acquired, if not nil, is signaled when the backbuffer
// can be written.
func (s *Swapchain) Next(acquired *Semaphore) (int, error) {
	sc, err := s.native("Next")
	if err != nil {
		return -1, err
	}
	var sem driver.Semaphore
	if acquired != nil {
		if sem = acquired.sem; sem == nil {
			return -1, fmt.Errorf("rhi: next: %w: invalid semaphore", driver.ErrResource)
		}
	}
	idx, err := sc.Next(sem)
	return idx, s.dev.check(err)
}

// Present presents the backbuffer at index after wait
// is signaled.
func (s *Swapchain) Present(index int, wait *Semaphore) error {
	sc, err := s.native("Present")
	if err != nil {
		return err
	}
	var sem driver.Semaphore
	if wait != nil {
		if sem = wait.sem; sem == nil {
			return fmt.Errorf("rhi: present: %w: invalid semaphore", driver.ErrResource)
		}
	}
	return s.dev.check(sc.Present(index, sem))
}

// Recreate recreates the swapchain to match the window.
func (s *Swapchain) Recreate() error {
	sc, err := s.native("Recreate")
	if err != nil {
		return err
	}
	if err := s.dev.check(sc.Recreate()); err != nil {
		return err
	}
	w, h := sc.Size()
	s.dev.log.Info("rhi: swapchain recreated", "width", w, "height", h)
	return nil
}

// Format returns the backbuffer format.
func (s *Swapchain) Format() driver.PixelFmt {
	sc, err := s.native("Format")
	if err != nil {
		return driver.FNone
	}
	return sc.Format()
}

// Size returns the backbuffer size.
func (s *Swapchain) Size() (width, height int) {
	sc, err := s.native("Size")
	if err != nil {
		return 0, 0
	}
	return sc.Size()
}

func (s *Swapchain) release() {
	if sc := s.h.take(); sc != nil {
		sc.Destroy()
	}
}

func (s *Swapchain) rebuild() error { return s.create() }

// Destroy destroys the swapchain.
func (s *Swapchain) Destroy() { s.destroy(s.release) }
