// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"
	"time"

	"gviegas/rend3/driver"
)

// Fence is a binary CPU-visible synchronization primitive.
type Fence struct {
	base
	signaled bool
	fence    driver.Fence
}

// NewFence creates a new fence.
// It never returns nil. On failure the fence is left in
// the failed state and the error is logged.
func NewFence(dev *Device, signaled bool) *Fence {
	f := &Fence{signaled: signaled}
	f.init(dev, "fence", f)
	if f.err == nil {
		f.create()
	}
	return f
}

func (f *Fence) create() error {
	g, err := f.gpu("NewFence")
	if err != nil {
		return f.fail("NewFence", err)
	}
	fence, err := g.NewFence(f.signaled)
	if err != nil {
		return f.fail("NewFence", err)
	}
	f.fence = fence
	f.err = nil
	return nil
}

// Wait waits until the fence is signaled or timeout
// elapses.
// A timeout of zero polls the fence. A timeout of
// driver.Forever never expires.
// It returns false with a nil error on timeout.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	if !f.IsValid() || f.fence == nil {
		return false, f.refuse("Wait")
	}
	ok, err := f.fence.Wait(timeout)
	if err != nil {
		return false, f.dev.check(err)
	}
	return ok, nil
}

// Reset resets the fence to the unsignaled state.
// Resetting an unsignaled fence is refused.
func (f *Fence) Reset() error {
	if !f.IsValid() || f.fence == nil {
		return f.refuse("Reset")
	}
	if ok, err := f.fence.Wait(0); err != nil {
		return f.dev.check(err)
	} else if !ok {
		return f.misuse("Reset", fmt.Errorf("%w: resetting unsignaled fence", driver.ErrResource))
	}
	return f.dev.check(f.fence.Reset())
}

// release destroys the native fence.
// A rebuilt fence is signaled, since whatever it
// guarded was lost along with the device.
func (f *Fence) release() {
	if f.fence != nil {
		f.fence.Destroy()
		f.fence = nil
	}
	f.signaled = true
}

func (f *Fence) rebuild() error { return f.create() }

// Destroy destroys the fence.
func (f *Fence) Destroy() { f.destroy(f.release) }

// Semaphore is a GPU-only synchronization primitive.
// It is never waited on from the CPU.
type Semaphore struct {
	base
	sem driver.Semaphore
}

// NewSemaphore creates a new semaphore.
// It never returns nil. On failure the semaphore is
// left in the failed state and the error is logged.
func NewSemaphore(dev *Device) *Semaphore {
	s := &Semaphore{}
	s.init(dev, "semaphore", s)
	if s.err == nil {
		s.create()
	}
	return s
}

func (s *Semaphore) create() error {
	g, err := s.gpu("NewSemaphore")
	if err != nil {
		return s.fail("NewSemaphore", err)
	}
	sem, err := g.NewSemaphore()
	if err != nil {
		return s.fail("NewSemaphore", err)
	}
	s.sem = sem
	s.err = nil
	return nil
}

func (s *Semaphore) release() {
	if s.sem != nil {
		s.sem.Destroy()
		s.sem = nil
	}
}

func (s *Semaphore) rebuild() error { return s.create() }

// Destroy destroys the semaphore.
func (s *Semaphore) Destroy() { s.destroy(s.release) }

// CmdPool is a pool of command buffers of one queue
// family.
type CmdPool struct {
	base
	family driver.QueueFamily
	level  driver.CmdLevel
	pool   driver.CmdPool
}

// NewCmdPool creates a new command pool.
// Unlike resource constructors, it reports failure
// through the returned error (wrapping
// driver.ErrCmdAlloc), so that the caller can skip the
// frame that needed it.
func (d *Device) NewCmdPool(family driver.QueueFamily, level driver.CmdLevel) (*CmdPool, error) {
	p := &CmdPool{family: family, level: level}
	p.init(d, "command pool", p)
	if p.err != nil {
		return nil, p.err
	}
	if err := p.create(); err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *CmdPool) create() error {
	g, err := p.gpu("NewCmdPool")
	if err != nil {
		return p.fail("NewCmdPool", err)
	}
	pool, err := g.NewCmdPool(p.family, p.level)
	if err != nil {
		if !driver.IsDeviceLost(err) {
			err = fmt.Errorf("rhi: %w: %w", driver.ErrCmdAlloc, err)
		}
		return p.fail("NewCmdPool", err)
	}
	p.pool = pool
	p.err = nil
	return nil
}

// NewCmdBuffer allocates a new command buffer.
// The returned error wraps driver.ErrCmdAlloc on
// allocation failure.
func (p *CmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	if !p.IsValid() || p.pool == nil {
		return nil, p.refuse("NewCmdBuffer")
	}
	cb, err := p.pool.NewCmdBuffer()
	if err != nil {
		if !driver.IsDeviceLost(err) && !isCmdAlloc(err) {
			err = fmt.Errorf("rhi: %w: %w", driver.ErrCmdAlloc, err)
		}
		return nil, p.misuse("NewCmdBuffer", err)
	}
	return cb, nil
}

// Reset resets every command buffer of the pool.
func (p *CmdPool) Reset() error {
	if !p.IsValid() || p.pool == nil {
		return p.refuse("Reset")
	}
	return p.dev.check(p.pool.Reset())
}

// Family returns the pool's queue family.
func (p *CmdPool) Family() driver.QueueFamily { return p.family }

// Level returns the pool's command buffer level.
func (p *CmdPool) Level() driver.CmdLevel { return p.level }

// Command buffers allocated from a released pool are
// invalid; owners must allocate new ones after
// Device.Recreate.
func (p *CmdPool) release() {
	if p.pool != nil {
		p.pool.Destroy()
		p.pool = nil
	}
}

func (p *CmdPool) rebuild() error { return p.create() }

// Destroy destroys the pool and every command buffer
// allocated from it.
func (p *CmdPool) Destroy() { p.destroy(p.release) }

func isCmdAlloc(err error) bool { return errors.Is(err, driver.ErrCmdAlloc) }
