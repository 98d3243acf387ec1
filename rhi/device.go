// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package rhi implements the render hardware interface used
// by the engine.
//
// It sits on top of package driver and adds the policies that
// backends do not provide: backend selection, reference counted
// device lifetime, resources that never fail loudly (they log
// and enter a failed state instead), device loss recovery and
// an asynchronous pipeline cache.
package rhi

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gviegas/rend3/driver"
	"gviegas/rend3/internal/bitvec"
)

// Config describes how a Device should be opened.
type Config struct {
	// Backend is the preferred driver name.
	// It is matched as a case-insensitive substring
	// against the names of registered drivers.
	// The empty string tries every driver in
	// priority order.
	Backend string

	// Window is the presentation target.
	// It is nil for headless devices.
	Window driver.Window

	// Validation requests backend validation.
	// Its absence is not an error.
	Validation bool

	// VSync selects FIFO presentation.
	VSync bool

	// Extensions lists additional device extensions
	// that the adapter must support.
	Extensions []string

	// Logger is the logger used by the device and
	// its resources.
	// If nil, driver.Logger() is used.
	Logger *slog.Logger
}

var (
	errClosed = errors.New("rhi: device closed")
	errNoGPU  = errors.New("rhi: device has no GPU")
)

// Device owns the connection to one backend.
// Every resource holds a reference to the Device that
// created it; the backend is closed only when the Device
// was destroyed and every resource released its reference.
type Device struct {
	cfg Config
	log *slog.Logger

	// Guards drv, gpu, caps, limits and the
	// resource registry.
	mu     sync.RWMutex
	drv    driver.Driver
	gpu    driver.GPU
	caps   driver.Caps
	limits driver.Limits
	live   bitvec.V[uint32]
	res    []resource

	refs    atomic.Int32
	closing atomic.Bool
	lost    atomic.Bool
	gen     atomic.Uint64

	upmu sync.Mutex
	up   *uploader
}

// resource is implemented by every object that the Device
// must be able to rebuild after device loss.
type resource interface {
	// label identifies the resource in logs.
	label() string
	// release destroys the native objects.
	release()
	// rebuild creates the native objects again.
	rebuild() error
}

// Open opens a Device.
// It tries every registered driver whose name matches
// cfg.Backend, in priority order, and uses the first one
// that opens successfully.
// The returned error wraps driver.ErrNoDevice when no
// adapter qualifies and driver.ErrSurface when cfg.Window
// cannot be used for presentation.
func Open(cfg *Config) (*Device, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	d := &Device{cfg: *cfg, log: cfg.Logger}
	if d.log == nil {
		d.log = driver.Logger()
	}
	if err := d.open(cfg.Backend); err != nil {
		return nil, err
	}
	d.refs.Store(1)
	d.gen.Store(1)
	return d, nil
}

// open loads the first driver whose name contains name.
// It must be called with d.mu held or before d is shared.
func (d *Device) open(name string) error {
	dcfg := &driver.Config{
		Window:     d.cfg.Window,
		Validation: d.cfg.Validation,
		Extensions: d.cfg.Extensions,
	}
	drv, gpu, err := driver.Open(name, dcfg)
	if err != nil {
		d.log.Error("rhi: cannot open device", "backend", name, "err", err)
		return fmt.Errorf("rhi: open %q: %w", name, err)
	}
	d.drv, d.gpu = drv, gpu
	d.caps, d.limits = gpu.Caps(), gpu.Limits()
	if d.cfg.Validation && !d.caps.Validation {
		d.log.Warn("rhi: validation requested but not available", "backend", d.caps.Backend, "err", driver.ErrNoValidation)
	}
	d.log.Info("rhi: device opened",
		"driver", drv.Name(),
		"backend", d.caps.Backend,
		"adapter", d.caps.Adapter,
		"validation", d.caps.Validation)
	return nil
}

// GPU returns the backend's driver.GPU.
// It changes when the device is recreated.
func (d *Device) GPU() driver.GPU {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.gpu
}

// Caps returns the capabilities of the device.
func (d *Device) Caps() driver.Caps {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.caps
}

// Limits returns the limits of the device.
func (d *Device) Limits() driver.Limits {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.limits
}

// Backend returns the name of the native API in use.
func (d *Device) Backend() string { return d.Caps().Backend }

// Logger returns the device's logger.
func (d *Device) Logger() *slog.Logger { return d.log }

// Config returns the configuration given to Open.
func (d *Device) Config() Config { return d.cfg }

// Generation returns the device generation.
// It starts at 1 and is incremented by Recreate.
func (d *Device) Generation() uint64 { return d.gen.Load() }

// Lost returns whether a backend call reported device
// loss since the last call to Recreate.
func (d *Device) Lost() bool { return d.lost.Load() }

// check records device loss.
// It returns err unchanged.
func (d *Device) check(err error) error {
	if err != nil && driver.IsDeviceLost(err) {
		if !d.lost.Swap(true) {
			d.log.Error("rhi: device lost", "backend", d.Backend(), "err", err)
		}
	}
	return err
}

// Check records device loss reported by a backend call
// that was made directly on a driver object (e.g., a
// driver.CmdBuffer obtained from a CmdPool).
// It returns err unchanged.
func (d *Device) Check(err error) error { return d.check(err) }

// gpuFor returns the GPU if the device can be used.
func (d *Device) gpuFor(op string) (driver.GPU, error) {
	if d.closing.Load() && d.refs.Load() <= 0 {
		return nil, errClosed
	}
	g := d.GPU()
	if g == nil {
		return nil, fmt.Errorf("%w (%s)", errNoGPU, op)
	}
	return g, nil
}

// Submission describes a batch of command buffers to
// execute.
type Submission struct {
	Cmd    []driver.CmdBuffer
	Wait   []*Semaphore
	Signal []*Semaphore
	// Fence, if not nil, is signaled when execution
	// completes.
	Fence *Fence
}

// Submit submits command buffers for execution.
func (d *Device) Submit(sub *Submission) error {
	g, err := d.gpuFor("Submit")
	if err != nil {
		return err
	}
	s := driver.Submission{Cmd: sub.Cmd}
	for _, w := range sub.Wait {
		if w.sem == nil {
			return fmt.Errorf("rhi: submit: %w: invalid wait semaphore", driver.ErrResource)
		}
		s.Wait = append(s.Wait, w.sem)
	}
	for _, x := range sub.Signal {
		if x.sem == nil {
			return fmt.Errorf("rhi: submit: %w: invalid signal semaphore", driver.ErrResource)
		}
		s.Signal = append(s.Signal, x.sem)
	}
	if sub.Fence != nil {
		if sub.Fence.fence == nil {
			return fmt.Errorf("rhi: submit: %w: invalid fence", driver.ErrResource)
		}
		s.Fence = sub.Fence.fence
	}
	return d.check(g.Submit(&s))
}

// WaitIdle blocks until the device is idle.
func (d *Device) WaitIdle() error {
	g, err := d.gpuFor("WaitIdle")
	if err != nil {
		return err
	}
	return d.check(g.WaitIdle())
}

// register tracks r as a live resource.
// It retains a reference to d and returns r's slot.
func (d *Device) register(r resource) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.live.Alloc()
	if n := d.live.Len(); n > len(d.res) {
		d.res = append(d.res, make([]resource, n-len(d.res))...)
	}
	d.res[idx] = r
	d.refs.Add(1)
	return idx
}

// unregister stops tracking the resource at slot and
// releases its reference.
func (d *Device) unregister(slot int) {
	d.mu.Lock()
	if slot < 0 || slot >= len(d.res) || !d.live.IsSet(slot) {
		d.mu.Unlock()
		return
	}
	d.live.Unset(slot)
	d.res[slot] = nil
	d.mu.Unlock()
	d.unref()
}

// unref releases a reference and closes the backend
// when no references remain.
func (d *Device) unref() {
	if d.refs.Add(-1) > 0 {
		return
	}
	d.closeUp()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.drv != nil {
		d.drv.Close()
		d.log.Info("rhi: device closed", "backend", d.caps.Backend)
	}
	d.drv, d.gpu = nil, nil
}

// Live returns the labels of every live resource.
func (d *Device) Live() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var s []string
	for i := range d.live.Ones() {
		s = append(s, d.res[i].label())
	}
	return s
}

// Destroy marks the device as closing and releases the
// reference held by Open.
// Resources still alive are reported as leaks. The
// backend is closed once they are destroyed.
// Calling Destroy more than once has no effect.
func (d *Device) Destroy() {
	if d == nil || d.closing.Swap(true) {
		return
	}
	for _, s := range d.Live() {
		d.log.Warn("rhi: resource leaked", "obj", s)
	}
	// The uploader holds no reference, but its
	// objects must go before the backend.
	d.closeUp()
	d.unref()
}

// Recreate recreates the device after device loss.
// Every live resource destroys its native objects, the
// backend is closed and opened again with the original
// configuration, and then every resource rebuilds its
// native objects from its descriptor.
// Resources that fail to rebuild enter the failed state.
// It must not be called concurrently with other uses of
// the device.
func (d *Device) Recreate() error {
	if d.closing.Load() {
		return errClosed
	}
	d.mu.RLock()
	if d.gpu != nil {
		// Errors are expected here.
		_ = d.gpu.WaitIdle()
	}
	live := make([]resource, 0, d.live.Count())
	for i := range d.live.Ones() {
		live = append(live, d.res[i])
	}
	d.mu.RUnlock()
	for i := len(live) - 1; i >= 0; i-- {
		live[i].release()
	}
	d.closeUp()

	d.mu.Lock()
	name := d.cfg.Backend
	if d.drv != nil {
		name = d.drv.Name()
		d.drv.Close()
	}
	d.drv, d.gpu = nil, nil
	start := time.Now()
	err := d.open(name)
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.lost.Store(false)
	gen := d.gen.Add(1)
	var nfail int
	for _, r := range live {
		if err := r.rebuild(); err != nil {
			nfail++
			d.log.Error("rhi: cannot rebuild resource", "obj", r.label(), "err", err)
		}
	}
	d.log.Info("rhi: device recreated",
		"generation", gen,
		"resources", len(live),
		"failed", nfail,
		"elapsed", time.Since(start))
	return nil
}

// NewSwapchain creates a swapchain for the device's
// window.
func (d *Device) NewSwapchain(imageCount int) (*Swapchain, error) {
	g, err := d.gpuFor("NewSwapchain")
	if err != nil {
		return nil, err
	}
	if _, ok := g.(driver.Presenter); !ok {
		return nil, driver.ErrCannotPresent
	}
	s := &Swapchain{count: imageCount}
	s.init(d, "swapchain", s)
	if s.err != nil {
		return nil, s.err
	}
	if err := s.create(); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}
