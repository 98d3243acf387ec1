// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package wgpu implements driver interfaces on top of the
// gogpu WebGPU HAL.
//
// The HAL backend in use is the best one registered with
// package hal. Importing hal/allbackends registers every
// native backend; tests import hal/noop instead.
package wgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"gviegas/rend3/driver"
)

const driverName = "wgpu"

// Driver implements driver.Driver.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

func init() {
	driver.Register(&Driver{})
}

// backendOrder is the order in which registered HAL
// backends are tried.
var backendOrder = [...]gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// Open initializes the driver.
func (d *Driver) Open(cfg *driver.Config) (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		return d.gpu.self(), nil
	}
	if cfg == nil {
		cfg = &driver.Config{}
	}
	hal.SetLogger(driver.Logger())
	var err error = fmt.Errorf("%w (no HAL backend registered)", driver.ErrNotInstalled)
	for _, v := range backendOrder {
		b, ok := hal.GetBackend(v)
		if !ok {
			continue
		}
		var gpu *GPU
		if gpu, err = open(d, b, cfg); err != nil {
			driver.Logger().Warn("wgpu: HAL backend failed", "backend", v.String(), "err", err)
			continue
		}
		d.gpu = gpu
		return gpu.self(), nil
	}
	return nil, err
}

// Name returns the driver name.
func (*Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		return
	}
	d.gpu.destroy()
	d.gpu = nil
}

// GPU implements driver.GPU.
type GPU struct {
	drv     *Driver
	inst    hal.Instance
	surf    hal.Surface
	adapter hal.ExposedAdapter
	dev     hal.Device
	que     hal.Queue
	caps    driver.Caps
	win     driver.Window

	// Serializes queue access.
	qmu sync.Mutex

	bglMu sync.Mutex
	bgls  map[driver.BindLayout]*bindLayout
}

// presentGPU adds driver.Presenter to GPU.
type presentGPU struct{ *GPU }

func (g *GPU) self() driver.GPU {
	if g.surf != nil {
		return presentGPU{g}
	}
	return g
}

func open(d *Driver, b hal.Backend, cfg *driver.Config) (*GPU, error) {
	desc := hal.InstanceDescriptor{Backends: gputypes.BackendsAll}
	if cfg.Validation {
		desc.Flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	inst, err := b.CreateInstance(&desc)
	if err != nil && cfg.Validation {
		driver.Logger().Warn("wgpu: retrying without validation", "err", driver.ErrNoValidation)
		desc.Flags = gputypes.InstanceFlagsNone
		inst, err = b.CreateInstance(&desc)
		cfg = &driver.Config{Window: cfg.Window, Extensions: cfg.Extensions}
	}
	if err != nil {
		return nil, driver.NewError(driver.ErrNotInstalled, "CreateInstance", b.Variant().String(), err.Error())
	}
	g := &GPU{drv: d, inst: inst, win: cfg.Window, bgls: make(map[driver.BindLayout]*bindLayout)}
	if cfg.Window != nil {
		nw, ok := cfg.Window.(driver.NativeWindow)
		if !ok {
			inst.Destroy()
			return nil, fmt.Errorf("%w (window does not expose native handles)", driver.ErrSurface)
		}
		disp, win := nw.NativeHandles()
		if g.surf, err = inst.CreateSurface(disp, win); err != nil {
			inst.Destroy()
			return nil, driver.NewError(driver.ErrSurface, "CreateSurface", "", err.Error())
		}
	}
	adapters := inst.EnumerateAdapters(g.surf)
	infos := make([]driver.AdapterInfo, len(adapters))
	for i := range adapters {
		infos[i] = driver.AdapterInfo{
			Name: adapters[i].Info.Name,
			Families: []driver.QueueFamilyInfo{{
				Flags:   driver.QueueGraphics | driver.QueueCompute | driver.QueueTransfer,
				Count:   1,
				Present: g.surf == nil || adapters[i].Adapter.SurfaceCapabilities(g.surf) != nil,
			}},
		}
	}
	i, fam, err := driver.SelectAdapter(infos, &driver.Requirements{Present: g.surf != nil})
	if err != nil {
		g.destroy()
		return nil, err
	}
	g.adapter = adapters[i]
	od, err := g.adapter.Adapter.Open(0, g.adapter.Capabilities.Limits)
	if err != nil {
		g.destroy()
		return nil, driver.NewError(driver.ErrNoDevice, "Adapter.Open", g.adapter.Info.Name, err.Error())
	}
	g.dev, g.que = od.Device, od.Queue
	g.caps = driver.Caps{
		Backend:       "wgpu/" + b.Variant().String(),
		Adapter:       g.adapter.Info.Name,
		MaxAnisotropy: 16,
		ReverseDepth:  true,
		Validation:    cfg.Validation,
		NonSolidFill:  false,
		ShaderFormat:  driver.WGSL,
		Families:      fam,
	}
	driver.Logger().Info("wgpu: device opened", "adapter", g.caps.Adapter, "backend", g.caps.Backend)
	return g, nil
}

func (g *GPU) destroy() {
	if g.dev != nil {
		g.dev.WaitIdle()
		g.bglMu.Lock()
		for _, l := range g.bgls {
			l.destroy(g.dev)
		}
		g.bgls = nil
		g.bglMu.Unlock()
	}
	if g.surf != nil {
		if g.dev != nil {
			g.surf.Unconfigure(g.dev)
		}
		g.surf.Destroy()
	}
	if g.dev != nil {
		g.dev.Destroy()
	}
	if g.adapter.Adapter != nil {
		g.adapter.Adapter.Destroy()
	}
	if g.inst != nil {
		g.inst.Destroy()
	}
	g.inst, g.surf, g.dev, g.que = nil, nil, nil, nil
	g.adapter = hal.ExposedAdapter{}
}

// Driver returns the driver.Driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Caps returns the capabilities of g.
func (g *GPU) Caps() driver.Caps { return g.caps }

// Limits returns the implementation limits.
func (g *GPU) Limits() driver.Limits {
	l := g.adapter.Capabilities.Limits
	return driver.Limits{
		MaxImage2D:      int(l.MaxTextureDimension2D),
		MaxColorTargets: int(l.MaxColorAttachments),
		MaxConstRange:   int64(l.MaxUniformBufferBindingSize),
		MaxVertexIn:     int(l.MaxVertexAttributes),
	}
}

// WaitIdle blocks until g is idle.
func (g *GPU) WaitIdle() error {
	if err := g.dev.WaitIdle(); err != nil {
		return halError(err, "WaitIdle", "")
	}
	return nil
}

// halError converts an error returned by the HAL into
// a *driver.Error.
func halError(err error, op, obj string) error {
	var sentinel error
	switch {
	case errors.Is(err, hal.ErrDeviceLost):
		sentinel = driver.ErrDeviceLost
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		sentinel = driver.ErrNoDeviceMemory
	case errors.Is(err, hal.ErrSurfaceLost), errors.Is(err, hal.ErrSurfaceOutdated):
		sentinel = driver.ErrSwapchain
	case errors.Is(err, hal.ErrNotReady):
		sentinel = driver.ErrNoBackbuffer
	case errors.Is(err, hal.ErrInvalidMapRange):
		sentinel = driver.ErrMapMisuse
	default:
		sentinel = driver.ErrResource
	}
	return driver.NewError(sentinel, op, obj, err.Error())
}
