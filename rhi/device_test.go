// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
)

func TestOpen(t *testing.T) {
	dev, drv := openTest(t, nil)
	assert.Equal(t, "test", dev.Backend())
	assert.Equal(t, uint64(1), dev.Generation())
	assert.False(t, dev.Lost())
	assert.Empty(t, dev.Live())
	assert.Same(t, drv.GPU(), dev.GPU())
	assert.Equal(t, 16384, dev.Limits().MaxImage2D)
}

func TestOpenNoDriver(t *testing.T) {
	dev, err := Open(&Config{Backend: "no such backend"})
	assert.Nil(t, dev)
	assert.Error(t, err)
}

func TestOpenError(t *testing.T) {
	_, drv := openTest(t, nil)
	drv.OpenErr = driver.ErrNoDevice
	drv.Close()
	_, err := Open(&Config{Backend: drv.Name()})
	assert.ErrorIs(t, err, driver.ErrNoDevice)
}

func TestRefCount(t *testing.T) {
	dev, drv := openTest(t, nil)
	f := NewFence(dev, false)
	s := NewSemaphore(dev)
	require.True(t, f.IsValid())
	require.True(t, s.IsValid())
	assert.ElementsMatch(t, []string{"fence", "semaphore"}, dev.Live())

	// Resources keep the backend open.
	dev.Destroy()
	assert.NotNil(t, drv.GPU())
	f.Destroy()
	assert.NotNil(t, drv.GPU())
	s.Destroy()
	assert.Nil(t, drv.GPU())

	// Repeated calls have no effect.
	s.Destroy()
	dev.Destroy()
}

func TestCreateAfterDestroy(t *testing.T) {
	dev, _ := openTest(t, nil)
	dev.Destroy()
	f := NewFence(dev, true)
	assert.False(t, f.IsValid())
	assert.Error(t, f.Err())
	_, err := f.Wait(0)
	assert.Error(t, err)
	f.Destroy()
}

func TestDeviceLost(t *testing.T) {
	dev, drv := openTest(t, nil)
	drv.GPU().SetLost(true)
	err := dev.WaitIdle()
	assert.True(t, driver.IsDeviceLost(err))
	assert.True(t, dev.Lost())

	// Creation fails while lost.
	b := NewConstantBuffer(dev, 64)
	assert.False(t, b.IsValid())
	assert.True(t, errors.Is(b.Err(), driver.ErrDeviceLost))
	b.Destroy()
}

func TestRecreate(t *testing.T) {
	dev, drv := openTest(t, nil)
	old := drv.GPU()

	cb := NewConstantBuffer(dev, 256)
	vb := NewVertexBuffer(dev, make([]byte, 96), 32)
	tex := NewTexture(dev, &TextureDesc{Name: "albedo", Format: driver.RGBA8un, Width: 4, Height: 4, Data: make([]byte, 64)})
	splr := NewSampler(dev, &SamplerDesc{Min: driver.FLinear, Mag: driver.FLinear, Mip: driver.FLinear, Addr: driver.AClamp})
	f := NewFence(dev, false)
	for _, r := range []interface{ IsValid() bool }{cb, vb, tex, splr, f} {
		require.True(t, r.IsValid())
	}
	img := tex.img

	old.SetLost(true)
	require.Error(t, dev.WaitIdle())
	require.True(t, dev.Lost())

	require.NoError(t, dev.Recreate())
	assert.False(t, dev.Lost())
	assert.Equal(t, uint64(2), dev.Generation())
	assert.NotSame(t, old, drv.GPU())
	assert.Same(t, drv.GPU(), dev.GPU())

	for _, r := range []interface{ IsValid() bool }{cb, vb, tex, splr, f} {
		assert.True(t, r.IsValid())
	}
	assert.NotNil(t, tex.View())
	assert.Equal(t, driver.LShaderRead, tex.Layout())
	assert.NotNil(t, cb.Buffer())
	assert.NotNil(t, splr.Sampler())

	// Handles of the previous generation are refused.
	_, ok := img.Get(dev)
	assert.False(t, ok)

	// A rebuilt fence is signaled.
	ok, err := f.Wait(0)
	assert.NoError(t, err)
	assert.True(t, ok)

	for _, d := range []interface{ Destroy() }{cb, vb, tex, splr, f} {
		d.Destroy()
	}
	assert.Empty(t, dev.Live())
}

func TestHandle(t *testing.T) {
	dev, _ := openTest(t, nil)
	var h Handle[*int]
	assert.True(t, h.IsZero())
	_, ok := h.Get(dev)
	assert.False(t, ok)

	x := 42
	h = newHandle(dev, &x)
	assert.Equal(t, "test", h.Backend())
	p, ok := h.Get(dev)
	assert.True(t, ok)
	assert.Same(t, &x, p)

	foreign := Handle[*int]{backend: "vulkan", gen: dev.Generation(), obj: &x}
	_, ok = foreign.Get(dev)
	assert.False(t, ok)

	assert.Same(t, &x, h.take())
	assert.True(t, h.IsZero())
}

func TestSwapchain(t *testing.T) {
	win := &gpucontext.NullWindowProvider{W: 640, H: 480}
	dev, drv := openTest(t, &Config{Window: win, VSync: true})
	sc, err := dev.NewSwapchain(3)
	require.NoError(t, err)
	defer sc.Destroy()

	w, h := sc.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.Equal(t, driver.BGRA8un, sc.Format())
	assert.Len(t, sc.Views(), 3)

	sem := NewSemaphore(dev)
	defer sem.Destroy()
	i, err := sc.Next(sem)
	require.NoError(t, err)
	assert.NoError(t, sc.Present(i, sem))
	assert.Equal(t, 1, drv.GPU().Calls("Present"))

	win.W, win.H = 800, 600
	require.NoError(t, sc.Recreate())
	w, h = sc.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestSwapchainHeadless(t *testing.T) {
	dev, _ := openTest(t, nil)
	_, err := dev.NewSwapchain(2)
	assert.ErrorIs(t, err, driver.ErrCannotPresent)
}
