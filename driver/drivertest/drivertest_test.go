// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"

	"gviegas/rend3/driver"
)

var _ driver.Presenter = presentGPU{}

func TestOpen(t *testing.T) {
	d := NewDriver("test")
	g, err := d.Open(nil)
	if err != nil {
		t.Fatalf("Driver.Open: unexpected error: %v", err)
	}
	if _, ok := g.(driver.Presenter); ok {
		t.Error("Driver.Open: headless GPU should not implement driver.Presenter")
	}
	g2, _ := d.Open(nil)
	if g2 != g {
		t.Error("Driver.Open: second call should return the same GPU")
	}
	d.Close()
	if d.GPU() != nil {
		t.Error("Driver.Close: GPU should be nil")
	}
	g, _ = d.Open(&driver.Config{Window: gpucontext.NullWindowProvider{W: 64, H: 32, SF: 1}})
	p, ok := g.(driver.Presenter)
	if !ok {
		t.Fatal("Driver.Open: windowed GPU should implement driver.Presenter")
	}
	sc, err := p.NewSwapchain(3, true)
	if err != nil {
		t.Fatalf("Presenter.NewSwapchain: unexpected error: %v", err)
	}
	if w, h := sc.Size(); w != 64 || h != 32 || len(sc.Views()) != 3 {
		t.Errorf("Swapchain: unexpected size/views\nhave %dx%d/%d\nwant 64x32/3", w, h, len(sc.Views()))
	}
	sc.Destroy()
}

func TestFence(t *testing.T) {
	d := NewDriver("test")
	g, _ := d.Open(nil)
	f, _ := g.NewFence(false)
	start := time.Now()
	if ok, err := f.Wait(0); ok || err != nil {
		t.Fatalf("Fence.Wait(0):\nhave %t, %v\nwant false, nil", ok, err)
	}
	if time.Since(start) > time.Second {
		t.Error("Fence.Wait(0): should not block")
	}
	if err := f.Reset(); err == nil {
		t.Error("Fence.Reset: should fail on unsignaled fence")
	}
	f2, _ := g.NewFence(true)
	if ok, _ := f2.Wait(driver.Forever); !ok {
		t.Error("Fence.Wait: signaled fence should return true")
	}
	if err := f2.Reset(); err != nil {
		t.Errorf("Fence.Reset: unexpected error: %v", err)
	}
	if ok, _ := f2.Wait(time.Millisecond); ok {
		t.Error("Fence.Wait: reset fence should time out")
	}
}

func TestSubmitHold(t *testing.T) {
	d := NewDriver("test")
	g, _ := d.Open(nil)
	gpu := d.GPU()
	pool, _ := g.NewCmdPool(driver.QGraphics, driver.CPrimary)
	cb, _ := pool.NewCmdBuffer()
	cb.Begin()
	cb.Transition(nil)
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End: unexpected error: %v", err)
	}
	f, _ := g.NewFence(false)
	gpu.HoldFences(true)
	if err := g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		t.Fatalf("GPU.Submit: unexpected error: %v", err)
	}
	if ok, _ := f.Wait(0); ok {
		t.Error("GPU.Submit: held fence should not be signaled")
	}
	gpu.ReleaseFences()
	if ok, _ := f.Wait(0); !ok {
		t.Error("GPU.ReleaseFences: fence should be signaled")
	}
	if s := gpu.Submissions(); len(s) != 1 || len(s[0]) != 1 || s[0][0] != "Transition 0" {
		t.Errorf("GPU.Submissions: unexpected value %q", s)
	}
}

func TestFail(t *testing.T) {
	d := NewDriver("test")
	g, _ := d.Open(nil)
	gpu := d.GPU()
	gpu.Fail("NewBuffer", driver.ErrNoDeviceMemory)
	if _, err := g.NewBuffer(16, true, driver.UShaderConst); !errors.Is(err, driver.ErrNoDeviceMemory) {
		t.Errorf("GPU.NewBuffer: injected failure\nhave %v\nwant %v", err, driver.ErrNoDeviceMemory)
	}
	if _, err := g.NewBuffer(16, true, driver.UShaderConst); err != nil {
		t.Errorf("GPU.NewBuffer: failure should apply once, got %v", err)
	}
	gpu.SetLost(true)
	if err := g.WaitIdle(); !driver.IsDeviceLost(err) {
		t.Errorf("GPU.WaitIdle: have %v, want device lost", err)
	}
	if n := gpu.Calls("NewBuffer"); n != 2 {
		t.Errorf("GPU.Calls:\nhave %d\nwant 2", n)
	}
}
