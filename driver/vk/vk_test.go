// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"testing"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

var _ driver.Presenter = presentGPU{}

// openGPU opens a headless GPU.
// It skips the test if no Vulkan implementation
// is available.
func openGPU(t *testing.T) *GPU {
	t.Helper()
	if err := load(); err != nil {
		t.Skipf("Vulkan not available: %v", err)
	}
	d := new(Driver)
	g, err := d.Open(nil)
	if err != nil {
		if errors.Is(err, driver.ErrNoDevice) || errors.Is(err, driver.ErrNotInstalled) {
			t.Skipf("Vulkan not usable: %v", err)
		}
		t.Fatalf("Driver.Open: unexpected error: %v", err)
	}
	t.Cleanup(d.Close)
	return g.(*GPU)
}

func TestOpen(t *testing.T) {
	g := openGPU(t)
	if g2, _ := g.drv.Open(nil); g2 != driver.GPU(g) {
		t.Error("Driver.Open: second call should return the same GPU")
	}
	c := g.Caps()
	if c.Backend != driverName {
		t.Errorf("GPU.Caps: Backend\nhave %s\nwant %s", c.Backend, driverName)
	}
	if c.ShaderFormat != driver.SPIRV {
		t.Errorf("GPU.Caps: ShaderFormat\nhave %v\nwant %v", c.ShaderFormat, driver.SPIRV)
	}
	if c.MaxAnisotropy < 1 {
		t.Errorf("GPU.Caps: MaxAnisotropy\nhave %d\nwant >= 1", c.MaxAnisotropy)
	}
	if l := g.Limits(); l.MaxImage2D < 4096 || l.MaxColorTargets < 4 {
		t.Errorf("GPU.Limits: unexpected limits %+v", l)
	}
	if err := g.WaitIdle(); err != nil {
		t.Errorf("GPU.WaitIdle: unexpected error: %v", err)
	}
}

func TestBuffer(t *testing.T) {
	g := openGPU(t)
	if _, err := g.NewBuffer(0, true, driver.UShaderConst); !errors.Is(err, driver.ErrResource) {
		t.Errorf("GPU.NewBuffer: zero size\nhave %v\nwant %v", err, driver.ErrResource)
	}
	b, err := g.NewBuffer(256, true, driver.UShaderConst)
	if err != nil {
		t.Fatalf("GPU.NewBuffer: unexpected error: %v", err)
	}
	defer b.Destroy()
	if b.Cap() != 256 || !b.Visible() {
		t.Fatalf("GPU.NewBuffer: Cap/Visible\nhave %d/%t\nwant 256/true", b.Cap(), b.Visible())
	}
	if err := b.Unmap(); !errors.Is(err, driver.ErrMapMisuse) {
		t.Errorf("Buffer.Unmap: unmapped\nhave %v\nwant %v", err, driver.ErrMapMisuse)
	}
	p, err := b.Map()
	if err != nil {
		t.Fatalf("Buffer.Map: unexpected error: %v", err)
	}
	if len(p) != 256 {
		t.Fatalf("Buffer.Map: len\nhave %d\nwant 256", len(p))
	}
	if _, err := b.Map(); !errors.Is(err, driver.ErrMapMisuse) {
		t.Errorf("Buffer.Map: mapped twice\nhave %v\nwant %v", err, driver.ErrMapMisuse)
	}
	copy(p, "rend3")
	if err := b.Unmap(); err != nil {
		t.Fatalf("Buffer.Unmap: unexpected error: %v", err)
	}
	p, _ = b.Map()
	if s := string(p[:5]); s != "rend3" {
		t.Errorf("Buffer.Map: contents\nhave %q\nwant %q", s, "rend3")
	}
	b.Unmap()

	nb, err := g.NewBuffer(64, false, driver.UVertexData)
	if err != nil {
		t.Fatalf("GPU.NewBuffer: unexpected error: %v", err)
	}
	defer nb.Destroy()
	if _, err := nb.Map(); !errors.Is(err, driver.ErrMapMisuse) {
		t.Errorf("Buffer.Map: not visible\nhave %v\nwant %v", err, driver.ErrMapMisuse)
	}
}

func TestImage(t *testing.T) {
	g := openGPU(t)
	if _, err := g.NewImage(&driver.ImageParam{Format: driver.RGBA8un, Width: 0, Height: 4, Levels: 1}); err == nil {
		t.Error("GPU.NewImage: zero width should fail")
	}
	img, err := g.NewImage(&driver.ImageParam{
		Format: driver.RGBA8un,
		Width:  64,
		Height: 32,
		Levels: 3,
		Usage:  driver.UShaderSample | driver.UCopyDst,
	})
	if err != nil {
		t.Fatalf("GPU.NewImage: unexpected error: %v", err)
	}
	defer img.Destroy()
	if w, h := img.(*image).size(2); w != 16 || h != 8 {
		t.Errorf("image.size(2)\nhave %dx%d\nwant 16x8", w, h)
	}
	if _, err := img.NewView(2, 2); err == nil {
		t.Error("Image.NewView: out of range levels should fail")
	}
	v, err := img.NewView(1, 2)
	if err != nil {
		t.Fatalf("Image.NewView: unexpected error: %v", err)
	}
	if v.Image() != img {
		t.Error("ImageView.Image: unexpected image")
	}
	v.Destroy()

	ds, err := g.NewImage(&driver.ImageParam{
		Format: driver.D32f,
		Width:  16,
		Height: 16,
		Levels: 1,
		Usage:  driver.URenderTarget | driver.UShaderSample,
	})
	if err != nil {
		t.Fatalf("GPU.NewImage: depth: unexpected error: %v", err)
	}
	ds.Destroy()
}

func TestSampler(t *testing.T) {
	g := openGPU(t)
	for _, spln := range [...]driver.Sampling{
		{},
		{Min: driver.FLinear, Mag: driver.FLinear, Mipmap: driver.FLinear, MaxLOD: 8},
		{MaxAniso: 16, MaxLOD: 8},
		{Min: driver.FLinear, Mag: driver.FLinear, Compare: true, Cmp: driver.CLessEqual, AddrU: driver.AClamp, AddrV: driver.AClamp},
	} {
		s, err := g.NewSampler(&spln)
		if err != nil {
			t.Fatalf("GPU.NewSampler(%+v): unexpected error: %v", spln, err)
		}
		s.Destroy()
	}
}

func TestShaderCode(t *testing.T) {
	g := openGPU(t)
	if _, err := g.NewShaderCode(driver.SVertex, []byte{1, 2, 3}); !errors.Is(err, driver.ErrResource) {
		t.Errorf("GPU.NewShaderCode: invalid size\nhave %v\nwant %v", err, driver.ErrResource)
	}
	if _, err := g.NewShaderCode(driver.SVertex, make([]byte, 32)); !errors.Is(err, driver.ErrResource) {
		t.Errorf("GPU.NewShaderCode: no magic\nhave %v\nwant %v", err, driver.ErrResource)
	}
}

func TestFence(t *testing.T) {
	g := openGPU(t)
	f, err := g.NewFence(true)
	if err != nil {
		t.Fatalf("GPU.NewFence: unexpected error: %v", err)
	}
	defer f.Destroy()
	if ok, err := f.Wait(0); !ok || err != nil {
		t.Fatalf("Fence.Wait: signaled\nhave %t, %v\nwant true, nil", ok, err)
	}
	if err := f.Reset(); err != nil {
		t.Fatalf("Fence.Reset: unexpected error: %v", err)
	}
	if ok, _ := f.Wait(time.Millisecond); ok {
		t.Error("Fence.Wait: reset fence should not be signaled")
	}
	if err := f.Reset(); err == nil {
		t.Error("Fence.Reset: unsignaled fence should fail")
	}

	// An empty submission signals the fence.
	if err := g.Submit(&driver.Submission{Fence: f}); err != nil {
		t.Fatalf("GPU.Submit: unexpected error: %v", err)
	}
	if ok, err := f.Wait(driver.Forever); !ok || err != nil {
		t.Fatalf("Fence.Wait: after submit\nhave %t, %v\nwant true, nil", ok, err)
	}
}

func TestCmdBuffer(t *testing.T) {
	g := openGPU(t)
	if _, err := g.NewCmdPool(driver.QGraphics, driver.CSecondary); !errors.Is(err, driver.ErrCmdAlloc) {
		t.Errorf("GPU.NewCmdPool: secondary\nhave %v\nwant %v", err, driver.ErrCmdAlloc)
	}
	p, err := g.NewCmdPool(driver.QGraphics, driver.CPrimary)
	if err != nil {
		t.Fatalf("GPU.NewCmdPool: unexpected error: %v", err)
	}
	defer p.Destroy()
	cb, err := p.NewCmdBuffer()
	if err != nil {
		t.Fatalf("CmdPool.NewCmdBuffer: unexpected error: %v", err)
	}
	if err := cb.End(); err == nil {
		t.Error("CmdBuffer.End: not recording should fail")
	}

	img, err := g.NewImage(&driver.ImageParam{
		Format: driver.RGBA8un,
		Width:  64,
		Height: 64,
		Levels: 1,
		Usage:  driver.UShaderSample | driver.UCopyDst | driver.URenderTarget,
	})
	if err != nil {
		t.Fatalf("GPU.NewImage: unexpected error: %v", err)
	}
	defer img.Destroy()
	view, err := img.NewView(0, 1)
	if err != nil {
		t.Fatalf("Image.NewView: unexpected error: %v", err)
	}
	defer view.Destroy()
	stg, err := g.NewBuffer(64*64*4, true, driver.UCopySrc)
	if err != nil {
		t.Fatalf("GPU.NewBuffer: unexpected error: %v", err)
	}
	defer stg.Destroy()

	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin: unexpected error: %v", err)
	}
	cb.Transition([]driver.Transition{{Img: img, LayoutBefore: driver.LUndefined, LayoutAfter: driver.LCopyDst}})
	cb.CopyBufToImg(&driver.BufImgCopy{Buf: stg, Stride: 64, Img: img, Width: 64, Height: 64})
	cb.Transition([]driver.Transition{{Img: img, LayoutBefore: driver.LCopyDst, LayoutAfter: driver.LColorTarget}})
	cb.BeginPass(&driver.PassDesc{Color: []driver.ColorTarget{{
		View:  view,
		Load:  driver.LLoad,
		Store: driver.SStore,
	}}})
	cb.EndPass()
	cb.BeginPass(&driver.PassDesc{Color: []driver.ColorTarget{{
		View:  view,
		Load:  driver.LClear,
		Store: driver.SStore,
		Clear: [4]float32{1, 0, 0, 1},
	}}})
	cb.EndPass()
	cb.Transition([]driver.Transition{{Img: img, LayoutBefore: driver.LColorTarget, LayoutAfter: driver.LShaderRead}})
	if err := cb.End(); err != nil {
		t.Fatalf("CmdBuffer.End: unexpected error: %v", err)
	}
	if n := len(g.passes); n != 2 {
		t.Errorf("GPU.passes: len\nhave %d\nwant 2", n)
	}

	f, _ := g.NewFence(false)
	defer f.Destroy()
	if err := g.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		t.Fatalf("GPU.Submit: unexpected error: %v", err)
	}
	if ok, err := f.Wait(driver.Forever); !ok || err != nil {
		t.Fatalf("Fence.Wait\nhave %t, %v\nwant true, nil", ok, err)
	}

	// A draw with no pipeline fails at End.
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin: unexpected error: %v", err)
	}
	cb.BeginPass(&driver.PassDesc{Color: []driver.ColorTarget{{View: view, Load: driver.LDontCare, Store: driver.SStore}}})
	cb.Draw(3, 1, 0, 0)
	cb.EndPass()
	if err := cb.End(); !errors.Is(err, driver.ErrResource) {
		t.Errorf("CmdBuffer.End: draw without pipeline\nhave %v\nwant %v", err, driver.ErrResource)
	}
	if err := p.Reset(); err != nil {
		t.Errorf("CmdPool.Reset: unexpected error: %v", err)
	}
}

func TestShaderCodeInvalid(t *testing.T) {
	// The data is rejected before the device is used.
	var g GPU
	for _, data := range [][]byte{
		nil,
		{0x03, 0x02},
		{0x03, 0x02, 0x23, 0x07},
		make([]byte, 22),
		make([]byte, 24),
	} {
		sc, err := g.NewShaderCode(driver.SVertex, data)
		if err == nil || sc != nil {
			t.Fatalf("GPU.NewShaderCode: %d bytes\nhave %v, %v\nwant nil, error", len(data), sc, err)
		}
		if !errors.Is(err, driver.ErrResource) {
			t.Fatalf("GPU.NewShaderCode: %d bytes\nhave %v\nwant %v", len(data), err, driver.ErrResource)
		}
	}
}

func TestDebugReport(t *testing.T) {
	var cb vk.DebugReportCallbackFunc = debugReport
	if r := cb(vk.DebugReportFlags(vk.DebugReportWarningBit), 0, 0, 0, 1, "test", "message", nil); r != vk.False {
		t.Fatalf("debugReport:\nhave %v\nwant vk.False", r)
	}
}
