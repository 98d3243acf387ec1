// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"gviegas/rend3/driver"
	"gviegas/rend3/driver/drivertest"
)

// Triangle data: position (xyz) followed by color (rgba),
// interleaved.
var triangle = [3][7]float32{
	{-1, 1, 0, 1, 0, 0, 1},
	{1, 1, 0, 0, 1, 0, 1},
	{0, -1, 0, 0, 0, 1, 1},
}

const triangleWGSL = `
struct VertexOut {
	@builtin(position) pos: vec4<f32>,
	@location(0) color: vec4<f32>,
}

@vertex
fn vs_main(@location(0) pos: vec3<f32>, @location(1) color: vec4<f32>) -> VertexOut {
	return VertexOut(vec4<f32>(pos, 1.0), color);
}

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	return in.color;
}
`

// Example_draw records and submits the commands that draw
// a triangle into an offscreen render target.
func Example_draw() {
	drv := drivertest.NewDriver("example")
	gpu, err := drv.Open(nil)
	if err != nil {
		log.Fatal(err)
	}
	defer drv.Close()

	// Create a host-visible buffer and copy the vertex
	// data to it.
	const stride = 7 * 4
	buf, err := gpu.NewBuffer(3*stride, true, driver.UVertexData)
	if err != nil {
		log.Fatal(err)
	}
	defer buf.Destroy()
	p, err := buf.Map()
	if err != nil {
		log.Fatal(err)
	}
	for i, v := range triangle {
		for j, x := range v {
			binary.LittleEndian.PutUint32(p[i*stride+j*4:], math.Float32bits(x))
		}
	}
	if err := buf.Unmap(); err != nil {
		log.Fatal(err)
	}

	// Create an image and a view to use as render target.
	img, err := gpu.NewImage(&driver.ImageParam{
		Format: driver.RGBA8un,
		Width:  512,
		Height: 512,
		Levels: 1,
		Usage:  driver.URenderTarget | driver.UCopySrc,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer img.Destroy()
	view, err := img.NewView(0, 1)
	if err != nil {
		log.Fatal(err)
	}
	defer view.Destroy()

	// Shader code format depends on the GPU.
	if gpu.Caps().ShaderFormat != driver.WGSL {
		log.Fatal("example requires WGSL")
	}
	var code [2]driver.ShaderCode
	for i, stg := range [2]driver.Stage{driver.SVertex, driver.SFragment} {
		if code[i], err = gpu.NewShaderCode(stg, []byte(triangleWGSL)); err != nil {
			log.Fatal(err)
		}
		defer code[i].Destroy()
	}

	pl, err := gpu.NewPipeline(&driver.GraphState{
		VertFunc: driver.ShaderFunc{Code: code[0], Name: "vs_main"},
		FragFunc: driver.ShaderFunc{Code: code[1], Name: "fs_main"},
		Input: []driver.VertexIn{
			{Format: driver.Float32x3, Offset: 0, Nr: 0},
			{Format: driver.Float32x4, Offset: 12, Nr: 1},
		},
		Stride:   stride,
		Topology: driver.TTriangle,
		Raster:   driver.RasterState{Cull: driver.CBack, DepthClip: true},
		Blend:    driver.ColorBlend{WriteMask: driver.CAll},
		ColorFmt: []driver.PixelFmt{driver.RGBA8un},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer pl.Destroy()

	pool, err := gpu.NewCmdPool(driver.QGraphics, driver.CPrimary)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Destroy()
	cb, err := pool.NewCmdBuffer()
	if err != nil {
		log.Fatal(err)
	}
	if err := cb.Begin(); err != nil {
		log.Fatal(err)
	}
	cb.Transition([]driver.Transition{{Img: img, LayoutBefore: driver.LUndefined, LayoutAfter: driver.LColorTarget}})
	cb.BeginPass(&driver.PassDesc{
		Color: []driver.ColorTarget{{
			View:  view,
			Load:  driver.LClear,
			Store: driver.SStore,
			Clear: [4]float32{1, 1, 0, 1},
		}},
	})
	cb.SetPipeline(pl)
	cb.SetViewport(driver.Viewport{Width: 512, Height: 512, Zfar: 1})
	cb.SetScissor(driver.Scissor{Width: 512, Height: 512})
	cb.SetVertexBuf(buf, 0)
	cb.Draw(3, 1, 0, 0)
	cb.EndPass()
	if err := cb.End(); err != nil {
		log.Fatal(err)
	}

	fence, err := gpu.NewFence(false)
	if err != nil {
		log.Fatal(err)
	}
	defer fence.Destroy()
	if err := gpu.Submit(&driver.Submission{Cmd: []driver.CmdBuffer{cb}, Fence: fence}); err != nil {
		log.Fatal(err)
	}
	if ok, err := fence.Wait(driver.Forever); !ok || err != nil {
		log.Fatal("fence wait failed")
	}

	for _, s := range drv.GPU().Submissions()[0] {
		fmt.Println(s)
	}
	// Output:
	// Transition 1
	// BeginPass color=1 ds=false
	// SetPipeline
	// SetViewport 512x512
	// SetScissor 512x512
	// SetVertexBuf 0
	// Draw 3 1
	// EndPass
}
