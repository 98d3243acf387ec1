// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"gviegas/rend3/driver"
)

// cmdPool implements driver.CmdPool.
// The HAL has no pools, so it only tracks the command
// buffers it allocated.
type cmdPool struct {
	g   *GPU
	fam driver.QueueFamily
	lvl driver.CmdLevel
	cbs []*cmdBuffer
}

// NewCmdPool creates a new command pool.
func (g *GPU) NewCmdPool(fam driver.QueueFamily, lvl driver.CmdLevel) (driver.CmdPool, error) {
	if lvl != driver.CPrimary {
		return nil, driver.NewError(driver.ErrCmdAlloc, "NewCmdPool", "", "secondary command buffers not supported")
	}
	return &cmdPool{g: g, fam: fam, lvl: lvl}, nil
}

// NewCmdBuffer allocates a new command buffer.
func (p *cmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	enc, err := p.g.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: fmt.Sprintf("cb%d", len(p.cbs)),
	})
	if err != nil {
		return nil, driver.NewError(driver.ErrCmdAlloc, "CreateCommandEncoder", "", err.Error())
	}
	cb := &cmdBuffer{g: p.g, pool: p, enc: enc}
	p.cbs = append(p.cbs, cb)
	return cb, nil
}

// Reset resets every command buffer in the pool.
func (p *cmdPool) Reset() error {
	var errs []error
	for _, cb := range p.cbs {
		errs = append(errs, cb.Reset())
	}
	return errors.Join(errs...)
}

// Family returns the pool's queue family.
func (p *cmdPool) Family() driver.QueueFamily { return p.fam }

// Level returns the level of command buffers.
func (p *cmdPool) Level() driver.CmdLevel { return p.lvl }

// Destroy destroys the pool and its command buffers.
func (p *cmdPool) Destroy() {
	if p == nil {
		return
	}
	for _, cb := range p.cbs {
		cb.destroy()
	}
	p.cbs = nil
}

type constBinding struct {
	buf       *buffer
	off, size int64
}

// cmdBuffer implements driver.CmdBuffer.
// Bind groups are created when a draw is recorded
// with a dirty binding set and destroyed when the
// command buffer is reset.
type cmdBuffer struct {
	g    *GPU
	pool *cmdPool
	enc  hal.CommandEncoder

	// Set by End and consumed by Submit.
	hcb   hal.CommandBuffer
	index uint64

	recording bool
	pass      hal.RenderPassEncoder
	pl        *pipeline
	err       error

	consts [driver.MaxConstBuf]constBinding
	texs   [driver.MaxTexture]*imageView
	splrs  [driver.MaxSampler]*sampler
	dirty  bool
	groups []hal.BindGroup
}

func (cb *cmdBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

func (cb *cmdBuffer) release() {
	for _, bg := range cb.groups {
		cb.g.dev.DestroyBindGroup(bg)
	}
	cb.groups = cb.groups[:0]
	if cb.hcb != nil {
		cb.enc.ResetAll([]hal.CommandBuffer{cb.hcb})
		cb.hcb = nil
	}
	cb.pl = nil
	cb.consts = [driver.MaxConstBuf]constBinding{}
	cb.texs = [driver.MaxTexture]*imageView{}
	cb.splrs = [driver.MaxSampler]*sampler{}
	cb.dirty = false
	cb.err = nil
}

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	if cb.recording {
		return driver.NewError(driver.ErrResource, "Begin", "", "already recording")
	}
	cb.release()
	if err := cb.enc.BeginEncoding(""); err != nil {
		return halError(err, "BeginEncoding", "")
	}
	cb.recording = true
	return nil
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(pass *driver.PassDesc) {
	if cb.pass != nil {
		panic("wgpu: nested render pass")
	}
	desc := hal.RenderPassDescriptor{
		ColorAttachments: make([]hal.RenderPassColorAttachment, len(pass.Color)),
	}
	for i, c := range pass.Color {
		desc.ColorAttachments[i] = hal.RenderPassColorAttachment{
			View:    c.View.(*imageView).view,
			LoadOp:  convLoadOp(c.Load),
			StoreOp: convStoreOp(c.Store),
			ClearValue: gputypes.Color{
				R: float64(c.Clear[0]),
				G: float64(c.Clear[1]),
				B: float64(c.Clear[2]),
				A: float64(c.Clear[3]),
			},
		}
	}
	if ds := pass.DS; ds != nil {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            ds.View.(*imageView).view,
			DepthLoadOp:     convLoadOp(ds.Load),
			DepthStoreOp:    convStoreOp(ds.Store),
			DepthClearValue: ds.Clear,
		}
		if ds.View.(*imageView).img.param.Format == driver.D24unS8ui {
			desc.DepthStencilAttachment.StencilLoadOp = gputypes.LoadOpClear
			desc.DepthStencilAttachment.StencilStoreOp = gputypes.StoreOpDiscard
		}
	}
	cb.pass = cb.enc.BeginRenderPass(&desc)
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	cb.pass.End()
	cb.pass = nil
	cb.pl = nil
	cb.dirty = true
}

// SetPipeline sets the graphics pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*pipeline)
	cb.pass.SetPipeline(p.pl)
	if cb.pl == nil || cb.pl.layout != p.layout {
		cb.dirty = true
	}
	cb.pl = p
}

// SetViewport sets the viewport.
func (cb *cmdBuffer) SetViewport(vp driver.Viewport) {
	cb.pass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.Znear, vp.Zfar)
}

// SetScissor sets the scissor rectangle.
func (cb *cmdBuffer) SetScissor(sciss driver.Scissor) {
	cb.pass.SetScissorRect(uint32(sciss.X), uint32(sciss.Y), uint32(sciss.Width), uint32(sciss.Height))
}

// SetVertexBuf sets the vertex buffer.
func (cb *cmdBuffer) SetVertexBuf(buf driver.Buffer, off int64) {
	cb.pass.SetVertexBuffer(0, buf.(*buffer).buf, uint64(off))
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	f := gputypes.IndexFormatUint32
	if format == driver.Index16 {
		f = gputypes.IndexFormatUint16
	}
	cb.pass.SetIndexBuffer(buf.(*buffer).buf, f, uint64(off))
}

// SetConstBuf binds a constant buffer range to slot.
func (cb *cmdBuffer) SetConstBuf(slot int, buf driver.Buffer, off, size int64) {
	cb.consts[slot] = constBinding{buf.(*buffer), off, size}
	cb.dirty = true
}

// SetTexture binds an image view to slot.
func (cb *cmdBuffer) SetTexture(slot int, iv driver.ImageView) {
	cb.texs[slot] = iv.(*imageView)
	cb.dirty = true
}

// SetSampler binds a sampler to slot.
func (cb *cmdBuffer) SetSampler(slot int, splr driver.Sampler) {
	cb.splrs[slot] = splr.(*sampler)
	cb.dirty = true
}

// flush creates and sets the bind group that the
// current pipeline's layout requires.
func (cb *cmdBuffer) flush() bool {
	if cb.pl == nil {
		cb.fail(driver.NewError(driver.ErrResource, "Draw", "", "no pipeline set"))
		return false
	}
	if !cb.dirty {
		return true
	}
	l := cb.pl.layout
	if l.desc.Const+l.desc.Tex+l.desc.Splr == 0 {
		cb.dirty = false
		return true
	}
	ents := make([]gputypes.BindGroupEntry, 0, l.desc.Const+l.desc.Tex+l.desc.Splr)
	for i := range l.desc.Const {
		c := cb.consts[i]
		if c.buf == nil {
			cb.fail(driver.NewError(driver.ErrResource, "Draw", "", fmt.Sprintf("constant slot %d not set", i)))
			return false
		}
		ents = append(ents, gputypes.BindGroupEntry{
			Binding: uint32(driver.ConstBinding(i)),
			Resource: gputypes.BufferBinding{
				Buffer: c.buf.buf.NativeHandle(),
				Offset: uint64(c.off),
				Size:   uint64(c.size),
			},
		})
	}
	for i := range l.desc.Tex {
		v := cb.texs[i]
		if v == nil || v.view == nil {
			cb.fail(driver.NewError(driver.ErrResource, "Draw", "", fmt.Sprintf("texture slot %d not set", i)))
			return false
		}
		ents = append(ents, gputypes.BindGroupEntry{
			Binding:  uint32(driver.TexBinding(i)),
			Resource: gputypes.TextureViewBinding{TextureView: v.view.NativeHandle()},
		})
	}
	for i := range l.desc.Splr {
		s := cb.splrs[i]
		if s == nil {
			cb.fail(driver.NewError(driver.ErrResource, "Draw", "", fmt.Sprintf("sampler slot %d not set", i)))
			return false
		}
		ents = append(ents, gputypes.BindGroupEntry{
			Binding:  uint32(driver.SplrBinding(i)),
			Resource: gputypes.SamplerBinding{Sampler: s.splr.NativeHandle()},
		})
	}
	bg, err := cb.g.dev.CreateBindGroup(&hal.BindGroupDescriptor{Layout: l.bgl, Entries: ents})
	if err != nil {
		cb.fail(halError(err, "CreateBindGroup", ""))
		return false
	}
	cb.groups = append(cb.groups, bg)
	cb.pass.SetBindGroup(0, bg, nil)
	cb.dirty = false
	return true
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	if cb.flush() {
		cb.pass.Draw(uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
	}
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	if cb.flush() {
		cb.pass.DrawIndexed(uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
	}
}

// CopyBufToImg copies data from a buffer to an image.
// The row size in bytes must be a multiple of 256.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	img := param.Img.(*image)
	bpr := param.Stride * img.param.Format.Size()
	if bpr%256 != 0 {
		cb.fail(driver.NewError(driver.ErrResource, "CopyBufferToTexture", "", fmt.Sprintf("unaligned row size %d", bpr)))
		return
	}
	cb.enc.CopyBufferToTexture(param.Buf.(*buffer).buf, img.tex, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       uint64(param.BufOff),
			BytesPerRow:  uint32(bpr),
			RowsPerImage: uint32(param.Height),
		},
		TextureBase: hal.ImageCopyTexture{
			Texture:  img.tex,
			MipLevel: uint32(param.Level),
			Aspect:   gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{
			Width:              uint32(param.Width),
			Height:             uint32(param.Height),
			DepthOrArrayLayers: 1,
		},
	}})
}

// Transition inserts image layout transitions.
func (cb *cmdBuffer) Transition(t []driver.Transition) {
	bars := make([]hal.TextureBarrier, 0, len(t))
	for _, x := range t {
		img := x.Img.(*image)
		if img.tex == nil {
			// Swapchain image not acquired.
			continue
		}
		bars = append(bars, hal.TextureBarrier{
			Texture: img.tex,
			Range: hal.TextureRange{
				Aspect:          aspectOf(img.param.Format),
				MipLevelCount:   uint32(img.param.Levels),
				ArrayLayerCount: 1,
			},
			Usage: hal.TextureUsageTransition{
				OldUsage: convLayout(x.LayoutBefore),
				NewUsage: convLayout(x.LayoutAfter),
			},
		})
	}
	if len(bars) > 0 {
		cb.enc.TransitionTextures(bars)
	}
}

// End ends command recording.
func (cb *cmdBuffer) End() error {
	if !cb.recording {
		return driver.NewError(driver.ErrResource, "End", "", "not recording")
	}
	cb.recording = false
	if cb.pass != nil {
		cb.pass.End()
		cb.pass = nil
		cb.fail(driver.NewError(driver.ErrResource, "End", "", "render pass not ended"))
	}
	if cb.err != nil {
		cb.enc.DiscardEncoding()
		return cb.err
	}
	hcb, err := cb.enc.EndEncoding()
	if err != nil {
		return halError(err, "EndEncoding", "")
	}
	cb.hcb = hcb
	return nil
}

// Reset discards recorded commands.
func (cb *cmdBuffer) Reset() error {
	if cb.recording {
		if cb.pass != nil {
			cb.pass.End()
			cb.pass = nil
		}
		cb.enc.DiscardEncoding()
		cb.recording = false
	}
	cb.release()
	return nil
}

func (cb *cmdBuffer) destroy() {
	if cb.enc == nil {
		return
	}
	cb.Reset()
	cb.enc.Destroy()
	cb.enc = nil
}

// Destroy destroys the command buffer.
func (cb *cmdBuffer) Destroy() {
	if cb == nil || cb.pool == nil {
		return
	}
	cb.destroy()
	for i, x := range cb.pool.cbs {
		if x == cb {
			cb.pool.cbs = append(cb.pool.cbs[:i], cb.pool.cbs[i+1:]...)
			break
		}
	}
	cb.pool = nil
}
