// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// queueFamilyIgnored is VK_QUEUE_FAMILY_IGNORED.
const queueFamilyIgnored = ^uint32(0)

// Descriptor pool capacity.
// Further pools are created on demand.
const descPoolSets = 64

// cmdPool implements driver.CmdPool.
type cmdPool struct {
	g    *GPU
	fam  driver.QueueFamily
	lvl  driver.CmdLevel
	pool vk.CommandPool
	cbs  []*cmdBuffer
}

// NewCmdPool creates a new command pool.
// Graphics and transfer share a single queue.
func (g *GPU) NewCmdPool(fam driver.QueueFamily, lvl driver.CmdLevel) (driver.CmdPool, error) {
	if lvl != driver.CPrimary {
		return nil, driver.NewError(driver.ErrCmdAlloc, "vkCreateCommandPool", "", "secondary command buffers not supported")
	}
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(g.caps.Families.Graphics),
	}
	var pool vk.CommandPool
	if err := checkResult(vk.CreateCommandPool(g.dev, &info, nil, &pool), "vkCreateCommandPool", ""); err != nil {
		return nil, driver.NewError(driver.ErrCmdAlloc, "vkCreateCommandPool", "", err.Error())
	}
	return &cmdPool{g: g, fam: fam, lvl: lvl, pool: pool}, nil
}

// NewCmdBuffer allocates a new command buffer.
func (p *cmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(p.g.dev, &info, cbs); res != vk.Success {
		return nil, driver.NewError(driver.ErrCmdAlloc, "vkAllocateCommandBuffers", "", resultString(res))
	}
	cb := &cmdBuffer{g: p.g, pool: p, cb: cbs[0]}
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
	if p == nil || p.g == nil {
		return
	}
	for _, cb := range p.cbs {
		cb.release(true)
	}
	vk.DestroyCommandPool(p.g.dev, p.pool, nil)
	*p = cmdPool{}
}

type constBinding struct {
	buf       *buffer
	off, size int64
}

// cmdBuffer implements driver.CmdBuffer.
// Descriptor sets are allocated from the command
// buffer's own pools when a draw is recorded with
// a dirty binding set. Framebuffers live until the
// command buffer is reset.
type cmdBuffer struct {
	g    *GPU
	pool *cmdPool
	cb   vk.CommandBuffer

	recording bool
	inPass    bool
	pl        *pipeline
	err       error

	consts [driver.MaxConstBuf]constBinding
	texs   [driver.MaxTexture]*imageView
	splrs  [driver.MaxSampler]*sampler
	dirty  bool

	dpools []vk.DescriptorPool
	dcur   int
	fbs    []vk.Framebuffer
}

func (cb *cmdBuffer) fail(err error) {
	if cb.err == nil {
		cb.err = err
	}
}

// release drops per-recording state.
// If all is set, descriptor pools are destroyed
// rather than reset.
func (cb *cmdBuffer) release(all bool) {
	dev := cb.g.dev
	for _, fb := range cb.fbs {
		vk.DestroyFramebuffer(dev, fb, nil)
	}
	cb.fbs = cb.fbs[:0]
	for _, dp := range cb.dpools {
		if all {
			vk.DestroyDescriptorPool(dev, dp, nil)
		} else {
			vk.ResetDescriptorPool(dev, dp, 0)
		}
	}
	if all {
		cb.dpools = nil
	}
	cb.dcur = 0
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
		return driver.NewError(driver.ErrResource, "vkBeginCommandBuffer", "", "already recording")
	}
	cb.release(false)
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := checkResult(vk.BeginCommandBuffer(cb.cb, &info), "vkBeginCommandBuffer", ""); err != nil {
		return err
	}
	cb.recording = true
	return nil
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(pass *driver.PassDesc) {
	if cb.inPass {
		panic("vk: nested render pass")
	}
	if len(pass.Color) > maxColorTargets {
		cb.fail(driver.NewError(driver.ErrResource, "vkCmdBeginRenderPass", "", fmt.Sprintf("too many color targets %d", len(pass.Color))))
		return
	}
	rp, err := cb.g.renderPassFor(keyOf(pass))
	if err != nil {
		cb.fail(err)
		return
	}
	fb, ext, err := cb.g.newFramebuffer(rp, pass)
	if err != nil {
		cb.fail(err)
		return
	}
	cb.fbs = append(cb.fbs, fb)
	clears := make([]vk.ClearValue, 0, len(pass.Color)+1)
	for _, c := range pass.Color {
		clears = append(clears, vk.NewClearValue(c.Clear[:]))
	}
	if pass.DS != nil {
		clears = append(clears, vk.NewClearDepthStencil(pass.DS.Clear, 0))
	}
	vk.CmdBeginRenderPass(cb.cb, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: ext,
		},
		ClearValueCount: uint32(len(clears)),
		PClearValues:    clears,
	}, vk.SubpassContentsInline)
	cb.inPass = true
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	if !cb.inPass {
		return
	}
	vk.CmdEndRenderPass(cb.cb)
	cb.inPass = false
	cb.pl = nil
	cb.dirty = true
}

// SetPipeline sets the graphics pipeline.
func (cb *cmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*pipeline)
	vk.CmdBindPipeline(cb.cb, vk.PipelineBindPointGraphics, p.pl)
	if cb.pl == nil || cb.pl.layout != p.layout {
		cb.dirty = true
	}
	cb.pl = p
}

// SetViewport sets the viewport.
func (cb *cmdBuffer) SetViewport(vp driver.Viewport) {
	vk.CmdSetViewport(cb.cb, 0, 1, []vk.Viewport{{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.Znear,
		MaxDepth: vp.Zfar,
	}})
}

// SetScissor sets the scissor rectangle.
func (cb *cmdBuffer) SetScissor(sciss driver.Scissor) {
	vk.CmdSetScissor(cb.cb, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(sciss.X), Y: int32(sciss.Y)},
		Extent: vk.Extent2D{Width: uint32(sciss.Width), Height: uint32(sciss.Height)},
	}})
}

// SetVertexBuf sets the vertex buffer.
func (cb *cmdBuffer) SetVertexBuf(buf driver.Buffer, off int64) {
	vk.CmdBindVertexBuffers(cb.cb, 0, 1, []vk.Buffer{buf.(*buffer).buf}, []vk.DeviceSize{vk.DeviceSize(off)})
}

// SetIndexBuf sets the index buffer.
func (cb *cmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	vk.CmdBindIndexBuffer(cb.cb, buf.(*buffer).buf, vk.DeviceSize(off), convIndexFmt(format))
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

// newDescPool creates a descriptor pool large enough for
// descPoolSets sets of the largest layout.
func (cb *cmdBuffer) newDescPool() error {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: descPoolSets * driver.MaxConstBuf},
		{Type: vk.DescriptorTypeSampledImage, DescriptorCount: descPoolSets * driver.MaxTexture},
		{Type: vk.DescriptorTypeSampler, DescriptorCount: descPoolSets * driver.MaxSampler},
	}
	var dp vk.DescriptorPool
	if err := checkResult(vk.CreateDescriptorPool(cb.g.dev, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       descPoolSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &dp), "vkCreateDescriptorPool", ""); err != nil {
		return err
	}
	cb.dpools = append(cb.dpools, dp)
	return nil
}

// allocSet allocates a descriptor set for l.
// When the current pool is exhausted, the next one is
// used, and a new one is created if needed.
func (cb *cmdBuffer) allocSet(l *descLayout) (vk.DescriptorSet, error) {
	for {
		fresh := false
		if cb.dcur == len(cb.dpools) {
			if err := cb.newDescPool(); err != nil {
				return nil, err
			}
			fresh = true
		}
		var set vk.DescriptorSet
		res := vk.AllocateDescriptorSets(cb.g.dev, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     cb.dpools[cb.dcur],
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{l.set},
		}, &set)
		switch {
		case res == vk.Success:
			return set, nil
		case fresh, res == vk.ErrorOutOfHostMemory, res == vk.ErrorOutOfDeviceMemory:
			return nil, checkResult(res, "vkAllocateDescriptorSets", "")
		}
		// Fragmented or out of pool memory.
		cb.dcur++
	}
}

// flush allocates, writes and binds the descriptor set
// that the current pipeline's layout requires.
func (cb *cmdBuffer) flush() bool {
	if cb.pl == nil {
		cb.fail(driver.NewError(driver.ErrResource, "vkCmdDraw", "", "no pipeline set"))
		return false
	}
	if !cb.dirty {
		return true
	}
	l := cb.pl.layout
	if l.empty() {
		cb.dirty = false
		return true
	}
	writes := make([]vk.WriteDescriptorSet, 0, l.desc.Const+l.desc.Tex+l.desc.Splr)
	for i := range l.desc.Const {
		c := cb.consts[i]
		if c.buf == nil {
			cb.fail(driver.NewError(driver.ErrResource, "vkCmdDraw", "", fmt.Sprintf("constant slot %d not set", i)))
			return false
		}
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      uint32(driver.ConstBinding(i)),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: c.buf.buf,
				Offset: vk.DeviceSize(c.off),
				Range:  vk.DeviceSize(c.size),
			}},
		})
	}
	for i := range l.desc.Tex {
		v := cb.texs[i]
		if v == nil || v.view == nil {
			cb.fail(driver.NewError(driver.ErrResource, "vkCmdDraw", "", fmt.Sprintf("texture slot %d not set", i)))
			return false
		}
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      uint32(driver.TexBinding(i)),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeSampledImage,
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageView:   v.view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}},
		})
	}
	for i := range l.desc.Splr {
		s := cb.splrs[i]
		if s == nil {
			cb.fail(driver.NewError(driver.ErrResource, "vkCmdDraw", "", fmt.Sprintf("sampler slot %d not set", i)))
			return false
		}
		writes = append(writes, vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstBinding:      uint32(driver.SplrBinding(i)),
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeSampler,
			PImageInfo:      []vk.DescriptorImageInfo{{Sampler: s.splr}},
		})
	}
	set, err := cb.allocSet(l)
	if err != nil {
		cb.fail(err)
		return false
	}
	for i := range writes {
		writes[i].DstSet = set
	}
	vk.UpdateDescriptorSets(cb.g.dev, uint32(len(writes)), writes, 0, nil)
	vk.CmdBindDescriptorSets(cb.cb, vk.PipelineBindPointGraphics, l.pl, 0, 1, []vk.DescriptorSet{set}, 0, nil)
	cb.dirty = false
	return true
}

// Draw draws primitives.
func (cb *cmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	if cb.flush() {
		vk.CmdDraw(cb.cb, uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
	}
}

// DrawIndexed draws indexed primitives.
func (cb *cmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	if cb.flush() {
		vk.CmdDrawIndexed(cb.cb, uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
	}
}

// CopyBufToImg copies data from a buffer to an image.
// The image must be in the LCopyDst layout.
func (cb *cmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	img := param.Img.(*image)
	vk.CmdCopyBufferToImage(cb.cb, param.Buf.(*buffer).buf, img.img, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		BufferOffset:      vk.DeviceSize(param.BufOff),
		BufferRowLength:   uint32(param.Stride),
		BufferImageHeight: uint32(param.Height),
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspectOf(img.param.Format),
			MipLevel:   uint32(param.Level),
			LayerCount: 1,
		},
		ImageOffset: vk.Offset3D{},
		ImageExtent: vk.Extent3D{
			Width:  uint32(param.Width),
			Height: uint32(param.Height),
			Depth:  1,
		},
	}})
}

// Transition inserts image layout transitions.
// Every mip level of the images is transitioned.
func (cb *cmdBuffer) Transition(t []driver.Transition) {
	if len(t) == 0 {
		return
	}
	var src, dst vk.PipelineStageFlagBits
	bars := make([]vk.ImageMemoryBarrier, len(t))
	for i, x := range t {
		img := x.Img.(*image)
		before := convLayout(x.LayoutBefore)
		after := convLayout(x.LayoutAfter)
		src |= before.stage
		dst |= after.stage
		bars[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(before.access),
			DstAccessMask:       vk.AccessFlags(after.access),
			OldLayout:           before.layout,
			NewLayout:           after.layout,
			SrcQueueFamilyIndex: queueFamilyIgnored,
			DstQueueFamilyIndex: queueFamilyIgnored,
			Image:               img.img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: fullAspectOf(img.param.Format),
				LevelCount: uint32(img.param.Levels),
				LayerCount: 1,
			},
		}
	}
	vk.CmdPipelineBarrier(cb.cb, vk.PipelineStageFlags(src), vk.PipelineStageFlags(dst), 0, 0, nil, 0, nil, uint32(len(bars)), bars)
}

// End ends command recording.
func (cb *cmdBuffer) End() error {
	if !cb.recording {
		return errNotRecording
	}
	if cb.inPass {
		vk.CmdEndRenderPass(cb.cb)
		cb.inPass = false
		cb.fail(driver.NewError(driver.ErrResource, "vkEndCommandBuffer", "", "render pass not ended"))
	}
	res := vk.EndCommandBuffer(cb.cb)
	cb.recording = false
	err := cb.err
	if err == nil {
		err = checkResult(res, "vkEndCommandBuffer", "")
	}
	if err != nil {
		cb.Reset()
		return err
	}
	return nil
}

// Reset discards recorded commands.
func (cb *cmdBuffer) Reset() error {
	if cb.inPass {
		vk.CmdEndRenderPass(cb.cb)
		cb.inPass = false
	}
	if cb.recording {
		vk.EndCommandBuffer(cb.cb)
		cb.recording = false
	}
	cb.release(false)
	return checkResult(vk.ResetCommandBuffer(cb.cb, 0), "vkResetCommandBuffer", "")
}

// Destroy destroys the command buffer.
func (cb *cmdBuffer) Destroy() {
	if cb == nil || cb.pool == nil {
		return
	}
	p := cb.pool
	cb.release(true)
	vk.FreeCommandBuffers(cb.g.dev, p.pool, 1, []vk.CommandBuffer{cb.cb})
	for i, x := range p.cbs {
		if x == cb {
			p.cbs = append(p.cbs[:i], p.cbs[i+1:]...)
			break
		}
	}
	cb.pool = nil
}
