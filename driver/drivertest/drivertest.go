// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package drivertest provides an in-memory driver.GPU for
// use in tests.
//
// The GPU executes nothing. It records every command,
// counts every call and lets tests inject failures, so
// that code built on top of package driver can be tested
// on machines without a graphics device.
// Submissions complete synchronously: fences passed to
// Submit are signaled before it returns, unless the GPU
// is told to hold them.
package drivertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gviegas/rend3/driver"
)

// Driver is a driver.Driver that opens a *GPU.
type Driver struct {
	name string
	mu   sync.Mutex
	gpu  *GPU
	// OpenErr, if not nil, is returned by Open.
	OpenErr error
	// Format is the shader format reported by the
	// GPU's Caps.
	Format driver.ShaderFormat
}

// NewDriver creates a new Driver.
// It is not registered.
func NewDriver(name string) *Driver { return &Driver{name: name, Format: driver.WGSL} }

// Open implements driver.Driver.
func (d *Driver) Open(cfg *driver.Config) (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.gpu != nil {
		return d.gpu.gpu(), nil
	}
	if cfg == nil {
		cfg = &driver.Config{}
	}
	d.gpu = newGPU(d, cfg)
	return d.gpu.gpu(), nil
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return d.name }

// Close implements driver.Driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu != nil {
		d.gpu.closed = true
		d.gpu = nil
	}
}

// GPU returns the currently open *GPU, or nil.
func (d *Driver) GPU() *GPU {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gpu
}

// GPU is an in-memory driver.GPU.
type GPU struct {
	drv    *Driver
	cfg    driver.Config
	caps   driver.Caps
	closed bool

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	lost  bool
	hold  bool
	delay time.Duration
	live  int
	subs  [][]string
	held  []*Fence
}

// presentGPU adds driver.Presenter to GPU.
type presentGPU struct{ *GPU }

func newGPU(d *Driver, cfg *driver.Config) *GPU {
	g := &GPU{
		drv: d,
		cfg: *cfg,
		caps: driver.Caps{
			Backend:       "test",
			Adapter:       "In-memory adapter",
			MaxAnisotropy: 16,
			ReverseDepth:  true,
			Validation:    cfg.Validation,
			NonSolidFill:  true,
			ShaderFormat:  d.Format,
			Families:      driver.QueueFamilies{Graphics: 0, Present: -1, Transfer: 0},
		},
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
	if cfg.Window != nil {
		g.caps.Families.Present = 0
	}
	return g
}

func (g *GPU) gpu() driver.GPU {
	if g.cfg.Window != nil {
		return presentGPU{g}
	}
	return g
}

// call counts op and returns the injected error, if any.
func (g *GPU) call(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	if g.lost {
		return driver.NewError(driver.ErrDeviceLost, op, "", "DEVICE_LOST")
	}
	if err, ok := g.fail[op]; ok {
		delete(g.fail, op)
		return err
	}
	return nil
}

func (g *GPU) track(n int) {
	g.mu.Lock()
	g.live += n
	g.mu.Unlock()
}

// Calls returns how many times op was called.
// op is the name of the driver.GPU method (e.g.,
// "NewPipeline"), or "Present"/"Next" for swapchains.
func (g *GPU) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Fail causes the next call to op to fail with err.
func (g *GPU) Fail(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail[op] = err
}

// SetLost sets whether the device is lost.
// Every call fails with driver.ErrDeviceLost while it is.
func (g *GPU) SetLost(lost bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lost = lost
}

// HoldFences sets whether Submit leaves fences unsignaled.
// Held fences are signaled by ReleaseFences.
func (g *GPU) HoldFences(hold bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hold = hold
}

// ReleaseFences signals every fence held by Submit.
func (g *GPU) ReleaseFences() {
	g.mu.Lock()
	held := g.held
	g.held = nil
	g.mu.Unlock()
	for _, f := range held {
		f.Release()
	}
}

// SetPipelineDelay makes NewPipeline sleep for d.
func (g *GPU) SetPipelineDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

// Live returns the number of objects created and not yet
// destroyed.
func (g *GPU) Live() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live
}

// Submissions returns the commands of every submitted
// command buffer, in submission order.
func (g *GPU) Submissions() [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([][]string(nil), g.subs...)
}

// Config returns the configuration given to Open.
func (g *GPU) Config() driver.Config { return g.cfg }

// Driver implements driver.GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Caps implements driver.GPU.
func (g *GPU) Caps() driver.Caps { return g.caps }

// Limits implements driver.GPU.
func (g *GPU) Limits() driver.Limits {
	return driver.Limits{
		MaxImage2D:      16384,
		MaxColorTargets: 8,
		MaxConstRange:   65536,
		MaxVertexIn:     16,
	}
}

// Submit implements driver.GPU.
func (g *GPU) Submit(sub *driver.Submission) error {
	if err := g.call("Submit"); err != nil {
		return err
	}
	g.mu.Lock()
	for _, c := range sub.Cmd {
		cb := c.(*CmdBuffer)
		if cb.state != cbExecutable {
			g.mu.Unlock()
			return errors.New("drivertest: submitting command buffer that is not executable")
		}
		g.subs = append(g.subs, append([]string(nil), cb.cmds...))
	}
	hold := g.hold
	g.mu.Unlock()
	if sub.Fence != nil {
		f := sub.Fence.(*Fence)
		if hold {
			f.mu.Lock()
			f.pending = true
			f.mu.Unlock()
			g.mu.Lock()
			g.held = append(g.held, f)
			g.mu.Unlock()
		} else {
			f.signal()
		}
	}
	return nil
}

// WaitIdle implements driver.GPU.
func (g *GPU) WaitIdle() error { return g.call("WaitIdle") }

// NewCmdPool implements driver.GPU.
func (g *GPU) NewCmdPool(family driver.QueueFamily, level driver.CmdLevel) (driver.CmdPool, error) {
	if err := g.call("NewCmdPool"); err != nil {
		return nil, err
	}
	g.track(1)
	return &CmdPool{g: g, family: family, level: level, Max: -1}, nil
}

// NewFence implements driver.GPU.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	if err := g.call("NewFence"); err != nil {
		return nil, err
	}
	g.track(1)
	f := &Fence{g: g, ch: make(chan struct{})}
	if signaled {
		close(f.ch)
	}
	return f, nil
}

// NewSemaphore implements driver.GPU.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	if err := g.call("NewSemaphore"); err != nil {
		return nil, err
	}
	g.track(1)
	return &destroyer{g: g}, nil
}

// NewBuffer implements driver.GPU.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if err := g.call("NewBuffer"); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, driver.NewError(driver.ErrResource, "NewBuffer", "", fmt.Sprintf("invalid size %d", size))
	}
	g.track(1)
	return &Buffer{g: g, data: make([]byte, size), visible: visible, Usage: usg}, nil
}

// NewImage implements driver.GPU.
func (g *GPU) NewImage(param *driver.ImageParam) (driver.Image, error) {
	if err := g.call("NewImage"); err != nil {
		return nil, err
	}
	if param.Width <= 0 || param.Height <= 0 || param.Levels <= 0 || param.Format == driver.FNone {
		return nil, driver.NewError(driver.ErrResource, "NewImage", "", fmt.Sprintf("invalid parameters %+v", *param))
	}
	g.track(1)
	return &Image{g: g, Param: *param}, nil
}

// NewSampler implements driver.GPU.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	if err := g.call("NewSampler"); err != nil {
		return nil, err
	}
	mode, cmp := driver.ResolveFilter(spln.Min, spln.Mag, spln.Mipmap, spln.MaxAniso > 1, spln.Compare)
	g.track(1)
	return &Sampler{destroyer: destroyer{g: g}, Sampling: *spln, Mode: mode, Compare: cmp}, nil
}

// NewShaderCode implements driver.GPU.
func (g *GPU) NewShaderCode(stage driver.Stage, data []byte) (driver.ShaderCode, error) {
	if err := g.call("NewShaderCode"); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, driver.NewError(driver.ErrResource, "NewShaderCode", "", "empty code")
	}
	g.track(1)
	return &ShaderCode{destroyer: destroyer{g: g}, Stage: stage, Data: append([]byte(nil), data...)}, nil
}

// NewPipeline implements driver.GPU.
func (g *GPU) NewPipeline(state *driver.GraphState) (driver.Pipeline, error) {
	g.mu.Lock()
	d := g.delay
	g.mu.Unlock()
	if d > 0 {
		time.Sleep(d)
	}
	if err := g.call("NewPipeline"); err != nil {
		return nil, err
	}
	if state.VertFunc.Code == nil {
		return nil, driver.NewError(driver.ErrResource, "NewPipeline", "", "missing vertex function")
	}
	g.track(1)
	return &Pipeline{destroyer: destroyer{g: g}, State: *state}, nil
}

// destroyer tracks a live object.
type destroyer struct {
	g    *GPU
	once sync.Once
}

func (d *destroyer) Destroy() {
	if d == nil || d.g == nil {
		return
	}
	d.once.Do(func() { d.g.track(-1) })
}

// Fence is an in-memory driver.Fence.
type Fence struct {
	g       *GPU
	mu      sync.Mutex
	ch      chan struct{}
	pending bool
	once    sync.Once
}

func (f *Fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = false
	select {
	case <-f.ch:
	default:
		close(f.ch)
	}
}

// Release signals the fence if a submission left it
// pending.
func (f *Fence) Release() {
	f.mu.Lock()
	p := f.pending
	f.mu.Unlock()
	if p {
		f.signal()
	}
}

// Wait implements driver.Fence.
func (f *Fence) Wait(timeout time.Duration) (bool, error) {
	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	select {
	case <-ch:
		return true, nil
	default:
	}
	if timeout <= 0 {
		return false, nil
	}
	if timeout == driver.Forever {
		<-ch
		return true, nil
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ch:
		return true, nil
	case <-t.C:
		return false, nil
	}
}

// Reset implements driver.Fence.
func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.ch:
		f.ch = make(chan struct{})
		return nil
	default:
		return errors.New("drivertest: resetting unsignaled fence")
	}
}

// Destroy implements driver.Destroyer.
func (f *Fence) Destroy() { f.once.Do(func() { f.g.track(-1) }) }

// CmdPool is an in-memory driver.CmdPool.
type CmdPool struct {
	g      *GPU
	family driver.QueueFamily
	level  driver.CmdLevel
	bufs   []*CmdBuffer
	once   sync.Once
	// Max is the maximum number of command buffers
	// that can be allocated. Negative means no limit.
	Max int
}

// NewCmdBuffer implements driver.CmdPool.
func (p *CmdPool) NewCmdBuffer() (driver.CmdBuffer, error) {
	if err := p.g.call("NewCmdBuffer"); err != nil {
		return nil, err
	}
	if p.Max >= 0 && len(p.bufs) >= p.Max {
		return nil, driver.NewError(driver.ErrCmdAlloc, "NewCmdBuffer", "", "pool exhausted")
	}
	cb := &CmdBuffer{pool: p}
	p.bufs = append(p.bufs, cb)
	return cb, nil
}

// Reset implements driver.CmdPool.
func (p *CmdPool) Reset() error {
	for _, cb := range p.bufs {
		cb.Reset()
	}
	return nil
}

// Family implements driver.CmdPool.
func (p *CmdPool) Family() driver.QueueFamily { return p.family }

// Level implements driver.CmdPool.
func (p *CmdPool) Level() driver.CmdLevel { return p.level }

// Destroy implements driver.Destroyer.
func (p *CmdPool) Destroy() { p.once.Do(func() { p.g.track(-1) }) }

const (
	cbInitial = iota
	cbRecording
	cbExecutable
)

// CmdBuffer is an in-memory driver.CmdBuffer.
// It records a textual description of every command.
type CmdBuffer struct {
	pool   *CmdPool
	state  int
	inPass bool
	cmds   []string
}

func (cb *CmdBuffer) rec(format string, args ...any) {
	if cb.state != cbRecording {
		panic("drivertest: command buffer is not recording")
	}
	cb.cmds = append(cb.cmds, fmt.Sprintf(format, args...))
}

func (cb *CmdBuffer) needPass(cmd string, in bool) {
	if cb.inPass != in {
		panic("drivertest: " + cmd + ": invalid render pass state")
	}
}

// Commands returns the recorded commands.
func (cb *CmdBuffer) Commands() []string { return cb.cmds }

// Begin implements driver.CmdBuffer.
func (cb *CmdBuffer) Begin() error {
	if err := cb.pool.g.call("Begin"); err != nil {
		return err
	}
	cb.state = cbRecording
	cb.inPass = false
	cb.cmds = cb.cmds[:0]
	return nil
}

// BeginPass implements driver.CmdBuffer.
func (cb *CmdBuffer) BeginPass(pass *driver.PassDesc) {
	cb.needPass("BeginPass", false)
	cb.inPass = true
	cb.rec("BeginPass color=%d ds=%t", len(pass.Color), pass.DS != nil)
}

// EndPass implements driver.CmdBuffer.
func (cb *CmdBuffer) EndPass() {
	cb.needPass("EndPass", true)
	cb.inPass = false
	cb.rec("EndPass")
}

// SetPipeline implements driver.CmdBuffer.
func (cb *CmdBuffer) SetPipeline(pl driver.Pipeline) { cb.rec("SetPipeline") }

// SetViewport implements driver.CmdBuffer.
func (cb *CmdBuffer) SetViewport(vp driver.Viewport) {
	cb.rec("SetViewport %gx%g", vp.Width, vp.Height)
}

// SetScissor implements driver.CmdBuffer.
func (cb *CmdBuffer) SetScissor(sciss driver.Scissor) {
	cb.rec("SetScissor %dx%d", sciss.Width, sciss.Height)
}

// SetVertexBuf implements driver.CmdBuffer.
func (cb *CmdBuffer) SetVertexBuf(buf driver.Buffer, off int64) {
	cb.rec("SetVertexBuf %d", off)
}

// SetIndexBuf implements driver.CmdBuffer.
func (cb *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	cb.rec("SetIndexBuf %d %d", format, off)
}

// SetConstBuf implements driver.CmdBuffer.
func (cb *CmdBuffer) SetConstBuf(slot int, buf driver.Buffer, off, size int64) {
	cb.rec("SetConstBuf %d", slot)
}

// SetTexture implements driver.CmdBuffer.
func (cb *CmdBuffer) SetTexture(slot int, iv driver.ImageView) { cb.rec("SetTexture %d", slot) }

// SetSampler implements driver.CmdBuffer.
func (cb *CmdBuffer) SetSampler(slot int, splr driver.Sampler) { cb.rec("SetSampler %d", slot) }

// Draw implements driver.CmdBuffer.
func (cb *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	cb.needPass("Draw", true)
	cb.rec("Draw %d %d", vertCount, instCount)
}

// DrawIndexed implements driver.CmdBuffer.
func (cb *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	cb.needPass("DrawIndexed", true)
	cb.rec("DrawIndexed %d %d", idxCount, instCount)
}

// CopyBufToImg implements driver.CmdBuffer.
func (cb *CmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	cb.needPass("CopyBufToImg", false)
	cb.rec("CopyBufToImg %dx%d", param.Width, param.Height)
}

// Transition implements driver.CmdBuffer.
func (cb *CmdBuffer) Transition(t []driver.Transition) {
	cb.needPass("Transition", false)
	cb.rec("Transition %d", len(t))
}

// End implements driver.CmdBuffer.
func (cb *CmdBuffer) End() error {
	if err := cb.pool.g.call("End"); err != nil {
		cb.Reset()
		return err
	}
	if cb.state != cbRecording || cb.inPass {
		cb.Reset()
		return errors.New("drivertest: End: invalid command buffer state")
	}
	cb.state = cbExecutable
	return nil
}

// Reset implements driver.CmdBuffer.
func (cb *CmdBuffer) Reset() error {
	cb.state = cbInitial
	cb.inPass = false
	cb.cmds = cb.cmds[:0]
	return nil
}

// Destroy implements driver.Destroyer.
func (cb *CmdBuffer) Destroy() {}

// Buffer is an in-memory driver.Buffer.
type Buffer struct {
	g       *GPU
	data    []byte
	visible bool
	mapped  bool
	once    sync.Once
	Usage   driver.Usage
}

// Visible implements driver.Buffer.
func (b *Buffer) Visible() bool { return b.visible }

// Cap implements driver.Buffer.
func (b *Buffer) Cap() int64 { return int64(len(b.data)) }

// Map implements driver.Buffer.
func (b *Buffer) Map() ([]byte, error) {
	if err := b.g.call("Map"); err != nil {
		return nil, err
	}
	if !b.visible {
		return nil, driver.NewError(driver.ErrMapMisuse, "Map", "", "buffer not host visible")
	}
	if b.mapped {
		return nil, driver.NewError(driver.ErrMapMisuse, "Map", "", "already mapped")
	}
	b.mapped = true
	return b.data, nil
}

// Unmap implements driver.Buffer.
func (b *Buffer) Unmap() error {
	if err := b.g.call("Unmap"); err != nil {
		return err
	}
	if !b.mapped {
		return driver.NewError(driver.ErrMapMisuse, "Unmap", "", "not mapped")
	}
	b.mapped = false
	return nil
}

// Bytes returns the buffer's contents.
func (b *Buffer) Bytes() []byte { return b.data }

// Destroy implements driver.Destroyer.
func (b *Buffer) Destroy() { b.once.Do(func() { b.g.track(-1) }) }

// Image is an in-memory driver.Image.
type Image struct {
	g     *GPU
	once  sync.Once
	Param driver.ImageParam
}

// NewView implements driver.Image.
func (im *Image) NewView(level, levels int) (driver.ImageView, error) {
	if err := im.g.call("NewView"); err != nil {
		return nil, err
	}
	if level < 0 || levels <= 0 || level+levels > im.Param.Levels {
		return nil, driver.NewError(driver.ErrResource, "NewView", "", "invalid level range")
	}
	im.g.track(1)
	return &ImageView{destroyer: destroyer{g: im.g}, img: im, Level: level, Levels: levels}, nil
}

// Destroy implements driver.Destroyer.
func (im *Image) Destroy() { im.once.Do(func() { im.g.track(-1) }) }

// ImageView is an in-memory driver.ImageView.
type ImageView struct {
	destroyer
	img    *Image
	Level  int
	Levels int
}

// Image implements driver.ImageView.
func (v *ImageView) Image() driver.Image { return v.img }

// Sampler is an in-memory driver.Sampler.
type Sampler struct {
	destroyer
	Sampling driver.Sampling
	Mode     driver.FilterMode
	Compare  bool
}

// ShaderCode is an in-memory driver.ShaderCode.
type ShaderCode struct {
	destroyer
	Stage driver.Stage
	Data  []byte
}

// Pipeline is an in-memory driver.Pipeline.
type Pipeline struct {
	destroyer
	State driver.GraphState
}
