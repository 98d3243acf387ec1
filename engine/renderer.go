// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gviegas/rend3/driver"
	"gviegas/rend3/engine/internal/layout"
	"gviegas/rend3/linear"
	"gviegas/rend3/rhi"
	"gviegas/rend3/shader"
)

// FrameState is the state of a Renderer's frame.
type FrameState int32

// Frame states.
// A frame goes from Idle to Rendering when Render is
// called, to Presenting once every pass was recorded
// and back to Idle when Render returns.
const (
	Idle FrameState = iota
	Rendering
	Presenting
)

func (s FrameState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Rendering:
		return "rendering"
	case Presenting:
		return "presenting"
	}
	return "invalid"
}

// Stats holds renderer statistics.
type Stats struct {
	// Number of frames submitted.
	Frames uint64
	// Number of passes skipped since creation.
	Skipped uint64
	// Passes executed and skipped in the last frame.
	Passes     []string
	PassesSkip []string
	// Models drawn and culled in the last frame.
	Draws  int
	Culled int
	// CPU time of the last frame.
	FrameTime time.Duration
	// Pipeline cache statistics.
	Cache rhi.CacheStats
}

// frameSlot holds the per-frame objects of one frame in
// flight.
type frameSlot struct {
	pool     *rhi.CmdPool
	cb       driver.CmdBuffer
	fence    *rhi.Fence
	acquired *rhi.Semaphore
	done     *rhi.Semaphore
	tab      *layout.Table
	lines    *rhi.VertexBuffer
	// Number of blocks that the last frame
	// recorded with this slot needed.
	want int
}

// Renderer is a real-time renderer.
// Its methods must be called from a single goroutine,
// with the exception of State, IsRendering and Stats.
type Renderer struct {
	dev      *rhi.Device
	cfg      Config
	log      *slog.Logger
	reverseZ bool

	comp    *shader.Compiler
	cache   *rhi.PipelineCache
	watcher *shader.Watcher
	retire  atomic.Bool
	// Frame number at which retired pipelines can be
	// destroyed.
	collectAt uint64

	res     *resources
	targets *targets
	passes  []PassDesc
	slots   []frameSlot
	sc      *rhi.Swapchain

	frame frame
	rend  renderables

	state   atomic.Int32
	onState func(FrameState)

	n         uint64
	start     time.Time
	prevVP    linear.M4
	hasPrevVP bool
	// Whether the BRDF LUT was rendered.
	lutReady bool
	// Whether the TAA/SSR history targets hold
	// data of the previous frame.
	historyValid    bool
	ssrHistoryValid bool
	// View of the last frame, used for picking.
	lastView view
	pick     *pickRay
	// Set on device loss or presentation failure.
	needRecreate bool
	destroyed    bool

	lines   []lineVertex
	overlay *overlay

	stats     Stats
	published atomic.Pointer[Stats]
}

// New creates a new Renderer.
// If dev was opened with a window, the renderer presents
// to it through a swapchain. Otherwise it renders to an
// offscreen back buffer (see BackBuffer).
func New(dev *rhi.Device, cfg *Config) (r *Renderer, err error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	r = &Renderer{
		dev:      dev,
		cfg:      c,
		log:      c.Logger,
		reverseZ: c.ReverseZ && dev.Caps().ReverseDepth,
		start:    time.Now(),
	}
	if r.log == nil {
		r.log = dev.Logger()
	}
	defer func() {
		if err != nil {
			r.Destroy()
			r = nil
		}
	}()

	var fsys fs.FS = shader.FS()
	if c.ShaderDir != "" {
		fsys = os.DirFS(c.ShaderDir)
	}
	r.comp = shader.NewCompiler(fsys, r.log)
	r.cache = rhi.NewPipelineCache(dev, r.comp, c.CompileWorkers)
	if !r.cache.IsValid() {
		return nil, r.cache.Err()
	}
	if c.ShaderDir != "" {
		r.watcher, err = shader.NewWatcher(c.ShaderDir, r.comp, func(path string) {
			if r.cache.Invalidate(path) > 0 {
				r.retire.Store(true)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("engine: shader watcher: %w", err)
		}
	}

	if r.res, err = newResources(dev, r.reverseZ); err != nil {
		return nil, err
	}

	bbw, bbh := c.BackBufferWidth, c.BackBufferHeight
	if dev.Config().Window != nil {
		if r.sc, err = dev.NewSwapchain(c.Frames + 1); err != nil {
			return nil, err
		}
		bbw, bbh = r.sc.Size()
	}
	r.targets = newTargets(dev, r.log, c.ShadowMapSize, r.sc == nil)
	w, h := r.resolution(bbw, bbh)
	if err = r.targets.resize(w, h, bbw, bbh); err != nil {
		return nil, err
	}

	r.slots = make([]frameSlot, c.Frames)
	for i := range r.slots {
		if err = r.newSlot(&r.slots[i]); err != nil {
			return nil, err
		}
	}
	if r.overlay, err = newOverlay(dev); err != nil {
		return nil, err
	}
	r.passes = defaultPasses()
	r.stats.Cache = r.cache.Stats()
	r.publishStats()
	r.log.Info("engine: renderer created",
		"backend", dev.Backend(),
		"width", w,
		"height", h,
		"frames", c.Frames,
		"headless", r.sc == nil,
		"reverse_z", r.reverseZ,
		"flags", c.Flags.String())
	return r, nil
}

func (r *Renderer) newSlot(s *frameSlot) error {
	var err error
	if s.pool, err = r.dev.NewCmdPool(driver.QGraphics, driver.CPrimary); err != nil {
		return err
	}
	if s.cb, err = s.pool.NewCmdBuffer(); err != nil {
		return err
	}
	s.fence = rhi.NewFence(r.dev, true)
	s.acquired = rhi.NewSemaphore(r.dev)
	s.done = rhi.NewSemaphore(r.dev)
	s.tab = layout.NewTable(r.dev, r.cfg.MaxDraw)
	s.lines = rhi.NewVertexBuffer(r.dev, make([]byte, lineStride*2*64), lineStride).SetName("lines")
	for _, x := range []interface {
		IsValid() bool
		Err() error
	}{s.fence, s.acquired, s.done, s.lines} {
		if !x.IsValid() {
			return x.Err()
		}
	}
	if !s.tab.IsValid() {
		return errors.New("engine: cannot create constant table")
	}
	return nil
}

func (s *frameSlot) destroy() {
	if s.pool != nil {
		s.pool.Destroy()
	}
	if s.fence != nil {
		s.fence.Destroy()
	}
	if s.acquired != nil {
		s.acquired.Destroy()
	}
	if s.done != nil {
		s.done.Destroy()
	}
	if s.tab != nil {
		s.tab.Destroy()
	}
	if s.lines != nil {
		s.lines.Destroy()
	}
}

// resolution returns the render resolution for a back
// buffer of the given size.
func (r *Renderer) resolution(bbWidth, bbHeight int) (width, height int) {
	if r.cfg.Width > 0 && r.cfg.Height > 0 {
		return r.cfg.Width, r.cfg.Height
	}
	return bbWidth, bbHeight
}

// State returns the frame state.
// It is safe for concurrent use.
func (r *Renderer) State() FrameState { return FrameState(r.state.Load()) }

// IsRendering returns whether a frame is being recorded.
// It is safe for concurrent use.
func (r *Renderer) IsRendering() bool { return r.State() == Rendering }

func (r *Renderer) setState(s FrameState) {
	r.state.Store(int32(s))
	if r.onState != nil {
		r.onState(s)
	}
}

// Flags returns the render modes.
func (r *Renderer) Flags() Flags { return r.cfg.Flags }

// SetFlags sets the render modes.
// It takes effect on the next frame.
func (r *Renderer) SetFlags(f Flags) { r.cfg.Flags = f }

// Settings returns the post-processing parameters.
func (r *Renderer) Settings() Settings { return r.cfg.Settings }

// SetSettings sets the post-processing parameters.
func (r *Renderer) SetSettings(s Settings) { r.cfg.Settings = s }

// Resolution returns the render resolution.
func (r *Renderer) Resolution() (width, height int) { return r.targets.width, r.targets.height }

// BackBufferSize returns the size of the back buffer.
func (r *Renderer) BackBufferSize() (width, height int) {
	return r.targets.bbWidth, r.targets.bbHeight
}

// BackBuffer returns the offscreen back buffer, or nil
// if r presents to a window.
// Its contents are defined once Render returns.
func (r *Renderer) BackBuffer() *rhi.Texture {
	if r.sc != nil {
		return nil
	}
	return r.targets.get(tBackBuffer)
}

// Stats returns renderer statistics.
// It is safe for concurrent use. The returned slices
// are owned by the caller.
func (r *Renderer) Stats() Stats {
	p := r.published.Load()
	if p == nil {
		return Stats{}
	}
	s := *p
	s.Passes = slices.Clone(s.Passes)
	s.PassesSkip = slices.Clone(s.PassesSkip)
	return s
}

func (r *Renderer) publishStats() {
	s := r.stats
	s.Passes = append([]string(nil), s.Passes...)
	s.PassesSkip = append([]string(nil), s.PassesSkip...)
	r.published.Store(&s)
}

// drain waits for every frame in flight.
func (r *Renderer) drain() error {
	var errs []error
	for i := range r.slots {
		if f := r.slots[i].fence; f != nil && f.IsValid() {
			if _, err := f.Wait(driver.Forever); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// rebuild drains the frames in flight and recreates
// every render target and the full-screen quad.
func (r *Renderer) rebuild(width, height, bbWidth, bbHeight int) error {
	if err := r.drain(); err != nil {
		r.checkLost(err)
		return fmt.Errorf("engine: drain: %w", err)
	}
	if err := r.targets.resize(width, height, bbWidth, bbHeight); err != nil {
		return err
	}
	if err := r.res.newQuad(r.dev); err != nil {
		return fmt.Errorf("engine: quad: %w", err)
	}
	r.lutReady = false
	r.historyValid = false
	r.ssrHistoryValid = false
	r.hasPrevVP = false
	return nil
}

// SetResolution sets the render resolution.
// If either dimension is zero, the back buffer size is
// used. Resolutions whose quarter is zero in either
// dimension are rejected with ErrInvalidResolution and
// leave the previous targets in place.
func (r *Renderer) SetResolution(width, height int) error {
	if err := r.idle(); err != nil {
		return err
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidResolution, width, height)
	}
	prevW, prevH := r.cfg.Width, r.cfg.Height
	r.cfg.Width, r.cfg.Height = width, height
	w, h := r.resolution(r.targets.bbWidth, r.targets.bbHeight)
	if err := r.rebuild(w, h, r.targets.bbWidth, r.targets.bbHeight); err != nil {
		r.cfg.Width, r.cfg.Height = prevW, prevH
		return err
	}
	return nil
}

// SetBackBufferSize sets the size of the back buffer.
// Renderers that present to a window recreate their
// swapchain and use the size it reports.
func (r *Renderer) SetBackBufferSize(width, height int) error {
	if err := r.idle(); err != nil {
		return err
	}
	if r.sc != nil {
		if err := r.drain(); err != nil {
			r.checkLost(err)
			return fmt.Errorf("engine: drain: %w", err)
		}
		if err := r.sc.Recreate(); err != nil {
			r.checkLost(err)
			return fmt.Errorf("engine: swapchain: %w", err)
		}
		width, height = r.sc.Size()
	}
	w, h := r.resolution(width, height)
	return r.rebuild(w, h, width, height)
}

// idle returns an error if a frame is in progress or r
// was destroyed.
func (r *Renderer) idle() error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.State() != Idle {
		return ErrRendering
	}
	return nil
}

// checkLost schedules recreation if err indicates
// device loss.
func (r *Renderer) checkLost(err error) {
	if r.dev.Check(err); r.dev.Lost() {
		r.needRecreate = true
	}
}

// recreate recovers from device loss or presentation
// failure.
func (r *Renderer) recreate() error {
	start := time.Now()
	if r.dev.Lost() {
		if err := r.dev.Recreate(); err != nil {
			return fmt.Errorf("engine: device recreation: %w", err)
		}
	} else if r.sc != nil {
		if err := r.sc.Recreate(); err != nil {
			r.checkLost(err)
			return fmt.Errorf("engine: swapchain: %w", err)
		}
	}
	bbw, bbh := r.targets.bbWidth, r.targets.bbHeight
	if r.sc != nil {
		bbw, bbh = r.sc.Size()
	}
	w, h := r.resolution(bbw, bbh)
	if err := r.rebuild(w, h, bbw, bbh); err != nil {
		return err
	}
	for i := range r.slots {
		// Command buffers do not survive device
		// recreation.
		cb, err := r.slots[i].pool.NewCmdBuffer()
		if err != nil {
			return err
		}
		r.slots[i].cb = cb
	}
	r.needRecreate = false
	r.log.Warn("engine: renderer recreated", "generation", r.dev.Generation(), "elapsed", time.Since(start))
	return nil
}

// WarmUp requests every pipeline that the current flags
// may use and waits for their compilation.
// It returns the first compilation error.
func (r *Renderer) WarmUp(ctx context.Context) error {
	if err := r.idle(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, desc := range r.pipelineSet() {
		p := r.cache.GetOrCreate(desc)
		g.Go(func() error { return p.Wait(ctx) })
	}
	return g.Wait()
}

// pipeline returns the driver pipeline for desc, or an
// error if it is not ready.
func (r *Renderer) pipeline(desc *rhi.PipelineDesc) (driver.Pipeline, error) {
	p := r.cache.GetOrCreate(*desc)
	switch p.State() {
	case rhi.Ready:
		return p.Pipeline(), nil
	case rhi.Pending:
		return nil, fmt.Errorf("%w: %s", errPending, desc.Vert)
	}
	return nil, p.Err()
}

// Render renders a frame of sc.
// Passes whose pipelines are still compiling, or whose
// inputs are missing, are skipped. Device loss and
// presentation failures abandon the frame and cause
// every resource to be recreated on the next call.
func (r *Renderer) Render(sc *Scene) error {
	if r.destroyed {
		return ErrDestroyed
	}
	if sc == nil || sc.Root == nil {
		return errors.New("engine: nil scene")
	}
	if !r.state.CompareAndSwap(int32(Idle), int32(Rendering)) {
		return ErrRendering
	}
	if r.onState != nil {
		r.onState(Rendering)
	}
	defer r.setState(Idle)
	start := time.Now()
	err := r.render(sc)
	r.stats.FrameTime = time.Since(start)
	r.stats.Cache = r.cache.Stats()
	r.publishStats()
	return err
}

func (r *Renderer) render(sc *Scene) error {
	if r.needRecreate {
		if err := r.recreate(); err != nil {
			return err
		}
	}
	if r.retire.Swap(false) {
		r.collectAt = r.n + uint64(len(r.slots))
	}
	if r.collectAt != 0 && r.n >= r.collectAt {
		r.cache.Collect()
		r.collectAt = 0
	}

	slot := &r.slots[r.n%uint64(len(r.slots))]
	if _, err := slot.fence.Wait(driver.Forever); err != nil {
		return r.abandon("Wait", err)
	}
	// The table is no longer in use by the GPU.
	if slot.want > slot.tab.Cap() {
		if !slot.tab.Grow(r.dev, slot.want+slot.want/2) {
			r.log.Warn("engine: cannot grow constant table", "blocks", slot.want)
		}
		slot.want = 0
	}

	idx := -1
	if r.sc != nil {
		var err error
		if idx, err = r.sc.Next(slot.acquired); err != nil {
			if errors.Is(err, driver.ErrSwapchain) {
				r.needRecreate = true
			}
			return r.abandon("Next", err)
		}
	}

	if err := slot.pool.Reset(); err != nil {
		return r.abandon("Reset", err)
	}
	if err := slot.cb.Begin(); err != nil {
		return r.abandon("Begin", err)
	}
	if !slot.tab.Begin() {
		slot.cb.Reset()
		return r.abandon("Map", errors.New("cannot map constants"))
	}

	f := &r.frame
	f.reset(r.n, slot.cb, slot.tab, r.cfg.Flags)
	f.rend = &r.rend
	f.sky = sc.Sky
	f.time = time.Since(r.start)
	f.lineBuf = slot.lines
	r.prepare(f, sc)

	if r.sc != nil {
		view := r.sc.Views()[idx]
		f.out, f.outFmt = view, r.sc.Format()
		f.outW, f.outH = r.sc.Size()
		f.cb.Transition([]driver.Transition{{Img: view.Image(), LayoutBefore: driver.LUndefined, LayoutAfter: driver.LColorTarget}})
	} else {
		bb := r.targets.get(tBackBuffer)
		bb.Transition(f.cb, driver.LColorTarget)
		f.out, f.outFmt = bb.View(), bb.Format()
		f.outW, f.outH = bb.Size()
	}

	r.runPasses(f)
	slot.tab.End()
	if f.need > slot.tab.Cap() {
		slot.want = f.need
		r.log.Info("engine: constant table exhausted", "blocks", f.need, "cap", slot.tab.Cap())
	}
	if r.sc != nil {
		f.cb.Transition([]driver.Transition{{Img: f.out.Image(), LayoutBefore: driver.LColorTarget, LayoutAfter: driver.LPresent}})
	}
	r.rend.endFrame()
	r.prevVP = f.view.vp
	r.hasPrevVP = true
	r.historyValid = f.produced[f.resolve(tTAACurrent)]
	r.ssrHistoryValid = f.produced[f.resolve(tSSRCurrent)]

	r.setState(Presenting)
	if err := slot.cb.End(); err != nil {
		return r.abandon("End", err)
	}
	if err := slot.fence.Reset(); err != nil {
		return r.abandon("Reset", err)
	}
	sub := &rhi.Submission{Cmd: []driver.CmdBuffer{slot.cb}, Fence: slot.fence}
	if r.sc != nil {
		sub.Wait = []*rhi.Semaphore{slot.acquired}
		sub.Signal = []*rhi.Semaphore{slot.done}
	}
	if err := r.dev.Submit(sub); err != nil {
		// Nothing will signal the fence.
		slot.fence.Destroy()
		slot.fence = rhi.NewFence(r.dev, true)
		r.needRecreate = true
		return r.abandon("Submit", err)
	}
	if r.sc != nil {
		if err := r.sc.Present(idx, slot.done); err != nil {
			r.needRecreate = true
			return r.abandon("Present", err)
		}
	}

	r.lines = r.lines[:0]
	r.n++
	r.stats.Frames++
	r.stats.Passes = append(r.stats.Passes[:0], f.ran...)
	r.stats.PassesSkip = append(r.stats.PassesSkip[:0], f.skipped...)
	r.stats.Draws = 0
	for _, s := range [][]drawItem{r.rend.opaque, r.rend.transparent} {
		for i := range s {
			if s[i].blk != 0 {
				r.stats.Draws++
			}
		}
	}
	r.stats.Culled = r.rend.culled
	return nil
}

// abandon logs a frame failure, schedules recreation on
// device loss and returns the error.
func (r *Renderer) abandon(op string, err error) error {
	r.checkLost(err)
	r.log.Error("engine: frame abandoned", "op", op, "frame", r.n, "err", err, "recreate", r.needRecreate)
	return fmt.Errorf("engine: %s: %w", op, err)
}

// Destroy destroys r.
// It waits for every frame in flight.
func (r *Renderer) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	if !r.dev.Lost() {
		r.drain()
	}
	if r.watcher != nil {
		r.watcher.Close()
	}
	for i := range r.slots {
		r.slots[i].destroy()
	}
	if r.overlay != nil {
		r.overlay.destroy()
	}
	if r.targets != nil {
		r.targets.destroy()
	}
	if r.res != nil {
		r.res.destroy()
	}
	if r.sc != nil {
		r.sc.Destroy()
	}
	if r.cache != nil {
		r.cache.Destroy()
	}
}
