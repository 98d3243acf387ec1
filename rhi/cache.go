// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"gviegas/rend3/driver"
	"gviegas/rend3/shader"
)

// ShaderCompiler turns shader sources into code in the
// given format.
type ShaderCompiler interface {
	Compile(src shader.Source, format driver.ShaderFormat) ([]byte, error)
}

// invalidator is implemented by compilers that cache
// their output.
type invalidator interface {
	Invalidate(path string)
}

// CacheStats reports PipelineCache activity.
type CacheStats struct {
	Hits     int64
	Misses   int64
	Compiles int64
	Failures int64
	Entries  int
}

// PipelineCache builds pipelines on background workers and
// memoizes them by descriptor.
// GetOrCreate never blocks on compilation; callers poll
// Pipeline.State and skip work while it is Pending.
type PipelineCache struct {
	base
	comp ShaderCompiler
	sem  *semaphore.Weighted
	sf   singleflight.Group
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.RWMutex
	pipes   map[PipelineDesc]*Pipeline
	retired []*Pipeline
	gen     uint64

	hits, misses, compiles, failures atomic.Int64
}

// NewPipelineCache creates a new pipeline cache.
// At most workers pipelines are compiled at once; if
// workers is not positive, GOMAXPROCS is used.
// It never returns nil.
func NewPipelineCache(dev *Device, comp ShaderCompiler, workers int) *PipelineCache {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	c := &PipelineCache{
		comp:  comp,
		sem:   semaphore.NewWeighted(int64(workers)),
		pipes: make(map[PipelineDesc]*Pipeline),
		gen:   1,
	}
	c.ctx, c.stop = context.WithCancel(context.Background())
	c.init(dev, "pipeline cache", c)
	if c.err == nil && comp == nil {
		c.fail("NewPipelineCache", fmt.Errorf("%w: nil shader compiler", driver.ErrResource))
	}
	return c
}

// GetOrCreate returns the pipeline identified by desc.
// If no such pipeline exists, it is created in the
// Pending state and compiled in the background.
// Concurrent callers with equal descriptors receive the
// same *Pipeline and cause a single compilation.
// It never returns nil.
func (c *PipelineCache) GetOrCreate(desc PipelineDesc) *Pipeline {
	if !c.IsValid() {
		return failedPipeline(&desc, c.refuse("GetOrCreate"))
	}
	c.mu.RLock()
	p, ok := c.pipes[desc]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return p
	}
	// Only the caller that runs the function creates;
	// callers sharing its result count as hits.
	var created bool
	v, _, _ := c.sf.Do(descKey(&desc), func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if p, ok := c.pipes[desc]; ok {
			return p, nil
		}
		created = true
		p := newPipeline(&desc, c.gen)
		c.pipes[desc] = p
		c.wg.Add(1)
		go c.compile(p)
		return p, nil
	})
	if created {
		c.misses.Add(1)
	} else {
		c.hits.Add(1)
	}
	return v.(*Pipeline)
}

// descKey returns a string that identifies desc.
// It does not use Stringer methods, which may map
// distinct values to the same text.
func descKey(desc *PipelineDesc) string { return fmt.Sprintf("%#v", *desc) }

func (c *PipelineCache) compile(p *Pipeline) {
	defer c.wg.Done()
	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		c.finish(p, nil, fmt.Errorf("%w: %w", ErrPipelineCompile, err))
		return
	}
	defer c.sem.Release(1)
	c.compiles.Add(1)
	start := time.Now()
	pl, err := c.build(&p.desc)
	c.finish(p, pl, err)
	if err == nil {
		c.dev.log.Debug("rhi: pipeline compiled", "vert", p.desc.Vert.String(), "frag", p.desc.Frag.String(), "elapsed", time.Since(start))
	}
}

// build compiles the shaders of desc and creates the
// driver pipeline.
func (c *PipelineCache) build(desc *PipelineDesc) (driver.Pipeline, error) {
	g, err := c.dev.gpuFor("NewPipeline")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineCompile, err)
	}
	format := c.dev.Caps().ShaderFormat
	code := func(src shader.Source) (driver.ShaderCode, error) {
		data, err := c.comp.Compile(src, format)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPipelineCompile, src, err)
		}
		sc, err := g.NewShaderCode(src.Stage, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrPipelineCompile, src, c.dev.check(err))
		}
		return sc, nil
	}
	state := driver.GraphState{
		Layout:   desc.Layout,
		Input:    desc.Vertex.In[:desc.Vertex.N],
		Stride:   desc.Vertex.Stride,
		Topology: desc.Topology,
		Raster:   desc.Raster,
		DS:       desc.DS,
		Blend:    desc.Blend,
		ColorFmt: desc.Targets(),
		DSFmt:    desc.DSFmt,
	}
	vcode, err := code(desc.Vert)
	if err != nil {
		return nil, err
	}
	defer vcode.Destroy()
	state.VertFunc = driver.ShaderFunc{Code: vcode, Name: desc.Vert.Entry()}
	if desc.Frag.Path != "" {
		fcode, err := code(desc.Frag)
		if err != nil {
			return nil, err
		}
		defer fcode.Destroy()
		state.FragFunc = driver.ShaderFunc{Code: fcode, Name: desc.Frag.Entry()}
	}
	pl, err := g.NewPipeline(&state)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPipelineCompile, c.dev.check(err))
	}
	return pl, nil
}

// finish publishes the outcome of a compilation.
// Pipelines that were dropped from the cache while
// compiling are retired.
func (c *PipelineCache) finish(p *Pipeline, pl driver.Pipeline, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failures.Add(1)
		c.dev.log.Error("rhi: pipeline compilation failed", "vert", p.desc.Vert.String(), "frag", p.desc.Frag.String(), "err", err)
	}
	p.finish(pl, err)
	if pl != nil && (p.gen != c.gen || c.pipes[p.desc] != p) {
		c.retired = append(c.retired, p)
	}
}

// Invalidate drops every pipeline built from the shader
// source at path, so that the next request for it
// compiles again.
// Ready pipelines are retired rather than destroyed,
// since in-flight frames may still use them.
// It returns the number of pipelines dropped.
func (c *PipelineCache) Invalidate(path string) int {
	if inv, ok := c.comp.(invalidator); ok {
		inv.Invalidate(path)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for desc, p := range c.pipes {
		if !desc.Uses(path) {
			continue
		}
		delete(c.pipes, desc)
		if p.State() == Ready {
			c.retired = append(c.retired, p)
		}
		n++
	}
	if n > 0 && c.dev != nil {
		c.dev.log.Info("rhi: pipelines invalidated", "path", path, "count", n)
	}
	return n
}

// Retired returns the number of retired pipelines.
func (c *PipelineCache) Retired() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.retired)
}

// Collect destroys retired pipelines.
// The caller must ensure that the GPU no longer uses
// them.
func (c *PipelineCache) Collect() {
	c.mu.Lock()
	retired := c.retired
	c.retired = nil
	c.mu.Unlock()
	for _, p := range retired {
		p.pl.Destroy()
	}
}

// Reset waits for in-flight compilations and then
// destroys every pipeline.
// It is meant to be used on device loss.
func (c *PipelineCache) Reset() {
	c.wg.Wait()
	c.mu.Lock()
	pipes := c.pipes
	c.pipes = make(map[PipelineDesc]*Pipeline)
	c.gen++
	c.mu.Unlock()
	for _, p := range pipes {
		if p.State() == Ready {
			p.pl.Destroy()
			p.state.Store(int32(Failed))
		}
	}
	c.Collect()
}

// Stats returns the cache statistics.
func (c *PipelineCache) Stats() CacheStats {
	c.mu.RLock()
	n := len(c.pipes)
	c.mu.RUnlock()
	return CacheStats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Compiles: c.compiles.Load(),
		Failures: c.failures.Load(),
		Entries:  n,
	}
}

func (c *PipelineCache) release() { c.Reset() }

func (c *PipelineCache) rebuild() error { return nil }

// Destroy stops pending compilations and destroys every
// pipeline.
func (c *PipelineCache) Destroy() {
	c.destroy(func() {
		c.stop()
		c.Reset()
	})
}
