// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"context"
	"errors"
	"sync/atomic"

	"gviegas/rend3/driver"
	"gviegas/rend3/shader"
)

// ErrPipelineCompile means that a pipeline could not be
// built, either because a shader failed to compile or
// because the backend rejected the pipeline.
// The pipeline stays failed until one of its shader
// sources is invalidated.
var ErrPipelineCompile = errors.New("rhi: pipeline compilation failed")

// Maximum number of color targets and vertex inputs of
// a PipelineDesc.
const (
	MaxTargets  = 8
	MaxVertexIn = 4
)

// VertexLayout describes the single interleaved vertex
// buffer of a pipeline.
// The zero value describes no vertex input.
type VertexLayout struct {
	Stride int
	N      int
	In     [MaxVertexIn]driver.VertexIn
}

// PipelineDesc describes a graphics pipeline.
// It is comparable and identifies the pipeline in a
// PipelineCache: two equal descriptors always map to
// the same Pipeline.
type PipelineDesc struct {
	Vert shader.Source
	// Frag is the zero Source for depth-only
	// pipelines.
	Frag     shader.Source
	Layout   driver.BindLayout
	Vertex   VertexLayout
	Topology driver.Topology
	Raster   driver.RasterState
	Blend    driver.ColorBlend
	DS       driver.DSState
	// Color holds the formats of the color targets.
	// The first FNone ends the list.
	Color [MaxTargets]driver.PixelFmt
	DSFmt driver.PixelFmt
}

// Targets returns the color target formats.
func (d *PipelineDesc) Targets() []driver.PixelFmt {
	for i, f := range d.Color {
		if f == driver.FNone {
			return d.Color[:i]
		}
	}
	return d.Color[:]
}

// Uses returns whether d is built from the shader
// source at path.
func (d *PipelineDesc) Uses(path string) bool {
	return d.Vert.Path == path || (d.Frag.Path != "" && d.Frag.Path == path)
}

// PipelineState is the state of a Pipeline.
type PipelineState int32

// Pipeline states.
const (
	Pending PipelineState = iota
	Ready
	Failed
)

func (s PipelineState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Pipeline is a graphics pipeline built asynchronously
// by a PipelineCache.
type Pipeline struct {
	desc  PipelineDesc
	state atomic.Int32
	done  chan struct{}
	// Written once, before state leaves Pending.
	pl  driver.Pipeline
	err error
	gen uint64
}

func newPipeline(desc *PipelineDesc, gen uint64) *Pipeline {
	return &Pipeline{desc: *desc, done: make(chan struct{}), gen: gen}
}

// failedPipeline returns a pipeline that failed with err.
func failedPipeline(desc *PipelineDesc, err error) *Pipeline {
	p := newPipeline(desc, 0)
	p.finish(nil, err)
	return p
}

func (p *Pipeline) finish(pl driver.Pipeline, err error) {
	p.pl, p.err = pl, err
	if err != nil {
		p.state.Store(int32(Failed))
	} else {
		p.state.Store(int32(Ready))
	}
	close(p.done)
}

// State returns the state of the pipeline.
// It is safe to call concurrently with compilation.
func (p *Pipeline) State() PipelineState { return PipelineState(p.state.Load()) }

var errStale = errors.New("rhi: pipeline dropped by cache reset")

// Err returns the compilation error of a failed
// pipeline.
func (p *Pipeline) Err() error {
	switch p.State() {
	case Pending, Ready:
		return nil
	}
	if p.err == nil {
		return errStale
	}
	return p.err
}

// Desc returns the pipeline's descriptor.
func (p *Pipeline) Desc() PipelineDesc { return p.desc }

// Pipeline returns the driver pipeline.
// It returns nil unless the pipeline is Ready.
func (p *Pipeline) Pipeline() driver.Pipeline {
	if p.State() != Ready {
		return nil
	}
	return p.pl
}

// Wait blocks until the pipeline is no longer pending
// or ctx is done.
// It returns the compilation error, if any.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
