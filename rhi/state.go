// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"fmt"

	"gviegas/rend3/driver"
)

// Both backends use monolithic pipelines, so state
// objects hold validated state that is baked into
// pipelines rather than native handles.

// RasterizerDesc describes a RasterizerState.
type RasterizerDesc struct {
	Name      string
	Cull      driver.CullMode
	Fill      driver.FillMode
	Clockwise bool
	// DepthClip disables depth clamping.
	DepthClip bool
	DepthBias bool
	BiasValue float32
	BiasSlope float32
	BiasClamp float32
}

// RasterizerState is a validated rasterization state.
type RasterizerState struct {
	base
	desc  RasterizerDesc
	state driver.RasterState
}

// NewRasterizerState creates a new rasterizer state.
// Non-solid fill requires driver.Caps.NonSolidFill.
// It never returns nil. On failure the state is left
// in the failed state and the error is logged.
func NewRasterizerState(dev *Device, desc *RasterizerDesc) *RasterizerState {
	s := &RasterizerState{desc: *desc}
	s.init(dev, nameOr(desc.Name, "rasterizer state"), s)
	if s.err == nil {
		s.rebuild()
	}
	return s
}

func (s *RasterizerState) rebuild() error {
	if s.desc.Fill != driver.FFill && !s.dev.Caps().NonSolidFill {
		return s.fail("NewRasterizerState", fmt.Errorf("%w: non-solid fill not supported", driver.ErrResource))
	}
	s.state = driver.RasterState{
		Clockwise: s.desc.Clockwise,
		Cull:      s.desc.Cull,
		Fill:      s.desc.Fill,
		DepthClip: s.desc.DepthClip,
		DepthBias: s.desc.DepthBias,
		BiasValue: s.desc.BiasValue,
		BiasSlope: s.desc.BiasSlope,
		BiasClamp: s.desc.BiasClamp,
	}
	s.err = nil
	return nil
}

func (s *RasterizerState) release() {}

// State returns the validated state.
func (s *RasterizerState) State() driver.RasterState {
	if !s.IsValid() {
		s.refuse("State")
	}
	return s.state
}

// Destroy destroys the state.
func (s *RasterizerState) Destroy() { s.destroy(s.release) }

// BlendDesc describes a BlendState.
type BlendDesc struct {
	Name      string
	Enable    bool
	WriteMask driver.ColorMask
	SrcColor  driver.BlendFac
	DstColor  driver.BlendFac
	OpColor   driver.BlendOp
	SrcAlpha  driver.BlendFac
	DstAlpha  driver.BlendFac
	OpAlpha   driver.BlendOp
}

// BlendState is a validated color blend state.
type BlendState struct {
	base
	desc  BlendDesc
	state driver.ColorBlend
}

// NewBlendState creates a new blend state.
// A zero WriteMask writes every component.
// It never returns nil. On failure the state is left
// in the failed state and the error is logged.
func NewBlendState(dev *Device, desc *BlendDesc) *BlendState {
	s := &BlendState{desc: *desc}
	s.init(dev, nameOr(desc.Name, "blend state"), s)
	if s.err == nil {
		s.rebuild()
	}
	return s
}

func (s *BlendState) rebuild() error {
	d := &s.desc
	if d.OpColor < driver.BAdd || d.OpColor > driver.BMax || d.OpAlpha < driver.BAdd || d.OpAlpha > driver.BMax {
		return s.fail("NewBlendState", fmt.Errorf("%w: invalid blend operation", driver.ErrResource))
	}
	mask := d.WriteMask
	if mask == 0 {
		mask = driver.CAll
	}
	s.state = driver.ColorBlend{
		Blend:     d.Enable,
		WriteMask: mask,
		Op:        [2]driver.BlendOp{d.OpColor, d.OpAlpha},
		SrcFac:    [2]driver.BlendFac{d.SrcColor, d.SrcAlpha},
		DstFac:    [2]driver.BlendFac{d.DstColor, d.DstAlpha},
	}
	s.err = nil
	return nil
}

func (s *BlendState) release() {}

// State returns the validated state.
func (s *BlendState) State() driver.ColorBlend {
	if !s.IsValid() {
		s.refuse("State")
	}
	return s.state
}

// Destroy destroys the state.
func (s *BlendState) Destroy() { s.destroy(s.release) }

// DepthStencilDesc describes a DepthStencilState.
type DepthStencilDesc struct {
	Name  string
	Test  bool
	Write bool
	Cmp   driver.CmpFunc
}

// DepthStencilState is a validated depth state.
type DepthStencilState struct {
	base
	desc  DepthStencilDesc
	state driver.DSState
}

// NewDepthStencilState creates a new depth state.
// Depth writes without depth testing are turned into
// an always-passing test.
// It never returns nil. On failure the state is left
// in the failed state and the error is logged.
func NewDepthStencilState(dev *Device, desc *DepthStencilDesc) *DepthStencilState {
	s := &DepthStencilState{desc: *desc}
	s.init(dev, nameOr(desc.Name, "depth-stencil state"), s)
	if s.err == nil {
		s.rebuild()
	}
	return s
}

func (s *DepthStencilState) rebuild() error {
	d := s.desc
	if d.Cmp < driver.CNever || d.Cmp > driver.CAlways {
		return s.fail("NewDepthStencilState", fmt.Errorf("%w: invalid compare function %d", driver.ErrResource, d.Cmp))
	}
	if d.Write && !d.Test {
		d.Test, d.Cmp = true, driver.CAlways
	}
	s.state = driver.DSState{DepthTest: d.Test, DepthWrite: d.Write, DepthCmp: d.Cmp}
	s.err = nil
	return nil
}

func (s *DepthStencilState) release() {}

// State returns the validated state.
func (s *DepthStencilState) State() driver.DSState {
	if !s.IsValid() {
		s.refuse("State")
	}
	return s.state
}

// Destroy destroys the state.
func (s *DepthStencilState) Destroy() { s.destroy(s.release) }

func nameOr(name, dfl string) string {
	if name == "" {
		return dfl
	}
	return name
}
