// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"gviegas/rend3/driver"
)

// SamplerDesc describes a Sampler.
type SamplerDesc struct {
	Name string
	Min  driver.Filter
	Mag  driver.Filter
	Mip  driver.Filter
	Addr driver.AddrMode
	// Anisotropy enables anisotropic filtering when
	// greater than one. It is clamped to the device's
	// maximum and overrides the three filters.
	Anisotropy int
	// Compare enables depth comparison with Cmp.
	Compare bool
	Cmp     driver.CmpFunc
}

// Sampler is an image sampler.
type Sampler struct {
	base
	desc SamplerDesc
	mode driver.FilterMode
	h    Handle[driver.Sampler]
}

// NewSampler creates a new sampler.
// It never returns nil. On failure the sampler is left
// in the failed state and the error is logged.
// It panics if the filter combination cannot be mapped
// to a backend filter mode.
func NewSampler(dev *Device, desc *SamplerDesc) *Sampler {
	s := &Sampler{desc: *desc}
	s.init(dev, nameOr(desc.Name, "sampler"), s)
	if s.err == nil {
		s.create()
	}
	return s
}

func (s *Sampler) create() error {
	g, err := s.gpu("NewSampler")
	if err != nil {
		return s.fail("NewSampler", err)
	}
	aniso := s.desc.Anisotropy
	if mx := s.dev.Caps().MaxAnisotropy; aniso > mx {
		s.dev.log.Debug("rhi: anisotropy clamped", "obj", s.name, "have", aniso, "max", mx)
		aniso = mx
	}
	s.mode, _ = driver.ResolveFilter(s.desc.Min, s.desc.Mag, s.desc.Mip, aniso > 1, s.desc.Compare)
	spln := driver.Sampling{
		Min:      s.desc.Min,
		Mag:      s.desc.Mag,
		Mipmap:   s.desc.Mip,
		AddrU:    s.desc.Addr,
		AddrV:    s.desc.Addr,
		AddrW:    s.desc.Addr,
		MaxAniso: aniso,
		Compare:  s.desc.Compare,
		Cmp:      s.desc.Cmp,
		MaxLOD:   1000,
	}
	splr, err := g.NewSampler(&spln)
	if err != nil {
		return s.fail("NewSampler", err)
	}
	s.h = newHandle(s.dev, splr)
	s.err = nil
	return nil
}

// Mode returns the resolved filter mode.
func (s *Sampler) Mode() driver.FilterMode { return s.mode }

// Desc returns the sampler's descriptor.
func (s *Sampler) Desc() SamplerDesc { return s.desc }

// Sampler returns the driver sampler.
// It returns nil if the sampler is not valid.
func (s *Sampler) Sampler() driver.Sampler {
	if !s.IsValid() {
		s.refuse("Sampler")
		return nil
	}
	splr, ok := s.h.Get(s.dev)
	if !ok {
		s.refuse("Sampler")
		return nil
	}
	return splr
}

func (s *Sampler) release() {
	if splr := s.h.take(); splr != nil {
		splr.Destroy()
	}
}

func (s *Sampler) rebuild() error { return s.create() }

// Destroy destroys the sampler.
func (s *Sampler) Destroy() { s.destroy(s.release) }
