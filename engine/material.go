// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"gviegas/rend3/linear"
	"gviegas/rend3/rhi"
)

// Material describes the surface of a Model.
type Material struct {
	Name string

	// Base color. It multiplies AlbedoTex.
	Albedo linear.V4

	// Metallic-roughness parameters in [0, 1].
	Roughness float32
	Metallic  float32

	// Emissive scales the albedo added to the lit
	// color.
	Emissive float32

	// AlbedoTex is optional. If nil, a white texture
	// is used.
	AlbedoTex *rhi.Texture

	// Transparent materials are drawn after deferred
	// lighting, blended back to front, and lit by the
	// first distant light only.
	Transparent bool
}

// DefaultMaterial returns an opaque, white, dielectric
// material.
func DefaultMaterial() Material {
	return Material{
		Name:      "default",
		Albedo:    linear.V4{1, 1, 1, 1},
		Roughness: 0.5,
	}
}

// clamped returns m with its parameters clamped to the
// valid ranges.
func (m *Material) clamped() (roughness, metallic, emissive float32) {
	roughness = min(max(m.Roughness, 0), 1)
	metallic = min(max(m.Metallic, 0), 1)
	emissive = max(m.Emissive, 0)
	return
}
