// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"math"

	"gviegas/rend3/engine/internal/layout"
	"gviegas/rend3/linear"
)

// LightType is the type of a Light.
type LightType int

// Light types.
const (
	LDistant LightType = iota
	LPoint
	LSpot
)

func (t LightType) String() string {
	switch t {
	case LDistant:
		return "distant"
	case LPoint:
		return "point"
	case LSpot:
		return "spot"
	}
	return "invalid"
}

// Light defines a light source.
// It is placed in a Scene as the Value of a node.Node;
// the node's world transform is applied to the light's
// position and direction.
// The zero value for Light is not valid; one must
// call DistantLight.Light, PointLight.Light or
// SpotLight.Light to create an initialized Light.
type Light struct {
	typ       LightType
	color     linear.V3
	intensity float32
	position  linear.V3
	direction linear.V3
	rng       float32
	cosInner  float32
	cosOuter  float32
	shadow    bool
}

// Type returns the type of l.
func (l *Light) Type() LightType { return l.typ }

// SetDirection sets the direction of l.
// It normalizes d.
// Only applies to distant and spot lights.
func (l *Light) SetDirection(d *linear.V3) { l.direction.Norm(d) }

// Direction returns the direction of l.
// Only applies to distant and spot lights.
func (l *Light) Direction() linear.V3 { return l.direction }

// SetPosition sets the position of l.
// Only applies to point and spot lights.
func (l *Light) SetPosition(p *linear.V3) { l.position = *p }

// Position returns the position of l.
// Only applies to point and spot lights.
func (l *Light) Position() linear.V3 { return l.position }

// SetIntensity sets the intensity of l.
func (l *Light) SetIntensity(i float32) { l.intensity = max(0, i) }

// Intensity returns the intensity of l.
func (l *Light) Intensity() float32 { return l.intensity }

// SetRange sets the falloff range of l.
// Ranges that are less than or equal to zero are
// treated as infinite.
// Only applies to point and spot lights.
func (l *Light) SetRange(r float32) {
	if r <= 0 {
		r = math.MaxFloat32
	}
	l.rng = r
}

// Range returns the falloff range of l.
// Only applies to point and spot lights.
func (l *Light) Range() float32 { return l.rng }

// SetColor sets the RGB color of l.
func (l *Light) SetColor(r, g, b float32) { l.color = linear.V3{r, g, b} }

// Color returns the RGB color of l.
func (l *Light) Color() (r, g, b float32) { return l.color[0], l.color[1], l.color[2] }

// SetShadow sets whether l casts shadows.
// Only the first shadow-casting distant light of a
// Scene renders a shadow map.
func (l *Light) SetShadow(cast bool) { l.shadow = cast }

// Shadow returns whether l casts shadows.
func (l *Light) Shadow() bool { return l.shadow }

// SetConeAngles sets the inner/outer cone angles of l.
// Cone angles that exceed math.Pi/2, or that are less
// than zero, will be clamped. The inner angle will be
// adjusted such that it is less than the outer angle.
// Only applies to spot lights.
func (l *Light) SetConeAngles(inner, outer float32) {
	i := max(0, min(float64(inner), math.Pi/2-1e-6))
	o := max(i+1e-6, min(float64(outer), math.Pi/2))
	l.cosInner = float32(math.Cos(i))
	l.cosOuter = float32(math.Cos(o))
}

// ConeAngles returns the inner/outer cone angles of l.
// Note that it returns the clamped angles (see the doc
// for Light.SetConeAngles).
// Only applies to spot lights.
func (l *Light) ConeAngles() (inner, outer float32) {
	inner = float32(math.Acos(float64(l.cosInner)))
	outer = float32(math.Acos(float64(l.cosOuter)))
	return
}

// worldPosition returns the position of l transformed
// by world.
func (l *Light) worldPosition(world *linear.M4) linear.V3 {
	var p linear.V4
	p.Mul(world, &linear.V4{l.position[0], l.position[1], l.position[2], 1})
	return p.XYZ()
}

// worldDirection returns the direction of l transformed
// by world.
func (l *Light) worldDirection(world *linear.M4) linear.V3 {
	var d linear.V4
	d.Mul(world, &linear.V4{l.direction[0], l.direction[1], l.direction[2], 0})
	v := d.XYZ()
	if v.Len() == 0 {
		return l.direction
	}
	v.Norm(&v)
	return v
}

// store writes l, as transformed by world, to dst.
func (l *Light) store(dst *layout.LightLayout, world *linear.M4, shadow bool) {
	pos := l.worldPosition(world)
	dir := l.worldDirection(world)
	*dst = layout.LightLayout{}
	dst.SetColor(&l.color)
	dst.SetIntensity(l.intensity)
	dst.SetPosition(&pos)
	dst.SetRange(l.rng)
	dst.SetDirection(&dir)
	switch l.typ {
	case LDistant:
		dst.SetType(layout.DirectLight)
	case LPoint:
		dst.SetType(layout.PointLight)
	case LSpot:
		dst.SetType(layout.SpotLight)
	}
	dst.SetCone(l.cosInner, l.cosOuter)
	dst.SetShadow(shadow)
}

// DistantLight is a directional light.
// The light is emitted in the given Direction.
// It behaves as if located infinitely far way.
// Intensity is the illuminance in lux.
type DistantLight struct {
	Direction linear.V3
	Intensity float32
	R, G, B   float32
	Shadow    bool
}

// Light creates the light source described by t.
// t.R/G/B must be in the range [0, 1].
func (t *DistantLight) Light() (light Light) {
	light.typ = LDistant
	light.SetIntensity(t.Intensity)
	light.SetColor(t.R, t.G, t.B)
	light.SetDirection(&t.Direction)
	light.SetShadow(t.Shadow)
	return
}

// PointLight is an omnidirectional, positional
// light.
// The light is emitted in all directions from the
// given Position.
// Range determines the area affected by the light.
// Intensity is the luminous intensity in candela.
type PointLight struct {
	Position  linear.V3
	Range     float32
	Intensity float32
	R, G, B   float32
}

// Light creates the light source described by t.
// t.R/G/B must be in the range [0, 1].
// t.Range may be set to 0 or less to indicate an
// infinite range.
func (t *PointLight) Light() (light Light) {
	light.typ = LPoint
	light.SetIntensity(t.Intensity)
	light.SetRange(t.Range)
	light.SetColor(t.R, t.G, t.B)
	light.SetPosition(&t.Position)
	return
}

// SpotLight is a directional, positional light.
// The light is emitted in a cone in the given Direction
// from the given Position.
// InnerAngle and OuterAngle (in radians), alongside
// Range, determine the area affected by the light.
// Intensity is the luminous intensity in candela.
type SpotLight struct {
	Direction  linear.V3
	Position   linear.V3
	InnerAngle float32
	OuterAngle float32
	Range      float32
	Intensity  float32
	R, G, B    float32
}

// Light creates the light source described by t.
// t.R/G/B must be in the range [0, 1].
// t.Range may be set to 0 or less to indicate an
// infinite range.
// The cone angles will be adjusted as per
// Light.SetConeAngles.
func (t *SpotLight) Light() (light Light) {
	light.typ = LSpot
	light.SetIntensity(t.Intensity)
	light.SetRange(t.Range)
	light.SetColor(t.R, t.G, t.B)
	light.SetConeAngles(t.InnerAngle, t.OuterAngle)
	light.SetPosition(&t.Position)
	light.SetDirection(&t.Direction)
	return
}
