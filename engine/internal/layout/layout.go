// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package layout defines the memory layout of shader
// constants and manages their storage in constant buffers.
package layout

import (
	"time"
	"unsafe"

	"gviegas/rend3/linear"
)

// GlobalLayout is the layout of per-frame, global data.
// It is defined as follows:
//
//	[0:16]    | view-projection matrix
//	[16:32]   | previous frame's view-projection matrix
//	[32:48]   | view matrix
//	[48:64]   | projection matrix
//	[64:80]   | inverse view-projection matrix
//	[80:83]   | camera position
//	[83]      | near plane
//	[84:86]   | resolution
//	[86]      | far plane
//	[87]      | elapsed time in seconds
//	[88:90]   | TAA jitter, in clip space
//	[90]      | bloom intensity
//	[91]      | sharpen strength
//	[92]      | sharpen clamp
//	[93]      | FXAA subpixel quality
//	[94]      | FXAA edge threshold
//	[95]      | FXAA minimum edge threshold
//	[96:98]   | blur direction
//	[98]      | blur sigma
//	[99]      | frame number
//	[100:116] | light view-projection matrix
//	[116]     | whether depth is reversed
//	[117:120] | (unused)
//	[120:123] | sun direction
//	[123]     | (unused)
//	[124:127] | sun color
//	[127]     | sun intensity
type GlobalLayout [128]float32

// SetVP sets the view-projection matrix.
func (l *GlobalLayout) SetVP(m *linear.M4) { copyM4(l[:16], m) }

// SetPrevVP sets the previous frame's view-projection
// matrix.
func (l *GlobalLayout) SetPrevVP(m *linear.M4) { copyM4(l[16:32], m) }

// SetV sets the view matrix.
func (l *GlobalLayout) SetV(m *linear.M4) { copyM4(l[32:48], m) }

// SetP sets the projection matrix.
func (l *GlobalLayout) SetP(m *linear.M4) { copyM4(l[48:64], m) }

// SetInvVP sets the inverse view-projection matrix.
func (l *GlobalLayout) SetInvVP(m *linear.M4) { copyM4(l[64:80], m) }

// SetCamera sets the camera position and clip planes.
func (l *GlobalLayout) SetCamera(pos *linear.V3, near, far float32) {
	l[80], l[81], l[82] = pos[0], pos[1], pos[2]
	l[83] = near
	l[86] = far
}

// SetResolution sets the render resolution.
func (l *GlobalLayout) SetResolution(width, height int) {
	l[84], l[85] = float32(width), float32(height)
}

// SetTime sets the elapsed time.
func (l *GlobalLayout) SetTime(d time.Duration) { l[87] = float32(d.Seconds()) }

// SetJitter sets the TAA jitter.
func (l *GlobalLayout) SetJitter(x, y float32) { l[88], l[89] = x, y }

// SetBloom sets the bloom intensity.
func (l *GlobalLayout) SetBloom(intensity float32) { l[90] = intensity }

// SetSharpen sets the sharpening parameters.
func (l *GlobalLayout) SetSharpen(strength, clamp float32) { l[91], l[92] = strength, clamp }

// SetFXAA sets the FXAA parameters.
func (l *GlobalLayout) SetFXAA(subpix, edge, edgeMin float32) {
	l[93], l[94], l[95] = subpix, edge, edgeMin
}

// SetBlur sets the blur direction and sigma.
func (l *GlobalLayout) SetBlur(dx, dy, sigma float32) { l[96], l[97], l[98] = dx, dy, sigma }

// SetFrame sets the frame number, modulo 2^24.
func (l *GlobalLayout) SetFrame(n uint64) { l[99] = float32(n % (1 << 24)) }

// SetLightVP sets the shadow-casting light's
// view-projection matrix.
func (l *GlobalLayout) SetLightVP(m *linear.M4) { copyM4(l[100:116], m) }

// SetReverseZ sets whether depth is reversed.
func (l *GlobalLayout) SetReverseZ(rev bool) { l[116] = bool32(rev) }

// SetSun sets the sun used by forward shading.
func (l *GlobalLayout) SetSun(dir, color *linear.V3, intensity float32) {
	l[120], l[121], l[122] = dir[0], dir[1], dir[2]
	l[124], l[125], l[126] = color[0], color[1], color[2]
	l[127] = intensity
}

func copyM4(dst []float32, m *linear.M4) {
	copy(dst, unsafe.Slice((*float32)(unsafe.Pointer(m)), 16))
}

func bool32(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// DrawLayout is the layout of per-draw data.
// It is defined as follows:
//
//	[0:16]  | world matrix
//	[16:32] | previous frame's world matrix
//	[32:36] | albedo
//	[36]    | roughness
//	[37]    | metallic
//	[38]    | emissive strength
//	[39:64] | (unused)
type DrawLayout [64]float32

// SetWorld sets the world matrix.
func (l *DrawLayout) SetWorld(m *linear.M4) { copyM4(l[:16], m) }

// SetPrevWorld sets the previous frame's world matrix.
func (l *DrawLayout) SetPrevWorld(m *linear.M4) { copyM4(l[16:32], m) }

// SetAlbedo sets the albedo color.
func (l *DrawLayout) SetAlbedo(c *linear.V4) { copy(l[32:36], c[:]) }

// SetMaterial sets the material factors.
func (l *DrawLayout) SetMaterial(roughness, metallic, emissive float32) {
	l[36], l[37], l[38] = roughness, metallic, emissive
}

// LightLayout is the layout of light data.
// It is defined as follows:
//
//	[0:3]   | color
//	[3]     | intensity
//	[4:7]   | position
//	[7]     | range
//	[8:11]  | direction
//	[11]    | light type
//	[12]    | cosine of the inner cone angle
//	[13]    | cosine of the outer cone angle
//	[14]    | whether the light casts shadows
//	[15]    | (unused)
type LightLayout [16]float32

// Types of light.
const (
	DirectLight int32 = iota
	PointLight
	SpotLight
)

// SetColor sets the color.
func (l *LightLayout) SetColor(c *linear.V3) { l[0], l[1], l[2] = c[0], c[1], c[2] }

// SetIntensity sets the intensity.
func (l *LightLayout) SetIntensity(i float32) { l[3] = i }

// SetPosition sets the position.
// Used for PointLight and SpotLight.
func (l *LightLayout) SetPosition(p *linear.V3) { l[4], l[5], l[6] = p[0], p[1], p[2] }

// SetRange sets the range.
// Used for PointLight and SpotLight.
func (l *LightLayout) SetRange(rng float32) { l[7] = rng }

// SetDirection sets the direction.
// Used for DirectLight and SpotLight.
func (l *LightLayout) SetDirection(d *linear.V3) { l[8], l[9], l[10] = d[0], d[1], d[2] }

// SetType sets the light type.
func (l *LightLayout) SetType(typ int32) { l[11] = *(*float32)(unsafe.Pointer(&typ)) }

// SetCone sets the cosines of the cone angles.
// Used for SpotLight.
func (l *LightLayout) SetCone(cosInner, cosOuter float32) { l[12], l[13] = cosInner, cosOuter }

// SetShadow sets whether the light casts shadows.
func (l *LightLayout) SetShadow(cast bool) { l[14] = bool32(cast) }

// PassLayout is the layout of full-screen pass data.
// It is defined as follows:
//
//	[0:2]   | texel size of the first input
//	[2:4]   | size of the first input
//	[4:8]   | pass-specific parameters
//	[8:12]  | first color
//	[12:16] | second color
type PassLayout [16]float32

// SetInputSize sets the size of the first input.
func (l *PassLayout) SetInputSize(width, height int) {
	w, h := float32(max(width, 1)), float32(max(height, 1))
	l[0], l[1], l[2], l[3] = 1/w, 1/h, w, h
}

// SetParams sets the pass-specific parameters.
func (l *PassLayout) SetParams(x, y, z, w float32) { l[4], l[5], l[6], l[7] = x, y, z, w }

// SetColors sets the pass colors.
func (l *PassLayout) SetColors(c0, c1 *linear.V4) {
	copy(l[8:12], c0[:])
	copy(l[12:16], c1[:])
}
