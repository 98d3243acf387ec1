// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"
	"log/slog"
	"strconv"

	"gviegas/rend3/driver"
	"gviegas/rend3/rhi"
)

// tier determines the size of a render target.
type tier int

const (
	// Render resolution.
	tierFull tier = iota
	// Half of the render resolution.
	tierHalf
	// Quarter of the render resolution.
	tierQuarter
	// Fixed size.
	tierFixed
	// Back buffer size.
	tierBackBuffer
	// One level of the bloom chain.
	tierBloom
)

func (t tier) String() string {
	switch t {
	case tierFull:
		return "full"
	case tierHalf:
		return "half"
	case tierQuarter:
		return "quarter"
	case tierFixed:
		return "fixed"
	case tierBackBuffer:
		return "back buffer"
	case tierBloom:
		return "bloom"
	}
	return "invalid"
}

// targetDesc describes a render target.
type targetDesc struct {
	name   string
	format driver.PixelFmt
	tier   tier
	// Size of tierFixed targets.
	// Level of tierBloom targets is width.
	width, height int
	// Persistent targets hold data across frames
	// (e.g., history) and so count as produced even
	// if no pass wrote them in the current frame.
	persistent bool
	// Whether the target exists only when rendering
	// offscreen.
	headless bool
}

// Render target names.
const (
	tAlbedo     = "gbuffer.albedo"
	tNormal     = "gbuffer.normal"
	tMaterial   = "gbuffer.material"
	tVelocity   = "gbuffer.velocity"
	tDepth      = "gbuffer.depth"
	tDiffuse    = "light.diffuse"
	tSpecular   = "light.specular"
	tVolumetric = "light.volumetric"
	tHDR        = "frame.hdr"
	tHDR2       = "frame.hdr2"
	tLDR        = "frame.ldr"
	tLDR2       = "frame.ldr2"
	tTAAA       = "taa.a"
	tTAAB       = "taa.b"
	tSSAO       = "ssao"
	tSSAOHalf   = "ssao.half"
	tSSAOBlur   = "ssao.blurred"
	tSSRTrace   = "ssr"
	tSSRA       = "ssr.a"
	tSSRB       = "ssr.b"
	tBRDF       = "brdf.lut"
	tShadow     = "shadow.map"
	tBackBuffer = "backbuffer"

	// Aliases resolved every frame from the
	// frame parity.
	tTAACurrent = "taa.current"
	tTAAHistory = "taa.history"
	tSSRCurrent = "ssr.current"
	tSSRHistory = "ssr.history"

	bloomPrefix = "bloom."
	brdfSize    = 400
)

// staticTargets lists every render target but the bloom
// chain.
// The shadow map size is set by newTargets.
func staticTargets(shadowSize int) []targetDesc {
	return []targetDesc{
		{name: tAlbedo, format: driver.RGBA8un},
		{name: tNormal, format: driver.RGBA16f},
		{name: tMaterial, format: driver.RGBA8un},
		{name: tVelocity, format: driver.RG16f},
		{name: tDepth, format: driver.D32f},
		{name: tDiffuse, format: driver.RGBA16f},
		{name: tSpecular, format: driver.RGBA16f},
		{name: tVolumetric, format: driver.RGBA16f},
		{name: tHDR, format: driver.RGBA16f},
		{name: tHDR2, format: driver.RGBA16f},
		{name: tLDR, format: driver.RGBA8un},
		{name: tLDR2, format: driver.RGBA8un},
		{name: tTAAA, format: driver.RGBA16f, persistent: true},
		{name: tTAAB, format: driver.RGBA16f, persistent: true},
		{name: tSSAO, format: driver.R8un},
		{name: tSSAOHalf, format: driver.R8un, tier: tierHalf},
		{name: tSSAOBlur, format: driver.R8un, tier: tierHalf},
		{name: tSSRTrace, format: driver.RGBA16f, tier: tierQuarter},
		{name: tSSRA, format: driver.RGBA16f, persistent: true},
		{name: tSSRB, format: driver.RGBA16f, persistent: true},
		{name: tBRDF, format: driver.RG16f, tier: tierFixed, width: brdfSize, height: brdfSize, persistent: true},
		{name: tShadow, format: driver.D32f, tier: tierFixed, width: shadowSize, height: shadowSize},
		{name: tBackBuffer, format: driver.RGBA8un, tier: tierBackBuffer, headless: true},
	}
}

// bloomChain returns the sizes of the bloom chain for
// a render resolution of width by height.
// The first level is half of the render resolution.
// Levels are halved until one has a dimension of 16 or
// less, which ends the chain.
func bloomChain(width, height int) [][2]int {
	c := [][2]int{{max(width/2, 1), max(height/2, 1)}}
	for l := c[0]; l[0] > 16 && l[1] > 16; {
		l = [2]int{l[0] / 2, l[1] / 2}
		c = append(c, l)
	}
	return c
}

func bloomName(level int) string { return bloomPrefix + strconv.Itoa(level) }

// targets owns the render targets of a Renderer.
type targets struct {
	dev      *rhi.Device
	log      *slog.Logger
	static   []targetDesc
	headless bool

	width, height     int
	bbWidth, bbHeight int

	desc  map[string]*targetDesc
	tex   map[string]*rhi.Texture
	bloom [][2]int
}

func newTargets(dev *rhi.Device, log *slog.Logger, shadowSize int, headless bool) *targets {
	return &targets{
		dev:      dev,
		log:      log,
		static:   staticTargets(shadowSize),
		headless: headless,
	}
}

// size returns the size that d dictates.
func (t *targets) size(d *targetDesc) (width, height int) {
	switch d.tier {
	case tierFull:
		return t.width, t.height
	case tierHalf:
		return t.width / 2, t.height / 2
	case tierQuarter:
		return t.width / 4, t.height / 4
	case tierFixed:
		return d.width, d.height
	case tierBackBuffer:
		return t.bbWidth, t.bbHeight
	case tierBloom:
		if d.width < len(t.bloom) {
			return t.bloom[d.width][0], t.bloom[d.width][1]
		}
	}
	return 0, 0
}

// resize recreates every render target.
// If the render resolution has no quarter tier, or if
// any target cannot be created, the previous targets
// are kept.
func (t *targets) resize(width, height, bbWidth, bbHeight int) error {
	if width/4 == 0 || height/4 == 0 || bbWidth <= 0 || bbHeight <= 0 {
		t.log.Warn("engine: invalid resolution", "width", width, "height", height,
			"back_buffer_width", bbWidth, "back_buffer_height", bbHeight)
		return fmt.Errorf("%w: %dx%d", ErrInvalidResolution, width, height)
	}
	next := &targets{
		dev:      t.dev,
		log:      t.log,
		static:   t.static,
		headless: t.headless,
		width:    width,
		height:   height,
		bbWidth:  bbWidth,
		bbHeight: bbHeight,
		desc:     make(map[string]*targetDesc),
		tex:      make(map[string]*rhi.Texture),
		bloom:    bloomChain(width, height),
	}
	descs := make([]targetDesc, 0, len(t.static)+len(next.bloom))
	for _, d := range t.static {
		if !d.headless || t.headless {
			descs = append(descs, d)
		}
	}
	for i := range next.bloom {
		descs = append(descs, targetDesc{name: bloomName(i), format: driver.RGBA16f, tier: tierBloom, width: i})
	}
	for i := range descs {
		d := &descs[i]
		w, h := next.size(d)
		tex := rhi.NewTexture(t.dev, &rhi.TextureDesc{
			Name:   d.name,
			Format: d.format,
			Width:  w,
			Height: h,
			Usage:  driver.URenderTarget,
		})
		if !tex.IsValid() {
			err := tex.Err()
			tex.Destroy()
			next.destroy()
			t.log.Error("engine: render target creation failed", "obj", d.name, "width", w, "height", h, "err", err)
			return fmt.Errorf("engine: render target %s: %w", d.name, err)
		}
		next.desc[d.name] = d
		next.tex[d.name] = tex
	}
	t.destroy()
	*t = *next
	t.log.Info("engine: render targets created", "width", width, "height", height, "bloom_levels", len(t.bloom))
	return nil
}

// get returns the named target, or nil.
func (t *targets) get(name string) *rhi.Texture { return t.tex[name] }

// descOf returns the description of the named target,
// or nil.
func (t *targets) descOf(name string) *targetDesc { return t.desc[name] }

// check returns an error if the named target does not
// exist, is invalid or has a size other than what its
// tier dictates.
func (t *targets) check(name string) error {
	d, tex := t.desc[name], t.tex[name]
	if d == nil || tex == nil {
		return fmt.Errorf("missing target %s", name)
	}
	if !tex.IsValid() {
		return fmt.Errorf("invalid target %s: %w", name, tex.Err())
	}
	w, h := t.size(d)
	if tw, th := tex.Size(); tw != w || th != h {
		return fmt.Errorf("target %s is %dx%d, %s tier requires %dx%d", name, tw, th, d.tier, w, h)
	}
	return nil
}

// destroy destroys every target.
func (t *targets) destroy() {
	for _, tex := range t.tex {
		tex.Destroy()
	}
	t.tex = nil
	t.desc = nil
}
