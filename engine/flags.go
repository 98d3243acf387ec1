// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"
	"math/bits"
	"strings"
)

// Flags is a set of render modes.
type Flags uint32

// Render modes.
const (
	// G-buffer visualization.
	// At most one should be set. The visualized target
	// replaces the final image.
	Albedo Flags = 1 << iota
	Normal
	MaterialParams
	Velocity
	Depth

	// Debug overlays.
	Physics
	AABB
	PickingRay
	SceneGrid
	PerformanceMetrics
	LightGizmos

	// Effects.
	Bloom
	FXAA
	SSAO
	SSR
	TAA
	Sharpening
	ChromaticAberration
	// Correction enables tone mapping and gamma
	// correction of the HDR target.
	Correction

	maxFlag
)

// DefaultFlags is the set of render modes enabled by
// DefaultConfig.
const DefaultFlags = Bloom | FXAA | SSAO | SSR | TAA | Correction | AABB | PerformanceMetrics | LightGizmos

var flagNames = [...]string{
	"albedo",
	"normal",
	"material",
	"velocity",
	"depth",
	"physics",
	"aabb",
	"picking_ray",
	"scene_grid",
	"performance_metrics",
	"light",
	"bloom",
	"fxaa",
	"ssao",
	"ssr",
	"taa",
	"sharpening",
	"chromatic_aberration",
	"correction",
}

// Set sets every mode in x.
func (f *Flags) Set(x Flags) { *f |= x }

// Unset unsets every mode in x.
func (f *Flags) Unset(x Flags) { *f &^= x }

// IsSet returns whether every mode in x is set.
// It returns true if x is zero.
func (f Flags) IsSet(x Flags) bool { return f&x == x }

// Toggle flips every mode in x.
func (f *Flags) Toggle(x Flags) { *f ^= x }

// visualization returns the G-buffer visualization mode
// of f, or zero if none is set.
// If more than one is set, the lowest wins.
func (f Flags) visualization() Flags {
	v := f & (Albedo | Normal | MaterialParams | Velocity | Depth)
	return v & -v
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var s []string
	for x := f; x != 0; x &= x - 1 {
		i := bits.TrailingZeros32(uint32(x))
		if i < len(flagNames) {
			s = append(s, flagNames[i])
		} else {
			s = append(s, fmt.Sprintf("flag(%d)", i))
		}
	}
	return strings.Join(s, "|")
}

// MarshalText implements encoding.TextMarshaler.
func (f Flags) MarshalText() ([]byte, error) {
	if f&^(maxFlag-1) != 0 {
		return nil, fmt.Errorf("engine: invalid flags %#x", uint32(f))
	}
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Modes are separated by '|' or ','. The names "none"
// and "default" are also accepted.
func (f *Flags) UnmarshalText(text []byte) error {
	var x Flags
	for _, s := range strings.FieldsFunc(string(text), func(r rune) bool { return r == '|' || r == ',' }) {
		switch s = strings.ToLower(strings.TrimSpace(s)); s {
		case "", "none":
			continue
		case "default":
			x |= DefaultFlags
			continue
		}
		i := indexOf(flagNames[:], s)
		if i < 0 {
			return fmt.Errorf("engine: unknown render mode %q", s)
		}
		x |= 1 << i
	}
	*f = x
	return nil
}

func indexOf(s []string, x string) int {
	for i := range s {
		if s[i] == x {
			return i
		}
	}
	return -1
}
