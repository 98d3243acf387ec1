// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

import "fmt"

// FilterMode is a backend-neutral sampler filter mode.
// Backends translate it to their own representation
// through a table.
type FilterMode int

// Filter modes.
const (
	MinMagMipPoint FilterMode = iota
	MinMagPointMipLinear
	MinPointMagLinearMipPoint
	MinPointMagMipLinear
	MinLinearMagMipPoint
	MinLinearMagPointMipLinear
	MinMagLinearMipPoint
	MinMagMipLinear
	Anisotropic
)

var filterModeNames = [...]string{
	"MinMagMipPoint",
	"MinMagPointMipLinear",
	"MinPointMagLinearMipPoint",
	"MinPointMagMipLinear",
	"MinLinearMagMipPoint",
	"MinLinearMagPointMipLinear",
	"MinMagLinearMipPoint",
	"MinMagMipLinear",
	"Anisotropic",
}

func (m FilterMode) String() string {
	if m < 0 || int(m) >= len(filterModeNames) {
		return fmt.Sprintf("FilterMode(%d)", int(m))
	}
	return filterModeNames[m]
}

// Filters decomposes m into the filter of each stage.
// Anisotropic decomposes into all linear.
func (m FilterMode) Filters() (min, mag, mip Filter) {
	if m == Anisotropic {
		return FLinear, FLinear, FLinear
	}
	return Filter(m >> 2 & 1), Filter(m >> 1 & 1), Filter(m & 1)
}

// ResolveFilter maps the minification, magnification and
// mipmap filters onto a FilterMode.
// If aniso is set, the result is always Anisotropic
// regardless of the three filters. The compare flag is
// passed through so that backends which encode comparison
// in the filter (or not) can act on it.
// It panics if the combination cannot be mapped.
func ResolveFilter(min, mag, mip Filter, aniso, cmp bool) (FilterMode, bool) {
	if aniso {
		return Anisotropic, cmp
	}
	switch [3]Filter{min, mag, mip} {
	case [3]Filter{FNearest, FNearest, FNearest}:
		return MinMagMipPoint, cmp
	case [3]Filter{FNearest, FNearest, FLinear}:
		return MinMagPointMipLinear, cmp
	case [3]Filter{FNearest, FLinear, FNearest}:
		return MinPointMagLinearMipPoint, cmp
	case [3]Filter{FNearest, FLinear, FLinear}:
		return MinPointMagMipLinear, cmp
	case [3]Filter{FLinear, FNearest, FNearest}:
		return MinLinearMagMipPoint, cmp
	case [3]Filter{FLinear, FNearest, FLinear}:
		return MinLinearMagPointMipLinear, cmp
	case [3]Filter{FLinear, FLinear, FNearest}:
		return MinMagLinearMipPoint, cmp
	case [3]Filter{FLinear, FLinear, FLinear}:
		return MinMagMipLinear, cmp
	}
	panic(fmt.Sprintf("driver: unmapped filter combination (min %d, mag %d, mip %d)", min, mag, mip))
}
