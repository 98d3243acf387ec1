// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

import "testing"

func TestResolveFilter(t *testing.T) {
	filters := [...]Filter{FNearest, FLinear}
	seen := make(map[FilterMode]bool)
	for _, min := range filters {
		for _, mag := range filters {
			for _, mip := range filters {
				for _, cmp := range [...]bool{false, true} {
					m, c := ResolveFilter(min, mag, mip, false, cmp)
					if m < MinMagMipPoint || m > MinMagMipLinear {
						t.Fatalf("ResolveFilter(%d, %d, %d): invalid mode %v", min, mag, mip, m)
					}
					if c != cmp {
						t.Errorf("ResolveFilter: compare flag\nhave %t\nwant %t", c, cmp)
					}
					if a, b, c := m.Filters(); a != min || b != mag || c != mip {
						t.Errorf("FilterMode.Filters (%v):\nhave %d %d %d\nwant %d %d %d", m, a, b, c, min, mag, mip)
					}
					seen[m] = true

					m, c = ResolveFilter(min, mag, mip, true, cmp)
					if m != Anisotropic || c != cmp {
						t.Errorf("ResolveFilter: anisotropy must override\nhave %v %t\nwant %v %t", m, c, Anisotropic, cmp)
					}
				}
			}
		}
	}
	if len(seen) != 8 {
		t.Errorf("ResolveFilter: modes are not distinct\nhave %d\nwant 8", len(seen))
	}
}

func TestResolveFilterPanic(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ResolveFilter: unmapped combination should panic")
		}
	}()
	ResolveFilter(Filter(3), FNearest, FNearest, false, false)
}

func TestFilterModeString(t *testing.T) {
	if s := MinMagMipLinear.String(); s != "MinMagMipLinear" {
		t.Errorf("FilterMode.String:\nhave %s\nwant MinMagMipLinear", s)
	}
	if s := FilterMode(42).String(); s != "FilterMode(42)" {
		t.Errorf("FilterMode.String:\nhave %s\nwant FilterMode(42)", s)
	}
}
