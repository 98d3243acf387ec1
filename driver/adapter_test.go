// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"testing"
)

func TestSelectAdapter(t *testing.T) {
	gfx := QueueFamilyInfo{Flags: QueueGraphics | QueueCompute | QueueTransfer, Count: 1}
	gfxPresent := gfx
	gfxPresent.Present = true
	xferOnly := QueueFamilyInfo{Flags: QueueTransfer, Count: 2}
	presentOnly := QueueFamilyInfo{Flags: QueueCompute, Count: 1, Present: true}
	empty := QueueFamilyInfo{Flags: QueueGraphics, Count: 0, Present: true}
	swapchain := "VK_KHR_swapchain"

	for _, x := range [...]struct {
		name     string
		adapters []AdapterInfo
		req      Requirements
		want     int
		wantFam  QueueFamilies
		wantFail bool
	}{
		{
			name:     "headless",
			adapters: []AdapterInfo{{Name: "a", Families: []QueueFamilyInfo{xferOnly, gfx}}},
			want:     0,
			wantFam:  QueueFamilies{1, -1, 1},
		},
		{
			name: "first that qualifies",
			adapters: []AdapterInfo{
				{Name: "a", Families: []QueueFamilyInfo{xferOnly}},
				{Name: "b", Families: []QueueFamilyInfo{gfx}},
				{Name: "c", Families: []QueueFamilyInfo{gfx}},
			},
			want:    1,
			wantFam: QueueFamilies{0, -1, 0},
		},
		{
			name:     "present prefers graphics",
			adapters: []AdapterInfo{{Families: []QueueFamilyInfo{presentOnly, gfxPresent}, Extensions: []string{swapchain}}},
			req:      Requirements{Present: true, Extensions: []string{swapchain}},
			want:     0,
			wantFam:  QueueFamilies{1, 1, 1},
		},
		{
			name:     "separate present family",
			adapters: []AdapterInfo{{Families: []QueueFamilyInfo{gfx, presentOnly}}},
			req:      Requirements{Present: true},
			want:     0,
			wantFam:  QueueFamilies{0, 1, 0},
		},
		{
			name:     "empty family cannot present",
			adapters: []AdapterInfo{{Families: []QueueFamilyInfo{empty, gfx}}},
			req:      Requirements{Present: true},
			wantFail: true,
		},
		{
			name: "missing extension",
			adapters: []AdapterInfo{
				{Families: []QueueFamilyInfo{gfxPresent}},
				{Families: []QueueFamilyInfo{gfxPresent}, Extensions: []string{"x", swapchain}},
			},
			req:     Requirements{Present: true, Extensions: []string{swapchain}},
			want:    1,
			wantFam: QueueFamilies{0, 0, 0},
		},
		{
			name:     "no adapters",
			wantFail: true,
		},
	} {
		i, fam, err := SelectAdapter(x.adapters, &x.req)
		if x.wantFail {
			if !errors.Is(err, ErrNoDevice) {
				t.Errorf("SelectAdapter [%s]:\nhave %v\nwant %v", x.name, err, ErrNoDevice)
			}
			continue
		}
		if err != nil {
			t.Errorf("SelectAdapter [%s]: unexpected error: %v", x.name, err)
			continue
		}
		if i != x.want || fam != x.wantFam {
			t.Errorf("SelectAdapter [%s]:\nhave %d %+v\nwant %d %+v", x.name, i, fam, x.want, x.wantFam)
		}
	}
}
