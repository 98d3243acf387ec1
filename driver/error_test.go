// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	for _, x := range [...]struct {
		err  *Error
		want string
	}{
		{NewError(ErrResource, "vkCreateSampler", "sampler", "VK_ERROR_OUT_OF_HOST_MEMORY"),
			"driver: resource creation failed (vkCreateSampler sampler): VK_ERROR_OUT_OF_HOST_MEMORY"},
		{NewError(ErrDeviceLost, "Submit", "", ""), "driver: device lost (Submit)"},
		{NewError(nil, "", "", "code"), "driver: error: code"},
	} {
		if s := x.err.Error(); s != x.want {
			t.Errorf("Error.Error:\nhave %q\nwant %q", s, x.want)
		}
	}

	err := fmt.Errorf("rhi: texture: %w", NewError(ErrDeviceLost, "CreateTexture", "gbuffer_albedo", "lost"))
	if !IsDeviceLost(err) {
		t.Error("IsDeviceLost: should see through wrapping")
	}
	var e *Error
	if !errors.As(err, &e) || e.Obj != "gbuffer_albedo" {
		t.Errorf("errors.As: unexpected value %v", e)
	}
	if IsDeviceLost(ErrResource) {
		t.Error("IsDeviceLost: unexpected true for ErrResource")
	}
}
