// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package main

import (
	"github.com/go-gl/glfw/v3.3/glfw"
)

// window adapts a GLFW window to driver.Window.
// The embedded *glfw.Window provides
// GetRequiredInstanceExtensions and CreateWindowSurface,
// so the Vulkan driver can create its surface directly.
type window struct {
	*glfw.Window
}

func newWindow(title string, width, height int) (*window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	w, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, err
	}
	return &window{w}, nil
}

// Size returns the framebuffer size in pixels.
func (w *window) Size() (width, height int) { return w.GetFramebufferSize() }

func (w *window) ScaleFactor() float64 {
	x, _ := w.GetContentScale()
	if x <= 0 {
		return 1
	}
	return float64(x)
}

func (w *window) RequestRedraw() { glfw.PostEmptyEvent() }
