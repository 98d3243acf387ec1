// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements real-time rendering.
//
// A Renderer draws a Scene through a fixed sequence of
// passes (shadow, G-buffer, screen-space effects,
// deferred lighting, forward transparency and
// post-processing) and presents the result either to a
// window's swapchain or to an offscreen back buffer.
package engine

import (
	"errors"
)

var (
	// ErrInvalidResolution means that a render
	// resolution is too small for the quarter
	// resolution targets.
	ErrInvalidResolution = errors.New("engine: invalid resolution")

	// ErrRendering means that a method that must not
	// be called during Render was called by another
	// goroutine while a frame was being recorded.
	ErrRendering = errors.New("engine: frame in progress")

	// ErrDestroyed means that the Renderer was
	// destroyed.
	ErrDestroyed = errors.New("engine: renderer destroyed")
)
