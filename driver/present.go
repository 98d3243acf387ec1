// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"unsafe"

	"github.com/gogpu/gpucontext"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrSwapchain represents an error related to a specific
// swapchain.
// This error usually indicates that changes to the window or
// compositor made the swapchain unusable.
var ErrSwapchain = errors.New("driver: swapchain-related error")

// ErrNoBackbuffer means that all available backbuffers
// were acquired.
// Backbuffers are released during presentation.
var ErrNoBackbuffer = errors.New("driver: all backbuffers in use")

// Window is the presentation target given to Driver.Open.
// The driver does not interpret it beyond the methods below
// and the optional interfaces that it may implement
// (VulkanSurfacer and NativeWindow).
type Window interface {
	gpucontext.WindowProvider
}

// VulkanSurfacer is implemented by windows that can create
// Vulkan surfaces themselves (e.g., GLFW windows).
type VulkanSurfacer interface {
	// GetRequiredInstanceExtensions returns the instance
	// extensions needed to create surfaces.
	GetRequiredInstanceExtensions() []string

	// CreateWindowSurface creates a surface for the
	// given VkInstance.
	CreateWindowSurface(instance any, allocator unsafe.Pointer) (uintptr, error)
}

// NativeWindow is implemented by windows that expose their
// platform handles (e.g., X11 display and window).
type NativeWindow interface {
	NativeHandles() (display, window uintptr)
}

// Presenter is the interface that a GPU may implement
// to enable presentation on a display.
// Only GPUs opened with a non-nil Config.Window implement
// it.
type Presenter interface {
	// NewSwapchain creates a new swapchain for the
	// window given to Driver.Open.
	// Only one swapchain can exist at a time.
	// If vsync is set, presentation waits for the
	// vertical blank (FIFO). Otherwise the driver
	// prefers mailbox, then immediate, then FIFO.
	NewSwapchain(imageCount int, vsync bool) (Swapchain, error)
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to obtain the index of an
// image view to target, transitions the view to a valid
// layout (e.g., from LUndefined to LColorTarget),
// records commands as needed, transitions the view to
// the LPresent layout, submits these commands (waiting
// on the semaphore given to Next) and then calls Present.
type Swapchain interface {
	Destroyer

	// Views returns the list of image views that
	// comprises the swapchain.
	// This value remains unchanged as long as the
	// swapchain's Destroy or Recreate methods are
	// not called.
	Views() []ImageView

	// Next returns the index of the next writable
	// image view.
	// acquired, if not nil, is signaled when the
	// image is ready to be written.
	Next(acquired Semaphore) (int, error)

	// Present presents the image view identified
	// by index.
	// wait, if not nil, is waited on before the
	// presentation engine reads the image.
	Present(index int, wait Semaphore) error

	// Recreate recreates the swapchain.
	// It is meant to be called in response to a
	// ErrSwapchain error or a window resize.
	Recreate() error

	// Format returns the image views' PixelFmt.
	Format() PixelFmt

	// Size returns the size of the image views.
	Size() (width, height int)
}

// PresentMode is the type of presentation modes.
type PresentMode int

// Presentation modes.
const (
	PFIFO PresentMode = iota
	PMailbox
	PImmediate
)

func (m PresentMode) String() string {
	switch m {
	case PFIFO:
		return "fifo"
	case PMailbox:
		return "mailbox"
	case PImmediate:
		return "immediate"
	}
	return "unknown"
}

// ChoosePresentMode picks a presentation mode among the
// supported ones.
// FIFO is always chosen when vsync is set, and it is the
// fallback otherwise since every implementation supports
// it.
func ChoosePresentMode(supported []PresentMode, vsync bool) PresentMode {
	if vsync {
		return PFIFO
	}
	has := func(m PresentMode) bool {
		for _, x := range supported {
			if x == m {
				return true
			}
		}
		return false
	}
	switch {
	case has(PMailbox):
		return PMailbox
	case has(PImmediate):
		return PImmediate
	}
	return PFIFO
}
