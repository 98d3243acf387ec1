// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"strings"
)

// ErrNotInstalled means that a platform-specific library
// required for the driver to work is not present in the
// system.
var ErrNotInstalled = errors.New("driver: missing required library")

// ErrNoDevice means that no suitable device could be
// found.
// It is not recoverable.
var ErrNoDevice = errors.New("driver: no suitable device found")

// ErrSurface means that a presentation surface could not
// be created for the given Window.
// It is not recoverable.
var ErrSurface = errors.New("driver: cannot create surface")

// ErrNoValidation means that validation was requested
// but is not available.
// Drivers log this error and proceed without validation.
var ErrNoValidation = errors.New("driver: validation not available")

// ErrNoHostMemory means that host memory could not be
// allocated.
var ErrNoHostMemory = errors.New("driver: out of host memory")

// ErrNoDeviceMemory means that device memory could not
// be allocated.
var ErrNoDeviceMemory = errors.New("driver: out of device memory")

// ErrResource means that a resource could not be created.
var ErrResource = errors.New("driver: resource creation failed")

// ErrCmdAlloc means that a command pool or command buffer
// could not be allocated.
// The frame that needed it must be skipped.
var ErrCmdAlloc = errors.New("driver: command allocation failed")

// ErrMapMisuse means that a buffer was mapped while
// already mapped, or unmapped while not mapped.
var ErrMapMisuse = errors.New("driver: unpaired map/unmap")

// ErrDeviceLost means that the device was lost.
// Everything created from the GPU must be destroyed and
// the driver reopened.
var ErrDeviceLost = errors.New("driver: device lost")

// ErrFatal means that the driver is in an unrecoverable
// state. Upon encountering such an error, the application
// must destroy everything that it created using the
// driver's GPU and then call the Close method. It may call
// Open again to reinitialize the driver for further use.
var ErrFatal = errors.New("driver: fatal error")

// Error describes a failed backend operation.
// Err is one of the sentinel errors defined in this
// package, so errors.Is can be used to classify it.
type Error struct {
	// Op is the backend operation that failed
	// (e.g., "vkCreateSampler").
	Op string
	// Obj identifies the object being operated on.
	Obj string
	// Code is the backend's native result string.
	Code string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("driver: error")
	}
	if e.Op != "" {
		b.WriteString(" (" + e.Op)
		if e.Obj != "" {
			b.WriteString(" " + e.Obj)
		}
		b.WriteByte(')')
	}
	if e.Code != "" {
		b.WriteString(": " + e.Code)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates an *Error.
func NewError(err error, op, obj, code string) *Error {
	return &Error{Op: op, Obj: obj, Code: code, Err: err}
}

// IsDeviceLost returns whether err signals a lost device.
func IsDeviceLost(err error) bool { return errors.Is(err, ErrDeviceLost) }
