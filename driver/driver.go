// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package driver defines a set of interfaces encompassing
// common GPU functionality.
// It is designed to allow platform-specific APIs to be
// implemented in a mostly straightforward manner, hiding
// differences in resource binding, synchronization and
// command submission behind a single contract.
package driver

import (
	"errors"
	"strings"
	"sync"

	"github.com/gogpu/gpucontext"
)

// Driver is the interface that provides methods for
// loading and unloading an underlying implementation.
type Driver interface {
	// Open initializes the driver.
	// If it succeeds, further calls with the same receiver
	// have no effect and must return the same GPU instance.
	// Callers should assume that Open is not safe for
	// parallel execution.
	Open(cfg *Config) (GPU, error)

	// Name returns the name of the driver.
	// It must not cause the driver to be opened.
	Name() string

	// Close deinitializes the driver.
	// Closing a driver that is not open has no effect.
	// Callers should assume that Close is not safe for
	// parallel execution.
	Close()
}

// Config describes how a driver should be opened.
type Config struct {
	// Window is the presentation target.
	// It may be nil, in which case the GPU will not
	// implement Presenter.
	Window Window

	// Validation requests backend diagnostics
	// (e.g., validation layers).
	// If they are not available, the driver logs
	// ErrNoValidation and continues without them.
	Validation bool

	// Extensions lists additional device extensions
	// that the selected adapter must support.
	// Drivers that have no notion of extensions
	// ignore this field.
	Extensions []string
}

// Registration priority. Drivers not listed here are
// considered after the listed ones, in registration
// order.
var priority = []string{"vulkan", "wgpu"}

// Variables used for driver registration.
var (
	mu       sync.Mutex
	registry = gpucontext.NewRegistry[Driver](gpucontext.WithPriority(priority...))
	names    []string
)

// Drivers returns the registered Drivers.
// Client code imports specific driver packages, and then
// calls this function. As such, drivers that do not
// register themselves on init will not be considered
// for selection.
// The returned slice is sorted by priority.
func Drivers() []Driver {
	mu.Lock()
	defer mu.Unlock()
	drv := make([]Driver, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range priority {
		if registry.Has(n) {
			drv = append(drv, registry.Get(n))
			seen[n] = true
		}
	}
	for _, n := range names {
		if !seen[n] {
			drv = append(drv, registry.Get(n))
		}
	}
	return drv
}

// Register registers a Driver.
// Driver implementations are expected to call Register
// exactly once, from an init function.
// If a driver with the same name has already been
// registered, it will be replaced by drv.
func Register(drv Driver) {
	mu.Lock()
	defer mu.Unlock()
	name := drv.Name()
	if registry.Has(name) {
		Logger().Warn("driver replaced", "driver", name)
	} else {
		names = append(names, name)
		Logger().Debug("driver registered", "driver", name)
	}
	registry.Register(name, func() Driver { return drv })
}

// Lookup returns the registered Drivers whose names
// contain name, in priority order.
// It is case insensitive. If name is the empty string,
// then all registered drivers are returned.
func Lookup(name string) []Driver {
	name = strings.ToLower(name)
	var drv []Driver
	for _, d := range Drivers() {
		if strings.Contains(strings.ToLower(d.Name()), name) {
			drv = append(drv, d)
		}
	}
	return drv
}

// unregister removes a driver from the registry.
// It is only used by tests.
func unregister(name string) {
	mu.Lock()
	defer mu.Unlock()
	registry.Unregister(name)
	for i, n := range names {
		if n == name {
			names = append(names[:i], names[i+1:]...)
			break
		}
	}
}

var errNoDriver = errors.New("driver: no driver found")

// Open opens the first driver that matches name (as per
// Lookup) and that opens successfully.
// It returns the last error if no driver could be opened.
func Open(name string, cfg *Config) (Driver, GPU, error) {
	err := errNoDriver
	for _, d := range Lookup(name) {
		var gpu GPU
		if gpu, err = d.Open(cfg); err != nil {
			Logger().Warn("driver failed to open", "driver", d.Name(), "err", err)
			continue
		}
		return d, gpu, nil
	}
	return nil, nil, err
}
