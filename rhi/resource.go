// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"errors"
	"fmt"
	"sync"

	"gviegas/rend3/driver"
)

var errInvalid = errors.New("rhi: invalid resource")

// base is embedded in every resource.
// It holds the device reference, the registry slot and
// the failure state.
type base struct {
	dev  *Device
	name string
	slot int
	err  error
	once sync.Once
}

// init registers the resource with dev.
// r must be the value that embeds b.
func (b *base) init(dev *Device, name string, r ...resource) {
	b.dev = dev
	b.name = name
	b.slot = -1
	if dev == nil {
		b.err = fmt.Errorf("%w: nil device", driver.ErrResource)
		return
	}
	if dev.closing.Load() {
		b.err = errClosed
		dev.log.Error("rhi: resource creation failed", "obj", name, "err", b.err)
		return
	}
	if len(r) > 0 {
		b.slot = dev.register(r[0])
	}
}

func (b *base) label() string { return b.name }

// Name returns the name of the resource.
func (b *base) Name() string { return b.name }

// IsValid returns whether the resource was successfully
// created and not yet destroyed.
func (b *base) IsValid() bool { return b.err == nil && b.dev != nil }

// Err returns the error that caused the resource to
// fail, if any.
func (b *base) Err() error {
	if b.dev == nil && b.err == nil {
		return errInvalid
	}
	return b.err
}

// fail puts the resource in the failed state.
// It logs err and returns it.
func (b *base) fail(op string, err error) error {
	if !errors.Is(err, driver.ErrResource) && !errors.Is(err, driver.ErrDeviceLost) &&
		!errors.Is(err, driver.ErrNoDeviceMemory) && !errors.Is(err, driver.ErrNoHostMemory) {
		err = fmt.Errorf("%w: %w", driver.ErrResource, err)
	}
	b.err = err
	if b.dev != nil {
		b.dev.check(err)
		b.dev.log.Error("rhi: resource creation failed", "op", op, "obj", b.name, "err", err)
	}
	return err
}

// refuse logs an operation attempted on an invalid
// resource and returns the reason.
func (b *base) refuse(op string) error {
	err := b.Err()
	if err == nil {
		err = errInvalid
	}
	if b.dev != nil {
		b.dev.log.Warn("rhi: operation on invalid resource", "op", op, "obj", b.name, "err", err)
	} else {
		driver.Logger().Warn("rhi: operation on invalid resource", "op", op, "obj", b.name, "err", err)
	}
	return err
}

// misuse logs a refused operation on a valid resource.
func (b *base) misuse(op string, err error) error {
	b.dev.check(err)
	b.dev.log.Warn("rhi: operation refused", "op", op, "obj", b.name, "err", err)
	return err
}

// gpu returns the device's GPU.
func (b *base) gpu(op string) (driver.GPU, error) { return b.dev.gpuFor(op) }

// destroy runs teardown exactly once and then releases
// the device reference.
func (b *base) destroy(teardown func()) {
	b.once.Do(func() {
		if b.dev == nil {
			return
		}
		teardown()
		if b.slot >= 0 {
			b.dev.unregister(b.slot)
		}
		b.dev = nil
		if b.err == nil {
			b.err = errInvalid
		}
	})
}
