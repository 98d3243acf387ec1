// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

// Handle is a native object tagged with the backend and
// the device generation that created it.
// Get refuses handles from another backend or from a
// previous generation, so objects of one backend can
// never reach another, and objects of a lost device are
// never used after Recreate.
type Handle[T comparable] struct {
	backend string
	gen     uint64
	obj     T
}

func newHandle[T comparable](d *Device, obj T) Handle[T] {
	return Handle[T]{backend: d.Backend(), gen: d.Generation(), obj: obj}
}

// Get returns the native object if h belongs to d.
func (h Handle[T]) Get(d *Device) (obj T, ok bool) {
	if h.IsZero() || h.backend != d.Backend() || h.gen != d.Generation() {
		return
	}
	return h.obj, true
}

// IsZero returns whether h holds no object.
func (h Handle[T]) IsZero() bool {
	var zero T
	return h.obj == zero
}

// Backend returns the backend tag.
func (h Handle[_]) Backend() string { return h.backend }

// take returns the object and clears h.
// It is used when destroying the object.
func (h *Handle[T]) take() T {
	obj := h.obj
	*h = Handle[T]{}
	return obj
}
