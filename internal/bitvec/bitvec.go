// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package bitvec implements growable bit vectors used as
// slot allocators.
package bitvec

import (
	"iter"
	"math/bits"
	"unsafe"
)

// Uint is the word type of a bit vector.
type Uint interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint | ~uintptr
}

// V is a growable bit vector.
// The zero value is an empty vector.
type V[T Uint] struct {
	w   []T
	set int
}

func wordBits[T Uint]() int { return int(unsafe.Sizeof(T(0))) * 8 }

func locate[T Uint](index int) (word int, mask T) {
	n := wordBits[T]()
	return index / n, T(1) << (index % n)
}

// Len returns the number of bits in v.
func (v *V[T]) Len() int { return len(v.w) * wordBits[T]() }

// Count returns the number of set bits in v.
func (v *V[T]) Count() int { return v.set }

// Grow appends n unset words to v.
// It returns the index of the first new bit.
func (v *V[T]) Grow(n int) int {
	i := v.Len()
	if n > 0 {
		v.w = append(v.w, make([]T, n)...)
	}
	return i
}

// Set sets the bit at index.
func (v *V[T]) Set(index int) {
	i, m := locate[T](index)
	if v.w[i]&m == 0 {
		v.w[i] |= m
		v.set++
	}
}

// Unset unsets the bit at index.
func (v *V[T]) Unset(index int) {
	i, m := locate[T](index)
	if v.w[i]&m != 0 {
		v.w[i] &^= m
		v.set--
	}
}

// IsSet returns whether the bit at index is set.
// Indices past the end of v are unset.
func (v *V[T]) IsSet(index int) bool {
	if index < 0 || index >= v.Len() {
		return false
	}
	i, m := locate[T](index)
	return v.w[i]&m != 0
}

// Search returns the lowest unset bit.
// It fails if every bit is set.
func (v *V[T]) Search() (index int, ok bool) {
	if v.set == v.Len() {
		return 0, false
	}
	for i, x := range v.w {
		if x != ^T(0) {
			return i*wordBits[T]() + bits.TrailingZeros64(uint64(^x)), true
		}
	}
	return 0, false
}

// Alloc sets the lowest unset bit and returns its index.
// v grows by one word if it is full.
func (v *V[T]) Alloc() int {
	i, ok := v.Search()
	if !ok {
		i = v.Grow(1)
	}
	v.Set(i)
	return i
}

// Ones returns an iterator over the indices of the set
// bits, in increasing order.
func (v *V[T]) Ones() iter.Seq[int] {
	return func(yield func(int) bool) {
		n := wordBits[T]()
		for i, x := range v.w {
			for x != 0 {
				b := bits.TrailingZeros64(uint64(x))
				if !yield(i*n + b) {
					return
				}
				x &= x - 1
			}
		}
	}
}
