// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package layout

import (
	"unsafe"

	"gviegas/rend3/driver"
	"gviegas/rend3/rhi"
)

// Constant buffer ranges are aligned to this many bytes.
const BlockSize = 256

// Number of blocks consumed by each layout.
const (
	globalSpan = (int(unsafe.Sizeof(GlobalLayout{})) + BlockSize - 1) / BlockSize
	drawSpan   = (int(unsafe.Sizeof(DrawLayout{})) + BlockSize - 1) / BlockSize
)

// Constant buffer slots.
const (
	GlobalSlot = 0
	LocalSlot  = 1
)

// Table sub-allocates shader constants from a single
// rhi.ConstantBuffer.
// The GlobalLayout is always at the start of the buffer.
// Every other layout (DrawLayout, LightLayout or
// PassLayout) occupies one block, handed out in order by
// Alloc. One extra block at the end of the buffer is
// shared by every allocation that does not fit.
// Table is not safe for concurrent use.
type Table struct {
	buf  *rhi.ConstantBuffer
	n    int
	next int
	// Mapped memory.
	// It is nil outside of Begin/End.
	cs []byte
}

// NewTable creates a new Table with room for n
// per-draw blocks.
func NewTable(dev *rhi.Device, n int) *Table {
	if n < 0 {
		panic("constant table allocation with negative count")
	}
	buf := NewBuffer(dev, n)
	return &Table{buf: buf, n: n, next: globalSpan}
}

// NewBuffer creates a constant buffer large enough for
// the GlobalLayout, n blocks and the overflow block.
func NewBuffer(dev *rhi.Device, n int) *rhi.ConstantBuffer {
	return rhi.NewConstantBuffer(dev, int64((globalSpan+n+drawSpan)*BlockSize)).SetName("constants")
}

// IsValid returns whether the underlying buffer is valid.
func (t *Table) IsValid() bool { return t.buf.IsValid() }

// Cap returns the number of per-draw blocks.
func (t *Table) Cap() int { return t.n }

// Len returns the number of blocks allocated since the
// last call to Begin.
func (t *Table) Len() int { return t.next - globalSpan }

// Begin maps the buffer and discards every allocation.
// It returns false if the buffer could not be mapped.
func (t *Table) Begin() bool {
	if t.cs != nil {
		return true
	}
	t.cs = t.buf.Map()
	t.next = globalSpan
	return t.cs != nil
}

// End unmaps the buffer.
// Pointers returned by Global, Draw, Light and Pass are
// invalid after this call.
func (t *Table) End() {
	if t.cs != nil {
		t.buf.Unmap()
		t.cs = nil
	}
}

// Alloc allocates a block.
// If the table is full, it returns the overflow block
// and false. The overflow block can be written and bound
// like any other, but its contents are only meaningful
// until the next overflowing Alloc.
func (t *Table) Alloc() (int, bool) {
	if t.next-globalSpan+drawSpan > t.n {
		return globalSpan + t.n, false
	}
	blk := t.next
	t.next += drawSpan
	return blk, true
}

func (t *Table) ptr(blk int) unsafe.Pointer {
	if t.cs == nil {
		panic("constant table not mapped")
	}
	if blk != 0 && (blk < globalSpan || blk >= globalSpan+t.n+drawSpan) {
		panic("constant table block out of bounds")
	}
	return unsafe.Pointer(unsafe.SliceData(t.cs[blk*BlockSize:]))
}

// Global returns a pointer to the mapped GlobalLayout.
func (t *Table) Global() *GlobalLayout { return (*GlobalLayout)(t.ptr(0)) }

// Draw returns a pointer to the mapped DrawLayout of
// block blk.
func (t *Table) Draw(blk int) *DrawLayout { return (*DrawLayout)(t.ptr(blk)) }

// Light returns a pointer to the mapped LightLayout of
// block blk.
func (t *Table) Light(blk int) *LightLayout { return (*LightLayout)(t.ptr(blk)) }

// Pass returns a pointer to the mapped PassLayout of
// block blk.
func (t *Table) Pass(blk int) *PassLayout { return (*PassLayout)(t.ptr(blk)) }

// BindGlobal binds the GlobalLayout to GlobalSlot.
func (t *Table) BindGlobal(cb driver.CmdBuffer) {
	cb.SetConstBuf(GlobalSlot, t.buf.Buffer(), 0, int64(globalSpan*BlockSize))
}

// Bind binds block blk to LocalSlot.
func (t *Table) Bind(cb driver.CmdBuffer, blk int) {
	cb.SetConstBuf(LocalSlot, t.buf.Buffer(), int64(blk*BlockSize), BlockSize)
}

// Grow replaces the buffer with one that holds n blocks.
// It must not be called while mapped, nor while the GPU
// may read the current buffer.
func (t *Table) Grow(dev *rhi.Device, n int) bool {
	if t.cs != nil {
		panic("constant table grown while mapped")
	}
	if n <= t.n {
		return true
	}
	buf := NewBuffer(dev, n)
	if !buf.IsValid() {
		buf.Destroy()
		return false
	}
	t.buf.Destroy()
	t.buf = buf
	t.n = n
	return true
}

// Destroy destroys the underlying buffer.
func (t *Table) Destroy() {
	t.End()
	t.buf.Destroy()
}
