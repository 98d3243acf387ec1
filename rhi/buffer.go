// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"fmt"

	"gviegas/rend3/driver"
)

// buffer is the host-visible buffer shared by every
// buffer resource.
type buffer struct {
	base
	h      Handle[driver.Buffer]
	size   int64
	usg    driver.Usage
	mapped bool
}

func (b *buffer) create() error {
	g, err := b.gpu("NewBuffer")
	if err != nil {
		return b.fail("NewBuffer", err)
	}
	buf, err := g.NewBuffer(b.size, true, b.usg)
	if err != nil {
		return b.fail("NewBuffer", err)
	}
	b.h = newHandle(b.dev, buf)
	b.err = nil
	b.dev.log.Debug("rhi: buffer created", "obj", b.name, "size", b.size)
	return nil
}

func (b *buffer) release() {
	if buf := b.h.take(); buf != nil {
		if b.mapped {
			// Unmap before the memory goes away.
			_ = buf.Unmap()
			b.mapped = false
		}
		buf.Destroy()
	}
}

// native returns the driver buffer if b is usable.
func (b *buffer) native(op string) (driver.Buffer, error) {
	if !b.IsValid() {
		return nil, b.refuse(op)
	}
	buf, ok := b.h.Get(b.dev)
	if !ok {
		return nil, b.refuse(op)
	}
	return buf, nil
}

// write copies data to the start of the buffer.
func (b *buffer) write(op string, data []byte) error {
	buf, err := b.native(op)
	if err != nil {
		return err
	}
	if int64(len(data)) > b.size {
		return b.misuse(op, fmt.Errorf("%w: %d bytes exceed size %d", driver.ErrResource, len(data), b.size))
	}
	if b.mapped {
		return b.misuse(op, fmt.Errorf("%w: buffer is mapped", driver.ErrMapMisuse))
	}
	p, err := buf.Map()
	if err != nil {
		return b.misuse(op, err)
	}
	copy(p, data)
	return b.dev.check(buf.Unmap())
}

// Size returns the size of the buffer in bytes.
func (b *buffer) Size() int64 { return b.size }

// Buffer returns the driver buffer.
// It returns nil if the buffer is not valid.
func (b *buffer) Buffer() driver.Buffer {
	buf, err := b.native("Buffer")
	if err != nil {
		return nil
	}
	return buf
}

// ConstantBuffer is a host-visible buffer of shader
// constants.
// Map and Unmap must be called in pairs.
type ConstantBuffer struct{ buffer }

// NewConstantBuffer creates a new constant buffer.
// It never returns nil. On failure the buffer is left
// in the failed state and the error is logged.
func NewConstantBuffer(dev *Device, size int64) *ConstantBuffer {
	b := &ConstantBuffer{buffer{size: size, usg: driver.UShaderConst | driver.UCopyDst}}
	b.init(dev, "constant buffer", b)
	if b.err == nil {
		if size <= 0 {
			b.fail("NewConstantBuffer", fmt.Errorf("%w: invalid size %d", driver.ErrResource, size))
		} else {
			b.create()
		}
	}
	return b
}

// SetName sets the name used in logs.
func (b *ConstantBuffer) SetName(name string) *ConstantBuffer {
	b.name = name
	return b
}

// Map maps the buffer and returns the CPU-writable
// memory. It returns nil on failure, in which case
// the reason is logged.
// Mapping an already mapped buffer fails with
// driver.ErrMapMisuse.
func (b *ConstantBuffer) Map() []byte {
	buf, err := b.native("Map")
	if err != nil {
		return nil
	}
	if b.mapped {
		b.misuse("Map", fmt.Errorf("%w: already mapped", driver.ErrMapMisuse))
		return nil
	}
	p, err := buf.Map()
	if err != nil {
		b.misuse("Map", err)
		return nil
	}
	b.mapped = true
	return p[:b.size]
}

// Unmap flushes host writes and releases the mapping.
// It returns false on failure, in which case the reason
// is logged.
// Unmapping a buffer that is not mapped fails with
// driver.ErrMapMisuse.
func (b *ConstantBuffer) Unmap() bool {
	buf, err := b.native("Unmap")
	if err != nil {
		return false
	}
	if !b.mapped {
		b.misuse("Unmap", fmt.Errorf("%w: not mapped", driver.ErrMapMisuse))
		return false
	}
	b.mapped = false
	if err := buf.Unmap(); err != nil {
		b.misuse("Unmap", err)
		return false
	}
	return true
}

// IsMapped returns whether the buffer is mapped.
func (b *ConstantBuffer) IsMapped() bool { return b.mapped }

// Write copies data to the start of the buffer.
// The buffer must not be mapped.
func (b *ConstantBuffer) Write(data []byte) bool { return b.write("Write", data) == nil }

// rebuild destroys the previous native buffer first.
func (b *ConstantBuffer) rebuild() error {
	b.release()
	return b.create()
}

// IsValid returns whether the buffer was successfully
// created and not yet destroyed.
// A nil buffer is invalid.
func (b *ConstantBuffer) IsValid() bool { return b != nil && b.base.IsValid() }

// Destroy destroys the buffer.
// A mapped buffer is unmapped first.
func (b *ConstantBuffer) Destroy() { b.destroy(b.release) }

// VertexBuffer is a buffer of interleaved vertex data.
type VertexBuffer struct {
	buffer
	stride int
	data   []byte
}

// NewVertexBuffer creates a new vertex buffer holding
// data.
// It never returns nil. On failure the buffer is left
// in the failed state and the error is logged.
func NewVertexBuffer(dev *Device, data []byte, stride int) *VertexBuffer {
	b := &VertexBuffer{
		buffer: buffer{size: int64(len(data)), usg: driver.UVertexData | driver.UCopyDst},
		stride: stride,
		data:   append([]byte(nil), data...),
	}
	b.init(dev, "vertex buffer", b)
	if b.err == nil {
		if len(data) == 0 || stride <= 0 || len(data)%stride != 0 {
			b.fail("NewVertexBuffer", fmt.Errorf("%w: invalid data (%d bytes, stride %d)", driver.ErrResource, len(data), stride))
		} else if b.create() == nil {
			b.write("NewVertexBuffer", data)
		}
	}
	return b
}

// SetName sets the name used in logs.
func (b *VertexBuffer) SetName(name string) *VertexBuffer {
	b.name = name
	return b
}

// Stride returns the size of a vertex in bytes.
func (b *VertexBuffer) Stride() int { return b.stride }

// Count returns the number of vertices.
func (b *VertexBuffer) Count() int { return len(b.data) / max(b.stride, 1) }

// Update replaces the contents of the buffer.
// The native buffer grows as needed.
func (b *VertexBuffer) Update(data []byte) bool {
	if _, err := b.native("Update"); err != nil {
		return false
	}
	if len(data)%b.stride != 0 {
		b.misuse("Update", fmt.Errorf("%w: %d bytes is not a multiple of stride %d", driver.ErrResource, len(data), b.stride))
		return false
	}
	b.data = append(b.data[:0], data...)
	if int64(len(data)) > b.size {
		b.release()
		b.size = max(int64(len(data)), 2*b.size)
		if b.create() != nil {
			return false
		}
	}
	return b.write("Update", data) == nil
}

func (b *VertexBuffer) rebuild() error {
	b.release()
	if err := b.create(); err != nil {
		return err
	}
	return b.write("rebuild", b.data)
}

// IsValid is like ConstantBuffer.IsValid.
func (b *VertexBuffer) IsValid() bool { return b != nil && b.base.IsValid() }

// Destroy destroys the buffer.
func (b *VertexBuffer) Destroy() { b.destroy(b.release) }

// IndexBuffer is a buffer of vertex indices.
type IndexBuffer struct {
	buffer
	format driver.IndexFmt
	data   []byte
}

// NewIndexBuffer creates a new index buffer holding
// data.
// It never returns nil. On failure the buffer is left
// in the failed state and the error is logged.
func NewIndexBuffer(dev *Device, data []byte, format driver.IndexFmt) *IndexBuffer {
	b := &IndexBuffer{
		buffer: buffer{size: int64(len(data)), usg: driver.UIndexData | driver.UCopyDst},
		format: format,
		data:   append([]byte(nil), data...),
	}
	b.init(dev, "index buffer", b)
	if b.err == nil {
		switch {
		case format != driver.Index16 && format != driver.Index32:
			b.fail("NewIndexBuffer", fmt.Errorf("%w: invalid index format %d", driver.ErrResource, format))
		case len(data) == 0 || len(data)%int(format) != 0:
			b.fail("NewIndexBuffer", fmt.Errorf("%w: invalid data (%d bytes)", driver.ErrResource, len(data)))
		default:
			if b.create() == nil {
				b.write("NewIndexBuffer", data)
			}
		}
	}
	return b
}

// SetName sets the name used in logs.
func (b *IndexBuffer) SetName(name string) *IndexBuffer {
	b.name = name
	return b
}

// Format returns the index format.
func (b *IndexBuffer) Format() driver.IndexFmt { return b.format }

// Count returns the number of indices.
func (b *IndexBuffer) Count() int { return len(b.data) / int(b.format) }

func (b *IndexBuffer) rebuild() error {
	b.release()
	if err := b.create(); err != nil {
		return err
	}
	return b.write("rebuild", b.data)
}

// Destroy destroys the buffer.
func (b *IndexBuffer) Destroy() { b.destroy(b.release) }

// IsValid is like ConstantBuffer.IsValid.
func (b *IndexBuffer) IsValid() bool { return b != nil && b.base.IsValid() }
