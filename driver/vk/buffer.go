// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// buffer implements driver.Buffer.
type buffer struct {
	m    *memory
	buf  vk.Buffer
	size int64
	p    []byte
}

// NewBuffer creates a new buffer.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, driver.NewError(driver.ErrResource, "vkCreateBuffer", "", fmt.Sprintf("invalid size %d", size))
	}
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       convBufUsage(usg),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if err := checkResult(vk.CreateBuffer(g.dev, &info, nil, &buf), "vkCreateBuffer", ""); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(g.dev, buf, &req)
	req.Deref()
	m, err := g.newMemory(req, visible, "buffer")
	if err != nil {
		vk.DestroyBuffer(g.dev, buf, nil)
		return nil, err
	}
	if err := checkResult(vk.BindBufferMemory(g.dev, buf, m.mem, 0), "vkBindBufferMemory", ""); err != nil {
		m.free()
		vk.DestroyBuffer(g.dev, buf, nil)
		return nil, err
	}
	return &buffer{m: m, buf: buf, size: size}, nil
}

// Visible returns whether the buffer is host visible.
func (b *buffer) Visible() bool { return b.m.vis }

// Cap returns the capacity of the buffer in bytes.
func (b *buffer) Cap() int64 { return b.size }

// Map maps the buffer's memory.
func (b *buffer) Map() ([]byte, error) {
	switch {
	case !b.m.vis:
		return nil, driver.NewError(driver.ErrMapMisuse, "vkMapMemory", "", "buffer not host visible")
	case b.p != nil:
		return nil, driver.NewError(driver.ErrMapMisuse, "vkMapMemory", "", "already mapped")
	}
	var p unsafe.Pointer
	if err := checkResult(vk.MapMemory(b.m.g.dev, b.m.mem, 0, vk.DeviceSize(b.size), 0, &p), "vkMapMemory", ""); err != nil {
		return nil, err
	}
	b.p = unsafe.Slice((*byte)(p), b.size)
	return b.p, nil
}

// Unmap unmaps the buffer's memory.
// The memory is host coherent, so writes need no flush.
func (b *buffer) Unmap() error {
	if b.p == nil {
		return driver.NewError(driver.ErrMapMisuse, "vkUnmapMemory", "", "not mapped")
	}
	vk.UnmapMemory(b.m.g.dev, b.m.mem)
	b.p = nil
	return nil
}

// Destroy destroys the buffer.
// Mapped memory is unmapped, then freed, and only then
// the buffer handle is released.
func (b *buffer) Destroy() {
	if b == nil || b.m == nil {
		return
	}
	dev := b.m.g.dev
	if b.p != nil {
		vk.UnmapMemory(dev, b.m.mem)
		b.p = nil
	}
	b.m.free()
	vk.DestroyBuffer(dev, b.buf, nil)
	*b = buffer{}
}
