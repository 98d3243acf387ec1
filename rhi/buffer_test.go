// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
	"gviegas/rend3/driver/drivertest"
)

func TestConstantBufferMap(t *testing.T) {
	dev, _ := openTest(t, nil)
	for _, size := range []int64{16, 256, 4096} {
		b := NewConstantBuffer(dev, size)
		require.True(t, b.IsValid())

		p := b.Map()
		require.NotNil(t, p, "Map on a fresh buffer")
		assert.Len(t, p, int(size))
		assert.True(t, b.IsMapped())
		binary.LittleEndian.PutUint32(p, 0xcafe)
		assert.True(t, b.Unmap(), "Unmap after Map")
		assert.False(t, b.IsMapped())

		data := b.Buffer().(*drivertest.Buffer).Bytes()
		assert.Equal(t, uint32(0xcafe), binary.LittleEndian.Uint32(data))
		b.Destroy()
	}
}

func TestConstantBufferMisuse(t *testing.T) {
	dev, _ := openTest(t, nil)
	b := NewConstantBuffer(dev, 64)
	defer b.Destroy()

	assert.NotPanics(t, func() { assert.False(t, b.Unmap()) })
	assert.True(t, b.IsValid(), "misuse must not fail the buffer")

	require.NotNil(t, b.Map())
	assert.Nil(t, b.Map(), "Map while mapped")
	assert.False(t, b.Write([]byte{1}), "Write while mapped")
	assert.True(t, b.Unmap())
	assert.False(t, b.Unmap())

	assert.True(t, b.Write([]byte{1, 2, 3}))
	assert.False(t, b.Write(make([]byte, 65)))
}

func TestBufferNil(t *testing.T) {
	var (
		cb *ConstantBuffer
		vb *VertexBuffer
		ib *IndexBuffer
		tx *Texture
	)
	assert.NotPanics(t, func() {
		assert.False(t, cb.IsValid())
		assert.False(t, vb.IsValid())
		assert.False(t, ib.IsValid())
		assert.False(t, tx.IsValid())
	})
}

func TestConstantBufferInvalid(t *testing.T) {
	dev, _ := openTest(t, nil)
	b := NewConstantBuffer(dev, 0)
	defer b.Destroy()
	assert.False(t, b.IsValid())
	assert.ErrorIs(t, b.Err(), driver.ErrResource)
	assert.Nil(t, b.Map())
	assert.False(t, b.Unmap())
	assert.Nil(t, b.Buffer())
}

func TestConstantBufferDestroyMapped(t *testing.T) {
	dev, drv := openTest(t, nil)
	b := NewConstantBuffer(dev, 64)
	require.NotNil(t, b.Map())
	n := drv.GPU().Calls("Unmap")
	b.Destroy()
	assert.Equal(t, n+1, drv.GPU().Calls("Unmap"))
	assert.False(t, b.IsValid())
	assert.Nil(t, b.Map())
}

func TestVertexBuffer(t *testing.T) {
	dev, _ := openTest(t, nil)
	data := make([]byte, 3*32)
	data[0] = 7
	b := NewVertexBuffer(dev, data, 32)
	defer b.Destroy()
	require.True(t, b.IsValid())
	assert.Equal(t, 3, b.Count())
	assert.Equal(t, 32, b.Stride())
	assert.Equal(t, byte(7), b.Buffer().(*drivertest.Buffer).Bytes()[0])

	// Growing replaces the native buffer.
	old := b.Buffer()
	big := make([]byte, 10*32)
	big[32] = 9
	assert.True(t, b.Update(big))
	assert.Equal(t, 10, b.Count())
	assert.NotSame(t, old, b.Buffer())
	assert.Equal(t, byte(9), b.Buffer().(*drivertest.Buffer).Bytes()[32])

	assert.False(t, b.Update(make([]byte, 33)))

	bad := NewVertexBuffer(dev, make([]byte, 33), 32)
	defer bad.Destroy()
	assert.False(t, bad.IsValid())
}

func TestIndexBuffer(t *testing.T) {
	dev, _ := openTest(t, nil)
	b := NewIndexBuffer(dev, make([]byte, 12), driver.Index16)
	defer b.Destroy()
	require.True(t, b.IsValid())
	assert.Equal(t, 6, b.Count())
	assert.Equal(t, driver.Index16, b.Format())

	for _, x := range []struct {
		n   int
		fmt driver.IndexFmt
	}{
		{6, 3},
		{6, driver.Index32},
		{0, driver.Index16},
	} {
		b := NewIndexBuffer(dev, make([]byte, x.n), x.fmt)
		assert.False(t, b.IsValid(), "NewIndexBuffer(%d bytes, %d)", x.n, x.fmt)
		b.Destroy()
	}
}
