// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"unsafe"

	"gviegas/rend3/driver"
	"gviegas/rend3/linear"
	"gviegas/rend3/rhi"
)

// Vertex is the vertex format of every Mesh.
type Vertex struct {
	Pos    linear.V3
	Normal linear.V3
	UV     [2]float32
}

const vertexStride = int(unsafe.Sizeof(Vertex{}))

// Mesh is an indexed triangle list.
type Mesh struct {
	name   string
	vb     *rhi.VertexBuffer
	ib     *rhi.IndexBuffer
	bounds linear.AABB
}

// NewMesh creates a new mesh.
// Every index must refer to an element of verts.
func NewMesh(dev *rhi.Device, name string, verts []Vertex, indices []uint32) (*Mesh, error) {
	if len(verts) == 0 || len(indices) == 0 || len(indices)%3 != 0 {
		return nil, errors.New("engine: mesh requires a triangle list")
	}
	for _, i := range indices {
		if int(i) >= len(verts) {
			return nil, errors.New("engine: mesh index out of range")
		}
	}
	m := &Mesh{name: name, bounds: linear.EmptyAABB()}
	for i := range verts {
		m.bounds.Extend(&verts[i].Pos)
	}
	vdata := unsafe.Slice((*byte)(unsafe.Pointer(&verts[0])), len(verts)*vertexStride)
	m.vb = rhi.NewVertexBuffer(dev, vdata, vertexStride).SetName(name + ".vertex")
	if len(verts) <= 1<<16 {
		idx := make([]uint16, len(indices))
		for i, x := range indices {
			idx[i] = uint16(x)
		}
		// Index data must be a multiple of 4 bytes.
		if len(idx)%2 != 0 {
			idx = append(idx, 0)
		}
		idata := unsafe.Slice((*byte)(unsafe.Pointer(&idx[0])), len(idx)*2)
		m.ib = rhi.NewIndexBuffer(dev, idata, driver.Index16).SetName(name + ".index")
	} else {
		idata := unsafe.Slice((*byte)(unsafe.Pointer(&indices[0])), len(indices)*4)
		m.ib = rhi.NewIndexBuffer(dev, idata, driver.Index32).SetName(name + ".index")
	}
	if !m.vb.IsValid() || !m.ib.IsValid() {
		err := errors.Join(m.vb.Err(), m.ib.Err())
		m.Destroy()
		return nil, err
	}
	return m, nil
}

// Name returns the name given to NewMesh.
func (m *Mesh) Name() string { return m.name }

// Bounds returns the bounding box of m in model space.
func (m *Mesh) Bounds() linear.AABB { return m.bounds }

// Count returns the number of indices of m.
// It does not include the padding index of odd-sized
// 16-bit index buffers.
func (m *Mesh) Count() int {
	if m.ib == nil {
		return 0
	}
	n := m.ib.Count()
	if m.ib.Format() == driver.Index16 && n%3 != 0 {
		n--
	}
	return n
}

// draw records the draw of m in cb.
func (m *Mesh) draw(cb driver.CmdBuffer) {
	cb.SetVertexBuf(m.vb.Buffer(), 0)
	cb.SetIndexBuf(m.ib.Format(), m.ib.Buffer(), 0)
	cb.DrawIndexed(m.Count(), 1, 0, 0, 0)
}

// IsValid returns whether m can be drawn.
// A destroyed mesh is invalid.
func (m *Mesh) IsValid() bool {
	return m != nil && m.vb != nil && m.ib != nil && m.vb.IsValid() && m.ib.IsValid()
}

// Destroy destroys m.
func (m *Mesh) Destroy() {
	if m.vb != nil {
		m.vb.Destroy()
	}
	if m.ib != nil {
		m.ib.Destroy()
	}
	*m = Mesh{}
}

// NewCube creates an axis-aligned cube centered at the
// origin.
func NewCube(dev *rhi.Device, size float32) (*Mesh, error) {
	h := size / 2
	faces := [6]struct{ n, u, v linear.V3 }{
		{linear.V3{1, 0, 0}, linear.V3{0, 0, -1}, linear.V3{0, 1, 0}},
		{linear.V3{-1, 0, 0}, linear.V3{0, 0, 1}, linear.V3{0, 1, 0}},
		{linear.V3{0, 1, 0}, linear.V3{1, 0, 0}, linear.V3{0, 0, -1}},
		{linear.V3{0, -1, 0}, linear.V3{1, 0, 0}, linear.V3{0, 0, 1}},
		{linear.V3{0, 0, 1}, linear.V3{1, 0, 0}, linear.V3{0, 1, 0}},
		{linear.V3{0, 0, -1}, linear.V3{-1, 0, 0}, linear.V3{0, 1, 0}},
	}
	verts := make([]Vertex, 0, 24)
	indices := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(verts))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			var p, u, v linear.V3
			p.Scale(h, &f.n)
			u.Scale(c[0]*h, &f.u)
			v.Scale(c[1]*h, &f.v)
			p.Add(&p, &u)
			p.Add(&p, &v)
			verts = append(verts, Vertex{
				Pos:    p,
				Normal: f.n,
				UV:     [2]float32{c[0]*0.5 + 0.5, 0.5 - c[1]*0.5},
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return NewMesh(dev, "cube", verts, indices)
}

// NewPlane creates a square on the XZ plane, centered at
// the origin and facing +Y.
func NewPlane(dev *rhi.Device, size float32) (*Mesh, error) {
	h := size / 2
	n := linear.V3{0, 1, 0}
	verts := []Vertex{
		{linear.V3{-h, 0, h}, n, [2]float32{0, 1}},
		{linear.V3{h, 0, h}, n, [2]float32{1, 1}},
		{linear.V3{h, 0, -h}, n, [2]float32{1, 0}},
		{linear.V3{-h, 0, -h}, n, [2]float32{0, 0}},
	}
	return NewMesh(dev, "plane", verts, []uint32{0, 1, 2, 0, 2, 3})
}
