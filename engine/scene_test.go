// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gviegas/rend3/linear"
)

func TestNewMesh(t *testing.T) {
	dev, _ := openTest(t, nil)

	verts := []Vertex{{Pos: linear.V3{0, 0, 0}}, {Pos: linear.V3{1, 0, 0}}, {Pos: linear.V3{0, 2, -1}}}
	for _, x := range []struct {
		verts []Vertex
		idx   []uint32
	}{
		{nil, []uint32{0, 1, 2}},
		{verts, nil},
		{verts, []uint32{0, 1}},
		{verts, []uint32{0, 1, 3}},
	} {
		m, err := NewMesh(dev, "bad", x.verts, x.idx)
		assert.Error(t, err)
		assert.Nil(t, m)
	}

	m, err := NewMesh(dev, "tri", verts, []uint32{0, 1, 2})
	require.NoError(t, err)
	assert.True(t, m.IsValid())
	assert.Equal(t, "tri", m.Name())
	assert.Equal(t, 3, m.Count())
	b := m.Bounds()
	assert.Equal(t, linear.V3{0, 0, -1}, b.Min)
	assert.Equal(t, linear.V3{1, 2, 0}, b.Max)
	m.Destroy()
	assert.False(t, m.IsValid())
	assert.Zero(t, m.Count())
	var nilMesh *Mesh
	assert.False(t, nilMesh.IsValid())

	cube, err := NewCube(dev, 2)
	require.NoError(t, err)
	defer cube.Destroy()
	assert.Equal(t, 36, cube.Count())
	b = cube.Bounds()
	assert.Equal(t, linear.V3{-1, -1, -1}, b.Min)
	assert.Equal(t, linear.V3{1, 1, 1}, b.Max)

	plane, err := NewPlane(dev, 4)
	require.NoError(t, err)
	defer plane.Destroy()
	assert.Equal(t, 6, plane.Count())
	b = plane.Bounds()
	assert.Equal(t, float32(-2), b.Min[0])
	assert.Equal(t, float32(2), b.Max[2])
}

func TestGather(t *testing.T) {
	dev, _ := openTest(t, nil)
	cube, err := NewCube(dev, 1)
	require.NoError(t, err)
	defer cube.Destroy()

	sc := NewScene()
	var models [3]Model
	for i := range models {
		models[i].Mesh = cube
	}
	glass := DefaultMaterial()
	glass.Transparent = true
	var glasses [2]Model
	for i := range glasses {
		glasses[i] = Model{Mesh: cube, Material: &glass}
	}
	addNode(sc.Root, &models[0], 0, 0, -8)
	addNode(sc.Root, &models[1], 0, 0, -2)
	addNode(sc.Root, &models[2], 0, 0, 10)
	addNode(sc.Root, &glasses[0], 1, 0, -3)
	addNode(sc.Root, &glasses[1], 1, 0, -9)
	plain := (&DistantLight{Direction: linear.V3{0, -1, 0}, Intensity: 1}).Light()
	sun := (&DistantLight{Direction: linear.V3{0, -1, 0}, Intensity: 1, Shadow: true}).Light()
	addNode(sc.Root, &plain, 0, 0, 0)
	addNode(sc.Root, &sun, 0, 0, 0)
	cam := DefaultCamera()
	addNode(sc.Root, &cam, 0, 0, 0)

	var rend renderables
	n := rend.findCamera(sc)
	require.NotNil(t, n)
	assert.Same(t, &cam, n.Value)

	var v view
	v.setCamera(&cam, n.World(), 16.0/9, true)
	rend.gather(sc, &v)

	require.Len(t, rend.opaque, 2)
	assert.Same(t, &models[1], rend.opaque[0].model, "front to back")
	assert.Same(t, &models[0], rend.opaque[1].model)
	require.Len(t, rend.transparent, 2)
	assert.Same(t, &glasses[1], rend.transparent[0].model, "back to front")
	assert.Same(t, &glasses[0], rend.transparent[1].model)
	assert.Equal(t, 1, rend.culled)
	assert.Len(t, rend.lights, 2)
	require.NotNil(t, rend.sun)
	assert.Same(t, &sun, rend.sun.light)

	rend.reset()
	assert.Empty(t, rend.opaque)
	assert.Nil(t, rend.sun)
	assert.Zero(t, rend.culled)
}

func TestFindCamera(t *testing.T) {
	sc := NewScene()
	assert.Nil(t, new(renderables).findCamera(sc))

	a, b := DefaultCamera(), DefaultCamera()
	na := addNode(sc.Root, &a, 0, 0, 0)
	nb := addNode(sc.Root, &b, 0, 0, 0)
	found := new(renderables).findCamera(sc)
	assert.True(t, found == na || found == nb)

	sc.Camera = nb
	assert.Same(t, nb, new(renderables).findCamera(sc))
	// Nodes that hold no camera are ignored.
	sc.Camera = sc.Root
	assert.NotNil(t, new(renderables).findCamera(sc))
}
