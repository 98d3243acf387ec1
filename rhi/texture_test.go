// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rhi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gviegas/rend3/driver"
	"gviegas/rend3/driver/drivertest"
)

func TestTexture(t *testing.T) {
	dev, drv := openTest(t, nil)
	tex := NewTexture(dev, &TextureDesc{
		Name:   "gbuffer.albedo",
		Format: driver.RGBA8un,
		Width:  320,
		Height: 180,
		Usage:  driver.URenderTarget,
	})
	defer tex.Destroy()
	require.True(t, tex.IsValid())
	assert.Equal(t, "gbuffer.albedo", tex.Name())
	w, h := tex.Size()
	assert.Equal(t, 320, w)
	assert.Equal(t, 180, h)
	assert.Equal(t, driver.LUndefined, tex.Layout())

	img := tex.Image().(*drivertest.Image)
	assert.Equal(t, driver.URenderTarget|driver.UShaderSample, img.Param.Usage)
	assert.Equal(t, 1, img.Param.Levels)
	assert.NotNil(t, tex.View())
	assert.Equal(t, 0, drv.GPU().Calls("Submit"), "no data, no upload")
}

func TestTextureData(t *testing.T) {
	dev, drv := openTest(t, nil)
	data := make([]byte, 3*5)
	tex := NewTexture(dev, &TextureDesc{Format: driver.R8un, Width: 3, Height: 5, Data: data})
	defer tex.Destroy()
	require.True(t, tex.IsValid())
	assert.Equal(t, driver.LShaderRead, tex.Layout())
	assert.Equal(t, 1, drv.GPU().Calls("Submit"))

	subs := drv.GPU().Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"Transition 1", "CopyBufToImg 3x5", "Transition 1"}, subs[0])

	assert.True(t, tex.Update(make([]byte, 15)))
	assert.False(t, tex.Update(make([]byte, 14)))
	assert.Equal(t, 2, drv.GPU().Calls("Submit"))

	rt := NewTexture(dev, &TextureDesc{Format: driver.RGBA8un, Width: 2, Height: 2})
	defer rt.Destroy()
	assert.False(t, rt.Update(make([]byte, 16)), "Update on a texture created without data")
}

func TestTextureInvalid(t *testing.T) {
	dev, _ := openTest(t, nil)
	for _, d := range []TextureDesc{
		{Format: driver.FNone, Width: 4, Height: 4},
		{Format: driver.RGBA8un, Width: 0, Height: 4},
		{Format: driver.RGBA8un, Width: 4, Height: -1},
		{Format: driver.RGBA8un, Width: 16385, Height: 4},
		{Format: driver.RGBA8un, Width: 2, Height: 2, Data: make([]byte, 15)},
	} {
		tex := NewTexture(dev, &d)
		assert.False(t, tex.IsValid(), "NewTexture(%+v)", d)
		assert.ErrorIs(t, tex.Err(), driver.ErrResource)
		assert.Nil(t, tex.View())
		tex.Destroy()
	}
}

func TestTextureTransition(t *testing.T) {
	dev, _ := openTest(t, nil)
	tex := NewTexture(dev, &TextureDesc{Format: driver.RGBA16f, Width: 8, Height: 8, Usage: driver.URenderTarget})
	defer tex.Destroy()
	pool, err := dev.NewCmdPool(driver.QGraphics, driver.CPrimary)
	require.NoError(t, err)
	defer pool.Destroy()
	cb, err := pool.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())

	tex.Transition(cb, driver.LColorTarget)
	tex.Transition(cb, driver.LColorTarget)
	tex.Transition(cb, driver.LShaderRead)
	assert.Equal(t, driver.LShaderRead, tex.Layout())
	assert.Len(t, cb.(*drivertest.CmdBuffer).Commands(), 2)
}

func TestSampler(t *testing.T) {
	dev, _ := openTest(t, nil)
	for _, x := range []struct {
		desc  SamplerDesc
		mode  driver.FilterMode
		aniso int
	}{
		{SamplerDesc{Name: "point clamp", Addr: driver.AClamp}, driver.MinMagMipPoint, 0},
		{SamplerDesc{Min: driver.FLinear, Mag: driver.FLinear, Addr: driver.AClamp}, driver.MinMagLinearMipPoint, 0},
		{SamplerDesc{Min: driver.FLinear, Mag: driver.FLinear, Mip: driver.FLinear}, driver.MinMagMipLinear, 0},
		{SamplerDesc{Min: driver.FNearest, Mag: driver.FLinear, Anisotropy: 8}, driver.Anisotropic, 8},
		{SamplerDesc{Anisotropy: 64}, driver.Anisotropic, 16},
		{SamplerDesc{Min: driver.FLinear, Mag: driver.FLinear, Compare: true, Cmp: driver.CGreater}, driver.MinMagLinearMipPoint, 0},
	} {
		s := NewSampler(dev, &x.desc)
		require.True(t, s.IsValid())
		assert.Equal(t, x.mode, s.Mode(), "%+v", x.desc)
		ds := s.Sampler().(*drivertest.Sampler)
		assert.Equal(t, x.aniso, ds.Sampling.MaxAniso)
		assert.Equal(t, x.desc.Compare, ds.Compare)
		s.Destroy()
	}

	assert.Panics(t, func() {
		NewSampler(dev, &SamplerDesc{Min: driver.Filter(7)})
	})
}

func TestStates(t *testing.T) {
	dev, _ := openTest(t, nil)

	rs := NewRasterizerState(dev, &RasterizerDesc{Cull: driver.CNone, Fill: driver.FLines})
	defer rs.Destroy()
	assert.True(t, rs.IsValid())
	assert.Equal(t, driver.FLines, rs.State().Fill)

	bs := NewBlendState(dev, &BlendDesc{Enable: true, SrcColor: driver.BOne, DstColor: driver.BOne})
	defer bs.Destroy()
	assert.True(t, bs.IsValid())
	assert.Equal(t, driver.CAll, bs.State().WriteMask)
	assert.True(t, bs.State().Blend)

	bad := NewBlendState(dev, &BlendDesc{OpColor: driver.BlendOp(99)})
	defer bad.Destroy()
	assert.False(t, bad.IsValid())

	ds := NewDepthStencilState(dev, &DepthStencilDesc{Write: true})
	defer ds.Destroy()
	assert.Equal(t, driver.DSState{DepthTest: true, DepthWrite: true, DepthCmp: driver.CAlways}, ds.State())

	ds2 := NewDepthStencilState(dev, &DepthStencilDesc{Test: true, Cmp: driver.CGreaterEqual})
	defer ds2.Destroy()
	assert.Equal(t, driver.DSState{DepthTest: true, DepthCmp: driver.CGreaterEqual}, ds2.State())
}
