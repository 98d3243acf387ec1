// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package wgpu

import (
	"github.com/gogpu/gputypes"

	"gviegas/rend3/driver"
)

// convPixelFmt converts a driver.PixelFmt to a
// gputypes.TextureFormat.
func convPixelFmt(pf driver.PixelFmt) gputypes.TextureFormat {
	switch pf {
	case driver.RGBA8un:
		return gputypes.TextureFormatRGBA8Unorm
	case driver.RGBA8sRGB:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case driver.BGRA8un:
		return gputypes.TextureFormatBGRA8Unorm
	case driver.BGRA8sRGB:
		return gputypes.TextureFormatBGRA8UnormSrgb
	case driver.R8un:
		return gputypes.TextureFormatR8Unorm
	case driver.RG16f:
		return gputypes.TextureFormatRG16Float
	case driver.R16f:
		return gputypes.TextureFormatR16Float
	case driver.RGBA16f:
		return gputypes.TextureFormatRGBA16Float
	case driver.R32f:
		return gputypes.TextureFormatR32Float
	case driver.RGBA32f:
		return gputypes.TextureFormatRGBA32Float
	case driver.D32f:
		return gputypes.TextureFormatDepth32Float
	case driver.D24unS8ui:
		return gputypes.TextureFormatDepth24PlusStencil8
	}
	return gputypes.TextureFormatUndefined
}

// pixelFmtFrom converts a gputypes.TextureFormat to a
// driver.PixelFmt.
func pixelFmtFrom(f gputypes.TextureFormat) driver.PixelFmt {
	for pf := driver.RGBA8un; pf <= driver.D24unS8ui; pf++ {
		if convPixelFmt(pf) == f {
			return pf
		}
	}
	return driver.FNone
}

// convTexUsage converts a driver.Usage to a
// gputypes.TextureUsage.
func convTexUsage(usg driver.Usage) gputypes.TextureUsage {
	var u gputypes.TextureUsage
	if usg&driver.UShaderSample != 0 {
		u |= gputypes.TextureUsageTextureBinding
	}
	if usg&driver.URenderTarget != 0 {
		u |= gputypes.TextureUsageRenderAttachment
	}
	if usg&driver.UCopySrc != 0 {
		u |= gputypes.TextureUsageCopySrc
	}
	if usg&driver.UCopyDst != 0 {
		u |= gputypes.TextureUsageCopyDst
	}
	return u
}

// convBufUsage converts a driver.Usage to a
// gputypes.BufferUsage.
// Buffers are always writable through the queue.
func convBufUsage(usg driver.Usage) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopyDst
	if usg&driver.UShaderConst != 0 {
		u |= gputypes.BufferUsageUniform
	}
	if usg&driver.UVertexData != 0 {
		u |= gputypes.BufferUsageVertex
	}
	if usg&driver.UIndexData != 0 {
		u |= gputypes.BufferUsageIndex
	}
	if usg&driver.UCopySrc != 0 {
		u |= gputypes.BufferUsageCopySrc
	}
	return u
}

// convLayout converts a driver.Layout to the texture usage
// that the layout implies.
func convLayout(l driver.Layout) gputypes.TextureUsage {
	switch l {
	case driver.LColorTarget, driver.LDSTarget:
		return gputypes.TextureUsageRenderAttachment
	case driver.LShaderRead:
		return gputypes.TextureUsageTextureBinding
	case driver.LCopyDst:
		return gputypes.TextureUsageCopyDst
	}
	return gputypes.TextureUsageNone
}

// filterModes maps a driver.FilterMode to the HAL's
// min/mag/mipmap filters.
var filterModes = [...][3]gputypes.FilterMode{
	driver.MinMagMipPoint:             {gputypes.FilterModeNearest, gputypes.FilterModeNearest, gputypes.FilterModeNearest},
	driver.MinMagPointMipLinear:       {gputypes.FilterModeNearest, gputypes.FilterModeNearest, gputypes.FilterModeLinear},
	driver.MinPointMagLinearMipPoint:  {gputypes.FilterModeNearest, gputypes.FilterModeLinear, gputypes.FilterModeNearest},
	driver.MinPointMagMipLinear:       {gputypes.FilterModeNearest, gputypes.FilterModeLinear, gputypes.FilterModeLinear},
	driver.MinLinearMagMipPoint:       {gputypes.FilterModeLinear, gputypes.FilterModeNearest, gputypes.FilterModeNearest},
	driver.MinLinearMagPointMipLinear: {gputypes.FilterModeLinear, gputypes.FilterModeNearest, gputypes.FilterModeLinear},
	driver.MinMagLinearMipPoint:       {gputypes.FilterModeLinear, gputypes.FilterModeLinear, gputypes.FilterModeNearest},
	driver.MinMagMipLinear:            {gputypes.FilterModeLinear, gputypes.FilterModeLinear, gputypes.FilterModeLinear},
	driver.Anisotropic:                {gputypes.FilterModeLinear, gputypes.FilterModeLinear, gputypes.FilterModeLinear},
}

// convAddrMode converts a driver.AddrMode to a
// gputypes.AddressMode.
func convAddrMode(am driver.AddrMode) gputypes.AddressMode {
	switch am {
	case driver.AMirror:
		return gputypes.AddressModeMirrorRepeat
	case driver.AClamp:
		return gputypes.AddressModeClampToEdge
	}
	return gputypes.AddressModeRepeat
}

// convCmpFunc converts a driver.CmpFunc to a
// gputypes.CompareFunction.
func convCmpFunc(cf driver.CmpFunc) gputypes.CompareFunction {
	switch cf {
	case driver.CNever:
		return gputypes.CompareFunctionNever
	case driver.CLess:
		return gputypes.CompareFunctionLess
	case driver.CEqual:
		return gputypes.CompareFunctionEqual
	case driver.CLessEqual:
		return gputypes.CompareFunctionLessEqual
	case driver.CGreater:
		return gputypes.CompareFunctionGreater
	case driver.CNotEqual:
		return gputypes.CompareFunctionNotEqual
	case driver.CGreaterEqual:
		return gputypes.CompareFunctionGreaterEqual
	}
	return gputypes.CompareFunctionAlways
}

// convVertexFmt converts a driver.VertexFmt to a
// gputypes.VertexFormat.
func convVertexFmt(f driver.VertexFmt) gputypes.VertexFormat {
	switch f {
	case driver.Float32x2:
		return gputypes.VertexFormatFloat32x2
	case driver.Float32x3:
		return gputypes.VertexFormatFloat32x3
	case driver.Float32x4:
		return gputypes.VertexFormatFloat32x4
	}
	return gputypes.VertexFormatFloat32
}

// convTopology converts a driver.Topology to a
// gputypes.PrimitiveTopology.
func convTopology(t driver.Topology) gputypes.PrimitiveTopology {
	switch t {
	case driver.TTriStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case driver.TLine:
		return gputypes.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return gputypes.PrimitiveTopologyLineStrip
	case driver.TPoint:
		return gputypes.PrimitiveTopologyPointList
	}
	return gputypes.PrimitiveTopologyTriangleList
}

// convCullMode converts a driver.CullMode to a
// gputypes.CullMode.
func convCullMode(cm driver.CullMode) gputypes.CullMode {
	switch cm {
	case driver.CFront:
		return gputypes.CullModeFront
	case driver.CBack:
		return gputypes.CullModeBack
	}
	return gputypes.CullModeNone
}

// convBlendOp converts a driver.BlendOp to a
// gputypes.BlendOperation.
func convBlendOp(op driver.BlendOp) gputypes.BlendOperation {
	switch op {
	case driver.BSubtract:
		return gputypes.BlendOperationSubtract
	case driver.BRevSubtract:
		return gputypes.BlendOperationReverseSubtract
	case driver.BMin:
		return gputypes.BlendOperationMin
	case driver.BMax:
		return gputypes.BlendOperationMax
	}
	return gputypes.BlendOperationAdd
}

// convBlendFac converts a driver.BlendFac to a
// gputypes.BlendFactor.
func convBlendFac(fac driver.BlendFac) gputypes.BlendFactor {
	switch fac {
	case driver.BOne:
		return gputypes.BlendFactorOne
	case driver.BSrcColor:
		return gputypes.BlendFactorSrc
	case driver.BInvSrcColor:
		return gputypes.BlendFactorOneMinusSrc
	case driver.BSrcAlpha:
		return gputypes.BlendFactorSrcAlpha
	case driver.BInvSrcAlpha:
		return gputypes.BlendFactorOneMinusSrcAlpha
	case driver.BDstColor:
		return gputypes.BlendFactorDst
	case driver.BInvDstColor:
		return gputypes.BlendFactorOneMinusDst
	case driver.BDstAlpha:
		return gputypes.BlendFactorDstAlpha
	case driver.BInvDstAlpha:
		return gputypes.BlendFactorOneMinusDstAlpha
	case driver.BBlendColor:
		return gputypes.BlendFactorConstant
	case driver.BInvBlendColor:
		return gputypes.BlendFactorOneMinusConstant
	}
	return gputypes.BlendFactorZero
}

// convColorMask converts a driver.ColorMask to a
// gputypes.ColorWriteMask.
func convColorMask(cm driver.ColorMask) gputypes.ColorWriteMask {
	var m gputypes.ColorWriteMask
	if cm&driver.CRed != 0 {
		m |= gputypes.ColorWriteMaskRed
	}
	if cm&driver.CGreen != 0 {
		m |= gputypes.ColorWriteMaskGreen
	}
	if cm&driver.CBlue != 0 {
		m |= gputypes.ColorWriteMaskBlue
	}
	if cm&driver.CAlpha != 0 {
		m |= gputypes.ColorWriteMaskAlpha
	}
	return m
}

// convLoadOp converts a driver.LoadOp to a
// gputypes.LoadOp.
// WebGPU has no "don't care" load, so it clears.
func convLoadOp(op driver.LoadOp) gputypes.LoadOp {
	if op == driver.LLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

// convStoreOp converts a driver.StoreOp to a
// gputypes.StoreOp.
func convStoreOp(op driver.StoreOp) gputypes.StoreOp {
	if op == driver.SStore {
		return gputypes.StoreOpStore
	}
	return gputypes.StoreOpDiscard
}

// presentModeFrom converts a gputypes.PresentMode to a
// driver.PresentMode.
func presentModeFrom(pm gputypes.PresentMode) (driver.PresentMode, bool) {
	switch pm {
	case gputypes.PresentModeFifo:
		return driver.PFIFO, true
	case gputypes.PresentModeMailbox:
		return driver.PMailbox, true
	case gputypes.PresentModeImmediate:
		return driver.PImmediate, true
	}
	return 0, false
}

// convPresentMode converts a driver.PresentMode to a
// gputypes.PresentMode.
func convPresentMode(pm driver.PresentMode) gputypes.PresentMode {
	switch pm {
	case driver.PMailbox:
		return gputypes.PresentModeMailbox
	case driver.PImmediate:
		return gputypes.PresentModeImmediate
	}
	return gputypes.PresentModeFifo
}
