// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"gviegas/rend3/driver"
)

// convPixelFmt converts a driver.PixelFmt to a vk.Format.
func convPixelFmt(pf driver.PixelFmt) vk.Format {
	switch pf {
	case driver.RGBA8un:
		return vk.FormatR8g8b8a8Unorm
	case driver.RGBA8sRGB:
		return vk.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vk.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vk.FormatB8g8r8a8Srgb
	case driver.R8un:
		return vk.FormatR8Unorm
	case driver.RG16f:
		return vk.FormatR16g16Sfloat
	case driver.R16f:
		return vk.FormatR16Sfloat
	case driver.RGBA16f:
		return vk.FormatR16g16b16a16Sfloat
	case driver.R32f:
		return vk.FormatR32Sfloat
	case driver.RGBA32f:
		return vk.FormatR32g32b32a32Sfloat
	case driver.D32f:
		return vk.FormatD32Sfloat
	case driver.D24unS8ui:
		return vk.FormatD24UnormS8Uint
	}
	return vk.FormatUndefined
}

// pixelFmtFrom converts a vk.Format to a driver.PixelFmt.
func pixelFmtFrom(f vk.Format) driver.PixelFmt {
	for pf := driver.RGBA8un; pf <= driver.D24unS8ui; pf++ {
		if convPixelFmt(pf) == f {
			return pf
		}
	}
	return driver.FNone
}

// aspectOf returns the image aspect of pf that views
// and copies refer to.
// Depth/stencil images are only ever sampled for depth.
func aspectOf(pf driver.PixelFmt) vk.ImageAspectFlags {
	if pf.IsDS() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// fullAspectOf returns every aspect of pf.
func fullAspectOf(pf driver.PixelFmt) vk.ImageAspectFlags {
	if pf == driver.D24unS8ui {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	}
	return aspectOf(pf)
}

// convImgUsage converts a driver.Usage to a
// vk.ImageUsageFlags.
func convImgUsage(usg driver.Usage, pf driver.PixelFmt) vk.ImageUsageFlags {
	var u vk.ImageUsageFlagBits
	if usg&driver.UShaderSample != 0 {
		u |= vk.ImageUsageSampledBit
	}
	if usg&driver.URenderTarget != 0 {
		if pf.IsDS() {
			u |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			u |= vk.ImageUsageColorAttachmentBit
		}
	}
	if usg&driver.UCopySrc != 0 {
		u |= vk.ImageUsageTransferSrcBit
	}
	if usg&driver.UCopyDst != 0 {
		u |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(u)
}

// convBufUsage converts a driver.Usage to a
// vk.BufferUsageFlags.
func convBufUsage(usg driver.Usage) vk.BufferUsageFlags {
	u := vk.BufferUsageTransferDstBit
	if usg&driver.UShaderConst != 0 {
		u |= vk.BufferUsageUniformBufferBit
	}
	if usg&driver.UVertexData != 0 {
		u |= vk.BufferUsageVertexBufferBit
	}
	if usg&driver.UIndexData != 0 {
		u |= vk.BufferUsageIndexBufferBit
	}
	if usg&driver.UCopySrc != 0 {
		u |= vk.BufferUsageTransferSrcBit
	}
	return vk.BufferUsageFlags(u)
}

// layoutSync is the synchronization scope implied by
// an image layout.
type layoutSync struct {
	layout vk.ImageLayout
	access vk.AccessFlagBits
	stage  vk.PipelineStageFlagBits
}

// convLayout converts a driver.Layout to a layoutSync.
func convLayout(l driver.Layout) layoutSync {
	switch l {
	case driver.LColorTarget:
		return layoutSync{
			vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit,
			vk.PipelineStageColorAttachmentOutputBit,
		}
	case driver.LDSTarget:
		return layoutSync{
			vk.ImageLayoutDepthStencilAttachmentOptimal,
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit,
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit,
		}
	case driver.LShaderRead:
		return layoutSync{
			vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessShaderReadBit,
			vk.PipelineStageFragmentShaderBit,
		}
	case driver.LCopyDst:
		return layoutSync{
			vk.ImageLayoutTransferDstOptimal,
			vk.AccessTransferWriteBit,
			vk.PipelineStageTransferBit,
		}
	case driver.LPresent:
		return layoutSync{
			vk.ImageLayoutPresentSrc,
			0,
			vk.PipelineStageBottomOfPipeBit,
		}
	}
	return layoutSync{vk.ImageLayoutUndefined, 0, vk.PipelineStageTopOfPipeBit}
}

// filterModes maps a driver.FilterMode to the Vulkan
// min/mag filters and mipmap mode.
var filterModes = [...]struct {
	min, mag vk.Filter
	mip      vk.SamplerMipmapMode
}{
	driver.MinMagMipPoint:             {vk.FilterNearest, vk.FilterNearest, vk.SamplerMipmapModeNearest},
	driver.MinMagPointMipLinear:       {vk.FilterNearest, vk.FilterNearest, vk.SamplerMipmapModeLinear},
	driver.MinPointMagLinearMipPoint:  {vk.FilterNearest, vk.FilterLinear, vk.SamplerMipmapModeNearest},
	driver.MinPointMagMipLinear:       {vk.FilterNearest, vk.FilterLinear, vk.SamplerMipmapModeLinear},
	driver.MinLinearMagMipPoint:       {vk.FilterLinear, vk.FilterNearest, vk.SamplerMipmapModeNearest},
	driver.MinLinearMagPointMipLinear: {vk.FilterLinear, vk.FilterNearest, vk.SamplerMipmapModeLinear},
	driver.MinMagLinearMipPoint:       {vk.FilterLinear, vk.FilterLinear, vk.SamplerMipmapModeNearest},
	driver.MinMagMipLinear:            {vk.FilterLinear, vk.FilterLinear, vk.SamplerMipmapModeLinear},
	driver.Anisotropic:                {vk.FilterLinear, vk.FilterLinear, vk.SamplerMipmapModeLinear},
}

// convAddrMode converts a driver.AddrMode to a
// vk.SamplerAddressMode.
func convAddrMode(am driver.AddrMode) vk.SamplerAddressMode {
	switch am {
	case driver.AMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case driver.AClamp:
		return vk.SamplerAddressModeClampToEdge
	}
	return vk.SamplerAddressModeRepeat
}

// convCmpFunc converts a driver.CmpFunc to a vk.CompareOp.
func convCmpFunc(cf driver.CmpFunc) vk.CompareOp {
	switch cf {
	case driver.CNever:
		return vk.CompareOpNever
	case driver.CLess:
		return vk.CompareOpLess
	case driver.CEqual:
		return vk.CompareOpEqual
	case driver.CLessEqual:
		return vk.CompareOpLessOrEqual
	case driver.CGreater:
		return vk.CompareOpGreater
	case driver.CNotEqual:
		return vk.CompareOpNotEqual
	case driver.CGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	}
	return vk.CompareOpAlways
}

// convVertexFmt converts a driver.VertexFmt to a vk.Format.
func convVertexFmt(f driver.VertexFmt) vk.Format {
	switch f {
	case driver.Float32x2:
		return vk.FormatR32g32Sfloat
	case driver.Float32x3:
		return vk.FormatR32g32b32Sfloat
	case driver.Float32x4:
		return vk.FormatR32g32b32a32Sfloat
	}
	return vk.FormatR32Sfloat
}

// convTopology converts a driver.Topology to a
// vk.PrimitiveTopology.
func convTopology(t driver.Topology) vk.PrimitiveTopology {
	switch t {
	case driver.TTriStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case driver.TLine:
		return vk.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return vk.PrimitiveTopologyLineStrip
	case driver.TPoint:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

// convCullMode converts a driver.CullMode to a
// vk.CullModeFlags.
func convCullMode(cm driver.CullMode) vk.CullModeFlags {
	switch cm {
	case driver.CFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case driver.CBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

// convFillMode converts a driver.FillMode to a
// vk.PolygonMode.
func convFillMode(fm driver.FillMode) vk.PolygonMode {
	if fm == driver.FLines {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

// convBlendOp converts a driver.BlendOp to a vk.BlendOp.
func convBlendOp(op driver.BlendOp) vk.BlendOp {
	switch op {
	case driver.BSubtract:
		return vk.BlendOpSubtract
	case driver.BRevSubtract:
		return vk.BlendOpReverseSubtract
	case driver.BMin:
		return vk.BlendOpMin
	case driver.BMax:
		return vk.BlendOpMax
	}
	return vk.BlendOpAdd
}

// convBlendFac converts a driver.BlendFac to a
// vk.BlendFactor.
func convBlendFac(fac driver.BlendFac) vk.BlendFactor {
	switch fac {
	case driver.BOne:
		return vk.BlendFactorOne
	case driver.BSrcColor:
		return vk.BlendFactorSrcColor
	case driver.BInvSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case driver.BSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case driver.BInvSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case driver.BDstColor:
		return vk.BlendFactorDstColor
	case driver.BInvDstColor:
		return vk.BlendFactorOneMinusDstColor
	case driver.BDstAlpha:
		return vk.BlendFactorDstAlpha
	case driver.BInvDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case driver.BBlendColor:
		return vk.BlendFactorConstantColor
	case driver.BInvBlendColor:
		return vk.BlendFactorOneMinusConstantColor
	}
	return vk.BlendFactorZero
}

// convColorMask converts a driver.ColorMask to a
// vk.ColorComponentFlags.
func convColorMask(cm driver.ColorMask) vk.ColorComponentFlags {
	var m vk.ColorComponentFlagBits
	if cm&driver.CRed != 0 {
		m |= vk.ColorComponentRBit
	}
	if cm&driver.CGreen != 0 {
		m |= vk.ColorComponentGBit
	}
	if cm&driver.CBlue != 0 {
		m |= vk.ColorComponentBBit
	}
	if cm&driver.CAlpha != 0 {
		m |= vk.ColorComponentABit
	}
	return vk.ColorComponentFlags(m)
}

// convLoadOp converts a driver.LoadOp to a
// vk.AttachmentLoadOp.
func convLoadOp(op driver.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case driver.LClear:
		return vk.AttachmentLoadOpClear
	case driver.LLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

// convStoreOp converts a driver.StoreOp to a
// vk.AttachmentStoreOp.
func convStoreOp(op driver.StoreOp) vk.AttachmentStoreOp {
	if op == driver.SStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

// convIndexFmt converts a driver.IndexFmt to a
// vk.IndexType.
func convIndexFmt(f driver.IndexFmt) vk.IndexType {
	if f == driver.Index16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}

// presentModeFrom converts a vk.PresentMode to a
// driver.PresentMode.
func presentModeFrom(pm vk.PresentMode) (driver.PresentMode, bool) {
	switch pm {
	case vk.PresentModeFifo:
		return driver.PFIFO, true
	case vk.PresentModeMailbox:
		return driver.PMailbox, true
	case vk.PresentModeImmediate:
		return driver.PImmediate, true
	}
	return 0, false
}

// convPresentMode converts a driver.PresentMode to a
// vk.PresentMode.
func convPresentMode(pm driver.PresentMode) vk.PresentMode {
	switch pm {
	case driver.PMailbox:
		return vk.PresentModeMailbox
	case driver.PImmediate:
		return vk.PresentModeImmediate
	}
	return vk.PresentModeFifo
}
