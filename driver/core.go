// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"math"
	"time"
)

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Caps returns the capabilities of the GPU.
	// They are immutable for the lifetime of the GPU.
	Caps() Caps

	// Submit submits a batch of command buffers to the
	// queue identified by the command buffers' pool.
	// Wait semaphores are waited on before execution
	// starts and signal semaphores are signaled when it
	// completes. If sub.Fence is not nil, it is signaled
	// when all commands complete execution. Command
	// buffers in sub cannot be reset until then.
	Submit(sub *Submission) error

	// WaitIdle blocks until the GPU is idle.
	WaitIdle() error

	// NewCmdPool creates a new command pool.
	NewCmdPool(family QueueFamily, level CmdLevel) (CmdPool, error)

	// NewFence creates a new fence.
	NewFence(signaled bool) (Fence, error)

	// NewSemaphore creates a new semaphore.
	NewSemaphore() (Semaphore, error)

	// NewBuffer creates a new buffer.
	// If visible is set, the buffer can be mapped.
	NewBuffer(size int64, visible bool, usg Usage) (Buffer, error)

	// NewImage creates a new 2D image.
	NewImage(param *ImageParam) (Image, error)

	// NewSampler creates a new sampler.
	NewSampler(spln *Sampling) (Sampler, error)

	// NewShaderCode creates a new shader code.
	// data must be in the format indicated by
	// Caps().ShaderFormat.
	NewShaderCode(stage Stage, data []byte) (ShaderCode, error)

	// NewPipeline creates a new graphics pipeline.
	NewPipeline(state *GraphState) (Pipeline, error)

	// Limits returns the implementation limits.
	// They are immutable for the lifetime of the GPU.
	Limits() Limits
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// Caps describes the capabilities of a GPU.
type Caps struct {
	// Backend is the name of the native API in use.
	Backend string
	// Adapter is the name of the selected adapter.
	Adapter string
	// MaxAnisotropy is the maximum sampler anisotropy.
	// It is 1 if anisotropic filtering is not supported.
	MaxAnisotropy int
	// ReverseDepth indicates whether a floating-point
	// depth buffer with a [0, 1] depth range is available,
	// so reverse-Z can be used.
	ReverseDepth bool
	// Validation indicates whether backend validation is
	// enabled.
	Validation bool
	// NonSolidFill indicates whether FLines is supported.
	NonSolidFill bool
	// ShaderFormat is the shader code format expected
	// by NewShaderCode.
	ShaderFormat ShaderFormat
	// Families contains the native queue family indices.
	Families QueueFamilies
}

// ShaderFormat is the type of shader code formats.
type ShaderFormat int

// Shader code formats.
const (
	SPIRV ShaderFormat = iota
	WGSL
)

// QueueFamily identifies a kind of queue.
type QueueFamily int

// Queue families.
const (
	QGraphics QueueFamily = iota
	QTransfer
)

// CmdLevel is the level of command buffers.
type CmdLevel int

// Command buffer levels.
const (
	CPrimary CmdLevel = iota
	CSecondary
)

// Submission describes a batch of command buffers to
// be executed by the GPU.
type Submission struct {
	Cmd    []CmdBuffer
	Wait   []Semaphore
	Signal []Semaphore
	Fence  Fence
}

// Forever is a timeout that never expires.
const Forever time.Duration = math.MaxInt64

// Fence is the interface that defines a binary,
// CPU-visible synchronization primitive.
// Fences are signaled by the GPU when a submission
// completes.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled or the
	// timeout expires. It returns true if the fence
	// is signaled.
	// A timeout of zero polls the fence without
	// blocking. A timeout of Forever never expires.
	// Waiting on a signaled fence returns immediately.
	Wait(timeout time.Duration) (bool, error)

	// Reset sets the fence to the unsignaled state.
	// It must only be called on a signaled fence that
	// is not in use by a pending submission.
	Reset() error
}

// Semaphore is the interface that defines a GPU-only
// synchronization primitive between queue submissions.
// Semaphores are never waited on from the CPU.
type Semaphore interface {
	Destroyer
}

// CmdPool is the interface that defines a command pool.
// Command buffers allocated from a pool can only be
// submitted to queues of the pool's family.
type CmdPool interface {
	Destroyer

	// NewCmdBuffer allocates a new command buffer.
	// It fails with ErrCmdAlloc if the pool is
	// exhausted.
	NewCmdBuffer() (CmdBuffer, error)

	// Reset resets every command buffer allocated
	// from the pool.
	Reset() error

	// Family returns the pool's queue family.
	Family() QueueFamily

	// Level returns the level of command buffers
	// allocated from the pool.
	Level() CmdLevel
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// submitted to the GPU for execution. The usage is as
// follows:
//
//  1. call Begin
//  2. call Transition as needed
//  3. call BeginPass
//  4. call Set* methods to configure rendering state
//  5. call Draw* commands
//  6. call EndPass
//  7. repeat 2-6 as needed
//  8. call End
//
// Resources are bound to numbered slots (SetConstBuf,
// SetTexture and SetSampler) and the backend materializes
// whatever binding objects it needs when a draw command
// is recorded. Shaders must use the binding numbers
// defined by ConstBinding, TexBinding and SplrBinding.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording.
	Begin() error

	// BeginPass begins a render pass.
	BeginPass(pass *PassDesc)

	// EndPass ends the current render pass.
	EndPass()

	// SetPipeline sets the graphics pipeline.
	SetPipeline(pl Pipeline)

	// SetViewport sets the viewport bounds.
	SetViewport(vp Viewport)

	// SetScissor sets the scissor rectangle.
	SetScissor(sciss Scissor)

	// SetVertexBuf sets the vertex buffer.
	SetVertexBuf(buf Buffer, off int64)

	// SetIndexBuf sets the index buffer.
	// off must be aligned to 4 bytes.
	SetIndexBuf(format IndexFmt, buf Buffer, off int64)

	// SetConstBuf binds a range of a buffer to a
	// constant buffer slot.
	SetConstBuf(slot int, buf Buffer, off, size int64)

	// SetTexture binds an image view to a texture
	// slot.
	SetTexture(slot int, iv ImageView)

	// SetSampler binds a sampler to a sampler slot.
	SetSampler(slot int, splr Sampler)

	// Draw draws primitives.
	// It must only be called during a render pass.
	Draw(vertCount, instCount, baseVert, baseInst int)

	// DrawIndexed draws indexed primitives.
	// It must only be called during a render pass.
	DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int)

	// CopyBufToImg copies data from a buffer to an
	// image.
	// It must not be called during a render pass.
	CopyBufToImg(param *BufImgCopy)

	// Transition inserts a number of image layout
	// transitions in the command buffer.
	// It must not be called during a render pass.
	Transition(t []Transition)

	// End ends command recording and prepares the
	// command buffer for execution.
	// Upon failure, the command buffer is reset.
	End() error

	// Reset discards all recorded commands from the
	// command buffer.
	Reset() error
}

// Number of binding slots of each kind.
const (
	MaxConstBuf = 4
	MaxTexture  = 8
	MaxSampler  = 8
)

// ConstBinding returns the shader binding number of a
// constant buffer slot.
func ConstBinding(slot int) int { return slot }

// TexBinding returns the shader binding number of a
// texture slot.
func TexBinding(slot int) int { return MaxConstBuf + slot }

// SplrBinding returns the shader binding number of a
// sampler slot.
func SplrBinding(slot int) int { return MaxConstBuf + MaxTexture + slot }

// BufImgCopy describes the parameters of a copy command
// that copies data from a buffer to an image.
// Stride is the row length of the buffer data, given in
// pixels.
type BufImgCopy struct {
	Buf    Buffer
	BufOff int64
	Stride int
	Img    Image
	Level  int
	Width  int
	Height int
}

// Layout is the type of an image layout.
type Layout int

// Image layouts.
const (
	LUndefined Layout = iota
	LColorTarget
	LDSTarget
	LShaderRead
	LCopyDst
	LPresent
)

// Transition describes an image layout transition.
type Transition struct {
	Img          Image
	LayoutBefore Layout
	LayoutAfter  Layout
}

// LoadOp is the type of a render target's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// StoreOp is the type of a render target's store operation.
type StoreOp int

// Store operations.
const (
	SDontCare StoreOp = iota
	SStore
)

// ColorTarget describes a color render target.
type ColorTarget struct {
	View  ImageView
	Load  LoadOp
	Store StoreOp
	Clear [4]float32
}

// DSTarget describes a depth/stencil render target.
type DSTarget struct {
	View  ImageView
	Load  LoadOp
	Store StoreOp
	Clear float32
}

// PassDesc describes the render targets of a render pass.
// All targets must have the same size.
type PassDesc struct {
	Color []ColorTarget
	DS    *DSTarget
}

// ShaderCode is the interface that defines a shader
// binary/source.
type ShaderCode interface {
	Destroyer
}

// ShaderFunc specifies a function within a ShaderCode.
type ShaderFunc struct {
	Code ShaderCode
	Name string
}

// Stage is the type of a shader stage.
type Stage int

// Shader stages.
const (
	SVertex Stage = 1 << iota
	SFragment
	SCompute
)

// VertexFmt describes the format of a vertex input.
type VertexFmt int

// Vertex formats.
const (
	Float32 VertexFmt = iota
	Float32x2
	Float32x3
	Float32x4
)

// Size returns the size in bytes of f.
func (f VertexFmt) Size() int { return 4 * (int(f) + 1) }

// VertexIn describes a vertex input within the single
// interleaved vertex buffer.
type VertexIn struct {
	Format VertexFmt
	Offset int
	Nr     int
}

// Topology is the type of primitive topologies.
type Topology int

// Primitive topologies.
const (
	TTriangle Topology = iota
	TTriStrip
	TLine
	TLnStrip
	TPoint
)

// IndexFmt describes the format of index buffer data.
type IndexFmt int

// Index formats.
const (
	Index16 IndexFmt = 2
	Index32 IndexFmt = 4
)

// Viewport defines the bounds of a viewport.
type Viewport struct {
	X, Y, Width, Height, Znear, Zfar float32
}

// Scissor defines a scissor rectangle.
type Scissor struct {
	X, Y, Width, Height int
}

// CullMode is the type of cull modes.
type CullMode int

// Cull modes.
const (
	CNone CullMode = iota
	CFront
	CBack
)

// FillMode is the type of fill modes.
type FillMode int

// Fill modes.
const (
	FFill FillMode = iota
	FLines
)

// RasterState defines the rasterization state of a
// graphics pipeline.
type RasterState struct {
	Clockwise bool
	Cull      CullMode
	Fill      FillMode
	// DepthClip is the inverse of depth clamp.
	DepthClip bool
	DepthBias bool
	BiasValue float32
	BiasSlope float32
	BiasClamp float32
}

// CmpFunc is the type of comparison functions.
type CmpFunc int

// Comparison functions.
const (
	CNever CmpFunc = iota
	CLess
	CEqual
	CLessEqual
	CGreater
	CNotEqual
	CGreaterEqual
	CAlways
)

// DSState defines the depth state of a graphics pipeline.
type DSState struct {
	DepthTest  bool
	DepthWrite bool
	DepthCmp   CmpFunc
}

// BlendOp is the type of blend operations.
type BlendOp int

// Blend operations.
const (
	BAdd BlendOp = iota
	BSubtract
	BRevSubtract
	BMin
	BMax
)

// BlendFac is the type of blend factors.
type BlendFac int

// Blend factors.
const (
	BZero BlendFac = iota
	BOne
	BSrcColor
	BInvSrcColor
	BSrcAlpha
	BInvSrcAlpha
	BDstColor
	BInvDstColor
	BDstAlpha
	BInvDstAlpha
	BBlendColor
	BInvBlendColor
)

// ColorMask is the type of color write masks.
type ColorMask int

// Color write masks.
const (
	CRed ColorMask = 1 << iota
	CGreen
	CBlue
	CAlpha
	CAll ColorMask = 1<<iota - 1
)

// ColorBlend defines the blend state of a graphics
// pipeline. It applies to every color target.
// Index 0 of Op/SrcFac/DstFac refers to the color
// components and index 1, to the alpha component.
type ColorBlend struct {
	Blend     bool
	WriteMask ColorMask
	Op        [2]BlendOp
	SrcFac    [2]BlendFac
	DstFac    [2]BlendFac
}

// BindLayout describes the resources accessed by a
// pipeline's shaders. Slots are used in order, starting
// at zero, for each kind of resource.
type BindLayout struct {
	Const int
	Tex   int
	Splr  int
	// DepthTex is a mask of texture slots that hold
	// depth images. Shaders must not filter them.
	DepthTex uint32
	// CmpSplr is a mask of sampler slots that perform
	// depth comparison.
	CmpSplr uint32
}

// GraphState defines the state of a graphics pipeline.
type GraphState struct {
	VertFunc ShaderFunc
	FragFunc ShaderFunc
	Layout   BindLayout
	Input    []VertexIn
	Stride   int
	Topology Topology
	Raster   RasterState
	DS       DSState
	Blend    ColorBlend
	ColorFmt []PixelFmt
	// DSFmt is FNone if the pipeline renders to
	// no depth target.
	DSFmt PixelFmt
}

// Pipeline is the interface that defines a graphics
// pipeline.
type Pipeline interface {
	Destroyer
}

// Usage is the type of resource usage flags.
type Usage int

// Usage flags.
const (
	UShaderConst Usage = 1 << iota
	UShaderSample
	UVertexData
	UIndexData
	URenderTarget
	UCopySrc
	UCopyDst
)

// Buffer is the interface that defines a GPU buffer.
type Buffer interface {
	Destroyer

	// Visible returns whether the buffer is host
	// visible.
	Visible() bool

	// Cap returns the capacity of the buffer in
	// bytes.
	Cap() int64

	// Map maps the buffer's memory into the host
	// address space.
	// It fails if the buffer is not visible.
	// The returned slice is only valid until Unmap
	// is called.
	Map() ([]byte, error)

	// Unmap makes host writes visible to the GPU
	// and releases the mapping.
	Unmap() error
}

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FNone PixelFmt = iota
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	R8un
	RG16f
	R16f
	RGBA16f
	R32f
	RGBA32f
	D32f
	D24unS8ui
)

// IsDS returns whether f is a depth/stencil format.
func (f PixelFmt) IsDS() bool { return f == D32f || f == D24unS8ui }

// Size returns the size in bytes of a pixel of format f.
func (f PixelFmt) Size() int {
	switch f {
	case R8un:
		return 1
	case R16f:
		return 2
	case RGBA8un, RGBA8sRGB, BGRA8un, BGRA8sRGB, RG16f, R32f, D32f, D24unS8ui:
		return 4
	case RGBA16f:
		return 8
	case RGBA32f:
		return 16
	}
	return 0
}

// ImageParam describes the parameters of a 2D image.
type ImageParam struct {
	Format PixelFmt
	Width  int
	Height int
	Levels int
	Usage  Usage
}

// Image is the interface that defines a 2D GPU image.
type Image interface {
	Destroyer

	// NewView creates a new view of a range of the
	// image's mip levels.
	NewView(level, levels int) (ImageView, error)
}

// ImageView is the interface that defines a view of
// an Image.
type ImageView interface {
	Destroyer

	// Image returns the viewed image.
	Image() Image
}

// Filter is the type of sampler filters.
type Filter int

// Sampler filters.
const (
	FNearest Filter = iota
	FLinear
)

// AddrMode is the type of sampler addressing modes.
type AddrMode int

// Addressing modes.
const (
	AWrap AddrMode = iota
	AMirror
	AClamp
)

// Sampler is the interface that defines an image sampler.
type Sampler interface {
	Destroyer
}

// Sampling describes the parameters of a Sampler.
type Sampling struct {
	Min    Filter
	Mag    Filter
	Mipmap Filter
	AddrU  AddrMode
	AddrV  AddrMode
	AddrW  AddrMode
	// MaxAniso enables anisotropic filtering when
	// greater than one. It overrides the filters.
	MaxAniso int
	// Compare enables depth comparison using Cmp.
	Compare bool
	Cmp     CmpFunc
	MinLOD  float32
	MaxLOD  float32
}

// Limits describes implementation limits.
type Limits struct {
	// Maximum width/height of images.
	MaxImage2D int
	// Maximum number of color targets in a pass.
	MaxColorTargets int
	// Maximum range of a constant buffer binding.
	MaxConstRange int64
	// Maximum number of vertex inputs.
	MaxVertexIn int
}
