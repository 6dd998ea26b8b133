// Package driver defines the interfaces the rendering core
// records and submits work through.
// The vulkan package implements them on top of goki/vulkan.
package driver

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Destroyer is the interface that wraps the Destroy method.
// Destroy releases the native object. Calling any other
// method afterwards is undefined.
type Destroyer interface {
	Destroy()
}

// Limits are the device properties the core depends on.
type Limits struct {
	// Nanoseconds per timestamp tick.
	TimestampPeriod float32
	// Required alignment of dynamic uniform offsets.
	MinUniformAlignment uint64
	// Zero when anisotropic filtering is unsupported.
	MaxAnisotropy float32
}

// Device is the interface to a logical GPU.
type Device interface {
	Destroyer

	Name() string
	Limits() Limits
	// DepthFormat is the format of the swapchain depth buffer.
	DepthFormat() metadata.Format

	NewProgram(desc *metadata.ProgramDesc) (Program, error)
	NewGraphicsPipeline(desc *GraphicsPipelineDesc) (Pipeline, error)
	NewComputePipeline(prog Program) (Pipeline, error)

	// NewBindingPool creates a pool able to hold capacity
	// binding sets of any group.
	NewBindingPool(capacity int) (BindingPool, error)
	NewQueryPool(kind metadata.QueryPoolKind, count uint32) (QueryPool, error)

	NewImage(desc *metadata.TextureDesc) (Image, error)
	NewSampler(desc *SamplerDesc) (Sampler, error)
	NewBuffer(size uint64, typ metadata.BufferType) (Buffer, error)

	NewCmdBuffer() (CmdBuffer, error)
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
	// NewSwapchain creates a swapchain for win. When old is
	// not nil, it is retired by the new one and must still
	// be destroyed by the caller.
	NewSwapchain(win Window, imageCount int, vsync bool, old Swapchain) (Swapchain, error)

	// Submit executes cbs in order. wait, signal and fence
	// may be nil.
	Submit(cbs []CmdBuffer, wait, signal Semaphore, fence Fence) error
	WaitIdle()

	// LoadPipelineCache seeds the native pipeline cache.
	// It fails with core.ErrIncompatibleCache when data was
	// produced by another device or driver version.
	LoadPipelineCache(data []byte) error
	PipelineCacheData() ([]byte, error)
}

// Window is the surface a swapchain presents to.
type Window interface {
	// FramebufferSize is the drawable size in pixels.
	FramebufferSize() (width, height int)
	// WaitEvents blocks until the platform has events.
	WaitEvents()
	RequiredInstanceExtensions() []string
	// CreateSurface creates a native surface for instance.
	CreateSurface(instance interface{}) (uintptr, error)
}

// Program is a set of linked shader stages and their
// binding layouts.
type Program interface {
	Destroyer
	Name() string
	Layout() *metadata.ProgramLayout
	IsCompute() bool
}

// Pipeline is an immutable pipeline object.
type Pipeline interface {
	Destroyer
}

// GraphicsPipelineDesc holds everything baked into a
// graphics pipeline. Viewport and scissor are dynamic.
type GraphicsPipelineDesc struct {
	Program     Program
	State       *metadata.DrawState
	Mesh        *metadata.MeshLayout
	Attachments *metadata.AttachmentLayout
}

// BindingPool is a pool of binding sets. Sets are released
// all at once by Reset.
type BindingPool interface {
	Destroyer
	// Allocate allocates a set matching group set of prog.
	// It fails with core.ErrBindingPoolExhausted when the
	// pool is full.
	Allocate(prog Program, set uint32) (BindingSet, error)
	Reset() error
}

// BindingSet is a group of resource bindings.
type BindingSet interface {
	Write(writes []BindingWrite)
}

// BindingWrite describes the resource bound at one slot.
// Only the fields relevant to Kind are used.
type BindingWrite struct {
	Binding uint32
	Kind    metadata.BindingKind
	View    ImageView
	Sampler Sampler
	Buffer  Buffer
	Offset  uint64
	Size    uint64
}

// QueryPool is a pool of queries of a single kind.
type QueryPool interface {
	Destroyer
	// Results copies count raw results starting at first.
	// If wait is set, it blocks until they are available.
	Results(first, count uint32, wait bool) ([]uint64, error)
}

// ImageLayout is the layout an image is in on the GPU.
type ImageLayout uint8

const (
	LayoutUndefined ImageLayout = iota
	LayoutGeneral
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutShaderRead
	LayoutTransferSrc
	LayoutTransferDst
	LayoutPresent
)

// ImageRange selects mip levels and layers of an image.
type ImageRange struct {
	BaseLevel, Levels uint32
	BaseLayer, Layers uint32
}

// Region selects a box in one mip level of an image.
type Region struct {
	Level             uint32
	BaseLayer, Layers uint32
	X, Y, Z           int32
	Width, Height     uint32
	Depth             uint32
}

// Image is a GPU image. The caller tracks its layout.
type Image interface {
	Destroyer
	Desc() *metadata.TextureDesc
	NewView(r ImageRange) (ImageView, error)
}

type ImageView interface {
	Destroyer
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Filter     metadata.TextureFilter
	Wrap       metadata.TextureWrap
	Anisotropy bool
	// MaxLOD of zero restricts sampling to the base level.
	MaxLOD float32
}

type Sampler interface {
	Destroyer
}

// Buffer is a GPU buffer.
type Buffer interface {
	Destroyer
	Size() uint64
	Type() metadata.BufferType
	// Bytes is the mapped memory, or nil when the buffer is
	// not host visible.
	Bytes() []byte
}

// Fence is a GPU to CPU synchronization primitive.
type Fence interface {
	Destroyer
	Wait() error
	Reset() error
}

// Semaphore is a GPU to GPU synchronization primitive.
type Semaphore interface {
	Destroyer
}

// Swapchain is a ring of presentable images.
// Its images are owned by the swapchain.
type Swapchain interface {
	Destroyer
	Images() []Image
	Format() metadata.Format
	Extent() (width, height uint32)
	// Acquire returns the index of the next image, signaling
	// signal when it can be rendered to. It fails with
	// core.ErrOutOfDate or core.ErrSuboptimal when the
	// swapchain must be recreated.
	Acquire(signal Semaphore) (uint32, error)
	Present(index uint32, wait Semaphore) error
}
