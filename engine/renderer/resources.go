package renderer

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// Texture is a GPU image with its CPU-side images.
// Images are ordered by level, then by layer (or depth slice).
type Texture struct {
	metadata.TextureDesc
	Filter metadata.TextureFilter
	Wrap   metadata.TextureWrap
	Images []Image

	gpu *gpuTexture
}

type gpuTexture struct {
	image driver.Image
	// Swapchain images are not ours to destroy.
	owned bool
	view  driver.ImageView
	// One view per level, all layers.
	levelViews []driver.ImageView
	// One view per level and layer, for attachments and storage.
	layerViews [][]driver.ImageView
	sampler    driver.Sampler
	// Tracked layout of each level.
	layouts []driver.ImageLayout
}

// NewTexture returns an unallocated 2D texture.
func NewTexture(name string, width, height uint32, format metadata.Format) *Texture {
	return &Texture{TextureDesc: metadata.TextureDesc{
		Name:   name,
		Shape:  metadata.TextureShapeD2,
		Format: format,
		Width:  width,
		Height: height,
		Depth:  1,
		Levels: 1,
		Usage:  metadata.TextureUsageSampled,
	}}
}

// IsAllocated reports whether the texture has GPU storage.
func (t *Texture) IsAllocated() bool { return t.gpu != nil }

// subresources is the number of CPU images of a level.
func (t *Texture) subresources(level uint32) uint32 {
	if t.Shape == metadata.TextureShapeD3 {
		return t.LevelDepth(level)
	}
	return t.Layers()
}

// Buffer is a GPU buffer.
type Buffer struct {
	Name string
	Type metadata.BufferType
	Size uint64

	gpu driver.Buffer
}

func (b *Buffer) IsAllocated() bool { return b.gpu != nil }

// UniformBuffer is a ring of uniform blocks in a single
// host-visible buffer. Each Upload moves to the next block,
// which is bound with a dynamic offset.
type UniformBuffer struct {
	Buffer
	blockSize uint64
	stride    uint64
	count     int
	index     int
}

// Offset is the dynamic offset of the current block.
func (u *UniformBuffer) Offset() uint32 {
	return uint32(uint64(u.index) * u.stride)
}

// Upload writes data into the next block.
func (u *UniformBuffer) Upload(data []byte) bool {
	if u.gpu == nil || uint64(len(data)) > u.blockSize {
		return false
	}
	u.index = (u.index + 1) % u.count
	off := uint64(u.index) * u.stride
	copy(u.gpu.Bytes()[off:off+u.blockSize], data)
	return true
}

// Mesh is vertex and index data in GPU buffers.
// Each layout binding reads its own stream of the vertex buffer.
type Mesh struct {
	Name        string
	Layout      metadata.MeshLayout
	VertexCount uint32
	IndexCount  uint32

	vertices *Buffer
	indices  *Buffer
	// Offset of each stream in vertices.
	offsets []uint64
}

// Program is a shader program. Its ID is stable across reloads.
type Program struct {
	ID   uint32
	Name string

	desc metadata.ProgramDesc
	gpu  driver.Program
}

func (p *Program) IsCompute() bool { return p.desc.IsCompute() }

// Framebuffer is a set of attachments rendered to together.
type Framebuffer struct {
	Name   string
	Width  uint32
	Height uint32
	Colors []*Texture
	// May be nil.
	Depth *Texture
	// Attachments are presented rather than sampled afterwards.
	backbuffer bool
}

// Layout returns the attachment formats of the framebuffer.
func (f *Framebuffer) Layout() metadata.AttachmentLayout {
	l := metadata.AttachmentLayout{Colors: make([]metadata.Format, len(f.Colors))}
	for i, c := range f.Colors {
		l.Colors[i] = c.Format
	}
	if f.Depth != nil {
		l.Depth = f.Depth.Format
	}
	return l
}
