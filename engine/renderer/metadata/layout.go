package metadata

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

/** @brief Type of a vertex attribute. */
type VertexFormat uint8

const (
	VertexFloat VertexFormat = iota
	VertexVec2
	VertexVec3
	VertexVec4
)

/** @brief Size in bytes of one element. */
func (f VertexFormat) Size() uint32 {
	return 4 * (uint32(f) + 1)
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   VertexFormat
	Offset   uint32
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

/**
 * @brief The vertex input layout of a mesh.
 * Two meshes with equal layouts can share pipelines.
 */
type MeshLayout struct {
	Bindings   []VertexBinding
	Attributes []VertexAttribute
}

func (l *MeshLayout) Equal(o *MeshLayout) bool {
	if l == o {
		return true
	}
	if l == nil || o == nil {
		return false
	}
	return slices.Equal(l.Bindings, o.Bindings) && slices.Equal(l.Attributes, o.Attributes)
}

func (l *MeshLayout) Clone() *MeshLayout {
	if l == nil {
		return nil
	}
	return &MeshLayout{Bindings: slices.Clone(l.Bindings), Attributes: slices.Clone(l.Attributes)}
}

/** @brief Formats of the attachments a pipeline renders into. */
type AttachmentLayout struct {
	Colors []Format
	/** @brief FormatUndefined when the pass has no depth attachment. */
	Depth Format
}

func (l *AttachmentLayout) Equal(o *AttachmentLayout) bool {
	if l == o {
		return true
	}
	if l == nil || o == nil {
		return false
	}
	return l.Depth == o.Depth && slices.Equal(l.Colors, o.Colors)
}

func (l *AttachmentLayout) Clone() *AttachmentLayout {
	if l == nil {
		return nil
	}
	return &AttachmentLayout{Colors: slices.Clone(l.Colors), Depth: l.Depth}
}

/** @brief What happens to an attachment when a pass begins. */
type LoadOp uint8

const (
	LoadKeep LoadOp = iota
	LoadClear
	LoadDontCare
)

/** @brief Load operation and clear values for a render pass. */
type Load struct {
	Op      LoadOp
	Color   mgl32.Vec4
	Depth   float32
	Stencil uint8
}

/** @brief Clears to the given color and resets depth to 1. */
func ClearColor(c mgl32.Vec4) Load {
	return Load{Op: LoadClear, Color: c, Depth: 1}
}
