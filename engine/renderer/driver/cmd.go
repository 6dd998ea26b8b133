package driver

import (
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// PassDesc describes the attachments of a render pass.
type PassDesc struct {
	Colors []ImageView
	// Depth is nil when the pass has no depth attachment.
	Depth         ImageView
	Layout        metadata.AttachmentLayout
	Width, Height uint32
	ColorLoad     metadata.Load
	DepthLoad     metadata.Load
}

// CmdBuffer records GPU commands.
// Commands execute in recording order.
type CmdBuffer interface {
	Destroyer

	// Begin resets the buffer and prepares it for recording.
	Begin() error
	End() error

	// BeginPass expects color attachments in
	// LayoutColorAttachment and depth in
	// LayoutDepthAttachment.
	BeginPass(desc *PassDesc)
	EndPass()

	SetViewport(x, y, width, height float32)
	SetScissor(x, y int32, width, height uint32)

	BindPipeline(p Pipeline)
	// BindSets binds sets starting at group first, using the
	// bind point of prog.
	BindSets(prog Program, first uint32, sets []BindingSet, offsets []uint32)
	BindVertexBuffers(bufs []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64)

	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)
	Dispatch(x, y, z uint32)

	Transition(img Image, r ImageRange, from, to ImageLayout)
	CopyBufferToImage(src Buffer, srcOffset uint64, dst Image, r Region)
	CopyImageToBuffer(src Image, r Region, dst Buffer, dstOffset uint64)
	CopyBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64)
	// Blit expects src in LayoutTransferSrc and dst in
	// LayoutTransferDst.
	Blit(src Image, sr Region, dst Image, dr Region, linear bool)

	ResetQueries(pool QueryPool, first, count uint32)
	WriteTimestamp(pool QueryPool, index uint32)
	BeginQuery(pool QueryPool, index uint32)
	EndQuery(pool QueryPool, index uint32)
}
