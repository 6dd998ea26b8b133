package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer implements driver.CmdBuffer.
type VulkanCommandBuffer struct {
	device *VulkanDevice
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	pass *VulkanRenderpass
	// Framebuffers of the passes recorded since the last Begin.
	framebuffers []*VulkanFramebuffer
}

func (vd *VulkanDevice) NewCmdBuffer() (driver.CmdBuffer, error) {
	return NewVulkanCommandBuffer(vd, vd.GraphicsCommandPool, true)
}

func NewVulkanCommandBuffer(device *VulkanDevice, pool vk.CommandPool, isPrimary bool) (*VulkanCommandBuffer, error) {
	vCommandBuffer := &VulkanCommandBuffer{
		device: device,
		State:  COMMAND_BUFFER_STATE_NOT_ALLOCATED,
	}

	level := vk.CommandBufferLevelPrimary
	if !isPrimary {
		level = vk.CommandBufferLevelSecondary
	}

	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		CommandBufferCount: 1,
		Level:              level,
	}

	handles := make([]vk.CommandBuffer, 1)
	if err := vulkanError("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(device.LogicalDevice, &allocateInfo, handles)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	vCommandBuffer.Handle = handles[0]
	vCommandBuffer.State = COMMAND_BUFFER_STATE_READY
	return vCommandBuffer, nil
}

func (v *VulkanCommandBuffer) Destroy() {
	v.releaseFramebuffers()
	if v.Handle != nil {
		vk.FreeCommandBuffers(v.device.LogicalDevice, v.device.GraphicsCommandPool, 1, []vk.CommandBuffer{v.Handle})
		v.Handle = nil
	}
	v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (v *VulkanCommandBuffer) releaseFramebuffers() {
	for _, fb := range v.framebuffers {
		fb.Destroy(v.device)
	}
	v.framebuffers = v.framebuffers[:0]
}

// Begin resets the buffer. The caller guarantees the GPU is done
// with the previous recording.
func (v *VulkanCommandBuffer) Begin() error {
	v.releaseFramebuffers()
	v.pass = nil

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vulkanError("vkBeginCommandBuffer", vk.BeginCommandBuffer(v.Handle, &beginInfo)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) End() error {
	if err := vulkanError("vkEndCommandBuffer", vk.EndCommandBuffer(v.Handle)); err != nil {
		core.LogError(err.Error())
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) BeginPass(desc *driver.PassDesc) {
	key := newRenderpassKey(&desc.Layout, desc.ColorLoad.Op, desc.DepthLoad.Op)
	rp, err := v.device.renderpass(key)
	if err != nil {
		core.LogError("unable to begin pass: %s", err)
		return
	}
	attachments := make([]vk.ImageView, 0, len(desc.Colors)+1)
	for _, view := range desc.Colors {
		attachments = append(attachments, view.(*VulkanImageView).Handle)
	}
	if desc.Depth != nil {
		attachments = append(attachments, desc.Depth.(*VulkanImageView).Handle)
	}
	fb, err := FramebufferCreate(v.device, rp, desc.Width, desc.Height, attachments)
	if err != nil {
		core.LogError("unable to begin pass: %s", err)
		return
	}
	v.framebuffers = append(v.framebuffers, fb)
	v.pass = rp

	rp.RenderpassBegin(v, fb, desc.Width, desc.Height, desc.ColorLoad, desc.DepthLoad)
	v.SetViewport(0, 0, float32(desc.Width), float32(desc.Height))
	v.SetScissor(0, 0, desc.Width, desc.Height)
}

func (v *VulkanCommandBuffer) EndPass() {
	if v.pass == nil {
		return
	}
	v.pass.RenderpassEnd(v)
	v.pass = nil
}

func (v *VulkanCommandBuffer) SetViewport(x, y, width, height float32) {
	viewport := vk.Viewport{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
}

func (v *VulkanCommandBuffer) SetScissor(x, y int32, width, height uint32) {
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (v *VulkanCommandBuffer) BindPipeline(p driver.Pipeline) {
	pipeline := p.(*VulkanPipeline)
	vk.CmdBindPipeline(v.Handle, pipeline.BindPoint, pipeline.Handle)
}

func (v *VulkanCommandBuffer) BindSets(prog driver.Program, first uint32, sets []driver.BindingSet, offsets []uint32) {
	program := prog.(*VulkanProgram)
	handles := make([]vk.DescriptorSet, len(sets))
	for i, set := range sets {
		handles[i] = set.(*VulkanBindingSet).Handle
	}
	vk.CmdBindDescriptorSets(v.Handle, program.bindPoint(), program.PipelineLayout,
		first, uint32(len(handles)), handles, uint32(len(offsets)), offsets)
}

func (v *VulkanCommandBuffer) BindVertexBuffers(bufs []driver.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(bufs))
	deviceOffsets := make([]vk.DeviceSize, len(bufs))
	for i, buf := range bufs {
		handles[i] = buf.(*VulkanBuffer).Handle
		if i < len(offsets) {
			deviceOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, uint32(len(handles)), handles, deviceOffsets)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64) {
	vk.CmdBindIndexBuffer(v.Handle, buf.(*VulkanBuffer).Handle, vk.DeviceSize(offset), vk.IndexTypeUint32)
}

func (v *VulkanCommandBuffer) Draw(vertexCount, instanceCount uint32) {
	vk.CmdDraw(v.Handle, vertexCount, instanceCount, 0, 0)
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, 0, 0, 0)
}

func (v *VulkanCommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(v.Handle, x, y, z)
}

func (v *VulkanCommandBuffer) Transition(img driver.Image, r driver.ImageRange, from, to driver.ImageLayout) {
	image := img.(*VulkanImage)
	srcAccess, srcStage := layoutSync(from)
	dstAccess, dstStage := layoutSync(to)

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           vulkanLayout(from),
		NewLayout:           vulkanLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(image.desc.Format),
			BaseMipLevel:   r.BaseLevel,
			LevelCount:     r.Levels,
			BaseArrayLayer: r.BaseLayer,
			LayerCount:     r.Layers,
		},
	}
	vk.CmdPipelineBarrier(v.Handle, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// subresource selects the region layers. Copies touch one aspect
// only, depth for depth/stencil formats.
func subresource(image *VulkanImage, r driver.Region) vk.ImageSubresourceLayers {
	return vk.ImageSubresourceLayers{
		AspectMask:     viewAspectMask(image.desc.Format),
		MipLevel:       r.Level,
		BaseArrayLayer: r.BaseLayer,
		LayerCount:     max(r.Layers, 1),
	}
}

func bufferImageCopy(offset uint64, image *VulkanImage, r driver.Region) vk.BufferImageCopy {
	return vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(offset),
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource:  subresource(image, r),
		ImageOffset:       vk.Offset3D{X: r.X, Y: r.Y, Z: r.Z},
		ImageExtent:       vk.Extent3D{Width: r.Width, Height: r.Height, Depth: max(r.Depth, 1)},
	}
}

func (v *VulkanCommandBuffer) CopyBufferToImage(src driver.Buffer, srcOffset uint64, dst driver.Image, r driver.Region) {
	image := dst.(*VulkanImage)
	region := bufferImageCopy(srcOffset, image, r)
	vk.CmdCopyBufferToImage(v.Handle, src.(*VulkanBuffer).Handle, image.Handle,
		vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (v *VulkanCommandBuffer) CopyImageToBuffer(src driver.Image, r driver.Region, dst driver.Buffer, dstOffset uint64) {
	image := src.(*VulkanImage)
	region := bufferImageCopy(dstOffset, image, r)
	vk.CmdCopyImageToBuffer(v.Handle, image.Handle, vk.ImageLayoutTransferSrcOptimal,
		dst.(*VulkanBuffer).Handle, 1, []vk.BufferImageCopy{region})
}

func (v *VulkanCommandBuffer) CopyBuffer(src driver.Buffer, srcOffset uint64, dst driver.Buffer, dstOffset, size uint64) {
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(v.Handle, src.(*VulkanBuffer).Handle, dst.(*VulkanBuffer).Handle, 1, []vk.BufferCopy{region})
}

func blitOffsets(r driver.Region) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		{X: r.X, Y: r.Y, Z: r.Z},
		{X: r.X + int32(r.Width), Y: r.Y + int32(r.Height), Z: r.Z + int32(max(r.Depth, 1))},
	}
}

func (v *VulkanCommandBuffer) Blit(src driver.Image, sr driver.Region, dst driver.Image, dr driver.Region, linear bool) {
	srcImage := src.(*VulkanImage)
	dstImage := dst.(*VulkanImage)
	blit := vk.ImageBlit{
		SrcSubresource: subresource(srcImage, sr),
		SrcOffsets:     blitOffsets(sr),
		DstSubresource: subresource(dstImage, dr),
		DstOffsets:     blitOffsets(dr),
	}
	filter := vk.FilterNearest
	// Depth formats can only be blitted with nearest filtering.
	if linear && !srcImage.desc.Format.IsDepth() {
		filter = vk.FilterLinear
	}
	vk.CmdBlitImage(v.Handle,
		srcImage.Handle, vk.ImageLayoutTransferSrcOptimal,
		dstImage.Handle, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{blit}, filter)
}

func (v *VulkanCommandBuffer) ResetQueries(pool driver.QueryPool, first, count uint32) {
	vk.CmdResetQueryPool(v.Handle, pool.(*VulkanQueryPool).Handle, first, count)
}

func (v *VulkanCommandBuffer) WriteTimestamp(pool driver.QueryPool, index uint32) {
	vk.CmdWriteTimestamp(v.Handle, vk.PipelineStageBottomOfPipeBit, pool.(*VulkanQueryPool).Handle, index)
}

func (v *VulkanCommandBuffer) BeginQuery(pool driver.QueryPool, index uint32) {
	qp := pool.(*VulkanQueryPool)
	var flags vk.QueryControlFlags
	if qp.kind == metadata.QueryPoolOcclusion && v.device.preciseOcclusion {
		flags = vk.QueryControlFlags(vk.QueryControlPreciseBit)
	}
	vk.CmdBeginQuery(v.Handle, qp.Handle, index, flags)
}

func (v *VulkanCommandBuffer) EndQuery(pool driver.QueryPool, index uint32) {
	vk.CmdEndQuery(v.Handle, pool.(*VulkanQueryPool).Handle, index)
}
