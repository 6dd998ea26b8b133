package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

/**
 * @brief Maximum color attachments of a render pass.
 */
const VULKAN_MAX_COLOR_ATTACHMENTS = 8

// renderpassKey identifies a render pass. Passes that only differ by
// load ops are compatible, pipelines are built against the LoadKeep one.
type renderpassKey struct {
	colors     [VULKAN_MAX_COLOR_ATTACHMENTS]metadata.Format
	colorCount uint8
	depth      metadata.Format
	colorOp    metadata.LoadOp
	depthOp    metadata.LoadOp
}

func newRenderpassKey(layout *metadata.AttachmentLayout, colorOp, depthOp metadata.LoadOp) renderpassKey {
	key := renderpassKey{
		colorCount: uint8(min(len(layout.Colors), VULKAN_MAX_COLOR_ATTACHMENTS)),
		depth:      layout.Depth,
		colorOp:    colorOp,
		depthOp:    depthOp,
	}
	copy(key.colors[:], layout.Colors)
	return key
}

type VulkanRenderpass struct {
	Handle vk.RenderPass
	key    renderpassKey
}

// renderpass returns the cached render pass for key, creating it the
// first time.
func (vd *VulkanDevice) renderpass(key renderpassKey) (*VulkanRenderpass, error) {
	var out *VulkanRenderpass
	err := vd.locks.SafeCall(RenderpassManagement, func() error {
		if handle, ok := vd.renderpasses[key]; ok {
			out = &VulkanRenderpass{Handle: handle, key: key}
			return nil
		}
		rp, err := vd.renderpassCreate(key)
		if err != nil {
			return err
		}
		vd.renderpasses[key] = rp.Handle
		out = rp
		return nil
	})
	return out, err
}

func (vd *VulkanDevice) renderpassCreate(key renderpassKey) (*VulkanRenderpass, error) {
	// Main subpass
	subpass := vk.SubpassDescription{
		PipelineBindPoint: vk.PipelineBindPointGraphics,
	}

	attachmentDescriptions := make([]vk.AttachmentDescription, 0, key.colorCount+1)
	colorAttachmentReferences := make([]vk.AttachmentReference, 0, key.colorCount)

	// Color attachments stay in the attachment layout, transitions are
	// recorded explicitly around the pass.
	for i := uint8(0); i < key.colorCount; i++ {
		attachmentDescriptions = append(attachmentDescriptions, vk.AttachmentDescription{
			Format:         vulkanFormat(key.colors[i]),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(key.colorOp),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
		})
		colorAttachmentReferences = append(colorAttachmentReferences, vk.AttachmentReference{
			Attachment: uint32(i), // Attachment description array index
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}
	subpass.ColorAttachmentCount = uint32(len(colorAttachmentReferences))
	subpass.PColorAttachments = colorAttachmentReferences

	// Depth attachment, if there is one
	if key.depth != metadata.FormatUndefined {
		depthAttachment := vk.AttachmentDescription{
			Format:         vulkanFormat(key.depth),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(key.depthOp),
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutDepthStencilAttachmentOptimal,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		if key.depth.HasStencil() {
			depthAttachment.StencilLoadOp = loadOp(key.depthOp)
			depthAttachment.StencilStoreOp = vk.AttachmentStoreOpStore
		}
		attachmentDescriptions = append(attachmentDescriptions, depthAttachment)

		// Depth stencil data.
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(len(attachmentDescriptions) - 1),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	// Render pass dependencies.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageLateFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit |
			vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	// Render pass create.
	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachmentDescriptions)),
		PAttachments:    attachmentDescriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var pRenderPass vk.RenderPass
	if err := vulkanError("vkCreateRenderPass", vk.CreateRenderPass(vd.LogicalDevice, &renderpassCreateInfo, vd.context.Allocator, &pRenderPass)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("Render pass created (%d colors, depth %s).", key.colorCount, key.depth)
	return &VulkanRenderpass{Handle: pRenderPass, key: key}, nil
}

func (vr *VulkanRenderpass) RenderpassBegin(commandBuffer *VulkanCommandBuffer, frameBuffer *VulkanFramebuffer, width, height uint32, colorLoad, depthLoad metadata.Load) {
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: frameBuffer.Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: width, Height: height},
		},
	}

	// One clear value per attachment, in attachment order.
	clearValues := make([]vk.ClearValue, 0, vr.key.colorCount+1)
	for i := uint8(0); i < vr.key.colorCount; i++ {
		var value vk.ClearValue
		value.SetColor(colorLoad.Color[:])
		clearValues = append(clearValues, value)
	}
	if vr.key.depth != metadata.FormatUndefined {
		var value vk.ClearValue
		value.SetDepthStencil(depthLoad.Depth, uint32(depthLoad.Stencil))
		clearValues = append(clearValues, value)
	}
	beginInfo.ClearValueCount = uint32(len(clearValues))
	beginInfo.PClearValues = clearValues

	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (vr *VulkanRenderpass) RenderpassEnd(commandBuffer *VulkanCommandBuffer) {
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
