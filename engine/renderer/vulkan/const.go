package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

/**
 * @brief Descriptors of each type a binding pool reserves per set.
 */
const VULKAN_POOL_DESCRIPTORS_PER_SET uint32 = 8

/**
 * @brief Magic number prefixing the persisted pipeline cache blob.
 */
const VULKAN_PIPELINE_CACHE_MAGIC uint32 = 0x43504e41 // "ANPC"

/**
 * @brief Version of the pipeline cache blob header.
 */
const VULKAN_PIPELINE_CACHE_VERSION uint32 = 1

var formats = [...]vk.Format{
	metadata.FormatUndefined:        vk.FormatUndefined,
	metadata.FormatR8:               vk.FormatR8Unorm,
	metadata.FormatRG8:              vk.FormatR8g8Unorm,
	metadata.FormatRGBA8:            vk.FormatR8g8b8a8Unorm,
	metadata.FormatSRGBA8:           vk.FormatR8g8b8a8Srgb,
	metadata.FormatBGRA8:            vk.FormatB8g8r8a8Unorm,
	metadata.FormatSBGRA8:           vk.FormatB8g8r8a8Srgb,
	metadata.FormatR16F:             vk.FormatR16Sfloat,
	metadata.FormatRG16F:            vk.FormatR16g16Sfloat,
	metadata.FormatRGBA16F:          vk.FormatR16g16b16a16Sfloat,
	metadata.FormatR32F:             vk.FormatR32Sfloat,
	metadata.FormatRG32F:            vk.FormatR32g32Sfloat,
	metadata.FormatRGBA32F:          vk.FormatR32g32b32a32Sfloat,
	metadata.FormatDepth16:          vk.FormatD16Unorm,
	metadata.FormatDepth32F:         vk.FormatD32Sfloat,
	metadata.FormatDepth24Stencil8:  vk.FormatD24UnormS8Uint,
	metadata.FormatDepth32FStencil8: vk.FormatD32SfloatS8Uint,
}

func vulkanFormat(f metadata.Format) vk.Format {
	if int(f) < len(formats) {
		return formats[f]
	}
	return vk.FormatUndefined
}

func metadataFormat(f vk.Format) metadata.Format {
	for i, v := range formats {
		if v == f {
			return metadata.Format(i)
		}
	}
	return metadata.FormatUndefined
}

func aspectMask(f metadata.Format) vk.ImageAspectFlags {
	switch {
	case f.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case f.IsDepth():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// viewAspectMask is the aspect a view samples. Depth/stencil views
// only expose depth.
func viewAspectMask(f metadata.Format) vk.ImageAspectFlags {
	if f.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

var layouts = [...]vk.ImageLayout{
	driver.LayoutUndefined:       vk.ImageLayoutUndefined,
	driver.LayoutGeneral:         vk.ImageLayoutGeneral,
	driver.LayoutColorAttachment: vk.ImageLayoutColorAttachmentOptimal,
	driver.LayoutDepthAttachment: vk.ImageLayoutDepthStencilAttachmentOptimal,
	driver.LayoutShaderRead:      vk.ImageLayoutShaderReadOnlyOptimal,
	driver.LayoutTransferSrc:     vk.ImageLayoutTransferSrcOptimal,
	driver.LayoutTransferDst:     vk.ImageLayoutTransferDstOptimal,
	driver.LayoutPresent:         vk.ImageLayoutPresentSrc,
}

func vulkanLayout(l driver.ImageLayout) vk.ImageLayout {
	return layouts[l]
}

// layoutSync returns the accesses and stages that touch an image
// while it is in layout l.
func layoutSync(l driver.ImageLayout) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch l {
	case driver.LayoutGeneral:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	case driver.LayoutColorAttachment:
		return vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case driver.LayoutDepthAttachment:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	case driver.LayoutShaderRead:
		return vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit)
	case driver.LayoutTransferSrc:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case driver.LayoutTransferDst:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case driver.LayoutPresent:
		return 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

func stageFlags(s metadata.ShaderStage) vk.ShaderStageFlags {
	var f vk.ShaderStageFlagBits
	if s&metadata.ShaderStageVertex != 0 {
		f |= vk.ShaderStageVertexBit
	}
	if s&metadata.ShaderStageTessControl != 0 {
		f |= vk.ShaderStageTessellationControlBit
	}
	if s&metadata.ShaderStageTessEval != 0 {
		f |= vk.ShaderStageTessellationEvaluationBit
	}
	if s&metadata.ShaderStageFragment != 0 {
		f |= vk.ShaderStageFragmentBit
	}
	if s&metadata.ShaderStageCompute != 0 {
		f |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(f)
}

var descriptorTypes = [...]vk.DescriptorType{
	metadata.BindingUniformDynamic: vk.DescriptorTypeUniformBufferDynamic,
	metadata.BindingUniform:        vk.DescriptorTypeUniformBuffer,
	metadata.BindingTexture:        vk.DescriptorTypeCombinedImageSampler,
	metadata.BindingStorageBuffer:  vk.DescriptorTypeStorageBuffer,
	metadata.BindingStorageImage:   vk.DescriptorTypeStorageImage,
}

func descriptorType(k metadata.BindingKind) vk.DescriptorType {
	return descriptorTypes[k]
}

func bufferUsage(t metadata.BufferType) vk.BufferUsageFlags {
	var f vk.BufferUsageFlagBits
	switch t {
	case metadata.BufferVertex:
		f = vk.BufferUsageVertexBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
	case metadata.BufferIndex:
		f = vk.BufferUsageIndexBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
	case metadata.BufferUniform:
		f = vk.BufferUsageUniformBufferBit
	case metadata.BufferStorage:
		f = vk.BufferUsageStorageBufferBit | vk.BufferUsageTransferDstBit | vk.BufferUsageTransferSrcBit
	case metadata.BufferCPUToGPU:
		f = vk.BufferUsageTransferSrcBit
	case metadata.BufferGPUToCPU:
		f = vk.BufferUsageTransferDstBit
	}
	return vk.BufferUsageFlags(f)
}

func memoryProperties(t metadata.BufferType) vk.MemoryPropertyFlagBits {
	if t == metadata.BufferGPUToCPU {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit
	}
	if t.HostVisible() {
		return vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return vk.MemoryPropertyDeviceLocalBit
}

func imageUsage(desc *metadata.TextureDesc) vk.ImageUsageFlags {
	f := vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	if desc.Usage&metadata.TextureUsageSampled != 0 {
		f |= vk.ImageUsageSampledBit
	}
	if desc.Usage&metadata.TextureUsageAttachment != 0 {
		if desc.Format.IsDepth() {
			f |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			f |= vk.ImageUsageColorAttachmentBit
		}
	}
	if desc.Usage&metadata.TextureUsageStorage != 0 {
		f |= vk.ImageUsageStorageBit
	}
	return vk.ImageUsageFlags(f)
}

var compareOps = [...]vk.CompareOp{
	metadata.TestNever:        vk.CompareOpNever,
	metadata.TestLess:         vk.CompareOpLess,
	metadata.TestLessEqual:    vk.CompareOpLessOrEqual,
	metadata.TestEqual:        vk.CompareOpEqual,
	metadata.TestGreater:      vk.CompareOpGreater,
	metadata.TestGreaterEqual: vk.CompareOpGreaterOrEqual,
	metadata.TestNotEqual:     vk.CompareOpNotEqual,
	metadata.TestAlways:       vk.CompareOpAlways,
}

var stencilOps = [...]vk.StencilOp{
	metadata.StencilKeep:          vk.StencilOpKeep,
	metadata.StencilZero:          vk.StencilOpZero,
	metadata.StencilReplace:       vk.StencilOpReplace,
	metadata.StencilIncrement:     vk.StencilOpIncrementAndClamp,
	metadata.StencilIncrementWrap: vk.StencilOpIncrementAndWrap,
	metadata.StencilDecrement:     vk.StencilOpDecrementAndClamp,
	metadata.StencilDecrementWrap: vk.StencilOpDecrementAndWrap,
	metadata.StencilInvert:        vk.StencilOpInvert,
}

var blendOps = [...]vk.BlendOp{
	metadata.BlendAdd:             vk.BlendOpAdd,
	metadata.BlendSubtract:        vk.BlendOpSubtract,
	metadata.BlendReverseSubtract: vk.BlendOpReverseSubtract,
	metadata.BlendMin:             vk.BlendOpMin,
	metadata.BlendMax:             vk.BlendOpMax,
}

var blendFactors = [...]vk.BlendFactor{
	metadata.BlendZero:             vk.BlendFactorZero,
	metadata.BlendOne:              vk.BlendFactorOne,
	metadata.BlendSrcColor:         vk.BlendFactorSrcColor,
	metadata.BlendOneMinusSrcColor: vk.BlendFactorOneMinusSrcColor,
	metadata.BlendDstColor:         vk.BlendFactorDstColor,
	metadata.BlendOneMinusDstColor: vk.BlendFactorOneMinusDstColor,
	metadata.BlendSrcAlpha:         vk.BlendFactorSrcAlpha,
	metadata.BlendOneMinusSrcAlpha: vk.BlendFactorOneMinusSrcAlpha,
	metadata.BlendDstAlpha:         vk.BlendFactorDstAlpha,
	metadata.BlendOneMinusDstAlpha: vk.BlendFactorOneMinusDstAlpha,
}

var polygonModes = [...]vk.PolygonMode{
	metadata.PolygonFill:  vk.PolygonModeFill,
	metadata.PolygonLine:  vk.PolygonModeLine,
	metadata.PolygonPoint: vk.PolygonModePoint,
}

func cullMode(s *metadata.DrawState) vk.CullModeFlags {
	if !s.CullFace {
		return vk.CullModeFlags(vk.CullModeNone)
	}
	switch s.CullFaceMode {
	case metadata.FaceFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceAll:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

var vertexFormats = [...]vk.Format{
	metadata.VertexFloat: vk.FormatR32Sfloat,
	metadata.VertexVec2:  vk.FormatR32g32Sfloat,
	metadata.VertexVec3:  vk.FormatR32g32b32Sfloat,
	metadata.VertexVec4:  vk.FormatR32g32b32a32Sfloat,
}

func loadOp(op metadata.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case metadata.LoadClear:
		return vk.AttachmentLoadOpClear
	case metadata.LoadDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpLoad
}

func addressMode(w metadata.TextureWrap) vk.SamplerAddressMode {
	switch w {
	case metadata.TextureWrapRepeat:
		return vk.SamplerAddressModeRepeat
	case metadata.TextureWrapMirror:
		return vk.SamplerAddressModeMirroredRepeat
	}
	return vk.SamplerAddressModeClampToEdge
}
