package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

/**
 * @brief Holds a Vulkan pipeline and the bind point it is used at.
 * The layout belongs to the program the pipeline was built from.
 */
type VulkanPipeline struct {
	device *VulkanDevice
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief Graphics or compute. */
	BindPoint vk.PipelineBindPoint
}

func boolean(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

func colorWriteMask(mask [4]bool) vk.ColorComponentFlags {
	var flags vk.ColorComponentFlagBits
	for i, bit := range []vk.ColorComponentFlagBits{vk.ColorComponentRBit, vk.ColorComponentGBit, vk.ColorComponentBBit, vk.ColorComponentABit} {
		if mask[i] {
			flags |= bit
		}
	}
	return vk.ColorComponentFlags(flags)
}

func stencilState(s *metadata.DrawState) vk.StencilOpState {
	state := vk.StencilOpState{
		FailOp:      stencilOps[s.StencilFail],
		PassOp:      stencilOps[s.StencilDepthPass],
		DepthFailOp: stencilOps[s.StencilPass],
		CompareOp:   compareOps[s.StencilFunc],
		CompareMask: 0xff,
		WriteMask:   0,
		Reference:   uint32(s.StencilValue),
	}
	if s.StencilWriteMask {
		state.WriteMask = 0xff
	}
	return state
}

func (vd *VulkanDevice) NewGraphicsPipeline(desc *driver.GraphicsPipelineDesc) (driver.Pipeline, error) {
	program := desc.Program.(*VulkanProgram)
	state := desc.State
	if program.compute {
		return nil, fmt.Errorf("program %q is a compute program: %w", program.name, core.ErrPipelineBuild)
	}

	// Compatible with every pass using the same formats.
	rp, err := vd.renderpass(newRenderpassKey(desc.Attachments, metadata.LoadKeep, metadata.LoadKeep))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, core.ErrPipelineBuild)
	}

	// Viewport and scissor are dynamic.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             polygonModes[state.PolygonMode],
		LineWidth:               1.0,
		CullMode:                cullMode(state),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	stencil := stencilState(state)
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       boolean(state.DepthTest),
		DepthWriteEnable:      boolean(state.DepthTest && state.DepthWriteMask),
		DepthCompareOp:        compareOps[state.DepthFunc],
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     boolean(state.StencilTest),
		Front:                 stencil,
		Back:                  stencil,
		MaxDepthBounds:        1.0,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         boolean(state.Blend),
		SrcColorBlendFactor: blendFactors[state.BlendSrcRGB],
		DstColorBlendFactor: blendFactors[state.BlendDstRGB],
		ColorBlendOp:        blendOps[state.BlendEquationRGB],
		SrcAlphaBlendFactor: blendFactors[state.BlendSrcAlpha],
		DstAlphaBlendFactor: blendFactors[state.BlendDstAlpha],
		AlphaBlendOp:        blendOps[state.BlendEquationAlpha],
		ColorWriteMask:      colorWriteMask(state.ColorWriteMask),
	}
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.Attachments.Colors))
	for i := range blendAttachments {
		blendAttachments[i] = colorBlendAttachmentState
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
		BlendConstants:  [4]float32(state.BlendColor),
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vertexInputState(desc.Mesh)

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	var tessellation *vk.PipelineTessellationStateCreateInfo
	if program.tessellation {
		inputAssembly.Topology = vk.PrimitiveTopologyPatchList
		tessellation = &vk.PipelineTessellationStateCreateInfo{
			SType:              vk.StructureTypePipelineTessellationStateCreateInfo,
			PatchControlPoints: uint32(max(state.PatchSize, 1)),
		}
	}

	stages := program.stageInfos()

	// Pipeline create
	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PTessellationState:  tessellation,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              program.PipelineLayout,
		RenderPass:          rp.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := vd.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError("vkCreateGraphicsPipelines", vk.CreateGraphicsPipelines(
			vd.LogicalDevice,
			vd.pipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			vd.context.Allocator,
			pPipelines))
	}); err != nil {
		err = fmt.Errorf("program %q: %s: %w", program.name, err, core.ErrPipelineBuild)
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("Graphics pipeline created for program '%s'.", program.name)
	return &VulkanPipeline{device: vd, Handle: pPipelines[0], BindPoint: vk.PipelineBindPointGraphics}, nil
}

func (vd *VulkanDevice) NewComputePipeline(prog driver.Program) (driver.Pipeline, error) {
	program := prog.(*VulkanProgram)
	if !program.compute {
		return nil, fmt.Errorf("program %q is not a compute program: %w", program.name, core.ErrPipelineBuild)
	}
	pipelineCreateInfo := vk.ComputePipelineCreateInfo{
		SType:              vk.StructureTypeComputePipelineCreateInfo,
		Stage:              program.Stages[0].ShaderStageCreateInfo,
		Layout:             program.PipelineLayout,
		BasePipelineHandle: vk.NullPipeline,
		BasePipelineIndex:  -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := vd.locks.SafeCall(PipelineManagement, func() error {
		return vulkanError("vkCreateComputePipelines", vk.CreateComputePipelines(
			vd.LogicalDevice,
			vd.pipelineCache,
			1,
			[]vk.ComputePipelineCreateInfo{pipelineCreateInfo},
			vd.context.Allocator,
			pPipelines))
	}); err != nil {
		err = fmt.Errorf("program %q: %s: %w", program.name, err, core.ErrPipelineBuild)
		core.LogError(err.Error())
		return nil, err
	}

	core.LogDebug("Compute pipeline created for program '%s'.", program.name)
	return &VulkanPipeline{device: vd, Handle: pPipelines[0], BindPoint: vk.PipelineBindPointCompute}, nil
}

func (pipeline *VulkanPipeline) Destroy() {
	if pipeline.Handle != vk.NullPipeline {
		vk.DestroyPipeline(pipeline.device.LogicalDevice, pipeline.Handle, pipeline.device.context.Allocator)
		pipeline.Handle = vk.NullPipeline
	}
}
