package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

/**
 * @brief Represents a single shader stage.
 */
type VulkanShaderStage struct {
	/** @brief The internal shader module Handle. */
	Handle vk.ShaderModule
	/** @brief The pipeline shader stage creation info. */
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

/**
 * @brief A linked set of shader stages with one descriptor set layout
 * per binding group and the pipeline layout made of them.
 */
type VulkanProgram struct {
	device *VulkanDevice
	name   string
	layout metadata.ProgramLayout

	compute        bool
	tessellation   bool
	Stages         []VulkanShaderStage
	SetLayouts     [metadata.SetCount]vk.DescriptorSetLayout
	PipelineLayout vk.PipelineLayout
}

func NewShaderModule(device *VulkanDevice, module metadata.ShaderModule) (VulkanShaderStage, error) {
	stage := VulkanShaderStage{}
	code, err := spirvWords(module.Code)
	if err != nil {
		return stage, err
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType: vk.StructureTypeShaderModuleCreateInfo,
		// Size in bytes, the code itself as words.
		CodeSize: uint(len(module.Code)),
		PCode:    code,
	}
	if err := vulkanError("vkCreateShaderModule", vk.CreateShaderModule(device.LogicalDevice, &createInfo, device.context.Allocator, &stage.Handle)); err != nil {
		return stage, err
	}

	// Shader stage info
	stage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFlagBits(stageFlags(module.Stage)),
		Module: stage.Handle,
		PName:  VulkanSafeString("main"),
	}
	return stage, nil
}

func (vd *VulkanDevice) NewProgram(desc *metadata.ProgramDesc) (driver.Program, error) {
	if err := desc.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("program %q: %w", desc.Name, err)
	}
	if len(desc.Modules) == 0 {
		return nil, fmt.Errorf("program %q has no stages", desc.Name)
	}
	program := &VulkanProgram{
		device:       vd,
		name:         desc.Name,
		layout:       desc.Layout,
		compute:      desc.IsCompute(),
		tessellation: desc.HasTessellation(),
	}

	for _, module := range desc.Modules {
		stage, err := NewShaderModule(vd, module)
		if err != nil {
			err = fmt.Errorf("program %q, %s stage: %w", desc.Name, module.Stage.Extension(), err)
			core.LogError(err.Error())
			program.Destroy()
			return nil, err
		}
		program.Stages = append(program.Stages, stage)
	}

	// One layout per group, empty groups included so set numbers
	// match the shaders.
	for set := uint32(0); set < metadata.SetCount; set++ {
		slots := desc.Layout.Set(set)
		bindings := make([]vk.DescriptorSetLayoutBinding, len(slots))
		for i, slot := range slots {
			bindings[i] = vk.DescriptorSetLayoutBinding{
				Binding:         slot.Binding,
				DescriptorType:  descriptorType(slot.Kind),
				DescriptorCount: 1,
				StageFlags:      stageFlags(slot.StageFlags()),
			}
		}
		layoutInfo := vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(bindings)),
			PBindings:    bindings,
		}
		if err := vulkanError("vkCreateDescriptorSetLayout", vk.CreateDescriptorSetLayout(vd.LogicalDevice, &layoutInfo, vd.context.Allocator, &program.SetLayouts[set])); err != nil {
			core.LogError("program %q: %s", desc.Name, err)
			program.Destroy()
			return nil, err
		}
	}

	// Pipeline layout
	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(program.SetLayouts)),
		PSetLayouts:    program.SetLayouts[:],
	}
	if err := vulkanError("vkCreatePipelineLayout", vk.CreatePipelineLayout(vd.LogicalDevice, &pipelineLayoutCreateInfo, vd.context.Allocator, &program.PipelineLayout)); err != nil {
		core.LogError("program %q: %s", desc.Name, err)
		program.Destroy()
		return nil, err
	}
	core.LogDebug("Program '%s' created with %d stages.", desc.Name, len(program.Stages))
	return program, nil
}

func (vp *VulkanProgram) Name() string                    { return vp.name }
func (vp *VulkanProgram) Layout() *metadata.ProgramLayout { return &vp.layout }
func (vp *VulkanProgram) IsCompute() bool                 { return vp.compute }

func (vp *VulkanProgram) bindPoint() vk.PipelineBindPoint {
	if vp.compute {
		return vk.PipelineBindPointCompute
	}
	return vk.PipelineBindPointGraphics
}

func (vp *VulkanProgram) stageInfos() []vk.PipelineShaderStageCreateInfo {
	infos := make([]vk.PipelineShaderStageCreateInfo, len(vp.Stages))
	for i := range vp.Stages {
		infos[i] = vp.Stages[i].ShaderStageCreateInfo
	}
	return infos
}

func (vp *VulkanProgram) Destroy() {
	device := vp.device
	if vp.PipelineLayout != nil {
		vk.DestroyPipelineLayout(device.LogicalDevice, vp.PipelineLayout, device.context.Allocator)
		vp.PipelineLayout = nil
	}
	for i := range vp.SetLayouts {
		if vp.SetLayouts[i] != vk.NullDescriptorSetLayout {
			vk.DestroyDescriptorSetLayout(device.LogicalDevice, vp.SetLayouts[i], device.context.Allocator)
			vp.SetLayouts[i] = vk.NullDescriptorSetLayout
		}
	}
	for i := range vp.Stages {
		vk.DestroyShaderModule(device.LogicalDevice, vp.Stages[i].Handle, device.context.Allocator)
	}
	vp.Stages = nil
}
