package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

/**
 * @brief A descriptor pool. Sets allocated from it are never freed
 * one by one, the whole pool is reset at once.
 */
type VulkanBindingPool struct {
	device *VulkanDevice
	/** @brief The internal pool handle. */
	Handle vk.DescriptorPool
	/** @brief The number of sets the pool can hold. */
	Capacity int
}

/**
 * @brief A descriptor set and the group it was allocated for.
 */
type VulkanBindingSet struct {
	device *VulkanDevice
	Handle vk.DescriptorSet
	/** @brief The binding group of the set. */
	Set uint32
}

func (vd *VulkanDevice) NewBindingPool(capacity int) (driver.BindingPool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("binding pool capacity must be positive, got %d", capacity)
	}
	perType := uint32(capacity) * VULKAN_POOL_DESCRIPTORS_PER_SET
	poolSizes := make([]vk.DescriptorPoolSize, len(descriptorTypes))
	for i, typ := range descriptorTypes {
		poolSizes[i] = vk.DescriptorPoolSize{Type: typ, DescriptorCount: perType}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(capacity),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var handle vk.DescriptorPool
	if err := vulkanError("vkCreateDescriptorPool", vk.CreateDescriptorPool(vd.LogicalDevice, &poolInfo, vd.context.Allocator, &handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanBindingPool{device: vd, Handle: handle, Capacity: capacity}, nil
}

func (vp *VulkanBindingPool) Allocate(prog driver.Program, set uint32) (driver.BindingSet, error) {
	program := prog.(*VulkanProgram)
	if set >= metadata.SetCount {
		return nil, fmt.Errorf("binding group %d out of range", set)
	}
	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     vp.Handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{program.SetLayouts[set]},
	}
	var handle vk.DescriptorSet
	// Exhaustion is expected, the caller moves on to another pool.
	if err := vulkanError("vkAllocateDescriptorSets", vk.AllocateDescriptorSets(vp.device.LogicalDevice, &allocateInfo, &handle)); err != nil {
		return nil, err
	}
	return &VulkanBindingSet{device: vp.device, Handle: handle, Set: set}, nil
}

func (vp *VulkanBindingPool) Reset() error {
	if err := vulkanError("vkResetDescriptorPool", vk.ResetDescriptorPool(vp.device.LogicalDevice, vp.Handle, 0)); err != nil {
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (vp *VulkanBindingPool) Destroy() {
	if vp.Handle != nil {
		vk.DestroyDescriptorPool(vp.device.LogicalDevice, vp.Handle, vp.device.context.Allocator)
		vp.Handle = nil
	}
}

func (vs *VulkanBindingSet) Write(writes []driver.BindingWrite) {
	if len(writes) == 0 {
		return
	}
	descriptorWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		descriptorWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          vs.Handle,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  descriptorType(w.Kind),
			DescriptorCount: 1,
		}
		switch w.Kind {
		case metadata.BindingTexture, metadata.BindingStorageImage:
			imageInfo := vk.DescriptorImageInfo{
				ImageView:   w.View.(*VulkanImageView).Handle,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}
			if w.Kind == metadata.BindingStorageImage {
				imageInfo.ImageLayout = vk.ImageLayoutGeneral
			}
			if w.Sampler != nil {
				imageInfo.Sampler = w.Sampler.(*VulkanSampler).Handle
			}
			descriptorWrites[i].PImageInfo = []vk.DescriptorImageInfo{imageInfo}
		default:
			size := vk.DeviceSize(w.Size)
			if w.Size == 0 {
				size = vk.DeviceSize(vk.WholeSize)
			}
			descriptorWrites[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.(*VulkanBuffer).Handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  size,
			}}
		}
	}
	vk.UpdateDescriptorSets(vs.device.LogicalDevice, uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
}
