package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// Options tune instance and device creation.
type Options struct {
	// Validation enables the Khronos validation layer and routes its
	// reports to the logger.
	Validation bool
	// Debug also forwards informational reports.
	Debug bool
}

// VulkanContext holds the instance level objects shared by a device.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	// NullSurface when headless.
	Surface vk.Surface

	debugMessenger vk.DebugReportCallback
	validation     bool
}

func (vc *VulkanContext) destroy() {
	if vc.Surface != vk.NullSurface {
		core.LogDebug("Destroying Vulkan surface...")
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = vk.NullSurface
	}
	if vc.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugMessenger, vc.Allocator)
		vc.debugMessenger = vk.NullDebugReportCallback
	}
	if vc.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}

func (vd *VulkanDevice) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	for i := uint32(0); i < vd.Memory.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		flags := vk.MemoryPropertyFlagBits(vd.Memory.MemoryTypes[i].PropertyFlags)
		if (typeFilter&(1<<i)) != 0 && flags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// allocateMemory allocates memory matching reqs, falling back to any
// host visible type when a host cached one is not available.
func (vd *VulkanDevice) allocateMemory(reqs vk.MemoryRequirements, propertyFlags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	reqs.Deref()
	index := vd.FindMemoryIndex(reqs.MemoryTypeBits, propertyFlags)
	if index < 0 && propertyFlags&vk.MemoryPropertyHostCachedBit != 0 {
		index = vd.FindMemoryIndex(reqs.MemoryTypeBits, propertyFlags&^vk.MemoryPropertyHostCachedBit)
	}
	if index < 0 {
		err := fmt.Errorf("no memory type for flags %#x", uint32(propertyFlags))
		core.LogError(err.Error())
		return nil, err
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := vulkanError("vkAllocateMemory", vk.AllocateMemory(vd.LogicalDevice, &allocInfo, vd.context.Allocator, &memory)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return memory, nil
}
