package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanBuffer struct {
	device *VulkanDevice
	Handle vk.Buffer
	Memory vk.DeviceMemory
	size   uint64
	typ    metadata.BufferType
	// Persistently mapped memory of host visible buffers.
	mapped []byte
}

func (vd *VulkanDevice) NewBuffer(size uint64, typ metadata.BufferType) (driver.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("empty %s buffer", typ)
	}
	buffer := &VulkanBuffer{device: vd, size: size, typ: typ}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       bufferUsage(typ),
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}
	var handle vk.Buffer
	if err := vulkanError("vkCreateBuffer", vk.CreateBuffer(vd.LogicalDevice, &bufferInfo, vd.context.Allocator, &handle)); err != nil {
		core.LogError("%s buffer: %s", typ, err)
		return nil, err
	}
	buffer.Handle = handle

	// Gather memory requirements.
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vd.LogicalDevice, buffer.Handle, &requirements)
	memory, err := vd.allocateMemory(requirements, memoryProperties(typ))
	if err != nil {
		buffer.Destroy()
		return nil, err
	}
	buffer.Memory = memory

	if err := vulkanError("vkBindBufferMemory", vk.BindBufferMemory(vd.LogicalDevice, buffer.Handle, buffer.Memory, 0)); err != nil {
		core.LogError(err.Error())
		buffer.Destroy()
		return nil, err
	}

	if typ.HostVisible() {
		var data unsafe.Pointer
		if err := vulkanError("vkMapMemory", vk.MapMemory(vd.LogicalDevice, buffer.Memory, 0, vk.DeviceSize(size), 0, &data)); err != nil {
			core.LogError(err.Error())
			buffer.Destroy()
			return nil, err
		}
		buffer.mapped = unsafe.Slice((*byte)(data), size)
	}
	return buffer, nil
}

func (vb *VulkanBuffer) Size() uint64              { return vb.size }
func (vb *VulkanBuffer) Type() metadata.BufferType { return vb.typ }
func (vb *VulkanBuffer) Bytes() []byte             { return vb.mapped }

func (vb *VulkanBuffer) Destroy() {
	if vb.mapped != nil {
		vk.UnmapMemory(vb.device.LogicalDevice, vb.Memory)
		vb.mapped = nil
	}
	if vb.Memory != nil {
		vk.FreeMemory(vb.device.LogicalDevice, vb.Memory, vb.device.context.Allocator)
		vb.Memory = nil
	}
	if vb.Handle != nil {
		vk.DestroyBuffer(vb.device.LogicalDevice, vb.Handle, vb.device.context.Allocator)
		vb.Handle = nil
	}
}
