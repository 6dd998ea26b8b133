package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanQueryPool struct {
	device *VulkanDevice
	Handle vk.QueryPool
	kind   metadata.QueryPoolKind
	count  uint32
}

func (vd *VulkanDevice) NewQueryPool(kind metadata.QueryPoolKind, count uint32) (driver.QueryPool, error) {
	queryType := vk.QueryTypeTimestamp
	if kind == metadata.QueryPoolOcclusion {
		queryType = vk.QueryTypeOcclusion
	}
	poolInfo := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  queryType,
		QueryCount: count,
	}
	var handle vk.QueryPool
	if err := vulkanError("vkCreateQueryPool", vk.CreateQueryPool(vd.LogicalDevice, &poolInfo, vd.context.Allocator, &handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanQueryPool{device: vd, Handle: handle, kind: kind, count: count}, nil
}

func (vq *VulkanQueryPool) Results(first, count uint32, wait bool) ([]uint64, error) {
	if first+count > vq.count {
		return nil, fmt.Errorf("query range [%d, %d) out of pool of %d", first, first+count, vq.count)
	}
	results := make([]uint64, count)
	if count == 0 {
		return results, nil
	}
	flags := vk.QueryResult64Bit
	if wait {
		flags |= vk.QueryResultWaitBit
	}
	res := vk.GetQueryPoolResults(vq.device.LogicalDevice, vq.Handle, first, count,
		uint(count)*8, unsafe.Pointer(&results[0]), 8, vk.QueryResultFlags(flags))
	if res == vk.NotReady {
		return nil, fmt.Errorf("query results not ready")
	}
	if err := vulkanError("vkGetQueryPoolResults", res); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return results, nil
}

func (vq *VulkanQueryPool) Destroy() {
	if vq.Handle != nil {
		vk.DestroyQueryPool(vq.device.LogicalDevice, vq.Handle, vq.device.context.Allocator)
		vq.Handle = nil
	}
}
