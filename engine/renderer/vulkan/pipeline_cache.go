package vulkan

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-gpu/engine/core"
)

// pipelineCacheHeaderSize is magic, version, vendor and device IDs and
// the driver cache UUID.
const pipelineCacheHeaderSize = 4*4 + 16

/**
 * @brief Identifies the device and driver a pipeline cache blob was
 * produced by. Blobs from another device are rejected before reaching
 * the driver.
 */
type pipelineCacheHeader struct {
	VendorID uint32
	DeviceID uint32
	CacheID  uuid.UUID
}

func (h pipelineCacheHeader) marshal(data []byte) []byte {
	out := make([]byte, pipelineCacheHeaderSize, pipelineCacheHeaderSize+len(data))
	binary.LittleEndian.PutUint32(out[0:], VULKAN_PIPELINE_CACHE_MAGIC)
	binary.LittleEndian.PutUint32(out[4:], VULKAN_PIPELINE_CACHE_VERSION)
	binary.LittleEndian.PutUint32(out[8:], h.VendorID)
	binary.LittleEndian.PutUint32(out[12:], h.DeviceID)
	copy(out[16:], h.CacheID[:])
	return append(out, data...)
}

// unmarshalPipelineCache splits a blob into its header and the driver
// data, checking it was produced for want.
func unmarshalPipelineCache(blob []byte, want pipelineCacheHeader) ([]byte, error) {
	if len(blob) < pipelineCacheHeaderSize {
		return nil, fmt.Errorf("pipeline cache of %d bytes is truncated: %w", len(blob), core.ErrIncompatibleCache)
	}
	if magic := binary.LittleEndian.Uint32(blob[0:]); magic != VULKAN_PIPELINE_CACHE_MAGIC {
		return nil, fmt.Errorf("bad pipeline cache magic %#08x: %w", magic, core.ErrIncompatibleCache)
	}
	if version := binary.LittleEndian.Uint32(blob[4:]); version != VULKAN_PIPELINE_CACHE_VERSION {
		return nil, fmt.Errorf("pipeline cache version %d, want %d: %w", version, VULKAN_PIPELINE_CACHE_VERSION, core.ErrIncompatibleCache)
	}
	have := pipelineCacheHeader{
		VendorID: binary.LittleEndian.Uint32(blob[8:]),
		DeviceID: binary.LittleEndian.Uint32(blob[12:]),
	}
	copy(have.CacheID[:], blob[16:pipelineCacheHeaderSize])
	if have != want {
		return nil, fmt.Errorf("pipeline cache built by %04x:%04x (%s): %w",
			have.VendorID, have.DeviceID, have.CacheID, core.ErrIncompatibleCache)
	}
	return blob[pipelineCacheHeaderSize:], nil
}

func (vd *VulkanDevice) pipelineCacheHeader() pipelineCacheHeader {
	return pipelineCacheHeader{
		VendorID: vd.Properties.VendorID,
		DeviceID: vd.Properties.DeviceID,
		CacheID:  uuid.UUID(vd.Properties.PipelineCacheUUID),
	}
}

// createPipelineCache replaces the native cache by one seeded with data.
func (vd *VulkanDevice) createPipelineCache(data []byte) error {
	cacheInfo := vk.PipelineCacheCreateInfo{
		SType:           vk.StructureTypePipelineCacheCreateInfo,
		InitialDataSize: uint(len(data)),
	}
	if len(data) > 0 {
		cacheInfo.PInitialData = unsafe.Pointer(&data[0])
	}
	var cache vk.PipelineCache
	if err := vulkanError("vkCreatePipelineCache", vk.CreatePipelineCache(vd.LogicalDevice, &cacheInfo, vd.context.Allocator, &cache)); err != nil {
		core.LogError(err.Error())
		return err
	}
	if vd.pipelineCache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(vd.LogicalDevice, vd.pipelineCache, vd.context.Allocator)
	}
	vd.pipelineCache = cache
	return nil
}

func (vd *VulkanDevice) LoadPipelineCache(blob []byte) error {
	data, err := unmarshalPipelineCache(blob, vd.pipelineCacheHeader())
	if err != nil {
		return err
	}
	return vd.locks.SafeCall(PipelineManagement, func() error {
		if err := vd.createPipelineCache(data); err != nil {
			return err
		}
		core.LogInfo("Pipeline cache loaded (%d bytes).", len(data))
		return nil
	})
}

func (vd *VulkanDevice) PipelineCacheData() ([]byte, error) {
	var data []byte
	err := vd.locks.SafeCall(PipelineManagement, func() error {
		var size uint
		if err := vulkanError("vkGetPipelineCacheData", vk.GetPipelineCacheData(vd.LogicalDevice, vd.pipelineCache, &size, nil)); err != nil {
			return err
		}
		data = make([]byte, size)
		if size == 0 {
			return nil
		}
		if err := vulkanError("vkGetPipelineCacheData", vk.GetPipelineCacheData(vd.LogicalDevice, vd.pipelineCache, &size, unsafe.Pointer(&data[0]))); err != nil {
			return err
		}
		data = data[:size]
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return vd.pipelineCacheHeader().marshal(data), nil
}
