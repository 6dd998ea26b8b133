package vulkan

import (
	"fmt"
	"math"
	"runtime"
	"slices"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// VulkanDevice implements driver.Device.
type VulkanDevice struct {
	context *VulkanContext

	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32
	PresentQueueIndex  int32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	depthFormat vk.Format
	name        string

	// Enabled features.
	anisotropy       bool
	preciseOcclusion bool

	pipelineCache vk.PipelineCache
	renderpasses  map[renderpassKey]vk.RenderPass

	locks *VulkanLockPool
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
	DiscreteGPU          bool
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

// DeviceCreate selects a physical device able to render to the
// surface of context and creates the logical device.
func DeviceCreate(context *VulkanContext) (*VulkanDevice, error) {
	device := &VulkanDevice{
		context:            context,
		GraphicsQueueIndex: -1,
		PresentQueueIndex:  -1,
		renderpasses:       make(map[renderpassKey]vk.RenderPass),
		locks:              NewVulkanLockPool(),
	}
	if err := device.selectPhysicalDevice(); err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(device.GraphicsQueueIndex)}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, uint32(device.PresentQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: indices[i],
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	// Request the optional features the device has.
	deviceFeatures := vk.PhysicalDeviceFeatures{}
	if device.Features.SamplerAnisotropy == vk.True {
		deviceFeatures.SamplerAnisotropy = vk.True
		device.anisotropy = true
	}
	if device.Features.OcclusionQueryPrecise == vk.True {
		deviceFeatures.OcclusionQueryPrecise = vk.True
		device.preciseOcclusion = true
	}
	if device.Features.TessellationShader == vk.True {
		deviceFeatures.TessellationShader = vk.True
	}
	if device.Features.FillModeNonSolid == vk.True {
		deviceFeatures.FillModeNonSolid = vk.True
	}

	extensionNames := []string{}
	if context.Surface != vk.NullSurface {
		extensionNames = append(extensionNames, vk.KhrSwapchainExtensionName)
	}
	available, err := deviceExtensions(device.PhysicalDevice)
	if err != nil {
		return nil, err
	}
	if slices.Contains(available, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	// Create the device.
	var logicalDevice vk.Device
	if err := vulkanError("vkCreateDevice", vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	// Get queues.
	var queue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, uint32(device.GraphicsQueueIndex), 0, &queue)
	device.GraphicsQueue = queue
	device.PresentQueue = queue
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		var present vk.Queue
		vk.GetDeviceQueue(device.LogicalDevice, uint32(device.PresentQueueIndex), 0, &present)
		device.PresentQueue = present
	}
	device.locks.SetQueueFamily(uint32(device.GraphicsQueueIndex))
	device.locks.SetQueueFamily(uint32(device.PresentQueueIndex))
	core.LogInfo("Queues obtained.")

	// Create command pool for graphics queue.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := vulkanError("vkCreateCommandPool", vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool)); err != nil {
		core.LogError(err.Error())
		device.Destroy()
		return nil, err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	if err := device.createPipelineCache(nil); err != nil {
		device.Destroy()
		return nil, err
	}
	return device, nil
}

func (vd *VulkanDevice) selectPhysicalDevice() error {
	var physicalDeviceCount uint32
	if err := vulkanError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(vd.context.Instance, &physicalDeviceCount, nil)); err != nil {
		return err
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found: %w", core.ErrNoDevice)
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := vulkanError("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(vd.context.Instance, &physicalDeviceCount, physicalDevices)); err != nil {
		return err
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:    true,
		Present:     vd.context.Surface != vk.NullSurface,
		DiscreteGPU: false,
	}
	if requirements.Present {
		requirements.DeviceExtensionNames = []string{vk.KhrSwapchainExtensionName}
	}

	// Discrete GPUs first, anything that meets the requirements after.
	for _, discrete := range []bool{true, false} {
		if runtime.GOOS == "darwin" && discrete {
			continue
		}
		requirements.DiscreteGPU = discrete
		for _, physicalDevice := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
			properties.Deref()
			properties.Limits.Deref()

			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
			features.Deref()

			queueInfo, ok := physicalDeviceMeetsRequirements(physicalDevice, vd.context.Surface, &properties, &requirements)
			if !ok {
				continue
			}

			var memory vk.PhysicalDeviceMemoryProperties
			vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
			memory.Deref()
			for j := uint32(0); j < memory.MemoryTypeCount; j++ {
				memory.MemoryTypes[j].Deref()
			}
			for j := uint32(0); j < memory.MemoryHeapCount; j++ {
				memory.MemoryHeaps[j].Deref()
			}

			vd.PhysicalDevice = physicalDevice
			vd.GraphicsQueueIndex = queueInfo.GraphicsFamilyIndex
			vd.PresentQueueIndex = queueInfo.PresentFamilyIndex
			if !requirements.Present {
				vd.PresentQueueIndex = queueInfo.GraphicsFamilyIndex
			}
			// Keep a copy of properties, features and memory info for later use.
			vd.Properties = properties
			vd.Features = features
			vd.Memory = memory
			vd.name = cString(properties.DeviceName[:])
			vd.logDeviceInfo()

			if !vd.detectDepthFormat() {
				err := fmt.Errorf("%s has no depth attachment format: %w", vd.name, core.ErrNoDevice)
				core.LogError(err.Error())
				return err
			}
			core.LogInfo("Physical device selected.")
			return nil
		}
	}
	err := fmt.Errorf("no physical devices were found which meet the requirements: %w", core.ErrNoDevice)
	core.LogError(err.Error())
	return err
}

func (vd *VulkanDevice) logDeviceInfo() {
	properties := &vd.Properties
	core.LogInfo("Selected device: '%s'.", vd.name)
	// GPU type, etc.
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}

	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)

	// Vulkan API version.
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	// Memory information
	for j := uint32(0); j < vd.Memory.MemoryHeapCount; j++ {
		heap := vd.Memory.MemoryHeaps[j]
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

func physicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
		ComputeFamilyIndex:  -1,
		TransferFamilyIndex: -1,
	}
	name := cString(properties.DeviceName[:])

	// Discrete GPU?
	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		core.LogDebug("%s is not a discrete GPU, skipping.", name)
		return queueInfo, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	// Look at each queue and see what queues it supports
	minTransferScore := math.MaxInt
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		currentTransferScore := 0

		// Graphics queue? Timestamps are written on it.
		if flags&vk.QueueGraphicsBit != 0 && queueFamilies[i].TimestampValidBits > 0 && queueInfo.GraphicsFamilyIndex < 0 {
			queueInfo.GraphicsFamilyIndex = int32(i)
			currentTransferScore++
		}
		// Compute queue?
		if flags&vk.QueueComputeBit != 0 && queueInfo.ComputeFamilyIndex < 0 {
			queueInfo.ComputeFamilyIndex = int32(i)
			currentTransferScore++
		}
		// Transfer queue? Prefer the least shared family.
		if flags&vk.QueueTransferBit != 0 && currentTransferScore < minTransferScore {
			minTransferScore = currentTransferScore
			queueInfo.TransferFamilyIndex = int32(i)
		}

		// Present queue? The graphics family is preferred.
		if requirements.Present {
			var supportsPresent vk.Bool32
			if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
				return queueInfo, false
			}
			if supportsPresent == vk.True && (queueInfo.PresentFamilyIndex < 0 || int32(i) == queueInfo.GraphicsFamilyIndex) {
				queueInfo.PresentFamilyIndex = int32(i)
			}
		}
	}

	core.LogDebug("Graphics | Present | Compute | Transfer | Name")
	core.LogDebug("      %2d |      %2d |      %2d |       %2d | %s",
		queueInfo.GraphicsFamilyIndex,
		queueInfo.PresentFamilyIndex,
		queueInfo.ComputeFamilyIndex,
		queueInfo.TransferFamilyIndex,
		name)

	if requirements.Graphics && queueInfo.GraphicsFamilyIndex < 0 {
		return queueInfo, false
	}
	if requirements.Present {
		if queueInfo.PresentFamilyIndex < 0 {
			return queueInfo, false
		}
		var support VulkanSwapchainSupportInfo
		if err := deviceQuerySwapchainSupport(device, surface, &support); err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
			core.LogDebug("Required swapchain support not present, skipping %s.", name)
			return queueInfo, false
		}
	}

	// Device extensions.
	if len(requirements.DeviceExtensionNames) > 0 {
		available, err := deviceExtensions(device)
		if err != nil {
			return queueInfo, false
		}
		for _, required := range requirements.DeviceExtensionNames {
			if !slices.Contains(available, required) {
				core.LogDebug("Required extension not found: '%s', skipping %s.", required, name)
				return queueInfo, false
			}
		}
	}
	core.LogInfo("Device %s meets queue requirements.", name)
	return queueInfo, true
}

func deviceExtensions(device vk.PhysicalDevice) ([]string, error) {
	var count uint32
	if err := vulkanError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	properties := make([]vk.ExtensionProperties, count)
	if count > 0 {
		if err := vulkanError("vkEnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(device, "", &count, properties)); err != nil {
			core.LogError(err.Error())
			return nil, err
		}
	}
	names := make([]string, len(properties))
	for i := range properties {
		properties[i].Deref()
		names[i] = cString(properties[i].ExtensionName[:])
	}
	return names, nil
}

func (vd *VulkanDevice) detectDepthFormat() bool {
	// Format candidates
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit | vk.FormatFeatureSampledImageBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(vd.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags {
			vd.depthFormat = candidate
			return true
		}
	}
	return false
}

func (vd *VulkanDevice) Name() string { return vd.name }

func (vd *VulkanDevice) Limits() driver.Limits {
	limits := driver.Limits{
		TimestampPeriod:     vd.Properties.Limits.TimestampPeriod,
		MinUniformAlignment: uint64(vd.Properties.Limits.MinUniformBufferOffsetAlignment),
	}
	if vd.anisotropy {
		limits.MaxAnisotropy = vd.Properties.Limits.MaxSamplerAnisotropy
	}
	return limits
}

func (vd *VulkanDevice) DepthFormat() metadata.Format {
	return metadataFormat(vd.depthFormat)
}

func (vd *VulkanDevice) WaitIdle() {
	if vd.LogicalDevice == nil {
		return
	}
	if err := vulkanError("vkDeviceWaitIdle", vk.DeviceWaitIdle(vd.LogicalDevice)); err != nil {
		core.LogError(err.Error())
	}
}

func (vd *VulkanDevice) Submit(cbs []driver.CmdBuffer, wait, signal driver.Semaphore, fence driver.Fence) error {
	buffers := make([]vk.CommandBuffer, len(cbs))
	for i, cb := range cbs {
		vcb := cb.(*VulkanCommandBuffer)
		buffers[i] = vcb.Handle
		vcb.State = COMMAND_BUFFER_STATE_SUBMITTED
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: uint32(len(buffers)),
		PCommandBuffers:    buffers,
	}
	if wait != nil {
		// The acquired image may still be read by the presentation
		// engine until this point.
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{wait.(*VulkanSemaphore).Handle}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)}
	}
	if signal != nil {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{signal.(*VulkanSemaphore).Handle}
	}
	handle := vk.NullFence
	if fence != nil {
		vf := fence.(*VulkanFence)
		handle = vf.Handle
		vf.IsSignaled = false
	}
	return vd.locks.SafeQueueCall(uint32(vd.GraphicsQueueIndex), func() error {
		err := vulkanError("vkQueueSubmit", vk.QueueSubmit(vd.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, handle))
		if err != nil {
			core.LogError(err.Error())
		}
		return err
	})
}

func (vd *VulkanDevice) Destroy() {
	if vd.LogicalDevice != nil {
		vd.WaitIdle()

		vd.locks.SafeCall(RenderpassManagement, func() error {
			for key, rp := range vd.renderpasses {
				vk.DestroyRenderPass(vd.LogicalDevice, rp, vd.context.Allocator)
				delete(vd.renderpasses, key)
			}
			return nil
		})
		if vd.pipelineCache != vk.NullPipelineCache {
			vk.DestroyPipelineCache(vd.LogicalDevice, vd.pipelineCache, vd.context.Allocator)
			vd.pipelineCache = vk.NullPipelineCache
		}

		core.LogInfo("Destroying command pools...")
		if vd.GraphicsCommandPool != nil {
			vk.DestroyCommandPool(vd.LogicalDevice, vd.GraphicsCommandPool, vd.context.Allocator)
			vd.GraphicsCommandPool = nil
		}

		// Destroy logical device
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(vd.LogicalDevice, vd.context.Allocator)
		vd.LogicalDevice = nil
	}
	// Unset queues
	vd.GraphicsQueue = nil
	vd.PresentQueue = nil

	// Physical devices are not destroyed.
	vd.PhysicalDevice = nil
	vd.GraphicsQueueIndex = -1
	vd.PresentQueueIndex = -1

	vd.context.destroy()
}
