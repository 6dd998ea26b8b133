package vulkan

import (
	"fmt"
	stdmath "math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/math"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// VulkanSwapchain implements driver.Swapchain.
type VulkanSwapchain struct {
	device      *VulkanDevice
	ImageFormat vk.SurfaceFormat
	Handle      vk.Swapchain
	ImageExtent vk.Extent2D
	images      []*VulkanImage
}

type VulkanSwapchainSupportInfo struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func deviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface, supportInfo *VulkanSwapchainSupportInfo) error {
	// Surface capabilities
	if err := vulkanError("vkGetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &supportInfo.Capabilities)); err != nil {
		return err
	}
	supportInfo.Capabilities.Deref()
	supportInfo.Capabilities.CurrentExtent.Deref()
	supportInfo.Capabilities.MinImageExtent.Deref()
	supportInfo.Capabilities.MaxImageExtent.Deref()

	// Surface formats
	var formatCount uint32
	if err := vulkanError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil)); err != nil {
		return err
	}
	supportInfo.Formats = make([]vk.SurfaceFormat, formatCount)
	if formatCount != 0 {
		if err := vulkanError("vkGetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, supportInfo.Formats)); err != nil {
			return err
		}
		for i := range supportInfo.Formats {
			supportInfo.Formats[i].Deref()
		}
	}

	// Present modes
	var presentModeCount uint32
	if err := vulkanError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil)); err != nil {
		return err
	}
	supportInfo.PresentModes = make([]vk.PresentMode, presentModeCount)
	if presentModeCount != 0 {
		if err := vulkanError("vkGetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, supportInfo.PresentModes)); err != nil {
			return err
		}
	}
	return nil
}

// chooseSurfaceFormat prefers 8 bit BGRA in the sRGB color space.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Unorm && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	for _, format := range formats {
		if metadataFormat(format.Format) != metadata.FormatUndefined {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode returns FIFO when vsync is on. Otherwise it picks
// the first available of mailbox and immediate, then FIFO which is
// always supported.
func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	if vsync {
		return vk.PresentModeFifo
	}
	for _, preferred := range []vk.PresentMode{vk.PresentModeMailbox, vk.PresentModeImmediate} {
		for _, mode := range modes {
			if mode == preferred {
				return mode
			}
		}
	}
	return vk.PresentModeFifo
}

// chooseExtent uses the surface extent when the surface defines it,
// the window size clamped to the allowed range otherwise.
func chooseExtent(caps *vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if caps.CurrentExtent.Width != stdmath.MaxUint32 {
		return caps.CurrentExtent
	}
	return vk.Extent2D{
		Width:  math.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func (vd *VulkanDevice) NewSwapchain(win driver.Window, imageCount int, vsync bool, old driver.Swapchain) (driver.Swapchain, error) {
	if vd.context.Surface == vk.NullSurface {
		return nil, fmt.Errorf("headless device: %w", core.ErrNoSurface)
	}
	var support VulkanSwapchainSupportInfo
	if err := deviceQuerySwapchainSupport(vd.PhysicalDevice, vd.context.Surface, &support); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if len(support.Formats) == 0 {
		return nil, fmt.Errorf("surface has no formats: %w", core.ErrNoSurface)
	}
	caps := &support.Capabilities

	swapchain := &VulkanSwapchain{
		device:      vd,
		ImageFormat: chooseSurfaceFormat(support.Formats),
	}
	presentMode := choosePresentMode(support.PresentModes, vsync)

	w, h := win.FramebufferSize()
	swapchain.ImageExtent = chooseExtent(caps, uint32(max(w, 0)), uint32(max(h, 0)))
	if swapchain.ImageExtent.Width == 0 || swapchain.ImageExtent.Height == 0 {
		return nil, fmt.Errorf("surface extent is empty: %w", core.ErrOutOfDate)
	}

	count := max(uint32(imageCount), caps.MinImageCount)
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}

	// Swapchain create info
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vd.context.Surface,
		MinImageCount:    count,
		ImageFormat:      swapchain.ImageFormat.Format,
		ImageColorSpace:  swapchain.ImageFormat.ColorSpace,
		ImageExtent:      swapchain.ImageExtent,
		ImageArrayLayers: 1,
		// Transfers let the backbuffer be blitted to and read back.
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit),
	}

	// Setup the queue family indices
	if vd.GraphicsQueueIndex != vd.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			uint32(vd.GraphicsQueueIndex),
			uint32(vd.PresentQueueIndex),
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	swapchainCreateInfo.PreTransform = caps.CurrentTransform
	swapchainCreateInfo.CompositeAlpha = vk.CompositeAlphaOpaqueBit
	swapchainCreateInfo.PresentMode = presentMode
	swapchainCreateInfo.Clipped = vk.True
	swapchainCreateInfo.OldSwapchain = vk.NullSwapchain
	if old != nil {
		swapchainCreateInfo.OldSwapchain = old.(*VulkanSwapchain).Handle
	}

	var swapchainHandle vk.Swapchain
	if err := vd.locks.SafeCall(SwapchainManagement, func() error {
		return vulkanError("vkCreateSwapchain", vk.CreateSwapchain(vd.LogicalDevice, &swapchainCreateInfo, vd.context.Allocator, &swapchainHandle))
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	swapchain.Handle = swapchainHandle

	// Images
	var imageTotal uint32
	if err := vulkanError("vkGetSwapchainImages", vk.GetSwapchainImages(vd.LogicalDevice, swapchain.Handle, &imageTotal, nil)); err != nil {
		swapchain.Destroy()
		return nil, err
	}
	handles := make([]vk.Image, imageTotal)
	if err := vulkanError("vkGetSwapchainImages", vk.GetSwapchainImages(vd.LogicalDevice, swapchain.Handle, &imageTotal, handles)); err != nil {
		swapchain.Destroy()
		return nil, err
	}

	desc := metadata.TextureDesc{
		Shape:  metadata.TextureShapeD2,
		Format: metadataFormat(swapchain.ImageFormat.Format),
		Width:  swapchain.ImageExtent.Width,
		Height: swapchain.ImageExtent.Height,
		Depth:  1,
		Levels: 1,
		Usage:  metadata.TextureUsageAttachment,
	}
	for i, handle := range handles {
		desc.Name = fmt.Sprintf("swapchain image %d", i)
		swapchain.images = append(swapchain.images, vd.wrapImage(handle, desc))
	}

	core.LogInfo("Swapchain created successfully (%dx%d, %d images, %s).",
		swapchain.ImageExtent.Width, swapchain.ImageExtent.Height, imageTotal, desc.Format)
	return swapchain, nil
}

func (vs *VulkanSwapchain) Images() []driver.Image {
	images := make([]driver.Image, len(vs.images))
	for i, img := range vs.images {
		images[i] = img
	}
	return images
}

func (vs *VulkanSwapchain) Format() metadata.Format {
	return metadataFormat(vs.ImageFormat.Format)
}

func (vs *VulkanSwapchain) Extent() (uint32, uint32) {
	return vs.ImageExtent.Width, vs.ImageExtent.Height
}

func (vs *VulkanSwapchain) Acquire(signal driver.Semaphore) (uint32, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(vs.device.LogicalDevice, vs.Handle, vk.MaxUint64,
		signal.(*VulkanSemaphore).Handle, vk.NullFence, &imageIndex)
	// Suboptimal still acquires the image.
	return imageIndex, vulkanError("vkAcquireNextImage", result)
}

func (vs *VulkanSwapchain) Present(index uint32, wait driver.Semaphore) error {
	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{vs.Handle},
		PImageIndices:  []uint32{index},
	}
	if wait != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{wait.(*VulkanSemaphore).Handle}
	}
	device := vs.device
	return device.locks.SafeQueueCall(uint32(device.PresentQueueIndex), func() error {
		return vulkanError("vkQueuePresent", vk.QueuePresent(device.PresentQueue, &presentInfo))
	})
}

func (vs *VulkanSwapchain) Destroy() {
	// Only drop the wrappers, the images are owned by the swapchain and
	// are destroyed with it.
	vs.images = nil
	if vs.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(vs.device.LogicalDevice, vs.Handle, vs.device.context.Allocator)
		vs.Handle = vk.NullSwapchain
	}
}
