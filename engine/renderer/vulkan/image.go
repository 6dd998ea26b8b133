package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/core"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/driver"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

type VulkanImage struct {
	device *VulkanDevice
	Handle vk.Image
	Memory vk.DeviceMemory
	desc   metadata.TextureDesc
	// Swapchain images belong to their swapchain.
	owned bool
}

func imageType(shape metadata.TextureShape) vk.ImageType {
	switch {
	case shape&metadata.TextureShapeD1 != 0:
		return vk.ImageType1d
	case shape&metadata.TextureShapeD3 != 0:
		return vk.ImageType3d
	}
	return vk.ImageType2d
}

func (vd *VulkanDevice) NewImage(desc *metadata.TextureDesc) (driver.Image, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("image %q has an empty extent %dx%d", desc.Name, desc.Width, desc.Height)
	}
	image := &VulkanImage{
		device: vd,
		desc:   *desc,
		owned:  true,
	}
	image.desc.Levels = max(desc.Levels, 1)

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imageType(desc.Shape),
		Format:    vulkanFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  desc.LevelDepth(0),
		},
		MipLevels:     image.desc.Levels,
		ArrayLayers:   desc.Layers(),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         imageUsage(desc),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if desc.Shape.IsCube() {
		imageCreateInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	var handle vk.Image
	if err := vulkanError("vkCreateImage", vk.CreateImage(vd.LogicalDevice, &imageCreateInfo, vd.context.Allocator, &handle)); err != nil {
		core.LogError("image %q: %s", desc.Name, err)
		return nil, err
	}
	image.Handle = handle

	// Query memory requirements.
	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(vd.LogicalDevice, image.Handle, &memoryRequirements)
	memory, err := vd.allocateMemory(memoryRequirements, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		image.Destroy()
		return nil, err
	}
	image.Memory = memory

	// Bind the memory
	if err := vulkanError("vkBindImageMemory", vk.BindImageMemory(vd.LogicalDevice, image.Handle, image.Memory, 0)); err != nil {
		core.LogError(err.Error())
		image.Destroy()
		return nil, err
	}
	return image, nil
}

// wrapImage wraps an image the device does not own.
func (vd *VulkanDevice) wrapImage(handle vk.Image, desc metadata.TextureDesc) *VulkanImage {
	return &VulkanImage{device: vd, Handle: handle, desc: desc}
}

func (vi *VulkanImage) Desc() *metadata.TextureDesc { return &vi.desc }

func (vi *VulkanImage) Destroy() {
	if !vi.owned {
		return
	}
	if vi.Memory != nil {
		vk.FreeMemory(vi.device.LogicalDevice, vi.Memory, vi.device.context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(vi.device.LogicalDevice, vi.Handle, vi.device.context.Allocator)
		vi.Handle = nil
	}
}

type VulkanImageView struct {
	device *VulkanDevice
	Handle vk.ImageView
	image  *VulkanImage
}

// viewType picks the view type matching the shape of the image and
// the number of layers selected.
func viewType(shape metadata.TextureShape, layers uint32) vk.ImageViewType {
	switch {
	case shape&metadata.TextureShapeD1 != 0:
		if shape.IsArray() {
			return vk.ImageViewType1dArray
		}
		return vk.ImageViewType1d
	case shape&metadata.TextureShapeD3 != 0:
		return vk.ImageViewType3d
	case shape.IsCube() && layers%6 == 0:
		if shape.IsArray() {
			return vk.ImageViewTypeCubeArray
		}
		return vk.ImageViewTypeCube
	case shape.IsArray() || layers > 1:
		return vk.ImageViewType2dArray
	}
	return vk.ImageViewType2d
}

func (vi *VulkanImage) NewView(r driver.ImageRange) (driver.ImageView, error) {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    vi.Handle,
		ViewType: viewType(vi.desc.Shape, r.Layers),
		Format:   vulkanFormat(vi.desc.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     viewAspectMask(vi.desc.Format),
			BaseMipLevel:   r.BaseLevel,
			LevelCount:     r.Levels,
			BaseArrayLayer: r.BaseLayer,
			LayerCount:     r.Layers,
		},
	}
	var handle vk.ImageView
	if err := vulkanError("vkCreateImageView", vk.CreateImageView(vi.device.LogicalDevice, &viewCreateInfo, vi.device.context.Allocator, &handle)); err != nil {
		core.LogError("image view of %q: %s", vi.desc.Name, err)
		return nil, err
	}
	return &VulkanImageView{device: vi.device, Handle: handle, image: vi}, nil
}

func (vv *VulkanImageView) Destroy() {
	if vv.Handle != nil {
		vk.DestroyImageView(vv.device.LogicalDevice, vv.Handle, vv.device.context.Allocator)
		vv.Handle = nil
	}
}

type VulkanSampler struct {
	device *VulkanDevice
	Handle vk.Sampler
}

func (vd *VulkanDevice) NewSampler(desc *driver.SamplerDesc) (driver.Sampler, error) {
	filter := vk.FilterNearest
	if desc.Filter.Linear() {
		filter = vk.FilterLinear
	}
	mipmapMode := vk.SamplerMipmapModeNearest
	if desc.Filter.LinearMips() {
		mipmapMode = vk.SamplerMipmapModeLinear
	}
	maxLod := desc.MaxLOD
	if !desc.Filter.Mipmapped() {
		maxLod = 0
	}
	wrap := addressMode(desc.Wrap)

	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		MipmapMode:              mipmapMode,
		AddressModeU:            wrap,
		AddressModeV:            wrap,
		AddressModeW:            wrap,
		MinLod:                  0,
		MaxLod:                  maxLod,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
	}
	if desc.Anisotropy && vd.anisotropy {
		samplerInfo.AnisotropyEnable = vk.True
		samplerInfo.MaxAnisotropy = vd.Properties.Limits.MaxSamplerAnisotropy
	}

	var handle vk.Sampler
	if err := vulkanError("vkCreateSampler", vk.CreateSampler(vd.LogicalDevice, &samplerInfo, vd.context.Allocator, &handle)); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return &VulkanSampler{device: vd, Handle: handle}, nil
}

func (vs *VulkanSampler) Destroy() {
	if vs.Handle != nil {
		vk.DestroySampler(vs.device.LogicalDevice, vs.Handle, vs.device.context.Allocator)
		vs.Handle = nil
	}
}
