package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/anima-gpu/engine/renderer/metadata"
)

// vertexInputState converts a mesh layout. A nil layout is valid and
// describes draws with no vertex buffers.
func vertexInputState(mesh *metadata.MeshLayout) vk.PipelineVertexInputStateCreateInfo {
	info := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if mesh == nil {
		return info
	}

	bindings := make([]vk.VertexInputBindingDescription, len(mesh.Bindings))
	for i, b := range mesh.Bindings {
		bindings[i] = vk.VertexInputBindingDescription{
			Binding:   b.Binding,
			Stride:    b.Stride,
			InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
		}
	}

	// Attributes
	attributes := make([]vk.VertexInputAttributeDescription, len(mesh.Attributes))
	for i, a := range mesh.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vertexFormats[a.Format],
			Offset:   a.Offset,
		}
	}

	info.VertexBindingDescriptionCount = uint32(len(bindings))
	info.PVertexBindingDescriptions = bindings
	info.VertexAttributeDescriptionCount = uint32(len(attributes))
	info.PVertexAttributeDescriptions = attributes
	return info
}
