package metadata

/** @brief Represents how a buffer is used. */
type BufferType uint8

const (
	BufferVertex BufferType = iota
	BufferIndex
	BufferUniform
	BufferStorage
	/** @brief Host-visible staging buffer for uploads. */
	BufferCPUToGPU
	/** @brief Host-visible staging buffer for readbacks. */
	BufferGPUToCPU
)

/** @brief Whether the buffer memory is mapped on the host. */
func (t BufferType) HostVisible() bool {
	return t == BufferUniform || t == BufferCPUToGPU || t == BufferGPUToCPU
}

func (t BufferType) String() string {
	switch t {
	case BufferVertex:
		return "vertex"
	case BufferIndex:
		return "index"
	case BufferUniform:
		return "uniform"
	case BufferStorage:
		return "storage"
	case BufferCPUToGPU:
		return "upload"
	case BufferGPUToCPU:
		return "readback"
	}
	return "unknown"
}
