package metadata

/** @brief Pixel layout of a texture or attachment. */
type Format uint8

const (
	/** @brief No format. Used for absent attachments. */
	FormatUndefined Format = iota
	FormatR8
	FormatRG8
	FormatRGBA8
	FormatSRGBA8
	FormatBGRA8
	FormatSBGRA8
	FormatR16F
	FormatRG16F
	FormatRGBA16F
	FormatR32F
	FormatRG32F
	FormatRGBA32F
	FormatDepth16
	FormatDepth32F
	FormatDepth24Stencil8
	FormatDepth32FStencil8
)

var formatNames = [...]string{
	"undefined", "r8", "rg8", "rgba8", "srgba8", "bgra8", "sbgra8",
	"r16f", "rg16f", "rgba16f", "r32f", "rg32f", "rgba32f",
	"depth16", "depth32f", "depth24stencil8", "depth32fstencil8",
}

func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return "unknown"
}

/** @brief Number of channels, depth and stencil counting as one each. */
func (f Format) Channels() int {
	switch f {
	case FormatR8, FormatR16F, FormatR32F, FormatDepth16, FormatDepth32F:
		return 1
	case FormatRG8, FormatRG16F, FormatRG32F, FormatDepth24Stencil8, FormatDepth32FStencil8:
		return 2
	case FormatUndefined:
		return 0
	}
	return 4
}

/** @brief Size in bytes of one channel as laid out in CPU memory. */
func (f Format) ChannelSize() int {
	switch f {
	case FormatR16F, FormatRG16F, FormatRGBA16F, FormatDepth16:
		return 2
	case FormatR32F, FormatRG32F, FormatRGBA32F, FormatDepth32F, FormatDepth24Stencil8, FormatDepth32FStencil8:
		return 4
	case FormatUndefined:
		return 0
	}
	return 1
}

/** @brief Size in bytes of one pixel. */
func (f Format) PixelSize() int {
	if f == FormatDepth24Stencil8 {
		return 4
	}
	if f == FormatDepth32FStencil8 {
		return 8
	}
	return f.Channels() * f.ChannelSize()
}

func (f Format) IsDepth() bool {
	return f >= FormatDepth16 && f <= FormatDepth32FStencil8
}

func (f Format) HasStencil() bool {
	return f == FormatDepth24Stencil8 || f == FormatDepth32FStencil8
}

func (f Format) IsFloat() bool {
	switch f {
	case FormatR16F, FormatRG16F, FormatRGBA16F, FormatR32F, FormatRG32F, FormatRGBA32F, FormatDepth32F:
		return true
	}
	return false
}

func (f Format) IsSRGB() bool {
	return f == FormatSRGBA8 || f == FormatSBGRA8
}

/**
 * @brief Returns the 8-bit or 32-bit float format holding the given channel count.
 * Used to pick the layout of intermediate images for CPU uploads.
 */
func CPUFormat(channels int, float bool) Format {
	if float {
		switch channels {
		case 1:
			return FormatR32F
		case 2:
			return FormatRG32F
		}
		return FormatRGBA32F
	}
	switch channels {
	case 1:
		return FormatR8
	case 2:
		return FormatRG8
	}
	return FormatRGBA8
}
