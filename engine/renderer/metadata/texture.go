package metadata

/**
 * @brief Represents the dimensionality of a texture.
 */
type TextureShape uint8

const (
	TextureShapeD1 TextureShape = 1 << iota
	TextureShapeD2
	TextureShapeD3
	TextureShapeCube
	TextureShapeArray

	TextureShapeArray1D   = TextureShapeD1 | TextureShapeArray
	TextureShapeArray2D   = TextureShapeD2 | TextureShapeArray
	TextureShapeArrayCube = TextureShapeCube | TextureShapeArray
)

func (s TextureShape) IsArray() bool { return s&TextureShapeArray != 0 }
func (s TextureShape) IsCube() bool  { return s&TextureShapeCube != 0 }

/** @brief Represents supported texture filtering modes, mipmapping included. */
type TextureFilter uint8

const (
	/** @brief Nearest-neighbor filtering, no mips. */
	TextureFilterNearest TextureFilter = iota
	/** @brief Linear (i.e. bilinear) filtering, no mips. */
	TextureFilterLinear
	TextureFilterNearestNearest
	TextureFilterLinearNearest
	TextureFilterNearestLinear
	TextureFilterLinearLinear
)

/** @brief Whether texels are interpolated inside a level. */
func (f TextureFilter) Linear() bool {
	return f == TextureFilterLinear || f == TextureFilterLinearNearest || f == TextureFilterLinearLinear
}

/** @brief Whether the filter samples mip levels at all. */
func (f TextureFilter) Mipmapped() bool {
	return f >= TextureFilterNearestNearest
}

/** @brief Whether levels are interpolated. */
func (f TextureFilter) LinearMips() bool {
	return f == TextureFilterNearestLinear || f == TextureFilterLinearLinear
}

type TextureWrap uint8

const (
	TextureWrapClamp TextureWrap = iota
	TextureWrapRepeat
	TextureWrapMirror
)

/** @brief Holds bit flags describing how a texture is used by the GPU. */
type TextureUsage uint8

const (
	TextureUsageSampled TextureUsage = 1 << iota
	TextureUsageAttachment
	TextureUsageStorage
)

/**
 * @brief Describes a texture to create.
 * For 3D textures Depth is the depth, otherwise it is the layer count.
 */
type TextureDesc struct {
	Name   string
	Shape  TextureShape
	Format Format
	Width  uint32
	Height uint32
	Depth  uint32
	Levels uint32
	Usage  TextureUsage
}

/** @brief Number of array layers, six per cube. */
func (d *TextureDesc) Layers() uint32 {
	if d.Shape == TextureShapeD3 {
		return 1
	}
	n := max(d.Depth, 1)
	if d.Shape.IsCube() && !d.Shape.IsArray() {
		return 6
	}
	return n
}

/** @brief Depth of the texture at the given level, 1 unless 3D. */
func (d *TextureDesc) LevelDepth(level uint32) uint32 {
	if d.Shape != TextureShapeD3 {
		return 1
	}
	return max(d.Depth>>level, 1)
}

/** @brief Width and height of the texture at the given level. */
func (d *TextureDesc) LevelSize(level uint32) (uint32, uint32) {
	return max(d.Width>>level, 1), max(d.Height>>level, 1)
}
