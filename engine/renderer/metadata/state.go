package metadata

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"
)

/** @brief Comparison used by depth and stencil tests. */
type TestFunction uint8

const (
	TestNever TestFunction = iota
	TestLess
	TestLessEqual
	TestEqual
	TestGreater
	TestGreaterEqual
	TestNotEqual
	TestAlways
)

/** @brief Operation applied to the stencil buffer. */
type StencilOp uint8

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrement
	StencilIncrementWrap
	StencilDecrement
	StencilDecrementWrap
	StencilInvert
)

/** @brief Equation combining source and destination when blending. */
type BlendEquation uint8

const (
	BlendAdd BlendEquation = iota
	BlendSubtract
	BlendReverseSubtract
	BlendMin
	BlendMax
)

/** @brief Factor applied to a blend operand. */
type BlendFunction uint8

const (
	BlendZero BlendFunction = iota
	BlendOne
	BlendSrcColor
	BlendOneMinusSrcColor
	BlendDstColor
	BlendOneMinusDstColor
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendDstAlpha
	BlendOneMinusDstAlpha
)

/** @brief Faces affected by culling. */
type Faces uint8

const (
	FaceFront Faces = iota
	FaceBack
	FaceAll
)

/** @brief Rasterization mode of polygons. */
type PolygonMode uint8

const (
	PolygonFill PolygonMode = iota
	PolygonLine
	PolygonPoint
)

/**
 * @brief The fixed-function part of the draw state.
 * Every field here ends up baked in a pipeline, so it must appear in hashedFields.
 */
type DrawState struct {
	/** @brief Constant color used by the blend equations. */
	BlendColor mgl32.Vec4
	/** @brief Per-channel color write mask (RGBA). */
	ColorWriteMask [4]bool

	BlendSrcRGB        BlendFunction
	BlendDstRGB        BlendFunction
	BlendSrcAlpha      BlendFunction
	BlendDstAlpha      BlendFunction
	BlendEquationRGB   BlendEquation
	BlendEquationAlpha BlendEquation

	CullFaceMode Faces
	PolygonMode  PolygonMode

	DepthFunc TestFunction

	StencilFunc      TestFunction
	StencilFail      StencilOp
	StencilPass      StencilOp
	StencilDepthPass StencilOp
	StencilValue     uint8
	StencilWriteMask bool

	/** @brief Control points per patch, used when tessellation stages are present. */
	PatchSize uint8

	StencilTest    bool
	DepthTest      bool
	DepthWriteMask bool
	CullFace       bool
	Blend          bool
}

/** @brief Returns the state a freshly created context starts with. */
func DefaultDrawState() DrawState {
	return DrawState{
		BlendColor:         mgl32.Vec4{0, 0, 0, 0},
		ColorWriteMask:     [4]bool{true, true, true, true},
		BlendSrcRGB:        BlendOne,
		BlendDstRGB:        BlendZero,
		BlendSrcAlpha:      BlendOne,
		BlendDstAlpha:      BlendZero,
		BlendEquationRGB:   BlendAdd,
		BlendEquationAlpha: BlendAdd,
		CullFaceMode:       FaceBack,
		PolygonMode:        PolygonFill,
		DepthFunc:          TestLess,
		StencilFunc:        TestAlways,
		StencilFail:        StencilKeep,
		StencilPass:        StencilKeep,
		StencilDepthPass:   StencilKeep,
		StencilWriteMask:   true,
		PatchSize:          3,
		DepthWriteMask:     true,
	}
}

// hashedFields appends every field that keys a pipeline, in a fixed order.
// Equivalent and Hash both go through it.
func (s *DrawState) hashedFields(buf []byte) []byte {
	for _, c := range s.BlendColor {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(c))
	}
	var mask byte
	for i, on := range s.ColorWriteMask {
		if on {
			mask |= 1 << i
		}
	}
	buf = append(buf,
		mask,
		byte(s.BlendSrcRGB), byte(s.BlendDstRGB),
		byte(s.BlendSrcAlpha), byte(s.BlendDstAlpha),
		byte(s.BlendEquationRGB), byte(s.BlendEquationAlpha),
		byte(s.CullFaceMode), byte(s.PolygonMode),
		byte(s.DepthFunc),
		byte(s.StencilFunc), byte(s.StencilFail), byte(s.StencilPass), byte(s.StencilDepthPass),
		s.StencilValue, boolByte(s.StencilWriteMask),
		s.PatchSize,
	)
	var flags byte
	for i, on := range []bool{s.StencilTest, s.DepthTest, s.DepthWriteMask, s.CullFace, s.Blend} {
		if on {
			flags |= 1 << i
		}
	}
	return append(buf, flags)
}

/** @brief Reports whether two states would produce the same pipeline. */
func (s *DrawState) Equivalent(o *DrawState) bool {
	var a, b [64]byte
	return string(s.hashedFields(a[:0])) == string(o.hashedFields(b[:0]))
}

/** @brief Returns the xxHash64 of the itemized fields. */
func (s *DrawState) Hash() uint64 {
	var a [64]byte
	return xxhash.Sum64(s.hashedFields(a[:0]))
}

/** @brief Appends the itemized fields to buf, for callers that extend the key. */
func (s *DrawState) AppendKey(buf []byte) []byte {
	return s.hashedFields(buf)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
