package math

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// AlignUp rounds size up to the next multiple of alignment.
// An alignment of zero leaves size unchanged.
func AlignUp[T constraints.Integer](size, alignment T) T {
	if alignment == 0 {
		return size
	}
	return ((size + alignment - 1) / alignment) * alignment
}

// MipCount returns the length of the full mip chain of a w×h image.
func MipCount(w, h uint32) uint32 {
	m := max(w, h)
	if m == 0 {
		return 1
	}
	return uint32(bits.Len32(m))
}
