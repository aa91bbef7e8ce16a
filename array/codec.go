package array

import (
	"encoding/binary"
	"fmt"
	"math"
)

// AppendFloat64s appends v to dst as little-endian IEEE 754 values.
func AppendFloat64s(dst []byte, v []float64) []byte {
	for _, x := range v {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(x))
	}
	return dst
}

// DecodeFloat64s decodes little-endian float64 values from src into dst.
// len(src) must be exactly 8*len(dst).
func DecodeFloat64s(dst []float64, src []byte) error {
	if len(src) != 8*len(dst) {
		return fmt.Errorf("%w: %d bytes for %d values", ErrShapeMismatch, len(src), len(dst))
	}
	for i := range dst {
		dst[i] = math.Float64frombits(binary.LittleEndian.Uint64(src[8*i:]))
	}
	return nil
}

// Float64sFromBytes decodes src into a new slice. len(src) must be a
// multiple of eight.
func Float64sFromBytes(src []byte) ([]float64, error) {
	if len(src)%8 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of values", ErrShapeMismatch, len(src))
	}
	out := make([]float64, len(src)/8)
	return out, DecodeFloat64s(out, src)
}
