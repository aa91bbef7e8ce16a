// Package array provides the dense numeric buffer backing field variables.
package array

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrShapeMismatch is returned when two buffers with different extents are
// combined.
var ErrShapeMismatch = errors.New("buffer shape mismatch")

// Buffer is a contiguous float64 array laid out as [ncomp][nk][nj][ni],
// i being the fastest index.
type Buffer struct {
	ncomp, nk, nj, ni int
	data              []float64
}

// New allocates a zeroed buffer. Extents smaller than one are treated as one.
func New(ncomp, nk, nj, ni int) *Buffer {
	ncomp, nk, nj, ni = max(ncomp, 1), max(nk, 1), max(nj, 1), max(ni, 1)
	return &Buffer{
		ncomp: ncomp,
		nk:    nk,
		nj:    nj,
		ni:    ni,
		data:  make([]float64, ncomp*nk*nj*ni),
	}
}

// SizeBytes returns the storage a buffer of the given extents needs.
func SizeBytes(ncomp, nk, nj, ni int) int64 {
	n := int64(max(ncomp, 1)) * int64(max(nk, 1)) * int64(max(nj, 1)) * int64(max(ni, 1))
	return n * int64(unsafe.Sizeof(float64(0)))
}

// Ncomp returns the number of components.
func (b *Buffer) Ncomp() int { return b.ncomp }

// Extents returns the spatial extents (nk, nj, ni).
func (b *Buffer) Extents() (nk, nj, ni int) { return b.nk, b.nj, b.ni }

// Len returns the number of elements.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the storage size in bytes.
func (b *Buffer) Bytes() int64 {
	return int64(len(b.data)) * int64(unsafe.Sizeof(float64(0)))
}

// Data exposes the backing slice.
func (b *Buffer) Data() []float64 { return b.data }

// Index returns the flat offset of (n, k, j, i).
func (b *Buffer) Index(n, k, j, i int) int {
	return ((n*b.nk+k)*b.nj+j)*b.ni + i
}

// At returns the value at (n, k, j, i).
func (b *Buffer) At(n, k, j, i int) float64 {
	return b.data[b.Index(n, k, j, i)]
}

// Set stores v at (n, k, j, i).
func (b *Buffer) Set(n, k, j, i int, v float64) {
	b.data[b.Index(n, k, j, i)] = v
}

// Fill sets every element to v.
func (b *Buffer) Fill(v float64) {
	for i := range b.data {
		b.data[i] = v
	}
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := *b
	c.data = make([]float64, len(b.data))
	copy(c.data, b.data)
	return &c
}

// SameShape reports whether both buffers have identical extents.
func (b *Buffer) SameShape(other *Buffer) bool {
	return b.ncomp == other.ncomp && b.nk == other.nk && b.nj == other.nj && b.ni == other.ni
}

// CopyFrom copies the contents of src into b.
func (b *Buffer) CopyFrom(src *Buffer) error {
	if !b.SameShape(src) {
		return fmt.Errorf("%w: (%d,%d,%d,%d) vs (%d,%d,%d,%d)", ErrShapeMismatch,
			b.ncomp, b.nk, b.nj, b.ni, src.ncomp, src.nk, src.nj, src.ni)
	}
	copy(b.data, src.data)
	return nil
}

// Range is an inclusive index interval.
type Range struct {
	S, E int
}

// Len returns the number of indices in the range (zero when empty).
func (r Range) Len() int {
	if r.E < r.S {
		return 0
	}
	return r.E - r.S + 1
}

// Region is a box of cells addressed as (k, j, i) ranges.
type Region struct {
	K, J, I Range
}

// Cells returns the number of cells in the region.
func (r Region) Cells() int {
	return r.K.Len() * r.J.Len() * r.I.Len()
}

// Gather appends the values of components [n0, n1) inside r to dst in
// (n, k, j, i) order.
func (b *Buffer) Gather(dst []float64, n0, n1 int, r Region) []float64 {
	for n := n0; n < n1; n++ {
		for k := r.K.S; k <= r.K.E; k++ {
			for j := r.J.S; j <= r.J.E; j++ {
				off := b.Index(n, k, j, r.I.S)
				dst = append(dst, b.data[off:off+r.I.Len()]...)
			}
		}
	}
	return dst
}

// Scatter writes src into components [n0, n1) inside r, consuming values in
// (n, k, j, i) order. It returns the number of values consumed.
func (b *Buffer) Scatter(src []float64, n0, n1 int, r Region) int {
	pos := 0
	for n := n0; n < n1; n++ {
		for k := r.K.S; k <= r.K.E; k++ {
			for j := r.J.S; j <= r.J.E; j++ {
				off := b.Index(n, k, j, r.I.S)
				pos += copy(b.data[off:off+r.I.Len()], src[pos:])
			}
		}
	}
	return pos
}
