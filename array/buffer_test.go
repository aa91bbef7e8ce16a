package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_Layout(t *testing.T) {
	b := New(2, 1, 3, 4)
	assert.Equal(t, 24, b.Len())
	assert.Equal(t, int64(24*8), b.Bytes())
	assert.Equal(t, int64(24*8), SizeBytes(2, 1, 3, 4))
	assert.Equal(t, 2, b.Ncomp())

	nk, nj, ni := b.Extents()
	assert.Equal(t, []int{1, 3, 4}, []int{nk, nj, ni})

	b.Set(1, 0, 2, 3, 7)
	assert.Equal(t, 7.0, b.At(1, 0, 2, 3))
	assert.Equal(t, 23, b.Index(1, 0, 2, 3))
	assert.Equal(t, 7.0, b.Data()[23])
}

func TestBuffer_DegenerateExtents(t *testing.T) {
	b := New(0, 0, 0, 5)
	assert.Equal(t, 5, b.Len())
	assert.Equal(t, 1, b.Ncomp())
}

func TestBuffer_CloneAndCopy(t *testing.T) {
	b := New(1, 1, 2, 2)
	b.Fill(3)

	c := b.Clone()
	c.Set(0, 0, 0, 0, 9)
	assert.Equal(t, 3.0, b.At(0, 0, 0, 0), "clone must not alias")

	require.NoError(t, b.CopyFrom(c))
	assert.Equal(t, 9.0, b.At(0, 0, 0, 0))

	err := b.CopyFrom(New(1, 1, 2, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBuffer_GatherScatter(t *testing.T) {
	b := New(2, 1, 4, 4)
	for n := 0; n < 2; n++ {
		for j := 0; j < 4; j++ {
			for i := 0; i < 4; i++ {
				b.Set(n, 0, j, i, float64(100*n+10*j+i))
			}
		}
	}

	r := Region{K: Range{0, 0}, J: Range{1, 2}, I: Range{2, 3}}
	assert.Equal(t, 4, r.Cells())

	got := b.Gather(nil, 0, 2, r)
	assert.Equal(t, []float64{12, 13, 22, 23, 112, 113, 122, 123}, got)

	dst := New(2, 1, 4, 4)
	n := dst.Scatter(got, 0, 2, Region{K: Range{0, 0}, J: Range{0, 1}, I: Range{0, 1}})
	assert.Equal(t, 8, n)
	assert.Equal(t, 12.0, dst.At(0, 0, 0, 0))
	assert.Equal(t, 123.0, dst.At(1, 0, 1, 1))

	assert.Equal(t, 0, Range{3, 2}.Len())
}

func TestFloat64Codec(t *testing.T) {
	v := []float64{1.5, -2, 0, 3e300}
	raw := AppendFloat64s(nil, v)
	assert.Len(t, raw, 32)

	got, err := Float64sFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = Float64sFromBytes(raw[:31])
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.ErrorIs(t, DecodeFloat64s(make([]float64, 3), raw), ErrShapeMismatch)
}
