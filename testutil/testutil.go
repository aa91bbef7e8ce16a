package testutil

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/mesh"
)

// RNG is a seeded random source. It is safe for concurrent use.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0,1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// FillUniform fills dst with values in [minVal, maxVal).
// Locks once per call.
func (r *RNG) FillUniform(dst []float64, minVal, maxVal float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float64()*span
	}
}

// FillGaussian fills dst with standard normal values.
func (r *RNG) FillGaussian(dst []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.NormFloat64()
	}
}

// FillBuffer fills every element of b, ghosts included, with values in
// [minVal, maxVal). A nil buffer is ignored.
func (r *RNG) FillBuffer(b *array.Buffer, minVal, maxVal float64) {
	if b == nil {
		return
	}
	r.FillUniform(b.Data(), minVal, maxVal)
}

// SparseIDs returns n distinct ids drawn from [0, limit), in draw order.
func (r *RNG) SparseIDs(n, limit int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Perm(limit)[:n]
}

// Shape builds an index shape or fails the test.
func Shape(tb testing.TB, nx1, nx2, nx3, nghost int) mesh.IndexShape {
	tb.Helper()
	s, err := mesh.NewIndexShape(nx1, nx2, nx3, nghost)
	if err != nil {
		tb.Fatalf("index shape: %v", err)
	}
	return s
}

// NewBlock builds a block or fails the test.
func NewBlock(tb testing.TB, id int, shape mesh.IndexShape, opts ...mesh.BlockOption) *mesh.Block {
	tb.Helper()
	b, err := mesh.NewBlock(id, shape, opts...)
	if err != nil {
		tb.Fatalf("block %d: %v", id, err)
	}
	return b
}

// Row builds n same-level blocks side by side along x1 on rank 0. Block i
// has id i and face neighbors i-1 and i+1 where they exist.
func Row(tb testing.TB, n int, shape mesh.IndexShape, opts ...mesh.BlockOption) []*mesh.Block {
	tb.Helper()
	blocks := make([]*mesh.Block, n)
	for i := range n {
		var nbs []mesh.Neighbor
		if i > 0 {
			nbs = append(nbs, mesh.Neighbor{BlockID: i - 1, Offset: [3]int{-1, 0, 0}})
		}
		if i < n-1 {
			nbs = append(nbs, mesh.Neighbor{BlockID: i + 1, Offset: [3]int{1, 0, 0}})
		}
		blocks[i] = NewBlock(tb, i, shape, append(opts, mesh.WithNeighbors(nbs...))...)
	}
	return blocks
}

// MaxAbsDiff returns the largest elementwise difference of a and b, or
// +Inf when their lengths differ.
func MaxAbsDiff(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var m float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}

// FillInterior sets component n of every interior cell of buf to f(k, j, i).
func FillInterior(buf *array.Buffer, shape mesh.IndexShape, n int, f func(k, j, i int) float64) {
	r := shape.Region(mesh.Interior)
	for k := r.K.S; k <= r.K.E; k++ {
		for j := r.J.S; j <= r.J.E; j++ {
			for i := r.I.S; i <= r.I.E; i++ {
				buf.Set(n, k, j, i, f(k, j, i))
			}
		}
	}
}
