// Package mesh describes the mesh block that owns a field container: its
// index space, refinement level, rank and neighbors. It also hosts the
// restriction and prolongation kernels used at refinement boundaries.
package mesh

import (
	"errors"
	"fmt"
	"weak"
)

// ErrStaleBlock is returned when a block reference outlived its block.
var ErrStaleBlock = errors.New("mesh block is no longer live")

// Block is one local subdomain of the mesh.
type Block struct {
	ID    int
	Rank  int
	Level int
	Shape IndexShape

	// Neighbors lists every adjacent block, including those across edges and
	// corners.
	Neighbors []Neighbor

	// Multilevel enables coarse buffers on variables so that data can be
	// exchanged with blocks at other refinement levels.
	Multilevel bool
}

// BlockOption configures NewBlock.
type BlockOption func(*Block)

// WithRank sets the process rank owning the block.
func WithRank(rank int) BlockOption {
	return func(b *Block) { b.Rank = rank }
}

// WithLevel sets the refinement level.
func WithLevel(level int) BlockOption {
	return func(b *Block) { b.Level = level }
}

// WithNeighbors sets the neighbor list.
func WithNeighbors(nbs ...Neighbor) BlockOption {
	return func(b *Block) { b.Neighbors = append(b.Neighbors, nbs...) }
}

// WithMultilevel enables coarse buffers.
func WithMultilevel() BlockOption {
	return func(b *Block) { b.Multilevel = true }
}

// NewBlock creates a block. Any neighbor at a different level implies
// Multilevel.
func NewBlock(id int, shape IndexShape, opts ...BlockOption) (*Block, error) {
	b := &Block{ID: id, Shape: shape}
	for _, opt := range opts {
		opt(b)
	}
	for _, nb := range b.Neighbors {
		if err := nb.validate(shape.NDim); err != nil {
			return nil, fmt.Errorf("block %d: %w", id, err)
		}
		if nb.LevelDiff != 0 {
			b.Multilevel = true
		}
	}
	if b.Multilevel {
		if _, err := shape.CoarseShape(); err != nil {
			return nil, fmt.Errorf("block %d: %w", id, err)
		}
	}
	return b, nil
}

// CoarseShape returns the coarse index shape. It panics if the block shape
// cannot be coarsened, which NewBlock rules out for multilevel blocks.
func (b *Block) CoarseShape() IndexShape {
	c, err := b.Shape.CoarseShape()
	if err != nil {
		panic(err)
	}
	return c
}

// Ref is a non-owning reference to a Block. The zero Ref refers to nothing.
type Ref struct {
	p weak.Pointer[Block]
}

// MakeRef creates a weak reference to b.
func MakeRef(b *Block) Ref {
	if b == nil {
		return Ref{}
	}
	return Ref{p: weak.Make(b)}
}

// Get returns the block or ErrStaleBlock if it is gone or was never set.
func (r Ref) Get() (*Block, error) {
	b := r.p.Value()
	if b == nil {
		return nil, ErrStaleBlock
	}
	return b, nil
}

// IsSet reports whether the reference was ever bound to a block.
func (r Ref) IsSet() bool {
	return r.p != weak.Pointer[Block]{}
}
