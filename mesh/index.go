package mesh

import (
	"fmt"

	"github.com/hupe1980/meshdata/array"
)

// IndexDomain selects the part of a block's index space.
type IndexDomain uint8

const (
	// Interior covers only the cells owned by the block.
	Interior IndexDomain = iota
	// Entire covers interior and ghost cells.
	Entire
)

func (d IndexDomain) String() string {
	switch d {
	case Interior:
		return "interior"
	case Entire:
		return "entire"
	default:
		return fmt.Sprintf("IndexDomain(%d)", uint8(d))
	}
}

// IndexRange is an inclusive index interval.
type IndexRange = array.Range

// IndexShape describes the cell layout of a block. NX holds the interior
// cell counts along x1, x2, x3; inactive dimensions have NX == 1 and no
// ghost cells.
type IndexShape struct {
	NX     [3]int
	NGhost int
	NDim   int
}

// NewIndexShape builds a shape from interior cell counts and a ghost width.
// The dimensionality follows from which of nx2 and nx3 exceed one.
func NewIndexShape(nx1, nx2, nx3, nghost int) (IndexShape, error) {
	if nx1 < 1 || nx2 < 1 || nx3 < 1 {
		return IndexShape{}, fmt.Errorf("invalid cell counts (%d,%d,%d)", nx1, nx2, nx3)
	}
	if nx3 > 1 && nx2 == 1 {
		return IndexShape{}, fmt.Errorf("nx3=%d requires nx2 > 1", nx3)
	}
	if nghost < 0 {
		return IndexShape{}, fmt.Errorf("negative ghost width %d", nghost)
	}
	ndim := 1
	if nx2 > 1 {
		ndim++
	}
	if nx3 > 1 {
		ndim++
	}
	return IndexShape{NX: [3]int{nx1, nx2, nx3}, NGhost: nghost, NDim: ndim}, nil
}

// Ghost returns the ghost width along dimension d (0-based).
func (s IndexShape) Ghost(d int) int {
	if d < s.NDim {
		return s.NGhost
	}
	return 0
}

// Active reports whether dimension d carries cells and ghosts.
func (s IndexShape) Active(d int) bool {
	return d < s.NDim
}

// Extent returns the entire (interior plus ghost) cell count along d.
func (s IndexShape) Extent(d int) int {
	return s.NX[d] + 2*s.Ghost(d)
}

// Extents returns the entire extents in buffer order (nk, nj, ni).
func (s IndexShape) Extents() (nk, nj, ni int) {
	return s.Extent(2), s.Extent(1), s.Extent(0)
}

// Bounds returns the index range along dimension d.
func (s IndexShape) Bounds(d int, domain IndexDomain) IndexRange {
	g := s.Ghost(d)
	if domain == Entire {
		return IndexRange{S: 0, E: s.NX[d] + 2*g - 1}
	}
	return IndexRange{S: g, E: g + s.NX[d] - 1}
}

// BoundsI returns the x1 range.
func (s IndexShape) BoundsI(domain IndexDomain) IndexRange { return s.Bounds(0, domain) }

// BoundsJ returns the x2 range.
func (s IndexShape) BoundsJ(domain IndexDomain) IndexRange { return s.Bounds(1, domain) }

// BoundsK returns the x3 range.
func (s IndexShape) BoundsK(domain IndexDomain) IndexRange { return s.Bounds(2, domain) }

// Region returns the (k, j, i) box of the domain.
func (s IndexShape) Region(domain IndexDomain) array.Region {
	return array.Region{K: s.BoundsK(domain), J: s.BoundsJ(domain), I: s.BoundsI(domain)}
}

// CoarseShape returns the shape of the half-resolution representation.
func (s IndexShape) CoarseShape() (IndexShape, error) {
	c := s
	for d := 0; d < s.NDim; d++ {
		if s.NX[d]%2 != 0 {
			return IndexShape{}, fmt.Errorf("cell count %d along x%d is not even", s.NX[d], d+1)
		}
		c.NX[d] = s.NX[d] / 2
	}
	return c, nil
}

// NewBuffer allocates a buffer spanning the entire domain.
func (s IndexShape) NewBuffer(ncomp int) *array.Buffer {
	nk, nj, ni := s.Extents()
	return array.New(ncomp, nk, nj, ni)
}
