package mesh

import "fmt"

// Neighbor describes an adjacent block as seen from the owning block.
type Neighbor struct {
	BlockID int
	Rank    int

	// LevelDiff is the neighbor level minus the owning block level: -1 for a
	// coarser neighbor, +1 for a finer one.
	LevelDiff int

	// Offset points from the owning block to the neighbor along x1, x2, x3;
	// each entry is -1, 0 or 1.
	Offset [3]int

	// FinePos locates the finer block of the pair inside its parent along
	// each dimension (0 lower half, 1 upper half). Ignored when LevelDiff is 0.
	FinePos [3]int
}

func (n Neighbor) validate(ndim int) error {
	if n.LevelDiff < -1 || n.LevelDiff > 1 {
		return fmt.Errorf("neighbor %d: level difference %d out of range", n.BlockID, n.LevelDiff)
	}
	nonzero := 0
	for d, o := range n.Offset {
		if o < -1 || o > 1 {
			return fmt.Errorf("neighbor %d: offset %v out of range", n.BlockID, n.Offset)
		}
		if o != 0 {
			if d >= ndim {
				return fmt.Errorf("neighbor %d: offset along inactive x%d", n.BlockID, d+1)
			}
			nonzero++
		}
		if n.FinePos[d] < 0 || n.FinePos[d] > 1 {
			return fmt.Errorf("neighbor %d: fine position %v out of range", n.BlockID, n.FinePos)
		}
	}
	if nonzero == 0 {
		return fmt.Errorf("neighbor %d: zero offset", n.BlockID)
	}
	return nil
}

// IsFace reports whether the neighbor shares a face (exactly one offset set).
func (n Neighbor) IsFace() bool {
	nonzero := 0
	for _, o := range n.Offset {
		if o != 0 {
			nonzero++
		}
	}
	return nonzero == 1
}

// FaceDim returns the dimension normal to the shared face, or -1 when the
// neighbor is not a face neighbor.
func (n Neighbor) FaceDim() int {
	if !n.IsFace() {
		return -1
	}
	for d, o := range n.Offset {
		if o != 0 {
			return d
		}
	}
	return -1
}

// IsLocal reports whether the neighbor lives on the given rank.
func (n Neighbor) IsLocal(rank int) bool {
	return n.Rank == rank
}

// Reversed returns the offset pointing from the neighbor back to the owner.
func (n Neighbor) Reversed() [3]int {
	return [3]int{-n.Offset[0], -n.Offset[1], -n.Offset[2]}
}
