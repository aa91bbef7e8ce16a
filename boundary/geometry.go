package boundary

import (
	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/mesh"
)

// The regions below describe, for one neighbor, which cells a block sends
// and where it stores what it receives. Both sides of a channel compute
// regions with the same cell count in the same (k, j, i) order.
//
// Same level: interior cells next to the shared boundary go straight into
// the neighbor's ghosts.
//
// Fine to coarse: the fine block restricts into its coarse buffer and sends
// coarse cells; the coarse block stores them in its ghosts.
//
// Coarse to fine: the coarse block sends its own cells; the fine block
// stores them in the ghosts of its coarse buffer and prolongates later.

// coarseGhostWidth is the number of coarse ghost cells exchanged toward a
// finer block: enough to cover the fine ghosts plus one cell for slopes,
// capped by the ghost width.
func coarseGhostWidth(s mesh.IndexShape) int {
	return min(s.NGhost, (s.NGhost+1)/2+1)
}

func dimRange(s mesh.IndexShape, d int, f func(ib mesh.IndexRange) mesh.IndexRange) mesh.IndexRange {
	if !s.Active(d) {
		return mesh.IndexRange{}
	}
	return f(s.Bounds(d, mesh.Interior))
}

func regionOf(s mesh.IndexShape, f func(d int, ib mesh.IndexRange) mesh.IndexRange) array.Region {
	var r [3]mesh.IndexRange
	for d := range r {
		r[d] = dimRange(s, d, func(ib mesh.IndexRange) mesh.IndexRange { return f(d, ib) })
	}
	return array.Region{K: r[2], J: r[1], I: r[0]}
}

// sendEdge returns the w interior cells next to the boundary in direction o.
func sendEdge(ib mesh.IndexRange, o, w int) mesh.IndexRange {
	switch {
	case o > 0:
		return mesh.IndexRange{S: ib.E - w + 1, E: ib.E}
	case o < 0:
		return mesh.IndexRange{S: ib.S, E: ib.S + w - 1}
	default:
		return ib
	}
}

// recvEdge returns the w ghost cells beyond the boundary in direction o.
func recvEdge(ib mesh.IndexRange, o, w int) mesh.IndexRange {
	switch {
	case o > 0:
		return mesh.IndexRange{S: ib.E + 1, E: ib.E + w}
	case o < 0:
		return mesh.IndexRange{S: ib.S - w, E: ib.S - 1}
	default:
		return ib
	}
}

// half returns the half of the interior covered by a finer block at
// position p.
func half(s mesh.IndexShape, d int, ib mesh.IndexRange, p int) mesh.IndexRange {
	h := s.NX[d] / 2
	return mesh.IndexRange{S: ib.S + p*h, E: ib.S + p*h + h - 1}
}

// SendRegion returns the cells sent to nb and whether they are read from
// the coarse buffer.
func SendRegion(s mesh.IndexShape, nb mesh.Neighbor) (array.Region, bool) {
	switch {
	case nb.LevelDiff < 0:
		cs, _ := s.CoarseShape()
		return regionOf(cs, func(d int, ib mesh.IndexRange) mesh.IndexRange {
			return sendEdge(ib, nb.Offset[d], cs.NGhost)
		}), true
	case nb.LevelDiff > 0:
		w := coarseGhostWidth(s)
		return regionOf(s, func(d int, ib mesh.IndexRange) mesh.IndexRange {
			if nb.Offset[d] == 0 {
				return half(s, d, ib, nb.FinePos[d])
			}
			return sendEdge(ib, nb.Offset[d], w)
		}), false
	default:
		return regionOf(s, func(d int, ib mesh.IndexRange) mesh.IndexRange {
			return sendEdge(ib, nb.Offset[d], s.NGhost)
		}), false
	}
}

// RecvRegion returns the cells filled from nb and whether they live in the
// coarse buffer.
func RecvRegion(s mesh.IndexShape, nb mesh.Neighbor) (array.Region, bool) {
	switch {
	case nb.LevelDiff < 0:
		cs, _ := s.CoarseShape()
		w := coarseGhostWidth(s)
		return regionOf(cs, func(d int, ib mesh.IndexRange) mesh.IndexRange {
			return recvEdge(ib, nb.Offset[d], w)
		}), true
	case nb.LevelDiff > 0:
		return regionOf(s, func(d int, ib mesh.IndexRange) mesh.IndexRange {
			if nb.Offset[d] == 0 {
				return half(s, d, ib, nb.FinePos[d])
			}
			return recvEdge(ib, nb.Offset[d], s.NGhost)
		}), false
	default:
		return regionOf(s, func(d int, ib mesh.IndexRange) mesh.IndexRange {
			return recvEdge(ib, nb.Offset[d], s.NGhost)
		}), false
	}
}

// GhostRegion returns the fine ghost cells facing nb.
func GhostRegion(s mesh.IndexShape, nb mesh.Neighbor) array.Region {
	return regionOf(s, func(d int, ib mesh.IndexRange) mesh.IndexRange {
		return recvEdge(ib, nb.Offset[d], s.NGhost)
	})
}

// prolongationSource returns the coarse cells that hold valid data once
// the receive from the coarser neighbor nb is applied and the interior is
// restricted. Across a face the interior is contiguous with the received
// cells; across edges and corners only the received cells are safe.
func prolongationSource(s mesh.IndexShape, nb mesh.Neighbor) array.Region {
	recv, _ := RecvRegion(s, nb)
	if !nb.IsFace() {
		return recv
	}
	cs, _ := s.CoarseShape()
	return regionOf(cs, func(d int, ib mesh.IndexRange) mesh.IndexRange {
		switch o := nb.Offset[d]; {
		case o > 0:
			return mesh.IndexRange{S: ib.S, E: ib.E + coarseGhostWidth(s)}
		case o < 0:
			return mesh.IndexRange{S: ib.S - coarseGhostWidth(s), E: ib.E}
		default:
			return ib
		}
	})
}

func faceIndex(ib mesh.IndexRange, o int) int {
	if o > 0 {
		return ib.E + 1
	}
	return ib.S
}

// FluxRecvRegion returns the faces of the coarse block's flux buffer along
// the face normal that a finer face neighbor nb overwrites.
func FluxRecvRegion(s mesh.IndexShape, nb mesh.Neighbor) array.Region {
	fd := nb.FaceDim()
	return regionOf(s, func(d int, ib mesh.IndexRange) mesh.IndexRange {
		if d == fd {
			f := faceIndex(ib, nb.Offset[d])
			return mesh.IndexRange{S: f, E: f}
		}
		return half(s, d, ib, nb.FinePos[d])
	})
}

// FluxSendSize returns the number of values a fine block sends per
// component when correcting fluxes on a coarser face neighbor.
func FluxSendSize(s mesh.IndexShape, nb mesh.Neighbor) int {
	n := 1
	fd := nb.FaceDim()
	for d := 0; d < s.NDim; d++ {
		if d != fd {
			n *= s.NX[d] / 2
		}
	}
	return n
}

// RestrictFluxFace averages the fine fluxes on the face shared with the
// coarser face neighbor nb onto coarse faces. Values for components
// [n0, n1) are appended to dst in (n, k, j, i) order.
func RestrictFluxFace(dst []float64, flux *array.Buffer, s mesh.IndexShape, nb mesh.Neighbor, n0, n1 int) []float64 {
	fd := nb.FaceDim()
	face := faceIndex(s.Bounds(fd, mesh.Interior), nb.Offset[fd])

	var count, children, start [3]int
	nchildren := 1
	for d := 0; d < 3; d++ {
		count[d], children[d] = 1, 1
		switch {
		case d == fd:
			start[d] = face
		case s.Active(d):
			count[d] = s.NX[d] / 2
			children[d] = 2
			start[d] = s.Bounds(d, mesh.Interior).S
			nchildren *= 2
		}
	}
	w := 1.0 / float64(nchildren)

	for n := n0; n < n1; n++ {
		for ck := 0; ck < count[2]; ck++ {
			for cj := 0; cj < count[1]; cj++ {
				for ci := 0; ci < count[0]; ci++ {
					sum := 0.0
					for ok := 0; ok < children[2]; ok++ {
						for oj := 0; oj < children[1]; oj++ {
							for oi := 0; oi < children[0]; oi++ {
								k := start[2] + (children[2]-1)*(2*ck) + ok
								j := start[1] + (children[1]-1)*(2*cj) + oj
								i := start[0] + (children[0]-1)*(2*ci) + oi
								sum += flux.At(n, k, j, i)
							}
						}
					}
					dst = append(dst, sum*w)
				}
			}
		}
	}
	return dst
}
