package mesh

import (
	"github.com/hupe1980/meshdata/array"
)

// The kernels below assume a uniform Cartesian grid where every coarse cell
// covers 2^ndim fine cells. Fine cell f along an active dimension maps to
// coarse cell fineToCoarse(f).

func fineToCoarse(fine, coarse IndexShape, d, f int) int {
	if !fine.Active(d) {
		return f
	}
	return coarse.Ghost(d) + ((f - fine.Ghost(d)) >> 1)
}

func coarseToFine(fine, coarse IndexShape, d, c int) int {
	if !fine.Active(d) {
		return c
	}
	return fine.Ghost(d) + 2*(c-coarse.Ghost(d))
}

// Restrict averages fine cells into the coarse cells of region cr for
// components [n0, n1).
func Restrict(fine, coarse *array.Buffer, fineShape IndexShape, n0, n1 int, cr array.Region) {
	coarseShape, err := fineShape.CoarseShape()
	if err != nil {
		panic(err)
	}

	dk, dj, di := 0, 0, 0
	if fineShape.Active(2) {
		dk = 1
	}
	if fineShape.Active(1) {
		dj = 1
	}
	if fineShape.Active(0) {
		di = 1
	}
	weight := 1.0 / float64((dk+1)*(dj+1)*(di+1))

	for n := n0; n < n1; n++ {
		for ck := cr.K.S; ck <= cr.K.E; ck++ {
			fk := coarseToFine(fineShape, coarseShape, 2, ck)
			for cj := cr.J.S; cj <= cr.J.E; cj++ {
				fj := coarseToFine(fineShape, coarseShape, 1, cj)
				for ci := cr.I.S; ci <= cr.I.E; ci++ {
					fi := coarseToFine(fineShape, coarseShape, 0, ci)
					sum := 0.0
					for ok := 0; ok <= dk; ok++ {
						for oj := 0; oj <= dj; oj++ {
							for oi := 0; oi <= di; oi++ {
								sum += fine.At(n, fk+ok, fj+oj, fi+oi)
							}
						}
					}
					coarse.Set(n, ck, cj, ci, sum*weight)
				}
			}
		}
	}
}

// CoarseRegionOf returns the coarse cells covering the fine region fr.
func CoarseRegionOf(fineShape IndexShape, fr array.Region) array.Region {
	coarseShape, err := fineShape.CoarseShape()
	if err != nil {
		panic(err)
	}
	return array.Region{
		K: array.Range{S: fineToCoarse(fineShape, coarseShape, 2, fr.K.S), E: fineToCoarse(fineShape, coarseShape, 2, fr.K.E)},
		J: array.Range{S: fineToCoarse(fineShape, coarseShape, 1, fr.J.S), E: fineToCoarse(fineShape, coarseShape, 1, fr.J.E)},
		I: array.Range{S: fineToCoarse(fineShape, coarseShape, 0, fr.I.S), E: fineToCoarse(fineShape, coarseShape, 0, fr.I.E)},
	}
}

func minmod(a, b float64) float64 {
	if a*b <= 0 {
		return 0
	}
	if a > 0 {
		return min(a, b)
	}
	return max(a, b)
}

func inRange(r array.Range, v int) bool {
	return v >= r.S && v <= r.E
}

// Prolongate fills the fine cells of region fr from coarse data using
// piecewise-linear reconstruction with minmod-limited slopes. Only coarse
// cells inside valid are read; a slope that would need a cell outside valid
// is taken as zero.
func Prolongate(coarse, fine *array.Buffer, fineShape IndexShape, n0, n1 int, fr, valid array.Region) {
	coarseShape, err := fineShape.CoarseShape()
	if err != nil {
		panic(err)
	}

	slope := func(n, ck, cj, ci, d int, r array.Range, c int) float64 {
		if !fineShape.Active(d) || !inRange(r, c-1) || !inRange(r, c+1) {
			return 0
		}
		var lo, hi float64
		switch d {
		case 0:
			lo, hi = coarse.At(n, ck, cj, ci-1), coarse.At(n, ck, cj, ci+1)
		case 1:
			lo, hi = coarse.At(n, ck, cj-1, ci), coarse.At(n, ck, cj+1, ci)
		default:
			lo, hi = coarse.At(n, ck-1, cj, ci), coarse.At(n, ck+1, cj, ci)
		}
		u := coarse.At(n, ck, cj, ci)
		return minmod(u-lo, hi-u)
	}
	// sign of the fine-cell center offset inside its parent, in units of the
	// coarse cell width
	side := func(d, f int) float64 {
		if !fineShape.Active(d) {
			return 0
		}
		if (f-fineShape.Ghost(d))&1 == 0 {
			return -0.25
		}
		return 0.25
	}

	for n := n0; n < n1; n++ {
		for fk := fr.K.S; fk <= fr.K.E; fk++ {
			ck := fineToCoarse(fineShape, coarseShape, 2, fk)
			for fj := fr.J.S; fj <= fr.J.E; fj++ {
				cj := fineToCoarse(fineShape, coarseShape, 1, fj)
				for fi := fr.I.S; fi <= fr.I.E; fi++ {
					ci := fineToCoarse(fineShape, coarseShape, 0, fi)
					v := coarse.At(n, ck, cj, ci)
					v += side(0, fi) * slope(n, ck, cj, ci, 0, valid.I, ci)
					v += side(1, fj) * slope(n, ck, cj, ci, 1, valid.J, cj)
					v += side(2, fk) * slope(n, ck, cj, ci, 2, valid.K, ck)
					fine.Set(n, fk, fj, fi, v)
				}
			}
		}
	}
}
