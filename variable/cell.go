package variable

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/resource"
)

// CellVariable is a cell-centered variable. Its storage consists of the data
// buffer, a coarse buffer when the owning block exchanges with other
// refinement levels, and one flux buffer per active direction when the
// variable carries fluxes.
type CellVariable struct {
	id    VarID
	meta  metadata.Metadata
	owner mesh.Ref

	data   *array.Buffer
	coarse *array.Buffer
	flux   [3]*array.Buffer
	bytes  int64
	refs   atomic.Int32
}

// NewCellVariable creates an unallocated cell variable.
func NewCellVariable(id VarID, meta metadata.Metadata) (*CellVariable, error) {
	if err := checkID(id, meta); err != nil {
		return nil, err
	}
	if meta.Where() != metadata.Cell {
		return nil, fmt.Errorf("%w: %s is %s centered", ErrInvalidTopology, id, meta.Where())
	}
	return &CellVariable{id: id, meta: meta}, nil
}

func (v *CellVariable) Label() string               { return v.id.Label() }
func (v *CellVariable) ID() VarID                   { return v.id }
func (v *CellVariable) Metadata() metadata.Metadata { return v.meta }
func (v *CellVariable) Kind() Kind                  { return KindCell }
func (v *CellVariable) IsSet(f metadata.Flag) bool  { return v.meta.IsSet(f) }
func (v *CellVariable) IsAllocated() bool           { return v.data != nil }
func (v *CellVariable) Bytes() int64                { return v.bytes }

// NumComponents returns the number of components per cell.
func (v *CellVariable) NumComponents() int { return v.meta.NumComponents() }

// Owner returns the block the storage was allocated for.
func (v *CellVariable) Owner() (*mesh.Block, error) { return v.owner.Get() }

// Data returns the cell buffer, or nil when unallocated.
func (v *CellVariable) Data() *array.Buffer { return v.data }

// Coarse returns the coarse buffer, or nil when the owner is single level.
func (v *CellVariable) Coarse() *array.Buffer { return v.coarse }

// Flux returns the flux buffer along direction d (0-based), or nil.
func (v *CellVariable) Flux(d int) *array.Buffer {
	if d < 0 || d > 2 {
		return nil
	}
	return v.flux[d]
}

// HasFluxes reports whether flux buffers are allocated.
func (v *CellVariable) HasFluxes() bool { return v.flux[0] != nil }

func (v *CellVariable) storageBytes(b *mesh.Block) int64 {
	ncomp := v.NumComponents()
	nk, nj, ni := b.Shape.Extents()
	total := array.SizeBytes(ncomp, nk, nj, ni)
	if b.Multilevel {
		ck, cj, ci := b.CoarseShape().Extents()
		total += array.SizeBytes(ncomp, ck, cj, ci)
	}
	if v.meta.IsSet(metadata.WithFluxes) {
		for d := 0; d < b.Shape.NDim; d++ {
			fk, fj, fi := fluxExtents(b.Shape, d)
			total += array.SizeBytes(ncomp, fk, fj, fi)
		}
	}
	return total
}

// fluxExtents returns the face-centered extents along direction d.
func fluxExtents(s mesh.IndexShape, d int) (nk, nj, ni int) {
	nk, nj, ni = s.Extents()
	switch d {
	case 0:
		ni++
	case 1:
		nj++
	case 2:
		nk++
	}
	return nk, nj, ni
}

// Allocate materializes storage sized for b. It is a no-op when the
// variable is already allocated.
func (v *CellVariable) Allocate(b *mesh.Block, rc *resource.Controller) error {
	if v.IsAllocated() {
		return nil
	}
	if b == nil {
		return mesh.ErrStaleBlock
	}

	n := v.storageBytes(b)
	if err := rc.Reserve(n); err != nil {
		return fmt.Errorf("allocate %s: %w", v.Label(), err)
	}

	ncomp := v.NumComponents()
	v.data = b.Shape.NewBuffer(ncomp)
	if b.Multilevel {
		v.coarse = b.CoarseShape().NewBuffer(ncomp)
	}
	if v.meta.IsSet(metadata.WithFluxes) {
		for d := 0; d < b.Shape.NDim; d++ {
			fk, fj, fi := fluxExtents(b.Shape, d)
			v.flux[d] = array.New(ncomp, fk, fj, fi)
		}
	}
	v.bytes = n
	v.owner = mesh.MakeRef(b)
	return nil
}

// Deallocate drops the storage of a sparse variable.
func (v *CellVariable) Deallocate(rc *resource.Controller) error {
	if !v.meta.IsSparse() {
		return fmt.Errorf("deallocate %s: %w", v.Label(), ErrNotSparse)
	}
	if !v.IsAllocated() {
		return nil
	}
	v.release(rc)
	return nil
}

// Retain records one more container holding v.
func (v *CellVariable) Retain() { v.refs.Add(1) }

// Drop releases one container's hold on v and frees the storage once no
// container holds it. It reports whether the storage was freed.
func (v *CellVariable) Drop(rc *resource.Controller) bool {
	if v.refs.Add(-1) > 0 {
		return false
	}
	if v.IsAllocated() {
		v.release(rc)
	}
	return true
}

func (v *CellVariable) release(rc *resource.Controller) {
	rc.ReleaseMemory(v.bytes)
	v.data, v.coarse = nil, nil
	v.flux = [3]*array.Buffer{}
	v.bytes = 0
}

// AllocateCopy returns an independent copy bound to b. An allocated source
// yields an allocated copy holding the same values; an unallocated sparse
// source yields an unallocated copy.
func (v *CellVariable) AllocateCopy(b *mesh.Block, rc *resource.Controller) (*CellVariable, error) {
	dst := &CellVariable{id: v.id, meta: v.meta}
	if !v.IsAllocated() {
		return dst, nil
	}
	if err := dst.Allocate(b, rc); err != nil {
		return nil, err
	}
	if err := dst.copyStorage(v); err != nil {
		dst.release(rc)
		return nil, fmt.Errorf("copy %s: %w", v.Label(), err)
	}
	return dst, nil
}

func (v *CellVariable) copyStorage(src *CellVariable) error {
	if err := v.data.CopyFrom(src.data); err != nil {
		return err
	}
	if v.coarse != nil && src.coarse != nil {
		if err := v.coarse.CopyFrom(src.coarse); err != nil {
			return err
		}
	}
	for d := range v.flux {
		if v.flux[d] != nil && src.flux[d] != nil {
			if err := v.flux[d].CopyFrom(src.flux[d]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *CellVariable) String() string {
	state := "unallocated"
	if v.IsAllocated() {
		state = "allocated"
	}
	return fmt.Sprintf("%s [%s] %s", v.Label(), v.meta, state)
}
