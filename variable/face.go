package variable

import (
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/resource"
)

// FaceVariable is a face-centered variable holding one buffer per
// direction. Face variables are never sparse and are allocated on creation.
type FaceVariable struct {
	id    VarID
	meta  metadata.Metadata
	owner mesh.Ref
	data  [3]*array.Buffer
	bytes int64
	refs  atomic.Int32
}

// NewFaceVariable creates and allocates a face variable on b.
func NewFaceVariable(label string, meta metadata.Metadata, b *mesh.Block, rc *resource.Controller) (*FaceVariable, error) {
	id := DenseID(label)
	if err := checkID(id, meta); err != nil {
		return nil, err
	}
	if meta.Where() != metadata.Face {
		return nil, fmt.Errorf("%w: %s is %s centered", ErrInvalidTopology, label, meta.Where())
	}
	if b == nil {
		return nil, mesh.ErrStaleBlock
	}

	ncomp := meta.NumComponents()
	var total int64
	for d := 0; d < 3; d++ {
		nk, nj, ni := fluxExtents(b.Shape, d)
		total += array.SizeBytes(ncomp, nk, nj, ni)
	}
	if err := rc.Reserve(total); err != nil {
		return nil, fmt.Errorf("allocate %s: %w", label, err)
	}

	v := &FaceVariable{id: id, meta: meta, owner: mesh.MakeRef(b), bytes: total}
	for d := 0; d < 3; d++ {
		nk, nj, ni := fluxExtents(b.Shape, d)
		v.data[d] = array.New(ncomp, nk, nj, ni)
	}
	return v, nil
}

func (v *FaceVariable) Label() string               { return v.id.Label() }
func (v *FaceVariable) ID() VarID                   { return v.id }
func (v *FaceVariable) Metadata() metadata.Metadata { return v.meta }
func (v *FaceVariable) Kind() Kind                  { return KindFace }
func (v *FaceVariable) IsSet(f metadata.Flag) bool  { return v.meta.IsSet(f) }
func (v *FaceVariable) IsAllocated() bool           { return v.data[0] != nil }
func (v *FaceVariable) Bytes() int64                { return v.bytes }

// Owner returns the block the storage was allocated for.
func (v *FaceVariable) Owner() (*mesh.Block, error) { return v.owner.Get() }

// Get returns the buffer of faces normal to direction d (0-based).
func (v *FaceVariable) Get(d int) (*array.Buffer, error) {
	if d < 0 || d > 2 {
		return nil, fmt.Errorf("%s: direction %d out of range", v.Label(), d)
	}
	return v.data[d], nil
}

// Retain records one more container holding v.
func (v *FaceVariable) Retain() { v.refs.Add(1) }

// Drop releases one container's hold on v and frees the storage once no
// container holds it. It reports whether the storage was freed.
func (v *FaceVariable) Drop(rc *resource.Controller) bool {
	if v.refs.Add(-1) > 0 {
		return false
	}
	if v.IsAllocated() {
		rc.ReleaseMemory(v.bytes)
		v.data = [3]*array.Buffer{}
		v.bytes = 0
	}
	return true
}

func (v *FaceVariable) String() string {
	return fmt.Sprintf("%s [%s]", v.Label(), v.meta)
}
