package meshdata

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/state"
	"github.com/hupe1980/meshdata/variable"
)

// derived creates an empty container that inherits the options and block of
// d. Must be called with d.mu held.
func (d *BlockData) derived(optFns []Option) (*BlockData, *mesh.Block) {
	o := applyOptions(d.opts, optFns)
	if o.block == nil {
		o.block, _ = d.block.Get()
	}
	b := o.block
	return newBlockData(o), b
}

// adoptCell aliases v when it is OneCopy and deep copies it onto b
// otherwise. shallow forces aliasing.
func (d *BlockData) adoptCell(v *variable.CellVariable, b *mesh.Block, shallow bool) error {
	if shallow || v.IsSet(metadata.OneCopy) {
		d.insertCell(v)
		return nil
	}
	if b == nil {
		return labelError("derive", v.Label(), ErrStaleReference)
	}
	cp, err := v.AllocateCopy(b, d.opts.resources)
	if err != nil {
		return labelError("derive", v.Label(), err)
	}
	d.insertCell(cp)
	return nil
}

func (d *BlockData) adoptFace(v *variable.FaceVariable, shallow bool) error {
	if shallow || v.IsSet(metadata.OneCopy) {
		d.insertFace(v)
		return nil
	}
	return labelError("derive", v.Label(),
		fmt.Errorf("%w: face variables are copied only when OneCopy", ErrUnsupported))
}

func (d *BlockData) adoptAll(cells []*variable.CellVariable, faces []*variable.FaceVariable, b *mesh.Block, shallow bool) error {
	for _, v := range cells {
		if err := d.adoptCell(v, b, shallow); err != nil {
			_ = d.Close()
			return err
		}
	}
	for _, v := range faces {
		if err := d.adoptFace(v, shallow); err != nil {
			_ = d.Close()
			return err
		}
	}
	d.log.DebugContext(context.Background(), "container derived",
		"cell", len(cells),
		"face", len(faces),
	)
	return nil
}

// DeriveByName builds a new container from the named variables of d. A
// sparse pool name brings every member, allocated or not. OneCopy variables
// are shared; all others get their own storage holding the same values.
// A name that matches nothing fails with ErrNotFound.
func (d *BlockData) DeriveByName(names []string, optFns ...Option) (*BlockData, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var (
		cells []*variable.CellVariable
		faces []*variable.FaceVariable
	)
	for _, name := range names {
		found := false
		if v, ok := d.cellIdx[name]; ok {
			cells = append(cells, v)
			found = true
		} else if pool, ok := d.pools[name]; ok {
			cells = append(cells, pool...)
			found = true
		}
		if v, ok := d.faceIdx[name]; ok {
			faces = append(faces, v)
			found = true
		}
		if !found {
			return nil, labelError("derive", name, ErrNotFound)
		}
	}
	cells = dedupe(cells)
	faces = dedupe(faces)

	dst, b := d.derived(optFns)
	if err := dst.adoptAll(cells, faces, b, false); err != nil {
		return nil, err
	}
	return dst, nil
}

// DeriveByFlags builds a new container from every variable of d carrying all
// of flags, in registry order. No flags selects every variable.
func (d *BlockData) DeriveByFlags(flags []metadata.Flag, optFns ...Option) (*BlockData, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var (
		cells []*variable.CellVariable
		faces []*variable.FaceVariable
	)
	for _, v := range d.cells {
		if v.Metadata().AllFlagsSet(flags...) {
			cells = append(cells, v)
		}
	}
	for _, v := range d.faces {
		if v.Metadata().AllFlagsSet(flags...) {
			faces = append(faces, v)
		}
	}

	dst, b := d.derived(optFns)
	if err := dst.adoptAll(cells, faces, b, false); err != nil {
		return nil, err
	}
	return dst, nil
}

// Copy derives a container holding every variable of d.
func (d *BlockData) Copy(optFns ...Option) (*BlockData, error) {
	return d.DeriveByFlags(nil, optFns...)
}

// SparseSlice returns a container sharing every dense and face variable of d
// plus the sparse members whose id is in ids. Nothing is copied.
func (d *BlockData) SparseSlice(ids []int, optFns ...Option) (*BlockData, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var cells []*variable.CellVariable
	for _, v := range d.cells {
		if id := v.ID(); !id.IsSparse() || slices.Contains(ids, id.SparseID) {
			cells = append(cells, v)
		}
	}

	dst, b := d.derived(optFns)
	if err := dst.adoptAll(cells, d.faces, b, true); err != nil {
		return nil, err
	}
	return dst, nil
}

func dedupe[T comparable](xs []T) []T {
	seen := make(map[T]struct{}, len(xs))
	return slices.DeleteFunc(xs, func(x T) bool {
		if _, dup := seen[x]; dup {
			return true
		}
		seen[x] = struct{}{}
		return false
	})
}

// Initialize registers every field of desc: dense fields are added and
// allocated, sparse pools get one unallocated member per id. Either every
// field is registered or none is.
func (d *BlockData) Initialize(desc *state.Descriptor) error {
	d.mu.Lock()

	var (
		added []variable.Variable
		err   error
	)
	for _, f := range desc.Fields() {
		var v variable.Variable
		if v, err = d.add(f.Label, f.Meta); err != nil {
			break
		}
		added = append(added, v)
	}
	if err == nil {
	pools:
		for _, p := range desc.SparsePools() {
			for _, id := range p.IDs {
				label := variable.MakeLabel(p.Base, id)
				if err = d.checkCellLabel("add", label, p.Base); err != nil {
					break pools
				}
				var cv *variable.CellVariable
				if cv, err = variable.NewCellVariable(variable.SparseID(p.Base, id), p.Meta); err != nil {
					err = labelError("add", label, err)
					break pools
				}
				d.insertCell(cv)
				added = append(added, cv)
			}
		}
	}

	if err != nil {
		for _, v := range added {
			switch v := v.(type) {
			case *variable.CellVariable:
				d.removeCell(v)
				v.Drop(d.opts.resources)
			case *variable.FaceVariable:
				d.removeFace(v)
			}
		}
	}
	d.mu.Unlock()

	if err != nil {
		d.log.ErrorContext(context.Background(), "initialize failed",
			"package", desc.Label(),
			"error", err,
		)
		return err
	}
	d.ClearPackCaches()
	d.log.DebugContext(context.Background(), "initialized",
		"package", desc.Label(),
		"variables", len(added),
	)
	return nil
}
