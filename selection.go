package meshdata

import (
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/meshdata/internal/packcache"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/variable"
)

type selectMode uint8

const (
	selectAll selectMode = iota
	selectNames
	selectFlags
)

func (m selectMode) String() string {
	switch m {
	case selectNames:
		return "names"
	case selectFlags:
		return "flags"
	default:
		return "all"
	}
}

// selection is a canonical selection criterion. Flags are kept sorted, names
// in request order.
type selection struct {
	mode  selectMode
	names []string
	flags []metadata.Flag
	ids   []int
}

func byNames(names []string, ids []int) selection {
	return selection{mode: selectNames, names: slices.Clone(names), ids: ids}
}

func byFlags(flags []metadata.Flag, ids []int) selection {
	if len(flags) == 0 {
		return selection{mode: selectAll, ids: ids}
	}
	fs := slices.Clone(flags)
	slices.Sort(fs)
	fs = slices.Compact(fs)
	return selection{mode: selectFlags, flags: fs, ids: ids}
}

func (s selection) appendKey(kb *packcache.KeyBuilder) {
	kb.Section("mode").String(s.mode.String())
	switch s.mode {
	case selectNames:
		kb.Section("names")
		for _, n := range s.names {
			kb.String(n)
		}
	case selectFlags:
		kb.Section("flags")
		for _, f := range s.flags {
			kb.Int(int(f))
		}
	}
	kb.Section("ids")
	for _, id := range s.ids {
		kb.Int(id)
	}
}

// matches reports whether v could appear in the resolution of s, ignoring
// allocation state and the sparse-id filter.
func (s selection) matches(v *variable.CellVariable) bool {
	switch s.mode {
	case selectNames:
		id := v.ID()
		for _, n := range s.names {
			if n == id.Label() || (id.IsSparse() && n == id.Base) {
				return true
			}
		}
		return false
	case selectFlags:
		return v.Metadata().AllFlagsSet(s.flags...)
	default:
		return true
	}
}

func idAllowed(ids []int, v *variable.CellVariable) bool {
	if !v.ID().IsSparse() || len(ids) == 0 {
		return true
	}
	return slices.Contains(ids, v.ID().SparseID)
}

// rebuildFlagIndex recomputes, per flag, the bitmap of cell-variable
// ordinals carrying it. Must be called with d.mu held for writing; readers
// only ever see a complete index.
func (d *BlockData) rebuildFlagIndex() {
	idx := make(map[metadata.Flag]*roaring.Bitmap)
	for i, v := range d.cells {
		for _, f := range v.Metadata().Flags() {
			bm, ok := idx[f]
			if !ok {
				bm = roaring.New()
				idx[f] = bm
			}
			bm.Add(uint32(i))
		}
	}
	d.flags = idx
}

// resolve turns s into an order-stable list of allocated cell variables.
// Requests that match nothing are dropped. Must be called with d.mu held.
func (d *BlockData) resolve(s selection) []*variable.CellVariable {
	d.resolutions.Add(1)

	var out []*variable.CellVariable
	seen := make(map[*variable.CellVariable]struct{})
	push := func(v *variable.CellVariable) {
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}

	switch s.mode {
	case selectNames:
		for _, name := range s.names {
			if v, ok := d.cellIdx[name]; ok {
				if v.IsAllocated() {
					push(v)
				}
				continue
			}
			for _, v := range d.pools[name] {
				if v.IsAllocated() && idAllowed(s.ids, v) {
					push(v)
				}
			}
		}

	case selectFlags:
		idx := d.flags
		var match *roaring.Bitmap
		for _, f := range s.flags {
			bm, ok := idx[f]
			if !ok {
				return nil
			}
			if match == nil {
				match = bm.Clone()
			} else {
				match.And(bm)
			}
		}
		it := match.Iterator()
		for it.HasNext() {
			v := d.cells[it.Next()]
			if v.IsAllocated() && idAllowed(s.ids, v) {
				push(v)
			}
		}

	default:
		for _, v := range d.cells {
			if v.IsAllocated() && idAllowed(s.ids, v) {
				push(v)
			}
		}
	}
	return out
}
