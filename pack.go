package meshdata

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/internal/packcache"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/variable"
)

const (
	packKindVariables = "variables"
	packKindCoarse    = "coarse"
	packKindFluxes    = "fluxes"
)

// IndexPair is the inclusive component range of one variable inside a pack.
type IndexPair struct {
	First int
	Last  int
}

// Len returns the number of components in the range.
func (p IndexPair) Len() int { return p.Last - p.First + 1 }

// PackIndexMap maps a variable label to its component range in a pack.
type PackIndexMap map[string]IndexPair

// CacheStats reports the activity of one pack cache.
type CacheStats = packcache.Stats

// PackCacheStats groups the statistics of the three pack caches.
type PackCacheStats struct {
	Variables CacheStats
	Coarse    CacheStats
	Fluxes    CacheStats

	// Resolutions counts selection resolutions, one per pack build.
	Resolutions uint64
}

// componentView lays the components of an ordered variable list out along a
// single index.
type componentView struct {
	vars  []*variable.CellVariable
	bufs  []*array.Buffer
	index PackIndexMap
	keys  []string
	owner []int32
	local []int32
}

func (cv *componentView) push(v *variable.CellVariable, buf *array.Buffer) {
	first := len(cv.owner)
	vi := int32(len(cv.vars))
	for n := 0; n < buf.Ncomp(); n++ {
		cv.owner = append(cv.owner, vi)
		cv.local = append(cv.local, int32(n))
	}
	cv.vars = append(cv.vars, v)
	cv.bufs = append(cv.bufs, buf)
	cv.index[v.Label()] = IndexPair{First: first, Last: len(cv.owner) - 1}
	cv.keys = append(cv.keys, v.Label())
}

// Pack is a contiguous, index-addressable view over the components of a
// resolved variable list. Component c of the pack is component
// Component(c) of one variable's buffer.
//
// A Pack shares storage with its variables; writes through the pack are
// visible through the variables and vice versa.
type Pack struct {
	key    string
	sel    selection
	coarse bool
	componentView
}

func newPack(key string, sel selection, vars []*variable.CellVariable, coarse bool) (*Pack, error) {
	p := &Pack{
		key:    key,
		sel:    sel,
		coarse: coarse,
		componentView: componentView{
			index: make(PackIndexMap, len(vars)),
		},
	}
	for _, v := range vars {
		buf := v.Data()
		if coarse {
			buf = v.Coarse()
			if buf == nil {
				return nil, labelError("pack", v.Label(),
					fmt.Errorf("%w: no coarse buffer on a single-level block", ErrInvalidOperation))
			}
		}
		p.push(v, buf)
	}
	return p, nil
}

// Key returns the canonical selection key the pack is cached under.
func (p *Pack) Key() string { return p.key }

// IsCoarse reports whether the pack views coarse buffers.
func (p *Pack) IsCoarse() bool { return p.coarse }

// Len returns the number of components in the pack.
func (p *Pack) Len() int { return len(p.owner) }

// NumVariables returns the number of packed variables.
func (p *Pack) NumVariables() int { return len(p.vars) }

// Variables returns the packed variables in pack order.
func (p *Pack) Variables() []*variable.CellVariable { return slices.Clone(p.vars) }

// Keys returns the labels of the packed variables in pack order.
func (p *Pack) Keys() []string { return slices.Clone(p.keys) }

// IndexMap returns a copy of the label → component range map.
func (p *Pack) IndexMap() PackIndexMap { return maps.Clone(p.index) }

// Index returns the component range of label.
func (p *Pack) Index(label string) (IndexPair, bool) {
	ip, ok := p.index[label]
	return ip, ok
}

// IndexOf returns the component range of sparse member id of base.
func (p *Pack) IndexOf(base string, id int) (IndexPair, bool) {
	return p.Index(variable.MakeLabel(base, id))
}

// Contains reports whether label is packed.
func (p *Pack) Contains(label string) bool {
	_, ok := p.index[label]
	return ok
}

// Component returns the buffer holding pack component c and the component
// index inside that buffer.
func (p *Pack) Component(c int) (*array.Buffer, int) {
	return p.bufs[p.owner[c]], int(p.local[c])
}

// At returns component c at cell (k, j, i).
func (p *Pack) At(c, k, j, i int) float64 {
	buf, n := p.Component(c)
	return buf.At(n, k, j, i)
}

// Set stores v in component c at cell (k, j, i).
func (p *Pack) Set(c, k, j, i int, v float64) {
	buf, n := p.Component(c)
	buf.Set(n, k, j, i, v)
}

// Extents returns the cell extents shared by every packed buffer, or zeros
// for an empty pack.
func (p *Pack) Extents() (nk, nj, ni int) {
	if len(p.bufs) == 0 {
		return 0, 0, 0
	}
	return p.bufs[0].Extents()
}

// FluxPack is a Pack over variables plus a parallel view over the flux
// buffers of a second, flux-carrying variable list.
type FluxPack struct {
	*Pack
	fluxSel selection
	fluxes  [3]componentView
}

func newFluxPack(key string, sel, fluxSel selection, vars, fluxVars []*variable.CellVariable) (*FluxPack, error) {
	p, err := newPack(key, sel, vars, false)
	if err != nil {
		return nil, err
	}
	fp := &FluxPack{Pack: p, fluxSel: fluxSel}
	for d := range fp.fluxes {
		fp.fluxes[d].index = make(PackIndexMap, len(fluxVars))
	}
	for _, v := range fluxVars {
		if !v.HasFluxes() {
			continue
		}
		for d := range fp.fluxes {
			if buf := v.Flux(d); buf != nil {
				fp.fluxes[d].push(v, buf)
			}
		}
	}
	return fp, nil
}

// NumFluxVariables returns the number of flux-carrying variables.
func (p *FluxPack) NumFluxVariables() int { return len(p.fluxes[0].vars) }

// FluxLen returns the number of flux components along direction d.
func (p *FluxPack) FluxLen(d int) int { return len(p.fluxes[d].owner) }

// FluxKeys returns the labels of the flux variables in pack order.
func (p *FluxPack) FluxKeys() []string { return slices.Clone(p.fluxes[0].keys) }

// FluxIndexMap returns a copy of the flux label → component range map.
func (p *FluxPack) FluxIndexMap() PackIndexMap { return maps.Clone(p.fluxes[0].index) }

// FluxIndex returns the flux component range of label.
func (p *FluxPack) FluxIndex(label string) (IndexPair, bool) {
	ip, ok := p.fluxes[0].index[label]
	return ip, ok
}

// ContainsFlux reports whether the fluxes of label are packed.
func (p *FluxPack) ContainsFlux(label string) bool {
	_, ok := p.fluxes[0].index[label]
	return ok
}

// FluxComponent returns the flux buffer along direction d holding flux
// component c and the component index inside that buffer. Directions are
// 0-based; inactive directions have no buffers.
func (p *FluxPack) FluxComponent(d, c int) (*array.Buffer, int) {
	cv := &p.fluxes[d]
	return cv.bufs[cv.owner[c]], int(cv.local[c])
}

// Flux returns flux component c along direction d at face (k, j, i).
func (p *FluxPack) Flux(d, c, k, j, i int) float64 {
	buf, n := p.FluxComponent(d, c)
	return buf.At(n, k, j, i)
}

// SetFlux stores v in flux component c along direction d at face (k, j, i).
func (p *FluxPack) SetFlux(d, c, k, j, i int, v float64) {
	buf, n := p.FluxComponent(d, c)
	buf.Set(n, k, j, i, v)
}

// PackOption configures a pack request.
type PackOption func(*packOptions)

type packOptions struct {
	ids    []int
	coarse bool
}

// WithSparseIDs restricts sparse members to the given ids. Without it every
// allocated member is packed.
func WithSparseIDs(ids ...int) PackOption {
	return func(o *packOptions) {
		o.ids = append(o.ids, ids...)
	}
}

// WithCoarse packs the coarse buffers instead of the fine ones. Variable
// packs only.
func WithCoarse() PackOption {
	return func(o *packOptions) {
		o.coarse = true
	}
}

func applyPackOptions(optFns []PackOption) packOptions {
	var o packOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// PackVariablesByName packs the named variables in request order. A sparse
// base name expands to the allocated members of its pool. Names that match
// nothing are skipped.
func (d *BlockData) PackVariablesByName(names []string, opts ...PackOption) (*Pack, error) {
	o := applyPackOptions(opts)
	return d.packVariables(byNames(names, o.ids), o)
}

// PackVariablesByFlag packs every allocated variable carrying all of flags,
// in registry order. No flags selects every variable.
func (d *BlockData) PackVariablesByFlag(flags []metadata.Flag, opts ...PackOption) (*Pack, error) {
	o := applyPackOptions(opts)
	return d.packVariables(byFlags(flags, o.ids), o)
}

// PackAllVariables packs every allocated variable in registry order.
func (d *BlockData) PackAllVariables(opts ...PackOption) (*Pack, error) {
	return d.PackVariablesByFlag(nil, opts...)
}

func (d *BlockData) packVariables(sel selection, o packOptions) (*Pack, error) {
	var kb packcache.KeyBuilder
	sel.appendKey(&kb)
	key := kb.Key()

	cache, kind := d.varPacks, packKindVariables
	if o.coarse {
		cache, kind = d.coarsePacks, packKindCoarse
	}

	// The read lock spans lookup and insert so a concurrent registry change
	// cannot purge before a pack built from the old registry is cached.
	start := time.Now()
	d.mu.RLock()
	p, hit, err := cache.GetOrBuild(key, func() (*Pack, error) {
		return newPack(key, sel, d.resolve(sel), o.coarse)
	})
	d.mu.RUnlock()
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	d.opts.metricsCollector.RecordPack(kind, hit, p.NumVariables(), elapsed)
	if !hit {
		d.log.LogPackBuild(context.Background(), kind, key, p.NumVariables(), elapsed)
	}
	return p, nil
}

// PackVariablesAndFluxesByName packs varNames as variables and the fluxes of
// fluxNames. Flux names that carry no fluxes are skipped.
func (d *BlockData) PackVariablesAndFluxesByName(varNames, fluxNames []string, opts ...PackOption) (*FluxPack, error) {
	o := applyPackOptions(opts)
	return d.packFluxes(byNames(varNames, o.ids), byNames(fluxNames, o.ids), o)
}

// PackVariablesAndFluxesByFlag packs the variables carrying all of flags
// and, in parallel, the fluxes of those among them that have fluxes.
func (d *BlockData) PackVariablesAndFluxesByFlag(flags []metadata.Flag, opts ...PackOption) (*FluxPack, error) {
	o := applyPackOptions(opts)
	sel := byFlags(flags, o.ids)
	return d.packFluxes(sel, sel, o)
}

// PackAllVariablesAndFluxes packs every allocated variable and the fluxes of
// every variable that has them.
func (d *BlockData) PackAllVariablesAndFluxes(opts ...PackOption) (*FluxPack, error) {
	return d.PackVariablesAndFluxesByFlag(nil, opts...)
}

func (d *BlockData) packFluxes(sel, fluxSel selection, o packOptions) (*FluxPack, error) {
	if o.coarse {
		return nil, fmt.Errorf("%w: flux packs have no coarse form", ErrInvalidOperation)
	}

	var kb packcache.KeyBuilder
	kb.Section("vars")
	sel.appendKey(&kb)
	kb.Section("fluxes")
	fluxSel.appendKey(&kb)
	key := kb.Key()

	start := time.Now()
	d.mu.RLock()
	p, hit, err := d.fluxPacks.GetOrBuild(key, func() (*FluxPack, error) {
		vars := d.resolve(sel)
		fluxVars := vars
		if fluxSel.mode != sel.mode || !slices.Equal(fluxSel.names, sel.names) ||
			!slices.Equal(fluxSel.flags, sel.flags) {
			fluxVars = d.resolve(fluxSel)
		}
		return newFluxPack(key, sel, fluxSel, vars, fluxVars)
	})
	d.mu.RUnlock()
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	d.opts.metricsCollector.RecordPack(packKindFluxes, hit, p.NumVariables(), elapsed)
	if !hit {
		d.log.LogPackBuild(context.Background(), packKindFluxes, key, p.NumVariables(), elapsed)
	}
	return p, nil
}

// PackCacheStats returns the statistics of the pack caches.
func (d *BlockData) PackCacheStats() PackCacheStats {
	return PackCacheStats{
		Variables:   d.varPacks.Stats(),
		Coarse:      d.coarsePacks.Stats(),
		Fluxes:      d.fluxPacks.Stats(),
		Resolutions: d.resolutions.Load(),
	}
}

// ClearPackCaches drops every cached pack. Callers use it after sparse
// (de)allocations that flag-based or pool selections must observe.
func (d *BlockData) ClearPackCaches() {
	d.varPacks.InvalidateAll()
	d.coarsePacks.InvalidateAll()
	d.fluxPacks.InvalidateAll()
}

// purgePacks drops every cached pack that contains v or whose selection
// matches it, and reports how many were dropped. Must be called with d.mu
// held for writing.
func (d *BlockData) purgePacks(v *variable.CellVariable) int {
	label := v.Label()
	pred := func(_ string, p *Pack) bool {
		return p.Contains(label) || p.sel.matches(v)
	}
	n := d.varPacks.DeleteFunc(pred)
	n += d.coarsePacks.DeleteFunc(pred)
	n += d.fluxPacks.DeleteFunc(func(_ string, p *FluxPack) bool {
		return pred("", p.Pack) || p.ContainsFlux(label) || p.fluxSel.matches(v)
	})
	return n
}
