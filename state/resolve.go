package state

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/meshdata/metadata"
)

var (
	// ErrConflict is returned when two packages provide the same field, or
	// provide it with different metadata than another package requires.
	ErrConflict = errors.New("conflicting field registrations")

	// ErrUnresolved is returned when a required field is provided by no
	// package.
	ErrUnresolved = errors.New("required field not provided")

	// ErrDuplicatePackage is returned when a package label is added twice.
	ErrDuplicatePackage = errors.New("package already added")
)

// ResolvedLabel is the label of descriptors built by Resolve.
const ResolvedLabel = "resolved_state"

// Packages is an ordered set of package descriptors keyed by label.
type Packages struct {
	order []*Descriptor
	byKey map[string]*Descriptor
}

// NewPackages creates an empty set.
func NewPackages() *Packages {
	return &Packages{byKey: make(map[string]*Descriptor)}
}

// Add adds a package.
func (p *Packages) Add(d *Descriptor) error {
	if _, ok := p.byKey[d.Label()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePackage, d.Label())
	}
	p.byKey[d.Label()] = d
	p.order = append(p.order, d)
	return nil
}

// Get returns the package called label.
func (p *Packages) Get(label string) (*Descriptor, bool) {
	d, ok := p.byKey[label]
	return d, ok
}

// All returns the packages in insertion order.
func (p *Packages) All() []*Descriptor {
	out := make([]*Descriptor, len(p.order))
	copy(out, p.order)
	return out
}

// Len returns the number of packages.
func (p *Packages) Len() int { return len(p.order) }

type dependency uint8

const (
	provides dependency = iota
	requires
	overridable
)

func dependencyOf(m metadata.Metadata) dependency {
	switch {
	case m.IsSet(metadata.Requires):
		return requires
	case m.IsSet(metadata.Overridable):
		return overridable
	default:
		return provides
	}
}

type candidate struct {
	pkg  string
	meta metadata.Metadata
	dep  dependency
	pool *SparsePool
}

// Resolve merges the fields of every package into one descriptor.
//
// A field without Requires or Overridable is provided by its package; at
// most one package may provide a given field. An Overridable field is used
// when nobody provides it, the first package in order winning. A Requires
// field must be provided or offered as Overridable by some package with the
// same topology and shape. Sparse pools follow the same rules keyed by base name.
// Parameters are not merged; they stay with their packages.
func Resolve(packages *Packages) (*Descriptor, error) {
	fieldOrder, fieldCands := []string{}, map[string][]candidate{}
	poolOrder, poolCands := []string{}, map[string][]candidate{}

	for _, pkg := range packages.All() {
		for _, f := range pkg.fields {
			if _, seen := fieldCands[f.Label]; !seen {
				fieldOrder = append(fieldOrder, f.Label)
			}
			fieldCands[f.Label] = append(fieldCands[f.Label],
				candidate{pkg: pkg.Label(), meta: f.Meta, dep: dependencyOf(f.Meta)})
		}
		for i := range pkg.pools {
			p := &pkg.pools[i]
			if _, seen := poolCands[p.Base]; !seen {
				poolOrder = append(poolOrder, p.Base)
			}
			poolCands[p.Base] = append(poolCands[p.Base],
				candidate{pkg: pkg.Label(), meta: p.Meta, dep: dependencyOf(p.Meta), pool: p})
		}
	}

	out := NewDescriptor(ResolvedLabel)
	for _, label := range fieldOrder {
		c, err := pick(label, fieldCands[label])
		if err != nil {
			return nil, err
		}
		if err := out.AddField(label, c.meta); err != nil {
			return nil, err
		}
	}
	for _, base := range poolOrder {
		c, err := pick(base, poolCands[base])
		if err != nil {
			return nil, err
		}
		if err := out.AddSparsePool(base, c.meta, c.pool.IDs...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func pick(name string, cands []candidate) (candidate, error) {
	var (
		chosen   *candidate
		fallback *candidate
		required []candidate
	)
	for i := range cands {
		c := &cands[i]
		switch c.dep {
		case provides:
			if chosen != nil {
				return candidate{}, fmt.Errorf("%w: %q provided by both %q and %q",
					ErrConflict, name, chosen.pkg, c.pkg)
			}
			chosen = c
		case overridable:
			if fallback == nil {
				fallback = c
			}
		case requires:
			required = append(required, *c)
		}
	}
	if chosen == nil {
		chosen = fallback
	}
	if chosen == nil {
		return candidate{}, fmt.Errorf("%w: %q required by %q", ErrUnresolved, name, required[0].pkg)
	}
	for _, r := range required {
		if !sameShape(r.meta, chosen.meta) {
			return candidate{}, fmt.Errorf("%w: %q required by %q with a different shape than %q provides",
				ErrConflict, name, r.pkg, chosen.pkg)
		}
	}
	return *chosen, nil
}

func sameShape(a, b metadata.Metadata) bool {
	return a.Where() == b.Where() && slices.Equal(a.Shape(), b.Shape())
}
