// Package state describes what a physics package registers on every mesh
// block: dense fields, sparse pools and parameters. Descriptors of several
// packages are merged by Resolve into the single descriptor a block
// container is initialized from.
package state

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/variable"
)

var (
	// ErrDuplicateField is returned when a field label or sparse pool name
	// is registered twice.
	ErrDuplicateField = errors.New("field already registered")

	// ErrInvalidField is returned for field registrations that cannot be
	// honored, such as a sparse field added with AddField.
	ErrInvalidField = errors.New("invalid field")

	// ErrFieldNotFound is returned when a field or pool is unknown.
	ErrFieldNotFound = errors.New("field not found")
)

// Field is a dense field registration.
type Field struct {
	Label string
	Meta  metadata.Metadata
}

// SparsePool is a family of sparse fields sharing a base name and metadata.
// Each id becomes one member labeled base_<id>.
type SparsePool struct {
	Base string
	Meta metadata.Metadata
	IDs  []int
}

// Labels returns the member labels in id order of registration.
func (p SparsePool) Labels() []string {
	labels := make([]string, len(p.IDs))
	for i, id := range p.IDs {
		labels[i] = variable.MakeLabel(p.Base, id)
	}
	return labels
}

// Descriptor holds the registrations of one package.
type Descriptor struct {
	label  string
	params Params

	fields  []Field
	pools   []SparsePool
	members map[string]metadata.Metadata // every dense and sparse member label
}

// NewDescriptor creates an empty descriptor.
func NewDescriptor(label string) *Descriptor {
	return &Descriptor{
		label:   label,
		members: make(map[string]metadata.Metadata),
	}
}

// Label returns the package label.
func (d *Descriptor) Label() string { return d.label }

// Params returns the parameter store of the package.
func (d *Descriptor) Params() *Params { return &d.params }

// AddField registers a dense field. Sparse metadata is rejected; use
// AddSparsePool.
func (d *Descriptor) AddField(label string, meta metadata.Metadata) error {
	if meta.IsSparse() {
		return fmt.Errorf("%w: %q is sparse, use AddSparsePool", ErrInvalidField, label)
	}
	if label == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidField)
	}
	if _, ok := d.members[label]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateField, label)
	}
	if d.SparseBaseNamePresent(label) {
		return fmt.Errorf("%w: %q is a sparse pool name", ErrDuplicateField, label)
	}
	d.fields = append(d.fields, Field{Label: label, Meta: meta})
	d.members[label] = meta
	return nil
}

// AddSparsePool registers a sparse pool with the given member ids.
func (d *Descriptor) AddSparsePool(base string, meta metadata.Metadata, ids ...int) error {
	if !meta.IsSparse() {
		return fmt.Errorf("%w: pool %q metadata is not sparse", ErrInvalidField, base)
	}
	if base == "" || len(ids) == 0 {
		return fmt.Errorf("%w: pool %q needs a name and at least one id", ErrInvalidField, base)
	}
	if d.SparseBaseNamePresent(base) {
		return fmt.Errorf("%w: pool %q", ErrDuplicateField, base)
	}
	if _, ok := d.members[base]; ok {
		return fmt.Errorf("%w: pool name %q is a field label", ErrDuplicateField, base)
	}

	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if id == variable.InvalidSparseID {
			return fmt.Errorf("%w: pool %q: invalid sparse id", ErrInvalidField, base)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: pool %q: duplicate id %d", ErrInvalidField, base, id)
		}
		seen[id] = struct{}{}
		if _, ok := d.members[variable.MakeLabel(base, id)]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateField, variable.MakeLabel(base, id))
		}
	}

	pool := SparsePool{Base: base, Meta: meta, IDs: slices.Clone(ids)}
	d.pools = append(d.pools, pool)
	for _, l := range pool.Labels() {
		d.members[l] = meta
	}
	return nil
}

// FieldPresent reports whether label names a dense field or a pool member.
func (d *Descriptor) FieldPresent(label string) bool {
	_, ok := d.members[label]
	return ok
}

// SparseBaseNamePresent reports whether base names a sparse pool.
func (d *Descriptor) SparseBaseNamePresent(base string) bool {
	return slices.ContainsFunc(d.pools, func(p SparsePool) bool { return p.Base == base })
}

// FieldMetadata returns the metadata of a dense field or pool member.
func (d *Descriptor) FieldMetadata(label string) (metadata.Metadata, error) {
	m, ok := d.members[label]
	if !ok {
		return metadata.Metadata{}, fmt.Errorf("%w: %q", ErrFieldNotFound, label)
	}
	return m, nil
}

// SparsePool returns the pool called base.
func (d *Descriptor) SparsePool(base string) (SparsePool, error) {
	for _, p := range d.pools {
		if p.Base == base {
			return p, nil
		}
	}
	return SparsePool{}, fmt.Errorf("%w: pool %q", ErrFieldNotFound, base)
}

// Fields returns the dense fields in registration order.
func (d *Descriptor) Fields() []Field { return slices.Clone(d.fields) }

// SparsePools returns the sparse pools in registration order.
func (d *Descriptor) SparsePools() []SparsePool { return slices.Clone(d.pools) }

// Size returns the number of dense fields plus pool members.
func (d *Descriptor) Size() int { return len(d.members) }

// FieldNames returns every dense field label followed by every pool member
// label.
func (d *Descriptor) FieldNames() []string {
	names := make([]string, 0, len(d.members))
	for _, f := range d.fields {
		names = append(names, f.Label)
	}
	for _, p := range d.pools {
		names = append(names, p.Labels()...)
	}
	return names
}

// FlagsPresent reports whether some field carries all of flags, or any of
// them when matchAny is set.
func (d *Descriptor) FlagsPresent(flags []metadata.Flag, matchAny bool) bool {
	for _, m := range d.members {
		if matchAny && m.AnyFlagSet(flags...) {
			return true
		}
		if !matchAny && m.AllFlagsSet(flags...) {
			return true
		}
	}
	return false
}

func (d *Descriptor) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Package: %s\n", d.label)
	sb.WriteString("# Fields:\n")
	for _, f := range d.fields {
		fmt.Fprintf(&sb, "%s\t%s\n", f.Label, f.Meta)
	}
	sb.WriteString("# Sparse pools:\n")
	for _, p := range d.pools {
		fmt.Fprintf(&sb, "%s\t%v\t%s\n", p.Base, p.IDs, p.Meta)
	}
	sb.WriteString("# Params:\n")
	for _, k := range d.params.Keys() {
		t, _ := d.params.Type(k)
		fmt.Fprintf(&sb, "%s\t%s\n", k, t)
	}
	return sb.String()
}
