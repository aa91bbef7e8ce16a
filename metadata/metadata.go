package metadata

import (
	"slices"
	"strconv"
	"strings"
)

// Metadata describes a variable: its flags and component shape.
//
// Metadata is immutable after New; the zero value behaves like a scalar Cell
// variable with no other flags.
type Metadata struct {
	flags *FlagSet
	shape []int
}

// Option configures Metadata construction.
type Option func(*Metadata)

// WithShape sets the component shape (e.g. 3 for a vector, 3,3 for a tensor).
// Non-positive extents are ignored.
func WithShape(dims ...int) Option {
	return func(m *Metadata) {
		m.shape = m.shape[:0]
		for _, d := range dims {
			if d > 0 {
				m.shape = append(m.shape, d)
			}
		}
	}
}

// New creates Metadata from flags. When no topology flag is given the
// variable is cell centered.
func New(flags []Flag, opts ...Option) Metadata {
	m := Metadata{
		flags: NewFlagSet(flags...),
	}
	for _, opt := range opts {
		opt(&m)
	}
	if !m.flags.Contains(Cell) && !m.flags.Contains(Face) &&
		!m.flags.Contains(Edge) && !m.flags.Contains(Node) {
		m.flags.Add(Cell)
	}
	if len(m.shape) == 0 {
		m.shape = []int{1}
	}
	return m
}

func (m Metadata) set() *FlagSet {
	if m.flags == nil {
		return NewFlagSet(Cell)
	}
	return m.flags
}

// IsSet reports whether f is set.
func (m Metadata) IsSet(f Flag) bool {
	return m.set().Contains(f)
}

// AllFlagsSet reports whether every given flag is set. No flags means true.
func (m Metadata) AllFlagsSet(flags ...Flag) bool {
	if len(flags) == 0 {
		return true
	}
	return m.set().ContainsAll(NewFlagSet(flags...))
}

// AllFlagsSetIn is AllFlagsSet for a prebuilt set.
func (m Metadata) AllFlagsSetIn(flags *FlagSet) bool {
	return m.set().ContainsAll(flags)
}

// AnyFlagSet reports whether at least one of the given flags is set.
func (m Metadata) AnyFlagSet(flags ...Flag) bool {
	return m.set().Intersects(NewFlagSet(flags...))
}

// IsSparse is shorthand for IsSet(Sparse).
func (m Metadata) IsSparse() bool {
	return m.IsSet(Sparse)
}

// Where returns the topological location flag.
func (m Metadata) Where() Flag {
	s := m.set()
	for _, f := range []Flag{Face, Edge, Node, Cell} {
		if s.Contains(f) {
			return f
		}
	}
	return Cell
}

// Flags returns the set flags in ascending order.
func (m Metadata) Flags() []Flag {
	return m.set().Slice()
}

// Shape returns a copy of the component shape.
func (m Metadata) Shape() []int {
	if len(m.shape) == 0 {
		return []int{1}
	}
	return slices.Clone(m.shape)
}

// NumComponents returns the product of the shape extents.
func (m Metadata) NumComponents() int {
	n := 1
	for _, d := range m.shape {
		n *= d
	}
	return n
}

// Equal compares flags and shape.
func (m Metadata) Equal(other Metadata) bool {
	return m.set().Equal(other.set()) && slices.Equal(m.Shape(), other.Shape())
}

func (m Metadata) String() string {
	var sb strings.Builder
	for i, f := range m.Flags() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(f.String())
	}
	sb.WriteString(" shape=(")
	for i, d := range m.Shape() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(d))
	}
	sb.WriteByte(')')
	return sb.String()
}
