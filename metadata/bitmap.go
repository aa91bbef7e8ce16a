package metadata

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// FlagSet is a set of flags backed by a 32-bit Roaring Bitmap.
type FlagSet struct {
	rb *roaring.Bitmap
}

// NewFlagSet creates a set holding the given flags.
func NewFlagSet(flags ...Flag) *FlagSet {
	s := &FlagSet{rb: roaring.New()}
	for _, f := range flags {
		s.rb.Add(uint32(f))
	}
	return s
}

// Add adds a flag to the set.
func (s *FlagSet) Add(f Flag) {
	s.rb.Add(uint32(f))
}

// Contains reports whether f is in the set.
func (s *FlagSet) Contains(f Flag) bool {
	return s.rb.Contains(uint32(f))
}

// ContainsAll reports whether every flag of other is in s. An empty other is
// always contained.
func (s *FlagSet) ContainsAll(other *FlagSet) bool {
	n := other.rb.GetCardinality()
	if n == 0 {
		return true
	}
	return s.rb.AndCardinality(other.rb) == n
}

// Intersects reports whether s and other share at least one flag.
func (s *FlagSet) Intersects(other *FlagSet) bool {
	return s.rb.Intersects(other.rb)
}

// IsEmpty returns true if the set is empty.
func (s *FlagSet) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Cardinality returns the number of flags in the set.
func (s *FlagSet) Cardinality() uint64 {
	return s.rb.GetCardinality()
}

// Clone returns a deep copy of the set.
func (s *FlagSet) Clone() *FlagSet {
	return &FlagSet{rb: s.rb.Clone()}
}

// Equal reports whether both sets hold the same flags.
func (s *FlagSet) Equal(other *FlagSet) bool {
	return s.rb.Equals(other.rb)
}

// All iterates the flags in ascending order.
func (s *FlagSet) All() iter.Seq[Flag] {
	return func(yield func(Flag) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(Flag(it.Next())) {
				return
			}
		}
	}
}

// Slice returns the flags in ascending order.
func (s *FlagSet) Slice() []Flag {
	vals := s.rb.ToArray()
	out := make([]Flag, len(vals))
	for i, v := range vals {
		out[i] = Flag(v)
	}
	return out
}
