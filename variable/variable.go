// Package variable defines the field variables stored in a block container:
// cell-centered variables with optional coarse and flux buffers, and
// face-centered variables with one buffer per direction.
package variable

import (
	"errors"
	"fmt"

	"github.com/hupe1980/meshdata/metadata"
)

var (
	// ErrNotSparse is returned when a sparse-only operation targets a dense
	// variable.
	ErrNotSparse = errors.New("variable is not sparse")

	// ErrNotAllocated is returned when storage is requested from an
	// unallocated variable.
	ErrNotAllocated = errors.New("variable is not allocated")

	// ErrInvalidTopology is returned when metadata does not match the
	// variable kind being built.
	ErrInvalidTopology = errors.New("invalid variable topology")
)

// Kind distinguishes the storage layout of a variable.
type Kind uint8

const (
	// KindCell is a cell-centered variable with a single buffer.
	KindCell Kind = iota
	// KindFace is a face-centered variable with one buffer per direction.
	KindFace
)

func (k Kind) String() string {
	switch k {
	case KindCell:
		return "cell"
	case KindFace:
		return "face"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Variable is the capability shared by every variable kind.
type Variable interface {
	Label() string
	ID() VarID
	Metadata() metadata.Metadata
	Kind() Kind
	IsAllocated() bool
	IsSet(f metadata.Flag) bool
	// Bytes returns the storage currently held.
	Bytes() int64
}

func checkID(id VarID, m metadata.Metadata) error {
	if id.Base == "" {
		return fmt.Errorf("%w: empty label", ErrInvalidTopology)
	}
	if id.IsSparse() != m.IsSparse() {
		return fmt.Errorf("%w: %s: sparse id and Sparse flag disagree", ErrInvalidTopology, id)
	}
	return nil
}
