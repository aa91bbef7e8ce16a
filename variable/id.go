package variable

import (
	"math"
	"strconv"
)

// InvalidSparseID marks a variable that is not part of a sparse pool.
const InvalidSparseID = math.MinInt32

// VarID identifies a variable by base name and, for sparse pool members,
// integer id.
type VarID struct {
	Base     string
	SparseID int
}

// DenseID returns the id of a non-sparse variable.
func DenseID(label string) VarID {
	return VarID{Base: label, SparseID: InvalidSparseID}
}

// SparseID returns the id of member id of sparse pool base.
func SparseID(base string, id int) VarID {
	return VarID{Base: base, SparseID: id}
}

// IsSparse reports whether the id names a sparse pool member.
func (v VarID) IsSparse() bool {
	return v.SparseID != InvalidSparseID
}

// Label returns the unique label of the variable.
func (v VarID) Label() string {
	return MakeLabel(v.Base, v.SparseID)
}

func (v VarID) String() string { return v.Label() }

// MakeLabel builds the label of a sparse pool member: base_<id>. For
// InvalidSparseID it returns base unchanged.
func MakeLabel(base string, sparseID int) string {
	if sparseID == InvalidSparseID {
		return base
	}
	return base + "_" + strconv.Itoa(sparseID)
}
