package meshdata

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/resource"
	"github.com/hupe1980/meshdata/state"
	"github.com/hupe1980/meshdata/testutil"
	"github.com/hupe1980/meshdata/variable"
)

func meta(flags ...metadata.Flag) metadata.Metadata {
	return metadata.New(flags)
}

// newTestData creates a container on a fresh 2D block that lives until the
// test ends.
func newTestData(t *testing.T, opts ...Option) (*BlockData, *mesh.Block) {
	t.Helper()
	b := testutil.NewBlock(t, 0, testutil.Shape(t, 8, 8, 1, 2))
	t.Cleanup(func() { runtime.KeepAlive(b) })
	return New(append([]Option{WithBlock(b)}, opts...)...), b
}

func TestBlockData_AddGet(t *testing.T) {
	d, b := newTestData(t, WithStage("base"))

	require.NoError(t, d.Add("density", meta(metadata.Independent, metadata.FillGhost)))
	require.NoError(t, d.Add("velocity", metadata.New([]metadata.Flag{metadata.Vector}, metadata.WithShape(3))))
	require.NoError(t, d.Add("bfield", meta(metadata.Face)))

	v, err := d.Get("density")
	require.NoError(t, err)
	assert.True(t, v.IsAllocated())
	nk, nj, ni := v.Data().Extents()
	assert.Equal(t, [3]int{1, 12, 12}, [3]int{nk, nj, ni})

	vel, err := d.Get("velocity")
	require.NoError(t, err)
	assert.Equal(t, 3, vel.Data().Ncomp())

	owner, err := v.Owner()
	require.NoError(t, err)
	assert.Same(t, b, owner)

	_, err = d.Get("bfield")
	assert.ErrorIs(t, err, ErrNotFound, "face labels are not cell labels")
	buf, err := d.GetFaceDir("bfield", 1)
	require.NoError(t, err)
	_, nj, _ = buf.Extents()
	assert.Equal(t, 13, nj)
	_, err = d.GetFaceDir("bfield", 3)
	assert.Error(t, err)

	assert.Equal(t, 0, d.Index("density"))
	assert.Equal(t, -1, d.Index("bfield"))
	at, err := d.GetAt(1)
	require.NoError(t, err)
	assert.Equal(t, "velocity", at.Label())
	_, err = d.GetAt(2)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 3, d.Size())
	assert.Equal(t, []string{"density", "velocity", "bfield"}, d.Labels())
	assert.True(t, d.Contains("density", "bfield"))
	assert.False(t, d.Contains("density", "missing"))
	assert.True(t, d.HasVariable("bfield"))
	assert.False(t, d.HasCellVariable("bfield"))
	assert.Equal(t, "base", d.Stage())
	assert.Contains(t, d.String(), "BlockData(base): 2 cell, 1 face")

	ib, err := d.BoundsI(mesh.Interior)
	require.NoError(t, err)
	assert.Equal(t, 2, ib.S)
	assert.Equal(t, 9, ib.E)
}

func TestBlockData_AddErrors(t *testing.T) {
	d, _ := newTestData(t)
	require.NoError(t, d.Add("density", meta()))
	require.NoError(t, d.AddSparse("dust", 1, meta(metadata.Sparse)))

	var le *LabelError
	err := d.Add("density", meta())
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "density", le.Label)
	assert.ErrorIs(t, err, ErrDuplicateName)

	assert.ErrorIs(t, d.Add("", meta()), ErrInvalidOperation)
	assert.ErrorIs(t, d.Add("dust", meta()), ErrDuplicateName, "pool name")
	assert.ErrorIs(t, d.Add("sparse", meta(metadata.Sparse)), ErrInvalidOperation)
	assert.ErrorIs(t, d.Add("corner", meta(metadata.Node)), ErrUnsupported)
	assert.ErrorIs(t, d.AddSparse("density", 2, meta(metadata.Sparse)), ErrDuplicateName, "dense base")
	assert.ErrorIs(t, d.AddSparse("dust", 1, meta(metadata.Sparse)), ErrDuplicateName)
	assert.ErrorIs(t, d.AddSparse("dust", 2, meta()), ErrInvalidOperation)
	assert.ErrorIs(t, d.AddSparse("dust", variable.InvalidSparseID, meta(metadata.Sparse)), ErrInvalidOperation)

	_, err = d.GetEdge("density")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestBlockData_AddLabelsAtomic(t *testing.T) {
	d, _ := newTestData(t)
	require.NoError(t, d.Add("b", meta()))

	assert.ErrorIs(t, d.AddLabels([]string{"a", "b", "c"}, meta()), ErrDuplicateName)
	assert.Equal(t, []string{"b"}, d.Labels(), "nothing added on failure")
	assert.ErrorIs(t, d.AddLabels([]string{"x", "x"}, meta()), ErrDuplicateName)

	require.NoError(t, d.AddLabels([]string{"a", "c"}, meta()))
	assert.Equal(t, []string{"b", "a", "c"}, d.Labels())
}

func TestBlockData_Sparse(t *testing.T) {
	mc := &BasicMetricsCollector{}
	d, _ := newTestData(t, WithMetricsCollector(mc))
	for _, id := range []int{0, 3, 7} {
		require.NoError(t, d.AddSparse("dust", id, meta(metadata.Sparse, metadata.FillGhost)))
	}

	assert.False(t, d.IsAllocatedID("dust", 3))
	require.NoError(t, d.AllocSparseID("dust", 3))
	require.NoError(t, d.AllocateSparse("dust_3"), "idempotent")
	assert.True(t, d.IsAllocated("dust_3"))
	assert.False(t, d.IsAllocated("dust_0"))
	assert.False(t, d.IsAllocated("missing"))

	v, err := d.Get("dust_3")
	require.NoError(t, err)
	assert.Equal(t, "dust", v.ID().Base)
	assert.Equal(t, 3, v.ID().SparseID)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.AllocateCount)
	assert.Equal(t, v.Bytes(), stats.AllocatedBytes)

	require.NoError(t, d.DeallocateSparse("dust_3"))
	assert.False(t, d.IsAllocated("dust_3"))
	assert.True(t, d.HasVariable("dust_3"), "deallocation keeps the registration")

	require.NoError(t, d.Add("density", meta()))
	assert.ErrorIs(t, d.AllocateSparse("density"), ErrInvalidOperation)
	assert.ErrorIs(t, d.AllocateSparse("dust_9"), ErrNotFound)
	assert.ErrorIs(t, d.DeallocateSparse("density"), ErrInvalidOperation)
}

func TestBlockData_Remove(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	d, _ := newTestData(t, WithResourceController(rc))

	require.NoError(t, d.Add("density", meta()))
	require.NoError(t, d.Add("bfield", meta(metadata.Face)))
	require.NoError(t, d.AddSparse("dust", 1, meta(metadata.Sparse)))
	require.NoError(t, d.AllocateSparse("dust_1"))
	assert.Positive(t, rc.MemoryUsage())

	require.NoError(t, d.Remove("dust_1"))
	require.NoError(t, d.Add("dust", meta()), "pool name free once its last member is gone")
	require.NoError(t, d.Remove("bfield"))
	assert.ErrorIs(t, d.Remove("bfield"), ErrNotFound)

	require.NoError(t, d.Remove("density"))
	require.NoError(t, d.Remove("dust"))
	assert.Zero(t, d.Size())
	assert.Zero(t, rc.MemoryUsage())
}

func TestBlockData_SharedVariable(t *testing.T) {
	a, b := newTestData(t)
	other := New(WithBlock(b))

	require.NoError(t, a.Add("phi", meta(metadata.OneCopy)))
	v, err := a.Get("phi")
	require.NoError(t, err)
	require.NoError(t, other.AddCellVariable(v))
	assert.ErrorIs(t, other.AddCellVariable(v), ErrDuplicateName)

	require.NoError(t, a.Remove("phi"))
	assert.True(t, v.IsAllocated(), "still held by the second container")
	require.NoError(t, other.Close())
	assert.False(t, v.IsAllocated())
}

func TestBlockData_MemoryLimit(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1024})
	d, _ := newTestData(t, WithResourceController(rc))

	err := d.Add("density", meta())
	assert.ErrorIs(t, err, resource.ErrMemoryLimitExceeded)
	assert.False(t, d.HasVariable("density"))
}

func TestBlockData_StaleBlock(t *testing.T) {
	d := New()
	_, err := d.Block()
	assert.ErrorIs(t, err, ErrStaleReference)
	assert.ErrorIs(t, d.Add("density", meta()), ErrStaleReference)

	require.NoError(t, d.AddSparse("dust", 1, meta(metadata.Sparse)), "registration needs no block")
	assert.ErrorIs(t, d.AllocateSparse("dust_1"), ErrStaleReference)
	_, err = d.BoundsI(mesh.Entire)
	assert.ErrorIs(t, err, ErrStaleReference)
}

func TestBlockData_Equal(t *testing.T) {
	a, _ := newTestData(t)
	b, _ := newTestData(t)
	require.NoError(t, a.AddLabels([]string{"x", "y"}, meta()))
	require.NoError(t, b.AddLabels([]string{"y", "x"}, meta()))

	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(nil))

	require.NoError(t, b.Add("z", meta()))
	assert.False(t, a.Equal(b))

	cell, _ := newTestData(t)
	face, _ := newTestData(t)
	require.NoError(t, cell.Add("x", meta()))
	require.NoError(t, face.Add("x", meta(metadata.Face)))
	assert.False(t, cell.Equal(face), "cell and face labels are distinct")
}

func TestBlockData_Initialize(t *testing.T) {
	desc := state.NewDescriptor("hydro")
	require.NoError(t, desc.AddField("density", meta(metadata.Independent)))
	require.NoError(t, desc.AddField("flux_b", meta(metadata.Face)))
	require.NoError(t, desc.AddSparsePool("dust", meta(metadata.Sparse), 1, 2))

	d, _ := newTestData(t)
	require.NoError(t, d.Initialize(desc))
	assert.Equal(t, []string{"density", "dust_1", "dust_2", "flux_b"}, d.Labels())
	assert.True(t, d.IsAllocated("density"))
	assert.False(t, d.IsAllocated("dust_1"))

	clash, _ := newTestData(t)
	require.NoError(t, clash.AddSparse("dust", 2, meta(metadata.Sparse)))
	assert.ErrorIs(t, clash.Initialize(desc), ErrDuplicateName)
	assert.Equal(t, []string{"dust_2"}, clash.Labels(), "failed initialization adds nothing")
}
