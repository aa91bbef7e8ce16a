package meshdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/resource"
	"github.com/hupe1980/meshdata/testutil"
	"github.com/hupe1980/meshdata/variable"
)

func TestDeriveByName(t *testing.T) {
	d := newHydro(t, WithStage("base"))
	require.NoError(t, d.Add("phi", meta(metadata.OneCopy)))
	testutil.NewRNG(3).FillBuffer(mustGet(t, d, "density").Data(), 0, 1)

	dst, err := d.DeriveByName([]string{"density", "dust", "phi", "density"}, WithStage("rk1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"density", "dust_1", "dust_2", "dust_3", "phi"}, dst.Labels())
	assert.Equal(t, "rk1", dst.Stage())
	assert.Equal(t, "base", d.Stage())

	src, cp := mustGet(t, d, "density"), mustGet(t, dst, "density")
	assert.NotSame(t, src, cp)
	assert.Equal(t, src.Data().Data(), cp.Data().Data())
	cp.Data().Fill(9)
	assert.NotEqual(t, 9.0, src.Data().At(0, 0, 4, 4), "deep copy")

	assert.Same(t, mustGet(t, d, "phi"), mustGet(t, dst, "phi"), "OneCopy is shared")
	assert.True(t, dst.IsAllocated("dust_1"))
	assert.False(t, dst.IsAllocated("dust_2"), "allocation state carries over")

	b, err := dst.Block()
	require.NoError(t, err)
	owner, err := d.Block()
	require.NoError(t, err)
	assert.Same(t, owner, b)

	_, err = d.DeriveByName([]string{"density", "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeriveByName_Faces(t *testing.T) {
	d, _ := newTestData(t)
	require.NoError(t, d.Add("bfield", meta(metadata.Face, metadata.OneCopy)))
	require.NoError(t, d.Add("efield", meta(metadata.Face)))

	dst, err := d.DeriveByName([]string{"bfield"})
	require.NoError(t, err)
	a, err := d.GetFace("bfield")
	require.NoError(t, err)
	b, err := dst.GetFace("bfield")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = d.DeriveByName([]string{"efield"})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDeriveByFlags(t *testing.T) {
	d := newHydro(t)

	dst, err := d.DeriveByFlags([]metadata.Flag{metadata.Independent})
	require.NoError(t, err)
	assert.Equal(t, []string{"density", "velocity", "dust_1", "dust_2", "dust_3"}, dst.Labels())

	dst, err = d.DeriveByFlags([]metadata.Flag{metadata.Independent, metadata.Sparse})
	require.NoError(t, err)
	assert.Equal(t, []string{"dust_1", "dust_2", "dust_3"}, dst.Labels())

	cp, err := d.Copy()
	require.NoError(t, err)
	assert.True(t, cp.Equal(d))
	assert.NotSame(t, mustGet(t, d, "pressure"), mustGet(t, cp, "pressure"))

	// The copy owns its storage: removing from it leaves the source intact.
	require.NoError(t, cp.Remove("density"))
	assert.True(t, d.IsAllocated("density"))
}

func TestDerive_MemoryAccounting(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	d, _ := newTestData(t, WithResourceController(rc))
	require.NoError(t, d.Add("density", meta()))
	require.NoError(t, d.Add("phi", meta(metadata.OneCopy)))
	one := rc.MemoryUsage() / 2

	cp, err := d.Copy()
	require.NoError(t, err)
	assert.Equal(t, 3*one, rc.MemoryUsage(), "only density is copied")

	require.NoError(t, cp.Close())
	assert.Equal(t, 2*one, rc.MemoryUsage())
}

func TestSparseSlice(t *testing.T) {
	d := newHydro(t)

	dst, err := d.SparseSlice([]int{3, 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"density", "velocity", "pressure", "dust_2", "dust_3"}, dst.Labels())
	for _, label := range dst.Labels() {
		assert.Same(t, mustGet(t, d, label), mustGet(t, dst, label), label)
	}

	p, err := dst.PackVariablesByName([]string{"dust"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dust_3"}, p.Keys())

	empty, err := d.SparseSlice(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"density", "velocity", "pressure"}, empty.Labels())
}

func mustGet(t *testing.T, d *BlockData, label string) *variable.CellVariable {
	t.Helper()
	v, err := d.Get(label)
	require.NoError(t, err)
	return v
}
