package boundary

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/variable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTransport is a single-process mailbox transport.
type memTransport struct {
	channels map[ChannelKey]int
	posted   map[ChannelKey]bool
	boxes    map[ChannelKey][][]float64
}

func newMemTransport() *memTransport {
	return &memTransport{
		channels: map[ChannelKey]int{},
		posted:   map[ChannelKey]bool{},
		boxes:    map[ChannelKey][][]float64{},
	}
}

func (m *memTransport) Setup(_ context.Context, chans []Channel) error {
	for _, ch := range chans {
		m.channels[ch.Key] = ch.Size
	}
	return nil
}

func (m *memTransport) PostReceive(_ Phase, key ChannelKey) error {
	m.posted[key] = true
	return nil
}

func (m *memTransport) Send(_ context.Context, msg Message) error {
	m.boxes[msg.Key] = append(m.boxes[msg.Key], msg.Data)
	return nil
}

func (m *memTransport) Poll(key ChannelKey) ([]float64, bool, error) {
	if !m.posted[key] {
		return nil, false, ErrNotPosted
	}
	q := m.boxes[key]
	if len(q) == 0 {
		return nil, false, nil
	}
	m.boxes[key] = q[1:]
	return q[0], true, nil
}

func (m *memTransport) Clear(_ Phase, keys []ChannelKey) error {
	for _, k := range keys {
		delete(m.posted, k)
	}
	return nil
}

func newField(t *testing.T, b *mesh.Block, label string, flags ...metadata.Flag) *variable.CellVariable {
	t.Helper()
	v, err := variable.NewCellVariable(variable.DenseID(label), metadata.New(append(flags, metadata.FillGhost)))
	require.NoError(t, err)
	require.NoError(t, v.Allocate(b, nil))
	return v
}

func fillInterior(b *mesh.Block, v *variable.CellVariable, f func(i int) float64) {
	r := b.Shape.Region(mesh.Interior)
	for i := r.I.S; i <= r.I.E; i++ {
		v.Data().Set(0, 0, 0, i, f(i))
	}
}

// pair is two 1D blocks side by side, a on the left.
type pair struct {
	a, b   *mesh.Block
	va, vb *variable.CellVariable
	ca, cb *Controller
	tr     *memTransport
}

func newSameLevelPair(t *testing.T, ng int) *pair {
	t.Helper()
	s, err := mesh.NewIndexShape(4, 1, 1, ng)
	require.NoError(t, err)
	a, err := mesh.NewBlock(0, s, mesh.WithNeighbors(mesh.Neighbor{BlockID: 1, Offset: [3]int{1, 0, 0}}))
	require.NoError(t, err)
	b, err := mesh.NewBlock(1, s, mesh.WithNeighbors(mesh.Neighbor{BlockID: 0, Offset: [3]int{-1, 0, 0}}))
	require.NoError(t, err)

	p := &pair{a: a, b: b, tr: newMemTransport()}
	p.va = newField(t, a, "rho")
	p.vb = newField(t, b, "rho")
	fillInterior(a, p.va, func(i int) float64 { return float64(i) })
	fillInterior(b, p.vb, func(i int) float64 { return float64(10 + i) })

	p.ca = NewController(mesh.MakeRef(a), p.tr)
	p.cb = NewController(mesh.MakeRef(b), p.tr)
	require.NoError(t, p.ca.Bind([]*variable.CellVariable{p.va}))
	require.NoError(t, p.cb.Bind([]*variable.CellVariable{p.vb}))
	return p
}

func mustOK(t *testing.T, st TaskStatus, err error) {
	t.Helper()
	require.NoError(t, err)
	require.Equal(t, Complete, st)
}

func complete(t *testing.T) func(TaskStatus, error) {
	return func(st TaskStatus, err error) {
		t.Helper()
		require.NoError(t, err)
		require.Equal(t, Complete, st)
	}
}

func TestExchange_SameLevel(t *testing.T) {
	p := newSameLevelPair(t, 2)
	ctx := context.Background()

	for _, c := range []*Controller{p.ca, p.cb} {
		st, err := c.Setup(ctx)
		mustOK(t, st, err)
		st, err = c.StartReceiving(PhaseAll)
		mustOK(t, st, err)
		assert.Equal(t, ReceivingPosted, c.State(PhaseAll))
	}

	st, err := p.ca.SendBoundaryBuffers(ctx)
	mustOK(t, st, err)

	// b has not sent yet.
	st, err = p.ca.ReceiveBoundaryBuffers()
	require.NoError(t, err)
	assert.Equal(t, Incomplete, st)

	st, err = p.cb.SendBoundaryBuffers(ctx)
	mustOK(t, st, err)

	for _, c := range []*Controller{p.ca, p.cb} {
		st, err = c.ReceiveBoundaryBuffers()
		mustOK(t, st, err)
		assert.Equal(t, Done, c.State(PhaseAll))
		st, err = c.SetBoundaries()
		mustOK(t, st, err)
		st, err = c.ClearBoundary(PhaseAll)
		mustOK(t, st, err)
		assert.Equal(t, Idle, c.State(PhaseAll))
	}

	// a's upper ghosts hold b's first interior cells and vice versa.
	assert.Equal(t, 12.0, p.va.Data().At(0, 0, 0, 6))
	assert.Equal(t, 13.0, p.va.Data().At(0, 0, 0, 7))
	assert.Equal(t, 4.0, p.vb.Data().At(0, 0, 0, 0))
	assert.Equal(t, 5.0, p.vb.Data().At(0, 0, 0, 1))
	assert.Equal(t, 0.0, p.va.Data().At(0, 0, 0, 0), "no neighbor below a")
	runtime.KeepAlive(p)
}

func TestExchange_Ordering(t *testing.T) {
	p := newSameLevelPair(t, 1)
	ctx := context.Background()

	_, err := p.ca.StartReceiving(PhaseAll)
	assert.ErrorIs(t, err, ErrOutOfOrder, "setup first")

	complete(t)(p.ca.Setup(ctx))

	st, err := p.ca.SendBoundaryBuffers(ctx)
	assert.Equal(t, Fail, st)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	_, err = p.ca.ReceiveBoundaryBuffers()
	assert.ErrorIs(t, err, ErrOutOfOrder)

	complete(t)(p.ca.ClearBoundary(PhaseNonlocal))

	complete(t)(p.ca.StartReceiving(PhaseAll))
	_, err = p.ca.StartReceiving(PhaseNonlocal)
	assert.ErrorIs(t, err, ErrOutOfOrder, "one phase at a time")

	_, err = p.ca.SetBoundaries()
	assert.ErrorIs(t, err, ErrOutOfOrder)

	complete(t)(p.ca.SendBoundaryBuffers(ctx))
	_, err = p.ca.SendBoundaryBuffers(ctx)
	assert.ErrorIs(t, err, ErrOutOfOrder, "double send")

	_, err = p.ca.SetBoundaries()
	assert.ErrorIs(t, err, ErrOutOfOrder, "receive not complete")

	assert.ErrorIs(t, p.ca.Bind(nil), ErrOutOfOrder)

	complete(t)(p.ca.ClearBoundary(PhaseAll))
	assert.Equal(t, Idle, p.ca.State(PhaseAll))
	runtime.KeepAlive(p)
}

func TestExchange_MalformedMessage(t *testing.T) {
	p := newSameLevelPair(t, 1)
	ctx := context.Background()
	complete(t)(p.ca.Setup(ctx))
	complete(t)(p.ca.StartReceiving(PhaseAll))
	complete(t)(p.ca.SendBoundaryBuffers(ctx))

	key := ChannelKey{Sender: 1, Receiver: 0, Label: "rho", Kind: KindCells, Offset: [3]int{-1, 0, 0}}
	require.NoError(t, p.tr.Send(ctx, Message{Key: key, Data: []float64{1, 2, 3}}))

	st, err := p.ca.ReceiveBoundaryBuffers()
	assert.Equal(t, Fail, st)
	assert.ErrorIs(t, err, ErrMalformedMessage)
	runtime.KeepAlive(p)
}

func TestExchange_NonlocalSkipsLocalNeighbors(t *testing.T) {
	p := newSameLevelPair(t, 1)
	ctx := context.Background()
	complete(t)(p.ca.Setup(ctx))
	complete(t)(p.ca.StartReceiving(PhaseNonlocal))
	complete(t)(p.ca.SendBoundaryBuffers(ctx))

	// Both blocks live on rank 0, so nothing is expected.
	complete(t)(p.ca.ReceiveBoundaryBuffers())
	assert.Empty(t, p.tr.boxes)
	runtime.KeepAlive(p)
}

func TestReceiveAndSetBoundariesWithWait(t *testing.T) {
	p := newSameLevelPair(t, 1)
	ctx := context.Background()
	for _, c := range []*Controller{p.ca, p.cb} {
		complete(t)(c.Setup(ctx))
		complete(t)(c.StartReceiving(PhaseAll))
	}
	complete(t)(p.ca.SendBoundaryBuffers(ctx))

	// Nothing from b: the wait ends with the context.
	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	st, err := p.ca.ReceiveAndSetBoundariesWithWait(tctx)
	assert.Equal(t, Fail, st)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	complete(t)(p.cb.SendBoundaryBuffers(ctx))
	complete(t)(p.ca.ReceiveAndSetBoundariesWithWait(ctx))
	assert.Equal(t, 11.0, p.va.Data().At(0, 0, 0, 5))
	runtime.KeepAlive(p)
}

func TestExchange_StaleBlock(t *testing.T) {
	c := func() *Controller {
		s, _ := mesh.NewIndexShape(4, 1, 1, 1)
		b, _ := mesh.NewBlock(0, s)
		return NewController(mesh.MakeRef(b), newMemTransport())
	}()
	runtime.GC()

	st, err := c.Setup(context.Background())
	assert.Equal(t, Fail, st)
	assert.ErrorIs(t, err, mesh.ErrStaleBlock)
}

// newLevelPair builds a coarse block c (left) and a finer block f (right).
func newLevelPair(t *testing.T, flags ...metadata.Flag) (*pair, *mesh.Block, *mesh.Block) {
	t.Helper()
	s, err := mesh.NewIndexShape(4, 1, 1, 2)
	require.NoError(t, err)
	c, err := mesh.NewBlock(0, s, mesh.WithNeighbors(mesh.Neighbor{BlockID: 1, LevelDiff: 1, Offset: [3]int{1, 0, 0}}))
	require.NoError(t, err)
	f, err := mesh.NewBlock(1, s, mesh.WithLevel(1), mesh.WithNeighbors(mesh.Neighbor{BlockID: 0, LevelDiff: -1, Offset: [3]int{-1, 0, 0}}))
	require.NoError(t, err)

	p := &pair{a: c, b: f, tr: newMemTransport()}
	p.va = newField(t, c, "rho", flags...)
	p.vb = newField(t, f, "rho", flags...)
	fillInterior(c, p.va, func(i int) float64 { return float64(i) })
	fillInterior(f, p.vb, func(i int) float64 { return float64(100 + i) })

	p.ca = NewController(mesh.MakeRef(c), p.tr)
	p.cb = NewController(mesh.MakeRef(f), p.tr)
	require.NoError(t, p.ca.Bind([]*variable.CellVariable{p.va}))
	require.NoError(t, p.cb.Bind([]*variable.CellVariable{p.vb}))
	return p, c, f
}

func TestExchange_AcrossLevels(t *testing.T) {
	p, _, _ := newLevelPair(t)
	ctx := context.Background()

	for _, c := range []*Controller{p.ca, p.cb} {
		complete(t)(c.Setup(ctx))
		complete(t)(c.StartReceiving(PhaseAll))
	}
	for _, c := range []*Controller{p.ca, p.cb} {
		complete(t)(c.SendBoundaryBuffers(ctx))
	}
	for _, c := range []*Controller{p.ca, p.cb} {
		complete(t)(c.ReceiveBoundaryBuffers())
		complete(t)(c.SetBoundaries())
	}

	// The coarse block sees restricted fine cells.
	assert.InDelta(t, 102.5, p.va.Data().At(0, 0, 0, 6), 1e-12)
	assert.InDelta(t, 104.5, p.va.Data().At(0, 0, 0, 7), 1e-12)

	// The fine block stored coarse cells in its coarse buffer.
	assert.Equal(t, 4.0, p.vb.Coarse().At(0, 0, 0, 0))
	assert.Equal(t, 5.0, p.vb.Coarse().At(0, 0, 0, 1))

	require.NoError(t, p.cb.ProlongateBoundaries())
	assert.InDelta(t, 4.75, p.vb.Data().At(0, 0, 0, 0), 1e-12)
	assert.InDelta(t, 5.25, p.vb.Data().At(0, 0, 0, 1), 1e-12)

	require.NoError(t, p.ca.ProlongateBoundaries(), "no coarser neighbor")
	runtime.KeepAlive(p)
}

func TestFluxCorrection(t *testing.T) {
	p, _, _ := newLevelPair(t, metadata.WithFluxes)
	ctx := context.Background()

	p.vb.Flux(0).Set(0, 0, 0, 2, 7)
	p.va.Flux(0).Set(0, 0, 0, 6, -1)

	for _, c := range []*Controller{p.ca, p.cb} {
		complete(t)(c.Setup(ctx))
		_, err := c.ReceiveFluxCorrection()
		assert.ErrorIs(t, err, ErrOutOfOrder)
		complete(t)(c.StartReceiving(PhaseAll))
	}

	complete(t)(p.ca.SendFluxCorrection(ctx))
	st, err := p.ca.ReceiveFluxCorrection()
	require.NoError(t, err)
	assert.Equal(t, Incomplete, st)

	complete(t)(p.cb.SendFluxCorrection(ctx))
	_, err = p.cb.SendFluxCorrection(ctx)
	assert.ErrorIs(t, err, ErrOutOfOrder)

	complete(t)(p.ca.ReceiveFluxCorrection())
	complete(t)(p.cb.ReceiveFluxCorrection())
	assert.Equal(t, Done, p.ca.FluxState())
	assert.Equal(t, 7.0, p.va.Flux(0).At(0, 0, 0, 6))

	complete(t)(p.ca.ClearBoundary(PhaseAll))
	assert.Equal(t, Idle, p.ca.FluxState())
	runtime.KeepAlive(p)
}

func TestRestrictBoundaries(t *testing.T) {
	p, _, _ := newLevelPair(t)
	complete(t)(p.cb.Setup(context.Background()))
	require.NoError(t, p.cb.RestrictBoundaries())
	assert.InDelta(t, 102.5, p.vb.Coarse().At(0, 0, 0, 2), 1e-12)
	assert.InDelta(t, 104.5, p.vb.Coarse().At(0, 0, 0, 3), 1e-12)
	runtime.KeepAlive(p)
}
