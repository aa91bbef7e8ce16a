package boundary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/variable"
)

// channel is one end of an exchange channel as seen by this block.
type channel struct {
	key    ChannelKey
	nb     mesh.Neighbor
	field  *variable.CellVariable
	region array.Region
	coarse bool
	size   int
}

func (c *channel) inPhase(p Phase, rank int) bool {
	return p != PhaseNonlocal || !c.nb.IsLocal(rank)
}

// Controller sequences the exchanges of one block container.
//
// Phases follow Idle → ReceivingPosted → Exchanging → Done, and only one
// phase may be active at a time. Flux correction runs on a parallel track
// Idle → FluxExchanging → Done inside the active phase. ClearBoundary
// returns both to Idle.
type Controller struct {
	ref       mesh.Ref
	transport Transport
	fields    []*variable.CellVariable

	setup  bool
	phases [numPhases]PhaseState
	active Phase
	flux   PhaseState

	cellSend, cellRecv []*channel
	fluxSend, fluxRecv []*channel
	received           map[ChannelKey][]float64

	pollMin, pollMax time.Duration
}

// NewController creates a controller for the block behind ref.
func NewController(ref mesh.Ref, t Transport) *Controller {
	return &Controller{
		ref:       ref,
		transport: t,
		pollMin:   50 * time.Microsecond,
		pollMax:   5 * time.Millisecond,
	}
}

// Bind replaces the exchanged variables. Only allocated variables are kept.
// Channels are rebuilt on the next Setup.
func (c *Controller) Bind(fields []*variable.CellVariable) error {
	if ph, ok := c.activePhase(); ok {
		return fmt.Errorf("%w: rebind during %s exchange", ErrOutOfOrder, ph)
	}
	kept := make([]*variable.CellVariable, 0, len(fields))
	for _, f := range fields {
		if f.IsAllocated() {
			kept = append(kept, f)
		}
	}
	c.fields = kept
	c.setup = false
	return nil
}

// Fields returns the bound variables.
func (c *Controller) Fields() []*variable.CellVariable { return c.fields }

// IsSetup reports whether channels are prepared for the bound variables.
func (c *Controller) IsSetup() bool { return c.setup }

// State returns the state of phase p.
func (c *Controller) State(p Phase) PhaseState {
	if !p.valid() {
		return Idle
	}
	return c.phases[p]
}

// FluxState returns the state of the flux-correction track.
func (c *Controller) FluxState() PhaseState { return c.flux }

func (c *Controller) activePhase() (Phase, bool) {
	for p := Phase(0); p < numPhases; p++ {
		if c.phases[p] != Idle {
			return p, true
		}
	}
	return 0, false
}

func (c *Controller) block() (*mesh.Block, error) {
	return c.ref.Get()
}

// Setup prepares the channels of every bound variable with the transport.
// It is a no-op once done until the next Bind.
func (c *Controller) Setup(ctx context.Context) (TaskStatus, error) {
	if c.setup {
		return Complete, nil
	}
	if c.transport == nil {
		return Fail, errors.New("no transport configured")
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	if err := checkGeometry(b); err != nil {
		return Fail, err
	}

	c.cellSend, c.cellRecv, c.fluxSend, c.fluxRecv = nil, nil, nil, nil
	for _, f := range c.fields {
		ncomp := f.NumComponents()
		for _, nb := range b.Neighbors {
			label := f.Label()
			sr, sc := SendRegion(b.Shape, nb)
			c.cellSend = append(c.cellSend, &channel{
				key:    ChannelKey{Sender: b.ID, Receiver: nb.BlockID, Label: label, Kind: KindCells, Offset: nb.Offset},
				nb:     nb,
				field:  f,
				region: sr,
				coarse: sc,
				size:   ncomp * sr.Cells(),
			})
			rr, rc := RecvRegion(b.Shape, nb)
			c.cellRecv = append(c.cellRecv, &channel{
				key:    ChannelKey{Sender: nb.BlockID, Receiver: b.ID, Label: label, Kind: KindCells, Offset: nb.Reversed()},
				nb:     nb,
				field:  f,
				region: rr,
				coarse: rc,
				size:   ncomp * rr.Cells(),
			})

			if !f.HasFluxes() || !nb.IsFace() {
				continue
			}
			switch {
			case nb.LevelDiff < 0:
				c.fluxSend = append(c.fluxSend, &channel{
					key:   ChannelKey{Sender: b.ID, Receiver: nb.BlockID, Label: label, Kind: KindFlux, Offset: nb.Offset},
					nb:    nb,
					field: f,
					size:  ncomp * FluxSendSize(b.Shape, nb),
				})
			case nb.LevelDiff > 0:
				fr := FluxRecvRegion(b.Shape, nb)
				c.fluxRecv = append(c.fluxRecv, &channel{
					key:    ChannelKey{Sender: nb.BlockID, Receiver: b.ID, Label: label, Kind: KindFlux, Offset: nb.Reversed()},
					nb:     nb,
					field:  f,
					region: fr,
					size:   ncomp * fr.Cells(),
				})
			}
		}
	}

	chans := make([]Channel, 0, len(c.cellRecv)+len(c.fluxRecv))
	for _, ch := range c.cellRecv {
		chans = append(chans, Channel{Key: ch.key, Size: ch.size})
	}
	for _, ch := range c.fluxRecv {
		chans = append(chans, Channel{Key: ch.key, Size: ch.size})
	}
	if err := c.transport.Setup(ctx, chans); err != nil {
		return Fail, fmt.Errorf("setup: %w", err)
	}
	c.setup = true
	return Complete, nil
}

func checkGeometry(b *mesh.Block) error {
	if !b.Multilevel {
		return nil
	}
	for d := 0; d < b.Shape.NDim; d++ {
		if b.Shape.NX[d]/2 < b.Shape.NGhost {
			return fmt.Errorf("block %d: %d cells along x%d cannot feed %d coarse ghosts",
				b.ID, b.Shape.NX[d], d+1, b.Shape.NGhost)
		}
	}
	return nil
}

// StartReceiving posts every receive of phase p.
func (c *Controller) StartReceiving(p Phase) (TaskStatus, error) {
	if !p.valid() {
		return Fail, fmt.Errorf("invalid phase %d", p)
	}
	if !c.setup {
		return Fail, fmt.Errorf("%w: start receiving before setup", ErrOutOfOrder)
	}
	if ph, ok := c.activePhase(); ok {
		return Fail, fmt.Errorf("%w: start %s while %s is %s", ErrOutOfOrder, p, ph, c.phases[ph])
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	for _, ch := range c.cellRecv {
		if ch.inPhase(p, b.Rank) {
			if err := c.transport.PostReceive(p, ch.key); err != nil {
				return Fail, err
			}
		}
	}
	for _, ch := range c.fluxRecv {
		if ch.inPhase(p, b.Rank) {
			if err := c.transport.PostReceive(p, ch.key); err != nil {
				return Fail, err
			}
		}
	}
	c.phases[p] = ReceivingPosted
	c.active = p
	c.flux = Idle
	c.received = make(map[ChannelKey][]float64)
	return Complete, nil
}

func (c *Controller) require(op string, states ...PhaseState) (Phase, error) {
	p, ok := c.activePhase()
	if !ok {
		return 0, fmt.Errorf("%w: %s with no active phase", ErrOutOfOrder, op)
	}
	for _, s := range states {
		if c.phases[p] == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %s while %s is %s", ErrOutOfOrder, op, p, c.phases[p])
}

// SendBoundaryBuffers sends the boundary cells of every bound variable to
// the neighbors of the active phase. Data for coarser neighbors is
// restricted first.
func (c *Controller) SendBoundaryBuffers(ctx context.Context) (TaskStatus, error) {
	p, err := c.require("send boundary buffers", ReceivingPosted)
	if err != nil {
		return Fail, err
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	msgs := make([]Message, 0, len(c.cellSend))
	for _, ch := range c.cellSend {
		if !ch.inPhase(p, b.Rank) {
			continue
		}
		buf := ch.field.Data()
		if ch.coarse {
			buf = ch.field.Coarse()
			mesh.Restrict(ch.field.Data(), buf, b.Shape, 0, ch.field.NumComponents(), ch.region)
		}
		payload := buf.Gather(make([]float64, 0, ch.size), 0, ch.field.NumComponents(), ch.region)
		msgs = append(msgs, Message{Key: ch.key, Data: payload})
	}
	if err := sendAll(ctx, c.transport, msgs); err != nil {
		return Fail, err
	}
	c.phases[p] = Exchanging
	return Complete, nil
}

// poll collects pending messages of chans and reports how many are still
// outstanding. Each arrived payload is handed to apply.
func (c *Controller) poll(chans []*channel, p Phase, rank int, apply func(*channel, []float64)) (int, error) {
	missing := 0
	for _, ch := range chans {
		if !ch.inPhase(p, rank) {
			continue
		}
		if _, ok := c.received[ch.key]; ok {
			continue
		}
		data, ok, err := c.transport.Poll(ch.key)
		if err != nil {
			return 0, fmt.Errorf("receive %s: %w", ch.key, err)
		}
		if !ok {
			missing++
			continue
		}
		if len(data) != ch.size {
			return 0, fmt.Errorf("%w: %s carries %d values, want %d", ErrMalformedMessage, ch.key, len(data), ch.size)
		}
		c.received[ch.key] = data
		if apply != nil {
			apply(ch, data)
		}
	}
	return missing, nil
}

// ReceiveBoundaryBuffers polls for the boundary data of the active phase.
// It returns Incomplete until every expected message arrived.
func (c *Controller) ReceiveBoundaryBuffers() (TaskStatus, error) {
	p, err := c.require("receive boundary buffers", Exchanging, Done)
	if err != nil {
		return Fail, err
	}
	if c.phases[p] == Done {
		return Complete, nil
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	missing, err := c.poll(c.cellRecv, p, b.Rank, nil)
	if err != nil {
		return Fail, err
	}
	if missing > 0 {
		return Incomplete, nil
	}
	c.phases[p] = Done
	return Complete, nil
}

// SetBoundaries writes the received data into the ghost regions.
func (c *Controller) SetBoundaries() (TaskStatus, error) {
	p, err := c.require("set boundaries", Done)
	if err != nil {
		return Fail, err
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	for _, ch := range c.cellRecv {
		if !ch.inPhase(p, b.Rank) {
			continue
		}
		buf := ch.field.Data()
		if ch.coarse {
			buf = ch.field.Coarse()
		}
		buf.Scatter(c.received[ch.key], 0, ch.field.NumComponents(), ch.region)
	}
	return Complete, nil
}

// ReceiveAndSetBoundariesWithWait blocks until every boundary message of
// the active phase arrived, then sets the boundaries.
func (c *Controller) ReceiveAndSetBoundariesWithWait(ctx context.Context) (TaskStatus, error) {
	wait := c.pollMin
	for {
		st, err := c.ReceiveBoundaryBuffers()
		switch st {
		case Fail:
			return Fail, err
		case Complete:
			return c.SetBoundaries()
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return Fail, ctx.Err()
		case <-t.C:
		}
		wait = min(2*wait, c.pollMax)
	}
}

// ClearBoundary releases the receives of phase p and returns it to Idle.
// Clearing an idle phase is a no-op.
func (c *Controller) ClearBoundary(p Phase) (TaskStatus, error) {
	if !p.valid() {
		return Fail, fmt.Errorf("invalid phase %d", p)
	}
	if c.phases[p] == Idle {
		return Complete, nil
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	var keys []ChannelKey
	for _, chans := range [][]*channel{c.cellRecv, c.fluxRecv} {
		for _, ch := range chans {
			if ch.inPhase(p, b.Rank) {
				keys = append(keys, ch.key)
			}
		}
	}
	if err := c.transport.Clear(p, keys); err != nil {
		return Fail, err
	}
	c.phases[p] = Idle
	c.flux = Idle
	c.received = nil
	return Complete, nil
}

// SendFluxCorrection sends restricted fluxes to every coarser face
// neighbor of the active phase.
func (c *Controller) SendFluxCorrection(ctx context.Context) (TaskStatus, error) {
	p, err := c.require("send flux correction", ReceivingPosted, Exchanging, Done)
	if err != nil {
		return Fail, err
	}
	if c.flux != Idle {
		return Fail, fmt.Errorf("%w: send flux correction while flux is %s", ErrOutOfOrder, c.flux)
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	var msgs []Message
	for _, ch := range c.fluxSend {
		if !ch.inPhase(p, b.Rank) {
			continue
		}
		flux := ch.field.Flux(ch.nb.FaceDim())
		payload := RestrictFluxFace(make([]float64, 0, ch.size), flux, b.Shape, ch.nb, 0, ch.field.NumComponents())
		msgs = append(msgs, Message{Key: ch.key, Data: payload})
	}
	if err := sendAll(ctx, c.transport, msgs); err != nil {
		return Fail, err
	}
	c.flux = FluxExchanging
	return Complete, nil
}

// ReceiveFluxCorrection polls for flux corrections from finer face
// neighbors and overwrites the coarse fluxes as they arrive.
func (c *Controller) ReceiveFluxCorrection() (TaskStatus, error) {
	switch c.flux {
	case Done:
		return Complete, nil
	case FluxExchanging:
	default:
		return Fail, fmt.Errorf("%w: receive flux correction while flux is %s", ErrOutOfOrder, c.flux)
	}
	b, err := c.block()
	if err != nil {
		return Fail, err
	}
	missing, err := c.poll(c.fluxRecv, c.active, b.Rank, func(ch *channel, data []float64) {
		ch.field.Flux(ch.nb.FaceDim()).Scatter(data, 0, ch.field.NumComponents(), ch.region)
	})
	if err != nil {
		return Fail, err
	}
	if missing > 0 {
		return Incomplete, nil
	}
	c.flux = Done
	return Complete, nil
}

// RestrictBoundaries restricts the fine cells that coarser neighbors need
// into the coarse buffer.
func (c *Controller) RestrictBoundaries() error {
	b, err := c.block()
	if err != nil {
		return err
	}
	if !b.Multilevel {
		return nil
	}
	for _, ch := range c.cellSend {
		if ch.coarse {
			mesh.Restrict(ch.field.Data(), ch.field.Coarse(), b.Shape, 0, ch.field.NumComponents(), ch.region)
		}
	}
	return nil
}

// ProlongateBoundaries fills the ghosts facing coarser neighbors from the
// coarse buffer. It expects SetBoundaries to have stored the coarse data.
func (c *Controller) ProlongateBoundaries() error {
	b, err := c.block()
	if err != nil {
		return err
	}
	if !b.Multilevel {
		return nil
	}
	var coarser []mesh.Neighbor
	for _, nb := range b.Neighbors {
		if nb.LevelDiff < 0 {
			coarser = append(coarser, nb)
		}
	}
	if len(coarser) == 0 {
		return nil
	}
	cs := b.CoarseShape()
	for _, f := range c.fields {
		ncomp := f.NumComponents()
		mesh.Restrict(f.Data(), f.Coarse(), b.Shape, 0, ncomp, cs.Region(mesh.Interior))
		for _, nb := range coarser {
			mesh.Prolongate(f.Coarse(), f.Data(), b.Shape, 0, ncomp, GhostRegion(b.Shape, nb), prolongationSource(b.Shape, nb))
		}
	}
	return nil
}
