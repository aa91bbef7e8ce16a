package meshdata

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/meshdata/boundary"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/variable"
)

// TaskStatus is the outcome of one boundary exchange step.
type TaskStatus = boundary.TaskStatus

// Exchange step outcomes.
const (
	Complete   = boundary.Complete
	Incomplete = boundary.Incomplete
	Fail       = boundary.Fail
)

// Phase selects the neighbors taking part in an exchange.
type Phase = boundary.Phase

// Communication phases.
const (
	PhaseAll      = boundary.PhaseAll
	PhaseNonlocal = boundary.PhaseNonlocal
	PhaseMeshInit = boundary.PhaseMeshInit
)

// exchangeFields returns the cell variables taking part in ghost exchange.
// Must be called with d.mu held.
func (d *BlockData) exchangeFields() []*variable.CellVariable {
	var fields []*variable.CellVariable
	for _, v := range d.cells {
		if v.IsSet(metadata.FillGhost) && v.IsAllocated() {
			fields = append(fields, v)
		}
	}
	return fields
}

// controller returns the exchange controller, creating and binding it on
// first use.
func (d *BlockData) controller() (*boundary.Controller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exchange != nil {
		return d.exchange, nil
	}
	if d.opts.transport == nil {
		return nil, fmt.Errorf("%w: no transport configured", ErrInvalidOperation)
	}
	if _, err := d.liveBlock(); err != nil {
		return nil, err
	}
	c := boundary.NewController(d.block, d.opts.transport)
	if err := c.Bind(d.exchangeFields()); err != nil {
		return nil, translateError(err)
	}
	d.exchange = c
	return c, nil
}

// ResetBoundaryCellVariables rebinds the exchange to the current set of
// allocated FillGhost variables. Call it after adding, allocating or
// removing such variables; channels are rebuilt by the next
// SetupPersistentMPI. It fails with ErrOutOfOrder while a phase is active.
func (d *BlockData) ResetBoundaryCellVariables() error {
	c, err := d.controller()
	if err != nil {
		return err
	}
	d.mu.RLock()
	fields := d.exchangeFields()
	d.mu.RUnlock()
	return translateError(c.Bind(fields))
}

func (d *BlockData) finish(ctx context.Context, op string, start time.Time, st TaskStatus, err error) (TaskStatus, error) {
	err = translateError(err)
	d.opts.metricsCollector.RecordExchange(op, st, time.Since(start))
	d.log.LogExchange(ctx, op, st, err)
	return st, err
}

func (d *BlockData) step(ctx context.Context, op string, fn func(*boundary.Controller) (TaskStatus, error)) (TaskStatus, error) {
	start := time.Now()
	c, err := d.controller()
	if err != nil {
		return d.finish(ctx, op, start, Fail, err)
	}
	st, err := fn(c)
	return d.finish(ctx, op, start, st, err)
}

// SetupPersistentMPI prepares the exchange channels of every bound variable
// with the transport. It is idempotent.
func (d *BlockData) SetupPersistentMPI(ctx context.Context) (TaskStatus, error) {
	return d.step(ctx, "setup", func(c *boundary.Controller) (TaskStatus, error) {
		return c.Setup(ctx)
	})
}

// StartReceiving posts the receives of phase. Channels are set up first if
// needed.
func (d *BlockData) StartReceiving(ctx context.Context, phase Phase) (TaskStatus, error) {
	return d.step(ctx, "start_receiving", func(c *boundary.Controller) (TaskStatus, error) {
		if !c.IsSetup() {
			if st, err := c.Setup(ctx); st != Complete {
				return st, err
			}
		}
		return c.StartReceiving(phase)
	})
}

// SendBoundaryBuffers sends the boundary data of every bound variable to
// its neighbors. It returns before delivery.
func (d *BlockData) SendBoundaryBuffers(ctx context.Context) (TaskStatus, error) {
	return d.step(ctx, "send_boundary_buffers", func(c *boundary.Controller) (TaskStatus, error) {
		return c.SendBoundaryBuffers(ctx)
	})
}

// ReceiveBoundaryBuffers polls for the boundary data of the active phase and
// reports Incomplete until all of it has arrived.
func (d *BlockData) ReceiveBoundaryBuffers(ctx context.Context) (TaskStatus, error) {
	return d.step(ctx, "receive_boundary_buffers", func(c *boundary.Controller) (TaskStatus, error) {
		return c.ReceiveBoundaryBuffers()
	})
}

// SetBoundaries writes the received data into the ghost cells. It requires
// a completed receive.
func (d *BlockData) SetBoundaries(ctx context.Context) (TaskStatus, error) {
	return d.step(ctx, "set_boundaries", func(c *boundary.Controller) (TaskStatus, error) {
		return c.SetBoundaries()
	})
}

// ReceiveAndSetBoundariesWithWait blocks until every boundary buffer has
// arrived or ctx is done, then sets the ghost cells.
func (d *BlockData) ReceiveAndSetBoundariesWithWait(ctx context.Context) (TaskStatus, error) {
	return d.step(ctx, "receive_and_set_boundaries", func(c *boundary.Controller) (TaskStatus, error) {
		return c.ReceiveAndSetBoundariesWithWait(ctx)
	})
}

// ClearBoundary returns phase to idle and releases its transport slots.
func (d *BlockData) ClearBoundary(ctx context.Context, phase Phase) (TaskStatus, error) {
	return d.step(ctx, "clear_boundary", func(c *boundary.Controller) (TaskStatus, error) {
		return c.ClearBoundary(phase)
	})
}

// SendFluxCorrection sends restricted fine fluxes to coarser face neighbors.
func (d *BlockData) SendFluxCorrection(ctx context.Context) (TaskStatus, error) {
	return d.step(ctx, "send_flux_correction", func(c *boundary.Controller) (TaskStatus, error) {
		return c.SendFluxCorrection(ctx)
	})
}

// ReceiveFluxCorrection applies the fluxes of finer face neighbors and
// reports Incomplete until all have arrived.
func (d *BlockData) ReceiveFluxCorrection(ctx context.Context) (TaskStatus, error) {
	return d.step(ctx, "receive_flux_correction", func(c *boundary.Controller) (TaskStatus, error) {
		return c.ReceiveFluxCorrection()
	})
}

// RestrictBoundaries restricts the fine data coarser neighbors need into the
// coarse buffers.
func (d *BlockData) RestrictBoundaries() error {
	_, err := d.step(context.Background(), "restrict_boundaries", func(c *boundary.Controller) (TaskStatus, error) {
		if err := c.RestrictBoundaries(); err != nil {
			return Fail, err
		}
		return Complete, nil
	})
	return err
}

// ProlongateBoundaries fills the ghost cells facing coarser neighbors from
// the received coarse data.
func (d *BlockData) ProlongateBoundaries() error {
	_, err := d.step(context.Background(), "prolongate_boundaries", func(c *boundary.Controller) (TaskStatus, error) {
		if err := c.ProlongateBoundaries(); err != nil {
			return Fail, err
		}
		return Complete, nil
	})
	return err
}

// ExchangeState returns the state of phase and of the flux track. A
// container that never exchanged reports Idle for both.
func (d *BlockData) ExchangeState(phase Phase) (boundary.PhaseState, boundary.PhaseState) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.exchange == nil {
		return boundary.Idle, boundary.Idle
	}
	return d.exchange.State(phase), d.exchange.FluxState()
}
