// Package boundary drives the ghost-cell and flux-correction exchange of one
// block container. Every operation reports a TaskStatus so an external
// scheduler can re-issue work that is not yet complete.
package boundary

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOutOfOrder is returned when an exchange operation is invoked before
	// its required predecessor.
	ErrOutOfOrder = errors.New("exchange operation out of order")

	// ErrMalformedMessage is returned when a received payload does not match
	// the channel it arrived on.
	ErrMalformedMessage = errors.New("malformed exchange message")

	// ErrNotPosted is returned by a Transport when a channel is polled
	// without a posted receive.
	ErrNotPosted = errors.New("receive not posted")
)

// TaskStatus is the outcome of one unit of exchange work.
type TaskStatus uint8

const (
	// Complete means the operation finished.
	Complete TaskStatus = iota
	// Incomplete means the operation made what progress it could and must
	// be re-issued later.
	Incomplete
	// Fail means the operation cannot succeed; the error says why.
	Fail
)

func (s TaskStatus) String() string {
	switch s {
	case Complete:
		return "complete"
	case Incomplete:
		return "incomplete"
	case Fail:
		return "fail"
	default:
		return fmt.Sprintf("TaskStatus(%d)", uint8(s))
	}
}

// Phase selects the subset of neighbors taking part in an exchange.
type Phase uint8

const (
	// PhaseAll exchanges with every neighbor.
	PhaseAll Phase = iota
	// PhaseNonlocal exchanges only with neighbors on other ranks.
	PhaseNonlocal
	// PhaseMeshInit is the initial fill after mesh construction or
	// refinement; it exchanges with every neighbor.
	PhaseMeshInit

	numPhases = 3
)

func (p Phase) String() string {
	switch p {
	case PhaseAll:
		return "all"
	case PhaseNonlocal:
		return "nonlocal"
	case PhaseMeshInit:
		return "mesh_init"
	default:
		return fmt.Sprintf("Phase(%d)", uint8(p))
	}
}

// ParsePhase parses "all", "nonlocal" or "mesh_init".
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(s) {
	case "all":
		return PhaseAll, nil
	case "nonlocal":
		return PhaseNonlocal, nil
	case "mesh_init":
		return PhaseMeshInit, nil
	default:
		return 0, fmt.Errorf("unknown exchange phase %q", s)
	}
}

func (p Phase) valid() bool { return p < numPhases }

// PhaseState is the progress of one phase or of the flux-correction track.
type PhaseState uint8

const (
	// Idle means nothing is posted.
	Idle PhaseState = iota
	// ReceivingPosted means receives are posted and sends may start.
	ReceivingPosted
	// Exchanging means sends went out and receives are being polled.
	Exchanging
	// FluxExchanging means flux corrections went out and are being polled.
	FluxExchanging
	// Done means every expected message arrived.
	Done
)

func (s PhaseState) String() string {
	switch s {
	case Idle:
		return "idle"
	case ReceivingPosted:
		return "receiving-posted"
	case Exchanging:
		return "exchanging"
	case FluxExchanging:
		return "flux-exchanging"
	case Done:
		return "complete"
	default:
		return fmt.Sprintf("PhaseState(%d)", uint8(s))
	}
}
