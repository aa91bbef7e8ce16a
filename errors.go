package meshdata

import (
	"errors"
	"fmt"

	"github.com/hupe1980/meshdata/boundary"
	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/variable"
)

var (
	// ErrNotFound is returned when a label, index or sparse id does not name
	// a variable of the container.
	ErrNotFound = errors.New("variable not found")

	// ErrDuplicateName is returned when a label is already registered.
	ErrDuplicateName = errors.New("duplicate variable name")

	// ErrInvalidOperation is returned when an operation does not apply to the
	// variable or container it was invoked on.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrStaleReference is returned when the owning mesh block is unset or
	// no longer live.
	ErrStaleReference = errors.New("stale mesh block reference")

	// ErrUnsupported is returned for operations the container does not
	// implement, such as edge-centered variables.
	ErrUnsupported = errors.New("unsupported")

	// ErrOutOfOrder is returned when an exchange operation is invoked before
	// its required predecessor.
	ErrOutOfOrder = errors.New("exchange operation out of order")

	// ErrMalformedMessage is returned when a received boundary payload does
	// not match its channel.
	ErrMalformedMessage = errors.New("malformed exchange message")
)

// LabelError reports a failure concerning one variable label.
//
// errors.Is(err, ErrNotFound) and friends work through Unwrap.
type LabelError struct {
	Op    string
	Label string
	Err   error
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Label, e.Err)
}

func (e *LabelError) Unwrap() error { return e.Err }

func labelError(op, label string, err error) error {
	return &LabelError{Op: op, Label: label, Err: translateError(err)}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already normalized.
	for _, sentinel := range []error{
		ErrNotFound, ErrDuplicateName, ErrInvalidOperation, ErrStaleReference,
		ErrUnsupported, ErrOutOfOrder, ErrMalformedMessage,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if errors.Is(err, mesh.ErrStaleBlock) {
		return fmt.Errorf("%w: %w", ErrStaleReference, err)
	}
	if errors.Is(err, variable.ErrNotSparse) || errors.Is(err, variable.ErrInvalidTopology) {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	if errors.Is(err, variable.ErrNotAllocated) {
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	}
	if errors.Is(err, boundary.ErrOutOfOrder) {
		return fmt.Errorf("%w: %w", ErrOutOfOrder, err)
	}
	if errors.Is(err, boundary.ErrMalformedMessage) {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	// resource.ErrMemoryLimitExceeded and context errors pass through.
	return err
}
