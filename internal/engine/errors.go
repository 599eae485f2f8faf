package engine

import "errors"

var (
	// ErrBusy is returned when a request is in flight and the controller
	// cannot accept another transition yet.
	ErrBusy = errors.New("engine: operation in progress")
	// ErrInvalidState is returned for transitions the current state does
	// not allow, e.g. submitting with no form open.
	ErrInvalidState = errors.New("engine: invalid state for operation")
	// ErrReadOnly is returned when a view-only form is asked to change.
	ErrReadOnly = errors.New("engine: event opened read-only")
)
