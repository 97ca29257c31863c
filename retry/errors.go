package retry

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a desynchronization between the execution engine and
	// the ledger. It is fatal to the run.
	ErrProtocol = errors.New("protocol violation")
	// ErrConfig marks an invalid retry policy.
	ErrConfig = errors.New("invalid retry configuration")
	// ErrState marks a call made in the wrong lifecycle phase.
	ErrState = errors.New("invalid state")
	// ErrUnsettled is returned when the run is finished while tests are
	// still waiting for an outcome.
	ErrUnsettled = errors.New("tests still awaiting results")
)

// ProtocolError describes a single protocol violation.
type ProtocolError struct {
	ID      ID
	Ordinal int
	Reason  string
}

func (e *ProtocolError) Error() string {
	if e.Ordinal > 0 {
		return fmt.Sprintf("%s: %s (attempt %d): %s", ErrProtocol, e.ID, e.Ordinal, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrProtocol, e.ID, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

func protocolErrorf(id ID, ordinal int, format string, args ...any) error {
	return &ProtocolError{ID: id, Ordinal: ordinal, Reason: fmt.Sprintf(format, args...)}
}
