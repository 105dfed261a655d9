package dispatch

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaViolation is wrapped by every validation failure. The producer
	// of the call may fix it and retry; the session is not affected.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrSessionClosed is returned for any call that arrives after a session
	// reached the CLOSED state. Only a new session can continue the work.
	ErrSessionClosed = errors.New("session closed")

	ErrUnknownSession   = errors.New("unknown session")
	ErrSessionExists    = errors.New("session already exists")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// ViolationError describes which field of a tool call broke the contract.
type ViolationError struct {
	Field  string
	Reason string
}

func (e *ViolationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrSchemaViolation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrSchemaViolation, e.Field, e.Reason)
}

func (e *ViolationError) Unwrap() error {
	return ErrSchemaViolation
}

func violation(field, format string, args ...interface{}) error {
	return &ViolationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
