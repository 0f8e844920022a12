package errors

import "errors"

// Common errors shared across the dump pipeline, matched with errors.Is.
var (
	// ErrDumpDisabled indicates dumping is switched off for the stream direction.
	ErrDumpDisabled = errors.New("dump disabled for stream direction")

	// ErrSessionClosed indicates a write against a closed or invalidated session.
	ErrSessionClosed = errors.New("dump session closed")

	// ErrNoDevice indicates no connected device was found by the transport.
	ErrNoDevice = errors.New("no device connected")
)
