package devcomm

import "errors"

var (
	// ErrConfigNil indicates that a nil configuration was provided.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrBackendClosed indicates that an operation was attempted on a closed backend.
	ErrBackendClosed = errors.New("backend is closed")

	// ErrAlreadyOpened indicates that Open was called on a backend that is already open.
	ErrAlreadyOpened = errors.New("backend is already opened")

	// ErrInvalidConn indicates that a connection string could not be parsed.
	ErrInvalidConn = errors.New("invalid connection string")

	// ErrUnknownBackend indicates that no transport is registered for the requested kind.
	ErrUnknownBackend = errors.New("unknown backend kind")

	// ErrTimeout indicates that a read or write operation timed out before completion.
	ErrTimeout = errors.New("operation timed out")

	// ErrShortRead indicates that a sized read returned fewer bytes than requested.
	ErrShortRead = errors.New("read returned less data than requested")
)

var (
	// ErrInvalidTransition is returned when an attempt is made to transition the
	// connection state to an invalid state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotConnectedState indicates that the current connection state is not the
	// connected state.
	ErrNotConnectedState = errors.New("current state is not the connected state")
)
