package devcomm

import (
	"context"
	"time"
)

// Backend defines the interface for a device communication channel.
//
// A Backend wraps a single transport connection (serial port, TCP socket, USB
// endpoint pair) and exposes the byte- and line-oriented operations instrument
// protocols are built from. Implementations append the configured write terminator
// on Write and strip read terminators on ReadLine.
//
// All blocking operations take a context; when the context carries no deadline the
// backend applies its default timeout (see SetTimeout).
type Backend interface {
	// Open establishes the transport connection.
	// Opening an already-opened backend returns ErrAlreadyOpened.
	Open(ctx context.Context) error

	// Close closes the transport connection. Closing a closed backend is a no-op.
	Close() error

	// Opened reports whether the backend is currently open.
	Opened() bool

	// Read reads exactly n bytes from the device.
	// It returns ErrShortRead (wrapped with byte counts) if the device delivers
	// fewer bytes before the timeout.
	Read(ctx context.Context, n int) ([]byte, error)

	// ReadAvailable reads all data already buffered by the device without waiting.
	// It returns an empty slice when nothing is pending.
	ReadAvailable() ([]byte, error)

	// ReadLine reads a single line terminated by any of the configured read
	// terminators. The terminator is removed and empty lines are skipped.
	ReadLine(ctx context.Context) ([]byte, error)

	// ReadUntil reads until any of the given terminators is seen.
	// The result includes the terminator.
	ReadUntil(ctx context.Context, terms [][]byte) ([]byte, error)

	// Write writes data to the device, appending the configured write terminator.
	Write(ctx context.Context, data []byte) error

	// Ask performs a Write followed by a ReadLine and returns the response line.
	Ask(ctx context.Context, query []byte) ([]byte, error)

	// SetTimeout sets the default timeout applied to operations whose context
	// carries no deadline.
	SetTimeout(d time.Duration)

	// Timeout returns the current default operation timeout.
	Timeout() time.Duration

	// Name returns the transport kind name, e.g. "serial" or "net".
	Name() string

	// ConnInfo returns the parsed connection parameters of the backend.
	ConnInfo() ConnInfo
}

// OpKind identifies a backend operation category for post-operation cooldowns.
type OpKind string

// Operation kinds recognized by Cooldowns.
const (
	OpDefault OpKind = "default"
	OpOpen    OpKind = "open"
	OpClose   OpKind = "close"
	OpRead    OpKind = "read"
	OpWrite   OpKind = "write"
	OpFlush   OpKind = "flush"
	OpTimeout OpKind = "timeout"
)

// Cooldowns maps operation kinds to a pause applied after the operation completes.
//
// A handful of instruments (mostly older serial devices) lock up when commands
// arrive back to back; a per-operation cooldown paces the traffic. The zero map
// applies no pauses.
type Cooldowns map[OpKind]time.Duration

// Sleep pauses for the cooldown configured for kind, falling back to the
// OpDefault entry when kind has no explicit value.
func (c Cooldowns) Sleep(kind OpKind) {
	if c == nil {
		return
	}
	d, ok := c[kind]
	if !ok {
		d = c[OpDefault]
	}
	if d > 0 {
		time.Sleep(d)
	}
}

// Clone returns a copy of the cooldown map safe for independent mutation.
func (c Cooldowns) Clone() Cooldowns {
	clone := make(Cooldowns, len(c))
	for k, v := range c {
		clone[k] = v
	}
	return clone
}
