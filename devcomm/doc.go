// Package devcomm defines the unified communication contract shared by all go-labdev
// transport backends and instrument drivers.
//
// The central type is the Backend interface: a byte-oriented, terminator-aware
// communication channel to a single instrument. Concrete transports (serial, net,
// usb) implement Backend and register themselves with this package, so callers can
// open a device from a plain connection string without importing the transport
// package directly:
//
//	backend, err := devcomm.New(ctx, "/dev/ttyUSB0")
//
// The package also provides the building blocks the transports share:
//
//   - ConnStateMgr: a thread-safe connection state machine with change handlers and
//     a WaitState helper for blocking until a desired state is reached.
//   - AtomicOpState: a CAS-based open/close lifecycle state.
//   - TaskManager: structured lifecycle management for transport goroutines.
//   - Metrics: atomic transfer counters suitable as prometheus Counter/GaugeFunc sources.
//   - Terminator helpers for line-oriented instrument protocols.
//
// Higher layers (scpi, modbus, stream, devices/...) are written purely against the
// Backend interface and are transport-agnostic.
package devcomm
