package serialcomm

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port is the subset of the go.bug.st/serial port surface the backend drives.
// It exists so tests can substitute an in-memory port.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error

	// SetReadTimeout bounds the next Read call; a timed-out Read returns (0, nil).
	SetReadTimeout(t time.Duration) error

	// SetDTR raises or drops the DTR modem line.
	SetDTR(dtr bool) error

	// ResetInputBuffer discards data received but not yet read.
	ResetInputBuffer() error
}

// openPortFunc opens the OS serial port described by cfg.
type openPortFunc func(cfg *Config) (Port, error)

func openSerialPort(cfg *Config) (Port, error) {
	port, err := serial.Open(cfg.Addr(), cfg.Mode())
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Addr(), err)
	}

	return port, nil
}

// ListPorts enumerates the serial port paths present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}

	return ports, nil
}
