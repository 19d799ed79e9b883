package serialcomm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/internal/util"
	"github.com/lumilab/go-labdev/logger"
)

// Parity designates the parity bit mode of the serial line.
type Parity string

// Supported parity modes.
const (
	ParityNone Parity = "N"
	ParityEven Parity = "E"
	ParityOdd  Parity = "O"
)

// Config represents the configuration parameters for a serial backend.
type Config struct {
	mu sync.RWMutex

	// addr is the serial port path, e.g. "COM3" or "/dev/ttyUSB0".
	addr string

	// baudRate specifies the line speed in bits per second.
	// Defaults to 9600.
	baudRate int
	// dataBits specifies the number of data bits per character, 5 to 8.
	// Defaults to 8.
	dataBits int
	// parity specifies the parity mode of the line.
	// Defaults to ParityNone.
	parity Parity
	// stopBits specifies the number of stop bits, 1 or 2.
	// Defaults to 1.
	stopBits int

	// termRead lists the terminators recognized when reading lines.
	// Defaults to a single LF terminator.
	termRead [][]byte
	// termWrite is appended to every outgoing message.
	// Defaults to CRLF.
	termWrite []byte

	// timeout is the default timeout for operations whose context carries no
	// deadline. Defaults to 5 seconds.
	timeout time.Duration

	// openRetries is the number of additional open attempts after a failed one.
	// Some USB-to-serial adapters need a moment after enumeration before the
	// port can be opened. Defaults to 3.
	openRetries int
	// retryInterval is the pause between open attempts.
	// Defaults to 300 milliseconds.
	retryInterval time.Duration

	// noDTR drops the DTR line right after opening the port. Arduino-style
	// boards reset when DTR is asserted; dropping it avoids the reset.
	// Defaults to false.
	noDTR bool
	// flushOnOpen discards stale input buffered by the OS when the port opens.
	// Defaults to true.
	flushOnOpen bool

	// cooldowns configures per-operation pauses; see devcomm.Cooldowns.
	cooldowns devcomm.Cooldowns

	// logger provides a logger instance for backend events and errors.
	logger logger.Logger
}

// NewConfig creates a serial backend configuration for the given port path with
// optional functional options.
//
// It initializes a Config with default values and then applies the provided
// options. See the various WithXXX functions for available options.
func NewConfig(addr string, opts ...Option) (*Config, error) {
	cfg := &Config{
		baudRate:      9600,
		dataBits:      8,
		parity:        ParityNone,
		stopBits:      1,
		termRead:      [][]byte{{'\n'}},
		termWrite:     []byte("\r\n"),
		timeout:       5 * time.Second,
		openRetries:   3,
		retryInterval: 300 * time.Millisecond,
		flushOnOpen:   true,
		logger:        logger.GetLogger(),
	}

	if err := withAddr(addr).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Addr returns the serial port path.
func (cfg *Config) Addr() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.addr
}

// Mode converts the line parameters into the go.bug.st/serial port mode.
func (cfg *Config) Mode() *serial.Mode {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	mode := &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: cfg.dataBits,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	}

	switch cfg.parity {
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	}

	if cfg.stopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	return mode
}

// ReadTerminators returns a copy of the configured read terminators.
func (cfg *Config) ReadTerminators() [][]byte {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	terms := make([][]byte, 0, len(cfg.termRead))
	for _, term := range cfg.termRead {
		terms = append(terms, util.CloneSlice(term, 0))
	}

	return terms
}

// WriteTerminator returns a copy of the configured write terminator.
func (cfg *Config) WriteTerminator() []byte {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return util.CloneSlice(cfg.termWrite, 0)
}

// Timeout returns the default operation timeout.
func (cfg *Config) Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timeout
}

// OpenRetries returns the number of additional open attempts.
func (cfg *Config) OpenRetries() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.openRetries
}

// RetryInterval returns the pause between open attempts.
func (cfg *Config) RetryInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.retryInterval
}

// NoDTR reports whether the DTR line is dropped after open.
func (cfg *Config) NoDTR() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.noDTR
}

// FlushOnOpen reports whether stale input is discarded when the port opens.
func (cfg *Config) FlushOnOpen() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.flushOnOpen
}

// Cooldowns returns a copy of the configured per-operation cooldowns.
func (cfg *Config) Cooldowns() devcomm.Cooldowns {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.cooldowns.Clone()
}

// Logger returns the configured logger.
func (cfg *Config) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// Option represents a functional option for configuring a serial Config.
type Option interface {
	apply(*Config) error
}

type optFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (o *optFunc) apply(cfg *Config) error { return o.applyFunc(cfg) }

func newOptFunc(name string, f func(*Config) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// withAddr sets the serial port path.
// An error is returned if the path is empty or the configuration is nil.
func withAddr(addr string) Option {
	return newOptFunc("withAddr", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if addr == "" {
			return errors.New("serial port path is empty")
		}
		cfg.addr = addr

		return nil
	})
}

// WithBaudRate sets the line speed in bits per second.
// An error is returned if the rate is not positive or the configuration is nil.
//
// The default value is 9600.
func WithBaudRate(rate int) Option {
	return newOptFunc("WithBaudRate", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if rate <= 0 {
			return errors.New("baud rate must be positive")
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithDataBits sets the number of data bits per character.
// An error is returned if the value is outside the range [5, 8] or the
// configuration is nil.
//
// The default value is 8.
func WithDataBits(bits int) Option {
	return newOptFunc("WithDataBits", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if bits < 5 || bits > 8 {
			return errors.New("data bits is out of range [5, 8]")
		}
		cfg.dataBits = bits

		return nil
	})
}

// WithParity sets the parity mode of the line.
// An error is returned if the mode is not one of ParityNone, ParityEven, or
// ParityOdd, or if the configuration is nil.
//
// The default value is ParityNone.
func WithParity(parity Parity) Option {
	return newOptFunc("WithParity", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		switch parity {
		case ParityNone, ParityEven, ParityOdd:
			cfg.parity = parity
		default:
			return fmt.Errorf("invalid parity mode %q", parity)
		}

		return nil
	})
}

// WithStopBits sets the number of stop bits.
// An error is returned if the value is not 1 or 2, or if the configuration is nil.
//
// The default value is 1.
func WithStopBits(bits int) Option {
	return newOptFunc("WithStopBits", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if bits != 1 && bits != 2 {
			return errors.New("stop bits must be 1 or 2")
		}
		cfg.stopBits = bits

		return nil
	})
}

// WithReadTerminators sets the terminators recognized when reading lines.
// Passing an empty set makes ReadLine read until the first receive timeout.
// An error is returned if any terminator is empty or the configuration is nil.
//
// The default value is a single LF terminator.
func WithReadTerminators(terms [][]byte) Option {
	return newOptFunc("WithReadTerminators", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		clone := make([][]byte, 0, len(terms))
		for _, term := range terms {
			if len(term) == 0 {
				return errors.New("read terminator is empty")
			}
			clone = append(clone, util.CloneSlice(term, 0))
		}
		cfg.termRead = clone

		return nil
	})
}

// WithWriteTerminator sets the terminator appended to every outgoing message.
// Passing an empty terminator disables appending.
// An error is returned if the configuration is nil.
//
// The default value is CRLF.
func WithWriteTerminator(term []byte) Option {
	return newOptFunc("WithWriteTerminator", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		cfg.termWrite = util.CloneSlice(term, 0)

		return nil
	})
}

// WithTimeout sets the default timeout for operations whose context carries no
// deadline. An error is returned if the timeout is not positive or the
// configuration is nil.
//
// The default value is 5 seconds.
func WithTimeout(timeout time.Duration) Option {
	return newOptFunc("WithTimeout", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if timeout <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = timeout

		return nil
	})
}

// WithOpenRetries sets the number of additional open attempts after a failed
// one, with interval between attempts. An error is returned if retries is
// negative, interval is not positive, or the configuration is nil.
//
// The default is 3 retries at a 300 millisecond interval.
func WithOpenRetries(retries int, interval time.Duration) Option {
	return newOptFunc("WithOpenRetries", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if retries < 0 {
			return errors.New("open retries must not be negative")
		}
		if interval <= 0 {
			return errors.New("retry interval must be positive")
		}
		cfg.openRetries = retries
		cfg.retryInterval = interval

		return nil
	})
}

// WithNoDTR drops the DTR line right after opening the port.
//
// Arduino-style boards wired to auto-reset on DTR keep running across
// reconnects with this option set.
func WithNoDTR() Option {
	return newOptFunc("WithNoDTR", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		cfg.noDTR = true

		return nil
	})
}

// WithFlushOnOpen enables or disables discarding stale input buffered by the OS
// when the port opens.
//
// The default value is true.
func WithFlushOnOpen(val bool) Option {
	return newOptFunc("WithFlushOnOpen", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		cfg.flushOnOpen = val

		return nil
	})
}

// WithCooldowns sets per-operation pauses applied after each operation.
// An error is returned if any cooldown is negative or the configuration is nil.
func WithCooldowns(cooldowns devcomm.Cooldowns) Option {
	return newOptFunc("WithCooldowns", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		for kind, d := range cooldowns {
			if d < 0 {
				return fmt.Errorf("cooldown for %q must not be negative", kind)
			}
		}
		cfg.cooldowns = cooldowns.Clone()

		return nil
	})
}

// WithLogger sets the logger used by the backend.
// An error is returned if the logger or the configuration is nil.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
