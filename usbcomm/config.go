package usbcomm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/internal/util"
	"github.com/lumilab/go-labdev/logger"
)

// Config represents the configuration parameters for a USB backend.
type Config struct {
	mu sync.RWMutex

	// vendorID and productID identify the device model.
	vendorID  uint16
	productID uint16
	// index selects among identical devices attached simultaneously, in
	// enumeration order. Defaults to 0.
	index int

	// inEndpoint and outEndpoint are the bulk endpoint numbers used for
	// reading and writing, without the direction bit. Defaults to 1 for both.
	inEndpoint  int
	outEndpoint int

	// timeout is the default timeout for operations whose context carries no
	// deadline. Defaults to 5 seconds.
	timeout time.Duration

	// termRead lists the terminators recognized when reading lines. Raw USB
	// protocols are usually packet framed, so the default is no terminator.
	termRead [][]byte
	// termWrite is appended to every outgoing message. Defaults to empty.
	termWrite []byte

	// cooldowns configures per-operation pauses; see devcomm.Cooldowns.
	cooldowns devcomm.Cooldowns

	// logger provides a logger instance for backend events and errors.
	logger logger.Logger
}

// NewConfig creates a USB backend configuration for the given vendor and
// product IDs with optional functional options.
func NewConfig(vendorID, productID uint16, opts ...Option) (*Config, error) {
	cfg := &Config{
		vendorID:    vendorID,
		productID:   productID,
		inEndpoint:  1,
		outEndpoint: 1,
		timeout:     5 * time.Second,
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// VendorID returns the USB vendor ID.
func (cfg *Config) VendorID() uint16 {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.vendorID
}

// ProductID returns the USB product ID.
func (cfg *Config) ProductID() uint16 {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.productID
}

// Index returns the device index among identical attached devices.
func (cfg *Config) Index() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.index
}

// InEndpoint returns the bulk IN endpoint number.
func (cfg *Config) InEndpoint() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.inEndpoint
}

// OutEndpoint returns the bulk OUT endpoint number.
func (cfg *Config) OutEndpoint() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.outEndpoint
}

// Timeout returns the default operation timeout.
func (cfg *Config) Timeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.timeout
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

// Option represents a functional option for configuring a USB Config.
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

// WithIndex selects among identical devices attached simultaneously, in
// enumeration order. An error is returned if the index is negative or the
// configuration is nil.
//
// The default value is 0.
func WithIndex(index int) Option {
	return newOptFunc("WithIndex", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if index < 0 {
			return errors.New("device index must not be negative")
		}
		cfg.index = index

		return nil
	})
}

// WithEndpoints sets the bulk IN and OUT endpoint numbers, without the
// direction bit. An error is returned if a number is outside the range [1, 15]
// or the configuration is nil.
//
// The default is endpoint 1 for both directions.
func WithEndpoints(in, out int) Option {
	return newOptFunc("WithEndpoints", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if in < 1 || in > 15 {
			return fmt.Errorf("IN endpoint %d is out of range [1, 15]", in)
		}
		if out < 1 || out > 15 {
			return fmt.Errorf("OUT endpoint %d is out of range [1, 15]", out)
		}
		cfg.inEndpoint = in
		cfg.outEndpoint = out

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

// WithReadTerminators sets the terminators recognized when reading lines.
// An error is returned if any terminator is empty or the configuration is nil.
//
// The default is no terminator; ReadLine then returns whatever a single read
// window delivers.
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
// An error is returned if the configuration is nil.
//
// The default is no terminator.
func WithWriteTerminator(term []byte) Option {
	return newOptFunc("WithWriteTerminator", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		cfg.termWrite = util.CloneSlice(term, 0)

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
