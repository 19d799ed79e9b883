package netcomm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/internal/util"
	"github.com/lumilab/go-labdev/logger"
)

// Config represents the configuration parameters for a network backend.
type Config struct {
	mu sync.RWMutex

	// host is the instrument host name or IP address.
	host string
	// port is the instrument TCP port.
	port int

	// connectTimeout bounds the TCP dial.
	// Defaults to 3 seconds.
	connectTimeout time.Duration

	// timeout is the default timeout for operations whose context carries no
	// deadline. Defaults to 5 seconds.
	timeout time.Duration

	// termRead lists the terminators recognized when reading lines.
	// Defaults to a single LF terminator.
	termRead [][]byte
	// termWrite is appended to every outgoing message.
	// Defaults to CRLF.
	termWrite []byte

	// noDelay disables Nagle batching on the socket. Command/response
	// instrument traffic is latency bound, so it defaults to true.
	noDelay bool

	// cooldowns configures per-operation pauses; see devcomm.Cooldowns.
	cooldowns devcomm.Cooldowns

	// logger provides a logger instance for backend events and errors.
	logger logger.Logger
}

// NewConfig creates a network backend configuration for the given host and port
// with optional functional options.
func NewConfig(host string, port int, opts ...Option) (*Config, error) {
	cfg := &Config{
		connectTimeout: 3 * time.Second,
		timeout:        5 * time.Second,
		termRead:       [][]byte{{'\n'}},
		termWrite:      []byte("\r\n"),
		noDelay:        true,
		logger:         logger.GetLogger(),
	}

	if err := withHost(host).apply(cfg); err != nil {
		return cfg, err
	}

	if err := withPort(port).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Host returns the instrument host name or IP address.
func (cfg *Config) Host() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.host
}

// Port returns the instrument TCP port.
func (cfg *Config) Port() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.port
}

// ConnectTimeout returns the TCP dial timeout.
func (cfg *Config) ConnectTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.connectTimeout
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

// NoDelay reports whether Nagle batching is disabled on the socket.
func (cfg *Config) NoDelay() bool {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.noDelay
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

// Option represents a functional option for configuring a network Config.
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

func withHost(host string) Option {
	return newOptFunc("withHost", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if host == "" {
			return errors.New("host is empty")
		}
		cfg.host = host

		return nil
	})
}

func withPort(port int) Option {
	return newOptFunc("withPort", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if port < 1 || port > 65535 {
			return fmt.Errorf("port %d is out of range [1, 65535]", port)
		}
		cfg.port = port

		return nil
	})
}

// WithConnectTimeout sets the timeout for establishing the TCP connection.
// An error is returned if the timeout is not positive or the configuration is nil.
//
// The default value is 3 seconds.
func WithConnectTimeout(timeout time.Duration) Option {
	return newOptFunc("WithConnectTimeout", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		if timeout <= 0 {
			return errors.New("connect timeout must be positive")
		}
		cfg.connectTimeout = timeout

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

// WithNoDelay enables or disables Nagle batching on the socket.
//
// The default value is true (batching disabled).
func WithNoDelay(val bool) Option {
	return newOptFunc("WithNoDelay", func(cfg *Config) error {
		if cfg == nil {
			return devcomm.ErrConfigNil
		}

		cfg.noDelay = val

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
