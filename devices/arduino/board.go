package arduino

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/internal/pool"
	"github.com/lumilab/go-labdev/logger"
)

// ErrNoDTRControl indicates a backend without a controllable DTR line.
var ErrNoDTRControl = errors.New("backend does not expose DTR control")

// dtrSetter is implemented by backends whose DTR line can be toggled.
type dtrSetter interface {
	SetDTR(dtr bool) error
}

const (
	// defaultResetDelay covers the stock Arduino bootloader wait.
	defaultResetDelay = 2 * time.Second

	// dtrPulseWidth is how long DTR is held asserted during a reset.
	dtrPulseWidth = 100 * time.Millisecond
)

// Board is a generic Arduino-style board on a line-oriented serial backend.
type Board struct {
	backend devcomm.Backend
	log     logger.Logger

	readEcho   bool
	resetDelay time.Duration
}

// Option represents a functional option for configuring a Board.
type Option interface {
	apply(*Board) error
}

type optFunc struct {
	name      string
	applyFunc func(*Board) error
}

func (o *optFunc) apply(b *Board) error { return o.applyFunc(b) }

func newOptFunc(name string, f func(*Board) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithReadEcho makes Comm consume one echoed line after every command, for
// sketches that echo their input.
func WithReadEcho() Option {
	return newOptFunc("WithReadEcho", func(b *Board) error {
		b.readEcho = true

		return nil
	})
}

// WithResetDelay sets how long to wait for the board to boot after an open or
// a reset. Zero disables the wait.
//
// The default is 2s.
func WithResetDelay(d time.Duration) Option {
	return newOptFunc("WithResetDelay", func(b *Board) error {
		if d < 0 {
			return errors.New("reset delay is negative")
		}
		b.resetDelay = d

		return nil
	})
}

// WithLogger sets the logger used by the board.
// An error is returned if the logger is nil.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(b *Board) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		b.log = l

		return nil
	})
}

// NewBoard creates a board driver over the given backend.
func NewBoard(backend devcomm.Backend, opts ...Option) (*Board, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}

	b := &Board{
		backend:    backend,
		log:        logger.GetLogger(),
		resetDelay: defaultResetDelay,
	}

	for _, opt := range opts {
		if err := opt.apply(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Backend returns the underlying transport backend.
func (b *Board) Backend() devcomm.Backend {
	return b.backend
}

// Open opens the backend and waits out the boot delay, since boards with DTR
// wired to reset restart when the port opens.
func (b *Board) Open(ctx context.Context) error {
	if err := b.backend.Open(ctx); err != nil {
		return err
	}

	if err := b.wait(ctx, b.resetDelay); err != nil {
		b.backend.Close()

		return err
	}

	return nil
}

// Close closes the underlying backend.
func (b *Board) Close() error {
	return b.backend.Close()
}

// Reset restarts the board by pulsing the DTR line, then waits out the boot
// delay. ErrNoDTRControl is returned when the backend has no DTR line.
func (b *Board) Reset(ctx context.Context) error {
	dtr, ok := b.backend.(dtrSetter)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoDTRControl, b.backend.Name())
	}

	b.log.Debug("resetting board via DTR pulse")

	if err := dtr.SetDTR(true); err != nil {
		return err
	}
	if err := b.wait(ctx, dtrPulseWidth); err != nil {
		return err
	}
	if err := dtr.SetDTR(false); err != nil {
		return err
	}

	return b.wait(ctx, b.resetDelay)
}

// Comm sends one command line and returns the reply line with surrounding
// whitespace trimmed.
func (b *Board) Comm(ctx context.Context, cmd string) (string, error) {
	if err := b.backend.Write(ctx, []byte(cmd)); err != nil {
		return "", fmt.Errorf("write command %q: %w", cmd, err)
	}

	if b.readEcho {
		if _, err := b.backend.ReadLine(ctx); err != nil {
			return "", fmt.Errorf("read echo of %q: %w", cmd, err)
		}
	}

	line, err := b.backend.ReadLine(ctx)
	if err != nil {
		return "", fmt.Errorf("read reply to %q: %w", cmd, err)
	}

	return strings.TrimSpace(string(line)), nil
}

// Send sends one command line without reading a reply.
func (b *Board) Send(ctx context.Context, cmd string) error {
	if err := b.backend.Write(ctx, []byte(cmd)); err != nil {
		return fmt.Errorf("write command %q: %w", cmd, err)
	}

	if b.readEcho {
		if _, err := b.backend.ReadLine(ctx); err != nil {
			return fmt.Errorf("read echo of %q: %w", cmd, err)
		}
	}

	return nil
}

// Ask is a raw passthrough to the backend query operation.
func (b *Board) Ask(ctx context.Context, query []byte) ([]byte, error) {
	return b.backend.Ask(ctx, query)
}

func (b *Board) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := pool.GetTimer(d)
	defer pool.PutTimer(timer)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
