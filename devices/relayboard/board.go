package relayboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/lumilab/go-labdev/logger"
	"github.com/lumilab/go-labdev/modbus"
)

// ErrBadChannel indicates a relay channel outside the configured range.
var ErrBadChannel = errors.New("relay channel out of range")

// Switch controls a single relay output.
type Switch interface {
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	State(ctx context.Context) (bool, error)
	String() string
}

// Board drives a Modbus relay board with one coil per relay channel.
type Board struct {
	client *modbus.Client
	log    logger.Logger

	base     uint16
	channels int
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

// WithChannels sets the number of relay channels on the board.
// Valid range is [1, 64]. The default is 8.
func WithChannels(n int) Option {
	return newOptFunc("WithChannels", func(b *Board) error {
		if n < 1 || n > 64 {
			return fmt.Errorf("channel count %d not in range [1, 64]", n)
		}
		b.channels = n

		return nil
	})
}

// WithBaseAddress sets the coil address of channel 0.
// The default is 0.
func WithBaseAddress(addr uint16) Option {
	return newOptFunc("WithBaseAddress", func(b *Board) error {
		b.base = addr

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

// NewBoard creates a relay board driver over the given Modbus client.
func NewBoard(client *modbus.Client, opts ...Option) (*Board, error) {
	if client == nil {
		return nil, errors.New("modbus client is nil")
	}

	b := &Board{
		client:   client,
		log:      logger.GetLogger(),
		channels: 8,
	}

	for _, opt := range opts {
		if err := opt.apply(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Count returns the number of relay channels.
func (b *Board) Count() int {
	return b.channels
}

// On energizes the relay on the given channel.
func (b *Board) On(ctx context.Context, ch int) error {
	return b.set(ctx, ch, true)
}

// Off releases the relay on the given channel.
func (b *Board) Off(ctx context.Context, ch int) error {
	return b.set(ctx, ch, false)
}

// State returns whether the relay on the given channel is energized.
func (b *Board) State(ctx context.Context, ch int) (bool, error) {
	if err := b.checkChannel(ch); err != nil {
		return false, err
	}

	states, err := b.client.ReadCoils(ctx, b.base+uint16(ch), 1)
	if err != nil {
		return false, fmt.Errorf("read relay %d: %w", ch, err)
	}

	return states[0], nil
}

// States returns the state of every relay channel.
func (b *Board) States(ctx context.Context) ([]bool, error) {
	states, err := b.client.ReadCoils(ctx, b.base, b.channels)
	if err != nil {
		return nil, fmt.Errorf("read relay bank: %w", err)
	}

	return states, nil
}

// AllOn energizes every relay in one bank write.
func (b *Board) AllOn(ctx context.Context) error {
	return b.setAll(ctx, true)
}

// AllOff releases every relay in one bank write.
func (b *Board) AllOff(ctx context.Context) error {
	return b.setAll(ctx, false)
}

// GetSwitch returns the given channel as a Switch.
func (b *Board) GetSwitch(ch int) (Switch, error) {
	if err := b.checkChannel(ch); err != nil {
		return nil, err
	}

	return &relay{board: b, ch: ch}, nil
}

// Switches returns every channel as a Switch, ordered by channel number.
func (b *Board) Switches() []Switch {
	out := make([]Switch, b.channels)
	for ch := range out {
		out[ch] = &relay{board: b, ch: ch}
	}

	return out
}

func (b *Board) String() string {
	return fmt.Sprintf("relay board unit %d, %d channels", b.client.Unit(), b.channels)
}

func (b *Board) set(ctx context.Context, ch int, on bool) error {
	if err := b.checkChannel(ch); err != nil {
		return err
	}

	if err := b.client.WriteSingleCoil(ctx, b.base+uint16(ch), on); err != nil {
		return fmt.Errorf("switch relay %d: %w", ch, err)
	}
	b.log.Debug("relay switched", "channel", ch, "on", on)

	return nil
}

func (b *Board) setAll(ctx context.Context, on bool) error {
	values := make([]bool, b.channels)
	for i := range values {
		values[i] = on
	}

	if err := b.client.WriteMultipleCoils(ctx, b.base, values); err != nil {
		return fmt.Errorf("switch relay bank: %w", err)
	}
	b.log.Debug("relay bank switched", "on", on)

	return nil
}

func (b *Board) checkChannel(ch int) error {
	if ch < 0 || ch >= b.channels {
		return fmt.Errorf("%w: %d not in 0..%d", ErrBadChannel, ch, b.channels-1)
	}

	return nil
}

// relay adapts one board channel to the Switch interface.
type relay struct {
	board *Board
	ch    int
}

func (r *relay) TurnOn(ctx context.Context) error  { return r.board.On(ctx, r.ch) }
func (r *relay) TurnOff(ctx context.Context) error { return r.board.Off(ctx, r.ch) }

func (r *relay) State(ctx context.Context) (bool, error) {
	return r.board.State(ctx, r.ch)
}

func (r *relay) String() string {
	return fmt.Sprintf("relay %d", r.ch)
}
