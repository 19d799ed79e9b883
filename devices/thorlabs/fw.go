package thorlabs

import (
	"context"
	"fmt"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/scpi"
)

// SpeedMode selects the wheel motion speed.
type SpeedMode string

const (
	SpeedLow  SpeedMode = "low"
	SpeedHigh SpeedMode = "high"
)

// TriggerMode selects the trigger port direction.
type TriggerMode string

const (
	// TriggerIn makes the port accept an external advance trigger.
	TriggerIn TriggerMode = "in"
	// TriggerOut makes the port emit a pulse on each move.
	TriggerOut TriggerMode = "out"
)

// SensorMode controls the position sensors when the wheel is idle.
type SensorMode string

const (
	// SensorsOff turns the sensors off when idle to eliminate stray light.
	SensorsOff SensorMode = "off"
	SensorsOn  SensorMode = "on"
)

// FW drives Thorlabs FW102/FW212 motorized filter wheels.
//
// Positions are 1-based. By default moves that would cross the boundary
// between the first and the last position are routed the long way around
// through two intermediate positions, so mounted fiber patch cords or
// cabling are never wound across the gap.
type FW struct {
	*Interface

	pcount     int
	boundGuard bool
}

// FWOption represents a functional option for configuring an FW.
type FWOption interface {
	apply(*FW) error
}

type fwOptFunc struct {
	name      string
	applyFunc func(*FW) error
}

func (o *fwOptFunc) apply(w *FW) error { return o.applyFunc(w) }

func newFWOptFunc(name string, f func(*FW) error) *fwOptFunc {
	return &fwOptFunc{name: name, applyFunc: f}
}

// WithoutBoundGuard lets moves cross the first/last position boundary
// directly.
func WithoutBoundGuard() FWOption {
	return newFWOptFunc("WithoutBoundGuard", func(w *FW) error {
		w.boundGuard = false

		return nil
	})
}

// NewFW creates a filter wheel driver over the given backend.
func NewFW(backend devcomm.Backend, opts ...FWOption) (*FW, error) {
	iface, err := newInterface(backend, scpi.WithIdentifyQuery("*idn?"))
	if err != nil {
		return nil, err
	}

	w := &FW{Interface: iface, boundGuard: true}
	for _, opt := range opts {
		if err := opt.apply(w); err != nil {
			return nil, err
		}
	}

	return w, nil
}

// Open opens the backend and reads the wheel position count.
func (w *FW) Open(ctx context.Context) error {
	if err := w.Interface.Open(ctx); err != nil {
		return err
	}

	if _, err := w.PositionCount(ctx); err != nil {
		w.Interface.Close()

		return fmt.Errorf("query position count: %w", err)
	}

	return nil
}

// Position returns the current wheel position, starting from 1.
func (w *FW) Position(ctx context.Context) (int, error) {
	return w.askInt(ctx, "pos?")
}

// SetPosition moves the wheel to the given position and returns the position
// read back after the move.
//
// When the bound guard is active and the requested move spans half the wheel
// or more, the move could cross the first/last boundary; it is then routed
// through two intermediate positions instead.
func (w *FW) SetPosition(ctx context.Context, pos int) (int, error) {
	if pos < 1 || pos > w.pcount {
		return 0, fmt.Errorf("%w: position %d not in 1..%d", ErrBadValue, pos, w.pcount)
	}

	if w.boundGuard {
		cur, err := w.Position(ctx)
		if err != nil {
			return 0, err
		}

		if abs(pos-cur) >= w.pcount/2 {
			med1 := (2*cur + pos) / 3
			med2 := (cur + 2*pos) / 3
			for _, p := range []int{med1, med2, pos} {
				if err := w.write(ctx, fmt.Sprintf("pos=%d", p)); err != nil {
					return 0, err
				}
			}

			return w.Position(ctx)
		}
	}

	if err := w.write(ctx, fmt.Sprintf("pos=%d", pos)); err != nil {
		return 0, err
	}

	return w.Position(ctx)
}

// PositionCount returns the number of wheel positions (6 or 12).
func (w *FW) PositionCount(ctx context.Context) (int, error) {
	pcount, err := w.askInt(ctx, "pcount?")
	if err != nil {
		return 0, err
	}
	w.pcount = pcount

	return pcount, nil
}

// SetPositionCount sets the number of wheel positions and returns the count
// read back.
func (w *FW) SetPositionCount(ctx context.Context, pcount int) (int, error) {
	if pcount != 6 && pcount != 12 {
		return 0, fmt.Errorf("%w: position count %d is not 6 or 12", ErrBadValue, pcount)
	}

	if err := w.write(ctx, fmt.Sprintf("pcount=%d", pcount)); err != nil {
		return 0, err
	}

	return w.PositionCount(ctx)
}

// SpeedMode returns the current motion speed mode.
func (w *FW) SpeedMode(ctx context.Context) (SpeedMode, error) {
	v, err := w.askInt(ctx, "speed?")
	if err != nil {
		return "", err
	}

	switch v {
	case 0:
		return SpeedLow, nil
	case 1:
		return SpeedHigh, nil
	default:
		return "", fmt.Errorf("%w: speed mode %d (query \"speed?\")", scpi.ErrResponse, v)
	}
}

// SetSpeedMode sets the motion speed mode and returns the mode read back.
func (w *FW) SetSpeedMode(ctx context.Context, mode SpeedMode) (SpeedMode, error) {
	var v int
	switch mode {
	case SpeedLow:
		v = 0
	case SpeedHigh:
		v = 1
	default:
		return "", fmt.Errorf("%w: speed mode %q", ErrBadValue, mode)
	}

	if err := w.write(ctx, fmt.Sprintf("speed=%d", v)); err != nil {
		return "", err
	}

	return w.SpeedMode(ctx)
}

// TriggerMode returns the current trigger port direction.
func (w *FW) TriggerMode(ctx context.Context) (TriggerMode, error) {
	v, err := w.askInt(ctx, "trig?")
	if err != nil {
		return "", err
	}

	switch v {
	case 0:
		return TriggerIn, nil
	case 1:
		return TriggerOut, nil
	default:
		return "", fmt.Errorf("%w: trigger mode %d (query \"trig?\")", scpi.ErrResponse, v)
	}
}

// SetTriggerMode sets the trigger port direction and returns the mode read
// back.
func (w *FW) SetTriggerMode(ctx context.Context, mode TriggerMode) (TriggerMode, error) {
	var v int
	switch mode {
	case TriggerIn:
		v = 0
	case TriggerOut:
		v = 1
	default:
		return "", fmt.Errorf("%w: trigger mode %q", ErrBadValue, mode)
	}

	if err := w.write(ctx, fmt.Sprintf("trig=%d", v)); err != nil {
		return "", err
	}

	return w.TriggerMode(ctx)
}

// SensorMode returns the current idle sensor mode.
func (w *FW) SensorMode(ctx context.Context) (SensorMode, error) {
	v, err := w.askInt(ctx, "sensors?")
	if err != nil {
		return "", err
	}

	switch v {
	case 0:
		return SensorsOff, nil
	case 1:
		return SensorsOn, nil
	default:
		return "", fmt.Errorf("%w: sensor mode %d (query \"sensors?\")", scpi.ErrResponse, v)
	}
}

// SetSensorMode sets the idle sensor mode and returns the mode read back.
func (w *FW) SetSensorMode(ctx context.Context, mode SensorMode) (SensorMode, error) {
	var v int
	switch mode {
	case SensorsOff:
		v = 0
	case SensorsOn:
		v = 1
	default:
		return "", fmt.Errorf("%w: sensor mode %q", ErrBadValue, mode)
	}

	if err := w.write(ctx, fmt.Sprintf("sensors=%d", v)); err != nil {
		return "", err
	}

	return w.SensorMode(ctx)
}

// SaveSettings stores the current settings as the power-on defaults.
func (w *FW) SaveSettings(ctx context.Context) error {
	return w.write(ctx, "save")
}

func abs(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
