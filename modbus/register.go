package modbus

import (
	"context"
	"fmt"
	"math"
)

// RegisterType identifies the Modbus data table a register lives in.
type RegisterType string

// Modbus data tables.
const (
	Coil          RegisterType = "coil"
	DiscreteInput RegisterType = "discrete"
	InputRegister RegisterType = "input"
	HoldingReg    RegisterType = "holding"
)

// DataType describes how register words encode a value.
type DataType string

// Register value encodings. 32-bit values span two consecutive registers with
// the high word first.
const (
	U16 DataType = "u16"
	S16 DataType = "s16"
	U32 DataType = "u32"
	S32 DataType = "s32"
	F32 DataType = "f32"
)

// Register describes one named value in a device's Modbus data model.
//
// Scale converts between raw register units and engineering units: reads
// multiply by Scale, writes divide. A zero Scale counts as 1.
type Register struct {
	Name    string
	Type    RegisterType
	Address uint16
	Data    DataType
	Scale   float64
}

// Words returns how many 16-bit registers the value spans.
func (r Register) Words() int {
	switch r.Data {
	case U32, S32, F32:
		return 2
	default:
		return 1
	}
}

func (r Register) scale() float64 {
	if r.Scale == 0 {
		return 1
	}

	return r.Scale
}

// ReadRegister reads the register and returns its scaled value.
//
// Coils and discrete inputs read as 0 or 1.
func (c *Client) ReadRegister(ctx context.Context, reg Register) (float64, error) {
	switch reg.Type {
	case Coil, DiscreteInput:
		readFn := c.ReadCoils
		if reg.Type == DiscreteInput {
			readFn = c.ReadDiscreteInputs
		}
		bits, err := readFn(ctx, reg.Address, 1)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", reg.Name, err)
		}
		if bits[0] {
			return 1, nil
		}

		return 0, nil

	case InputRegister, HoldingReg:
		readFn := c.ReadHoldingRegisters
		if reg.Type == InputRegister {
			readFn = c.ReadInputRegisters
		}
		words, err := readFn(ctx, reg.Address, reg.Words())
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", reg.Name, err)
		}

		return decodeWords(reg.Data, words) * reg.scale(), nil

	default:
		return 0, fmt.Errorf("%w: register type %q", ErrRange, reg.Type)
	}
}

// WriteRegister writes the scaled value into the register.
//
// Coils treat any non-zero value as on. Discrete and input tables are read-only.
func (c *Client) WriteRegister(ctx context.Context, reg Register, value float64) error {
	switch reg.Type {
	case Coil:
		if err := c.WriteSingleCoil(ctx, reg.Address, value != 0); err != nil {
			return fmt.Errorf("write %s: %w", reg.Name, err)
		}

		return nil

	case HoldingReg:
		words, err := encodeWords(reg.Data, value/reg.scale())
		if err != nil {
			return fmt.Errorf("write %s: %w", reg.Name, err)
		}

		if len(words) == 1 {
			err = c.WriteSingleRegister(ctx, reg.Address, words[0])
		} else {
			err = c.WriteMultipleRegisters(ctx, reg.Address, words)
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", reg.Name, err)
		}

		return nil

	default:
		return fmt.Errorf("%w: register type %q is not writable", ErrRange, reg.Type)
	}
}

func decodeWords(dt DataType, words []uint16) float64 {
	switch dt {
	case S16:
		return float64(int16(words[0]))
	case U32:
		return float64(uint32(words[0])<<16 | uint32(words[1]))
	case S32:
		return float64(int32(uint32(words[0])<<16 | uint32(words[1]))) //nolint:gosec
	case F32:
		return float64(math.Float32frombits(uint32(words[0])<<16 | uint32(words[1])))
	default:
		return float64(words[0])
	}
}

func encodeWords(dt DataType, value float64) ([]uint16, error) {
	switch dt {
	case U16:
		if value < 0 || value > math.MaxUint16 {
			return nil, fmt.Errorf("%w: value %g does not fit u16", ErrRange, value)
		}

		return []uint16{uint16(value)}, nil

	case S16:
		if value < math.MinInt16 || value > math.MaxInt16 {
			return nil, fmt.Errorf("%w: value %g does not fit s16", ErrRange, value)
		}

		return []uint16{uint16(int16(value))}, nil //nolint:gosec

	case U32:
		if value < 0 || value > math.MaxUint32 {
			return nil, fmt.Errorf("%w: value %g does not fit u32", ErrRange, value)
		}
		raw := uint32(value)

		return []uint16{uint16(raw >> 16), uint16(raw & 0xFFFF)}, nil

	case S32:
		if value < math.MinInt32 || value > math.MaxInt32 {
			return nil, fmt.Errorf("%w: value %g does not fit s32", ErrRange, value)
		}
		raw := uint32(int32(value)) //nolint:gosec

		return []uint16{uint16(raw >> 16), uint16(raw & 0xFFFF)}, nil

	case F32:
		raw := math.Float32bits(float32(value))

		return []uint16{uint16(raw >> 16), uint16(raw & 0xFFFF)}, nil

	default:
		return nil, fmt.Errorf("%w: data type %q", ErrRange, dt)
	}
}
