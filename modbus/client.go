package modbus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/logger"
)

// Framing selects the Modbus frame encoding.
type Framing uint8

// Frame encodings.
const (
	// FramingAuto picks TCP framing for network backends and RTU otherwise.
	FramingAuto Framing = iota
	FramingRTU
	FramingTCP
)

// Client is a Modbus master speaking to one unit over a devcomm backend.
//
// Requests are serialized by an internal mutex; Modbus is strictly
// request/response, so only one exchange is in flight at a time.
type Client struct {
	backend devcomm.Backend
	framing Framing
	unit    uint8
	txn     atomic.Uint32
	log     logger.Logger

	mu sync.Mutex
}

// Option represents a functional option for configuring a Client.
type Option interface {
	apply(*Client) error
}

type optFunc struct {
	name      string
	applyFunc func(*Client) error
}

func (o *optFunc) apply(c *Client) error { return o.applyFunc(c) }

func newOptFunc(name string, f func(*Client) error) *optFunc {
	return &optFunc{name: name, applyFunc: f}
}

// WithUnitID sets the unit (slave) address the client talks to.
// An error is returned if the address is above 247.
//
// The default value is 1.
func WithUnitID(unit int) Option {
	return newOptFunc("WithUnitID", func(c *Client) error {
		if unit < 0 || unit > 247 {
			return fmt.Errorf("unit id %d is out of range [0, 247]", unit)
		}
		c.unit = uint8(unit)

		return nil
	})
}

// WithFraming overrides the automatic frame encoding selection.
func WithFraming(framing Framing) Option {
	return newOptFunc("WithFraming", func(c *Client) error {
		if framing > FramingTCP {
			return fmt.Errorf("unknown framing %d", framing)
		}
		c.framing = framing

		return nil
	})
}

// WithLogger sets the logger used by the client.
// An error is returned if the logger is nil.
func WithLogger(l logger.Logger) Option {
	return newOptFunc("WithLogger", func(c *Client) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		c.log = l

		return nil
	})
}

// NewClient creates a Modbus client over the given backend.
//
// The backend must be configured without a write terminator. With FramingAuto
// the encoding follows the transport: MBAP framing on network backends, RTU
// elsewhere.
func NewClient(backend devcomm.Backend, opts ...Option) (*Client, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}

	c := &Client{
		backend: backend,
		framing: FramingAuto,
		unit:    1,
		log:     logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(c); err != nil {
			return nil, err
		}
	}

	if c.framing == FramingAuto {
		if backend.Name() == string(devcomm.KindNet) {
			c.framing = FramingTCP
		} else {
			c.framing = FramingRTU
		}
	}

	return c, nil
}

// Unit returns the unit (slave) address the client talks to.
func (c *Client) Unit() uint8 {
	return c.unit
}

// ReadCoils reads count coil states starting at addr.
func (c *Client) ReadCoils(ctx context.Context, addr uint16, count int) ([]bool, error) {
	return c.readBits(ctx, FuncReadCoils, addr, count)
}

// ReadDiscreteInputs reads count discrete input states starting at addr.
func (c *Client) ReadDiscreteInputs(ctx context.Context, addr uint16, count int) ([]bool, error) {
	return c.readBits(ctx, FuncReadDiscreteInputs, addr, count)
}

// ReadHoldingRegisters reads count holding registers starting at addr.
func (c *Client) ReadHoldingRegisters(ctx context.Context, addr uint16, count int) ([]uint16, error) {
	return c.readWords(ctx, FuncReadHoldingRegisters, addr, count)
}

// ReadInputRegisters reads count input registers starting at addr.
func (c *Client) ReadInputRegisters(ctx context.Context, addr uint16, count int) ([]uint16, error) {
	return c.readWords(ctx, FuncReadInputRegisters, addr, count)
}

// WriteSingleCoil sets the coil at addr on or off.
func (c *Client) WriteSingleCoil(ctx context.Context, addr uint16, on bool) error {
	value := uint16(0x0000)
	if on {
		value = 0xFF00
	}

	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return c.writeEcho(ctx, PDU{Function: FuncWriteSingleCoil, Data: data})
}

// WriteSingleRegister writes value into the holding register at addr.
func (c *Client) WriteSingleRegister(ctx context.Context, addr, value uint16) error {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], value)

	return c.writeEcho(ctx, PDU{Function: FuncWriteSingleRegister, Data: data})
}

// WriteMultipleCoils sets a run of coils starting at addr.
func (c *Client) WriteMultipleCoils(ctx context.Context, addr uint16, values []bool) error {
	if len(values) == 0 || len(values) > MaxWriteBits {
		return fmt.Errorf("%w: %d coils (max %d)", ErrRange, len(values), MaxWriteBits)
	}

	packed := packBits(values)
	data := make([]byte, 5, 5+len(packed))
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values))) //nolint:gosec
	data[4] = byte(len(packed))
	data = append(data, packed...)

	return c.writeAck(ctx, PDU{Function: FuncWriteMultipleCoils, Data: data}, addr, uint16(len(values))) //nolint:gosec
}

// WriteMultipleRegisters writes a run of holding registers starting at addr.
func (c *Client) WriteMultipleRegisters(ctx context.Context, addr uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return fmt.Errorf("%w: %d registers (max %d)", ErrRange, len(values), MaxWriteRegisters)
	}

	data := make([]byte, 5, 5+2*len(values))
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], uint16(len(values))) //nolint:gosec
	data[4] = byte(2 * len(values))
	for _, v := range values {
		data = append(data, byte(v>>8), byte(v&0xFF))
	}

	return c.writeAck(ctx, PDU{Function: FuncWriteMultipleRegisters, Data: data}, addr, uint16(len(values))) //nolint:gosec
}

func (c *Client) readBits(ctx context.Context, fn FunctionCode, addr uint16, count int) ([]bool, error) {
	if count < 1 || count > MaxReadBits {
		return nil, fmt.Errorf("%w: %d bits (max %d)", ErrRange, count, MaxReadBits)
	}

	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], uint16(count)) //nolint:gosec

	resp, err := c.roundTrip(ctx, PDU{Function: fn, Data: data})
	if err != nil {
		return nil, err
	}

	wantBytes := (count + 7) / 8
	if len(resp.Data) < 1 || int(resp.Data[0]) != wantBytes || len(resp.Data) != 1+wantBytes {
		return nil, fmt.Errorf("%w: bit response of %d bytes, want %d", ErrFrame, len(resp.Data), 1+wantBytes)
	}

	return unpackBits(resp.Data[1:], count), nil
}

func (c *Client) readWords(ctx context.Context, fn FunctionCode, addr uint16, count int) ([]uint16, error) {
	if count < 1 || count > MaxReadRegisters {
		return nil, fmt.Errorf("%w: %d registers (max %d)", ErrRange, count, MaxReadRegisters)
	}

	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], addr)
	binary.BigEndian.PutUint16(data[2:4], uint16(count)) //nolint:gosec

	resp, err := c.roundTrip(ctx, PDU{Function: fn, Data: data})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) < 1 || int(resp.Data[0]) != 2*count || len(resp.Data) != 1+2*count {
		return nil, fmt.Errorf("%w: register response of %d bytes, want %d", ErrFrame, len(resp.Data), 1+2*count)
	}

	words := make([]uint16, count)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(resp.Data[1+2*i:])
	}

	return words, nil
}

// writeEcho handles functions whose normal response echoes the request PDU.
func (c *Client) writeEcho(ctx context.Context, req PDU) error {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}

	if !bytes.Equal(resp.Data, req.Data) {
		return fmt.Errorf("%w: write response does not echo request", ErrFrame)
	}

	return nil
}

// writeAck handles multiple-write functions whose response echoes the starting
// address and the item count.
func (c *Client) writeAck(ctx context.Context, req PDU, addr, count uint16) error {
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return err
	}

	if len(resp.Data) != 4 ||
		binary.BigEndian.Uint16(resp.Data[0:2]) != addr ||
		binary.BigEndian.Uint16(resp.Data[2:4]) != count {
		return fmt.Errorf("%w: unexpected write acknowledgment", ErrFrame)
	}

	return nil
}

func (c *Client) roundTrip(ctx context.Context, req PDU) (PDU, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.framing == FramingTCP {
		return c.tcpRoundTrip(ctx, req)
	}

	return c.rtuRoundTrip(ctx, req)
}

func (c *Client) rtuRoundTrip(ctx context.Context, req PDU) (PDU, error) {
	if err := c.backend.Write(ctx, encodeRTU(c.unit, req)); err != nil {
		return PDU{}, fmt.Errorf("write rtu request: %w", err)
	}

	frame, err := c.backend.Read(ctx, 2) // unit + function
	if err != nil {
		return PDU{}, fmt.Errorf("read rtu response: %w", err)
	}

	fn := FunctionCode(frame[1])
	switch {
	case uint8(fn)&exceptionFlag != 0:
		rest, err := c.backend.Read(ctx, 3) // exception code + crc
		if err != nil {
			return PDU{}, fmt.Errorf("read rtu exception: %w", err)
		}
		frame = append(frame, rest...)

	case fn == FuncReadCoils, fn == FuncReadDiscreteInputs,
		fn == FuncReadHoldingRegisters, fn == FuncReadInputRegisters:
		cnt, err := c.backend.Read(ctx, 1)
		if err != nil {
			return PDU{}, fmt.Errorf("read rtu byte count: %w", err)
		}
		frame = append(frame, cnt...)

		rest, err := c.backend.Read(ctx, int(cnt[0])+2)
		if err != nil {
			return PDU{}, fmt.Errorf("read rtu payload: %w", err)
		}
		frame = append(frame, rest...)

	case fn == FuncWriteSingleCoil, fn == FuncWriteSingleRegister,
		fn == FuncWriteMultipleCoils, fn == FuncWriteMultipleRegisters:
		rest, err := c.backend.Read(ctx, 6) // 4 data bytes + crc
		if err != nil {
			return PDU{}, fmt.Errorf("read rtu payload: %w", err)
		}
		frame = append(frame, rest...)

	default:
		return PDU{}, fmt.Errorf("%w: unexpected function 0x%02x", ErrFrame, uint8(fn))
	}

	unit, pdu, err := decodeRTU(frame)
	if err != nil {
		return PDU{}, err
	}
	if unit != c.unit {
		return PDU{}, fmt.Errorf("%w: response from unit %d, want %d", ErrFrame, unit, c.unit)
	}

	return c.checkResponse(req, pdu)
}

func (c *Client) tcpRoundTrip(ctx context.Context, req PDU) (PDU, error) {
	txn := uint16(c.txn.Add(1)) //nolint:gosec

	if err := c.backend.Write(ctx, encodeTCP(txn, c.unit, req)); err != nil {
		return PDU{}, fmt.Errorf("write tcp request: %w", err)
	}

	hdr, err := c.backend.Read(ctx, mbapHeaderLen)
	if err != nil {
		return PDU{}, fmt.Errorf("read mbap header: %w", err)
	}

	respTxn, unit, remaining, err := decodeMBAP(hdr)
	if err != nil {
		return PDU{}, err
	}

	body, err := c.backend.Read(ctx, remaining)
	if err != nil {
		return PDU{}, fmt.Errorf("read tcp payload: %w", err)
	}

	if respTxn != txn {
		return PDU{}, fmt.Errorf("%w: transaction id %d, want %d", ErrFrame, respTxn, txn)
	}
	if unit != c.unit {
		return PDU{}, fmt.Errorf("%w: response from unit %d, want %d", ErrFrame, unit, c.unit)
	}

	return c.checkResponse(req, PDU{Function: FunctionCode(body[0]), Data: body[1:]})
}

func (c *Client) checkResponse(req, resp PDU) (PDU, error) {
	if uint8(resp.Function)&exceptionFlag != 0 {
		excErr := &ExceptionError{Function: resp.Function &^ exceptionFlag}
		if len(resp.Data) > 0 {
			excErr.Code = ExceptionCode(resp.Data[0])
		}
		c.log.Debug("modbus exception response", "function", uint8(excErr.Function), "code", excErr.Code.String())

		return PDU{}, excErr
	}

	if resp.Function != req.Function {
		return PDU{}, fmt.Errorf("%w: response function 0x%02x for request 0x%02x",
			ErrFrame, uint8(resp.Function), uint8(req.Function))
	}

	return resp, nil
}

// packBits packs coil states LSB-first into bytes, per the Modbus bit layout.
func packBits(values []bool) []byte {
	packed := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			packed[i/8] |= 1 << (i % 8)
		}
	}

	return packed
}

func unpackBits(packed []byte, count int) []bool {
	values := make([]bool, count)
	for i := range values {
		values[i] = packed[i/8]&(1<<(i%8)) != 0
	}

	return values
}
