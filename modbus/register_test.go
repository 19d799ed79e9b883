package modbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeWords(t *testing.T) {
	tests := []struct {
		name  string
		dt    DataType
		words []uint16
		want  float64
	}{
		{name: "u16", dt: U16, words: []uint16{0x0102}, want: 258},
		{name: "s16 negative", dt: S16, words: []uint16{0xFFFE}, want: -2},
		{name: "u32", dt: U32, words: []uint16{0x0001, 0x0000}, want: 65536},
		{name: "s32 negative", dt: S32, words: []uint16{0xFFFF, 0xFFFF}, want: -1},
		{name: "f32", dt: F32, words: []uint16{0x42F6, 0xE979}, want: 123.456},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, decodeWords(tt.dt, tt.words), 1e-3)
		})
	}
}

func TestEncodeWords(t *testing.T) {
	words, err := encodeWords(U16, 258)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x0102}, words)

	words, err = encodeWords(S16, -2)
	require.NoError(t, err)
	require.Equal(t, []uint16{0xFFFE}, words)

	words, err = encodeWords(S32, -1)
	require.NoError(t, err)
	require.Equal(t, []uint16{0xFFFF, 0xFFFF}, words)

	words, err = encodeWords(F32, 1.0)
	require.NoError(t, err)
	require.Equal(t, []uint16{0x3F80, 0x0000}, words)

	_, err = encodeWords(U16, -1)
	require.ErrorIs(t, err, ErrRange)
	_, err = encodeWords(S16, 1e6)
	require.ErrorIs(t, err, ErrRange)
	_, err = encodeWords(DataType("u64"), 0)
	require.ErrorIs(t, err, ErrRange)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, dt := range []DataType{U16, S16, U32, S32, F32} {
		words, err := encodeWords(dt, 100)
		require.NoError(t, err)
		require.InDelta(t, 100.0, decodeWords(dt, words), 1e-6)
	}
}

func TestReadRegister_Holding(t *testing.T) {
	c, mock := newRTUClient(t, 1)

	// temperature register scaled by 0.1: raw 0x0102 = 258 reads as 25.8
	reg := Register{Name: "temperature", Type: HoldingReg, Address: 0x0005, Data: U16, Scale: 0.1}

	req := encodeRTU(1, PDU{Function: FuncReadHoldingRegisters, Data: []byte{0x00, 0x05, 0x00, 0x01}})
	resp := encodeRTU(1, PDU{Function: FuncReadHoldingRegisters, Data: []byte{0x02, 0x01, 0x02}})
	mock.Expect(req, resp)

	value, err := c.ReadRegister(context.Background(), reg)
	require.NoError(t, err)
	require.InDelta(t, 25.8, value, 1e-9)
}

func TestReadRegister_F32SpansTwoWords(t *testing.T) {
	c, mock := newRTUClient(t, 1)

	reg := Register{Name: "flow", Type: InputRegister, Address: 0x0000, Data: F32}
	require.Equal(t, 2, reg.Words())

	req := encodeRTU(1, PDU{Function: FuncReadInputRegisters, Data: []byte{0x00, 0x00, 0x00, 0x02}})
	resp := encodeRTU(1, PDU{Function: FuncReadInputRegisters, Data: []byte{0x04, 0x42, 0xF6, 0xE9, 0x79}})
	mock.Expect(req, resp)

	value, err := c.ReadRegister(context.Background(), reg)
	require.NoError(t, err)
	require.InDelta(t, 123.456, value, 1e-3)
}

func TestReadRegister_Coil(t *testing.T) {
	c, mock := newRTUClient(t, 1)

	reg := Register{Name: "pump", Type: Coil, Address: 0x0003}

	req := encodeRTU(1, PDU{Function: FuncReadCoils, Data: []byte{0x00, 0x03, 0x00, 0x01}})
	resp := encodeRTU(1, PDU{Function: FuncReadCoils, Data: []byte{0x01, 0x01}})
	mock.Expect(req, resp)

	value, err := c.ReadRegister(context.Background(), reg)
	require.NoError(t, err)
	require.Equal(t, 1.0, value)
}

func TestWriteRegister_Holding(t *testing.T) {
	c, mock := newRTUClient(t, 1)

	// setpoint scaled by 0.1: writing 25.8 sends raw 258
	reg := Register{Name: "setpoint", Type: HoldingReg, Address: 0x0010, Data: U16, Scale: 0.1}

	req := encodeRTU(1, PDU{Function: FuncWriteSingleRegister, Data: []byte{0x00, 0x10, 0x01, 0x02}})
	mock.Expect(req, req)

	require.NoError(t, c.WriteRegister(context.Background(), reg, 25.8))
}

func TestWriteRegister_F32(t *testing.T) {
	c, mock := newRTUClient(t, 1)

	reg := Register{Name: "target", Type: HoldingReg, Address: 0x0000, Data: F32}

	req := encodeRTU(1, PDU{
		Function: FuncWriteMultipleRegisters,
		Data:     []byte{0x00, 0x00, 0x00, 0x02, 0x04, 0x3F, 0x80, 0x00, 0x00},
	})
	ack := encodeRTU(1, PDU{Function: FuncWriteMultipleRegisters, Data: []byte{0x00, 0x00, 0x00, 0x02}})
	mock.Expect(req, ack)

	require.NoError(t, c.WriteRegister(context.Background(), reg, 1.0))
}

func TestWriteRegister_Coil(t *testing.T) {
	c, mock := newRTUClient(t, 1)

	reg := Register{Name: "valve", Type: Coil, Address: 0x0001}

	req := encodeRTU(1, PDU{Function: FuncWriteSingleCoil, Data: []byte{0x00, 0x01, 0xFF, 0x00}})
	mock.Expect(req, req)

	require.NoError(t, c.WriteRegister(context.Background(), reg, 1))
}

func TestWriteRegister_ReadOnlyTables(t *testing.T) {
	c, _ := newRTUClient(t, 1)

	err := c.WriteRegister(context.Background(), Register{Name: "in", Type: DiscreteInput}, 1)
	require.ErrorIs(t, err, ErrRange)
	err = c.WriteRegister(context.Background(), Register{Name: "meas", Type: InputRegister, Data: U16}, 1)
	require.ErrorIs(t, err, ErrRange)
}
