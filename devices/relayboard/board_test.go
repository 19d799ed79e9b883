package relayboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/modbus"
)

func newTestBoard(t *testing.T, opts ...Option) (*Board, *devcomm.MockBackend) {
	t.Helper()

	mock := devcomm.NewMockBackend()
	client, err := modbus.NewClient(mock, modbus.WithFraming(modbus.FramingRTU))
	require.NoError(t, err)

	board, err := NewBoard(client, opts...)
	require.NoError(t, err)

	return board, mock
}

func TestNewBoard_Validation(t *testing.T) {
	_, err := NewBoard(nil)
	require.Error(t, err)

	board, _ := newTestBoard(t)
	require.Equal(t, 8, board.Count())

	client, err := modbus.NewClient(devcomm.NewMockBackend())
	require.NoError(t, err)

	_, err = NewBoard(client, WithChannels(0))
	require.Error(t, err)
	_, err = NewBoard(client, WithChannels(65))
	require.Error(t, err)
	_, err = NewBoard(client, WithLogger(nil))
	require.Error(t, err)
}

func TestBoard_OnOff(t *testing.T) {
	board, mock := newTestBoard(t)

	mock.Expect(
		[]byte{0x01, 0x05, 0x00, 0x03, 0xFF, 0x00, 0x7C, 0x3A},
		[]byte{0x01, 0x05, 0x00, 0x03, 0xFF, 0x00, 0x7C, 0x3A},
	)
	require.NoError(t, board.On(context.Background(), 3))

	mock.Expect(
		[]byte{0x01, 0x05, 0x00, 0x03, 0x00, 0x00, 0x3D, 0xCA},
		[]byte{0x01, 0x05, 0x00, 0x03, 0x00, 0x00, 0x3D, 0xCA},
	)
	require.NoError(t, board.Off(context.Background(), 3))

	require.True(t, mock.ScriptExhausted())
}

func TestBoard_State(t *testing.T) {
	board, mock := newTestBoard(t)

	mock.Expect(
		[]byte{0x01, 0x01, 0x00, 0x02, 0x00, 0x01, 0x5C, 0x0A},
		[]byte{0x01, 0x01, 0x01, 0x01, 0x90, 0x48},
	)

	on, err := board.State(context.Background(), 2)
	require.NoError(t, err)
	require.True(t, on)
}

func TestBoard_States(t *testing.T) {
	board, mock := newTestBoard(t)

	// coil byte 0xA5: channels 0, 2, 5 and 7 energized
	mock.Expect(
		[]byte{0x01, 0x01, 0x00, 0x00, 0x00, 0x08, 0x3D, 0xCC},
		[]byte{0x01, 0x01, 0x01, 0xA5, 0x91, 0xF3},
	)

	states, err := board.States(context.Background())
	require.NoError(t, err)
	require.Equal(t, []bool{true, false, true, false, false, true, false, true}, states)
}

func TestBoard_AllOnAllOff(t *testing.T) {
	board, mock := newTestBoard(t)

	mock.Expect(
		[]byte{0x01, 0x0F, 0x00, 0x00, 0x00, 0x08, 0x01, 0xFF, 0xBE, 0xD5},
		[]byte{0x01, 0x0F, 0x00, 0x00, 0x00, 0x08, 0x54, 0x0D},
	)
	require.NoError(t, board.AllOn(context.Background()))

	mock.Expect(
		[]byte{0x01, 0x0F, 0x00, 0x00, 0x00, 0x08, 0x01, 0x00, 0xFE, 0x95},
		[]byte{0x01, 0x0F, 0x00, 0x00, 0x00, 0x08, 0x54, 0x0D},
	)
	require.NoError(t, board.AllOff(context.Background()))

	require.True(t, mock.ScriptExhausted())
}

func TestBoard_BaseAddress(t *testing.T) {
	board, mock := newTestBoard(t, WithBaseAddress(0x10))

	mock.Expect(
		[]byte{0x01, 0x05, 0x00, 0x11, 0xFF, 0x00, 0xDC, 0x3F},
		[]byte{0x01, 0x05, 0x00, 0x11, 0xFF, 0x00, 0xDC, 0x3F},
	)
	require.NoError(t, board.On(context.Background(), 1))
}

func TestBoard_ChannelRange(t *testing.T) {
	board, _ := newTestBoard(t, WithChannels(4))

	require.ErrorIs(t, board.On(context.Background(), 4), ErrBadChannel)
	require.ErrorIs(t, board.Off(context.Background(), -1), ErrBadChannel)

	_, err := board.State(context.Background(), 99)
	require.ErrorIs(t, err, ErrBadChannel)

	_, err = board.GetSwitch(4)
	require.ErrorIs(t, err, ErrBadChannel)
}

func TestBoard_Switches(t *testing.T) {
	board, mock := newTestBoard(t, WithChannels(4))

	switches := board.Switches()
	require.Len(t, switches, 4)
	require.Equal(t, "relay 2", switches[2].String())

	sw, err := board.GetSwitch(3)
	require.NoError(t, err)

	mock.Expect(
		[]byte{0x01, 0x05, 0x00, 0x03, 0xFF, 0x00, 0x7C, 0x3A},
		[]byte{0x01, 0x05, 0x00, 0x03, 0xFF, 0x00, 0x7C, 0x3A},
	)
	require.NoError(t, sw.TurnOn(context.Background()))

	mock.Expect(
		[]byte{0x01, 0x05, 0x00, 0x03, 0x00, 0x00, 0x3D, 0xCA},
		[]byte{0x01, 0x05, 0x00, 0x03, 0x00, 0x00, 0x3D, 0xCA},
	)
	require.NoError(t, sw.TurnOff(context.Background()))
}

func TestBoard_String(t *testing.T) {
	board, _ := newTestBoard(t, WithChannels(16))

	require.Equal(t, "relay board unit 1, 16 channels", board.String())
}
