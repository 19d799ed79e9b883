package devcomm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockBackendScript(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	mock := NewMockBackend()
	mock.SetTerminators([][]byte{{'\n'}}, []byte("\r"))

	mock.ExpectString("*IDN?\r", "ACME,WIDGET,1234,1.0\n")

	resp, err := mock.Ask(ctx, []byte("*IDN?"))
	require.NoError(err)
	require.Equal("ACME,WIDGET,1234,1.0", string(resp))
	require.True(mock.ScriptExhausted())

	writes := mock.Writes()
	require.Len(writes, 1)
	require.Equal("*IDN?\r", string(writes[0]))
}

func TestMockBackendReads(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	mock := NewMockBackend()

	t.Run("Sized Read", func(t *testing.T) {
		mock.QueueRead([]byte{0x01, 0x02, 0x03, 0x04})

		data, err := mock.Read(ctx, 3)
		require.NoError(err)
		require.Equal([]byte{0x01, 0x02, 0x03}, data)

		_, err = mock.Read(ctx, 5)
		require.ErrorIs(err, ErrShortRead)
	})

	t.Run("ReadAvailable", func(t *testing.T) {
		rest, err := mock.ReadAvailable()
		require.NoError(err)
		require.Equal([]byte{0x04}, rest)

		empty, err := mock.ReadAvailable()
		require.NoError(err)
		require.Empty(empty)
	})

	t.Run("ReadLine Skips Empty Lines", func(t *testing.T) {
		mock.QueueRead([]byte("\n\nvalue\n"))
		line, err := mock.ReadLine(ctx)
		require.NoError(err)
		require.Equal("value", string(line))
	})

	t.Run("ReadUntil Keeps Terminator", func(t *testing.T) {
		mock.QueueRead([]byte("abc>"))
		data, err := mock.ReadUntil(ctx, [][]byte{{'>'}})
		require.NoError(err)
		require.Equal("abc>", string(data))
	})
}

func TestMockBackendClosed(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	mock := NewMockBackend()
	require.NoError(mock.Close())
	require.False(mock.Opened())

	_, err := mock.Read(ctx, 1)
	require.ErrorIs(err, ErrBackendClosed)
	require.ErrorIs(mock.Write(ctx, []byte("x")), ErrBackendClosed)

	require.NoError(mock.Open(ctx))
	require.True(mock.Opened())
	require.ErrorIs(mock.Open(ctx), ErrAlreadyOpened)
}
