package netcomm

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumilab/go-labdev/devcomm"
)

// newPipeBackend returns an opened backend whose connection is one end of a
// net.Pipe; the test drives the instrument side through the returned conn.
func newPipeBackend(t *testing.T, opts ...Option) (*Backend, net.Conn) {
	t.Helper()

	opts = append([]Option{WithTimeout(200 * time.Millisecond)}, opts...)
	b, err := New(devcomm.ConnInfo{Kind: devcomm.KindNet, Addr: "127.0.0.1", Port: 5025}, opts...)
	require.NoError(t, err)

	client, server := net.Pipe()
	b.dial = func(context.Context, *Config) (net.Conn, error) { return client, nil }

	require.NoError(t, b.Open(context.Background()))
	t.Cleanup(func() {
		_ = b.Close()
		_ = server.Close()
	})

	return b, server
}

func TestNew_RejectsNonNetKind(t *testing.T) {
	_, err := New(devcomm.ConnInfo{Kind: devcomm.KindSerial, Addr: "COM3"})
	require.ErrorIs(t, err, devcomm.ErrInvalidConn)
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		opts []Option
	}{
		{name: "empty host", host: "", port: 5025},
		{name: "zero port", host: "localhost", port: 0},
		{name: "port too large", host: "localhost", port: 70000},
		{name: "zero timeout", host: "localhost", port: 5025, opts: []Option{WithTimeout(0)}},
		{name: "zero connect timeout", host: "localhost", port: 5025, opts: []Option{WithConnectTimeout(0)}},
		{name: "empty read terminator", host: "localhost", port: 5025, opts: []Option{WithReadTerminators([][]byte{{}})}},
		{name: "nil logger", host: "localhost", port: 5025, opts: []Option{WithLogger(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.host, tt.port, tt.opts...)
			require.Error(t, err)
		})
	}
}

func TestBackend_OpenClose(t *testing.T) {
	b, _ := newPipeBackend(t)

	require.True(t, b.Opened())
	require.Equal(t, devcomm.ConnectedState, b.State())
	require.Equal(t, "net", b.Name())

	err := b.Open(context.Background())
	require.ErrorIs(t, err, devcomm.ErrAlreadyOpened)

	require.NoError(t, b.Close())
	require.False(t, b.Opened())
	require.Equal(t, devcomm.DisconnectedState, b.State())
	require.NoError(t, b.Close())
}

func TestBackend_Write(t *testing.T) {
	b, server := newPipeBackend(t)

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		done <- buf[:n]
	}()

	require.NoError(t, b.Write(context.Background(), []byte("*IDN?")))
	require.Equal(t, []byte("*IDN?\r\n"), <-done)
	require.Equal(t, uint64(7), b.Metrics().BytesWritten.Load())
}

func TestBackend_Ask(t *testing.T) {
	b, server := newPipeBackend(t)

	go func() {
		buf := make([]byte, 64)
		n, _ := server.Read(buf)
		if string(buf[:n]) == "*IDN?\r\n" {
			_, _ = server.Write([]byte("LUMILAB,PSU-300,42,2.1\n"))
		}
	}()

	resp, err := b.Ask(context.Background(), []byte("*IDN?"))
	require.NoError(t, err)
	require.Equal(t, []byte("LUMILAB,PSU-300,42,2.1"), resp)
}

func TestBackend_Read(t *testing.T) {
	b, server := newPipeBackend(t)

	go func() {
		_, _ = server.Write([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	}()

	data, err := b.Read(context.Background(), 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, data)
}

func TestBackend_ReadShort(t *testing.T) {
	b, server := newPipeBackend(t)

	go func() {
		_, _ = server.Write([]byte{0x01})
	}()

	_, err := b.Read(context.Background(), 4)
	require.ErrorIs(t, err, devcomm.ErrShortRead)
	require.Equal(t, uint64(1), b.Metrics().TimeoutCount.Load())
}

func TestBackend_ReadLineTimeout(t *testing.T) {
	b, _ := newPipeBackend(t, WithTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := b.ReadLine(context.Background())
	require.ErrorIs(t, err, devcomm.ErrTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestBackend_ReadUntil(t *testing.T) {
	b, server := newPipeBackend(t)

	go func() {
		_, _ = server.Write([]byte("OK>"))
	}()

	data, err := b.ReadUntil(context.Background(), [][]byte{{'>'}})
	require.NoError(t, err)
	require.Equal(t, []byte("OK>"), data)
}

func TestBackend_ReadAvailable(t *testing.T) {
	b, server := newPipeBackend(t)

	go func() {
		_, _ = server.Write([]byte("stale data"))
	}()
	time.Sleep(20 * time.Millisecond)

	data, err := b.ReadAvailable()
	require.NoError(t, err)
	require.Equal(t, []byte("stale data"), data)

	data, err = b.ReadAvailable()
	require.NoError(t, err)
	require.Empty(t, data)
}

func TestBackend_ClosedOps(t *testing.T) {
	b, _ := newPipeBackend(t)
	require.NoError(t, b.Close())

	_, err := b.Read(context.Background(), 1)
	require.ErrorIs(t, err, devcomm.ErrBackendClosed)
	err = b.Write(context.Background(), []byte("x"))
	require.ErrorIs(t, err, devcomm.ErrBackendClosed)
}

func TestBackend_DialTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	b, err := New(devcomm.ConnInfo{Kind: devcomm.KindNet, Addr: "127.0.0.1", Port: port})
	require.NoError(t, err)

	require.NoError(t, b.Open(context.Background()))
	defer b.Close()

	require.NoError(t, b.Write(context.Background(), []byte("ver")))
	require.Equal(t, []byte("ver\r\n"), <-received)
}

func TestBackend_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	b, err := New(devcomm.ConnInfo{Kind: devcomm.KindNet, Addr: "127.0.0.1", Port: port},
		WithConnectTimeout(500*time.Millisecond),
	)
	require.NoError(t, err)

	require.Error(t, b.Open(context.Background()))
	require.False(t, b.Opened())
	require.Equal(t, devcomm.DisconnectedState, b.State())
}

func TestRegistryConnString(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	}()

	addr := "127.0.0.1:" + strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	backend, err := devcomm.New(context.Background(), addr)
	require.NoError(t, err)
	defer backend.Close()

	require.Equal(t, "net", backend.Name())
	require.True(t, backend.Opened())
}
