package netcomm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/logger"
)

func init() {
	devcomm.Register(devcomm.KindNet, devcomm.Driver{
		New: func(info devcomm.ConnInfo) (devcomm.Backend, error) {
			return New(info)
		},
	})
}

// Backend is a devcomm.Backend over a TCP connection.
//
// All I/O operations are serialized by an internal mutex, so a Backend is safe
// for concurrent use.
type Backend struct {
	cfg  *Config
	info devcomm.ConnInfo
	addr string
	log  logger.Logger

	opState  devcomm.AtomicOpState
	stateMgr *devcomm.ConnStateMgr
	metrics  devcomm.Metrics
	timeout  atomic.Int64

	cooldowns devcomm.Cooldowns
	termRead  [][]byte
	termWrite []byte

	mu   sync.Mutex
	conn net.Conn
	dial dialFunc
}

var _ devcomm.Backend = (*Backend)(nil)

type dialFunc func(ctx context.Context, cfg *Config) (net.Conn, error)

func dialTCP(ctx context.Context, cfg *Config) (net.Conn, error) {
	addr := net.JoinHostPort(cfg.Host(), strconv.Itoa(cfg.Port()))
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout()}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok && cfg.NoDelay() {
		_ = tcpConn.SetNoDelay(true)
	}

	return conn, nil
}

// New creates an unopened network backend for the parsed connection parameters.
//
// The info must carry devcomm.KindNet; its Addr and Port identify the instrument.
func New(info devcomm.ConnInfo, opts ...Option) (*Backend, error) {
	if info.Kind != devcomm.KindNet {
		return nil, fmt.Errorf("%w: kind %q is not %q", devcomm.ErrInvalidConn, info.Kind, devcomm.KindNet)
	}

	cfg, err := NewConfig(info.Addr, info.Port, opts...)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		cfg:       cfg,
		info:      info,
		addr:      net.JoinHostPort(cfg.Host(), strconv.Itoa(cfg.Port())),
		log:       cfg.Logger(),
		cooldowns: cfg.Cooldowns(),
		termRead:  cfg.ReadTerminators(),
		termWrite: cfg.WriteTerminator(),
		dial:      dialTCP,
	}
	b.timeout.Store(int64(cfg.Timeout()))
	b.stateMgr = devcomm.NewConnStateMgr(context.Background(), b, b.log)

	return b, nil
}

// Open dials the instrument.
func (b *Backend) Open(ctx context.Context) error {
	if !b.opState.ToOpening() {
		if b.opState.IsOpened() {
			return devcomm.ErrAlreadyOpened
		}

		return fmt.Errorf("open network backend in %s state", b.opState.String())
	}

	_ = b.stateMgr.ToConnecting()

	conn, err := b.dial(ctx, b.cfg)
	if err != nil {
		b.opState.Set(devcomm.ClosedState)
		b.stateMgr.ToDisconnected()

		return err
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	b.opState.ToOpened()
	_ = b.stateMgr.ToConnected()
	b.log.Debug("network backend opened", "addr", b.addr)
	b.cooldowns.Sleep(devcomm.OpOpen)

	return nil
}

// Close closes the connection. Closing a closed backend is a no-op.
func (b *Backend) Close() error {
	if !b.opState.ToClosing() {
		return nil
	}

	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}

	b.opState.ToClosed()
	b.stateMgr.ToDisconnected()
	b.log.Debug("network backend closed", "addr", b.addr)
	b.cooldowns.Sleep(devcomm.OpClose)

	if err != nil {
		return fmt.Errorf("close connection to %s: %w", b.addr, err)
	}

	return nil
}

// Opened reports whether the backend is currently open.
func (b *Backend) Opened() bool {
	return b.opState.IsOpened()
}

// Read reads exactly n bytes from the instrument, honoring the context deadline
// or the default timeout.
func (b *Backend) Read(ctx context.Context, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.lockedConn()
	if err != nil {
		return nil, err
	}

	deadline := b.deadline(ctx)
	buf := make([]byte, n)
	got := 0

	for got < n {
		if err := ctx.Err(); err != nil {
			b.metrics.AddReadErr()
			return buf[:got], err
		}

		if err := conn.SetReadDeadline(deadline); err != nil {
			b.metrics.AddReadErr()
			return buf[:got], fmt.Errorf("set read deadline: %w", err)
		}

		k, err := conn.Read(buf[got:])
		got += k
		if err != nil {
			if isTimeout(err) {
				b.metrics.AddTimeout()
				return buf[:got], fmt.Errorf("%w: %d of %d bytes", devcomm.ErrShortRead, got, n)
			}
			b.metrics.AddReadErr()

			return buf[:got], fmt.Errorf("read from %s: %w", b.addr, err)
		}
	}

	b.metrics.AddRead(n)
	b.cooldowns.Sleep(devcomm.OpRead)

	return buf, nil
}

// ReadAvailable drains data already buffered on the socket without waiting.
func (b *Backend) ReadAvailable() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.lockedConn()
	if err != nil {
		return nil, err
	}

	var result []byte
	buf := make([]byte, 256)
	for {
		// A 1ms deadline makes a drained socket report promptly without busy-reading.
		if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return result, fmt.Errorf("set read deadline: %w", err)
		}

		k, err := conn.Read(buf)
		result = append(result, buf[:k]...)
		if err != nil {
			if isTimeout(err) {
				break
			}
			b.metrics.AddReadErr()

			return result, fmt.Errorf("read from %s: %w", b.addr, err)
		}
	}

	if len(result) > 0 {
		b.metrics.AddRead(len(result))
	}

	return result, nil
}

// ReadLine reads a single line terminated by any configured read terminator,
// strips the terminator, and skips empty lines.
func (b *Backend) ReadLine(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.lockedConn()
	if err != nil {
		return nil, err
	}

	line, err := devcomm.ReadTrimmedLine(ctx, b.chunkReader(conn, b.deadline(ctx)), b.termRead)
	if err != nil {
		b.countReadErr(err)
		return nil, err
	}

	b.metrics.AddRead(len(line))
	b.cooldowns.Sleep(devcomm.OpRead)

	return line, nil
}

// ReadUntil reads until any of the given terminators is seen; the result
// includes the terminator.
func (b *Backend) ReadUntil(ctx context.Context, terms [][]byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.lockedConn()
	if err != nil {
		return nil, err
	}

	data, err := devcomm.ReadTermed(ctx, b.chunkReader(conn, b.deadline(ctx)), terms, true)
	if err != nil {
		b.countReadErr(err)
		return data, err
	}

	b.metrics.AddRead(len(data))
	b.cooldowns.Sleep(devcomm.OpRead)

	return data, nil
}

// Write writes data to the instrument with the configured write terminator appended.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.lockedConn()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := conn.SetWriteDeadline(b.deadline(ctx)); err != nil {
		b.metrics.AddWriteErr()
		return fmt.Errorf("set write deadline: %w", err)
	}

	payload := devcomm.AppendTerm(data, b.termWrite)
	if _, err := conn.Write(payload); err != nil {
		b.metrics.AddWriteErr()
		if isTimeout(err) {
			return fmt.Errorf("%w: write to %s", devcomm.ErrTimeout, b.addr)
		}

		return fmt.Errorf("write to %s: %w", b.addr, err)
	}

	b.metrics.AddWrite(len(payload))
	b.cooldowns.Sleep(devcomm.OpWrite)

	return nil
}

// Ask writes the query and returns the next non-empty response line.
func (b *Backend) Ask(ctx context.Context, query []byte) ([]byte, error) {
	if err := b.Write(ctx, query); err != nil {
		return nil, err
	}

	return b.ReadLine(ctx)
}

// SetTimeout sets the default timeout applied to operations whose context
// carries no deadline.
func (b *Backend) SetTimeout(d time.Duration) {
	b.timeout.Store(int64(d))
}

// Timeout returns the current default operation timeout.
func (b *Backend) Timeout() time.Duration {
	return time.Duration(b.timeout.Load())
}

// Name returns the transport kind name.
func (b *Backend) Name() string {
	return string(devcomm.KindNet)
}

// ConnInfo returns the parsed connection parameters of the backend.
func (b *Backend) ConnInfo() devcomm.ConnInfo {
	return b.info
}

// State returns the current connection state.
func (b *Backend) State() devcomm.ConnState {
	return b.stateMgr.State()
}

// OnStateChange registers handlers invoked on connection state transitions.
func (b *Backend) OnStateChange(handlers ...devcomm.ConnStateChangeHandler) {
	b.stateMgr.AddHandler(handlers...)
}

// Metrics returns the transfer counters of the backend.
func (b *Backend) Metrics() *devcomm.Metrics {
	return &b.metrics
}

func (b *Backend) lockedConn() (net.Conn, error) {
	if !b.opState.IsOpened() || b.conn == nil {
		return nil, devcomm.ErrBackendClosed
	}

	return b.conn, nil
}

func (b *Backend) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}

	return time.Now().Add(b.Timeout())
}

// chunkReader adapts the connection into a devcomm.ChunkReader that reports a
// timed-out poll once the deadline passes.
func (b *Backend) chunkReader(conn net.Conn, deadline time.Time) devcomm.ChunkReader {
	return func(_ context.Context, buf []byte) (int, error) {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return 0, fmt.Errorf("set read deadline: %w", err)
		}

		k, err := conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return k, nil
			}

			return k, fmt.Errorf("read from %s: %w", b.addr, err)
		}

		return k, nil
	}
}

func (b *Backend) countReadErr(err error) {
	if errors.Is(err, devcomm.ErrTimeout) {
		b.metrics.AddTimeout()
	} else {
		b.metrics.AddReadErr()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
