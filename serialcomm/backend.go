package serialcomm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/internal/pool"
	"github.com/lumilab/go-labdev/logger"
)

func init() {
	devcomm.Register(devcomm.KindSerial, devcomm.Driver{
		New: func(info devcomm.ConnInfo) (devcomm.Backend, error) {
			return New(info)
		},
		List: ListPorts,
	})
}

// Backend is a devcomm.Backend over a local serial port.
//
// All I/O operations are serialized by an internal mutex, so a Backend is safe
// for concurrent use, although interleaving queries from multiple goroutines on
// a line-oriented instrument rarely makes sense.
type Backend struct {
	cfg  *Config
	info devcomm.ConnInfo
	log  logger.Logger

	opState  devcomm.AtomicOpState
	stateMgr *devcomm.ConnStateMgr
	metrics  devcomm.Metrics
	timeout  atomic.Int64

	cooldowns devcomm.Cooldowns
	termRead  [][]byte
	termWrite []byte

	mu       sync.Mutex
	port     Port
	openPort openPortFunc
}

var _ devcomm.Backend = (*Backend)(nil)

// New creates an unopened serial backend for the parsed connection parameters.
//
// The info must carry devcomm.KindSerial; its Addr is the port path. Options
// override the default 9600 8N1 line configuration.
func New(info devcomm.ConnInfo, opts ...Option) (*Backend, error) {
	if info.Kind != devcomm.KindSerial {
		return nil, fmt.Errorf("%w: kind %q is not %q", devcomm.ErrInvalidConn, info.Kind, devcomm.KindSerial)
	}

	cfg, err := NewConfig(info.Addr, opts...)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		cfg:       cfg,
		info:      info,
		log:       cfg.Logger(),
		cooldowns: cfg.Cooldowns(),
		termRead:  cfg.ReadTerminators(),
		termWrite: cfg.WriteTerminator(),
		openPort:  openSerialPort,
	}
	b.timeout.Store(int64(cfg.Timeout()))
	b.stateMgr = devcomm.NewConnStateMgr(context.Background(), b, b.log)

	return b, nil
}

// Open opens the serial port, retrying per the configured open retries.
//
// USB-to-serial adapters are occasionally still settling when the port first
// appears, so a failed open is retried after a short pause before giving up.
func (b *Backend) Open(ctx context.Context) error {
	if !b.opState.ToOpening() {
		if b.opState.IsOpened() {
			return devcomm.ErrAlreadyOpened
		}

		return fmt.Errorf("open serial backend in %s state", b.opState.String())
	}

	_ = b.stateMgr.ToConnecting()

	port, err := b.openWithRetry(ctx)
	if err != nil {
		b.opState.Set(devcomm.ClosedState)
		b.stateMgr.ToDisconnected()

		return err
	}

	if b.cfg.NoDTR() {
		if dtrErr := port.SetDTR(false); dtrErr != nil {
			b.log.Warn("failed to drop DTR line", "addr", b.cfg.Addr(), "error", dtrErr)
		}
	}

	if b.cfg.FlushOnOpen() {
		if flushErr := port.ResetInputBuffer(); flushErr != nil {
			b.log.Warn("failed to flush serial input buffer", "addr", b.cfg.Addr(), "error", flushErr)
		}
	}

	b.mu.Lock()
	b.port = port
	b.mu.Unlock()

	b.opState.ToOpened()
	_ = b.stateMgr.ToConnected()
	b.log.Debug("serial backend opened", "addr", b.cfg.Addr())
	b.cooldowns.Sleep(devcomm.OpOpen)

	return nil
}

func (b *Backend) openWithRetry(ctx context.Context) (Port, error) {
	retries := b.cfg.OpenRetries()
	interval := b.cfg.RetryInterval()
	b.metrics.OpenRetryGauge.Store(0)

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			b.metrics.OpenRetryGauge.Store(uint32(attempt)) //nolint:gosec
			timer := pool.GetTimer(interval)
			select {
			case <-ctx.Done():
				pool.PutTimer(timer)
				return nil, ctx.Err()
			case <-timer.C:
				pool.PutTimer(timer)
			}
		}

		port, err := b.openPort(b.cfg)
		if err == nil {
			return port, nil
		}
		lastErr = err
		b.log.Warn("serial port open attempt failed",
			"addr", b.cfg.Addr(), "attempt", attempt+1, "error", err,
		)
	}

	return nil, lastErr
}

// Close closes the serial port. Closing a closed backend is a no-op.
func (b *Backend) Close() error {
	if !b.opState.ToClosing() {
		return nil
	}

	b.mu.Lock()
	port := b.port
	b.port = nil
	b.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}

	b.opState.ToClosed()
	b.stateMgr.ToDisconnected()
	b.log.Debug("serial backend closed", "addr", b.cfg.Addr())
	b.cooldowns.Sleep(devcomm.OpClose)

	if err != nil {
		return fmt.Errorf("close serial port %s: %w", b.cfg.Addr(), err)
	}

	return nil
}

// Opened reports whether the backend is currently open.
func (b *Backend) Opened() bool {
	return b.opState.IsOpened()
}

// Read reads exactly n bytes from the port, honoring the context deadline or the
// default timeout.
func (b *Backend) Read(ctx context.Context, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	port, err := b.lockedPort()
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

		remaining := time.Until(deadline)
		if remaining <= 0 {
			b.metrics.AddTimeout()
			return buf[:got], fmt.Errorf("%w: %d of %d bytes", devcomm.ErrShortRead, got, n)
		}

		if err := port.SetReadTimeout(remaining); err != nil {
			b.metrics.AddReadErr()
			return buf[:got], fmt.Errorf("set read timeout: %w", err)
		}

		k, err := port.Read(buf[got:])
		if err != nil {
			b.metrics.AddReadErr()
			return buf[:got], fmt.Errorf("read serial port %s: %w", b.cfg.Addr(), err)
		}
		if k == 0 {
			b.metrics.AddTimeout()
			return buf[:got], fmt.Errorf("%w: %d of %d bytes", devcomm.ErrShortRead, got, n)
		}
		got += k
	}

	b.metrics.AddRead(n)
	b.cooldowns.Sleep(devcomm.OpRead)

	return buf, nil
}

// ReadAvailable drains data already buffered by the OS without waiting.
func (b *Backend) ReadAvailable() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	port, err := b.lockedPort()
	if err != nil {
		return nil, err
	}

	// A 1ms poll makes a drained buffer report promptly without busy-reading.
	if err := port.SetReadTimeout(time.Millisecond); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	var result []byte
	buf := make([]byte, 256)
	for {
		k, err := port.Read(buf)
		if err != nil {
			b.metrics.AddReadErr()
			return result, fmt.Errorf("read serial port %s: %w", b.cfg.Addr(), err)
		}
		if k == 0 {
			break
		}
		result = append(result, buf[:k]...)
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

	port, err := b.lockedPort()
	if err != nil {
		return nil, err
	}

	line, err := devcomm.ReadTrimmedLine(ctx, b.chunkReader(port, b.deadline(ctx)), b.termRead)
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

	port, err := b.lockedPort()
	if err != nil {
		return nil, err
	}

	data, err := devcomm.ReadTermed(ctx, b.chunkReader(port, b.deadline(ctx)), terms, true)
	if err != nil {
		b.countReadErr(err)
		return data, err
	}

	b.metrics.AddRead(len(data))
	b.cooldowns.Sleep(devcomm.OpRead)

	return data, nil
}

// Write writes data to the port with the configured write terminator appended.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	port, err := b.lockedPort()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	payload := devcomm.AppendTerm(data, b.termWrite)
	k, err := port.Write(payload)
	if err != nil {
		b.metrics.AddWriteErr()
		return fmt.Errorf("write serial port %s: %w", b.cfg.Addr(), err)
	}
	if k < len(payload) {
		b.metrics.AddWriteErr()
		return fmt.Errorf("short write to serial port %s: %d of %d bytes", b.cfg.Addr(), k, len(payload))
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

// Flush discards data received but not yet read.
func (b *Backend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	port, err := b.lockedPort()
	if err != nil {
		return err
	}

	if err := port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("flush serial port %s: %w", b.cfg.Addr(), err)
	}
	b.cooldowns.Sleep(devcomm.OpFlush)

	return nil
}

// SetDTR raises or drops the DTR modem line. Toggling DTR resets boards that
// wire it to their reset pin.
func (b *Backend) SetDTR(dtr bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	port, err := b.lockedPort()
	if err != nil {
		return err
	}

	if err := port.SetDTR(dtr); err != nil {
		return fmt.Errorf("set DTR on serial port %s: %w", b.cfg.Addr(), err)
	}

	return nil
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
	return string(devcomm.KindSerial)
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

func (b *Backend) lockedPort() (Port, error) {
	if !b.opState.IsOpened() || b.port == nil {
		return nil, devcomm.ErrBackendClosed
	}

	return b.port, nil
}

func (b *Backend) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}

	return time.Now().Add(b.Timeout())
}

// chunkReader adapts the port into a devcomm.ChunkReader that reports a
// timed-out poll once the deadline passes.
func (b *Backend) chunkReader(port Port, deadline time.Time) devcomm.ChunkReader {
	return func(_ context.Context, buf []byte) (int, error) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}

		if err := port.SetReadTimeout(remaining); err != nil {
			return 0, fmt.Errorf("set read timeout: %w", err)
		}

		k, err := port.Read(buf)
		if err != nil {
			return k, fmt.Errorf("read serial port %s: %w", b.cfg.Addr(), err)
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
