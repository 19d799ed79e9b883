package usbcomm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/gousb"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/logger"
)

func init() {
	devcomm.Register(devcomm.KindUSB, devcomm.Driver{
		New: func(info devcomm.ConnInfo) (devcomm.Backend, error) {
			return New(info)
		},
		List: ListDevices,
	})
}

// Backend is a devcomm.Backend over a pair of USB bulk endpoints.
//
// Bulk transfers arrive in whole packets, so the backend keeps an internal
// buffer of bytes received past what the caller asked for. All I/O operations
// are serialized by an internal mutex.
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

	mu      sync.Mutex
	handle  deviceHandle
	pktBuf  []byte
	pending []byte
	open    openDeviceFunc
}

var _ devcomm.Backend = (*Backend)(nil)

// New creates an unopened USB backend for the parsed connection parameters.
//
// The info must carry devcomm.KindUSB with its VendorID, ProductID, and Index
// fields populated, as produced by devcomm.ParseConn for "vid:pid[:index]"
// connection strings.
func New(info devcomm.ConnInfo, opts ...Option) (*Backend, error) {
	if info.Kind != devcomm.KindUSB {
		return nil, fmt.Errorf("%w: kind %q is not %q", devcomm.ErrInvalidConn, info.Kind, devcomm.KindUSB)
	}

	opts = append([]Option{WithIndex(info.Index)}, opts...)
	cfg, err := NewConfig(info.VendorID, info.ProductID, opts...)
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
		open:      openDevice,
	}
	b.timeout.Store(int64(cfg.Timeout()))
	b.stateMgr = devcomm.NewConnStateMgr(context.Background(), b, b.log)

	return b, nil
}

// Open claims the device and its bulk endpoints.
func (b *Backend) Open(ctx context.Context) error {
	if !b.opState.ToOpening() {
		if b.opState.IsOpened() {
			return devcomm.ErrAlreadyOpened
		}

		return fmt.Errorf("open usb backend in %s state", b.opState.String())
	}

	_ = b.stateMgr.ToConnecting()

	if err := ctx.Err(); err != nil {
		b.opState.Set(devcomm.ClosedState)
		b.stateMgr.ToDisconnected()

		return err
	}

	handle, err := b.open(b.cfg)
	if err != nil {
		b.opState.Set(devcomm.ClosedState)
		b.stateMgr.ToDisconnected()

		return err
	}

	pktSize := handle.MaxPacketSize()
	if pktSize < 64 {
		pktSize = 64
	}

	b.mu.Lock()
	b.handle = handle
	b.pktBuf = make([]byte, pktSize)
	b.pending = nil
	b.mu.Unlock()

	b.opState.ToOpened()
	_ = b.stateMgr.ToConnected()
	b.log.Debug("usb backend opened", "device", b.info.String())
	b.cooldowns.Sleep(devcomm.OpOpen)

	return nil
}

// Close releases the interface and the device. Closing a closed backend is a no-op.
func (b *Backend) Close() error {
	if !b.opState.ToClosing() {
		return nil
	}

	b.mu.Lock()
	handle := b.handle
	b.handle = nil
	b.pending = nil
	b.mu.Unlock()

	var err error
	if handle != nil {
		err = handle.Close()
	}

	b.opState.ToClosed()
	b.stateMgr.ToDisconnected()
	b.log.Debug("usb backend closed", "device", b.info.String())
	b.cooldowns.Sleep(devcomm.OpClose)

	if err != nil {
		return fmt.Errorf("close usb device %s: %w", b.info.String(), err)
	}

	return nil
}

// Opened reports whether the backend is currently open.
func (b *Backend) Opened() bool {
	return b.opState.IsOpened()
}

// Read reads exactly n bytes from the device, honoring the context deadline or
// the default timeout.
func (b *Backend) Read(ctx context.Context, n int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpened(); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithDeadline(ctx, b.deadline(ctx))
	defer cancel()

	buf := make([]byte, n)
	got := 0
	for got < n {
		k, err := b.readChunk(opCtx, buf[got:])
		if err != nil {
			b.metrics.AddReadErr()
			return buf[:got], err
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

// ReadAvailable drains the internal buffer and anything one short poll of the
// IN endpoint delivers.
func (b *Backend) ReadAvailable() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpened(); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var result []byte
	buf := make([]byte, len(b.pktBuf))
	for {
		k, err := b.readChunk(opCtx, buf)
		if err != nil {
			b.metrics.AddReadErr()
			return result, err
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

// ReadLine reads a single message terminated by any configured read terminator.
// With no terminators configured it returns whatever a single read window
// delivers before the timeout.
func (b *Backend) ReadLine(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpened(); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithDeadline(ctx, b.deadline(ctx))
	defer cancel()

	line, err := devcomm.ReadTrimmedLine(opCtx, b.readChunk, b.termRead)
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

	if err := b.checkOpened(); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithDeadline(ctx, b.deadline(ctx))
	defer cancel()

	data, err := devcomm.ReadTermed(opCtx, b.readChunk, terms, true)
	if err != nil {
		b.countReadErr(err)
		return data, err
	}

	b.metrics.AddRead(len(data))
	b.cooldowns.Sleep(devcomm.OpRead)

	return data, nil
}

// Write performs a bulk OUT transfer of data with the configured write
// terminator appended.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpened(); err != nil {
		return err
	}

	opCtx, cancel := context.WithDeadline(ctx, b.deadline(ctx))
	defer cancel()

	payload := devcomm.AppendTerm(data, b.termWrite)
	k, err := b.handle.WriteBulk(opCtx, payload)
	if err != nil {
		b.metrics.AddWriteErr()
		if isTimeout(err) {
			return fmt.Errorf("%w: wrote %d of %d bytes", devcomm.ErrTimeout, k, len(payload))
		}

		return fmt.Errorf("write usb device %s: %w", b.info.String(), err)
	}
	if k < len(payload) {
		b.metrics.AddWriteErr()
		return fmt.Errorf("short write to usb device %s: %d of %d bytes", b.info.String(), k, len(payload))
	}

	b.metrics.AddWrite(len(payload))
	b.cooldowns.Sleep(devcomm.OpWrite)

	return nil
}

// Ask writes the query and returns the next response message.
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
	return string(devcomm.KindUSB)
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

func (b *Backend) checkOpened() error {
	if !b.opState.IsOpened() || b.handle == nil {
		return devcomm.ErrBackendClosed
	}

	return nil
}

func (b *Backend) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}

	return time.Now().Add(b.Timeout())
}

// readChunk serves buffered bytes first, then polls the IN endpoint for one
// packet. A timed-out poll reports (0, nil). Callers must hold b.mu.
func (b *Backend) readChunk(ctx context.Context, buf []byte) (int, error) {
	if len(b.pending) > 0 {
		n := copy(buf, b.pending)
		b.pending = b.pending[n:]

		return n, nil
	}

	k, err := b.handle.ReadBulk(ctx, b.pktBuf)
	if err != nil {
		if isTimeout(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("read usb device %s: %w", b.info.String(), err)
	}

	n := copy(buf, b.pktBuf[:k])
	if n < k {
		b.pending = append(b.pending, b.pktBuf[n:k]...)
	}

	return n, nil
}

func (b *Backend) countReadErr(err error) {
	if errors.Is(err, devcomm.ErrTimeout) {
		b.metrics.AddTimeout()
	} else {
		b.metrics.AddReadErr()
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, gousb.TransferTimedOut)
}
