package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumilab/go-labdev/devcomm"
	"github.com/lumilab/go-labdev/internal/queue"
	"github.com/lumilab/go-labdev/logger"
)

// ErrStopped is returned by Next after the reader has been stopped.
var ErrStopped = errors.New("stream reader is stopped")

// Frame is one reading captured from a source.
type Frame struct {
	// Seq numbers frames in capture order, starting at 0. Gaps never occur in
	// Seq itself; dropped frames are visible as missing sequence numbers on
	// the consumer side.
	Seq uint64

	// Time is the capture timestamp assigned by the reader.
	Time time.Time

	Data []byte
}

// Source produces raw frames for a Reader. Implementations typically poll an
// instrument over a transport backend.
type Source interface {
	// NextFrame blocks until the next frame is available or ctx is done.
	NextFrame(ctx context.Context) ([]byte, error)
}

// LineSource is a Source reading terminator-delimited lines from a backend,
// for instruments that continuously emit readings.
type LineSource struct {
	backend devcomm.Backend
}

// NewLineSource creates a Source over the given backend.
func NewLineSource(backend devcomm.Backend) *LineSource {
	return &LineSource{backend: backend}
}

// NextFrame reads one line from the backend.
func (s *LineSource) NextFrame(ctx context.Context) ([]byte, error) {
	return s.backend.ReadLine(ctx)
}

// Reader captures frames from a Source in a background task and hands them to
// the consumer through a bounded drop-oldest buffer.
type Reader struct {
	source Source
	log    logger.Logger

	capacity int
	tasks    *devcomm.TaskManager
	ctx      context.Context
	cancel   context.CancelFunc

	mu     sync.Mutex
	ring   *queue.Ring[Frame]
	notify chan struct{}

	seq     atomic.Uint64
	dropped atomic.Uint64
	running atomic.Bool

	errMu   sync.Mutex
	lastErr error
}

// ReaderOption represents a functional option for configuring a Reader.
type ReaderOption interface {
	apply(*Reader) error
}

type readerOptFunc struct {
	name      string
	applyFunc func(*Reader) error
}

func (o *readerOptFunc) apply(r *Reader) error { return o.applyFunc(r) }

func newReaderOptFunc(name string, f func(*Reader) error) *readerOptFunc {
	return &readerOptFunc{name: name, applyFunc: f}
}

// WithCapacity sets the frame buffer capacity. When the buffer is full, the
// oldest frame is dropped to make room.
//
// The default value is 256.
func WithCapacity(capacity int) ReaderOption {
	return newReaderOptFunc("WithCapacity", func(r *Reader) error {
		if capacity < 1 {
			return errors.New("capacity must be positive")
		}
		r.capacity = capacity

		return nil
	})
}

// WithLogger sets the logger used by the reader.
// An error is returned if the logger is nil.
func WithLogger(l logger.Logger) ReaderOption {
	return newReaderOptFunc("WithLogger", func(r *Reader) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		r.log = l

		return nil
	})
}

// NewReader creates a stopped Reader over the given source.
func NewReader(source Source, opts ...ReaderOption) (*Reader, error) {
	if source == nil {
		return nil, errors.New("source is nil")
	}

	r := &Reader{
		source:   source,
		log:      logger.GetLogger(),
		capacity: 256,
		notify:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		if err := opt.apply(r); err != nil {
			return nil, err
		}
	}

	r.ring = queue.NewRing[Frame](r.capacity)

	return r, nil
}

// Start launches the capture task. Starting a running reader is an error.
func (r *Reader) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("stream reader is already running")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.tasks = devcomm.NewTaskManager(r.ctx, r.log)
	r.setErr(nil)

	if err := r.tasks.Start("streamCapture", r.capture); err != nil {
		r.cancel()
		r.running.Store(false)

		return err
	}

	return nil
}

// Stop cancels the capture task and wakes pending Next calls. Frames already
// buffered remain readable.
func (r *Reader) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}

	r.cancel()
	r.tasks.Stop()
}

// Running reports whether the capture task is active.
func (r *Reader) Running() bool {
	return r.running.Load()
}

// Next returns the oldest buffered frame, blocking until one arrives, ctx is
// done, or the reader stops with an empty buffer.
func (r *Reader) Next(ctx context.Context) (Frame, error) {
	for {
		r.mu.Lock()
		frame, ok := r.ring.Dequeue()
		r.mu.Unlock()

		if ok {
			return frame, nil
		}

		// a canceled capture context counts as stopped even when Stop was
		// never called, e.g. when the Start context expires
		if !r.running.Load() || r.ctx.Err() != nil {
			if err := r.Err(); err != nil {
				return Frame{}, err
			}

			return Frame{}, ErrStopped
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-r.ctx.Done():
			// loop once more to drain frames enqueued before the stop
		case <-r.notify:
		}
	}
}

// Pending returns the number of buffered frames.
func (r *Reader) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ring.Length()
}

// Dropped returns the total number of frames discarded because the buffer was
// full.
func (r *Reader) Dropped() uint64 {
	return r.dropped.Load()
}

// Err returns the source error that terminated capture, if any.
func (r *Reader) Err() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	return r.lastErr
}

// capture is the background task body; it returns false to end the task loop.
func (r *Reader) capture() bool {
	data, err := r.source.NextFrame(r.ctx)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// shutdown
		case errors.Is(err, devcomm.ErrTimeout):
			// idle source, poll again
			return true
		default:
			r.setErr(fmt.Errorf("stream source: %w", err))
			r.log.Error("stream capture failed", "error", err)
			r.running.Store(false)
		}

		r.wake()

		return false
	}

	frame := Frame{
		Seq:  r.seq.Add(1) - 1,
		Time: time.Now(),
		Data: data,
	}

	r.mu.Lock()
	if dropped := r.ring.Enqueue(frame); dropped {
		r.dropped.Add(1)
	}
	r.mu.Unlock()

	r.wake()

	return true
}

func (r *Reader) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *Reader) setErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	r.lastErr = err
}
