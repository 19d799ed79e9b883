package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumilab/go-labdev/devcomm"
)

// chanSource emits frames pushed into its channel and blocks otherwise.
type chanSource struct {
	frames chan []byte
}

func newChanSource() *chanSource {
	return &chanSource{frames: make(chan []byte, 64)}
}

func (s *chanSource) NextFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case data := <-s.frames:
		return data, nil
	}
}

// failSource returns frames until the script runs out, then fails.
type failSource struct {
	frames [][]byte
	err    error
}

func (s *failSource) NextFrame(ctx context.Context) ([]byte, error) {
	if len(s.frames) == 0 {
		return nil, s.err
	}
	data := s.frames[0]
	s.frames = s.frames[1:]

	return data, nil
}

func TestNewReader_Validation(t *testing.T) {
	_, err := NewReader(nil)
	require.Error(t, err)

	_, err = NewReader(newChanSource(), WithCapacity(0))
	require.Error(t, err)

	_, err = NewReader(newChanSource(), WithLogger(nil))
	require.Error(t, err)
}

func TestReader_DeliversFramesInOrder(t *testing.T) {
	src := newChanSource()
	r, err := NewReader(src)
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()
	require.True(t, r.Running())

	src.frames <- []byte("a")
	src.frames <- []byte("b")
	src.frames <- []byte("c")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i, want := range []string{"a", "b", "c"} {
		frame, err := r.Next(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(i), frame.Seq)
		require.Equal(t, want, string(frame.Data))
		require.False(t, frame.Time.IsZero())
	}
}

func TestReader_DoubleStart(t *testing.T) {
	r, err := NewReader(newChanSource())
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Error(t, r.Start(context.Background()))
}

func TestReader_DropsOldestWhenFull(t *testing.T) {
	src := newChanSource()
	r, err := NewReader(src, WithCapacity(2))
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	for _, data := range []string{"0", "1", "2", "3", "4"} {
		src.frames <- []byte(data)
	}

	require.Eventually(t, func() bool { return r.Dropped() == 3 }, time.Second, time.Millisecond)
	require.Equal(t, 2, r.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// the survivors are the newest frames, with their original sequence numbers
	frame, err := r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), frame.Seq)
	require.Equal(t, "3", string(frame.Data))

	frame, err = r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), frame.Seq)
	require.Equal(t, "4", string(frame.Data))
}

func TestReader_NextContextCancel(t *testing.T) {
	r, err := NewReader(newChanSource())
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReader_StopWakesNext(t *testing.T) {
	r, err := NewReader(newChanSource())
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := r.Next(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	r.Stop()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrStopped)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Stop")
	}

	require.False(t, r.Running())
}

func TestReader_DrainsBufferedFramesAfterStop(t *testing.T) {
	src := newChanSource()
	r, err := NewReader(src)
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	src.frames <- []byte("kept")
	require.Eventually(t, func() bool { return r.Pending() == 1 }, time.Second, time.Millisecond)
	r.Stop()

	frame, err := r.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, "kept", string(frame.Data))

	_, err = r.Next(context.Background())
	require.ErrorIs(t, err, ErrStopped)
}

func TestReader_SourceErrorEndsCapture(t *testing.T) {
	srcErr := errors.New("device unplugged")
	src := &failSource{frames: [][]byte{[]byte("last")}, err: srcErr}

	r, err := NewReader(src)
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "last", string(frame.Data))

	_, err = r.Next(ctx)
	require.ErrorIs(t, err, srcErr)
	require.ErrorIs(t, r.Err(), srcErr)
	require.False(t, r.Running())
}

func TestLineSource(t *testing.T) {
	mock := devcomm.NewMockBackend()
	mock.QueueRead([]byte("17.25\n"))

	src := NewLineSource(mock)
	data, err := src.NextFrame(context.Background())
	require.NoError(t, err)
	require.Equal(t, "17.25", string(data))
}

func TestReader_RestartAfterStop(t *testing.T) {
	src := newChanSource()
	r, err := NewReader(src)
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	r.Stop()

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	src.frames <- []byte("again")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	frame, err := r.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "again", string(frame.Data))
}