package devcomm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// bufReader returns a ChunkReader over fixed input that reports a timed-out
// poll once the input is exhausted.
func bufReader(input []byte) ChunkReader {
	buf := input

	return func(_ context.Context, p []byte) (int, error) {
		if len(buf) == 0 {
			return 0, nil
		}

		n := copy(p, buf)
		buf = buf[n:]

		return n, nil
	}
}

func TestReadTermed_SingleCharTerminator(t *testing.T) {
	read := bufReader([]byte("ok\nrest"))

	data, err := ReadTermed(context.Background(), read, [][]byte{{'\n'}}, true)
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(data))

	// the reader consumed nothing past the terminator
	data, err = ReadTermed(context.Background(), read, nil, false)
	require.NoError(t, err)
	require.Equal(t, "rest", string(data))
}

func TestReadTermed_MultiCharTerminator(t *testing.T) {
	read := bufReader([]byte("value>>"))

	data, err := ReadTermed(context.Background(), read, [][]byte{[]byte(">>")}, true)
	require.NoError(t, err)
	require.Equal(t, "value>>", string(data))
}

func TestReadTermed_AnyOfTerminators(t *testing.T) {
	read := bufReader([]byte("a\rb\n"))

	data, err := ReadTermed(context.Background(), read, [][]byte{{'\r'}, {'\n'}}, true)
	require.NoError(t, err)
	require.Equal(t, "a\r", string(data))
}

func TestReadTermed_TimeoutError(t *testing.T) {
	read := bufReader([]byte("partial"))

	data, err := ReadTermed(context.Background(), read, [][]byte{{'\n'}}, true)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, "partial", string(data))
}

func TestReadTermed_TimeoutPartial(t *testing.T) {
	read := bufReader([]byte("partial"))

	data, err := ReadTermed(context.Background(), read, [][]byte{{'\n'}}, false)
	require.NoError(t, err)
	require.Equal(t, "partial", string(data))
}

func TestReadTermed_NoTerminatorsDrains(t *testing.T) {
	read := bufReader([]byte("all of it"))

	data, err := ReadTermed(context.Background(), read, nil, false)
	require.NoError(t, err)
	require.Equal(t, "all of it", string(data))
}

func TestReadTermed_ReadError(t *testing.T) {
	readErr := errors.New("port gone")
	read := func(context.Context, []byte) (int, error) { return 0, readErr }

	_, err := ReadTermed(context.Background(), read, [][]byte{{'\n'}}, true)
	require.ErrorIs(t, err, readErr)
}

func TestReadTermed_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ReadTermed(ctx, bufReader([]byte("x\n")), [][]byte{{'\n'}}, true)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadTrimmedLine(t *testing.T) {
	read := bufReader([]byte("\n\nhello\n"))

	line, err := ReadTrimmedLine(context.Background(), read, [][]byte{{'\n'}})
	require.NoError(t, err)
	require.Equal(t, "hello", string(line))
}

func TestReadTrimmedLine_RawWithoutTerminators(t *testing.T) {
	read := bufReader([]byte{0x01, 0x02, 0x03})

	line, err := ReadTrimmedLine(context.Background(), read, nil)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, line)
}
