package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSliceQueue(t *testing.T) {
	require := require.New(t)

	q := NewSliceQueue[int](4)
	require.True(q.IsEmpty())
	require.Equal(0, q.Length())

	_, ok := q.Dequeue()
	require.False(ok)
	_, ok = q.Peek()
	require.False(ok)

	q.Enqueue(1)
	q.Enqueue(2)
	q.Enqueue(3)
	require.Equal(3, q.Length())

	head, ok := q.Peek()
	require.True(ok)
	require.Equal(1, head)

	for want := 1; want <= 3; want++ {
		got, ok := q.Dequeue()
		require.True(ok)
		require.Equal(want, got)
	}
	require.True(q.IsEmpty())

	q.Enqueue(9)
	q.Reset()
	require.True(q.IsEmpty())
}

func TestRing(t *testing.T) {
	require := require.New(t)

	r := NewRing[string](3)
	require.Equal(3, r.Cap())
	require.True(r.IsEmpty())

	require.False(r.Enqueue("a"))
	require.False(r.Enqueue("b"))
	require.False(r.Enqueue("c"))
	require.Equal(3, r.Length())

	// full: the oldest item is overwritten
	require.True(r.Enqueue("d"))
	require.Equal(3, r.Length())

	head, ok := r.Peek()
	require.True(ok)
	require.Equal("b", head)

	for _, want := range []string{"b", "c", "d"} {
		got, ok := r.Dequeue()
		require.True(ok)
		require.Equal(want, got)
	}

	_, ok = r.Dequeue()
	require.False(ok)

	r.Enqueue("x")
	r.Reset()
	require.True(r.IsEmpty())
}

func TestRingWrapAround(t *testing.T) {
	require := require.New(t)

	r := NewRing[int](2)
	for i := 0; i < 10; i++ {
		r.Enqueue(i)
	}

	first, _ := r.Dequeue()
	second, _ := r.Dequeue()
	require.Equal(8, first)
	require.Equal(9, second)
}

func TestRingInvalidCapacity(t *testing.T) {
	require.Panics(t, func() { NewRing[int](0) })
}
