package devcomm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	require := require.New(t)

	kind := Kind("testkind")
	Register(kind, Driver{
		New: func(info ConnInfo) (Backend, error) {
			mock := NewMockBackend()
			_ = mock.Close() // NewFromInfo opens the backend itself
			return mock, nil
		},
		List: func() ([]string, error) {
			return []string{"res0", "res1"}, nil
		},
	})

	t.Run("Duplicate Registration Panics", func(t *testing.T) {
		require.Panics(func() {
			Register(kind, Driver{New: func(ConnInfo) (Backend, error) { return nil, nil }})
		})
	})

	t.Run("Nil New Panics", func(t *testing.T) {
		require.Panics(func() {
			Register(Kind("nilnew"), Driver{})
		})
	})

	t.Run("Kinds", func(t *testing.T) {
		require.Contains(Kinds(), kind)
	})

	t.Run("NewFromInfo", func(t *testing.T) {
		backend, err := NewFromInfo(context.Background(), ConnInfo{Kind: kind})
		require.NoError(err)
		require.True(backend.Opened())
		require.NoError(backend.Close())
	})

	t.Run("Unknown Kind", func(t *testing.T) {
		_, err := NewFromInfo(context.Background(), ConnInfo{Kind: Kind("nope")})
		require.ErrorIs(err, ErrUnknownBackend)

		_, err = ListResources(Kind("nope"))
		require.ErrorIs(err, ErrUnknownBackend)
	})

	t.Run("ListResources", func(t *testing.T) {
		res, err := ListResources(kind)
		require.NoError(err)
		require.Equal([]string{"res0", "res1"}, res[kind])

		all, err := ListResources("")
		require.NoError(err)
		require.Equal([]string{"res0", "res1"}, all[kind])
	})
}
