package devcomm

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnStateTransitions(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()

	t.Run("Initial State", func(t *testing.T) {
		cs := NewConnStateMgr(ctx, nil, nil)
		require.Equal(DisconnectedState, cs.State())
		require.True(cs.IsDisconnected())
	})

	t.Run("ToConnecting", func(t *testing.T) {
		stateChangeCount := 0
		cs := NewConnStateMgr(ctx, nil, nil)
		cs.AddHandler(func(backend Backend, prevState ConnState, newState ConnState) { stateChangeCount++ })

		require.NoError(cs.ToConnecting())
		require.Equal(ConnectingState, cs.State())
		require.Equal(1, stateChangeCount)
		require.True(cs.IsConnecting())

		// No-op transition when already in ConnectingState
		require.NoError(cs.ToConnecting())
		require.Equal(1, stateChangeCount)

		// Invalid transition from ConnectedState back to ConnectingState
		require.NoError(cs.ToConnected())
		require.Equal(2, stateChangeCount)
		require.ErrorIs(cs.ToConnecting(), ErrInvalidTransition)
	})

	t.Run("ToConnected", func(t *testing.T) {
		stateChangeCount := 0
		cs := NewConnStateMgr(ctx, nil, nil)
		cs.AddHandler(func(backend Backend, prevState ConnState, newState ConnState) { stateChangeCount++ })

		// Invalid transition from DisconnectedState straight to ConnectedState
		require.ErrorIs(cs.ToConnected(), ErrInvalidTransition)
		require.Equal(0, stateChangeCount)

		require.NoError(cs.ToConnecting())
		require.Equal(1, stateChangeCount)

		require.NoError(cs.ToConnected())
		require.Equal(ConnectedState, cs.State())
		require.Equal(2, stateChangeCount)
		require.True(cs.IsConnected())

		// No-op transition when already in ConnectedState
		require.NoError(cs.ToConnected())
		require.Equal(2, stateChangeCount)
	})

	t.Run("ToDisconnected", func(t *testing.T) {
		cs := NewConnStateMgr(ctx, nil, nil)
		require.NoError(cs.ToConnecting())
		require.NoError(cs.ToConnected())

		var prev, next ConnState
		cs.AddHandler(func(backend Backend, prevState ConnState, newState ConnState) {
			prev, next = prevState, newState
		})

		cs.ToDisconnected()
		require.Equal(DisconnectedState, cs.State())
		require.Equal(ConnectedState, prev)
		require.Equal(DisconnectedState, next)

		// No-op when already disconnected
		cs.ToDisconnected()
		require.Equal(DisconnectedState, cs.State())
	})
}

func TestConnStateWaitState(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	cs := NewConnStateMgr(ctx, nil, nil)

	t.Run("Already In Desired State", func(t *testing.T) {
		require.NoError(cs.WaitState(ctx, DisconnectedState))
	})

	t.Run("Wait For Connected", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			done <- cs.WaitState(waitCtx, ConnectedState)
		}()

		time.Sleep(50 * time.Millisecond)
		require.NoError(cs.ToConnecting())
		require.NoError(cs.ToConnected())

		require.NoError(<-done)
	})

	t.Run("Wait Timeout", func(t *testing.T) {
		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		err := cs.WaitState(waitCtx, DisconnectedState)
		require.ErrorIs(err, context.DeadlineExceeded)
	})
}

func TestConnStateAsyncTransitions(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cs := NewConnStateMgr(ctx, nil, nil)

	cs.ToConnectingAsync()
	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	require.NoError(cs.WaitState(waitCtx, ConnectingState))

	cs.ToConnectedAsync()
	waitCtx2, waitCancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel2()
	require.NoError(cs.WaitState(waitCtx2, ConnectedState))

	cs.ToDisconnectedAsync()
	waitCtx3, waitCancel3 := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel3()
	require.NoError(cs.WaitState(waitCtx3, DisconnectedState))
}

func TestConnStateSyncTransitionsSpawnNoGoroutine(t *testing.T) {
	require := require.New(t)

	before := runtime.NumGoroutine()

	for i := 0; i < 100; i++ {
		cs := NewConnStateMgr(context.Background(), nil, nil)
		require.NoError(cs.ToConnecting())
		require.NoError(cs.ToConnected())
		cs.ToDisconnected()
	}

	require.LessOrEqual(runtime.NumGoroutine(), before+2)
}

func TestConnStateAsyncTaskStopsOnContextCancel(t *testing.T) {
	require := require.New(t)

	before := runtime.NumGoroutine()

	ctx, cancel := context.WithCancel(context.Background())
	cs := NewConnStateMgr(ctx, nil, nil)

	cs.ToConnectingAsync()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(cs.WaitState(waitCtx, ConnectingState))

	cancel()
	require.Eventually(func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConnStateString(t *testing.T) {
	require := require.New(t)

	require.Equal("disconnected", DisconnectedState.String())
	require.Equal("connecting", ConnectingState.String())
	require.Equal("connected", ConnectedState.String())
	require.Equal("unknown", ConnState(99).String())
}
