package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	n     int
	err   error
}

func (e *countingExpirer) ExpireOverdue(context.Context) (int, error) {
	e.calls.Add(1)
	return e.n, e.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("expires when the lock is free", func(t *testing.T) {
		exp := &countingExpirer{n: 3}
		s := New(exp, WithLogger(quietLogger()))

		n, err := s.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.EqualValues(t, 1, exp.calls.Load())
	})

	t.Run("skips while another holder has the lock", func(t *testing.T) {
		exp := &countingExpirer{n: 3}
		locker := NewLocalLocker()
		unlock, ok, err := locker.TryLock(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		s := New(exp, WithLocker(locker), WithLogger(quietLogger()))
		n, err := s.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, exp.calls.Load())

		require.NoError(t, unlock(ctx))
		n, err = s.SweepOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("releases the lock after a failed sweep", func(t *testing.T) {
		locker := NewLocalLocker()
		s := New(&countingExpirer{err: errors.New("db down")}, WithLocker(locker), WithLogger(quietLogger()))

		_, err := s.SweepOnce(ctx)
		require.Error(t, err)

		_, ok, err := locker.TryLock(ctx, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	exp := &countingExpirer{}
	s := New(exp, WithInterval(5*time.Millisecond), WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return exp.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
