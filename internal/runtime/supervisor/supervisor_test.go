package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecordsFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("broken", func(ctx context.Context) error { return errors.New("boom") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken: boom")
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go0("panicky", func(ctx context.Context) { panic("nope") })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after panic")
	}
	snap := s.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, uint64(1), snap.Tasks[0].Panics)
}

func TestGoRestartUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var calls atomic.Int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, int32(3), calls.Load())
	snap := s.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, uint64(2), snap.Tasks[0].Restarts)
}

func TestGoRestartGivesUpAfterMaxRestarts(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var calls atomic.Int32
	s.GoRestart("bind", func(ctx context.Context) error {
		calls.Add(1)
		return errors.New("address in use")
	}, WithRestartBackoff(time.Millisecond, 2*time.Millisecond), WithMaxRestarts(2))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind: address in use")
	assert.Equal(t, int32(3), calls.Load())
	snap := s.Snapshot()
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, uint64(2), snap.Tasks[0].Restarts)
	assert.Equal(t, int64(0), snap.Active)
	assert.NotEmpty(t, snap.FirstError)
}

func TestStopCancelsLongRunner(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
