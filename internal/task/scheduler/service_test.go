package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"feedbridge/internal/eventbus"
	logx "feedbridge/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStarted(t *testing.T) *Service {
	t.Helper()
	s := New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func noop(context.Context) error { return nil }

func TestAddRejectsBadInput(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	require.Error(t, s.Add("", "10m", 0, noop))
	require.Error(t, s.Add("sync", "10m", 0, nil))
	require.Error(t, s.Add("sync", "nope", 0, noop))
	require.Error(t, s.Add("sync", "cron:61 * * * *", 0, noop))
	require.NoError(t, s.Add("sync", "*/10 * * * *", 0, noop))
}

func TestAddUpsertsByName(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Add("sync", "10m", time.Minute, noop))
	require.NoError(t, s.Add("sync", "*/5 * * * *", time.Minute, noop))

	snap := s.Snapshot()
	require.Len(t, snap.Schedules, 1)
	assert.Equal(t, "*/5 * * * *", snap.Schedules[0].Spec)
	assert.False(t, snap.Schedules[0].Next.IsZero())
	assert.Equal(t, "UTC", snap.Timezone)
	assert.True(t, snap.Started)
}

func TestIntervalGetsStartupSpread(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Add("sync", "10m", 0, noop))

	it := s.Snapshot().Schedules[0]
	assert.Equal(t, "@every 10m0s", it.Spec)
	assert.Less(t, it.StartupSpread, maxStartupSpread)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute+it.StartupSpread), it.Next, 2*time.Second)
}

func TestStartupSpreadIsStablePerName(t *testing.T) {
	assert.Equal(t, startupSpread("sync", time.Hour), startupSpread("sync", time.Hour))
	assert.Less(t, startupSpread("sync", time.Hour), maxStartupSpread)
	assert.Less(t, startupSpread("sync", 5*time.Second), 5*time.Second)
	assert.Zero(t, startupSpread("sync", 0))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, spread := intervalSchedule("sync", time.Minute, now)
	first := sched.Next(now)
	assert.Equal(t, now.Add(time.Minute+spread), first)
	assert.Equal(t, first.Add(time.Minute), sched.Next(first))
}

func TestTriggerRequiresStart(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	require.NoError(t, s.Add("sync", "10m", 0, noop))
	require.ErrorIs(t, s.Trigger("sync"), ErrNotStarted)

	disabled := New(Config{Enabled: false}, logx.Nop(), nil)
	disabled.Start(context.Background())
	require.ErrorIs(t, disabled.Trigger("sync"), ErrNotStarted)
}

func TestTriggerRunsJobAndRecordsResult(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	s := New(Config{Enabled: true}, logx.Nop(), bus)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	boom := errors.New("boom")
	require.NoError(t, s.Add("sync", "1h", time.Second, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return boom
	}))
	require.ErrorIs(t, s.Trigger("missing"), ErrUnknownJob)
	require.NoError(t, s.Trigger("sync"))

	select {
	case ev := <-events:
		require.Equal(t, EventJobFinished, ev.Type)
		res := ev.Data.(JobResult)
		assert.Equal(t, "sync", res.Name)
		assert.Equal(t, "boom", res.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("no job event")
	}

	it := s.Snapshot().Schedules[0]
	assert.Equal(t, uint64(1), it.Runs)
	assert.Equal(t, "boom", it.LastError)
	assert.False(t, it.Running)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := newStarted(t)
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, s.Add("sync", "1h", 0, func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}))

	require.NoError(t, s.Trigger("sync"))
	require.Eventually(t, func() bool { return s.Snapshot().Schedules[0].Running }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Trigger("sync"))
	require.Eventually(t, func() bool { return s.Snapshot().Schedules[0].Skipped == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return s.Snapshot().Schedules[0].Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestStopCancelsInFlightJob(t *testing.T) {
	s := New(Config{Enabled: true}, logx.Nop(), nil)
	s.Start(context.Background())

	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, s.Add("sync", "1h", 0, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))
	require.NoError(t, s.Trigger("sync"))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	assert.True(t, cancelled.Load())
	assert.False(t, s.Snapshot().Started)
}

func TestPanickingJobIsRecovered(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Add("sync", "1h", 0, func(context.Context) error { panic("bad") }))
	require.NoError(t, s.Trigger("sync"))
	require.Eventually(t, func() bool { return s.Snapshot().Schedules[0].Runs == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, s.Snapshot().Schedules[0].LastError, "panic")
}

func TestApplyTimezoneRestartKeepsSchedules(t *testing.T) {
	s := newStarted(t)
	require.NoError(t, s.Add("sync", "0 9 * * *", 0, noop))
	require.NoError(t, s.Add("other", "5m", 0, noop))

	s.Apply(Config{Enabled: true, Timezone: "Asia/Jakarta"})
	snap := s.Snapshot()
	assert.Equal(t, "Asia/Jakarta", snap.Timezone)
	require.Len(t, snap.Schedules, 2)
	for _, it := range snap.Schedules {
		assert.False(t, it.Next.IsZero(), it.Name)
	}
	next := s.NextRun("sync").UTC()
	assert.Equal(t, 2, next.Hour()) // 09:00 WIB

	assert.True(t, s.Remove("other"))
	assert.False(t, s.Remove("other"))
	assert.Len(t, s.Snapshot().Schedules, 1)
}
