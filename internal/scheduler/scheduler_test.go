package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerDropsOverlappingRun(t *testing.T) {
	s := New(time.Minute)
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs atomic.Int32

	require.NoError(t, s.Register("ingest", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}))

	runID, err := s.Trigger("ingest")
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	<-started

	_, err = s.Trigger("ingest")
	assert.ErrorIs(t, err, ErrJobRunning)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.True(t, jobs[0].Running)
	assert.Equal(t, runID, jobs[0].LastRunID)

	close(release)
	require.Eventually(t, func() bool {
		_, err := s.Trigger("ingest")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	<-started
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, int32(2), runs.Load())
}

func TestJobsRunIndependently(t *testing.T) {
	s := New(time.Minute)
	block := make(chan struct{})
	aggregated := make(chan struct{})

	require.NoError(t, s.Register("ingest", time.Hour, func(ctx context.Context) error {
		<-block
		return nil
	}))
	require.NoError(t, s.Register("aggregate", time.Hour, func(ctx context.Context) error {
		close(aggregated)
		return nil
	}))

	_, err := s.Trigger("ingest")
	require.NoError(t, err)
	_, err = s.Trigger("aggregate")
	require.NoError(t, err)

	select {
	case <-aggregated:
	case <-time.After(time.Second):
		t.Fatal("aggregate blocked behind ingest")
	}
	close(block)
	require.NoError(t, s.Stop(context.Background()))
}

func TestFailedRunIsRecorded(t *testing.T) {
	s := New(time.Minute)
	require.NoError(t, s.Register("aggregate", time.Hour, func(ctx context.Context) error {
		return errors.New("database is locked")
	}))

	_, err := s.Trigger("aggregate")
	require.NoError(t, err)
	require.NoError(t, s.Stop(context.Background()))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Running)
	assert.Equal(t, "database is locked", jobs[0].LastError)
}

func TestStopCancelsRunningJobs(t *testing.T) {
	s := New(time.Minute)
	started := make(chan struct{})
	require.NoError(t, s.Register("ingest", time.Hour, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))

	s.Start(true)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Contains(t, s.Jobs()[0].LastError, "context canceled")
}

func TestRegisterValidation(t *testing.T) {
	s := New(0)
	noop := func(ctx context.Context) error { return nil }

	assert.Error(t, s.Register("ingest", 0, noop))
	require.NoError(t, s.Register("ingest", 15*time.Minute, noop))
	assert.ErrorIs(t, s.Register("ingest", time.Minute, noop), ErrDuplicateID)

	_, err := s.Trigger("missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}
