package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bqflow/internal/jobs"
)

func startQueue(t *testing.T, store *Store, handler jobs.Handler) *Queue {
	t.Helper()

	q := NewQueue(10, store, WithWorkers(2), WithBackoff(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, q.Start(ctx, handler))
	t.Cleanup(func() {
		cancel()
		_ = q.Stop(context.Background())
	})
	return q
}

func drain(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
}

func TestQueue_CompletesRuns(t *testing.T) {
	store := NewStore()
	var calls atomic.Int32
	q := startQueue(t, store, func(ctx context.Context, run *jobs.TaskRun) error {
		calls.Add(1)
		return nil
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Publish(ctx, &jobs.TaskRun{Kind: "load"}))
	}
	drain(t, q)

	assert.Equal(t, int32(3), calls.Load())
	runs, err := store.ListRuns(ctx, jobs.RunFilter{Status: jobs.RunStatusCompleted})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, r := range runs {
		assert.NotEmpty(t, r.JobID)
		assert.NotNil(t, r.StartedAt)
		assert.NotNil(t, r.CompletedAt)
		assert.True(t, r.IsTerminal())
	}
}

func TestQueue_RetriesThenFails(t *testing.T) {
	store := NewStore()
	var attempts atomic.Int32
	q := startQueue(t, store, func(ctx context.Context, run *jobs.TaskRun) error {
		attempts.Add(1)
		return errors.New("location mismatch")
	})

	ctx := context.Background()
	run := &jobs.TaskRun{JobID: "job-1", Kind: "load", MaxRetries: 2}
	require.NoError(t, q.Publish(ctx, run))
	drain(t, q)

	assert.Equal(t, int32(3), attempts.Load())
	got, err := store.GetRun(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, jobs.RunStatusFailed, got.Status)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, "location mismatch", got.Error)
}

func TestQueue_RetrySucceeds(t *testing.T) {
	store := NewStore()
	var attempts atomic.Int32
	q := startQueue(t, store, func(ctx context.Context, run *jobs.TaskRun) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	})

	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, &jobs.TaskRun{JobID: "job-2", MaxRetries: 3}))
	drain(t, q)

	got, err := store.GetRun(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, jobs.RunStatusCompleted, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.Error)
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(1, nil)
	require.NoError(t, q.Close())
	require.NoError(t, q.Stop(context.Background()), "stopping twice is fine")

	err := q.Publish(context.Background(), &jobs.TaskRun{})
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Start(context.Background(), nil), ErrQueueClosed)

	// A rejected publish does not leave Drain waiting.
	drain(t, q)
}

func TestQueue_StopUnblocksPublishOnFullBuffer(t *testing.T) {
	q := NewQueue(1, NewStore())
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, &jobs.TaskRun{Kind: "load"}))

	published := make(chan error, 1)
	go func() {
		published <- q.Publish(ctx, &jobs.TaskRun{Kind: "load"})
	}()
	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(stopCtx) }()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind a Publish waiting on a full buffer")
	}

	select {
	case err := <-published:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Publish still blocked after Stop")
	}
}
