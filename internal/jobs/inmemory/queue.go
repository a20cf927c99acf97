package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/bqflow/internal/jobs"
)

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for run distribution and is safe for concurrent use.
type Queue struct {
	runChan   chan *jobs.TaskRun
	closeChan chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.Store
	closed    bool

	workers int
	backoff time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets how many runs execute concurrently. The default is 5.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithBackoff sets the base retry delay. Attempt n waits n times the base.
func WithBackoff(d time.Duration) Option {
	return func(q *Queue) { q.backoff = d }
}

// NewQueue creates a new in-memory run queue.
// bufferSize determines how many runs can be queued before Publish blocks.
func NewQueue(bufferSize int, store jobs.Store, opts ...Option) *Queue {
	q := &Queue{
		runChan:   make(chan *jobs.TaskRun, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   5,
		backoff:   time.Second,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, run *jobs.TaskRun) error {
	if run.JobID == "" {
		run.JobID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = jobs.RunStatusPending
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	q.pending.Add(1)
	if err := q.enqueue(ctx, run); err != nil {
		q.pending.Done()
		return err
	}
	return nil
}

// enqueue must not hold mu while sending: Stop needs the lock to close closeChan,
// which is what unblocks a send on a full buffer.
func (q *Queue) enqueue(ctx context.Context, run *jobs.TaskRun) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()

	if closed {
		return ErrQueueClosed
	}

	if q.store != nil {
		if err := q.store.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
	}

	select {
	case q.runChan <- run:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case run := <-q.runChan:
			if run == nil {
				return
			}
			q.processRun(ctx, run, handler)
		}
	}
}

// processRun executes a single attempt and schedules a retry when allowed.
func (q *Queue) processRun(ctx context.Context, run *jobs.TaskRun, handler jobs.Handler) {
	run.Status = jobs.RunStatusRunning
	now := time.Now()
	run.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveRun(ctx, run)
	}

	err := handler(ctx, run)

	completedAt := time.Now()
	run.CompletedAt = &completedAt

	if err != nil {
		run.Error = err.Error()

		if run.RetryCount < run.MaxRetries && ctx.Err() == nil {
			run.RetryCount++
			run.Status = jobs.RunStatusRetrying
			if q.store != nil {
				_ = q.store.SaveRun(ctx, run)
			}

			backoff := time.Duration(run.RetryCount) * q.backoff
			time.AfterFunc(backoff, func() {
				run.Status = jobs.RunStatusPending
				run.StartedAt = nil
				run.CompletedAt = nil
				if err := q.enqueue(ctx, run); err != nil {
					run.Status = jobs.RunStatusFailed
					run.Error = fmt.Sprintf("%s; retry not scheduled: %v", run.Error, err)
					if q.store != nil {
						_ = q.store.SaveRun(context.Background(), run)
					}
					q.pending.Done()
				}
			})
			return
		}
		run.Status = jobs.RunStatusFailed
	} else {
		run.Status = jobs.RunStatusCompleted
		run.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveRun(ctx, run)
	}
	q.pending.Done()
}

// Drain blocks until every published run is completed or failed.
func (q *Queue) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight runs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
