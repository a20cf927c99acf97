package jobs

import (
	"context"
	"time"

	"github.com/dvloznov/bqflow/internal/tasks"
)

// RunStatus represents the current status of a task run.
type RunStatus string

const (
	// RunStatusPending indicates the run is waiting for a worker.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates a worker is executing the task.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the task completed successfully.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the task failed and has no retries left.
	RunStatusFailed RunStatus = "failed"
	// RunStatusRetrying indicates the task failed and will be retried.
	RunStatusRetrying RunStatus = "retrying"
)

// TaskRun is one scheduled execution of a task.
type TaskRun struct {
	// JobID is the unique identifier for this run.
	JobID string `json:"job_id"`

	// TaskID is the ID of the task being run.
	TaskID string `json:"task_id"`

	// Kind is the task kind, e.g. "load".
	Kind string `json:"kind"`

	// Status is the current status of the run.
	Status RunStatus `json:"status"`

	// CreatedAt is when the run was published.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when a worker picked the run up.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the last attempt finished.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains the last failure, if any.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this run has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Task is executed by the handler. It is not persisted.
	Task tasks.Task `json:"-"`
}

// NewTaskRun creates a pending run for task.
func NewTaskRun(task tasks.Task, maxRetries int) *TaskRun {
	return &TaskRun{
		TaskID:     task.ID(),
		Kind:       task.Kind(),
		Status:     RunStatusPending,
		MaxRetries: maxRetries,
		Task:       task,
	}
}

// IsTerminal reports whether the run will not change status again.
func (r *TaskRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// Publisher defines the interface for publishing runs to a queue.
type Publisher interface {
	// Publish enqueues a run.
	Publish(ctx context.Context, run *TaskRun) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming runs from a queue.
type Consumer interface {
	// Start begins consuming runs from the queue.
	// The handler function is called for each run received.
	Start(ctx context.Context, handler Handler) error

	// Stop stops consuming runs and waits for in-flight runs to complete.
	Stop(ctx context.Context) error
}

// Handler executes a run. A returned error marks the attempt as failed.
type Handler func(ctx context.Context, run *TaskRun) error

// Store keeps the state of task runs.
type Store interface {
	// SaveRun saves or updates a run's state.
	SaveRun(ctx context.Context, run *TaskRun) error

	// GetRun retrieves a run by job ID.
	GetRun(ctx context.Context, jobID string) (*TaskRun, error)

	// ListRuns retrieves runs with optional filtering, oldest first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*TaskRun, error)

	// UpdateRunStatus updates the status of a run.
	UpdateRunStatus(ctx context.Context, jobID string, status RunStatus, errorMsg string) error
}

// RunFilter defines filtering criteria for listing runs.
type RunFilter struct {
	// Kind filters runs by task kind.
	Kind string

	// Status filters runs by status.
	Status RunStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
