// Package tasks binds BigQuery and GCS operations to a small task contract:
// a task runs synchronously and exposes an output whose existence means the
// task is complete.
package tasks

import (
	"context"
	"fmt"

	"github.com/dvloznov/bqflow/internal/logger"
)

// Target is the output of a task.
type Target interface {
	// Exists reports whether the output has been produced.
	Exists(ctx context.Context) (bool, error)

	// URI identifies the output, e.g. bq://project/dataset/table or gs://bucket/key.
	URI() string
}

// Task is a unit of work with a single output.
type Task interface {
	// ID identifies the task instance.
	ID() string

	// Kind names the task type, e.g. "load".
	Kind() string

	// Run executes the task synchronously and returns any failure.
	Run(ctx context.Context) error

	// Output returns the target produced by Run.
	Output() Target
}

// Kinds of tasks.
const (
	KindLoad    = "load"
	KindQuery   = "query"
	KindCopy    = "copy"
	KindExtract = "extract"
	KindView    = "view"
)

// Completer is implemented by tasks whose completion is more than output existence.
type Completer interface {
	Complete(ctx context.Context) (bool, error)
}

// Complete reports whether task has already produced its output.
func Complete(ctx context.Context, task Task) (bool, error) {
	if c, ok := task.(Completer); ok {
		return c.Complete(ctx)
	}
	ok, err := task.Output().Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("Complete %s: %w", task.ID(), err)
	}
	return ok, nil
}

// Build runs task unless it is already complete. It reports whether Run was called.
func Build(ctx context.Context, task Task) (bool, error) {
	log := logger.FromContext(ctx)

	done, err := Complete(ctx, task)
	if err != nil {
		return false, err
	}
	if done {
		log.Info().Str("task_id", task.ID()).Msg("Task already complete")
		return false, nil
	}

	log.Info().Str("task_id", task.ID()).Msg("Running task")
	if err := task.Run(ctx); err != nil {
		log.Error().Err(err).Str("task_id", task.ID()).Msg("Task failed")
		return true, err
	}
	log.Info().Str("task_id", task.ID()).Str("output", task.Output().URI()).Msg("Task done")
	return true, nil
}

func taskID(kind, uri string) string {
	return fmt.Sprintf("%s(%s)", kind, uri)
}
