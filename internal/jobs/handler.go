package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bqflow/internal/logger"
	"github.com/dvloznov/bqflow/internal/metrics"
	"github.com/dvloznov/bqflow/internal/tasks"
)

// TaskHandler builds the run's task unless it is already complete and records the
// attempt in m, which may be nil.
func TaskHandler(m *metrics.Metrics) Handler {
	return func(ctx context.Context, run *TaskRun) error {
		if run.Task == nil {
			return fmt.Errorf("run %s: no task attached", run.JobID)
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", run.JobID).
			Str("kind", run.Kind).
			Int("attempt", run.RetryCount+1).
			Logger()
		ctx = logger.WithContext(ctx, log)

		start := time.Now()
		_, err := tasks.Build(ctx, run.Task)
		m.ObserveTask(run.Kind, metrics.StatusCode(err), time.Since(start))
		return err
	}
}
