package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bqflow/internal/api"
	"github.com/dvloznov/bqflow/internal/api/handlers"
	"github.com/dvloznov/bqflow/internal/jobs"
	"github.com/dvloznov/bqflow/internal/jobs/inmemory"
	"github.com/dvloznov/bqflow/internal/manifest"
	"github.com/dvloznov/bqflow/internal/tasks"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	File    string
	Workers int
	Timeout time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	runOpts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every task of a YAML manifest",
		Long: `Run every task of a YAML manifest on a local worker pool.
Tasks whose output already exists are skipped. Failed tasks are retried up to the
manifest's max_retries.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("file", runOpts.File); err != nil {
				return err
			}
			m, err := manifest.Load(runOpts.File)
			if err != nil {
				return usageError("%w", err)
			}
			if m.Project == "" {
				m.Project = opts.Project
			}
			if m.Location == "" {
				m.Location = opts.Location
			}
			if opts.Project == "" {
				opts.Project = m.Project
			}

			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			built, err := m.Build(c.warehouse, c.storage)
			if err != nil {
				return usageError("%w", err)
			}

			ctx := cmd.Context()
			if runOpts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runOpts.Timeout)
				defer cancel()
			}

			runs, err := runTasks(ctx, built, m.MaxRetries, runOpts.Workers, jobs.TaskHandler(opts.metrics))
			if err != nil {
				return err
			}
			return reportRuns(opts, cmd, runs)
		},
	}

	cmd.Flags().StringVarP(&runOpts.File, "file", "f", "", "manifest file (required)")
	cmd.Flags().IntVarP(&runOpts.Workers, "workers", "w", 4, "concurrent tasks")
	cmd.Flags().DurationVar(&runOpts.Timeout, "timeout", 0, "overall timeout, e.g. 30m (0 disables)")

	return cmd
}

// runTasks publishes one run per task, waits for all of them and returns their
// final state in publish order.
func runTasks(ctx context.Context, built []tasks.Task, maxRetries, workers int, handler jobs.Handler) ([]*jobs.TaskRun, error) {
	store := inmemory.NewStore()
	queue := inmemory.NewQueue(len(built), store, inmemory.WithWorkers(workers))

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := queue.Start(workerCtx, handler); err != nil {
		return nil, err
	}
	defer queue.Close()

	ids := make([]string, 0, len(built))
	for _, t := range built {
		run := jobs.NewTaskRun(t, maxRetries)
		if err := queue.Publish(ctx, run); err != nil {
			return nil, fmt.Errorf("publish %s: %w", t.ID(), err)
		}
		ids = append(ids, run.JobID)
	}

	if err := queue.Drain(ctx); err != nil {
		return nil, fmt.Errorf("waiting for task runs: %w", err)
	}

	runs := make([]*jobs.TaskRun, 0, len(ids))
	for _, id := range ids {
		run, err := store.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func reportRuns(opts *RootOptions, cmd *cobra.Command, runs []*jobs.TaskRun) error {
	lines := make([]string, 0, len(runs))
	failed := 0
	for _, r := range runs {
		line := fmt.Sprintf("%-9s %s", r.Status, r.TaskID)
		if r.Error != "" {
			line += ": " + r.Error
		}
		if r.Status != jobs.RunStatusCompleted {
			failed++
		}
		lines = append(lines, line)
	}
	if err := opts.output(cmd.OutOrStdout()).Lines(runs, lines); err != nil {
		return err
	}
	if failed > 0 {
		return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%d of %d tasks failed", failed, len(runs))}
	}
	return nil
}

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var (
		addr    string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept manifests over HTTP and run their tasks",
		Long: `Serve POST /api/runs (YAML manifest body), GET /api/runs[/{id}], /metrics and
/health until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store := inmemory.NewStore()
			queue := inmemory.NewQueue(100, store, inmemory.WithWorkers(workers))
			if err := queue.Start(ctx, jobs.TaskHandler(opts.metrics)); err != nil {
				return err
			}

			runs := handlers.NewRunsHandler(queue, store, c.warehouse, c.storage, opts.log)
			server := &http.Server{
				Addr:         addr,
				Handler:      api.NewRouter(runs, opts.registry, opts.log),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				opts.log.Info().Str("addr", addr).Msg("Starting API server")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			opts.log.Info().Msg("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				opts.log.Error().Err(err).Msg("Server forced to shutdown")
			}
			if err := queue.Stop(shutdownCtx); err != nil {
				opts.log.Error().Err(err).Msg("Error stopping job queue")
			}
			opts.log.Info().Msg("Server exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "concurrent tasks")

	return cmd
}
