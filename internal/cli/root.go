// Package cli implements the bqflow command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/bqflow/internal/config"
	"github.com/dvloznov/bqflow/internal/logger"
	"github.com/dvloznov/bqflow/internal/metrics"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // A task or scenario failed
	ExitCommandError = 2 // Bad flags, config or manifest
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(format string, args ...interface{}) error {
	return &ExitError{Code: ExitCommandError, Err: fmt.Errorf(format, args...)}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Project     string
	Location    string
	LogLevel    string
	Format      string // "json" | "text"
	MetricsAddr string

	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "bqflow",
		Short:         "Run BigQuery and GCS tasks",
		Long:          "bqflow loads, queries, copies and extracts BigQuery tables as idempotent tasks, and checks a live project with the integration scenarios.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return usageError("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.init(cmd)
			return opts.serveMetrics(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Project, "project", "p", os.Getenv(config.EnvProjectID), "GCP project (or set "+config.EnvProjectID+")")
	cmd.PersistentFlags().StringVar(&opts.Location, "location", "", "location of destination datasets, e.g. EU or US")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (default from "+logger.LevelEnv+", else info)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewCopyCommand(opts))
	cmd.AddCommand(NewExtractCommand(opts))
	cmd.AddCommand(NewURICommand(opts))
	cmd.AddCommand(NewDatasetsCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSelftestCommand(opts))

	return cmd
}

func (o *RootOptions) init(cmd *cobra.Command) {
	o.log = logger.NewConsole(cmd.ErrOrStderr())
	if o.LogLevel != "" {
		o.log = o.log.Level(logger.ParseLevel(o.LogLevel))
	}
	o.registry = prometheus.NewRegistry()
	o.metrics = metrics.New(o.registry)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(logger.WithContext(ctx, o.log))
}

// serveMetrics exposes the registry when --metrics-addr is set. The listener lives
// until ctx is done or the process exits.
func (o *RootOptions) serveMetrics(ctx context.Context) error {
	if o.MetricsAddr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", o.MetricsAddr)
	if err != nil {
		return usageError("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}
	o.log.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
	return nil
}

func (o *RootOptions) requireProject() error {
	if o.Project == "" {
		return usageError("--project is required (or set %s)", config.EnvProjectID)
	}
	return nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
