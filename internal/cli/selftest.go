package cli

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bqflow/internal/config"
	"github.com/dvloznov/bqflow/internal/harness"
)

// NewSelftestCommand creates the selftest command.
func NewSelftestCommand(opts *RootOptions) *cobra.Command {
	var run string

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run the integration scenarios against a live project",
		Long: fmt.Sprintf(`Run the integration scenarios against a live project and bucket.

Reads %s, %s, %s, %s and %s. Every scenario
creates and deletes its own datasets and bucket folder.`,
			config.EnvProjectID, config.EnvBucket, config.EnvBuildID, config.EnvDatasetID, config.EnvEUDatasetID),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.FromEnv()
			if err != nil {
				return usageError("%w", err)
			}
			if cmd.Flags().Changed("project") {
				env.ProjectID = opts.Project
			}

			scenarios, err := selectScenarios(run)
			if err != nil {
				return err
			}

			backend, err := harness.Connect(cmd.Context(), env, opts.log, opts.metrics)
			if err != nil {
				return err
			}
			defer backend.Close()

			results := harness.RunAll(cmd.Context(), backend.Factory(), scenarios)

			lines := make([]string, 0, len(results))
			failed := 0
			for _, r := range results {
				status := "PASS"
				if !r.Pass {
					status = "FAIL"
					failed++
				}
				line := fmt.Sprintf("%s %s (%s)", status, r.Name, r.Duration.Round(time.Millisecond))
				if r.Error != "" {
					line += ": " + r.Error
				}
				lines = append(lines, line)
			}
			if err := opts.output(cmd.OutOrStdout()).Lines(results, lines); err != nil {
				return err
			}
			if failed > 0 {
				return &ExitError{Code: ExitFailure, Err: fmt.Errorf("%d of %d scenarios failed", failed, len(results))}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&run, "run", "", "only run scenarios whose name matches this regular expression")

	return cmd
}

func selectScenarios(pattern string) ([]harness.Scenario, error) {
	if pattern == "" {
		return harness.Scenarios, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, usageError("invalid --run pattern: %w", err)
	}

	var out []harness.Scenario
	for _, s := range harness.Scenarios {
		if re.MatchString(s.Name) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, usageError("no scenario matches %q", pattern)
	}
	return out, nil
}
