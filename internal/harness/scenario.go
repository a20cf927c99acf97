package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/logger"
)

// Scenario is one check run against a freshly set up harness.
type Scenario struct {
	// Name is used as the test name, the fixture object name and the table id.
	Name string

	// Description explains what the scenario validates.
	Description string

	// Run performs the scenario and returns the first violated expectation.
	Run func(ctx context.Context, h *Harness) error
}

// Result is the outcome of a single scenario.
type Result struct {
	Name     string        `json:"name"`
	Pass     bool          `json:"pass"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// errExpectedFailure marks a task that succeeded when it should not have.
var errExpectedFailure = errors.New("expected task to fail")

// Scenarios are the checks run for every backend.
var Scenarios = []Scenario{
	{
		Name:        "test_load_eu_to_undefined",
		Description: "loading with location EU into a dataset created without a location fails",
		Run: func(ctx context.Context, h *Harness) error {
			task := h.NewLoadTask(h.Table.DatasetID, h.Table.TableID, LocationEU)
			return expectFailure(task.Run(ctx))
		},
	},
	{
		Name:        "test_load_us_to_eu",
		Description: "loading with location US into the EU dataset fails",
		Run: func(ctx context.Context, h *Harness) error {
			task := h.NewLoadTask(h.TableEU.DatasetID, h.TableEU.TableID, LocationUS)
			return expectFailure(task.Run(ctx))
		},
	},
	{
		Name:        "test_load_eu_to_eu",
		Description: "loading with location EU into the EU dataset succeeds",
		Run: func(ctx context.Context, h *Harness) error {
			task := h.NewLoadTask(h.TableEU.DatasetID, h.TableEU.TableID, LocationEU)
			if err := task.Run(ctx); err != nil {
				return err
			}
			return h.VerifyLoaded(ctx, h.TableEU)
		},
	},
	{
		Name:        "test_load_undefined_to_eu",
		Description: "loading without a location into the EU dataset succeeds",
		Run: func(ctx context.Context, h *Harness) error {
			task := h.NewLoadTask(h.TableEU.DatasetID, h.TableEU.TableID, "")
			if err := task.Run(ctx); err != nil {
				return err
			}
			return h.VerifyLoaded(ctx, h.TableEU)
		},
	},
	{
		Name:        "test_load_new_eu_dataset",
		Description: "loading with location EU recreates a deleted EU dataset",
		Run: func(ctx context.Context, h *Harness) error {
			for _, ds := range []bq.Dataset{h.Table.Dataset(), h.TableEU.Dataset()} {
				if err := h.Client.DeleteDataset(ctx, ds, true); err != nil {
					return err
				}
			}
			if err := expectDataset(ctx, h, h.TableEU.Dataset(), false); err != nil {
				return err
			}
			task := h.NewLoadTask(h.TableEU.DatasetID, h.TableEU.TableID, LocationEU)
			if err := task.Run(ctx); err != nil {
				return err
			}
			return h.VerifyLoaded(ctx, h.TableEU)
		},
	},
	{
		Name:        "test_copy",
		Description: "a copied table exists until it is deleted",
		Run: func(ctx context.Context, h *Harness) error {
			load := h.NewLoadTask(h.Table.DatasetID, h.Table.TableID, "")
			if err := load.Run(ctx); err != nil {
				return err
			}

			dst := h.Table.WithTableID(h.Table.TableID + "_copy")
			if err := h.Client.Copy(ctx, copyJob(h.Table, dst)); err != nil {
				return err
			}
			if err := expectTable(ctx, h, dst, true); err != nil {
				return err
			}
			if err := h.Client.DeleteTable(ctx, dst); err != nil {
				return err
			}
			return expectTable(ctx, h, dst, false)
		},
	},
	{
		Name:        "test_table_uri",
		Description: "a table URI is bq://project/dataset/table",
		Run: func(ctx context.Context, h *Harness) error {
			want := fmt.Sprintf("bq://%s/%s/%s", h.Env.ProjectID, h.Table.DatasetID, h.Table.TableID)
			if got := h.Table.URI(); got != want {
				return fmt.Errorf("table URI: got %q, want %q", got, want)
			}
			return nil
		},
	},
	{
		Name:        "test_run_query",
		Description: "a run-query task produces its output table",
		Run: func(ctx context.Context, h *Harness) error {
			task := h.NewRunQueryTask(h.Table.DatasetID, h.Table.TableID)
			if err := task.Run(ctx); err != nil {
				return err
			}
			ok, err := task.Output().Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("query output %s does not exist", task.Output().URI())
			}
			return nil
		},
	},
}

// Factory builds a harness for a scenario name.
type Factory func(name string) (*Harness, error)

// RunScenario sets up a harness, runs s and tears the harness down.
// A teardown failure fails an otherwise passing scenario.
func RunScenario(ctx context.Context, newHarness Factory, s Scenario) Result {
	start := time.Now()
	res := Result{Name: s.Name}

	err := runScenario(ctx, newHarness, s)
	res.Duration = time.Since(start)
	res.Pass = err == nil
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func runScenario(ctx context.Context, newHarness Factory, s Scenario) (err error) {
	h, err := newHarness(s.Name)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	defer func() {
		err = errors.Join(err, h.TearDown(ctx))
	}()

	if err := h.SetUp(ctx); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	if err := s.Run(ctx, h); err != nil {
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	return nil
}

// RunAll runs every scenario in order and logs each result.
func RunAll(ctx context.Context, newHarness Factory, scenarios []Scenario) []Result {
	log := logger.FromContext(ctx)

	results := make([]Result, 0, len(scenarios))
	for _, s := range scenarios {
		res := RunScenario(ctx, newHarness, s)
		ev := log.Info()
		if !res.Pass {
			ev = log.Error().Str("error", res.Error)
		}
		ev.Str("scenario", s.Name).Dur("duration", res.Duration).Bool("pass", res.Pass).Msg("Scenario finished")
		results = append(results, res)
	}
	return results
}

func expectFailure(err error) error {
	if err == nil {
		return errExpectedFailure
	}
	return nil
}

func expectDataset(ctx context.Context, h *Harness, ds bq.Dataset, want bool) error {
	ok, err := h.Client.DatasetExists(ctx, ds)
	if err != nil {
		return err
	}
	if ok != want {
		return fmt.Errorf("dataset %s: exists=%t, want %t", ds, ok, want)
	}
	return nil
}

func expectTable(ctx context.Context, h *Harness, t bq.Table, want bool) error {
	ok, err := h.Client.TableExists(ctx, t)
	if err != nil {
		return err
	}
	if ok != want {
		return fmt.Errorf("table %s: exists=%t, want %t", t, ok, want)
	}
	return nil
}

func copyJob(src, dst bq.Table) bq.CopyJob {
	return bq.CopyJob{
		Sources:           []bq.Table{src},
		Destination:       dst,
		CreateDisposition: bq.CreateIfNeeded,
		WriteDisposition:  bq.WriteTruncate,
	}
}
