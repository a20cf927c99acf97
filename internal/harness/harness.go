// Package harness provisions a bucket folder and a pair of datasets, runs BigQuery
// tasks against them and checks the resulting remote state. The same harness
// drives the live project and the offline in-memory backend.
package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/config"
	"github.com/dvloznov/bqflow/internal/gcs"
	"github.com/dvloznov/bqflow/internal/logger"
	"github.com/dvloznov/bqflow/internal/tasks"
)

// Locations used by the scenarios.
const (
	LocationEU = "EU"
	LocationUS = "US"
)

// Query run by NewRunQueryTask.
const Query = "SELECT 'hello' as field1, 2 as field2"

// Record is one line of the JSON-lines fixture.
type Record struct {
	Field1 string `json:"field1"`
	Field2 int64  `json:"field2"`
}

// Fixture is uploaded to the bucket folder before every scenario.
var Fixture = []Record{
	{Field1: "hi", Field2: 1},
	{Field1: "bye", Field2: 2},
}

// FixtureSchema matches Record.
var FixtureSchema = bq.Schema{
	{Name: "field1", Type: "STRING", Mode: bq.ModeNullable},
	{Name: "field2", Type: "INTEGER", Mode: bq.ModeNullable},
}

// Harness is the per-test fixture.
type Harness struct {
	Env      config.Env
	Client   bq.Warehouse
	Storage  gcs.StorageService
	TestName string

	// Table lives in the default dataset, created without a location.
	Table bq.Table
	// TableEU lives in the EU dataset.
	TableEU bq.Table

	// FixtureURI is where SetUp uploads the fixture.
	FixtureURI string

	log zerolog.Logger
}

var invalidTableChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// New builds a harness for one test. testName becomes the fixture object name and
// the table id, with characters BigQuery rejects replaced by underscores.
func New(env config.Env, client bq.Warehouse, storage gcs.StorageService, testName string) *Harness {
	tableID := invalidTableChars.ReplaceAllString(testName, "_")

	h := &Harness{
		Env:      env,
		Client:   client,
		Storage:  storage,
		TestName: testName,
		Table:    bq.NewTable(env.ProjectID, env.DatasetID, tableID, ""),
		TableEU:  bq.NewTable(env.ProjectID, env.EUDatasetID, tableID+"_eu", LocationEU),
		log:      logger.WithComponent(logger.Nop(), "harness"),
	}
	h.FixtureURI = h.BucketURL(tableID)
	return h
}

// WithLogger sets the logger used for setup and teardown output.
func (h *Harness) WithLogger(log zerolog.Logger) *Harness {
	h.log = logger.WithComponent(log, "harness")
	return h
}

// BucketURL returns gs://{bucket}/{folder}/{suffix}.
func (h *Harness) BucketURL(suffix string) string {
	return fmt.Sprintf("gs://%s/%s/%s", h.Env.Bucket, h.Env.Folder, suffix)
}

// FixtureContent renders Fixture as JSON lines.
func FixtureContent() (string, error) {
	lines := make([]string, 0, len(Fixture))
	for _, r := range Fixture {
		b, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("FixtureContent: %w", err)
		}
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n"), nil
}

// SetUp prepares the bucket folder and both datasets. The bucket is created in
// the EU when missing. The folder and the datasets are recreated from scratch.
// An invalid Env is rejected before anything is touched.
func (h *Harness) SetUp(ctx context.Context) error {
	if err := h.Env.Validate(); err != nil {
		return fmt.Errorf("SetUp: %w", err)
	}

	h.log.Info().
		Str("test", h.TestName).
		Str("bucket", h.Env.Bucket).
		Str("folder", h.Env.Folder).
		Msg("Setting up")

	err := h.Storage.CreateBucket(ctx, h.Env.ProjectID, h.Env.Bucket, LocationEU)
	if err != nil && !errors.Is(err, gcs.ErrBucketExists) {
		return fmt.Errorf("SetUp: %w", err)
	}

	folder := h.BucketURL("")
	if _, err := h.Storage.Remove(ctx, folder, true); err != nil {
		return fmt.Errorf("SetUp: clear folder: %w", err)
	}
	if err := h.Storage.Mkdir(ctx, folder); err != nil {
		return fmt.Errorf("SetUp: %w", err)
	}

	content, err := FixtureContent()
	if err != nil {
		return fmt.Errorf("SetUp: %w", err)
	}
	if err := h.Storage.PutString(ctx, content, h.FixtureURI, "application/json"); err != nil {
		return fmt.Errorf("SetUp: upload fixture: %w", err)
	}

	for _, ds := range []bq.Dataset{h.Table.Dataset(), h.TableEU.Dataset()} {
		if err := h.Client.DeleteDataset(ctx, ds, true); err != nil {
			return fmt.Errorf("SetUp: %w", err)
		}
		if err := h.Client.MakeDataset(ctx, ds, false); err != nil {
			return fmt.Errorf("SetUp: %w", err)
		}
	}
	return nil
}

// TearDown removes the folder and both datasets. Every step is attempted and the
// failures are joined.
func (h *Harness) TearDown(ctx context.Context) error {
	var errs []error
	if strings.Trim(strings.TrimSpace(h.Env.Folder), "/") == "" {
		errs = append(errs, fmt.Errorf("TearDown: refusing to clear the root of bucket %s: %w", h.Env.Bucket, config.ErrNotConfigured))
	} else if _, err := h.Storage.Remove(ctx, h.BucketURL(""), true); err != nil {
		errs = append(errs, fmt.Errorf("TearDown: remove folder: %w", err))
	}
	for _, ds := range []bq.Dataset{h.Table.Dataset(), h.TableEU.Dataset()} {
		if err := h.Client.DeleteDataset(ctx, ds, true); err != nil {
			errs = append(errs, fmt.Errorf("TearDown: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		h.log.Warn().Err(err).Str("test", h.TestName).Msg("Teardown incomplete")
	}
	return err
}

// NewLoadTask loads the fixture into projectID.dataset.table. An empty location
// leaves the destination location undefined.
func (h *Harness) NewLoadTask(dataset, table, location string) *tasks.LoadTask {
	return &tasks.LoadTask{
		Client:       h.Client,
		SourceURIs:   []string{h.FixtureURI},
		Destination:  bq.NewTable(h.Env.ProjectID, dataset, table, location),
		Schema:       FixtureSchema,
		SourceFormat: bq.FormatNewlineDelimitedJSON,
	}
}

// NewRunQueryTask runs Query into projectID.dataset.table through the harness client.
func (h *Harness) NewRunQueryTask(dataset, table string) *tasks.RunQueryTask {
	return &tasks.RunQueryTask{
		Client:      h.Client,
		Query:       Query,
		Destination: bq.NewTable(h.Env.ProjectID, dataset, table, ""),
	}
}

// VerifyLoaded checks that table and its dataset exist and are listed.
func (h *Harness) VerifyLoaded(ctx context.Context, table bq.Table) error {
	ds := table.Dataset()

	ok, err := h.Client.DatasetExists(ctx, ds)
	if err != nil {
		return fmt.Errorf("VerifyLoaded: %w", err)
	}
	if !ok {
		return fmt.Errorf("VerifyLoaded: dataset %s does not exist", ds)
	}

	ok, err = h.Client.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("VerifyLoaded: %w", err)
	}
	if !ok {
		return fmt.Errorf("VerifyLoaded: table %s does not exist", table)
	}

	datasets, err := h.Client.ListDatasets(ctx, table.ProjectID)
	if err != nil {
		return fmt.Errorf("VerifyLoaded: %w", err)
	}
	if !slices.Contains(datasets, table.DatasetID) {
		return fmt.Errorf("VerifyLoaded: dataset %s not listed in project %s", table.DatasetID, table.ProjectID)
	}

	tables, err := h.Client.ListTables(ctx, ds)
	if err != nil {
		return fmt.Errorf("VerifyLoaded: %w", err)
	}
	if !slices.Contains(tables, table.TableID) {
		return fmt.Errorf("VerifyLoaded: table %s not listed in dataset %s", table.TableID, ds)
	}
	return nil
}
