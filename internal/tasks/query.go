package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
)

// RunQueryTask runs a query and stores its result in Destination.
// Client is the injected BigQuery handle the query runs through.
type RunQueryTask struct {
	Client      bq.Warehouse
	Query       string
	Destination bq.Table

	CreateDisposition bq.CreateDisposition
	WriteDisposition  bq.WriteDisposition
	Mode              bq.QueryMode
	UseLegacySQL      bool
	FlattenResults    bool
}

// ID implements Task.
func (t *RunQueryTask) ID() string { return taskID("RunQueryTask", t.Destination.URI()) }

// Kind implements Task.
func (t *RunQueryTask) Kind() string { return KindQuery }

// Output implements Task.
func (t *RunQueryTask) Output() Target {
	return &TableTarget{Table: t.Destination, Client: t.Client}
}

// Job returns the query job Run submits, with defaults applied.
func (t *RunQueryTask) Job() bq.QueryJob {
	job := bq.QueryJob{
		Query:             t.Query,
		Destination:       t.Destination,
		CreateDisposition: t.CreateDisposition,
		WriteDisposition:  t.WriteDisposition,
		Mode:              t.Mode,
		UseLegacySQL:      t.UseLegacySQL,
		FlattenResults:    t.FlattenResults,
	}
	if job.CreateDisposition == "" {
		job.CreateDisposition = bq.CreateIfNeeded
	}
	if job.WriteDisposition == "" {
		job.WriteDisposition = bq.WriteTruncate
	}
	if job.Mode == "" {
		job.Mode = bq.QueryInteractive
	}
	return job
}

// Run implements Task.
func (t *RunQueryTask) Run(ctx context.Context) error {
	if t.Client == nil {
		return errors.New("RunQueryTask: no BigQuery client")
	}
	if strings.TrimSpace(t.Query) == "" {
		return fmt.Errorf("%s: query is empty", t.ID())
	}

	if err := t.Client.MakeDataset(ctx, t.Destination.Dataset(), false); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	if err := t.Client.Query(ctx, t.Job()); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	return nil
}
