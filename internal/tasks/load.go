package tasks

import (
	"context"
	"errors"
	"fmt"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
)

// LoadTask imports files from GCS into a BigQuery table.
//
// Run creates the destination dataset in the destination's location when it is
// missing and rejects a dataset that lives in another location, then submits the
// load job in that location.
type LoadTask struct {
	Client      bq.Warehouse
	SourceURIs  []string
	Destination bq.Table
	Schema      bq.Schema

	SourceFormat      bq.SourceFormat
	CreateDisposition bq.CreateDisposition
	WriteDisposition  bq.WriteDisposition
	Encoding          bq.Encoding

	MaxBadRecords       int64
	IgnoreUnknownValues bool

	FieldDelimiter      string
	SkipLeadingRows     int64
	AllowJaggedRows     bool
	AllowQuotedNewlines bool
}

// ID implements Task.
func (t *LoadTask) ID() string { return taskID("LoadTask", t.Destination.URI()) }

// Kind implements Task.
func (t *LoadTask) Kind() string { return KindLoad }

// Output implements Task.
func (t *LoadTask) Output() Target {
	return &TableTarget{Table: t.Destination, Client: t.Client}
}

// Job returns the load job Run submits, with defaults applied.
func (t *LoadTask) Job() bq.LoadJob {
	job := bq.LoadJob{
		SourceURIs:          t.SourceURIs,
		Destination:         t.Destination,
		Schema:              t.Schema,
		SourceFormat:        t.SourceFormat,
		CreateDisposition:   t.CreateDisposition,
		WriteDisposition:    t.WriteDisposition,
		Encoding:            t.Encoding,
		MaxBadRecords:       t.MaxBadRecords,
		IgnoreUnknownValues: t.IgnoreUnknownValues,
		FieldDelimiter:      t.FieldDelimiter,
		SkipLeadingRows:     t.SkipLeadingRows,
		AllowJaggedRows:     t.AllowJaggedRows,
		AllowQuotedNewlines: t.AllowQuotedNewlines,
	}
	if job.SourceFormat == "" {
		job.SourceFormat = bq.FormatNewlineDelimitedJSON
	}
	if job.CreateDisposition == "" {
		job.CreateDisposition = bq.CreateIfNeeded
	}
	if job.WriteDisposition == "" {
		job.WriteDisposition = bq.WriteEmpty
	}
	if job.Encoding == "" {
		job.Encoding = bq.EncodingUTF8
	}
	if job.SourceFormat == bq.FormatCSV && job.FieldDelimiter == "" {
		job.FieldDelimiter = ","
	}
	return job
}

// Run implements Task.
func (t *LoadTask) Run(ctx context.Context) error {
	if t.Client == nil {
		return errors.New("LoadTask: no BigQuery client")
	}
	if len(t.SourceURIs) == 0 {
		return fmt.Errorf("%s: no source URIs", t.ID())
	}

	if err := t.Client.MakeDataset(ctx, t.Destination.Dataset(), false); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	if err := t.Client.Load(ctx, t.Job()); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	return nil
}
