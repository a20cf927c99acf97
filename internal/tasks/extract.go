package tasks

import (
	"context"
	"errors"
	"fmt"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/gcs"
)

// ExtractTask exports a table into GCS.
// Its output is the first destination URI, which may be a sharding wildcard.
type ExtractTask struct {
	Client          bq.Warehouse
	Storage         gcs.StorageService
	Source          bq.Table
	DestinationURIs []string

	DestinationFormat bq.DestinationFormat
	Compression       bq.Compression
	FieldDelimiter    string
	PrintHeader       bool
}

// ID implements Task.
func (t *ExtractTask) ID() string { return taskID("ExtractTask", t.Source.URI()) }

// Kind implements Task.
func (t *ExtractTask) Kind() string { return KindExtract }

// Output implements Task.
func (t *ExtractTask) Output() Target {
	path := ""
	if len(t.DestinationURIs) > 0 {
		path = t.DestinationURIs[0]
	}
	return &ObjectTarget{Path: path, Storage: t.Storage}
}

// Run implements Task.
func (t *ExtractTask) Run(ctx context.Context) error {
	if t.Client == nil {
		return errors.New("ExtractTask: no BigQuery client")
	}
	if t.Storage == nil {
		return errors.New("ExtractTask: no storage client")
	}
	if len(t.DestinationURIs) == 0 {
		return fmt.Errorf("%s: no destination URIs", t.ID())
	}

	job := bq.ExtractJob{
		Source:            t.Source,
		DestinationURIs:   t.DestinationURIs,
		DestinationFormat: t.DestinationFormat,
		Compression:       t.Compression,
		FieldDelimiter:    t.FieldDelimiter,
		PrintHeader:       t.PrintHeader,
	}
	if job.DestinationFormat == "" {
		job.DestinationFormat = bq.DestinationCSV
	}
	if job.Compression == "" {
		job.Compression = bq.CompressionNone
	}
	if job.DestinationFormat == bq.DestinationCSV && job.FieldDelimiter == "" {
		job.FieldDelimiter = ","
	}

	if err := t.Client.Extract(ctx, job); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	return nil
}
