package tasks

import (
	"context"
	"errors"
	"fmt"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
)

// CopyTask copies one or more tables into Destination.
type CopyTask struct {
	Client      bq.Warehouse
	Sources     []bq.Table
	Destination bq.Table

	CreateDisposition bq.CreateDisposition
	WriteDisposition  bq.WriteDisposition
}

// ID implements Task.
func (t *CopyTask) ID() string { return taskID("CopyTask", t.Destination.URI()) }

// Kind implements Task.
func (t *CopyTask) Kind() string { return KindCopy }

// Output implements Task.
func (t *CopyTask) Output() Target {
	return &TableTarget{Table: t.Destination, Client: t.Client}
}

// Run implements Task.
func (t *CopyTask) Run(ctx context.Context) error {
	if t.Client == nil {
		return errors.New("CopyTask: no BigQuery client")
	}
	if len(t.Sources) == 0 {
		return fmt.Errorf("%s: no source tables", t.ID())
	}

	if err := t.Client.MakeDataset(ctx, t.Destination.Dataset(), false); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}

	job := bq.CopyJob{
		Sources:           t.Sources,
		Destination:       t.Destination,
		CreateDisposition: t.CreateDisposition,
		WriteDisposition:  t.WriteDisposition,
	}
	if job.CreateDisposition == "" {
		job.CreateDisposition = bq.CreateIfNeeded
	}
	if job.WriteDisposition == "" {
		job.WriteDisposition = bq.WriteTruncate
	}

	if err := t.Client.Copy(ctx, job); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	return nil
}
