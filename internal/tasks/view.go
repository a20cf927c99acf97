package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
)

// CreateViewTask creates or updates a view. It is complete only when the view
// exists with exactly the same query.
type CreateViewTask struct {
	Client      bq.Warehouse
	View        string
	Destination bq.Table
}

// ID implements Task.
func (t *CreateViewTask) ID() string { return taskID("CreateViewTask", t.Destination.URI()) }

// Kind implements Task.
func (t *CreateViewTask) Kind() string { return KindView }

// Output implements Task.
func (t *CreateViewTask) Output() Target {
	return &TableTarget{Table: t.Destination, Client: t.Client}
}

// Complete implements Completer.
func (t *CreateViewTask) Complete(ctx context.Context) (bool, error) {
	ok, err := t.Output().Exists(ctx)
	if err != nil || !ok {
		return false, err
	}

	current, err := t.Client.GetView(ctx, t.Destination)
	if err != nil {
		return false, fmt.Errorf("%s: %w", t.ID(), err)
	}
	return strings.TrimSpace(current) == strings.TrimSpace(t.View), nil
}

// Run implements Task.
func (t *CreateViewTask) Run(ctx context.Context) error {
	if t.Client == nil {
		return errors.New("CreateViewTask: no BigQuery client")
	}
	if strings.TrimSpace(t.View) == "" {
		return fmt.Errorf("%s: view query is empty", t.ID())
	}

	if err := t.Client.MakeDataset(ctx, t.Destination.Dataset(), false); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	if err := t.Client.UpdateView(ctx, t.Destination, t.View); err != nil {
		return fmt.Errorf("%s: %w", t.ID(), err)
	}
	return nil
}

var (
	_ Task      = (*LoadTask)(nil)
	_ Task      = (*RunQueryTask)(nil)
	_ Task      = (*CopyTask)(nil)
	_ Task      = (*ExtractTask)(nil)
	_ Task      = (*CreateViewTask)(nil)
	_ Completer = (*CreateViewTask)(nil)
)
