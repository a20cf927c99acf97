package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	infrabq "github.com/dvloznov/bqflow/internal/infra/bigquery"
	infragcs "github.com/dvloznov/bqflow/internal/infra/gcs"
	"github.com/dvloznov/bqflow/internal/logger"
	"github.com/dvloznov/bqflow/internal/manifest"
)

// clients are the live BigQuery and GCS handles a command works with.
type clients struct {
	warehouse *infrabq.Client
	storage   *infragcs.Client
}

func (o *RootOptions) connect(ctx context.Context) (*clients, error) {
	if err := o.requireProject(); err != nil {
		return nil, err
	}

	wh, err := infrabq.NewClient(ctx, o.Project, nil,
		infrabq.WithLogger(logger.WithComponent(o.log, "bigquery")),
		infrabq.WithMetrics(o.metrics),
	)
	if err != nil {
		return nil, err
	}
	storage, err := infragcs.NewClient(ctx, nil,
		infragcs.WithLogger(logger.WithComponent(o.log, "gcs")),
		infragcs.WithMetrics(o.metrics),
	)
	if err != nil {
		_ = wh.Close()
		return nil, err
	}
	return &clients{warehouse: wh, storage: storage}, nil
}

func (c *clients) Close() error {
	return errors.Join(c.warehouse.Close(), c.storage.Close())
}

// table resolves a table reference with the global project and location.
func (o *RootOptions) table(ref string) (bq.Table, error) {
	t, err := manifest.ParseTableRef(ref, o.Project, o.Location)
	if err != nil {
		return bq.Table{}, usageError("%w", err)
	}
	return t, nil
}

// parseSchema parses "name:TYPE[:MODE],..." into a schema. TYPE defaults to STRING.
func parseSchema(columns string) (bq.Schema, error) {
	if strings.TrimSpace(columns) == "" {
		return nil, nil
	}

	var schema bq.Schema
	for _, col := range strings.Split(columns, ",") {
		parts := strings.Split(strings.TrimSpace(col), ":")
		if parts[0] == "" || len(parts) > 3 {
			return nil, usageError("invalid schema column %q: want name:TYPE[:MODE]", col)
		}
		f := bq.Field{Name: parts[0], Type: "STRING"}
		if len(parts) > 1 && parts[1] != "" {
			f.Type = strings.ToUpper(parts[1])
		}
		if len(parts) > 2 {
			f.Mode = strings.ToUpper(parts[2])
			switch f.Mode {
			case bq.ModeNullable, bq.ModeRequired, bq.ModeRepeated:
			default:
				return nil, usageError("invalid mode %q for column %s", parts[2], f.Name)
			}
		}
		schema = append(schema, f)
	}
	return schema, nil
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return usageError("--%s is required", name)
	}
	return nil
}

func wrapTaskError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: ExitFailure, Err: fmt.Errorf("task failed: %w", err)}
}
