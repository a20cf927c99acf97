package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/config"
	"github.com/dvloznov/bqflow/internal/gcs"
	infrabq "github.com/dvloznov/bqflow/internal/infra/bigquery"
	infragcs "github.com/dvloznov/bqflow/internal/infra/gcs"
	"github.com/dvloznov/bqflow/internal/logger"
	"github.com/dvloznov/bqflow/internal/metrics"
)

// Backend is a warehouse and object store pair the scenarios run against.
type Backend struct {
	Env       config.Env
	Warehouse bq.Warehouse
	Storage   gcs.StorageService
	Log       zerolog.Logger
}

// Connect opens live BigQuery and GCS clients for env using Application Default
// Credentials unless clientOpts say otherwise. m may be nil.
func Connect(ctx context.Context, env config.Env, log zerolog.Logger, m *metrics.Metrics, clientOpts ...option.ClientOption) (*Backend, error) {
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}

	wh, err := infrabq.NewClient(ctx, env.ProjectID, clientOpts,
		infrabq.WithLogger(logger.WithComponent(log, "bigquery")),
		infrabq.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("Connect: %w", err)
	}

	storage, err := infragcs.NewClient(ctx, clientOpts,
		infragcs.WithLogger(logger.WithComponent(log, "gcs")),
		infragcs.WithMetrics(m),
	)
	if err != nil {
		_ = wh.Close()
		return nil, fmt.Errorf("Connect: %w", err)
	}

	return &Backend{Env: env, Warehouse: wh, Storage: storage, Log: log}, nil
}

// Factory returns a Factory building harnesses on b.
func (b *Backend) Factory() Factory {
	return func(name string) (*Harness, error) {
		return New(b.Env, b.Warehouse, b.Storage, name).WithLogger(b.Log), nil
	}
}

// Close releases both clients.
func (b *Backend) Close() error {
	return errors.Join(b.Warehouse.Close(), b.Storage.Close())
}
