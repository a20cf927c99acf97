package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/metrics"
)

const service = "bigquery"

// Re-export interface from shared package
type Warehouse = bq.Warehouse

// Client is the concrete implementation of Warehouse that interacts with BigQuery.
// It holds a shared BigQuery client to avoid creating a new connection for each operation.
type Client struct {
	client  *bigquery.Client
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for debug output.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics records every remote call into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a BigQuery client billed to projectID.
func NewClient(ctx context.Context, projectID string, clientOpts []option.ClientOption, opts ...Option) (*Client, error) {
	client, err := bigquery.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: creating client: %w", err)
	}
	return NewClientWithBigQuery(client, opts...), nil
}

// NewClientWithBigQuery wraps an existing BigQuery client.
func NewClientWithBigQuery(client *bigquery.Client, opts ...Option) *Client {
	c := &Client{
		client: client,
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close closes the BigQuery client connection. This should be called when
// the client is no longer needed to release resources.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) dataset(ds bq.Dataset) *bigquery.Dataset {
	return c.client.DatasetInProject(ds.ProjectID, ds.DatasetID)
}

func (c *Client) table(t bq.Table) *bigquery.Table {
	return c.client.DatasetInProject(t.ProjectID, t.DatasetID).Table(t.TableID)
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	c.metrics.ObserveRemote(service, operation, start, *err)
}

var _ bq.Warehouse = (*Client)(nil)
