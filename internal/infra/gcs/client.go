package gcs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/bqflow/internal/gcs"
	"github.com/dvloznov/bqflow/internal/infra/apierr"
	"github.com/dvloznov/bqflow/internal/metrics"
)

const service = "gcs"

// Re-export interface from shared package
type StorageService = gcs.StorageService

// Client is the concrete implementation of StorageService
// that interacts with Google Cloud Storage.
type Client struct {
	client  *storage.Client
	log     zerolog.Logger
	metrics *metrics.Metrics

	uploadTimeout time.Duration
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

// WithUploadTimeout bounds a single upload. Zero disables the bound.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) { c.uploadTimeout = d }
}

// NewClient creates a storage client.
// It assumes Application Default Credentials are configured (gcloud auth application-default login)
// unless clientOpts say otherwise.
func NewClient(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Client, error) {
	sc, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("NewClient: create storage client: %w", err)
	}
	return NewClientWithStorage(sc, opts...), nil
}

// NewClientWithStorage wraps an existing storage client.
func NewClientWithStorage(sc *storage.Client, opts ...Option) *Client {
	c := &Client{
		client:        sc,
		log:           zerolog.Nop(),
		uploadTimeout: 2 * time.Minute,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close closes the storage client connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// CreateBucket creates bucketName in projectID. A conflict is reported as gcs.ErrBucketExists.
func (c *Client) CreateBucket(ctx context.Context, projectID, bucketName, location string) (err error) {
	defer c.observe("create_bucket", time.Now(), &err)

	attrs := &storage.BucketAttrs{Location: location}
	if err := c.client.Bucket(bucketName).Create(ctx, projectID, attrs); err != nil {
		if apierr.IsConflict(err) {
			return fmt.Errorf("CreateBucket %s: %w", bucketName, gcs.ErrBucketExists)
		}
		return fmt.Errorf("CreateBucket %s: %w", bucketName, err)
	}

	c.log.Debug().Str("bucket", bucketName).Str("location", location).Msg("bucket created")
	return nil
}

func (c *Client) observe(operation string, start time.Time, err *error) {
	c.metrics.ObserveRemote(service, operation, start, *err)
}

func isNotExist(err error) bool {
	return errors.Is(err, storage.ErrObjectNotExist) || apierr.IsNotFound(err)
}
