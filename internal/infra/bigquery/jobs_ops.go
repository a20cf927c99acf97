package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
)

// runner is satisfied by Loader, Query, Copier and Extractor.
type runner interface {
	Run(ctx context.Context) (*bigquery.Job, error)
}

// Load imports job.SourceURIs into job.Destination and waits for completion.
func (c *Client) Load(ctx context.Context, job bq.LoadJob) (err error) {
	defer c.observe("load", time.Now(), &err)

	if len(job.SourceURIs) == 0 {
		return fmt.Errorf("Load %s: no source URIs", job.Destination)
	}

	ref := bigquery.NewGCSReference(job.SourceURIs...)
	ref.SourceFormat = bigquery.DataFormat(job.SourceFormat)
	ref.Schema = toSchema(job.Schema)
	ref.MaxBadRecords = job.MaxBadRecords
	ref.IgnoreUnknownValues = job.IgnoreUnknownValues
	if job.Encoding != "" {
		ref.Encoding = bigquery.Encoding(job.Encoding)
	}
	if job.SourceFormat == bq.FormatCSV {
		ref.FieldDelimiter = job.FieldDelimiter
		ref.SkipLeadingRows = job.SkipLeadingRows
		ref.AllowJaggedRows = job.AllowJaggedRows
		ref.AllowQuotedNewlines = job.AllowQuotedNewlines
	}

	loader := c.table(job.Destination).LoaderFrom(ref)
	loader.CreateDisposition = bigquery.TableCreateDisposition(job.CreateDisposition)
	loader.WriteDisposition = bigquery.TableWriteDisposition(job.WriteDisposition)
	loader.Location = job.Location()

	if err := c.run(ctx, "load", job.Destination, loader); err != nil {
		return fmt.Errorf("Load %s: %w", job.Destination, err)
	}
	return nil
}

// Query runs job.Query into job.Destination and waits for completion.
func (c *Client) Query(ctx context.Context, job bq.QueryJob) (err error) {
	defer c.observe("query", time.Now(), &err)

	q := c.client.Query(job.Query)
	q.Dst = c.table(job.Destination)
	q.CreateDisposition = bigquery.TableCreateDisposition(job.CreateDisposition)
	q.WriteDisposition = bigquery.TableWriteDisposition(job.WriteDisposition)
	if job.Mode != "" {
		q.Priority = bigquery.QueryPriority(job.Mode)
	}
	q.UseLegacySQL = job.UseLegacySQL
	if job.UseLegacySQL {
		// Legacy SQL needs both to write to a destination table.
		q.AllowLargeResults = true
		q.DisableFlattenedResults = !job.FlattenResults
	}
	q.Location = job.Location()

	if err := c.run(ctx, "query", job.Destination, q); err != nil {
		return fmt.Errorf("Query %s: %w", job.Destination, err)
	}
	return nil
}

// Copy copies job.Sources into job.Destination and waits for completion.
func (c *Client) Copy(ctx context.Context, job bq.CopyJob) (err error) {
	defer c.observe("copy", time.Now(), &err)

	if len(job.Sources) == 0 {
		return fmt.Errorf("Copy %s: no source tables", job.Destination)
	}

	srcs := make([]*bigquery.Table, 0, len(job.Sources))
	for _, s := range job.Sources {
		srcs = append(srcs, c.table(s))
	}

	copier := c.table(job.Destination).CopierFrom(srcs...)
	if job.CreateDisposition != "" {
		copier.CreateDisposition = bigquery.TableCreateDisposition(job.CreateDisposition)
	}
	if job.WriteDisposition != "" {
		copier.WriteDisposition = bigquery.TableWriteDisposition(job.WriteDisposition)
	}
	copier.Location = job.Location()

	if err := c.run(ctx, "copy", job.Destination, copier); err != nil {
		return fmt.Errorf("Copy to %s: %w", job.Destination, err)
	}
	return nil
}

// Extract exports job.Source into job.DestinationURIs and waits for completion.
func (c *Client) Extract(ctx context.Context, job bq.ExtractJob) (err error) {
	defer c.observe("extract", time.Now(), &err)

	if len(job.DestinationURIs) == 0 {
		return fmt.Errorf("Extract %s: no destination URIs", job.Source)
	}

	ref := bigquery.NewGCSReference(job.DestinationURIs...)
	if job.DestinationFormat != "" {
		ref.DestinationFormat = bigquery.DataFormat(job.DestinationFormat)
	}
	if job.Compression != "" {
		ref.Compression = bigquery.Compression(job.Compression)
	}
	if job.DestinationFormat == bq.DestinationCSV {
		ref.FieldDelimiter = job.FieldDelimiter
	}

	extractor := c.table(job.Source).ExtractorTo(ref)
	extractor.DisableHeader = !job.PrintHeader
	extractor.Location = job.Location()

	if err := c.run(ctx, "extract", job.Source, extractor); err != nil {
		return fmt.Errorf("Extract %s: %w", job.Source, err)
	}
	return nil
}

func (c *Client) run(ctx context.Context, kind string, t bq.Table, r runner) error {
	job, err := r.Run(ctx)
	if err != nil {
		return fmt.Errorf("run %s job: %w", kind, err)
	}

	c.log.Debug().
		Str("job_id", job.ID()).
		Str("kind", kind).
		Str("table", t.String()).
		Str("location", job.Location()).
		Msg("BigQuery job submitted")

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job %s: %w", job.ID(), err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job %s error: %w", job.ID(), err)
	}

	c.log.Debug().Str("job_id", job.ID()).Str("kind", kind).Msg("BigQuery job done")
	return nil
}

func toSchema(s bq.Schema) bigquery.Schema {
	if len(s) == 0 {
		return nil
	}
	out := make(bigquery.Schema, 0, len(s))
	for _, f := range s {
		out = append(out, &bigquery.FieldSchema{
			Name:        f.Name,
			Type:        bigquery.FieldType(f.Type),
			Description: f.Description,
			Required:    f.Mode == bq.ModeRequired,
			Repeated:    f.Mode == bq.ModeRepeated,
			Schema:      toSchema(f.Fields),
		})
	}
	return out
}
