package inmemory

import (
	"context"
	"fmt"
	"strings"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
)

// Load implements the Warehouse interface.
func (w *Warehouse) Load(ctx context.Context, job bq.LoadJob) error {
	if len(job.SourceURIs) == 0 {
		return fmt.Errorf("Load %s: no source URIs", job.Destination)
	}
	if w.storage != nil {
		for _, uri := range job.SourceURIs {
			ok, err := w.storage.Exists(ctx, uri)
			if err != nil {
				return fmt.Errorf("Load %s: %w", job.Destination, err)
			}
			if !ok {
				return fmt.Errorf("Load %s: source %s: %w", job.Destination, uri, bq.ErrNotFound)
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.write(job.Destination, job.Location(), job.CreateDisposition, job.WriteDisposition); err != nil {
		return fmt.Errorf("Load: %w", err)
	}
	w.datasets[job.Destination.Dataset().String()].tables[job.Destination.TableID].schema = job.Schema
	return nil
}

// Query implements the Warehouse interface. The query text is not evaluated.
func (w *Warehouse) Query(ctx context.Context, job bq.QueryJob) error {
	if job.Query == "" {
		return fmt.Errorf("Query %s: empty query", job.Destination)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.write(job.Destination, job.Location(), job.CreateDisposition, job.WriteDisposition); err != nil {
		return fmt.Errorf("Query: %w", err)
	}
	return nil
}

// Copy implements the Warehouse interface.
func (w *Warehouse) Copy(ctx context.Context, job bq.CopyJob) error {
	if len(job.Sources) == 0 {
		return fmt.Errorf("Copy %s: no source tables", job.Destination)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var schema bq.Schema
	for _, src := range job.Sources {
		tbl, err := w.lookup(src)
		if err != nil {
			return fmt.Errorf("Copy: %w", err)
		}
		schema = tbl.schema
		srcLoc := w.datasets[src.Dataset().String()].location
		dstLoc := job.Location()
		if d, ok := w.datasets[job.Destination.Dataset().String()]; ok {
			dstLoc = d.location
		}
		if err := bq.CheckLocation(src.Dataset(), srcLoc, dstLoc); err != nil {
			return fmt.Errorf("Copy: %w", err)
		}
	}

	if err := w.write(job.Destination, job.Location(), job.CreateDisposition, job.WriteDisposition); err != nil {
		return fmt.Errorf("Copy: %w", err)
	}
	w.datasets[job.Destination.Dataset().String()].tables[job.Destination.TableID].schema = schema
	return nil
}

// Extract implements the Warehouse interface. With storage wired, each destination
// URI receives an empty object.
func (w *Warehouse) Extract(ctx context.Context, job bq.ExtractJob) error {
	if len(job.DestinationURIs) == 0 {
		return fmt.Errorf("Extract %s: no destination URIs", job.Source)
	}

	w.mu.RLock()
	_, err := w.lookup(job.Source)
	w.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("Extract: %w", err)
	}

	if w.storage == nil {
		return nil
	}
	for _, uri := range job.DestinationURIs {
		// A single wildcard names the shards; one table yields one shard.
		uri = strings.Replace(uri, "*", firstShard, 1)
		if err := w.storage.PutString(ctx, "", uri, "application/octet-stream"); err != nil {
			return fmt.Errorf("Extract %s: %w", job.Source, err)
		}
	}
	return nil
}

// firstShard replaces the wildcard of a sharded extract destination.
const firstShard = "000000000000"

// write applies job location and dispositions to dst, creating the table if allowed.
// Empty dispositions take the service defaults, CREATE_IF_NEEDED and WRITE_EMPTY.
// It must be called with w.mu held for writing.
func (w *Warehouse) write(dst bq.Table, location string, create bq.CreateDisposition, write bq.WriteDisposition) error {
	d, err := w.datasetFor(dst)
	if err != nil {
		return err
	}
	if err := bq.CheckLocation(dst.Dataset(), d.location, location); err != nil {
		return err
	}

	if _, ok := d.tables[dst.TableID]; ok {
		if write == bq.WriteEmpty || write == "" {
			return fmt.Errorf("table %s already exists and is not empty", dst)
		}
		return nil
	}
	if create == bq.CreateNever {
		return fmt.Errorf("table %s: %w", dst, bq.ErrNotFound)
	}
	d.tables[dst.TableID] = &table{}
	return nil
}
