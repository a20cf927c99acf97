package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/infra/apierr"
)

// TableExists reports whether the table exists.
func (c *Client) TableExists(ctx context.Context, t bq.Table) (ok bool, err error) {
	defer c.observe("table_exists", time.Now(), &err)

	_, err = c.table(t).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if apierr.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("TableExists %s: %w", t, err)
}

// DeleteTable deletes the table. Deleting a missing table succeeds.
func (c *Client) DeleteTable(ctx context.Context, t bq.Table) (err error) {
	defer c.observe("delete_table", time.Now(), &err)

	err = c.table(t).Delete(ctx)
	if err == nil || apierr.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("DeleteTable %s: %w", t, err)
}

// ListTables returns the ids of all tables in ds.
func (c *Client) ListTables(ctx context.Context, ds bq.Dataset) (ids []string, err error) {
	defer c.observe("list_tables", time.Now(), &err)

	it := c.dataset(ds).Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTables %s: iter next: %w", ds, err)
		}
		ids = append(ids, t.TableID)
	}
	return ids, nil
}

// GetView returns the query defining the view t, or "" when t is a plain table.
func (c *Client) GetView(ctx context.Context, t bq.Table) (query string, err error) {
	defer c.observe("get_view", time.Now(), &err)

	md, err := c.table(t).Metadata(ctx)
	if err != nil {
		if apierr.IsNotFound(err) {
			return "", fmt.Errorf("GetView %s: %w", t, bq.ErrNotFound)
		}
		return "", fmt.Errorf("GetView %s: %w", t, err)
	}
	return md.ViewQuery, nil
}

// UpdateView creates the view t, or replaces the query of an existing one.
func (c *Client) UpdateView(ctx context.Context, t bq.Table, query string) (err error) {
	defer c.observe("update_view", time.Now(), &err)

	table := c.table(t)
	md, err := table.Metadata(ctx)
	switch {
	case err == nil:
		_, err = table.Update(ctx, bigquery.TableMetadataToUpdate{ViewQuery: query}, md.ETag)
		if err != nil {
			return fmt.Errorf("UpdateView %s: update: %w", t, err)
		}
		return nil
	case apierr.IsNotFound(err):
		if err := table.Create(ctx, &bigquery.TableMetadata{ViewQuery: query}); err != nil {
			return fmt.Errorf("UpdateView %s: create: %w", t, err)
		}
		return nil
	default:
		return fmt.Errorf("UpdateView %s: %w", t, err)
	}
}
