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

// DatasetExists reports whether the dataset exists.
func (c *Client) DatasetExists(ctx context.Context, ds bq.Dataset) (ok bool, err error) {
	defer c.observe("dataset_exists", time.Now(), &err)

	_, err = c.dataset(ds).Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if apierr.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("DatasetExists %s: %w", ds, err)
}

// MakeDataset creates ds in ds.Location.
//
// If the dataset already exists, raiseIfExists turns that into bq.ErrDatasetExists;
// otherwise the existing location must match ds.Location (when set), so a job never
// runs against a dataset in another region.
func (c *Client) MakeDataset(ctx context.Context, ds bq.Dataset, raiseIfExists bool) (err error) {
	defer c.observe("make_dataset", time.Now(), &err)

	err = c.dataset(ds).Create(ctx, &bigquery.DatasetMetadata{Location: ds.Location})
	if err == nil {
		c.log.Debug().Str("dataset", ds.String()).Str("location", ds.Location).Msg("dataset created")
		return nil
	}
	if !apierr.IsConflict(err) {
		return fmt.Errorf("MakeDataset %s: %w", ds, err)
	}
	if raiseIfExists {
		return fmt.Errorf("MakeDataset %s: %w", ds, bq.ErrDatasetExists)
	}

	md, err := c.dataset(ds).Metadata(ctx)
	if err != nil {
		return fmt.Errorf("MakeDataset %s: fetching existing dataset: %w", ds, err)
	}
	if err := bq.CheckLocation(ds, md.Location, ds.Location); err != nil {
		return fmt.Errorf("MakeDataset: %w", err)
	}
	return nil
}

// DeleteDataset deletes ds. With deleteNonEmpty its tables are deleted too.
// Deleting a missing dataset succeeds.
func (c *Client) DeleteDataset(ctx context.Context, ds bq.Dataset, deleteNonEmpty bool) (err error) {
	defer c.observe("delete_dataset", time.Now(), &err)

	if deleteNonEmpty {
		err = c.dataset(ds).DeleteWithContents(ctx)
	} else {
		err = c.dataset(ds).Delete(ctx)
	}
	if err == nil || apierr.IsNotFound(err) {
		return nil
	}
	return fmt.Errorf("DeleteDataset %s: %w", ds, err)
}

// ListDatasets returns the ids of all datasets in projectID.
func (c *Client) ListDatasets(ctx context.Context, projectID string) (ids []string, err error) {
	defer c.observe("list_datasets", time.Now(), &err)

	it := c.client.Datasets(ctx)
	it.ProjectID = projectID

	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListDatasets %s: iter next: %w", projectID, err)
		}
		ids = append(ids, ds.DatasetID)
	}
	return ids, nil
}
