package tasks

import (
	"context"
	"errors"
	"strings"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/gcs"
)

// TableTarget is a BigQuery table output. It exists iff the table exists.
type TableTarget struct {
	Table  bq.Table
	Client bq.Warehouse
}

// NewTableTarget builds a table target checked through client.
func NewTableTarget(client bq.Warehouse, projectID, datasetID, tableID, location string) *TableTarget {
	return &TableTarget{
		Table:  bq.NewTable(projectID, datasetID, tableID, location),
		Client: client,
	}
}

// Exists implements Target.
func (t *TableTarget) Exists(ctx context.Context) (bool, error) {
	return t.Client.TableExists(ctx, t.Table)
}

// URI implements Target.
func (t *TableTarget) URI() string {
	return t.Table.URI()
}

// ObjectTarget is a GCS object or directory output. A Path with glob characters,
// such as a sharded extract destination, exists once any object matches it.
type ObjectTarget struct {
	Path    string
	Storage gcs.StorageService
}

// Exists implements Target.
func (t *ObjectTarget) Exists(ctx context.Context) (bool, error) {
	if t.Storage == nil {
		return false, errors.New("ObjectTarget: no storage client")
	}
	if !IsWildcard(t.Path) {
		return t.Storage.Exists(ctx, t.Path)
	}
	uris, err := t.Storage.ListWildcard(ctx, t.Path)
	if err != nil {
		return false, err
	}
	return len(uris) > 0, nil
}

// IsWildcard reports whether uri holds glob characters.
func IsWildcard(uri string) bool {
	return strings.ContainsAny(uri, "*?[{")
}

// URI implements Target.
func (t *ObjectTarget) URI() string {
	return t.Path
}
