package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
)

// DefaultLocation is where datasets created without a location end up.
const DefaultLocation = "US"

// ObjectStore is the part of gcs.StorageService the warehouse uses.
type ObjectStore interface {
	Exists(ctx context.Context, uri string) (bool, error)
	PutString(ctx context.Context, content, uri, contentType string) error
}

type table struct {
	schema    bq.Schema
	viewQuery string
}

type dataset struct {
	location string
	tables   map[string]*table
}

// Warehouse is an in-memory implementation of bigquery.Warehouse.
// It applies the same dataset, location and disposition rules as the live service
// and is safe for concurrent use. Data rows are not stored.
type Warehouse struct {
	mu       sync.RWMutex
	datasets map[string]*dataset // "project.dataset"
	storage  ObjectStore
}

// NewWarehouse creates an empty warehouse. When storage is non-nil, load jobs check
// that every source URI exists and extract jobs write their destination objects.
func NewWarehouse(storage ObjectStore) *Warehouse {
	return &Warehouse{
		datasets: make(map[string]*dataset),
		storage:  storage,
	}
}

// DatasetExists implements the Warehouse interface.
func (w *Warehouse) DatasetExists(ctx context.Context, ds bq.Dataset) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	_, ok := w.datasets[ds.String()]
	return ok, nil
}

// TableExists implements the Warehouse interface.
func (w *Warehouse) TableExists(ctx context.Context, t bq.Table) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	d, ok := w.datasets[t.Dataset().String()]
	if !ok {
		return false, nil
	}
	_, ok = d.tables[t.TableID]
	return ok, nil
}

// MakeDataset implements the Warehouse interface.
func (w *Warehouse) MakeDataset(ctx context.Context, ds bq.Dataset, raiseIfExists bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if d, ok := w.datasets[ds.String()]; ok {
		if raiseIfExists {
			return fmt.Errorf("MakeDataset %s: %w", ds, bq.ErrDatasetExists)
		}
		if err := bq.CheckLocation(ds, d.location, ds.Location); err != nil {
			return fmt.Errorf("MakeDataset: %w", err)
		}
		return nil
	}

	loc := ds.Location
	if loc == "" {
		loc = DefaultLocation
	}
	w.datasets[ds.String()] = &dataset{location: loc, tables: make(map[string]*table)}
	return nil
}

// DeleteDataset implements the Warehouse interface.
func (w *Warehouse) DeleteDataset(ctx context.Context, ds bq.Dataset, deleteNonEmpty bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, ok := w.datasets[ds.String()]
	if !ok {
		return nil
	}
	if len(d.tables) > 0 && !deleteNonEmpty {
		return fmt.Errorf("DeleteDataset %s: dataset is still in use", ds)
	}
	delete(w.datasets, ds.String())
	return nil
}

// DeleteTable implements the Warehouse interface.
func (w *Warehouse) DeleteTable(ctx context.Context, t bq.Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if d, ok := w.datasets[t.Dataset().String()]; ok {
		delete(d.tables, t.TableID)
	}
	return nil
}

// ListDatasets implements the Warehouse interface.
func (w *Warehouse) ListDatasets(ctx context.Context, projectID string) ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var ids []string
	prefix := projectID + "."
	for key := range w.datasets {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids = append(ids, key[len(prefix):])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListTables implements the Warehouse interface.
func (w *Warehouse) ListTables(ctx context.Context, ds bq.Dataset) ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	d, ok := w.datasets[ds.String()]
	if !ok {
		return nil, fmt.Errorf("ListTables %s: %w", ds, bq.ErrNotFound)
	}

	ids := make([]string, 0, len(d.tables))
	for id := range d.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// GetView implements the Warehouse interface.
func (w *Warehouse) GetView(ctx context.Context, t bq.Table) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tbl, err := w.lookup(t)
	if err != nil {
		return "", fmt.Errorf("GetView: %w", err)
	}
	return tbl.viewQuery, nil
}

// UpdateView implements the Warehouse interface.
func (w *Warehouse) UpdateView(ctx context.Context, t bq.Table, query string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	d, err := w.datasetFor(t)
	if err != nil {
		return fmt.Errorf("UpdateView: %w", err)
	}
	if tbl, ok := d.tables[t.TableID]; ok {
		tbl.viewQuery = query
		return nil
	}
	d.tables[t.TableID] = &table{viewQuery: query}
	return nil
}

// Close implements the Warehouse interface.
func (w *Warehouse) Close() error {
	return nil
}

// Location returns the location of a dataset, for assertions in tests.
func (w *Warehouse) Location(ds bq.Dataset) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	d, ok := w.datasets[ds.String()]
	if !ok {
		return "", false
	}
	return d.location, true
}

// Schema returns the schema recorded for a loaded or copied table.
func (w *Warehouse) Schema(t bq.Table) (bq.Schema, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tbl, err := w.lookup(t)
	if err != nil {
		return nil, false
	}
	return tbl.schema, true
}

// lookup must be called with w.mu held.
func (w *Warehouse) lookup(t bq.Table) (*table, error) {
	d, err := w.datasetFor(t)
	if err != nil {
		return nil, err
	}
	tbl, ok := d.tables[t.TableID]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", t, bq.ErrNotFound)
	}
	return tbl, nil
}

// datasetFor must be called with w.mu held.
func (w *Warehouse) datasetFor(t bq.Table) (*dataset, error) {
	d, ok := w.datasets[t.Dataset().String()]
	if !ok {
		return nil, fmt.Errorf("dataset %s: %w", t.Dataset(), bq.ErrNotFound)
	}
	return d, nil
}

var _ bq.Warehouse = (*Warehouse)(nil)
