package bigquery

import (
	"context"
	"fmt"
	"strings"
)

// Warehouse provides an interface for the data-warehouse operations used by tasks.
// This interface enables mocking and testing of BigQuery functionality.
type Warehouse interface {
	// DatasetExists reports whether the dataset exists.
	DatasetExists(ctx context.Context, ds Dataset) (bool, error)

	// TableExists reports whether the table exists.
	TableExists(ctx context.Context, t Table) (bool, error)

	// MakeDataset creates the dataset in ds.Location. When the dataset already exists
	// it returns ErrDatasetExists if raiseIfExists is set, otherwise it checks that the
	// existing location is compatible with ds.Location.
	MakeDataset(ctx context.Context, ds Dataset, raiseIfExists bool) error

	// DeleteDataset deletes the dataset. A missing dataset is not an error.
	DeleteDataset(ctx context.Context, ds Dataset, deleteNonEmpty bool) error

	// DeleteTable deletes the table. A missing table is not an error.
	DeleteTable(ctx context.Context, t Table) error

	// ListDatasets returns the ids of all datasets in the project.
	ListDatasets(ctx context.Context, projectID string) ([]string, error)

	// ListTables returns the ids of all tables in the dataset.
	ListTables(ctx context.Context, ds Dataset) ([]string, error)

	// GetView returns the view query of the table, or "" if it is not a view.
	GetView(ctx context.Context, t Table) (string, error)

	// UpdateView creates the view or replaces its query.
	UpdateView(ctx context.Context, t Table, query string) error

	// Load runs a load job from object storage and waits for it to finish.
	Load(ctx context.Context, job LoadJob) error

	// Query runs a query job into a destination table and waits for it to finish.
	Query(ctx context.Context, job QueryJob) error

	// Copy runs a copy job and waits for it to finish.
	Copy(ctx context.Context, job CopyJob) error

	// Extract runs an extract job to object storage and waits for it to finish.
	Extract(ctx context.Context, job ExtractJob) error

	// Close releases the underlying client.
	Close() error
}

// Dataset identifies a remote dataset. An empty Location means the location is undefined.
type Dataset struct {
	ProjectID string `yaml:"project_id" json:"project_id"`
	DatasetID string `yaml:"dataset_id" json:"dataset_id"`
	Location  string `yaml:"location,omitempty" json:"location,omitempty"`
}

// String returns "project.dataset".
func (d Dataset) String() string {
	return d.ProjectID + "." + d.DatasetID
}

// Table identifies a remote table. Values are immutable; use WithTableID to derive copies.
type Table struct {
	ProjectID string `yaml:"project_id" json:"project_id"`
	DatasetID string `yaml:"dataset_id" json:"dataset_id"`
	TableID   string `yaml:"table_id" json:"table_id"`
	Location  string `yaml:"location,omitempty" json:"location,omitempty"`
}

const uriScheme = "bq://"

// NewTable builds a table reference.
func NewTable(projectID, datasetID, tableID, location string) Table {
	return Table{
		ProjectID: projectID,
		DatasetID: datasetID,
		TableID:   tableID,
		Location:  location,
	}
}

// Dataset returns the dataset containing t, carrying over its location.
func (t Table) Dataset() Dataset {
	return Dataset{
		ProjectID: t.ProjectID,
		DatasetID: t.DatasetID,
		Location:  t.Location,
	}
}

// WithTableID returns a copy of t pointing at another table of the same dataset.
func (t Table) WithTableID(tableID string) Table {
	t.TableID = tableID
	return t
}

// URI returns the canonical reference bq://{project_id}/{dataset_id}/{table_id}.
func (t Table) URI() string {
	return uriScheme + t.ProjectID + "/" + t.DatasetID + "/" + t.TableID
}

// String returns "project.dataset.table".
func (t Table) String() string {
	return t.ProjectID + "." + t.DatasetID + "." + t.TableID
}

// ParseTableURI parses a bq:// reference produced by Table.URI.
func ParseTableURI(uri string) (Table, error) {
	if !strings.HasPrefix(uri, uriScheme) {
		return Table{}, fmt.Errorf("invalid table URI: %s", uri)
	}

	parts := strings.Split(strings.TrimPrefix(uri, uriScheme), "/")
	if len(parts) != 3 {
		return Table{}, fmt.Errorf("invalid table URI (want bq://project/dataset/table): %s", uri)
	}
	for _, p := range parts {
		if p == "" {
			return Table{}, fmt.Errorf("invalid table URI (empty component): %s", uri)
		}
	}

	return Table{ProjectID: parts[0], DatasetID: parts[1], TableID: parts[2]}, nil
}

// Field describes a column of a table schema.
type Field struct {
	Name        string  `yaml:"name" json:"name"`
	Type        string  `yaml:"type" json:"type"`
	Mode        string  `yaml:"mode,omitempty" json:"mode,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Fields      []Field `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Schema is an ordered list of fields.
type Schema []Field

// Field modes.
const (
	ModeNullable = "NULLABLE"
	ModeRequired = "REQUIRED"
	ModeRepeated = "REPEATED"
)
