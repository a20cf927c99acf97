// Package manifest reads YAML task lists for the CLI run command.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/gcs"
	"github.com/dvloznov/bqflow/internal/tasks"
)

// Manifest is a list of tasks with shared defaults.
//
//	project: my-project
//	location: EU
//	tasks:
//	  - kind: load
//	    destination: staging.events
//	    sources: [gs://bucket/events/*.json]
//	    schema:
//	      - {name: field1, type: STRING}
type Manifest struct {
	// Project is used for table references without a project.
	Project string `yaml:"project"`

	// Location is the default location of destination tables.
	Location string `yaml:"location,omitempty"`

	// MaxRetries applies to every task run.
	MaxRetries int `yaml:"max_retries,omitempty"`

	Tasks []Entry `yaml:"tasks"`
}

// Entry describes one task. Which fields apply depends on Kind.
type Entry struct {
	Kind string `yaml:"kind"`

	// Destination is the output table for load, query, copy and view.
	Destination string `yaml:"destination,omitempty"`

	// Location overrides the manifest location for this task.
	Location string `yaml:"location,omitempty"`

	// Sources are gs:// URIs for load and table references for copy.
	Sources []string `yaml:"sources,omitempty"`

	// Source is the table an extract reads.
	Source string `yaml:"source,omitempty"`

	// Destinations are the gs:// URIs an extract writes.
	Destinations []string `yaml:"destinations,omitempty"`

	// Query is the SQL for query and view tasks.
	Query string `yaml:"query,omitempty"`

	Schema            bq.Schema `yaml:"schema,omitempty"`
	SourceFormat      string    `yaml:"source_format,omitempty"`
	DestinationFormat string    `yaml:"destination_format,omitempty"`
	Compression       string    `yaml:"compression,omitempty"`
	CreateDisposition string    `yaml:"create_disposition,omitempty"`
	WriteDisposition  string    `yaml:"write_disposition,omitempty"`
	FieldDelimiter    string    `yaml:"field_delimiter,omitempty"`
	SkipLeadingRows   int64     `yaml:"skip_leading_rows,omitempty"`
	MaxBadRecords     int64     `yaml:"max_bad_records,omitempty"`
	UseLegacySQL      bool      `yaml:"use_legacy_sql,omitempty"`
	Priority          string    `yaml:"priority,omitempty"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a manifest, rejecting unknown fields, and validates it.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("manifest is empty")
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

// Validate checks that every entry has the fields its kind needs.
func (m *Manifest) Validate() error {
	if len(m.Tasks) == 0 {
		return errors.New("tasks list is required and must be non-empty")
	}
	if m.MaxRetries < 0 {
		return errors.New("max_retries must not be negative")
	}

	var errs []error
	for i, e := range m.Tasks {
		if err := e.validate(); err != nil {
			errs = append(errs, fmt.Errorf("tasks[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (e Entry) validate() error {
	switch e.Kind {
	case tasks.KindLoad:
		if e.Destination == "" || len(e.Sources) == 0 {
			return errors.New("load needs destination and sources")
		}
		for _, s := range e.Sources {
			if _, _, err := gcs.ParseURI(s); err != nil {
				return err
			}
		}
	case tasks.KindQuery, tasks.KindView:
		if e.Destination == "" || strings.TrimSpace(e.Query) == "" {
			return fmt.Errorf("%s needs destination and query", e.Kind)
		}
	case tasks.KindCopy:
		if e.Destination == "" || len(e.Sources) == 0 {
			return errors.New("copy needs destination and sources")
		}
	case tasks.KindExtract:
		if e.Source == "" || len(e.Destinations) == 0 {
			return errors.New("extract needs source and destinations")
		}
		for _, d := range e.Destinations {
			if _, _, err := gcs.ParseURI(d); err != nil {
				return err
			}
		}
	case "":
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	return nil
}

// ParseTableRef resolves bq://project/dataset/table, project.dataset.table or
// dataset.table, the last one within project.
func ParseTableRef(ref, project, location string) (bq.Table, error) {
	if strings.HasPrefix(ref, "bq://") {
		t, err := bq.ParseTableURI(ref)
		if err != nil {
			return bq.Table{}, err
		}
		t.Location = location
		return t, nil
	}

	parts := strings.Split(ref, ".")
	switch {
	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] != "":
		return bq.NewTable(parts[0], parts[1], parts[2], location), nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		if project == "" {
			return bq.Table{}, fmt.Errorf("table %q has no project and no default project is set", ref)
		}
		return bq.NewTable(project, parts[0], parts[1], location), nil
	default:
		return bq.Table{}, fmt.Errorf("invalid table reference %q", ref)
	}
}

// Build builds the manifest's tasks on client and storage.
func (m *Manifest) Build(client bq.Warehouse, storage gcs.StorageService) ([]tasks.Task, error) {
	out := make([]tasks.Task, 0, len(m.Tasks))
	for i, e := range m.Tasks {
		t, err := m.build(e, client, storage)
		if err != nil {
			return nil, fmt.Errorf("tasks[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *Manifest) build(e Entry, client bq.Warehouse, storage gcs.StorageService) (tasks.Task, error) {
	location := e.Location
	if location == "" {
		location = m.Location
	}
	table := func(ref string) (bq.Table, error) {
		return ParseTableRef(ref, m.Project, location)
	}

	switch e.Kind {
	case tasks.KindLoad:
		dst, err := table(e.Destination)
		if err != nil {
			return nil, err
		}
		return &tasks.LoadTask{
			Client:            client,
			SourceURIs:        e.Sources,
			Destination:       dst,
			Schema:            e.Schema,
			SourceFormat:      bq.SourceFormat(strings.ToUpper(e.SourceFormat)),
			CreateDisposition: bq.CreateDisposition(strings.ToUpper(e.CreateDisposition)),
			WriteDisposition:  bq.WriteDisposition(strings.ToUpper(e.WriteDisposition)),
			FieldDelimiter:    e.FieldDelimiter,
			SkipLeadingRows:   e.SkipLeadingRows,
			MaxBadRecords:     e.MaxBadRecords,
		}, nil

	case tasks.KindQuery:
		dst, err := table(e.Destination)
		if err != nil {
			return nil, err
		}
		return &tasks.RunQueryTask{
			Client:            client,
			Query:             e.Query,
			Destination:       dst,
			CreateDisposition: bq.CreateDisposition(strings.ToUpper(e.CreateDisposition)),
			WriteDisposition:  bq.WriteDisposition(strings.ToUpper(e.WriteDisposition)),
			Mode:              bq.QueryMode(strings.ToUpper(e.Priority)),
			UseLegacySQL:      e.UseLegacySQL,
		}, nil

	case tasks.KindCopy:
		dst, err := table(e.Destination)
		if err != nil {
			return nil, err
		}
		srcs := make([]bq.Table, 0, len(e.Sources))
		for _, s := range e.Sources {
			src, err := table(s)
			if err != nil {
				return nil, err
			}
			srcs = append(srcs, src)
		}
		return &tasks.CopyTask{
			Client:            client,
			Sources:           srcs,
			Destination:       dst,
			CreateDisposition: bq.CreateDisposition(strings.ToUpper(e.CreateDisposition)),
			WriteDisposition:  bq.WriteDisposition(strings.ToUpper(e.WriteDisposition)),
		}, nil

	case tasks.KindExtract:
		src, err := table(e.Source)
		if err != nil {
			return nil, err
		}
		return &tasks.ExtractTask{
			Client:            client,
			Storage:           storage,
			Source:            src,
			DestinationURIs:   e.Destinations,
			DestinationFormat: bq.DestinationFormat(strings.ToUpper(e.DestinationFormat)),
			Compression:       bq.Compression(strings.ToUpper(e.Compression)),
			FieldDelimiter:    e.FieldDelimiter,
		}, nil

	case tasks.KindView:
		dst, err := table(e.Destination)
		if err != nil {
			return nil, err
		}
		return &tasks.CreateViewTask{Client: client, View: e.Query, Destination: dst}, nil
	}
	return nil, fmt.Errorf("unknown kind %q", e.Kind)
}
