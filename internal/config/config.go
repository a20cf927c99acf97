// Package config reads the project, bucket and dataset settings used by the
// integration harness and the CLI from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Environment variables.
const (
	EnvProjectID   = "BQ_TEST_PROJECT_ID"
	EnvBucket      = "BQ_TEST_INPUT_BUCKET"
	EnvBuildID     = "TRAVIS_BUILD_ID"
	EnvDatasetID   = "BQ_TEST_DATASET_ID"
	EnvEUDatasetID = "BQ_TEST_EU_DATASET_ID"
)

// Defaults and placeholders.
const (
	DefaultFolder      = "bigquery_test_folder"
	DefaultDatasetID   = "luigi_tests"
	DefaultEUDatasetID = "luigi_tests_eu"

	PlaceholderProjectID = "your_project_id_here"
	PlaceholderBucket    = "your_test_bucket_here"
)

// ErrNotConfigured is returned when a setting is unset, blank or still a placeholder.
var ErrNotConfigured = errors.New("integration environment not configured")

// Env is the live environment the harness runs against.
type Env struct {
	ProjectID   string
	Bucket      string
	Folder      string
	DatasetID   string
	EUDatasetID string
}

// FromEnv reads Env from the process environment.
func FromEnv() (Env, error) {
	return Load(os.LookupEnv)
}

// Load reads Env through lookup, applying defaults, and validates it.
func Load(lookup func(string) (string, bool)) (Env, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	env := Env{
		ProjectID:   get(EnvProjectID, PlaceholderProjectID),
		Bucket:      get(EnvBucket, PlaceholderBucket),
		Folder:      get(EnvBuildID, DefaultFolder),
		DatasetID:   get(EnvDatasetID, DefaultDatasetID),
		EUDatasetID: get(EnvEUDatasetID, DefaultEUDatasetID),
	}
	if err := env.Validate(); err != nil {
		return Env{}, err
	}
	return env, nil
}

// Validate rejects placeholder project and bucket values, a folder that resolves
// to the bucket root, blank dataset ids and identical dataset ids.
func (e Env) Validate() error {
	var errs []error
	if e.ProjectID == "" || e.ProjectID == PlaceholderProjectID {
		errs = append(errs, fmt.Errorf("%w: set %s to a project you can create datasets in", ErrNotConfigured, EnvProjectID))
	}
	if e.Bucket == "" || e.Bucket == PlaceholderBucket {
		errs = append(errs, fmt.Errorf("%w: set %s to a bucket name you own", ErrNotConfigured, EnvBucket))
	}
	if strings.Trim(strings.TrimSpace(e.Folder), "/") == "" {
		errs = append(errs, fmt.Errorf("%w: %s must name a folder, got %q", ErrNotConfigured, EnvBuildID, e.Folder))
	}
	if strings.TrimSpace(e.DatasetID) == "" {
		errs = append(errs, fmt.Errorf("%w: %s is blank", ErrNotConfigured, EnvDatasetID))
	}
	if strings.TrimSpace(e.EUDatasetID) == "" {
		errs = append(errs, fmt.Errorf("%w: %s is blank", ErrNotConfigured, EnvEUDatasetID))
	}
	if e.DatasetID == e.EUDatasetID {
		errs = append(errs, fmt.Errorf("%w: %s and %s must differ, both are %q", ErrNotConfigured, EnvDatasetID, EnvEUDatasetID, e.DatasetID))
	}
	return errors.Join(errs...)
}
