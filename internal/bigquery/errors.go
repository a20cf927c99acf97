package bigquery

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a dataset or table does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDatasetExists is returned by MakeDataset when raiseIfExists is set.
	ErrDatasetExists = errors.New("dataset already exists")

	// ErrLocationMismatch is returned when a job or dataset location differs
	// from the location of an existing dataset.
	ErrLocationMismatch = errors.New("location mismatch")
)

// LocationMismatchError reports an attempt to use a dataset from another location.
type LocationMismatchError struct {
	Dataset   Dataset
	Existing  string
	Requested string
}

func (e *LocationMismatchError) Error() string {
	return fmt.Sprintf("dataset %s already exists with regional location %s, can't use %s",
		e.Dataset, e.Existing, e.Requested)
}

func (e *LocationMismatchError) Unwrap() error {
	return ErrLocationMismatch
}

// SameLocation compares two locations. Location names are case-insensitive.
func SameLocation(a, b string) bool {
	return strings.EqualFold(a, b)
}

// CheckLocation validates a requested location against the location of an existing
// dataset. An empty requested location defers to the dataset.
func CheckLocation(ds Dataset, existing, requested string) error {
	if requested == "" || SameLocation(existing, requested) {
		return nil
	}
	return &LocationMismatchError{Dataset: ds, Existing: existing, Requested: requested}
}
