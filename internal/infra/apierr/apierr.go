// Package apierr classifies errors returned by Google Cloud REST clients.
package apierr

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Code returns the HTTP status code carried by err, or 0.
func Code(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return Code(err) == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the API, e.g. "already exists".
func IsConflict(err error) bool {
	return Code(err) == http.StatusConflict
}
