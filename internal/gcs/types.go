package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// CreateBucket creates a bucket in the given project and location.
	// It returns an error wrapping ErrBucketExists if the bucket is already there.
	CreateBucket(ctx context.Context, projectID, bucketName, location string) error

	// Exists reports whether an object, or a directory prefix, exists at uri.
	Exists(ctx context.Context, uri string) (bool, error)

	// IsDir reports whether uri is a prefix with at least one object under it.
	IsDir(ctx context.Context, uri string) (bool, error)

	// Remove deletes the object at uri, or everything under it when recursive is set.
	// It returns false when there was nothing to delete.
	Remove(ctx context.Context, uri string, recursive bool) (bool, error)

	// Mkdir creates a directory marker object at uri.
	Mkdir(ctx context.Context, uri string) error

	// PutString uploads content to uri.
	PutString(ctx context.Context, content, uri, contentType string) error

	// Put uploads a local file to uri.
	Put(ctx context.Context, filePath, uri string) error

	// Download returns the bytes of the object at uri.
	Download(ctx context.Context, uri string) ([]byte, error)

	// Copy copies the object at src to dst.
	Copy(ctx context.Context, src, dst string) error

	// Rename moves the object at src to dst.
	Rename(ctx context.Context, src, dst string) error

	// ListDir returns the URIs of all objects under the uri prefix.
	ListDir(ctx context.Context, uri string) ([]string, error)

	// ListWildcard returns the URIs of all objects matching a glob pattern.
	ListWildcard(ctx context.Context, pattern string) ([]string, error)

	// Close releases the underlying client.
	Close() error
}

const scheme = "gs://"

var (
	// ErrBucketExists is returned by CreateBucket on a conflict.
	ErrBucketExists = errors.New("bucket already exists")

	// ErrObjectNotFound is returned when an object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrDirectoryNotEmpty is returned when removing a non-empty prefix without recursion.
	ErrDirectoryNotEmpty = errors.New("directory not empty, use recursive removal")
)

// ParseURI splits "gs://bucket/path/to/object" into bucket and object key.
// The key may be empty for a bare bucket URI.
func ParseURI(uri string) (bucket, key string, err error) {
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no bucket): %s", uri)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

// JoinURI builds a gs:// URI from a bucket and path elements.
// A trailing slash on the last element is kept so directory URIs stay directories.
func JoinURI(bucket string, elem ...string) string {
	joined := path.Join(elem...)
	if len(elem) > 0 && strings.HasSuffix(elem[len(elem)-1], "/") && joined != "" {
		joined += "/"
	}
	joined = strings.TrimPrefix(joined, "/")
	return scheme + bucket + "/" + joined
}

// DirKey returns key with exactly one trailing slash, or "" for the bucket root.
func DirKey(key string) string {
	key = strings.TrimSuffix(key, "/")
	if key == "" {
		return ""
	}
	return key + "/"
}

// Filename extracts the filename from a storage URI.
// e.g., "gs://bucket/folder/file.json" → "file.json"
func Filename(uri string) string {
	trimmed := strings.TrimPrefix(uri, scheme)

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}
