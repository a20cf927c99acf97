package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/bmatcuk/doublestar/v4"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bqflow/internal/gcs"
)

const dirMarkerContentType = "application/octet-stream"

// Exists reports whether an object exists at uri, or uri is a non-empty directory.
func (c *Client) Exists(ctx context.Context, uri string) (ok bool, err error) {
	defer c.observe("exists", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return false, err
	}

	if key != "" && !strings.HasSuffix(key, "/") {
		found, err := c.objectExists(ctx, bucket, key)
		if err != nil || found {
			return found, err
		}
	}

	return c.hasPrefix(ctx, bucket, gcs.DirKey(key))
}

// IsDir reports whether at least one object lives under uri treated as a directory.
func (c *Client) IsDir(ctx context.Context, uri string) (ok bool, err error) {
	defer c.observe("is_dir", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return false, err
	}
	return c.hasPrefix(ctx, bucket, gcs.DirKey(key))
}

// Remove deletes the object at uri. A directory URI is removed only when recursive is set.
func (c *Client) Remove(ctx context.Context, uri string, recursive bool) (removed bool, err error) {
	defer c.observe("remove", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return false, err
	}

	if key != "" && !strings.HasSuffix(key, "/") {
		found, err := c.objectExists(ctx, bucket, key)
		if err != nil {
			return false, err
		}
		if found {
			if err := c.client.Bucket(bucket).Object(key).Delete(ctx); err != nil && !isNotExist(err) {
				return false, fmt.Errorf("Remove %s: %w", uri, err)
			}
			return true, nil
		}
	}

	prefix := gcs.DirKey(key)
	names, err := c.list(ctx, bucket, prefix)
	if err != nil {
		return false, fmt.Errorf("Remove %s: %w", uri, err)
	}
	if len(names) == 0 {
		return false, nil
	}
	if !recursive {
		return false, fmt.Errorf("Remove %s: %w", uri, gcs.ErrDirectoryNotEmpty)
	}

	for _, name := range names {
		if err := c.client.Bucket(bucket).Object(name).Delete(ctx); err != nil && !isNotExist(err) {
			return false, fmt.Errorf("Remove %s: delete %s: %w", uri, name, err)
		}
	}

	c.log.Debug().Str("uri", uri).Int("objects", len(names)).Msg("removed directory")
	return true, nil
}

// Mkdir writes a zero-length directory marker object ending in "/".
func (c *Client) Mkdir(ctx context.Context, uri string) (err error) {
	defer c.observe("mkdir", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return err
	}
	marker := gcs.DirKey(key)
	if marker == "" {
		// The bucket root always exists.
		return nil
	}

	if err := c.write(ctx, bucket, marker, dirMarkerContentType, strings.NewReader("")); err != nil {
		return fmt.Errorf("Mkdir %s: %w", uri, err)
	}
	return nil
}

// PutString uploads content to uri.
func (c *Client) PutString(ctx context.Context, content, uri, contentType string) (err error) {
	defer c.observe("put_string", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("PutString: no object path in %s", uri)
	}

	if err := c.write(ctx, bucket, key, contentType, strings.NewReader(content)); err != nil {
		return fmt.Errorf("PutString %s: %w", uri, err)
	}
	return nil
}

// Put uploads a local file to uri.
func (c *Client) Put(ctx context.Context, filePath, uri string) (err error) {
	defer c.observe("put", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("Put: no object path in %s", uri)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	if err := c.write(ctx, bucket, key, "", f); err != nil {
		return fmt.Errorf("Put %s: %w", uri, err)
	}
	return nil
}

// Download returns the bytes of the object at uri.
func (c *Client) Download(ctx context.Context, uri string) (data []byte, err error) {
	defer c.observe("download", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("Download %s: %w", uri, gcs.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("Download: reading object %s/%s: %w", bucket, key, err)
	}
	defer rc.Close()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Download: reading bytes: %w", err)
	}
	return data, nil
}

// Copy copies the object at src to dst.
func (c *Client) Copy(ctx context.Context, src, dst string) (err error) {
	defer c.observe("copy", time.Now(), &err)

	srcBucket, srcKey, err := gcs.ParseURI(src)
	if err != nil {
		return err
	}
	dstBucket, dstKey, err := gcs.ParseURI(dst)
	if err != nil {
		return err
	}

	srcObj := c.client.Bucket(srcBucket).Object(srcKey)
	dstObj := c.client.Bucket(dstBucket).Object(dstKey)
	if _, err := dstObj.CopierFrom(srcObj).Run(ctx); err != nil {
		if isNotExist(err) {
			return fmt.Errorf("Copy %s: %w", src, gcs.ErrObjectNotFound)
		}
		return fmt.Errorf("Copy %s to %s: %w", src, dst, err)
	}
	return nil
}

// Rename copies src to dst and then deletes src.
func (c *Client) Rename(ctx context.Context, src, dst string) error {
	if err := c.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("Rename: %w", err)
	}
	if _, err := c.Remove(ctx, src, false); err != nil {
		return fmt.Errorf("Rename: %w", err)
	}
	return nil
}

// ListDir returns the URIs of every object under uri, recursively.
func (c *Client) ListDir(ctx context.Context, uri string) (uris []string, err error) {
	defer c.observe("list_dir", time.Now(), &err)

	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	prefix := gcs.DirKey(key)

	names, err := c.list(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("ListDir %s: %w", uri, err)
	}

	for _, name := range names {
		if name == prefix {
			continue
		}
		uris = append(uris, gcs.JoinURI(bucket, name))
	}
	return uris, nil
}

// ListWildcard returns the URIs of objects whose key matches the glob in pattern,
// e.g. "gs://bucket/folder/*.json" or "gs://bucket/**/part-*".
func (c *Client) ListWildcard(ctx context.Context, pattern string) (uris []string, err error) {
	defer c.observe("list_wildcard", time.Now(), &err)

	bucket, keyPattern, err := gcs.ParseURI(pattern)
	if err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(keyPattern) {
		return nil, fmt.Errorf("ListWildcard: invalid pattern %q", keyPattern)
	}

	prefix := keyPattern
	if i := strings.IndexAny(keyPattern, "*?[{"); i >= 0 {
		prefix = keyPattern[:i]
	}

	names, err := c.list(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("ListWildcard %s: %w", pattern, err)
	}

	for _, name := range names {
		ok, err := doublestar.Match(keyPattern, name)
		if err != nil {
			return nil, fmt.Errorf("ListWildcard: %w", err)
		}
		if ok {
			uris = append(uris, gcs.JoinURI(bucket, name))
		}
	}
	return uris, nil
}

func (c *Client) objectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("object attrs %s/%s: %w", bucket, key, err)
}

func (c *Client) hasPrefix(ctx context.Context, bucket, prefix string) (bool, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	_, err := it.Next()
	if err == iterator.Done {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}
	return true, nil
}

func (c *Client) list(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (c *Client) write(ctx context.Context, bucket, key, contentType string, r io.Reader) error {
	if c.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.uploadTimeout)
		defer cancel()
	}

	w := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

var _ gcs.StorageService = (*Client)(nil)
