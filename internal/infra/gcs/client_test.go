package gcs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bqflow/internal/gcs"
)

const testBucket = "bqflow-test-bucket"

func newTestClient(t *testing.T, objects ...fakestorage.Object) *Client {
	t.Helper()

	server, err := fakestorage.NewServerWithOptions(fakestorage.Options{
		InitialObjects: objects,
		NoListener:     true,
	})
	require.NoError(t, err)
	t.Cleanup(server.Stop)

	if len(objects) == 0 {
		// Initial objects create their own bucket.
		server.CreateBucketWithOpts(fakestorage.CreateBucketOpts{Name: testBucket})
	}

	return NewClientWithStorage(server.Client())
}

func object(name, content string) fakestorage.Object {
	return fakestorage.Object{
		ObjectAttrs: fakestorage.ObjectAttrs{BucketName: testBucket, Name: name},
		Content:     []byte(content),
	}
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}

func TestPutStringAndDownload(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	uri := gcs.JoinURI(testBucket, "folder", "fixture.json")
	require.NoError(t, c.PutString(ctx, `{"field1":"hi","field2":1}`, uri, "application/json"))

	ok, err := c.Exists(ctx, uri)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := c.Download(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, `{"field1":"hi","field2":1}`, string(data))
}

func TestDownloadMissingObject(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Download(context.Background(), gcs.JoinURI(testBucket, "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, gcs.ErrObjectNotFound))
}

func TestExistsTreatsPrefixAsDirectory(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, object("run-1/a.json", "a"))

	ok, err := c.Exists(ctx, "gs://"+testBucket+"/run-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.IsDir(ctx, "gs://"+testBucket+"/run-1/")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Exists(ctx, "gs://"+testBucket+"/run-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMkdirCreatesMarker(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	dir := "gs://" + testBucket + "/bigquery_test_folder/"
	require.NoError(t, c.Mkdir(ctx, dir))

	ok, err := c.IsDir(ctx, dir)
	require.NoError(t, err)
	assert.True(t, ok)

	// The marker itself is not listed as a child.
	children, err := c.ListDir(ctx, dir)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()

	t.Run("single object", func(t *testing.T) {
		c := newTestClient(t, object("f/a.json", "a"), object("f/b.json", "b"))

		removed, err := c.Remove(ctx, "gs://"+testBucket+"/f/a.json", false)
		require.NoError(t, err)
		assert.True(t, removed)

		left, err := c.ListDir(ctx, "gs://"+testBucket+"/f/")
		require.NoError(t, err)
		assert.Equal(t, []string{"gs://" + testBucket + "/f/b.json"}, left)
	})

	t.Run("directory requires recursive", func(t *testing.T) {
		c := newTestClient(t, object("f/a.json", "a"))

		_, err := c.Remove(ctx, "gs://"+testBucket+"/f/", false)
		require.Error(t, err)
		assert.True(t, errors.Is(err, gcs.ErrDirectoryNotEmpty))
	})

	t.Run("recursive", func(t *testing.T) {
		c := newTestClient(t, object("f/", ""), object("f/a.json", "a"), object("f/sub/b.json", "b"), object("g/c.json", "c"))

		removed, err := c.Remove(ctx, "gs://"+testBucket+"/f/", true)
		require.NoError(t, err)
		assert.True(t, removed)

		ok, err := c.Exists(ctx, "gs://"+testBucket+"/f/")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = c.Exists(ctx, "gs://"+testBucket+"/g/c.json")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing", func(t *testing.T) {
		c := newTestClient(t)

		removed, err := c.Remove(ctx, "gs://"+testBucket+"/nothing/", true)
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestCopyAndRename(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t, object("src.json", "payload"))

	src := "gs://" + testBucket + "/src.json"
	copied := "gs://" + testBucket + "/copy.json"
	moved := "gs://" + testBucket + "/moved.json"

	require.NoError(t, c.Copy(ctx, src, copied))
	data, err := c.Download(ctx, copied)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, c.Rename(ctx, copied, moved))
	ok, err := c.Exists(ctx, copied)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Exists(ctx, moved)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListWildcard(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t,
		object("data/part-0.json", "0"),
		object("data/part-1.json", "1"),
		object("data/part-1.csv", "1"),
		object("data/nested/part-2.json", "2"),
	)

	got, err := c.ListWildcard(ctx, "gs://"+testBucket+"/data/*.json")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"gs://" + testBucket + "/data/part-0.json",
		"gs://" + testBucket + "/data/part-1.json",
	}, sorted(got))

	got, err = c.ListWildcard(ctx, "gs://"+testBucket+"/data/**/*.json")
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = c.ListWildcard(ctx, "gs://"+testBucket+"/data/[")
	assert.Error(t, err)
}

func TestPutLocalFile(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	path := filepath.Join(t.TempDir(), "rows.json")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))

	uri := "gs://" + testBucket + "/uploads/rows.json"
	require.NoError(t, c.Put(ctx, path, uri))

	data, err := c.Download(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(data))

	assert.Error(t, c.Put(ctx, filepath.Join(t.TempDir(), "missing"), uri))
}
