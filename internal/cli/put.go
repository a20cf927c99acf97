package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bqflow/internal/gcs"
)

// NewPutCommand creates the put command.
func NewPutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put FILE gs://bucket/path",
		Short: "Upload a local file to GCS",
		Long:  "Upload a local file to GCS. A destination ending in / keeps the local file name.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := putDestination(args[0], args[1])
			if err != nil {
				return err
			}

			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.storage.Put(cmd.Context(), args[0], dst); err != nil {
				return err
			}
			return opts.output(cmd.OutOrStdout()).Line(map[string]string{"uri": dst}, dst)
		},
	}
}

func putDestination(localPath, uri string) (string, error) {
	bucket, key, err := gcs.ParseURI(uri)
	if err != nil {
		return "", usageError("%w", err)
	}
	if key == "" || strings.HasSuffix(key, "/") {
		return gcs.JoinURI(bucket, key, filepath.Base(localPath)), nil
	}
	return uri, nil
}
