package cli

import (
	"github.com/spf13/cobra"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/tasks"
)

type taskResult struct {
	TaskID string `json:"task_id"`
	Output string `json:"output"`
	Ran    bool   `json:"ran"`
}

// buildAndReport runs task unless complete and prints its output.
func (o *RootOptions) buildAndReport(cmd *cobra.Command, task tasks.Task) error {
	ran, err := tasks.Build(cmd.Context(), task)
	if err != nil {
		return wrapTaskError(err)
	}
	res := taskResult{TaskID: task.ID(), Output: task.Output().URI(), Ran: ran}
	line := res.Output
	if !ran {
		line += " (already complete)"
	}
	return o.output(cmd.OutOrStdout()).Line(res, line)
}

// NewLoadCommand creates the load command.
func NewLoadCommand(opts *RootOptions) *cobra.Command {
	var (
		sources      []string
		destination  string
		schema       string
		sourceFormat string
		write        string
		create       string
		delimiter    string
		skipRows     int64
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load files from GCS into a table",
		Example: `  bqflow load -p my-project --location EU \
    --source gs://bucket/in/*.json --destination staging.events \
    --schema field1:STRING,field2:INTEGER`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sources) == 0 {
				return usageError("at least one --source is required")
			}
			if err := requireFlag("destination", destination); err != nil {
				return err
			}
			dst, err := opts.table(destination)
			if err != nil {
				return err
			}
			sch, err := parseSchema(schema)
			if err != nil {
				return err
			}

			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			return opts.buildAndReport(cmd, &tasks.LoadTask{
				Client:            c.warehouse,
				SourceURIs:        sources,
				Destination:       dst,
				Schema:            sch,
				SourceFormat:      bq.SourceFormat(sourceFormat),
				WriteDisposition:  bq.WriteDisposition(write),
				CreateDisposition: bq.CreateDisposition(create),
				FieldDelimiter:    delimiter,
				SkipLeadingRows:   skipRows,
			})
		},
	}

	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "gs:// source URI (repeatable)")
	cmd.Flags().StringVarP(&destination, "destination", "d", "", "destination table (dataset.table, project.dataset.table or bq://...)")
	cmd.Flags().StringVar(&schema, "schema", "", "schema as name:TYPE[:MODE],...")
	cmd.Flags().StringVar(&sourceFormat, "source-format", string(bq.FormatNewlineDelimitedJSON), "source format")
	cmd.Flags().StringVar(&write, "write-disposition", string(bq.WriteEmpty), "write disposition")
	cmd.Flags().StringVar(&create, "create-disposition", string(bq.CreateIfNeeded), "create disposition")
	cmd.Flags().StringVar(&delimiter, "field-delimiter", "", "CSV field delimiter")
	cmd.Flags().Int64Var(&skipRows, "skip-leading-rows", 0, "CSV header rows to skip")

	return cmd
}

// NewQueryCommand creates the query command.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	var (
		query       string
		destination string
		write       string
		legacySQL   bool
		batch       bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query into a destination table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("query", query); err != nil {
				return err
			}
			if err := requireFlag("destination", destination); err != nil {
				return err
			}
			dst, err := opts.table(destination)
			if err != nil {
				return err
			}

			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			mode := bq.QueryInteractive
			if batch {
				mode = bq.QueryBatch
			}
			return opts.buildAndReport(cmd, &tasks.RunQueryTask{
				Client:           c.warehouse,
				Query:            query,
				Destination:      dst,
				WriteDisposition: bq.WriteDisposition(write),
				Mode:             mode,
				UseLegacySQL:     legacySQL,
			})
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "SQL to run")
	cmd.Flags().StringVarP(&destination, "destination", "d", "", "destination table")
	cmd.Flags().StringVar(&write, "write-disposition", string(bq.WriteTruncate), "write disposition")
	cmd.Flags().BoolVar(&legacySQL, "legacy-sql", false, "use legacy SQL")
	cmd.Flags().BoolVar(&batch, "batch", false, "run with batch priority")

	return cmd
}

// NewCopyCommand creates the copy command.
func NewCopyCommand(opts *RootOptions) *cobra.Command {
	var (
		sources     []string
		destination string
		write       string
	)

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy tables into a destination table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(sources) == 0 {
				return usageError("at least one --source is required")
			}
			if err := requireFlag("destination", destination); err != nil {
				return err
			}
			dst, err := opts.table(destination)
			if err != nil {
				return err
			}
			srcs := make([]bq.Table, 0, len(sources))
			for _, s := range sources {
				t, err := opts.table(s)
				if err != nil {
					return err
				}
				srcs = append(srcs, t)
			}

			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			return opts.buildAndReport(cmd, &tasks.CopyTask{
				Client:           c.warehouse,
				Sources:          srcs,
				Destination:      dst,
				WriteDisposition: bq.WriteDisposition(write),
			})
		},
	}

	cmd.Flags().StringSliceVarP(&sources, "source", "s", nil, "source table (repeatable)")
	cmd.Flags().StringVarP(&destination, "destination", "d", "", "destination table")
	cmd.Flags().StringVar(&write, "write-disposition", string(bq.WriteTruncate), "write disposition")

	return cmd
}

// NewExtractCommand creates the extract command.
func NewExtractCommand(opts *RootOptions) *cobra.Command {
	var (
		source       string
		destinations []string
		format       string
		compression  string
		header       bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Export a table to GCS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag("source", source); err != nil {
				return err
			}
			if len(destinations) == 0 {
				return usageError("at least one --destination is required")
			}
			src, err := opts.table(source)
			if err != nil {
				return err
			}

			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			return opts.buildAndReport(cmd, &tasks.ExtractTask{
				Client:            c.warehouse,
				Storage:           c.storage,
				Source:            src,
				DestinationURIs:   destinations,
				DestinationFormat: bq.DestinationFormat(format),
				Compression:       bq.Compression(compression),
				PrintHeader:       header,
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "source table")
	cmd.Flags().StringSliceVarP(&destinations, "destination", "d", nil, "gs:// destination URI (repeatable)")
	cmd.Flags().StringVar(&format, "destination-format", string(bq.DestinationCSV), "destination format")
	cmd.Flags().StringVar(&compression, "compression", string(bq.CompressionNone), "compression")
	cmd.Flags().BoolVar(&header, "print-header", true, "write a CSV header row")

	return cmd
}

// NewURICommand creates the uri command.
func NewURICommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uri TABLE",
		Short: "Print the bq:// URI of a table reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := opts.table(args[0])
			if err != nil {
				return err
			}
			return opts.output(cmd.OutOrStdout()).Line(map[string]string{"uri": t.URI()}, t.URI())
		},
	}
}

// NewDatasetsCommand creates the datasets command.
func NewDatasetsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List datasets in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			ids, err := c.warehouse.ListDatasets(cmd.Context(), opts.Project)
			if err != nil {
				return err
			}
			return opts.output(cmd.OutOrStdout()).Lines(ids, ids)
		},
	}
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables DATASET",
		Short: "List tables in a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer c.Close()

			ds := bq.Dataset{ProjectID: opts.Project, DatasetID: args[0]}
			ids, err := c.warehouse.ListTables(cmd.Context(), ds)
			if err != nil {
				return err
			}
			return opts.output(cmd.OutOrStdout()).Lines(ids, ids)
		},
	}
}
