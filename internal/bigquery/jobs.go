package bigquery

// CreateDisposition controls whether a job may create its destination table.
type CreateDisposition string

const (
	CreateIfNeeded CreateDisposition = "CREATE_IF_NEEDED"
	CreateNever    CreateDisposition = "CREATE_NEVER"
)

// WriteDisposition controls how a job treats existing data in its destination.
type WriteDisposition string

const (
	WriteTruncate WriteDisposition = "WRITE_TRUNCATE"
	WriteAppend   WriteDisposition = "WRITE_APPEND"
	WriteEmpty    WriteDisposition = "WRITE_EMPTY"
)

// SourceFormat is the format of files read by a load job.
type SourceFormat string

const (
	FormatNewlineDelimitedJSON SourceFormat = "NEWLINE_DELIMITED_JSON"
	FormatCSV                  SourceFormat = "CSV"
	FormatAvro                 SourceFormat = "AVRO"
	FormatParquet              SourceFormat = "PARQUET"
	FormatDatastoreBackup      SourceFormat = "DATASTORE_BACKUP"
)

// DestinationFormat is the format of files written by an extract job.
type DestinationFormat string

const (
	DestinationCSV                  DestinationFormat = "CSV"
	DestinationNewlineDelimitedJSON DestinationFormat = "NEWLINE_DELIMITED_JSON"
	DestinationAvro                 DestinationFormat = "AVRO"
)

// Compression of extracted files.
type Compression string

const (
	CompressionNone Compression = "NONE"
	CompressionGzip Compression = "GZIP"
)

// Encoding of CSV and JSON source files.
type Encoding string

const (
	EncodingUTF8     Encoding = "UTF-8"
	EncodingISO88591 Encoding = "ISO-8859-1"
)

// QueryMode is the priority a query job runs with.
type QueryMode string

const (
	QueryInteractive QueryMode = "INTERACTIVE"
	QueryBatch       QueryMode = "BATCH"
)

// LoadJob describes an import from object storage into Destination.
type LoadJob struct {
	SourceURIs        []string
	Destination       Table
	Schema            Schema
	SourceFormat      SourceFormat
	CreateDisposition CreateDisposition
	WriteDisposition  WriteDisposition
	Encoding          Encoding

	MaxBadRecords       int64
	IgnoreUnknownValues bool

	// CSV only.
	FieldDelimiter      string
	SkipLeadingRows     int64
	AllowJaggedRows     bool
	AllowQuotedNewlines bool
}

// Location returns the location the job runs in.
func (j LoadJob) Location() string { return j.Destination.Location }

// QueryJob describes a query whose result is written to Destination.
type QueryJob struct {
	Query             string
	Destination       Table
	CreateDisposition CreateDisposition
	WriteDisposition  WriteDisposition
	Mode              QueryMode
	UseLegacySQL      bool
	FlattenResults    bool
}

// Location returns the location the job runs in.
func (j QueryJob) Location() string { return j.Destination.Location }

// CopyJob describes a table copy.
type CopyJob struct {
	Sources           []Table
	Destination       Table
	CreateDisposition CreateDisposition
	WriteDisposition  WriteDisposition
}

// Location returns the location the job runs in.
func (j CopyJob) Location() string { return j.Destination.Location }

// ExtractJob describes an export of Source into object storage.
type ExtractJob struct {
	Source            Table
	DestinationURIs   []string
	DestinationFormat DestinationFormat
	Compression       Compression
	FieldDelimiter    string
	PrintHeader       bool
}

// Location returns the location the job runs in.
func (j ExtractJob) Location() string { return j.Source.Location }
