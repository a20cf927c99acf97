package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func (o *RootOptions) output(w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: w}
}

// Lines prints one item per line as text, or the value as JSON.
func (f *OutputFormatter) Lines(value interface{}, lines []string) error {
	if f.Format == "json" {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(f.Writer, l); err != nil {
			return err
		}
	}
	return nil
}

// Line prints a single text line, or value as JSON.
func (f *OutputFormatter) Line(value interface{}, line string) error {
	return f.Lines(value, []string{line})
}
