package report

import (
	"fmt"
	"io"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// Writer renders pool state in a particular output format.
//
// Design decision: status and history rendering share one interface so
// the CLI can select the format once and reuse the writer for either
// subcommand.
type Writer interface {
	// WriteStatus renders an instance table snapshot.
	WriteStatus(views []model.InstanceView) error

	// WriteHistory renders rotation records, newest first.
	WriteHistory(records []model.RotationRecord) error
}

// Format identifies an output format selectable via the CLI.
type Format string

// Supported output formats.
const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// NewWriter returns the Writer for format, writing to output.
func NewWriter(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatTable:
		return NewTableWriter(output), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, markdown, or json)", format)
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
