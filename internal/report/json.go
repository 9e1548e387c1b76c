package report

import (
	"encoding/json"
	"io"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// JSONWriter outputs structured JSON.
// This format is designed for tool integration and scripting; it uses
// the same field names as the proxy's /status endpoint.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = ""
		w.indentString = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteStatus renders the instance table as a JSON array.
func (w *JSONWriter) WriteStatus(views []model.InstanceView) error {
	if views == nil {
		views = []model.InstanceView{}
	}
	return w.writeJSON(views)
}

// WriteHistory renders rotation records as a JSON array, newest first.
func (w *JSONWriter) WriteHistory(records []model.RotationRecord) error {
	if records == nil {
		records = []model.RotationRecord{}
	}
	return w.writeJSON(records)
}

// writeJSON marshals v with the configured indentation and writes it
// followed by a trailing newline.
func (w *JSONWriter) writeJSON(v any) error {
	enc := json.NewEncoder(w.output)
	if w.indent {
		enc.SetIndent(w.indentPrefix, w.indentString)
	}
	return enc.Encode(v)
}
