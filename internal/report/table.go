package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// TableWriter outputs human-readable text tables.
// This format is designed for terminal display.
//
// Design decision: plain text with ASCII formatting rather than ANSI
// colors because it works in all terminals and pipes cleanly to files.
type TableWriter struct {
	baseWriter
}

// NewTableWriter creates a TableWriter that outputs to the given writer.
func NewTableWriter(output io.Writer) *TableWriter {
	return &TableWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteStatus renders the instance table in aligned columns.
func (w *TableWriter) WriteStatus(views []model.InstanceView) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-4s %-7s %-11s %-12s %-16s %-20s\n",
		"ID", "ACTIVE", "STATUS", "SOCKS PORT", "EXIT IP", "COUNTRY"))
	sb.WriteString(strings.Repeat("-", 74))
	sb.WriteString("\n")

	for _, v := range views {
		active := ""
		if v.Active {
			active = "*"
		}
		sb.WriteString(fmt.Sprintf("%-4d %-7s %-11s %-12d %-16s %-20s\n",
			v.ID,
			active,
			v.StatusText,
			v.SocksPort,
			orDash(v.CurrentIP),
			countryCell(v.CountryCode, v.CountryName),
		))
	}

	if len(views) == 0 {
		sb.WriteString("(no instances)\n")
	}

	_, err := io.WriteString(w.output, sb.String())
	return err
}

// WriteHistory renders rotation records in aligned columns, newest first.
func (w *TableWriter) WriteHistory(records []model.RotationRecord) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-21s %-4s %-16s %-16s %-9s %-10s\n",
		"ROTATED AT", "ID", "OLD IP", "NEW IP", "COUNTRY", "TRIGGER"))
	sb.WriteString(strings.Repeat("-", 80))
	sb.WriteString("\n")

	for _, rec := range records {
		sb.WriteString(fmt.Sprintf("%-21s %-4d %-16s %-16s %-9s %-10s\n",
			rec.RotatedAt.Format("2006-01-02 15:04:05"),
			rec.InstanceID,
			orDash(rec.OldIP),
			orDash(rec.NewIP),
			orDash(rec.Country),
			string(rec.Trigger),
		))
	}

	if len(records) == 0 {
		sb.WriteString("(no rotations recorded)\n")
	}

	_, err := io.WriteString(w.output, sb.String())
	return err
}

// orDash substitutes a dash for empty cells so columns stay aligned.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// countryCell combines code and display name into one cell.
func countryCell(code, name string) string {
	switch {
	case code == "":
		return "-"
	case name == "":
		return code
	default:
		return code + " (" + name + ")"
	}
}
