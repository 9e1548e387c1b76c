package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// MarkdownWriter outputs Markdown tables.
// This format is designed for documentation and sharing.
//
// Design decision: the nao1215/markdown library gives us type-safe
// table generation instead of hand-concatenated pipe syntax.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteStatus renders the instance table as Markdown.
func (w *MarkdownWriter) WriteStatus(views []model.InstanceView) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Pool Status")
	md.PlainText("")

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		active := ""
		if v.Active {
			active = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(v.ID),
			active,
			v.StatusText,
			strconv.Itoa(v.SocksPort),
			orDash(v.CurrentIP),
			countryCell(v.CountryCode, v.CountryName),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Active", "Status", "SOCKS Port", "Exit IP", "Country"},
		Rows:   rows,
	})

	return md.Build()
}

// WriteHistory renders rotation records as Markdown, newest first.
func (w *MarkdownWriter) WriteHistory(records []model.RotationRecord) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Rotation History")
	md.PlainText("")

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.RotatedAt.Format("2006-01-02 15:04:05"),
			strconv.Itoa(rec.InstanceID),
			orDash(rec.OldIP),
			orDash(rec.NewIP),
			orDash(rec.Country),
			string(rec.Trigger),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Rotated At", "ID", "Old IP", "New IP", "Country", "Trigger"},
		Rows:   rows,
	})

	return md.Build()
}
