// Package report renders run summaries for people: a table on the terminal
// and optionally an email.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"catalogsync-backend/internal/catalog"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

// Render writes the counts of a run and, when there are any, the products
// that failed.
func Render(w io.Writer, summary *catalog.Summary) {
	counts := newTable(w)
	counts.SetTitle("run %s", summary.RunID)
	counts.AppendHeader(table.Row{"Outcome", "Products"})
	counts.AppendRows([]table.Row{
		{"inserted", summary.Inserted()},
		{"updated", summary.Updated()},
		{"skipped", summary.Skipped()},
		{"errors", summary.Errors()},
	})
	counts.AppendFooter(table.Row{"total", summary.Total()})
	counts.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	counts.SetCaption("started %s, took %s",
		summary.StartedAt.UTC().Format(time.RFC3339),
		summary.Duration().Round(time.Millisecond),
	)
	counts.Render()

	failures := summary.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintln(w)

	details := newTable(w)
	details.AppendHeader(table.Row{"Product", "Key", "Kind", "Error"})
	for _, failure := range failures {
		details.AppendRow(table.Row{
			failure.ProductURL,
			failure.Key,
			failure.Kind,
			truncate(strings.ReplaceAll(failure.Message, "\n", " "), 120),
		})
	}
	details.Render()
}

// String renders the summary into a string.
func String(summary *catalog.Summary) string {
	var b strings.Builder
	Render(&b, summary)
	return b.String()
}

// RenderState prints what the state store remembers about a product.
func RenderState(w io.Writer, record *catalog.StateRecord) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Key", "Derived", "Fingerprint", "Last seen"})
	t.AppendRow(table.Row{
		record.Key.ID,
		record.Key.Derived,
		record.Fingerprint,
		record.LastSeen.UTC().Format(time.RFC3339),
	})
	t.Render()
}

// RenderImage prints a cached image host entry.
func RenderImage(w io.Writer, entry *catalog.ImageCacheEntry) {
	t := newTable(w)
	t.SetTitle("image %s", entry.SHA256)
	t.AppendRows([]table.Row{
		{"direct", entry.DirectURL},
		{"viewer", entry.ViewerURL},
		{"thumb", entry.ThumbURL},
	})
	t.Render()
}
