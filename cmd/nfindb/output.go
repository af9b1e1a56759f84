package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nfinity/nfindb/internal/model"
	"github.com/nfinity/nfindb/internal/ui"
)

// maxValueWidth truncates document previews in list tables.
const maxValueWidth = 60

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printDocument writes a document on its own. Without --json the document
// is still JSON, indented for reading.
func printDocument(w io.Writer, doc model.Document) error {
	return printJSON(w, doc)
}

func formatCreated(created int64) string {
	return time.Unix(created, 0).UTC().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func printItemsTable(w io.Writer, items []model.Item, total int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tCREATED\tVALUE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			ui.RenderAccent(it.Key),
			ui.RenderMuted(formatCreated(it.Created)),
			truncate(it.Value.String(), maxValueWidth),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d documents (%d total)\n", len(items), total)
	return err
}

func printStrings(w io.Writer, values []string) error {
	if jsonOutput {
		return printJSON(w, values)
	}
	for _, v := range values {
		if _, err := fmt.Fprintln(w, v); err != nil {
			return err
		}
	}
	return nil
}
