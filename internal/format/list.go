// Package format renders log listings and turn summaries for the terminal.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"monopolylog/internal/model"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// WriteLogList writes log files to w in the requested format.
func WriteLogList(w io.Writer, files []model.LogFile, includeHeader bool, format string) error {
	format = strings.ToLower(format)
	switch format {
	case "", "table":
		return writeLogListTable(w, files, includeHeader)
	case "plain":
		return writeLogListPlain(w, files, includeHeader)
	case "json":
		return writeJSON(w, files)
	case "jsonl":
		return writeJSONL(w, files)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeLogListPlain(w io.Writer, files []model.LogFile, includeHeader bool) error {
	if includeHeader {
		if _, err := fmt.Fprintln(w, "modified\tsize\tname"); err != nil {
			return err
		}
	}

	for _, f := range files {
		line := fmt.Sprintf("%s\t%d\t%s", f.Modified.UTC().Format(time.RFC3339), f.Size, f.Name)
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeLogListTable(w io.Writer, files []model.LogFile, includeHeader bool) error {
	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
	})

	if includeHeader {
		tw.AppendHeader(table.Row{"Modified", "Size", "Name"})
	}
	for _, f := range files {
		tw.AppendRow(table.Row{f.Modified.UTC().Format(time.RFC3339), formatSize(f.Size), f.Name})
	}
	if len(files) == 0 {
		tw.AppendRow(table.Row{"-", "0 B", "(no logs)"})
	}

	_ = tw.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = true
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	return tw
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func escapeNewlines(text string) string {
	return strings.ReplaceAll(text, "\n", "\\n")
}
