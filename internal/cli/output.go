package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// Format selects how a command writes its result.
type Format string

const (
	FormatTable    Format = "table"
	FormatPlain    Format = "plain"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
)

// Formats lists the accepted --format values.
var Formats = []Format{FormatTable, FormatPlain, FormatCSV, FormatMarkdown, FormatJSON, FormatYAML}

// ParseFormat validates a --format value. Empty selects the table format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case "md":
		return FormatMarkdown, nil
	case "tsv":
		return FormatPlain, nil
	case "yml":
		return FormatYAML, nil
	case FormatTable, FormatPlain, FormatCSV, FormatMarkdown, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format: %s", s)
}

// Structured reports whether f serializes data rather than the table.
func (f Format) Structured() bool {
	return f == FormatJSON || f == FormatYAML
}

// Emit writes t to w in format f. data is the value behind the table and is
// what the json and yaml formats serialize.
func Emit(w io.Writer, f Format, t Table, data any) error {
	switch f {
	case "", FormatTable:
		_, err := io.WriteString(w, RenderTable(t))
		return err
	case FormatPlain:
		return writePlain(w, t)
	case FormatCSV, FormatMarkdown:
		return writePretty(w, f, t)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format: %s", f)
}

func writePlain(w io.Writer, t Table) error {
	if len(t.Headers) > 0 {
		if _, err := fmt.Fprintln(w, strings.Join(t.Headers, "\t")); err != nil {
			return err
		}
	}
	for _, row := range dataRows(t.Rows) {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = escapeNewlines(c)
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func writePretty(w io.Writer, f Format, t Table) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if t.Title != "" && f == FormatMarkdown {
		tw.SetTitle(t.Title)
	}

	configs := make([]table.ColumnConfig, len(t.Headers))
	for i := range t.Headers {
		align := text.AlignRight
		if i == 0 {
			align = text.AlignLeft
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align}
	}
	tw.SetColumnConfigs(configs)

	if len(t.Headers) > 0 {
		tw.AppendHeader(toRow(t.Headers))
	}
	for _, row := range dataRows(t.Rows) {
		tw.AppendRow(toRow(row))
	}

	if f == FormatCSV {
		tw.RenderCSV()
	} else {
		tw.RenderMarkdown()
	}
	return nil
}

// dataRows drops the separator rows RenderTable draws as rules.
func dataRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		if isSeparator(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

func escapeNewlines(s string) string {
	return strings.ReplaceAll(s, "\n", "\\n")
}
