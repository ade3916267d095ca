package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type modelRow struct {
	Model string  `json:"model" yaml:"model"`
	Cost  float64 `json:"cost" yaml:"cost"`
}

func sampleTable() Table {
	return Table{
		Title:   "Models",
		Headers: []string{"Model", "Cost"},
		Rows: [][]string{
			{"sonnet", "$1.20"},
			{"---"},
			{"TOTAL", "$1.20"},
		},
	}
}

var sampleData = []modelRow{{Model: "sonnet", Cost: 1.2}}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{
		"":         FormatTable,
		"JSON":     FormatJSON,
		"md":       FormatMarkdown,
		"tsv":      FormatPlain,
		"yml":      FormatYAML,
		" csv ":    FormatCSV,
		"markdown": FormatMarkdown,
	} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestEmit_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Emit(&buf, FormatPlain, sampleTable(), sampleData))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"Model\tCost", "sonnet\t$1.20", "TOTAL\t$1.20"}, lines)
}

func TestEmit_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Emit(&buf, FormatCSV, sampleTable(), sampleData))
	out := buf.String()
	assert.Contains(t, out, "Model,Cost")
	assert.Contains(t, out, "sonnet,$1.20")
	assert.NotContains(t, out, "---")
}

func TestEmit_Markdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Emit(&buf, FormatMarkdown, sampleTable(), sampleData))
	out := buf.String()
	assert.Contains(t, out, "| Model | Cost |")
	assert.Contains(t, out, "| sonnet | $1.20 |")
}

func TestEmit_Structured(t *testing.T) {
	var js bytes.Buffer
	require.NoError(t, Emit(&js, FormatJSON, sampleTable(), sampleData))
	var rows []modelRow
	require.NoError(t, json.Unmarshal(js.Bytes(), &rows))
	assert.Equal(t, sampleData, rows)

	var ym bytes.Buffer
	require.NoError(t, Emit(&ym, FormatYAML, sampleTable(), sampleData))
	rows = nil
	require.NoError(t, yaml.Unmarshal(ym.Bytes(), &rows))
	assert.Equal(t, sampleData, rows)
	assert.True(t, FormatYAML.Structured())
	assert.False(t, FormatCSV.Structured())
}

func TestRenderTable_WideCells(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Project", "Cost"},
		Rows:    [][]string{{"日本語", "$1"}, {"ascii", "$2"}},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.NotEmpty(t, lines)
	width := VisibleWidth(lines[0])
	for _, l := range lines {
		assert.Equal(t, width, VisibleWidth(l), l)
	}
}
