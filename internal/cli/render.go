package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// SeparatorRow, used as a whole row, draws a horizontal rule in RenderTable.
const SeparatorRow = "---"

// Table represents a bordered text table for CLI output.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Widths  []int // optional column widths, auto-calculated if nil
}

func (t Table) columns() int {
	if len(t.Headers) > 0 {
		return len(t.Headers)
	}
	if len(t.Rows) > 0 {
		return len(t.Rows[0])
	}
	return 0
}

func (t Table) widths() []int {
	widths := make([]int, t.columns())
	if t.Widths != nil {
		copy(widths, t.Widths)
		return widths
	}
	measure := func(cells []string) {
		for i, cell := range cells {
			if i < len(widths) {
				widths[i] = max(widths[i], runewidth.StringWidth(cell))
			}
		}
	}
	measure(t.Headers)
	for _, row := range t.Rows {
		measure(row)
	}
	return widths
}

func isSeparator(row []string) bool {
	return len(row) == 1 && row[0] == SeparatorRow
}

// RenderTitle renders a centered title bar in a bordered box.
func RenderTitle(title string) string {
	st := palette()
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(st.border).
		Width(55).
		Align(lipgloss.Center).
		Padding(0, 1)
	return box.Render(st.title.Render(title))
}

// RenderTable renders a bordered table. The first column is left-aligned,
// the rest hold numbers and are right-aligned.
func RenderTable(t Table) string {
	cols := t.columns()
	if cols == 0 {
		return ""
	}
	st := palette()
	widths := t.widths()

	var b strings.Builder
	rule := func(left, mid, right string) {
		segs := make([]string, len(widths))
		for i, w := range widths {
			segs[i] = strings.Repeat("─", w+2)
		}
		b.WriteString(st.dim.Render(left + strings.Join(segs, mid) + right))
		b.WriteString("\n")
	}
	row := func(cells []string, style lipgloss.Style, header bool) {
		bar := st.dim.Render("│")
		b.WriteString(bar)
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if header || i == 0 {
				cell = runewidth.FillRight(cell, w)
			} else {
				cell = runewidth.FillLeft(cell, w)
			}
			b.WriteString(style.Render(" " + cell + " "))
			b.WriteString(bar)
		}
		b.WriteString("\n")
	}

	if t.Title != "" {
		b.WriteString("  " + st.header.Render(t.Title) + "\n")
	}
	rule("╭", "┬", "╮")
	if len(t.Headers) > 0 {
		row(t.Headers, st.header, true)
		rule("├", "┼", "┤")
	}
	for _, r := range t.Rows {
		if isSeparator(r) {
			rule("├", "┼", "┤")
			continue
		}
		row(r, st.value, false)
	}
	rule("╰", "┴", "╯")
	return b.String()
}

// RenderProgressBar renders "[████░░░░] current/total".
func RenderProgressBar(current, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := min(current*width/total, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("[%s] %s/%s", palette().muted.Render(bar),
		FormatNumber(int64(current)), FormatNumber(int64(total)))
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// RenderSparkline draws one block per value, scaled to the largest value.
func RenderSparkline(values []float64) string {
	peak := 0.0
	for _, v := range values {
		peak = max(peak, v)
	}
	if peak == 0 {
		peak = 1
	}
	top := len(sparkBlocks) - 1
	out := make([]rune, len(values))
	for i, v := range values {
		out[i] = sparkBlocks[max(0, min(int(v/peak*float64(top)), top))]
	}
	return palette().cost.Render(string(out))
}

// RenderBar renders a solid bar of value scaled against maxValue.
func RenderBar(value, maxValue float64, width int) string {
	if maxValue <= 0 || value <= 0 {
		return ""
	}
	n := min(int(value/maxValue*float64(width)), width)
	return palette().token.Render(strings.Repeat("█", n))
}
