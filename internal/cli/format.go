// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
)

var tokenUnits = []struct {
	size   float64
	suffix string
}{
	{1e9, "B"},
	{1e6, "M"},
	{1e3, "K"},
}

// FormatTokens formats a token count with a K/M/B suffix, e.g. 1234 -> "1.2K".
func FormatTokens(n int64) string {
	abs := math.Abs(float64(n))
	for _, u := range tokenUnits {
		if abs >= u.size {
			return fmt.Sprintf("%.1f%s", float64(n)/u.size, u.suffix)
		}
	}
	return strconv.FormatInt(n, 10)
}

// FormatCost formats a USD amount with fewer decimals as it grows.
func FormatCost(cost float64) string {
	switch {
	case cost >= 1000:
		return "$" + humanize.Comma(int64(math.Round(cost)))
	case cost >= 100:
		return fmt.Sprintf("$%.0f", cost)
	case cost >= 10:
		return fmt.Sprintf("$%.1f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

// FormatDuration formats seconds as "1h 2m", "2m" or "45s".
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0s"
	}
	d := time.Duration(secs) * time.Second
	h, m := int64(d.Hours()), int64(d.Minutes())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatNumber adds thousands separators.
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

// FormatAgo renders t relative to now, e.g. "3 minutes ago".
func FormatAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// FormatPercent formats a 0-1 ratio as a percentage.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// FormatDelta formats current-previous as a signed cost.
func FormatDelta(current, previous float64) string {
	d := current - previous
	if d < 0 {
		return "-" + FormatCost(-d)
	}
	return "+" + FormatCost(d)
}
