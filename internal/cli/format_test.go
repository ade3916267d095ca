package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "999", FormatTokens(999))
	assert.Equal(t, "1.2K", FormatTokens(1234))
	assert.Equal(t, "1.2M", FormatTokens(1_234_567))
	assert.Equal(t, "1.2B", FormatTokens(1_234_567_890))
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "$0.42", FormatCost(0.42))
	assert.Equal(t, "$12.5", FormatCost(12.5))
	assert.Equal(t, "$123", FormatCost(123.4))
	assert.Equal(t, "$1,235", FormatCost(1234.6))
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "0", FormatNumber(0))
	assert.Equal(t, "1,234,567", FormatNumber(1234567))
	assert.Equal(t, "-1,000", FormatNumber(-1000))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(0))
	assert.Equal(t, "45s", FormatDuration(45))
	assert.Equal(t, "2m", FormatDuration(125))
	assert.Equal(t, "1h 2m", FormatDuration(3725))
}

func TestFormatAgo(t *testing.T) {
	assert.Equal(t, "-", FormatAgo(time.Time{}))
	assert.Contains(t, FormatAgo(time.Now().Add(-3*time.Hour)), "hours ago")
}

func TestFormatDelta(t *testing.T) {
	assert.Equal(t, "+$2.50", FormatDelta(5, 2.5))
	assert.Equal(t, "-$1.00", FormatDelta(1, 2))
}

func TestSparklineAndBars(t *testing.T) {
	assert.Equal(t, "▁▄█", VisibleText(RenderSparkline([]float64{0, 1, 2})))
	assert.Equal(t, "▁▁", VisibleText(RenderSparkline([]float64{0, 0})))
	assert.Equal(t, "[██░░] 5/10", VisibleText(RenderProgressBar(5, 10, 4)))
	assert.Empty(t, RenderProgressBar(1, 0, 4))
	assert.Equal(t, 15, VisibleWidth(RenderBar(5, 10, 30)))
	assert.Empty(t, RenderBar(0, 10, 30))
}
