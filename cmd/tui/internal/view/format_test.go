package view

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInspectionDate(t *testing.T) {
	got, err := ParseInspectionDate("2026-03-14 09:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local), got)

	for _, in := range []string{"", "2026-03-14", "14/03/2026 09:30", "2026-13-01 10:00"} {
		_, err := ParseInspectionDate(in)
		assert.Error(t, err, in)
	}
}

func TestFormatStamp(t *testing.T) {
	assert.Equal(t, "-", FormatStamp(nil))

	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	assert.Equal(t, "2026-03-14 09:30", FormatStamp(&ts))
}

func TestFormatAmount_NotEmpty(t *testing.T) {
	assert.NotEmpty(t, FormatAmount(decimal.RequireFromString("1000.50"), "EUR"))
}
