package recon

import (
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// FormatCurrency renders an amount as dollars with thousands separators.
func FormatCurrency(amount decimal.Decimal) string {
	rounded := amount.Round(2)
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	whole, cents, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")
	n, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return sign + "$" + whole + "." + cents
	}
	return sign + "$" + humanize.BigComma(n) + "." + cents
}

// TimeSinceRun renders how long ago a run happened, coarsened to hours or days.
func TimeSinceRun(lastRun string, now time.Time) string {
	t, ok := ParseTimestamp(lastRun)
	if !ok {
		return ""
	}
	hours := int(now.Sub(t) / time.Hour)
	switch {
	case hours < 1:
		return "<1 hour"
	case hours < 24:
		return plural(hours, "hour")
	default:
		return plural(hours/24, "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return humanize.Comma(int64(n)) + " " + unit + "s"
}

// TestRow is a test with its display strings precomputed.
type TestRow struct {
	ReconciliationTest
	StatusLabel    string `json:"statusLabel"`
	RootCauseLabel string `json:"rootCauseLabel,omitempty"`
	DeltaDisplay   string `json:"deltaDisplay"`
	LastRunAgo     string `json:"lastRunAgo"`
}

func ToRows(tests []ReconciliationTest, now time.Time) []TestRow {
	rows := make([]TestRow, 0, len(tests))
	for _, t := range tests {
		row := TestRow{
			ReconciliationTest: t,
			StatusLabel:        t.Status.Label(),
			DeltaDisplay:       FormatCurrency(t.Delta),
			LastRunAgo:         TimeSinceRun(t.LastRun, now),
		}
		if t.RootCause != "" {
			row.RootCauseLabel = t.RootCause.Label()
		}
		rows = append(rows, row)
	}
	return rows
}

// CSVFilename is the download name of an execution's mismatch export.
func CSVFilename(executionID string) string {
	return "mismatches-" + strings.TrimSpace(executionID) + ".csv"
}
