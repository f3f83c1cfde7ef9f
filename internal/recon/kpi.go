package recon

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"go-recon-dashboard/internal/connectors/reconapi"
)

const (
	KPISourceBackend = "backend"
	KPISourceLocal   = "local"
)

// KPIs are the headline numbers of the dashboard.
type KPIs struct {
	CoverageRate       float64         `json:"coverageRate"`
	OpenExceptions     int             `json:"openExceptions"`
	AvgResolutionHours *float64        `json:"avgResolutionHours"`
	CashAtRisk         decimal.Decimal `json:"cashAtRisk"`
	Source             string          `json:"source"`
}

// SummarizeKPIs prefers the backend summary and falls back to local
// estimates from the test list when the backend has none.
func SummarizeKPIs(summary *reconapi.AnalyticsSummary, tests []ReconciliationTest) KPIs {
	if summary != nil {
		return KPIs{
			CoverageRate:       summary.CoverageRate,
			OpenExceptions:     summary.OpenExceptions,
			AvgResolutionHours: summary.AvgTimeToResolveHours,
			CashAtRisk:         summary.CashAtRisk,
			Source:             KPISourceBackend,
		}
	}
	return LocalKPIs(tests)
}

// LocalKPIs estimates the headline numbers from the test list alone.
func LocalKPIs(tests []ReconciliationTest) KPIs {
	var passing, failed int
	var hours float64
	kpis := KPIs{CashAtRisk: decimal.Zero, Source: KPISourceLocal}

	for _, t := range tests {
		if t.Status == StatusSuccess || t.Status == StatusFailedResolved {
			passing++
		}
		if t.Status.Open() {
			kpis.OpenExceptions++
			kpis.CashAtRisk = kpis.CashAtRisk.Add(t.Delta.Abs())
		}
		if t.Status.Failed() {
			failed++
			if t.DaysFailing > 0 {
				hours += float64(t.DaysFailing) * 2.5
			} else {
				hours += 1.5
			}
		}
	}

	if len(tests) > 0 {
		kpis.CoverageRate = round1(float64(passing) / float64(len(tests)) * 100)
	}
	avg := 0.0
	if failed > 0 {
		avg = round1(hours / float64(failed))
	}
	kpis.AvgResolutionHours = &avg
	return kpis
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// AgingReport groups failing tests by how long they have been open.
type AgingReport struct {
	Critical         []ReconciliationTest `json:"critical"`
	NewFailures      []ReconciliationTest `json:"newFailures"`
	RecentlyResolved []ReconciliationTest `json:"recentlyResolved"`
}

func BuildAgingReport(tests []ReconciliationTest) AgingReport {
	report := AgingReport{
		Critical:         []ReconciliationTest{},
		NewFailures:      []ReconciliationTest{},
		RecentlyResolved: []ReconciliationTest{},
	}
	for _, t := range tests {
		switch {
		case t.Status.Open() && t.DaysFailing > 1:
			report.Critical = append(report.Critical, t)
		case t.Status.Open():
			report.NewFailures = append(report.NewFailures, t)
		case t.Status == StatusFailedResolved:
			report.RecentlyResolved = append(report.RecentlyResolved, t)
		}
	}
	return report
}

// FilterAll disables a status or category filter.
const FilterAll = "all"

// Filter narrows the test list. Empty fields match everything.
type Filter struct {
	Query    string
	Status   string
	Category string
}

func (f Filter) Match(t ReconciliationTest) bool {
	if q := strings.TrimSpace(f.Query); q != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(q)) {
		return false
	}
	if f.Status != "" && f.Status != FilterAll && string(t.Status) != f.Status {
		return false
	}
	if f.Category != "" && f.Category != FilterAll && t.Category != f.Category {
		return false
	}
	return true
}

func (f Filter) Apply(tests []ReconciliationTest) []ReconciliationTest {
	out := make([]ReconciliationTest, 0, len(tests))
	for _, t := range tests {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Categories lists the distinct categories in first-seen order.
func Categories(tests []ReconciliationTest) []string {
	seen := make(map[string]struct{}, len(tests))
	out := make([]string, 0)
	for _, t := range tests {
		if _, ok := seen[t.Category]; ok {
			continue
		}
		seen[t.Category] = struct{}{}
		out = append(out, t.Category)
	}
	return out
}
