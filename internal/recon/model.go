// Package recon holds the dashboard view model and the transforms that build
// it from reconciliation backend responses.
package recon

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TestStatus is the single display status of a reconciliation test.
type TestStatus string

const (
	StatusSuccess             TestStatus = "success"
	StatusFailedUnresolved    TestStatus = "failed-unresolved"
	StatusFailedInvestigating TestStatus = "failed-investigating"
	StatusFailedResolved      TestStatus = "failed-resolved"
)

// Statuses lists every display status in presentation order.
var Statuses = []TestStatus{StatusSuccess, StatusFailedUnresolved, StatusFailedInvestigating, StatusFailedResolved}

func (s TestStatus) Label() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailedUnresolved:
		return "Failed - Unresolved"
	case StatusFailedInvestigating:
		return "Failed - Investigating"
	case StatusFailedResolved:
		return "Failed - Resolved"
	default:
		return string(s)
	}
}

// Open reports whether the status is an unresolved exception.
func (s TestStatus) Open() bool {
	return s == StatusFailedUnresolved || s == StatusFailedInvestigating
}

// Failed reports whether the latest run failed, resolved or not.
func (s TestStatus) Failed() bool {
	return s.Open() || s == StatusFailedResolved
}

// Severity of a test's delta.
type Severity string

const (
	SeverityLow  Severity = "low"
	SeverityHigh Severity = "high"
)

// RootCause classifies why a reconciliation failed.
type RootCause string

const (
	RootCauseTimingDifference RootCause = "timing-difference"
	RootCauseDataEntryError   RootCause = "data-entry-error"
	RootCauseEngineerBug      RootCause = "engineer-bug"
	RootCauseThirdPartyOutage RootCause = "third-party-outage"
	RootCauseMissingFile      RootCause = "missing-file"
	RootCauseWeekendGap       RootCause = "weekend-gap"
	RootCauseUnknown          RootCause = "unknown"
)

var RootCauses = []RootCause{
	RootCauseTimingDifference,
	RootCauseDataEntryError,
	RootCauseEngineerBug,
	RootCauseThirdPartyOutage,
	RootCauseMissingFile,
	RootCauseWeekendGap,
	RootCauseUnknown,
}

// NormalizeRootCause maps backend spellings such as "TIMING_DIFFERENCE" or
// "Weekend Gap" onto the known vocabulary. ok is false for values outside it.
func NormalizeRootCause(raw string) (RootCause, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	for _, rc := range RootCauses {
		if string(rc) == key {
			return rc, true
		}
	}
	return RootCause(raw), false
}

func (r RootCause) Label() string {
	switch r {
	case RootCauseTimingDifference:
		return "Timing Difference"
	case RootCauseDataEntryError:
		return "Data Entry Error"
	case RootCauseEngineerBug:
		return "Engineer Bug"
	case RootCauseThirdPartyOutage:
		return "Third-Party Outage"
	case RootCauseMissingFile:
		return "Missing File"
	case RootCauseWeekendGap:
		return "Weekend Gap"
	case RootCauseUnknown:
		return "Unknown"
	default:
		return string(r)
	}
}

// Business categories known to the dashboard. The backend may send others.
const (
	CategorySTP                   = "STP"
	CategoryBillPay               = "Bill Pay"
	CategoryPaymentProcessing     = "Payment Processing"
	CategoryStripe                = "Stripe"
	CategoryInternalBankTransfers = "Internal Bank Transfers"
	CategoryPnL                   = "P&L"
	CategoryMarketplace           = "Marketplace"
	CategoryUncategorized         = "Uncategorized"
)

// ReconciliationTest is one row of the dashboard.
type ReconciliationTest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	Status          TestStatus      `json:"status"`
	LastRun         string          `json:"lastRun"`
	DaysFailing     int             `json:"daysFailing"`
	Delta           decimal.Decimal `json:"delta"`
	Owner           string          `json:"owner"`
	Severity        Severity        `json:"severity"`
	RootCause       RootCause       `json:"rootCause,omitempty"`
	ResolutionNotes string          `json:"resolutionNotes,omitempty"`
	ExecutionID     string          `json:"executionId,omitempty"`
	InProgress      bool            `json:"inProgress"`
}

// AuditEvent is one humanized entry of an execution's audit trail.
type AuditEvent struct {
	ID        string `json:"id"`
	TestID    string `json:"testId"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Action    string `json:"action"`
	Details   string `json:"details,omitempty"`
}

// TransactionRecord is one normalized match or mismatch row.
type TransactionRecord struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	Matched     bool            `json:"matched"`
}
