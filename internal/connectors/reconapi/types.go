package reconapi

import (
	"github.com/shopspring/decimal"
)

// Raw execution statuses reported by the backend.
const (
	ExecutionRunning   = "RUNNING"
	ExecutionSucceeded = "SUCCEEDED"
	ExecutionFailed    = "FAILED"
)

// Investigation statuses stored by the backend.
const (
	InvestigationOpen          = "OPEN"
	InvestigationInvestigating = "INVESTIGATING"
	InvestigationResolved      = "RESOLVED"
	InvestigationDismissed     = "DISMISSED"
)

// LatestExecution is the execution summary embedded in a recon listing.
type LatestExecution struct {
	ID                  string              `json:"id"`
	ExecutedAt          string              `json:"executedAt"`
	Status              string              `json:"status"`
	Delta               decimal.NullDecimal `json:"delta"`
	InvestigationStatus *string             `json:"investigationStatus"`
	RootCause           *string             `json:"rootCause"`
	AssignedTo          *string             `json:"assignedTo"`
	ResolvedAt          *string             `json:"resolvedAt"`
	InvestigatingSince  *string             `json:"investigatingSince"`
	Note                *string             `json:"note"`
}

// ReconWithLatestExecution is one row of GET /recons.
type ReconWithLatestExecution struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	StakeholderEmail string           `json:"stakeholderEmail"`
	ConfigURL        string           `json:"configUrl"`
	Active           bool             `json:"active"`
	Owner            *string          `json:"owner"`
	Category         *string          `json:"category"`
	CreatedAt        string           `json:"createdAt"`
	UpdatedAt        string           `json:"updatedAt"`
	LatestExecution  *LatestExecution `json:"latestExecution"`
}

// ExecutionResult carries the comparison payload of an execution. Matches
// and Mismatches are free-form rows whose shape depends on the strategy.
type ExecutionResult struct {
	ID                      string              `json:"id"`
	Currency                *string             `json:"currency"`
	LeftFiles               []string            `json:"leftFiles"`
	RightFiles              []string            `json:"rightFiles"`
	LeftAmount              decimal.NullDecimal `json:"leftAmount"`
	RightAmount             decimal.NullDecimal `json:"rightAmount"`
	Matches                 []map[string]any    `json:"matches"`
	Mismatches              []map[string]any    `json:"mismatches"`
	SQLQuery                *string             `json:"sqlQuery"`
	SQLResult               *string             `json:"sqlResult"`
	UnexpectedFailureReason *string             `json:"unexpectedFailureReason"`
}

// ExecutionDetail is the response of GET /executions/{id}.
type ExecutionDetail struct {
	ID                  string              `json:"id"`
	ReconID             string              `json:"reconId"`
	ExecutedAt          string              `json:"executedAt"`
	ReconDates          []string            `json:"reconDates"`
	Status              string              `json:"status"`
	Delta               decimal.NullDecimal `json:"delta"`
	Note                *string             `json:"note"`
	MismatchTolerance   decimal.NullDecimal `json:"mismatchTolerance"`
	InvestigationStatus *string             `json:"investigationStatus"`
	RootCause           *string             `json:"rootCause"`
	AssignedTo          *string             `json:"assignedTo"`
	ResolvedAt          *string             `json:"resolvedAt"`
	InvestigatingSince  *string             `json:"investigatingSince"`
	Result              *ExecutionResult    `json:"result"`
	AuditEvents         []AuditEvent        `json:"auditEvents"`
}

// AuditEvent is a server-side record of an investigation state transition.
type AuditEvent struct {
	ID            string  `json:"id"`
	ExecutionID   string  `json:"executionId"`
	ReconID       string  `json:"reconId"`
	UserEmail     *string `json:"userEmail"`
	Action        string  `json:"action"`
	PreviousValue *string `json:"previousValue"`
	NewValue      *string `json:"newValue"`
	Details       *string `json:"details"`
	CreatedAt     string  `json:"createdAt"`
}

type RatePoint struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

type AmountPoint struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

type HoursPoint struct {
	Date  string  `json:"date"`
	Hours float64 `json:"hours"`
}

type RootCauseShare struct {
	Cause      string  `json:"cause"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Trends groups the analytics time series.
type Trends struct {
	ReconRate             []RatePoint      `json:"reconRate"`
	DiscrepancyVolume     []AmountPoint    `json:"discrepancyVolume"`
	SpeedToFix            []HoursPoint     `json:"speedToFix"`
	RootCauseDistribution []RootCauseShare `json:"rootCauseDistribution"`
}

// AnalyticsSummary is the response of GET /analytics/summary.
type AnalyticsSummary struct {
	CoverageRate          float64         `json:"coverageRate"`
	OpenExceptions        int             `json:"openExceptions"`
	AvgTimeToResolveHours *float64        `json:"avgTimeToResolveHours"`
	CashAtRisk            decimal.Decimal `json:"cashAtRisk"`
	Trends                Trends          `json:"trends"`
}

// SourceSpec describes one side of a comparison in a recon configuration.
type SourceSpec struct {
	File         string   `json:"file"`
	Database     string   `json:"database,omitempty"`
	AmountColumn string   `json:"amount_column,omitempty"`
	Currency     string   `json:"currency,omitempty"`
	MatchColumns []string `json:"match_columns,omitempty"`
}

type SQLSource struct {
	File     string `json:"file"`
	Database string `json:"database,omitempty"`
}

type Sources struct {
	Left  []SourceSpec `json:"left"`
	Right []SourceSpec `json:"right"`
	SQL   *SQLSource   `json:"sql"`
}

type Schedule struct {
	Cron string `json:"cron"`
}

// ReconConfig is the response of GET /recons/{id}/config.
type ReconConfig struct {
	ID                string              `json:"id"`
	Name              string              `json:"name"`
	Owner             *string             `json:"owner"`
	Category          *string             `json:"category"`
	StakeholderEmail  string              `json:"stakeholderEmail"`
	Active            bool                `json:"active"`
	ConfigURL         string              `json:"configUrl"`
	Schedule          *Schedule           `json:"schedule"`
	Strategy          *string             `json:"strategy"`
	MismatchTolerance decimal.NullDecimal `json:"mismatchTolerance"`
	Sources           Sources             `json:"sources"`
	CreatedAt         string              `json:"createdAt"`
	UpdatedAt         string              `json:"updatedAt"`
}

// InvestigateRequest is the partial update body of PATCH /executions/{id}/investigate.
type InvestigateRequest struct {
	InvestigationStatus string `json:"investigationStatus,omitempty"`
	RootCause           string `json:"rootCause,omitempty"`
	AssignedTo          string `json:"assignedTo,omitempty"`
	Notes               string `json:"notes,omitempty"`
}

// AddNoteRequest is the body of POST /executions/{id}/notes.
type AddNoteRequest struct {
	Text string `json:"text"`
}
