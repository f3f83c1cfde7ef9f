package recon

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"go-recon-dashboard/internal/connectors/reconapi"
)

// HighSeverityThreshold is the absolute delta above which a test is high severity.
var HighSeverityThreshold = decimal.NewFromInt(1000)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp shapes the backend emits. Values
// without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ResolveStatus collapses an execution and its investigation into one
// display status. No execution, a success and a run in progress all show
// as success.
func ResolveStatus(exec *reconapi.LatestExecution) TestStatus {
	if exec == nil {
		return StatusSuccess
	}
	if exec.Status == reconapi.ExecutionFailed {
		return FailedStatus(exec.InvestigationStatus)
	}
	return StatusSuccess
}

// FailedStatus maps the investigation status of a failed execution.
func FailedStatus(investigation *string) TestStatus {
	if investigation == nil {
		return StatusFailedUnresolved
	}
	switch *investigation {
	case reconapi.InvestigationInvestigating:
		return StatusFailedInvestigating
	case reconapi.InvestigationResolved, reconapi.InvestigationDismissed:
		return StatusFailedResolved
	default:
		return StatusFailedUnresolved
	}
}

func closedInvestigation(investigation *string) bool {
	if investigation == nil {
		return false
	}
	return *investigation == reconapi.InvestigationResolved || *investigation == reconapi.InvestigationDismissed
}

// DaysFailing counts whole days since a failed, still-open execution ran.
func DaysFailing(exec *reconapi.LatestExecution, now time.Time) int {
	if exec == nil || exec.Status != reconapi.ExecutionFailed || closedInvestigation(exec.InvestigationStatus) {
		return 0
	}
	executedAt, ok := ParseTimestamp(exec.ExecutedAt)
	if !ok {
		return 0
	}
	days := int(now.Sub(executedAt) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

func SeverityFor(delta decimal.Decimal) Severity {
	if delta.Abs().GreaterThan(HighSeverityThreshold) {
		return SeverityHigh
	}
	return SeverityLow
}

// ToReconciliationTest builds the dashboard row for one recon listing entry.
func ToReconciliationTest(r reconapi.ReconWithLatestExecution, now time.Time) ReconciliationTest {
	exec := r.LatestExecution

	delta := decimal.Zero
	if exec != nil && exec.Delta.Valid {
		delta = exec.Delta.Decimal
	}

	test := ReconciliationTest{
		ID:          r.ID,
		Name:        r.Name,
		Category:    CategoryUncategorized,
		Status:      ResolveStatus(exec),
		LastRun:     r.UpdatedAt,
		DaysFailing: DaysFailing(exec, now),
		Delta:       delta,
		Owner:       r.StakeholderEmail,
		Severity:    SeverityFor(delta),
	}
	if r.Category != nil && *r.Category != "" {
		test.Category = *r.Category
	}
	if r.Owner != nil && *r.Owner != "" {
		test.Owner = *r.Owner
	}
	if exec != nil {
		test.ExecutionID = exec.ID
		test.InProgress = exec.Status == reconapi.ExecutionRunning
		if exec.ExecutedAt != "" {
			test.LastRun = exec.ExecutedAt
		}
		if exec.RootCause != nil && *exec.RootCause != "" {
			test.RootCause, _ = NormalizeRootCause(*exec.RootCause)
		}
		if exec.Note != nil {
			test.ResolutionNotes = *exec.Note
		}
	}
	return test
}

func ToReconciliationTests(recons []reconapi.ReconWithLatestExecution, now time.Time) []ReconciliationTest {
	out := make([]ReconciliationTest, 0, len(recons))
	for _, r := range recons {
		out = append(out, ToReconciliationTest(r, now))
	}
	return out
}

// HumanizeAction renders an audit action code as a sentence. Unknown codes
// are returned unchanged.
func HumanizeAction(action string, previous, next *string) string {
	switch action {
	case "STATUS_CHANGE":
		return fmt.Sprintf("Status changed from %s to %s", valueOr(previous, "none"), valueOr(next, ""))
	case "ROOT_CAUSE_SET":
		return "Root cause set to " + valueOr(next, "")
	case "NOTE_ADDED":
		return "Note added"
	case "EXECUTION_COMPLETED":
		return "Execution completed: " + valueOr(next, "")
	default:
		return action
	}
}

func ToAuditEvent(ev reconapi.AuditEvent) AuditEvent {
	return AuditEvent{
		ID:        ev.ID,
		TestID:    ev.ReconID,
		Timestamp: ev.CreatedAt,
		User:      valueOr(ev.UserEmail, "System"),
		Action:    HumanizeAction(ev.Action, ev.PreviousValue, ev.NewValue),
		Details:   valueOr(ev.Details, ""),
	}
}

func ToAuditEvents(events []reconapi.AuditEvent) []AuditEvent {
	out := make([]AuditEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, ToAuditEvent(ev))
	}
	return out
}

// ToTransactionRecords normalizes free-form comparison rows. Each field takes
// the first non-empty candidate key, so rows of any strategy render.
func ToTransactionRecords(items []map[string]any, matched bool) []TransactionRecord {
	out := make([]TransactionRecord, 0, len(items))
	for i, item := range items {
		id := stringify(firstPresent(item, "id", "reference"))
		if id == "" {
			id = "row-" + strconv.Itoa(i)
		}
		out = append(out, TransactionRecord{
			ID:          id,
			Date:        stringify(firstPresent(item, "date", "recon_date", "transaction_date")),
			Description: stringify(firstPresent(item, "description", "name", "concept")),
			Amount:      toDecimal(firstPresent(item, "amount", "total", "value")),
			Reference:   stringify(firstPresent(item, "reference", "tracking_id", "external_id", "id")),
			Matched:     matched,
		})
	}
	return out
}

func firstPresent(item map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := item[k]; ok && present(v) {
			return v
		}
	}
	return nil
}

// present treats nil, "", false, zero and NaN as missing.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		blob, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(blob)
	default:
		return fmt.Sprint(x)
	}
}

func toDecimal(v any) decimal.Decimal {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(x)
	case int:
		return decimal.NewFromInt(int64(x))
	case int64:
		return decimal.NewFromInt(x)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func valueOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}
