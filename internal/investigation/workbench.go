// Package investigation implements the workbench used to review a failed
// reconciliation and record its investigation.
package investigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"go-recon-dashboard/internal/connectors/reconapi"
	"go-recon-dashboard/internal/logging"
	"go-recon-dashboard/internal/recon"
	"go-recon-dashboard/internal/traces"
)

var (
	ErrNoExecution = errors.New("test has never been executed")
	ErrEmptyNote   = errors.New("note text is empty")
)

// API is the slice of the backend the workbench uses.
type API interface {
	GetExecutionDetail(ctx context.Context, executionID string) (*reconapi.ExecutionDetail, error)
	UpdateInvestigation(ctx context.Context, executionID string, body reconapi.InvestigateRequest) (*reconapi.ExecutionDetail, error)
	AddNote(ctx context.Context, executionID string, body reconapi.AddNoteRequest) (*reconapi.AuditEvent, error)
	GetAuditTrail(ctx context.Context, executionID string) ([]reconapi.AuditEvent, error)
	DownloadMismatchesCSV(ctx context.Context, executionID string) ([]byte, error)
}

// Form holds the editable investigation fields.
type Form struct {
	Status    recon.TestStatus `json:"status" validate:"required,oneof=success failed-unresolved failed-investigating failed-resolved"`
	RootCause recon.RootCause  `json:"rootCause" validate:"required,oneof=timing-difference data-entry-error engineer-bug third-party-outage missing-file weekend-gap unknown"`
	Notes     string           `json:"notes" validate:"max=5000"`
}

// ValidationError lists the offending form fields and the rule each broke.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, tag := range e.Fields {
		parts = append(parts, field+": "+tag)
	}
	return "invalid investigation form: " + strings.Join(parts, ", ")
}

// Evidence is the transaction-level comparison of an execution.
type Evidence struct {
	Records                 []recon.TransactionRecord `json:"records"`
	MismatchCount           int                       `json:"mismatchCount"`
	MatchCount              int                       `json:"matchCount"`
	MismatchTotal           decimal.Decimal           `json:"mismatchTotal"`
	LeftTotal               decimal.NullDecimal       `json:"leftTotal"`
	RightTotal              decimal.NullDecimal       `json:"rightTotal"`
	Currency                string                    `json:"currency,omitempty"`
	LeftFiles               []string                  `json:"leftFiles"`
	RightFiles              []string                  `json:"rightFiles"`
	UnexpectedFailureReason string                    `json:"unexpectedFailureReason,omitempty"`
}

// BuildEvidence normalizes an execution result. Mismatches come first.
func BuildEvidence(result *reconapi.ExecutionResult) Evidence {
	ev := Evidence{
		Records:       []recon.TransactionRecord{},
		MismatchTotal: decimal.Zero,
		LeftFiles:     []string{},
		RightFiles:    []string{},
	}
	if result == nil {
		return ev
	}

	mismatches := recon.ToTransactionRecords(result.Mismatches, false)
	matches := recon.ToTransactionRecords(result.Matches, true)
	ev.Records = append(append(ev.Records, mismatches...), matches...)
	ev.MismatchCount = len(mismatches)
	ev.MatchCount = len(matches)
	for _, r := range mismatches {
		ev.MismatchTotal = ev.MismatchTotal.Add(r.Amount)
	}
	ev.LeftTotal = result.LeftAmount
	ev.RightTotal = result.RightAmount
	if result.Currency != nil {
		ev.Currency = *result.Currency
	}
	if result.LeftFiles != nil {
		ev.LeftFiles = result.LeftFiles
	}
	if result.RightFiles != nil {
		ev.RightFiles = result.RightFiles
	}
	if result.UnexpectedFailureReason != nil {
		ev.UnexpectedFailureReason = *result.UnexpectedFailureReason
	}
	return ev
}

// BackendStatus maps a display status onto the backend investigation status.
func BackendStatus(status recon.TestStatus) string {
	switch status {
	case recon.StatusFailedInvestigating:
		return reconapi.InvestigationInvestigating
	case recon.StatusFailedResolved, recon.StatusSuccess:
		return reconapi.InvestigationResolved
	default:
		return reconapi.InvestigationOpen
	}
}

// Snapshot is a copy of the workbench state for rendering.
type Snapshot struct {
	Test       recon.ReconciliationTest  `json:"test"`
	Detail     *reconapi.ExecutionDetail `json:"detail"`
	Form       Form                      `json:"form"`
	AuditTrail []recon.AuditEvent        `json:"auditTrail"`
	Evidence   Evidence                  `json:"evidence"`
	Error      string                    `json:"error,omitempty"`
}

// Workbench holds one open investigation. Methods are safe for concurrent use.
type Workbench struct {
	api      API
	logger   *logging.Logger
	validate *validator.Validate

	mu       sync.Mutex
	test     recon.ReconciliationTest
	detail   *reconapi.ExecutionDetail
	form     Form
	audit    []recon.AuditEvent
	evidence Evidence
	lastErr  string
}

func New(api API, logger *logging.Logger, test recon.ReconciliationTest) *Workbench {
	if logger == nil {
		logger = logging.NewNop()
	}
	rootCause := test.RootCause
	if rootCause == "" {
		rootCause = recon.RootCauseUnknown
	}
	return &Workbench{
		api:      api,
		logger:   logger.Named("investigation").With(zap.String("test_id", test.ID)),
		validate: validator.New(),
		test:     test,
		form:     Form{Status: test.Status, RootCause: rootCause},
		audit:    []recon.AuditEvent{},
		evidence: BuildEvidence(nil),
	}
}

func (w *Workbench) TestID() string {
	return w.test.ID
}

func (w *Workbench) ExecutionID() string {
	return w.test.ExecutionID
}

// Open loads the execution detail and seeds the form from it. A test that
// never ran has nothing to load.
func (w *Workbench) Open(ctx context.Context) error {
	if w.test.ExecutionID == "" {
		return nil
	}
	ctx, span := traces.StartSpan(ctx, "investigation.open", traces.ExecutionID(w.test.ExecutionID))
	defer span.End()

	detail, err := w.api.GetExecutionDetail(ctx, w.test.ExecutionID)
	if err != nil {
		traces.Fail(span, err)
		w.setError(err)
		return fmt.Errorf("load execution %s: %w", w.test.ExecutionID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.applyDetailLocked(detail)
	w.form.Status = w.seedStatusLocked(detail)
	w.form.RootCause = recon.RootCauseUnknown
	if detail.RootCause != nil {
		if rc, ok := recon.NormalizeRootCause(*detail.RootCause); ok {
			w.form.RootCause = rc
		}
	}
	w.form.Notes = ""
	w.lastErr = ""
	return nil
}

func (w *Workbench) seedStatusLocked(detail *reconapi.ExecutionDetail) recon.TestStatus {
	if detail.Status == reconapi.ExecutionFailed {
		return recon.FailedStatus(detail.InvestigationStatus)
	}
	return w.test.Status
}

func (w *Workbench) applyDetailLocked(detail *reconapi.ExecutionDetail) {
	w.detail = detail
	w.audit = recon.ToAuditEvents(detail.AuditEvents)
	w.evidence = BuildEvidence(detail.Result)
}

// Save validates the form and sends it to the backend. Edits are kept when
// the save fails; on success the notes field is cleared and the detail is
// re-fetched.
func (w *Workbench) Save(ctx context.Context, form Form) error {
	form.Notes = strings.TrimSpace(form.Notes)
	if err := w.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			return &ValidationError{Fields: fields}
		}
		return err
	}

	w.mu.Lock()
	w.form = form
	w.mu.Unlock()

	executionID := w.test.ExecutionID
	if executionID == "" {
		return ErrNoExecution
	}

	ctx, span := traces.StartSpan(ctx, "investigation.save", traces.ExecutionID(executionID))
	defer span.End()

	body := reconapi.InvestigateRequest{
		InvestigationStatus: BackendStatus(form.Status),
		RootCause:           string(form.RootCause),
		Notes:               form.Notes,
	}
	if _, err := w.api.UpdateInvestigation(ctx, executionID, body); err != nil {
		traces.Fail(span, err)
		w.setError(err)
		return fmt.Errorf("save investigation %s: %w", executionID, err)
	}
	w.logger.Info("investigation saved",
		zap.String("execution_id", executionID),
		zap.String("status", body.InvestigationStatus),
		zap.String("root_cause", body.RootCause),
	)

	w.mu.Lock()
	w.form.Notes = ""
	w.lastErr = ""
	w.mu.Unlock()

	detail, err := w.api.GetExecutionDetail(ctx, executionID)
	if err != nil {
		w.logger.Warn("reload after save failed", zap.String("execution_id", executionID), zap.Error(err))
		return nil
	}
	w.mu.Lock()
	w.applyDetailLocked(detail)
	w.mu.Unlock()
	return nil
}

// AddNote posts a free-text note and appends it to the audit trail.
func (w *Workbench) AddNote(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyNote
	}
	executionID := w.test.ExecutionID
	if executionID == "" {
		return ErrNoExecution
	}

	event, err := w.api.AddNote(ctx, executionID, reconapi.AddNoteRequest{Text: text})
	if err != nil {
		w.setError(err)
		return fmt.Errorf("add note to %s: %w", executionID, err)
	}
	if event == nil {
		return w.RefreshAudit(ctx)
	}

	w.mu.Lock()
	w.audit = append(w.audit, recon.ToAuditEvent(*event))
	w.mu.Unlock()
	return nil
}

// RefreshAudit replaces the local audit trail with the backend's.
func (w *Workbench) RefreshAudit(ctx context.Context) error {
	executionID := w.test.ExecutionID
	if executionID == "" {
		return ErrNoExecution
	}
	events, err := w.api.GetAuditTrail(ctx, executionID)
	if err != nil {
		w.setError(err)
		return fmt.Errorf("audit trail of %s: %w", executionID, err)
	}

	w.mu.Lock()
	w.audit = recon.ToAuditEvents(events)
	w.mu.Unlock()
	return nil
}

// ExportCSV downloads the mismatches of the execution. Nothing is returned
// unless the whole body arrived.
func (w *Workbench) ExportCSV(ctx context.Context) ([]byte, string, error) {
	executionID := w.test.ExecutionID
	if executionID == "" {
		return nil, "", ErrNoExecution
	}
	blob, err := w.api.DownloadMismatchesCSV(ctx, executionID)
	if err != nil {
		w.setError(err)
		return nil, "", fmt.Errorf("export mismatches of %s: %w", executionID, err)
	}
	return blob, recon.CSVFilename(executionID), nil
}

func (w *Workbench) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	audit := make([]recon.AuditEvent, len(w.audit))
	copy(audit, w.audit)
	return Snapshot{
		Test:       w.test,
		Detail:     w.detail,
		Form:       w.form,
		AuditTrail: audit,
		Evidence:   w.evidence,
		Error:      w.lastErr,
	}
}

func (w *Workbench) setError(err error) {
	w.mu.Lock()
	w.lastErr = err.Error()
	w.mu.Unlock()
}
