package reconapi

import (
	"context"
	"net/url"
)

// ListRecons returns every recon with its latest execution.
func (c *Client) ListRecons(ctx context.Context) ([]ReconWithLatestExecution, error) {
	var out []ReconWithLatestExecution
	if err := c.Get(ctx, "/recons", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetReconConfig returns the full test configuration of a recon.
func (c *Client) GetReconConfig(ctx context.Context, reconID string) (*ReconConfig, error) {
	var out ReconConfig
	if err := c.Get(ctx, "/recons/"+url.PathEscape(reconID)+"/config", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAnalyticsSummary returns the server-computed KPIs. A nil summary with a
// nil error means the backend has none (204 or JSON null).
func (c *Client) GetAnalyticsSummary(ctx context.Context) (*AnalyticsSummary, error) {
	var out *AnalyticsSummary
	if err := c.Get(ctx, "/analytics/summary", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetExecutionDetail(ctx context.Context, executionID string) (*ExecutionDetail, error) {
	var out ExecutionDetail
	if err := c.Get(ctx, executionPath(executionID, ""), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateInvestigation(ctx context.Context, executionID string, body InvestigateRequest) (*ExecutionDetail, error) {
	var out ExecutionDetail
	if err := c.Patch(ctx, executionPath(executionID, "/investigate"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddNote(ctx context.Context, executionID string, body AddNoteRequest) (*AuditEvent, error) {
	var out AuditEvent
	if err := c.Post(ctx, executionPath(executionID, "/notes"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetAuditTrail(ctx context.Context, executionID string) ([]AuditEvent, error) {
	var out []AuditEvent
	if err := c.Get(ctx, executionPath(executionID, "/audit-trail"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DownloadMismatchesCSV returns the mismatch export of an execution.
func (c *Client) DownloadMismatchesCSV(ctx context.Context, executionID string) ([]byte, error) {
	return c.Download(ctx, executionPath(executionID, "/mismatches/csv"))
}

func executionPath(executionID, suffix string) string {
	return "/executions/" + url.PathEscape(executionID) + suffix
}
