package reconapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-recon-dashboard/internal/metrics"
	"go-recon-dashboard/internal/traces"
)

const maxErrorBody = 4096

// APIError is returned for any non-2xx backend response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// TokenSource yields the bearer token to attach, or "" for unauthenticated calls.
type TokenSource interface {
	Token() string
}

// Client talks to the reconciliation backend REST API. Failures are
// returned to the caller as-is; nothing is retried here.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

func (c *Client) BaseURL() string {
	if c == nil {
		return ""
	}
	return c.baseURL
}

// Get decodes the JSON response of GET path into out. A 204 leaves out untouched.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post sends body as JSON and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

// Patch sends body as JSON and decodes the response into out.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPatch, path, body, out)
}

// Download returns the raw body of GET path. The whole body is read before
// returning so callers never see a partial payload.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	resp, done, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	blob, err := io.ReadAll(resp.Body)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return blob, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, done, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || out == nil {
		done(nil)
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	err = dec.Decode(out)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	done(err)
	if err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// do issues the request and converts non-2xx responses into *APIError. The
// returned func finishes the span and metrics once the body has been consumed.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, func(error), error) {
	op := operationName(method, path)
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "reconapi "+op, traces.HTTPMethod(method), traces.HTTPPath(path))
	finish := func(err error) {
		metrics.RecordBackendCall(op, time.Since(start), err)
		traces.Fail(span, err)
		span.End()
	}

	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			finish(err)
			return nil, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(blob)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		finish(err)
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		finish(err)
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	span.SetAttributes(traces.HTTPStatus(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		blob, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = resp.Body.Close()
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, blob)}
		finish(apiErr)
		return nil, nil, apiErr
	}

	return resp, finish, nil
}

func errorMessage(status int, body []byte) string {
	fallback := fmt.Sprintf("API error %d", status)
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fallback
	}
	if parsed.Message == "" {
		return fallback
	}
	return parsed.Message
}

// operationName collapses resource ids so metric labels stay bounded.
func operationName(method, path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 1; i < len(parts); i++ {
		if parts[i-1] == "recons" || parts[i-1] == "executions" {
			parts[i] = ":id"
		}
	}
	return method + " /" + strings.Join(parts, "/")
}
