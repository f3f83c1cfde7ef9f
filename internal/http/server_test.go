package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-recon-dashboard/internal/auth"
	"go-recon-dashboard/internal/config"
	"go-recon-dashboard/internal/connectors/reconapi"
	"go-recon-dashboard/internal/connectors/tokenstore"
	"go-recon-dashboard/internal/dashboard"
	"go-recon-dashboard/internal/logging"
)

const reconsJSON = `[
  {"id":"stp-001","name":"STP Settlement","stakeholderEmail":"a@example.com","category":"STP","updatedAt":"2026-02-01T00:00:00Z",
   "latestExecution":{"id":"ex-0","executedAt":"2026-02-01T00:00:00Z","status":"SUCCEEDED","delta":0}},
  {"id":"bp-005","name":"Arcus File vs Bank Statement","stakeholderEmail":"ops@example.com","category":"Bill Pay",
   "latestExecution":{"id":"ex-1","executedAt":"2026-01-24T09:00:00Z","status":"FAILED","delta":-42500,"investigationStatus":null}}
]`

const detailJSON = `{"id":"ex-1","reconId":"bp-005","status":"FAILED","investigationStatus":"OPEN","rootCause":null,
  "result":{"mismatches":[{"id":"m-1","amount":-42500}],"matches":[{"id":"ok-1","amount":10}],"leftAmount":100,"rightAmount":57600},
  "auditEvents":[{"id":"a-1","reconId":"bp-005","action":"EXECUTION_COMPLETED","newValue":"FAILED","createdAt":"2026-01-24T09:00:00Z"}]}`

type fakeBackend struct {
	mu         sync.Mutex
	listStatus int
	patches    []map[string]any
	gotAuth    []string
}

func (f *fakeBackend) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	f.mu.Lock()
	f.gotAuth = append(f.gotAuth, r.Header.Get("Authorization"))
	listStatus := f.listStatus
	f.mu.Unlock()

	switch {
	case r.Method == nethttp.MethodGet && r.URL.Path == "/recons":
		if listStatus != 0 {
			w.WriteHeader(listStatus)
			_, _ = w.Write([]byte(`{"message":"backend unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(reconsJSON))
	case r.URL.Path == "/analytics/summary":
		w.WriteHeader(nethttp.StatusNoContent)
	case r.URL.Path == "/recons/bp-005/config":
		_, _ = w.Write([]byte(`{"id":"bp-005","name":"Arcus","schedule":{"cron":"0 9 * * *"},"sources":{"left":[],"right":[]}}`))
	case r.Method == nethttp.MethodGet && r.URL.Path == "/executions/ex-1":
		_, _ = w.Write([]byte(detailJSON))
	case r.Method == nethttp.MethodPatch && r.URL.Path == "/executions/ex-1/investigate":
		var body map[string]any
		blob, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(blob, &body)
		f.mu.Lock()
		f.patches = append(f.patches, body)
		f.mu.Unlock()
		_, _ = w.Write([]byte(detailJSON))
	case r.Method == nethttp.MethodPost && r.URL.Path == "/executions/ex-1/notes":
		_, _ = w.Write([]byte(`{"id":"a-2","reconId":"bp-005","action":"NOTE_ADDED","userEmail":"maria@example.com","details":"called bank"}`))
	case r.URL.Path == "/executions/ex-1/audit-trail":
		_, _ = w.Write([]byte(`[{"id":"a-1","action":"NOTE_ADDED"}]`))
	case r.URL.Path == "/executions/ex-1/mismatches/csv":
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("id,amount\nm-1,-42500\n"))
	default:
		w.WriteHeader(nethttp.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}
}

type harness struct {
	server     *Server
	backend    *fakeBackend
	session    *auth.Session
	controller *dashboard.Controller
}

func newHarness(t *testing.T, authDisabled bool) *harness {
	t.Helper()
	backend := &fakeBackend{}
	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)

	store, err := tokenstore.NewSQLiteStore(filepath.Join(t.TempDir(), "tokens.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := logging.NewNop()
	session := auth.NewSession(store, logger)
	client := reconapi.NewClient(upstream.URL, 2*time.Second, session)
	controller := dashboard.NewController(client, logger, dashboard.Options{Interval: time.Hour})
	require.NoError(t, controller.Load(context.Background()))
	t.Cleanup(controller.Stop)

	cfg := config.Config{AuthDisabled: authDisabled, APIBaseURL: upstream.URL, RefreshInterval: time.Minute}
	srv := NewServer(Deps{
		Config:     cfg,
		Logger:     logger,
		Controller: controller,
		Backend:    client,
		Session:    session,
		TokenStore: store,
	})
	return &harness{server: srv, backend: backend, session: session, controller: controller}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(blob))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "maria@example.com",
		"name":  "Maria",
		"exp":   exp.Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	return raw
}

func TestHealthAndReady(t *testing.T) {
	h := newHarness(t, false)

	rr := h.do(t, nethttp.MethodGet, "/health", nil)
	assert.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = h.do(t, nethttp.MethodGet, "/ready", nil)
	assert.Equal(t, nethttp.StatusOK, rr.Code)
}

func TestGatedRoutesRequireSession(t *testing.T) {
	h := newHarness(t, false)

	for _, path := range []string{"/api/v1/dashboard", "/api/v1/tests", "/api/v1/aging", "/api/v1/investigation", "/ws"} {
		rr := h.do(t, nethttp.MethodGet, path, nil)
		assert.Equal(t, nethttp.StatusUnauthorized, rr.Code, path)
		assert.Equal(t, "not authenticated", decode(t, rr)["error"], path)
	}
}

func TestLoginOpensGateAndSendsBearer(t *testing.T) {
	h := newHarness(t, false)
	token := signedToken(t, time.Now().Add(time.Hour))

	rr := h.do(t, nethttp.MethodPost, "/api/v1/auth/login", map[string]string{"token": token})
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	payload := decode(t, rr)
	assert.Equal(t, true, payload["authenticated"])
	assert.Equal(t, "maria@example.com", payload["user"].(map[string]any)["email"])

	rr = h.do(t, nethttp.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())

	h.backend.mu.Lock()
	last := h.backend.gotAuth[len(h.backend.gotAuth)-1]
	h.backend.mu.Unlock()
	assert.Equal(t, "Bearer "+token, last)

	rr = h.do(t, nethttp.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Equal(t, nethttp.StatusUnauthorized, h.do(t, nethttp.MethodGet, "/api/v1/dashboard", nil).Code)
}

func TestLoginRejectsBadTokens(t *testing.T) {
	h := newHarness(t, false)

	assert.Equal(t, nethttp.StatusBadRequest, h.do(t, nethttp.MethodPost, "/api/v1/auth/login", map[string]string{}).Code)
	assert.Equal(t, nethttp.StatusBadRequest, h.do(t, nethttp.MethodPost, "/api/v1/auth/login", map[string]string{"token": "garbage"}).Code)
	expired := signedToken(t, time.Now().Add(-time.Hour))
	assert.Equal(t, nethttp.StatusBadRequest, h.do(t, nethttp.MethodPost, "/api/v1/auth/login", map[string]string{"token": expired}).Code)
	assert.False(t, h.session.Authenticated())
}

func TestDashboardPayload(t *testing.T) {
	h := newHarness(t, true)

	rr := h.do(t, nethttp.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code)
	payload := decode(t, rr)

	assert.Equal(t, "idle", payload["state"])
	tests := payload["tests"].([]any)
	require.Len(t, tests, 2)
	failed := tests[1].(map[string]any)
	assert.Equal(t, "failed-unresolved", failed["status"])
	assert.Equal(t, "high", failed["severity"])
	assert.Equal(t, "-$42,500.00", failed["deltaDisplay"])
	kpis := payload["kpis"].(map[string]any)
	assert.Equal(t, "local", kpis["source"])
	assert.Equal(t, float64(1), kpis["openExceptions"])
}

func TestTestsFilter(t *testing.T) {
	h := newHarness(t, true)

	rr := h.do(t, nethttp.MethodGet, "/api/v1/tests?q=arcus&status=failed-unresolved&category=Bill+Pay", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, float64(1), payload["total"])

	rr = h.do(t, nethttp.MethodGet, "/api/v1/tests?status=broken", nil)
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)
}

func TestAgingAndSummary(t *testing.T) {
	h := newHarness(t, true)

	aging := decode(t, h.do(t, nethttp.MethodGet, "/api/v1/aging", nil))
	assert.Len(t, aging["critical"].([]any), 1)
	assert.Empty(t, aging["newFailures"].([]any))

	summary := decode(t, h.do(t, nethttp.MethodGet, "/api/v1/summary", nil))
	assert.Equal(t, float64(2), summary["total"])
	assert.Equal(t, float64(1), summary["highSeverity"])
	assert.Equal(t, "$42,500.00", summary["cashAtRisk"])
}

func TestRefreshUpstreamErrorMapsTo502(t *testing.T) {
	h := newHarness(t, true)
	h.backend.mu.Lock()
	h.backend.listStatus = nethttp.StatusServiceUnavailable
	h.backend.mu.Unlock()

	rr := h.do(t, nethttp.MethodPost, "/api/v1/refresh", nil)

	assert.Equal(t, nethttp.StatusBadGateway, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, "backend unavailable", payload["error"])
	assert.Equal(t, float64(503), payload["upstream_status"])

	snap := decode(t, h.do(t, nethttp.MethodGet, "/api/v1/dashboard", nil))
	assert.Len(t, snap["tests"].([]any), 2, "previous data is kept")
	assert.Contains(t, snap["error"], "backend unavailable")
}

func TestReconConfig(t *testing.T) {
	h := newHarness(t, true)

	rr := h.do(t, nethttp.MethodGet, "/api/v1/tests/bp-005/config", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Equal(t, "bp-005", decode(t, rr)["data"].(map[string]any)["id"])

	rr = h.do(t, nethttp.MethodGet, "/api/v1/tests/nope/config", nil)
	assert.Equal(t, nethttp.StatusBadGateway, rr.Code)
	assert.Equal(t, float64(404), decode(t, rr)["upstream_status"])
}

func TestInvestigationFlow(t *testing.T) {
	h := newHarness(t, true)

	assert.Equal(t, nethttp.StatusConflict, h.do(t, nethttp.MethodGet, "/api/v1/investigation", nil).Code)
	assert.Equal(t, nethttp.StatusNotFound, h.do(t, nethttp.MethodPost, "/api/v1/tests/missing/investigation", nil).Code)

	rr := h.do(t, nethttp.MethodPost, "/api/v1/tests/bp-005/investigation", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	wb := decode(t, rr)
	assert.Equal(t, "failed-unresolved", wb["form"].(map[string]any)["status"])
	assert.Equal(t, "unknown", wb["form"].(map[string]any)["rootCause"])
	assert.Len(t, wb["evidence"].(map[string]any)["records"].([]any), 2)
	assert.Equal(t, dashboard.ViewInvestigation, h.controller.View())
	assert.False(t, h.controller.Polling())

	rr = h.do(t, nethttp.MethodPatch, "/api/v1/investigation", map[string]string{"status": "nonsense", "rootCause": "unknown"})
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)

	rr = h.do(t, nethttp.MethodPatch, "/api/v1/investigation", map[string]string{"status": "failed-resolved", "rootCause": "weekend-gap", "notes": "file arrived"})
	require.Equal(t, nethttp.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, decode(t, rr)["form"].(map[string]any)["notes"])
	h.backend.mu.Lock()
	require.Len(t, h.backend.patches, 1)
	assert.Equal(t, map[string]any{"investigationStatus": "RESOLVED", "rootCause": "weekend-gap", "notes": "file arrived"}, h.backend.patches[0])
	h.backend.mu.Unlock()

	rr = h.do(t, nethttp.MethodPost, "/api/v1/investigation/notes", map[string]string{"text": "called bank"})
	require.Equal(t, nethttp.StatusCreated, rr.Code)
	trail := decode(t, rr)["data"].([]any)
	assert.Equal(t, "Note added", trail[len(trail)-1].(map[string]any)["action"])

	rr = h.do(t, nethttp.MethodPost, "/api/v1/investigation/notes", map[string]string{"text": " "})
	assert.Equal(t, nethttp.StatusBadRequest, rr.Code)

	rr = h.do(t, nethttp.MethodGet, "/api/v1/investigation/audit-trail", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Len(t, decode(t, rr)["data"].([]any), 1)

	rr = h.do(t, nethttp.MethodGet, "/api/v1/investigation/mismatches.csv", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Equal(t, `attachment; filename="mismatches-ex-1.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "id,amount\nm-1,-42500\n", rr.Body.String())

	rr = h.do(t, nethttp.MethodDelete, "/api/v1/investigation", nil)
	require.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Equal(t, dashboard.ViewList, h.controller.View())
	assert.True(t, h.controller.Polling())
	assert.Equal(t, nethttp.StatusConflict, h.do(t, nethttp.MethodGet, "/api/v1/investigation", nil).Code)
}

func TestSettingsAndBackendStatus(t *testing.T) {
	h := newHarness(t, false)

	settings := decode(t, h.do(t, nethttp.MethodGet, "/api/v1/settings", nil))["data"].(map[string]any)
	assert.Equal(t, float64(60), settings["refresh_interval_sec"])
	assert.Len(t, settings["statuses"].([]any), 4)
	assert.Len(t, settings["root_causes"].([]any), 7)

	status := decode(t, h.do(t, nethttp.MethodGet, "/api/v1/status/backend", nil))
	services := status["services"].(map[string]any)
	assert.Equal(t, true, services["recon_api"].(map[string]any)["ok"])
	assert.Equal(t, "sqlite", services["token_store"].(map[string]any)["driver"])
	assert.Equal(t, false, services["realtime"].(map[string]any)["enabled"])

	rr := h.do(t, nethttp.MethodGet, "/api/v1/metrics/app", nil)
	assert.Equal(t, nethttp.StatusOK, rr.Code)
}

func TestDashboardPage(t *testing.T) {
	h := newHarness(t, false)

	rr := h.do(t, nethttp.MethodGet, "/", nil)
	assert.Equal(t, nethttp.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Reconciliation Dashboard")
	assert.Equal(t, nethttp.StatusNoContent, h.do(t, nethttp.MethodGet, "/favicon.ico", nil).Code)
}
