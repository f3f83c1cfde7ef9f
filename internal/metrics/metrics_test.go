package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{100: "1xx", 200: "2xx", 204: "2xx", 302: "3xx", 401: "4xx", 502: "5xx"}
	for code, want := range cases {
		assert.Equal(t, want, statusBucket(code), "code %d", code)
	}
}

func TestRecordBackendCall(t *testing.T) {
	before := testutil.ToFloat64(BackendCallsTotal.WithLabelValues("list_recons_test", "error"))
	RecordBackendCall("list_recons_test", 10*time.Millisecond, errors.New("boom"))
	after := testutil.ToFloat64(BackendCallsTotal.WithLabelValues("list_recons_test", "error"))
	assert.Equal(t, before+1, after)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `recon_dashboard_http_requests_total{method="GET",path="/ping",status="2xx"}`)
	assert.Contains(t, w.Body.String(), "recon_dashboard_active_websocket_clients")
}

func TestBackendSummary(t *testing.T) {
	RecordBackendCall("GET /summary_test", 20*time.Millisecond, nil)
	RecordBackendCall("GET /summary_test", 40*time.Millisecond, errors.New("boom"))

	stats, err := BackendSummary(prometheus.DefaultGatherer)
	assert.NoError(t, err)

	var found *OperationStats
	for i := range stats {
		if stats[i].Operation == "GET /summary_test" {
			found = &stats[i]
		}
	}
	if assert.NotNil(t, found) {
		assert.Equal(t, uint64(2), found.Calls)
		assert.Equal(t, uint64(1), found.Errors)
		assert.InDelta(t, 30.0, found.AvgMS, 0.5)
	}
}
