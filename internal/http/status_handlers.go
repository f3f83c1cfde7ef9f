package http

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"go-recon-dashboard/internal/metrics"
)

func (s *Server) backendStatusHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	c.JSON(nethttp.StatusOK, gin.H{
		"generated_at": time.Now().UTC(),
		"uptime_sec":   int64(time.Since(s.startedAt).Seconds()),
		"services": gin.H{
			"recon_api":   s.reconAPIStatus(),
			"token_store": s.tokenStoreStatus(ctx),
			"realtime":    s.realtimeStatus(),
		},
	})
}

func (s *Server) reconAPIStatus() gin.H {
	snap := s.controller.Snapshot()
	return gin.H{
		"base_url":       s.cfg.APIBaseURL,
		"ok":             snap.HasData() && snap.Error == "",
		"state":          snap.State,
		"last_synced_at": snap.LastSyncedAt,
		"error":          snap.Error,
		"polling":        s.controller.Polling(),
	}
}

func (s *Server) tokenStoreStatus(ctx context.Context) gin.H {
	if s.tokenStore == nil {
		return gin.H{"enabled": false, "ok": false, "error": "token store disabled"}
	}
	if err := s.tokenStore.Ping(ctx); err != nil {
		return gin.H{"enabled": true, "ok": false, "driver": s.tokenStore.Driver(), "error": err.Error()}
	}
	return gin.H{"enabled": true, "ok": true, "driver": s.tokenStore.Driver()}
}

func (s *Server) realtimeStatus() gin.H {
	if s.hub == nil {
		return gin.H{"enabled": false}
	}
	return gin.H{"enabled": true, "stats": s.hub.Stats()}
}

// appMetricsSummaryHandler reports the slowest backend operations.
func appMetricsSummaryHandler(c *gin.Context) {
	stats, err := metrics.BackendSummary(prometheus.DefaultGatherer)
	if err != nil {
		writeErrorMessage(c, nethttp.StatusInternalServerError, err.Error())
		return
	}
	top := stats
	if len(top) > 5 {
		top = top[:5]
	}
	var errs uint64
	for _, st := range stats {
		errs += st.Errors
	}
	c.JSON(nethttp.StatusOK, gin.H{
		"meta": gin.H{"generated_at": time.Now().UTC()},
		"data": gin.H{
			"top_backend_slowest_avg_ms": top,
			"errors":                     gin.H{"backend_call_total": errs},
		},
	})
}
