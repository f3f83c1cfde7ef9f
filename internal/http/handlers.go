package http

import (
	"errors"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-recon-dashboard/internal/connectors/reconapi"
	"go-recon-dashboard/internal/dashboard"
	"go-recon-dashboard/internal/investigation"
	"go-recon-dashboard/internal/recon"
)

var errNoWorkbench = errors.New("no investigation is open")

// writeError maps an error onto a status code and an {"error": ...} body.
// Backend failures become 502; the backend's own status is passed along.
func (s *Server) writeError(c *gin.Context, err error) {
	var apiErr *reconapi.APIError
	var verr *investigation.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(nethttp.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, investigation.ErrEmptyNote):
		writeErrorMessage(c, nethttp.StatusBadRequest, err.Error())
	case errors.Is(err, investigation.ErrNoExecution), errors.Is(err, errNoWorkbench):
		writeErrorMessage(c, nethttp.StatusConflict, err.Error())
	case errors.As(err, &apiErr):
		c.JSON(nethttp.StatusBadGateway, gin.H{"error": apiErr.Message, "upstream_status": apiErr.Status})
	default:
		s.logger.For(c.Request.Context()).Warn("backend request failed", zap.Error(err))
		writeErrorMessage(c, nethttp.StatusBadGateway, err.Error())
	}
}

func writeErrorMessage(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func dashboardPayload(snap dashboard.Snapshot, now time.Time) gin.H {
	return gin.H{
		"state":        snap.State,
		"view":         snap.View,
		"lastSyncedAt": snap.LastSyncedAt,
		"error":        snap.Error,
		"kpis":         snap.KPIs,
		"analytics":    snap.Analytics,
		"tests":        recon.ToRows(snap.Tests, now),
		"categories":   recon.Categories(snap.Tests),
	}
}

func (s *Server) dashboardHandler(c *gin.Context) {
	c.JSON(nethttp.StatusOK, dashboardPayload(s.controller.Snapshot(), time.Now()))
}

func (s *Server) testsHandler(c *gin.Context) {
	filter := recon.Filter{
		Query:    c.Query("q"),
		Status:   strings.TrimSpace(c.Query("status")),
		Category: strings.TrimSpace(c.Query("category")),
	}
	if filter.Status != "" && filter.Status != recon.FilterAll && !validStatus(filter.Status) {
		writeErrorMessage(c, nethttp.StatusBadRequest, "unknown status filter: "+filter.Status)
		return
	}

	tests := filter.Apply(s.controller.Snapshot().Tests)
	c.JSON(nethttp.StatusOK, gin.H{
		"data":  recon.ToRows(tests, time.Now()),
		"total": len(tests),
	})
}

func validStatus(raw string) bool {
	for _, st := range recon.Statuses {
		if string(st) == raw {
			return true
		}
	}
	return false
}

func (s *Server) agingHandler(c *gin.Context) {
	c.JSON(nethttp.StatusOK, recon.BuildAgingReport(s.controller.Snapshot().Tests))
}

func (s *Server) summaryHandler(c *gin.Context) {
	snap := s.controller.Snapshot()
	counts := make(map[recon.TestStatus]int, len(recon.Statuses))
	for _, st := range recon.Statuses {
		counts[st] = 0
	}
	high := 0
	for _, t := range snap.Tests {
		counts[t.Status]++
		if t.Severity == recon.SeverityHigh && t.Status.Open() {
			high++
		}
	}
	c.JSON(nethttp.StatusOK, gin.H{
		"total":        len(snap.Tests),
		"byStatus":     counts,
		"highSeverity": high,
		"kpis":         snap.KPIs,
		"cashAtRisk":   recon.FormatCurrency(snap.KPIs.CashAtRisk),
		"categories":   recon.Categories(snap.Tests),
		"lastSyncedAt": snap.LastSyncedAt,
	})
}

func (s *Server) refreshHandler(c *gin.Context) {
	if err := s.controller.Refresh(c.Request.Context(), dashboard.ModeManual); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, dashboardPayload(s.controller.Snapshot(), time.Now()))
}

func (s *Server) reconConfigHandler(c *gin.Context) {
	cfg, err := s.backend.GetReconConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"data": cfg})
}
