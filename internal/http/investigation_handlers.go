package http

import (
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-recon-dashboard/internal/dashboard"
	"go-recon-dashboard/internal/investigation"
	"go-recon-dashboard/internal/realtime"
)

type noteRequest struct {
	Text string `json:"text"`
}

func (s *Server) currentWorkbench() (*investigation.Workbench, error) {
	s.wbMu.Lock()
	defer s.wbMu.Unlock()
	if s.workbench == nil {
		return nil, errNoWorkbench
	}
	return s.workbench, nil
}

func (s *Server) publishInvestigation(wb *investigation.Workbench) {
	if s.hub != nil {
		s.hub.Broadcast(realtime.EventInvestigation, wb.Snapshot())
	}
}

// openInvestigationHandler switches to the investigation view for one test.
// The workbench stays open even when the detail fetch fails so the error
// can be shown next to it.
func (s *Server) openInvestigationHandler(c *gin.Context) {
	test, ok := s.controller.Test(c.Param("id"))
	if !ok {
		writeErrorMessage(c, nethttp.StatusNotFound, "unknown test "+c.Param("id"))
		return
	}

	wb := investigation.New(s.backend, s.logger, test)
	s.wbMu.Lock()
	s.workbench = wb
	s.wbMu.Unlock()
	s.controller.EnterInvestigation()

	err := wb.Open(c.Request.Context())
	s.publishInvestigation(wb)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, wb.Snapshot())
}

func (s *Server) investigationHandler(c *gin.Context) {
	wb, err := s.currentWorkbench()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, wb.Snapshot())
}

func (s *Server) saveInvestigationHandler(c *gin.Context) {
	wb, err := s.currentWorkbench()
	if err != nil {
		s.writeError(c, err)
		return
	}
	var form investigation.Form
	if err := c.ShouldBindJSON(&form); err != nil {
		writeErrorMessage(c, nethttp.StatusBadRequest, "invalid request body")
		return
	}
	if err := wb.Save(c.Request.Context(), form); err != nil {
		s.writeError(c, err)
		return
	}
	s.publishInvestigation(wb)
	c.JSON(nethttp.StatusOK, wb.Snapshot())
}

// closeInvestigationHandler returns to the list, refreshes it once and
// restarts background polling.
func (s *Server) closeInvestigationHandler(c *gin.Context) {
	s.wbMu.Lock()
	s.workbench = nil
	s.wbMu.Unlock()

	if err := s.controller.Refresh(c.Request.Context(), dashboard.ModeSilent); err != nil {
		s.logger.For(c.Request.Context()).Warn("refresh on close failed", zap.Error(err))
	}
	s.controller.EnterList()
	c.JSON(nethttp.StatusOK, dashboardPayload(s.controller.Snapshot(), time.Now()))
}

func (s *Server) addNoteHandler(c *gin.Context) {
	wb, err := s.currentWorkbench()
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorMessage(c, nethttp.StatusBadRequest, "invalid request body")
		return
	}
	if err := wb.AddNote(c.Request.Context(), req.Text); err != nil {
		s.writeError(c, err)
		return
	}
	s.publishInvestigation(wb)
	c.JSON(nethttp.StatusCreated, gin.H{"data": wb.Snapshot().AuditTrail})
}

func (s *Server) auditTrailHandler(c *gin.Context) {
	wb, err := s.currentWorkbench()
	if err != nil {
		s.writeError(c, err)
		return
	}
	if err := wb.RefreshAudit(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(nethttp.StatusOK, gin.H{"data": wb.Snapshot().AuditTrail})
}

func (s *Server) exportMismatchesHandler(c *gin.Context) {
	wb, err := s.currentWorkbench()
	if err != nil {
		s.writeError(c, err)
		return
	}
	blob, filename, err := wb.ExportCSV(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	c.Data(nethttp.StatusOK, "text/csv; charset=utf-8", blob)
}
