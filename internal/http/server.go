package http

import (
	"context"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-recon-dashboard/internal/auth"
	"go-recon-dashboard/internal/config"
	"go-recon-dashboard/internal/connectors/reconapi"
	"go-recon-dashboard/internal/dashboard"
	"go-recon-dashboard/internal/investigation"
	"go-recon-dashboard/internal/logging"
	"go-recon-dashboard/internal/metrics"
	"go-recon-dashboard/internal/realtime"
)

// Backend is the part of the reconciliation API the handlers call directly.
type Backend interface {
	investigation.API
	GetReconConfig(ctx context.Context, reconID string) (*reconapi.ReconConfig, error)
}

// Pinger reports the health of a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
	Driver() string
}

// Deps bundles the components the server routes to. Hub and TokenStore may be nil.
type Deps struct {
	Config     config.Config
	Logger     *logging.Logger
	Controller *dashboard.Controller
	Backend    Backend
	Session    *auth.Session
	Hub        *realtime.Hub
	TokenStore Pinger
}

// Server wraps an HTTP server and route handlers.
type Server struct {
	httpServer *nethttp.Server
	router     *gin.Engine
	cfg        config.Config
	logger     *logging.Logger
	controller *dashboard.Controller
	backend    Backend
	session    *auth.Session
	hub        *realtime.Hub
	tokenStore Pinger
	startedAt  time.Time

	wbMu      sync.Mutex
	workbench *investigation.Workbench
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:        deps.Config,
		logger:     logger.Named("http"),
		controller: deps.Controller,
		backend:    deps.Backend,
		session:    deps.Session,
		hub:        deps.Hub,
		tokenStore: deps.TokenStore,
		startedAt:  time.Now().UTC(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestIDMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(metrics.Middleware())
	if len(deps.Config.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(deps.Config.CORSOrigins)))
	}
	s.router = r
	s.routes()

	if s.hub != nil {
		s.controller.Subscribe(func(snap dashboard.Snapshot) {
			s.hub.Broadcast(realtime.EventSnapshot, dashboardPayload(snap, time.Now()))
		})
	}

	s.httpServer = &nethttp.Server{
		Addr:         deps.Config.ListenAddr,
		Handler:      r,
		ReadTimeout:  deps.Config.ReadTimeout,
		WriteTimeout: deps.Config.WriteTimeout,
	}
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	cfg.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) routes() {
	r := s.router
	r.GET("/", dashboardPageHandler)
	r.GET("/favicon.ico", faviconHandler)
	r.GET("/health", healthHandler)
	r.GET("/ready", s.readyHandler)
	r.GET("/metrics", metrics.Handler())

	v1 := r.Group("/api/v1")
	v1.GET("/settings", settingsHandler(s.cfg))
	v1.GET("/status/backend", s.backendStatusHandler)
	v1.GET("/metrics/app", appMetricsSummaryHandler)

	authGroup := v1.Group("/auth")
	authGroup.POST("/login", s.loginHandler)
	authGroup.POST("/logout", s.logoutHandler)
	authGroup.GET("/session", s.sessionHandler)

	gated := v1.Group("", s.requireSession())
	gated.GET("/dashboard", s.dashboardHandler)
	gated.GET("/tests", s.testsHandler)
	gated.GET("/aging", s.agingHandler)
	gated.GET("/summary", s.summaryHandler)
	gated.POST("/refresh", s.refreshHandler)
	gated.GET("/tests/:id/config", s.reconConfigHandler)
	gated.POST("/tests/:id/investigation", s.openInvestigationHandler)
	gated.GET("/investigation", s.investigationHandler)
	gated.PATCH("/investigation", s.saveInvestigationHandler)
	gated.DELETE("/investigation", s.closeInvestigationHandler)
	gated.POST("/investigation/notes", s.addNoteHandler)
	gated.GET("/investigation/audit-trail", s.auditTrailHandler)
	gated.GET("/investigation/mismatches.csv", s.exportMismatchesHandler)

	r.GET("/ws", s.requireSession(), s.websocketHandler)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() nethttp.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		log := s.logger.For(c.Request.Context())
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request failed", fields...)
		case path == "/health" || path == "/metrics":
			log.Debug("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

func (s *Server) websocketHandler(c *gin.Context) {
	if s.hub == nil {
		writeErrorMessage(c, nethttp.StatusServiceUnavailable, "realtime updates disabled")
		return
	}
	s.hub.HandleWebSocket(c.Writer, c.Request)
}

func healthHandler(c *gin.Context) {
	c.JSON(nethttp.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) readyHandler(c *gin.Context) {
	if s.tokenStore != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.tokenStore.Ping(ctx); err != nil {
			c.JSON(nethttp.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(nethttp.StatusOK, gin.H{"status": "ready"})
}
