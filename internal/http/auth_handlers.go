package http

import (
	"errors"
	nethttp "net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-recon-dashboard/internal/auth"
	"go-recon-dashboard/internal/dashboard"
)

type loginRequest struct {
	Token string `json:"token" binding:"required"`
}

// requireSession rejects requests without a live session unless auth is disabled.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AuthDisabled || s.session.Authenticated() {
			c.Next()
			return
		}
		writeErrorMessage(c, nethttp.StatusUnauthorized, "not authenticated")
	}
}

func (s *Server) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorMessage(c, nethttp.StatusBadRequest, "token is required")
		return
	}

	user, err := s.session.Login(c.Request.Context(), req.Token)
	switch {
	case errors.Is(err, auth.ErrEmptyToken), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		writeErrorMessage(c, nethttp.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.For(c.Request.Context()).Error("login failed", zap.Error(err))
		writeErrorMessage(c, nethttp.StatusInternalServerError, "could not store session")
		return
	}

	s.logger.For(c.Request.Context()).Info("session started", zap.String("email", user.Email))
	if err := s.controller.Refresh(c.Request.Context(), dashboard.ModeManual); err != nil {
		s.logger.For(c.Request.Context()).Warn("load after login failed", zap.Error(err))
	}
	c.JSON(nethttp.StatusOK, s.sessionPayload())
}

func (s *Server) logoutHandler(c *gin.Context) {
	if err := s.session.Logout(c.Request.Context()); err != nil {
		s.logger.For(c.Request.Context()).Error("logout failed", zap.Error(err))
		writeErrorMessage(c, nethttp.StatusInternalServerError, "could not clear session")
		return
	}
	c.JSON(nethttp.StatusOK, s.sessionPayload())
}

func (s *Server) sessionHandler(c *gin.Context) {
	c.JSON(nethttp.StatusOK, s.sessionPayload())
}

func (s *Server) sessionPayload() gin.H {
	payload := gin.H{
		"authenticated": s.session.Authenticated(),
		"authDisabled":  s.cfg.AuthDisabled,
		"user":          nil,
		"expiresAt":     nil,
	}
	if user, ok := s.session.User(); ok {
		payload["user"] = user
		payload["expiresAt"] = s.session.ExpiresAt()
	}
	return payload
}
