// Package auth holds the dashboard's login session.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-recon-dashboard/internal/connectors/tokenstore"
	"go-recon-dashboard/internal/logging"
)

// TokenKey is the fixed storage key of the bearer token.
const TokenKey = "auth_token"

var (
	ErrEmptyToken   = errors.New("token is empty")
	ErrTokenExpired = errors.New("token expired")
)

// Storage is the persistent key/value backend of the session.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Session is the process-wide authentication state: hydrated once from
// storage at startup, changed only by Login and Logout.
type Session struct {
	store  Storage
	logger *logging.Logger
	now    func() time.Time

	mu     sync.RWMutex
	token  string
	claims *Claims
}

func NewSession(store Storage, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{store: store, logger: logger, now: time.Now}
}

// Hydrate loads a stored token, keeping it only when it is decodable and unexpired.
func (s *Session) Hydrate(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	raw, err := s.store.Get(ctx, TokenKey)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	claims, err := DecodeToken(raw)
	if err != nil {
		s.logger.Warn("stored token is not decodable, ignoring", zap.Error(err))
		return nil
	}
	if claims.Expired(s.now()) {
		s.logger.Info("stored token expired, starting logged out")
		return nil
	}

	s.mu.Lock()
	s.token, s.claims = raw, claims
	s.mu.Unlock()
	s.logger.Info("session restored", zap.String("email", claims.User.Email))
	return nil
}

// Login stores the token and decodes its display fields.
func (s *Session) Login(ctx context.Context, raw string) (*User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyToken
	}
	claims, err := DecodeToken(raw)
	if err != nil {
		return nil, err
	}
	if claims.Expired(s.now()) {
		return nil, ErrTokenExpired
	}

	if s.store != nil {
		if err := s.store.Set(ctx, TokenKey, raw); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.token, s.claims = raw, claims
	s.mu.Unlock()
	s.logger.Info("logged in", zap.String("email", claims.User.Email))

	user := claims.User
	return &user, nil
}

// Logout clears the session and its stored token.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token, s.claims = "", nil
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	return s.store.Delete(ctx, TokenKey)
}

// Token returns the bearer token, or "" when logged out or expired.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil || s.claims.Expired(s.now()) {
		return ""
	}
	return s.token
}

// User returns the logged-in user; ok is false once the token has expired.
func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil || s.claims.Expired(s.now()) {
		return User{}, false
	}
	return s.claims.User, true
}

// ExpiresAt returns the token expiry, if the token carries one.
func (s *Session) ExpiresAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims == nil {
		return nil
	}
	return s.claims.ExpiresAt
}

func (s *Session) Authenticated() bool {
	_, ok := s.User()
	return ok
}
