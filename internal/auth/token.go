package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// ErrInvalidToken is returned for tokens whose payload cannot be decoded.
var ErrInvalidToken = errors.New("invalid token")

// User holds the display fields carried by the token payload.
type User struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"sub,omitempty"`
}

// Claims is the informational view of a token payload. The signature is
// never checked here; the backend enforces authentication.
type Claims struct {
	User      User
	ExpiresAt *time.Time
}

// Expired reports whether the claims' exp has passed. Tokens without exp never expire.
func (c Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// DecodeToken reads the payload of a three-segment JWT. Neither the header
// nor the signature is inspected, so any signing algorithm is accepted.
func DecodeToken(raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidToken, len(parts))
	}
	payload, err := jwt.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidToken)
	}

	sub := stringClaim(claims, "sub")
	email := firstNonEmpty(stringClaim(claims, "email"), sub, "unknown")
	out := &Claims{
		User: User{
			Email:   email,
			Name:    firstNonEmpty(stringClaim(claims, "name"), stringClaim(claims, "email")),
			Subject: sub,
		},
	}

	if exp, ok := numericClaim(claims, "exp"); ok && exp != 0 {
		sec, frac := math.Modf(exp)
		t := time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
		out.ExpiresAt = &t
	}
	return out, nil
}

// TokenExpired treats undecodable tokens as expired.
func TokenExpired(raw string, now time.Time) bool {
	claims, err := DecodeToken(raw)
	if err != nil {
		return true
	}
	return claims.Expired(now)
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func numericClaim(claims jwt.MapClaims, key string) (float64, bool) {
	switch v := claims[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
