// ABOUTME: Client-side inspection of the marketplace session cookie
// ABOUTME: Reads JWT claims without verifying the signature; the server stays the authority

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// SessionClaims are the parts of a session JWT the client cares about.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token has no exp claim
}

// Inspect decodes token without checking its signature. The client has no
// signing secret; this only lets it skip requests the server would refuse.
func Inspect(token string) (SessionClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return SessionClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var out SessionClaims
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// CheckExpiry returns ErrExpiredToken when token is a JWT whose exp is at or
// before now. Empty and opaque tokens pass; the server decides about those.
func CheckExpiry(token string, now time.Time) error {
	if token == "" {
		return nil
	}
	claims, err := Inspect(token)
	if err != nil {
		return nil
	}
	if !claims.ExpiresAt.IsZero() && !now.Before(claims.ExpiresAt) {
		return fmt.Errorf("%w at %s", ErrExpiredToken, claims.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}
