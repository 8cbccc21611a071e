// ABOUTME: Unit tests for session cookie inspection
// ABOUTME: Tests expired, live, claimless and opaque tokens

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-side-secret"))
	require.NoError(t, err)
	return token
}

func TestInspect(t *testing.T) {
	token := sign(t, jwt.MapClaims{"sub": "42", "exp": now.Add(time.Hour).Unix()})

	claims, err := Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.True(t, claims.ExpiresAt.Equal(now.Add(time.Hour)))
}

func TestInspect_NotAJWT(t *testing.T) {
	_, err := Inspect("d41d8cd98f00b204e9800998ecf8427e")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCheckExpiry(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		expired bool
	}{
		{"empty", "", false},
		{"opaque", "d41d8cd98f00b204e9800998ecf8427e", false},
		{"live", sign(t, jwt.MapClaims{"exp": now.Add(time.Minute).Unix()}), false},
		{"expired", sign(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()}), true},
		{"expires now", sign(t, jwt.MapClaims{"exp": now.Unix()}), true},
		{"no exp", sign(t, jwt.MapClaims{"sub": "42"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckExpiry(tt.token, now)
			if tt.expired {
				assert.ErrorIs(t, err, ErrExpiredToken)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
