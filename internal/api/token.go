package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the expiry instant from a bearer token. The
// signature is deliberately not verified; the server remains the
// authority. This is a local pre-check so a timed session is never
// started on a token that will die mid-exam.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token carries no expiry")
	}
	return claims.ExpiresAt.Time, nil
}

// TokenValidFor reports whether the token remains valid for at least d
// from now. Tokens without a parseable expiry report false.
func TokenValidFor(token string, d time.Duration) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return time.Now().Add(d).Before(exp)
}
