package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "S1001",
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	got, err := TokenExpiry(signedToken(t, exp))
	if err != nil {
		t.Fatalf("TokenExpiry: %v", err)
	}
	if !got.Equal(exp) {
		t.Fatalf("expiry = %v, want %v", got, exp)
	}
}

func TestTokenExpiryGarbage(t *testing.T) {
	if _, err := TokenExpiry("not.a.token"); err == nil {
		t.Fatal("TokenExpiry accepted garbage")
	}
}

func TestTokenValidFor(t *testing.T) {
	token := signedToken(t, time.Now().Add(time.Hour))

	if !TokenValidFor(token, 30*time.Minute) {
		t.Fatal("token reported invalid for a window well inside its expiry")
	}
	if TokenValidFor(token, 2*time.Hour) {
		t.Fatal("token reported valid past its expiry")
	}
	if TokenValidFor("not.a.token", time.Minute) {
		t.Fatal("garbage token reported valid")
	}
}
