package auth

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret", 30)

	token, expiresAt, err := tm.GenerateToken("owner-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt = %v, want in the future", expiresAt)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.OwnerID != "owner-123" {
		t.Errorf("OwnerID = %q, want owner-123", claims.OwnerID)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret-a", 30).GenerateToken("owner-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := NewTokenManager("secret-b", 30).ParseToken(token); err == nil {
		t.Error("ParseToken() with wrong secret should fail")
	}
}

func TestTokenRejectsExpired(t *testing.T) {
	tm := &TokenManager{secret: []byte("test-secret"), ttl: -time.Minute}
	token, _, err := tm.GenerateToken("owner-123")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := tm.ParseToken(token); err == nil {
		t.Error("ParseToken() of expired token should fail")
	}
}
