package security

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewTokenAuthenticator("test-secret", "smajobb", time.Hour)

	token, err := auth.GenerateToken("user-1", "Ola Nordmann")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := auth.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "user-1" || claims.Name != "Ola Nordmann" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewTokenAuthenticator("test-secret", "smajobb", -time.Minute)
	token, err := auth.GenerateToken("user-1", "Ola")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := auth.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("error = %v, want ErrExpiredToken", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	issuer := NewTokenAuthenticator("secret-a", "smajobb", time.Hour)
	verifier := NewTokenAuthenticator("secret-b", "smajobb", time.Hour)

	token, err := issuer.GenerateToken("user-1", "Ola")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := verifier.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}
