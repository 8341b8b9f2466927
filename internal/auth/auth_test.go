package auth

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "s3cret" {
		t.Error("HashPassword() returned plaintext")
	}

	if !CheckPassword(hash, "s3cret") {
		t.Error("CheckPassword() rejected correct password")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("CheckPassword() accepted wrong password")
	}
}

func TestHashPassword_Empty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("HashPassword(\"\") should fail")
	}
}

func TestTokens_RoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	token, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	userID, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if userID != "user-1" {
		t.Errorf("Verify() userID = %q, want %q", userID, "user-1")
	}
}

func TestTokens_WrongSecret(t *testing.T) {
	token, err := NewTokens("secret-a", time.Hour).Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := NewTokens("secret-b", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() with wrong secret error = %v, want ErrInvalidToken", err)
	}
}

func TestTokens_Expired(t *testing.T) {
	tokens := NewTokens("test-secret", -time.Minute)

	token, err := tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := tokens.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() of expired token error = %v, want ErrInvalidToken", err)
	}
}

func TestTokens_Garbage(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)

	if _, err := tokens.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify() of garbage error = %v, want ErrInvalidToken", err)
	}
}
