package auth

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext password")
	}

	if !VerifyPassword("correct horse battery staple", hash) {
		t.Fatal("expected correct password to verify")
	}
	if VerifyPassword("wrong password", hash) {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestLongPasswordTruncation(t *testing.T) {
	long := strings.Repeat("a", 100)

	hash, err := HashPassword(long)
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}

	// Everything beyond 72 bytes is ignored, so a password sharing the first
	// 72 bytes verifies too.
	if !VerifyPassword(long, hash) {
		t.Fatal("expected long password to verify")
	}
	if !VerifyPassword(strings.Repeat("a", 72)+"different", hash) {
		t.Fatal("expected password matching first 72 bytes to verify")
	}
	if VerifyPassword(strings.Repeat("b", 100), hash) {
		t.Fatal("expected different long password to fail verification")
	}
}
