package utils

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	t.Run("hashes password and validates original password", func(t *testing.T) {
		hash, err := HashPassword("secret1")
		if err != nil {
			t.Fatalf("expected hashing to succeed, got error: %v", err)
		}
		if hash == "" || hash == "secret1" {
			t.Fatalf("expected an opaque hash, got %q", hash)
		}
		if !CheckPassword("secret1", hash) {
			t.Fatal("expected password check to succeed for matching password")
		}
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		hash, err := HashPassword("correct-password")
		if err != nil {
			t.Fatalf("failed to hash password for test: %v", err)
		}
		if CheckPassword("wrong-password", hash) {
			t.Fatal("expected password check to fail for wrong password")
		}
	})

	t.Run("returns false for malformed hash", func(t *testing.T) {
		if CheckPassword("anything", "not-a-valid-bcrypt-hash") {
			t.Fatal("expected malformed hash comparison to return false")
		}
	})
}

func TestGenerateResetToken(t *testing.T) {
	token, digest, err := GenerateResetToken()
	if err != nil {
		t.Fatalf("expected token generation to succeed, got error: %v", err)
	}
	if len(token) != 64 || len(digest) != 64 {
		t.Fatalf("expected 64 hex chars for token and digest, got %d and %d", len(token), len(digest))
	}
	if token == digest {
		t.Fatal("expected digest to differ from token")
	}
	if HashResetToken(token) != digest {
		t.Fatal("expected HashResetToken to reproduce the stored digest")
	}

	other, _, err := GenerateResetToken()
	if err != nil {
		t.Fatalf("second generation failed: %v", err)
	}
	if other == token {
		t.Fatal("expected distinct tokens")
	}
}
