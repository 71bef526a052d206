package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	digest, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !h.Verify("pw123", digest) {
		t.Fatalf("expected digest to verify")
	}
	if h.Verify("wrong", digest) {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestHashIsSalted(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatalf("expected two hashes of the same password to differ")
	}
}

func TestVerifyMalformedDigest(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if h.Verify("pw123", "not-a-bcrypt-digest") {
		t.Fatalf("expected malformed digest to fail verification")
	}
}

func TestInvalidCostFallsBackToDefault(t *testing.T) {
	h := NewHasher(9999)
	digest, err := h.Hash("pw123")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		t.Fatalf("Cost error: %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", cost)
	}
}
