package crypto

import (
	"strings"
	"testing"
)

func testHasher() *Hasher {
	return NewHasher(Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
}

func TestHashAndCheckPassword(t *testing.T) {
	h := testHasher()
	hash, err := h.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !h.CheckPassword("correct horse battery staple", hash) {
		t.Error("CheckPassword() = false for the correct password")
	}
	if h.CheckPassword("wrong password", hash) {
		t.Error("CheckPassword() = true for the wrong password")
	}
}

func TestHashPasswordProducesDistinctSalts(t *testing.T) {
	h := testHasher()
	a, err := h.HashPassword("same password")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	b, err := h.HashPassword("same password")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password are identical; expected distinct salts")
	}
}

func TestRandomCode(t *testing.T) {
	for range 20 {
		code, err := RandomCode(6)
		if err != nil {
			t.Fatalf("RandomCode() error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("RandomCode() = %q, want length 6", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("RandomCode() = %q, contains non-digit", code)
			}
		}
	}
}

func TestRandomToken(t *testing.T) {
	tok, err := RandomToken()
	if err != nil {
		t.Fatalf("RandomToken() error: %v", err)
	}
	if len(tok) < 64 {
		t.Errorf("RandomToken() = %q, want hex string of at least 64 chars (32 bytes)", tok)
	}
}

func TestHumanCode(t *testing.T) {
	code, err := HumanCode(10)
	if err != nil {
		t.Fatalf("HumanCode() error: %v", err)
	}
	if len(code) != 10 {
		t.Fatalf("HumanCode() = %q, want length 10", code)
	}
	for _, r := range code {
		if !strings.ContainsRune(humanAlphabet, r) {
			t.Fatalf("HumanCode() contains glyph %q outside the allowed alphabet", r)
		}
	}
}
