// Package crypto implements the password hashing and random primitives contract the protocol engine relies on.
package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/alexedwards/argon2id"
)

// humanAlphabet avoids visually ambiguous glyphs (no 0/O, 1/l/I).
const humanAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuwxyz23456789"

// Params holds the Argon2id cost parameters used for every hash produced by this process.
type Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies passwords with a fixed Argon2id parameter set.
type Hasher struct {
	params *argon2id.Params
}

// NewHasher builds a Hasher from the given cost parameters.
func NewHasher(p Params) *Hasher {
	return &Hasher{params: &argon2id.Params{
		Memory:      p.Memory,
		Iterations:  p.Iterations,
		Parallelism: p.Parallelism,
		SaltLength:  p.SaltLength,
		KeyLength:   p.KeyLength,
	}}
}

// HashPassword returns a salted Argon2id hash of pass. Each call uses a freshly generated random salt, so two calls
// with the same password never produce the same string.
func (h *Hasher) HashPassword(pass string) (string, error) {
	hash, err := argon2id.CreateHash(pass, h.params)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// CheckPassword reports whether pass matches the given Argon2id hash, using argon2id's constant-time comparison.
func (h *Hasher) CheckPassword(pass, stored string) bool {
	match, err := argon2id.ComparePasswordAndHash(pass, stored)
	if err != nil {
		return false
	}
	return match
}

// RandomCode returns a zero-padded numeric string of the given length, drawn uniformly from crypto/rand.
func RandomCode(digits int) (string, error) {
	max := big.NewInt(1)
	ten := big.NewInt(10)
	for range digits {
		max.Mul(max, ten)
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate random code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

// RandomToken returns a hex-encoded random token of at least 32 bytes, suitable for an auth token.
func RandomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random token: %w", err)
	}
	return fmt.Sprintf("%x", buf), nil
}

// HumanCode returns a random string of length n drawn from an alphabet with no visually ambiguous glyphs, used for
// invite-link codes.
func HumanCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	alphabetLen := big.NewInt(int64(len(humanAlphabet)))
	for range n {
		idx, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("generate human code: %w", err)
		}
		b.WriteByte(humanAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
