// Package password wraps bcrypt hashing for share passwords.
package password

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies share passwords with bcrypt.
type Hasher struct {
	cost int
}

// New returns a Hasher at bcrypt's default cost.
func New() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost}
}

// NewWithCost returns a Hasher at a specific cost; tests use bcrypt.MinCost.
func NewWithCost(cost int) *Hasher {
	return &Hasher{cost: cost}
}

// Hash derives a salted hash from the plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plaintext matches the stored hash. An empty stored
// hash means the share is unprotected, so any supplied password matches.
func (h *Hasher) Verify(hash, plaintext string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
