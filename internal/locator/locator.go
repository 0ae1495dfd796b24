// Package locator generates the short opaque tokens used in share URLs.
package locator

import (
	"crypto/rand"
)

// alphabet has exactly 64 URL-safe symbols so a random byte masked with 0x3f
// maps uniformly onto it.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Length is the default token length, giving 64^21 possible locators.
const Length = 21

// New returns a fresh collision-resistant locator of the default length.
func New() string {
	return NewWithLength(Length)
}

// NewWithLength returns a token of the given length drawn from the URL-safe
// alphabet using crypto/rand.
func NewWithLength(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; there is no
		// safe fallback for a token that must be unguessable.
		panic("locator: rng unavailable: " + err.Error())
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)&0x3f]
	}
	return string(out)
}
