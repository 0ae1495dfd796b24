package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerify(t *testing.T) {
	h := NewWithCost(bcrypt.MinCost)
	hash, err := h.Hash("abc123")
	require.NoError(t, err)
	assert.NotEqual(t, "abc123", hash)

	assert.True(t, h.Verify(hash, "abc123"))
	assert.False(t, h.Verify(hash, "wrong"))
	assert.False(t, h.Verify(hash, ""))
}

// An empty stored hash means no password was set: anything verifies.
func TestVerifyEmptyHash(t *testing.T) {
	h := New()
	assert.True(t, h.Verify("", ""))
	assert.True(t, h.Verify("", "anything"))
}

func TestHashesAreSalted(t *testing.T) {
	h := NewWithCost(bcrypt.MinCost)
	a, err := h.Hash("same")
	require.NoError(t, err)
	b, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
