package passwd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_Hash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("mysecretpassword")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.True(t, CheckPasswordHash("mysecretpassword", hash))
	assert.False(t, CheckPasswordHash("wrongpassword", hash))

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestHasher_LengthLimits(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	_, err := h.Hash(strings.Repeat("a", MaxPasswordLen+1))
	assert.ErrorIs(t, err, ErrTooLong)

	_, err = h.Hash("short")
	assert.ErrorIs(t, err, ErrTooShort)

	_, err = h.Hash(strings.Repeat("a", MaxPasswordLen))
	assert.NoError(t, err)
}

func TestNewHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, NewHasher(1).cost)
	assert.Equal(t, bcrypt.MaxCost, NewHasher(99).cost)
	assert.Equal(t, 10, NewHasher(10).cost)
}

func TestCheckPasswordHash_Garbage(t *testing.T) {
	assert.False(t, CheckPasswordHash("anything", "not-a-bcrypt-hash"))
	assert.False(t, CheckPasswordHash("anything", ""))
}
