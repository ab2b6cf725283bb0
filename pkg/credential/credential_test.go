package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher(4)

	hash, err := hasher.Hash("Sup3r$ecret!")
	require.NoError(t, err)
	assert.NotEqual(t, "Sup3r$ecret!", hash)

	assert.True(t, hasher.Verify("Sup3r$ecret!", hash))
	assert.False(t, hasher.Verify("wrong", hash))
	assert.False(t, hasher.Verify("Sup3r$ecret!", "not-a-bcrypt-hash"))
	assert.False(t, hasher.Verify("Sup3r$ecret!", ""))

	_, err = hasher.Hash("")
	assert.Error(t, err)
}

func TestNewBcryptHasher_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, DefaultCost, NewBcryptHasher(0).cost)
	assert.Equal(t, DefaultCost, NewBcryptHasher(99).cost)
	assert.Equal(t, 10, NewBcryptHasher(10).cost)
}

func TestPasswordPolicy_Check(t *testing.T) {
	policy := DefaultPasswordPolicy()

	assert.Empty(t, policy.Check("Correct-Horse-9"))

	problems := policy.Check("short")
	assert.Contains(t, problems, "Password must be at least 10 characters long")
	assert.Contains(t, problems, "Password must contain at least one uppercase letter")
	assert.Contains(t, problems, "Password must contain at least one number")
	assert.Contains(t, problems, "Password must contain at least one special character")
	assert.NotContains(t, problems, "Password must contain at least one lowercase letter")
}

func TestPasswordPolicy_CheckFitsBcrypt(t *testing.T) {
	hasher := NewBcryptHasher(4)
	policy := DefaultPasswordPolicy()

	longest := "Aa1!" + strings.Repeat("x", MaxPasswordBytes-4)
	assert.Empty(t, policy.Check(longest))
	_, err := hasher.Hash(longest)
	require.NoError(t, err)

	tooLong := "Aa1!" + strings.Repeat("x", 76)
	assert.Contains(t, policy.Check(tooLong), "Password must be at most 72 characters long")

	// multi-byte characters hit the byte limit before the character limit
	wide := "Aa1!" + strings.Repeat("é", 40)
	assert.Contains(t, policy.Check(wide), "Password must be at most 72 bytes long")

	relaxed := PasswordPolicy{MinLength: 1}
	assert.Contains(t, relaxed.Check(tooLong), "Password must be at most 72 bytes long")
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(TokenBytes)
	require.NoError(t, err)
	b, err := GenerateToken(TokenBytes)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
