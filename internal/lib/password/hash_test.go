package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHashAndCompare(t *testing.T) {
	hash, err := GetHash("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hash)

	assert.NoError(t, CompareHash(hash, "s3cret-password"))
	assert.Error(t, CompareHash(hash, "wrong-password"))
}

func TestGetHashDiffersForSamePassword(t *testing.T) {
	first, err := GetHash("same")
	require.NoError(t, err)
	second, err := GetHash("same")
	require.NoError(t, err)

	// bcrypt использует случайную соль
	assert.NotEqual(t, first, second)
}
