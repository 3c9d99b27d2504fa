package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	dErrors "onboard/pkg/domain-errors"
)

func TestHasher(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	t.Run("hash verifies against original", func(t *testing.T) {
		hash, err := h.Hash("Abcdefg1")
		require.NoError(t, err)
		assert.NotEqual(t, "Abcdefg1", hash)
		require.NoError(t, Verify("Abcdefg1", hash))
	})

	t.Run("wrong secret is invalid input", func(t *testing.T) {
		hash, err := h.Hash("Abcdefg1")
		require.NoError(t, err)
		err = Verify("abcdefg1", hash)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("empty secret rejected", func(t *testing.T) {
		_, err := h.Hash("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("over-long secret rejected", func(t *testing.T) {
		_, err := h.Hash(strings.Repeat("a", 80))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestGenerate_Unique(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
