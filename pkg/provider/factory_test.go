package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should create an anthropic transport", func(t *testing.T) {
		transport, err := New("anthropic", "test-key")
		require.NoError(t, err)
		assert.Equal(t, "anthropic", transport.Provider())
	})

	t.Run("should create an openai transport", func(t *testing.T) {
		transport, err := New("openai", "test-key")
		require.NoError(t, err)
		assert.Equal(t, "openai", transport.Provider())
	})

	t.Run("should reject unknown providers", func(t *testing.T) {
		_, err := New("gemini-pro-max", "test-key")
		assert.Error(t, err)
	})

	t.Run("should require an api key", func(t *testing.T) {
		_, err := New("anthropic", "")
		assert.Error(t, err)
	})
}
