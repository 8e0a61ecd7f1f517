package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	assert.Equal(t, 0, tc.CountTokens(""))
	assert.Greater(t, tc.CountTokens("implement the health endpoint"), 0)

	// Longer text has more tokens.
	short := tc.CountTokens("hello")
	long := tc.CountTokens(strings.Repeat("hello world ", 50))
	assert.Greater(t, long, short)
}

func TestWithinLimit(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)

	text := strings.Repeat("word ", 100)

	// Zero means unlimited.
	assert.True(t, tc.WithinLimit(text, 0))
	assert.True(t, tc.WithinLimit(text, 1_000_000))
	assert.False(t, tc.WithinLimit(text, 1))
}

func TestFallbackEstimation(t *testing.T) {
	tc := &TokenCounter{} // nil codec forces the fallback path
	assert.Equal(t, 25, tc.CountTokens(strings.Repeat("x", 100)))
}
