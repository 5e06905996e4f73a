package token

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateIsDeterministic(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 0, Estimate("   "))
	assert.Equal(t, 1, Estimate("ab"))
	assert.Equal(t, 25, Estimate(strings.Repeat("x", 100)))
}

func TestCountTokensNonZeroForText(t *testing.T) {
	assert.Greater(t, CountTokens("hello world, how are you today?"), 0)
}

func TestTruncateToTokensShortTextUntouched(t *testing.T) {
	assert.Equal(t, "short", TruncateToTokens("short", 100))
	assert.Equal(t, "whatever", TruncateToTokens("whatever", 0))
}

func TestTruncateToTokensShortens(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor ", 200)
	out := TruncateToTokens(long, 10)
	assert.Less(t, len(out), len(long))
	assert.True(t, strings.HasSuffix(out, "..."))
}
