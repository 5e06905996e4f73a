package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern string
		rel     string
		want    bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "pkg/util.go", true}, // bare pattern falls back to basename
		{"*.go", "main.txt", false},
		{"**/*_test.go", "a/b/c_test.go", true},
		{"**/*_test.go", "c_test.go", true},
		{"**/*_test.go", "a/b/c.go", false},
		{"cmd/*.go", "cmd/main.go", true},
		{"cmd/*.go", "internal/main.go", false},
		{"**/cmd/*.go", "x/y/cmd/main.go", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, matchGlob(tc.pattern, tc.rel), "%s vs %s", tc.pattern, tc.rel)
	}
}

func TestGlobToolNoMatches(t *testing.T) {
	deps := testDeps(t)
	seed(t, deps, "main.go", "package main\n")

	result := run(t, NewGlob(deps), map[string]any{"pattern": "*.rs"})
	require.NoError(t, result.Error)
	assert.Equal(t, "No files match *.rs", result.Content)
}

func TestGlobToolSkipsHiddenAndVendored(t *testing.T) {
	deps := testDeps(t)
	seed(t, deps, "keep.go", "package a\n")
	seed(t, deps, "node_modules/skip.go", "package b\n")
	seed(t, deps, ".hidden/skip.go", "package c\n")

	result := run(t, NewGlob(deps), map[string]any{"pattern": "**/*.go"})
	require.NoError(t, result.Error)
	assert.Equal(t, "keep.go", result.Content)
}
