package lsp

import (
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
)

// ServerSpec describes one known language server: how to launch it and
// which file extensions route to it.
type ServerSpec struct {
	Key        string
	Command    string
	Args       []string
	LanguageID string
	Extensions []string
}

// builtinServers is the default routing table. A server only starts when
// its binary is on PATH and the workspace contains matching files.
var builtinServers = []ServerSpec{
	{Key: "go", Command: "gopls", LanguageID: "go", Extensions: []string{".go"}},
	{Key: "python", Command: "pyright-langserver", Args: []string{"--stdio"}, LanguageID: "python", Extensions: []string{".py", ".pyi"}},
	{Key: "typescript", Command: "typescript-language-server", Args: []string{"--stdio"}, LanguageID: "typescript", Extensions: []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}},
	{Key: "rust", Command: "rust-analyzer", LanguageID: "rust", Extensions: []string{".rs"}},
	{Key: "c", Command: "clangd", LanguageID: "c", Extensions: []string{".c", ".cc", ".cpp", ".h", ".hpp"}},
}

// DefaultServers returns the built-in table plus any configured extras.
// Extras with a key matching a built-in replace it.
func DefaultServers(extra []ServerSpec) []ServerSpec {
	out := make([]ServerSpec, 0, len(builtinServers)+len(extra))
	replaced := map[string]bool{}
	for _, spec := range extra {
		replaced[spec.Key] = true
	}
	for _, spec := range builtinServers {
		if !replaced[spec.Key] {
			out = append(out, spec)
		}
	}
	out = append(out, extra...)
	return out
}

// available reports whether the server binary can be found on PATH.
func (s ServerSpec) available() bool {
	_, err := exec.LookPath(s.Command)
	return err == nil
}

// relevant reports whether the workspace contains files this server
// handles. The scan stops at the first match and skips vendor-ish dirs.
func (s ServerSpec) relevant(root string) bool {
	wanted := map[string]bool{}
	for _, ext := range s.Extensions {
		wanted[ext] = true
	}
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if name != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor" || name == "__pycache__" || name == "target") {
				return filepath.SkipDir
			}
			return nil
		}
		if wanted[filepath.Ext(path)] {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}
