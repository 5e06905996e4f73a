// Package snapshot implements a per-workspace content-addressed shadow tree
// used to preview, diff and revert file mutations made by tools. Shadow
// state lives outside the working tree and never touches the user's own VCS
// metadata.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"codesm/internal/shared/jsonx"
	"codesm/internal/shared/logging"
)

// Sentinel is returned by Track when snapshotting fails. Callers proceed
// without undo capability; the snapshot store must never fail a tool.
const Sentinel = ""

// Patch binds a snapshot hash to the set of paths that changed since it.
type Patch struct {
	Hash  string   `json:"hash"`
	Files []string `json:"files"`
}

// FileDiff is the exact before/after state of one changed path. Binary files
// carry empty texts and zero counts.
type FileDiff struct {
	Path      string `json:"path"`
	Before    string `json:"before"`
	After     string `json:"after"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Binary    bool   `json:"binary"`
}

var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	".venv":        true,
	"__pycache__":  true,
	".idea":        true,
	"dist":         true,
	"target":       true,
}

// Store tracks one workspace. Shadow layout:
//
//	<cache>/codesm/snapshots/<workspace-key>/objects/<aa>/<hash>  file blobs
//	<cache>/codesm/snapshots/<workspace-key>/trees/<hash>.json    manifests
type Store struct {
	workDir   string
	shadowDir string
	logger    logging.Logger
}

// New creates a store for workDir. Shadow state roots under the user cache
// dir keyed by a hash of the resolved workspace path.
func New(workDir string, logger logging.Logger) *Store {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		abs = workDir
	}
	key := sha256.Sum256([]byte(abs))
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return &Store{
		workDir:   abs,
		shadowDir: filepath.Join(base, "codesm", "snapshots", hex.EncodeToString(key[:8])),
		logger:    logging.OrNop(logger),
	}
}

// Track stages the entire working tree into the shadow index and returns a
// deterministic tree hash. Repeated calls without changes return the same
// hash. On error it returns Sentinel.
func (s *Store) Track() string {
	manifest, err := s.scan()
	if err != nil {
		s.logger.Warn("snapshot scan failed: %v", err)
		return Sentinel
	}
	hash, err := s.writeTree(manifest)
	if err != nil {
		s.logger.Warn("snapshot tree write failed: %v", err)
		return Sentinel
	}
	return hash
}

// PatchFrom returns the set of paths that differ between fromHash and the
// current working tree.
func (s *Store) PatchFrom(fromHash string) (Patch, error) {
	old, err := s.readTree(fromHash)
	if err != nil {
		return Patch{}, err
	}
	current, err := s.scan()
	if err != nil {
		return Patch{}, err
	}

	changed := map[string]bool{}
	for path, blob := range current {
		if old[path] != blob {
			changed[path] = true
		}
	}
	for path := range old {
		if _, ok := current[path]; !ok {
			changed[path] = true
		}
	}

	files := make([]string, 0, len(changed))
	for path := range changed {
		files = append(files, path)
	}
	sort.Strings(files)
	return Patch{Hash: fromHash, Files: files}, nil
}

// Restore overwrites the working tree to match the snapshot. Files present
// in the snapshot that differ are overwritten; files absent from the
// snapshot are left in place (RevertFiles handles selective deletion).
func (s *Store) Restore(hash string) bool {
	manifest, err := s.readTree(hash)
	if err != nil {
		s.logger.Warn("restore: %v", err)
		return false
	}
	ok := true
	for path, blob := range manifest {
		if err := s.restoreFile(path, blob); err != nil {
			s.logger.Warn("restore %s: %v", path, err)
			ok = false
		}
	}
	return ok
}

// RevertFiles selectively restores only the listed files, each to the
// snapshot referenced by its patch. A file that does not exist in that
// snapshot is deleted. Returns the set of reverted paths.
func (s *Store) RevertFiles(patches []Patch) map[string]bool {
	reverted := map[string]bool{}
	for _, patch := range patches {
		manifest, err := s.readTree(patch.Hash)
		if err != nil {
			s.logger.Warn("revert_files: %v", err)
			continue
		}
		for _, path := range patch.Files {
			blob, existed := manifest[path]
			if !existed {
				if err := os.Remove(filepath.Join(s.workDir, path)); err != nil && !os.IsNotExist(err) {
					s.logger.Warn("revert_files remove %s: %v", path, err)
					continue
				}
				reverted[path] = true
				continue
			}
			if err := s.restoreFile(path, blob); err != nil {
				s.logger.Warn("revert_files restore %s: %v", path, err)
				continue
			}
			reverted[path] = true
		}
	}
	return reverted
}

// Cleanup drops all shadow state for this workspace.
func (s *Store) Cleanup() bool {
	if err := os.RemoveAll(s.shadowDir); err != nil {
		s.logger.Warn("snapshot cleanup: %v", err)
		return false
	}
	return true
}

// WorkDir returns the tracked workspace root.
func (s *Store) WorkDir() string {
	return s.workDir
}

func (s *Store) scan() (map[string]string, error) {
	manifest := map[string]string{}
	err := filepath.WalkDir(s.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are not snapshot failures
		}
		if d.IsDir() {
			if path != s.workDir && (skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".git")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.workDir, path)
		if err != nil {
			return nil
		}
		blob, err := s.stageBlob(path)
		if err != nil {
			return nil
		}
		manifest[filepath.ToSlash(rel)] = blob
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func (s *Store) stageBlob(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	dst := s.blobPath(hash)
	if _, err := os.Stat(dst); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", err
	}
	return hash, nil
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.shadowDir, "objects", hash[:2], hash[2:])
}

func (s *Store) treePath(hash string) string {
	return filepath.Join(s.shadowDir, "trees", hash+".json")
}

func (s *Store) writeTree(manifest map[string]string) (string, error) {
	paths := make([]string, 0, len(manifest))
	for path := range manifest {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var buf bytes.Buffer
	for _, path := range paths {
		fmt.Fprintf(&buf, "%s\x00%s\n", path, manifest[path])
	}
	sum := sha256.Sum256(buf.Bytes())
	hash := hex.EncodeToString(sum[:])

	dst := s.treePath(hash)
	if _, err := os.Stat(dst); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	data, err := jsonx.Marshal(manifest)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return hash, nil
}

func (s *Store) readTree(hash string) (map[string]string, error) {
	if hash == Sentinel {
		return nil, fmt.Errorf("no snapshot recorded")
	}
	data, err := os.ReadFile(s.treePath(hash))
	if err != nil {
		return nil, fmt.Errorf("unknown snapshot %s", hash)
	}
	var manifest map[string]string
	if err := jsonx.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("corrupt snapshot %s: %w", hash, err)
	}
	return manifest, nil
}

func (s *Store) readBlob(hash string) ([]byte, error) {
	return os.ReadFile(s.blobPath(hash))
}

func (s *Store) restoreFile(relPath, blob string) error {
	data, err := s.readBlob(blob)
	if err != nil {
		return fmt.Errorf("missing blob %s: %w", blob, err)
	}
	dst := filepath.Join(s.workDir, relPath)
	if current, err := os.ReadFile(dst); err == nil && bytes.Equal(current, data) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
