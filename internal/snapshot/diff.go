package snapshot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Diff returns a unified-diff rendering of everything that changed between
// fromHash and the current working tree.
func (s *Store) Diff(fromHash string) (string, error) {
	diffs, err := s.DiffFull(fromHash, "")
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, fd := range diffs {
		out.WriteString(UnifiedDiff(fd))
	}
	return out.String(), nil
}

// DiffFull returns per-file before/after text and numstat counts between two
// snapshots. An empty toHash means the current working tree.
func (s *Store) DiffFull(fromHash, toHash string) ([]FileDiff, error) {
	old, err := s.readTree(fromHash)
	if err != nil {
		return nil, err
	}

	var current map[string]string
	if toHash == "" {
		current, err = s.scan()
	} else {
		current, err = s.readTree(toHash)
	}
	if err != nil {
		return nil, err
	}

	paths := map[string]bool{}
	for path := range old {
		paths[path] = true
	}
	for path := range current {
		paths[path] = true
	}
	sorted := make([]string, 0, len(paths))
	for path := range paths {
		sorted = append(sorted, path)
	}
	sort.Strings(sorted)

	var result []FileDiff
	for _, path := range sorted {
		oldBlob, inOld := old[path]
		newBlob, inNew := current[path]
		if inOld && inNew && oldBlob == newBlob {
			continue
		}

		var before, after []byte
		if inOld {
			before, _ = s.readBlob(oldBlob)
		}
		if inNew {
			if toHash == "" {
				after, _ = os.ReadFile(filepath.Join(s.workDir, path))
			} else {
				after, _ = s.readBlob(newBlob)
			}
		}

		fd := FileDiff{Path: path}
		if isBinary(before) || isBinary(after) {
			fd.Binary = true
			result = append(result, fd)
			continue
		}
		fd.Before = string(before)
		fd.After = string(after)
		fd.Additions, fd.Deletions = numstat(fd.Before, fd.After)
		result = append(result, fd)
	}
	return result, nil
}

// Numstat counts added and deleted lines between two text contents.
func Numstat(before, after string) (additions, deletions int) {
	return numstat(before, after)
}

// UnifiedDiff renders one FileDiff as unified-diff text.
func UnifiedDiff(fd FileDiff) string {
	var out strings.Builder
	fmt.Fprintf(&out, "--- a/%s\n+++ b/%s\n", fd.Path, fd.Path)
	if fd.Binary {
		out.WriteString("Binary files differ\n")
		return out.String()
	}

	oldLines, newLines := splitLines(fd.Before), splitLines(fd.After)
	fmt.Fprintf(&out, "@@ -1,%d +1,%d @@\n", len(oldLines), len(newLines))
	for _, d := range lineDiffs(fd.Before, fd.After) {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		}
		for _, line := range splitLines(d.Text) {
			out.WriteString(prefix)
			out.WriteString(line)
			out.WriteByte('\n')
		}
	}
	return out.String()
}

func lineDiffs(before, after string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

func numstat(before, after string) (additions, deletions int) {
	for _, d := range lineDiffs(before, after) {
		n := len(splitLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += n
		case diffmatchpatch.DiffDelete:
			deletions += n
		}
	}
	return additions, deletions
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	trimmed := strings.TrimSuffix(text, "\n")
	return strings.Split(trimmed, "\n")
}

func isBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
