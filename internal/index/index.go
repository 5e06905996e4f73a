// Package index provides the semantic code-search collaborator backed by
// a local chromem vector store with OpenAI embeddings.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"

	"codesm/internal/shared/logging"
)

// Searcher answers semantic queries over the workspace.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
}

// Result is one search hit.
type Result struct {
	Path    string
	Snippet string
	Score   float32
}

const (
	chunkLines  = 80
	maxFileSize = 256 * 1024
)

var indexedExts = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rs": true, ".c": true, ".cc": true, ".cpp": true,
	".h": true, ".hpp": true, ".java": true, ".rb": true, ".md": true,
	".yaml": true, ".yml": true, ".toml": true, ".json": true, ".sh": true,
}

// Semantic is a persistent per-workspace vector index. Construction
// requires an embedding key; callers without one keep a nil Searcher and
// the codesearch tool reports the index as unavailable.
type Semantic struct {
	workDir    string
	collection *chromem.Collection
	logger     logging.Logger
}

// Open loads or creates the index for one workspace under the user cache.
func Open(workDir, openAIKey string, logger logging.Logger) (*Semantic, error) {
	logger = logging.OrNop(logger)
	if openAIKey == "" {
		return nil, fmt.Errorf("semantic index needs an OpenAI API key for embeddings")
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(workDir))
	dir := filepath.Join(cache, "codesm", "index", hex.EncodeToString(sum[:4]))

	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	embed := chromem.NewEmbeddingFuncOpenAI(openAIKey, chromem.EmbeddingModelOpenAI3Small)
	collection, err := db.GetOrCreateCollection("workspace", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open index collection: %w", err)
	}
	return &Semantic{workDir: workDir, collection: collection, logger: logger}, nil
}

// Reindex walks the workspace and (re)embeds every indexable file in
// fixed-size line chunks. Existing documents with the same ids are
// replaced.
func (s *Semantic) Reindex(ctx context.Context) (int, error) {
	var docs []chromem.Document
	err := filepath.WalkDir(s.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if strings.HasPrefix(name, ".") && path != s.workDir {
				return filepath.SkipDir
			}
			if name == "node_modules" || name == "vendor" || name == "__pycache__" {
				return filepath.SkipDir
			}
			return nil
		}
		if !indexable(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(s.workDir, path)
		for i, chunk := range chunkText(string(content)) {
			docs = append(docs, chromem.Document{
				ID:       rel + "#" + strconv.Itoa(i),
				Metadata: map[string]string{"path": rel, "chunk": strconv.Itoa(i)},
				Content:  chunk,
			})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := s.collection.AddDocuments(ctx, docs, 4); err != nil {
		return 0, fmt.Errorf("embed documents: %w", err)
	}
	s.logger.Info("index: embedded %d chunks from %s", len(docs), s.workDir)
	return len(docs), nil
}

// Search returns the topK most similar chunks.
func (s *Semantic) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	count := s.collection.Count()
	if count == 0 {
		return nil, fmt.Errorf("index is empty; run a reindex first")
	}
	if topK <= 0 {
		topK = 5
	}
	if topK > count {
		topK = count
	}
	hits, err := s.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(hits))
	for _, hit := range hits {
		out = append(out, Result{
			Path:    hit.Metadata["path"],
			Snippet: hit.Content,
			Score:   hit.Similarity,
		})
	}
	return out, nil
}

func indexable(path string) bool {
	return indexedExts[filepath.Ext(path)]
}

func chunkText(content string) []string {
	lines := strings.Split(content, "\n")
	var chunks []string
	for start := 0; start < len(lines); start += chunkLines {
		end := start + chunkLines
		if end > len(lines) {
			end = len(lines)
		}
		chunk := strings.TrimSpace(strings.Join(lines[start:end], "\n"))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}
