// Package filestore persists sessions as one JSON file per session id.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/jsonx"
	"codesm/internal/shared/logging"
)

const cacheSize = 32

type store struct {
	baseDir string
	logger  logging.Logger
	titles  ports.TitleProvider

	mu    sync.Mutex // serializes saves per store; per-id granularity is not worth the map
	cache *lru.Cache[string, *ports.Session]
}

// New returns a file-backed session store rooted at baseDir. titles may be
// nil to disable auto-titling.
func New(baseDir string, titles ports.TitleProvider, logger logging.Logger) (ports.SessionStore, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	cache, err := lru.New[string, *ports.Session](cacheSize)
	if err != nil {
		return nil, err
	}
	return &store{
		baseDir: baseDir,
		logger:  logging.OrNop(logger),
		titles:  titles,
		cache:   cache,
	}, nil
}

func newSessionID() string {
	return fmt.Sprintf("ses_%d", time.Now().UnixNano())
}

func (s *store) path(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+".json")
}

func (s *store) Create(_ context.Context, workDir string) (*ports.Session, error) {
	abs, err := filepath.Abs(workDir)
	if err != nil {
		abs = workDir
	}
	now := time.Now()
	session := &ports.Session{
		ID:        newSessionID(),
		WorkDir:   abs,
		Title:     ports.DefaultSessionTitle,
		Messages:  []ports.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(session); err != nil {
		return nil, err
	}
	s.cache.Add(session.ID, session)
	return session, nil
}

func (s *store) Get(_ context.Context, sessionID string) (*ports.Session, error) {
	if cached, ok := s.cache.Get(sessionID); ok {
		return cached, nil
	}
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	var session ports.Session
	if err := jsonx.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	s.cache.Add(sessionID, &session)
	return &session, nil
}

func (s *store) Save(_ context.Context, session *ports.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session has no id")
	}
	session.UpdatedAt = time.Now()
	if err := s.write(session); err != nil {
		return err
	}
	s.cache.Add(session.ID, session)
	return nil
}

// write saves atomically: temp file in the same directory, then rename.
func (s *store) write(session *ports.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := jsonx.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	dst := s.path(session.ID)
	tmp, err := os.CreateTemp(s.baseDir, session.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("close session file: %w", err)
	}
	if err := os.Rename(name, dst); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

func (s *store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *store) Delete(_ context.Context, sessionID string) error {
	s.cache.Remove(sessionID)
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *store) AddMessage(ctx context.Context, sessionID string, msg ports.Message) error {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	session.Messages = append(session.Messages, msg)

	if msg.Role == "user" && !session.TitleGenerated && firstUserIndex(session.Messages) == len(session.Messages)-1 {
		s.generateTitle(ctx, session, msg.Content)
	}
	return s.Save(ctx, session)
}

// generateTitle is idempotent: once TitleGenerated flips, later calls are
// no-ops. Provider failures keep the default title and are only logged.
func (s *store) generateTitle(ctx context.Context, session *ports.Session, firstUserMessage string) {
	if session.TitleGenerated || s.titles == nil {
		return
	}
	if session.Title != "" && session.Title != ports.DefaultSessionTitle {
		session.TitleGenerated = true
		return
	}
	title, err := s.titles.Title(ctx, firstUserMessage)
	if err != nil {
		s.logger.Warn("title generation failed for %s: %v", session.ID, err)
		return
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	session.Title = title
	session.TitleGenerated = true
}

func (s *store) GetMessages(ctx context.Context, sessionID string) ([]ports.Message, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return VisibleMessages(session.Messages), nil
}

// VisibleMessages returns the subsequence a provider sees on resume:
// tool-role messages are dropped, and assistant messages that existed only
// to carry now-satisfied tool calls are dropped. The orchestrator replays
// tool turns anew from the current request.
func VisibleMessages(messages []ports.Message) []ports.Message {
	visible := make([]ports.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "tool" {
			continue
		}
		if msg.Role == "assistant" && len(msg.ToolCalls) > 0 {
			continue
		}
		visible = append(visible, msg)
	}
	return visible
}

func firstUserIndex(messages []ports.Message) int {
	for i, msg := range messages {
		if msg.Role == "user" {
			return i
		}
	}
	return -1
}
