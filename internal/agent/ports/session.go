package ports

import (
	"context"
	"time"
)

// DefaultSessionTitle is the placeholder before auto-generation runs.
const DefaultSessionTitle = "New session"

// Todo is one entry of the session-scoped todo list.
type Todo struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	Status    string    `json:"status"` // pending, in_progress, done, cancelled
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session is a persisted, ordered conversation with tool metadata.
type Session struct {
	ID             string         `json:"id"`
	WorkDir        string         `json:"work_dir"`
	Title          string         `json:"title"`
	TitleGenerated bool           `json:"title_generated"`
	Messages       []Message      `json:"messages"`
	Todos          []Todo         `json:"todos,omitempty"`
	Usage          TokenUsage     `json:"usage,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SessionStore persists sessions. Implementations serialize saves per
// session id so concurrent writers cannot interleave partial state.
type SessionStore interface {
	Create(ctx context.Context, workDir string) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, sessionID string) error

	// AddMessage appends one message and saves atomically. Adding the first
	// user message triggers title generation when the title is still the
	// default.
	AddMessage(ctx context.Context, sessionID string, msg Message) error

	// GetMessages returns the LLM-visible subsequence: tool-role messages
	// are omitted, and assistant messages whose only purpose was carrying
	// now-satisfied tool calls are omitted.
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)
}

// TitleProvider produces a short human title from the first user message.
// A bounded LLM call or a heuristic both satisfy it.
type TitleProvider interface {
	Title(ctx context.Context, firstUserMessage string) (string, error)
}
