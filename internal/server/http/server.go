// Package http exposes the agent over a small gin API: a streaming chat
// endpoint, session management, and a health probe.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"codesm/internal/agent"
	"codesm/internal/agent/ports"
	"codesm/internal/shared/logging"
)

// Server wraps one agent behind HTTP.
type Server struct {
	agent  *agent.Agent
	logger logging.Logger
	http   *http.Server
}

// New builds the server for addr.
func New(a *agent.Agent, addr string, logger logging.Logger) *Server {
	logger = logging.OrNop(logger)
	s := &Server{agent: a, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/healthz", s.handleHealth)
	v1 := router.Group("/v1")
	{
		v1.POST("/chat", s.handleChat)
		v1.GET("/sessions", s.handleListSessions)
		v1.DELETE("/sessions/:id", s.handleDeleteSession)
	}

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the listener fails or Shutdown runs.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http: listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"session": s.agent.SessionID(),
	})
}

type chatRequest struct {
	Message string `json:"message" binding:"required"`
}

// chatEvent is one SSE payload. Type mirrors the chunk kinds.
type chatEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Tool    string `json:"tool,omitempty"`
	CallID  string `json:"call_id,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleChat streams the turn as server-sent events and ends with a
// "done" event. Client disconnect cancels the turn.
func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stream, err := s.agent.Chat(c.Request.Context(), req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		chunk, open := <-stream
		if !open {
			c.SSEvent("message", chatEvent{Type: "done"})
			return false
		}
		c.SSEvent("message", toEvent(chunk))
		return true
	})
}

func toEvent(chunk ports.StreamChunk) chatEvent {
	switch chunk.Kind {
	case ports.ChunkText:
		return chatEvent{Type: "text", Text: chunk.Text}
	case ports.ChunkToolCall:
		event := chatEvent{Type: "tool_call"}
		if chunk.ToolCall != nil {
			event.Tool = chunk.ToolCall.Name
			event.CallID = chunk.ToolCall.ID
		}
		return event
	case ports.ChunkToolCallDelta:
		event := chatEvent{Type: "tool_call_delta"}
		if chunk.Delta != nil {
			event.Tool = chunk.Delta.Name
			event.CallID = chunk.Delta.ID
		}
		return event
	case ports.ChunkToolResult:
		event := chatEvent{Type: "tool_result"}
		if chunk.Result != nil {
			event.Tool = chunk.Result.Name
			event.CallID = chunk.Result.CallID
			event.Content = chunk.Result.Content
		}
		return event
	case ports.ChunkError:
		return chatEvent{Type: "error", Error: chunk.Err}
	default:
		return chatEvent{Type: string(chunk.Kind)}
	}
}

func (s *Server) handleListSessions(c *gin.Context) {
	ids, err := s.agent.Sessions().List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": ids, "active": s.agent.SessionID()})
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	if id == s.agent.SessionID() {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete the active session"})
		return
	}
	if err := s.agent.Sessions().Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
