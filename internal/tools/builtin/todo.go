package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codesm/internal/agent/ports"
)

// todoTool keeps an ordered task list inside the session so plans survive
// compaction and restarts.
type todoTool struct {
	sessions ports.SessionStore
}

func NewTodo(deps Deps) ports.ToolExecutor {
	return &todoTool{sessions: deps.Sessions}
}

func (t *todoTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	tc := ports.ToolContextFrom(ctx)
	if t.sessions == nil || tc.SessionID == "" {
		return failf(call.ID, "todos need an active session"), nil
	}
	session, err := t.sessions.Get(ctx, tc.SessionID)
	if err != nil {
		return failf(call.ID, "load session: %v", err), nil
	}

	action := argString(call.Arguments, "action")
	now := time.Now()
	changed := true

	switch action {
	case "add":
		text := argString(call.Arguments, "text")
		if text == "" {
			return failf(call.ID, "add needs 'text'"), nil
		}
		session.Todos = append(session.Todos, ports.Todo{
			ID:        nextTodoID(session.Todos),
			Text:      text,
			Status:    "pending",
			CreatedAt: now,
			UpdatedAt: now,
		})
	case "list":
		changed = false
	case "start", "done", "cancel":
		todo := findTodo(session.Todos, argInt(call.Arguments, "id", 0))
		if todo == nil {
			return failf(call.ID, "no todo with that id"), nil
		}
		todo.Status = map[string]string{"start": "in_progress", "done": "done", "cancel": "cancelled"}[action]
		todo.UpdatedAt = now
	case "update":
		todo := findTodo(session.Todos, argInt(call.Arguments, "id", 0))
		if todo == nil {
			return failf(call.ID, "no todo with that id"), nil
		}
		text := argString(call.Arguments, "text")
		if text == "" {
			return failf(call.ID, "update needs 'text'"), nil
		}
		todo.Text = text
		todo.UpdatedAt = now
	case "delete":
		id := argInt(call.Arguments, "id", 0)
		kept := session.Todos[:0]
		found := false
		for _, todo := range session.Todos {
			if todo.ID == id {
				found = true
				continue
			}
			kept = append(kept, todo)
		}
		if !found {
			return failf(call.ID, "no todo with that id"), nil
		}
		session.Todos = kept
	case "clear_done":
		kept := session.Todos[:0]
		for _, todo := range session.Todos {
			if todo.Status != "done" && todo.Status != "cancelled" {
				kept = append(kept, todo)
			}
		}
		session.Todos = kept
	default:
		return failf(call.ID, "unknown action %q", action), nil
	}

	if changed {
		if err := t.sessions.Save(ctx, session); err != nil {
			return failf(call.ID, "save session: %v", err), nil
		}
	}
	return ok(call.ID, renderTodos(session.Todos)), nil
}

func nextTodoID(todos []ports.Todo) int {
	max := 0
	for _, todo := range todos {
		if todo.ID > max {
			max = todo.ID
		}
	}
	return max + 1
}

func findTodo(todos []ports.Todo, id int) *ports.Todo {
	for i := range todos {
		if todos[i].ID == id {
			return &todos[i]
		}
	}
	return nil
}

func renderTodos(todos []ports.Todo) string {
	if len(todos) == 0 {
		return "No todos"
	}
	marks := map[string]string{
		"pending": "[ ]", "in_progress": "[>]", "done": "[x]", "cancelled": "[-]",
	}
	var b strings.Builder
	for _, todo := range todos {
		mark, okMark := marks[todo.Status]
		if !okMark {
			mark = "[?]"
		}
		fmt.Fprintf(&b, "%s #%d %s\n", mark, todo.ID, todo.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *todoTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "todo",
		Description: "Maintain the session todo list. Use it to plan multi-step work and track progress.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"action": {Type: "string", Description: "Operation", Enum: []string{
					"add", "list", "start", "done", "cancel", "update", "delete", "clear_done",
				}},
				"text": {Type: "string", Description: "Todo text for add/update"},
				"id":   {Type: "integer", Description: "Todo id for start/done/cancel/update/delete"},
			},
			Required: []string{"action"},
		},
	}
}

func (t *todoTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "todo", Version: "1.0.0", Category: "session"}
}
