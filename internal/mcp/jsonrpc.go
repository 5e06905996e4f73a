// Package mcp implements Model Context Protocol clients over stdio,
// aggregation of their tools into the agent registry, and a sandboxed
// code-execution bridge that batches many MCP calls in one tool turn.
package mcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
)

// JSON-RPC 2.0 specification: https://www.jsonrpc.org/specification

const jsonrpcVersion = "2.0"

type request struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      any            `json:"id,omitempty"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// idGenerator issues unique request ids. MCP servers echo them back as
// strings or numbers; idKey normalizes both to one pending-table key.
type idGenerator struct {
	counter atomic.Int64
}

func (g *idGenerator) next() string {
	return strconv.FormatInt(g.counter.Add(1), 10)
}

// idKey folds the id shapes JSON produces (string, float64) into a string
// key so a response can always find its pending call.
func idKey(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func newRequest(id, method string, params map[string]any) *request {
	return &request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}
}

func newNotification(method string, params map[string]any) *request {
	return &request{JSONRPC: jsonrpcVersion, Method: method, Params: params}
}

// marshalLine encodes one message with the trailing newline the stdio
// transport delimits frames with.
func marshalLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func parseResponse(data []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC frame: %w", err)
	}
	if resp.JSONRPC != jsonrpcVersion {
		return nil, fmt.Errorf("unexpected JSON-RPC version %q", resp.JSONRPC)
	}
	return &resp, nil
}
