// Package jsonx wraps encoding/json with helpers for LLM-produced payloads.
package jsonx

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Marshal is a thin wrapper kept for symmetry with Unmarshal.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes strict JSON.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// DecodeArguments parses a tool-call argument payload. LLMs routinely emit
// almost-JSON (trailing commas, single quotes, unquoted keys); a failed
// strict parse goes through jsonrepair before giving up. A payload that
// still cannot be parsed degrades to an empty map so the loop can surface a
// structured error to the model instead of aborting the turn.
func DecodeArguments(raw string) map[string]any {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		return args
	}

	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return map[string]any{}
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return map[string]any{}
	}
	if args == nil {
		return map[string]any{}
	}
	return args
}

// MustMarshalString marshals v, returning "{}" on failure. Used where the
// output feeds a log line or a prompt and an error would add nothing.
func MustMarshalString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
