package llm

import (
	"strings"

	"github.com/google/uuid"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/jsonx"
)

// callAccumulator gathers streamed tool-call fragments keyed by the
// vendor's block index, preserving emission order. Vendors that end the
// stream without a terminating per-call event still get their pending calls
// finalized, per the provider contract.
type callAccumulator struct {
	order []int
	calls map[int]*pendingCall
}

type pendingCall struct {
	id   string
	name string
	args strings.Builder
	done bool
}

func newCallAccumulator() *callAccumulator {
	return &callAccumulator{calls: map[int]*pendingCall{}}
}

func (a *callAccumulator) start(index int, id, name string) {
	if _, ok := a.calls[index]; !ok {
		a.order = append(a.order, index)
		a.calls[index] = &pendingCall{}
	}
	call := a.calls[index]
	if id != "" {
		call.id = id
	}
	if name != "" {
		call.name = name
	}
}

func (a *callAccumulator) appendArgs(index int, fragment string) *ports.ToolCallDelta {
	call, ok := a.calls[index]
	if !ok {
		a.start(index, "", "")
		call = a.calls[index]
	}
	call.args.WriteString(fragment)
	return &ports.ToolCallDelta{ID: call.id, Name: call.name, PartialArgs: fragment}
}

// finish completes one call and returns it, or nil when the index is
// unknown or already finished.
func (a *callAccumulator) finish(index int) *ports.ToolCall {
	call, ok := a.calls[index]
	if !ok || call.done {
		return nil
	}
	call.done = true
	return call.toCall()
}

// finalize completes every call that has not been individually finished, in
// emission order.
func (a *callAccumulator) finalize() []ports.ToolCall {
	var out []ports.ToolCall
	for _, index := range a.order {
		call := a.calls[index]
		if call.done {
			continue
		}
		call.done = true
		out = append(out, *call.toCall())
	}
	return out
}

func (p *pendingCall) toCall() *ports.ToolCall {
	id := p.id
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return &ports.ToolCall{
		ID:        id,
		Name:      p.name,
		Arguments: jsonx.DecodeArguments(p.args.String()),
	}
}
