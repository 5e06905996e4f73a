package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccumulatorAssemblesFragmentedArguments(t *testing.T) {
	acc := newCallAccumulator()
	acc.start(0, "call_1", "grep")
	acc.appendArgs(0, `{"pattern":`)
	acc.appendArgs(0, `"needle"}`)

	call := acc.finish(0)
	require.NotNil(t, call)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "grep", call.Name)
	assert.Equal(t, "needle", call.Arguments["pattern"])

	// A second finish for the same index is a no-op.
	assert.Nil(t, acc.finish(0))
}

func TestAccumulatorFinalizePreservesEmissionOrder(t *testing.T) {
	acc := newCallAccumulator()
	acc.start(2, "b", "second")
	acc.start(0, "a", "first")

	calls := acc.finalize()
	require.Len(t, calls, 2)
	assert.Equal(t, "second", calls[0].Name)
	assert.Equal(t, "first", calls[1].Name)
}

func TestAccumulatorFinalizeSkipsFinished(t *testing.T) {
	acc := newCallAccumulator()
	acc.start(0, "a", "one")
	acc.start(1, "b", "two")
	require.NotNil(t, acc.finish(0))

	calls := acc.finalize()
	require.Len(t, calls, 1)
	assert.Equal(t, "two", calls[0].Name)
}

func TestAccumulatorGeneratesMissingIDs(t *testing.T) {
	acc := newCallAccumulator()
	acc.appendArgs(3, `{}`)
	calls := acc.finalize()
	require.Len(t, calls, 1)
	assert.NotEmpty(t, calls[0].ID)
}

func TestAccumulatorRepairsMalformedArguments(t *testing.T) {
	acc := newCallAccumulator()
	acc.start(0, "c", "edit")
	acc.appendArgs(0, `{"path": "a.go",}`) // trailing comma

	call := acc.finish(0)
	require.NotNil(t, call)
	assert.Equal(t, "a.go", call.Arguments["path"])
}
