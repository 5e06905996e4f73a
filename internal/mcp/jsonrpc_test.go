package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGeneratorIsSequential(t *testing.T) {
	var gen idGenerator
	assert.Equal(t, "1", gen.next())
	assert.Equal(t, "2", gen.next())
}

func TestIDKeyFoldsShapes(t *testing.T) {
	assert.Equal(t, "7", idKey("7"))
	assert.Equal(t, "7", idKey(float64(7)))
	assert.Equal(t, "7", idKey(int64(7)))
}

func TestMarshalLineIsNewlineDelimited(t *testing.T) {
	data, err := marshalLine(newRequest("1", "tools/list", nil))
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), data[len(data)-1])

	var req request
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, "tools/list", req.Method)
}

func TestNotificationHasNoID(t *testing.T) {
	data, err := marshalLine(newNotification("notifications/initialized", nil))
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
}

func TestParseResponse(t *testing.T) {
	resp, err := parseResponse([]byte(`{"jsonrpc":"2.0","id":"3","result":{"ok":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "3", idKey(resp.ID))
	assert.NotNil(t, resp.Result)

	_, err = parseResponse([]byte(`{"jsonrpc":"1.0","id":"3"}`))
	assert.Error(t, err)

	_, err = parseResponse([]byte(`garbage`))
	assert.Error(t, err)
}

func TestRPCErrorRendering(t *testing.T) {
	err := &rpcError{Code: -32601, Message: "method not found"}
	assert.Contains(t, err.Error(), "-32601")
	assert.Contains(t, err.Error(), "method not found")
}

func TestToolCallResultTextFlattening(t *testing.T) {
	result := ToolCallResult{Content: []ContentBlock{
		{Type: "text", Text: "first"},
		{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first\nsecond", result.Text())
}
