package lsp

import (
	"bufio"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathToURIRoundTrip(t *testing.T) {
	path := "/home/dev/project/main.go"
	uri := PathToURI(path)
	assert.Equal(t, "file:///home/dev/project/main.go", uri)
	assert.Equal(t, path, URIToPath(uri))
}

func TestPathToURIEscapesSpaces(t *testing.T) {
	uri := PathToURI("/tmp/my project/a.go")
	assert.Equal(t, "file:///tmp/my%20project/a.go", uri)
	assert.Equal(t, "/tmp/my project/a.go", URIToPath(uri))
}

func TestURIToPathNonFileSchemes(t *testing.T) {
	assert.Equal(t, "untitled:Untitled-1", URIToPath("untitled:Untitled-1"))
}

func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

func TestReadFrameParsesContentLength(t *testing.T) {
	body := `{"jsonrpc":"2.0","id":1,"result":null}`
	r := bufio.NewReader(strings.NewReader(frame(body)))

	msg, err := readFrame(r)
	require.NoError(t, err)
	require.NotNil(t, msg.ID)
}

func TestReadFrameSequentialMessages(t *testing.T) {
	first := `{"jsonrpc":"2.0","id":1,"result":null}`
	second := `{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{}}`
	r := bufio.NewReader(strings.NewReader(frame(first) + frame(second)))

	msg, err := readFrame(r)
	require.NoError(t, err)
	assert.NotNil(t, msg.ID)

	msg, err = readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "textDocument/publishDiagnostics", msg.Method)
}

func TestReadFrameMissingLength(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\r\n{}"))
	_, err := readFrame(r)
	assert.Error(t, err)
}

func TestSeverityNames(t *testing.T) {
	assert.Equal(t, "error", severityName(SeverityError))
	assert.Equal(t, "warning", severityName(SeverityWarning))
}
