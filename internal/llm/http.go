package llm

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxErrorBody = 16 * 1024

// newStreamClient bounds dialing and response headers but leaves the body
// read open-ended: a streaming turn runs as long as its request context
// allows, not as long as a whole-request timeout.
func newStreamClient(headerTimeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// apiError carries a vendor HTTP failure into the chunk stream as prose.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("provider returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.Status, body)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
	return &apiError{Status: resp.StatusCode, Body: string(body)}
}

func wrapRequestError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("provider request timed out: %w", err)
	}
	return fmt.Errorf("provider request failed: %w", err)
}

// sseEvent is one server-sent event.
type sseEvent struct {
	Event string
	Data  string
}

// readSSE delivers events until the stream ends, "[DONE]" arrives, or ctx is
// cancelled. The handler runs on the reading goroutine's caller.
func readSSE(ctx context.Context, body io.Reader, handle func(sseEvent) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event sseEvent
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		switch {
		case line == "":
			if event.Data != "" {
				if strings.TrimSpace(event.Data) == "[DONE]" {
					return nil
				}
				if err := handle(event); err != nil {
					return err
				}
			}
			event = sseEvent{}
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			data = strings.TrimPrefix(data, " ")
			if event.Data != "" {
				event.Data += "\n"
			}
			event.Data += data
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read stream: %w", err)
	}
	// A final event without trailing blank line still counts.
	if event.Data != "" && strings.TrimSpace(event.Data) != "[DONE]" {
		return handle(event)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, wrapRequestError(err)
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}
