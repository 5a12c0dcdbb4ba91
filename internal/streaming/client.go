package streaming

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/stratagem/pkg/schema"
)

// Client consumes a server-sent-event stream of typed records. Each frame's
// event name becomes the record type and its data lines become the payload.
type Client struct {
	endpoint  string
	authToken string
	client    *http.Client
}

// NewClient creates a stream client. The HTTP client carries no overall
// timeout: streams are long-lived and are ended by context cancellation.
func NewClient(endpoint, authToken string) *Client {
	return &Client{
		endpoint:  endpoint,
		authToken: authToken,
		client:    &http.Client{},
	}
}

// Stream connects and forwards every complete frame to out, in arrival
// order. It blocks until the stream ends or ctx is cancelled. The out
// channel is not closed; the caller owns its lifecycle.
func (c *Client) Stream(ctx context.Context, sessionID string, out chan<- schema.StreamRecord) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return schema.NewError(schema.ErrCodeTransport, "failed to build stream request").WithCause(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if sessionID != "" {
		req.Header.Set("X-Session-ID", sessionID)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return schema.NewError(schema.ErrCodeTransport, "stream connection failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return schema.NewErrorf(schema.ErrCodeTransport, "stream endpoint returned %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var eventType string
	var data []string

	flush := func() {
		if eventType == "" && len(data) == 0 {
			return
		}
		rec := schema.StreamRecord{
			Type: eventType,
			Data: strings.Join(data, "\n"),
		}
		select {
		case out <- rec:
		case <-ctx.Done():
		}
		eventType = ""
		data = nil
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		}
	}
	flush()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := scanner.Err(); err != nil {
		return schema.NewError(schema.ErrCodeTransport, "stream read failed").WithCause(err)
	}
	return nil
}

// Healthy probes the endpoint with a short HEAD request.
func (c *Client) Healthy(ctx context.Context) bool {
	probe, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probe, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}
