package counts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rendis/stratagem/pkg/schema"
)

// HTTPFetcher posts a canonical plan to a count endpoint and decodes the
// per-step results.
type HTTPFetcher struct {
	endpoint  string
	authToken string
	client    *http.Client
}

// NewHTTPFetcher creates a fetcher against the given endpoint. An empty auth
// token omits the Authorization header.
func NewHTTPFetcher(endpoint, authToken string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		endpoint:  endpoint,
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

type countRequest struct {
	Plan *schema.PlanNode `json:"plan"`
}

type countResponse struct {
	Counts map[string]countEntry `json:"counts"`
}

type countEntry struct {
	Known bool  `json:"known"`
	Value int64 `json:"value"`
}

// FetchCounts implements Fetcher.
func (f *HTTPFetcher) FetchCounts(ctx context.Context, plan *schema.PlanNode) (map[string]Result, error) {
	body, err := json.Marshal(countRequest{Plan: plan})
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTransport, "failed to encode count request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTransport, "failed to build count request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.authToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeTransport, "count request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, schema.NewErrorf(schema.ErrCodeTransport,
			"count endpoint returned %d", resp.StatusCode).
			WithDetails(map[string]any{"body": string(payload)})
	}

	var decoded countResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "failed to decode count response").WithCause(err)
	}

	out := make(map[string]Result, len(decoded.Counts))
	for id, e := range decoded.Counts {
		out[id] = Result{Known: e.Known, Value: e.Value}
	}
	return out, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)

// String describes the fetcher target for logs.
func (f *HTTPFetcher) String() string {
	return fmt.Sprintf("http-counts(%s)", f.endpoint)
}
