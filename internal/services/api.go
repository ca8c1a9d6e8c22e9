package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/tunedeck/internal/shared"
)

// maxRawBody caps how much of a debugging response is kept in memory.
const maxRawBody = 10 << 20

// APIResponse is a raw backend response, used by the `api` debugging command.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to path and returns the raw response. The bearer
// token is attached when one is stored. Non-2xx statuses are not errors here.
func (c *Client) Get(ctx context.Context, path string) (*APIResponse, error) {
	return c.Raw(ctx, http.MethodGet, path, nil)
}

// Patch sends data as JSON to path and returns the raw response. The backend
// uses PATCH for playlist mutations.
func (c *Client) Patch(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	if data != nil && !json.Valid(data) {
		return nil, fmt.Errorf("%w: request body is not valid JSON", shared.ErrInvalidFlag)
	}
	return c.Raw(ctx, http.MethodPatch, path, data)
}

// Raw performs an arbitrary request. path may carry its own query string.
func (c *Client) Raw(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(ref.Path, ref.Query()), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.anonClient
	if _, ok := c.tokens.Current(); ok {
		client = c.authClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRawBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}
