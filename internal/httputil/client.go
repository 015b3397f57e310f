// Package httputil holds the JSON response helpers of the API and the client
// used to query a running tracker API.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/R3E-Network/jamef_tracker/internal/tracking"
)

// =============================================================================
// Tracker Client
// =============================================================================

// Client queries a remote tracker API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
}

// ClientConfig configures the client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a new tracker API client. Scrapes are slow, so the
// default timeout is generous.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

// Get performs a GET request, retrying when the server is busy (503) or
// rate limiting (429).
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.getWithRetry(ctx, path, 0)
}

func (c *Client) getWithRetry(ctx context.Context, path string, attempt int) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	retryable := resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests
	if retryable && attempt < c.maxRetries {
		resp.Body.Close()
		select {
		case <-time.After(c.retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.getWithRetry(ctx, path, attempt+1)
	}

	return resp, nil
}

// Track calls GET /rastrear/{nf}. An empty cnpj lets the server apply its
// default.
func (c *Client) Track(ctx context.Context, nf, cnpj string) (*tracking.Result, error) {
	path := "/rastrear/" + url.PathEscape(nf)
	if cnpj != "" {
		path += "?" + url.Values{"cnpj": {cnpj}}.Encode()
	}

	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	var result tracking.Result
	if err := DecodeResponse(resp, &result); err != nil {
		return nil, err
	}
	result.Finalize()
	return &result, nil
}

// APIError is returned by DecodeResponse for non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("request failed with status %d (%s): %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Detail)
}

// DecodeResponse decodes a JSON response into the target struct.
func DecodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, truncated, err := ReadAllWithLimit(resp.Body, 64<<10)
		if err != nil {
			return fmt.Errorf("read error response body: %w", err)
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb ErrorBody
		if json.Unmarshal(body, &eb) == nil && eb.Detail != "" {
			apiErr.Code = eb.Code
			apiErr.Detail = eb.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(body))
			if truncated {
				apiErr.Detail += "...(truncated)"
			}
		}
		return apiErr
	}

	if target == nil {
		if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 8<<20)); err != nil {
			return fmt.Errorf("discard response body: %w", err)
		}
		return nil
	}

	body, err := ReadAllStrict(resp.Body, 8<<20)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// ErrBodyTooLarge is returned by ReadAllStrict when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("response body too large")

// ReadAllWithLimit reads at most limit bytes and reports whether more were
// available.
func ReadAllWithLimit(r io.Reader, limit int64) ([]byte, bool, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if n > limit {
		return buf.Bytes()[:limit], true, nil
	}
	return buf.Bytes(), false, nil
}

// ReadAllStrict reads the whole body, failing when it exceeds limit.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	body, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}
