// Package httpclient talks to the grading API and decodes its response envelope.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"autograde/internal/cli/command"
	appErr "autograde/pkg/errors"
)

const maxResponseBytes = 8 << 20

// Envelope is the grading API's response wrapper.
type Envelope struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data,omitempty"`
	Details json.RawMessage  `json:"details,omitempty"`
	TraceID string           `json:"traceId,omitempty"`
}

// Response is one completed call.
type Response struct {
	StatusCode int
	Duration   time.Duration
	Raw        []byte
	// Envelope is nil when the body was not an API envelope, e.g. a proxy error page.
	Envelope *Envelope
}

// Err returns the API error carried by the response, or nil on success.
func (r Response) Err() error {
	if r.Envelope != nil {
		if r.Envelope.Code == appErr.Success && r.StatusCode < http.StatusBadRequest {
			return nil
		}
		err := appErr.New(r.Envelope.Code)
		if r.Envelope.Message != "" {
			err = err.WithMessage(r.Envelope.Message)
		}
		if r.Envelope.TraceID != "" {
			err = err.WithDetail("traceId", r.Envelope.TraceID)
		}
		return err
	}
	if r.StatusCode >= http.StatusBadRequest {
		return appErr.Newf(codeForStatus(r.StatusCode), "HTTP %d: %s", r.StatusCode, strings.TrimSpace(string(r.Raw)))
	}
	return nil
}

func codeForStatus(status int) appErr.ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return appErr.Unauthorized
	case http.StatusForbidden:
		return appErr.Forbidden
	case http.StatusNotFound:
		return appErr.NotFound
	case http.StatusTooManyRequests:
		return appErr.TooManyRequests
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return appErr.ServiceUnavailable
	case http.StatusGatewayTimeout:
		return appErr.Timeout
	}
	if status < http.StatusInternalServerError {
		return appErr.InvalidParams
	}
	return appErr.InternalServerError
}

// Client sends grading commands with the session's bearer token.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	http    *http.Client
	token   func() string
}

// New creates a client. token is consulted on every request and may return "".
func New(baseURL string, timeout time.Duration, token func() string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   token,
	}
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.mu.Unlock()
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	c.http = &http.Client{Timeout: timeout}
	c.mu.Unlock()
}

// Do sends req. A transport failure is an error; API failures are reported through Response.Err.
func (c *Client) Do(ctx context.Context, req command.Request) (Response, error) {
	c.mu.RLock()
	baseURL, client := c.baseURL, c.http
	c.mu.RUnlock()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, baseURL+req.Path, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request failed: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{Duration: time.Since(start)}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	out := Response{StatusCode: resp.StatusCode, Duration: time.Since(start), Raw: raw}
	if err != nil {
		return out, fmt.Errorf("read response body failed: %w", err)
	}
	var env Envelope
	if json.Unmarshal(raw, &env) == nil && env.Code != 0 {
		out.Envelope = &env
	}
	return out, nil
}
