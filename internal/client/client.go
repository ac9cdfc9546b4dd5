// Package client talks to a running AETHER gateway.
package client

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

	"github.com/gorilla/websocket"
)

// ErrUnauthorized is returned when the gateway rejects the API key.
var ErrUnauthorized = errors.New("unauthorized: check the API key")

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Detail)
}

// Health is the gateway status payload.
type Health struct {
	Status   string `json:"status"`
	System   string `json:"system"`
	Location string `json:"location"`
}

// Result is the outcome of an execution. Status is "success" or "error";
// Message is only set on error.
type Result struct {
	Status    string `json:"status"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	SandboxID string `json:"sandbox_id"`
	Message   string `json:"message"`
}

// OK reports whether the execution succeeded.
func (r *Result) OK() bool { return r.Status == "success" }

// Client is a gateway client.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// New creates a client for the gateway at baseURL.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

type executeRequest struct {
	Code    string `json:"code"`
	Timeout int    `json:"timeout,omitempty"`
}

// Execute runs code in a fresh sandbox. timeout is in seconds; 0 uses the
// gateway default. A failed run is reported in the Result, not as an error.
func (c *Client) Execute(ctx context.Context, code string, timeout int) (*Result, error) {
	var res Result
	if err := c.do(ctx, http.MethodPost, "/v1/execute", executeRequest{Code: code, Timeout: timeout}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Frame is one message of a streamed execution.
type Frame struct {
	Type    string  `json:"type"` // stdout, stderr, result or error
	Content string  `json:"content,omitempty"`
	Result  *Result `json:"result,omitempty"`
}

// Stream runs code over the WebSocket endpoint, calling onOutput for every
// stdout and stderr line as it arrives.
func (c *Client) Stream(ctx context.Context, code string, timeout int, onOutput func(Frame)) (*Result, error) {
	u, err := url.Parse(c.BaseURL + "/v1/execute/stream")
	if err != nil {
		return nil, fmt.Errorf("parsing gateway URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("x-api-key", c.APIKey)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("connecting to %s: %w", u, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(executeRequest{Code: code, Timeout: timeout}); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return nil, fmt.Errorf("reading stream: %w", err)
		}
		switch f.Type {
		case "stdout", "stderr":
			if onOutput != nil {
				onOutput(f)
			}
		case "result":
			if f.Result == nil {
				return nil, errors.New("result frame without result")
			}
			return f.Result, nil
		case "error":
			return nil, &APIError{StatusCode: http.StatusUnprocessableEntity, Detail: f.Content}
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, r)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		var e struct {
			Detail string `json:"detail"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Detail == "" {
			e.Detail = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Detail: e.Detail}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
