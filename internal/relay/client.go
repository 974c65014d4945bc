package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sender delivers one message through a sending server. Implemented
// by Client; the dispatch worker takes the interface so tests can
// substitute a fake.
type Sender interface {
	Send(ctx context.Context, req *SendRequest) (*SendResponse, error)
}

// SendRequest is one message handed to a sending server
type SendRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Password string `json:"password,omitempty"`
}

// SendResponse is the sending server's acknowledgement
type SendResponse struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
	Queued   string `json:"queued,omitempty"`
}

// HealthResponse is the sending server's health report
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// ErrorResponse is the sending server's error shape
type ErrorResponse struct {
	Error string `json:"error"`
}

// Client is an HTTP client to one sending server. The server is an
// opaque collaborator: it accepts messages over HTTP and handles
// delivery itself.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for one sending server
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// request performs an HTTP request to the sending server
func (c *Client) request(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
			return fmt.Errorf("relay error: HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("relay error: %s", errResp.Error)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Send delivers one message
func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.request(ctx, http.MethodPost, "/api/v1/send", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the sending server
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.request(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FormatFrom renders the display-name sender form used on the wire
func FormatFrom(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%q <%s>", name, email)
}
