// Package orca provides a Go client for the Orca dispatch API.
//
// Orca is a mediator service for sending bulk email (up to 25 recipients
// per send) through a user's own mail-provider credentials, either
// synchronously or as a background job that is polled for progress.
//
// Usage:
//
//	session := orca.Session{Token: "user-token"}
//	client := orca.New("https://orca.example.com", session)
//
//	receipt, err := client.SendBackground(ctx, orca.DispatchRequest{
//	    SenderEmail: "me@gmail.com",
//	    SenderName:  "Me",
//	    AppPassword: "app-password-here",
//	    Recipients:  []string{"a@example.com", "b@example.com"},
//	    Subject:     "Hello",
//	    Template:    "Hi there,\nthis is a test.",
//	}, orca.PriorityHigh)
//
//	watch := client.WatchJob(receipt.JobID, 5*time.Second, func(job *orca.EmailJob, err error) {
//	    ...
//	})
//	defer watch.Stop()
package orca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultPollInterval is the job polling cadence used when no interval
// is given to WatchJob.
const DefaultPollInterval = 5 * time.Second

// Session carries the credentials of one authenticated user. It is
// created at login, passed explicitly into New, and discarded at
// logout; it is never shared through package-level state.
type Session struct {
	Token string
	Email string
	Name  string
}

// Client is an Orca API client bound to one session.
type Client struct {
	baseURL    string
	session    Session
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates an Orca API client.
func New(baseURL string, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: session,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithSession returns a copy of the client bound to another session.
func (c *Client) WithSession(session Session) *Client {
	clone := *c
	clone.session = session
	return &clone
}

// requireSession short-circuits locally before any network call when
// the session has no token.
func (c *Client) requireSession() error {
	if c.session.Token == "" {
		return &AuthError{Message: msgAuthRequired}
	}
	return nil
}

const (
	msgAuthRequired = "Authentication required. Please login again."
	msgAuthExpired  = "Authentication expired. Please login again."
)

// apiStatusError is the pre-taxonomy form of a non-2xx response; the
// calling method maps it to the right error kind for its endpoint.
type apiStatusError struct {
	Status  int
	Message string
}

func (e *apiStatusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// request performs an HTTP request against the Orca API. Transport
// failures come back as *NetworkError, non-2xx responses as
// *apiStatusError carrying the collaborator's message when one was
// supplied.
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

	if c.session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			return &apiStatusError{Status: resp.StatusCode}
		}
		return &apiStatusError{Status: resp.StatusCode, Message: envelope.Message}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}
