package orca

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServerRef identifies the sending server that handled a dispatch.
// Display only; the registry owns the authoritative descriptor.
type ServerRef struct {
	ServerID   string `json:"serverId"`
	ServerName string `json:"serverName"`
	ServerURL  string `json:"serverUrl"`
}

// SendResult is the outcome of an instant send. Demo marks a locally
// synthesized fallback produced when the backend was unreachable; such
// a result is never authoritative.
type SendResult struct {
	Success   bool
	Message   string
	MessageID string
	SentCount int
	Timestamp time.Time
	Demo      bool
	Server    *ServerRef
}

// JobReceipt is the acknowledgement of a queued background send.
type JobReceipt struct {
	JobID                   string
	Status                  JobStatus
	TotalEmails             int
	EstimatedCompletionTime *time.Time
	Message                 string
	Server                  *ServerRef
}

type sendEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		MessageID               string     `json:"messageId"`
		RecipientCount          int        `json:"recipientCount"`
		Timestamp               time.Time  `json:"timestamp"`
		JobID                   string     `json:"jobId"`
		Status                  JobStatus  `json:"status"`
		TotalEmails             int        `json:"totalEmails"`
		EstimatedCompletionTime *time.Time `json:"estimatedCompletionTime,omitempty"`
	} `json:"data"`
	ServerInfo *ServerRef `json:"serverInfo"`
}

// SendInstant dispatches one synchronous send: the backend delivers to
// every recipient before responding. On transport failure the method
// degrades to a clearly labeled demo result instead of erroring; every
// other failure comes back as a taxonomy error.
func (c *Client) SendInstant(ctx context.Context, req DispatchRequest) (*SendResult, error) {
	payload, err := planDispatch(req, modeInstant, 0)
	if err != nil {
		return nil, err
	}
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var envelope sendEnvelope
	err = c.request(ctx, http.MethodPost, "/api/send-email", payload, &envelope)
	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			return demoFallback(payload)
		}
		return nil, mapSendError(err, "failed to send emails")
	}

	return &SendResult{
		Success:   envelope.Success,
		Message:   envelope.Message,
		MessageID: envelope.Data.MessageID,
		SentCount: envelope.Data.RecipientCount,
		Timestamp: envelope.Data.Timestamp,
		Server:    envelope.ServerInfo,
	}, nil
}

// SendBackground queues a background job. A 503-class rejection is
// surfaced as *CapacityError so callers can retry it, unlike a
// validation failure. Transport failures propagate; the demo fallback
// exists only for instant sends.
func (c *Client) SendBackground(ctx context.Context, req DispatchRequest, priority Priority) (*JobReceipt, error) {
	payload, err := planDispatch(req, modeBackground, priority)
	if err != nil {
		return nil, err
	}
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var envelope sendEnvelope
	err = c.request(ctx, http.MethodPost, "/api/send-email-background", payload, &envelope)
	if err != nil {
		var statusErr *apiStatusError
		if errors.As(err, &statusErr) && statusErr.Status == http.StatusServiceUnavailable {
			msg := statusErr.Message
			if msg == "" {
				msg = "No servers available for background processing"
			}
			return nil, &CapacityError{Message: msg}
		}
		return nil, mapSendError(err, "failed to create background email job")
	}

	return &JobReceipt{
		JobID:                   envelope.Data.JobID,
		Status:                  envelope.Data.Status,
		TotalEmails:             envelope.Data.TotalEmails,
		EstimatedCompletionTime: envelope.Data.EstimatedCompletionTime,
		Message:                 envelope.Message,
		Server:                  envelope.ServerInfo,
	}, nil
}

// mapSendError converts a raw request error to the taxonomy, keeping
// the collaborator's message verbatim when one was supplied.
func mapSendError(err error, fallback string) error {
	var statusErr *apiStatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status == http.StatusUnauthorized {
			return &AuthError{Message: msgAuthExpired}
		}
		msg := statusErr.Message
		if msg == "" {
			msg = fallback
		}
		return &DispatchError{Status: statusErr.Status, Message: msg}
	}
	return err
}

// demoFallback synthesizes a non-authoritative result when the backend
// is unreachable during an instant send. The message is always tagged
// DEMO MODE so callers can tell it apart from a real send.
func demoFallback(p *sendPayload) (*SendResult, error) {
	if !strings.Contains(p.SenderEmail, "@gmail.com") && !strings.Contains(p.SenderEmail, "@googlemail.com") {
		return nil, &DispatchError{Message: "demo mode requires a valid Gmail address"}
	}
	if len(p.AppPassword) < 8 {
		return nil, &DispatchError{Message: "demo mode requires an app password of at least 8 characters"}
	}

	return &SendResult{
		Success:   true,
		Demo:      true,
		MessageID: "demo-" + uuid.New().String(),
		SentCount: len(p.Recipients),
		Timestamp: time.Now(),
		Message: fmt.Sprintf("DEMO MODE: would send emails from %q <%s> to %d recipients (backend not reachable)",
			p.SenderName, p.SenderEmail, len(p.Recipients)),
	}, nil
}
