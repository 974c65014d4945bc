package orca

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// JobStatus is the closed set of background job states. The backend
// owns the state machine; the client only mirrors it.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobPaused     JobStatus = "paused"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// EmailJob is one polled snapshot of a background dispatch job.
// Progress is backend-computed; sentEmails+failedEmails never exceeds
// totalEmails at any observed point.
type EmailJob struct {
	JobID                   string     `json:"jobId"`
	Status                  JobStatus  `json:"status"`
	TotalEmails             int        `json:"totalEmails"`
	SentEmails              int        `json:"sentEmails"`
	FailedEmails            int        `json:"failedEmails"`
	Progress                int        `json:"progress"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
	EstimatedCompletionTime *time.Time `json:"estimatedCompletionTime,omitempty"`
	Server                  *ServerRef `json:"serverInfo,omitempty"`
}

type jobEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    *EmailJob `json:"data"`
}

type jobListEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    []*EmailJob `json:"data"`
}

// ListJobs returns a read-only snapshot of the caller's jobs, newest
// first. status and limit are optional filters; the zero values mean
// no filter.
func (c *Client) ListJobs(ctx context.Context, status JobStatus, limit int) ([]*EmailJob, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	path := "/api/email-jobs"
	params := url.Values{}
	if status != "" {
		params.Set("status", string(status))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var envelope jobListEnvelope
	if err := c.request(ctx, http.MethodGet, path, nil, &envelope); err != nil {
		return nil, mapJobError(err, "failed to retrieve email jobs")
	}
	return envelope.Data, nil
}

// GetJob fetches the current snapshot of one job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*EmailJob, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var envelope jobEnvelope
	if err := c.request(ctx, http.MethodGet, "/api/email-jobs/"+jobID, nil, &envelope); err != nil {
		return nil, mapJobError(err, "failed to retrieve job status")
	}
	return envelope.Data, nil
}

// PauseJob asks the backend to pause a processing job. The backend is
// authoritative: a rejection (wrong state, unknown job) is surfaced
// with its message verbatim, never asserted locally.
func (c *Client) PauseJob(ctx context.Context, jobID string) (*EmailJob, error) {
	return c.transitionJob(ctx, jobID, "pause", "failed to pause job")
}

// ResumeJob asks the backend to resume a paused job.
func (c *Client) ResumeJob(ctx context.Context, jobID string) (*EmailJob, error) {
	return c.transitionJob(ctx, jobID, "resume", "failed to resume job")
}

func (c *Client) transitionJob(ctx context.Context, jobID, action, fallback string) (*EmailJob, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}

	var envelope jobEnvelope
	err := c.request(ctx, http.MethodPost, "/api/email-jobs/"+jobID+"/"+action, nil, &envelope)
	if err != nil {
		return nil, mapJobError(err, fallback)
	}
	return envelope.Data, nil
}

// mapJobError converts a raw request error to the taxonomy for job
// operations: 401 is terminal auth, 404 is not-found, anything else
// non-2xx keeps the collaborator's message.
func mapJobError(err error, fallback string) error {
	var statusErr *apiStatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch statusErr.Status {
	case http.StatusUnauthorized:
		return &AuthError{Message: msgAuthExpired}
	case http.StatusNotFound:
		msg := statusErr.Message
		if msg == "" {
			msg = "Job not found"
		}
		return &NotFoundError{Message: msg}
	}
	msg := statusErr.Message
	if msg == "" {
		msg = fallback
	}
	return &DispatchError{Status: statusErr.Status, Message: msg}
}
