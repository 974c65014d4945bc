package job

import (
	"math"
	"time"
)

// Status represents the lifecycle state of a dispatch job
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPaused     Status = "paused"
)

// Terminal reports whether the status is final
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority of a background job. Lower value sorts first in the
// pending index.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

// Job is one background dispatch: a template sent to a recipient
// list through a chosen sending server. Counts only grow; at any
// point sent+failed never exceeds total.
type Job struct {
	ID          string   `json:"id"`
	Owner       string   `json:"owner"` // submitting user's email
	Priority    Priority `json:"priority"`
	ServerID    string   `json:"server_id"`
	SenderEmail string   `json:"sender_email"`
	SenderName  string   `json:"sender_name"`
	AppPassword string   `json:"app_password"`
	Subject     string   `json:"subject"`
	Template    string   `json:"template"`
	Recipients  []string `json:"recipients"`

	Status       Status `json:"status"`
	TotalEmails  int    `json:"total_emails"`
	SentEmails   int    `json:"sent_emails"`
	FailedEmails int    `json:"failed_emails"`
	LastError    string `json:"last_error,omitempty"`

	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	EstimatedCompletionTime *time.Time `json:"estimated_completion_time,omitempty"`
}

// Progress returns the processed share in whole percent.
func (j *Job) Progress() int {
	if j.TotalEmails == 0 {
		return 0
	}
	return int(math.Round(float64(j.SentEmails+j.FailedEmails) / float64(j.TotalEmails) * 100))
}

// Remaining returns the recipients not yet attempted. The worker
// attempts recipients in order, so the processed prefix has length
// sent+failed.
func (j *Job) Remaining() []string {
	done := j.SentEmails + j.FailedEmails
	if done >= len(j.Recipients) {
		return nil
	}
	return j.Recipients[done:]
}

// ListFilter represents filter options for listing jobs
type ListFilter struct {
	Owner  string
	Status Status
	Limit  int
	Offset int
}

// Stats represents store-wide job statistics
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Paused     int64 `json:"paused"`
	Total      int64 `json:"total"`
}
