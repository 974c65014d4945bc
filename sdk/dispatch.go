package orca

import (
	"regexp"
	"strings"
)

// Priority of a background job. Instant sends carry no priority.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

// MaxRecipients is the hard cap on recipients per send.
const MaxRecipients = 25

// DispatchRequest describes one send action. ServerID is optional: the
// empty value means auto-select, and is never transmitted on the wire.
type DispatchRequest struct {
	SenderEmail string
	SenderName  string
	AppPassword string
	Recipients  []string
	Subject     string
	Template    string
	ServerID    string
}

type dispatchMode int

const (
	modeInstant dispatchMode = iota
	modeBackground
)

// sendPayload is the normalized wire form of a dispatch request.
// ServerID and Priority are omitted entirely when unset; an empty
// string or zero is never serialized as a sentinel.
type sendPayload struct {
	SenderEmail string   `json:"senderEmail"`
	SenderName  string   `json:"senderName"`
	AppPassword string   `json:"appPassword"`
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Template    string   `json:"template"`
	ServerID    string   `json:"serverId,omitempty"`
	Priority    int      `json:"priority,omitempty"`
}

// RFC-light check: something without whitespace or @, an @, a domain
// with at least one dot. "user@domain" (no TLD) does not pass.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func isValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// filterRecipients trims entries and drops blanks and syntactically
// invalid addresses. Invalid recipients are dropped silently; only the
// surviving count is validated. The function is idempotent.
func filterRecipients(recipients []string) []string {
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		r = strings.TrimSpace(r)
		if r == "" || !isValidEmail(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

var lineBreaks = regexp.MustCompile(`\r\n|\r|\n`)

// normalizeLineBreaks converts every line-break style to a single <br>
// marker. Normalizing already-normalized text is a no-op.
func normalizeLineBreaks(text string) string {
	if text == "" {
		return text
	}
	return lineBreaks.ReplaceAllString(text, "<br>")
}

// requiredFields are checked in this fixed order; the first missing one
// names the validation failure.
var requiredFields = []struct {
	name string
	get  func(*DispatchRequest) string
}{
	{"senderEmail", func(r *DispatchRequest) string { return r.SenderEmail }},
	{"senderName", func(r *DispatchRequest) string { return r.SenderName }},
	{"appPassword", func(r *DispatchRequest) string { return r.AppPassword }},
	{"subject", func(r *DispatchRequest) string { return r.Subject }},
	{"template", func(r *DispatchRequest) string { return r.Template }},
}

// planDispatch validates a request and produces the normalized payload.
// It is a pure function with no I/O.
func planDispatch(req DispatchRequest, mode dispatchMode, priority Priority) (*sendPayload, error) {
	for _, f := range requiredFields {
		if strings.TrimSpace(f.get(&req)) == "" {
			return nil, &ValidationError{Message: "missing field: " + f.name}
		}
	}

	if !isValidEmail(req.SenderEmail) {
		return nil, &ValidationError{Message: "invalid sender email"}
	}

	recipients := filterRecipients(req.Recipients)
	if len(recipients) == 0 {
		return nil, &ValidationError{Message: "no valid recipient emails found"}
	}
	if len(recipients) > MaxRecipients {
		msg := "maximum 25 recipients allowed"
		if mode == modeBackground {
			msg += " for background processing"
		}
		return nil, &ValidationError{Message: msg}
	}

	p := &sendPayload{
		SenderEmail: strings.TrimSpace(req.SenderEmail),
		SenderName:  strings.TrimSpace(req.SenderName),
		AppPassword: strings.TrimSpace(req.AppPassword),
		Recipients:  recipients,
		Subject:     strings.TrimSpace(req.Subject),
		Template:    normalizeLineBreaks(req.Template),
		ServerID:    strings.TrimSpace(req.ServerID),
	}

	if mode == modeBackground {
		if priority == 0 {
			priority = PriorityNormal
		}
		if priority < PriorityHigh || priority > PriorityLow {
			return nil, &ValidationError{Message: "invalid priority"}
		}
		p.Priority = int(priority)
	}

	return p, nil
}
