package api

import (
	"regexp"
	"strings"
)

// maxRecipients is the hard cap on recipients per send
const maxRecipients = 25

// sendEmailRequest is the request body for both send endpoints.
// Priority only applies to background sends.
type sendEmailRequest struct {
	SenderEmail string   `json:"senderEmail"`
	SenderName  string   `json:"senderName"`
	AppPassword string   `json:"appPassword"`
	Recipients  []string `json:"recipients"`
	Subject     string   `json:"subject"`
	Template    string   `json:"template"`
	ServerID    string   `json:"serverId"`
	Priority    int      `json:"priority"`
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	lineBreaks   = regexp.MustCompile(`\r\n|\r|\n`)
)

func isValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// filterRecipients trims entries and drops blanks and syntactically
// invalid addresses
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

// requiredFields are checked in this fixed order
var requiredFields = []struct {
	name string
	get  func(*sendEmailRequest) string
}{
	{"senderEmail", func(r *sendEmailRequest) string { return r.SenderEmail }},
	{"senderName", func(r *sendEmailRequest) string { return r.SenderName }},
	{"appPassword", func(r *sendEmailRequest) string { return r.AppPassword }},
	{"subject", func(r *sendEmailRequest) string { return r.Subject }},
	{"template", func(r *sendEmailRequest) string { return r.Template }},
}

// validateSend checks and normalizes a send request in place. The
// server never trusts client-side validation, so the full rule set
// runs again here. Returns a failure message or "".
func validateSend(req *sendEmailRequest, background bool) string {
	for _, f := range requiredFields {
		if strings.TrimSpace(f.get(req)) == "" {
			return "missing field: " + f.name
		}
	}

	if !isValidEmail(req.SenderEmail) {
		return "invalid sender email"
	}

	recipients := filterRecipients(req.Recipients)
	if len(recipients) == 0 {
		return "no valid recipient emails found"
	}
	if len(recipients) > maxRecipients {
		msg := "maximum 25 recipients allowed"
		if background {
			msg += " for background processing"
		}
		return msg
	}

	req.SenderEmail = strings.TrimSpace(req.SenderEmail)
	req.SenderName = strings.TrimSpace(req.SenderName)
	req.AppPassword = strings.TrimSpace(req.AppPassword)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Template = lineBreaks.ReplaceAllString(req.Template, "<br>")
	req.ServerID = strings.TrimSpace(req.ServerID)
	req.Recipients = recipients

	if background {
		if req.Priority == 0 {
			req.Priority = 2
		}
		if req.Priority < 1 || req.Priority > 3 {
			return "invalid priority"
		}
	}

	return ""
}
