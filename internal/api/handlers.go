package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/orca-mail/orca/internal/dispatch"
	"github.com/orca-mail/orca/internal/job"
	"github.com/orca-mail/orca/internal/registry"
	"github.com/orca-mail/orca/internal/relay"
)

const capacityMessage = "No servers available for background processing"

// envelope is the uniform response shape: success flag, human
// message, optional payload and sending-server reference
type envelope struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	Data       any        `json:"data,omitempty"`
	ServerInfo *serverRef `json:"serverInfo,omitempty"`
}

type serverRef struct {
	ServerID   string `json:"serverId"`
	ServerName string `json:"serverName"`
	ServerURL  string `json:"serverUrl"`
}

func refOf(srv *registry.Server) *serverRef {
	return &serverRef{ServerID: srv.ID, ServerName: srv.Name, ServerURL: srv.BaseURL}
}

// jobView is the polled snapshot shape of one job
type jobView struct {
	JobID                   string     `json:"jobId"`
	Status                  string     `json:"status"`
	TotalEmails             int        `json:"totalEmails"`
	SentEmails              int        `json:"sentEmails"`
	FailedEmails            int        `json:"failedEmails"`
	Progress                int        `json:"progress"`
	CreatedAt               time.Time  `json:"createdAt"`
	UpdatedAt               time.Time  `json:"updatedAt"`
	EstimatedCompletionTime *time.Time `json:"estimatedCompletionTime,omitempty"`
	ServerInfo              *serverRef `json:"serverInfo,omitempty"`
}

func (s *Server) viewOf(j *job.Job, user *registry.User) *jobView {
	v := &jobView{
		JobID:                   j.ID,
		Status:                  string(j.Status),
		TotalEmails:             j.TotalEmails,
		SentEmails:              j.SentEmails,
		FailedEmails:            j.FailedEmails,
		Progress:                j.Progress(),
		CreatedAt:               j.CreatedAt,
		UpdatedAt:               j.UpdatedAt,
		EstimatedCompletionTime: j.EstimatedCompletionTime,
	}
	if srv, ok := user.ServerByID(j.ServerID); ok {
		v.ServerInfo = refOf(srv)
	}
	return v
}

// handleSendEmail handles POST /api/send-email: a synchronous send
// that delivers to every recipient before responding
func (s *Server) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	var req sendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateSend(&req, false); msg != "" {
		s.sendError(w, http.StatusBadRequest, msg)
		return
	}

	srv, err := s.registry.Select(user, req.ServerID)
	if err != nil {
		if errors.Is(err, registry.ErrNoServers) {
			s.sendError(w, http.StatusServiceUnavailable, "No servers available")
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.registry.AcquireServer(srv.ID)
	defer s.registry.ReleaseServer(srv.ID)

	sender := s.senders(srv)
	from := relay.FormatFrom(req.SenderName, req.SenderEmail)

	sent := 0
	var lastErr error
	for _, to := range req.Recipients {
		_, err := sender.Send(r.Context(), &relay.SendRequest{
			From:     from,
			To:       to,
			Subject:  req.Subject,
			HTML:     req.Template,
			Password: req.AppPassword,
		})
		if err != nil {
			lastErr = err
			s.logger.Debug("instant send failed", "to", to, "error", err)
			continue
		}
		sent++
	}

	if s.metrics != nil {
		s.metrics.EmailsSentTotal.WithLabelValues(srv.ID).Add(float64(sent))
		s.metrics.EmailsFailedTotal.WithLabelValues(srv.ID).Add(float64(len(req.Recipients) - sent))
	}
	if err := s.store.AddServerEmails(r.Context(), srv.ID, sent); err != nil {
		s.logger.Error("failed to update server counter", "server", srv.ID, "error", err)
	}

	if sent == 0 {
		s.sendError(w, http.StatusBadGateway, fmt.Sprintf("failed to send emails: %v", lastErr))
		return
	}

	s.logger.Info("instant send finished",
		"owner", user.Email,
		"server", srv.ID,
		"sent", sent,
		"failed", len(req.Recipients)-sent)

	s.sendJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Emails sent successfully to %d recipients", sent),
		Data: map[string]any{
			"messageId":      uuid.New().String(),
			"recipientCount": sent,
			"timestamp":      time.Now(),
		},
		ServerInfo: refOf(srv),
	})
}

// handleSendBackground handles POST /api/send-email-background:
// validates, picks a server, stores the job and returns a receipt
func (s *Server) handleSendBackground(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	var req sendEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := validateSend(&req, true); msg != "" {
		s.sendError(w, http.StatusBadRequest, msg)
		return
	}

	active, err := s.store.CountActive(r.Context(), user.Email)
	if err != nil {
		s.logger.Error("failed to count active jobs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create background job")
		return
	}
	if active >= s.config.Dispatch.MaxActiveJobs {
		s.sendError(w, http.StatusServiceUnavailable, capacityMessage)
		return
	}

	srv, err := s.registry.Select(user, req.ServerID)
	if err != nil {
		if errors.Is(err, registry.ErrNoServers) {
			s.sendError(w, http.StatusServiceUnavailable, capacityMessage)
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now()
	estimate := dispatch.EstimateCompletion(now, len(req.Recipients), s.config.Dispatch.PerEmailPace)
	j := &job.Job{
		ID:                      uuid.New().String(),
		Owner:                   user.Email,
		Priority:                job.Priority(req.Priority),
		ServerID:                srv.ID,
		SenderEmail:             req.SenderEmail,
		SenderName:              req.SenderName,
		AppPassword:             req.AppPassword,
		Subject:                 req.Subject,
		Template:                req.Template,
		Recipients:              req.Recipients,
		Status:                  job.StatusPending,
		TotalEmails:             len(req.Recipients),
		CreatedAt:               now,
		UpdatedAt:               now,
		EstimatedCompletionTime: &estimate,
	}

	if err := s.store.Create(r.Context(), j); err != nil {
		s.logger.Error("failed to store job", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create background job")
		return
	}

	if s.metrics != nil {
		s.metrics.JobsSubmittedTotal.WithLabelValues(dispatch.PriorityLabel(j.Priority)).Inc()
		s.metrics.JobsActive.Inc()
	}

	s.logger.Info("background job queued",
		"job_id", j.ID,
		"owner", user.Email,
		"server", srv.ID,
		"total", j.TotalEmails,
		"priority", j.Priority)

	s.sendJSON(w, http.StatusAccepted, envelope{
		Success: true,
		Message: fmt.Sprintf("Background job created for %d recipients", j.TotalEmails),
		Data: map[string]any{
			"jobId":                   j.ID,
			"status":                  string(j.Status),
			"totalEmails":             j.TotalEmails,
			"estimatedCompletionTime": j.EstimatedCompletionTime,
		},
		ServerInfo: refOf(srv),
	})
}

// handleListJobs handles GET /api/email-jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	filter := job.ListFilter{Owner: user.Email}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = job.Status(status)
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			s.sendError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	jobs, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to retrieve email jobs")
		return
	}

	views := make([]*jobView, len(jobs))
	for i, j := range jobs {
		views[i] = s.viewOf(j, user)
	}

	s.sendJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Email jobs retrieved",
		Data:    views,
	})
}

// handleGetJob handles GET /api/email-jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	j, ok := s.ownedJob(w, r, user)
	if !ok {
		return
	}

	s.sendJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Job status retrieved",
		Data:    s.viewOf(j, user),
	})
}

// handlePauseJob handles POST /api/email-jobs/{id}/pause. The state
// machine is authoritative here: only a processing job can pause.
func (s *Server) handlePauseJob(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	if _, ok := s.ownedJob(w, r, user); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	j, err := s.store.SetStatus(r.Context(), id, []job.Status{job.StatusProcessing}, job.StatusPaused)
	if err != nil {
		var tErr *job.TransitionError
		if errors.As(err, &tErr) {
			s.sendError(w, http.StatusConflict,
				fmt.Sprintf("job can only be paused while processing (current status: %s)", tErr.Current))
			return
		}
		s.logger.Error("failed to pause job", "job_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to pause job")
		return
	}

	s.logger.Info("job paused", "job_id", id, "owner", user.Email)
	s.sendJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Job paused",
		Data:    s.viewOf(j, user),
	})
}

// handleResumeJob handles POST /api/email-jobs/{id}/resume. Resuming
// re-queues the job; a worker picks it up where it stopped.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	if _, ok := s.ownedJob(w, r, user); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	j, err := s.store.SetStatus(r.Context(), id, []job.Status{job.StatusPaused}, job.StatusPending)
	if err != nil {
		var tErr *job.TransitionError
		if errors.As(err, &tErr) {
			s.sendError(w, http.StatusConflict,
				fmt.Sprintf("job can only be resumed while paused (current status: %s)", tErr.Current))
			return
		}
		s.logger.Error("failed to resume job", "job_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to resume job")
		return
	}

	s.logger.Info("job resumed", "job_id", id, "owner", user.Email)
	s.sendJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Job resumed",
		Data:    s.viewOf(j, user),
	})
}

// ownedJob loads the path job and enforces owner scoping. Jobs of
// other users read as absent, never as forbidden.
func (s *Server) ownedJob(w http.ResponseWriter, r *http.Request, user *registry.User) (*job.Job, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		s.sendError(w, http.StatusBadRequest, "id is required")
		return nil, false
	}

	j, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Job not found")
			return nil, false
		}
		s.logger.Error("failed to get job", "job_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to retrieve job")
		return nil, false
	}
	if j.Owner != user.Email {
		s.sendError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	return j, true
}

// handleUserServers handles GET /api/user/servers
func (s *Server) handleUserServers(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	descriptors := s.registry.Snapshot(user, func(serverID string) int {
		count, err := s.store.ServerEmailCount(r.Context(), serverID)
		if err != nil {
			s.logger.Error("failed to read server counter", "server", serverID, "error", err)
			return 0
		}
		return count
	})

	s.sendJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Servers retrieved",
		Data: map[string]any{
			"servers":         descriptors,
			"defaultServerId": user.DefaultServerID,
		},
	})
}

// handleServerInfo handles GET /api/server-info: host telemetry for
// display purposes
func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)

	info, err := host.InfoWithContext(r.Context())
	if err != nil {
		s.logger.Error("failed to read host info", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to retrieve server information")
		return
	}

	total := 0
	for _, srv := range user.Servers {
		count, err := s.store.ServerEmailCount(r.Context(), srv.ID)
		if err != nil {
			continue
		}
		total += count
	}

	s.sendJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Server information retrieved",
		Data: map[string]any{
			"hostname":   info.Hostname,
			"platform":   fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion),
			"uptime":     info.Uptime,
			"primaryIp":  primaryIP(),
			"port":       listenPort(s.config.Server.ListenAddr),
			"emailCount": total,
			"timestamp":  time.Now(),
		},
	})
}

// handleHealth handles GET /api/health (no auth)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "ok",
		"uptime":  time.Since(s.startTime).String(),
	})
}

// handleWorkerHealth handles GET /api/worker/health. The probe is
// installed at wiring time; without one the endpoint only answers
// for the API process itself.
func (s *Server) handleWorkerHealth(w http.ResponseWriter, r *http.Request) {
	if s.workerProbe != nil && !s.workerProbe() {
		s.sendJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"message": "Worker is not running",
			"uptime":  time.Since(s.startTime).String(),
		})
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Worker is running",
		"uptime":  time.Since(s.startTime).String(),
	})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends a structured failure response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, envelope{Success: false, Message: message})
}

// primaryIP returns the first non-loopback IPv4 address of the host
func primaryIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// listenPort extracts the numeric port from a listen address
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
