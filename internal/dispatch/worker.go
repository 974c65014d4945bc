package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orca-mail/orca/internal/job"
	"github.com/orca-mail/orca/internal/metrics"
	"github.com/orca-mail/orca/internal/registry"
	"github.com/orca-mail/orca/internal/relay"
)

// SenderFactory builds a relay sender for one sending server. The
// worker takes a factory so tests can substitute fakes per server.
type SenderFactory func(srv *registry.Server) relay.Sender

// RelayFactory returns the production factory using the HTTP relay
// client with the given per-request timeout
func RelayFactory(timeout time.Duration) SenderFactory {
	return func(srv *registry.Server) relay.Sender {
		return relay.NewClient(srv.BaseURL, srv.APIKey, timeout)
	}
}

// Config holds worker configuration
type Config struct {
	Workers      int
	PollInterval time.Duration
	BatchSize    int
	Concurrency  int
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{
		Workers:      2,
		PollInterval: 5 * time.Second,
		BatchSize:    10,
		Concurrency:  4,
	}
}

// Worker claims pending jobs and pushes their recipients through the
// owning user's sending server. Counts are persisted after every
// batch so polled snapshots only ever grow.
type Worker struct {
	store    *job.Store
	registry *registry.Registry
	senders  SenderFactory
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      Config

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// New creates a new worker
func New(store *job.Store, reg *registry.Registry, senders SenderFactory, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}

	return &Worker{
		store:    store,
		registry: reg,
		senders:  senders,
		metrics:  m,
		logger:   logger.With("component", "dispatch"),
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the worker goroutines
func (w *Worker) Start() {
	w.running.Store(true)
	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
	w.logger.Info("dispatch worker started",
		"workers", w.cfg.Workers,
		"poll_interval", w.cfg.PollInterval,
		"batch_size", w.cfg.BatchSize,
		"concurrency", w.cfg.Concurrency)
}

// Stop stops the worker gracefully, waiting for in-flight batches
func (w *Worker) Stop() {
	w.logger.Info("stopping dispatch worker...")
	w.cancel()
	w.wg.Wait()
	w.running.Store(false)
	w.logger.Info("dispatch worker stopped")
}

// Running reports whether the worker goroutines are live. Liveness
// only; it says nothing about queue depth or delivery health.
func (w *Worker) Running() bool {
	return w.running.Load()
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processPending()
		}
	}
}

// processPending drains the pending queue, one claimed job at a time
func (w *Worker) processPending() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		claimed, err := w.store.ClaimPending(w.ctx)
		if err != nil {
			w.logger.Error("failed to claim pending job", "error", err)
			return
		}
		if claimed == nil {
			return
		}

		w.processJob(claimed)
	}
}

func (w *Worker) processJob(j *job.Job) {
	user, ok := w.registry.UserByEmail(j.Owner)
	if !ok {
		w.failJob(j, "owner no longer configured")
		return
	}
	srv, ok := user.ServerByID(j.ServerID)
	if !ok {
		w.failJob(j, "sending server no longer configured: "+j.ServerID)
		return
	}

	sender := w.senders(srv)
	w.registry.AcquireServer(srv.ID)
	defer w.registry.ReleaseServer(srv.ID)

	w.logger.Info("processing job",
		"job_id", j.ID,
		"owner", j.Owner,
		"server", srv.ID,
		"total", j.TotalEmails)

	from := relay.FormatFrom(j.SenderName, j.SenderEmail)

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		// Pause and external status changes surface between batches
		current, err := w.store.Get(w.ctx, j.ID)
		if err != nil {
			w.logger.Error("failed to re-read job", "job_id", j.ID, "error", err)
			return
		}
		if current.Status != job.StatusProcessing {
			w.logger.Info("job left processing state", "job_id", j.ID, "status", current.Status)
			return
		}
		j = current

		remaining := j.Remaining()
		if len(remaining) == 0 {
			w.finishJob(j)
			return
		}

		batch := remaining
		if len(batch) > w.cfg.BatchSize {
			batch = batch[:w.cfg.BatchSize]
		}

		sent, failed, lastErr := w.sendBatch(sender, from, j, batch)

		if _, err := w.store.AddCounts(w.ctx, j.ID, sent, failed, lastErr); err != nil {
			w.logger.Error("failed to persist job counts", "job_id", j.ID, "error", err)
			return
		}
		if err := w.store.AddServerEmails(w.ctx, srv.ID, sent); err != nil {
			w.logger.Error("failed to update server counter", "server", srv.ID, "error", err)
		}

		if w.metrics != nil {
			w.metrics.EmailsSentTotal.WithLabelValues(srv.ID).Add(float64(sent))
			w.metrics.EmailsFailedTotal.WithLabelValues(srv.ID).Add(float64(failed))
		}
	}
}

// sendBatch delivers one batch of recipients through a bounded
// number of concurrent relay calls
func (w *Worker) sendBatch(sender relay.Sender, from string, j *job.Job, batch []string) (sent, failed int, lastErr string) {
	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, recipient := range batch {
		select {
		case <-w.ctx.Done():
			wg.Wait()
			return sent, failed, lastErr
		default:
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(to string) {
			defer func() {
				<-sem
				wg.Done()
			}()

			_, err := sender.Send(w.ctx, &relay.SendRequest{
				From:     from,
				To:       to,
				Subject:  j.Subject,
				HTML:     j.Template,
				Password: j.AppPassword,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				lastErr = err.Error()
				w.logger.Debug("failed to send email", "job_id", j.ID, "to", to, "error", err)
			} else {
				sent++
			}
		}(recipient)
	}

	wg.Wait()
	return sent, failed, lastErr
}

// finishJob marks a fully attempted job terminal: failed only when
// not a single recipient was delivered
func (w *Worker) finishJob(j *job.Job) {
	status := job.StatusCompleted
	if j.SentEmails == 0 && j.FailedEmails > 0 {
		status = job.StatusFailed
	}

	if _, err := w.store.Finish(w.ctx, j.ID, status, ""); err != nil {
		w.logger.Error("failed to finalize job", "job_id", j.ID, "error", err)
		return
	}

	if w.metrics != nil {
		if status == job.StatusCompleted {
			w.metrics.JobsCompletedTotal.Inc()
		} else {
			w.metrics.JobsFailedTotal.Inc()
		}
		w.metrics.JobsActive.Dec()
	}

	w.logger.Info("job finished",
		"job_id", j.ID,
		"status", status,
		"sent", j.SentEmails,
		"failed", j.FailedEmails)
}

func (w *Worker) failJob(j *job.Job, reason string) {
	if _, err := w.store.Finish(w.ctx, j.ID, job.StatusFailed, reason); err != nil {
		w.logger.Error("failed to mark job failed", "job_id", j.ID, "error", err)
		return
	}
	if w.metrics != nil {
		w.metrics.JobsFailedTotal.Inc()
		w.metrics.JobsActive.Dec()
	}
	w.logger.Error("job failed", "job_id", j.ID, "error", reason)
}

// EstimateCompletion computes the advisory completion estimate for a
// freshly submitted job: creation time plus a fixed pace per email.
func EstimateCompletion(createdAt time.Time, total int, perEmailPace time.Duration) time.Time {
	return createdAt.Add(time.Duration(total) * perEmailPace)
}

// PriorityLabel renders a priority as a metric label value
func PriorityLabel(p job.Priority) string {
	return strconv.Itoa(int(p))
}
