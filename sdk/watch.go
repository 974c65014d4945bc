package orca

import (
	"context"
	"time"
)

// Watch is a cancellable polling task for one job. Polls run strictly
// one at a time: a new cycle starts only after the previous one has
// resolved, so snapshots never interleave.
type Watch struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// WatchJob polls the job on a fixed interval (DefaultPollInterval when
// interval is zero) and invokes fn with each snapshot or error. The
// first poll fires immediately. Polling stops on its own once the job
// reaches a terminal state; Stop ends it earlier. A response that
// arrives after teardown is discarded, never delivered.
func (c *Client) WatchJob(jobID string, interval time.Duration, fn func(*EmailJob, error)) *Watch {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watch{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.run(ctx, c, jobID, interval, fn)
	return w
}

func (w *Watch) run(ctx context.Context, c *Client, jobID string, interval time.Duration, fn func(*EmailJob, error)) {
	defer close(w.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, jobID)
		if ctx.Err() != nil {
			return
		}
		fn(job, err)
		if err == nil && job != nil && job.Status.Terminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the watch and waits for the polling goroutine to exit.
// After Stop returns, the callback is guaranteed not to fire again.
func (w *Watch) Stop() {
	w.cancel()
	<-w.done
}

// Done is closed when polling has ended, whether by Stop or by the job
// reaching a terminal state.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}
