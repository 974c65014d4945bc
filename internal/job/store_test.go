package job

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testJob(id, owner string, p Priority, createdAt time.Time) *Job {
	return &Job{
		ID:          id,
		Owner:       owner,
		Priority:    p,
		ServerID:    "srv-1",
		SenderEmail: "sender@gmail.com",
		SenderName:  "Sender",
		Subject:     "Hello",
		Template:    "body",
		Recipients:  []string{"a@test.com", "b@test.com"},
		Status:      StatusPending,
		TotalEmails: 2,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestStoreCreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	j := testJob("j1", "alice@test.com", PriorityNormal, time.Now())
	if err := store.Create(ctx, j); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Owner != "alice@test.com" {
		t.Errorf("Get().Owner = %v, want alice@test.com", got.Owner)
	}
	if got.Status != StatusPending {
		t.Errorf("Get().Status = %v, want pending", got.Status)
	}

	_, err = store.Get(ctx, "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nonexistent) error = %v, want ErrNotFound", err)
	}
}

func TestClaimPendingPriorityOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	// Oldest job is low priority; a newer high-priority job must win.
	if err := store.Create(ctx, testJob("j-low", "u", PriorityLow, base)); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, testJob("j-high", "u", PriorityHigh, base.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, testJob("j-normal", "u", PriorityNormal, base.Add(2*time.Second))); err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{"j-high", "j-normal", "j-low"}
	for _, want := range wantOrder {
		claimed, err := store.ClaimPending(ctx)
		if err != nil {
			t.Fatalf("ClaimPending() error = %v", err)
		}
		if claimed == nil {
			t.Fatalf("ClaimPending() = nil, want %s", want)
		}
		if claimed.ID != want {
			t.Errorf("ClaimPending().ID = %v, want %v", claimed.ID, want)
		}
		if claimed.Status != StatusProcessing {
			t.Errorf("ClaimPending().Status = %v, want processing", claimed.Status)
		}
	}

	empty, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if empty != nil {
		t.Errorf("ClaimPending() on empty queue = %+v, want nil", empty)
	}
}

func TestClaimPendingFIFOWithinPriority(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	if err := store.Create(ctx, testJob("j2", "u", PriorityNormal, base.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, testJob("j1", "u", PriorityNormal, base)); err != nil {
		t.Fatal(err)
	}

	claimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if claimed.ID != "j1" {
		t.Errorf("ClaimPending().ID = %v, want j1 (oldest first)", claimed.ID)
	}
}

func TestSetStatusTransitions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testJob("j1", "u", PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ClaimPending(ctx); err != nil {
		t.Fatal(err)
	}

	// processing -> paused
	j, err := store.SetStatus(ctx, "j1", []Status{StatusProcessing}, StatusPaused)
	if err != nil {
		t.Fatalf("SetStatus(pause) error = %v", err)
	}
	if j.Status != StatusPaused {
		t.Errorf("Status = %v, want paused", j.Status)
	}

	// pausing again must be rejected
	_, err = store.SetStatus(ctx, "j1", []Status{StatusProcessing}, StatusPaused)
	var tErr *TransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("SetStatus(pause twice) error = %T, want *TransitionError", err)
	}
	if tErr.Current != StatusPaused {
		t.Errorf("TransitionError.Current = %v, want paused", tErr.Current)
	}

	// paused -> pending re-queues the job
	j, err = store.SetStatus(ctx, "j1", []Status{StatusPaused}, StatusPending)
	if err != nil {
		t.Fatalf("SetStatus(resume) error = %v", err)
	}
	if j.Status != StatusPending {
		t.Errorf("Status = %v, want pending", j.Status)
	}

	claimed, err := store.ClaimPending(ctx)
	if err != nil {
		t.Fatalf("ClaimPending() error = %v", err)
	}
	if claimed == nil || claimed.ID != "j1" {
		t.Errorf("ClaimPending() after resume = %+v, want j1", claimed)
	}

	// unknown job
	_, err = store.SetStatus(ctx, "missing", []Status{StatusProcessing}, StatusPaused)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("SetStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAddCountsPreservesStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testJob("j1", "u", PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ClaimPending(ctx); err != nil {
		t.Fatal(err)
	}

	// Pause lands while a batch is in flight; the following counts
	// write must not resurrect the processing status.
	if _, err := store.SetStatus(ctx, "j1", []Status{StatusProcessing}, StatusPaused); err != nil {
		t.Fatal(err)
	}

	j, err := store.AddCounts(ctx, "j1", 1, 1, "temporary failure")
	if err != nil {
		t.Fatalf("AddCounts() error = %v", err)
	}
	if j.Status != StatusPaused {
		t.Errorf("Status = %v, want paused (counts write must not change status)", j.Status)
	}
	if j.SentEmails != 1 || j.FailedEmails != 1 {
		t.Errorf("counts = %d/%d, want 1/1", j.SentEmails, j.FailedEmails)
	}
	if j.LastError != "temporary failure" {
		t.Errorf("LastError = %q, want recorded", j.LastError)
	}

	if _, err := store.AddCounts(ctx, "missing", 1, 0, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddCounts(missing) error = %v, want ErrNotFound", err)
	}
}

func TestFinish(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Create(ctx, testJob("j1", "u", PriorityNormal, time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := store.ClaimPending(ctx); err != nil {
		t.Fatal(err)
	}

	j, err := store.Finish(ctx, "j1", StatusCompleted, "")
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if j.Status != StatusCompleted {
		t.Errorf("Status = %v, want completed", j.Status)
	}

	// Finishing a non-processing job is rejected
	_, err = store.Finish(ctx, "j1", StatusFailed, "x")
	var tErr *TransitionError
	if !errors.As(err, &tErr) {
		t.Errorf("Finish(terminal job) error = %T, want *TransitionError", err)
	}
}

func TestListOwnerScopedNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	if err := store.Create(ctx, testJob("j1", "alice", PriorityNormal, base)); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, testJob("j2", "alice", PriorityNormal, base.Add(time.Second))); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, testJob("j3", "bob", PriorityNormal, base)); err != nil {
		t.Fatal(err)
	}

	jobs, err := store.List(ctx, ListFilter{Owner: "alice"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len(jobs) = %v, want 2", len(jobs))
	}
	if jobs[0].ID != "j2" || jobs[1].ID != "j1" {
		t.Errorf("order = [%s %s], want [j2 j1] (newest first)", jobs[0].ID, jobs[1].ID)
	}

	jobs, err = store.List(ctx, ListFilter{Owner: "alice", Limit: 1})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j2" {
		t.Errorf("limited list = %+v, want only j2", jobs)
	}

	jobs, err = store.List(ctx, ListFilter{Status: StatusPending, Owner: "bob"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "j3" {
		t.Errorf("bob's jobs = %+v, want only j3", jobs)
	}
}

func TestCountActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	if err := store.Create(ctx, testJob("j1", "alice", PriorityNormal, base)); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(ctx, testJob("j2", "alice", PriorityNormal, base)); err != nil {
		t.Fatal(err)
	}

	// One claimed (processing), one still pending: both active
	if _, err := store.ClaimPending(ctx); err != nil {
		t.Fatal(err)
	}

	count, err := store.CountActive(ctx, "alice")
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountActive() = %v, want 2", count)
	}

	count, err = store.CountActive(ctx, "bob")
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountActive(bob) = %v, want 0", count)
	}
}

func TestServerEmailCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AddServerEmails(ctx, "srv-1", 5); err != nil {
		t.Fatalf("AddServerEmails() error = %v", err)
	}
	if err := store.AddServerEmails(ctx, "srv-1", 3); err != nil {
		t.Fatalf("AddServerEmails() error = %v", err)
	}
	// Zero and negative increments are ignored
	if err := store.AddServerEmails(ctx, "srv-1", 0); err != nil {
		t.Fatalf("AddServerEmails(0) error = %v", err)
	}

	count, err := store.ServerEmailCount(ctx, "srv-1")
	if err != nil {
		t.Fatalf("ServerEmailCount() error = %v", err)
	}
	if count != 8 {
		t.Errorf("ServerEmailCount() = %v, want 8", count)
	}

	count, err = store.ServerEmailCount(ctx, "srv-unknown")
	if err != nil {
		t.Fatalf("ServerEmailCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("ServerEmailCount(unknown) = %v, want 0", count)
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name   string
		sent   int
		failed int
		total  int
		want   int
	}{
		{"empty", 0, 0, 0, 0},
		{"none processed", 0, 0, 10, 0},
		{"partial", 4, 0, 10, 40},
		{"with failures", 3, 1, 10, 40},
		{"rounds", 1, 0, 3, 33},
		{"complete", 10, 0, 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := &Job{SentEmails: tt.sent, FailedEmails: tt.failed, TotalEmails: tt.total}
			if got := j.Progress(); got != tt.want {
				t.Errorf("Progress() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	j := &Job{
		Recipients:   []string{"a@t.com", "b@t.com", "c@t.com"},
		SentEmails:   1,
		FailedEmails: 1,
	}
	rest := j.Remaining()
	if len(rest) != 1 || rest[0] != "c@t.com" {
		t.Errorf("Remaining() = %v, want [c@t.com]", rest)
	}

	j.SentEmails = 3
	if rest := j.Remaining(); rest != nil {
		t.Errorf("Remaining() when done = %v, want nil", rest)
	}
}
