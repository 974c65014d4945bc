package job

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs     = []byte("jobs")
	bucketPending  = []byte("pending")
	bucketCounters = []byte("counters")
)

// ErrNotFound is returned when a job ID does not exist
var ErrNotFound = errors.New("job not found")

// TransitionError reports a rejected status change
type TransitionError struct {
	JobID   string
	Current Status
	Target  Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot transition from %s to %s", e.JobID, e.Current, e.Target)
}

// Store persists jobs in BoltDB. Pending jobs carry an index entry
// ordered by priority then creation time, so claims pop the oldest
// highest-priority job first.
type Store struct {
	db *bolt.DB
}

// NewStore opens (creating if needed) the job database at path
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketJobs, bucketPending, bucketCounters} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Create stores a new job and queues it for processing
func (s *Store) Create(ctx context.Context, j *Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		if err := tx.Bucket(bucketJobs).Put([]byte(j.ID), data); err != nil {
			return fmt.Errorf("failed to store job: %w", err)
		}

		indexKey := makeIndexKey(j.Priority, j.CreatedAt, j.ID)
		if err := tx.Bucket(bucketPending).Put(indexKey, []byte(j.ID)); err != nil {
			return fmt.Errorf("failed to add to pending index: %w", err)
		}
		return nil
	})
}

// Get retrieves a job by ID
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	var j *Job

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		j = &Job{}
		return json.Unmarshal(data, j)
	})

	return j, err
}

// List returns jobs matching the filter, newest first
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var jobs []*Job

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j Job
			if err := json.Unmarshal(v, &j); err != nil {
				continue
			}
			if filter.Owner != "" && j.Owner != filter.Owner {
				continue
			}
			if filter.Status != "" && j.Status != filter.Status {
				continue
			}
			jobs = append(jobs, &j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filter.Offset:]
	}
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

// ClaimPending atomically takes the next pending job and marks it
// processing. Returns nil when the queue is empty. Priority ordering:
// high before normal before low, oldest first within a priority.
func (s *Store) ClaimPending(ctx context.Context) (*Job, error) {
	var claimed *Job

	err := s.db.Update(func(tx *bolt.Tx) error {
		jobBucket := tx.Bucket(bucketJobs)
		c := tx.Bucket(bucketPending).Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			data := jobBucket.Get(v)
			if data == nil {
				// Job was deleted, clean up index
				c.Delete()
				continue
			}

			var j Job
			if err := json.Unmarshal(data, &j); err != nil {
				continue
			}
			if j.Status != StatusPending {
				// Stale index entry
				c.Delete()
				continue
			}

			j.Status = StatusProcessing
			j.UpdatedAt = time.Now()

			updated, err := json.Marshal(&j)
			if err != nil {
				return err
			}
			if err := jobBucket.Put([]byte(j.ID), updated); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}

			claimed = &j
			return nil
		}
		return nil
	})

	return claimed, err
}

// SetStatus moves a job from one of the allowed statuses to target.
// A job in any other status yields a TransitionError. Moving to
// pending re-queues the job for claiming.
func (s *Store) SetStatus(ctx context.Context, id string, from []Status, to Status) (*Job, error) {
	var result *Job

	err := s.db.Update(func(tx *bolt.Tx) error {
		jobBucket := tx.Bucket(bucketJobs)
		data := jobBucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}

		allowed := false
		for _, st := range from {
			if j.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return &TransitionError{JobID: id, Current: j.Status, Target: to}
		}

		j.Status = to
		j.UpdatedAt = time.Now()

		updated, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		if err := jobBucket.Put([]byte(id), updated); err != nil {
			return err
		}

		if to == StatusPending {
			indexKey := makeIndexKey(j.Priority, j.CreatedAt, j.ID)
			if err := tx.Bucket(bucketPending).Put(indexKey, []byte(j.ID)); err != nil {
				return fmt.Errorf("failed to add to pending index: %w", err)
			}
		}

		result = &j
		return nil
	})

	return result, err
}

// AddCounts adds delivery results to a job. Status is untouched, so
// a pause landing between batches is never overwritten by a counts
// write.
func (s *Store) AddCounts(ctx context.Context, id string, sent, failed int, lastErr string) (*Job, error) {
	var result *Job

	err := s.db.Update(func(tx *bolt.Tx) error {
		jobBucket := tx.Bucket(bucketJobs)
		data := jobBucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}

		j.SentEmails += sent
		j.FailedEmails += failed
		if lastErr != "" {
			j.LastError = lastErr
		}
		j.UpdatedAt = time.Now()

		updated, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		if err := jobBucket.Put([]byte(id), updated); err != nil {
			return err
		}
		result = &j
		return nil
	})

	return result, err
}

// Finish moves a processing job to a terminal status, recording the
// last delivery error if any
func (s *Store) Finish(ctx context.Context, id string, to Status, lastErr string) (*Job, error) {
	var result *Job

	err := s.db.Update(func(tx *bolt.Tx) error {
		jobBucket := tx.Bucket(bucketJobs)
		data := jobBucket.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}

		var j Job
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		if j.Status != StatusProcessing {
			return &TransitionError{JobID: id, Current: j.Status, Target: to}
		}

		j.Status = to
		if lastErr != "" {
			j.LastError = lastErr
		}
		j.UpdatedAt = time.Now()

		updated, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		if err := jobBucket.Put([]byte(id), updated); err != nil {
			return err
		}
		result = &j
		return nil
	})

	return result, err
}

// CountActive returns the number of pending and processing jobs,
// optionally scoped to one owner
func (s *Store) CountActive(ctx context.Context, owner string) (int, error) {
	count := 0

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j Job
			if err := json.Unmarshal(v, &j); err != nil {
				continue
			}
			if owner != "" && j.Owner != owner {
				continue
			}
			if j.Status == StatusPending || j.Status == StatusProcessing {
				count++
			}
		}
		return nil
	})

	return count, err
}

// Stats returns job counts by status
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJobs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var j Job
			if err := json.Unmarshal(v, &j); err != nil {
				continue
			}
			stats.Total++
			switch j.Status {
			case StatusPending:
				stats.Pending++
			case StatusProcessing:
				stats.Processing++
			case StatusCompleted:
				stats.Completed++
			case StatusFailed:
				stats.Failed++
			case StatusPaused:
				stats.Paused++
			}
		}
		return nil
	})

	return stats, err
}

// AddServerEmails adds n to the cumulative sent counter of a server.
// The counter is monotonic and survives job deletion.
func (s *Store) AddServerEmails(ctx context.Context, serverID string, n int) error {
	if n <= 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCounters)
		current := decodeCounter(bucket.Get([]byte(serverID)))
		return bucket.Put([]byte(serverID), encodeCounter(current+uint64(n)))
	})
}

// ServerEmailCount returns the cumulative sent counter of a server
func (s *Store) ServerEmailCount(ctx context.Context, serverID string) (int, error) {
	var count uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		count = decodeCounter(tx.Bucket(bucketCounters).Get([]byte(serverID)))
		return nil
	})
	return int(count), err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// makeIndexKey creates a sortable pending key: priority byte, then
// timestamp (RFC3339Nano), then ID
func makeIndexKey(p Priority, t time.Time, id string) []byte {
	return append([]byte{byte(p)}, []byte(t.Format(time.RFC3339Nano)+":"+id)...)
}

func encodeCounter(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

func decodeCounter(data []byte) uint64 {
	if len(data) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(data)
}
