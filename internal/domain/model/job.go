package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Queue identifies the named queue a score job is routed to.
type Queue string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// QueueContacts is the default queue for contact score jobs.
	QueueContacts Queue = "contacts"

	// JobStatusPending indicates a job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates a job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job has finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job exhausted its attempts without completing.
	JobStatusFailed JobStatus = "failed"

	// DefaultMaxAttempts is the number of executions a job gets before it is marked failed.
	DefaultMaxAttempts = 3
)

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// ErrJobNotFound is returned when a job lookup misses.
var ErrJobNotFound = errors.New("job not found")

// Queue names are lowercase identifiers, also used as Postgres notification channels.
var queuePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Valid returns true if the Queue name is well formed.
func (q Queue) Valid() bool {
	return queuePattern.MatchString(string(q))
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusRunning || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Job represents a unit of deferred score work with its queue bookkeeping.
type Job struct {
	ID             string          `json:"id"                         db:"id"`
	Queue          Queue           `json:"queue"                      db:"queue"`
	Status         JobStatus       `json:"status"                     db:"status"`
	Payload        json.RawMessage `json:"payload"                    db:"payload"`
	ScheduledAt    time.Time       `json:"scheduled_at"               db:"scheduled_at"`
	StartedAt      *time.Time      `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"     db:"completed_at"`
	RetryCount     int             `json:"retry_count"                db:"retry_count"`
	MaxRetries     int             `json:"max_retries"                db:"max_retries"`
	LastError      *string         `json:"last_error,omitempty"       db:"last_error"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time       `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"                 db:"updated_at"`
}

// ScoreJobPayload is the JSON payload carried by a score job.
//
// Jobs reference the contact by id rather than carrying a snapshot, so the
// worker always sees current state and can observe a deletion.
type ScoreJobPayload struct {
	ContactID int64 `json:"contact_id"`
}

// EnqueueScoreRequest represents a request to enqueue a score job.
type EnqueueScoreRequest struct {
	ContactID   int64      `json:"contact_id"`
	Queue       Queue      `json:"queue,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	MaxRetries  int        `json:"max_retries,omitempty"`
}

// Validate validates the EnqueueScoreRequest fields and applies defaults.
func (r *EnqueueScoreRequest) Validate() error {
	if r.ContactID <= 0 {
		return errors.New("contact id must be positive")
	}
	if r.Queue == "" {
		r.Queue = QueueContacts
	}
	if !r.Queue.Valid() {
		return fmt.Errorf("invalid queue name: %q", r.Queue)
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = DefaultMaxAttempts
	}
	return nil
}

// JobStats represents statistics about jobs in different states.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
