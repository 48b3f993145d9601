// Package core defines the repository and transport ports shared between the
// service layer and its adapters.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/contactdesk/score-api/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture).
// Service implementations depend on these interfaces, not concrete implementations.

// ContactRepository defines read/update access to the contact store.
//
// GetByID and UpdateScore treat an absent contact as a first-class outcome and
// return (nil, nil): the worker may legitimately run after a deletion.
type ContactRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Contact, error)
	// UpdateScore atomically sets score, processed_at, and updated_at in a
	// single row update and returns the updated snapshot.
	UpdateScore(ctx context.Context, id int64, result ScoreResult) (*model.Contact, error)
}

// ScoreResult groups the outcome applied to a contact to keep param count ≤3.
type ScoreResult struct {
	Score       int
	ProcessedAt time.Time
}

// JobRepository defines the interface for score job queue operations.
type JobRepository interface {
	Create(ctx context.Context, req *model.EnqueueScoreRequest) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	ReserveNext(ctx context.Context, queue model.Queue, leaseSeconds int) (*model.Job, error)
	WaitForNotification(ctx context.Context, queue model.Queue) error
	Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, id string) (bool, error)
	Fail(ctx context.Context, id, errMsg string) (bool, error)
	Stats(ctx context.Context, queue model.Queue) (*model.JobStats, error)
	// DeleteFinished removes completed/failed jobs older than the cutoff and
	// returns the number of rows removed.
	DeleteFinished(ctx context.Context, params DeleteFinishedParams) (int64, error)
}

// DeleteFinishedParams groups parameters for JobRepository.DeleteFinished.
type DeleteFinishedParams struct {
	Queue           model.Queue
	CompletedBefore time.Time
	FailedBefore    time.Time
}

// ErrLogNotFound is returned when the durable score log source does not exist.
// This is distinct from an existing-but-empty log.
var ErrLogNotFound = errors.New("score log not found")

// LogRecord is the structured record appended to the durable score log.
// Name is optional for backward compatibility with older log formats.
type LogRecord struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email"`
	Score     int    `json:"score"`
	Timestamp string `json:"timestamp"`
}

// ScoreLog is the append-only event sink for processed-score records.
//
// Append must be safe for concurrent use by multiple worker executions; the
// ordering of concurrent appends is whatever the sink provides. ReadAll
// returns the raw lines in append order and ErrLogNotFound when the
// underlying source does not exist.
type ScoreLog interface {
	Append(ctx context.Context, rec LogRecord) error
	ReadAll(ctx context.Context) ([]string, error)
}

// Broadcaster publishes score events to real-time observers on a per-contact
// channel. Implementations may be disabled entirely; publishing is always
// best-effort from the caller's point of view.
type Broadcaster interface {
	Publish(ctx context.Context, event model.ScoreEvent) error
	// Enabled reports whether publishes will actually be attempted.
	Enabled() bool
}

// CacheRepository defines minimal TTL-based cache operations.
type CacheRepository interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) (bool, error)
}
