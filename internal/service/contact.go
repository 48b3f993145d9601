package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/domain/model"
	apperrors "github.com/contactdesk/score-api/internal/errors"
	"github.com/contactdesk/score-api/internal/observability/statsd"
)

// JobEnqueuer is the slice of JobService the contact service needs.
type JobEnqueuer interface {
	Create(ctx context.Context, req *model.EnqueueScoreRequest) (*model.Job, error)
}

// ContactServiceOptions groups dependencies for ContactService.
type ContactServiceOptions struct {
	Repo       core.ContactRepository // Required: contact repository
	Jobs       JobEnqueuer            // Required: queue for score jobs
	MaxRetries int                    // Optional: attempts per score job; 0 uses the model default
	Logger     *slog.Logger           // Optional: structured logger
	Metrics    statsd.Sink            // Optional: metrics sink
}

// ContactService exposes contact reads and the score trigger operation.
type ContactService struct {
	repo       core.ContactRepository
	jobs       JobEnqueuer
	maxRetries int
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewContactService constructs a new ContactService.
func NewContactService(opts ContactServiceOptions) (*ContactService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ContactRepository is required")
	}
	if opts.Jobs == nil {
		return nil, errors.New("JobEnqueuer is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "contact_service")
	}

	if opts.MaxRetries < 0 {
		return nil, errors.New("MaxRetries must be >= 0")
	}

	return &ContactService{
		repo:       opts.Repo,
		jobs:       opts.Jobs,
		maxRetries: opts.MaxRetries,
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// Get retrieves a contact by ID. An absent contact maps to a not-found AppError.
func (s *ContactService) Get(ctx context.Context, id int64) (*model.Contact, error) {
	contact, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get contact %d: %w", id, err)
	}
	if contact == nil {
		return nil, apperrors.NotFoundf("contact %d not found", id)
	}
	return contact, nil
}

// TriggerScore enqueues an asynchronous score job for the contact.
//
// A contact that already carries a processed score is rejected with a conflict
// error; the client must treat scoring as one-shot. The enqueued job is
// returned so callers can expose its ID for status polling.
func (s *ContactService) TriggerScore(ctx context.Context, id int64) (*model.Job, error) {
	contact, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get contact %d: %w", id, err)
	}
	if contact == nil {
		return nil, apperrors.NotFoundf("contact %d not found", id)
	}
	if contact.Processed() {
		return nil, apperrors.Conflictf("contact %d has already been processed", id)
	}

	job, err := s.jobs.Create(ctx, &model.EnqueueScoreRequest{
		ContactID:  id,
		MaxRetries: s.maxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue score job for contact %d: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "score job enqueued",
			"contact_id", id,
			"job_id", job.ID,
			"queue", job.Queue,
		)
	}
	if s.metrics != nil {
		s.metrics.Count("score.enqueued", 1, map[string]string{
			"queue": string(job.Queue),
		})
	}

	return job, nil
}
