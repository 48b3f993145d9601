// Package scorerunner provides the job runner adapter that processes contact
// score jobs from the queue.
package scorerunner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/data"
	"github.com/contactdesk/score-api/internal/domain/model"
	obserrors "github.com/contactdesk/score-api/internal/observability/errors"
	"github.com/contactdesk/score-api/internal/observability/metrics"
	"github.com/contactdesk/score-api/internal/observability/statsd"
	"github.com/contactdesk/score-api/internal/service"
	"github.com/contactdesk/score-api/internal/service/failurenotifier"
	"golang.org/x/sync/errgroup"
)

// Notifier fans out a processed-score event.
type Notifier interface {
	Notify(ctx context.Context, contact *model.Contact) error
}

// RunnerOptions configures the score job runner adapter.
type RunnerOptions struct {
	DB     *sql.DB
	Logger *slog.Logger

	// Job processing settings
	Lease        time.Duration // per-job lease duration; defaults to 60s
	Concurrency  int           // number of worker goroutines; defaults to 1
	ProcessDelay time.Duration // simulated scoring latency; defaults to 2s

	// Required fan-out for processed scores
	Notifier Notifier

	// Optional dependency injections (useful for tests/decoupling)
	JobsRepo        core.JobRepository
	ContactRepo     core.ContactRepository
	Score           func() int // score generator; defaults to uniform 0..100
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// Runner processes contact score jobs: it reserves a job, scores the contact,
// persists the result, and notifies downstream consumers.
type Runner struct {
	jobs     *service.JobService
	contacts core.ContactRepository
	notifier Notifier
	score    func() int

	logger  *slog.Logger
	lease   time.Duration
	workers int
	delay   time.Duration
	metrics statsd.Sink
}

// NewRunner creates a new score job runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Notifier == nil {
		return nil, errors.New("score runner requires a Notifier")
	}

	jobsRepo := opts.JobsRepo
	if jobsRepo == nil {
		if opts.DB == nil {
			return nil, errors.New("score runner requires a DB handle or an explicit JobRepository")
		}
		jobsRepo = data.NewJobRepo(opts.DB, data.RepoConfig{Logger: logger})
	}

	contactRepo := opts.ContactRepo
	if contactRepo == nil {
		if opts.DB == nil {
			return nil, errors.New("score runner requires a DB handle or an explicit ContactRepository")
		}
		contactRepo = data.NewContactRepo(opts.DB)
	}

	lease := opts.Lease
	if lease <= 0 {
		lease = 60 * time.Second
	}

	delay := opts.ProcessDelay
	if delay < 0 {
		delay = 0
	}

	score := opts.Score
	if score == nil {
		score = func() int { return rand.IntN(model.MaxScore + 1) }
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	jobService, err := service.NewJobService(service.JobServiceOptions{
		Repo:            jobsRepo,
		DefaultLease:    lease,
		Logger:          logger,
		FailureNotifier: opts.FailureNotifier,
	})
	if err != nil {
		return nil, fmt.Errorf("create job service: %w", err)
	}

	return &Runner{
		jobs:     jobService,
		contacts: contactRepo,
		notifier: opts.Notifier,
		score:    score,
		logger:   logger,
		lease:    lease,
		workers:  workers,
		delay:    delay,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts the score job runner and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting score job runner",
		"workers", r.workers,
		"lease", r.lease,
		"process_delay", r.delay,
	)

	group, gctx := errgroup.WithContext(ctx)
	for range r.workers {
		group.Go(func() error { return r.runWorkerLoop(gctx) })
	}
	err := group.Wait()

	r.jobs.StopAllListeners()
	return err
}

// runWorkerLoop implements the worker loop for processing score jobs.
func (r *Runner) runWorkerLoop(ctx context.Context) error {
	unsub, ch := r.jobs.Subscribe(model.QueueContacts)
	defer unsub()

	for ctx.Err() == nil {
		job, err := r.jobs.ReserveNext(ctx, model.QueueContacts, r.lease)
		switch {
		case err == nil:
			if job != nil {
				r.processJob(ctx, job)
			}
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, ch) {
				return nil
			}
		default:
			if ctx.Err() != nil {
				return nil
			}
			r.logger.ErrorContext(ctx, "failed to reserve next score job", "error", err)
			return err
		}
	}
	return ctx.Err()
}

// processJob processes a single score job inside a context bounded by its lease.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	r.logger.InfoContext(ctx, "processing score job", "job_id", job.ID)

	attemptCtx, cancel := context.WithTimeout(ctx, r.lease)
	defer cancel()

	start := time.Now()

	result, err := r.execute(attemptCtx, job)
	if err != nil {
		r.logger.ErrorContext(ctx, "score job processing failed", "job_id", job.ID, "error", err)
		if _, ferr := r.jobs.FailWithDetails(ctx, job.ID, err.Error(), service.JobFailureDetails{
			ErrorClass: obserrors.Classify(err),
			Metadata: map[string]string{
				"component": "score_runner",
			},
		}); ferr != nil {
			r.logger.ErrorContext(ctx, "failed to mark job as failed", "job_id", job.ID, "error", ferr)
		}
		r.emitJobMetric(jobMetricInput{
			Job:        job,
			Transition: "failed",
			Result:     metrics.ResultError,
			Elapsed:    time.Since(start),
			Err:        err,
		})
		return
	}

	if completed, err := r.jobs.Complete(ctx, job.ID); err != nil {
		r.logger.ErrorContext(ctx, "failed to mark job as completed", "job_id", job.ID, "error", err)
		r.emitJobMetric(jobMetricInput{
			Job:        job,
			Transition: "completed",
			Result:     metrics.ResultError,
			Elapsed:    time.Since(start),
			Err:        err,
		})
	} else {
		res := metrics.ResultNoop
		if completed && result != executionSkipped {
			res = metrics.ResultSuccess
		}
		r.emitJobMetric(jobMetricInput{
			Job:        job,
			Transition: "completed",
			Result:     res,
			Elapsed:    time.Since(start),
		})
	}
}

type executionResult int

const (
	executionScored executionResult = iota
	// executionSkipped marks a successful no-op: the contact vanished between
	// enqueue and processing, which must not burn a retry.
	executionSkipped
)

// execute performs the scoring work for one job attempt.
func (r *Runner) execute(ctx context.Context, job *model.Job) (executionResult, error) {
	var payload model.ScoreJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return executionScored, fmt.Errorf("decode job payload: %w", err)
	}
	if payload.ContactID <= 0 {
		return executionScored, fmt.Errorf("invalid contact id %d in job payload", payload.ContactID)
	}

	if err := r.sleep(ctx); err != nil {
		return executionScored, err
	}

	contact, err := r.contacts.GetByID(ctx, payload.ContactID)
	if err != nil {
		return executionScored, fmt.Errorf("load contact %d: %w", payload.ContactID, err)
	}
	if contact == nil {
		r.logger.WarnContext(ctx, "contact gone before scoring, skipping",
			"job_id", job.ID,
			"contact_id", payload.ContactID,
		)
		return executionSkipped, nil
	}

	updated, err := r.contacts.UpdateScore(ctx, contact.ID, core.ScoreResult{
		Score:       r.score(),
		ProcessedAt: time.Now().UTC(),
	})
	if err != nil {
		return executionScored, fmt.Errorf("update score for contact %d: %w", contact.ID, err)
	}
	if updated == nil {
		r.logger.WarnContext(ctx, "contact gone during scoring, skipping",
			"job_id", job.ID,
			"contact_id", payload.ContactID,
		)
		return executionSkipped, nil
	}

	if err := r.notifier.Notify(ctx, updated); err != nil {
		return executionScored, fmt.Errorf("notify score processed for contact %d: %w", updated.ID, err)
	}

	r.logger.InfoContext(ctx, "contact score processed",
		"job_id", job.ID,
		"contact_id", updated.ID,
		"score", updated.Score,
	)
	return executionScored, nil
}

// sleep simulates the external scoring latency, honouring cancellation.
func (r *Runner) sleep(ctx context.Context) error {
	if r.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// waitForNotify waits for a job notification or context cancellation.
func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

type jobMetricInput struct {
	Job        *model.Job
	Transition string
	Result     string
	Elapsed    time.Duration
	Err        error
}

func (r *Runner) emitJobMetric(input jobMetricInput) {
	if r.metrics == nil || input.Job == nil {
		return
	}

	metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
		Queue:      string(input.Job.Queue),
		Transition: input.Transition,
		Result:     input.Result,
		Duration:   input.Elapsed,
		Err:        input.Err,
	})
}
