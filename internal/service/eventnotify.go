package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/domain/model"
	"github.com/contactdesk/score-api/internal/observability/statsd"
)

// EventNotifierOptions groups dependencies for EventNotifier.
type EventNotifierOptions struct {
	Log         core.ScoreLog    // Required: durable score log
	Broadcaster core.Broadcaster // Optional: real-time fan-out, may be disabled
	Cache       core.CacheRepository
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// EventNotifier fans a processed-score event out to its consumers.
//
// The durable log append is the transactional part: its failure fails the
// whole notification and with it the job attempt. The broadcast is
// best-effort and never surfaces an error to the caller, so observers can
// drop messages without affecting score processing.
type EventNotifier struct {
	log         core.ScoreLog
	broadcaster core.Broadcaster
	cache       core.CacheRepository
	logger      *slog.Logger
	metrics     statsd.Sink
}

// NewEventNotifier constructs a new EventNotifier.
func NewEventNotifier(opts EventNotifierOptions) (*EventNotifier, error) {
	if opts.Log == nil {
		return nil, errors.New("ScoreLog is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "event_notifier")
	}

	return &EventNotifier{
		log:         opts.Log,
		broadcaster: opts.Broadcaster,
		cache:       opts.Cache,
		logger:      logger,
		metrics:     opts.Metrics,
	}, nil
}

// Notify records a processed score in the durable log, then broadcasts it.
// The log append happens before the broadcast is attempted.
func (n *EventNotifier) Notify(ctx context.Context, contact *model.Contact) error {
	if contact == nil {
		return errors.New("contact is required")
	}

	event := model.NewScoreEvent(contact)

	rec := core.LogRecord{
		ID:        contact.ID,
		Name:      contact.Name,
		Email:     contact.Email,
		Score:     contact.Score,
		Timestamp: event.ProcessedAt.UTC().Format(time.RFC3339),
	}
	if err := n.log.Append(ctx, rec); err != nil {
		if n.metrics != nil {
			n.metrics.Count("event.log_append", 1, map[string]string{"result": "error"})
		}
		return fmt.Errorf("append score log: %w", err)
	}
	if n.metrics != nil {
		n.metrics.Count("event.log_append", 1, map[string]string{"result": "success"})
	}

	n.invalidateStatsCache(ctx)
	n.broadcast(ctx, event)

	return nil
}

func (n *EventNotifier) invalidateStatsCache(ctx context.Context) {
	if n.cache == nil {
		return
	}
	if _, err := n.cache.Delete(ctx, logStatsCacheKey); err != nil && n.logger != nil {
		n.logger.WarnContext(ctx, "failed to invalidate log stats cache", "error", err)
	}
}

func (n *EventNotifier) broadcast(ctx context.Context, event model.ScoreEvent) {
	if n.broadcaster == nil || !n.broadcaster.Enabled() {
		return
	}

	start := time.Now()
	err := n.broadcaster.Publish(ctx, event)

	result := "success"
	if err != nil {
		result = "error"
		if n.logger != nil {
			n.logger.WarnContext(ctx, "score event broadcast failed",
				"contact_id", event.ContactID,
				"channel", event.BroadcastChannel(),
				"error", err,
			)
		}
	}
	if n.metrics != nil {
		tags := map[string]string{"result": result}
		n.metrics.Count("event.broadcast", 1, tags)
		n.metrics.Timing("event.broadcast_duration", time.Since(start), tags)
	}
}
