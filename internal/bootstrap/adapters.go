package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/contactdesk/score-api/config"
	"github.com/contactdesk/score-api/internal/adapters/reaper"
	"github.com/contactdesk/score-api/internal/adapters/scorerunner"
	"github.com/contactdesk/score-api/internal/observability/statsd"
	"github.com/contactdesk/score-api/internal/service/failurenotifier"
)

// ScoreRunnerConfig contains configuration for the score runner.
type ScoreRunnerConfig struct {
	DB              *sql.DB
	Logger          *slog.Logger
	Lease           time.Duration
	Concurrency     int
	ProcessDelay    time.Duration
	Notifier        scorerunner.Notifier
	Metrics         statsd.Sink
	FailureNotifier *failurenotifier.Service
}

// RunScoreRunner starts the score runner service.
func RunScoreRunner(ctx context.Context, cfg ScoreRunnerConfig) error {
	runner, err := scorerunner.NewRunner(scorerunner.RunnerOptions{
		DB:              cfg.DB,
		Logger:          cfg.Logger,
		Lease:           cfg.Lease,
		Concurrency:     cfg.Concurrency,
		ProcessDelay:    cfg.ProcessDelay,
		Notifier:        cfg.Notifier,
		Metrics:         cfg.Metrics,
		FailureNotifier: cfg.FailureNotifier,
	})
	if err != nil {
		return fmt.Errorf("create score runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper starts the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
