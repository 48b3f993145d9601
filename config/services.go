package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeScoreRunner runs the contact score worker.
	ServiceModeScoreRunner ServiceMode = "score-runner"
	// ServiceModeReaper runs the job reaper for cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeHTTP,
		ServiceModeScoreRunner,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeScoreRunner, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: http, score-runner, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// ScoreRunnerConfig contains score worker configuration.
type ScoreRunnerConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `env:"SCORE_RUNNER_CONCURRENCY" envDefault:"1"`

	// JobLease is the duration to lease a score job. It doubles as the
	// per-attempt processing deadline.
	JobLease time.Duration `env:"SCORE_RUNNER_JOB_LEASE" envDefault:"60s"`

	// MaxRetries is the maximum number of attempts per job.
	MaxRetries int `env:"SCORE_RUNNER_MAX_RETRIES" envDefault:"3"`

	// ProcessDelay is the simulated latency of the external scoring step.
	ProcessDelay time.Duration `env:"SCORE_RUNNER_PROCESS_DELAY" envDefault:"2s"`
}

// Sanitize applies guardrails to score runner configuration values.
func (s *ScoreRunnerConfig) Sanitize() {
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.JobLease < 5*time.Second {
		s.JobLease = 5 * time.Second
	}
	if s.MaxRetries < 1 {
		s.MaxRetries = 1
	}
	if s.ProcessDelay < 0 {
		s.ProcessDelay = 0
	}
}

// ScoreLogConfig contains durable score log configuration.
type ScoreLogConfig struct {
	// Path is the location of the append-only score log file.
	Path string `env:"SCORE_LOG_PATH" envDefault:"storage/logs/scores.log"`
}

// Sanitize applies guardrails to score log configuration values.
func (s *ScoreLogConfig) Sanitize() {
	s.Path = strings.TrimSpace(s.Path)
	if s.Path == "" {
		s.Path = "storage/logs/scores.log"
	}
}

// BroadcastConfig contains real-time broadcast configuration.
type BroadcastConfig struct {
	// Enabled controls whether score events are published over Redis pub/sub.
	Enabled bool `env:"BROADCAST_ENABLED" envDefault:"true"`
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"168h"` // 7 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"168h"` // 7 days
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}
}
