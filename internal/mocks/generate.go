// Package mocks provides mock implementations for testing the score job system.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockJobRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(job, nil)
package mocks

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Create, GetByID, ReserveNext, WaitForNotification, Heartbeat, Complete, Fail, Stats, DeleteFinished
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/contactdesk/score-api/internal/core JobRepository

// Generate mock for ContactRepository interface from internal/core package.
// This creates MockContactRepository with methods for all ContactRepository interface methods:
// GetByID, UpdateScore
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=contact_repository_mock.go github.com/contactdesk/score-api/internal/core ContactRepository

// Generate mock for ScoreLog interface from internal/core package.
// This creates MockScoreLog with methods for all ScoreLog interface methods:
// Append, ReadAll
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=score_log_mock.go github.com/contactdesk/score-api/internal/core ScoreLog

// Generate mock for Broadcaster interface from internal/core package.
// This creates MockBroadcaster with methods for all Broadcaster interface methods:
// Publish, Enabled
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=broadcaster_mock.go github.com/contactdesk/score-api/internal/core Broadcaster

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Set, Get, Delete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_repository_mock.go github.com/contactdesk/score-api/internal/core CacheRepository
