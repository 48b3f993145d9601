package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	domainjob "github.com/contactdesk/score-api/internal/domain/job"
	"github.com/contactdesk/score-api/internal/domain/model"
	"github.com/contactdesk/score-api/internal/mocks"
	"github.com/contactdesk/score-api/internal/observability/notify"
	"github.com/contactdesk/score-api/internal/service/failurenotifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type stubJobNotifier struct {
	subscribeCalls []model.Queue
	stopCalled     bool
}

func (s *stubJobNotifier) Subscribe(queue model.Queue) (func(), <-chan struct{}) {
	s.subscribeCalls = append(s.subscribeCalls, queue)
	ch := make(chan struct{})
	return func() { close(ch) }, ch
}

func (s *stubJobNotifier) StopAll() {
	s.stopCalled = true
}

var _ domainjob.Notifier = (*stubJobNotifier)(nil)

func newTestJobService(t *testing.T, repo *mocks.MockJobRepository) (*JobService, *stubJobNotifier) {
	t.Helper()
	notifier := &stubJobNotifier{}
	svc := MustNewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 60 * time.Second,
		Notifier:     notifier,
	})
	return svc, notifier
}

func TestNewJobService(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)

	t.Run("success", func(t *testing.T) {
		notifier := &stubJobNotifier{}
		svc, err := NewJobService(JobServiceOptions{
			Repo:         repo,
			DefaultLease: 60 * time.Second,
			Notifier:     notifier,
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
		assert.Equal(t, 60*time.Second, svc.leasePolicy.Default())
	})

	t.Run("missing repo", func(t *testing.T) {
		_, err := NewJobService(JobServiceOptions{DefaultLease: time.Minute})
		require.Error(t, err)
	})

	t.Run("missing lease", func(t *testing.T) {
		_, err := NewJobService(JobServiceOptions{Repo: repo})
		require.Error(t, err)
	})
}

func TestJobService_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	req := &model.EnqueueScoreRequest{ContactID: 7}
	expected := &model.Job{ID: "job-1", Queue: model.QueueContacts, Status: model.JobStatusPending}
	repo.EXPECT().Create(ctx, req).Return(expected, nil)

	job, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, expected, job)
}

func TestJobService_ReserveNext(t *testing.T) {
	ctx := context.Background()

	t.Run("passes lease seconds", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		expected := &model.Job{ID: "job-1", Queue: model.QueueContacts, Status: model.JobStatusRunning}
		repo.EXPECT().ReserveNext(ctx, model.QueueContacts, 90).Return(expected, nil)

		job, err := svc.ReserveNext(ctx, model.QueueContacts, 90*time.Second)
		require.NoError(t, err)
		assert.Equal(t, expected, job)
	})

	t.Run("zero lease uses default", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().ReserveNext(ctx, model.QueueContacts, 60).Return(nil, model.ErrNoJobsAvailable)

		_, err := svc.ReserveNext(ctx, model.QueueContacts, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})

	t.Run("sub-second lease clamps to one second", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().ReserveNext(ctx, model.QueueContacts, 1).Return(nil, model.ErrNoJobsAvailable)

		_, err := svc.ReserveNext(ctx, model.QueueContacts, 100*time.Millisecond)
		require.Error(t, err)
	})
}

func TestJobService_Heartbeat(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	repo.EXPECT().Heartbeat(ctx, "job-1", 30).Return(true, nil)

	updated, err := svc.Heartbeat(ctx, "job-1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestJobService_Complete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	repo.EXPECT().Complete(ctx, "job-1").Return(true, nil)

	completed, err := svc.Complete(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, completed)
}

func TestJobService_Fail(t *testing.T) {
	ctx := context.Background()

	t.Run("requires error message", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		_, err := svc.Fail(ctx, "job-1", "")
		require.Error(t, err)
	})

	t.Run("marks job failed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := mocks.NewMockJobRepository(ctrl)
		svc, _ := newTestJobService(t, repo)

		repo.EXPECT().Fail(ctx, "job-1", "scoring blew up").Return(true, nil)

		failed, err := svc.Fail(ctx, "job-1", "scoring blew up")
		require.NoError(t, err)
		assert.True(t, failed)
	})
}

func TestJobService_FailWithDetails_Notifies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)

	var captured []notify.JobFailurePayload
	sink := notify.SinkFunc(func(_ context.Context, payload notify.JobFailurePayload) error {
		captured = append(captured, payload)
		return nil
	})

	svc := MustNewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 60 * time.Second,
		Notifier:     &stubJobNotifier{},
		FailureNotifier: failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{Name: "capture", Sink: sink}},
		}),
	})

	ctx := context.Background()
	payload, err := json.Marshal(model.ScoreJobPayload{ContactID: 42})
	require.NoError(t, err)

	job := &model.Job{
		ID:         "job-1",
		Queue:      model.QueueContacts,
		Status:     model.JobStatusRunning,
		Payload:    payload,
		RetryCount: 2,
		MaxRetries: 3,
	}
	repo.EXPECT().GetByID(ctx, "job-1").Return(job, nil)
	repo.EXPECT().Fail(ctx, "job-1", "scoring blew up").Return(true, nil)

	failed, err := svc.FailWithDetails(ctx, "job-1", "scoring blew up", JobFailureDetails{
		ErrorClass: "timeout_error",
		Metadata:   map[string]string{"component": "score_runner"},
	})
	require.NoError(t, err)
	assert.True(t, failed)

	require.Len(t, captured, 1)
	got := captured[0]
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "contacts", got.Queue)
	assert.Equal(t, int64(42), got.ContactID)
	assert.Equal(t, "scoring blew up", got.Error)
	assert.Equal(t, notify.SeverityCritical, got.Severity)
	assert.Equal(t, "timeout_error", got.ErrorClass)
	// Retry 3 of 3 means the job lands in failed, not pending.
	assert.Equal(t, "3", got.Metadata["retry_count"])
	assert.Equal(t, "3", got.Metadata["max_retries"])
	assert.Equal(t, "failed", got.Metadata["status"])
	assert.Equal(t, "score_runner", got.Metadata["component"])
}

func TestJobService_FailWithDetails_NoNotifyWhenTerminalMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)

	notified := false
	sink := notify.SinkFunc(func(context.Context, notify.JobFailurePayload) error {
		notified = true
		return nil
	})

	svc := MustNewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 60 * time.Second,
		Notifier:     &stubJobNotifier{},
		FailureNotifier: failurenotifier.NewService(failurenotifier.Options{
			Sinks: []failurenotifier.SinkRegistration{{Name: "capture", Sink: sink}},
		}),
	})

	ctx := context.Background()
	repo.EXPECT().GetByID(ctx, "job-1").Return(nil, nil)
	repo.EXPECT().Fail(ctx, "job-1", "already done").Return(false, nil)

	failed, err := svc.FailWithDetails(ctx, "job-1", "already done", JobFailureDetails{})
	require.NoError(t, err)
	assert.False(t, failed)
	assert.False(t, notified)
}

func TestJobService_StatsAndGetByID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, _ := newTestJobService(t, repo)
	ctx := context.Background()

	stats := &model.JobStats{Pending: 2, Running: 1}
	repo.EXPECT().Stats(ctx, model.QueueContacts).Return(stats, nil)
	got, err := svc.Stats(ctx, model.QueueContacts)
	require.NoError(t, err)
	assert.Equal(t, stats, got)

	job := &model.Job{ID: "job-1"}
	repo.EXPECT().GetByID(ctx, "job-1").Return(job, nil)
	gotJob, err := svc.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job, gotJob)

	repo.EXPECT().GetByID(ctx, "job-x").Return(nil, errors.New("connection reset"))
	_, err = svc.GetByID(ctx, "job-x")
	require.Error(t, err)
}

func TestJobService_SubscribeAndStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockJobRepository(ctrl)
	svc, notifier := newTestJobService(t, repo)

	unsub, ch := svc.Subscribe(model.QueueContacts)
	require.NotNil(t, ch)
	unsub()
	assert.Equal(t, []model.Queue{model.QueueContacts}, notifier.subscribeCalls)

	svc.StopAllListeners()
	assert.True(t, notifier.stopCalled)
}
