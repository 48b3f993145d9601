package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/domain/model"
	"github.com/contactdesk/score-api/internal/testutil"
)

// TestJobRepo_Integration_CreateAndReserveFIFO verifies jobs are handed out in
// enqueue order and that a drained queue reports ErrNoJobsAvailable.
func TestJobRepo_Integration_CreateAndReserveFIFO(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		contactIDs := []int64{101, 102, 103}
		for _, id := range contactIDs {
			_, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: id})
			require.NoError(t, err)
		}

		for _, wantID := range contactIDs {
			reserved, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
			require.NoError(t, err)

			var payload model.ScoreJobPayload
			require.NoError(t, json.Unmarshal(reserved.Payload, &payload))
			assert.Equal(t, wantID, payload.ContactID)
			assert.Equal(t, model.JobStatusRunning, reserved.Status)
		}

		_, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

// TestJobRepo_Integration_JobLifecycle walks a job through reserve, heartbeat,
// a failed attempt with retry backoff, and completion on the retry.
func TestJobRepo_Integration_JobLifecycle(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		timeProvider := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(db, RepoConfig{
			RetryDelaySeconds: 5,
			TimeProvider:      timeProvider,
		})

		job, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{
			ContactID:  42,
			MaxRetries: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, model.QueueContacts, job.Queue)

		reserved, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		assert.Equal(t, job.ID, reserved.ID)
		assert.Equal(t, model.JobStatusRunning, reserved.Status)
		assert.NotNil(t, reserved.StartedAt)
		assert.NotNil(t, reserved.LeaseExpiresAt)

		extended, err := repo.Heartbeat(context.Background(), job.ID, 60)
		require.NoError(t, err)
		assert.True(t, extended)

		updated, err := repo.Fail(context.Background(), job.ID, "first failure")
		require.NoError(t, err)
		assert.True(t, updated)

		// The retry is scheduled 5 seconds out, so it is not yet visible.
		_, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		timeProvider.AddTime(6 * time.Second)

		retry, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		assert.Equal(t, job.ID, retry.ID)
		assert.Equal(t, 1, retry.RetryCount)
		require.NotNil(t, retry.LastError)
		assert.Equal(t, "first failure", *retry.LastError)

		done, err := repo.Complete(context.Background(), job.ID)
		require.NoError(t, err)
		assert.True(t, done)

		_, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

// TestJobRepo_Integration_RetriesExhausted verifies that a job whose final
// attempt fails lands in the terminal failed state instead of requeueing.
func TestJobRepo_Integration_RetriesExhausted(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		job, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{
			ContactID:  7,
			MaxRetries: 1,
		})
		require.NoError(t, err)

		reserved, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		require.Equal(t, job.ID, reserved.ID)

		updated, err := repo.Fail(context.Background(), job.ID, "boom")
		require.NoError(t, err)
		assert.True(t, updated)

		_, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		failed, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, failed.Status)
		assert.NotNil(t, failed.CompletedAt)
		require.NotNil(t, failed.LastError)
		assert.Equal(t, "boom", *failed.LastError)
	})
}

// TestJobRepo_Integration_LeaseExpiryRequeue verifies that a running job whose
// lease lapses becomes reservable again.
func TestJobRepo_Integration_LeaseExpiryRequeue(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		timeProvider := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: timeProvider})

		job, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 9})
		require.NoError(t, err)

		reserved, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		require.Equal(t, job.ID, reserved.ID)

		// The lease is still live: nothing else may observe the job.
		_, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		timeProvider.AddTime(31 * time.Second)

		requeued, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		assert.Equal(t, job.ID, requeued.ID)
		assert.Equal(t, model.JobStatusRunning, requeued.Status)
	})
}

// TestJobRepo_Integration_ScheduledAtDefersReservation verifies that a job
// enqueued for the future stays invisible until its scheduled time.
func TestJobRepo_Integration_ScheduledAtDefersReservation(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		timeProvider := NewFixedTimeProvider(testutil.TestTime())
		repo := NewJobRepo(db, RepoConfig{TimeProvider: timeProvider})

		runAt := testutil.TestTime().Add(time.Hour)
		job, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{
			ContactID:   3,
			ScheduledAt: testutil.TimePtr(runAt),
		})
		require.NoError(t, err)

		_, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.ErrorIs(t, err, model.ErrNoJobsAvailable)

		timeProvider.AddTime(time.Hour + time.Second)

		reserved, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		assert.Equal(t, job.ID, reserved.ID)
	})
}

// TestJobRepo_Integration_ConcurrentReservation verifies that only one of two
// competing workers gets a given job.
func TestJobRepo_Integration_ConcurrentReservation(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		job, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 11})
		require.NoError(t, err)

		results := make(chan *model.Job, 2)
		failures := make(chan error, 2)

		for range 2 {
			go func() {
				reserved, reserveErr := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
				if reserveErr != nil {
					failures <- reserveErr
				} else {
					results <- reserved
				}
			}()
		}

		var successCount, errorCount int
		var reservedJob *model.Job
		for range 2 {
			select {
			case reserved := <-results:
				successCount++
				reservedJob = reserved
			case reserveErr := <-failures:
				errorCount++
				require.ErrorIs(t, reserveErr, model.ErrNoJobsAvailable)
			case <-time.After(5 * time.Second):
				t.Fatal("Test timed out")
			}
		}

		assert.Equal(t, 1, successCount, "Exactly one goroutine should succeed")
		assert.Equal(t, 1, errorCount, "Exactly one goroutine should fail")
		if reservedJob != nil {
			assert.Equal(t, job.ID, reservedJob.ID)
		}
	})
}

// TestJobRepo_Integration_Stats verifies per-state counts on a queue.
func TestJobRepo_Integration_Stats(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		// Jobs are reserved FIFO, so enqueue in the order each outcome needs:
		// completed first, running second, failed third, then two left pending.
		completedJob, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 1})
		require.NoError(t, err)
		runningJob, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 2})
		require.NoError(t, err)
		failedJob, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 3, MaxRetries: 1})
		require.NoError(t, err)
		for id := int64(4); id <= 5; id++ {
			_, err = repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: id})
			require.NoError(t, err)
		}

		reserved, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		require.Equal(t, completedJob.ID, reserved.ID)
		_, err = repo.Complete(context.Background(), reserved.ID)
		require.NoError(t, err)

		reserved, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		require.Equal(t, runningJob.ID, reserved.ID)

		reserved, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		require.Equal(t, failedJob.ID, reserved.ID)
		_, err = repo.Fail(context.Background(), reserved.ID, "terminal failure")
		require.NoError(t, err)

		stats, err := repo.Stats(context.Background(), model.QueueContacts)
		require.NoError(t, err)

		assert.Equal(t, 2, stats.Pending)
		assert.Equal(t, 1, stats.Running)
		assert.Equal(t, 1, stats.Completed)
		assert.Equal(t, 1, stats.Failed)
	})
}

// TestJobRepo_Integration_GetByID covers lookup of existing and missing jobs.
func TestJobRepo_Integration_GetByID(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := NewJobRepo(db, RepoConfig{})

		job, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 21})
		require.NoError(t, err)

		fetched, err := repo.GetByID(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, fetched.ID)
		assert.Equal(t, model.JobStatusPending, fetched.Status)

		_, err = repo.GetByID(context.Background(), uuid.NewString())
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}

// TestJobRepo_Integration_DeleteFinished verifies reaper cutoffs: completed
// and failed jobs use independent retention windows, live jobs are untouched.
func TestJobRepo_Integration_DeleteFinished(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithTestDB(t, func(db *sql.DB) {
		finishTime := testutil.TestTime()
		timeProvider := NewFixedTimeProvider(finishTime)
		repo := NewJobRepo(db, RepoConfig{TimeProvider: timeProvider})

		completedJob, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 1})
		require.NoError(t, err)
		failedJob, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 2, MaxRetries: 1})
		require.NoError(t, err)
		pendingJob, err := repo.Create(context.Background(), &model.EnqueueScoreRequest{ContactID: 3})
		require.NoError(t, err)

		reserved, err := repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		require.Equal(t, completedJob.ID, reserved.ID)
		_, err = repo.Complete(context.Background(), reserved.ID)
		require.NoError(t, err)

		reserved, err = repo.ReserveNext(context.Background(), model.QueueContacts, 30)
		require.NoError(t, err)
		require.Equal(t, failedJob.ID, reserved.ID)
		_, err = repo.Fail(context.Background(), reserved.ID, "terminal failure")
		require.NoError(t, err)

		// Completed jobs age out of retention first; the failed job's longer
		// inspection window keeps it around.
		deleted, err := repo.DeleteFinished(context.Background(), core.DeleteFinishedParams{
			Queue:           model.QueueContacts,
			CompletedBefore: finishTime.Add(time.Hour),
			FailedBefore:    finishTime.Add(-time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = repo.GetByID(context.Background(), completedJob.ID)
		require.ErrorIs(t, err, model.ErrJobNotFound)

		stillFailed, err := repo.GetByID(context.Background(), failedJob.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, stillFailed.Status)

		deleted, err = repo.DeleteFinished(context.Background(), core.DeleteFinishedParams{
			Queue:           model.QueueContacts,
			CompletedBefore: finishTime.Add(time.Hour),
			FailedBefore:    finishTime.Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		// The pending job is never eligible for cleanup.
		survivor, err := repo.GetByID(context.Background(), pendingJob.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusPending, survivor.Status)
	})
}
