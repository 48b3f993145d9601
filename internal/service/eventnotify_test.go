package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/domain/model"
	"github.com/contactdesk/score-api/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func processedContact() *model.Contact {
	processedAt := time.Date(2026, 8, 30, 12, 30, 0, 0, time.UTC)
	return &model.Contact{
		ID:          42,
		Name:        "Mary Jackson",
		Email:       "mary@example.com",
		Score:       87,
		ProcessedAt: &processedAt,
	}
}

func TestNewEventNotifier_RequiresLog(t *testing.T) {
	_, err := NewEventNotifier(EventNotifierOptions{})
	require.Error(t, err)
}

func TestEventNotifier_Notify(t *testing.T) {
	ctx := context.Background()

	t.Run("appends record then broadcasts", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		log := mocks.NewMockScoreLog(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		contact := processedContact()
		log.EXPECT().
			Append(ctx, core.LogRecord{
				ID:        42,
				Name:      "Mary Jackson",
				Email:     "mary@example.com",
				Score:     87,
				Timestamp: "2026-08-30T12:30:00Z",
			}).
			Return(nil)
		broadcaster.EXPECT().Enabled().Return(true)
		broadcaster.EXPECT().
			Publish(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, event model.ScoreEvent) error {
				assert.Equal(t, int64(42), event.ContactID)
				assert.Equal(t, 87, event.Score)
				assert.Equal(t, "contacts.42", event.BroadcastChannel())
				return nil
			})

		notifier, err := NewEventNotifier(EventNotifierOptions{Log: log, Broadcaster: broadcaster})
		require.NoError(t, err)
		require.NoError(t, notifier.Notify(ctx, contact))
	})

	t.Run("append failure fails the notification", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		log := mocks.NewMockScoreLog(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		log.EXPECT().Append(ctx, gomock.Any()).Return(errors.New("disk full"))

		notifier, err := NewEventNotifier(EventNotifierOptions{Log: log, Broadcaster: broadcaster})
		require.NoError(t, err)

		err = notifier.Notify(ctx, processedContact())
		require.Error(t, err)
		assert.ErrorContains(t, err, "disk full")
	})

	t.Run("broadcast failure is swallowed", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		log := mocks.NewMockScoreLog(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		log.EXPECT().Append(ctx, gomock.Any()).Return(nil)
		broadcaster.EXPECT().Enabled().Return(true)
		broadcaster.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("redis down"))

		notifier, err := NewEventNotifier(EventNotifierOptions{Log: log, Broadcaster: broadcaster})
		require.NoError(t, err)
		require.NoError(t, notifier.Notify(ctx, processedContact()))
	})

	t.Run("disabled broadcaster skips publish", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		log := mocks.NewMockScoreLog(ctrl)
		broadcaster := mocks.NewMockBroadcaster(ctrl)

		log.EXPECT().Append(ctx, gomock.Any()).Return(nil)
		broadcaster.EXPECT().Enabled().Return(false)

		notifier, err := NewEventNotifier(EventNotifierOptions{Log: log, Broadcaster: broadcaster})
		require.NoError(t, err)
		require.NoError(t, notifier.Notify(ctx, processedContact()))
	})

	t.Run("invalidates cached stats after append", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		log := mocks.NewMockScoreLog(ctrl)
		cache := mocks.NewMockCacheRepository(ctrl)

		log.EXPECT().Append(ctx, gomock.Any()).Return(nil)
		cache.EXPECT().Delete(ctx, "scorelog:stats").Return(true, nil)

		notifier, err := NewEventNotifier(EventNotifierOptions{Log: log, Cache: cache})
		require.NoError(t, err)
		require.NoError(t, notifier.Notify(ctx, processedContact()))
	})

	t.Run("nil contact rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		notifier, err := NewEventNotifier(EventNotifierOptions{Log: mocks.NewMockScoreLog(ctrl)})
		require.NoError(t, err)
		require.Error(t, notifier.Notify(ctx, nil))
	})
}
