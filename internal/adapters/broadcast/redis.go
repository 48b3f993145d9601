// Package broadcast provides real-time fan-out of score events over Redis
// pub/sub channels.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/domain/model"
)

// RedisBroadcaster publishes score events on a per-contact Redis channel.
// Delivery is fire-and-forget: subscribers that are not listening at publish
// time never see the event.
type RedisBroadcaster struct {
	client redis.UniversalClient
}

var _ core.Broadcaster = (*RedisBroadcaster)(nil)

// NewRedisBroadcaster creates a broadcaster backed by the given Redis client.
func NewRedisBroadcaster(client redis.UniversalClient) (*RedisBroadcaster, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &RedisBroadcaster{client: client}, nil
}

// Publish sends the event to its per-contact channel.
func (b *RedisBroadcaster) Publish(ctx context.Context, event model.ScoreEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode score event: %w", err)
	}

	if err := b.client.Publish(ctx, event.BroadcastChannel(), payload).Err(); err != nil {
		return fmt.Errorf("publish score event: %w", err)
	}
	return nil
}

// Enabled always reports true for a constructed Redis broadcaster.
func (b *RedisBroadcaster) Enabled() bool {
	return true
}

// Disabled is a no-op broadcaster used when real-time fan-out is turned off.
// The durable log remains the only trace of processed scores.
type Disabled struct{}

var _ core.Broadcaster = Disabled{}

// Publish discards the event.
func (Disabled) Publish(context.Context, model.ScoreEvent) error {
	return nil
}

// Enabled reports false so callers can skip publish attempts entirely.
func (Disabled) Enabled() bool {
	return false
}
