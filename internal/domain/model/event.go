package model

import (
	"strconv"
	"time"
)

// ScoreEvent is the domain event raised once per successful score job.
//
// It carries a snapshot of the updated contact fields; the durable log entry
// written by the event notifier is its persistent trace.
type ScoreEvent struct {
	ContactID   int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Score       int       `json:"score"`
	ProcessedAt time.Time `json:"processed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewScoreEvent builds the event snapshot for a contact that just had its
// score processed.
func NewScoreEvent(c *Contact) ScoreEvent {
	event := ScoreEvent{
		ContactID: c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		Score:     c.Score,
		UpdatedAt: c.UpdatedAt,
	}
	if c.ProcessedAt != nil {
		event.ProcessedAt = *c.ProcessedAt
	}
	return event
}

// BroadcastChannel returns the per-contact channel the event is published on.
func (e ScoreEvent) BroadcastChannel() string {
	return BroadcastChannelFor(e.ContactID)
}

// BroadcastChannelFor returns the broadcast channel name for a contact id.
func BroadcastChannelFor(contactID int64) string {
	return "contacts." + strconv.FormatInt(contactID, 10)
}

// LogEntry is a parsed record from the durable score log. It is derived, not
// authoritative: Name may be backfilled from the contact store at read time.
type LogEntry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Score     int    `json:"score"`
	Timestamp string `json:"timestamp"`
}
