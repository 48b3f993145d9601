// Package model defines the core data types and structures used throughout the score processing system.
package model

import (
	"strings"
	"time"
	"unicode"
)

// Score bounds for a processed contact.
const (
	MinScore = 0
	MaxScore = 100
)

// Contact represents a contact record in the primary store.
//
// Score and ProcessedAt are set together by a single score-worker update;
// a contact is never half processed.
type Contact struct {
	ID          int64      `json:"id"                     db:"id"`
	Name        string     `json:"name"                   db:"name"`
	Email       string     `json:"email"                  db:"email"`
	Phone       string     `json:"phone"                  db:"phone"`
	Score       int        `json:"score"                  db:"score"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt   time.Time  `json:"created_at"             db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"             db:"updated_at"`
}

// Processed reports whether the contact already carries a score result.
func (c *Contact) Processed() bool {
	return c != nil && c.ProcessedAt != nil
}

// ValidScore reports whether s is inside the allowed score range.
func ValidScore(s int) bool {
	return s >= MinScore && s <= MaxScore
}

// NormalizePhone strips everything but digits from a phone number.
// Phone numbers are stored digits-only; formatting is a presentation concern.
func NormalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
