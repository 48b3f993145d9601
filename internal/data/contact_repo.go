package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/contactdesk/score-api/internal/core"
	"github.com/contactdesk/score-api/internal/data/pgxutil"
	"github.com/contactdesk/score-api/internal/domain/model"
)

// ContactRepo provides database operations for the contact store.
//
// Contacts are created and deleted by the surrounding contact-management
// flow; this repository only reads them and applies score results.
type ContactRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewContactRepo creates a new ContactRepo with the given database connection.
func NewContactRepo(db *sql.DB) *ContactRepo {
	return &ContactRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

const contactColumns = `
  id,
  name,
  email,
  phone,
  score,
  processed_at,
  created_at,
  updated_at
`

// GetByID retrieves a contact by id. An absent contact yields (nil, nil):
// absence is an expected outcome for the score worker, not an error.
func (r *ContactRepo) GetByID(ctx context.Context, id int64) (*model.Contact, error) {
	var contact *model.Contact
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id)
		if qerr != nil {
			return fmt.Errorf("query contact: %w", qerr)
		}
		defer rows.Close()

		c, cerr := collectContact(rows)
		if errors.Is(cerr, pgx.ErrNoRows) {
			return nil
		}
		if cerr != nil {
			return fmt.Errorf("collect contact: %w", cerr)
		}
		contact = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// UpdateScore applies a score result in a single row update so that score and
// processed_at can never be observed half set. Retried attempts overwrite an
// earlier partial run; the last write wins. Returns (nil, nil) when the
// contact no longer exists.
func (r *ContactRepo) UpdateScore(
	ctx context.Context,
	id int64,
	result core.ScoreResult,
) (*model.Contact, error) {
	if !model.ValidScore(result.Score) {
		return nil, fmt.Errorf("score %d out of range [%d,%d]", result.Score, model.MinScore, model.MaxScore)
	}

	var contact *model.Contact
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			UPDATE contacts
			SET score = $2,
			    processed_at = $3,
			    updated_at = $3
			WHERE id = $1
			RETURNING `+contactColumns,
			id, result.Score, result.ProcessedAt.UTC())
		if qerr != nil {
			return fmt.Errorf("update contact score: %w", qerr)
		}
		defer rows.Close()

		c, cerr := collectContact(rows)
		if errors.Is(cerr, pgx.ErrNoRows) {
			return nil
		}
		if cerr != nil {
			return fmt.Errorf("collect contact: %w", cerr)
		}
		contact = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return contact, nil
}

// collectContact collects a single contact from pgx rows.
func collectContact(rows pgx.Rows) (*model.Contact, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	c := &model.Contact{}
	var processedAt *time.Time
	if err := rows.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Score,
		&processedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if processedAt != nil {
		t := processedAt.UTC()
		c.ProcessedAt = &t
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}
	return c, nil
}
