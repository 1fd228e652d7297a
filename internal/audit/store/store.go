package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/audit"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RecordActivity(ctx context.Context, e audit.Entry) error {
	query := `
		INSERT INTO activity_log (event_id, transaction_id, subject_id, action, from_state, to_state, actor_id, note, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		e.EventID,
		e.TransactionID,
		e.SubjectID,
		e.Action,
		e.From,
		e.To,
		e.ActorID,
		e.Note,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	return nil
}

func (s *Store) ListActivity(ctx context.Context, transactionID uuid.UUID) ([]audit.Entry, error) {
	query := `
		SELECT event_id, transaction_id, subject_id, action, from_state, to_state, actor_id, note, occurred_at
		FROM activity_log
		WHERE transaction_id = $1
		ORDER BY occurred_at ASC, recorded_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry

	for rows.Next() {
		var (
			e      audit.Entry
			action string
		)

		if err := rows.Scan(&e.EventID, &e.TransactionID, &e.SubjectID, &action, &e.From, &e.To, &e.ActorID, &e.Note, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}

		e.Action = event.Name(action)
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}

	return entries, nil
}
