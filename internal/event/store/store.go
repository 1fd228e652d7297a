package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
)

// Execer is satisfied by *sql.DB and *sql.Tx, so other stores can write
// events inside their own database transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Insert appends e to the outbox.
func Insert(ctx context.Context, db Execer, e event.Event) error {
	query := `
		INSERT INTO outbox_events (id, name, transaction_id, subject_id, from_state, to_state, actor_id, note, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.Name,
		e.TransactionID,
		e.SubjectID,
		e.From,
		e.To,
		e.ActorID,
		e.Note,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("inserting outbox event: %w", err)
	}

	return nil
}

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Claim locks up to limit undelivered events in insert order. It also takes a
// transaction-scoped advisory lock per escrow transaction, so a concurrent
// relay skips every event of a transaction this batch holds, not only the
// claimed rows.
func (s *Store) Claim(ctx context.Context, limit int) (event.Batch, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning claim tx: %w", err)
	}

	query := `
		SELECT id, name, transaction_id, subject_id, from_state, to_state, actor_id, note, occurred_at
		FROM outbox_events
		WHERE delivered_at IS NULL
			AND pg_try_advisory_xact_lock(hashtextextended(transaction_id::text, 0))
		ORDER BY seq ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	rows, err := dbTx.QueryContext(ctx, query, limit)
	if err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("claiming outbox events: %w", err)
	}
	defer rows.Close()

	var events []event.Event

	for rows.Next() {
		var (
			e    event.Event
			name string
		)

		if err := rows.Scan(&e.ID, &name, &e.TransactionID, &e.SubjectID, &e.From, &e.To, &e.ActorID, &e.Note, &e.OccurredAt); err != nil {
			dbTx.Rollback()
			return nil, fmt.Errorf("scanning outbox event: %w", err)
		}

		e.Name = event.Name(name)
		e.OccurredAt = e.OccurredAt.UTC()
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("iterating outbox rows: %w", err)
	}

	return &batch{tx: dbTx, events: events}, nil
}

// Pending counts events not yet delivered.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_events WHERE delivered_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending events: %w", err)
	}

	return n, nil
}

type batch struct {
	tx     *sql.Tx
	events []event.Event
}

func (b *batch) Events() []event.Event { return b.events }

func (b *batch) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET delivered_at = NOW(), attempts = attempts + 1, last_error = ''
		WHERE id = $1
	`

	if _, err := b.tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("marking event delivered: %w", err)
	}

	return nil
}

func (b *batch) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $1
		WHERE id = $2
	`

	if _, err := b.tx.ExecContext(ctx, query, reason, id); err != nil {
		return fmt.Errorf("marking event failed: %w", err)
	}

	return nil
}

func (b *batch) Commit() error   { return b.tx.Commit() }
func (b *batch) Rollback() error { return b.tx.Rollback() }
