package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	eventstore "github.com/MrJamesThe3rd/autoescrow/internal/event/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	txstore "github.com/MrJamesThe3rd/autoescrow/internal/transaction/store"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDispute reads a row in selectDisputeColumns order. The four resolution
// columns are either all NULL or all set.
func scanDispute(s scanner) (*dispute.Dispute, error) {
	var d dispute.Dispute

	var typ, status string

	var (
		resolutionType sql.NullString
		resolvedBy     *uuid.UUID
		resolvedAt     sql.NullTime
		resolution     sql.NullString
	)

	if err := s.Scan(
		&d.ID, &d.TransactionID, &d.RaisedBy, &typ, &d.Reason, &d.Description, &status,
		&resolutionType, &resolvedBy, &resolvedAt, &resolution,
		&d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d.Type = dispute.Type(typ)
	d.Status = dispute.Status(status)
	d.CreatedAt = d.CreatedAt.UTC()

	if resolutionType.Valid && resolvedBy != nil && resolvedAt.Valid && resolution.Valid {
		d.Resolution = &dispute.Resolution{
			Type:       dispute.ResolutionType(resolutionType.String),
			ResolvedBy: *resolvedBy,
			ResolvedAt: resolvedAt.Time.UTC(),
			Text:       resolution.String,
		}
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt dispute row %s: %w", d.ID, err)
	}

	return &d, nil
}

const selectDisputeColumns = `
	id, transaction_id, raised_by, type, reason, description, status,
	resolution_type, resolved_by, resolved_at, resolution,
	created_at, updated_at
`

func (s *Store) GetDispute(ctx context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	query := `SELECT ` + selectDisputeColumns + ` FROM disputes WHERE id = $1`

	d, err := scanDispute(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dispute.ErrNotFound
		}

		return nil, fmt.Errorf("getting dispute: %w", err)
	}

	return d, nil
}

func (s *Store) ListDisputes(ctx context.Context, filter dispute.ListFilter) ([]*dispute.Dispute, error) {
	query := `SELECT ` + selectDisputeColumns + ` FROM disputes WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.TransactionID != nil {
		query += fmt.Sprintf(" AND transaction_id = $%d", argIdx)

		args = append(args, *filter.TransactionID)
		argIdx++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
	}

	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing disputes: %w", err)
	}
	defer rows.Close()

	var disputes []*dispute.Dispute

	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning dispute: %w", err)
		}

		disputes = append(disputes, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dispute rows: %w", err)
	}

	return disputes, nil
}

type updateTx struct {
	tx      *sql.Tx
	parent  *transaction.Transaction
	dispute *dispute.Dispute
}

func (s *Store) BeginDisputeCreate(ctx context.Context, transactionID uuid.UUID) (dispute.UpdateTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning dispute tx: %w", err)
	}

	parent, err := txstore.Lock(ctx, dbTx, transactionID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}

	return &updateTx{tx: dbTx, parent: parent}, nil
}

func (s *Store) BeginDisputeUpdate(ctx context.Context, id uuid.UUID) (dispute.UpdateTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning dispute tx: %w", err)
	}

	var transactionID uuid.UUID
	if err := dbTx.QueryRowContext(ctx, `SELECT transaction_id FROM disputes WHERE id = $1`, id).Scan(&transactionID); err != nil {
		dbTx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, dispute.ErrNotFound
		}

		return nil, fmt.Errorf("resolving dispute transaction: %w", err)
	}

	parent, err := txstore.Lock(ctx, dbTx, transactionID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}

	query := `SELECT ` + selectDisputeColumns + ` FROM disputes WHERE id = $1 FOR UPDATE`

	d, err := scanDispute(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("locking dispute: %w", err)
	}

	return &updateTx{tx: dbTx, parent: parent, dispute: d}, nil
}

func (utx *updateTx) Transaction() *transaction.Transaction { return utx.parent }
func (utx *updateTx) Dispute() *dispute.Dispute             { return utx.dispute }

func (utx *updateTx) CreateDispute(ctx context.Context, d *dispute.Dispute) error {
	query := `
		INSERT INTO disputes (id, transaction_id, raised_by, type, reason, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := utx.tx.ExecContext(ctx, query,
		d.ID,
		d.TransactionID,
		d.RaisedBy,
		d.Type,
		d.Reason,
		d.Description,
		d.Status,
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating dispute: %w", err)
	}

	return nil
}

func (utx *updateTx) UpdateDispute(ctx context.Context, d *dispute.Dispute) error {
	var (
		resolutionType *dispute.ResolutionType
		resolvedBy     *uuid.UUID
		resolvedAt     *time.Time
		resolution     *string
	)

	if r := d.Resolution; r != nil {
		resolutionType, resolvedBy, resolvedAt, resolution = &r.Type, &r.ResolvedBy, &r.ResolvedAt, &r.Text
	}

	query := `
		UPDATE disputes
		SET status = $1, resolution_type = $2, resolved_by = $3, resolved_at = $4, resolution = $5, updated_at = $6
		WHERE id = $7
	`

	_, err := utx.tx.ExecContext(ctx, query,
		d.Status,
		resolutionType,
		resolvedBy,
		resolvedAt,
		resolution,
		d.UpdatedAt,
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating dispute: %w", err)
	}

	return nil
}

func (utx *updateTx) RecordEvent(ctx context.Context, e event.Event) error {
	return eventstore.Insert(ctx, utx.tx, e)
}

func (utx *updateTx) Commit() error   { return utx.tx.Commit() }
func (utx *updateTx) Rollback() error { return utx.tx.Rollback() }
