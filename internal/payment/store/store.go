package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	eventstore "github.com/MrJamesThe3rd/autoescrow/internal/event/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	txstore "github.com/MrJamesThe3rd/autoescrow/internal/transaction/store"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(s scanner) (*payment.Payment, error) {
	var p payment.Payment

	var status, method string

	if err := s.Scan(
		&p.ID, &p.TransactionID, &p.Amount, &p.Currency, &method, &p.Reference,
		&status, &p.VerifiedBy, &p.VerifiedAt, &p.PaidAt, &p.RejectionReason,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.Status = payment.Status(status)
	p.Method = payment.Method(method)
	p.CreatedAt = p.CreatedAt.UTC()

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt payment row %s: %w", p.ID, err)
	}

	return &p, nil
}

const selectPaymentColumns = `
	id, transaction_id, amount, currency, method, reference,
	status, verified_by, verified_at, paid_at, rejection_reason,
	created_at, updated_at
`

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment: %w", err)
	}

	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE TRUE`

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

	return queryPayments(ctx, s.db, query, args...)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryPayments(ctx context.Context, q querier, query string, args ...any) ([]*payment.Payment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var payments []*payment.Payment

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		payments = append(payments, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payment rows: %w", err)
	}

	return payments, nil
}

type updateTx struct {
	tx      *sql.Tx
	parent  *transaction.Transaction
	payment *payment.Payment
}

func (s *Store) BeginPaymentCreate(ctx context.Context, transactionID uuid.UUID) (payment.UpdateTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning payment tx: %w", err)
	}

	parent, err := txstore.Lock(ctx, dbTx, transactionID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}

	return &updateTx{tx: dbTx, parent: parent}, nil
}

// BeginPaymentUpdate takes the transaction lock before the payment lock, the
// same order every writer on a transaction uses.
func (s *Store) BeginPaymentUpdate(ctx context.Context, id uuid.UUID) (payment.UpdateTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning payment tx: %w", err)
	}

	var transactionID uuid.UUID
	if err := dbTx.QueryRowContext(ctx, `SELECT transaction_id FROM payments WHERE id = $1`, id).Scan(&transactionID); err != nil {
		dbTx.Rollback()

		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("resolving payment transaction: %w", err)
	}

	parent, err := txstore.Lock(ctx, dbTx, transactionID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}

	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`

	p, err := scanPayment(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		dbTx.Rollback()
		return nil, fmt.Errorf("locking payment: %w", err)
	}

	return &updateTx{tx: dbTx, parent: parent, payment: p}, nil
}

func (utx *updateTx) Transaction() *transaction.Transaction { return utx.parent }
func (utx *updateTx) Payment() *payment.Payment             { return utx.payment }

func (utx *updateTx) Payments(ctx context.Context) ([]*payment.Payment, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE transaction_id = $1 ORDER BY created_at ASC`

	return queryPayments(ctx, utx.tx, query, utx.parent.ID)
}

func (utx *updateTx) CreatePayment(ctx context.Context, p *payment.Payment) error {
	query := `
		INSERT INTO payments (id, transaction_id, amount, currency, method, reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := utx.tx.ExecContext(ctx, query,
		p.ID,
		p.TransactionID,
		p.Amount,
		p.Currency,
		p.Method,
		p.Reference,
		p.Status,
		p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return payment.ErrPendingPaymentExists
		}

		return fmt.Errorf("creating payment: %w", err)
	}

	return nil
}

func (utx *updateTx) UpdatePayment(ctx context.Context, p *payment.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, verified_by = $2, verified_at = $3, paid_at = $4, rejection_reason = $5, updated_at = $6
		WHERE id = $7
	`

	_, err := utx.tx.ExecContext(ctx, query,
		p.Status,
		p.VerifiedBy,
		p.VerifiedAt,
		p.PaidAt,
		p.RejectionReason,
		p.UpdatedAt,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating payment: %w", err)
	}

	return nil
}

func (utx *updateTx) RecordEvent(ctx context.Context, e event.Event) error {
	return eventstore.Insert(ctx, utx.tx, e)
}

func (utx *updateTx) Commit() error   { return utx.tx.Commit() }
func (utx *updateTx) Rollback() error { return utx.tx.Rollback() }
