package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	eventstore "github.com/MrJamesThe3rd/autoescrow/internal/event/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanTransaction reads a row in selectTransactionColumns order. Rows that
// fail Validate are reported as corrupt rather than handed to callers.
func scanTransaction(s scanner) (*transaction.Transaction, error) {
	var tx transaction.Transaction

	var statusStr string

	if err := s.Scan(
		&tx.ID, &tx.Code, &tx.BuyerID, &tx.SellerID, &tx.DealerID, &tx.VehicleID,
		&tx.Amount, &tx.Currency, &tx.ServiceFee, &tx.DealerCommission,
		&tx.EscrowAccount, &tx.EscrowCountry,
		&statusStr, &tx.InspectionDate, &tx.CancellationReason,
		&tx.CreatedAt, &tx.PaymentRequestedAt, &tx.PaymentVerifiedAt, &tx.InspectionScheduledAt,
		&tx.OwnershipTransferredAt, &tx.CompletedAt, &tx.CancelledAt, &tx.UpdatedAt,
	); err != nil {
		return nil, err
	}

	tx.Status = transaction.Status(statusStr)
	normalizeTimes(&tx)

	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt transaction row %s: %w", tx.ID, err)
	}

	return &tx, nil
}

func normalizeTimes(tx *transaction.Transaction) {
	tx.CreatedAt = tx.CreatedAt.UTC()

	for _, ts := range []**time.Time{
		&tx.InspectionDate, &tx.PaymentRequestedAt, &tx.PaymentVerifiedAt, &tx.InspectionScheduledAt,
		&tx.OwnershipTransferredAt, &tx.CompletedAt, &tx.CancelledAt, &tx.UpdatedAt,
	} {
		if *ts != nil {
			utc := (*ts).UTC()
			*ts = &utc
		}
	}
}

const selectTransactionColumns = `
	id, code, buyer_id, seller_id, dealer_id, vehicle_id,
	amount, currency, service_fee, dealer_commission,
	escrow_account, escrow_country,
	status, inspection_date, cancellation_reason,
	created_at, payment_requested_at, payment_verified_at, inspection_scheduled_at,
	ownership_transferred_at, completed_at, cancelled_at, updated_at
`

func (s *Store) CreateTransaction(ctx context.Context, tx *transaction.Transaction, e event.Event) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer dbTx.Rollback()

	query := `
		INSERT INTO transactions (
			id, code, buyer_id, seller_id, dealer_id, vehicle_id,
			amount, currency, service_fee, dealer_commission,
			escrow_account, escrow_country, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = dbTx.ExecContext(ctx, query,
		tx.ID,
		tx.Code,
		tx.BuyerID,
		tx.SellerID,
		tx.DealerID,
		tx.VehicleID,
		tx.Amount,
		tx.Currency,
		tx.ServiceFee,
		tx.DealerCommission,
		tx.EscrowAccount,
		tx.EscrowCountry,
		tx.Status,
		tx.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: code %s is already taken", transaction.ErrInvalidTransaction, tx.Code)
		}

		return fmt.Errorf("creating transaction: %w", err)
	}

	if err := eventstore.Insert(ctx, dbTx, e); err != nil {
		return err
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction: %w", err)
	}

	return tx, nil
}

func (s *Store) GetTransactionByCode(ctx context.Context, code string) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE code = $1`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("getting transaction by code: %w", err)
	}

	return tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)

		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.PartyID != nil {
		query += fmt.Sprintf(" AND (buyer_id = $%[1]d OR seller_id = $%[1]d OR dealer_id = $%[1]d)", argIdx)

		args = append(args, *filter.PartyID)
	}

	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []*transaction.Transaction

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

type transitionTx struct {
	tx      *sql.Tx
	current *transaction.Transaction
}

// BeginTransition opens a database transaction and takes a row lock on the
// transaction, so concurrent transitions on the same id serialize.
func (s *Store) BeginTransition(ctx context.Context, id uuid.UUID) (transaction.TransitionTx, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transition tx: %w", err)
	}

	current, err := Lock(ctx, dbTx, id)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}

	return &transitionTx{tx: dbTx, current: current}, nil
}

// Lock loads the transaction with a row lock held until dbTx ends. Payment and
// dispute stores take this lock first so their writes serialize with status
// transitions of the same transaction.
func Lock(ctx context.Context, dbTx *sql.Tx, id uuid.UUID) (*transaction.Transaction, error) {
	query := `SELECT ` + selectTransactionColumns + ` FROM transactions WHERE id = $1 FOR UPDATE`

	tx, err := scanTransaction(dbTx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, transaction.ErrNotFound
		}

		return nil, fmt.Errorf("locking transaction: %w", err)
	}

	return tx, nil
}

func (ttx *transitionTx) Transaction() *transaction.Transaction { return ttx.current }

func (ttx *transitionTx) SettledFunds(ctx context.Context) ([]transaction.Funds, error) {
	query := `
		SELECT amount, currency
		FROM payments
		WHERE transaction_id = $1 AND status IN ('verified', 'paid')
	`

	rows, err := ttx.tx.QueryContext(ctx, query, ttx.current.ID)
	if err != nil {
		return nil, fmt.Errorf("listing settled funds: %w", err)
	}
	defer rows.Close()

	var funds []transaction.Funds

	for rows.Next() {
		var f transaction.Funds
		if err := rows.Scan(&f.Amount, &f.Currency); err != nil {
			return nil, fmt.Errorf("scanning funds: %w", err)
		}

		funds = append(funds, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating funds rows: %w", err)
	}

	return funds, nil
}

// UpdateStatus writes status and every lifecycle column in a single statement.
func (ttx *transitionTx) UpdateStatus(ctx context.Context, tx *transaction.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $1, inspection_date = $2, cancellation_reason = $3,
			payment_requested_at = $4, payment_verified_at = $5, inspection_scheduled_at = $6,
			ownership_transferred_at = $7, completed_at = $8, cancelled_at = $9, updated_at = $10
		WHERE id = $11
	`

	res, err := ttx.tx.ExecContext(ctx, query,
		tx.Status,
		tx.InspectionDate,
		tx.CancellationReason,
		tx.PaymentRequestedAt,
		tx.PaymentVerifiedAt,
		tx.InspectionScheduledAt,
		tx.OwnershipTransferredAt,
		tx.CompletedAt,
		tx.CancelledAt,
		tx.UpdatedAt,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("updating status: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return transaction.ErrNotFound
	}

	return nil
}

func (ttx *transitionTx) RecordEvent(ctx context.Context, e event.Event) error {
	return eventstore.Insert(ctx, ttx.tx, e)
}

func (ttx *transitionTx) Commit() error   { return ttx.tx.Commit() }
func (ttx *transitionTx) Rollback() error { return ttx.tx.Rollback() }
