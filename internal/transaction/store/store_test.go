package store_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction/store"
)

var (
	buyerID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	sellerID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	adminID  = uuid.MustParse("99999999-9999-9999-9999-999999999999")

	created = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

var columns = []string{
	"id", "code", "buyer_id", "seller_id", "dealer_id", "vehicle_id",
	"amount", "currency", "service_fee", "dealer_commission",
	"escrow_account", "escrow_country",
	"status", "inspection_date", "cancellation_reason",
	"created_at", "payment_requested_at", "payment_verified_at", "inspection_scheduled_at",
	"ownership_transferred_at", "completed_at", "cancelled_at", "updated_at",
}

// row is a pending transaction in column order; mutate adjusts single columns.
func row(id uuid.UUID, mutate func(r []driver.Value)) []driver.Value {
	r := []driver.Value{
		id.String(), "TRX-TEST000001", buyerID.String(), sellerID.String(), nil, uuid.NewString(),
		"1000.00", "EUR", "25.00", "0.00",
		"DE89370400440532013000", "DE",
		"pending", nil, "",
		created, nil, nil, nil,
		nil, nil, nil, nil,
	}

	if mutate != nil {
		mutate(r)
	}

	return r
}

func newMock(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return store.New(db), mock
}

func newTransaction() *transaction.Transaction {
	return &transaction.Transaction{
		ID:            uuid.New(),
		Code:          "TRX-TEST000001",
		BuyerID:       buyerID,
		SellerID:      sellerID,
		VehicleID:     uuid.New(),
		Amount:        decimal.NewFromInt(1000),
		Currency:      "EUR",
		EscrowAccount: "DE89370400440532013000",
		EscrowCountry: "DE",
		Status:        transaction.StatusPending,
		CreatedAt:     created,
	}
}

func TestCreateTransaction(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock sqlmock.Sqlmock)
		wantErr   error
		anyErr    bool
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`INSERT INTO outbox_events`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name: "duplicate code",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO transactions`).WillReturnError(&pgconn.PgError{Code: "23505"})
				mock.ExpectRollback()
			},
			wantErr: transaction.ErrInvalidTransaction,
		},
		{
			name: "other database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO transactions`).WillReturnError(errors.New("connection reset"))
				mock.ExpectRollback()
			},
			anyErr: true,
		},
		{
			name: "outbox insert fails",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(`INSERT INTO transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`INSERT INTO outbox_events`).WillReturnError(errors.New("disk full"))
				mock.ExpectRollback()
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMock(t)
			tt.setupMock(mock)

			tx := newTransaction()
			err := s.CreateTransaction(context.Background(), tx, event.New(event.TransactionCreated, tx.ID, tx.ID, "", "pending", buyerID, created))

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.anyErr:
				assert.Error(t, err)
				assert.NotErrorIs(t, err, transaction.ErrInvalidTransaction)
			default:
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetTransaction(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		s, mock := newMock(t)
		id := uuid.New()

		mock.ExpectQuery(`FROM transactions WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(row(id, nil)...))

		tx, err := s.GetTransaction(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, tx.ID)
		assert.Equal(t, transaction.StatusPending, tx.Status)
		assert.True(t, decimal.NewFromInt(1000).Equal(tx.Amount))
		assert.Nil(t, tx.DealerID)
		assert.Nil(t, tx.PaymentRequestedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMock(t)

		mock.ExpectQuery(`FROM transactions WHERE id = \$1`).WillReturnRows(sqlmock.NewRows(columns))

		_, err := s.GetTransaction(context.Background(), uuid.New())
		assert.ErrorIs(t, err, transaction.ErrNotFound)
	})

	t.Run("corrupt row", func(t *testing.T) {
		s, mock := newMock(t)
		id := uuid.New()

		// Verified without any lifecycle stamps.
		mock.ExpectQuery(`FROM transactions WHERE id = \$1`).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(row(id, func(r []driver.Value) { r[12] = "payment_verified" })...))

		tx, err := s.GetTransaction(context.Background(), id)
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, transaction.ErrInvalidTransaction)
		assert.ErrorContains(t, err, "corrupt transaction row")
	})
}

func TestListTransactions_Filters(t *testing.T) {
	s, mock := newMock(t)
	status := transaction.StatusPending
	party := buyerID

	mock.ExpectQuery(`WHERE TRUE AND status = \$1 AND \(buyer_id = \$2 OR seller_id = \$2 OR dealer_id = \$2\) ORDER BY created_at DESC`).
		WithArgs("pending", party.String()).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(row(uuid.New(), nil)...).AddRow(row(uuid.New(), nil)...))

	txs, err := s.ListTransactions(context.Background(), transaction.ListFilter{Status: &status, PartyID: &party})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTransition(t *testing.T) {
	t.Run("locks the row and writes status with its event", func(t *testing.T) {
		s, mock := newMock(t)
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM transactions WHERE id = \$1 FOR UPDATE`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(row(id, nil)...))
		mock.ExpectQuery(`FROM payments\s+WHERE transaction_id = \$1 AND status IN \('verified', 'paid'\)`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows([]string{"amount", "currency"}).AddRow("1000.00", "EUR"))
		mock.ExpectExec(`UPDATE transactions`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO outbox_events`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ctx := context.Background()

		ttx, err := s.BeginTransition(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, ttx.Transaction().ID)

		funds, err := ttx.SettledFunds(ctx)
		require.NoError(t, err)
		require.Len(t, funds, 1)
		assert.True(t, decimal.NewFromInt(1000).Equal(funds[0].Amount))

		next := *ttx.Transaction()
		requested := created.Add(time.Hour)
		next.Status = transaction.StatusPaymentPending
		next.PaymentRequestedAt = &requested

		require.NoError(t, ttx.UpdateStatus(ctx, &next))
		require.NoError(t, ttx.RecordEvent(ctx, event.New(event.TransactionStatusChanged, id, id, "pending", "payment_pending", adminID, requested)))
		require.NoError(t, ttx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown transaction", func(t *testing.T) {
		s, mock := newMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(columns))
		mock.ExpectRollback()

		_, err := s.BeginTransition(context.Background(), uuid.New())
		assert.ErrorIs(t, err, transaction.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt row releases the lock", func(t *testing.T) {
		s, mock := newMock(t)
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(row(id, func(r []driver.Value) { r[6] = "1000.005" })...))
		mock.ExpectRollback()

		_, err := s.BeginTransition(context.Background(), id)
		assert.ErrorIs(t, err, transaction.ErrInvalidTransaction)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("vanished row on update", func(t *testing.T) {
		s, mock := newMock(t)
		id := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows(columns).AddRow(row(id, nil)...))
		mock.ExpectExec(`UPDATE transactions`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		ttx, err := s.BeginTransition(context.Background(), id)
		require.NoError(t, err)

		assert.ErrorIs(t, ttx.UpdateStatus(context.Background(), ttx.Transaction()), transaction.ErrNotFound)
		require.NoError(t, ttx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
