package memstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/autoescrow/internal/audit"
	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/memstore"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

var (
	buyer  = transaction.Actor{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111")}
	seller = transaction.Actor{ID: uuid.MustParse("22222222-2222-2222-2222-222222222222")}
	admin  = transaction.Actor{ID: uuid.MustParse("99999999-9999-9999-9999-999999999999"), Admin: true}
)

type env struct {
	store        *memstore.Store
	transactions *transaction.Service
	payments     *payment.Service
	disputes     *dispute.Service
}

// tickingClock advances one minute per reading.
func tickingClock() func() time.Time {
	var mu sync.Mutex

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		at = at.Add(time.Minute)

		return at
	}
}

func newEnv() *env {
	s := memstore.New()
	clock := tickingClock()

	return &env{
		store:        s,
		transactions: transaction.NewService(s, transaction.WithClock(clock)),
		payments:     payment.NewService(s, payment.WithClock(clock)),
		disputes:     dispute.NewService(s, dispute.WithClock(clock)),
	}
}

func (e *env) create(t *testing.T) *transaction.Transaction {
	t.Helper()

	tx, err := e.transactions.Create(context.Background(), transaction.CreateParams{
		BuyerID:       buyer.ID,
		SellerID:      seller.ID,
		VehicleID:     uuid.New(),
		Amount:        decimal.NewFromInt(1000),
		Currency:      "EUR",
		ServiceFee:    decimal.NewFromInt(25),
		EscrowAccount: "DE89 3704 0044 0532 0130 00",
		Actor:         buyer,
	})
	require.NoError(t, err)

	return tx
}

func TestEscrowHappyPath(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tx := e.create(t)
	assert.Equal(t, transaction.StatusPending, tx.Status)
	assert.Equal(t, "DE", tx.EscrowCountry)

	_, err := e.transactions.AttemptTransition(ctx, tx.ID, transaction.TransitionRequest{Target: transaction.StatusPaymentPending, Actor: buyer})
	require.NoError(t, err)

	_, err = e.transactions.AttemptTransition(ctx, tx.ID, transaction.TransitionRequest{Target: transaction.StatusPaymentVerified, Actor: admin})
	require.ErrorIs(t, err, transaction.ErrPreconditionFailed)

	p, err := e.payments.Record(ctx, payment.RecordParams{
		TransactionID: tx.ID,
		Amount:        decimal.NewFromInt(1000),
		Currency:      "EUR",
		Method:        payment.MethodBankTransfer,
		Reference:     "SEPA-0001",
		Actor:         buyer,
	})
	require.NoError(t, err)

	p, err = e.payments.Verify(ctx, p.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusVerified, p.Status)

	_, err = e.transactions.AttemptTransition(ctx, tx.ID, transaction.TransitionRequest{Target: transaction.StatusPaymentVerified, Actor: admin})
	require.NoError(t, err)

	inspection := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)
	_, err = e.transactions.AttemptTransition(ctx, tx.ID, transaction.TransitionRequest{
		Target:         transaction.StatusInspectionScheduled,
		Actor:          admin,
		InspectionDate: &inspection,
	})
	require.NoError(t, err)

	done, err := e.transactions.AttemptTransition(ctx, tx.ID, transaction.TransitionRequest{Target: transaction.StatusCompleted, Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.OwnershipTransferredAt)
	assert.True(t, done.PaymentRequestedAt.Before(*done.PaymentVerifiedAt))
	assert.True(t, done.PaymentVerifiedAt.Before(*done.InspectionScheduledAt))
	assert.False(t, done.CompletedAt.Before(*done.InspectionScheduledAt))

	_, err = e.transactions.AttemptTransition(ctx, tx.ID, transaction.TransitionRequest{Target: transaction.StatusCancelled, Actor: admin, Reason: "late"})
	require.ErrorIs(t, err, transaction.ErrAlreadyTerminal)

	stored, err := e.transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusCompleted, stored.Status)
	assert.Empty(t, stored.CancellationReason)

	// created, four status changes, recorded, verified
	pending, err := e.store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, pending)
}

func TestRejectWithoutReason(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tx := e.create(t)

	p, err := e.payments.Record(ctx, payment.RecordParams{
		TransactionID: tx.ID,
		Amount:        decimal.NewFromInt(1000),
		Currency:      "EUR",
		Method:        payment.MethodCard,
		Actor:         buyer,
	})
	require.NoError(t, err)

	_, err = e.payments.Reject(ctx, p.ID, admin, "  ")
	require.ErrorIs(t, err, payment.ErrMissingReason)

	stored, err := e.payments.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, stored.Status)
	assert.Nil(t, stored.VerifiedAt)

	_, err = e.payments.Record(ctx, payment.RecordParams{
		TransactionID: tx.ID,
		Amount:        decimal.NewFromInt(1000),
		Currency:      "EUR",
		Method:        payment.MethodCard,
		Actor:         buyer,
	})
	require.ErrorIs(t, err, payment.ErrPendingPaymentExists)

	rejected, err := e.payments.Reject(ctx, p.ID, admin, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, "chargeback", rejected.RejectionReason)

	_, err = e.payments.Verify(ctx, p.ID, admin)
	require.ErrorIs(t, err, payment.ErrAlreadyProcessed)
}

func TestRolledBackWritesAreInvisible(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tx := e.create(t)

	ttx, err := e.store.BeginTransition(ctx, tx.ID)
	require.NoError(t, err)

	next := *ttx.Transaction()
	next.Status = transaction.StatusCancelled
	require.NoError(t, ttx.UpdateStatus(ctx, &next))
	require.NoError(t, ttx.RecordEvent(ctx, event.New(event.TransactionStatusChanged, tx.ID, tx.ID, "pending", "cancelled", admin.ID, time.Now())))
	require.NoError(t, ttx.Rollback())
	assert.Error(t, ttx.Commit())

	stored, err := e.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, stored.Status)

	pending, err := e.store.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tx := e.create(t)

	got, err := e.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)

	got.Status = transaction.StatusCompleted
	got.Amount = decimal.NewFromInt(1)

	again, err := e.store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPending, again.Status)
	assert.True(t, again.Amount.Equal(decimal.NewFromInt(1000)))

	byCode, err := e.transactions.GetByCode(ctx, " "+tx.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, byCode.ID)

	_, err = e.store.GetTransaction(ctx, uuid.New())
	assert.ErrorIs(t, err, transaction.ErrNotFound)
}

func TestConcurrentTransitions(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tx := e.create(t)

	const attempts = 16

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)

	for range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := e.transactions.AttemptTransition(ctx, tx.ID, transaction.TransitionRequest{Target: transaction.StatusPaymentPending, Actor: seller})
			switch {
			case err == nil:
				succeeded.Add(1)
			case assert.ErrorIs(t, err, transaction.ErrInvalidTransition):
				rejected.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.EqualValues(t, 1, succeeded.Load())
	assert.EqualValues(t, attempts-1, rejected.Load())

	stored, err := e.transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusPaymentPending, stored.Status)
}

func TestConcurrentRecordKeepsOnePendingPayment(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tx := e.create(t)

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = e.payments.Record(ctx, payment.RecordParams{
				TransactionID: tx.ID,
				Amount:        decimal.NewFromInt(1000),
				Currency:      "EUR",
				Method:        payment.MethodBankTransfer,
				Actor:         buyer,
			})
		}()
	}

	wg.Wait()

	pendingStatus := payment.StatusPending

	payments, err := e.payments.List(ctx, payment.ListFilter{TransactionID: &tx.ID, Status: &pendingStatus})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestRelayFillsActivityLog(t *testing.T) {
	ctx := context.Background()
	e := newEnv()

	tx := e.create(t)

	d, err := e.disputes.Open(ctx, dispute.OpenParams{
		TransactionID: tx.ID,
		Type:          dispute.TypeVehicleCondition,
		Reason:        "scratches not disclosed",
		Actor:         buyer,
	})
	require.NoError(t, err)

	_, err = e.disputes.Resolve(ctx, d.ID, admin, dispute.ResolutionPartialRefund, "refund 200 EUR")
	require.NoError(t, err)

	log := audit.NewService(e.store)
	relay := event.NewRelay(e.store, []event.Handler{log}, event.RelayConfig{BatchSize: 10})

	n, err := relay.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = relay.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := log.List(ctx, tx.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, event.TransactionCreated, entries[0].Action)
	assert.Equal(t, event.DisputeOpened, entries[1].Action)
	assert.Equal(t, event.DisputeResolved, entries[2].Action)
	assert.Equal(t, string(dispute.ResolutionPartialRefund), entries[2].Note)

	// redelivery is a no-op
	require.NoError(t, log.Handle(ctx, event.Event{ID: entries[0].EventID, TransactionID: tx.ID, Name: event.TransactionCreated}))

	entries, err = log.List(ctx, tx.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDisputeOnUnknownTransaction(t *testing.T) {
	e := newEnv()

	_, err := e.disputes.Open(context.Background(), dispute.OpenParams{
		TransactionID: uuid.New(),
		Type:          dispute.TypeOther,
		Reason:        "x",
		Actor:         buyer,
	})
	assert.ErrorIs(t, err, transaction.ErrNotFound)
}
