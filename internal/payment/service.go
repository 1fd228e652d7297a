package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/money"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=payment
type Repository interface {
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, filter ListFilter) ([]*Payment, error)

	// BeginPaymentCreate locks the parent transaction until Commit or Rollback.
	BeginPaymentCreate(ctx context.Context, transactionID uuid.UUID) (UpdateTx, error)
	// BeginPaymentUpdate locks the parent transaction, then the payment.
	BeginPaymentUpdate(ctx context.Context, id uuid.UUID) (UpdateTx, error)
}

type UpdateTx interface {
	Transaction() *transaction.Transaction
	// Payment is nil for a transaction opened by BeginPaymentCreate.
	Payment() *Payment
	// Payments lists every payment of the locked transaction.
	Payments(ctx context.Context) ([]*Payment, error)
	CreatePayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	RecordEvent(ctx context.Context, e event.Event) error
	Commit() error
	Rollback() error
}

type ListFilter struct {
	TransactionID *uuid.UUID
	Status        *Status
}

type RecordParams struct {
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Method        Method
	Reference     string
	Actor         transaction.Actor
}

type Service struct {
	repo Repository
	now  func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Payment, error) {
	return s.repo.ListPayments(ctx, filter)
}

// Record registers a payment the buyer claims to have made. The transaction
// must still be open and may carry only one pending payment at a time.
func (s *Service) Record(ctx context.Context, params RecordParams) (*Payment, error) {
	currency, err := money.ParseCurrency(params.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayment, err)
	}

	utx, err := s.repo.BeginPaymentCreate(ctx, params.TransactionID)
	if err != nil {
		return nil, err
	}
	defer utx.Rollback()

	tx := utx.Transaction()

	if role := tx.RoleOf(params.Actor); role == transaction.RoleNone {
		return nil, fmt.Errorf("%w: only a party or an admin may record a payment", transaction.ErrUnauthorizedActor)
	}

	if tx.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrTransactionClosed, tx.Code, tx.Status)
	}

	existing, err := utx.Payments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}

	for _, p := range existing {
		if p.Status == StatusPending {
			return nil, fmt.Errorf("%w: %s", ErrPendingPaymentExists, p.ID)
		}
	}

	now := s.now().UTC()
	p := &Payment{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		Amount:        params.Amount,
		Currency:      currency,
		Method:        params.Method,
		Reference:     strings.TrimSpace(params.Reference),
		Status:        StatusPending,
		CreatedAt:     now,
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := utx.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	e := event.New(event.PaymentRecorded, tx.ID, p.ID, "", string(p.Status), params.Actor.ID, now)
	if err := utx.RecordEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}

	if err := utx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}

	slog.Info("payment recorded", "payment_id", p.ID, "transaction_id", tx.ID, "amount", p.Amount.String(), "currency", p.Currency)

	return p, nil
}

// Verify confirms a pending payment. It must be in the transaction currency
// and cover what is still outstanding.
func (s *Service) Verify(ctx context.Context, id uuid.UUID, actor transaction.Actor) (*Payment, error) {
	return s.process(ctx, id, actor, event.PaymentVerified, func(ctx context.Context, utx UpdateTx, p *Payment, at time.Time) error {
		if p.Status != StatusPending {
			return fmt.Errorf("%w: payment is %s", ErrAlreadyProcessed, p.Status)
		}

		tx := utx.Transaction()
		if tx.Status.Terminal() {
			return fmt.Errorf("%w: %s is %s", ErrTransactionClosed, tx.Code, tx.Status)
		}

		if p.Currency != tx.Currency {
			return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, p.Currency, tx.Currency)
		}

		siblings, err := utx.Payments(ctx)
		if err != nil {
			return fmt.Errorf("listing payments: %w", err)
		}

		outstanding := Outstanding(tx, siblings)
		if p.Amount.LessThan(outstanding) {
			return fmt.Errorf("%w: %s < %s", ErrInsufficientAmount,
				money.Format(p.Amount, p.Currency), money.Format(outstanding, tx.Currency))
		}

		p.Status = StatusVerified
		p.VerifiedBy = &actor.ID
		p.VerifiedAt = &at

		return nil
	})
}

// Reject refuses a pending payment. Rejected payments never count towards
// the transaction.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor transaction.Actor, reason string) (*Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}

	return s.process(ctx, id, actor, event.PaymentRejected, func(_ context.Context, _ UpdateTx, p *Payment, at time.Time) error {
		if p.Status != StatusPending {
			return fmt.Errorf("%w: payment is %s", ErrAlreadyProcessed, p.Status)
		}

		p.Status = StatusRejected
		p.VerifiedBy = &actor.ID
		p.VerifiedAt = &at
		p.RejectionReason = reason

		return nil
	})
}

// MarkPaid records that verified funds were released to the seller.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, actor transaction.Actor) (*Payment, error) {
	return s.process(ctx, id, actor, event.PaymentPaid, func(_ context.Context, _ UpdateTx, p *Payment, at time.Time) error {
		if p.Status != StatusVerified {
			return fmt.Errorf("%w: payment is %s", ErrNotVerified, p.Status)
		}

		if at.Before(*p.VerifiedAt) {
			at = *p.VerifiedAt
		}

		p.Status = StatusPaid
		p.PaidAt = &at

		return nil
	})
}

type mutation func(ctx context.Context, utx UpdateTx, p *Payment, at time.Time) error

// process runs an admin mutation on a locked copy of the payment and writes
// the result together with its outbox event.
func (s *Service) process(ctx context.Context, id uuid.UUID, actor transaction.Actor, name event.Name, fn mutation) (*Payment, error) {
	if !actor.Admin {
		return nil, fmt.Errorf("%w: payment processing is admin only", transaction.ErrUnauthorizedActor)
	}

	utx, err := s.repo.BeginPaymentUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	defer utx.Rollback()

	current := utx.Payment()
	next := *current

	at := s.now().UTC()
	if at.Before(current.CreatedAt) {
		at = current.CreatedAt
	}

	if err := fn(ctx, utx, &next, at); err != nil {
		return nil, err
	}

	next.UpdatedAt = &at

	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := utx.UpdatePayment(ctx, &next); err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	e := event.New(name, next.TransactionID, next.ID, string(current.Status), string(next.Status), actor.ID, at)
	e.Note = next.RejectionReason

	if err := utx.RecordEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}

	if err := utx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment: %w", err)
	}

	slog.Info("payment processed",
		"payment_id", next.ID,
		"transaction_id", next.TransactionID,
		"from", current.Status,
		"to", next.Status,
		"actor_id", actor.ID,
	)

	return &next, nil
}

// Outstanding is what remains to be covered on tx once settled payments in
// its currency are subtracted. It never goes below zero.
func Outstanding(tx *transaction.Transaction, payments []*Payment) decimal.Decimal {
	settled := decimal.Zero

	for _, p := range payments {
		if p.Status.Settled() && p.Currency == tx.Currency {
			settled = settled.Add(p.Amount)
		}
	}

	rest := tx.Amount.Sub(settled)
	if rest.IsNegative() {
		return decimal.Zero
	}

	return rest
}
