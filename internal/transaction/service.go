package transaction

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
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=transaction
type Repository interface {
	CreateTransaction(ctx context.Context, tx *Transaction, e event.Event) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetTransactionByCode(ctx context.Context, code string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]*Transaction, error)

	// BeginTransition locks the transaction row until Commit or Rollback.
	BeginTransition(ctx context.Context, id uuid.UUID) (TransitionTx, error)
}

type TransitionTx interface {
	Transaction() *Transaction
	SettledFunds(ctx context.Context) ([]Funds, error)
	UpdateStatus(ctx context.Context, tx *Transaction) error
	RecordEvent(ctx context.Context, e event.Event) error
	Commit() error
	Rollback() error
}

type Service struct {
	repo     Repository
	now      func() time.Time
	observer Observer
}

type Option func(*Service)

// WithClock overrides the time source used for lifecycle stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

type CreateParams struct {
	Code             string
	BuyerID          uuid.UUID
	SellerID         uuid.UUID
	DealerID         *uuid.UUID
	VehicleID        uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	ServiceFee       decimal.Decimal
	DealerCommission decimal.Decimal
	EscrowAccount    string
	EscrowCountry    string
	Actor            Actor
}

type ListFilter struct {
	Status  *Status
	PartyID *uuid.UUID
}

// Create opens a new transaction in pending. Only the buyer, the seller or an
// admin may open it.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Transaction, error) {
	currency, err := money.ParseCurrency(params.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	code := params.Code
	if code == "" {
		code = newCode()
	}

	now := s.now().UTC()
	tx := &Transaction{
		ID:               uuid.New(),
		Code:             code,
		BuyerID:          params.BuyerID,
		SellerID:         params.SellerID,
		DealerID:         params.DealerID,
		VehicleID:        params.VehicleID,
		Amount:           params.Amount,
		Currency:         currency,
		ServiceFee:       params.ServiceFee,
		DealerCommission: params.DealerCommission,
		EscrowAccount:    money.NormalizeIBAN(params.EscrowAccount),
		EscrowCountry:    strings.ToUpper(params.EscrowCountry),
		Status:           StatusPending,
		CreatedAt:        now,
	}

	if tx.EscrowCountry == "" {
		tx.EscrowCountry = money.Country(tx.EscrowAccount)
	}

	if role := tx.RoleOf(params.Actor); role != RoleBuyer && role != RoleSeller && role != RoleAdmin {
		return nil, fmt.Errorf("%w: only the buyer, the seller or an admin may open a transaction", ErrUnauthorizedActor)
	}

	if err := tx.Validate(); err != nil {
		return nil, err
	}

	e := event.New(event.TransactionCreated, tx.ID, tx.ID, "", string(tx.Status), params.Actor.ID, now)
	if err := s.repo.CreateTransaction(ctx, tx, e); err != nil {
		return nil, err
	}

	return tx, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// View returns the transaction if a is one of its parties or an admin.
func (s *Service) View(ctx context.Context, id uuid.UUID, a Actor) (*Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	if !a.Admin && !tx.IsParty(a) {
		return nil, fmt.Errorf("%w: not a party to %s", ErrUnauthorizedActor, tx.Code)
	}

	return tx, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Transaction, error) {
	return s.repo.GetTransactionByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}

// AttemptTransition is the only way a transaction's status changes. The row is
// locked for the whole check-then-set, and status, stamps and the outbox event
// are written in one database transaction.
func (s *Service) AttemptTransition(ctx context.Context, id uuid.UUID, req TransitionRequest) (*Transaction, error) {
	tx, from, err := s.attemptTransition(ctx, id, req)
	if s.observer != nil {
		s.observer.TransitionAttempted(from, req.Target, err)
	}

	return tx, err
}

func (s *Service) attemptTransition(ctx context.Context, id uuid.UUID, req TransitionRequest) (*Transaction, Status, error) {
	ttx, err := s.repo.BeginTransition(ctx, id)
	if err != nil {
		return nil, "", err
	}
	defer ttx.Rollback()

	current := ttx.Transaction()

	if err := s.check(ctx, ttx, current, req); err != nil {
		return nil, current.Status, err
	}

	next, err := apply(current, req, s.now())
	if err != nil {
		return nil, current.Status, err
	}

	if err := ttx.UpdateStatus(ctx, next); err != nil {
		return nil, current.Status, fmt.Errorf("update status: %w", err)
	}

	e := event.New(event.TransactionStatusChanged, next.ID, next.ID,
		string(current.Status), string(next.Status), req.Actor.ID, *next.UpdatedAt)
	e.Note = req.Reason

	if err := ttx.RecordEvent(ctx, e); err != nil {
		return nil, current.Status, fmt.Errorf("record event: %w", err)
	}

	if err := ttx.Commit(); err != nil {
		return nil, current.Status, fmt.Errorf("commit transition: %w", err)
	}

	slog.Info("transaction status changed",
		"transaction_id", next.ID,
		"from", current.Status,
		"to", next.Status,
		"actor_id", req.Actor.ID,
	)

	return next, current.Status, nil
}

func (s *Service) check(ctx context.Context, ttx TransitionTx, t *Transaction, req TransitionRequest) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: transaction %s is %s", ErrAlreadyTerminal, t.Code, t.Status)
	}

	r, ok := lookup(t.Status, req.Target)
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, req.Target)
	}

	if role := t.RoleOf(req.Actor); !r.allows(role) {
		return fmt.Errorf("%w: %q may not move %s -> %s", ErrUnauthorizedActor, role, t.Status, req.Target)
	}

	switch r.precondition {
	case requireVerifiedFunds:
		funds, err := ttx.SettledFunds(ctx)
		if err != nil {
			return fmt.Errorf("loading settled funds: %w", err)
		}

		if !covered(t, funds) {
			return fmt.Errorf("%w: no verified payment covers %s %s", ErrPreconditionFailed, t.Amount, t.Currency)
		}
	case requireInspectionDate:
		if req.InspectionDate == nil || req.InspectionDate.IsZero() {
			return fmt.Errorf("%w: inspection date is required", ErrPreconditionFailed)
		}
	}

	return nil
}

func newCode() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TRX-" + strings.ToUpper(id[:10])
}
