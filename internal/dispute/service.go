package dispute

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=dispute
type Repository interface {
	GetDispute(ctx context.Context, id uuid.UUID) (*Dispute, error)
	ListDisputes(ctx context.Context, filter ListFilter) ([]*Dispute, error)

	// BeginDisputeCreate locks the parent transaction until Commit or Rollback.
	BeginDisputeCreate(ctx context.Context, transactionID uuid.UUID) (UpdateTx, error)
	// BeginDisputeUpdate locks the parent transaction, then the dispute.
	BeginDisputeUpdate(ctx context.Context, id uuid.UUID) (UpdateTx, error)
}

type UpdateTx interface {
	Transaction() *transaction.Transaction
	// Dispute is nil for a transaction opened by BeginDisputeCreate.
	Dispute() *Dispute
	CreateDispute(ctx context.Context, d *Dispute) error
	UpdateDispute(ctx context.Context, d *Dispute) error
	RecordEvent(ctx context.Context, e event.Event) error
	Commit() error
	Rollback() error
}

type ListFilter struct {
	TransactionID *uuid.UUID
	Status        *Status
}

type OpenParams struct {
	TransactionID uuid.UUID
	Type          Type
	Reason        string
	Description   string
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

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Dispute, error) {
	return s.repo.GetDispute(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Dispute, error) {
	return s.repo.ListDisputes(ctx, filter)
}

// Open raises a dispute on behalf of the buyer or the seller.
func (s *Service) Open(ctx context.Context, params OpenParams) (*Dispute, error) {
	utx, err := s.repo.BeginDisputeCreate(ctx, params.TransactionID)
	if err != nil {
		return nil, err
	}
	defer utx.Rollback()

	tx := utx.Transaction()

	if role := tx.RoleOf(transaction.Actor{ID: params.Actor.ID}); role != transaction.RoleBuyer && role != transaction.RoleSeller {
		return nil, fmt.Errorf("%w: only the buyer or the seller may raise a dispute", transaction.ErrUnauthorizedActor)
	}

	now := s.now().UTC()
	d := &Dispute{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		RaisedBy:      params.Actor.ID,
		Type:          params.Type,
		Reason:        strings.TrimSpace(params.Reason),
		Description:   strings.TrimSpace(params.Description),
		Status:        StatusOpen,
		CreatedAt:     now,
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}

	if err := utx.CreateDispute(ctx, d); err != nil {
		return nil, err
	}

	e := event.New(event.DisputeOpened, tx.ID, d.ID, "", string(d.Status), params.Actor.ID, now)
	e.Note = d.Reason

	if err := utx.RecordEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}

	if err := utx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dispute: %w", err)
	}

	slog.Info("dispute opened", "dispute_id", d.ID, "transaction_id", tx.ID, "type", d.Type)

	return d, nil
}

// StartReview moves an open dispute under review.
func (s *Service) StartReview(ctx context.Context, id uuid.UUID, actor transaction.Actor) (*Dispute, error) {
	return s.process(ctx, id, actor, event.DisputeInReview, func(d *Dispute, _ time.Time) error {
		if d.Status.Terminal() {
			return fmt.Errorf("%w: dispute is %s", ErrAlreadyResolved, d.Status)
		}

		if d.Status != StatusOpen {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, StatusInReview)
		}

		d.Status = StatusInReview

		return nil
	})
}

// Resolve settles the dispute, from open or in review, with an outcome and an
// explanation.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, actor transaction.Actor, kind ResolutionType, text string) (*Dispute, error) {
	return s.process(ctx, id, actor, event.DisputeResolved, func(d *Dispute, at time.Time) error {
		if d.Status.Terminal() {
			return fmt.Errorf("%w: dispute is %s", ErrAlreadyResolved, d.Status)
		}

		text := strings.TrimSpace(text)
		if text == "" {
			return ErrMissingResolutionText
		}

		if !kind.Valid() || kind == ResolutionDismissed {
			return fmt.Errorf("%w: resolution type %q", ErrInvalidDispute, kind)
		}

		d.Status = StatusResolved
		d.Resolution = &Resolution{Type: kind, ResolvedBy: actor.ID, ResolvedAt: at, Text: text}

		return nil
	})
}

// Close dismisses the dispute without an outcome for either party.
func (s *Service) Close(ctx context.Context, id uuid.UUID, actor transaction.Actor, text string) (*Dispute, error) {
	return s.process(ctx, id, actor, event.DisputeClosed, func(d *Dispute, at time.Time) error {
		if d.Status.Terminal() {
			return fmt.Errorf("%w: dispute is %s", ErrAlreadyResolved, d.Status)
		}

		text := strings.TrimSpace(text)
		if text == "" {
			return ErrMissingResolutionText
		}

		d.Status = StatusClosed
		d.Resolution = &Resolution{Type: ResolutionDismissed, ResolvedBy: actor.ID, ResolvedAt: at, Text: text}

		return nil
	})
}

func (s *Service) process(ctx context.Context, id uuid.UUID, actor transaction.Actor, name event.Name, fn func(d *Dispute, at time.Time) error) (*Dispute, error) {
	if !actor.Admin {
		return nil, fmt.Errorf("%w: disputes are handled by admins", transaction.ErrUnauthorizedActor)
	}

	utx, err := s.repo.BeginDisputeUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	defer utx.Rollback()

	current := utx.Dispute()
	next := *current

	at := s.now().UTC()
	if at.Before(current.CreatedAt) {
		at = current.CreatedAt
	}

	if err := fn(&next, at); err != nil {
		return nil, err
	}

	next.UpdatedAt = &at

	if err := next.Validate(); err != nil {
		return nil, err
	}

	if err := utx.UpdateDispute(ctx, &next); err != nil {
		return nil, fmt.Errorf("update dispute: %w", err)
	}

	e := event.New(name, next.TransactionID, next.ID, string(current.Status), string(next.Status), actor.ID, at)
	if next.Resolution != nil {
		e.Note = string(next.Resolution.Type)
	}

	if err := utx.RecordEvent(ctx, e); err != nil {
		return nil, fmt.Errorf("record event: %w", err)
	}

	if err := utx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dispute: %w", err)
	}

	slog.Info("dispute updated",
		"dispute_id", next.ID,
		"transaction_id", next.TransactionID,
		"from", current.Status,
		"to", next.Status,
		"actor_id", actor.ID,
	)

	return &next, nil
}
