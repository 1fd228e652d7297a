package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
)

// Entry is one line of a transaction's activity log.
type Entry struct {
	EventID       uuid.UUID
	TransactionID uuid.UUID
	SubjectID     uuid.UUID
	Action        event.Name
	From          string
	To            string
	ActorID       uuid.UUID
	Note          string
	OccurredAt    time.Time
}

// Repository stores entries keyed by event id. RecordActivity must ignore an
// entry whose event id is already stored.
type Repository interface {
	RecordActivity(ctx context.Context, e Entry) error
	ListActivity(ctx context.Context, transactionID uuid.UUID) ([]Entry, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Name() string { return "audit" }

// Handle writes e to the activity log. Redelivered events are no-ops.
func (s *Service) Handle(ctx context.Context, e event.Event) error {
	entry := Entry{
		EventID:       e.ID,
		TransactionID: e.TransactionID,
		SubjectID:     e.SubjectID,
		Action:        e.Name,
		From:          e.From,
		To:            e.To,
		ActorID:       e.ActorID,
		Note:          e.Note,
		OccurredAt:    e.OccurredAt,
	}

	if err := s.repo.RecordActivity(ctx, entry); err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}

	return nil
}

// List returns the activity of a transaction, oldest first.
func (s *Service) List(ctx context.Context, transactionID uuid.UUID) ([]Entry, error) {
	return s.repo.ListActivity(ctx, transactionID)
}
