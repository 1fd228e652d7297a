package event

import (
	"time"

	"github.com/google/uuid"
)

// Name identifies the kind of domain event.
type Name string

const (
	TransactionCreated       Name = "transaction.created"
	TransactionStatusChanged Name = "transaction.status_changed"
	PaymentRecorded          Name = "payment.recorded"
	PaymentVerified          Name = "payment.verified"
	PaymentRejected          Name = "payment.rejected"
	PaymentPaid              Name = "payment.paid"
	DisputeOpened            Name = "dispute.opened"
	DisputeInReview          Name = "dispute.in_review"
	DisputeResolved          Name = "dispute.resolved"
	DisputeClosed            Name = "dispute.closed"
)

// Event is a state change that downstream consumers (mail, audit) are told about.
// TransactionID is always set; SubjectID is the payment or dispute the event is
// about, or the transaction itself.
type Event struct {
	ID            uuid.UUID
	Name          Name
	TransactionID uuid.UUID
	SubjectID     uuid.UUID
	From          string
	To            string
	ActorID       uuid.UUID
	Note          string
	OccurredAt    time.Time
}

// New builds an event with a fresh id.
func New(name Name, transactionID, subjectID uuid.UUID, from, to string, actorID uuid.UUID, at time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Name:          name,
		TransactionID: transactionID,
		SubjectID:     subjectID,
		From:          from,
		To:            to,
		ActorID:       actorID,
		OccurredAt:    at,
	}
}
