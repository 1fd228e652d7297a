package dispute

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypePayment           Type = "payment"
	TypeVehicleCondition  Type = "vehicle_condition"
	TypeDocumentation     Type = "documentation"
	TypeOwnershipTransfer Type = "ownership_transfer"
	TypeOther             Type = "other"
)

var Types = []Type{TypePayment, TypeVehicleCondition, TypeDocumentation, TypeOwnershipTransfer, TypeOther}

func (t Type) Valid() bool { return slices.Contains(Types, t) }

type Status string

const (
	StatusOpen     Status = "open"
	StatusInReview Status = "in_review"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInReview, StatusResolved, StatusClosed:
		return true
	}

	return false
}

// Terminal reports whether the dispute carries a resolution.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

type ResolutionType string

const (
	ResolutionRefundBuyer   ResolutionType = "refund_buyer"
	ResolutionReleaseSeller ResolutionType = "release_seller"
	ResolutionPartialRefund ResolutionType = "partial_refund"
	// ResolutionDismissed is reserved for closed disputes.
	ResolutionDismissed ResolutionType = "dismissed"
)

var ResolutionTypes = []ResolutionType{
	ResolutionRefundBuyer,
	ResolutionReleaseSeller,
	ResolutionPartialRefund,
	ResolutionDismissed,
}

func (r ResolutionType) Valid() bool { return slices.Contains(ResolutionTypes, r) }

// Resolution is set in one piece when a dispute reaches a terminal status.
type Resolution struct {
	Type       ResolutionType
	ResolvedBy uuid.UUID
	ResolvedAt time.Time
	Text       string
}

type Dispute struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	RaisedBy      uuid.UUID
	Type          Type
	Reason        string
	Description   string
	Status        Status
	Resolution    *Resolution
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

func (d *Dispute) Validate() error {
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDispute, d.Status)
	}

	if !d.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDispute, d.Type)
	}

	if d.TransactionID == uuid.Nil || d.RaisedBy == uuid.Nil {
		return fmt.Errorf("%w: transaction and raiser are required", ErrInvalidDispute)
	}

	if strings.TrimSpace(d.Reason) == "" {
		return fmt.Errorf("%w: reason is required", ErrInvalidDispute)
	}

	if d.Status.Terminal() != (d.Resolution != nil) {
		return fmt.Errorf("%w: resolution must be present iff the dispute is %s or %s", ErrInvalidDispute, StatusResolved, StatusClosed)
	}

	r := d.Resolution
	if r == nil {
		return nil
	}

	if !r.Type.Valid() || r.ResolvedBy == uuid.Nil || r.ResolvedAt.IsZero() || strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: incomplete resolution", ErrInvalidDispute)
	}

	if (d.Status == StatusClosed) != (r.Type == ResolutionDismissed) {
		return fmt.Errorf("%w: only closed disputes are dismissed", ErrInvalidDispute)
	}

	if r.ResolvedAt.Before(d.CreatedAt) {
		return fmt.Errorf("%w: resolved before it was raised", ErrInvalidDispute)
	}

	return nil
}
