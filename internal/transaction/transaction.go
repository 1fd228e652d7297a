package transaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/autoescrow/internal/money"
)

// Status represents the lifecycle state of a transaction.
type Status string

const (
	StatusPending             Status = "pending"
	StatusPaymentPending      Status = "payment_pending"
	StatusPaymentVerified     Status = "payment_verified"
	StatusInspectionScheduled Status = "inspection_scheduled"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusPaymentPending,
	StatusPaymentVerified,
	StatusInspectionScheduled,
	StatusCompleted,
	StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}

	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// stage is the position of s on the happy path. Cancelled has no stage of its
// own; its stage is derived from the stamps it carries.
func (s Status) stage() int {
	switch s {
	case StatusPaymentPending:
		return 1
	case StatusPaymentVerified:
		return 2
	case StatusInspectionScheduled:
		return 3
	case StatusCompleted:
		return 4
	default:
		return 0
	}
}

// Transaction is a vehicle sale held in escrow until its conditions are met.
type Transaction struct {
	ID        uuid.UUID
	Code      string
	BuyerID   uuid.UUID
	SellerID  uuid.UUID
	DealerID  *uuid.UUID
	VehicleID uuid.UUID

	Amount           decimal.Decimal
	Currency         string
	ServiceFee       decimal.Decimal
	DealerCommission decimal.Decimal

	EscrowAccount string // IBAN
	EscrowCountry string // ISO 3166-1 alpha-2

	Status             Status
	InspectionDate     *time.Time
	CancellationReason string

	CreatedAt              time.Time
	PaymentRequestedAt     *time.Time
	PaymentVerifiedAt      *time.Time
	InspectionScheduledAt  *time.Time
	OwnershipTransferredAt *time.Time
	CompletedAt            *time.Time
	CancelledAt            *time.Time
	UpdatedAt              *time.Time
}

// Funds is a verified or paid payment held against a transaction.
type Funds struct {
	Amount   decimal.Decimal
	Currency string
}

// Role is the part an actor plays in a particular transaction.
type Role string

const (
	RoleNone   Role = ""
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleDealer Role = "dealer"
	RoleAdmin  Role = "admin"
)

// Actor is the authenticated identity triggering an operation.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

// RoleOf resolves the role a holds with respect to t.
func (t *Transaction) RoleOf(a Actor) Role {
	switch {
	case a.Admin:
		return RoleAdmin
	case a.ID == uuid.Nil:
		return RoleNone
	case a.ID == t.BuyerID:
		return RoleBuyer
	case a.ID == t.SellerID:
		return RoleSeller
	case t.DealerID != nil && a.ID == *t.DealerID:
		return RoleDealer
	}

	return RoleNone
}

// IsParty reports whether a is the buyer, seller or dealer of t.
func (t *Transaction) IsParty(a Actor) bool {
	r := t.RoleOf(Actor{ID: a.ID})
	return r != RoleNone
}

// stageStamps returns the happy-path stamps in chain order.
func (t *Transaction) stageStamps() []*time.Time {
	return []*time.Time{t.PaymentRequestedAt, t.PaymentVerifiedAt, t.InspectionScheduledAt, t.CompletedAt}
}

// latestStamp is the most recent lifecycle timestamp carried by t.
func (t *Transaction) latestStamp() time.Time {
	latest := t.CreatedAt

	for _, ts := range []*time.Time{
		t.PaymentRequestedAt, t.PaymentVerifiedAt, t.InspectionScheduledAt,
		t.OwnershipTransferredAt, t.CompletedAt, t.CancelledAt,
	} {
		if ts != nil && ts.After(latest) {
			latest = *ts
		}
	}

	return latest
}

// Validate checks field constraints and that status agrees with the
// lifecycle timestamps.
func (t *Transaction) Validate() error {
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransaction, t.Status)
	}

	if t.BuyerID == uuid.Nil || t.SellerID == uuid.Nil || t.VehicleID == uuid.Nil {
		return fmt.Errorf("%w: buyer, seller and vehicle are required", ErrInvalidTransaction)
	}

	if t.BuyerID == t.SellerID {
		return fmt.Errorf("%w: buyer and seller must differ", ErrInvalidTransaction)
	}

	if t.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTransaction)
	}

	if t.ServiceFee.IsNegative() || t.DealerCommission.IsNegative() {
		return fmt.Errorf("%w: fees must not be negative", ErrInvalidTransaction)
	}

	if !money.Cents(t.Amount) || !money.Cents(t.ServiceFee) || !money.Cents(t.DealerCommission) {
		return fmt.Errorf("%w: amounts must be whole cents", ErrInvalidTransaction)
	}

	if t.DealerID == nil && !t.DealerCommission.IsZero() {
		return fmt.Errorf("%w: dealer commission without a dealer", ErrInvalidTransaction)
	}

	if _, err := money.ParseCurrency(t.Currency); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	if !money.ValidIBAN(t.EscrowAccount) {
		return fmt.Errorf("%w: invalid escrow account", ErrInvalidTransaction)
	}

	if err := t.validateStamps(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTransaction, err)
	}

	return nil
}

func (t *Transaction) validateStamps() error {
	stamps := t.stageStamps()

	reached := t.Status.stage()
	if t.Status == StatusCancelled {
		for reached < len(stamps) && stamps[reached] != nil {
			reached++
		}
	}

	for i, ts := range stamps {
		if (i < reached) != (ts != nil) {
			return fmt.Errorf("status %s disagrees with lifecycle timestamps", t.Status)
		}
	}

	if (t.Status == StatusCancelled) != (t.CancelledAt != nil) {
		return fmt.Errorf("cancelled_at must be set iff status is cancelled")
	}

	if t.Status == StatusCompleted && t.OwnershipTransferredAt == nil {
		return fmt.Errorf("completed transaction without ownership transfer date")
	}

	if t.OwnershipTransferredAt != nil && t.InspectionScheduledAt == nil {
		return fmt.Errorf("ownership transferred before inspection was scheduled")
	}

	if (t.InspectionDate != nil) != (t.InspectionScheduledAt != nil) {
		return fmt.Errorf("inspection date must be set iff inspection is scheduled")
	}

	prev := t.CreatedAt

	for _, ts := range []*time.Time{
		t.PaymentRequestedAt, t.PaymentVerifiedAt, t.InspectionScheduledAt,
		t.OwnershipTransferredAt, t.CompletedAt, t.CancelledAt,
	} {
		if ts == nil {
			continue
		}

		if ts.Before(prev) {
			return fmt.Errorf("lifecycle timestamps are not monotonic")
		}

		prev = *ts
	}

	return nil
}
