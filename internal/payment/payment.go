package payment

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/autoescrow/internal/money"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusRejected, StatusPaid:
		return true
	}

	return false
}

// Settled reports whether a payment in s counts towards the transaction total.
func (s Status) Settled() bool {
	return s == StatusVerified || s == StatusPaid
}

type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodCard         Method = "card"
	MethodCash         Method = "cash"
	MethodOther        Method = "other"
)

var Methods = []Method{MethodBankTransfer, MethodCard, MethodCash, MethodOther}

func (m Method) Valid() bool {
	return slices.Contains(Methods, m)
}

// Payment is money the buyer claims to have sent towards a transaction.
type Payment struct {
	ID            uuid.UUID
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	Method        Method
	Reference     string

	Status          Status
	VerifiedBy      *uuid.UUID
	VerifiedAt      *time.Time
	PaidAt          *time.Time
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt *time.Time
}

// Validate checks field constraints and that the processing fields agree
// with status.
func (p *Payment) Validate() error {
	if !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidPayment, p.Status)
	}

	if !p.Method.Valid() {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidPayment, p.Method)
	}

	if p.TransactionID == uuid.Nil {
		return fmt.Errorf("%w: transaction is required", ErrInvalidPayment)
	}

	if p.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}

	if !money.Cents(p.Amount) {
		return fmt.Errorf("%w: amount %s is finer than a cent", ErrInvalidPayment, p.Amount)
	}

	processed := p.VerifiedBy != nil && p.VerifiedAt != nil

	switch p.Status {
	case StatusPending:
		if p.VerifiedBy != nil || p.VerifiedAt != nil || p.PaidAt != nil || p.RejectionReason != "" {
			return fmt.Errorf("%w: pending payment carries processing fields", ErrInvalidPayment)
		}
	case StatusVerified:
		if !processed || p.PaidAt != nil || p.RejectionReason != "" {
			return fmt.Errorf("%w: verified payment needs verifier and time only", ErrInvalidPayment)
		}
	case StatusPaid:
		if !processed || p.PaidAt == nil || p.RejectionReason != "" {
			return fmt.Errorf("%w: paid payment needs verifier, verification and payout times", ErrInvalidPayment)
		}

		if p.PaidAt.Before(*p.VerifiedAt) {
			return fmt.Errorf("%w: paid before verified", ErrInvalidPayment)
		}
	case StatusRejected:
		if !processed || p.PaidAt != nil || strings.TrimSpace(p.RejectionReason) == "" {
			return fmt.Errorf("%w: rejected payment needs verifier, time and reason", ErrInvalidPayment)
		}
	}

	return nil
}
