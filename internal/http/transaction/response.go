package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/autoescrow/internal/audit"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

type transactionResponse struct {
	ID                     uuid.UUID          `json:"id"`
	Code                   string             `json:"code"`
	BuyerID                uuid.UUID          `json:"buyer_id"`
	SellerID               uuid.UUID          `json:"seller_id"`
	DealerID               *uuid.UUID         `json:"dealer_id,omitempty"`
	VehicleID              uuid.UUID          `json:"vehicle_id"`
	Amount                 decimal.Decimal    `json:"amount"`
	Currency               string             `json:"currency"`
	ServiceFee             decimal.Decimal    `json:"service_fee"`
	DealerCommission       decimal.Decimal    `json:"dealer_commission"`
	EscrowAccount          string             `json:"escrow_account"`
	EscrowCountry          string             `json:"escrow_country"`
	Status                 transaction.Status `json:"status"`
	InspectionDate         *time.Time         `json:"inspection_date,omitempty"`
	CancellationReason     string             `json:"cancellation_reason,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	PaymentRequestedAt     *time.Time         `json:"payment_requested_at,omitempty"`
	PaymentVerifiedAt      *time.Time         `json:"payment_verified_at,omitempty"`
	InspectionScheduledAt  *time.Time         `json:"inspection_scheduled_at,omitempty"`
	OwnershipTransferredAt *time.Time         `json:"ownership_transferred_at,omitempty"`
	CompletedAt            *time.Time         `json:"completed_at,omitempty"`
	CancelledAt            *time.Time         `json:"cancelled_at,omitempty"`
	UpdatedAt              *time.Time         `json:"updated_at,omitempty"`
}

func toResponse(tx *transaction.Transaction) transactionResponse {
	return transactionResponse{
		ID:                     tx.ID,
		Code:                   tx.Code,
		BuyerID:                tx.BuyerID,
		SellerID:               tx.SellerID,
		DealerID:               tx.DealerID,
		VehicleID:              tx.VehicleID,
		Amount:                 tx.Amount,
		Currency:               tx.Currency,
		ServiceFee:             tx.ServiceFee,
		DealerCommission:       tx.DealerCommission,
		EscrowAccount:          tx.EscrowAccount,
		EscrowCountry:          tx.EscrowCountry,
		Status:                 tx.Status,
		InspectionDate:         tx.InspectionDate,
		CancellationReason:     tx.CancellationReason,
		CreatedAt:              tx.CreatedAt,
		PaymentRequestedAt:     tx.PaymentRequestedAt,
		PaymentVerifiedAt:      tx.PaymentVerifiedAt,
		InspectionScheduledAt:  tx.InspectionScheduledAt,
		OwnershipTransferredAt: tx.OwnershipTransferredAt,
		CompletedAt:            tx.CompletedAt,
		CancelledAt:            tx.CancelledAt,
		UpdatedAt:              tx.UpdatedAt,
	}
}

func toResponseList(txs []*transaction.Transaction) []transactionResponse {
	resp := make([]transactionResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}

type transitionsResponse struct {
	Status      transaction.Status   `json:"status"`
	Transitions []transaction.Status `json:"transitions"`
}

type activityResponse struct {
	EventID    uuid.UUID  `json:"event_id"`
	SubjectID  uuid.UUID  `json:"subject_id"`
	Action     event.Name `json:"action"`
	From       string     `json:"from,omitempty"`
	To         string     `json:"to"`
	ActorID    uuid.UUID  `json:"actor_id"`
	Note       string     `json:"note,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

func toActivityList(entries []audit.Entry) []activityResponse {
	resp := make([]activityResponse, len(entries))
	for i, e := range entries {
		resp[i] = activityResponse{
			EventID:    e.EventID,
			SubjectID:  e.SubjectID,
			Action:     e.Action,
			From:       e.From,
			To:         e.To,
			ActorID:    e.ActorID,
			Note:       e.Note,
			OccurredAt: e.OccurredAt,
		}
	}

	return resp
}
