package transaction

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

func fromResponse(r transactionResponse) *transaction.Transaction {
	return &transaction.Transaction{
		ID:                     r.ID,
		Code:                   r.Code,
		BuyerID:                r.BuyerID,
		SellerID:               r.SellerID,
		DealerID:               r.DealerID,
		VehicleID:              r.VehicleID,
		Amount:                 r.Amount,
		Currency:               r.Currency,
		ServiceFee:             r.ServiceFee,
		DealerCommission:       r.DealerCommission,
		EscrowAccount:          r.EscrowAccount,
		EscrowCountry:          r.EscrowCountry,
		Status:                 r.Status,
		InspectionDate:         r.InspectionDate,
		CancellationReason:     r.CancellationReason,
		CreatedAt:              r.CreatedAt,
		PaymentRequestedAt:     r.PaymentRequestedAt,
		PaymentVerifiedAt:      r.PaymentVerifiedAt,
		InspectionScheduledAt:  r.InspectionScheduledAt,
		OwnershipTransferredAt: r.OwnershipTransferredAt,
		CompletedAt:            r.CompletedAt,
		CancelledAt:            r.CancelledAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

func at(hours int) *time.Time {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC).Add(time.Duration(hours) * time.Hour)
	return &ts
}

func TestResponse_RoundTrip(t *testing.T) {
	dealer := uuid.New()
	tx := &transaction.Transaction{
		ID:                     uuid.New(),
		Code:                   "TRX-0A1B2C3D4E",
		BuyerID:                uuid.New(),
		SellerID:               uuid.New(),
		DealerID:               &dealer,
		VehicleID:              uuid.New(),
		Amount:                 decimal.RequireFromString("18500.50"),
		Currency:               "EUR",
		ServiceFee:             decimal.RequireFromString("250"),
		DealerCommission:       decimal.RequireFromString("120.25"),
		EscrowAccount:          "DE89370400440532013000",
		EscrowCountry:          "DE",
		Status:                 transaction.StatusCompleted,
		InspectionDate:         at(48),
		CreatedAt:              *at(0),
		PaymentRequestedAt:     at(1),
		PaymentVerifiedAt:      at(2),
		InspectionScheduledAt:  at(3),
		OwnershipTransferredAt: at(50),
		CompletedAt:            at(51),
		UpdatedAt:              at(51),
	}
	require.NoError(t, tx.Validate())

	body, err := json.Marshal(toResponse(tx))
	require.NoError(t, err)

	var decoded transactionResponse
	require.NoError(t, json.Unmarshal(body, &decoded))

	got := fromResponse(decoded)
	require.NoError(t, got.Validate())

	for _, pair := range [][2]*decimal.Decimal{
		{&tx.Amount, &got.Amount},
		{&tx.ServiceFee, &got.ServiceFee},
		{&tx.DealerCommission, &got.DealerCommission},
	} {
		assert.True(t, pair[0].Equal(*pair[1]), "%s != %s", pair[0], pair[1])
		*pair[1] = *pair[0]
	}

	assert.Equal(t, tx, got)
}

func TestResponse_OmitsUnsetStamps(t *testing.T) {
	tx := &transaction.Transaction{
		ID:            uuid.New(),
		Status:        transaction.StatusPending,
		Amount:        decimal.NewFromInt(1000),
		Currency:      "EUR",
		EscrowAccount: "DE89370400440532013000",
		CreatedAt:     *at(0),
	}

	body, err := json.Marshal(toResponse(tx))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))

	assert.Equal(t, "1000", fields["amount"])
	assert.NotContains(t, fields, "payment_requested_at")
	assert.NotContains(t, fields, "completed_at")
	assert.NotContains(t, fields, "dealer_id")
}
