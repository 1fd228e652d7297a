package dispute_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

var (
	buyerID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	sellerID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	dealerID = uuid.MustParse("33333333-3333-3333-3333-333333333333")
	adminID  = uuid.MustParse("99999999-9999-9999-9999-999999999999")

	buyer  = transaction.Actor{ID: buyerID}
	seller = transaction.Actor{ID: sellerID}
	dealer = transaction.Actor{ID: dealerID}
	admin  = transaction.Actor{ID: adminID, Admin: true}

	base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now  = base.Add(24 * time.Hour)
)

func newTx() *transaction.Transaction {
	d := dealerID

	return &transaction.Transaction{
		ID:            uuid.New(),
		Code:          "TRX-TEST000001",
		BuyerID:       buyerID,
		SellerID:      sellerID,
		DealerID:      &d,
		VehicleID:     uuid.New(),
		Amount:        decimal.NewFromInt(1000),
		Currency:      "EUR",
		EscrowAccount: "DE89370400440532013000",
		EscrowCountry: "DE",
		Status:        transaction.StatusPending,
		CreatedAt:     base,
	}
}

func disputeIn(status dispute.Status) *dispute.Dispute {
	d := &dispute.Dispute{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		RaisedBy:      buyerID,
		Type:          dispute.TypeVehicleCondition,
		Reason:        "scratches not in listing",
		Status:        status,
		CreatedAt:     base,
	}

	switch status {
	case dispute.StatusResolved:
		d.Resolution = &dispute.Resolution{Type: dispute.ResolutionPartialRefund, ResolvedBy: adminID, ResolvedAt: base.Add(time.Hour), Text: "200 back"}
	case dispute.StatusClosed:
		d.Resolution = &dispute.Resolution{Type: dispute.ResolutionDismissed, ResolvedBy: adminID, ResolvedAt: base.Add(time.Hour), Text: "duplicate"}
	}

	return d
}

func newService(repo dispute.Repository) *dispute.Service {
	return dispute.NewService(repo, dispute.WithClock(func() time.Time { return now }))
}

func TestService_Open(t *testing.T) {
	tests := []struct {
		name      string
		actor     transaction.Actor
		reason    string
		kind      dispute.Type
		wantError error
	}{
		{name: "buyer", actor: buyer, reason: "engine noise", kind: dispute.TypeVehicleCondition},
		{name: "seller", actor: seller, reason: "buyer stopped answering", kind: dispute.TypeOther},
		{name: "dealer may not raise", actor: dealer, reason: "x", kind: dispute.TypeOther, wantError: transaction.ErrUnauthorizedActor},
		{name: "admin may not raise", actor: admin, reason: "x", kind: dispute.TypeOther, wantError: transaction.ErrUnauthorizedActor},
		{name: "blank reason", actor: buyer, reason: "  ", kind: dispute.TypePayment, wantError: dispute.ErrInvalidDispute},
		{name: "unknown type", actor: buyer, reason: "x", kind: "weather", wantError: dispute.ErrInvalidDispute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := dispute.NewMockRepository(ctrl)
			utx := dispute.NewMockUpdateTx(ctrl)

			tx := newTx()

			repo.EXPECT().BeginDisputeCreate(gomock.Any(), tx.ID).Return(utx, nil)
			utx.EXPECT().Transaction().Return(tx)
			utx.EXPECT().Rollback().Return(nil)

			if tt.wantError == nil {
				utx.EXPECT().CreateDispute(gomock.Any(), gomock.Any()).Return(nil)
				utx.EXPECT().RecordEvent(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, e event.Event) error {
						assert.Equal(t, event.DisputeOpened, e.Name)
						assert.Equal(t, tx.ID, e.TransactionID)
						return nil
					})
				utx.EXPECT().Commit().Return(nil)
			}

			d, err := newService(repo).Open(context.Background(), dispute.OpenParams{
				TransactionID: tx.ID,
				Type:          tt.kind,
				Reason:        tt.reason,
				Actor:         tt.actor,
			})

			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, dispute.StatusOpen, d.Status)
			assert.Equal(t, tt.actor.ID, d.RaisedBy)
			assert.Nil(t, d.Resolution)
		})
	}
}

func TestService_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		from      dispute.Status
		kind      dispute.ResolutionType
		text      string
		wantError error
	}{
		{name: "from open", from: dispute.StatusOpen, kind: dispute.ResolutionRefundBuyer, text: "full refund"},
		{name: "from review", from: dispute.StatusInReview, kind: dispute.ResolutionReleaseSeller, text: "claim unfounded"},
		{name: "already resolved", from: dispute.StatusResolved, kind: dispute.ResolutionRefundBuyer, text: "again", wantError: dispute.ErrAlreadyResolved},
		{name: "already closed", from: dispute.StatusClosed, kind: dispute.ResolutionRefundBuyer, text: "again", wantError: dispute.ErrAlreadyResolved},
		{name: "blank text", from: dispute.StatusInReview, kind: dispute.ResolutionRefundBuyer, text: " ", wantError: dispute.ErrMissingResolutionText},
		{name: "dismissed is for close", from: dispute.StatusOpen, kind: dispute.ResolutionDismissed, text: "nope", wantError: dispute.ErrInvalidDispute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := dispute.NewMockRepository(ctrl)
			utx := dispute.NewMockUpdateTx(ctrl)

			d := disputeIn(tt.from)
			before := *d

			repo.EXPECT().BeginDisputeUpdate(gomock.Any(), d.ID).Return(utx, nil)
			utx.EXPECT().Dispute().Return(d)
			utx.EXPECT().Rollback().Return(nil)

			if tt.wantError == nil {
				utx.EXPECT().UpdateDispute(gomock.Any(), gomock.Any()).Return(nil)
				utx.EXPECT().RecordEvent(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, e event.Event) error {
						assert.Equal(t, event.DisputeResolved, e.Name)
						assert.Equal(t, string(tt.from), e.From)
						assert.Equal(t, "resolved", e.To)
						return nil
					})
				utx.EXPECT().Commit().Return(nil)
			}

			got, err := newService(repo).Resolve(context.Background(), d.ID, admin, tt.kind, tt.text)

			assert.Equal(t, before, *d)

			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, dispute.StatusResolved, got.Status)
			require.NotNil(t, got.Resolution)
			assert.Equal(t, dispute.Resolution{Type: tt.kind, ResolvedBy: adminID, ResolvedAt: now, Text: tt.text}, *got.Resolution)
			require.NoError(t, got.Validate())
		})
	}
}

func TestService_Resolve_RequiresAdmin(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := dispute.NewMockRepository(ctrl)

	_, err := newService(repo).Resolve(context.Background(), uuid.New(), buyer, dispute.ResolutionRefundBuyer, "mine")
	require.ErrorIs(t, err, transaction.ErrUnauthorizedActor)
}

func TestService_StartReview(t *testing.T) {
	tests := []struct {
		name      string
		from      dispute.Status
		wantError error
	}{
		{name: "open", from: dispute.StatusOpen},
		{name: "already in review", from: dispute.StatusInReview, wantError: dispute.ErrInvalidTransition},
		{name: "resolved", from: dispute.StatusResolved, wantError: dispute.ErrAlreadyResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := dispute.NewMockRepository(ctrl)
			utx := dispute.NewMockUpdateTx(ctrl)

			d := disputeIn(tt.from)

			repo.EXPECT().BeginDisputeUpdate(gomock.Any(), d.ID).Return(utx, nil)
			utx.EXPECT().Dispute().Return(d)
			utx.EXPECT().Rollback().Return(nil)

			if tt.wantError == nil {
				utx.EXPECT().UpdateDispute(gomock.Any(), gomock.Any()).Return(nil)
				utx.EXPECT().RecordEvent(gomock.Any(), gomock.Any()).Return(nil)
				utx.EXPECT().Commit().Return(nil)
			}

			got, err := newService(repo).StartReview(context.Background(), d.ID, admin)
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, dispute.StatusInReview, got.Status)
		})
	}
}

func TestService_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := dispute.NewMockRepository(ctrl)
	utx := dispute.NewMockUpdateTx(ctrl)

	d := disputeIn(dispute.StatusInReview)

	repo.EXPECT().BeginDisputeUpdate(gomock.Any(), d.ID).Return(utx, nil)
	utx.EXPECT().Dispute().Return(d)
	utx.EXPECT().UpdateDispute(gomock.Any(), gomock.Any()).Return(nil)
	utx.EXPECT().RecordEvent(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e event.Event) error {
			assert.Equal(t, event.DisputeClosed, e.Name)
			assert.Equal(t, "dismissed", e.Note)
			return nil
		})
	utx.EXPECT().Commit().Return(nil)
	utx.EXPECT().Rollback().Return(nil)

	got, err := newService(repo).Close(context.Background(), d.ID, admin, "raised in error")
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusClosed, got.Status)
	assert.Equal(t, dispute.ResolutionDismissed, got.Resolution.Type)
}

func TestDispute_Validate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *dispute.Dispute
		wantErr bool
	}{
		{name: "open", build: func() *dispute.Dispute { return disputeIn(dispute.StatusOpen) }},
		{name: "resolved", build: func() *dispute.Dispute { return disputeIn(dispute.StatusResolved) }},
		{name: "closed", build: func() *dispute.Dispute { return disputeIn(dispute.StatusClosed) }},
		{name: "open with resolution", build: func() *dispute.Dispute {
			d := disputeIn(dispute.StatusResolved)
			d.Status = dispute.StatusOpen

			return d
		}, wantErr: true},
		{name: "resolved without resolution", build: func() *dispute.Dispute {
			d := disputeIn(dispute.StatusResolved)
			d.Resolution = nil

			return d
		}, wantErr: true},
		{name: "partial resolution", build: func() *dispute.Dispute {
			d := disputeIn(dispute.StatusResolved)
			d.Resolution.ResolvedBy = uuid.Nil

			return d
		}, wantErr: true},
		{name: "resolved as dismissed", build: func() *dispute.Dispute {
			d := disputeIn(dispute.StatusResolved)
			d.Resolution.Type = dispute.ResolutionDismissed

			return d
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, dispute.ErrInvalidDispute)
				return
			}

			assert.NoError(t, err)
		})
	}
}
