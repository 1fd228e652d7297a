package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/autoescrow/internal/audit"
	"github.com/MrJamesThe3rd/autoescrow/internal/audit/store"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
)

var occurred = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRecordActivity(t *testing.T) {
	tests := []struct {
		name    string
		execErr error
		wantErr bool
	}{
		{name: "inserted"},
		{name: "database error", execErr: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			entry := audit.Entry{
				EventID:       uuid.New(),
				TransactionID: uuid.New(),
				SubjectID:     uuid.New(),
				Action:        event.PaymentVerified,
				From:          "pending",
				To:            "verified",
				ActorID:       uuid.New(),
				OccurredAt:    occurred,
			}

			exp := mock.ExpectExec(`INSERT INTO activity_log .+ ON CONFLICT \(event_id\) DO NOTHING`).
				WithArgs(entry.EventID.String(), entry.TransactionID.String(), entry.SubjectID.String(),
					"payment.verified", "pending", "verified", entry.ActorID.String(), "", occurred)

			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			err = store.New(db).RecordActivity(context.Background(), entry)
			if tt.wantErr {
				assert.ErrorContains(t, err, "inserting activity")
			} else {
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRecordActivity_RedeliveryIsANoOp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The conflict clause turns a second insert of the same event into zero rows.
	mock.ExpectExec(`ON CONFLICT \(event_id\) DO NOTHING`).WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.New(db).RecordActivity(context.Background(), audit.Entry{EventID: uuid.New(), OccurredAt: occurred})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListActivity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	txID := uuid.New()
	local := occurred.In(time.FixedZone("CET", 3600))

	mock.ExpectQuery(`FROM activity_log\s+WHERE transaction_id = \$1\s+ORDER BY occurred_at ASC, recorded_at ASC`).
		WithArgs(txID.String()).
		WillReturnRows(sqlmock.NewRows([]string{
			"event_id", "transaction_id", "subject_id", "action", "from_state", "to_state", "actor_id", "note", "occurred_at",
		}).
			AddRow(uuid.NewString(), txID.String(), txID.String(), "transaction.created", "", "pending", uuid.NewString(), "", local).
			AddRow(uuid.NewString(), txID.String(), uuid.NewString(), "dispute.opened", "", "open", uuid.NewString(), "Scratched door", local))

	entries, err := store.New(db).ListActivity(context.Background(), txID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, event.TransactionCreated, entries[0].Action)
	assert.Equal(t, event.DisputeOpened, entries[1].Action)
	assert.Equal(t, "Scratched door", entries[1].Note)
	assert.Equal(t, time.UTC, entries[0].OccurredAt.Location())
	assert.True(t, occurred.Equal(entries[0].OccurredAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}
