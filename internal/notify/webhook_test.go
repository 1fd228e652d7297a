package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/notify"
)

func sampleEvent() event.Event {
	txID := uuid.New()
	return event.New(event.TransactionStatusChanged, txID, txID, "payment_pending", "payment_verified",
		uuid.New(), time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC))
}

func TestWebhook_Handle_SendsOncePerEvent(t *testing.T) {
	var calls atomic.Int32

	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	hook := notify.NewWebhook(srv.URL, time.Second, notify.NewMemoryDeduper(), time.Hour)
	e := sampleEvent()

	require.NoError(t, hook.Handle(context.Background(), e))
	require.NoError(t, hook.Handle(context.Background(), e))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, e.ID.String(), got["id"])
	assert.Equal(t, "transaction.status_changed", got["name"])
	assert.Equal(t, "payment_verified", got["to"])
}

func TestWebhook_Handle_FailureAllowsRetry(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := notify.NewWebhook(srv.URL, time.Second, notify.NewMemoryDeduper(), time.Hour)
	e := sampleEvent()

	assert.Error(t, hook.Handle(context.Background(), e))
	assert.NoError(t, hook.Handle(context.Background(), e))
	assert.Equal(t, int32(2), calls.Load())
}

func TestWebhook_Handle_NoURL(t *testing.T) {
	hook := notify.NewWebhook("", time.Second, notify.NewMemoryDeduper(), time.Hour)
	assert.NoError(t, hook.Handle(context.Background(), sampleEvent()))
}

func TestMemoryDeduper(t *testing.T) {
	d := notify.NewMemoryDeduper()
	ctx := context.Background()

	fresh, err := d.Claim(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = d.Claim(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, d.Release(ctx, "k"))

	fresh, err = d.Claim(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = d.Claim(ctx, "short", -time.Second)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = d.Claim(ctx, "short", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh, "expired keys are claimable again")
}
