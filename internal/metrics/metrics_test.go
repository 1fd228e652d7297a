package metrics_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/metrics"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

func TestMiddleware_LabelsByRoute(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/transactions/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for range 3 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/abc", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.InDelta(t, 3, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/transactions/{id}", "418")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.RequestsInFlight), 0)
}

func TestTransitionAttempted(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.TransitionAttempted(transaction.StatusPending, transaction.StatusPaymentPending, nil)
	m.TransitionAttempted(transaction.StatusCompleted, transaction.StatusCancelled,
		fmt.Errorf("wrapped: %w", transaction.ErrAlreadyTerminal))
	m.TransitionAttempted(transaction.StatusPending, transaction.StatusCompleted, errors.New("db down"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "payment_pending", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Transitions.WithLabelValues("completed", "cancelled", "already_terminal")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "completed", "error")), 0)
}

func TestTransitionAttempted_UnknownTargetsShareOneSeries(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	for _, target := range []transaction.Status{"shipped", "refunded", "x-1", "x-2"} {
		m.TransitionAttempted(transaction.StatusPending, target, transaction.ErrInvalidTransition)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.Transitions))
	assert.InDelta(t, 4, testutil.ToFloat64(m.Transitions.WithLabelValues("pending", "unknown", "invalid_transition")), 0)
}

func TestEventDelivered(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.EventDelivered(event.PaymentVerified, nil)
	m.EventDelivered(event.PaymentVerified, errors.New("timeout"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.Deliveries.WithLabelValues("payment.verified", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Deliveries.WithLabelValues("payment.verified", "error")), 0)
}

func TestHandler(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.EventDelivered(event.DisputeOpened, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autoescrow_event_deliveries_total")
}
