package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

const namespace = "autoescrow"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	RequestCounter   *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	Transitions      *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RequestCounter: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Transaction transition attempts by edge and outcome",
			},
			[]string{"from", "to", "outcome"},
		),
		Deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_deliveries_total",
				Help:      "Outbox event deliveries by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		gatherer: reg,
	}
}

// Middleware records count, latency and in-flight requests per chi route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) TransitionAttempted(from, to transaction.Status, err error) {
	m.Transitions.WithLabelValues(statusLabel(from), statusLabel(to), outcome(err)).Inc()
}

// statusLabel keeps caller-supplied statuses from creating new series.
func statusLabel(s transaction.Status) string {
	if !s.Valid() {
		return "unknown"
	}

	return string(s)
}

func (m *Metrics) EventDelivered(name event.Name, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}

	m.Deliveries.WithLabelValues(string(name), result).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, transaction.ErrNotFound):
		return "not_found"
	case errors.Is(err, transaction.ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, transaction.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, transaction.ErrUnauthorizedActor):
		return "unauthorized"
	case errors.Is(err, transaction.ErrPreconditionFailed):
		return "precondition_failed"
	default:
		return "error"
	}
}
