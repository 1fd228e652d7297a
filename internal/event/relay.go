package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handler consumes events. Delivery is at-least-once, so Handle must be
// idempotent on Event.ID.
type Handler interface {
	Name() string
	Handle(ctx context.Context, e Event) error
}

// Outbox hands out batches of undelivered events.
type Outbox interface {
	Claim(ctx context.Context, limit int) (Batch, error)
}

// Batch is a set of claimed events. Marks take effect on Commit; Rollback
// releases the claim without recording anything.
type Batch interface {
	Events() []Event
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	Commit() error
	Rollback() error
}

// DeliveryObserver is told the outcome of every delivery attempt.
type DeliveryObserver interface {
	EventDelivered(name Name, err error)
}

type RelayConfig struct {
	BatchSize    int
	Workers      int
	PollInterval time.Duration
	Observer     DeliveryObserver
}

// Relay publishes committed outbox events to handlers. Events of the same
// transaction are delivered in order by a single worker; different
// transactions are spread over the worker pool. Several relays may share one
// outbox as long as its Claim never hands events of one transaction to two
// batches at once.
type Relay struct {
	outbox   Outbox
	handlers []Handler
	cfg      RelayConfig
}

var errDeferred = errors.New("deferred behind an earlier failure")

func NewRelay(outbox Outbox, handlers []Handler, cfg RelayConfig) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	return &Relay{outbox: outbox, handlers: handlers, cfg: cfg}
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("relaying outbox", "error", err)
				}

				break
			}

			if n < r.cfg.BatchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Flush delivers one batch and returns how many events it claimed.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	batch, err := r.outbox.Claim(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim batch: %w", err)
	}
	defer batch.Rollback()

	events := batch.Events()
	if len(events) == 0 {
		return 0, nil
	}

	results := make([]error, len(events))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	for _, idxs := range groupByTransaction(events) {
		g.Go(func() error {
			for n, i := range idxs {
				results[i] = r.deliver(ctx, events[i])
				if results[i] == nil {
					continue
				}

				for _, rest := range idxs[n+1:] {
					results[rest] = errDeferred
				}

				break
			}

			return nil
		})
	}

	_ = g.Wait()

	for i, e := range events {
		switch err := results[i]; {
		case err == nil:
			if err := batch.MarkDelivered(ctx, e.ID); err != nil {
				return 0, fmt.Errorf("mark delivered: %w", err)
			}
		case errors.Is(err, errDeferred):
		default:
			slog.Warn("event delivery failed", "event_id", e.ID, "event", e.Name, "error", err)

			if err := batch.MarkFailed(ctx, e.ID, err.Error()); err != nil {
				return 0, fmt.Errorf("mark failed: %w", err)
			}
		}
	}

	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}

	return len(events), nil
}

func (r *Relay) deliver(ctx context.Context, e Event) error {
	var errs []error

	for _, h := range r.handlers {
		if err := h.Handle(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
		}
	}

	err := errors.Join(errs...)
	if r.cfg.Observer != nil {
		r.cfg.Observer.EventDelivered(e.Name, err)
	}

	return err
}

// groupByTransaction returns event indexes grouped per transaction, keeping
// the claim order inside each group.
func groupByTransaction(events []Event) [][]int {
	pos := make(map[uuid.UUID]int)

	var groups [][]int

	for i, e := range events {
		g, ok := pos[e.TransactionID]
		if !ok {
			g = len(groups)
			pos[e.TransactionID] = g
			groups = append(groups, nil)
		}

		groups[g] = append(groups[g], i)
	}

	return groups
}
