package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
)

const keyPrefix = "autoescrow:notify:"

// payload is the JSON body posted for each event.
type payload struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	TransactionID uuid.UUID `json:"transaction_id"`
	SubjectID     uuid.UUID `json:"subject_id"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	ActorID       uuid.UUID `json:"actor_id"`
	Note          string    `json:"note,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Webhook posts events to an HTTP endpoint standing in for the mail service.
// Each event id is sent at most once per dedupe window.
type Webhook struct {
	url     string
	client  *http.Client
	deduper Deduper
	ttl     time.Duration
}

func NewWebhook(url string, timeout time.Duration, deduper Deduper, ttl time.Duration) *Webhook {
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		deduper: deduper,
		ttl:     ttl,
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Handle(ctx context.Context, e event.Event) error {
	if w.url == "" {
		return nil
	}

	key := keyPrefix + e.ID.String()

	fresh, err := w.deduper.Claim(ctx, key, w.ttl)
	if err != nil {
		return err
	}

	if !fresh {
		slog.Debug("notification already sent", "event_id", e.ID)
		return nil
	}

	if err := w.post(ctx, e); err != nil {
		if rerr := w.deduper.Release(ctx, key); rerr != nil {
			slog.Error("failed to release notification key", "event_id", e.ID, "error", rerr)
		}

		return err
	}

	return nil
}

func (w *Webhook) post(ctx context.Context, e event.Event) error {
	body, err := json.Marshal(payload{
		ID:            e.ID,
		Name:          string(e.Name),
		TransactionID: e.TransactionID,
		SubjectID:     e.SubjectID,
		From:          e.From,
		To:            e.To,
		ActorID:       e.ActorID,
		Note:          e.Note,
		OccurredAt:    e.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", e.ID.String())

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code %d from webhook", resp.StatusCode)
	}

	return nil
}
