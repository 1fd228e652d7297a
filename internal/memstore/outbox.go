package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/event"
)

type batch struct {
	s       *Store
	entries []*outboxEntry
	marks   map[uuid.UUID]func()
	done    bool
}

// Claim hands out up to limit undelivered events that no other batch holds,
// oldest first.
func (s *Store) Claim(ctx context.Context, limit int) (event.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := &batch{s: s, marks: make(map[uuid.UUID]func())}

	for _, e := range s.outbox {
		if len(b.entries) == limit {
			break
		}

		if e.delivered || e.claimed {
			continue
		}

		e.claimed = true
		b.entries = append(b.entries, e)
	}

	return b, nil
}

// Pending counts undelivered events.
func (s *Store) Pending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int

	for _, e := range s.outbox {
		if !e.delivered {
			n++
		}
	}

	return n, nil
}

func (b *batch) Events() []event.Event {
	events := make([]event.Event, len(b.entries))
	for i, e := range b.entries {
		events[i] = e.event
	}

	return events
}

func (b *batch) find(id uuid.UUID) *outboxEntry {
	for _, e := range b.entries {
		if e.event.ID == id {
			return e
		}
	}

	return nil
}

func (b *batch) MarkDelivered(_ context.Context, id uuid.UUID) error {
	if b.done {
		return errTxDone
	}

	if e := b.find(id); e != nil {
		b.marks[id] = func() {
			e.delivered = true
			e.attempts++
			e.lastError = ""
		}
	}

	return nil
}

func (b *batch) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	if b.done {
		return errTxDone
	}

	if e := b.find(id); e != nil {
		b.marks[id] = func() {
			e.attempts++
			e.lastError = reason
		}
	}

	return nil
}

func (b *batch) Commit() error {
	if b.done {
		return errTxDone
	}

	b.s.mu.Lock()
	for _, mark := range b.marks {
		mark()
	}
	b.release()
	b.s.mu.Unlock()

	return nil
}

func (b *batch) Rollback() error {
	if b.done {
		return errTxDone
	}

	b.s.mu.Lock()
	b.release()
	b.s.mu.Unlock()

	return nil
}

func (b *batch) release() {
	b.done = true

	for _, e := range b.entries {
		e.claimed = false
	}
}
