// Package memstore keeps every repository in process memory. It honours the
// same locking contract as the Postgres stores: writers on one transaction
// serialize from Begin* until Commit or Rollback, and nothing is visible to
// readers before Commit.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/autoescrow/internal/audit"
	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/event"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
)

var errTxDone = errors.New("memstore: transaction has already been committed or rolled back")

type outboxEntry struct {
	event     event.Event
	delivered bool
	claimed   bool
	attempts  int
	lastError string
}

type Store struct {
	mu sync.Mutex

	locks        map[uuid.UUID]*sync.Mutex
	transactions map[uuid.UUID]*transaction.Transaction
	codes        map[string]uuid.UUID
	payments     map[uuid.UUID]*payment.Payment
	disputes     map[uuid.UUID]*dispute.Dispute
	outbox       []*outboxEntry
	activity     map[uuid.UUID]audit.Entry
}

func New() *Store {
	return &Store{
		locks:        make(map[uuid.UUID]*sync.Mutex),
		transactions: make(map[uuid.UUID]*transaction.Transaction),
		codes:        make(map[string]uuid.UUID),
		payments:     make(map[uuid.UUID]*payment.Payment),
		disputes:     make(map[uuid.UUID]*dispute.Dispute),
		activity:     make(map[uuid.UUID]audit.Entry),
	}
}

func (s *Store) lockFor(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}

	return l
}

// unit is a pending set of writes guarded by one transaction lock.
type unit struct {
	s      *Store
	lock   *sync.Mutex
	done   bool
	writes []func()
	events []event.Event
}

func (s *Store) begin(ctx context.Context, transactionID uuid.UUID) (*unit, *transaction.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	lock := s.lockFor(transactionID)
	lock.Lock()

	s.mu.Lock()
	tx, ok := s.transactions[transactionID]
	s.mu.Unlock()

	if !ok {
		lock.Unlock()
		return nil, nil, transaction.ErrNotFound
	}

	return &unit{s: s, lock: lock}, copyTransaction(tx), nil
}

func (u *unit) stage(fn func()) { u.writes = append(u.writes, fn) }

func (u *unit) RecordEvent(_ context.Context, e event.Event) error {
	if u.done {
		return errTxDone
	}

	u.events = append(u.events, e)

	return nil
}

func (u *unit) Commit() error {
	if u.done {
		return errTxDone
	}

	u.s.mu.Lock()
	for _, w := range u.writes {
		w()
	}

	for _, e := range u.events {
		u.s.outbox = append(u.s.outbox, &outboxEntry{event: e})
	}
	u.s.mu.Unlock()

	u.finish()

	return nil
}

func (u *unit) Rollback() error {
	if u.done {
		return errTxDone
	}

	u.finish()

	return nil
}

func (u *unit) finish() {
	u.done = true
	u.lock.Unlock()
}

// Transactions

func (s *Store) CreateTransaction(ctx context.Context, tx *transaction.Transaction, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[tx.Code]; ok {
		return fmt.Errorf("%w: code %s already exists", transaction.ErrInvalidTransaction, tx.Code)
	}

	s.transactions[tx.ID] = copyTransaction(tx)
	s.codes[tx.Code] = tx.ID
	s.outbox = append(s.outbox, &outboxEntry{event: e})

	return nil
}

func (s *Store) GetTransaction(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, transaction.ErrNotFound
	}

	return copyTransaction(tx), nil
}

func (s *Store) GetTransactionByCode(ctx context.Context, code string) (*transaction.Transaction, error) {
	s.mu.Lock()
	id, ok := s.codes[code]
	s.mu.Unlock()

	if !ok {
		return nil, transaction.ErrNotFound
	}

	return s.GetTransaction(ctx, id)
}

func (s *Store) ListTransactions(_ context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []*transaction.Transaction

	for _, tx := range s.transactions {
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}

		if filter.PartyID != nil && !tx.IsParty(transaction.Actor{ID: *filter.PartyID}) {
			continue
		}

		txs = append(txs, copyTransaction(tx))
	}

	slices.SortFunc(txs, func(a, b *transaction.Transaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return txs, nil
}

type transitionTx struct {
	*unit
	current *transaction.Transaction
}

func (s *Store) BeginTransition(ctx context.Context, id uuid.UUID) (transaction.TransitionTx, error) {
	u, tx, err := s.begin(ctx, id)
	if err != nil {
		return nil, err
	}

	return &transitionTx{unit: u, current: tx}, nil
}

func (t *transitionTx) Transaction() *transaction.Transaction { return t.current }

func (t *transitionTx) SettledFunds(_ context.Context) ([]transaction.Funds, error) {
	var funds []transaction.Funds

	for _, p := range t.s.paymentsOf(t.current.ID) {
		if p.Status.Settled() {
			funds = append(funds, transaction.Funds{Amount: p.Amount, Currency: p.Currency})
		}
	}

	return funds, nil
}

func (t *transitionTx) UpdateStatus(_ context.Context, tx *transaction.Transaction) error {
	if t.done {
		return errTxDone
	}

	next := copyTransaction(tx)
	t.stage(func() { t.s.transactions[next.ID] = next })

	return nil
}

// Payments

func (s *Store) paymentsOf(transactionID uuid.UUID) []*payment.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payment.Payment

	for _, p := range s.payments {
		if p.TransactionID == transactionID {
			out = append(out, copyPayment(p))
		}
	}

	slices.SortFunc(out, func(a, b *payment.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return out
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, payment.ErrNotFound
	}

	return copyPayment(p), nil
}

func (s *Store) ListPayments(_ context.Context, filter payment.ListFilter) ([]*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*payment.Payment

	for _, p := range s.payments {
		if filter.TransactionID != nil && p.TransactionID != *filter.TransactionID {
			continue
		}

		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}

		out = append(out, copyPayment(p))
	}

	slices.SortFunc(out, func(a, b *payment.Payment) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return out, nil
}

type paymentTx struct {
	*unit
	parent  *transaction.Transaction
	payment *payment.Payment
}

func (s *Store) BeginPaymentCreate(ctx context.Context, transactionID uuid.UUID) (payment.UpdateTx, error) {
	u, tx, err := s.begin(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	return &paymentTx{unit: u, parent: tx}, nil
}

func (s *Store) BeginPaymentUpdate(ctx context.Context, id uuid.UUID) (payment.UpdateTx, error) {
	p, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}

	u, tx, err := s.begin(ctx, p.TransactionID)
	if err != nil {
		return nil, err
	}

	// Re-read under the lock; a writer may have committed in between.
	p, err = s.GetPayment(ctx, id)
	if err != nil {
		u.Rollback()
		return nil, err
	}

	return &paymentTx{unit: u, parent: tx, payment: p}, nil
}

func (t *paymentTx) Transaction() *transaction.Transaction { return t.parent }
func (t *paymentTx) Payment() *payment.Payment             { return t.payment }

func (t *paymentTx) Payments(_ context.Context) ([]*payment.Payment, error) {
	return t.s.paymentsOf(t.parent.ID), nil
}

func (t *paymentTx) CreatePayment(_ context.Context, p *payment.Payment) error {
	if t.done {
		return errTxDone
	}

	if p.Status == payment.StatusPending {
		for _, existing := range t.s.paymentsOf(p.TransactionID) {
			if existing.Status == payment.StatusPending {
				return payment.ErrPendingPaymentExists
			}
		}
	}

	next := copyPayment(p)
	t.stage(func() { t.s.payments[next.ID] = next })

	return nil
}

func (t *paymentTx) UpdatePayment(_ context.Context, p *payment.Payment) error {
	if t.done {
		return errTxDone
	}

	next := copyPayment(p)
	t.stage(func() { t.s.payments[next.ID] = next })

	return nil
}

// Disputes

func (s *Store) GetDispute(_ context.Context, id uuid.UUID) (*dispute.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.disputes[id]
	if !ok {
		return nil, dispute.ErrNotFound
	}

	return copyDispute(d), nil
}

func (s *Store) ListDisputes(_ context.Context, filter dispute.ListFilter) ([]*dispute.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*dispute.Dispute

	for _, d := range s.disputes {
		if filter.TransactionID != nil && d.TransactionID != *filter.TransactionID {
			continue
		}

		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}

		out = append(out, copyDispute(d))
	}

	slices.SortFunc(out, func(a, b *dispute.Dispute) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return out, nil
}

type disputeTx struct {
	*unit
	parent  *transaction.Transaction
	dispute *dispute.Dispute
}

func (s *Store) BeginDisputeCreate(ctx context.Context, transactionID uuid.UUID) (dispute.UpdateTx, error) {
	u, tx, err := s.begin(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	return &disputeTx{unit: u, parent: tx}, nil
}

func (s *Store) BeginDisputeUpdate(ctx context.Context, id uuid.UUID) (dispute.UpdateTx, error) {
	d, err := s.GetDispute(ctx, id)
	if err != nil {
		return nil, err
	}

	u, tx, err := s.begin(ctx, d.TransactionID)
	if err != nil {
		return nil, err
	}

	d, err = s.GetDispute(ctx, id)
	if err != nil {
		u.Rollback()
		return nil, err
	}

	return &disputeTx{unit: u, parent: tx, dispute: d}, nil
}

func (t *disputeTx) Transaction() *transaction.Transaction { return t.parent }
func (t *disputeTx) Dispute() *dispute.Dispute             { return t.dispute }

func (t *disputeTx) CreateDispute(_ context.Context, d *dispute.Dispute) error {
	if t.done {
		return errTxDone
	}

	next := copyDispute(d)
	t.stage(func() { t.s.disputes[next.ID] = next })

	return nil
}

func (t *disputeTx) UpdateDispute(ctx context.Context, d *dispute.Dispute) error {
	return t.CreateDispute(ctx, d)
}

// Activity log

func (s *Store) RecordActivity(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.activity[e.EventID]; !ok {
		s.activity[e.EventID] = e
	}

	return nil
}

func (s *Store) ListActivity(_ context.Context, transactionID uuid.UUID) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []audit.Entry

	for _, e := range s.activity {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}

	slices.SortFunc(out, func(a, b audit.Entry) int {
		return cmp.Or(a.OccurredAt.Compare(b.OccurredAt), cmp.Compare(a.EventID.String(), b.EventID.String()))
	})

	return out, nil
}

// Copies. Time pointers are re-pointed so callers never share state with
// the store.

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t

	return &c
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}

	c := *id

	return &c
}

func copyTransaction(tx *transaction.Transaction) *transaction.Transaction {
	c := *tx
	c.DealerID = copyUUID(tx.DealerID)
	c.InspectionDate = copyTime(tx.InspectionDate)
	c.PaymentRequestedAt = copyTime(tx.PaymentRequestedAt)
	c.PaymentVerifiedAt = copyTime(tx.PaymentVerifiedAt)
	c.InspectionScheduledAt = copyTime(tx.InspectionScheduledAt)
	c.OwnershipTransferredAt = copyTime(tx.OwnershipTransferredAt)
	c.CompletedAt = copyTime(tx.CompletedAt)
	c.CancelledAt = copyTime(tx.CancelledAt)
	c.UpdatedAt = copyTime(tx.UpdatedAt)

	return &c
}

func copyPayment(p *payment.Payment) *payment.Payment {
	c := *p
	c.VerifiedBy = copyUUID(p.VerifiedBy)
	c.VerifiedAt = copyTime(p.VerifiedAt)
	c.PaidAt = copyTime(p.PaidAt)
	c.UpdatedAt = copyTime(p.UpdatedAt)

	return &c
}

func copyDispute(d *dispute.Dispute) *dispute.Dispute {
	c := *d
	c.UpdatedAt = copyTime(d.UpdatedAt)

	if d.Resolution != nil {
		r := *d.Resolution
		c.Resolution = &r
	}

	return &c
}
