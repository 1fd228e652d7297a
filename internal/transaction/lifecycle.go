package transaction

import (
	"fmt"
	"slices"
	"time"
)

// precondition names a guard that must hold, beyond the actor's role, before
// an edge may be taken.
type precondition int

const (
	requireNothing precondition = iota
	requireVerifiedFunds
	requireInspectionDate
)

type edge struct {
	from Status
	to   Status
}

type rule struct {
	roles        []Role
	precondition precondition
}

var (
	parties   = []Role{RoleBuyer, RoleSeller, RoleAdmin}
	adminOnly = []Role{RoleAdmin}
)

// transitions is the complete set of permitted edges. Anything not listed is
// rejected with ErrInvalidTransition.
var transitions = map[edge]rule{
	{StatusPending, StatusPaymentPending}:              {roles: parties},
	{StatusPaymentPending, StatusPaymentVerified}:      {roles: adminOnly, precondition: requireVerifiedFunds},
	{StatusPaymentVerified, StatusInspectionScheduled}: {roles: []Role{RoleAdmin, RoleDealer}, precondition: requireInspectionDate},
	{StatusInspectionScheduled, StatusCompleted}:       {roles: adminOnly},

	{StatusPending, StatusCancelled}:             {roles: parties},
	{StatusPaymentPending, StatusCancelled}:      {roles: adminOnly},
	{StatusPaymentVerified, StatusCancelled}:     {roles: adminOnly},
	{StatusInspectionScheduled, StatusCancelled}: {roles: adminOnly},
}

func lookup(from, to Status) (rule, bool) {
	r, ok := transitions[edge{from: from, to: to}]
	return r, ok
}

func (r rule) allows(role Role) bool {
	return role != RoleNone && slices.Contains(r.roles, role)
}

// TransitionRequest carries the trigger for a status change along with the
// payload some edges need.
type TransitionRequest struct {
	Target Status
	Actor  Actor

	// InspectionDate is required for payment_verified -> inspection_scheduled.
	InspectionDate *time.Time
	// OwnershipTransferDate optionally backdates the transfer on completion.
	OwnershipTransferDate *time.Time
	// Reason is recorded on cancellation.
	Reason string
}

// Transitions returns the targets a may move t to, ignoring preconditions
// that depend on payments or request payload.
func Transitions(t *Transaction, a Actor) []Status {
	if t.Status.Terminal() {
		return nil
	}

	role := t.RoleOf(a)

	var targets []Status

	for _, to := range Statuses {
		r, ok := lookup(t.Status, to)
		if !ok || !r.allows(role) {
			continue
		}

		targets = append(targets, to)
	}

	return targets
}

// covered reports whether any single settled payment pays t in full.
func covered(t *Transaction, funds []Funds) bool {
	for _, f := range funds {
		if f.Currency == t.Currency && f.Amount.GreaterThanOrEqual(t.Amount) {
			return true
		}
	}

	return false
}

// apply returns a copy of t moved to req.Target with the paired timestamps set.
// Stamps never go backwards: a clock reading earlier than the latest stamp is
// raised to it.
func apply(t *Transaction, req TransitionRequest, now time.Time) (*Transaction, error) {
	next := *t

	at := now.UTC()
	if latest := t.latestStamp(); at.Before(latest) {
		at = latest
	}

	switch req.Target {
	case StatusPaymentPending:
		next.PaymentRequestedAt = &at
	case StatusPaymentVerified:
		next.PaymentVerifiedAt = &at
	case StatusInspectionScheduled:
		date := req.InspectionDate.UTC()
		next.InspectionDate = &date
		next.InspectionScheduledAt = &at
	case StatusCompleted:
		if next.OwnershipTransferredAt == nil {
			transferred := at

			if req.OwnershipTransferDate != nil {
				transferred = req.OwnershipTransferDate.UTC()
				if transferred.Before(*t.InspectionScheduledAt) || transferred.After(at) {
					return nil, fmt.Errorf("%w: ownership transfer date must fall between inspection scheduling and now", ErrPreconditionFailed)
				}
			}

			next.OwnershipTransferredAt = &transferred
		}

		next.CompletedAt = &at
	case StatusCancelled:
		next.CancelledAt = &at
		next.CancellationReason = req.Reason
	default:
		return nil, fmt.Errorf("%w: no stamp for %s", ErrInvalidTransition, req.Target)
	}

	next.Status = req.Target
	next.UpdatedAt = &at

	if err := next.Validate(); err != nil {
		return nil, err
	}

	return &next, nil
}
