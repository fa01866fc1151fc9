// Package audit holds the side effects that follow a committed ledger
// transition: the audit trail, the staff activity feed and the outbound
// guest notification queue.
//
// Hooks only ever see committed state. A failing hook never undoes the
// ledger write; the engine logs it and reports a soft warning.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
)

type Operation string

const (
	OperationSubmit  Operation = "submit"
	OperationApprove Operation = "approve"
	OperationReject  Operation = "reject"
)

// Event describes one committed ledger transition.
type Event struct {
	ID         uuid.UUID           `json:"id"`
	Operation  Operation           `json:"operation"`
	BookingID  string              `json:"booking_id"`
	ActorID    string              `json:"actor_id,omitempty"`
	Ledger     models.LedgerRecord `json:"ledger"`
	Applied    money.Amount        `json:"applied"`
	Change     money.Amount        `json:"change"`
	OccurredAt time.Time           `json:"occurred_at"`
}

func NewEvent(op Operation, actorID string, ledger *models.LedgerRecord, applied, change money.Amount, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Operation:  op,
		BookingID:  ledger.BookingID,
		ActorID:    actorID,
		Ledger:     *ledger.Clone(),
		Applied:    applied,
		Change:     change,
		OccurredAt: at,
	}
}

// Hook runs after a ledger commit.
type Hook interface {
	AfterCommit(ctx context.Context, event Event) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, event Event) error

func (f HookFunc) AfterCommit(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Chain runs every hook even when an earlier one fails and joins the errors.
type Chain []Hook

func (c Chain) AfterCommit(ctx context.Context, event Event) error {
	var errs []error
	for _, h := range c {
		if h == nil {
			continue
		}
		if err := runHook(ctx, h, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func runHook(ctx context.Context, h Hook, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return h.AfterCommit(ctx, event)
}
