// Package reconciliation applies guest payment submissions and staff
// adjudications to booking ledgers.
//
// Every operation is a single read-evaluate-write cycle: load the ledger and
// its version, compute the next state, and commit it through
// LedgerStore.CommitIfVersion. The engine holds no locks; a concurrent writer
// makes the commit fail with models.ErrConflict and nothing is written.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/havenstay/backend/internal/audit"
	"github.com/havenstay/backend/internal/metrics"
	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
	"go.uber.org/zap"
)

const defaultHookTimeout = 5 * time.Second

type Engine struct {
	store       models.LedgerStore
	hook        audit.Hook
	logger      *zap.Logger
	now         func() time.Time
	hookTimeout time.Duration
}

type Option func(*Engine)

// WithClock replaces time.Now, for deterministic review timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithHook sets the post-commit hook. Use audit.Chain for several.
func WithHook(h audit.Hook) Option {
	return func(e *Engine) { e.hook = h }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.hookTimeout = d
		}
	}
}

func New(store models.LedgerStore, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		logger:      zap.NewNop(),
		now:         time.Now,
		hookTimeout: defaultHookTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result is the outcome of a committed (or replayed) operation.
type Result struct {
	Record *models.LedgerRecord `json:"ledger"`

	// Applied and Change are only set by Approve.
	Applied money.Amount `json:"applied"`
	Change  money.Amount `json:"change"`

	// Replayed is true when an identical submission was already pending and
	// nothing was written.
	Replayed bool `json:"replayed,omitempty"`

	// Warnings lists post-commit hook failures. The ledger write stands.
	Warnings []string `json:"warnings,omitempty"`
}

// Settlement splits a collected amount against the balance still owed.
type Settlement struct {
	PriorRemaining money.Amount
	Applied        money.Amount
	Change         money.Amount
}

// Settle computes how much of collected goes to the ledger and how much is
// handed back as change. It does not modify rec.
func Settle(rec *models.LedgerRecord, collected money.Amount) Settlement {
	prior := rec.Remaining()
	return Settlement{
		PriorRemaining: prior,
		Applied:        money.Min(collected, prior),
		Change:         money.SubClamped(collected, prior),
	}
}

// Get loads the current ledger of a booking.
func (e *Engine) Get(ctx context.Context, bookingID string) (*models.LedgerRecord, error) {
	return e.store.Load(ctx, bookingID)
}

// Submit records guest payment evidence and puts the ledger in review.
// Re-submitting the same proof while still pending is a no-op.
func (e *Engine) Submit(ctx context.Context, bookingID string, claimed money.Amount, proofReference string) (*Result, error) {
	const op = "submit"

	if err := claimed.Validate(); err != nil {
		return nil, e.observe(op, err)
	}

	rec, err := e.store.Load(ctx, bookingID)
	if err != nil {
		return nil, e.observe(op, err)
	}

	if proofReference != "" && rec.Status == models.PaymentPending &&
		rec.ProofReference != nil && *rec.ProofReference == proofReference {
		metrics.LedgerOperations.WithLabelValues(op, "replayed").Inc()
		return &Result{Record: rec, Replayed: true}, nil
	}

	now := e.now().UTC()
	next := rec.Clone()
	next.Status = models.PaymentPending
	next.ClaimedAmount = claimed
	next.ProofReference = nil
	if proofReference != "" {
		next.ProofReference = &proofReference
	}
	next.RejectionReason = nil
	next.ReviewedBy = nil
	next.ReviewedAt = nil
	next.SubmittedAt = &now
	next.UpdatedAt = now

	if err := e.commit(ctx, next, rec.Version); err != nil {
		return nil, e.observe(op, err)
	}

	res := &Result{Record: next}
	e.afterCommit(ctx, res, audit.NewEvent(audit.OperationSubmit, "", next, 0, 0, now))
	return res, e.observe(op, nil)
}

// CollectFunc resolves the collected amount from the pending ledger loaded
// by the same approval cycle.
type CollectFunc func(rec *models.LedgerRecord) (money.Amount, error)

// Approve applies the collected amount to a pending ledger. Any excess over
// the remaining balance is reported as change; a shortfall is recorded and
// leaves a positive remaining balance.
func (e *Engine) Approve(ctx context.Context, bookingID string, collected money.Amount, reviewerID string) (*Result, error) {
	if err := collected.Validate(); err != nil {
		return nil, e.observe("approve", err)
	}
	return e.ApproveWith(ctx, bookingID, reviewerID, func(*models.LedgerRecord) (money.Amount, error) {
		return collected, nil
	})
}

// ApproveWith is Approve with the collected amount decided against the
// record it is about to overwrite, so a default such as the guest's claim
// always belongs to the submission being approved.
func (e *Engine) ApproveWith(ctx context.Context, bookingID, reviewerID string, resolve CollectFunc) (*Result, error) {
	const op = "approve"

	if reviewerID == "" {
		return nil, e.observe(op, models.ErrInvalidReviewer)
	}

	rec, err := e.store.Load(ctx, bookingID)
	if err != nil {
		return nil, e.observe(op, err)
	}
	if rec.Status != models.PaymentPending {
		return nil, e.observe(op, &models.InvalidStateError{BookingID: bookingID, Status: rec.Status, Operation: op})
	}

	collected, err := resolve(rec.Clone())
	if err != nil {
		return nil, e.observe(op, err)
	}
	if err := collected.Validate(); err != nil {
		return nil, e.observe(op, err)
	}

	s := Settle(rec, collected)
	now := e.now().UTC()

	next := rec.Clone()
	next.AmountPaid = money.Add(rec.AmountPaid, s.Applied)
	next.Reconcile()
	next.Status = models.PaymentApproved
	next.ReviewedBy = &reviewerID
	next.ReviewedAt = &now
	next.UpdatedAt = now

	if err := e.commit(ctx, next, rec.Version); err != nil {
		return nil, e.observe(op, err)
	}

	res := &Result{Record: next, Applied: s.Applied, Change: s.Change}
	e.afterCommit(ctx, res, audit.NewEvent(audit.OperationApprove, reviewerID, next, s.Applied, s.Change, now))
	return res, e.observe(op, nil)
}

// Reject closes a pending submission without touching the money fields.
func (e *Engine) Reject(ctx context.Context, bookingID, reason, reviewerID string) (*Result, error) {
	const op = "reject"

	if reviewerID == "" {
		return nil, e.observe(op, models.ErrInvalidReviewer)
	}

	rec, err := e.store.Load(ctx, bookingID)
	if err != nil {
		return nil, e.observe(op, err)
	}
	if rec.Status != models.PaymentPending {
		return nil, e.observe(op, &models.InvalidStateError{BookingID: bookingID, Status: rec.Status, Operation: op})
	}

	now := e.now().UTC()
	next := rec.Clone()
	next.Status = models.PaymentRejected
	next.RejectionReason = &reason
	next.ProofReference = nil
	next.ReviewedBy = &reviewerID
	next.ReviewedAt = &now
	next.UpdatedAt = now

	if err := e.commit(ctx, next, rec.Version); err != nil {
		return nil, e.observe(op, err)
	}

	res := &Result{Record: next}
	e.afterCommit(ctx, res, audit.NewEvent(audit.OperationReject, reviewerID, next, 0, 0, now))
	return res, e.observe(op, nil)
}

func (e *Engine) commit(ctx context.Context, next *models.LedgerRecord, expected int64) error {
	if err := next.CheckInvariants(); err != nil {
		return err
	}
	version, err := e.store.CommitIfVersion(ctx, next, expected)
	if err != nil {
		return fmt.Errorf("commit ledger %s: %w", next.BookingID, err)
	}
	next.Version = version
	return nil
}

// afterCommit runs the hook on a context that outlives the request, so a
// client disconnect right after the commit still delivers the notification.
func (e *Engine) afterCommit(ctx context.Context, res *Result, event audit.Event) {
	if e.hook == nil {
		return
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.hookTimeout)
	defer cancel()

	if err := e.hook.AfterCommit(hctx, event); err != nil {
		metrics.HookFailures.WithLabelValues(string(event.Operation)).Inc()
		e.logger.Warn("post-commit hook failed",
			zap.String("operation", string(event.Operation)),
			zap.String("booking_id", event.BookingID),
			zap.Int64("version", event.Ledger.Version),
			zap.Error(err))
		res.Warnings = append(res.Warnings, err.Error())
	}
}

func (e *Engine) observe(op string, err error) error {
	metrics.LedgerOperations.WithLabelValues(op, outcome(err)).Inc()
	return err
}

func outcome(err error) string {
	var invariant *models.InvariantError
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrBookingNotFound):
		return "not_found"
	case errors.Is(err, money.ErrInvalidAmount), errors.Is(err, models.ErrInvalidReviewer):
		return "invalid"
	case errors.As(err, &invariant):
		return "invariant"
	default:
		return "error"
	}
}
