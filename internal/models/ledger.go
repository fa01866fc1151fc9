package models

import (
	"context"
	"time"

	"github.com/havenstay/backend/internal/money"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentApproved, PaymentRejected:
		return true
	}
	return false
}

// LedgerRecord is the authoritative money state of one booking.
// Version is the optimistic-concurrency token; it increments on every commit.
type LedgerRecord struct {
	BookingID       string        `json:"booking_id" db:"booking_id"`
	GuestName       string        `json:"guest" db:"guest_name"`
	GuestEmail      string        `json:"guest_email,omitempty" db:"guest_email"`
	TotalAmount     money.Amount  `json:"total_amount" db:"total_amount"`
	DownPayment     money.Amount  `json:"down_payment" db:"down_payment"`
	AmountPaid      money.Amount  `json:"amount_paid" db:"amount_paid"`
	RemainingBal    money.Amount  `json:"remaining_balance" db:"remaining_balance"`
	ClaimedAmount   money.Amount  `json:"claimed_amount" db:"claimed_amount"`
	Status          PaymentStatus `json:"status" db:"status"`
	ProofReference  *string       `json:"proof_reference,omitempty" db:"proof_reference"`
	RejectionReason *string       `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ReviewedBy      *string       `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time    `json:"reviewed_at,omitempty" db:"reviewed_at"`
	SubmittedAt     *time.Time    `json:"submitted_at,omitempty" db:"submitted_at"`
	Version         int64         `json:"version" db:"version"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

// NewLedgerRecord builds the initial ledger of a freshly created booking.
// amount_paid starts at the declared down payment.
func NewLedgerRecord(bookingID string, total, downPayment money.Amount, now time.Time) *LedgerRecord {
	rec := &LedgerRecord{
		BookingID:   bookingID,
		TotalAmount: total,
		DownPayment: downPayment,
		AmountPaid:  downPayment,
		Status:      PaymentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec.Reconcile()
	return rec
}

// Remaining derives max(0, total_amount - amount_paid).
func (r *LedgerRecord) Remaining() money.Amount {
	return money.SubClamped(r.TotalAmount, r.AmountPaid)
}

// Reconcile rewrites the stored remaining balance from the derived value.
func (r *LedgerRecord) Reconcile() {
	r.RemainingBal = r.Remaining()
}

// CheckInvariants reports the first violated ledger invariant, if any.
func (r *LedgerRecord) CheckInvariants() error {
	if r.AmountPaid.IsNegative() || r.TotalAmount.IsNegative() {
		return &InvariantError{BookingID: r.BookingID, Rule: "amounts must be non-negative"}
	}
	if r.RemainingBal != r.Remaining() {
		return &InvariantError{BookingID: r.BookingID, Rule: "remaining_balance must equal max(0, total_amount - amount_paid)"}
	}
	if r.Status == PaymentApproved && (r.ReviewedBy == nil || r.ReviewedAt == nil) {
		return &InvariantError{BookingID: r.BookingID, Rule: "approved ledger must carry reviewer and review time"}
	}
	if r.Status == PaymentRejected && r.RejectionReason == nil {
		return &InvariantError{BookingID: r.BookingID, Rule: "rejected ledger must carry a rejection reason"}
	}
	if r.Status != PaymentRejected && r.RejectionReason != nil {
		return &InvariantError{BookingID: r.BookingID, Rule: "rejection reason is only kept while rejected"}
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without touching the loaded value.
func (r *LedgerRecord) Clone() *LedgerRecord {
	c := *r
	c.ProofReference = cloneString(r.ProofReference)
	c.RejectionReason = cloneString(r.RejectionReason)
	c.ReviewedBy = cloneString(r.ReviewedBy)
	c.ReviewedAt = cloneTime(r.ReviewedAt)
	c.SubmittedAt = cloneTime(r.SubmittedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SortField names a sortable ledger column.
type SortField string

const (
	SortBookingID   SortField = "booking_id"
	SortGuest       SortField = "guest"
	SortTotalAmount SortField = "total_amount"
	SortDownPayment SortField = "down_payment"
	SortAmountPaid  SortField = "amount_paid"
	SortRemaining   SortField = "remaining_balance"
	SortStatus      SortField = "status"
	SortCreatedAt   SortField = "created_at"
)

// ListQuery filters and paginates ledger listings. Page is 1-based.
type ListQuery struct {
	Status   PaymentStatus
	Search   string
	Page     int
	Limit    int
	SortBy   SortField
	SortDesc bool
}

// Offset returns the row offset for Page/Limit.
func (q ListQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

type LedgerPage struct {
	Items      []LedgerRecord `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// StatusSummary backs the payment dashboard counters.
type StatusSummary struct {
	Approved       int          `json:"approved"`
	Pending        int          `json:"pending"`
	Rejected       int          `json:"rejected"`
	TotalAmount    money.Amount `json:"total_amount"`
	TotalPaid      money.Amount `json:"total_paid"`
	TotalRemaining money.Amount `json:"total_remaining"`
}

// LedgerStore is the persistence contract of the reconciliation engine.
// CommitIfVersion is the only mutation path for an existing ledger: it writes
// record only if the stored version still equals expectedVersion, otherwise
// it fails with ErrConflict.
type LedgerStore interface {
	Load(ctx context.Context, bookingID string) (*LedgerRecord, error)
	CommitIfVersion(ctx context.Context, record *LedgerRecord, expectedVersion int64) (int64, error)
	Create(ctx context.Context, record *LedgerRecord) error
	List(ctx context.Context, q ListQuery) (*LedgerPage, error)
	Summary(ctx context.Context, search string) (*StatusSummary, error)
}

// ActivityLog is a staff activity entry, as shown on the admin activity feed.
type ActivityLog struct {
	ID           string    `json:"id" db:"id"`
	EmploymentID string    `json:"employment_id" db:"employment_id"`
	ActionType   string    `json:"action_type" db:"action_type"`
	Action       string    `json:"action" db:"action"`
	Details      string    `json:"details,omitempty" db:"details"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
