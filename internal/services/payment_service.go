package services

import (
	"context"
	"strings"

	"github.com/havenstay/backend/internal/metrics"
	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
	"github.com/havenstay/backend/internal/reconciliation"
	"go.uber.org/zap"
)

// Adjudicator is the part of the reconciliation engine the gateway drives.
type Adjudicator interface {
	Get(ctx context.Context, bookingID string) (*models.LedgerRecord, error)
	Submit(ctx context.Context, bookingID string, claimed money.Amount, proofReference string) (*reconciliation.Result, error)
	ApproveWith(ctx context.Context, bookingID, reviewerID string, resolve reconciliation.CollectFunc) (*reconciliation.Result, error)
	Reject(ctx context.Context, bookingID, reason, reviewerID string) (*reconciliation.Result, error)
}

// LedgerReader serves the read-only admin projections.
type LedgerReader interface {
	List(ctx context.Context, q models.ListQuery) (*models.LedgerPage, error)
	Summary(ctx context.Context, search string) (*models.StatusSummary, error)
}

// SettlementMode selects how a staff approval treats a short payment.
type SettlementMode string

const (
	// ModeSubmission approves guest evidence; a shortfall stays on the ledger.
	ModeSubmission SettlementMode = "submission"
	// ModeBalanceCollection settles the balance at the desk and must cover it.
	ModeBalanceCollection SettlementMode = "balance_collection"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 200
)

type SubmitPaymentRequest struct {
	ClaimedAmount  money.Amount `json:"claimed_amount"`
	ProofReference string       `json:"proof_reference" validate:"omitempty,max=512"`
}

type ApprovePaymentRequest struct {
	// CollectedAmount defaults to the amount the guest claimed.
	CollectedAmount *money.Amount  `json:"collected_amount"`
	Mode            SettlementMode `json:"mode" validate:"omitempty,oneof=submission balance_collection"`
}

type RejectPaymentRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// ListParams are the raw admin listing filters.
type ListParams struct {
	Status string `validate:"omitempty,oneof=pending approved rejected"`
	Search string `validate:"max=100"`
	Page   int    `validate:"gte=0"`
	Limit  int    `validate:"gte=0,lte=200"`
	Sort   string `validate:"omitempty,oneof=booking_id guest total_amount down_payment amount_paid remaining_balance status created_at"`
	Order  string `validate:"omitempty,oneof=asc desc"`
}

// Query normalizes the params; unset paging and sorting fall back to the
// first page of the newest ledgers.
func (p ListParams) Query() models.ListQuery {
	q := models.ListQuery{
		Status:   models.PaymentStatus(p.Status),
		Search:   strings.TrimSpace(p.Search),
		Page:     p.Page,
		Limit:    p.Limit,
		SortBy:   models.SortField(p.Sort),
		SortDesc: p.Order == "desc",
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.SortBy == "" {
		q.SortBy = models.SortCreatedAt
		q.SortDesc = p.Order != "asc"
	}
	return q
}

type PaymentService struct {
	engine Adjudicator
	reader LedgerReader
	retry  RetryPolicy
	logger *zap.Logger
}

func NewPaymentService(engine Adjudicator, reader LedgerReader, retry RetryPolicy, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.Retries < 0 {
		retry.Retries = 0
	}
	return &PaymentService{engine: engine, reader: reader, retry: retry, logger: logger}
}

func (s *PaymentService) SubmitPayment(ctx context.Context, bookingID string, req SubmitPaymentRequest) (*reconciliation.Result, error) {
	return s.withRetry(ctx, "submit", bookingID, func() (*reconciliation.Result, error) {
		return s.engine.Submit(ctx, bookingID, req.ClaimedAmount, strings.TrimSpace(req.ProofReference))
	})
}

func (s *PaymentService) ApprovePayment(ctx context.Context, bookingID, reviewerID string, req ApprovePaymentRequest) (*reconciliation.Result, error) {
	if req.CollectedAmount != nil {
		if err := req.CollectedAmount.Validate(); err != nil {
			return nil, err
		}
	}
	return s.withRetry(ctx, "approve", bookingID, func() (*reconciliation.Result, error) {
		return s.engine.ApproveWith(ctx, bookingID, reviewerID, func(rec *models.LedgerRecord) (money.Amount, error) {
			return collectedAmount(rec, req)
		})
	})
}

// collectedAmount resolves the amount to approve for a pending ledger and
// applies the balance-collection policy to it.
func collectedAmount(rec *models.LedgerRecord, req ApprovePaymentRequest) (money.Amount, error) {
	collected := rec.ClaimedAmount
	if req.CollectedAmount != nil {
		collected = *req.CollectedAmount
	}

	if req.Mode == ModeBalanceCollection {
		if required := rec.Remaining(); collected < required {
			return 0, &models.UnderpaymentError{BookingID: rec.BookingID, Required: required, Collected: collected}
		}
	}
	return collected, nil
}

func (s *PaymentService) RejectPayment(ctx context.Context, bookingID, reviewerID string, req RejectPaymentRequest) (*reconciliation.Result, error) {
	return s.withRetry(ctx, "reject", bookingID, func() (*reconciliation.Result, error) {
		return s.engine.Reject(ctx, bookingID, strings.TrimSpace(req.Reason), reviewerID)
	})
}

func (s *PaymentService) GetLedger(ctx context.Context, bookingID string) (*models.LedgerRecord, error) {
	return s.engine.Get(ctx, bookingID)
}

func (s *PaymentService) ListLedgers(ctx context.Context, params ListParams) (*models.LedgerPage, error) {
	return s.reader.List(ctx, params.Query())
}

func (s *PaymentService) Summary(ctx context.Context, search string) (*models.StatusSummary, error) {
	return s.reader.Summary(ctx, strings.TrimSpace(search))
}

// withRetry re-runs the whole cycle after a version conflict. Each attempt
// reloads the ledger, so a record resolved by the competing writer surfaces
// as ErrInvalidState rather than being overwritten.
func (s *PaymentService) withRetry(ctx context.Context, op, bookingID string, fn func() (*reconciliation.Result, error)) (*reconciliation.Result, error) {
	for attempt := 0; ; attempt++ {
		res, err := fn()
		if err == nil || !models.IsRetryable(err) || attempt >= s.retry.Retries {
			return res, err
		}

		metrics.ConflictRetries.WithLabelValues(op).Inc()
		delay := s.retry.delay(attempt)
		s.logger.Debug("ledger version conflict, retrying",
			zap.String("operation", op),
			zap.String("booking_id", bookingID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay))

		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, err
		}
	}
}
