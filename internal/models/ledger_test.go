package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/havenstay/backend/internal/money"
	"github.com/stretchr/testify/assert"
)

func TestNewLedgerRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := NewLedgerRecord("BK-1", 100000, 30000, now)

	assert.Equal(t, PaymentPending, rec.Status)
	assert.Equal(t, money.Amount(30000), rec.AmountPaid)
	assert.Equal(t, money.Amount(70000), rec.RemainingBal)
	assert.Nil(t, rec.ProofReference)
	assert.NoError(t, rec.CheckInvariants())
}

func TestLedgerRecord_CheckInvariants(t *testing.T) {
	now := time.Now()
	reviewer := "staff-7"
	reason := "blurry proof"

	t.Run("stale remaining balance", func(t *testing.T) {
		rec := NewLedgerRecord("BK-1", 1000, 0, now)
		rec.AmountPaid = 400
		var invErr *InvariantError
		assert.ErrorAs(t, rec.CheckInvariants(), &invErr)
	})

	t.Run("overpaid ledger clamps remaining at zero", func(t *testing.T) {
		rec := NewLedgerRecord("BK-1", 1000, 1200, now)
		assert.Equal(t, money.Zero, rec.RemainingBal)
		assert.NoError(t, rec.CheckInvariants())
	})

	t.Run("approved without reviewer", func(t *testing.T) {
		rec := NewLedgerRecord("BK-1", 1000, 0, now)
		rec.Status = PaymentApproved
		assert.Error(t, rec.CheckInvariants())

		rec.ReviewedBy = &reviewer
		rec.ReviewedAt = &now
		assert.NoError(t, rec.CheckInvariants())
	})

	t.Run("rejection reason only while rejected", func(t *testing.T) {
		rec := NewLedgerRecord("BK-1", 1000, 0, now)
		rec.RejectionReason = &reason
		assert.Error(t, rec.CheckInvariants())

		rec.Status = PaymentRejected
		assert.NoError(t, rec.CheckInvariants())
	})
}

func TestLedgerRecord_Clone(t *testing.T) {
	proof := "uploads/proof-1.jpg"
	rec := NewLedgerRecord("BK-1", 1000, 0, time.Now())
	rec.ProofReference = &proof

	c := rec.Clone()
	*c.ProofReference = "changed"

	assert.Equal(t, "uploads/proof-1.jpg", *rec.ProofReference)
}

func TestListQuery_Offset(t *testing.T) {
	assert.Equal(t, 0, ListQuery{Page: 0, Limit: 20}.Offset())
	assert.Equal(t, 0, ListQuery{Page: 1, Limit: 20}.Offset())
	assert.Equal(t, 40, ListQuery{Page: 3, Limit: 20}.Offset())
}

func TestErrorClassification(t *testing.T) {
	stateErr := &InvalidStateError{BookingID: "BK-1", Status: PaymentApproved, Operation: "approve"}
	wrapped := fmt.Errorf("approve: %w", stateErr)

	assert.True(t, errors.Is(wrapped, ErrInvalidState))
	assert.True(t, IsClientError(wrapped))
	assert.False(t, IsRetryable(wrapped))

	conflict := fmt.Errorf("commit: %w", ErrConflict)
	assert.True(t, IsRetryable(conflict))
	assert.False(t, IsClientError(conflict))

	assert.True(t, IsTransient(fmt.Errorf("%w: connection refused", ErrStorageUnavailable)))
	assert.True(t, IsClientError(money.Amount(-1).Validate()))

	under := &UnderpaymentError{BookingID: "BK-1", Required: 30000, Collected: 10000}
	assert.ErrorIs(t, under, ErrUnderpayment)
	assert.Equal(t, "amount must be at least 300.00 (collected 100.00)", under.Error())
}
