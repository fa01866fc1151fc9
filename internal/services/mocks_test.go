package services

import (
	"context"

	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
	"github.com/havenstay/backend/internal/reconciliation"
	"github.com/stretchr/testify/mock"
)

type MockAdjudicator struct {
	mock.Mock
	Collected []money.Amount
}

func (m *MockAdjudicator) Get(ctx context.Context, bookingID string) (*models.LedgerRecord, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerRecord), args.Error(1)
}

func (m *MockAdjudicator) Submit(ctx context.Context, bookingID string, claimed money.Amount, proofReference string) (*reconciliation.Result, error) {
	args := m.Called(ctx, bookingID, claimed, proofReference)
	return result(args)
}

// ApproveWith hands the configured ledger to resolve, as the engine does with
// the record it loads, and keeps the amount it settled on.
func (m *MockAdjudicator) ApproveWith(ctx context.Context, bookingID, reviewerID string, resolve reconciliation.CollectFunc) (*reconciliation.Result, error) {
	args := m.Called(ctx, bookingID, reviewerID)
	if rec, ok := args.Get(0).(*models.LedgerRecord); ok && rec != nil {
		collected, err := resolve(rec.Clone())
		if err != nil {
			return nil, err
		}
		m.Collected = append(m.Collected, collected)
	}
	if args.Get(1) == nil {
		return nil, args.Error(2)
	}
	return args.Get(1).(*reconciliation.Result), args.Error(2)
}

func (m *MockAdjudicator) Reject(ctx context.Context, bookingID, reason, reviewerID string) (*reconciliation.Result, error) {
	args := m.Called(ctx, bookingID, reason, reviewerID)
	return result(args)
}

func result(args mock.Arguments) (*reconciliation.Result, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Result), args.Error(1)
}
