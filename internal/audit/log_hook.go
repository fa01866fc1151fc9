package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogHook writes one structured audit line per committed transition.
type LogHook struct {
	logger *zap.Logger
}

func NewLogHook(logger *zap.Logger) *LogHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHook{logger: logger.Named("audit")}
}

func (a *LogHook) AfterCommit(_ context.Context, event Event) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", string(event.Operation)),
		zap.String("booking_id", event.BookingID),
		zap.String("status", string(event.Ledger.Status)),
		zap.Stringer("amount_paid", event.Ledger.AmountPaid),
		zap.Stringer("remaining_balance", event.Ledger.RemainingBal),
		zap.Int64("version", event.Ledger.Version),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.ActorID != "" {
		fields = append(fields, zap.String("actor_id", event.ActorID))
	}
	if event.Operation == OperationApprove {
		fields = append(fields, zap.Stringer("applied", event.Applied), zap.Stringer("change", event.Change))
	}
	if event.Ledger.RejectionReason != nil {
		fields = append(fields, zap.String("rejection_reason", *event.Ledger.RejectionReason))
	}

	a.logger.Info("ledger transition", fields...)
	return nil
}
