package audit

import (
	"context"
	"fmt"

	"github.com/havenstay/backend/internal/models"
	"github.com/havenstay/backend/internal/money"
)

// ActivityWriter persists staff activity entries.
type ActivityWriter interface {
	InsertActivity(ctx context.Context, entry models.ActivityLog) error
}

const actionTypeUpdate = "update"

// ActivityLogger records staff adjudications on the admin activity feed.
// Guest submissions have no staff actor and are skipped.
type ActivityLogger struct {
	writer ActivityWriter
}

func NewActivityLogger(writer ActivityWriter) *ActivityLogger {
	return &ActivityLogger{writer: writer}
}

func (a *ActivityLogger) AfterCommit(ctx context.Context, event Event) error {
	if event.ActorID == "" || event.Operation == OperationSubmit {
		return nil
	}

	entry := models.ActivityLog{
		ID:           event.ID.String(),
		EmploymentID: event.ActorID,
		ActionType:   actionTypeUpdate,
		Action:       describe(event),
		Details:      details(event),
		CreatedAt:    event.OccurredAt,
	}

	if err := a.writer.InsertActivity(ctx, entry); err != nil {
		return fmt.Errorf("record activity for booking %s: %w", event.BookingID, err)
	}
	return nil
}

func describe(event Event) string {
	switch event.Operation {
	case OperationApprove:
		return fmt.Sprintf("Approved payment for booking %s", event.BookingID)
	case OperationReject:
		return fmt.Sprintf("Rejected payment for booking %s", event.BookingID)
	default:
		return fmt.Sprintf("Updated payment for booking %s", event.BookingID)
	}
}

func details(event Event) string {
	switch event.Operation {
	case OperationApprove:
		return fmt.Sprintf("collected %s, applied %s, change %s, remaining %s",
			money.Add(event.Applied, event.Change), event.Applied, event.Change, event.Ledger.RemainingBal)
	case OperationReject:
		reason := "N/A"
		if event.Ledger.RejectionReason != nil && *event.Ledger.RejectionReason != "" {
			reason = *event.Ledger.RejectionReason
		}
		return "reason: " + reason
	}
	return ""
}
