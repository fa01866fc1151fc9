package models

import (
	"errors"
	"fmt"

	"github.com/havenstay/backend/internal/money"
)

var (
	// ErrBookingNotFound is returned when no ledger exists for the booking.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrInvalidState is returned when an adjudication targets a submission
	// that is no longer pending. Not retryable: someone already resolved it.
	ErrInvalidState = errors.New("payment already reviewed")

	// ErrConflict is returned when the version token moved between load and commit.
	ErrConflict = errors.New("ledger version conflict")

	// ErrStorageUnavailable wraps transient storage failures.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidReviewer is returned when an adjudication carries no reviewer identity.
	ErrInvalidReviewer = errors.New("reviewer identity required")

	// ErrUnderpayment is returned by the balance-collection policy when the
	// collected amount does not settle the remaining balance.
	ErrUnderpayment = errors.New("collected amount does not settle the balance")

	// ErrDuplicateBooking is returned when a ledger already exists for the booking.
	ErrDuplicateBooking = errors.New("ledger already exists for booking")
)

// InvalidStateError carries the status that blocked the adjudication.
type InvalidStateError struct {
	BookingID string
	Status    PaymentStatus
	Operation string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s booking %s: payment is %s", e.Operation, e.BookingID, e.Status)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// UnderpaymentError reports the minimum amount a balance collection requires.
type UnderpaymentError struct {
	BookingID string
	Required  money.Amount
	Collected money.Amount
}

func (e *UnderpaymentError) Error() string {
	return fmt.Sprintf("amount must be at least %s (collected %s)", e.Required, e.Collected)
}

func (e *UnderpaymentError) Unwrap() error {
	return ErrUnderpayment
}

// InvariantError means a ledger would be written in an inconsistent state.
type InvariantError struct {
	BookingID string
	Rule      string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for booking %s: %s", e.BookingID, e.Rule)
}

// IsRetryable reports whether re-running the read-evaluate-write cycle may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsTransient reports storage failures the caller may retry with backoff.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsClientError reports errors caused by caller input or stale caller state.
func IsClientError(err error) bool {
	return errors.Is(err, money.ErrInvalidAmount) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidReviewer) ||
		errors.Is(err, ErrUnderpayment) ||
		errors.Is(err, ErrDuplicateBooking)
}
