package payment

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error classes. Every error returned by the Coordinator matches exactly one
// of them with errors.Is.
var (
	ErrValidation    = errors.New("payment validation failed")
	ErrProvider      = errors.New("payment provider error")
	ErrTimeout       = errors.New("payment provider timed out")
	ErrPersistence   = errors.New("payment persistence failed")
	ErrAuthorization = errors.New("payment not authorized")
)

var (
	ErrUnknownPlan        = errors.New("unknown plan")
	ErrPlanNotPurchasable = errors.New("plan cannot be purchased")
	ErrAmountMismatch     = errors.New("amount does not match plan price")
	ErrCurrencyMismatch   = errors.New("currency does not match plan price")
	ErrMissingOrderID     = errors.New("order id is required")
	ErrReturnCancelled    = errors.New("payment was cancelled")

	ErrAuthenticationRequired = errors.New("authentication required to complete purchase")
	ErrForeignOrder           = errors.New("order belongs to another user")

	ErrOrderNotFound   = errors.New("order not found")
	ErrPendingNotFound = errors.New("pending payment not found")
	ErrOrderClosed     = errors.New("order is closed")
	ErrNotResolvable   = errors.New("order does not await manual resolution")

	ErrNeedsVerification = errors.New("order needs manual verification")
	ErrCaptureFailed     = errors.New("capture failed")
	ErrCaptureRetryable  = errors.New("capture failed, retry is allowed")
	ErrCapturePending    = errors.New("payment not completed yet")
	ErrAlreadyCaptured   = errors.New("order already captured")
	ErrCaptureInProgress = errors.New("capture already in progress")

	ErrProviderNotConfigured = errors.New("payment provider is not configured")
	ErrLockNotHeld           = errors.New("lock not held")
)

// PersistenceError reports a license write that failed after the money was
// captured. OrderID is the support reference shown to the buyer.
type PersistenceError struct {
	OrderID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("license could not be saved for order %s, contact support with this reference: %v", e.OrderID, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsPersistenceError reports whether err carries a *PersistenceError.
func IsPersistenceError(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// SupportReference returns the order id of a *PersistenceError in err.
func SupportReference(err error) (string, bool) {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.OrderID, true
	}
	return "", false
}

// IsTimeout reports whether err is a deadline or network timeout, as opposed
// to a definite provider answer.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsRetryable reports whether the same call may be repeated by the buyer.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCaptureRetryable) ||
		errors.Is(err, ErrCapturePending) ||
		errors.Is(err, ErrCaptureInProgress)
}
