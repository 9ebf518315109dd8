package payment

import (
	"context"
	"slices"
	"time"
)

// Store is the order ledger and the pending-payment table.
type Store interface {
	// SaveOrder inserts or replaces the order.
	SaveOrder(ctx context.Context, o Order) error
	// GetOrder returns ErrOrderNotFound for unknown ids.
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrders returns orders matching the filter, oldest first.
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)

	SavePending(ctx context.Context, p PendingPayment) error
	// GetPending returns ErrPendingNotFound for unknown ids.
	GetPending(ctx context.Context, orderID string) (PendingPayment, error)
	// DeletePending is a no-op for unknown ids.
	DeletePending(ctx context.Context, orderID string) error
}

// OrderFilter selects orders. Zero fields match everything.
type OrderFilter struct {
	States        []State
	UserID        string
	CreatedBefore time.Time
	Limit         int
}

// Match reports whether o passes the filter, ignoring Limit.
func (f OrderFilter) Match(o Order) bool {
	if len(f.States) > 0 && !slices.Contains(f.States, o.State) {
		return false
	}
	if f.UserID != "" && f.UserID != o.UserID {
		return false
	}
	if !f.CreatedBefore.IsZero() && !o.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}
