package payment

import (
	"context"

	"github.com/dmitrymomot/licensekit/pkg/license"
)

// Provider is the external payment service. Implementations must not retry
// on their own and must surface timeouts so IsTimeout recognises them.
type Provider interface {
	// Name identifies the provider in the order ledger.
	Name() string
	// CreateOrder registers an order the buyer approves at ApprovalURL.
	CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error)
	// CaptureOrder moves the money of an approved order. A second call for an
	// already captured order returns ErrAlreadyCaptured.
	CaptureOrder(ctx context.Context, orderID string) (*Capture, error)
}

// OrderRequest describes a one-off purchase of a plan.
type OrderRequest struct {
	ReferenceID string
	PlanType    license.Type
	Description string
	Amount      license.Money
	Recurring   bool
	UserID      string
	Email       string
	ReturnURL   string
	CancelURL   string
}

// ProviderOrder is the provider's view of a created order.
type ProviderOrder struct {
	OrderID     string
	ApprovalURL string
	Status      string
}

// CaptureStatus is the outcome of a capture call that returned no error.
type CaptureStatus string

const (
	// CaptureCompleted means the money moved.
	CaptureCompleted CaptureStatus = "completed"
	// CapturePending means the buyer has not paid yet; nothing moved.
	CapturePending CaptureStatus = "pending"
	// CaptureIndeterminate means the provider accepted the capture but has
	// not settled it. An operator has to confirm it.
	CaptureIndeterminate CaptureStatus = "indeterminate"
	// CaptureDeclined means the provider refused the capture.
	CaptureDeclined CaptureStatus = "declined"
)

// Capture is the provider's answer to a capture call.
type Capture struct {
	OrderID   string
	CaptureID string
	PayerID   string
	Status    CaptureStatus
}
