package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/licensekit/pkg/license"
)

// Order is the ledger entry of one provider order.
type Order struct {
	ID              string        `json:"id"`
	Provider        string        `json:"provider"`
	UserID          string        `json:"user_id,omitempty"`
	PlanType        license.Type  `json:"plan_type"`
	Amount          license.Money `json:"amount"`
	Recurring       bool          `json:"recurring,omitempty"`
	State           State         `json:"state"`
	ApprovalURL     string        `json:"approval_url,omitempty"`
	CaptureAttempts int           `json:"capture_attempts"`
	CaptureID       string        `json:"capture_id,omitempty"`
	PayerID         string        `json:"payer_id,omitempty"`
	LicenseID       uuid.UUID     `json:"license_id,omitzero"`
	FailureReason   string        `json:"failure_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// PendingPayment links a provider order to the plan it pays for until the
// license is issued. It is consumed exactly once.
type PendingPayment struct {
	OrderID   string        `json:"order_id"`
	PlanType  license.Type  `json:"plan_type"`
	UserID    string        `json:"user_id,omitempty"`
	Amount    license.Money `json:"amount"`
	CreatedAt time.Time     `json:"created_at"`
}

// Checkout is what the buyer needs to approve an order.
type Checkout struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
}

// Result describes a completed purchase.
type Result struct {
	OrderID   string       `json:"order_id"`
	State     State        `json:"state"`
	PlanType  license.Type `json:"plan_type"`
	LicenseID uuid.UUID    `json:"license_id"`
	// Replayed is set when the order had already been completed earlier.
	Replayed bool `json:"replayed"`
}

// ReturnParams are the query parameters the provider appends to the return URL.
type ReturnParams struct {
	Token   string
	PayerID string
}

func (o Order) result(replayed bool) *Result {
	return &Result{
		OrderID:   o.ID,
		State:     o.State,
		PlanType:  o.PlanType,
		LicenseID: o.LicenseID,
		Replayed:  replayed,
	}
}

func (o Order) pending() PendingPayment {
	return PendingPayment{
		OrderID:   o.ID,
		PlanType:  o.PlanType,
		UserID:    o.UserID,
		Amount:    o.Amount,
		CreatedAt: o.CreatedAt,
	}
}
