package entitlement

import "errors"

var (
	ErrNotAuthenticated = errors.New("entitlement: authenticated identity required")
	ErrPaymentsDisabled = errors.New("entitlement: payments are not configured")
)
