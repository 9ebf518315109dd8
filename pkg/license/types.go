package license

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a license plan.
type Type string

const (
	TypeFreeTrial Type = "free-trial"
	TypeTwoDays   Type = "two-days"
	TypeMonthly   Type = "monthly"
	TypeAnnual    Type = "annual"
)

// Status is the stored status of a license record. It is advisory: expiry is
// computed from ExpiresAt at read time and wins over an "active" status.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Unlimited marks a quota without an upper bound (-1 for SQL compatibility).
const Unlimited int64 = -1

// Action is a quota-bound operation.
type Action string

const (
	ActionVehicle  Action = "vehicle"
	ActionAnalysis Action = "analysis"
	ActionSetup    Action = "setup"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionVehicle, ActionAnalysis, ActionSetup:
		return true
	}
	return false
}

// Usage holds the consumed quota counters of a license.
type Usage struct {
	Vehicles int64 `json:"vehicles"`
	Analyses int64 `json:"analyses"`
	Setups   int64 `json:"setups"`
}

// Of returns the counter for action.
func (u Usage) Of(action Action) int64 {
	switch action {
	case ActionVehicle:
		return u.Vehicles
	case ActionAnalysis:
		return u.Analyses
	case ActionSetup:
		return u.Setups
	}
	return 0
}

// Entitlement is what a user may do right now. It is derived on every
// resolution and never persisted.
type Entitlement struct {
	LicenseType   Type       `json:"license_type"`
	Valid         bool       `json:"valid"`
	VehicleLimit  int64      `json:"vehicle_limit"`
	AnalysisLimit int64      `json:"analysis_limit"`
	SetupLimit    int64      `json:"setup_limit"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	LicenseID     uuid.UUID  `json:"license_id"`
	// Usage is taken from the authoritative record.
	Usage Usage `json:"usage"`
}

// Limit returns the quota for action, or 0 for an unknown action.
func (e Entitlement) Limit(action Action) int64 {
	switch action {
	case ActionVehicle:
		return e.VehicleLimit
	case ActionAnalysis:
		return e.AnalysisLimit
	case ActionSetup:
		return e.SetupLimit
	}
	return 0
}

// None is the entitlement of a user without any usable license.
func None() Entitlement {
	return Entitlement{}
}
