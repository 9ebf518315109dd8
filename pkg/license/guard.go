package license

// Reason explains a denied Decision.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNoLicense     Reason = "no_license"
	ReasonLimitReached  Reason = "limit_reached"
	ReasonUnknownAction Reason = "unknown_action"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	Used    int64  `json:"used"`
	Limit   int64  `json:"limit"`
}

// Err maps a denied decision to its sentinel error; nil when allowed.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonNone:
		if d.Allowed {
			return nil
		}
		return ErrNoLicense
	case ReasonNoLicense:
		return ErrNoLicense
	case ReasonLimitReached:
		return ErrLimitReached
	case ReasonUnknownAction:
		return ErrUnknownAction
	}
	return ErrNoLicense
}

// CanPerform checks whether one more action fits into the entitlement.
// It only reads; counters are incremented by the store after the action.
func CanPerform(action Action, ent Entitlement, usage Usage) Decision {
	if !action.Valid() {
		return Decision{Reason: ReasonUnknownAction}
	}

	used := usage.Of(action)
	limit := ent.Limit(action)

	if !ent.Valid {
		return Decision{Reason: ReasonNoLicense, Used: used, Limit: limit}
	}
	if limit == Unlimited {
		return Decision{Allowed: true, Used: used, Limit: limit}
	}
	if used >= limit {
		return Decision{Reason: ReasonLimitReached, Used: used, Limit: limit}
	}
	return Decision{Allowed: true, Used: used, Limit: limit}
}
