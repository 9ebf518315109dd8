package license

import "errors"

var (
	ErrPlanNotFound      = errors.New("license plan not found")
	ErrInvalidPlan       = errors.New("invalid license plan configuration")
	ErrFailedToLoadPlans = errors.New("failed to load license plans")

	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCurrency = errors.New("invalid currency")

	ErrRecordNotFound = errors.New("license record not found")
	ErrInvalidRecord  = errors.New("invalid license record")
	ErrUnknownAction  = errors.New("unknown quota action")
	ErrInvalidDelta   = errors.New("usage delta must be positive")

	ErrNoLicense    = errors.New("no valid license")
	ErrLimitReached = errors.New("license limit reached")
	ErrStoreFailure = errors.New("license store failure")
)
