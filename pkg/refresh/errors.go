package refresh

import "errors"

var (
	ErrSignedOut      = errors.New("refresh: session signed out while refreshing")
	ErrFetchFailed    = errors.New("refresh: failed to fetch entitlement")
	ErrAlreadyStarted = errors.New("refresh: scheduler already started")
	ErrNotStarted     = errors.New("refresh: scheduler not started")
)
