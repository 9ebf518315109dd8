package trial

import "errors"

var (
	ErrTrialAlreadyUsed  = errors.New("free trial already used")
	ErrNoLocalFlag       = errors.New("anonymous trial requires a local flag")
	ErrLocalFlag         = errors.New("local trial flag failure")
	ErrStore             = errors.New("trial store failure")
	ErrPaidLicenseActive = errors.New("a paid license is active")
)
