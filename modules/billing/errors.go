package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/trial"
	"github.com/dmitrymomot/licensekit/svc/entitlement"
)

var (
	ErrInvalidBody   = errors.New("invalid request body")
	ErrUnknownAction = errors.New("unknown action")
)

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{payment.ErrAuthenticationRequired, http.StatusUnauthorized, "authentication_required"},
	{entitlement.ErrNotAuthenticated, http.StatusUnauthorized, "authentication_required"},
	{payment.ErrForeignOrder, http.StatusForbidden, "foreign_order"},
	{payment.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{payment.ErrPendingNotFound, http.StatusNotFound, "order_not_found"},
	{payment.ErrReturnCancelled, http.StatusBadRequest, "payment_cancelled"},
	{payment.ErrOrderClosed, http.StatusConflict, "order_closed"},
	{payment.ErrNotResolvable, http.StatusConflict, "order_not_resolvable"},
	{payment.ErrNeedsVerification, http.StatusAccepted, "needs_verification"},
	{payment.ErrCapturePending, http.StatusAccepted, "capture_pending"},
	{payment.ErrCaptureInProgress, http.StatusConflict, "capture_in_progress"},
	{payment.ErrCaptureRetryable, http.StatusBadGateway, "capture_retryable"},
	{payment.ErrCaptureFailed, http.StatusPaymentRequired, "capture_failed"},
	{payment.ErrPersistence, http.StatusInternalServerError, "persistence_failure"},
	{payment.ErrTimeout, http.StatusGatewayTimeout, "provider_timeout"},
	{payment.ErrProvider, http.StatusBadGateway, "provider_error"},
	{payment.ErrValidation, http.StatusBadRequest, "invalid_order"},
	{trial.ErrTrialAlreadyUsed, http.StatusConflict, "trial_already_used"},
	{trial.ErrNoLocalFlag, http.StatusBadRequest, "trial_flag_required"},
	{trial.ErrPaidLicenseActive, http.StatusConflict, "paid_license_active"},
	{license.ErrLimitReached, http.StatusForbidden, "limit_reached"},
	{license.ErrNoLicense, http.StatusPaymentRequired, "no_license"},
	{license.ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
	{license.ErrInvalidDelta, http.StatusBadRequest, "invalid_delta"},
	{license.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{license.ErrInvalidCurrency, http.StatusBadRequest, "invalid_currency"},
	{entitlement.ErrPaymentsDisabled, http.StatusNotImplemented, "payments_disabled"},
	{ErrInvalidBody, http.StatusBadRequest, "invalid_body"},
	{ErrUnknownAction, http.StatusBadRequest, "unknown_action"},
}

type errorResponse struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	Retryable        bool   `json:"retryable,omitempty"`
	SupportReference string `json:"support_reference,omitempty"`
}

func classify(err error) (int, errorResponse) {
	resp := errorResponse{
		Error:     http.StatusText(http.StatusInternalServerError),
		Code:      "internal_error",
		Retryable: payment.IsRetryable(err),
	}
	status := http.StatusInternalServerError

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, resp.Code, resp.Error = m.status, m.code, m.target.Error()
			break
		}
	}
	if ref, ok := payment.SupportReference(err); ok {
		resp.SupportReference = ref
	}
	return status, resp
}
