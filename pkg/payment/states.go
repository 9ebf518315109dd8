package payment

import (
	"context"

	"github.com/dmitrymomot/licensekit/pkg/statemachine"
)

// State is the lifecycle position of an order.
type State string

const (
	StateCreated           State = "created"
	StateAwaitingApproval  State = "awaiting_approval"
	StateCaptured          State = "captured"
	StateLicenseIssued     State = "license_issued"
	StateAbandoned         State = "abandoned"
	StateFailed            State = "failed"
	StateNeedsVerification State = "needs_verification"
)

func (s State) Name() string { return string(s) }

// Event moves an order between states.
type Event string

const (
	EventSubmit          Event = "submit"
	EventCapture         Event = "capture"
	EventCaptureRejected Event = "capture_rejected"
	EventTimeout         Event = "timeout"
	EventIssue           Event = "issue"
	EventAbandon         Event = "abandon"
	EventFail            Event = "fail"
	EventConfirm         Event = "confirm"
)

func (e Event) Name() string { return string(e) }

// NewDefinition returns the order lifecycle. A rejected capture keeps the order
// in awaiting_approval while fewer than maxAttempts captures were tried.
func NewDefinition(maxAttempts int) *statemachine.Definition {
	retryable := func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
		o, ok := data.(*Order)
		return ok && o.CaptureAttempts < maxAttempts
	}

	return statemachine.MustDefine(StateCreated,
		statemachine.WithTransition(StateCreated, StateAwaitingApproval, EventSubmit),
		statemachine.WithTransition(StateAwaitingApproval, StateCaptured, EventCapture),
		statemachine.WithTransition(StateAwaitingApproval, StateAwaitingApproval, EventCaptureRejected,
			statemachine.WithGuard(retryable)),
		statemachine.WithTransition(StateAwaitingApproval, StateFailed, EventCaptureRejected),
		statemachine.WithTransition(StateAwaitingApproval, StateNeedsVerification, EventTimeout),
		statemachine.WithTransition(StateAwaitingApproval, StateAbandoned, EventAbandon),
		statemachine.WithTransition(StateNeedsVerification, StateCaptured, EventConfirm),
		statemachine.WithTransition(StateCaptured, StateLicenseIssued, EventIssue),
		statemachine.WithTransitionFrom(
			[]statemachine.State{StateCreated, StateAwaitingApproval, StateCaptured, StateNeedsVerification},
			StateFailed, EventFail),
	)
}
