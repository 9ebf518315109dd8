package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition: from, to, or event cannot be nil")
	ErrInvalidEvent      = errors.New("invalid event: event cannot be nil")
	ErrNilState          = errors.New("state cannot be nil")
)

// ErrNoTransitionAvailable indicates no transition exists for the given state/event combination.
type ErrNoTransitionAvailable struct {
	StateName string
	EventName string
}

func (e *ErrNoTransitionAvailable) Error() string {
	return fmt.Sprintf("no transition available from state '%s' for event '%s'", e.StateName, e.EventName)
}

func NewErrNoTransitionAvailable(stateName, eventName string) *ErrNoTransitionAvailable {
	return &ErrNoTransitionAvailable{StateName: stateName, EventName: eventName}
}

// ErrTransitionRejected indicates all candidate transitions were blocked by guards.
type ErrTransitionRejected struct {
	StateName string
	EventName string
}

func (e *ErrTransitionRejected) Error() string {
	return fmt.Sprintf("transition from state '%s' for event '%s' was rejected by guards", e.StateName, e.EventName)
}

func NewErrTransitionRejected(stateName, eventName string) *ErrTransitionRejected {
	return &ErrTransitionRejected{StateName: stateName, EventName: eventName}
}

// ErrUnknownState is returned when positioning a machine at a state the table never mentions.
type ErrUnknownState struct {
	StateName string
}

func (e *ErrUnknownState) Error() string {
	return fmt.Sprintf("unknown state '%s'", e.StateName)
}

func NewErrUnknownState(stateName string) *ErrUnknownState {
	return &ErrUnknownState{StateName: stateName}
}

// ErrActionFailed wraps the error of an action that aborted a transition.
type ErrActionFailed struct {
	StateName string
	EventName string
	Err       error
}

func (e *ErrActionFailed) Error() string {
	return fmt.Sprintf("action failed on '%s' for event '%s': %v", e.StateName, e.EventName, e.Err)
}

func (e *ErrActionFailed) Unwrap() error {
	return e.Err
}

func IsNoTransitionAvailableError(err error) bool {
	var e *ErrNoTransitionAvailable
	return errors.As(err, &e)
}

func IsTransitionRejectedError(err error) bool {
	var e *ErrTransitionRejected
	return errors.As(err, &e)
}

func IsUnknownStateError(err error) bool {
	var e *ErrUnknownState
	return errors.As(err, &e)
}

func IsActionFailedError(err error) bool {
	var e *ErrActionFailed
	return errors.As(err, &e)
}
