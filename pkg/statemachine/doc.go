// Package statemachine implements finite-state-machine transition tables.
//
// A Definition declares every legal transition once: which event moves an
// entity from one state to another, optional Guards that can veto the move and
// Actions that run before it is committed. Definitions are immutable after
// construction and safe to share.
//
// Entities whose state is persisted elsewhere use the Definition directly:
//
//	next, err := def.Fire(ctx, order.State, EventCapture, order)
//	if err != nil {
//	    return err
//	}
//	order.State = next
//
// # Error Handling
//
// Fire and Resolve return typed errors with helper predicates:
//
//	if statemachine.IsNoTransitionAvailableError(err) { /* event not defined here */ }
//	if statemachine.IsTransitionRejectedError(err)   { /* guards said no */ }
//	if statemachine.IsActionFailedError(err)         { /* an action aborted */ }
//	if statemachine.IsUnknownStateError(err)         { /* state not in the table */ }
package statemachine
