package statemachine

import (
	"context"
	"fmt"
)

// Definition is an immutable transition table. It is built once, shared by any
// number of goroutines, and applied to entities whose current state lives
// elsewhere (a database row, a cache entry).
//
// Lookup is map[fromState][event][]Transition. Several transitions may share a
// from/event pair; the first whose guards all pass wins.
type Definition struct {
	initial     State
	transitions map[string]map[string][]Transition
	states      map[string]State
}

// NewDefinition builds a transition table with the given initial state.
func NewDefinition(initial State, opts ...Option) (*Definition, error) {
	if initial == nil {
		return nil, ErrNilState
	}

	d := &Definition{
		initial:     initial,
		transitions: make(map[string]map[string][]Transition),
		states:      map[string]State{initial.Name(): initial},
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// MustDefine works like NewDefinition but panics on a malformed table.
func MustDefine(initial State, opts ...Option) *Definition {
	d, err := NewDefinition(initial, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to define state machine: %v", err))
	}
	return d
}

func (d *Definition) add(t Transition) error {
	if t.From == nil || t.To == nil || t.Event == nil {
		return ErrInvalidTransition
	}

	from := t.From.Name()
	if _, ok := d.transitions[from]; !ok {
		d.transitions[from] = make(map[string][]Transition)
	}
	d.transitions[from][t.Event.Name()] = append(d.transitions[from][t.Event.Name()], t)
	d.states[from] = t.From
	d.states[t.To.Name()] = t.To
	return nil
}

// Initial returns the state new entities start in.
func (d *Definition) Initial() State {
	return d.initial
}

// Known reports whether the state appears anywhere in the table.
func (d *Definition) Known(state State) bool {
	if state == nil {
		return false
	}
	_, ok := d.states[state.Name()]
	return ok
}

// Terminal reports whether no event leads out of the state.
func (d *Definition) Terminal(state State) bool {
	if state == nil {
		return false
	}
	return len(d.transitions[state.Name()]) == 0
}

// Resolve finds the transition that event would take from state, evaluating guards.
func (d *Definition) Resolve(ctx context.Context, from State, event Event, data any) (Transition, error) {
	if from == nil {
		return Transition{}, ErrNilState
	}
	if event == nil {
		return Transition{}, ErrInvalidEvent
	}
	if !d.Known(from) {
		return Transition{}, NewErrUnknownState(from.Name())
	}

	candidates := d.transitions[from.Name()][event.Name()]
	if len(candidates) == 0 {
		return Transition{}, NewErrNoTransitionAvailable(from.Name(), event.Name())
	}

	for _, t := range candidates {
		if guardsPass(ctx, t.Guards, from, event, data) {
			return t, nil
		}
	}

	return Transition{}, NewErrTransitionRejected(from.Name(), event.Name())
}

// Fire resolves the transition, runs its actions and returns the target state.
// The caller persists the result; on error the entity stays in from.
func (d *Definition) Fire(ctx context.Context, from State, event Event, data any) (State, error) {
	t, err := d.Resolve(ctx, from, event, data)
	if err != nil {
		return from, err
	}

	for _, action := range t.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, &ErrActionFailed{StateName: from.Name(), EventName: event.Name(), Err: err}
		}
	}

	return t.To, nil
}

// CanFire reports whether event would be accepted in state.
func (d *Definition) CanFire(ctx context.Context, from State, event Event, data any) bool {
	_, err := d.Resolve(ctx, from, event, data)
	return err == nil
}

func guardsPass(ctx context.Context, guards []Guard, from State, event Event, data any) bool {
	for _, guard := range guards {
		if guard != nil && !guard(ctx, from, event, data) {
			return false
		}
	}
	return true
}
