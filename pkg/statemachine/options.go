package statemachine

import (
	"fmt"
)

// Option configures a Definition during construction.
type Option func(*Definition) error

// TransitionOption configures a single transition with guards and actions.
type TransitionOption func(*transitionConfig)

// TransitionDef defines a transition between states.
type TransitionDef struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

type transitionConfig struct {
	guards  []Guard
	actions []Action
}

// WithTransition adds a single transition.
func WithTransition(from, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		cfg := &transitionConfig{}
		for _, opt := range opts {
			opt(cfg)
		}
		return d.add(Transition{From: from, To: to, Event: event, Guards: cfg.guards, Actions: cfg.actions})
	}
}

// WithTransitionFrom adds the same transition from each of the given states.
func WithTransitionFrom(from []State, to State, event Event, opts ...TransitionOption) Option {
	return func(d *Definition) error {
		for _, f := range from {
			if err := WithTransition(f, to, event, opts...)(d); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithTransitions adds multiple transitions at once.
func WithTransitions(transitions []TransitionDef) Option {
	return func(d *Definition) error {
		for i, t := range transitions {
			err := d.add(Transition{From: t.From, To: t.To, Event: t.Event, Guards: t.Guards, Actions: t.Actions})
			if err != nil {
				return fmt.Errorf("failed to add transition[%d] %s->%s on %s: %w",
					i, nameOf(t.From), nameOf(t.To), nameOf(t.Event), err)
			}
		}
		return nil
	}
}

// WithGuard adds a single guard to a transition.
func WithGuard(guard Guard) TransitionOption {
	return func(cfg *transitionConfig) {
		if guard != nil {
			cfg.guards = append(cfg.guards, guard)
		}
	}
}

// WithGuards adds multiple guards to a transition.
func WithGuards(guards ...Guard) TransitionOption {
	return func(cfg *transitionConfig) {
		for _, guard := range guards {
			if guard != nil {
				cfg.guards = append(cfg.guards, guard)
			}
		}
	}
}

// WithAction adds a single action to a transition.
func WithAction(action Action) TransitionOption {
	return func(cfg *transitionConfig) {
		if action != nil {
			cfg.actions = append(cfg.actions, action)
		}
	}
}

func nameOf(v interface{ Name() string }) string {
	if v == nil {
		return "<nil>"
	}
	return v.Name()
}
