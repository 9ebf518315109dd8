package logger

import (
	"log/slog"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// Empty ids (anonymous sessions) produce an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// OrderID records the payment provider order id under the key "order_id".
func OrderID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("order_id", id)
}

// LicenseID records the license record id under the key "license_id".
func LicenseID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("license_id", id)
}

// PlanType records the plan type under the key "plan_type".
func PlanType(plan string) slog.Attr {
	return slog.String("plan_type", plan)
}

// State records a lifecycle state under the key "state".
func State(state string) slog.Attr {
	return slog.String("state", state)
}

// Transition records a state change as "from -> to" under the key "transition".
func Transition(from, to string) slog.Attr {
	return slog.String("transition", from+" -> "+to)
}

// Seq records a refresh sequence number under the key "seq".
func Seq(seq uint64) slog.Attr {
	return slog.Uint64("seq", seq)
}

// Attempt records a capture attempt number under the key "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
