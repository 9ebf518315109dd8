package license

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists license records.
type Store interface {
	// ListByUser returns every record of the user, newest first.
	ListByUser(ctx context.Context, userID string) ([]Record, error)

	// Issue inserts rec and marks the user's other active records as
	// superseded by it, atomically. Issue is idempotent on a non-empty
	// OrderID: a second call returns the record created by the first.
	Issue(ctx context.Context, rec Record) (Record, error)

	// HasType reports whether the user has ever held a license of type t.
	HasType(ctx context.Context, userID string, t Type) (bool, error)

	// IncrementUsage atomically adds delta to the counter behind action
	// and returns the new value. The counter never goes past limit unless
	// limit is Unlimited: an increment that would is refused with
	// ErrLimitReached and changes nothing. delta must be positive.
	// Returns ErrRecordNotFound for unknown ids.
	IncrementUsage(ctx context.Context, licenseID uuid.UUID, action Action, delta, limit int64) (int64, error)
}

// ValidateIncrement checks the arguments of Store.IncrementUsage.
func ValidateIncrement(action Action, delta int64) error {
	if !action.Valid() {
		return ErrUnknownAction
	}
	if delta <= 0 {
		return ErrInvalidDelta
	}
	return nil
}

// NewRecord builds an active record for userID on plan, issued at now.
func NewRecord(userID string, plan Plan, orderID string, now time.Time) Record {
	return Record{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      plan.Type,
		Status:    StatusActive,
		CreatedAt: now.UTC(),
		ExpiresAt: plan.ExpiresAt(now),
		OrderID:   orderID,
	}
}

// ValidateRecord checks the fields every store requires before Issue.
func ValidateRecord(rec Record) error {
	switch {
	case rec.ID == uuid.Nil:
		return ErrInvalidRecord
	case rec.UserID == "":
		return ErrInvalidRecord
	case rec.Type == "":
		return ErrInvalidRecord
	case rec.Status == "":
		return ErrInvalidRecord
	}
	return nil
}
