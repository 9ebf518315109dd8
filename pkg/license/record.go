package license

import (
	"time"

	"github.com/google/uuid"
)

// Record is a stored license grant. Records are never deleted: issuing a new
// license marks older active ones as superseded and leaves their status intact.
type Record struct {
	ID              uuid.UUID  `json:"id"`
	UserID          string     `json:"user_id"`
	Type            Type       `json:"license_type"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	AnalysesUsed    int64      `json:"analyses_used"`
	SetupsSaved     int64      `json:"setups_saved"`
	VehiclesCreated int64      `json:"vehicles_created"`
	// OrderID links a paid license to the payment order that produced it.
	OrderID      string     `json:"order_id,omitempty"`
	SupersededBy *uuid.UUID `json:"superseded_by,omitempty"`
}

// Expired reports whether the record's expiry lies before now.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Usage returns the record's counters.
func (r Record) Usage() Usage {
	return Usage{Vehicles: r.VehiclesCreated, Analyses: r.AnalysesUsed, Setups: r.SetupsSaved}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		r.ExpiresAt = &t
	}
	if r.SupersededBy != nil {
		id := *r.SupersededBy
		r.SupersededBy = &id
	}
	return r
}

// Authoritative picks the active record with the latest CreatedAt.
// On equal timestamps a record that is not superseded wins.
func Authoritative(records []Record) (Record, bool) {
	var (
		best  Record
		found bool
	)
	for _, r := range records {
		if r.Status != StatusActive {
			continue
		}
		if !found || r.CreatedAt.After(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && best.SupersededBy != nil && r.SupersededBy == nil) {
			best, found = r, true
		}
	}
	return best, found
}
