package license

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Records are copied on the way in and out.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
	byUser  map[string][]uuid.UUID
	byOrder map[string]uuid.UUID
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]Record),
		byUser:  make(map[string][]uuid.UUID),
		byOrder: make(map[string]uuid.UUID),
	}
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.records[id].Clone())
	}
	slices.SortStableFunc(out, func(a, b Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Issue(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := ValidateRecord(rec); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.OrderID != "" {
		if id, ok := s.byOrder[rec.OrderID]; ok {
			return s.records[id].Clone(), nil
		}
	}

	for _, id := range s.byUser[rec.UserID] {
		prev := s.records[id]
		if prev.Status == StatusActive && prev.SupersededBy == nil {
			newID := rec.ID
			prev.SupersededBy = &newID
			s.records[id] = prev
		}
	}

	rec = rec.Clone()
	s.records[rec.ID] = rec
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], rec.ID)
	if rec.OrderID != "" {
		s.byOrder[rec.OrderID] = rec.ID
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) HasType(ctx context.Context, userID string, t Type) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.ContainsFunc(s.byUser[userID], func(id uuid.UUID) bool {
		return s.records[id].Type == t
	}), nil
}

func (s *MemoryStore) IncrementUsage(ctx context.Context, licenseID uuid.UUID, action Action, delta, limit int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidateIncrement(action, delta); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[licenseID]
	if !ok {
		return 0, ErrRecordNotFound
	}

	var n *int64
	switch action {
	case ActionVehicle:
		n = &rec.VehiclesCreated
	case ActionAnalysis:
		n = &rec.AnalysesUsed
	case ActionSetup:
		n = &rec.SetupsSaved
	}
	if limit != Unlimited && *n+delta > limit {
		return *n, ErrLimitReached
	}
	*n += delta
	s.records[licenseID] = rec
	return *n, nil
}
