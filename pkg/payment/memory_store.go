package payment

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]Order
	pending map[string]PendingPayment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]Order),
		pending: make(map[string]PendingPayment),
	}
}

func (s *MemoryStore) SaveOrder(ctx context.Context, o Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.orders[o.ID] = o
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Match(o) {
			out = append(out, o)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) SavePending(ctx context.Context, p PendingPayment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending[p.OrderID] = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetPending(ctx context.Context, orderID string) (PendingPayment, error) {
	if err := ctx.Err(); err != nil {
		return PendingPayment{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pending[orderID]
	if !ok {
		return PendingPayment{}, ErrPendingNotFound
	}
	return p, nil
}

func (s *MemoryStore) DeletePending(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.pending, orderID)
	s.mu.Unlock()
	return nil
}
