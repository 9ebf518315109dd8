// Package redisstore keeps the payment ledger in Redis.
//
// Orders are JSON strings under <prefix>order:<id> indexed by creation time
// in the sorted set <prefix>orders. Pending payments live under
// <prefix>pending:<id> and expire after PendingTTL.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/licensekit/pkg/payment"
)

const (
	defaultPrefix     = "licensekit:"
	defaultPendingTTL = 7 * 24 * time.Hour
	mgetBatch         = 200
)

// Store implements payment.Store.
type Store struct {
	client     redis.UniversalClient
	prefix     string
	pendingTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithPendingTTL bounds how long an unpaid order's pending payment is kept.
func WithPendingTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.pendingTTL = ttl
		}
	}
}

// New panics if client is nil.
func New(client redis.UniversalClient, opts ...Option) *Store {
	if client == nil {
		panic("redisstore: client is required")
	}
	s := &Store{client: client, prefix: defaultPrefix, pendingTTL: defaultPendingTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) orderKey(id string) string   { return s.prefix + "order:" + id }
func (s *Store) pendingKey(id string) string { return s.prefix + "pending:" + id }
func (s *Store) indexKey() string            { return s.prefix + "orders" }

func (s *Store) SaveOrder(ctx context.Context, o payment.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.orderKey(o.ID), data, 0)
		p.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(o.CreatedAt.UnixMilli()), Member: o.ID})
		return nil
	})
	return err
}

func (s *Store) GetOrder(ctx context.Context, id string) (payment.Order, error) {
	data, err := s.client.Get(ctx, s.orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return payment.Order{}, payment.ErrOrderNotFound
	}
	if err != nil {
		return payment.Order{}, err
	}
	var o payment.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return payment.Order{}, err
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context, f payment.OrderFilter) ([]payment.Order, error) {
	maxScore := "+inf"
	if !f.CreatedBefore.IsZero() {
		maxScore = "(" + strconv.FormatInt(f.CreatedBefore.UnixMilli(), 10)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]payment.Order, 0, len(ids))
	for start := 0; start < len(ids); start += mgetBatch {
		end := min(start+mgetBatch, len(ids))
		keys := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, s.orderKey(id))
		}

		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, err
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var o payment.Order
			if err := json.Unmarshal([]byte(raw), &o); err != nil {
				return nil, err
			}
			if !f.Match(o) {
				continue
			}
			out = append(out, o)
			if f.Limit > 0 && len(out) == f.Limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *Store) SavePending(ctx context.Context, p payment.PendingPayment) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.pendingKey(p.OrderID), data, s.pendingTTL).Err()
}

func (s *Store) GetPending(ctx context.Context, orderID string) (payment.PendingPayment, error) {
	data, err := s.client.Get(ctx, s.pendingKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return payment.PendingPayment{}, payment.ErrPendingNotFound
	}
	if err != nil {
		return payment.PendingPayment{}, err
	}
	var p payment.PendingPayment
	if err := json.Unmarshal(data, &p); err != nil {
		return payment.PendingPayment{}, err
	}
	return p, nil
}

func (s *Store) DeletePending(ctx context.Context, orderID string) error {
	return s.client.Del(ctx, s.pendingKey(orderID)).Err()
}
