package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-instance SET NX PX lock.
type Locker struct {
	client redis.UniversalClient
	prefix string
	poll   time.Duration
}

// LockerOption configures a Locker.
type LockerOption func(*Locker)

// WithLockPrefix namespaces lock keys.
func WithLockPrefix(prefix string) LockerOption {
	return func(l *Locker) { l.prefix = prefix }
}

// WithPollInterval sets how often a held lock is retried.
func WithPollInterval(d time.Duration) LockerOption {
	return func(l *Locker) {
		if d > 0 {
			l.poll = d
		}
	}
}

// NewLocker panics if client is nil.
func NewLocker(client redis.UniversalClient, opts ...LockerOption) *Locker {
	if client == nil {
		panic("redis: client is required")
	}
	l := &Locker{client: client, prefix: "lock:", poll: 50 * time.Millisecond}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Lock waits until key is free or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	key = l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrLockTimeout, ctx.Err())
			}
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
				if err != nil {
					return err
				}
				if n == 0 {
					return ErrLockNotHeld
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}
