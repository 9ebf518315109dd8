package payment

import (
	"context"
	"time"
)

// Locker serialises work on a key across processes.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func
	// releases it; the lock also expires after ttl.
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(context.Context) error, err error)
}
