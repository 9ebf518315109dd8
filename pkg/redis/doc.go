// Package redis connects to Redis and provides a distributed lock.
//
// Connect retries the initial ping per Config; Healthcheck adapts a client to
// a readiness probe. Locker implements a single-instance SET NX PX lock whose
// release only deletes the key while it still holds the caller's token.
//
//	client, err := redis.Connect(ctx, cfg)
//	locker := redis.NewLocker(client, redis.WithLockPrefix(cfg.KeyPrefix+"lock:"))
//	unlock, err := locker.Lock(ctx, "payment:order:O1", time.Minute)
//	defer unlock(context.Background())
//
// The payment/redisstore package builds the order ledger on the same client.
package redis
