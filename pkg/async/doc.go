// Package async provides a small generic Future type for work that runs in its
// own goroutine, and a per-key mutex.
//
// Go starts the work and returns immediately; callers then Await, or
// AwaitContext to stop waiting when their own context ends.
//
//	f := async.Go(ctx, func(ctx context.Context) (license.Entitlement, error) {
//	    return scheduler.Refresh(ctx)
//	})
//	ent, err := f.AwaitContext(ctx)
//
// KeyedMutex serialises work per key, such as one user or one order, and
// forgets keys nobody holds.
package async
