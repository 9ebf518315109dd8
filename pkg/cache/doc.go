// Package cache provides a generic, thread-safe LRU cache with optional idle
// expiry.
//
// Entries are evicted when the cache exceeds its capacity or, with
// WithIdleTTL, when they have not been touched for longer than the TTL. An
// eviction callback receives every departing entry together with the
// EvictReason, and runs outside the cache lock so it can release resources
// held by the value.
//
//	sessions := cache.NewLRUCache[string, *Session](1024,
//	    cache.WithIdleTTL[string, *Session](30*time.Minute),
//	    cache.WithEvictCallback(func(_ string, s *Session, _ cache.EvictReason) {
//	        s.Close()
//	    }),
//	)
//
//	s, _ := sessions.GetOrCreate(userID, func() *Session { return newSession(userID) })
//
// Idle entries are dropped lazily on access; PurgeIdle sweeps them eagerly.
package cache
