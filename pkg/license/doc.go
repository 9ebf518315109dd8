// Package license decides what a user may do.
//
// A user's Records are resolved into an Entitlement by the Resolver: the
// newest active record wins, expiry is computed at read time, and the plan
// Catalog supplies the quotas. CanPerform checks a single quota-bound action
// against an entitlement without side effects; the Store increments the
// counters atomically once the action has happened.
//
// StateStore caches the last resolved entitlement of a session and rejects
// out-of-order updates by sequence number.
//
// Store implementations live in this package (MemoryStore) and in the
// pgstore and mongostore subpackages.
package license
