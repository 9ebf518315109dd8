// Package billing is the HTTP surface of licensing: entitlement reads,
// quota checks, checkout with the provider return callback, the free trial
// and operator endpoints for orders that need a manual decision.
//
// Mount it behind identity.Middleware so every request carries a caller:
//
//	r := chi.NewRouter()
//	r.Use(identity.Middleware(verifier))
//	r.Mount("/billing", billing.NewHandler(registry, cookies).Handle())
package billing
