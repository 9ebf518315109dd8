// Package entitlement is the per-user facade over licensing.
//
// A Service holds the shared dependencies: the license record store, the
// resolver, the free-trial gate and, optionally, the payment coordinator.
// Each user gets a Session that owns a refresh.Scheduler and exposes what
// the rest of the application asks about a user: the current entitlement,
// quota checks, purchases and the free trial.
//
// Anonymous sessions keep their free-trial record in a private memory store
// that lives as long as the session. Login moves the session to the account,
// drops every refresh started before it and lets the account decide trial
// eligibility.
//
// Registry keeps one running Session per authenticated user and stops the
// ones that stay idle.
package entitlement
