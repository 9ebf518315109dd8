// Package trial tracks one-time free-trial eligibility.
//
// Eligibility has two sources. Anonymous visitors carry a LocalFlag (a signed
// cookie in the HTTP module, process memory elsewhere). Authenticated users are
// eligible exactly when no free-trial license record exists for them. On login
// Merge makes the account state authoritative and rewrites the local flag to
// match it.
package trial
