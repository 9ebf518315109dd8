// Package identity verifies caller tokens and carries the resulting Identity
// through context.Context.
//
// Tokens are HS256 JWTs (github.com/golang-jwt/jwt/v5) issued by an external
// identity provider. The subject becomes Identity.UserID; the "admin" claim is
// the only source of Identity.Admin.
//
//	v, err := identity.NewVerifier(cfg)
//	r.Use(identity.Middleware(v))
//
//	id := identity.FromContext(r.Context())
package identity
