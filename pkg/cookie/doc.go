// Package cookie writes and reads HTTP cookies with shared defaults and
// HMAC-SHA256 signatures.
//
// Signed cookies carry base64url(value) "." base64url(mac). The MAC covers the
// cookie name as well as the value. Several secrets may be configured: the
// first signs, every one verifies, so secrets can be rotated without
// invalidating cookies already in browsers.
//
//	m, err := cookie.New([]string{secret})
//	m.SetSigned(w, "trial", "used")
//	v, err := m.GetSigned(r, "trial")
package cookie
