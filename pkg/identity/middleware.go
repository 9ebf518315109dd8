package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/licensekit/pkg/logger"
)

// TokenExtractorFunc extracts a raw token from a request.
// An empty string with a nil error means the request carries no token.
type TokenExtractorFunc func(r *http.Request) (string, error)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middleware)

type middleware struct {
	verifier   *Verifier
	extractors []TokenExtractorFunc
	logger     *slog.Logger
}

// WithExtractors replaces the default Bearer extractor. Extractors are tried in order.
func WithExtractors(extractors ...TokenExtractorFunc) MiddlewareOption {
	return func(m *middleware) {
		if len(extractors) > 0 {
			m.extractors = extractors
		}
	}
}

// WithMiddlewareLogger sets the logger used to report rejected tokens.
func WithMiddlewareLogger(l *slog.Logger) MiddlewareOption {
	return func(m *middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// Middleware attaches the caller's Identity to the request context.
// Requests without a token continue as anonymous; a present but invalid token is rejected with 401.
func Middleware(verifier *Verifier, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if verifier == nil {
		panic("identity: verifier is required")
	}

	m := &middleware{
		verifier:   verifier,
		extractors: []TokenExtractorFunc{BearerTokenExtractor},
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := m.extract(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			if token == "" {
				next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), Anonymous())))
				return
			}

			id, err := m.verifier.Verify(token)
			if err != nil {
				m.logger.DebugContext(r.Context(), "token rejected", logger.Error(err))
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuthenticated rejects anonymous callers with 401.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !FromContext(r.Context()).Valid() {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects callers without the admin claim with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := FromContext(r.Context())
		if !id.Valid() {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if !id.Admin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *middleware) extract(r *http.Request) (string, error) {
	for _, extract := range m.extractors {
		token, err := extract(r)
		if err != nil {
			return "", err
		}
		if token != "" {
			return token, nil
		}
	}
	return "", nil
}

// BearerTokenExtractor reads "Authorization: Bearer <token>".
// A malformed Authorization header is an error; an absent one is not.
func BearerTokenExtractor(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}

// CookieTokenExtractor reads the token from the named cookie.
func CookieTokenExtractor(name string) TokenExtractorFunc {
	return func(r *http.Request) (string, error) {
		c, err := r.Cookie(name)
		if err != nil {
			return "", nil
		}
		return c.Value, nil
	}
}
