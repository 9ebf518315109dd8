package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config configures token verification.
type Config struct {
	SigningKey string        `env:"IDENTITY_SIGNING_KEY,required"`
	Issuer     string        `env:"IDENTITY_ISSUER"`
	Audience   string        `env:"IDENTITY_AUDIENCE"`
	Leeway     time.Duration `env:"IDENTITY_LEEWAY" envDefault:"30s"`
}

// Claims is the token payload issued by the identity provider.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin,omitempty"`
}

// Verifier validates HS256 tokens and turns them into identities.
type Verifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewVerifier creates a verifier from cfg. An empty signing key is rejected.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.SigningKey == "" {
		return nil, ErrMissingSigningKey
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		key:    []byte(cfg.SigningKey),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify parses and validates a token string.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Anonymous(), ErrMissingToken
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Anonymous(), errors.Join(ErrExpiredToken, err)
		}
		return Anonymous(), errors.Join(ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Anonymous(), ErrMissingSubject
	}

	return Identity{
		UserID:        claims.Subject,
		Email:         claims.Email,
		Authenticated: true,
		Admin:         claims.Admin,
	}, nil
}
