package main

import (
	"time"

	"github.com/dmitrymomot/licensekit/pkg/config"
	"github.com/dmitrymomot/licensekit/pkg/cookie"
	"github.com/dmitrymomot/licensekit/pkg/email"
	"github.com/dmitrymomot/licensekit/pkg/httpserver"
	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/logger"
	"github.com/dmitrymomot/licensekit/pkg/mongo"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/pg"
	"github.com/dmitrymomot/licensekit/pkg/redis"
	"github.com/dmitrymomot/licensekit/pkg/refresh"
	"github.com/dmitrymomot/licensekit/svc/entitlement"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeMongo    = "mongo"
	storeRedis    = "redis"

	providerNone = "none"
)

// storageConfig selects the license record store and the order ledger.
type storageConfig struct {
	LicenseStore    string `env:"LICENSE_STORE" envDefault:"memory"`
	OrderStore      string `env:"ORDER_STORE" envDefault:"memory"`
	MongoCollection string `env:"MONGODB_LICENSE_COLLECTION" envDefault:"licenses"`
	// CatalogPath points at a YAML plan catalog; empty uses the built-in plans.
	CatalogPath string `env:"LICENSE_CATALOG_PATH"`

	PG    pg.Config
	Redis redis.Config
	Mongo mongo.Config
}

type paymentsConfig struct {
	Payment payment.Config
	PayPal  payment.PayPalConfig
	Paddle  payment.PaddleConfig
	Email   email.Config
}

// opsConfig is what the operator commands need.
type opsConfig struct {
	Logger   logger.Config
	Storage  storageConfig
	Payments paymentsConfig
}

type serveConfig struct {
	Ops opsConfig

	HTTP     httpserver.Config
	Identity identity.Config
	Cookie   cookie.Config
	Refresh  refresh.Config
	Registry entitlement.RegistryConfig

	TrialCookie    string        `env:"TRIAL_COOKIE_NAME" envDefault:"lk_trial"`
	ReturnRedirect string        `env:"BILLING_RETURN_REDIRECT"`
	SweepInterval  time.Duration `env:"ORDER_SWEEP_INTERVAL" envDefault:"1h"`
}

type loader struct {
	envFiles []string
	environ  map[string]string
}

func loadConfig[T any](l *loader, v *T) error {
	opts := []config.Option{config.WithEnvFiles(l.envFiles...)}
	if l.environ != nil {
		opts = append(opts, config.WithEnvironment(l.environ))
	}
	return config.Load(v, opts...)
}
