package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/licensekit/pkg/email"
	"github.com/dmitrymomot/licensekit/pkg/httpserver"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/license/mongostore"
	"github.com/dmitrymomot/licensekit/pkg/license/pgstore"
	"github.com/dmitrymomot/licensekit/pkg/logger"
	"github.com/dmitrymomot/licensekit/pkg/mongo"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/payment/redisstore"
	"github.com/dmitrymomot/licensekit/pkg/pg"
	"github.com/dmitrymomot/licensekit/pkg/redis"
)

var (
	errUnknownStore     = errors.New("unknown store")
	errUnknownProvider  = errors.New("unknown payment provider")
	errPaymentsDisabled = errors.New("payments are disabled (PAYMENT_PROVIDER=none)")
)

// deps holds the opened backends. close releases them in reverse order.
type deps struct {
	catalog *license.Catalog
	records license.Store
	orders  payment.Store
	locker  payment.Locker

	pgMigrate  func(ctx context.Context) error
	mongoIndex func(ctx context.Context) error

	checks  []httpserver.Check
	closers []func(ctx context.Context)
}

func (d *deps) close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i](ctx)
	}
}

func openDeps(ctx context.Context, cfg storageConfig, log *slog.Logger) (_ *deps, err error) {
	d := &deps{}
	defer func() {
		if err != nil {
			d.close(context.WithoutCancel(ctx))
		}
	}()

	if d.catalog, err = loadCatalog(ctx, cfg.CatalogPath); err != nil {
		return nil, err
	}

	switch cfg.LicenseStore {
	case storeMemory, "":
		d.records = license.NewMemoryStore()
	case storePostgres:
		pool, err := pg.Connect(ctx, cfg.PG)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func(context.Context) { pool.Close() })
		d.checks = append(d.checks, httpserver.Check{Name: "postgres", Func: pg.Healthcheck(pool)})
		d.records = pgstore.New(pool)
		d.pgMigrate = func(ctx context.Context) error {
			return pg.Migrate(ctx, pool, pgstore.Migrations(), cfg.PG, log)
		}
	case storeMongo:
		client, err := mongo.New(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func(ctx context.Context) {
			if err := client.Disconnect(ctx); err != nil {
				log.WarnContext(ctx, "mongo disconnect failed", logger.Error(err))
			}
		})
		d.checks = append(d.checks, httpserver.Check{Name: "mongo", Func: mongo.Healthcheck(client)})
		store := mongostore.New(client.Database(cfg.Mongo.Database), cfg.MongoCollection)
		d.records = store
		d.mongoIndex = store.EnsureIndexes
	default:
		return nil, fmt.Errorf("%w: LICENSE_STORE=%q", errUnknownStore, cfg.LicenseStore)
	}

	switch cfg.OrderStore {
	case storeMemory, "":
		d.orders = payment.NewMemoryStore()
	case storeRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func(ctx context.Context) {
			if err := client.Close(); err != nil {
				log.WarnContext(ctx, "redis close failed", logger.Error(err))
			}
		})
		d.checks = append(d.checks, httpserver.Check{Name: "redis", Func: redis.Healthcheck(client)})
		d.orders = redisstore.New(client, redisstore.WithPrefix(cfg.Redis.KeyPrefix))
		d.locker = redis.NewLocker(client, redis.WithLockPrefix(cfg.Redis.KeyPrefix+"lock:"))
	default:
		return nil, fmt.Errorf("%w: ORDER_STORE=%q", errUnknownStore, cfg.OrderStore)
	}

	return d, nil
}

func loadCatalog(ctx context.Context, path string) (*license.Catalog, error) {
	if path == "" {
		return license.DefaultCatalog(), nil
	}
	return license.LoadCatalog(ctx, license.NewYAMLSource(path))
}

func newProvider(cfg paymentsConfig) (payment.Provider, error) {
	switch cfg.Payment.Provider {
	case "paypal":
		return payment.NewPayPalProvider(cfg.PayPal, cfg.Payment.BrandName)
	case "paddle":
		return payment.NewPaddleProvider(cfg.Paddle)
	case providerNone, "":
		return nil, errPaymentsDisabled
	}
	return nil, fmt.Errorf("%w: %q", errUnknownProvider, cfg.Payment.Provider)
}

// newCoordinator wires provider to the opened stores. Incidents are mailed to
// the support address.
func newCoordinator(d *deps, provider payment.Provider, cfg paymentsConfig, reg prometheus.Registerer, log *slog.Logger) (*payment.Coordinator, error) {
	sender, err := email.NewSender(cfg.Email)
	if err != nil {
		return nil, err
	}

	opts := []payment.Option{
		payment.WithConfig(cfg.Payment),
		payment.WithNotifier(payment.NewEmailNotifier(sender, cfg.Email.SupportEmail)),
		payment.WithLogger(log.With(logger.Component("payment"))),
	}
	if reg != nil {
		opts = append(opts, payment.WithMetrics(payment.NewMetrics(reg)))
	}
	if d.locker != nil {
		opts = append(opts, payment.WithLocker(d.locker))
	}
	return payment.NewCoordinator(provider, d.orders, d.records, d.catalog, opts...), nil
}

// offlineProvider stands in for the real provider in operator commands,
// which only work on the ledger and never contact the provider.
type offlineProvider struct{ name string }

var errOffline = errors.New("provider calls are not available from operator commands")

func (p offlineProvider) Name() string { return p.name }

func (offlineProvider) CreateOrder(context.Context, payment.OrderRequest) (*payment.ProviderOrder, error) {
	return nil, errOffline
}

func (offlineProvider) CaptureOrder(context.Context, string) (*payment.Capture, error) {
	return nil, errOffline
}
