package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/licensekit/modules/billing"
	"github.com/dmitrymomot/licensekit/pkg/cookie"
	"github.com/dmitrymomot/licensekit/pkg/httpserver"
	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/logger"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/refresh"
	"github.com/dmitrymomot/licensekit/pkg/trial"
	"github.com/dmitrymomot/licensekit/svc/entitlement"
)

func newServeCmd(l *loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the billing API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg serveConfig
			if err := loadConfig(l, &cfg); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newLogger(cfg logger.Config) *slog.Logger {
	opts := logger.FromConfig(cfg)
	opts = append(opts, logger.WithContextExtractors(identity.LogExtractor, requestIDExtractor))
	return logger.New(opts...)
}

func requestIDExtractor(ctx context.Context) (slog.Attr, bool) {
	if id := middleware.GetReqID(ctx); id != "" {
		return slog.String("request_id", id), true
	}
	return slog.Attr{}, false
}

func serve(ctx context.Context, cfg serveConfig) error {
	log := newLogger(cfg.Ops.Logger)
	logger.SetAsDefault(log)

	d, err := openDeps(ctx, cfg.Ops.Storage, log)
	if err != nil {
		return err
	}
	defer d.close(context.WithoutCancel(ctx))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svcOpts := []entitlement.ServiceOption{
		entitlement.WithRefreshConfig(cfg.Refresh),
		entitlement.WithRefreshMetrics(refresh.NewMetrics(reg)),
		entitlement.WithLogger(log.With(logger.Component("entitlement"))),
	}

	var coord *payment.Coordinator
	provider, err := newProvider(cfg.Ops.Payments)
	switch {
	case errors.Is(err, errPaymentsDisabled):
		log.WarnContext(ctx, "payments disabled, purchase routes answer 501")
	case err != nil:
		return err
	default:
		if coord, err = newCoordinator(d, provider, cfg.Ops.Payments, reg, log); err != nil {
			return err
		}
		svcOpts = append(svcOpts, entitlement.WithPayments(coord))
	}

	verifier, err := identity.NewVerifier(cfg.Identity)
	if err != nil {
		return err
	}
	cookies, err := cookie.NewFromConfig(cfg.Cookie)
	if err != nil {
		return err
	}

	gate := trial.NewGate(d.records, d.catalog, trial.WithLogger(log.With(logger.Component("trial"))))
	svc := entitlement.NewService(d.records, license.NewResolver(d.catalog), gate, svcOpts...)

	g, ctx := errgroup.WithContext(ctx)
	registry := entitlement.NewRegistry(ctx, svc, cfg.Registry)

	handler := billing.NewHandler(registry, svc, cookies,
		billing.WithTrialCookie(cfg.TrialCookie),
		billing.WithReturnRedirect(cfg.ReturnRedirect),
		billing.WithLogger(log.With(logger.Component("billing"))),
	)

	router := newRouter(routerDeps{
		log:      log,
		reg:      reg,
		checks:   d.checks,
		timeout:  cfg.HTTP.HealthTimeout,
		verifier: verifier,
		billing:  handler.Handle(),
	})

	server := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log.With(logger.Component("http"))))

	g.Go(func() error { return server.Run(ctx, router) })
	g.Go(registry.Run(ctx))
	if coord != nil && cfg.SweepInterval > 0 {
		g.Go(sweepLoop(ctx, coord, cfg.SweepInterval, log))
	}

	return g.Wait()
}

type routerDeps struct {
	log      *slog.Logger
	reg      *prometheus.Registry
	checks   []httpserver.Check
	timeout  time.Duration
	verifier *identity.Verifier
	billing  http.Handler
}

func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(d.log, d.timeout, d.checks...))
	r.Handle("/metrics", httpserver.MetricsHandler(d.reg))

	r.With(
		httpserver.NewRequestMetrics(d.reg).Middleware,
		identity.Middleware(d.verifier, identity.WithMiddlewareLogger(d.log)),
	).Mount("/billing", d.billing)

	return r
}

// sweepLoop abandons stale orders until ctx is done. Sweep errors are logged
// and retried on the next tick.
func sweepLoop(ctx context.Context, coord *payment.Coordinator, every time.Duration, log *slog.Logger) func() error {
	return func() error {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := coord.SweepAbandoned(ctx, 0); err != nil && ctx.Err() == nil {
					log.WarnContext(ctx, "order sweep failed", logger.Error(err))
				}
			}
		}
	}
}
