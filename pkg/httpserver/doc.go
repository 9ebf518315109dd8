// Package httpserver runs the licensekit HTTP API.
//
// Server wraps net/http with graceful shutdown tied to a context and
// configurable timeouts. The package also provides liveness and readiness
// handlers, where readiness runs dependency checks concurrently, and
// Prometheus plumbing: a /metrics handler and a chi middleware counting
// requests by route pattern.
//
//	r := chi.NewRouter()
//	r.Use(httpserver.NewRequestMetrics(reg).Middleware)
//	r.Get("/healthz", httpserver.LivenessHandler())
//	r.Get("/readyz", httpserver.ReadinessHandler(log, 3*time.Second, checks...))
//	r.Handle("/metrics", httpserver.MetricsHandler(reg))
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, r)
package httpserver
