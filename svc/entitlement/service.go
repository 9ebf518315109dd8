package entitlement

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/logger"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/refresh"
	"github.com/dmitrymomot/licensekit/pkg/trial"
)

// Service builds sessions over a shared set of dependencies.
type Service struct {
	records  license.Store
	resolver *license.Resolver
	gate     *trial.Gate
	payments *payment.Coordinator

	refreshCfg     refresh.Config
	refreshMetrics *refresh.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPayments enables purchases through c.
func WithPayments(c *payment.Coordinator) ServiceOption {
	return func(s *Service) {
		s.payments = c
	}
}

// WithRefreshConfig sets the refresh interval and timeout of every session.
func WithRefreshConfig(cfg refresh.Config) ServiceOption {
	return func(s *Service) {
		s.refreshCfg = cfg
	}
}

// WithRefreshMetrics records refresh outcomes of every session in m.
func WithRefreshMetrics(m *refresh.Metrics) ServiceOption {
	return func(s *Service) {
		s.refreshMetrics = m
	}
}

// WithLogger sets the logger shared by sessions.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for anonymous trial records.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service. Panics if a required dependency is nil.
func NewService(records license.Store, resolver *license.Resolver, gate *trial.Gate, opts ...ServiceOption) *Service {
	if records == nil {
		panic("entitlement: license store is required")
	}
	if resolver == nil {
		panic("entitlement: resolver is required")
	}
	if gate == nil {
		panic("entitlement: trial gate is required")
	}

	s := &Service{
		records:    records,
		resolver:   resolver,
		gate:       gate,
		refreshCfg: refresh.DefaultConfig(),
		logger:     logger.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the plan table entitlements are resolved against.
func (s *Service) Catalog() *license.Catalog {
	return s.resolver.Catalog()
}

// Payments returns the payment coordinator, or nil when payments are disabled.
func (s *Service) Payments() *payment.Coordinator {
	return s.payments
}

// NewSession creates a stopped session for id.
func (s *Service) NewSession(id identity.Identity) *Session {
	sess := &Session{
		svc:  s,
		id:   id,
		anon: license.NewMemoryStore(),
	}
	sess.logger = s.logger.With(logger.Component("entitlement"))
	sess.sched = refresh.NewScheduler(sess.fetch,
		refresh.WithConfig(s.refreshCfg),
		refresh.WithMetrics(s.refreshMetrics),
		refresh.WithLogger(sess.logger),
	)
	return sess
}
