package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/licensekit/pkg/cache"
	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/logger"
)

// RegistryConfig bounds the number of live sessions.
type RegistryConfig struct {
	Capacity int           `env:"SESSION_CAPACITY" envDefault:"10000"`
	IdleTTL  time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
}

// Registry keeps one running Session per authenticated user. Sessions that
// stay idle longer than IdleTTL, or that are pushed out by capacity, are
// closed.
type Registry struct {
	svc      *Service
	sessions *cache.LRUCache[string, *Session]
	idleTTL  time.Duration
	baseCtx  context.Context
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	now func() time.Time
}

// WithRegistryClock overrides time.Now for idle expiry.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		o.now = now
	}
}

// NewRegistry creates a registry. Background refreshes of its sessions run
// until ctx is done or the session is evicted. Panics if svc is nil.
func NewRegistry(ctx context.Context, svc *Service, cfg RegistryConfig, opts ...RegistryOption) *Registry {
	if svc == nil {
		panic("entitlement: service is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}

	o := &registryOptions{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	r := &Registry{
		svc:     svc,
		idleTTL: cfg.IdleTTL,
		baseCtx: context.WithoutCancel(ctx),
		logger:  svc.logger.With(logger.Component("entitlement.registry")),
	}
	r.sessions = cache.NewLRUCache(cfg.Capacity,
		cache.WithIdleTTL[string, *Session](cfg.IdleTTL),
		cache.WithClock[string, *Session](o.now),
		cache.WithEvictCallback(r.evicted),
	)
	return r
}

// Session returns the running session of an authenticated id, creating and
// starting it on first use. A kept session always acts for the claims of the
// latest id; a change drops its cached entitlement. Anonymous callers get a
// fresh, stopped session that is not kept.
func (r *Registry) Session(id identity.Identity) *Session {
	if !id.Valid() {
		return r.svc.NewSession(id)
	}

	sess, _ := r.sessions.GetOrCreate(id.UserID, func() *Session {
		s := r.svc.NewSession(id)
		if err := s.Start(r.baseCtx); err != nil {
			r.logger.Error("failed to start session refresh",
				logger.UserID(id.UserID),
				logger.Error(err),
			)
		}
		return s
	})
	if sess.adopt(id) {
		r.logger.Info("session claims changed",
			logger.UserID(id.UserID),
			slog.Bool("admin", id.Admin),
		)
		sess.sched.Trigger()
	}
	return sess
}

// SignOut signs the user's session out and removes it.
func (r *Registry) SignOut(userID string) bool {
	_, ok := r.sessions.Remove(userID)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Run evicts idle sessions until ctx is done and then closes every session.
func (r *Registry) Run(ctx context.Context) func() error {
	return func() error {
		defer r.sessions.Clear()

		if r.idleTTL <= 0 {
			<-ctx.Done()
			return nil
		}

		ticker := time.NewTicker(r.idleTTL / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := r.sessions.PurgeIdle(); n > 0 {
					r.logger.DebugContext(ctx, "evicted idle sessions", slog.Int("count", n))
				}
			}
		}
	}
}

func (r *Registry) evicted(userID string, s *Session, reason cache.EvictReason) {
	if reason == cache.EvictRemoved {
		s.SignOut()
	}
	if err := s.Close(); err != nil {
		r.logger.Warn("failed to close session", logger.UserID(userID), logger.Error(err))
	}
}
