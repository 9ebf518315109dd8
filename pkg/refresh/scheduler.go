package refresh

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/licensekit/pkg/async"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/logger"
)

// FetchFunc loads the current entitlement from the source of truth.
type FetchFunc func(ctx context.Context) (license.Entitlement, error)

// Scheduler refreshes one entitlement state.
type Scheduler struct {
	fetch   FetchFunc
	state   *license.StateStore
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics

	group singleflight.Group
	seq   atomic.Uint64
	epoch atomic.Uint64
	gen   atomic.Uint64

	// applyMu orders applying a result against SignOut.
	applyMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConfig sets the interval and fetch timeout. Zero values keep the defaults.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		if cfg.Interval > 0 {
			s.cfg.Interval = cfg.Interval
		}
		if cfg.Timeout > 0 {
			s.cfg.Timeout = cfg.Timeout
		}
	}
}

// WithStateStore makes the scheduler apply results to state.
func WithStateStore(state *license.StateStore) Option {
	return func(s *Scheduler) {
		if state != nil {
			s.state = state
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records refresh outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates a stopped scheduler. Panics if fetch is nil.
func NewScheduler(fetch FetchFunc, opts ...Option) *Scheduler {
	if fetch == nil {
		panic("refresh: fetch func is required")
	}

	s := &Scheduler{
		fetch:   fetch,
		state:   license.NewStateStore(),
		cfg:     DefaultConfig(),
		logger:  logger.Discard(),
		trigger: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh fetches the entitlement and applies it. Callers arriving while a
// fetch is in flight share its result.
//
// When a newer fetch was applied first, Refresh returns the current
// entitlement instead of its own outdated one. When the session signed out
// after the fetch started, it returns ErrSignedOut and applies nothing.
func (s *Scheduler) Refresh(ctx context.Context) (license.Entitlement, error) {
	epoch := s.epoch.Load()
	key := strconv.FormatUint(epoch, 10) + ":" + strconv.FormatUint(s.gen.Load(), 10)

	ch := s.group.DoChan(key, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), epoch)
	})

	select {
	case <-ctx.Done():
		return license.Entitlement{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return license.Entitlement{}, res.Err
		}
		return res.Val.(license.Entitlement), nil
	}
}

func (s *Scheduler) refresh(ctx context.Context, epoch uint64) (license.Entitlement, error) {
	seq := s.seq.Add(1)
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	ent, err := s.fetch(fetchCtx)
	cancel()
	took := time.Since(start)

	if err != nil {
		s.metrics.observe(outcomeError, took)
		s.logger.WarnContext(ctx, "entitlement refresh failed",
			logger.Seq(seq),
			logger.Duration(took),
			logger.Error(err),
		)
		return license.Entitlement{}, errors.Join(ErrFetchFailed, err)
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if s.epoch.Load() != epoch {
		s.metrics.observe(outcomeSignedOut, took)
		s.logger.DebugContext(ctx, "dropped entitlement fetched before sign-out", logger.Seq(seq))
		return license.Entitlement{}, ErrSignedOut
	}

	if !s.state.Set(seq, ent) {
		s.metrics.observe(outcomeStale, took)
		s.logger.DebugContext(ctx, "discarded outdated entitlement",
			logger.Seq(seq),
			slog.Uint64("applied_seq", s.state.Seq()),
		)
		cur, _ := s.state.Get()
		return cur, nil
	}

	s.metrics.observe(outcomeApplied, took)
	s.logger.DebugContext(ctx, "entitlement refreshed",
		logger.Seq(seq),
		logger.PlanType(string(ent.LicenseType)),
		slog.Bool("valid", ent.Valid),
		logger.Duration(took),
	)
	return ent, nil
}

// RefreshAsync runs Refresh in the background.
func (s *Scheduler) RefreshAsync(ctx context.Context) *async.Future[license.Entitlement] {
	return async.Go(ctx, s.Refresh)
}

// Invalidate makes the next Refresh start a new fetch instead of joining
// one already in flight. Call it after changing what the fetch reads.
func (s *Scheduler) Invalidate() {
	s.gen.Add(1)
}

// Current returns the last applied entitlement without blocking.
func (s *Scheduler) Current() (license.Entitlement, bool) {
	return s.state.Get()
}

// State returns the store results are applied to.
func (s *Scheduler) State() *license.StateStore {
	return s.state
}

// Epoch returns the number of sign-outs so far.
func (s *Scheduler) Epoch() uint64 {
	return s.epoch.Load()
}

// SignOut clears the state and drops every fetch started before the call.
func (s *Scheduler) SignOut() {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.epoch.Add(1)
	s.state.Clear()
}

// Trigger asks for a fresh refresh without waiting for it. A running
// scheduler picks it up from its loop; otherwise a background refresh starts.
func (s *Scheduler) Trigger() {
	s.Invalidate()

	s.mu.Lock()
	running := s.cancel != nil
	s.mu.Unlock()

	if !running {
		s.RefreshAsync(context.Background())
		return
	}

	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start refreshes once and then on every interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	s.logger.DebugContext(ctx, "refresh scheduler started", slog.Duration("interval", s.cfg.Interval))
	return nil
}

// Stop ends the refresh loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Run starts the scheduler and returns a function suitable for errgroup.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		if err := s.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return s.Stop()
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.DebugContext(ctx, "refresh scheduler shutting down")
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-s.trigger:
			s.tick(ctx)
		}
	}
}

// tick runs one refresh from the loop. Failures are already logged.
func (s *Scheduler) tick(ctx context.Context) {
	_, _ = s.Refresh(ctx)
}
