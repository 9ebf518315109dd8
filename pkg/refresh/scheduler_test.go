package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/refresh"
)

var (
	monthly = license.Entitlement{LicenseType: license.TypeMonthly, Valid: true, VehicleLimit: 3}
	annual  = license.Entitlement{LicenseType: license.TypeAnnual, Valid: true, VehicleLimit: license.Unlimited}
)

// gatedFetch blocks its first call until release is closed.
type gatedFetch struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	first   license.Entitlement
	later   license.Entitlement
}

func newGatedFetch(first, later license.Entitlement) *gatedFetch {
	return &gatedFetch{
		started: make(chan struct{}),
		release: make(chan struct{}),
		first:   first,
		later:   later,
	}
}

func (g *gatedFetch) fetch(ctx context.Context) (license.Entitlement, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
		return g.first, nil
	}
	return g.later, nil
}

func TestSchedulerRefresh(t *testing.T) {
	t.Parallel()

	t.Run("applies the fetched entitlement", func(t *testing.T) {
		t.Parallel()

		s := refresh.NewScheduler(func(context.Context) (license.Entitlement, error) {
			return monthly, nil
		})

		_, ok := s.Current()
		assert.False(t, ok)

		ent, err := s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, monthly, ent)

		cur, ok := s.Current()
		require.True(t, ok)
		assert.Equal(t, monthly, cur)
		assert.Equal(t, uint64(1), s.State().Seq())
	})

	t.Run("fetch error keeps previous state", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		var fail atomic.Bool
		s := refresh.NewScheduler(func(context.Context) (license.Entitlement, error) {
			if fail.Load() {
				return license.Entitlement{}, boom
			}
			return monthly, nil
		})

		_, err := s.Refresh(context.Background())
		require.NoError(t, err)

		fail.Store(true)
		_, err = s.Refresh(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, refresh.ErrFetchFailed)
		assert.ErrorIs(t, err, boom)

		cur, ok := s.Current()
		require.True(t, ok)
		assert.Equal(t, monthly, cur)
	})

	t.Run("fetch runs with the configured timeout", func(t *testing.T) {
		t.Parallel()

		s := refresh.NewScheduler(func(ctx context.Context) (license.Entitlement, error) {
			<-ctx.Done()
			return license.Entitlement{}, ctx.Err()
		}, refresh.WithConfig(refresh.Config{Timeout: 20 * time.Millisecond}))

		_, err := s.Refresh(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("concurrent callers share one fetch", func(t *testing.T) {
		t.Parallel()

		g := newGatedFetch(monthly, annual)
		s := refresh.NewScheduler(g.fetch)

		const callers = 6
		results := make([]license.Entitlement, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ent, err := s.Refresh(context.Background())
				assert.NoError(t, err)
				results[i] = ent
			}()
		}

		<-g.started
		time.Sleep(50 * time.Millisecond)
		close(g.release)
		wg.Wait()

		assert.Equal(t, int32(1), g.calls.Load())
		for _, ent := range results {
			assert.Equal(t, monthly, ent)
		}
	})

	t.Run("outdated result is discarded", func(t *testing.T) {
		t.Parallel()

		g := newGatedFetch(monthly, annual)
		s := refresh.NewScheduler(g.fetch)

		slow := s.RefreshAsync(context.Background())
		<-g.started

		s.Invalidate()
		fresh, err := s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, annual, fresh)

		close(g.release)
		got, err := slow.Await()
		require.NoError(t, err)
		assert.Equal(t, annual, got)

		cur, _ := s.Current()
		assert.Equal(t, annual, cur)
		assert.Equal(t, uint64(2), s.State().Seq())
	})

	t.Run("sign-out drops in-flight result", func(t *testing.T) {
		t.Parallel()

		g := newGatedFetch(monthly, annual)
		s := refresh.NewScheduler(g.fetch)

		pending := s.RefreshAsync(context.Background())
		<-g.started

		s.SignOut()
		assert.Equal(t, uint64(1), s.Epoch())

		close(g.release)
		_, err := pending.Await()
		assert.ErrorIs(t, err, refresh.ErrSignedOut)

		_, ok := s.Current()
		assert.False(t, ok)

		ent, err := s.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, annual, ent)
	})

	t.Run("caller context cancellation does not cancel the fetch", func(t *testing.T) {
		t.Parallel()

		g := newGatedFetch(monthly, annual)
		s := refresh.NewScheduler(g.fetch)

		ctx, cancel := context.WithCancel(context.Background())
		res := s.RefreshAsync(ctx)
		<-g.started
		cancel()

		_, err := res.Await()
		assert.ErrorIs(t, err, context.Canceled)

		close(g.release)
		require.Eventually(t, func() bool {
			cur, ok := s.Current()
			return ok && cur == monthly
		}, time.Second, 5*time.Millisecond)
	})
}

func TestSchedulerLoop(t *testing.T) {
	t.Parallel()

	t.Run("refreshes on interval until stopped", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		s := refresh.NewScheduler(func(context.Context) (license.Entitlement, error) {
			calls.Add(1)
			return monthly, nil
		}, refresh.WithConfig(refresh.Config{Interval: 10 * time.Millisecond}))

		require.NoError(t, s.Start(context.Background()))
		assert.ErrorIs(t, s.Start(context.Background()), refresh.ErrAlreadyStarted)

		require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

		require.NoError(t, s.Stop())
		assert.ErrorIs(t, s.Stop(), refresh.ErrNotStarted)

		time.Sleep(20 * time.Millisecond)
		after := calls.Load()
		time.Sleep(40 * time.Millisecond)
		assert.Equal(t, after, calls.Load())
	})

	t.Run("trigger refreshes a running scheduler", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		s := refresh.NewScheduler(func(context.Context) (license.Entitlement, error) {
			calls.Add(1)
			return monthly, nil
		}, refresh.WithConfig(refresh.Config{Interval: time.Hour}))

		require.NoError(t, s.Start(context.Background()))
		t.Cleanup(func() { _ = s.Stop() })

		require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

		s.Trigger()
		require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	})

	t.Run("trigger refreshes a stopped scheduler", func(t *testing.T) {
		t.Parallel()

		s := refresh.NewScheduler(func(context.Context) (license.Entitlement, error) {
			return annual, nil
		})

		s.Trigger()
		require.Eventually(t, func() bool {
			cur, ok := s.Current()
			return ok && cur == annual
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("run stops with the context", func(t *testing.T) {
		t.Parallel()

		s := refresh.NewScheduler(func(context.Context) (license.Entitlement, error) {
			return monthly, nil
		}, refresh.WithConfig(refresh.Config{Interval: time.Hour}))

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- s.Run(ctx)() }()

		require.Eventually(t, func() bool {
			_, ok := s.Current()
			return ok
		}, time.Second, 5*time.Millisecond)

		cancel()
		select {
		case err := <-errCh:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("scheduler did not stop")
		}
	})
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := refresh.NewMetrics(reg)

	s := refresh.NewScheduler(func(context.Context) (license.Entitlement, error) {
		return monthly, nil
	}, refresh.WithMetrics(m))

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "licensekit_refresh_refreshes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSchedulerPanicsWithoutFetch(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { refresh.NewScheduler(nil) })
}
