package entitlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/svc/entitlement"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("one session per user", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		h.issue(t, "u1", license.TypeMonthly)
		r := entitlement.NewRegistry(context.Background(), h.svc, entitlement.RegistryConfig{Capacity: 10})
		t.Cleanup(func() { r.SignOut("u1") })

		a := r.Session(user("u1"))
		b := r.Session(user("u1"))
		assert.Same(t, a, b)
		assert.Equal(t, 1, r.Len())

		require.Eventually(t, func() bool {
			ent, ok := a.Current()
			return ok && ent.LicenseType == license.TypeMonthly
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("latest claims replace the cached ones", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		r := entitlement.NewRegistry(context.Background(), h.svc, entitlement.RegistryConfig{Capacity: 10})
		t.Cleanup(func() { r.SignOut("u1") })
		ctx := context.Background()

		admin := user("u1")
		admin.Admin = true
		sess := r.Session(admin)
		ent, err := sess.RefreshEntitlement(ctx)
		require.NoError(t, err)
		require.True(t, ent.Valid)

		demoted := r.Session(user("u1"))
		assert.Same(t, sess, demoted)
		assert.False(t, demoted.Identity().Admin)

		cached, _ := demoted.Current()
		assert.False(t, cached.Valid, "cached admin entitlement must be dropped")

		ent, err = demoted.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.False(t, ent.Valid)
		assert.Equal(t, license.ReasonNoLicense, demoted.Check(license.ActionVehicle).Reason)

		before := demoted.Epoch()
		r.Session(user("u1"))
		assert.Equal(t, before, demoted.Epoch(), "same claims keep the session as is")
	})

	t.Run("anonymous sessions are not kept", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		r := entitlement.NewRegistry(context.Background(), h.svc, entitlement.RegistryConfig{Capacity: 10})

		a := r.Session(identity.Anonymous())
		b := r.Session(identity.Anonymous())
		assert.NotSame(t, a, b)
		assert.Zero(t, r.Len())
	})

	t.Run("sign out removes the session", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		r := entitlement.NewRegistry(context.Background(), h.svc, entitlement.RegistryConfig{Capacity: 10})

		sess := r.Session(user("u1"))
		assert.True(t, r.SignOut("u1"))
		assert.False(t, r.SignOut("u1"))

		assert.Zero(t, r.Len())
		assert.False(t, sess.Identity().Valid())
		assert.NotSame(t, sess, r.Session(user("u1")))
		r.SignOut("u1")
	})

	t.Run("capacity evicts least recently used", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		r := entitlement.NewRegistry(context.Background(), h.svc, entitlement.RegistryConfig{Capacity: 1})

		first := r.Session(user("u1"))
		r.Session(user("u2"))
		t.Cleanup(func() { r.SignOut("u2") })

		assert.Equal(t, 1, r.Len())
		// Capacity eviction stops the session without signing it out.
		assert.True(t, first.Identity().Valid())
		assert.NoError(t, first.Close())

		t.Cleanup(func() { r.SignOut("u1") })
		assert.NotSame(t, first, r.Session(user("u1")))
	})

	t.Run("idle sessions are replaced", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		clock := &fakeClock{now: time.Now()}
		r := entitlement.NewRegistry(context.Background(), h.svc,
			entitlement.RegistryConfig{Capacity: 10, IdleTTL: time.Minute},
			entitlement.WithRegistryClock(clock.Now),
		)
		t.Cleanup(func() { r.SignOut("u1") })

		first := r.Session(user("u1"))
		clock.Advance(2 * time.Minute)
		second := r.Session(user("u1"))

		assert.NotSame(t, first, second)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("run closes every session on shutdown", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		r := entitlement.NewRegistry(context.Background(), h.svc,
			entitlement.RegistryConfig{Capacity: 10, IdleTTL: time.Hour})

		r.Session(user("u1"))
		r.Session(user("u2"))
		require.Equal(t, 2, r.Len())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx)() }()

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("registry did not stop")
		}
		assert.Zero(t, r.Len())
	})
}
