// Package licensetest holds the behaviour every license.Store must show.
package licensetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/license"
)

// RunStoreSuite exercises store against the license.Store contract.
// newStore must return an empty store for every call.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) license.Store) {
	t.Helper()
	catalog := license.DefaultCatalog()
	monthly, _ := catalog.Plan(license.TypeMonthly)
	annual, _ := catalog.Plan(license.TypeAnnual)
	trial, _ := catalog.Plan(license.TypeFreeTrial)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("issue supersedes prior active records", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		first, err := store.Issue(ctx, license.NewRecord("u1", monthly, "O1", base))
		require.NoError(t, err)
		second, err := store.Issue(ctx, license.NewRecord("u1", annual, "O2", base.Add(time.Hour)))
		require.NoError(t, err)

		records, err := store.ListByUser(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, second.ID, records[0].ID, "newest first")

		old := records[1]
		assert.Equal(t, first.ID, old.ID)
		assert.Equal(t, license.StatusActive, old.Status, "status left intact")
		require.NotNil(t, old.SupersededBy)
		assert.Equal(t, second.ID, *old.SupersededBy)
		assert.Nil(t, records[0].SupersededBy)

		auth, ok := license.Authoritative(records)
		require.True(t, ok)
		assert.Equal(t, license.TypeAnnual, auth.Type)
	})

	t.Run("issue is idempotent per order", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		a, err := store.Issue(ctx, license.NewRecord("u2", monthly, "O-dup", base))
		require.NoError(t, err)
		b, err := store.Issue(ctx, license.NewRecord("u2", monthly, "O-dup", base.Add(time.Minute)))
		require.NoError(t, err)
		assert.Equal(t, a.ID, b.ID)

		records, err := store.ListByUser(ctx, "u2")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("concurrent issue for one order creates one record", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.Issue(ctx, license.NewRecord("u3", monthly, "O-race", base))
			}()
		}
		wg.Wait()

		records, err := store.ListByUser(ctx, "u3")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("has type", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		ok, err := store.HasType(ctx, "u4", license.TypeFreeTrial)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = store.Issue(ctx, license.NewRecord("u4", trial, "", base))
		require.NoError(t, err)
		_, err = store.Issue(ctx, license.NewRecord("u4", monthly, "O4", base.Add(time.Hour)))
		require.NoError(t, err)

		ok, err = store.HasType(ctx, "u4", license.TypeFreeTrial)
		require.NoError(t, err)
		assert.True(t, ok, "superseded records still count")
	})

	t.Run("increment usage is atomic", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		rec, err := store.Issue(ctx, license.NewRecord("u5", monthly, "O5", base))
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.IncrementUsage(ctx, rec.ID, license.ActionAnalysis, 1, license.Unlimited)
			}()
		}
		wg.Wait()

		n, err := store.IncrementUsage(ctx, rec.ID, license.ActionVehicle, 2, monthly.VehicleLimit)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		records, err := store.ListByUser(ctx, "u5")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, int64(20), records[0].AnalysesUsed)
		assert.Equal(t, int64(2), records[0].VehiclesCreated)
		assert.Equal(t, int64(0), records[0].SetupsSaved)
	})

	t.Run("increment unknown record", func(t *testing.T) {
		store := newStore(t)
		_, err := store.IncrementUsage(context.Background(), uuid.New(), license.ActionSetup, 1, license.Unlimited)
		assert.ErrorIs(t, err, license.ErrRecordNotFound)

		_, err = store.IncrementUsage(context.Background(), uuid.New(), license.ActionVehicle, 1, 4)
		assert.ErrorIs(t, err, license.ErrRecordNotFound)
	})

	t.Run("increment never passes the limit", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		rec, err := store.Issue(ctx, license.NewRecord("u7", monthly, "O7", base))
		require.NoError(t, err)
		limit := monthly.VehicleLimit

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int64
			refused int64
		)
		for range 3 * limit {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.IncrementUsage(ctx, rec.ID, license.ActionVehicle, 1, limit)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					granted++
				case errors.Is(err, license.ErrLimitReached):
					refused++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, granted)
		assert.Equal(t, 2*limit, refused)

		n, err := store.IncrementUsage(ctx, rec.ID, license.ActionVehicle, 1, limit)
		assert.ErrorIs(t, err, license.ErrLimitReached)
		assert.Equal(t, limit, n)

		records, err := store.ListByUser(ctx, "u7")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, limit, records[0].VehiclesCreated)
	})

	t.Run("increment rejects non-positive deltas", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		rec, err := store.Issue(ctx, license.NewRecord("u8", monthly, "O8", base))
		require.NoError(t, err)
		_, err = store.IncrementUsage(ctx, rec.ID, license.ActionAnalysis, 3, license.Unlimited)
		require.NoError(t, err)

		for _, delta := range []int64{0, -100} {
			_, err = store.IncrementUsage(ctx, rec.ID, license.ActionAnalysis, delta, license.Unlimited)
			assert.ErrorIs(t, err, license.ErrInvalidDelta)
		}

		records, err := store.ListByUser(ctx, "u8")
		require.NoError(t, err)
		assert.Equal(t, int64(3), records[0].AnalysesUsed)
	})

	t.Run("expiry round-trips", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		rec, err := store.Issue(ctx, license.NewRecord("u6", monthly, "O6", base))
		require.NoError(t, err)

		records, err := store.ListByUser(ctx, "u6")
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.NotNil(t, records[0].ExpiresAt)
		assert.True(t, rec.ExpiresAt.Equal(*records[0].ExpiresAt))
		assert.True(t, records[0].ExpiresAt.Equal(base.AddDate(0, 0, 30)))
		assert.Equal(t, "O6", records[0].OrderID)
	})

	t.Run("invalid record rejected", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Issue(context.Background(), license.Record{})
		assert.ErrorIs(t, err, license.ErrInvalidRecord)
	})
}
