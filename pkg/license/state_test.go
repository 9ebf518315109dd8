package license_test

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/license"
)

func entitlementN(n int64) license.Entitlement {
	return license.Entitlement{LicenseType: license.TypeMonthly, Valid: true, VehicleLimit: n}
}

func TestStateStore(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		s := license.NewStateStore()
		_, ok := s.Get()
		assert.False(t, ok)
		assert.Zero(t, s.Seq())
	})

	t.Run("older sequence is discarded", func(t *testing.T) {
		t.Parallel()
		s := license.NewStateStore()

		assert.True(t, s.Set(2, entitlementN(2)))
		assert.False(t, s.Set(1, entitlementN(1)))

		got, ok := s.Get()
		require.True(t, ok)
		assert.Equal(t, int64(2), got.VehicleLimit)
		assert.Equal(t, uint64(2), s.Seq())
	})

	t.Run("clear drops state and keeps high-water mark", func(t *testing.T) {
		t.Parallel()
		s := license.NewStateStore()
		s.Set(5, entitlementN(5))

		s.Clear()
		_, ok := s.Get()
		assert.False(t, ok)

		assert.False(t, s.Set(4, entitlementN(4)), "stale update after clear")
		assert.True(t, s.Set(6, entitlementN(6)))
	})

	t.Run("out of order arrival keeps highest sequence", func(t *testing.T) {
		t.Parallel()
		s := license.NewStateStore()

		seqs := make([]uint64, 200)
		for i := range seqs {
			seqs[i] = uint64(i + 1)
		}
		rand.Shuffle(len(seqs), func(i, j int) { seqs[i], seqs[j] = seqs[j], seqs[i] })

		var wg sync.WaitGroup
		for _, seq := range seqs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.Set(seq, entitlementN(int64(seq)))
			}()
		}
		wg.Wait()

		got, ok := s.Get()
		require.True(t, ok)
		assert.Equal(t, int64(200), got.VehicleLimit)
		assert.Equal(t, uint64(200), s.Seq())
	})
}
