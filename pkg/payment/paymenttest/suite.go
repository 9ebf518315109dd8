// Package paymenttest holds the behaviour every payment.Store must show.
package paymenttest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/payment"
)

// RunStoreSuite exercises the store returned by newStore, which must be
// empty on every call.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) payment.Store) {
	t.Helper()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	price := license.MustParseMoney("29.95", "USD")

	order := func(id, user string, state payment.State, created time.Time) payment.Order {
		return payment.Order{
			ID:        id,
			Provider:  "test",
			UserID:    user,
			PlanType:  license.TypeMonthly,
			Amount:    price,
			State:     state,
			CreatedAt: created,
			UpdatedAt: created,
		}
	}

	t.Run("save and get order", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		want := order("O1", "u1", payment.StateAwaitingApproval, base)
		want.ApprovalURL = "https://pay.example/O1"
		require.NoError(t, store.SaveOrder(ctx, want))

		got, err := store.GetOrder(ctx, "O1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.State, got.State)
		assert.Equal(t, want.Amount, got.Amount)
		assert.Equal(t, want.ApprovalURL, got.ApprovalURL)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))

		want.State = payment.StateCaptured
		want.CaptureAttempts = 1
		require.NoError(t, store.SaveOrder(ctx, want))
		got, err = store.GetOrder(ctx, "O1")
		require.NoError(t, err)
		assert.Equal(t, payment.StateCaptured, got.State)
		assert.Equal(t, 1, got.CaptureAttempts)
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := newStore(t).GetOrder(context.Background(), "nope")
		assert.ErrorIs(t, err, payment.ErrOrderNotFound)
	})

	t.Run("list filters and orders by creation", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		for i, s := range []payment.State{
			payment.StateAwaitingApproval,
			payment.StateLicenseIssued,
			payment.StateAwaitingApproval,
			payment.StateAwaitingApproval,
		} {
			o := order(fmt.Sprintf("L%d", i), "u1", s, base.Add(time.Duration(i)*time.Hour))
			if i == 3 {
				o.UserID = "u2"
			}
			require.NoError(t, store.SaveOrder(ctx, o))
		}

		all, err := store.ListOrders(ctx, payment.OrderFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "L0", all[0].ID)
		assert.Equal(t, "L3", all[3].ID)

		awaiting, err := store.ListOrders(ctx, payment.OrderFilter{
			States:        []payment.State{payment.StateAwaitingApproval},
			CreatedBefore: base.Add(3 * time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, awaiting, 2)
		assert.Equal(t, "L0", awaiting[0].ID)
		assert.Equal(t, "L2", awaiting[1].ID)

		mine, err := store.ListOrders(ctx, payment.OrderFilter{UserID: "u2"})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "L3", mine[0].ID)

		limited, err := store.ListOrders(ctx, payment.OrderFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("pending payments", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		p := payment.PendingPayment{OrderID: "P1", PlanType: license.TypeAnnual, UserID: "u1", Amount: price, CreatedAt: base}
		require.NoError(t, store.SavePending(ctx, p))

		got, err := store.GetPending(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, license.TypeAnnual, got.PlanType)
		assert.Equal(t, "u1", got.UserID)

		require.NoError(t, store.DeletePending(ctx, "P1"))
		_, err = store.GetPending(ctx, "P1")
		assert.ErrorIs(t, err, payment.ErrPendingNotFound)

		assert.NoError(t, store.DeletePending(ctx, "P1"))
	})
}
