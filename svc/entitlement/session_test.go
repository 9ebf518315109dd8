package entitlement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/trial"
	"github.com/dmitrymomot/licensekit/svc/entitlement"
)

// stubProvider approves every order it creates.
type stubProvider struct {
	mu     sync.Mutex
	orders map[string]payment.OrderRequest
	next   int
}

func newStubProvider() *stubProvider {
	return &stubProvider{orders: make(map[string]payment.OrderRequest)}
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) CreateOrder(_ context.Context, req payment.OrderRequest) (*payment.ProviderOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := "O" + string(rune('0'+p.next))
	p.orders[id] = req
	return &payment.ProviderOrder{OrderID: id, ApprovalURL: "https://pay.example/" + id}, nil
}

func (p *stubProvider) CaptureOrder(_ context.Context, orderID string) (*payment.Capture, error) {
	return &payment.Capture{
		OrderID:   orderID,
		CaptureID: "C-" + orderID,
		PayerID:   "P1",
		Status:    payment.CaptureCompleted,
	}, nil
}

// slowStore widens the window between the quota check and the write.
type slowStore struct {
	*license.MemoryStore
	delay time.Duration
}

func (s *slowStore) IncrementUsage(ctx context.Context, id uuid.UUID, action license.Action, delta, limit int64) (int64, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.IncrementUsage(ctx, id, action, delta, limit)
}

type harness struct {
	records *license.MemoryStore
	svc     *entitlement.Service
}

func newHarness(t *testing.T, withPayments bool) *harness {
	t.Helper()

	catalog := license.DefaultCatalog()
	records := license.NewMemoryStore()
	opts := []entitlement.ServiceOption{}
	if withPayments {
		coord := payment.NewCoordinator(newStubProvider(), payment.NewMemoryStore(), records, catalog)
		opts = append(opts, entitlement.WithPayments(coord))
	}

	return &harness{
		records: records,
		svc:     entitlement.NewService(records, license.NewResolver(catalog), trial.NewGate(records, catalog), opts...),
	}
}

func user(id string) identity.Identity {
	return identity.Identity{UserID: id, Email: id + "@example.com", Authenticated: true}
}

func (h *harness) issue(t *testing.T, userID string, typ license.Type) license.Record {
	t.Helper()
	plan, ok := license.DefaultCatalog().Plan(typ)
	require.True(t, ok)
	rec, err := h.records.Issue(context.Background(), license.NewRecord(userID, plan, "", time.Now()))
	require.NoError(t, err)
	return rec
}

func TestSessionPurchase(t *testing.T) {
	t.Parallel()

	t.Run("monthly purchase end to end", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, true)
		sess := h.svc.NewSession(user("u1"))
		ctx := context.Background()

		ent, err := sess.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.False(t, ent.Valid)

		checkout, err := sess.StartPurchase(ctx, license.TypeMonthly, license.MustParseMoney("29.95", "USD"))
		require.NoError(t, err)
		assert.Equal(t, "O1", checkout.OrderID)

		res, err := sess.HandleReturn(ctx, payment.ReturnParams{Token: checkout.OrderID, PayerID: "P1"})
		require.NoError(t, err)
		assert.Equal(t, payment.StateLicenseIssued, res.State)

		ent = sess.Entitlement()
		assert.True(t, ent.Valid)
		assert.Equal(t, license.TypeMonthly, ent.LicenseType)
		assert.Equal(t, int64(4), ent.VehicleLimit)
		assert.Equal(t, res.LicenseID, ent.LicenseID)
		require.NotNil(t, ent.ExpiresAt)
		assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *ent.ExpiresAt, time.Minute)
	})

	t.Run("complete purchase replays issued order", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, true)
		sess := h.svc.NewSession(user("u1"))
		ctx := context.Background()

		checkout, err := sess.StartPurchase(ctx, license.TypeAnnual, license.MustParseMoney("199.95", "USD"))
		require.NoError(t, err)

		first, err := sess.CompletePurchase(ctx, checkout.OrderID)
		require.NoError(t, err)
		second, err := sess.CompletePurchase(ctx, checkout.OrderID)
		require.NoError(t, err)

		assert.False(t, first.Replayed)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.LicenseID, second.LicenseID)
		assert.Equal(t, license.TypeAnnual, sess.Entitlement().LicenseType)
	})

	t.Run("anonymous caller cannot complete purchase", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, true)
		sess := h.svc.NewSession(identity.Anonymous())

		_, err := sess.CompletePurchase(context.Background(), "O1")
		assert.ErrorIs(t, err, payment.ErrAuthorization)
		assert.ErrorIs(t, err, payment.ErrAuthenticationRequired)
	})

	t.Run("payments disabled", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		sess := h.svc.NewSession(user("u1"))
		ctx := context.Background()

		_, err := sess.StartPurchase(ctx, license.TypeMonthly, license.MustParseMoney("29.95", "USD"))
		assert.ErrorIs(t, err, entitlement.ErrPaymentsDisabled)
		_, err = sess.CompletePurchase(ctx, "O1")
		assert.ErrorIs(t, err, entitlement.ErrPaymentsDisabled)
		assert.ErrorIs(t, sess.CancelPurchase(ctx, "O1"), entitlement.ErrPaymentsDisabled)
	})
}

func TestSessionFreeTrial(t *testing.T) {
	t.Parallel()

	t.Run("anonymous trial lives in the session", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		sess := h.svc.NewSession(identity.Anonymous())
		flag := trial.NewMemoryFlag(false)
		ctx := context.Background()

		ok, err := sess.CanUseFreeTrial(ctx, flag)
		require.NoError(t, err)
		assert.True(t, ok)

		ent, err := sess.ConsumeFreeTrial(ctx, flag)
		require.NoError(t, err)
		assert.True(t, ent.Valid)
		assert.Equal(t, license.TypeFreeTrial, ent.LicenseType)

		ok, err = sess.CanUseFreeTrial(ctx, flag)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = sess.ConsumeFreeTrial(ctx, flag)
		assert.ErrorIs(t, err, trial.ErrTrialAlreadyUsed)

		other := h.svc.NewSession(identity.Anonymous())
		ent, err = other.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.False(t, ent.Valid)
	})

	t.Run("anonymous trial is restored from the flag", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		flag := trial.NewMemoryFlag(false)
		ctx := context.Background()

		_, err := h.svc.NewSession(identity.Anonymous()).ConsumeFreeTrial(ctx, flag)
		require.NoError(t, err)

		next := h.svc.NewSession(identity.Anonymous())
		require.NoError(t, next.RestoreFreeTrial(ctx, flag))
		require.NoError(t, next.RestoreFreeTrial(ctx, flag))
		ent, err := next.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.True(t, ent.Valid)
		assert.Equal(t, license.TypeFreeTrial, ent.LicenseType)

		plain := h.svc.NewSession(identity.Anonymous())
		require.NoError(t, plain.RestoreFreeTrial(ctx, trial.NewMemoryFlag(true)))
		ent, err = plain.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.False(t, ent.Valid)

		account := h.svc.NewSession(user("u1"))
		require.NoError(t, account.RestoreFreeTrial(ctx, flag))
		ent, err = account.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.False(t, ent.Valid)
	})

	t.Run("authenticated trial is persisted", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		sess := h.svc.NewSession(user("u1"))
		ctx := context.Background()

		ent, err := sess.ConsumeFreeTrial(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, license.TypeFreeTrial, ent.LicenseType)

		has, err := h.records.HasType(ctx, "u1", license.TypeFreeTrial)
		require.NoError(t, err)
		assert.True(t, has)

		ok, err := h.svc.NewSession(user("u1")).CanUseFreeTrial(ctx, trial.NewMemoryFlag(false))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("paid user keeps the paid plan", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		h.issue(t, "u1", license.TypeMonthly)
		sess := h.svc.NewSession(user("u1"))
		ctx := context.Background()

		_, err := sess.ConsumeFreeTrial(ctx, nil)
		assert.ErrorIs(t, err, trial.ErrPaidLicenseActive)

		ent, err := sess.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.Equal(t, license.TypeMonthly, ent.LicenseType)
		assert.Equal(t, int64(4), ent.VehicleLimit)
	})
}

func TestSessionLogin(t *testing.T) {
	t.Parallel()

	t.Run("fresh account overrides used local flag", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		sess := h.svc.NewSession(identity.Anonymous())
		flag := trial.NewMemoryFlag(false)
		ctx := context.Background()

		_, err := sess.ConsumeFreeTrial(ctx, flag)
		require.NoError(t, err)

		ent, canTrial, err := sess.Login(ctx, user("u1"), flag)
		require.NoError(t, err)
		assert.True(t, canTrial)
		assert.False(t, ent.Valid)
		assert.Equal(t, uint64(1), sess.Epoch())
		assert.Equal(t, "u1", sess.Identity().UserID)

		used, err := flag.Used(ctx)
		require.NoError(t, err)
		assert.False(t, used)
	})

	t.Run("account that used its trial overrides unused local flag", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		h.issue(t, "u1", license.TypeFreeTrial)
		flag := trial.NewMemoryFlag(false)

		sess := h.svc.NewSession(identity.Anonymous())
		ent, canTrial, err := sess.Login(context.Background(), user("u1"), flag)
		require.NoError(t, err)
		assert.False(t, canTrial)
		assert.Equal(t, license.TypeFreeTrial, ent.LicenseType)

		ok, err := sess.CanUseFreeTrial(context.Background(), trial.NewMemoryFlag(false))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("requires authenticated identity", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		sess := h.svc.NewSession(identity.Anonymous())

		_, _, err := sess.Login(context.Background(), identity.Anonymous(), nil)
		assert.ErrorIs(t, err, entitlement.ErrNotAuthenticated)
		assert.Equal(t, uint64(0), sess.Epoch())
	})

	t.Run("sign out clears entitlement", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		h.issue(t, "u1", license.TypeAnnual)
		sess := h.svc.NewSession(user("u1"))

		ent, err := sess.RefreshEntitlement(context.Background())
		require.NoError(t, err)
		assert.True(t, ent.Valid)

		sess.SignOut()

		_, ok := sess.Current()
		assert.False(t, ok)
		assert.Equal(t, license.None(), sess.Entitlement())
		assert.False(t, sess.Identity().Valid())
	})
}

func TestSessionUsage(t *testing.T) {
	t.Parallel()

	t.Run("records usage until the limit", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		h.issue(t, "u1", license.TypeFreeTrial)
		sess := h.svc.NewSession(user("u1"))
		ctx := context.Background()

		_, err := sess.RefreshEntitlement(ctx)
		require.NoError(t, err)
		assert.True(t, sess.Check(license.ActionVehicle).Allowed)

		n, err := sess.RecordUsage(ctx, license.ActionVehicle, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		assert.Equal(t, int64(1), sess.Entitlement().Usage.Vehicles)

		d := sess.Check(license.ActionVehicle)
		assert.False(t, d.Allowed)
		assert.Equal(t, license.ReasonLimitReached, d.Reason)

		_, err = sess.RecordUsage(ctx, license.ActionVehicle, 1)
		assert.ErrorIs(t, err, license.ErrLimitReached)
	})

	t.Run("can perform uses the given usage", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		h.issue(t, "u1", license.TypeMonthly)
		sess := h.svc.NewSession(user("u1"))

		_, err := sess.RefreshEntitlement(context.Background())
		require.NoError(t, err)

		assert.True(t, sess.CanPerform(license.ActionVehicle, license.Usage{Vehicles: 3}).Allowed)
		assert.False(t, sess.CanPerform(license.ActionVehicle, license.Usage{Vehicles: 4}).Allowed)
		assert.True(t, sess.CanPerform(license.ActionAnalysis, license.Usage{Analyses: 1000}).Allowed)
	})

	t.Run("no license", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		sess := h.svc.NewSession(user("u1"))

		_, err := sess.RecordUsage(context.Background(), license.ActionVehicle, 1)
		assert.ErrorIs(t, err, license.ErrNoLicense)
	})

	t.Run("concurrent usage stays within the limit", func(t *testing.T) {
		t.Parallel()

		catalog := license.DefaultCatalog()
		records := license.NewMemoryStore()
		slow := &slowStore{MemoryStore: records, delay: 20 * time.Millisecond}
		svc := entitlement.NewService(slow, license.NewResolver(catalog), trial.NewGate(slow, catalog))

		plan, _ := catalog.Plan(license.TypeMonthly)
		rec, err := records.Issue(context.Background(), license.NewRecord("u1", plan, "O1", time.Now()))
		require.NoError(t, err)

		sess := svc.NewSession(user("u1"))
		_, err = sess.RefreshEntitlement(context.Background())
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int64
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := sess.RecordUsage(context.Background(), license.ActionVehicle, 1)
				if err == nil {
					mu.Lock()
					granted++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, license.ErrLimitReached)
			}()
		}
		wg.Wait()

		assert.Equal(t, plan.VehicleLimit, granted)
		stored, err := records.ListByUser(context.Background(), "u1")
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, rec.ID, stored[0].ID)
		assert.Equal(t, plan.VehicleLimit, stored[0].VehiclesCreated)
	})

	t.Run("non-positive deltas are rejected", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		h.issue(t, "u1", license.TypeMonthly)
		sess := h.svc.NewSession(user("u1"))
		ctx := context.Background()

		_, err := sess.RefreshEntitlement(ctx)
		require.NoError(t, err)
		_, err = sess.RecordUsage(ctx, license.ActionVehicle, 2)
		require.NoError(t, err)

		for _, delta := range []int64{0, -100} {
			_, err = sess.RecordUsage(ctx, license.ActionVehicle, delta)
			assert.ErrorIs(t, err, license.ErrInvalidDelta)
		}
		assert.Equal(t, int64(2), sess.Entitlement().Usage.Vehicles)
	})

	t.Run("admin records nothing", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, false)
		admin := user("root")
		admin.Admin = true
		sess := h.svc.NewSession(admin)

		ent, err := sess.RefreshEntitlement(context.Background())
		require.NoError(t, err)
		assert.True(t, ent.Valid)
		assert.Equal(t, uuid.Nil, ent.LicenseID)

		n, err := sess.RecordUsage(context.Background(), license.ActionVehicle, 1)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestNewServicePanics(t *testing.T) {
	t.Parallel()

	catalog := license.DefaultCatalog()
	records := license.NewMemoryStore()

	assert.Panics(t, func() {
		entitlement.NewService(nil, license.NewResolver(catalog), trial.NewGate(records, catalog))
	})
	assert.Panics(t, func() {
		entitlement.NewService(records, nil, trial.NewGate(records, catalog))
	})
	assert.Panics(t, func() {
		entitlement.NewService(records, license.NewResolver(catalog), nil)
	})
}
