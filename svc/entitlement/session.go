package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/licensekit/pkg/async"
	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/logger"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/refresh"
	"github.com/dmitrymomot/licensekit/pkg/trial"
)

// anonymousOwner owns the free-trial record of an anonymous session.
const anonymousOwner = "anonymous"

// Session is the licensing view of one user.
type Session struct {
	svc    *Service
	sched  *refresh.Scheduler
	logger *slog.Logger

	mu   sync.RWMutex
	id   identity.Identity
	anon *license.MemoryStore
}

// Identity returns the identity the session currently acts for.
func (s *Session) Identity() identity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Entitlement returns the last known entitlement without blocking.
// Before the first refresh completes it is license.None().
func (s *Session) Entitlement() license.Entitlement {
	ent, ok := s.sched.Current()
	if !ok {
		return license.None()
	}
	return ent
}

// Current returns the last known entitlement and whether one was loaded yet.
func (s *Session) Current() (license.Entitlement, bool) {
	return s.sched.Current()
}

// RefreshEntitlement loads the entitlement and waits for it.
func (s *Session) RefreshEntitlement(ctx context.Context) (license.Entitlement, error) {
	return s.sched.Refresh(ctx)
}

// RefreshAsync loads the entitlement in the background.
func (s *Session) RefreshAsync(ctx context.Context) *async.Future[license.Entitlement] {
	return s.sched.RefreshAsync(ctx)
}

// CanPerform checks whether one more action fits the current entitlement given usage.
func (s *Session) CanPerform(action license.Action, usage license.Usage) license.Decision {
	return license.CanPerform(action, s.Entitlement(), usage)
}

// Check is CanPerform against the usage recorded on the license.
func (s *Session) Check(action license.Action) license.Decision {
	ent := s.Entitlement()
	return license.CanPerform(action, ent, ent.Usage)
}

// RecordUsage counts delta performed actions against the current license
// and reloads the entitlement before returning. delta must be positive. The
// store applies the limit in the same write, so concurrent callers cannot
// push a counter past the quota. Admin entitlements are not backed by a
// license and record nothing.
func (s *Session) RecordUsage(ctx context.Context, action license.Action, delta int64) (int64, error) {
	if err := license.ValidateIncrement(action, delta); err != nil {
		return 0, err
	}

	ent := s.Entitlement()
	if d := license.CanPerform(action, ent, ent.Usage); !d.Allowed {
		return d.Used, d.Err()
	}
	if ent.LicenseID == uuid.Nil {
		return 0, nil
	}

	n, err := s.store().IncrementUsage(ctx, ent.LicenseID, action, delta, ent.Limit(action))
	if err != nil && !errors.Is(err, license.ErrLimitReached) {
		return 0, err
	}

	s.sched.Invalidate()
	if _, rerr := s.sched.Refresh(ctx); rerr != nil {
		s.logger.WarnContext(ctx, "refresh after usage failed", logger.Error(rerr))
	}
	return n, err
}

// StartPurchase creates a provider order for planType and returns where to
// send the buyer.
func (s *Session) StartPurchase(ctx context.Context, planType license.Type, amount license.Money) (*payment.Checkout, error) {
	if s.svc.payments == nil {
		return nil, ErrPaymentsDisabled
	}
	return s.svc.payments.CreateOrder(ctx, s.Identity(), planType, amount)
}

// CompletePurchase captures orderID and, once the license is issued,
// refreshes the entitlement before returning.
func (s *Session) CompletePurchase(ctx context.Context, orderID string) (*payment.Result, error) {
	if s.svc.payments == nil {
		return nil, ErrPaymentsDisabled
	}
	res, err := s.svc.payments.CompletePurchase(ctx, s.Identity(), orderID)
	if err != nil {
		return nil, err
	}
	s.refreshAfterPurchase(ctx, res)
	return res, nil
}

// HandleReturn completes a purchase from the provider's return redirect.
func (s *Session) HandleReturn(ctx context.Context, p payment.ReturnParams) (*payment.Result, error) {
	if s.svc.payments == nil {
		return nil, ErrPaymentsDisabled
	}
	res, err := s.svc.payments.HandleReturn(ctx, s.Identity(), p)
	if err != nil {
		return nil, err
	}
	s.refreshAfterPurchase(ctx, res)
	return res, nil
}

// CancelPurchase abandons an order the buyer walked away from.
func (s *Session) CancelPurchase(ctx context.Context, orderID string) error {
	if s.svc.payments == nil {
		return ErrPaymentsDisabled
	}
	return s.svc.payments.Cancel(ctx, s.Identity(), orderID)
}

func (s *Session) refreshAfterPurchase(ctx context.Context, res *payment.Result) {
	if res == nil || res.State != payment.StateLicenseIssued {
		return
	}
	s.sched.Invalidate()
	if _, err := s.sched.Refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "refresh after purchase failed",
			logger.OrderID(res.OrderID),
			logger.Error(err),
		)
	}
}

// CanUseFreeTrial reports whether the session may still start the free trial.
func (s *Session) CanUseFreeTrial(ctx context.Context, flag trial.LocalFlag) (bool, error) {
	return s.svc.gate.CanUse(ctx, s.Identity(), flag)
}

// ConsumeFreeTrial starts the free trial and refreshes the entitlement.
//
// Anonymous sessions mark flag and get a trial record that lasts as long as
// the session; authenticated ones get a persisted record.
func (s *Session) ConsumeFreeTrial(ctx context.Context, flag trial.LocalFlag) (license.Entitlement, error) {
	id := s.Identity()
	if err := s.svc.gate.Consume(ctx, id, flag); err != nil {
		return license.None(), err
	}

	if !id.Valid() {
		plan, err := s.svc.Catalog().MustPlan(license.TypeFreeTrial)
		if err != nil {
			return license.None(), err
		}
		rec := license.NewRecord(anonymousOwner, plan, "", s.svc.now())
		if _, err := s.store().Issue(ctx, rec); err != nil {
			return license.None(), err
		}
	}

	s.sched.Invalidate()
	return s.sched.Refresh(ctx)
}

// RestoreFreeTrial gives an anonymous session the trial its device started
// in an earlier request, as recorded by flag. Authenticated sessions and
// flags without a grant are left alone.
func (s *Session) RestoreFreeTrial(ctx context.Context, flag trial.LocalFlag) error {
	s.mu.RLock()
	id, anon := s.id, s.anon
	s.mu.RUnlock()
	if id.Valid() || flag == nil {
		return nil
	}

	at, ok, err := trial.GrantedAt(ctx, flag)
	if err != nil || !ok {
		return err
	}
	has, err := anon.HasType(ctx, anonymousOwner, license.TypeFreeTrial)
	if err != nil || has {
		return err
	}

	plan, err := s.svc.Catalog().MustPlan(license.TypeFreeTrial)
	if err != nil {
		return err
	}
	if _, err := anon.Issue(ctx, license.NewRecord(anonymousOwner, plan, "", at)); err != nil {
		return err
	}
	s.sched.Invalidate()
	return nil
}

// Login moves the session to id. Refreshes started before the call are
// dropped, the account decides trial eligibility and the entitlement is
// reloaded. It returns the new entitlement and the trial eligibility.
func (s *Session) Login(ctx context.Context, id identity.Identity, flag trial.LocalFlag) (license.Entitlement, bool, error) {
	if !id.Valid() {
		return license.None(), false, ErrNotAuthenticated
	}

	s.mu.Lock()
	s.sched.SignOut()
	s.id = id
	s.anon = license.NewMemoryStore()
	s.mu.Unlock()

	canTrial, err := s.svc.gate.Merge(ctx, id, flag)
	if err != nil {
		return license.None(), false, err
	}

	s.logger.InfoContext(ctx, "session logged in",
		logger.UserID(id.UserID),
		slog.Bool("trial_available", canTrial),
	)

	ent, err := s.sched.Refresh(ctx)
	if err != nil {
		return license.None(), canTrial, err
	}
	return ent, canTrial, nil
}

// adopt makes the session act for id when the verified claims differ from
// the ones it was created with. The cached entitlement and refreshes in
// flight are dropped so the old claims stop counting at once.
func (s *Session) adopt(id identity.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == id {
		return false
	}
	s.sched.SignOut()
	s.id = id
	return true
}

// SignOut drops the cached entitlement and every refresh in flight and
// turns the session anonymous.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sched.SignOut()
	s.id = identity.Anonymous()
	s.anon = license.NewMemoryStore()
}

// Start begins background refreshes.
func (s *Session) Start(ctx context.Context) error {
	return s.sched.Start(ctx)
}

// Close stops background refreshes. Closing a stopped session is a no-op.
func (s *Session) Close() error {
	if err := s.sched.Stop(); err != nil && !errors.Is(err, refresh.ErrNotStarted) {
		return err
	}
	return nil
}

// Epoch returns the number of identity changes of the session.
func (s *Session) Epoch() uint64 {
	return s.sched.Epoch()
}

func (s *Session) store() license.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.id.Valid() {
		return s.svc.records
	}
	return s.anon
}

func (s *Session) fetch(ctx context.Context) (license.Entitlement, error) {
	s.mu.RLock()
	id, anon := s.id, s.anon
	s.mu.RUnlock()

	var (
		records []license.Record
		err     error
	)
	if id.Valid() {
		records, err = s.svc.records.ListByUser(ctx, id.UserID)
	} else {
		records, err = anon.ListByUser(ctx, anonymousOwner)
	}
	if err != nil {
		return license.None(), errors.Join(license.ErrStoreFailure, err)
	}
	return s.svc.resolver.Resolve(id, records), nil
}
