package trial

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/licensekit/pkg/async"
	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/logger"
)

// keyPrefix makes the free-trial record idempotent per user in stores that
// deduplicate on OrderID.
const keyPrefix = "free-trial:"

// Gate decides free-trial eligibility.
//
// Authenticated users are judged only by whether a free-trial record exists
// for them. Anonymous visitors are judged only by their LocalFlag. A user
// holding a valid paid license cannot start the trial.
type Gate struct {
	store    license.Store
	plan     license.Plan
	now      func() time.Time
	logger   *slog.Logger
	resolver *license.Resolver
	userMu   *async.KeyedMutex
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate creates a gate. Panics if store is nil or the catalog has no free-trial plan.
func NewGate(store license.Store, catalog *license.Catalog, opts ...Option) *Gate {
	if store == nil {
		panic("trial: license store is required")
	}
	if catalog == nil {
		panic("trial: catalog is required")
	}
	plan, ok := catalog.Plan(license.TypeFreeTrial)
	if !ok {
		panic("trial: catalog has no free-trial plan")
	}

	g := &Gate{
		store:  store,
		plan:   plan,
		now:    time.Now,
		logger: logger.Discard(),
		userMu: async.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.resolver = license.NewResolver(catalog, license.WithClock(g.now))
	return g
}

// CanUse reports whether the caller may still start the free trial.
func (g *Gate) CanUse(ctx context.Context, id identity.Identity, flag LocalFlag) (bool, error) {
	if !id.Valid() {
		used, err := localUsed(ctx, flag)
		if err != nil {
			return false, err
		}
		return !used, nil
	}

	has, err := g.store.HasType(ctx, id.UserID, license.TypeFreeTrial)
	if err != nil {
		return false, errors.Join(ErrStore, err)
	}
	return !has, nil
}

// Consume starts the free trial. Authenticated callers get a free-trial record;
// for anonymous callers only the local flag is set. The local flag is marked
// used in both cases.
func (g *Gate) Consume(ctx context.Context, id identity.Identity, flag LocalFlag) error {
	if !id.Valid() {
		used, err := localUsed(ctx, flag)
		if err != nil {
			return err
		}
		if used {
			return ErrTrialAlreadyUsed
		}
		if grant, ok := flag.(Grant); ok {
			if err := grant.SetGranted(ctx, g.now()); err != nil {
				return errors.Join(ErrLocalFlag, err)
			}
			return nil
		}
		return setLocal(ctx, flag, true)
	}

	defer g.userMu.Lock(id.UserID)()

	has, err := g.store.HasType(ctx, id.UserID, license.TypeFreeTrial)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	if has {
		return ErrTrialAlreadyUsed
	}

	records, err := g.store.ListByUser(ctx, id.UserID)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	// Issue supersedes every active record, so a trial would replace the paid plan.
	if ent := g.resolver.Resolve(id, records); ent.Valid && ent.LicenseType != license.TypeFreeTrial {
		return ErrPaidLicenseActive
	}

	want := license.NewRecord(id.UserID, g.plan, keyPrefix+id.UserID, g.now())
	got, err := g.store.Issue(ctx, want)
	if err != nil {
		return errors.Join(ErrStore, err)
	}
	if got.ID != want.ID {
		return ErrTrialAlreadyUsed
	}

	g.logger.InfoContext(ctx, "free trial consumed",
		logger.UserID(id.UserID),
		logger.LicenseID(got.ID),
	)

	if flag != nil {
		if err := flag.SetUsed(ctx, true); err != nil {
			g.logger.WarnContext(ctx, "failed to mark local trial flag", logger.Error(err))
		}
	}
	return nil
}

// Merge reconciles the local flag with the account after login and returns
// the resulting eligibility. The account wins in both directions: an account
// without a trial record clears a "used" local flag, and an account that used
// its trial sets it.
func (g *Gate) Merge(ctx context.Context, id identity.Identity, flag LocalFlag) (bool, error) {
	if !id.Valid() {
		return g.CanUse(ctx, id, flag)
	}

	has, err := g.store.HasType(ctx, id.UserID, license.TypeFreeTrial)
	if err != nil {
		return false, errors.Join(ErrStore, err)
	}

	if flag != nil {
		if err := flag.SetUsed(ctx, has); err != nil {
			return false, errors.Join(ErrLocalFlag, err)
		}
	}
	return !has, nil
}

func localUsed(ctx context.Context, flag LocalFlag) (bool, error) {
	if flag == nil {
		return false, nil
	}
	used, err := flag.Used(ctx)
	if err != nil {
		return false, errors.Join(ErrLocalFlag, err)
	}
	return used, nil
}

func setLocal(ctx context.Context, flag LocalFlag, used bool) error {
	if flag == nil {
		return ErrNoLocalFlag
	}
	if err := flag.SetUsed(ctx, used); err != nil {
		return errors.Join(ErrLocalFlag, err)
	}
	return nil
}
