package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/currency"

	"github.com/dmitrymomot/licensekit/pkg/async"
	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/logger"
	"github.com/dmitrymomot/licensekit/pkg/statemachine"
)

// Coordinator turns provider orders into license records. Every order moves
// through the state table returned by NewDefinition and is persisted after
// each step, so a crash leaves it in a state the next call can resume from.
type Coordinator struct {
	provider Provider
	orders   Store
	licenses license.Store
	catalog  *license.Catalog
	def      *statemachine.Definition
	locks    *async.KeyedMutex
	locker   Locker
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	cfg      Config
}

// Option configures a Coordinator.
type Option func(*Coordinator)

func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

// WithLocker adds a cross-process lock around every order mutation.
func WithLocker(l Locker) Option {
	return func(c *Coordinator) { c.locker = l }
}

func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator panics if any dependency is nil.
func NewCoordinator(provider Provider, orders Store, licenses license.Store, catalog *license.Catalog, opts ...Option) *Coordinator {
	switch {
	case provider == nil:
		panic("payment: provider is required")
	case orders == nil:
		panic("payment: order store is required")
	case licenses == nil:
		panic("payment: license store is required")
	case catalog == nil:
		panic("payment: catalog is required")
	}

	c := &Coordinator{
		provider: provider,
		orders:   orders,
		licenses: licenses,
		catalog:  catalog,
		locks:    async.NewKeyedMutex(),
		logger:   logger.Discard(),
		now:      time.Now,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg.MaxCaptureAttempts = max(c.cfg.MaxCaptureAttempts, 1)
	if c.cfg.ProviderTimeout <= 0 {
		c.cfg.ProviderTimeout = DefaultConfig().ProviderTimeout
	}
	if c.cfg.LockTTL <= 0 {
		c.cfg.LockTTL = DefaultConfig().LockTTL
	}
	c.def = NewDefinition(c.cfg.MaxCaptureAttempts)
	c.logger = c.logger.With(logger.Component("payment"))
	return c
}

// Definition exposes the order state table.
func (c *Coordinator) Definition() *statemachine.Definition {
	return c.def
}

// CreateOrder validates the purchase against the catalog, registers it with
// the provider and records it as awaiting approval.
func (c *Coordinator) CreateOrder(ctx context.Context, id identity.Identity, planType license.Type, amount license.Money) (*Checkout, error) {
	plan, err := c.validatePurchase(planType, amount)
	if err != nil {
		return nil, err
	}

	req := OrderRequest{
		ReferenceID: uuid.NewString(),
		PlanType:    plan.Type,
		Description: plan.Name,
		Amount:      plan.Price,
		Recurring:   plan.Recurring,
		ReturnURL:   c.cfg.ReturnURL,
		CancelURL:   c.cfg.CancelURL,
	}
	if id.Valid() {
		req.UserID = id.UserID
		req.Email = id.Email
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	po, err := c.provider.CreateOrder(pctx, req)
	cancel()
	if err != nil {
		c.logger.WarnContext(ctx, "provider order creation failed",
			logger.PlanType(string(planType)), logger.Error(err))
		if IsTimeout(err) {
			return nil, errors.Join(ErrTimeout, err)
		}
		return nil, errors.Join(ErrProvider, err)
	}
	if po == nil || po.OrderID == "" {
		return nil, errors.Join(ErrProvider, errors.New("provider returned no order id"))
	}

	now := c.now().UTC()
	o := Order{
		ID:          po.OrderID,
		Provider:    c.provider.Name(),
		UserID:      req.UserID,
		PlanType:    plan.Type,
		Amount:      plan.Price,
		Recurring:   plan.Recurring,
		State:       StateCreated,
		ApprovalURL: po.ApprovalURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.advance(ctx, &o, EventSubmit); err != nil {
		return nil, err
	}
	if err := c.orders.SavePending(ctx, o.pending()); err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}

	c.metrics.orderCreated(string(plan.Type))
	c.logger.InfoContext(ctx, "order created",
		logger.OrderID(o.ID), logger.UserID(o.UserID), logger.PlanType(string(o.PlanType)))

	return &Checkout{OrderID: o.ID, ApprovalURL: o.ApprovalURL}, nil
}

// HandleReturn processes the provider redirect. A redirect without both the
// order token and the payer id means the buyer backed out.
func (c *Coordinator) HandleReturn(ctx context.Context, id identity.Identity, p ReturnParams) (*Result, error) {
	if p.Token == "" || p.PayerID == "" {
		return nil, errors.Join(ErrValidation, ErrReturnCancelled)
	}
	return c.CompletePurchase(ctx, id, p.Token)
}

// CompletePurchase captures the order and issues its license. It is safe to
// call any number of times: a completed order returns its stored result
// without contacting the provider.
func (c *Coordinator) CompletePurchase(ctx context.Context, id identity.Identity, orderID string) (*Result, error) {
	if orderID == "" {
		return nil, errors.Join(ErrValidation, ErrMissingOrderID)
	}
	if !id.Valid() {
		return nil, errors.Join(ErrAuthorization, ErrAuthenticationRequired)
	}

	unlock, err := c.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != "" && o.UserID != id.UserID {
		c.logger.WarnContext(ctx, "order completion by another user refused",
			logger.OrderID(o.ID), logger.UserID(id.UserID))
		return nil, errors.Join(ErrAuthorization, ErrForeignOrder)
	}

	switch {
	case o.State == StateLicenseIssued:
		return o.result(true), nil
	case c.def.Terminal(o.State):
		return nil, errors.Join(ErrValidation, ErrOrderClosed)
	case o.State == StateCaptured:
		return c.issueLicense(ctx, &o)
	case o.State == StateNeedsVerification:
		return nil, errors.Join(ErrTimeout, ErrNeedsVerification)
	case !c.def.CanFire(ctx, o.State, EventCapture, &o):
		return nil, errors.Join(ErrValidation, ErrOrderClosed)
	}

	if o.UserID == "" {
		o.UserID = id.UserID
		o.UpdatedAt = c.now().UTC()
		if err := c.orders.SaveOrder(ctx, o); err != nil {
			return nil, errors.Join(ErrPersistence, err)
		}
	}

	return c.capture(ctx, &o)
}

// Abandon closes an order the buyer never approved. Abandoning an abandoned
// order is a no-op.
func (c *Coordinator) Abandon(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.Join(ErrValidation, ErrMissingOrderID)
	}

	unlock, err := c.lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()

	o, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return c.abandon(ctx, &o)
}

// Cancel abandons an order on behalf of its buyer.
func (c *Coordinator) Cancel(ctx context.Context, id identity.Identity, orderID string) error {
	if orderID == "" {
		return errors.Join(ErrValidation, ErrMissingOrderID)
	}

	unlock, err := c.lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer unlock()

	o, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.UserID != "" && o.UserID != id.UserID {
		return errors.Join(ErrAuthorization, ErrForeignOrder)
	}
	return c.abandon(ctx, &o)
}

// SweepAbandoned abandons orders awaiting approval for longer than olderThan,
// or the configured AbandonAfter when olderThan is not positive.
func (c *Coordinator) SweepAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		olderThan = c.cfg.AbandonAfter
	}

	stale, err := c.orders.ListOrders(ctx, OrderFilter{
		States:        []State{StateAwaitingApproval},
		CreatedBefore: c.now().Add(-olderThan),
	})
	if err != nil {
		return 0, errors.Join(ErrPersistence, err)
	}

	var (
		swept int
		errs  []error
	)
	for _, o := range stale {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := c.Abandon(ctx, o.ID); err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", o.ID, err))
			continue
		}
		swept++
	}

	if swept > 0 {
		c.logger.InfoContext(ctx, "abandoned orders swept", slog.Int("count", swept))
	}
	return swept, errors.Join(errs...)
}

// ResolveManually records an operator's verdict on an order whose capture
// outcome is unknown, or whose license could not be written. captured means
// the money is confirmed at the provider.
func (c *Coordinator) ResolveManually(ctx context.Context, orderID string, captured bool) (*Result, error) {
	if orderID == "" {
		return nil, errors.Join(ErrValidation, ErrMissingOrderID)
	}

	unlock, err := c.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.State != StateNeedsVerification && o.State != StateCaptured {
		return nil, errors.Join(ErrValidation, ErrNotResolvable)
	}

	c.logger.InfoContext(ctx, "manual resolution",
		logger.OrderID(o.ID), logger.State(string(o.State)), slog.Bool("captured", captured))

	if !captured {
		o.FailureReason = "rejected during manual verification"
		if err := c.advance(ctx, &o, EventFail); err != nil {
			return nil, err
		}
		if err := c.orders.DeletePending(ctx, o.ID); err != nil {
			c.logger.WarnContext(ctx, "pending payment not deleted", logger.OrderID(o.ID), logger.Error(err))
		}
		return o.result(false), nil
	}

	if o.State == StateNeedsVerification {
		if err := c.advance(ctx, &o, EventConfirm); err != nil {
			return nil, err
		}
	}
	return c.issueLicense(ctx, &o)
}

// Order returns the ledger entry for orderID.
func (c *Coordinator) Order(ctx context.Context, orderID string) (Order, error) {
	return c.loadOrder(ctx, orderID)
}

// Orders lists ledger entries.
func (c *Coordinator) Orders(ctx context.Context, f OrderFilter) ([]Order, error) {
	orders, err := c.orders.ListOrders(ctx, f)
	if err != nil {
		return nil, errors.Join(ErrPersistence, err)
	}
	return orders, nil
}

func (c *Coordinator) capture(ctx context.Context, o *Order) (*Result, error) {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	cp, err := c.provider.CaptureOrder(pctx, o.ID)
	cancel()

	// The provider may have moved money; finish the bookkeeping even if the
	// caller went away.
	ctx = context.WithoutCancel(ctx)

	if err == nil && cp == nil {
		err = errors.New("provider returned no capture")
	}
	if errors.Is(err, ErrAlreadyCaptured) {
		c.logger.InfoContext(ctx, "order was already captured at provider", logger.OrderID(o.ID))
		cp, err = &Capture{OrderID: o.ID, Status: CaptureCompleted}, nil
	}
	if err != nil {
		if IsTimeout(err) || errors.Is(err, context.Canceled) {
			return nil, c.markUnverified(ctx, o, err)
		}
		return nil, c.rejectCapture(ctx, o, err)
	}

	switch cp.Status {
	case CaptureCompleted:
	case CapturePending:
		c.metrics.capture("pending")
		return nil, errors.Join(ErrProvider, ErrCapturePending)
	case CaptureIndeterminate:
		return nil, c.markUnverified(ctx, o, ErrNeedsVerification)
	default:
		return nil, c.rejectCapture(ctx, o, fmt.Errorf("%w: status %q", ErrCaptureFailed, cp.Status))
	}

	o.CaptureID = cp.CaptureID
	o.PayerID = cp.PayerID
	if err := c.advance(ctx, o, EventCapture); err != nil {
		// The money moved; the next attempt gets ErrAlreadyCaptured and resumes.
		return nil, c.persistenceFailure(ctx, o, err)
	}
	c.metrics.capture("completed")

	return c.issueLicense(ctx, o)
}

func (c *Coordinator) markUnverified(ctx context.Context, o *Order, cause error) error {
	c.metrics.capture("timeout")
	if err := c.advance(ctx, o, EventTimeout); err != nil {
		c.logger.ErrorContext(ctx, "order could not be marked for verification",
			logger.OrderID(o.ID), logger.Error(err))
	}
	c.logger.WarnContext(ctx, "capture outcome unknown, order needs verification",
		logger.Event(string(IncidentNeedsVerification)), logger.OrderID(o.ID),
		logger.UserID(o.UserID), logger.Error(cause))
	c.notify(ctx, IncidentNeedsVerification, o, cause)
	return errors.Join(ErrTimeout, ErrNeedsVerification, cause)
}

func (c *Coordinator) rejectCapture(ctx context.Context, o *Order, cause error) error {
	o.CaptureAttempts++
	o.FailureReason = cause.Error()
	if err := c.advance(ctx, o, EventCaptureRejected); err != nil {
		return err
	}

	c.logger.WarnContext(ctx, "capture rejected by provider",
		logger.OrderID(o.ID), logger.Attempt(o.CaptureAttempts), logger.State(string(o.State)), logger.Error(cause))

	if o.State == StateFailed {
		c.metrics.capture("failed")
		c.notify(ctx, IncidentCaptureFailed, o, cause)
		if err := c.orders.DeletePending(ctx, o.ID); err != nil {
			c.logger.WarnContext(ctx, "pending payment not deleted", logger.OrderID(o.ID), logger.Error(err))
		}
		return errors.Join(ErrProvider, ErrCaptureFailed, cause)
	}
	c.metrics.capture("rejected")
	return errors.Join(ErrProvider, ErrCaptureRetryable, cause)
}

// issueLicense writes the license for a captured order. A failed write is
// reported and left for support; it is never retried here.
func (c *Coordinator) issueLicense(ctx context.Context, o *Order) (*Result, error) {
	planType := o.PlanType
	if p, err := c.orders.GetPending(ctx, o.ID); err == nil {
		planType = p.PlanType
	}

	plan, ok := c.catalog.Plan(planType)
	if !ok {
		return nil, c.persistenceFailure(ctx, o, fmt.Errorf("%w: %s", ErrUnknownPlan, planType))
	}

	rec, err := c.licenses.Issue(ctx, license.NewRecord(o.UserID, plan, o.ID, c.now()))
	if err != nil {
		return nil, c.persistenceFailure(ctx, o, err)
	}
	o.LicenseID = rec.ID

	if err := c.orders.DeletePending(ctx, o.ID); err != nil {
		c.logger.WarnContext(ctx, "pending payment not deleted", logger.OrderID(o.ID), logger.Error(err))
	}
	if err := c.advance(ctx, o, EventIssue); err != nil {
		// The license is durable; a later call re-issues idempotently by order id.
		c.logger.ErrorContext(ctx, "order state not saved after license issue",
			logger.OrderID(o.ID), logger.LicenseID(rec.ID), logger.Error(err))
		o.State = StateLicenseIssued
	}

	c.metrics.licenseIssued(string(plan.Type))
	c.logger.InfoContext(ctx, "license issued",
		logger.OrderID(o.ID), logger.UserID(o.UserID), logger.LicenseID(rec.ID), logger.PlanType(string(plan.Type)))

	return o.result(false), nil
}

func (c *Coordinator) persistenceFailure(ctx context.Context, o *Order, err error) error {
	c.metrics.persistenceFailure()
	c.logger.ErrorContext(ctx, "license persistence failed after capture",
		logger.Event(string(IncidentPersistenceFailure)),
		logger.OrderID(o.ID), logger.UserID(o.UserID), logger.PlanType(string(o.PlanType)), logger.Error(err))
	c.notify(ctx, IncidentPersistenceFailure, o, err)
	return &PersistenceError{OrderID: o.ID, Err: err}
}

func (c *Coordinator) abandon(ctx context.Context, o *Order) error {
	if o.State == StateAbandoned {
		return nil
	}
	if !c.def.CanFire(ctx, o.State, EventAbandon, o) {
		return errors.Join(ErrValidation, ErrOrderClosed)
	}

	if err := c.advance(ctx, o, EventAbandon); err != nil {
		return err
	}
	if err := c.orders.DeletePending(ctx, o.ID); err != nil {
		c.logger.WarnContext(ctx, "pending payment not deleted", logger.OrderID(o.ID), logger.Error(err))
	}
	return nil
}

// advance fires event on o and persists the new state. On failure o keeps
// its previous state.
func (c *Coordinator) advance(ctx context.Context, o *Order, event Event) error {
	from := o.State
	next, err := c.def.Fire(ctx, from, event, o)
	if err != nil {
		return errors.Join(ErrValidation, fmt.Errorf("order %s: %w", o.ID, err))
	}

	o.State = next.(State)
	o.UpdatedAt = c.now().UTC()
	if err := c.orders.SaveOrder(ctx, *o); err != nil {
		o.State = from
		return errors.Join(ErrPersistence, err)
	}

	c.metrics.transition(from, o.State)
	c.logger.DebugContext(ctx, "order transition",
		logger.OrderID(o.ID), logger.Transition(string(from), string(o.State)))
	return nil
}

func (c *Coordinator) loadOrder(ctx context.Context, orderID string) (Order, error) {
	o, err := c.orders.GetOrder(ctx, orderID)
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return Order{}, errors.Join(ErrValidation, err)
	case err != nil:
		return Order{}, errors.Join(ErrPersistence, err)
	}
	return o, nil
}

func (c *Coordinator) lock(ctx context.Context, orderID string) (func(), error) {
	unlock := c.locks.Lock(orderID)
	if c.locker == nil {
		return unlock, nil
	}

	release, err := c.locker.Lock(ctx, "payment:order:"+orderID, c.cfg.LockTTL)
	if err != nil {
		unlock()
		return nil, errors.Join(ErrPersistence, ErrCaptureInProgress, err)
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			c.logger.WarnContext(ctx, "order lock release failed", logger.OrderID(orderID), logger.Error(err))
		}
		unlock()
	}, nil
}

func (c *Coordinator) notify(ctx context.Context, kind IncidentKind, o *Order, cause error) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Notify(context.WithoutCancel(ctx), Incident{
		Kind:     kind,
		OrderID:  o.ID,
		UserID:   o.UserID,
		PlanType: o.PlanType,
		Amount:   o.Amount,
		Err:      cause,
		At:       c.now().UTC(),
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "support notification failed",
			logger.OrderID(o.ID), logger.Event(string(kind)), logger.Error(err))
	}
}

func (c *Coordinator) validatePurchase(planType license.Type, amount license.Money) (license.Plan, error) {
	plan, ok := c.catalog.Plan(planType)
	if !ok {
		return license.Plan{}, errors.Join(ErrValidation, ErrUnknownPlan)
	}
	if !plan.Paid() {
		return license.Plan{}, errors.Join(ErrValidation, ErrPlanNotPurchasable)
	}
	if _, err := currency.ParseISO(amount.Currency); err != nil {
		return license.Plan{}, errors.Join(ErrValidation, license.ErrInvalidCurrency)
	}
	if amount.Currency != plan.Price.Currency || (c.cfg.Currency != "" && amount.Currency != c.cfg.Currency) {
		return license.Plan{}, errors.Join(ErrValidation, ErrCurrencyMismatch)
	}
	if amount.Amount != plan.Price.Amount {
		return license.Plan{}, errors.Join(ErrValidation, ErrAmountMismatch)
	}
	return plan, nil
}
