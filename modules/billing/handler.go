package billing

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/licensekit/pkg/cookie"
	"github.com/dmitrymomot/licensekit/pkg/identity"
	"github.com/dmitrymomot/licensekit/pkg/license"
	"github.com/dmitrymomot/licensekit/pkg/logger"
	"github.com/dmitrymomot/licensekit/pkg/payment"
	"github.com/dmitrymomot/licensekit/pkg/trial"
	"github.com/dmitrymomot/licensekit/svc/entitlement"
)

// Handler serves the billing routes.
type Handler struct {
	registry    *entitlement.Registry
	svc         *entitlement.Service
	cookies     *cookie.Manager
	trialCookie string
	returnURL   string
	logger      *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithTrialCookie sets the name of the anonymous trial cookie.
func WithTrialCookie(name string) Option {
	return func(h *Handler) {
		if name != "" {
			h.trialCookie = name
		}
	}
}

// WithReturnRedirect makes the provider return callback redirect the buyer
// to target with order_id and state (or error) in the query instead of
// answering with JSON.
func WithReturnRedirect(target string) Option {
	return func(h *Handler) {
		h.returnURL = target
	}
}

// WithLogger sets the handler's logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates the billing handler. Panics if a dependency is nil.
func NewHandler(registry *entitlement.Registry, svc *entitlement.Service, cookies *cookie.Manager, opts ...Option) *Handler {
	if registry == nil || svc == nil {
		panic("billing: registry and service are required")
	}
	if cookies == nil {
		panic("billing: cookie manager is required")
	}

	h := &Handler{
		registry:    registry,
		svc:         svc,
		cookies:     cookies,
		trialCookie: trial.DefaultCookieName,
		logger:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle returns the billing router.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/plans", h.plans)
	r.Get("/entitlement", h.entitlement)
	r.Post("/entitlement/refresh", h.refresh)
	r.Get("/can-perform", h.canPerform)
	r.Get("/trial", h.trialStatus)
	r.Post("/trial", h.consumeTrial)
	r.Post("/checkout", h.checkout)
	r.Get("/return", h.providerReturn)

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAuthenticated)

		r.Post("/usage", h.recordUsage)
		r.Post("/session", h.login)
		r.Delete("/session", h.signOut)
		r.Post("/orders/{orderID}/capture", h.capture)
		r.Post("/orders/{orderID}/cancel", h.cancel)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(identity.RequireAdmin)

		r.Get("/orders", h.listOrders)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Post("/orders/{orderID}/resolve", h.resolveOrder)
		r.Post("/orders/sweep", h.sweepOrders)
	})

	return r
}

// session returns the caller's session. Anonymous sessions live for one
// request, so a trial the device started earlier is restored from its cookie.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) *entitlement.Session {
	id := identity.FromContext(r.Context())
	sess := h.registry.Session(id)
	if !id.Valid() {
		if err := sess.RestoreFreeTrial(r.Context(), h.trialFlag(w, r)); err != nil {
			h.logger.WarnContext(r.Context(), "anonymous trial not restored", logger.Error(err))
		}
	}
	return sess
}

func (h *Handler) trialFlag(w http.ResponseWriter, r *http.Request) trial.LocalFlag {
	return trial.NewCookieFlag(h.cookies, w, r, h.trialCookie)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "billing request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			logger.Error(err),
		)
	}
	writeJSON(w, status, resp)
}

type planResponse struct {
	Type          license.Type `json:"type"`
	Name          string       `json:"name"`
	VehicleLimit  int64        `json:"vehicle_limit"`
	AnalysisLimit int64        `json:"analysis_limit"`
	SetupLimit    int64        `json:"setup_limit"`
	Price         string       `json:"price"`
	Currency      string       `json:"currency"`
	DurationDays  int          `json:"duration_days"`
	Recurring     bool         `json:"recurring"`
}

func (h *Handler) plans(w http.ResponseWriter, r *http.Request) {
	catalog := h.svc.Catalog()
	out := make([]planResponse, 0, len(catalog.Types()))
	for _, t := range catalog.Types() {
		p, _ := catalog.Plan(t)
		out = append(out, planResponse{
			Type:          p.Type,
			Name:          p.Name,
			VehicleLimit:  p.VehicleLimit,
			AnalysisLimit: p.AnalysisLimit,
			SetupLimit:    p.SetupLimit,
			Price:         p.Price.Decimal(),
			Currency:      p.Price.Currency,
			DurationDays:  p.DurationDays,
			Recurring:     p.Recurring,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// entitlement answers with the cached entitlement, loading it on first use.
func (h *Handler) entitlement(w http.ResponseWriter, r *http.Request) {
	sess := h.session(w, r)
	if ent, ok := sess.Current(); ok {
		writeJSON(w, http.StatusOK, ent)
		return
	}
	ent, err := sess.RefreshEntitlement(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	ent, err := h.session(w, r).RefreshEntitlement(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (h *Handler) canPerform(w http.ResponseWriter, r *http.Request) {
	action := license.Action(r.URL.Query().Get("action"))
	if !action.Valid() {
		h.fail(w, r, ErrUnknownAction)
		return
	}

	sess := h.session(w, r)
	if _, ok := sess.Current(); !ok {
		if _, err := sess.RefreshEntitlement(r.Context()); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, sess.Check(action))
}

type usageRequest struct {
	Action license.Action `json:"action"`
	Delta  int64          `json:"delta"`
}

type usageResponse struct {
	Action license.Action `json:"action"`
	Used   int64          `json:"used"`
}

func (h *Handler) recordUsage(w http.ResponseWriter, r *http.Request) {
	req := usageRequest{Delta: 1}
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if !req.Action.Valid() {
		h.fail(w, r, ErrUnknownAction)
		return
	}
	if req.Delta <= 0 {
		h.fail(w, r, license.ErrInvalidDelta)
		return
	}

	sess := h.session(w, r)
	if _, ok := sess.Current(); !ok {
		if _, err := sess.RefreshEntitlement(r.Context()); err != nil {
			h.fail(w, r, err)
			return
		}
	}

	used, err := sess.RecordUsage(r.Context(), req.Action, req.Delta)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{Action: req.Action, Used: used})
}

type trialResponse struct {
	Available bool `json:"available"`
}

func (h *Handler) trialStatus(w http.ResponseWriter, r *http.Request) {
	ok, err := h.session(w, r).CanUseFreeTrial(r.Context(), h.trialFlag(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trialResponse{Available: ok})
}

func (h *Handler) consumeTrial(w http.ResponseWriter, r *http.Request) {
	ent, err := h.session(w, r).ConsumeFreeTrial(r.Context(), h.trialFlag(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

type loginResponse struct {
	Entitlement    license.Entitlement `json:"entitlement"`
	TrialAvailable bool                `json:"trial_available"`
}

// login reconciles the device's trial flag with the account right after
// the caller signed in and loads the account's entitlement.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	ent, canTrial, err := h.session(w, r).Login(r.Context(), id, h.trialFlag(w, r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Entitlement: ent, TrialAvailable: canTrial})
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	h.registry.SignOut(identity.FromContext(r.Context()).UserID)
	w.WriteHeader(http.StatusNoContent)
}

type checkoutRequest struct {
	PlanType license.Type `json:"plan_type"`
	Amount   string       `json:"amount"`
	Currency string       `json:"currency"`
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	amount, err := license.ParseMoney(req.Amount, strings.ToUpper(req.Currency))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	checkout, err := h.session(w, r).StartPurchase(r.Context(), req.PlanType, amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, checkout)
}

// providerReturn handles the buyer coming back from the provider with
// ?token=<order>&PayerID=<payer>. Either missing means the buyer cancelled.
func (h *Handler) providerReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := payment.ReturnParams{Token: q.Get("token"), PayerID: q.Get("PayerID")}

	res, err := h.session(w, r).HandleReturn(r.Context(), params)

	if h.returnURL != "" {
		h.redirectAfterReturn(w, r, params.Token, res, err)
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) redirectAfterReturn(w http.ResponseWriter, r *http.Request, orderID string, res *payment.Result, err error) {
	target, perr := url.Parse(h.returnURL)
	if perr != nil {
		h.fail(w, r, errors.Join(perr, err))
		return
	}

	q := target.Query()
	if orderID != "" {
		q.Set("order_id", orderID)
	}
	if err != nil {
		_, resp := classify(err)
		q.Set("error", resp.Code)
		if resp.SupportReference != "" {
			q.Set("support_reference", resp.SupportReference)
		}
	} else {
		q.Set("state", string(res.State))
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func (h *Handler) capture(w http.ResponseWriter, r *http.Request) {
	res, err := h.session(w, r).CompletePurchase(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.session(w, r).CancelPurchase(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) payments(w http.ResponseWriter, r *http.Request) (*payment.Coordinator, bool) {
	c := h.svc.Payments()
	if c == nil {
		h.fail(w, r, entitlement.ErrPaymentsDisabled)
		return nil, false
	}
	return c, true
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	c, ok := h.payments(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := payment.OrderFilter{UserID: q.Get("user_id"), Limit: 100}
	for _, s := range q["state"] {
		filter.States = append(filter.States, payment.State(s))
	}

	orders, err := c.Orders(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := h.payments(w, r)
	if !ok {
		return
	}
	o, err := c.Order(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type resolveRequest struct {
	Captured bool `json:"captured"`
}

func (h *Handler) resolveOrder(w http.ResponseWriter, r *http.Request) {
	c, ok := h.payments(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := c.ResolveManually(r.Context(), chi.URLParam(r, "orderID"), req.Captured)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "order resolved by operator",
		logger.OrderID(res.OrderID),
		logger.State(string(res.State)),
		slog.String("operator", identity.FromContext(r.Context()).UserID),
	)
	writeJSON(w, http.StatusOK, res)
}

type sweepResponse struct {
	Abandoned int `json:"abandoned"`
}

func (h *Handler) sweepOrders(w http.ResponseWriter, r *http.Request) {
	c, ok := h.payments(w, r)
	if !ok {
		return
	}

	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			h.fail(w, r, ErrInvalidBody)
			return
		}
		olderThan = d
	}

	n, err := c.SweepAbandoned(r.Context(), olderThan)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{Abandoned: n})
}
