package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/plutov/paypal/v4"
)

// PayPalConfig holds REST app credentials.
type PayPalConfig struct {
	ClientID    string `env:"PAYPAL_CLIENT_ID"`
	Secret      string `env:"PAYPAL_SECRET"`
	Environment string `env:"PAYPAL_ENVIRONMENT" envDefault:"sandbox"`
}

// paypalOrders is the subset of *paypal.Client used by PayPalProvider.
type paypalOrders interface {
	CreateOrder(ctx context.Context, intent string, purchaseUnits []paypal.PurchaseUnitRequest, paymentSource *paypal.PaymentSource, appContext *paypal.ApplicationContext) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string, captureOrderRequest paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error)
}

var _ paypalOrders = (*paypal.Client)(nil)

// PayPalProvider creates and captures PayPal Orders v2.
type PayPalProvider struct {
	client    paypalOrders
	brandName string
}

// NewPayPalProvider builds a provider against the sandbox or live API.
func NewPayPalProvider(cfg PayPalConfig, brandName string) (*PayPalProvider, error) {
	if cfg.ClientID == "" || cfg.Secret == "" {
		return nil, errors.Join(ErrProviderNotConfigured, errors.New("paypal client id and secret are required"))
	}

	base := paypal.APIBaseSandBox
	if strings.EqualFold(cfg.Environment, "live") || strings.EqualFold(cfg.Environment, "production") {
		base = paypal.APIBaseLive
	}

	client, err := paypal.NewClient(cfg.ClientID, cfg.Secret, base)
	if err != nil {
		return nil, errors.Join(ErrProviderNotConfigured, err)
	}
	return &PayPalProvider{client: client, brandName: brandName}, nil
}

func (p *PayPalProvider) Name() string { return "paypal" }

func (p *PayPalProvider) CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error) {
	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: req.ReferenceID,
		Description: req.Description,
		CustomID:    req.UserID,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: req.Amount.Currency,
			Value:    req.Amount.Decimal(),
		},
	}}
	appCtx := &paypal.ApplicationContext{
		BrandName:          p.brandName,
		ShippingPreference: paypal.ShippingPreferenceNoShipping,
		UserAction:         paypal.UserActionPayNow,
		ReturnURL:          req.ReturnURL,
		CancelURL:          req.CancelURL,
	}

	order, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, appCtx)
	if err != nil {
		return nil, fmt.Errorf("paypal create order: %w", err)
	}

	out := &ProviderOrder{OrderID: order.ID, Status: order.Status}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			out.ApprovalURL = link.Href
			break
		}
	}
	return out, nil
}

func (p *PayPalProvider) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	resp, err := p.client.CaptureOrder(ctx, orderID, paypal.CaptureOrderRequest{})
	if err != nil {
		if paypalIssue(err, "ORDER_ALREADY_CAPTURED") {
			return nil, ErrAlreadyCaptured
		}
		return nil, fmt.Errorf("paypal capture order: %w", err)
	}

	c := &Capture{OrderID: resp.ID, CaptureID: resp.ID, Status: paypalCaptureStatus(resp.Status)}
	if resp.Payer != nil {
		c.PayerID = resp.Payer.PayerID
	}
	return c, nil
}

// paypalCaptureStatus maps an order status after capture.
// See https://developer.paypal.com/docs/api/orders/v2/#orders_capture.
func paypalCaptureStatus(status string) CaptureStatus {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return CaptureCompleted
	case "PAYER_ACTION_REQUIRED", "CREATED", "SAVED":
		return CapturePending
	case "APPROVED", "PENDING":
		return CaptureIndeterminate
	default:
		return CaptureDeclined
	}
}

func paypalIssue(err error, issue string) bool {
	var resp *paypal.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	if resp.Response != nil && resp.Response.StatusCode != http.StatusUnprocessableEntity {
		return false
	}
	for _, d := range resp.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}
