package payment

import (
	"context"
	"errors"
	"net/http"
	"testing"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/plutov/paypal/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/license"
)

type fakePayPal struct {
	units   []paypal.PurchaseUnitRequest
	appCtx  *paypal.ApplicationContext
	order   *paypal.Order
	capture *paypal.CaptureOrderResponse
	err     error
}

func (f *fakePayPal) CreateOrder(_ context.Context, _ string, units []paypal.PurchaseUnitRequest, _ *paypal.PaymentSource, appCtx *paypal.ApplicationContext) (*paypal.Order, error) {
	f.units, f.appCtx = units, appCtx
	return f.order, f.err
}

func (f *fakePayPal) CaptureOrder(_ context.Context, _ string, _ paypal.CaptureOrderRequest) (*paypal.CaptureOrderResponse, error) {
	return f.capture, f.err
}

type fakePaddle struct {
	req *paddle.CreateTransactionRequest
	tx  *paddle.Transaction
	err error
}

func (f *fakePaddle) CreateTransaction(_ context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error) {
	f.req = req
	return f.tx, f.err
}

func (f *fakePaddle) GetTransaction(_ context.Context, _ *paddle.GetTransactionRequest) (*paddle.Transaction, error) {
	return f.tx, f.err
}

func TestPayPalProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create order sends decimal amount and returns approval link", func(t *testing.T) {
		t.Parallel()
		fake := &fakePayPal{order: &paypal.Order{
			ID:     "O1",
			Status: "CREATED",
			Links: []paypal.Link{
				{Rel: "self", Href: "https://api.paypal.com/v2/checkout/orders/O1"},
				{Rel: "approve", Href: "https://www.paypal.com/checkoutnow?token=O1"},
			},
		}}
		p := &PayPalProvider{client: fake, brandName: "licensekit"}

		po, err := p.CreateOrder(ctx, OrderRequest{
			ReferenceID: "ref",
			PlanType:    license.TypeMonthly,
			Amount:      license.MustParseMoney("29.95", "USD"),
			ReturnURL:   "https://app/return",
		})
		require.NoError(t, err)
		assert.Equal(t, "O1", po.OrderID)
		assert.Equal(t, "https://www.paypal.com/checkoutnow?token=O1", po.ApprovalURL)

		require.Len(t, fake.units, 1)
		assert.Equal(t, "29.95", fake.units[0].Amount.Value)
		assert.Equal(t, "USD", fake.units[0].Amount.Currency)
		assert.Equal(t, "https://app/return", fake.appCtx.ReturnURL)
	})

	t.Run("capture maps payer and status", func(t *testing.T) {
		t.Parallel()
		fake := &fakePayPal{capture: &paypal.CaptureOrderResponse{
			ID:     "O1",
			Status: "COMPLETED",
			Payer:  &paypal.PayerWithNameAndPhone{PayerID: "PAYER"},
		}}
		p := &PayPalProvider{client: fake}

		c, err := p.CaptureOrder(ctx, "O1")
		require.NoError(t, err)
		assert.Equal(t, CaptureCompleted, c.Status)
		assert.Equal(t, "PAYER", c.PayerID)
	})

	t.Run("already captured", func(t *testing.T) {
		t.Parallel()
		fake := &fakePayPal{err: &paypal.ErrorResponse{
			Response: &http.Response{StatusCode: http.StatusUnprocessableEntity},
			Details:  []paypal.ErrorResponseDetail{{Issue: "ORDER_ALREADY_CAPTURED"}},
		}}
		p := &PayPalProvider{client: fake}

		_, err := p.CaptureOrder(ctx, "O1")
		assert.ErrorIs(t, err, ErrAlreadyCaptured)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		t.Parallel()
		p := &PayPalProvider{client: &fakePayPal{err: context.DeadlineExceeded}}

		_, err := p.CaptureOrder(ctx, "O1")
		assert.True(t, IsTimeout(err))
	})

	t.Run("missing credentials", func(t *testing.T) {
		t.Parallel()
		_, err := NewPayPalProvider(PayPalConfig{}, "brand")
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})
}

func TestPayPalCaptureStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CaptureCompleted, paypalCaptureStatus("COMPLETED"))
	assert.Equal(t, CapturePending, paypalCaptureStatus("PAYER_ACTION_REQUIRED"))
	assert.Equal(t, CaptureIndeterminate, paypalCaptureStatus("APPROVED"))
	assert.Equal(t, CaptureDeclined, paypalCaptureStatus("VOIDED"))
}

func TestPaddleProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create transaction from catalog price", func(t *testing.T) {
		t.Parallel()
		fake := &fakePaddle{tx: &paddle.Transaction{
			ID:       "txn_1",
			Checkout: &paddle.TransactionCheckout{URL: paddle.PtrTo("https://pay.example/txn_1")},
		}}
		p := &PaddleProvider{transactions: fake, priceIDs: map[string]string{"monthly": "pri_monthly"}}

		po, err := p.CreateOrder(ctx, OrderRequest{ReferenceID: "ref", PlanType: license.TypeMonthly, UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, "txn_1", po.OrderID)
		assert.Equal(t, "https://pay.example/txn_1", po.ApprovalURL)
		assert.Equal(t, "u1", fake.req.CustomData["user_id"])
	})

	t.Run("plan without price", func(t *testing.T) {
		t.Parallel()
		p := &PaddleProvider{transactions: &fakePaddle{}}

		_, err := p.CreateOrder(ctx, OrderRequest{PlanType: license.TypeAnnual})
		assert.ErrorIs(t, err, ErrProviderNotConfigured)
	})

	t.Run("missing checkout url", func(t *testing.T) {
		t.Parallel()
		p := &PaddleProvider{
			transactions: &fakePaddle{tx: &paddle.Transaction{ID: "txn_1"}},
			priceIDs:     map[string]string{"annual": "pri_annual"},
		}

		_, err := p.CreateOrder(ctx, OrderRequest{PlanType: license.TypeAnnual})
		assert.Error(t, err)
	})

	t.Run("lookup error", func(t *testing.T) {
		t.Parallel()
		p := &PaddleProvider{transactions: &fakePaddle{err: errors.New("not found")}}

		_, err := p.CaptureOrder(ctx, "txn_1")
		assert.Error(t, err)
	})
}

func TestPaddleCaptureStatus(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CaptureCompleted, paddleCaptureStatus("completed"))
	assert.Equal(t, CaptureCompleted, paddleCaptureStatus("paid"))
	assert.Equal(t, CapturePending, paddleCaptureStatus("ready"))
	assert.Equal(t, CaptureDeclined, paddleCaptureStatus("canceled"))
}
