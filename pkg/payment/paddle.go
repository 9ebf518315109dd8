package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig selects the Paddle account and maps plans to catalog prices.
type PaddleConfig struct {
	APIKey      string            `env:"PADDLE_API_KEY"`
	Environment string            `env:"PADDLE_ENVIRONMENT" envDefault:"sandbox"`
	PriceIDs    map[string]string `env:"PADDLE_PRICE_IDS"`
}

// paddleTransactions is the subset of *paddle.TransactionsClient used by PaddleProvider.
type paddleTransactions interface {
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
	GetTransaction(ctx context.Context, req *paddle.GetTransactionRequest) (*paddle.Transaction, error)
}

var _ paddleTransactions = (*paddle.TransactionsClient)(nil)

// PaddleProvider sells plans as Paddle transactions. Paddle collects the
// money during checkout, so capturing is a status check of the transaction.
type PaddleProvider struct {
	transactions paddleTransactions
	priceIDs     map[string]string
}

// NewPaddleProvider builds a provider against the sandbox or production API.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.Join(ErrProviderNotConfigured, errors.New("paddle API key is required"))
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox", "":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "live":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, errors.Join(ErrProviderNotConfigured, fmt.Errorf("invalid paddle environment: %s", cfg.Environment))
	}
	if err != nil {
		return nil, errors.Join(ErrProviderNotConfigured, err)
	}

	return &PaddleProvider{transactions: client.TransactionsClient, priceIDs: cfg.PriceIDs}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

func (p *PaddleProvider) CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error) {
	priceID := p.priceIDs[string(req.PlanType)]
	if priceID == "" {
		return nil, errors.Join(ErrProviderNotConfigured, fmt.Errorf("no paddle price for plan %s", req.PlanType))
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})
	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"reference_id": req.ReferenceID,
			"plan_type":    string(req.PlanType),
		},
	}
	if req.UserID != "" {
		txReq.CustomData["user_id"] = req.UserID
	}
	if req.Email != "" {
		txReq.CustomData["email"] = req.Email
	}
	if req.ReturnURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.ReturnURL)}
	}

	tx, err := p.transactions.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, fmt.Errorf("paddle create transaction: %w", err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return nil, errors.New("no checkout URL returned from paddle")
	}

	return &ProviderOrder{OrderID: tx.ID, ApprovalURL: *tx.Checkout.URL, Status: string(tx.Status)}, nil
}

func (p *PaddleProvider) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	tx, err := p.transactions.GetTransaction(ctx, &paddle.GetTransactionRequest{TransactionID: orderID})
	if err != nil {
		return nil, fmt.Errorf("paddle get transaction: %w", err)
	}

	c := &Capture{OrderID: tx.ID, CaptureID: tx.ID, Status: paddleCaptureStatus(string(tx.Status))}
	if tx.CustomerID != nil {
		c.PayerID = *tx.CustomerID
	}
	return c, nil
}

func paddleCaptureStatus(status string) CaptureStatus {
	switch status {
	case "completed", "paid":
		return CaptureCompleted
	case "draft", "ready", "billed":
		return CapturePending
	case "past_due":
		return CaptureIndeterminate
	default:
		return CaptureDeclined
	}
}
