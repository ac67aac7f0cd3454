package paddle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/provider"
)

const providerName = "paddle"

// Config holds the Paddle credentials.
type Config struct {
	APIKey      string `env:"PADDLE_API_KEY,required"`
	Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// Provider charges through Paddle transactions. Paddle sells catalog prices
// rather than raw amounts, so callers pass the catalog price ID in metadata
// under "paddle_price_id"; the returned transaction is pending and carries
// the hosted checkout URL when Paddle provides one.
type Provider struct {
	client *paddle.SDK
}

// New creates a Paddle provider for the configured environment.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata billing.Metadata) (*billing.PaymentTransaction, error) {
	priceID, _ := metadata["paddle_price_id"].(string)
	if priceID == "" {
		return nil, provider.NewError(providerName, "process_payment",
			errors.New("metadata key paddle_price_id is required"))
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  priceID,
		Quantity: 1,
	})
	req := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		CustomData: paddle.CustomData{
			"user_id": userID,
		},
	}

	txn, err := p.client.TransactionsClient.CreateTransaction(ctx, req)
	if err != nil {
		return nil, provider.NewError(providerName, "process_payment", err)
	}

	txMeta := billing.Metadata{"paddle_price_id": priceID}
	for k, v := range metadata {
		txMeta[k] = v
	}
	if txn.Checkout != nil && txn.Checkout.URL != nil {
		txMeta["checkout_url"] = *txn.Checkout.URL
	}

	tx, err := billing.NewPaymentTransaction(txn.ID, userID, amount, currency, providerName, txMeta)
	if err != nil {
		return nil, err
	}
	if isSettled(string(txn.Status)) {
		if err := tx.MarkCompleted(); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

func (p *Provider) VerifyPayment(ctx context.Context, transactionID string) (bool, error) {
	status, err := p.GetPaymentStatus(ctx, transactionID)
	if err != nil {
		return false, err
	}
	return status == billing.TransactionCompleted, nil
}

func (p *Provider) RefundPayment(ctx context.Context, transactionID string, amount *float64) (*provider.Refund, error) {
	if amount != nil {
		return nil, provider.ErrPartialRefundsUnsupported
	}

	adjustment, err := p.client.AdjustmentsClient.CreateAdjustment(ctx, &paddle.CreateAdjustmentRequest{
		Action:        paddle.AdjustmentActionRefund,
		TransactionID: transactionID,
		Reason:        "refund requested",
		Type:          paddle.PtrTo(paddle.AdjustmentTypeFull),
	})
	if err != nil {
		return nil, provider.NewError(providerName, "refund_payment", err)
	}

	return &provider.Refund{
		TransactionID:    transactionID,
		ProviderRefundID: adjustment.ID,
		Status:           string(adjustment.Status),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

func (p *Provider) GetPaymentStatus(ctx context.Context, transactionID string) (billing.TransactionStatus, error) {
	txn, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
		TransactionID: transactionID,
	})
	if err != nil {
		return "", provider.NewError(providerName, "get_payment_status", err)
	}

	switch string(txn.Status) {
	case "completed", "paid":
		return billing.TransactionCompleted, nil
	case "canceled", "cancelled":
		return billing.TransactionFailed, nil
	default:
		return billing.TransactionPending, nil
	}
}

func isSettled(status string) bool {
	return status == "completed" || status == "paid"
}

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsRefunds:        true,
		SupportsPartialRefunds: false,
		SupportsSubscriptions:  true,
		SupportedCurrencies:    []string{"USD", "EUR", "GBP"},
	}
}

func (p *Provider) Healthcheck(ctx context.Context) error {
	// A bounded list call is the cheapest authenticated probe Paddle
	// offers.
	_, err := p.client.ProductsClient.ListProducts(ctx, &paddle.ListProductsRequest{
		PerPage: paddle.PtrTo(1),
	})
	return provider.NewError(providerName, "healthcheck", err)
}
