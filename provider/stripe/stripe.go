package stripe

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/provider"
)

const providerName = "stripe"

// Config holds the Stripe credentials.
type Config struct {
	SecretKey string `env:"STRIPE_SECRET_KEY,required"`
}

// Provider charges through Stripe PaymentIntents. Charges come back pending
// with the client secret in metadata; the caller completes them client-side
// and the engine settles via VerifyPayment or a webhook.
type Provider struct {
	sc *client.API
}

// New creates a Stripe provider.
func New(cfg Config) (*Provider, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &Provider{sc: sc}, nil
}

func (p *Provider) Name() string { return providerName }

// Currencies Stripe charges in whole units rather than cents.
var zeroDecimal = map[string]bool{"JPY": true}

func minorUnits(amount float64, currency string) int64 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func (p *Provider) ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata billing.Metadata) (*billing.PaymentTransaction, error) {
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(minorUnits(amount, currency)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("user_id", userID)

	intent, err := p.sc.PaymentIntents.New(params)
	if err != nil {
		return nil, provider.NewError(providerName, "process_payment", err)
	}

	txMeta := billing.Metadata{"stripe_client_secret": intent.ClientSecret}
	for k, v := range metadata {
		txMeta[k] = v
	}

	// The PaymentIntent ID doubles as the transaction ID so status lookups
	// need no extra mapping.
	tx, err := billing.NewPaymentTransaction(intent.ID, userID, amount, currency, providerName, txMeta)
	if err != nil {
		return nil, err
	}
	if intent.Status == stripe.PaymentIntentStatusSucceeded {
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
	intent, err := p.getIntent(ctx, transactionID, "refund_payment")
	if err != nil {
		return nil, err
	}

	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(transactionID),
	}
	if amount != nil {
		params.Amount = stripe.Int64(minorUnits(*amount, string(intent.Currency)))
	}

	refund, err := p.sc.Refunds.New(params)
	if err != nil {
		return nil, provider.NewError(providerName, "refund_payment", err)
	}

	refunded := float64(refund.Amount) / 100
	if zeroDecimal[strings.ToUpper(string(refund.Currency))] {
		refunded = float64(refund.Amount)
	}
	return &provider.Refund{
		TransactionID:    transactionID,
		ProviderRefundID: refund.ID,
		Amount:           refunded,
		Currency:         strings.ToUpper(string(refund.Currency)),
		Status:           string(refund.Status),
		CreatedAt:        timeFromUnix(refund.Created),
	}, nil
}

func (p *Provider) GetPaymentStatus(ctx context.Context, transactionID string) (billing.TransactionStatus, error) {
	intent, err := p.getIntent(ctx, transactionID, "get_payment_status")
	if err != nil {
		return "", err
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return billing.TransactionCompleted, nil
	case stripe.PaymentIntentStatusCanceled:
		return billing.TransactionFailed, nil
	default:
		return billing.TransactionPending, nil
	}
}

func (p *Provider) getIntent(ctx context.Context, id, op string) (*stripe.PaymentIntent, error) {
	intent, err := p.sc.PaymentIntents.Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, provider.ErrPaymentNotFound
		}
		return nil, provider.NewError(providerName, op, err)
	}
	return intent, nil
}

func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		SupportsRefunds:        true,
		SupportsPartialRefunds: true,
		SupportsSubscriptions:  true,
		SupportedCurrencies:    []string{"USD", "EUR", "GBP", "JPY"},
		MinAmount:              0.50,
	}
}

func (p *Provider) Healthcheck(ctx context.Context) error {
	_, err := p.sc.Balance.Get(&stripe.BalanceParams{
		Params: stripe.Params{Context: ctx},
	})
	return provider.NewError(providerName, "healthcheck", err)
}

func timeFromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
