package provider

import (
	"context"
	"slices"
	"time"

	"github.com/dmitrymomot/agentpay/billing"
)

// Provider is the payment gateway contract consumed by the engine. Every
// implementation returns transactions in pending or completed status; the
// engine owns persisting them and driving quota state from the outcome.
type Provider interface {
	// Name returns the stable provider identifier used in transaction
	// records and the registry.
	Name() string

	// ProcessPayment charges the user and returns the resulting
	// transaction. A declined charge returns a PaymentFailedError, not a
	// failed transaction.
	ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata billing.Metadata) (*billing.PaymentTransaction, error)

	// VerifyPayment reports whether the provider considers the payment
	// settled.
	VerifyPayment(ctx context.Context, transactionID string) (bool, error)

	// RefundPayment reverses a settled payment. A nil amount refunds in
	// full; a partial amount requires the SupportsPartialRefunds
	// capability.
	RefundPayment(ctx context.Context, transactionID string, amount *float64) (*Refund, error)

	// GetPaymentStatus fetches the provider-side status of a payment.
	GetPaymentStatus(ctx context.Context, transactionID string) (billing.TransactionStatus, error)

	// Capabilities describes what the provider supports so the engine can
	// reject unsupported operations before calling out.
	Capabilities() Capabilities

	// Healthcheck probes provider connectivity.
	Healthcheck(ctx context.Context) error
}

// Capabilities describes a provider's feature surface.
type Capabilities struct {
	SupportsRefunds        bool     `json:"supports_refunds"`
	SupportsPartialRefunds bool     `json:"supports_partial_refunds"`
	SupportsSubscriptions  bool     `json:"supports_subscriptions"`
	SupportedCurrencies    []string `json:"supported_currencies"`
	// MinAmount and MaxAmount bound a single charge, zero means unbounded.
	MinAmount float64 `json:"min_amount,omitempty"`
	MaxAmount float64 `json:"max_amount,omitempty"`
}

// SupportsCurrency reports whether the provider accepts a currency. An empty
// currency list means everything billing supports.
func (c Capabilities) SupportsCurrency(code string) bool {
	if len(c.SupportedCurrencies) == 0 {
		return true
	}
	return slices.Contains(c.SupportedCurrencies, code)
}

// WithinLimits reports whether an amount fits the provider's charge bounds.
func (c Capabilities) WithinLimits(amount float64) bool {
	if c.MinAmount > 0 && amount < c.MinAmount {
		return false
	}
	if c.MaxAmount > 0 && amount > c.MaxAmount {
		return false
	}
	return true
}

// Refund is the outcome of a refund request.
type Refund struct {
	TransactionID    string    `json:"transaction_id"`
	ProviderRefundID string    `json:"provider_refund_id,omitempty"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}
