package mock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/provider"
)

const providerName = "mock"

// Provider is an in-memory payment gateway for development and tests. It
// settles every charge immediately, optionally failing a configurable share
// of them, and remembers transactions so verification and refunds work
// against it like a real gateway.
type Provider struct {
	mu           sync.Mutex
	transactions map[string]*billing.PaymentTransaction
	refunds      map[string]*provider.Refund

	failureRate float64
	latency     time.Duration
	caps        provider.Capabilities
	rand        *rand.Rand
}

// Option configures the mock provider.
type Option func(*Provider)

// WithFailureRate makes the given share of charges fail, 0 to 1.
func WithFailureRate(rate float64) Option {
	return func(p *Provider) {
		p.failureRate = min(max(rate, 0), 1)
	}
}

// WithLatency delays every call to simulate a remote gateway.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) {
		p.latency = d
	}
}

// WithCapabilities overrides the advertised capabilities.
func WithCapabilities(caps provider.Capabilities) Option {
	return func(p *Provider) {
		p.caps = caps
	}
}

// WithSeed makes the failure sequence deterministic for tests.
func WithSeed(seed uint64) Option {
	return func(p *Provider) {
		p.rand = rand.New(rand.NewPCG(seed, seed))
	}
}

// New creates a mock provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		transactions: make(map[string]*billing.PaymentTransaction),
		refunds:      make(map[string]*provider.Refund),
		caps: provider.Capabilities{
			SupportsRefunds:        true,
			SupportsPartialRefunds: true,
			SupportsSubscriptions:  true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) simulate(ctx context.Context) error {
	if p.latency <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.latency):
		return nil
	}
}

func (p *Provider) shouldFail() bool {
	if p.failureRate <= 0 {
		return false
	}
	if p.rand != nil {
		return p.rand.Float64() < p.failureRate
	}
	return rand.Float64() < p.failureRate
}

func (p *Provider) ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata billing.Metadata) (*billing.PaymentTransaction, error) {
	if err := p.simulate(ctx); err != nil {
		return nil, provider.NewError(providerName, "process_payment", err)
	}
	if !p.caps.SupportsCurrency(currency) {
		return nil, provider.ErrCurrencyUnsupported
	}
	if !p.caps.WithinLimits(amount) {
		return nil, provider.ErrAmountOutOfRange
	}

	tx, err := billing.NewPaymentTransaction(uuid.NewString(), userID, amount, currency, providerName, metadata)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shouldFail() {
		if err := tx.MarkFailed(); err != nil {
			return nil, err
		}
		p.transactions[tx.ID] = tx
		return nil, billing.NewPaymentFailedError(tx.ID, providerName, "simulated decline")
	}

	if err := tx.MarkCompleted(); err != nil {
		return nil, err
	}
	p.transactions[tx.ID] = tx

	out := *tx
	return &out, nil
}

func (p *Provider) VerifyPayment(ctx context.Context, transactionID string) (bool, error) {
	if err := p.simulate(ctx); err != nil {
		return false, provider.NewError(providerName, "verify_payment", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.transactions[transactionID]
	if !ok {
		return false, provider.ErrPaymentNotFound
	}
	return tx.IsCompleted(), nil
}

func (p *Provider) RefundPayment(ctx context.Context, transactionID string, amount *float64) (*provider.Refund, error) {
	if err := p.simulate(ctx); err != nil {
		return nil, provider.NewError(providerName, "refund_payment", err)
	}
	if !p.caps.SupportsRefunds {
		return nil, provider.ErrRefundsUnsupported
	}
	if amount != nil && !p.caps.SupportsPartialRefunds {
		return nil, provider.ErrPartialRefundsUnsupported
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.transactions[transactionID]
	if !ok {
		return nil, provider.ErrPaymentNotFound
	}

	refundAmount := tx.Amount
	if amount != nil {
		if *amount <= 0 || *amount > tx.Amount {
			return nil, fmt.Errorf("%w: %v", provider.ErrAmountOutOfRange, *amount)
		}
		refundAmount = *amount
	}

	// Full refunds flip the transaction, partial ones leave it completed.
	if amount == nil || refundAmount == tx.Amount {
		if err := tx.MarkRefunded(); err != nil {
			return nil, err
		}
	}

	refund := &provider.Refund{
		TransactionID:    transactionID,
		ProviderRefundID: uuid.NewString(),
		Amount:           refundAmount,
		Currency:         tx.Currency,
		Status:           "succeeded",
		CreatedAt:        time.Now().UTC(),
	}
	p.refunds[refund.ProviderRefundID] = refund
	return refund, nil
}

func (p *Provider) GetPaymentStatus(ctx context.Context, transactionID string) (billing.TransactionStatus, error) {
	if err := p.simulate(ctx); err != nil {
		return "", provider.NewError(providerName, "get_payment_status", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.transactions[transactionID]
	if !ok {
		return "", provider.ErrPaymentNotFound
	}
	return tx.Status, nil
}

func (p *Provider) Capabilities() provider.Capabilities { return p.caps }

func (p *Provider) Healthcheck(ctx context.Context) error {
	return p.simulate(ctx)
}

// Transaction returns a stored transaction by ID, for test assertions.
func (p *Provider) Transaction(id string) (*billing.PaymentTransaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, ok := p.transactions[id]
	if !ok {
		return nil, false
	}
	out := *tx
	return &out, true
}
