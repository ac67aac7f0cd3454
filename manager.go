package agentpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/pkg/async"
	"github.com/dmitrymomot/agentpay/pkg/logger"
	"github.com/dmitrymomot/agentpay/pkg/validator"
	"github.com/dmitrymomot/agentpay/provider"
	"github.com/dmitrymomot/agentpay/storage"
)

var (
	// ErrNoProvider is returned from payment operations when no payment
	// provider was configured.
	ErrNoProvider = errors.New("no payment provider configured")
	// ErrPaymentPending is returned by SubscribeUser when the charge was
	// accepted but has not settled; the subscription is created once the
	// payment verifies.
	ErrPaymentPending = errors.New("payment pending settlement")
)

// PaymentManager orchestrates access control and billing: it consults the
// subscription manager and usage tracker per plan type, drives payments
// through the configured provider, and persists every outcome. All methods
// are safe for concurrent use; mutating paths run inside a backend
// transaction when the storage supports one and fall back to a per-user
// mutex otherwise.
type PaymentManager struct {
	store    storage.Storage
	provider provider.Provider
	tracker  *UsageTracker
	subs     *SubscriptionManager

	defaultPlanID string
	grace         time.Duration
	log           *slog.Logger

	userLocks sync.Map // userID -> *sync.Mutex
}

// Option configures a PaymentManager.
type Option func(*PaymentManager)

// WithProvider sets the payment gateway. Without one the engine still
// serves freemium and subscription-status checks, but every payment
// operation fails with ErrNoProvider.
func WithProvider(p provider.Provider) Option {
	return func(m *PaymentManager) {
		m.provider = p
	}
}

// WithDefaultPlan names the plan applied to users without a subscription,
// typically the freemium or pay-per-use tier.
func WithDefaultPlan(planID string) Option {
	return func(m *PaymentManager) {
		m.defaultPlanID = planID
	}
}

// WithGracePeriod allows elapsed subscriptions to keep auto-renewing for d
// past their period end. Zero, the default, expires them immediately.
func WithGracePeriod(d time.Duration) Option {
	return func(m *PaymentManager) {
		if d > 0 {
			m.grace = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *PaymentManager) {
		m.log = log
	}
}

// New creates a PaymentManager over the given storage.
func New(store storage.Storage, opts ...Option) *PaymentManager {
	m := &PaymentManager{
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tracker = NewUsageTracker(store, m.log)
	m.subs = NewSubscriptionManager(store, m.grace, m.log)
	return m
}

// Tracker exposes the usage tracker for direct aggregation queries.
func (m *PaymentManager) Tracker() *UsageTracker { return m.tracker }

// Subscriptions exposes the subscription manager.
func (m *PaymentManager) Subscriptions() *SubscriptionManager { return m.subs }

func newID() string { return uuid.NewString() }

func validateUserFeature(userID, feature string) error {
	rules := validator.RequiredSafeString("user_id", userID, 100)
	rules = append(rules, validator.RequiredSafeString("feature", feature, 255)...)
	return validator.Apply(rules...)
}

// CheckAccess reports whether the user may use the feature right now. It
// never consumes quota: the answer reflects the state a following
// RecordUsage would see. Policy denial is (false, nil); infrastructure
// failure is a non-nil error.
func (m *PaymentManager) CheckAccess(ctx context.Context, userID, feature string) (bool, error) {
	if err := validateUserFeature(userID, feature); err != nil {
		return false, err
	}

	decision, err := m.evaluateAccess(ctx, m.store, userID, feature)
	if err != nil {
		return false, err
	}
	return decision.allowed, nil
}

// accessDecision captures the evaluation so RecordUsage can reuse it
// without re-querying.
type accessDecision struct {
	allowed bool
	plan    *billing.PaymentPlan
	sub     *billing.Subscription // nil without a subscription
	current int                   // usage consumed toward the relevant limit
	limit   int                   // 0 means unlimited
}

func (m *PaymentManager) evaluateAccess(ctx context.Context, store storage.Storage, userID, feature string) (*accessDecision, error) {
	// All reads go through the passed store so RecordUsage evaluates
	// inside the same transaction it writes in.
	subs := m.subs.withStore(store)
	tracker := m.tracker.withStore(store)

	// Subscription path first: an active subscription overrides the
	// default plan entirely.
	sub, err := subs.Status(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if sub != nil && sub.IsActive() {
		plan, err := store.GetPaymentPlan(ctx, sub.PlanID)
		if err != nil {
			return nil, err
		}
		if !plan.HasFeature(feature) {
			return &accessDecision{allowed: false, plan: plan, sub: sub}, nil
		}
		if plan.RequestsPerPeriod == nil {
			return &accessDecision{allowed: true, plan: plan, sub: sub, current: sub.UsageCount}, nil
		}
		return &accessDecision{
			allowed: sub.UsageCount < *plan.RequestsPerPeriod,
			plan:    plan,
			sub:     sub,
			current: sub.UsageCount,
			limit:   *plan.RequestsPerPeriod,
		}, nil
	}

	if m.defaultPlanID == "" {
		return &accessDecision{allowed: false}, nil
	}
	plan, err := store.GetPaymentPlan(ctx, m.defaultPlanID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", billing.ErrPlanNotFound, m.defaultPlanID)
	}
	if err != nil {
		return nil, err
	}
	if !plan.HasFeature(feature) {
		return &accessDecision{allowed: false, plan: plan}, nil
	}

	switch {
	case plan.IsFreemium():
		// Free allowance counts all-time usage of the feature.
		used, err := tracker.UsageCount(ctx, userID, feature, time.Time{}, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		return &accessDecision{
			allowed: used < plan.FreeRequests,
			plan:    plan,
			current: used,
			limit:   plan.FreeRequests,
		}, nil

	case plan.IsPayPerUse():
		credits, err := m.payPerUseCredits(ctx, store, userID, plan)
		if err != nil {
			return nil, err
		}
		used, err := tracker.UsageCount(ctx, userID, feature, time.Time{}, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		return &accessDecision{
			allowed: used < credits,
			plan:    plan,
			current: used,
			limit:   credits,
		}, nil

	default:
		// A subscription plan as default still requires subscribing.
		return &accessDecision{allowed: false, plan: plan}, nil
	}
}

// payPerUseCredits converts the user's completed payments into request
// credits at the plan's per-request price.
func (m *PaymentManager) payPerUseCredits(ctx context.Context, store storage.Storage, userID string, plan *billing.PaymentPlan) (int, error) {
	if plan.PricePerRequest == nil || *plan.PricePerRequest <= 0 {
		return 0, nil
	}

	txs, err := store.ListTransactions(ctx, userID, billing.TransactionCompleted, 0)
	if err != nil {
		return 0, err
	}

	paid := 0.0
	for _, tx := range txs {
		paid += tx.Amount
	}
	return int(paid / *plan.PricePerRequest), nil
}

// RecordUsage validates the input, enforces the quota for the user's plan,
// and appends a usage record. Quota exhaustion returns a
// UsageLimitExceededError carrying the current usage and the limit.
func (m *PaymentManager) RecordUsage(ctx context.Context, userID, feature string, cost float64) (*billing.UsageRecord, error) {
	if err := validateUserFeature(userID, feature); err != nil {
		return nil, err
	}
	if err := validator.Apply(validator.NonNegativeAmount("cost", cost)); err != nil {
		return nil, err
	}

	var rec *billing.UsageRecord
	err := m.withWriteLock(ctx, userID, func(ctx context.Context, store storage.Storage) error {
		decision, err := m.evaluateAccess(ctx, store, userID, feature)
		if err != nil {
			return err
		}
		if !decision.allowed {
			if decision.plan == nil || !decision.plan.HasFeature(feature) {
				return fmt.Errorf("%w: %s", billing.ErrFeatureNotIncluded, feature)
			}
			return billing.NewUsageLimitExceededError(feature, decision.current, decision.limit)
		}

		currency := ""
		if cost > 0 && decision.plan != nil {
			currency = decision.plan.Currency
		}
		rec, err = billing.NewUsageRecord(newID(), userID, feature, cost, currency, nil)
		if err != nil {
			return err
		}
		if err := store.SaveUsageRecord(ctx, rec); err != nil {
			return err
		}

		if decision.sub != nil {
			decision.sub.IncrementUsage()
			if err := store.SaveSubscription(ctx, decision.sub); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.DebugContext(ctx, "usage recorded",
		logger.UserID(userID),
		logger.Feature(feature),
	)
	return rec, nil
}

// withWriteLock runs fn under a process-local per-user mutex, and inside a
// storage transaction when the backend supports one. The mutex serializes
// local read-modify-write sequences on usage counters; the transaction adds
// storage-side atomicity but not isolation from concurrent local writers.
// Neither guards against writers in other processes.
func (m *PaymentManager) withWriteLock(ctx context.Context, userID string, fn func(ctx context.Context, store storage.Storage) error) error {
	lockAny, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	if tx, ok := m.store.(storage.TxStorage); ok && m.store.Capabilities().Transactions {
		return tx.WithinTx(ctx, fn)
	}
	return fn(ctx, m.store)
}

// ProcessPayment charges the user through the configured provider and
// persists the resulting transaction. A failed charge changes nothing.
func (m *PaymentManager) ProcessPayment(ctx context.Context, userID string, amount float64, currency string, metadata billing.Metadata) (*billing.PaymentTransaction, error) {
	if m.provider == nil {
		return nil, ErrNoProvider
	}

	rules := validator.RequiredSafeString("user_id", userID, 100)
	rules = append(rules,
		validator.PositiveAmount("amount", amount),
		validator.SupportedCurrency("currency", currency),
		validator.MinTransactableAmount("amount", amount, currency),
		validator.JSONMetadata("metadata", metadata),
	)
	if err := validator.Apply(rules...); err != nil {
		return nil, err
	}

	tx, err := m.provider.ProcessPayment(ctx, userID, amount, currency, metadata)
	if err != nil {
		m.recordDeclinedPayment(ctx, userID, amount, currency, metadata, err)
		m.log.WarnContext(ctx, "payment failed",
			logger.UserID(userID),
			logger.Provider(m.provider.Name()),
			logger.Error(err),
		)
		return nil, err
	}

	if err := m.store.SaveTransaction(ctx, tx); err != nil {
		return nil, err
	}

	m.log.InfoContext(ctx, "payment processed",
		logger.UserID(userID),
		logger.TransactionID(tx.ID),
		logger.Amount(amount, currency),
		slog.String("status", string(tx.Status)),
	)
	return tx, nil
}

// recordDeclinedPayment keeps declined charges in the transaction history.
// Best effort: a storage failure here must not mask the decline itself.
func (m *PaymentManager) recordDeclinedPayment(ctx context.Context, userID string, amount float64, currency string, metadata billing.Metadata, cause error) {
	var failed billing.PaymentFailedError
	if !errors.As(cause, &failed) || failed.TransactionID == "" {
		return
	}

	tx, err := billing.NewPaymentTransaction(failed.TransactionID, userID, amount, currency, m.provider.Name(), metadata)
	if err != nil {
		return
	}
	if err := tx.MarkFailed(); err != nil {
		return
	}
	if err := m.store.SaveTransaction(ctx, tx); err != nil {
		m.log.WarnContext(ctx, "declined transaction not recorded",
			logger.TransactionID(tx.ID),
			logger.Error(err),
		)
	}
}

// VerifyPayment asks the provider whether a stored transaction settled,
// and on confirmation completes the stored record. Safe to call repeatedly.
func (m *PaymentManager) VerifyPayment(ctx context.Context, transactionID string) (bool, error) {
	if m.provider == nil {
		return false, ErrNoProvider
	}

	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if tx.IsCompleted() {
		return true, nil
	}
	if !tx.IsPending() {
		return false, nil
	}

	verified, err := m.provider.VerifyPayment(ctx, tx.ID)
	if err != nil {
		return false, err
	}
	if !verified {
		return false, nil
	}

	if err := tx.MarkCompleted(); err != nil {
		return false, err
	}
	if err := m.store.UpdateTransaction(ctx, tx); err != nil {
		return false, err
	}
	return true, nil
}

// RefundPayment reverses a completed payment. The stored transaction flips
// to refunded only after the provider confirms; a nil amount refunds in
// full.
func (m *PaymentManager) RefundPayment(ctx context.Context, transactionID string, amount *float64) (*provider.Refund, error) {
	if m.provider == nil {
		return nil, ErrNoProvider
	}

	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if !tx.IsCompleted() {
		return nil, validator.NewError("status", string(tx.Status),
			"only completed transactions can be refunded")
	}

	refund, err := m.provider.RefundPayment(ctx, tx.ID, amount)
	if err != nil {
		return nil, err
	}

	if amount == nil || refund.Amount >= tx.Amount {
		if err := tx.MarkRefunded(); err != nil {
			return nil, err
		}
		if err := m.store.UpdateTransaction(ctx, tx); err != nil {
			return nil, err
		}
	}

	m.log.InfoContext(ctx, "payment refunded",
		logger.TransactionID(transactionID),
		logger.Amount(refund.Amount, refund.Currency),
	)
	return refund, nil
}

// SubscribeUser orchestrates payment and subscription creation. A live
// subscription short-circuits before any money moves: repeat subscribe to
// the held plan returns it without charging again, a different plan is a
// conflict. For paid plans the charge happens first; the subscription
// exists only after the payment settles, so a failed or pending payment
// leaves no partial state.
func (m *PaymentManager) SubscribeUser(ctx context.Context, userID, planID string) (*billing.Subscription, error) {
	plan, err := m.store.GetPaymentPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", billing.ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, err
	}

	existing, err := m.subs.Status(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case billing.SubscriptionActive, billing.SubscriptionSuspended:
			if existing.PlanID == planID {
				return existing, nil
			}
			return nil, fmt.Errorf("%w: user %s holds plan %s", ErrActiveSubscriptionExists, userID, existing.PlanID)
		}
	}

	if plan.Price > 0 {
		tx, err := m.ProcessPayment(ctx, userID, plan.Price, plan.Currency, billing.Metadata{
			"plan_id": planID,
		})
		if err != nil {
			return nil, err
		}
		if !tx.IsCompleted() {
			return nil, fmt.Errorf("%w: transaction %s", ErrPaymentPending, tx.ID)
		}
	}

	return m.subs.Subscribe(ctx, userID, planID)
}

// CancelUserSubscription cancels the user's subscription. Refunds are a
// separate, explicit RefundPayment call.
func (m *PaymentManager) CancelUserSubscription(ctx context.Context, userID string) error {
	return m.subs.Cancel(ctx, userID)
}

// CreatePlan validates and persists a plan.
func (m *PaymentManager) CreatePlan(ctx context.Context, plan *billing.PaymentPlan) error {
	return m.store.SavePaymentPlan(ctx, plan)
}

// GetPlan fetches a plan by ID.
func (m *PaymentManager) GetPlan(ctx context.Context, id string) (*billing.PaymentPlan, error) {
	return m.store.GetPaymentPlan(ctx, id)
}

// ListPlans returns plans, optionally only active ones.
func (m *PaymentManager) ListPlans(ctx context.Context, activeOnly bool) ([]*billing.PaymentPlan, error) {
	return m.store.ListPaymentPlans(ctx, activeOnly)
}

// DeactivatePlan soft-deletes a plan.
func (m *PaymentManager) DeactivatePlan(ctx context.Context, id string) error {
	return m.store.DeletePaymentPlan(ctx, id)
}

// Health reports storage and provider health.
type Health struct {
	Storage  storage.Status `json:"storage"`
	Provider string         `json:"provider,omitempty"`
}

// Healthcheck probes the storage backend and, when configured, the payment
// provider. The probes run concurrently so a slow gateway does not delay the
// storage answer.
func (m *PaymentManager) Healthcheck(ctx context.Context) Health {
	storageProbe := async.Go(ctx, func(ctx context.Context) (storage.Status, error) {
		return m.store.Healthcheck(ctx), nil
	})

	var providerProbe *async.Future[error]
	if m.provider != nil {
		providerProbe = async.Go(ctx, func(ctx context.Context) (error, error) {
			return m.provider.Healthcheck(ctx), nil
		})
	}

	h := Health{}
	h.Storage, _ = storageProbe.Await()
	if providerProbe != nil {
		if err, _ := providerProbe.Await(); err != nil {
			h.Provider = err.Error()
		} else {
			h.Provider = "ok"
		}
	}
	return h
}
