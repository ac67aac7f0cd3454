package agentpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
)

// Guard is a reusable access check for one feature. Guards are thin
// adapters over CheckAccess and RecordUsage: they add no policy of their
// own and surface the same error types, so call sites catch consistently
// regardless of which guard denied.
type Guard func(ctx context.Context, userID string) error

// PaidFeature guards a feature behind any payment path. Denial is a
// PaymentRequiredError carrying the feature and, when known, the amount
// that would unlock it.
func (m *PaymentManager) PaidFeature(feature string) Guard {
	return func(ctx context.Context, userID string) error {
		allowed, err := m.CheckAccess(ctx, userID, feature)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		amount, currency := m.unlockPrice(ctx, feature)
		return billing.NewPaymentRequiredError(feature, amount, currency)
	}
}

// SubscriptionRequired guards a feature behind an active subscription
// specifically: freemium allowance and pay-per-use credits do not satisfy
// it.
func (m *PaymentManager) SubscriptionRequired(feature string) Guard {
	return func(ctx context.Context, userID string) error {
		sub, err := m.subs.Status(ctx, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return billing.ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		if !sub.IsActive() {
			return billing.ErrNoActiveSubscription
		}

		plan, err := m.store.GetPaymentPlan(ctx, sub.PlanID)
		if err != nil {
			return err
		}
		if !plan.HasFeature(feature) {
			return fmt.Errorf("%w: %s", billing.ErrFeatureNotIncluded, feature)
		}
		return nil
	}
}

// UsageLimit guards a feature and consumes one unit of quota on every
// successful pass. Exhausted quota surfaces as UsageLimitExceededError.
func (m *PaymentManager) UsageLimit(feature string) Guard {
	return func(ctx context.Context, userID string) error {
		_, err := m.RecordUsage(ctx, userID, feature, 0)
		return err
	}
}

// unlockPrice resolves what the user would pay to access a feature, for
// error context only.
func (m *PaymentManager) unlockPrice(ctx context.Context, feature string) (float64, string) {
	if m.defaultPlanID == "" {
		return 0, ""
	}
	plan, err := m.store.GetPaymentPlan(ctx, m.defaultPlanID)
	if err != nil || !plan.HasFeature(feature) {
		return 0, ""
	}
	if plan.IsPayPerUse() && plan.PricePerRequest != nil {
		return *plan.PricePerRequest, plan.Currency
	}
	return plan.Price, plan.Currency
}
