package agentpay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/pkg/logger"
	"github.com/dmitrymomot/agentpay/pkg/validator"
	"github.com/dmitrymomot/agentpay/storage"
)

// ErrActiveSubscriptionExists is returned by Subscribe when the user already
// holds a live subscription to a different plan. Plans are never swapped
// silently; the caller cancels first.
var ErrActiveSubscriptionExists = errors.New("active subscription to a different plan exists")

// SubscriptionManager owns the subscription lifecycle: creation, renewal,
// cancellation, and the lazy period refresh that keeps a stale "active"
// status from ever being observed.
type SubscriptionManager struct {
	store storage.Storage
	grace time.Duration
	log   *slog.Logger
}

// NewSubscriptionManager creates a manager. Grace is how long past the
// period end a subscription may still auto-renew; zero means immediate
// expiry at the first missed renewal.
func NewSubscriptionManager(store storage.Storage, grace time.Duration, log *slog.Logger) *SubscriptionManager {
	if log == nil {
		log = slog.Default()
	}
	return &SubscriptionManager{store: store, grace: grace, log: log}
}

// withStore returns a manager bound to the given storage view, so callers
// owning a transaction can keep subscription reads inside it.
func (m *SubscriptionManager) withStore(store storage.Storage) *SubscriptionManager {
	if store == m.store {
		return m
	}
	return &SubscriptionManager{store: store, grace: m.grace, log: m.log}
}

// Subscribe creates an active subscription to a plan. Subscribing again to
// the same plan returns the existing subscription; a live subscription to a
// different plan is an error.
func (m *SubscriptionManager) Subscribe(ctx context.Context, userID, planID string) (*billing.Subscription, error) {
	rules := validator.RequiredSafeString("user_id", userID, 100)
	rules = append(rules, validator.RequiredSafeString("plan_id", planID, 100)...)
	if err := validator.Apply(rules...); err != nil {
		return nil, err
	}

	plan, err := m.store.GetPaymentPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", billing.ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%w: %s", billing.ErrPlanInactive, planID)
	}
	if !plan.IsSubscription() {
		return nil, validator.NewError("plan_id", planID,
			fmt.Sprintf("plan %s is not a subscription plan", planID))
	}

	if existing, err := m.store.GetUserSubscription(ctx, userID); err == nil {
		if existing.PlanID == planID {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: user %s holds plan %s", ErrActiveSubscriptionExists, userID, existing.PlanID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	periodEnd := plan.BillingPeriod.Advance(now)
	sub, err := billing.NewSubscription(uuid.NewString(), userID, planID, now, &periodEnd, nil)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	m.log.InfoContext(ctx, "subscription created",
		logger.UserID(userID),
		logger.PlanID(planID),
		slog.Time("period_end", periodEnd),
	)
	return sub, nil
}

// Cancel transitions the user's subscription to cancelled. Terminal: the
// user subscribes anew afterwards.
func (m *SubscriptionManager) Cancel(ctx context.Context, userID string) error {
	sub, err := m.store.GetUserSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return billing.ErrNoActiveSubscription
	}
	if err != nil {
		return err
	}

	if err := sub.SetStatus(billing.SubscriptionCancelled); err != nil {
		return err
	}
	if err := m.store.SaveSubscription(ctx, sub); err != nil {
		return err
	}

	m.log.InfoContext(ctx, "subscription cancelled",
		logger.UserID(userID),
		logger.PlanID(sub.PlanID),
	)
	return nil
}

// Renew advances the subscription into the next billing period and resets
// the usage counter. Used after a successful renewal payment.
func (m *SubscriptionManager) Renew(ctx context.Context, userID string) (*billing.Subscription, error) {
	sub, err := m.store.GetUserSubscription(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, billing.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}

	plan, err := m.store.GetPaymentPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	m.advance(sub, plan, time.Now().UTC())
	if err := m.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Status returns the user's subscription after refreshing any elapsed
// billing period. The refresh is the only place periods advance or expire;
// there is no background timer.
func (m *SubscriptionManager) Status(ctx context.Context, userID string) (*billing.Subscription, error) {
	sub, err := m.store.GetUserSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, sub)
}

// CheckSubscriptionAccess reports whether the user holds an active
// subscription whose plan covers the feature.
func (m *SubscriptionManager) CheckSubscriptionAccess(ctx context.Context, userID, feature string) (bool, error) {
	sub, err := m.Status(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !sub.IsActive() {
		return false, nil
	}

	plan, err := m.store.GetPaymentPlan(ctx, sub.PlanID)
	if err != nil {
		return false, err
	}
	return plan.HasFeature(feature), nil
}

// refresh applies the lazy period policy: within the grace window elapsed
// periods advance (resetting usage), past it the subscription expires.
func (m *SubscriptionManager) refresh(ctx context.Context, sub *billing.Subscription) (*billing.Subscription, error) {
	now := time.Now().UTC()
	if !sub.IsPastDueAt(now) {
		return sub, nil
	}

	if now.After(sub.CurrentPeriodEnd.Add(m.grace)) {
		if err := sub.SetStatus(billing.SubscriptionExpired); err != nil {
			return nil, err
		}
		if err := m.store.SaveSubscription(ctx, sub); err != nil {
			return nil, err
		}
		m.log.InfoContext(ctx, "subscription expired",
			logger.UserID(sub.UserID),
			logger.PlanID(sub.PlanID),
		)
		return sub, nil
	}

	plan, err := m.store.GetPaymentPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	m.advance(sub, plan, now)
	if err := m.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// advance moves the period boundary forward until it covers now and resets
// per-period usage. Repeated advancement covers subscriptions multiple
// periods past due within grace.
func (m *SubscriptionManager) advance(sub *billing.Subscription, plan *billing.PaymentPlan, now time.Time) {
	end := now
	if sub.CurrentPeriodEnd != nil {
		end = *sub.CurrentPeriodEnd
	}
	start := end
	end = plan.BillingPeriod.Advance(end)
	for !end.After(now) {
		start = end
		end = plan.BillingPeriod.Advance(end)
	}
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	sub.UsageCount = 0
}
