package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/agentpay/pkg/statemachine"
	"github.com/dmitrymomot/agentpay/pkg/validator"
)

const (
	eventActivate = statemachine.StringEvent("activate")
	eventSuspend  = statemachine.StringEvent("suspend")
	eventCancel   = statemachine.StringEvent("cancel")
	eventExpire   = statemachine.StringEvent("expire")
)

// Transition table for subscriptions. Cancelled and expired are terminal:
// a dead subscription is never resurrected, the user subscribes again instead.
var subscriptionMachine = statemachine.MustNew(
	statemachine.WithTransitions(
		statemachine.Transition{From: statemachine.StringState(SubscriptionActive), To: statemachine.StringState(SubscriptionCancelled), Event: eventCancel},
		statemachine.Transition{From: statemachine.StringState(SubscriptionActive), To: statemachine.StringState(SubscriptionExpired), Event: eventExpire},
		statemachine.Transition{From: statemachine.StringState(SubscriptionActive), To: statemachine.StringState(SubscriptionSuspended), Event: eventSuspend},
		statemachine.Transition{From: statemachine.StringState(SubscriptionSuspended), To: statemachine.StringState(SubscriptionActive), Event: eventActivate},
		statemachine.Transition{From: statemachine.StringState(SubscriptionSuspended), To: statemachine.StringState(SubscriptionCancelled), Event: eventCancel},
	),
)

var subscriptionEvents = map[SubscriptionStatus]statemachine.Event{
	SubscriptionActive:    eventActivate,
	SubscriptionSuspended: eventSuspend,
	SubscriptionCancelled: eventCancel,
	SubscriptionExpired:   eventExpire,
}

// Subscription ties a user to a payment plan for a billing period. UsageCount
// tracks requests consumed in the current period and resets on renewal.
type Subscription struct {
	ID                 string             `json:"id"`
	UserID             string             `json:"user_id"`
	PlanID             string             `json:"plan_id"`
	Status             SubscriptionStatus `json:"status"`
	StartDate          time.Time          `json:"start_date"`
	EndDate            *time.Time         `json:"end_date,omitempty"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	UsageCount         int                `json:"usage_count"`
	Metadata           Metadata           `json:"metadata,omitempty"`
}

// NewSubscription creates a subscription in active status. A subscription is
// never born already dead: construction in a terminal status is rejected,
// and callers wanting a suspended start set the status explicitly after
// construction.
func NewSubscription(id, userID, planID string, start time.Time, periodEnd *time.Time, metadata Metadata) (*Subscription, error) {
	sub := &Subscription{
		ID:                 id,
		UserID:             userID,
		PlanID:             planID,
		Status:             SubscriptionActive,
		StartDate:          start,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   periodEnd,
		Metadata:           metadata,
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := sub.ValidateInitialStatus(); err != nil {
		return nil, err
	}
	return sub, nil
}

// SetStatus transitions the subscription with transition validation.
// Setting the current status again is a no-op.
func (s *Subscription) SetStatus(next SubscriptionStatus) error {
	if next == s.Status {
		return nil
	}

	event, ok := subscriptionEvents[next]
	if !ok {
		return validator.NewError("status", string(next),
			fmt.Sprintf("invalid subscription status: %s", next))
	}

	resolved, err := subscriptionMachine.Fire(context.Background(), statemachine.StringState(s.Status), event, s)
	if err != nil {
		return validator.NewError("status", string(next),
			fmt.Sprintf("cannot change subscription status from %s to %s", s.Status, next))
	}
	s.Status = SubscriptionStatus(resolved.Name())
	return nil
}

// IncrementUsage bumps the per-period usage counter.
func (s *Subscription) IncrementUsage() {
	s.UsageCount++
}

// IsActiveAt reports whether the subscription grants access at the given
// moment: active status and no elapsed end or period boundary.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	if s.Status != SubscriptionActive {
		return false
	}
	if s.EndDate != nil && now.After(*s.EndDate) {
		return false
	}
	if s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd) {
		return false
	}
	return true
}

// IsActive reports whether the subscription grants access right now.
func (s *Subscription) IsActive() bool {
	return s.IsActiveAt(time.Now().UTC())
}

// IsPastDueAt reports whether the billing period has elapsed while the
// subscription is still nominally active. The subscription manager uses this
// to decide between advancing the period and expiring.
func (s *Subscription) IsPastDueAt(now time.Time) bool {
	return s.Status == SubscriptionActive &&
		s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd)
}

// DaysRemainingAt returns whole days left in the current billing period at a
// given time, or -1 when the subscription has no period boundary.
func (s *Subscription) DaysRemainingAt(now time.Time) int {
	if s.CurrentPeriodEnd == nil {
		return -1
	}
	if now.After(*s.CurrentPeriodEnd) {
		return 0
	}
	return int(s.CurrentPeriodEnd.Sub(now).Hours() / 24)
}

// Validate enforces the subscription invariants. It runs at construction and
// again on every mutation path before persisting.
func (s *Subscription) Validate() error {
	rules := validator.RequiredSafeString("id", s.ID, 100)
	rules = append(rules, validator.RequiredSafeString("user_id", s.UserID, 100)...)
	rules = append(rules, validator.RequiredSafeString("plan_id", s.PlanID, 100)...)
	rules = append(rules,
		validator.NonNegativeAmount("usage_count", s.UsageCount),
		validator.JSONMetadata("metadata", s.Metadata),
	)
	if err := validator.Apply(rules...); err != nil {
		return err
	}

	switch s.Status {
	case SubscriptionActive, SubscriptionSuspended, SubscriptionCancelled, SubscriptionExpired:
	default:
		return validator.NewError("status", string(s.Status),
			fmt.Sprintf("invalid subscription status: %s", s.Status))
	}

	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return validator.NewError("end_date", *s.EndDate,
			"end date cannot be before start date")
	}
	if s.CurrentPeriodEnd != nil && s.CurrentPeriodStart != nil &&
		s.CurrentPeriodEnd.Before(*s.CurrentPeriodStart) {
		return validator.NewError("current_period_end", *s.CurrentPeriodEnd,
			"current period end cannot be before current period start")
	}

	return nil
}

// ValidateInitialStatus additionally rejects construction in a terminal
// status. Storage backends loading historical rows skip this check.
func (s *Subscription) ValidateInitialStatus() error {
	switch s.Status {
	case SubscriptionActive, SubscriptionSuspended:
		return nil
	}
	return validator.NewError("status", string(s.Status),
		fmt.Sprintf("subscription cannot be created in %s status", s.Status))
}
