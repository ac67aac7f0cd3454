package billing

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/agentpay/pkg/validator"
)

// PaymentType describes how a plan charges for usage.
type PaymentType string

const (
	PaymentTypePayPerUse    PaymentType = "pay_per_use"
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypeFreemium     PaymentType = "freemium"
)

// ParsePaymentType validates and converts a raw payment type string.
func ParsePaymentType(s string) (PaymentType, error) {
	switch PaymentType(s) {
	case PaymentTypePayPerUse, PaymentTypeSubscription, PaymentTypeFreemium:
		return PaymentType(s), nil
	}
	return "", validator.NewError("payment_type", s,
		fmt.Sprintf("invalid payment type: %s", s))
}

// BillingPeriod is the recurring interval over which a subscription's usage
// counter resets.
type BillingPeriod string

const (
	BillingPeriodDaily   BillingPeriod = "daily"
	BillingPeriodWeekly  BillingPeriod = "weekly"
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
)

// ParseBillingPeriod validates and converts a raw billing period string.
func ParseBillingPeriod(s string) (BillingPeriod, error) {
	switch BillingPeriod(s) {
	case BillingPeriodDaily, BillingPeriodWeekly, BillingPeriodMonthly, BillingPeriodYearly:
		return BillingPeriod(s), nil
	}
	return "", validator.NewError("billing_period", s,
		fmt.Sprintf("invalid billing period: %s", s))
}

// Advance returns t moved forward by one billing period using calendar-aware
// arithmetic. Month and year additions clamp to the last valid day instead of
// normalizing, so Jan 31 + 1 month resolves to Feb 28 (29 in leap years)
// rather than rolling into March.
func (p BillingPeriod) Advance(t time.Time) time.Time {
	switch p {
	case BillingPeriodDaily:
		return t.AddDate(0, 0, 1)
	case BillingPeriodWeekly:
		return t.AddDate(0, 0, 7)
	case BillingPeriodMonthly:
		return addMonthsClamped(t, 1)
	case BillingPeriodYearly:
		return addMonthsClamped(t, 12)
	}
	return t
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	// Normalize via the first day of the target month, then clamp the day.
	first := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	first = first.AddDate(0, months, 0)

	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// TransactionStatus is the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionSuspended SubscriptionStatus = "suspended"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// Metadata is an open, string-keyed bag attached to entities. Values must be
// JSON-compatible; ValidateMetadata rejects anything else.
type Metadata = map[string]any

// ValidateMetadata checks that metadata is recursively JSON-compatible.
func ValidateMetadata(field string, metadata Metadata) error {
	return validator.Apply(validator.JSONMetadata(field, metadata))
}
