package billing

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/agentpay/pkg/validator"
)

// Domain sentinels. Wrapped errors carry context on top of these so callers
// can branch with errors.Is.
var (
	// ErrPlanNotFound is returned when a referenced payment plan does not exist.
	ErrPlanNotFound = errors.New("payment plan not found")
	// ErrPlanInactive is returned when an operation targets a deactivated plan.
	ErrPlanInactive = errors.New("payment plan is not active")
	// ErrNoActiveSubscription is returned when access requires a subscription
	// the user does not hold.
	ErrNoActiveSubscription = errors.New("no active subscription")
	// ErrFeatureNotIncluded is returned when the user's plan does not cover
	// the requested feature.
	ErrFeatureNotIncluded = errors.New("feature not included in plan")
)

// UsageLimitExceededError is returned when a metered operation would push a
// user past their per-period quota.
type UsageLimitExceededError struct {
	Feature      string
	CurrentUsage int
	Limit        int
}

func (e UsageLimitExceededError) Error() string {
	return fmt.Sprintf("usage limit exceeded for %s: %d of %d requests used", e.Feature, e.CurrentUsage, e.Limit)
}

// NewUsageLimitExceededError creates a quota violation error.
func NewUsageLimitExceededError(feature string, current, limit int) error {
	return UsageLimitExceededError{Feature: feature, CurrentUsage: current, Limit: limit}
}

// IsUsageLimitExceededError checks if the error is a quota violation.
func IsUsageLimitExceededError(err error) bool {
	var e UsageLimitExceededError
	return errors.As(err, &e)
}

// PaymentRequiredError is returned when a paid feature is accessed without a
// qualifying subscription or payment.
type PaymentRequiredError struct {
	Feature        string
	RequiredAmount float64
	Currency       string
}

func (e PaymentRequiredError) Error() string {
	if e.RequiredAmount > 0 {
		return fmt.Sprintf("payment required for %s: %s %s", e.Feature, validator.FormatAmount(e.RequiredAmount), e.Currency)
	}
	return fmt.Sprintf("payment required for %s", e.Feature)
}

// NewPaymentRequiredError creates a payment-required error.
func NewPaymentRequiredError(feature string, amount float64, currency string) error {
	return PaymentRequiredError{Feature: feature, RequiredAmount: amount, Currency: currency}
}

// IsPaymentRequiredError checks if the error is a payment-required error.
func IsPaymentRequiredError(err error) bool {
	var e PaymentRequiredError
	return errors.As(err, &e)
}

// PaymentFailedError is returned when a provider rejects or fails a payment
// attempt. TransactionID is empty when the failure happened before a
// transaction was recorded.
type PaymentFailedError struct {
	TransactionID string
	Provider      string
	Reason        string
}

func (e PaymentFailedError) Error() string {
	msg := fmt.Sprintf("payment failed via %s", e.Provider)
	if e.TransactionID != "" {
		msg += fmt.Sprintf(" (transaction %s)", e.TransactionID)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e PaymentFailedError) Unwrap() error {
	if e.Reason == "" {
		return nil
	}
	return errors.New(e.Reason)
}

// NewPaymentFailedError creates a payment failure error.
func NewPaymentFailedError(transactionID, provider, reason string) error {
	return PaymentFailedError{TransactionID: transactionID, Provider: provider, Reason: reason}
}

// IsPaymentFailedError checks if the error is a payment failure.
func IsPaymentFailedError(err error) bool {
	var e PaymentFailedError
	return errors.As(err, &e)
}
