package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderDisabled is returned when constructing a provider that
	// configuration has not enabled.
	ErrProviderDisabled = errors.New("payment provider is disabled by configuration")
	// ErrUnknownProvider is returned for a name no constructor is
	// registered under.
	ErrUnknownProvider = errors.New("unknown payment provider")
	// ErrPaymentNotFound is returned when a transaction ID is unknown to
	// the provider.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrRefundsUnsupported is returned when a refund is requested from a
	// provider without refund support.
	ErrRefundsUnsupported = errors.New("provider does not support refunds")
	// ErrPartialRefundsUnsupported is returned for a partial amount on a
	// full-refund-only provider.
	ErrPartialRefundsUnsupported = errors.New("provider does not support partial refunds")
	// ErrCurrencyUnsupported is returned when the provider cannot charge
	// in the requested currency.
	ErrCurrencyUnsupported = errors.New("provider does not support currency")
	// ErrAmountOutOfRange is returned when the amount falls outside the
	// provider's charge bounds.
	ErrAmountOutOfRange = errors.New("amount outside provider limits")
)

// Error wraps a gateway failure with the provider name and the operation
// that failed, so infrastructure errors stay distinguishable from domain
// outcomes like a declined card.
type Error struct {
	Provider  string
	Operation string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err as a provider failure. Returns nil when err is nil.
func NewError(providerName, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: providerName, Operation: operation, Err: err}
}

// IsProviderError checks if the error is a gateway infrastructure failure.
func IsProviderError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
