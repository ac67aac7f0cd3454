package validator_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/pkg/validator"
)

func TestNonNegativeAmount(t *testing.T) {
	assert.True(t, validator.NonNegativeAmount("amount", 0.0).Check())
	assert.True(t, validator.NonNegativeAmount("amount", 10.5).Check())
	assert.False(t, validator.NonNegativeAmount("amount", -0.01).Check())
}

func TestSupportedCurrency(t *testing.T) {
	t.Run("accepts fiat, stablecoin and crypto codes", func(t *testing.T) {
		for _, code := range []string{"USD", "usd", "USDC", "ETH", "jpy"} {
			assert.True(t, validator.SupportedCurrency("currency", code).Check(), code)
		}
	})

	t.Run("rejects unknown codes", func(t *testing.T) {
		rule := validator.SupportedCurrency("currency", "XYZ")
		assert.False(t, rule.Check())
		assert.Equal(t, "currency XYZ is not supported", rule.Error.Message)
	})
}

func TestMinTransactableAmount(t *testing.T) {
	t.Run("fiat minimum is one cent", func(t *testing.T) {
		assert.True(t, validator.MinTransactableAmount("amount", 0.10, "USD").Check())
		assert.True(t, validator.MinTransactableAmount("amount", 0.01, "USD").Check())
		assert.False(t, validator.MinTransactableAmount("amount", 0.005, "USD").Check())
	})

	t.Run("stablecoin minimum is fifty cents", func(t *testing.T) {
		rule := validator.MinTransactableAmount("amount", 0.10, "USDC")
		assert.False(t, rule.Check())
		assert.Equal(t, "amount 0.10 USDC is below the minimum 0.50 USDC", rule.Error.Message)

		assert.True(t, validator.MinTransactableAmount("amount", 0.50, "USDC").Check())
	})

	t.Run("crypto minimums are per asset", func(t *testing.T) {
		assert.False(t, validator.MinTransactableAmount("amount", 0.00005, "BTC").Check())
		assert.True(t, validator.MinTransactableAmount("amount", 0.0001, "BTC").Check())
		assert.False(t, validator.MinTransactableAmount("amount", 0.0001, "ETH").Check())
	})

	t.Run("unknown currency passes through", func(t *testing.T) {
		// SupportedCurrency is responsible for rejecting unknown codes.
		assert.True(t, validator.MinTransactableAmount("amount", 0.0001, "XYZ").Check())
	})
}

func TestCurrencyClasses(t *testing.T) {
	assert.Equal(t, validator.ClassFiat, validator.ClassOf("usd"))
	assert.Equal(t, validator.ClassStablecoin, validator.ClassOf("USDT"))
	assert.Equal(t, validator.ClassCrypto, validator.ClassOf("eth"))
	assert.Equal(t, validator.CurrencyClass(""), validator.ClassOf("XYZ"))

	min, ok := validator.MinimumTransactable("JPY")
	require.True(t, ok)
	assert.Equal(t, 1.0, min)

	assert.NotEmpty(t, validator.SupportedCurrencies())
}
