package billing_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/billing"
)

func TestUsageLimitExceededError(t *testing.T) {
	t.Parallel()

	err := billing.NewUsageLimitExceededError("chat", 100, 100)
	require.Error(t, err)
	assert.Equal(t, "usage limit exceeded for chat: 100 of 100 requests used", err.Error())
	assert.True(t, billing.IsUsageLimitExceededError(err))
	assert.True(t, billing.IsUsageLimitExceededError(fmt.Errorf("wrap: %w", err)))
	assert.False(t, billing.IsUsageLimitExceededError(errors.New("other")))
}

func TestPaymentRequiredError(t *testing.T) {
	t.Parallel()

	err := billing.NewPaymentRequiredError("search", 9.99, "USD")
	require.Error(t, err)
	assert.Equal(t, "payment required for search: 9.99 USD", err.Error())
	assert.True(t, billing.IsPaymentRequiredError(err))

	free := billing.NewPaymentRequiredError("search", 0, "")
	assert.Equal(t, "payment required for search", free.Error())
}

func TestPaymentFailedError(t *testing.T) {
	t.Parallel()

	err := billing.NewPaymentFailedError("tx-1", "stripe", "card declined")
	require.Error(t, err)
	assert.Equal(t, "payment failed via stripe (transaction tx-1): card declined", err.Error())
	assert.True(t, billing.IsPaymentFailedError(err))

	bare := billing.NewPaymentFailedError("", "paddle", "")
	assert.Equal(t, "payment failed via paddle", bare.Error())
}
