package agentpay_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay"
	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage/memory"
)

const validCatalog = `
plans:
  - id: free
    name: Free Tier
    payment_type: freemium
    currency: USD
    free_requests: 100
    features: [chat]
  - id: pro
    name: Pro Plan
    payment_type: subscription
    price: 10
    currency: USD
    billing_period: monthly
    requests_per_period: 1000
    features: [chat, search, export]
  - id: metered
    name: Metered
    payment_type: pay_per_use
    currency: USDC
    price_per_request: 0.5
    features: [chat]
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPlansFileSourceLoad(t *testing.T) {
	t.Parallel()

	src := agentpay.NewPlansFileSource(writeCatalog(t, validCatalog))
	plans, err := src.Load()
	require.NoError(t, err)
	require.Len(t, plans, 3)

	assert.Equal(t, billing.PaymentTypeFreemium, plans[0].PaymentType)
	assert.Equal(t, 100, plans[0].FreeRequests)

	assert.Equal(t, billing.BillingPeriodMonthly, plans[1].BillingPeriod)
	require.NotNil(t, plans[1].RequestsPerPeriod)
	assert.Equal(t, 1000, *plans[1].RequestsPerPeriod)

	require.NotNil(t, plans[2].PricePerRequest)
	assert.Equal(t, 0.5, *plans[2].PricePerRequest)
	assert.True(t, plans[2].IsActive)
}

func TestPlansFileSourceApply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	src := agentpay.NewPlansFileSource(writeCatalog(t, validCatalog))

	_, err := src.Apply(ctx, store)
	require.NoError(t, err)

	stored, err := store.ListPaymentPlans(ctx, true)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestPlansFileSourceRejectsInvalid(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := agentpay.NewPlansFileSource(filepath.Join(t.TempDir(), "nope.yaml")).Load()
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		t.Parallel()

		_, err := agentpay.NewPlansFileSource(writeCatalog(t, "plans: [")).Load()
		require.Error(t, err)
	})

	t.Run("empty catalog", func(t *testing.T) {
		t.Parallel()

		_, err := agentpay.NewPlansFileSource(writeCatalog(t, "plans: []")).Load()
		require.Error(t, err)
	})

	t.Run("unknown payment type", func(t *testing.T) {
		t.Parallel()

		catalog := `
plans:
  - id: weird
    name: Weird
    payment_type: barter
    currency: USD
`
		_, err := agentpay.NewPlansFileSource(writeCatalog(t, catalog)).Load()
		require.Error(t, err)
	})

	t.Run("one invalid plan fails the load", func(t *testing.T) {
		t.Parallel()

		// Subscription plan without a billing period is invalid; the valid
		// free plan before it must not be returned either.
		catalog := `
plans:
  - id: free
    name: Free Tier
    payment_type: freemium
    currency: USD
    free_requests: 10
    features: [chat]
  - id: broken
    name: Broken
    payment_type: subscription
    price: 10
    currency: USD
    features: [chat]
`
		_, err := agentpay.NewPlansFileSource(writeCatalog(t, catalog)).Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})
}
