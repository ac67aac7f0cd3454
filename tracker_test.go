package agentpay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay"
	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage/memory"
)

func TestUsageTracker(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := agentpay.NewUsageTracker(memory.New(), nil)

	_, err := tracker.RecordUsage(ctx, "u1", "chat", 0, "", nil)
	require.NoError(t, err)
	_, err = tracker.RecordUsage(ctx, "u1", "chat", 0.25, "USD", billing.Metadata{"model": "large"})
	require.NoError(t, err)
	_, err = tracker.RecordUsage(ctx, "u1", "search", 0.10, "USD", nil)
	require.NoError(t, err)
	_, err = tracker.RecordUsage(ctx, "u2", "chat", 0, "", nil)
	require.NoError(t, err)

	from := time.Time{}
	to := time.Now().UTC().Add(time.Second)

	t.Run("per feature count", func(t *testing.T) {
		t.Parallel()

		n, err := tracker.UsageCount(ctx, "u1", "chat", from, to)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("empty feature counts all", func(t *testing.T) {
		t.Parallel()

		n, err := tracker.UsageCount(ctx, "u1", "", from, to)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("records scoped to user", func(t *testing.T) {
		t.Parallel()

		records, err := tracker.GetUserUsage(ctx, "u2", from, to)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "u2", records[0].UserID)
	})

	t.Run("total cost", func(t *testing.T) {
		t.Parallel()

		total, err := tracker.TotalCost(ctx, "u1", from, to)
		require.NoError(t, err)
		assert.InDelta(t, 0.35, total, 1e-9)
	})

	t.Run("window excludes future records", func(t *testing.T) {
		t.Parallel()

		past := time.Now().UTC().Add(-time.Hour)
		n, err := tracker.UsageCount(ctx, "u1", "chat", from, past)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestUsageTrackerValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := agentpay.NewUsageTracker(memory.New(), nil)

	_, err := tracker.RecordUsage(ctx, "u1", "chat", -0.5, "USD", nil)
	require.Error(t, err)

	// Positive cost requires a currency.
	_, err = tracker.RecordUsage(ctx, "u1", "chat", 0.5, "", nil)
	require.Error(t, err)

	_, err = tracker.GetUserUsage(ctx, "", time.Time{}, time.Now())
	require.Error(t, err)
}
