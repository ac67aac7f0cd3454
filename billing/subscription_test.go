package billing_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/billing"
)

func newTestSubscription(t *testing.T) *billing.Subscription {
	t.Helper()

	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	sub, err := billing.NewSubscription("sub-1", "user-1", "pro", start, &end, nil)
	require.NoError(t, err)
	return sub
}

func TestNewSubscription(t *testing.T) {
	t.Parallel()

	t.Run("starts active", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		assert.Equal(t, billing.SubscriptionActive, sub.Status)
		assert.True(t, sub.IsActive())
		assert.Zero(t, sub.UsageCount)
	})

	t.Run("rejects empty plan id", func(t *testing.T) {
		t.Parallel()

		_, err := billing.NewSubscription("sub-2", "user-1", "", time.Now().UTC(), nil, nil)
		require.Error(t, err)
	})

	t.Run("never born terminal", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.ValidateInitialStatus())
	})
}

func TestSubscriptionSetStatus(t *testing.T) {
	t.Parallel()

	t.Run("active to cancelled", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionCancelled))
		assert.Equal(t, billing.SubscriptionCancelled, sub.Status)
		assert.False(t, sub.IsActive())
	})

	t.Run("active to expired", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionExpired))
		assert.Equal(t, billing.SubscriptionExpired, sub.Status)
	})

	t.Run("suspend and reactivate", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionSuspended))
		assert.False(t, sub.IsActive())
		require.NoError(t, sub.SetStatus(billing.SubscriptionActive))
		assert.True(t, sub.IsActive())
	})

	t.Run("suspended can be cancelled", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionSuspended))
		require.NoError(t, sub.SetStatus(billing.SubscriptionCancelled))
	})

	t.Run("suspended cannot expire", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionSuspended))
		err := sub.SetStatus(billing.SubscriptionExpired)
		require.Error(t, err)
		assert.Equal(t, billing.SubscriptionSuspended, sub.Status)
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionCancelled))
		err := sub.SetStatus(billing.SubscriptionActive)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot change subscription status from cancelled to active")
	})

	t.Run("expired is terminal", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionExpired))
		require.Error(t, sub.SetStatus(billing.SubscriptionActive))
		require.Error(t, sub.SetStatus(billing.SubscriptionSuspended))
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.SetStatus(billing.SubscriptionActive))
		require.NoError(t, sub.SetStatus(billing.SubscriptionCancelled))
		require.NoError(t, sub.SetStatus(billing.SubscriptionCancelled))
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.Error(t, sub.SetStatus(billing.SubscriptionStatus("paused")))
	})
}

func TestSubscriptionTime(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	t.Run("active within period", func(t *testing.T) {
		t.Parallel()

		end := now.AddDate(0, 0, 10)
		sub := &billing.Subscription{
			ID: "s", UserID: "u", PlanID: "p",
			Status:           billing.SubscriptionActive,
			StartDate:        now.AddDate(0, -1, 0),
			CurrentPeriodEnd: &end,
		}
		assert.True(t, sub.IsActiveAt(now))
		assert.False(t, sub.IsPastDueAt(now))
		assert.Equal(t, 10, sub.DaysRemainingAt(now))
	})

	t.Run("period elapsed", func(t *testing.T) {
		t.Parallel()

		end := now.AddDate(0, 0, -1)
		sub := &billing.Subscription{
			ID: "s", UserID: "u", PlanID: "p",
			Status:           billing.SubscriptionActive,
			StartDate:        now.AddDate(0, -2, 0),
			CurrentPeriodEnd: &end,
		}
		assert.False(t, sub.IsActiveAt(now))
		assert.True(t, sub.IsPastDueAt(now))
		assert.Equal(t, 0, sub.DaysRemainingAt(now))
	})

	t.Run("end date elapsed", func(t *testing.T) {
		t.Parallel()

		end := now.AddDate(0, 0, -1)
		sub := &billing.Subscription{
			ID: "s", UserID: "u", PlanID: "p",
			Status:    billing.SubscriptionActive,
			StartDate: now.AddDate(0, -2, 0),
			EndDate:   &end,
		}
		assert.False(t, sub.IsActiveAt(now))
	})

	t.Run("no period boundary", func(t *testing.T) {
		t.Parallel()

		sub := &billing.Subscription{
			ID: "s", UserID: "u", PlanID: "p",
			Status:    billing.SubscriptionActive,
			StartDate: now,
		}
		assert.True(t, sub.IsActiveAt(now.AddDate(10, 0, 0)))
		assert.Equal(t, -1, sub.DaysRemainingAt(now))
	})
}

func TestSubscriptionValidate(t *testing.T) {
	t.Parallel()

	t.Run("end before start rejected", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		earlier := sub.StartDate.Add(-time.Hour)
		sub.EndDate = &earlier
		err := sub.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "end date cannot be before start date")
	})

	t.Run("period end before period start rejected", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		earlier := sub.CurrentPeriodStart.Add(-time.Hour)
		sub.CurrentPeriodEnd = &earlier
		require.Error(t, sub.Validate())
	})

	t.Run("negative usage rejected", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		sub.UsageCount = -1
		require.Error(t, sub.Validate())
	})

	t.Run("initial status restricted", func(t *testing.T) {
		t.Parallel()

		sub := newTestSubscription(t)
		require.NoError(t, sub.ValidateInitialStatus())

		sub.Status = billing.SubscriptionSuspended
		require.NoError(t, sub.ValidateInitialStatus())

		sub.Status = billing.SubscriptionCancelled
		require.Error(t, sub.ValidateInitialStatus())

		sub.Status = billing.SubscriptionExpired
		require.Error(t, sub.ValidateInitialStatus())
	})
}

func TestSubscriptionIncrementUsage(t *testing.T) {
	t.Parallel()

	sub := newTestSubscription(t)
	for i := 0; i < 5; i++ {
		sub.IncrementUsage()
	}
	assert.Equal(t, 5, sub.UsageCount)
}
