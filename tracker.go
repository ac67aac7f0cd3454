package agentpay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/pkg/logger"
	"github.com/dmitrymomot/agentpay/pkg/validator"
	"github.com/dmitrymomot/agentpay/storage"
)

// UsageTracker records metered feature access and answers usage queries.
// Records are append-only; aggregation happens at read time over the
// requested window.
type UsageTracker struct {
	store storage.Storage
	log   *slog.Logger
}

// NewUsageTracker creates a tracker over the given storage.
func NewUsageTracker(store storage.Storage, log *slog.Logger) *UsageTracker {
	if log == nil {
		log = slog.Default()
	}
	return &UsageTracker{store: store, log: log}
}

// withStore returns a tracker bound to the given storage view, so callers
// owning a transaction can keep usage reads inside it.
func (t *UsageTracker) withStore(store storage.Storage) *UsageTracker {
	if store == t.store {
		return t
	}
	return &UsageTracker{store: store, log: t.log}
}

// RecordUsage appends a usage record. Cost zero with an empty currency marks
// free usage.
func (t *UsageTracker) RecordUsage(ctx context.Context, userID, feature string, cost float64, currency string, metadata billing.Metadata) (*billing.UsageRecord, error) {
	rec, err := billing.NewUsageRecord(uuid.NewString(), userID, feature, cost, currency, metadata)
	if err != nil {
		return nil, err
	}
	if err := t.store.SaveUsageRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save usage record: %w", err)
	}

	t.log.DebugContext(ctx, "usage recorded",
		logger.UserID(userID),
		logger.Feature(feature),
		slog.Float64("cost", cost),
	)
	return rec, nil
}

// GetUserUsage returns the user's records with timestamps in [from, to).
func (t *UsageTracker) GetUserUsage(ctx context.Context, userID string, from, to time.Time) ([]*billing.UsageRecord, error) {
	if err := validator.Apply(validator.RequiredSafeString("user_id", userID, 100)...); err != nil {
		return nil, err
	}
	return t.store.GetUserUsage(ctx, userID, from, to)
}

// UsageCount returns how many times the user consumed a feature in the
// window. An empty feature counts everything.
func (t *UsageTracker) UsageCount(ctx context.Context, userID, feature string, from, to time.Time) (int, error) {
	records, err := t.store.GetUserUsage(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, rec := range records {
		if feature == "" || rec.Feature == feature {
			count++
		}
	}
	return count, nil
}

// TotalCost sums the user's usage cost over the window.
func (t *UsageTracker) TotalCost(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	records, err := t.store.GetUserUsage(ctx, userID, from, to)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, rec := range records {
		total += rec.Cost
	}
	return total, nil
}
