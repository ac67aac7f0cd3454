package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/billing"
	"github.com/dmitrymomot/agentpay/storage"
	"github.com/dmitrymomot/agentpay/storage/file"
)

func newFileStore(t *testing.T) (*file.Storage, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "agentpay.json")
	store, err := file.New(path)
	require.NoError(t, err)
	return store, path
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newFileStore(t)

	plan := &billing.PaymentPlan{
		ID:            "pro",
		Name:          "Pro Plan",
		PaymentType:   billing.PaymentTypeSubscription,
		Price:         19.99,
		Currency:      "USD",
		BillingPeriod: billing.BillingPeriodMonthly,
		Features:      []string{"chat", "search"},
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.SavePaymentPlan(ctx, plan))

	start := time.Now().UTC()
	end := start.AddDate(0, 1, 0)
	sub, err := billing.NewSubscription("sub-1", "user-1", "pro", start, &end, billing.Metadata{"source": "checkout"})
	require.NoError(t, err)
	require.NoError(t, store.SaveSubscription(ctx, sub))

	tx, err := billing.NewPaymentTransaction("tx-1", "user-1", 19.99, "USD", "stripe", nil)
	require.NoError(t, err)
	require.NoError(t, tx.MarkCompleted())
	require.NoError(t, store.SaveTransaction(ctx, tx))

	rec, err := billing.NewUsageRecord("ur-1", "user-1", "chat", 0.05, "USD", nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveUsageRecord(ctx, rec))

	// Reopen from disk and compare field for field. Amounts and timestamps
	// must survive serialization without precision loss.
	reopened, err := file.New(path)
	require.NoError(t, err)

	gotPlan, err := reopened.GetPaymentPlan(ctx, "pro")
	require.NoError(t, err)
	assert.Equal(t, plan.Price, gotPlan.Price)
	assert.Equal(t, plan.Features, gotPlan.Features)
	assert.True(t, plan.CreatedAt.Equal(gotPlan.CreatedAt))

	gotSub, err := reopened.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, sub.Status, gotSub.Status)
	assert.True(t, sub.StartDate.Equal(gotSub.StartDate))
	require.NotNil(t, gotSub.CurrentPeriodEnd)
	assert.True(t, end.Equal(*gotSub.CurrentPeriodEnd))
	assert.Equal(t, "checkout", gotSub.Metadata["source"])

	gotTx, err := reopened.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, tx.Amount, gotTx.Amount)
	assert.Equal(t, tx.Status, gotTx.Status)
	require.NotNil(t, gotTx.CompletedAt)
	assert.True(t, tx.CompletedAt.Equal(*gotTx.CompletedAt))

	usage, err := reopened.GetUserUsage(ctx, "user-1", start.Add(-time.Hour), start.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, rec.Cost, usage[0].Cost)
	assert.True(t, rec.Timestamp.Equal(usage[0].Timestamp))
}

func TestFileNotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newFileStore(t)

	_, err := store.GetPaymentPlan(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetSubscription(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetTransaction(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetUserSubscription(ctx, "nobody")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileDuplicateTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newFileStore(t)

	tx, err := billing.NewPaymentTransaction("tx-1", "user-1", 10, "USD", "mock", nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveTransaction(ctx, tx))
	require.ErrorIs(t, store.SaveTransaction(ctx, tx), storage.ErrDuplicateID)
}

func TestFileSoftDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newFileStore(t)

	plan, err := billing.NewPaymentPlan("free", "Free Tier", billing.PaymentTypeFreemium, 0, "USD")
	require.NoError(t, err)
	require.NoError(t, store.SavePaymentPlan(ctx, plan))
	require.NoError(t, store.DeletePaymentPlan(ctx, "free"))

	// Soft delete keeps the row but clears the active flag, and persists.
	reopened, err := file.New(path)
	require.NoError(t, err)
	got, err := reopened.GetPaymentPlan(ctx, "free")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestFileCorruptDataRejected(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agentpay.json")
	store, err := file.New(path)
	require.NoError(t, err)

	tx, err := billing.NewPaymentTransaction("tx-1", "user-1", 10, "USD", "mock", nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveTransaction(context.Background(), tx))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = file.New(path)
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))
}

func TestFileHealthcheck(t *testing.T) {
	t.Parallel()

	store, _ := newFileStore(t)
	status := store.Healthcheck(context.Background())
	assert.True(t, status.IsHealthy)
}
