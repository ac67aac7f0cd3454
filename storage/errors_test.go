package storage_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/storage"
)

func TestStorageError(t *testing.T) {
	t.Parallel()

	t.Run("wraps cause", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection reset")
		err := storage.NewError("postgres", "get_transaction", "tx-1", cause)
		require.Error(t, err)
		assert.Equal(t, "postgres storage: get_transaction tx-1: connection reset", err.Error())
		assert.ErrorIs(t, err, cause)
		assert.True(t, storage.IsStorageError(err))
		assert.True(t, storage.IsStorageError(fmt.Errorf("outer: %w", err)))
	})

	t.Run("nil cause stays nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, storage.NewError("postgres", "op", "", nil))
	})

	t.Run("not found is not a storage error", func(t *testing.T) {
		t.Parallel()
		assert.False(t, storage.IsStorageError(storage.ErrNotFound))
	})

	t.Run("no entity id omitted from message", func(t *testing.T) {
		t.Parallel()

		err := storage.NewError("redis", "connect", "", errors.New("refused"))
		assert.Equal(t, "redis storage: connect: refused", err.Error())
	})
}

func TestProbe(t *testing.T) {
	t.Parallel()

	t.Run("healthy", func(t *testing.T) {
		t.Parallel()

		status := storage.Probe(context.Background(), func(context.Context) error {
			return nil
		})
		assert.True(t, status.IsHealthy)
		assert.Empty(t, status.ErrorMessage)
		assert.GreaterOrEqual(t, status.ResponseTimeMS, int64(0))
	})

	t.Run("unhealthy carries message", func(t *testing.T) {
		t.Parallel()

		status := storage.Probe(context.Background(), func(context.Context) error {
			return errors.New("backend down")
		})
		assert.False(t, status.IsHealthy)
		assert.Equal(t, "backend down", status.ErrorMessage)
	})
}
