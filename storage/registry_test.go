package storage_test

import (
	"context"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/storage"
	"github.com/dmitrymomot/agentpay/storage/memory"
)

func memoryConstructor(ctx context.Context) (storage.Storage, storage.CloseFunc, error) {
	return memory.New(), func() {}, nil
}

func TestStorageRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("open enabled backend", func(t *testing.T) {
		t.Parallel()

		reg := storage.NewRegistry(storage.Config{Enabled: []string{"memory"}})
		reg.Register("memory", memoryConstructor)

		s, closeFn, err := reg.Open(ctx, "memory")
		require.NoError(t, err)
		require.NotNil(t, s)
		closeFn()
	})

	t.Run("disabled backend rejected", func(t *testing.T) {
		t.Parallel()

		reg := storage.NewRegistry(storage.Config{Enabled: []string{"postgres"}})
		reg.Register("memory", memoryConstructor)

		_, _, err := reg.Open(ctx, "memory")
		require.ErrorIs(t, err, storage.ErrStorageDisabled)
	})

	t.Run("unknown backend rejected", func(t *testing.T) {
		t.Parallel()

		reg := storage.NewRegistry(storage.Config{})
		_, _, err := reg.Open(ctx, "bolt")
		require.ErrorIs(t, err, storage.ErrUnknownStorage)
	})

	t.Run("empty enabled list allows all", func(t *testing.T) {
		t.Parallel()

		reg := storage.NewRegistry(storage.Config{})
		reg.Register("memory", memoryConstructor)

		s, closeFn, err := reg.Open(ctx, "memory")
		require.NoError(t, err)
		require.NotNil(t, s)
		closeFn()
	})

	t.Run("names sorted", func(t *testing.T) {
		t.Parallel()

		reg := storage.NewRegistry(storage.Config{})
		reg.Register("redis", memoryConstructor)
		reg.Register("memory", memoryConstructor)
		assert.Equal(t, []string{"memory", "redis"}, reg.Names())
	})
}

func TestStorageConfigEnv(t *testing.T) {
	t.Setenv("AGENTPAY_ENABLED_STORAGE", "memory,postgres")

	var cfg storage.Config
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, []string{"memory", "postgres"}, cfg.Enabled)
}
