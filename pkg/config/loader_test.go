package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/pkg/config"
)

type testConfig struct {
	Name    string   `env:"AGENTPAY_TEST_NAME" envDefault:"default-name"`
	Enabled []string `env:"AGENTPAY_TEST_ENABLED" envDefault:"mock"`
}

type overrideConfig struct {
	Value string `env:"AGENTPAY_TEST_VALUE" envDefault:"x"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults applied", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "default-name", cfg.Name)
		assert.Equal(t, []string{"mock"}, cfg.Enabled)
	})

	t.Run("cached per type", func(t *testing.T) {
		var first testConfig
		require.NoError(t, config.Load(&first))

		// Changing the environment after first load must not change the
		// cached configuration.
		t.Setenv("AGENTPAY_TEST_NAME", "changed")
		var second testConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first, second)
	})

	t.Run("environment wins over default", func(t *testing.T) {
		t.Setenv("AGENTPAY_TEST_VALUE", "from-env")
		var cfg overrideConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-env", cfg.Value)
	})

	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}

func TestMustLoad(t *testing.T) {
	assert.NotPanics(t, func() {
		var cfg testConfig
		config.MustLoad(&cfg)
	})
}
