package provider_test

import (
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/agentpay/provider"
	"github.com/dmitrymomot/agentpay/provider/mock"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	newMock := func() (provider.Provider, error) { return mock.New(), nil }

	t.Run("constructs registered provider", func(t *testing.T) {
		t.Parallel()

		reg := provider.NewRegistry(provider.Config{})
		reg.Register("mock", newMock)

		p, err := reg.New("mock")
		require.NoError(t, err)
		assert.Equal(t, "mock", p.Name())
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Parallel()

		reg := provider.NewRegistry(provider.Config{})
		_, err := reg.New("stripe")
		require.ErrorIs(t, err, provider.ErrUnknownProvider)
	})

	t.Run("disabled provider rejected", func(t *testing.T) {
		t.Parallel()

		reg := provider.NewRegistry(provider.Config{Enabled: []string{"stripe"}})
		reg.Register("mock", newMock)

		_, err := reg.New("mock")
		require.ErrorIs(t, err, provider.ErrProviderDisabled)
	})

	t.Run("empty enablement list allows everything", func(t *testing.T) {
		t.Parallel()

		reg := provider.NewRegistry(provider.Config{})
		reg.Register("mock", newMock)

		_, err := reg.New("mock")
		require.NoError(t, err)
	})

	t.Run("names sorted", func(t *testing.T) {
		t.Parallel()

		reg := provider.NewRegistry(provider.Config{})
		reg.Register("zeta", newMock)
		reg.Register("alpha", newMock)
		assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
	})
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	t.Run("currency support", func(t *testing.T) {
		t.Parallel()

		caps := provider.Capabilities{SupportedCurrencies: []string{"USD", "EUR"}}
		assert.True(t, caps.SupportsCurrency("USD"))
		assert.False(t, caps.SupportsCurrency("JPY"))

		open := provider.Capabilities{}
		assert.True(t, open.SupportsCurrency("JPY"))
	})

	t.Run("amount limits", func(t *testing.T) {
		t.Parallel()

		caps := provider.Capabilities{MinAmount: 0.50, MaxAmount: 1000}
		assert.False(t, caps.WithinLimits(0.10))
		assert.True(t, caps.WithinLimits(0.50))
		assert.True(t, caps.WithinLimits(1000))
		assert.False(t, caps.WithinLimits(1000.01))

		unbounded := provider.Capabilities{}
		assert.True(t, unbounded.WithinLimits(1e9))
	})
}

func TestProviderConfigEnv(t *testing.T) {
	t.Setenv("AGENTPAY_ENABLED_PROVIDERS", "mock,stripe")

	var cfg provider.Config
	require.NoError(t, env.Parse(&cfg))
	assert.Equal(t, []string{"mock", "stripe"}, cfg.Enabled)
}
