package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/licensekit/pkg/config"
)

type paymentSettings struct {
	Currency        string        `env:"PAYMENT_CURRENCY" envDefault:"USD"`
	ProviderTimeout time.Duration `env:"PAYMENT_PROVIDER_TIMEOUT" envDefault:"15s"`
	MaxAttempts     int           `env:"PAYMENT_MAX_CAPTURE_ATTEMPTS" envDefault:"2"`
}

type requiredSettings struct {
	Key string `env:"SIGNING_KEY,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg paymentSettings
		require.NoError(t, config.Load(&cfg, config.WithEnvironment(map[string]string{})))
		assert.Equal(t, "USD", cfg.Currency)
		assert.Equal(t, 15*time.Second, cfg.ProviderTimeout)
		assert.Equal(t, 2, cfg.MaxAttempts)
	})

	t.Run("process environment", func(t *testing.T) {
		t.Setenv("PAYMENT_CURRENCY", "EUR")
		t.Setenv("PAYMENT_PROVIDER_TIMEOUT", "3s")

		var cfg paymentSettings
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "EUR", cfg.Currency)
		assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	})

	t.Run("prefix", func(t *testing.T) {
		var cfg paymentSettings
		err := config.Load(&cfg,
			config.WithPrefix("BILLING_"),
			config.WithEnvironment(map[string]string{"BILLING_PAYMENT_CURRENCY": "GBP"}),
		)
		require.NoError(t, err)
		assert.Equal(t, "GBP", cfg.Currency)
	})

	t.Run("missing required", func(t *testing.T) {
		var cfg requiredSettings
		err := config.Load(&cfg, config.WithEnvironment(map[string]string{}))
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		var cfg *paymentSettings
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})

	t.Run("env file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "billing.env")
		require.NoError(t, os.WriteFile(path, []byte("SIGNING_KEY=from-file\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("SIGNING_KEY") })

		var cfg requiredSettings
		require.NoError(t, config.Load(&cfg, config.WithEnvFiles(path)))
		assert.Equal(t, "from-file", cfg.Key)
	})
}

func TestMustLoadPanics(t *testing.T) {
	assert.Panics(t, func() {
		var cfg requiredSettings
		config.MustLoad(&cfg, config.WithEnvironment(map[string]string{}))
	})
}
