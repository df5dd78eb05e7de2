package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, StoreBackendPostgres, cfg.StoreBackend)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 5*time.Minute, cfg.FXCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.FXMaxStaleness)
	assert.Equal(t, 5*time.Second, cfg.TxTimeout)
	assert.Equal(t, 3, cfg.TxMaxRetries)
	assert.Equal(t, 10, cfg.DBMaxConns)
	assert.True(t, cfg.ExchangeFeeBPS.IsZero())
	assert.Equal(t, []string{"AUD", "CAD", "CHF", "EUR", "GBP", "JPY", "USD"}, cfg.SupportedCurrencies)
	assert.Equal(t, []string{"USD", "EUR", "GBP"}, cfg.FXBaseCurrencies)
	assert.Equal(t, "https://api.frankfurter.app", cfg.FXAPIURL)
}

func TestLoad_PrefixedAliases(t *testing.T) {
	t.Setenv("FXW_JWT_SECRET", testSecret)
	t.Setenv("FXW_PORT", "9090")
	t.Setenv("FXW_STORE_BACKEND", "memory")
	t.Setenv("SUPPORTED_CURRENCIES", "usd, eur,usd")
	t.Setenv("EXCHANGE_FEE_BPS", "25")
	t.Setenv("TX_TIMEOUT", "750ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, StoreBackendMemory, cfg.StoreBackend)
	assert.Equal(t, []string{"USD", "EUR"}, cfg.SupportedCurrencies)
	assert.Equal(t, "25", cfg.ExchangeFeeBPS.String())
	assert.Equal(t, 750*time.Millisecond, cfg.TxTimeout)
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":   {},
		"short secret":     {"JWT_SECRET": "short"},
		"bad duration":     {"JWT_SECRET": testSecret, "FX_CACHE_TTL": "soon"},
		"negative fee":     {"JWT_SECRET": testSecret, "EXCHANGE_FEE_BPS": "-1"},
		"bad currency":     {"JWT_SECRET": testSecret, "SUPPORTED_CURRENCIES": "USD,EURO"},
		"unknown backend":  {"JWT_SECRET": testSecret, "STORE_BACKEND": "sqlite"},
		"zero tx timeout":  {"JWT_SECRET": testSecret, "TX_TIMEOUT": "0s"},
		"non-numeric fees": {"JWT_SECRET": testSecret, "EXCHANGE_FEE_BPS": "ten"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
