package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("k", 32)

func setRequiredKeys(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_ENCRYPTION_KEY", testKey)
	t.Setenv("APP_ENCRYPTION_KEY", testKey)
	t.Setenv("CONFIG_FILE", "")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredKeys(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, "uzcard", cfg.PaymentCardType)
	assert.Equal(t, time.Duration(0), cfg.HTTPTimeout)
	assert.Equal(t, 15*time.Minute, cfg.ReconcileInterval)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredKeys(t)
	t.Setenv("API_BASE_URL", "http://localhost:8080/")
	t.Setenv("HTTP_TIMEOUT", "20s")
	t.Setenv("PAYMENT_CARD_TYPE", "humo")
	t.Setenv("AUDIT_ASYNC_MODE", "false")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("APP_ENV", "Production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, 20*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "humo", cfg.PaymentCardType)
	assert.False(t, cfg.AuditAsyncMode)
	assert.Equal(t, 3, cfg.RateLimitBurst, "invalid numbers fall back to the default")
	assert.True(t, cfg.IsProduction())
}

func TestLoad_ConfigFile(t *testing.T) {
	setRequiredKeys(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_base_url: https://staging.example.uz
payment_card_type: humo
reconcile_interval: 5m
`), 0600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PAYMENT_CARD_TYPE", "uzcard")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.example.uz", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, "uzcard", cfg.PaymentCardType, "environment wins over the file")
}

func TestValidate(t *testing.T) {
	t.Run("missing store key", func(t *testing.T) {
		cfg := Default()
		cfg.AppEncryptionKey = testKey
		assert.ErrorContains(t, cfg.Validate(), "STORE_ENCRYPTION_KEY is required")
	})

	t.Run("short app key", func(t *testing.T) {
		cfg := Default()
		cfg.StoreEncryptionKey = testKey
		cfg.AppEncryptionKey = "short"
		assert.ErrorContains(t, cfg.Validate(), "APP_ENCRYPTION_KEY must be at least 32 characters")
	})

	t.Run("relative base url", func(t *testing.T) {
		cfg := Default()
		cfg.StoreEncryptionKey = testKey
		cfg.AppEncryptionKey = testKey
		cfg.APIBaseURL = "/api"
		assert.ErrorContains(t, cfg.Validate(), "API_BASE_URL")
	})
}

func TestLoadMockAPI(t *testing.T) {
	t.Run("requires a secret", func(t *testing.T) {
		t.Setenv("MOCKAPI_JWT_SECRET", "")
		_, err := LoadMockAPI()
		assert.ErrorContains(t, err, "MOCKAPI_JWT_SECRET")
	})

	t.Run("parses origins", func(t *testing.T) {
		t.Setenv("MOCKAPI_JWT_SECRET", "0123456789abcdef")
		t.Setenv("MOCKAPI_ADDR", ":9090")
		t.Setenv("MOCKAPI_DECLINE_PREFIX", "")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000, ,https://app.example.uz")

		cfg, err := LoadMockAPI()
		require.NoError(t, err)
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, "4000", cfg.DeclinePrefix, "empty falls back to the default")
		assert.Equal(t, []string{"http://localhost:3000", "https://app.example.uz"}, cfg.AllowedOrigins)
	})
}

func TestLoadEphemeral_NoKeysNeeded(t *testing.T) {
	t.Setenv("STORE_ENCRYPTION_KEY", "")
	t.Setenv("APP_ENCRYPTION_KEY", "")
	t.Setenv("CONFIG_FILE", "")

	_, err := Load()
	assert.Error(t, err)

	cfg, err := LoadEphemeral()
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
}
