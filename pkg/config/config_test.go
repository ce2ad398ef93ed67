package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets the variables these tests read; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		MerchantKeyEnv,
		"MERCHANTPAY_MERCHANT_SIGNING_KEY",
		"MERCHANTPAY_API_PORT",
		"MERCHANTPAY_TRP_ENDPOINT",
		"MERCHANTPAY_PAYMENT_VERIFY_TX_HASH",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func testOptions(t *testing.T) LoadOptions {
	opts := DefaultLoadOptions()
	opts.EnvFile = filepath.Join(t.TempDir(), "missing.env")
	return opts
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadWithOptions(testOptions(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.API.Port)
	assert.Equal(t, []string{"*"}, cfg.API.CORSAllowedOrigins)
	assert.Equal(t, time.Minute, cfg.API.RateWindow)
	assert.Equal(t, "", cfg.Merchant.SigningKey)
	assert.Equal(t, 30*time.Second, cfg.TRP.Timeout)
	assert.False(t, cfg.Payment.VerifyTxHash)
	assert.False(t, cfg.Payment.Dedupe)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "payments.submitted", cfg.Kafka.SubmittedTopic)
}

func TestLoadMerchantKeyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(MerchantKeyEnv, "aa11")

	cfg, err := LoadWithOptions(testOptions(t))
	require.NoError(t, err)
	assert.Equal(t, "aa11", cfg.Merchant.SigningKey)
}

func TestLoadEnvFileAndPrefixedOverrides(t *testing.T) {
	clearEnv(t)
	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("MERCHANTPAY_MERCHANT_SIGNING_KEY=bb22\n"), 0o600))
	t.Setenv("MERCHANTPAY_API_PORT", "9999")
	t.Setenv("MERCHANTPAY_PAYMENT_VERIFY_TX_HASH", "true")

	opts := DefaultLoadOptions()
	opts.EnvFile = envFile
	cfg, err := LoadWithOptions(opts)
	require.NoError(t, err)

	assert.Equal(t, "bb22", cfg.Merchant.SigningKey)
	assert.Equal(t, "9999", cfg.API.Port)
	assert.True(t, cfg.Payment.VerifyTxHash)
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "merchantpay.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
api:
  port: "7000"
trp:
  endpoint: https://trp.example.com
  timeout: 5s
  headers:
    x-network: preprod
redis:
  enabled: true
payment:
  dedupe: true
`), 0o600))

	flags := Flags()
	require.NoError(t, flags.Parse([]string{"--api.port", "7100"}))

	opts := testOptions(t)
	opts.ConfigFile = file
	opts.Flags = flags
	cfg, err := LoadWithOptions(opts)
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.API.Port)
	assert.Equal(t, "https://trp.example.com", cfg.TRP.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.TRP.Timeout)
	assert.Equal(t, "preprod", cfg.TRP.Headers["x-network"])
	assert.True(t, cfg.Payment.Dedupe)
}

func TestValidate(t *testing.T) {
	cfg := Config{API: APIConfig{Port: "8080"}, TRP: TRPConfig{Endpoint: "http://trp"}}
	require.NoError(t, cfg.Validate())

	cfg.Payment.Dedupe = true
	assert.EqualError(t, cfg.Validate(), "payment.dedupe requires redis.enabled")

	cfg.Payment.Dedupe = false
	cfg.TRP.Endpoint = ""
	assert.EqualError(t, cfg.Validate(), "trp.endpoint is required")
}
