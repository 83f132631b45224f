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

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "trial", cfg.Billing.TrialPlanID)
	assert.Equal(t, 14*24*time.Hour, cfg.Billing.TrialLength)
	assert.Equal(t, 12*24*time.Hour, cfg.Billing.ReminderFrom)
	assert.Equal(t, 13*24*time.Hour, cfg.Billing.ReminderTo)
	assert.Equal(t, "memory", cfg.RateLimit.Backend)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.SweepInterval)

	for _, name := range []string{"search", "property_create", "messaging", "auth", "phone_verification", "checkout", "general"} {
		r, ok := cfg.RateLimit.Rules[name]
		require.True(t, ok, "rule %s missing", name)
		assert.Positive(t, r.MaxRequests, name)
		assert.Positive(t, r.Window, name)
	}
	require.Len(t, cfg.Notifications.Endpoints, 1)
	assert.Equal(t, "send-notification", cfg.Notifications.Endpoints[0].Name)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
http:
  addr: ":9090"
rate_limit:
  backend: redis
  rules:
    checkout:
      max_requests: 2
      window: 30s
`), 0o600))
	t.Setenv("REB_LOG_LEVEL", "debug")

	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 2, cfg.RateLimit.Rules["checkout"].MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Rules["checkout"].Window)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
rate_limit:
  backend: memcached
`), 0o600))

	_, err := Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestValidateServeRequiresJWTSecret(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.ValidateServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
	assert.Contains(t, err.Error(), "jwt_secret")

	cfg.Auth.JWTSecret = strings.Repeat("k", MinJWTSecretLen-1)
	assert.Error(t, cfg.ValidateServe())

	t.Setenv("REB_AUTH_JWT_SECRET", strings.Repeat("k", MinJWTSecretLen))
	cfg, err = Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateServe())
}
