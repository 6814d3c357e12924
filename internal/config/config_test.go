package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ADMIT_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.AdmitTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.Production())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("ADMIT_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("CORS_ORIGINS", "https://mess.example.edu, https://admin.example.edu")

	cfg := Load()
	assert.True(t, cfg.Production())
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, 750*time.Millisecond, cfg.AdmitTimeout)
	assert.Equal(t, 30, cfg.RateLimitPerMin)
	assert.Equal(t, []string{"https://mess.example.edu", "https://admin.example.edu"}, cfg.CORSOrigins)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ADMIT_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")

	cfg := Load()
	assert.Equal(t, 5*time.Second, cfg.AdmitTimeout)
	assert.Equal(t, 120, cfg.RateLimitPerMin)
}

func TestLocation(t *testing.T) {
	cfg := App{Timezone: "Asia/Kolkata"}
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())

	cfg.Timezone = "Mars/Olympus"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestValidate(t *testing.T) {
	cfg := App{StoreBackend: "sqlite", NotifierBackend: "memory", Env: "dev", JWTSigningKey: "dev-signing-secret-change"}
	require.NoError(t, cfg.Validate())

	cfg.StoreBackend = "mongo"
	assert.Error(t, cfg.Validate())

	// Only the notifier has an in-memory backend.
	cfg.StoreBackend = "memory"
	assert.ErrorContains(t, cfg.Validate(), "STORE_BACKEND")

	cfg.StoreBackend = "postgres"
	cfg.Env = "production"
	assert.Error(t, cfg.Validate(), "default signing key is refused in production")

	cfg.JWTSigningKey = "a-real-secret"
	assert.NoError(t, cfg.Validate())
}
