package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPEN_GROVE_MEMORY_LIMIT", "")
	t.Setenv("TRANSFER_TTL_DAYS", "")

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 100, cfg.Policy.OpenGroveMemoryLimit)
	assert.Equal(t, 50, cfg.Policy.WarningFloor)
	assert.InDelta(t, 0.90, cfg.Policy.WarningRatio, 1e-9)
	assert.InDelta(t, 0.95, cfg.Policy.CriticalRatio, 1e-9)
	assert.Equal(t, 30*24*time.Hour, cfg.Policy.TransferTTL)
	assert.Equal(t, "@hourly", cfg.TransferSweepCron)
	assert.Equal(t, 10*time.Minute, cfg.TreeCacheTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPEN_GROVE_MEMORY_LIMIT", "250")
	t.Setenv("CAPACITY_WARNING_RATIO", "0.8")
	t.Setenv("TRUSTEE_WINDOW_DAYS", "7")
	t.Setenv("SMTP_USE_TLS", "yes")

	cfg := Load()
	assert.Equal(t, 250, cfg.Policy.OpenGroveMemoryLimit)
	assert.InDelta(t, 0.8, cfg.Policy.WarningRatio, 1e-9)
	assert.Equal(t, 7*24*time.Hour, cfg.Policy.TrusteeWindow)
	assert.True(t, cfg.SMTPUseTLS)
}

func TestLoadOriginList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://grove.family, ,https://admin.grove.family ")

	cfg := Load()
	assert.Equal(t, []string{"https://grove.family", "https://admin.grove.family"}, cfg.CORSAllowedOrigins)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-port")
	t.Setenv("TRANSFER_TTL_DAYS", "-3")

	cfg := Load()
	assert.Equal(t, 587, cfg.SMTPPort)
	assert.Equal(t, 30*24*time.Hour, cfg.Policy.TransferTTL)
}
