package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 2*time.Minute, cfg.ImportLockTTL)
	assert.Equal(t, int64(10<<20), cfg.ImportMaxBytes)
	assert.Equal(t, "standard", cfg.CoATemplate)
	assert.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	assert.Equal(t, "30 3 * * *", cfg.IdempotencyCleanupCron)
	assert.False(t, cfg.EventsEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	t.Setenv("IMPORT_LOCK_TTL", "30s")
	t.Setenv("GL_INTEGRITY_CRON", "@hourly")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.EventsEnabled())
	assert.Equal(t, 30*time.Second, cfg.ImportLockTTL)
	assert.Equal(t, "@hourly", cfg.GLIntegrityCron)
}

func TestLoadConfigRejectsBadLimits(t *testing.T) {
	t.Setenv("IMPORT_MAX_BYTES", "0")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("IMPORT_MAX_BYTES", "1024")
	t.Setenv("IDEMPOTENCY_RETENTION", "0s")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("client_id", 7))
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"client_id":7`)
}
