package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CLOCK_CONFIG", "GATEWAY_PORT", "LOG_LEVEL", "NATS_URL", "NATS_STREAM",
		"NATS_CONSUMER", "NATS_MAX_DELIVER", "CLOCK_LOW_TIME_MS", "CLOCK_MAX_OVERTIME_MINUTES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clock.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
log_level: debug
nats:
  url: nats://file:4222
  ack_wait: 10s
clock:
  low_time_ms: 5000
  default_max_overtime_minutes: 1
`), 0o600))

	clearEnv(t)
	t.Setenv("CLOCK_CONFIG", path)
	t.Setenv("NATS_URL", "nats://env:4222")
	t.Setenv("CLOCK_MAX_OVERTIME_MINUTES", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, 10*time.Second, cfg.NATS.AckWait)
	assert.Equal(t, "clock-gateway", cfg.NATS.ConsumerName)
	assert.Equal(t, int64(5000), cfg.Clock.LowTimeMillis)
	assert.Equal(t, 3, cfg.Clock.DefaultMaxOvertimeMinutes)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CLOCK_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("port: ["), 0o600))
		t.Setenv("CLOCK_CONFIG", path)
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("negative overtime", func(t *testing.T) {
		t.Setenv("CLOCK_CONFIG", "")
		t.Setenv("CLOCK_MAX_OVERTIME_MINUTES", "-2")
		_, err := Load()
		assert.Error(t, err)
	})

	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("CLOCK_CONFIG", "")
		t.Setenv("LOG_LEVEL", "loud")
		_, err := Load()
		assert.Error(t, err)
	})
}

func TestGetEnvAsInt_IgnoresGarbage(t *testing.T) {
	t.Setenv("NATS_MAX_DELIVER", "many")
	assert.Equal(t, 5, getEnvAsInt("NATS_MAX_DELIVER", 5))
}
