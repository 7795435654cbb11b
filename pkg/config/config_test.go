package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, 0, cfg.Processing.MaxRetries)
	assert.Equal(t, time.Minute, cfg.Processing.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Drafts.TTL)
	assert.Contains(t, cfg.Storage.AllowedMIMEs, "application/pdf")
	assert.Equal(t, time.Hour, cfg.Drafts.CleanupInterval)
	assert.Equal(t, 30, cfg.RateLimit.AuthPerMinute)
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("PROCESSING_BASE_URL", "http://processor:9000/")
	t.Setenv("PROCESSING_TIMEOUT", "bogus")
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("APP_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://processor:9000", cfg.Processing.BaseURL)
	assert.Equal(t, time.Minute, cfg.Processing.Timeout)
	assert.Equal(t, StorageDriverS3, cfg.Storage.Driver)
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestLocationFallback(t *testing.T) {
	cfg := &Config{Timezone: "Not/AZone"}
	assert.Equal(t, time.Local, cfg.Location())
	assert.Equal(t, time.Local, (*Config)(nil).Location())
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
