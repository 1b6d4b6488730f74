package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsHeartbeatNotLessThanOrphanThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TaskMonitor.HeartbeatInterval = 30 * time.Second
	cfg.TaskMonitor.OrphanThreshold = 30 * time.Second
	assert.Error(t, cfg.Validate())
}

func TestLoadFromFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"processor":{"max_connections":42},"redis":{"addr":"redis.internal:6380"}}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Processor.MaxConnections)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	// Untouched fields still carry DefaultConfig's values.
	assert.Equal(t, 1000, cfg.Processor.QueueCapacity)
}

func TestLoadFromEnvOverridesConfig(t *testing.T) {
	t.Setenv("ASYNCREQ_MAX_CONNECTIONS", "77")
	t.Setenv("ASYNCREQ_HEARTBEAT_INTERVAL", "2s")
	t.Setenv("ASYNCREQ_TRACING_ENABLED", "true")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, 77, cfg.Processor.MaxConnections)
	assert.Equal(t, 2*time.Second, cfg.TaskMonitor.HeartbeatInterval)
	assert.True(t, cfg.Observability.Tracing.Enabled)
}

func TestLoadFromEnvOverridesMetricsAddr(t *testing.T) {
	t.Setenv("ASYNCREQ_METRICS_ADDR", ":9999")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, ":9999", cfg.Daemon.MetricsAddr)
}
