package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "errorwatch-events", cfg.Queue.Name)
	assert.Equal(t, 20*time.Second, cfg.Processor.SleepDelay)
	assert.Equal(t, 0, cfg.Processor.WorkerCount, "zero means one worker per CPU")
	assert.Equal(t, 200, cfg.Processor.WorkerQuota)
	assert.Equal(t, 300*time.Second, cfg.Watcher.SleepDelay)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "errorwatch_watcher_runs_total", cfg.Metrics.CounterName)
	assert.Equal(t, "triggers.yaml", cfg.Triggers.File)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
queue:
  name: custom-queue
  wait_time: 10s
processor:
  worker_quota: 50
storage:
  driver: postgres
  dsn: postgres://localhost/errorwatch
email:
  from_address: alerts@example.com
  verify_email: true
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "custom-queue", cfg.Queue.Name)
	assert.Equal(t, 10*time.Second, cfg.Queue.WaitTime)
	assert.Equal(t, 50, cfg.Processor.WorkerQuota)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "alerts@example.com", cfg.Email.FromAddress)
	assert.True(t, cfg.Email.VerifyEmail)

	// Untouched keys keep their defaults.
	assert.Equal(t, 300*time.Second, cfg.Watcher.SleepDelay)
	assert.Equal(t, "errorwatch_watcher_runs_total", cfg.Metrics.CounterName)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ERRORWATCH_STORAGE_DSN", "file::memory:")
	t.Setenv("ERRORWATCH_PROCESSOR_WORKER_QUOTA", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "file::memory:", cfg.Storage.DSN)
	assert.Equal(t, 25, cfg.Processor.WorkerQuota)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
