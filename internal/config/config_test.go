package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "DDS_ROOT", cfg.Deploy.RootEnv)
	assert.Equal(t, "flowkeeper-topology.xml", cfg.Deploy.TopologyFile)
	assert.Equal(t, 22000, cfg.Deploy.BasePort)
	assert.True(t, cfg.Deploy.SpawnLocal)
	assert.Equal(t, 1000, cfg.Monitor.HistorySize)
	assert.Equal(t, 30*time.Second, cfg.Monitor.InterruptGrace)
	assert.Equal(t, 100*time.Millisecond, cfg.Monitor.PollInterval)
	assert.Equal(t, time.Second, cfg.Device.HeartbeatInterval)
	assert.Equal(t, "flowkeeper", cfg.Bus.SubjectPrefix)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flowkeeper.yaml")
	content := `
log:
  level: debug
bus:
  url: nats://127.0.0.1:4222
deploy:
  root_env: MY_DDS
  spawn_local: false
monitor:
  poll_interval: 250ms
  history_size: 0
  interrupt_grace: 0s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Bus.URL)
	assert.Equal(t, "MY_DDS", cfg.Deploy.RootEnv)
	assert.False(t, cfg.Deploy.SpawnLocal)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.PollInterval)
	// 非法值回退到默认值
	assert.Equal(t, 1000, cfg.Monitor.HistorySize)
	assert.Equal(t, "dds-submit", cfg.Deploy.SubmitTool)
	assert.Equal(t, time.Duration(0), cfg.Monitor.InterruptGrace)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("FLOWKEEPER_BUS_URL", "nats://bus:4222")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrConfigNotFound)
	assert.Nil(t, cfg)

	dir := t.TempDir()
	path := filepath.Join(dir, "flowkeeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644))

	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://bus:4222", cfg.Bus.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}
