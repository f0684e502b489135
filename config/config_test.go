package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seqdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  in_memory: true
commit:
  max_attempts: 5
  initial_interval: 2ms
broadcast:
  enabled: true
  client: kafka-go
  brokers: [k1:9092, k2:9092]
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, uint32(256), cfg.Storage.TileGroupSize)
	assert.Equal(t, 5, cfg.Commit.MaxAttempts)
	assert.Equal(t, 2*time.Millisecond, cfg.Commit.InitialInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Commit.MaxInterval)
	assert.Equal(t, ClientKafkaGo, cfg.Broadcast.Client)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broadcast.Brokers)
	assert.Equal(t, "seqdb.ddl", cfg.Broadcast.Topic)

	log := cfg.Logger()
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "storage: [not, a, map]"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"no dir", func(c *Config) { c.Storage.Dir = "" }, "storage.dir"},
		{"zero tile group", func(c *Config) { c.Storage.TileGroupSize = 0 }, "tile_group_size"},
		{"negative attempts", func(c *Config) { c.Commit.MaxAttempts = -1 }, "max_attempts"},
		{"inverted intervals", func(c *Config) { c.Commit.MaxInterval = time.Microsecond }, "commit intervals"},
		{"unknown client", func(c *Config) {
			c.Broadcast.Enabled = true
			c.Broadcast.Client = "nats"
		}, "broadcast.client"},
		{"feed without topic", func(c *Config) {
			c.Feed.Enabled = true
			c.Broadcast.Topic = ""
		}, "broadcast.topic"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "not a valid logrus Level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}
