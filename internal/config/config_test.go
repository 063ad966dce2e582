package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Returns defaults for an empty path", func(t *testing.T) {
		cfg, err := Load("")
		assert.Nil(t, err)
		assert.True(t, cfg.Enabled)
		assert.Equal(t, 1.0, cfg.Sampling.Rate)
		assert.Equal(t, 1000, cfg.Buffer.MaxSize)
	})

	t.Run("Overrides defaults from yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.Nil(t, os.WriteFile(path, []byte(`
enabled: true
sampling:
  rate: 0.25
  adaptive: true
  bounds:
    target_traces_per_second: 50
    min_sampling_rate: 0.1
    max_sampling_rate: 0.9
buffer:
  max_size: 200
  flush_interval_ms: 5000
output:
  console: true
`), 0644))

		cfg, err := Load(path)
		require.Nil(t, err)
		assert.Equal(t, 0.25, cfg.Sampling.Rate)
		assert.True(t, cfg.Sampling.Adaptive)
		assert.Equal(t, 50.0, cfg.Sampling.Bounds.TargetTracesPerSecond)
		assert.Equal(t, 200, cfg.Buffer.MaxSize)
		assert.True(t, cfg.Output.Console)
	})

	t.Run("Fails on an unreadable file", func(t *testing.T) {
		_, err := Load("/no/such/config.yaml")
		assert.NotNil(t, err)
	})
}

func TestConfig_ToProfilerConfig(t *testing.T) {
	t.Run("Maps durations from milliseconds", func(t *testing.T) {
		cfg := Default()
		cfg.Buffer.FlushIntervalMs = 2500
		pc := cfg.ToProfilerConfig()
		assert.Equal(t, 2500*time.Millisecond, pc.FlushInterval)
		assert.Equal(t, 5*time.Minute, pc.MaxTraceAge)
	})
}
