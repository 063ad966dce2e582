package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/argus-apm/argus/pkg/profiler"
	samplingService "github.com/argus-apm/argus/pkg/sampling/service"
)

type SamplingConfig struct {
	Rate     float64                `yaml:"rate"`
	Adaptive bool                   `yaml:"adaptive"`
	Bounds   AdaptiveSamplingConfig `yaml:"bounds"`
}

type AdaptiveSamplingConfig struct {
	TargetTracesPerSecond float64 `yaml:"target_traces_per_second"`
	MaxMemoryUsageMB      float64 `yaml:"max_memory_usage_mb"`
	MinSamplingRate       float64 `yaml:"min_sampling_rate"`
	MaxSamplingRate       float64 `yaml:"max_sampling_rate"`
}

type BufferConfig struct {
	MaxSize         int   `yaml:"max_size"`
	FlushIntervalMs int64 `yaml:"flush_interval_ms"`
	MaxTraceAgeMs   int64 `yaml:"max_trace_age_ms"`
}

type OutputConfig struct {
	Console bool `yaml:"console"`
}

type ServerConfig struct {
	GrpcListenAddress string `yaml:"grpc_listen_address"`
	HttpListenAddress string `yaml:"http_listen_address"`
}

type Config struct {
	Enabled  bool           `yaml:"enabled"`
	Sampling SamplingConfig `yaml:"sampling"`
	Buffer   BufferConfig   `yaml:"buffer"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
}

func Default() Config {
	return Config{
		Enabled: true,
		Sampling: SamplingConfig{
			Rate: 1.0,
			Bounds: AdaptiveSamplingConfig{
				TargetTracesPerSecond: 100,
				MaxMemoryUsageMB:      256,
				MinSamplingRate:       0.05,
				MaxSamplingRate:       1.0,
			},
		},
		Buffer: BufferConfig{
			MaxSize:         1000,
			FlushIntervalMs: 10_000,
			MaxTraceAgeMs:   300_000,
		},
		Server: ServerConfig{
			GrpcListenAddress: ":4317",
			HttpListenAddress: ":8090",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ToProfilerConfig maps the file schema onto the profiler core's config.
func (c Config) ToProfilerConfig() profiler.Config {
	return profiler.Config{
		Enabled:          c.Enabled,
		SamplingRate:     c.Sampling.Rate,
		AdaptiveSampling: c.Sampling.Adaptive,
		AdaptiveConfig: samplingService.AdaptiveSamplerConfig{
			TargetTracesPerSecond: c.Sampling.Bounds.TargetTracesPerSecond,
			MaxMemoryUsageMB:      c.Sampling.Bounds.MaxMemoryUsageMB,
			MinSamplingRate:       c.Sampling.Bounds.MinSamplingRate,
			MaxSamplingRate:       c.Sampling.Bounds.MaxSamplingRate,
		},
		BufferMaxSize: c.Buffer.MaxSize,
		FlushInterval: time.Duration(c.Buffer.FlushIntervalMs) * time.Millisecond,
		MaxTraceAge:   time.Duration(c.Buffer.MaxTraceAgeMs) * time.Millisecond,
		ConsoleOutput: c.Output.Console,
	}
}
