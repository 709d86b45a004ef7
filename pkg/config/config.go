package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		URL                  string        `yaml:"url"`
		ConnectTimeout       time.Duration `yaml:"connect_timeout"`
		WriteTimeout         time.Duration `yaml:"write_timeout"`
		Reconnect            bool          `yaml:"reconnect"`
		ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	} `yaml:"server"`

	Capture struct {
		SampleRate    int           `yaml:"sample_rate"`
		Channels      int           `yaml:"channels"`
		ChunkDuration time.Duration `yaml:"chunk_duration"`
		FrameInterval time.Duration `yaml:"frame_interval"`
		FrameWidth    int           `yaml:"frame_width"`
		FrameHeight   int           `yaml:"frame_height"`
		JPEGQuality   int           `yaml:"jpeg_quality"`
	} `yaml:"capture"`

	Telemetry struct {
		PollInterval  time.Duration `yaml:"poll_interval"`
		TimelineLimit int           `yaml:"timeline_limit"`
	} `yaml:"telemetry"`

	Status struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`

		RateLimiting struct {
			Enabled           bool    `yaml:"enabled"`
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"rate_limiting"`
	} `yaml:"status"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("server.url must not be empty")
	}
	if c.Server.ConnectTimeout <= 0 {
		return fmt.Errorf("server.connect_timeout must be > 0")
	}
	if c.Server.Reconnect {
		if c.Server.ReconnectInterval <= 0 {
			return fmt.Errorf("server.reconnect_interval must be > 0 when reconnect is enabled")
		}
		if c.Server.MaxReconnectAttempts <= 0 {
			return fmt.Errorf("server.max_reconnect_attempts must be > 0 when reconnect is enabled")
		}
	}

	if c.Capture.SampleRate <= 0 {
		return fmt.Errorf("capture.sample_rate must be > 0")
	}
	if c.Capture.ChunkDuration <= 0 {
		return fmt.Errorf("capture.chunk_duration must be > 0")
	}
	if c.Capture.FrameInterval <= 0 {
		return fmt.Errorf("capture.frame_interval must be > 0")
	}
	if c.Capture.JPEGQuality <= 0 || c.Capture.JPEGQuality > 100 {
		return fmt.Errorf("capture.jpeg_quality must be in (0, 100]")
	}

	if c.Telemetry.PollInterval <= 0 {
		return fmt.Errorf("telemetry.poll_interval must be > 0")
	}
	if c.Telemetry.TimelineLimit <= 0 {
		return fmt.Errorf("telemetry.timeline_limit must be > 0")
	}

	if c.Status.Enabled && c.Status.Address == "" {
		return fmt.Errorf("status.address must not be empty when status.enabled=true")
	}
	if c.Status.RateLimiting.Enabled {
		if c.Status.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("status.rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.Status.RateLimiting.Burst <= 0 {
			return fmt.Errorf("status.rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.URL = "ws://localhost:5000/ws"
	cfg.Server.ConnectTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 5 * time.Second
	cfg.Server.Reconnect = true
	cfg.Server.ReconnectInterval = 1 * time.Second
	cfg.Server.MaxReconnectAttempts = 5

	cfg.Capture.SampleRate = 16000
	cfg.Capture.Channels = 1
	cfg.Capture.ChunkDuration = 3 * time.Second
	cfg.Capture.FrameInterval = 200 * time.Millisecond
	cfg.Capture.FrameWidth = 640
	cfg.Capture.FrameHeight = 480
	cfg.Capture.JPEGQuality = 80

	cfg.Telemetry.PollInterval = 5 * time.Second
	cfg.Telemetry.TimelineLimit = 100

	cfg.Status.Enabled = true
	cfg.Status.Address = ":8080"
	cfg.Status.RateLimiting.Enabled = false
	cfg.Status.RateLimiting.RequestsPerSecond = 50
	cfg.Status.RateLimiting.Burst = 100

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "stressmon"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("STRESSMON_SERVER_URL"); url != "" {
		c.Server.URL = url
	}
	if addr := os.Getenv("STRESSMON_STATUS_ADDRESS"); addr != "" {
		c.Status.Address = addr
	}
	if level := os.Getenv("STRESSMON_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if endpoint := os.Getenv("STRESSMON_JAEGER_URL"); endpoint != "" {
		c.Tracing.JaegerURL = endpoint
	}
}
