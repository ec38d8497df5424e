// Package config loads bridge and command-line process configuration
// from the environment, mirroring the teacher's env-var + .env layering.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds configuration for the bridge and example binaries.
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// Bridge endpoints
	NATSURL        string `env:"SHMCOMM_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	NATSSubject    string `env:"SHMCOMM_NATS_SUBJECT" envDefault:"shmcomm.bridge"`
	IngestChannel  string `env:"SHMCOMM_INGEST_CHANNEL" envDefault:"bridge-ingest"`
	BridgeChannel  string `env:"SHMCOMM_BRIDGE_CHANNEL" envDefault:"bridge"`
	WSAddr         string `env:"SHMCOMM_WS_ADDR" envDefault:":8090"`

	// Resource limits
	CPULimit    float64 `env:"SHMCOMM_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"SHMCOMM_MEMORY_LIMIT" envDefault:"268435456"` // 256MB

	// Rate limiting
	MaxIngestRate    int `env:"SHMCOMM_MAX_INGEST_RATE" envDefault:"200000"`
	MaxBroadcastRate int `env:"SHMCOMM_MAX_BROADCAST_RATE" envDefault:"200000"`

	// CPU safety thresholds, compared against host-level CPU usage sampled by resourceguard
	CPURejectThreshold float64 `env:"SHMCOMM_CPU_REJECT_THRESHOLD" envDefault:"75.0"`
	CPUPauseThreshold  float64 `env:"SHMCOMM_CPU_PAUSE_THRESHOLD" envDefault:"80.0"`

	// Monitoring
	MetricsAddr     string        `env:"SHMCOMM_METRICS_ADDR" envDefault:":9090"`
	MetricsInterval time.Duration `env:"SHMCOMM_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"SHMCOMM_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SHMCOMM_LOG_FORMAT" envDefault:"json"`

	Environment string `env:"SHMCOMM_ENV" envDefault:"development"`
}

// LoadConfig reads configuration from a .env file (optional) and
// environment variables. Priority: ENV vars > .env file > defaults.
func LoadConfig(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.NATSURL == "" {
		return fmt.Errorf("SHMCOMM_NATS_URL is required")
	}
	if c.CPURejectThreshold < 0 || c.CPURejectThreshold > 100 {
		return fmt.Errorf("SHMCOMM_CPU_REJECT_THRESHOLD must be 0-100, got %.1f", c.CPURejectThreshold)
	}
	if c.CPUPauseThreshold < 0 || c.CPUPauseThreshold > 100 {
		return fmt.Errorf("SHMCOMM_CPU_PAUSE_THRESHOLD must be 0-100, got %.1f", c.CPUPauseThreshold)
	}
	if c.CPUPauseThreshold < c.CPURejectThreshold {
		return fmt.Errorf("SHMCOMM_CPU_PAUSE_THRESHOLD (%.1f) must be >= SHMCOMM_CPU_REJECT_THRESHOLD (%.1f)",
			c.CPUPauseThreshold, c.CPURejectThreshold)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("SHMCOMM_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("SHMCOMM_LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}
	return nil
}

// Print writes a human-readable dump of the configuration to stdout.
func (c *Config) Print() {
	fmt.Println("=== shmcomm bridge configuration ===")
	fmt.Printf("Environment:       %s\n", c.Environment)
	fmt.Printf("NATS URL:          %s\n", c.NATSURL)
	fmt.Printf("NATS subject:      %s\n", c.NATSSubject)
	fmt.Printf("Ingest channel:    %s\n", c.IngestChannel)
	fmt.Printf("Bridge channel:    %s\n", c.BridgeChannel)
	fmt.Printf("WS addr:           %s\n", c.WSAddr)
	fmt.Println("--- Resource limits ---")
	fmt.Printf("CPU limit:         %.1f cores\n", c.CPULimit)
	fmt.Printf("Memory limit:      %d MB\n", c.MemoryLimit/(1024*1024))
	fmt.Println("--- Rate limits ---")
	fmt.Printf("Ingest:            %d/sec\n", c.MaxIngestRate)
	fmt.Printf("Broadcast:         %d/sec\n", c.MaxBroadcastRate)
	fmt.Println("--- Safety thresholds ---")
	fmt.Printf("CPU reject:        %.1f%%\n", c.CPURejectThreshold)
	fmt.Printf("CPU pause:         %.1f%%\n", c.CPUPauseThreshold)
	fmt.Println("=====================================")
}

// LogConfig emits the configuration as a structured log event.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("nats_url", c.NATSURL).
		Str("nats_subject", c.NATSSubject).
		Str("ingest_channel", c.IngestChannel).
		Str("bridge_channel", c.BridgeChannel).
		Str("ws_addr", c.WSAddr).
		Float64("cpu_limit", c.CPULimit).
		Int64("memory_limit_mb", c.MemoryLimit/(1024*1024)).
		Int("max_ingest_rate", c.MaxIngestRate).
		Int("max_broadcast_rate", c.MaxBroadcastRate).
		Float64("cpu_reject_threshold", c.CPURejectThreshold).
		Float64("cpu_pause_threshold", c.CPUPauseThreshold).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("bridge configuration loaded")
}
