// Package config loads the engine's typed configuration: Processor
// limits, TaskMonitor intervals, RedirectEngine/ResponseReader
// ceilings, Redis connection settings, and the observability toggles,
// from a JSON file and/or the environment, using a DefaultConfig +
// LoadFromFile + LoadFromEnv trio of nested per-component structs with
// json tags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig holds the connection settings for the KVStore, blob
// store, and JobBroker's default Redis-backed implementations.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ProcessorConfig holds Processor lifecycle and scheduling limits.
type ProcessorConfig struct {
	MaxConnections      int           `json:"max_connections"`       // admitted-task capacity ceiling
	QueueCapacity       int           `json:"queue_capacity"`        // buffered channel size
	DefaultTimeout      time.Duration `json:"default_timeout"`       // per-task timeout when Request.Timeout is unset
	DefaultMaxRedirects int           `json:"default_max_redirects"` // used when Request.MaxRedirects is nil
	ShutdownTimeout     time.Duration `json:"shutdown_timeout"`      // Stop's idle-poll bound
}

// TaskMonitorConfig holds the distributed inflight registry's tunables.
type TaskMonitorConfig struct {
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	OrphanThreshold   time.Duration `json:"orphan_threshold"`
}

// ResponseReaderConfig holds the body-read size ceiling.
type ResponseReaderConfig struct {
	MaxResponseSizeBytes int64 `json:"max_response_size_bytes"`
}

// ExternalStorageConfig holds the externalization threshold.
type ExternalStorageConfig struct {
	ThresholdBytes int `json:"threshold_bytes"`
}

// DaemonConfig holds daemon-level settings.
type DaemonConfig struct {
	LogLevel    string `json:"log_level"`
	MetricsAddr string `json:"metrics_addr"` // empty disables the /metrics HTTP endpoint
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"` // otlp-http, stdout
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level"`  // debug, info, warn, error
	Format         string `json:"format"` // text, json
	IncludeTraceID bool   `json:"include_trace_id"`
}

// ObservabilityConfig groups all observability-related settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

// Config is the central configuration struct embedding every
// component's settings.
type Config struct {
	Redis           RedisConfig           `json:"redis"`
	Processor       ProcessorConfig       `json:"processor"`
	TaskMonitor     TaskMonitorConfig     `json:"task_monitor"`
	ResponseReader  ResponseReaderConfig  `json:"response_reader"`
	ExternalStorage ExternalStorageConfig `json:"external_storage"`
	Daemon          DaemonConfig          `json:"daemon"`
	Observability   ObservabilityConfig   `json:"observability"`
}

// DefaultConfig returns a Config with sensible defaults for a single
// process talking to a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Processor: ProcessorConfig{
			MaxConnections:      200,
			QueueCapacity:       1000,
			DefaultTimeout:      30 * time.Second,
			DefaultMaxRedirects: 5,
			ShutdownTimeout:     15 * time.Second,
		},
		TaskMonitor: TaskMonitorConfig{
			HeartbeatInterval: 5 * time.Second,
			OrphanThreshold:   30 * time.Second,
		},
		ResponseReader: ResponseReaderConfig{
			MaxResponseSizeBytes: 10 << 20, // 10MB
		},
		ExternalStorage: ExternalStorageConfig{
			ThresholdBytes: 1 << 20, // 1MB
		},
		Daemon: DaemonConfig{
			LogLevel:    "info",
			MetricsAddr: "",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "asyncreq",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "asyncreq",
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
	}
}

// Validate enforces the cross-field invariants that must hold before
// rejected at configuration time: heartbeat_interval must be strictly
// less than orphan_threshold, or a live process could be declared
// orphaned between heartbeats.
func (c *Config) Validate() error {
	if c.TaskMonitor.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: task_monitor.heartbeat_interval must be positive")
	}
	if c.TaskMonitor.OrphanThreshold <= 0 {
		return fmt.Errorf("config: task_monitor.orphan_threshold must be positive")
	}
	if c.TaskMonitor.HeartbeatInterval >= c.TaskMonitor.OrphanThreshold {
		return fmt.Errorf("config: task_monitor.heartbeat_interval (%s) must be < task_monitor.orphan_threshold (%s)",
			c.TaskMonitor.HeartbeatInterval, c.TaskMonitor.OrphanThreshold)
	}
	if c.Processor.MaxConnections <= 0 {
		return fmt.Errorf("config: processor.max_connections must be positive")
	}
	if c.Processor.QueueCapacity <= 0 {
		return fmt.Errorf("config: processor.queue_capacity must be positive")
	}
	return nil
}

// LoadFromFile reads a JSON config file over DefaultConfig (so an
// incomplete file still yields sane values for anything it omits) and
// validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies ASYNCREQ_* environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ASYNCREQ_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ASYNCREQ_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ASYNCREQ_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	if v := os.Getenv("ASYNCREQ_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processor.MaxConnections = n
		}
	}
	if v := os.Getenv("ASYNCREQ_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processor.QueueCapacity = n
		}
	}
	if v := os.Getenv("ASYNCREQ_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Processor.DefaultTimeout = d
		}
	}
	if v := os.Getenv("ASYNCREQ_DEFAULT_MAX_REDIRECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processor.DefaultMaxRedirects = n
		}
	}
	if v := os.Getenv("ASYNCREQ_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Processor.ShutdownTimeout = d
		}
	}

	if v := os.Getenv("ASYNCREQ_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskMonitor.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("ASYNCREQ_ORPHAN_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.TaskMonitor.OrphanThreshold = d
		}
	}

	if v := os.Getenv("ASYNCREQ_MAX_RESPONSE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ResponseReader.MaxResponseSizeBytes = n
		}
	}
	if v := os.Getenv("ASYNCREQ_EXTERNAL_STORAGE_THRESHOLD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExternalStorage.ThresholdBytes = n
		}
	}

	if v := os.Getenv("ASYNCREQ_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("ASYNCREQ_METRICS_ADDR"); v != "" {
		cfg.Daemon.MetricsAddr = v
	}

	if v := os.Getenv("ASYNCREQ_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("ASYNCREQ_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("ASYNCREQ_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("ASYNCREQ_TRACING_SERVICE_NAME"); v != "" {
		cfg.Observability.Tracing.ServiceName = v
	}
	if v := os.Getenv("ASYNCREQ_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("ASYNCREQ_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("ASYNCREQ_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("ASYNCREQ_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("ASYNCREQ_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
