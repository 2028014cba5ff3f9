package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the dagrun server
type Config struct {
	// Server configuration
	HTTPPort int    `env:"DAGRUN_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"DAGRUN_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis configuration
	Redis RedisConfig

	// Backend selection for run reports and events
	Backends BackendConfig

	// Worker configuration
	Workers WorkerConfig

	// Step executor configuration
	Executor ExecutorConfig

	// Artifact and log storage
	Artifacts ArtifactConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// BackendConfig selects where reports and events live
type BackendConfig struct {
	Storage string `env:"DAGRUN_STORAGE" envDefault:"redis"`
	Events  string `env:"DAGRUN_EVENTS" envDefault:"redis"`

	// ReportTTL is how long a finished run report is kept (0 keeps it forever)
	ReportTTL time.Duration `env:"DAGRUN_REPORT_TTL" envDefault:"168h"`

	// Redis streams settings
	StreamMaxLen int64 `env:"DAGRUN_EVENTS_STREAM_MAXLEN" envDefault:"10000"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	PoolSize            int           `env:"WORKER_POOL_SIZE" envDefault:"5"`
	QueueSize           int           `env:"WORKER_QUEUE_SIZE" envDefault:"100"`
	HealthCheckInterval time.Duration `env:"WORKER_HEALTH_CHECK_INTERVAL" envDefault:"30s"`
}

// ExecutorConfig holds shell executor configuration
type ExecutorConfig struct {
	Shell     string        `env:"DAGRUN_SHELL" envDefault:"sh"`
	WorkDir   string        `env:"DAGRUN_WORKDIR"`
	KillGrace time.Duration `env:"DAGRUN_KILL_GRACE" envDefault:"5s"`
}

// ArtifactConfig holds blob store configuration
type ArtifactConfig struct {
	Backend  string `env:"DAGRUN_ARTIFACTS" envDefault:"memory"`
	Bucket   string `env:"DAGRUN_S3_BUCKET"`
	Region   string `env:"DAGRUN_S3_REGION" envDefault:"us-east-1"`
	Prefix   string `env:"DAGRUN_S3_PREFIX" envDefault:"dagrun/"`
	Endpoint string `env:"DAGRUN_S3_ENDPOINT"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	RunTimeout      time.Duration `env:"TIMEOUT_RUN" envDefault:"3600s"` // 1 hour
	JobTimeout      time.Duration `env:"TIMEOUT_JOB" envDefault:"0s"`    // unless the job sets one
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	// Validate backends
	if !oneOf(c.Backends.Storage, "redis", "memory") {
		return fmt.Errorf("unsupported storage backend: %s (must be redis or memory)", c.Backends.Storage)
	}
	if !oneOf(c.Backends.Events, "redis", "memory") {
		return fmt.Errorf("unsupported events backend: %s (must be redis or memory)", c.Backends.Events)
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Backends.ReportTTL < 0 {
		return fmt.Errorf("report TTL must not be negative")
	}

	// Validate artifacts
	switch c.Artifacts.Backend {
	case "memory":
	case "s3":
		if c.Artifacts.Bucket == "" {
			return fmt.Errorf("S3 bucket is required for the s3 artifact backend")
		}
	default:
		return fmt.Errorf("unsupported artifact backend: %s (must be memory or s3)", c.Artifacts.Backend)
	}

	// Validate worker config
	if c.Workers.PoolSize < 1 {
		return fmt.Errorf("worker pool size must be at least 1")
	}
	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("worker queue size must not be negative")
	}

	if c.Executor.Shell == "" {
		return fmt.Errorf("executor shell is required")
	}

	if c.Timeouts.RunTimeout < 0 || c.Timeouts.JobTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Backends.Storage == "redis" || c.Backends.Events == "redis"
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
