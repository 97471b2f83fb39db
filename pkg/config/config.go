package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/authgate/pkg/observability"
	"github.com/platinummonkey/authgate/pkg/storage"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// MinSessionSecretLength is the minimum signing secret size in bytes
const MinSessionSecretLength = 32

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Session       SessionConfig       `yaml:"session"`
	Storage       storage.Config      `yaml:"storage"`
	Provisioning  ProvisioningConfig  `yaml:"provisioning"`
	Observability ObservabilityConfig `yaml:"observability"`
	Jobs          JobsConfig          `yaml:"jobs"`

	// File is the YAML file the configuration was read from, if any
	File string `yaml:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// IdentityConfig selects the trusted identity-token issuer
type IdentityConfig struct {
	IssuerURL            string `yaml:"issuer_url"`
	ClientID             string `yaml:"client_id"`
	RequireVerifiedEmail bool   `yaml:"require_verified_email"`
}

// SessionConfig configures session-token signing. The secret is loaded once at
// startup and never reloaded.
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

// ProvisioningConfig configures the downstream new-user notification
type ProvisioningConfig struct {
	// BaseURL of the leave service; empty disables notifications
	BaseURL            string        `yaml:"base_url"`
	Timeout            time.Duration `yaml:"timeout"`
	Async              bool          `yaml:"async"`
	BreakerEnabled     bool          `yaml:"breaker_enabled"`
	BreakerMaxFailures uint32        `yaml:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `yaml:"breaker_open_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// JobsConfig holds background job settings
type JobsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	UserStatsSchedule string `yaml:"user_stats_schedule"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Identity: IdentityConfig{
			IssuerURL: "https://accounts.google.com",
		},
		Session: SessionConfig{
			TTL:    24 * time.Hour,
			Issuer: "authgate",
		},
		Storage: storage.DefaultConfig(),
		Provisioning: ProvisioningConfig{
			Timeout:            5 * time.Second,
			BreakerEnabled:     true,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "authgate",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
		Jobs: JobsConfig{
			Enabled:           true,
			UserStatsSchedule: "@every 5m",
		},
	}
}

// LoadConfig loads configuration from an optional YAML file named by
// AUTHGATE_CONFIG_FILE, then environment variables. Environment wins.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("AUTHGATE_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	loadServerConfig(&cfg.Server)
	loadIdentityConfig(&cfg.Identity)
	loadSessionConfig(&cfg.Session)
	loadStorageConfig(&cfg.Storage)
	loadProvisioningConfig(&cfg.Provisioning)
	loadObservabilityConfig(&cfg.Observability)
	loadJobsConfig(&cfg.Jobs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML file at path onto cfg
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.File = path
	return nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(cfg *ServerConfig) {
	cfg.Host = getEnv("AUTHGATE_HOST", cfg.Host)
	cfg.Port = getEnv("AUTHGATE_PORT", cfg.Port)
	cfg.HealthPort = getEnv("AUTHGATE_HEALTH_PORT", cfg.HealthPort)
	cfg.ReadTimeout = getEnvDuration("AUTHGATE_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getEnvDuration("AUTHGATE_WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.IdleTimeout = getEnvDuration("AUTHGATE_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ShutdownTimeout = getEnvDuration("AUTHGATE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.MaxBodyBytes = getEnvInt64("AUTHGATE_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	if origins := getEnv("AUTHGATE_CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
}

// loadIdentityConfig loads identity issuer configuration from environment
func loadIdentityConfig(cfg *IdentityConfig) {
	cfg.IssuerURL = getEnv("AUTHGATE_OIDC_ISSUER_URL", cfg.IssuerURL)
	cfg.ClientID = getEnv("AUTHGATE_OIDC_CLIENT_ID", cfg.ClientID)
	cfg.RequireVerifiedEmail = getEnvBool("AUTHGATE_OIDC_REQUIRE_VERIFIED_EMAIL", cfg.RequireVerifiedEmail)
}

// loadSessionConfig loads session signing configuration from environment
func loadSessionConfig(cfg *SessionConfig) {
	cfg.Secret = getEnv("AUTHGATE_SESSION_SECRET", cfg.Secret)
	cfg.TTL = getEnvDuration("AUTHGATE_SESSION_TTL", cfg.TTL)
	cfg.Issuer = getEnv("AUTHGATE_SESSION_ISSUER", cfg.Issuer)
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig(cfg *storage.Config) {
	if driver := getEnv("AUTHGATE_STORAGE_DRIVER", ""); driver != "" {
		cfg.Driver = driver
	}
	if cfg.Driver == "sqlite" {
		cfg.Driver = storage.DriverSQLite
	}

	cfg.DSN = getEnv("AUTHGATE_DATABASE_URL", cfg.DSN)
	if maxConns := getEnvInt("AUTHGATE_DATABASE_MAX_CONNS", 0); maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns := getEnvInt("AUTHGATE_DATABASE_MIN_CONNS", 0); minConns > 0 {
		cfg.MinConns = minConns
	}
	if timeout := getEnvDuration("AUTHGATE_DATABASE_TIMEOUT", 0); timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.MigrateOnStart = getEnvBool("AUTHGATE_DATABASE_MIGRATE", cfg.MigrateOnStart)

	// Redis config
	cfg.RedisURL = getEnv("AUTHGATE_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("AUTHGATE_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("AUTHGATE_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisPoolSize := getEnvInt("AUTHGATE_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	cfg.CacheTTL = getEnvDuration("AUTHGATE_CACHE_TTL", cfg.CacheTTL)
	cfg.L1CacheSize = getEnvInt("AUTHGATE_CACHE_L1_SIZE", cfg.L1CacheSize)
}

// loadProvisioningConfig loads downstream notification configuration from environment
func loadProvisioningConfig(cfg *ProvisioningConfig) {
	cfg.BaseURL = getEnv("AUTHGATE_PROVISIONING_URL", cfg.BaseURL)
	cfg.Timeout = getEnvDuration("AUTHGATE_PROVISIONING_TIMEOUT", cfg.Timeout)
	cfg.Async = getEnvBool("AUTHGATE_PROVISIONING_ASYNC", cfg.Async)
	cfg.BreakerEnabled = getEnvBool("AUTHGATE_PROVISIONING_BREAKER_ENABLED", cfg.BreakerEnabled)
	if n := getEnvInt("AUTHGATE_PROVISIONING_BREAKER_MAX_FAILURES", 0); n > 0 {
		cfg.BreakerMaxFailures = uint32(n)
	}
	cfg.BreakerOpenTimeout = getEnvDuration("AUTHGATE_PROVISIONING_BREAKER_TIMEOUT", cfg.BreakerOpenTimeout)
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig(cfg *ObservabilityConfig) {
	cfg.LogLevel = getEnv("AUTHGATE_LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsEnabled = getEnvBool("AUTHGATE_METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.OTelEnabled = getEnvBool("AUTHGATE_OTEL_ENABLED", cfg.OTelEnabled)
	cfg.OTelEndpoint = getEnv("AUTHGATE_OTEL_ENDPOINT", cfg.OTelEndpoint)
	cfg.OTelServiceName = getEnv("AUTHGATE_OTEL_SERVICE_NAME", cfg.OTelServiceName)
	cfg.OTelServiceVersion = getEnv("AUTHGATE_OTEL_SERVICE_VERSION", cfg.OTelServiceVersion)
	cfg.OTelInsecure = getEnvBool("AUTHGATE_OTEL_INSECURE", cfg.OTelInsecure)
}

// loadJobsConfig loads background job configuration from environment
func loadJobsConfig(cfg *JobsConfig) {
	cfg.Enabled = getEnvBool("AUTHGATE_JOBS_ENABLED", cfg.Enabled)
	cfg.UserStatsSchedule = getEnv("AUTHGATE_JOBS_USER_STATS_SCHEDULE", cfg.UserStatsSchedule)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate identity config
	if c.Identity.IssuerURL == "" {
		return fmt.Errorf("OIDC issuer URL is required")
	}
	if c.Identity.ClientID == "" {
		return fmt.Errorf("OIDC client ID is required")
	}

	// Validate session config
	if len(c.Session.Secret) < MinSessionSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes", MinSessionSecretLength)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	// Validate storage config based on driver
	switch c.Storage.Driver {
	case storage.DriverMemory:
	case storage.DriverPostgres, storage.DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("database URL is required for %s storage", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be memory, postgres, or sqlite3)", c.Storage.Driver)
	}

	// Validate provisioning config
	if c.Provisioning.BaseURL != "" && c.Provisioning.Timeout <= 0 {
		return fmt.Errorf("provisioning timeout must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	// Validate job schedules
	if c.Jobs.Enabled {
		if _, err := cron.ParseStandard(c.Jobs.UserStatsSchedule); err != nil {
			return fmt.Errorf("invalid user stats schedule %q: %w", c.Jobs.UserStatsSchedule, err)
		}
	}

	return nil
}

// splitList splits a comma-separated list, dropping empty entries
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
