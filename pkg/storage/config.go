package storage

import "time"

// Supported drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config for storage backend
type Config struct {
	Driver string `yaml:"driver"` // "memory", "postgres", "sqlite3"

	// SQL config
	DSN            string        `yaml:"dsn"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxLifetime    time.Duration `yaml:"max_lifetime"`
	MaxIdleTime    time.Duration `yaml:"max_idle_time"`
	MigrateOnStart bool          `yaml:"migrate_on_start"`

	// Redis config
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`

	// Cache config
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	L1CacheSize int           `yaml:"l1_cache_size"` // records
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DriverMemory,
		MaxConns:        20,
		MinConns:        2,
		Timeout:         10 * time.Second,
		MaxLifetime:     30 * time.Minute,
		MaxIdleTime:     5 * time.Minute,
		MigrateOnStart:  true,
		RedisDB:         -1,
		RedisMaxRetries: 3,
		RedisPoolSize:   10,
		CacheTTL:        5 * time.Minute,
		L1CacheSize:     1024,
	}
}

// IsSQL reports whether the configured driver is backed by database/sql
func (c Config) IsSQL() bool {
	return c.Driver == DriverPostgres || c.Driver == DriverSQLite
}
