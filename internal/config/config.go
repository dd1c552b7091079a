package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
	DriverNone     = "none"
)

// Config holds all configuration for ladder-cache
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Remote    RemoteConfig    `yaml:"remote"`
	Store     StoreConfig     `yaml:"store"`
	Flat      FlatConfig      `yaml:"flat"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTPCache HTTPCacheConfig `yaml:"http_cache"`
	Prefetch  PrefetchConfig  `yaml:"prefetch"`
	Loader    LoaderConfig    `yaml:"loader"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	APIToken       string   `yaml:"api_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RemoteConfig holds catalog API configuration
type RemoteConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	CategoryLimit int           `yaml:"category_limit"`
}

// StoreConfig holds structured store configuration
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	BoltPath        string        `yaml:"bolt_path"`
	DSN             string        `yaml:"dsn"`
	MigrationsDir   string        `yaml:"migrations_dir"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// FlatConfig holds flat cache configuration
type FlatConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	DSN        string `yaml:"dsn"`
	KeyPrefix  string `yaml:"key_prefix"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPCacheConfig holds HTTP response cache configuration
type HTTPCacheConfig struct {
	Driver    string        `yaml:"driver"`
	BoltPath  string        `yaml:"bolt_path"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// PrefetchConfig holds background problem prefetch configuration
type PrefetchConfig struct {
	Enabled     bool          `yaml:"enabled"`
	PageSize    int           `yaml:"page_size"`
	ChunkSize   int           `yaml:"chunk_size"`
	Concurrency int           `yaml:"concurrency"`
	ChunkDelay  time.Duration `yaml:"chunk_delay"`
}

// LoaderConfig holds resumable job configuration
type LoaderConfig struct {
	Pace             time.Duration `yaml:"pace"`
	StaleAfter       time.Duration `yaml:"stale_after"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	ResumeOnBoot     bool          `yaml:"resume_on_boot"`
	// Owner names this process in job records; the hostname when empty
	Owner string `yaml:"owner"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Remote: RemoteConfig{
			BaseURL:       "http://localhost:4000/api",
			Timeout:       30 * time.Second,
			RetryAttempts: 5,
			RetryBackoff:  250 * time.Millisecond,
			CategoryLimit: 10000,
		},
		Store: StoreConfig{
			Driver:          DriverBolt,
			BoltPath:        "./data/store.db",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: time.Hour,
		},
		Flat: FlatConfig{
			Driver:     DriverSQLite,
			SQLitePath: "./data/flat.db",
			KeyPrefix:  "ladder:",
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		HTTPCache: HTTPCacheConfig{
			Driver:    DriverBolt,
			BoltPath:  "./data/http.db",
			KeyPrefix: "ladder:http:",
		},
		Prefetch: PrefetchConfig{
			Enabled:     true,
			PageSize:    15,
			ChunkSize:   12,
			Concurrency: 4,
			ChunkDelay:  50 * time.Millisecond,
		},
		Loader: LoaderConfig{
			Pace:             50 * time.Millisecond,
			StaleAfter:       2 * time.Minute,
			SnapshotInterval: 2 * time.Second,
			ResumeOnBoot:     true,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.APIToken = getEnv("API_TOKEN", c.Server.APIToken)
	c.Server.AllowedOrigins = getEnvAsSlice("CORS_ALLOWED_ORIGINS", c.Server.AllowedOrigins)

	c.Remote.BaseURL = getEnv("REMOTE_BASE_URL", c.Remote.BaseURL)
	c.Remote.Timeout = getEnvAsDuration("REMOTE_TIMEOUT", c.Remote.Timeout)
	c.Remote.RetryAttempts = getEnvAsInt("REMOTE_RETRY_ATTEMPTS", c.Remote.RetryAttempts)
	c.Remote.RetryBackoff = getEnvAsDuration("REMOTE_RETRY_BACKOFF", c.Remote.RetryBackoff)
	c.Remote.CategoryLimit = getEnvAsInt("REMOTE_CATEGORY_LIMIT", c.Remote.CategoryLimit)

	c.Store.Driver = strings.ToLower(getEnv("STORE_DRIVER", c.Store.Driver))
	c.Store.BoltPath = getEnv("STORE_BOLT_PATH", c.Store.BoltPath)
	c.Store.DSN = getEnv("DATABASE_DSN", c.Store.DSN)
	c.Store.MigrationsDir = getEnv("MIGRATIONS_DIR", c.Store.MigrationsDir)
	c.Store.MaxOpenConns = getEnvAsInt("DATABASE_MAX_OPEN_CONNS", c.Store.MaxOpenConns)
	c.Store.MaxIdleConns = getEnvAsInt("DATABASE_MAX_IDLE_CONNS", c.Store.MaxIdleConns)
	c.Store.ConnMaxLifetime = getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", c.Store.ConnMaxLifetime)

	c.Flat.Driver = strings.ToLower(getEnv("FLAT_DRIVER", c.Flat.Driver))
	c.Flat.SQLitePath = getEnv("FLAT_SQLITE_PATH", c.Flat.SQLitePath)
	c.Flat.DSN = getEnv("FLAT_DSN", c.Flat.DSN)
	c.Flat.KeyPrefix = getEnv("FLAT_KEY_PREFIX", c.Flat.KeyPrefix)

	c.Redis.Address = getEnv("REDIS_ADDRESS", c.Redis.Address)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)

	c.HTTPCache.Driver = strings.ToLower(getEnv("HTTP_CACHE_DRIVER", c.HTTPCache.Driver))
	c.HTTPCache.BoltPath = getEnv("HTTP_CACHE_BOLT_PATH", c.HTTPCache.BoltPath)
	c.HTTPCache.KeyPrefix = getEnv("HTTP_CACHE_KEY_PREFIX", c.HTTPCache.KeyPrefix)
	c.HTTPCache.TTL = getEnvAsDuration("HTTP_CACHE_TTL", c.HTTPCache.TTL)

	c.Prefetch.Enabled = getEnvAsBool("PREFETCH_ENABLED", c.Prefetch.Enabled)
	c.Prefetch.PageSize = getEnvAsInt("PREFETCH_PAGE_SIZE", c.Prefetch.PageSize)
	c.Prefetch.ChunkSize = getEnvAsInt("PREFETCH_CHUNK_SIZE", c.Prefetch.ChunkSize)
	c.Prefetch.Concurrency = getEnvAsInt("PREFETCH_CONCURRENCY", c.Prefetch.Concurrency)
	c.Prefetch.ChunkDelay = getEnvAsDuration("PREFETCH_CHUNK_DELAY", c.Prefetch.ChunkDelay)

	c.Loader.Pace = getEnvAsDuration("LOADER_PACE", c.Loader.Pace)
	c.Loader.StaleAfter = getEnvAsDuration("LOADER_STALE_AFTER", c.Loader.StaleAfter)
	c.Loader.SnapshotInterval = getEnvAsDuration("LOADER_SNAPSHOT_INTERVAL", c.Loader.SnapshotInterval)
	c.Loader.ResumeOnBoot = getEnvAsBool("LOADER_RESUME_ON_BOOT", c.Loader.ResumeOnBoot)
	c.Loader.Owner = getEnv("LOADER_OWNER", c.Loader.Owner)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Remote.BaseURL == "" {
		return fmt.Errorf("remote base URL is required")
	}
	if c.Remote.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be positive: %d", c.Remote.RetryAttempts)
	}

	switch c.Store.Driver {
	case DriverBolt:
		if c.Store.BoltPath == "" {
			return fmt.Errorf("store bolt path is required")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("database DSN is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	switch c.Flat.Driver {
	case DriverSQLite:
		if c.Flat.SQLitePath == "" {
			return fmt.Errorf("flat sqlite path is required")
		}
	case DriverPostgres:
		if c.FlatDSN() == "" {
			return fmt.Errorf("flat DSN is required for the postgres flat cache")
		}
	case DriverRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis flat cache")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown flat cache driver: %q", c.Flat.Driver)
	}

	switch c.HTTPCache.Driver {
	case DriverBolt:
		if c.HTTPCache.BoltPath == "" {
			return fmt.Errorf("http cache bolt path is required")
		}
	case DriverRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for the redis http cache")
		}
	case DriverMemory, DriverNone:
	default:
		return fmt.Errorf("unknown http cache driver: %q", c.HTTPCache.Driver)
	}

	if c.Prefetch.PageSize < 1 || c.Prefetch.ChunkSize < 1 || c.Prefetch.Concurrency < 1 {
		return fmt.Errorf("prefetch page size, chunk size and concurrency must be positive")
	}

	return nil
}

// FlatDSN returns the DSN of a postgres flat cache, falling back to the
// structured store DSN
func (c *Config) FlatDSN() string {
	if c.Flat.DSN != "" {
		return c.Flat.DSN
	}
	return c.Store.DSN
}

// Address returns the listen address of the HTTP server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
