package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxSweepInterval bounds how stale persisted call status may get relative to the derived status.
const MaxSweepInterval = 60 * time.Second

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Calls    CallsConfig    `yaml:"calls"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Auth     AuthConfig     `yaml:"auth"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	Mode            string  `yaml:"mode"` // gin mode: debug, release, test
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// CallsConfig holds call engine and listing settings.
type CallsConfig struct {
	Timezone               string         `yaml:"timezone"`
	Location               *time.Location `yaml:"-"`
	DefaultPageSize        int            `yaml:"default_page_size"`
	MaxPageSize            int            `yaml:"max_page_size"`
	MachineCacheTTLSeconds int            `yaml:"machine_cache_ttl_seconds"`
	MachineCacheTTL        time.Duration  `yaml:"-"`
}

// SweeperConfig holds the expiration sweep scheduling configuration.
type SweeperConfig struct {
	Enabled               bool          `yaml:"enabled"`
	IntervalSeconds       int           `yaml:"interval_seconds"`
	Interval              time.Duration `yaml:"-"` // Ignored by YAML parser
	TickTimeoutSeconds    int           `yaml:"tick_timeout_seconds"`
	TickTimeout           time.Duration `yaml:"-"`
	PerCallTimeoutSeconds int           `yaml:"per_call_timeout_seconds"`
	PerCallTimeout        time.Duration `yaml:"-"`
	Parallelism           int           `yaml:"parallelism"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

// RedisConfig enables the cross-instance sweep lock when Addr is set.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	LockKey        string        `yaml:"lock_key"`
	LockTTLSeconds int           `yaml:"lock_ttl_seconds"`
	LockTTL        time.Duration `yaml:"-"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads the configuration from the given path. A .env file in the
// working directory is loaded first; DATABASE_DSN, JWT_SECRET and REDIS_ADDR
// override the file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Calls.Timezone == "" {
		cfg.Calls.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Calls.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Calls.Timezone, err)
	}
	cfg.Calls.Location = loc
	if cfg.Calls.DefaultPageSize <= 0 {
		cfg.Calls.DefaultPageSize = 10
	}
	if cfg.Calls.MaxPageSize <= 0 {
		cfg.Calls.MaxPageSize = 100
	}
	if cfg.Calls.MachineCacheTTLSeconds <= 0 {
		cfg.Calls.MachineCacheTTLSeconds = 30
	}
	cfg.Calls.MachineCacheTTL = time.Duration(cfg.Calls.MachineCacheTTLSeconds) * time.Second

	if cfg.Sweeper.IntervalSeconds <= 0 {
		cfg.Sweeper.IntervalSeconds = 30
	}
	cfg.Sweeper.Interval = time.Duration(cfg.Sweeper.IntervalSeconds) * time.Second
	if cfg.Sweeper.TickTimeoutSeconds <= 0 {
		cfg.Sweeper.TickTimeoutSeconds = cfg.Sweeper.IntervalSeconds
	}
	cfg.Sweeper.TickTimeout = time.Duration(cfg.Sweeper.TickTimeoutSeconds) * time.Second
	if cfg.Sweeper.PerCallTimeoutSeconds <= 0 {
		cfg.Sweeper.PerCallTimeoutSeconds = 5
	}
	cfg.Sweeper.PerCallTimeout = time.Duration(cfg.Sweeper.PerCallTimeoutSeconds) * time.Second
	if cfg.Sweeper.Parallelism <= 0 {
		cfg.Sweeper.Parallelism = 4
	}

	if cfg.Redis.LockKey == "" {
		cfg.Redis.LockKey = "machine-alert:sweep-lock"
	}
	if cfg.Redis.LockTTLSeconds <= 0 {
		cfg.Redis.LockTTLSeconds = 2 * cfg.Sweeper.TickTimeoutSeconds
	}
	cfg.Redis.LockTTL = time.Duration(cfg.Redis.LockTTLSeconds) * time.Second

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return nil
}

func (cfg *Config) validate() error {
	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if cfg.Sweeper.Interval > MaxSweepInterval {
		return fmt.Errorf("sweeper.interval_seconds must be at most %d, got %d", int(MaxSweepInterval.Seconds()), cfg.Sweeper.IntervalSeconds)
	}
	if cfg.Sweeper.PerCallTimeout > cfg.Sweeper.TickTimeout {
		return fmt.Errorf("sweeper.per_call_timeout_seconds (%d) must not exceed tick_timeout_seconds (%d)",
			cfg.Sweeper.PerCallTimeoutSeconds, cfg.Sweeper.TickTimeoutSeconds)
	}
	if cfg.Calls.DefaultPageSize > cfg.Calls.MaxPageSize {
		return fmt.Errorf("calls.default_page_size must not exceed max_page_size")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}
