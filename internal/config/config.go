package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Session   SessionConfig   `yaml:"session"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// RedisConfig enables the shared active-session store when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	Prefix   string        `yaml:"prefix"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// SessionConfig holds workout defaults. Zero values fall back to the
// runtime's built-in defaults.
type SessionConfig struct {
	DefaultSets        int           `yaml:"default_sets"`
	DefaultReps        int           `yaml:"default_reps"`
	DefaultWeight      float64       `yaml:"default_weight"`
	DefaultRestSeconds int           `yaml:"default_rest_seconds"`
	NominalMinutes     int           `yaml:"nominal_minutes"`
	BodyweightKg       float64       `yaml:"bodyweight_kg"`
	TickInterval       time.Duration `yaml:"tick_interval"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix LIFTLOG_ and underscore-separated paths:
//
//	LIFTLOG_SERVER_HOST, LIFTLOG_SERVER_PORT,
//	LIFTLOG_DB_DRIVER, LIFTLOG_DB_HOST, LIFTLOG_DB_PORT, LIFTLOG_DB_NAME,
//	LIFTLOG_DB_USER, LIFTLOG_DB_PASSWORD, LIFTLOG_DB_SSLMODE, LIFTLOG_DB_PATH,
//	LIFTLOG_REDIS_ADDR, LIFTLOG_REDIS_PASSWORD,
//	LIFTLOG_AUTH_API_KEY,
//	LIFTLOG_TAILSCALE_ENABLED, LIFTLOG_TAILSCALE_HOSTNAME
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	envString("LIFTLOG_SERVER_HOST", &cfg.Server.Host)
	envInt("LIFTLOG_SERVER_PORT", &cfg.Server.Port)

	envString("LIFTLOG_DB_DRIVER", &cfg.Database.Driver)
	envString("LIFTLOG_DB_HOST", &cfg.Database.Host)
	envInt("LIFTLOG_DB_PORT", &cfg.Database.Port)
	envString("LIFTLOG_DB_NAME", &cfg.Database.Name)
	envString("LIFTLOG_DB_USER", &cfg.Database.User)
	envString("LIFTLOG_DB_PASSWORD", &cfg.Database.Password)
	envString("LIFTLOG_DB_SSLMODE", &cfg.Database.SSLMode)
	envString("LIFTLOG_DB_PATH", &cfg.Database.Path)

	envString("LIFTLOG_REDIS_ADDR", &cfg.Redis.Addr)
	envString("LIFTLOG_REDIS_PASSWORD", &cfg.Redis.Password)

	envString("LIFTLOG_AUTH_API_KEY", &cfg.Auth.APIKey)

	if v := os.Getenv("LIFTLOG_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	envString("LIFTLOG_TAILSCALE_HOSTNAME", &cfg.Tailscale.Hostname)
}

func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "liftlog"
	}
	if cfg.Session.TickInterval == 0 {
		cfg.Session.TickInterval = time.Second
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 30 * time.Minute
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required")
		}
		if c.Database.Port == 0 {
			return fmt.Errorf("database.port is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("database.driver %q: must be %s or %s", c.Database.Driver, DriverPostgres, DriverSQLite)
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Session.DefaultSets < 0 || c.Session.DefaultReps < 0 || c.Session.DefaultWeight < 0 ||
		c.Session.DefaultRestSeconds < 0 || c.Session.NominalMinutes < 0 || c.Session.BodyweightKg < 0 {
		return fmt.Errorf("session defaults must not be negative")
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl must not be negative")
	}
	return nil
}
