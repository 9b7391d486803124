package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Local substrate backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Local   LocalConfig   `yaml:"local"`
	Remote  RemoteConfig  `yaml:"remote"`
	Chat    ChatConfig    `yaml:"chat"`
	Sync    SyncConfig    `yaml:"sync"`
	Archive ArchiveConfig `yaml:"archive"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
	// RateLimit is requests per second per client; zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LocalConfig selects and sizes the local key-value substrate.
type LocalConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	RedisURL    string `yaml:"redis_url"`
	RedisPrefix string `yaml:"redis_prefix"`
	// QuotaBytes caps the substrate size; zero is unbounded.
	QuotaBytes   int64 `yaml:"quota_bytes"`
	SeedDefaults bool  `yaml:"seed_defaults"`
}

// RemoteConfig points at the remote Postgres used for sync.
type RemoteConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"-"` // env-only, never in YAML
}

// Configured reports whether a remote store is set up.
func (r RemoteConfig) Configured() bool {
	return r.URL != ""
}

// ChatConfig contains completion provider settings.
type ChatConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
	Model  string `yaml:"model"`
}

// SyncConfig contains background sync settings.
type SyncConfig struct {
	Enabled     bool     `yaml:"enabled"`
	UserID      string   `yaml:"user_id"`
	Interval    Duration `yaml:"interval"`
	MaxAttempts int      `yaml:"max_attempts"`
	BaseDelay   Duration `yaml:"base_delay"`
}

// ArchiveConfig contains S3-compatible export archive settings.
// An empty bucket disables archiving.
type ArchiveConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
	// Interval schedules periodic archives; zero disables the worker.
	Interval Duration `yaml:"interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("OPSDASH_CONFIG_PATH", "config/opsdash.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
			RateLimit:       10,
			RateBurst:       20,
		},
		Local: LocalConfig{
			Backend:     BackendSQLite,
			Path:        "data/opsdash.db",
			RedisPrefix: "opsdash:",
			QuotaBytes:  5 << 20,
		},
		Chat: ChatConfig{
			Model: "gpt-4o-mini",
		},
		Sync: SyncConfig{
			UserID:      "default",
			Interval:    Duration(5 * time.Minute),
			MaxAttempts: 3,
			BaseDelay:   Duration(time.Second),
		},
		Archive: ArchiveConfig{
			Region:    "us-east-1",
			UseSSL:    &useSSL,
			URLExpiry: Duration(15 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("OPSDASH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("OPSDASH_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("OPSDASH_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("OPSDASH_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v := os.Getenv("OPSDASH_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit = f
		}
	}

	// Auth
	if v := os.Getenv("OPSDASH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Local
	if v := os.Getenv("OPSDASH_LOCAL_BACKEND"); v != "" {
		cfg.Local.Backend = v
	}
	if v := os.Getenv("OPSDASH_DB_PATH"); v != "" {
		cfg.Local.Path = v
	}
	if v := os.Getenv("OPSDASH_REDIS_URL"); v != "" {
		cfg.Local.RedisURL = v
	}
	if v := os.Getenv("OPSDASH_QUOTA_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Local.QuotaBytes = n
		}
	}

	// Remote
	if v := os.Getenv("OPSDASH_REMOTE_URL"); v != "" {
		cfg.Remote.URL = v
	}
	if v := os.Getenv("OPSDASH_REMOTE_KEY"); v != "" {
		cfg.Remote.Key = v
	}

	// Chat (OPENAI_API_KEY is industry convention)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("OPSDASH_CHAT_MODEL"); v != "" {
		cfg.Chat.Model = v
	}

	// Sync
	if v := os.Getenv("OPSDASH_SYNC_ENABLED"); v != "" {
		cfg.Sync.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OPSDASH_USER_ID"); v != "" {
		cfg.Sync.UserID = v
	}
	envDuration("OPSDASH_SYNC_INTERVAL", &cfg.Sync.Interval)

	// Archive
	if v := os.Getenv("OPSDASH_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("OPSDASH_S3_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("OPSDASH_S3_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("OPSDASH_S3_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("OPSDASH_S3_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("OPSDASH_S3_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Archive.UseSSL = &useSSL
	}
	envDuration("OPSDASH_S3_URL_EXPIRY", &cfg.Archive.URLExpiry)
	envDuration("OPSDASH_ARCHIVE_INTERVAL", &cfg.Archive.Interval)

	// Log
	if v := os.Getenv("OPSDASH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("OPSDASH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks structural settings, then required credentials.
// In dev mode (OPSDASH_DEV_MODE=true), credential validation is skipped.
func (c *Config) validate() error {
	switch c.Local.Backend {
	case BackendSQLite:
	case BackendRedis:
		if c.Local.RedisURL == "" {
			return errors.New("OPSDASH_REDIS_URL is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown local backend %q", c.Local.Backend)
	}
	if c.Local.QuotaBytes < 0 {
		return errors.New("local.quota_bytes must not be negative")
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive when sync is enabled")
	}

	if IsDevMode() {
		return nil
	}

	if c.Chat.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Auth.APIKey == "" {
		return errors.New("OPSDASH_API_KEY is required")
	}
	// Never fall back to a placeholder remote endpoint.
	if c.Remote.URL == "" {
		return errors.New("OPSDASH_REMOTE_URL is required")
	}
	if c.Remote.Key == "" {
		return errors.New("OPSDASH_REMOTE_KEY is required")
	}
	return nil
}

// IsDevMode reports whether OPSDASH_DEV_MODE is enabled.
func IsDevMode() bool {
	return os.Getenv("OPSDASH_DEV_MODE") == "true"
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
