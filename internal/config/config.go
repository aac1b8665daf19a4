package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is constructed
// once at startup and passed by reference into every component that
// needs it; there is no ambient global lookup.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	SMTP    SMTPConfig    `yaml:"smtp"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"` // external address used in mail links
}

// StorageConfig selects and configures the document store backend.
type StorageConfig struct {
	Backend         string   `yaml:"backend"` // "file" (default) or "s3"
	DataDir         string   `yaml:"data_dir"`
	LockWaitSeconds int      `yaml:"lock_wait_seconds"`
	S3              S3Config `yaml:"s3"`
}

// S3Config holds the S3 backend settings.
type S3Config struct {
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"` // custom endpoint for S3-compatible services
}

// AuthConfig holds signing and registration settings. AdminCode may be
// empty: registering as admin is then disabled, not an error.
type AuthConfig struct {
	Secret          string `yaml:"secret"`
	AdminCode       string `yaml:"admin_code"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
}

// SMTPConfig holds mail relay credentials. An empty host disables
// outgoing mail entirely.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file, then overlays environment
// variables (a .env file is honored when present). A missing config
// file is tolerated with a warning; the defaults plus environment keep
// the application usable.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warn().Str("path", path).Msg("Config file not found, using defaults and environment")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overlayEnv(cfg)

	if cfg.Auth.Secret == "" {
		cfg.Auth.Secret = "change-me-in-production"
		log.Warn().Msg("No signing secret configured, using insecure default")
	}
	if cfg.Auth.AdminCode == "" {
		log.Warn().Msg("No admin invite code configured, admin registration disabled")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Storage: StorageConfig{
			Backend:         "file",
			DataDir:         "data",
			LockWaitSeconds: 5,
		},
		Auth: AuthConfig{
			SessionTTLHours: 24,
		},
		SMTP: SMTPConfig{
			Port: "587",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("ADMIN_CODE"); v != "" {
		cfg.Auth.AdminCode = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		cfg.SMTP.Port = v
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// LockWait returns the bounded document-lock wait as a duration.
func (c *StorageConfig) LockWait() time.Duration {
	if c.LockWaitSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.LockWaitSeconds) * time.Second
}

// SessionTTL returns the session token lifetime as a duration.
func (c *AuthConfig) SessionTTL() time.Duration {
	if c.SessionTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SessionTTLHours) * time.Hour
}
