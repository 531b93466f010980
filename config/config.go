package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/farellandr/eventhub/internal/models"
)

// ConfigPathEnvVar names an optional YAML file layered between the
// defaults and the environment.
const ConfigPathEnvVar = "CONFIG_PATH"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Notify   NotifyConfig   `koanf:"notify"`
	Logging  LoggingConfig  `koanf:"logging"`
	Uploads  UploadsConfig  `koanf:"uploads"`
	Admin    AdminConfig    `koanf:"admin"`
}

type ServerConfig struct {
	Port    string `koanf:"port"`
	GinMode string `koanf:"gin_mode"`
	// LoginRatePerMinute caps login attempts per client address.
	LoginRatePerMinute int `koanf:"login_rate_per_minute"`
}

type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     string `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
	TimeZone string `koanf:"timezone"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
	// JobToken authenticates scheduled triggers; empty disables it.
	JobToken string `koanf:"job_token"`
	// TicketSecret signs registration QR payloads; defaults to JWTSecret.
	TicketSecret string `koanf:"ticket_secret"`
}

type NotifyConfig struct {
	DefaultChannel   string        `koanf:"default_channel"`
	Timezone         string        `koanf:"timezone"`
	MailerSendAPIKey string        `koanf:"mailersend_api_key"`
	FromName         string        `koanf:"from_name"`
	FromEmail        string        `koanf:"from_email"`
	SMSGatewayURL    string        `koanf:"sms_gateway_url"`
	WhatsAppURL      string        `koanf:"whatsapp_gateway_url"`
	GatewayClientID  string        `koanf:"gateway_client_id"`
	GatewayToken     string        `koanf:"gateway_token"`
	BreakerRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerRatio     float64       `koanf:"breaker_failure_ratio"`
	BreakerInterval  time.Duration `koanf:"breaker_interval"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
	PendingBatchSize int           `koanf:"pending_batch_size"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type UploadsConfig struct {
	BasePath string `koanf:"base_path"`
}

// AdminConfig seeds the first administrator when both fields are set.
type AdminConfig struct {
	Username string `koanf:"username"`
	Email    string `koanf:"email"`
	Password string `koanf:"password"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8080",
			GinMode:            "release",
			LoginRatePerMinute: 10,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Name:     "eventhub",
			SSLMode:  "disable",
			TimeZone: "UTC",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			DefaultChannel:   string(models.ChannelEmail),
			Timezone:         "UTC",
			FromName:         "EventHub",
			BreakerRequests:  10,
			BreakerRatio:     0.6,
			BreakerInterval:  time.Minute,
			BreakerTimeout:   2 * time.Minute,
			PendingBatchSize: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Uploads: UploadsConfig{
			BasePath: "./uploads/",
		},
		Admin: AdminConfig{
			Username: "admin",
		},
	}
}

var envMappings = map[string]string{
	"port":                  "server.port",
	"gin_mode":              "server.gin_mode",
	"login_rate_per_minute": "server.login_rate_per_minute",

	"db_host":     "database.host",
	"db_port":     "database.port",
	"db_user":     "database.user",
	"db_password": "database.password",
	"db_name":     "database.name",
	"db_sslmode":  "database.sslmode",
	"db_timezone": "database.timezone",

	"jwt_secret":    "auth.jwt_secret",
	"token_ttl":     "auth.token_ttl",
	"job_token":     "auth.job_token",
	"ticket_secret": "auth.ticket_secret",

	"notify_default_channel":       "notify.default_channel",
	"reminder_timezone":            "notify.timezone",
	"mailersend_api_key":           "notify.mailersend_api_key",
	"mail_from_name":               "notify.from_name",
	"mail_from_email":              "notify.from_email",
	"sms_gateway_url":              "notify.sms_gateway_url",
	"whatsapp_gateway_url":         "notify.whatsapp_gateway_url",
	"gateway_client_id":            "notify.gateway_client_id",
	"gateway_token":                "notify.gateway_token",
	"notify_breaker_min_requests":  "notify.breaker_min_requests",
	"notify_breaker_failure_ratio": "notify.breaker_failure_ratio",
	"notify_breaker_interval":      "notify.breaker_interval",
	"notify_breaker_timeout":       "notify.breaker_timeout",
	"pending_batch_size":           "notify.pending_batch_size",

	"log_level":  "logging.level",
	"log_format": "logging.format",

	"upload_base_path": "uploads.base_path",

	"admin_username": "admin.username",
	"admin_email":    "admin.email",
	"admin_password": "admin.password",
}

// envTransform maps a known environment variable onto its config path;
// everything else is ignored.
func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load layers defaults, the optional YAML file at CONFIG_PATH and the
// environment, in that order, and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if cfg.Auth.TicketSecret == "" {
		cfg.Auth.TicketSecret = cfg.Auth.JWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if _, err := time.LoadLocation(c.Notify.Timezone); err != nil {
		return fmt.Errorf("unknown REMINDER_TIMEZONE %q: %w", c.Notify.Timezone, err)
	}
	if !models.ValidChannel(c.Notify.DefaultChannel) {
		return fmt.Errorf("unknown NOTIFY_DEFAULT_CHANNEL %q", c.Notify.DefaultChannel)
	}
	if c.Notify.BreakerRatio <= 0 || c.Notify.BreakerRatio > 1 {
		return errors.New("NOTIFY_BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	return nil
}

// Location is the reminder timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Notify.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode, c.TimeZone,
	)
}
