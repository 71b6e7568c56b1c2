package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Settings document
	DataDir   string `envconfig:"WELCOME_DATA_DIR" default:"data/welcome_group"`
	Store     string `envconfig:"WELCOME_STORE" default:"file"` // "file" or "sqlite"
	StorePath string `envconfig:"WELCOME_STORE_PATH"`           // .yaml/.yml selects YAML for the file store
	Timezone  string `envconfig:"WELCOME_TIMEZONE" default:"Local"`

	// Chat commands
	CommandPrefix     string        `envconfig:"WELCOME_COMMAND_PREFIX" default:"/"`
	CommandName       string        `envconfig:"WELCOME_COMMAND_NAME" default:"welcome"`
	CommandRateLimit  int           `envconfig:"COMMAND_RATE_LIMIT" default:"10"`
	CommandRateWindow time.Duration `envconfig:"COMMAND_RATE_WINDOW" default:"1m"`

	// Outbound sends
	SendFailurePolicy string `envconfig:"SEND_FAILURE_POLICY" default:"drop"` // "drop" or "retry"
	SendRetryAttempts int    `envconfig:"SEND_RETRY_ATTEMPTS" default:"3"`

	// OneBot transport (WS preferred over HTTP when both are set)
	OneBotWSURL       string        `envconfig:"ONEBOT_WS_URL"`
	OneBotHTTPURL     string        `envconfig:"ONEBOT_HTTP_URL"`
	OneBotAccessToken string        `envconfig:"ONEBOT_ACCESS_TOKEN"`
	OneBotTimeout     time.Duration `envconfig:"ONEBOT_TIMEOUT" default:"10s"`
	OneBotMaxQueued   int           `envconfig:"ONEBOT_MAX_QUEUED_EVENTS" default:"4096"`

	// HTTP-POST event reporting
	WebhookAddr   string `envconfig:"WEBHOOK_ADDR"`
	WebhookPath   string `envconfig:"WEBHOOK_PATH" default:"/onebot"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`

	// Runtime
	EventBufferSize int    `envconfig:"EVENT_BUFFER_SIZE" default:"256"`
	RoutingFile     string `envconfig:"WELCOME_ROUTING_FILE"`

	// Management API
	MgmtListenAddr     string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode       string `envconfig:"MGMT_AUTH_MODE" default:"api-key"`
	MgmtAPIKey         string `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret      string `envconfig:"MGMT_JWT_SECRET"`
	MgmtRateLimitRPS   int    `envconfig:"MGMT_RATE_LIMIT_RPS" default:"100"`
	MgmtRateLimitBurst int    `envconfig:"MGMT_RATE_LIMIT_BURST" default:"200"`
	MgmtCORSOrigins    string `envconfig:"MGMT_CORS_ORIGINS"`

	// Domain events
	NATSURL         string `envconfig:"NATS_URL"`
	NATSTopicPrefix string `envconfig:"NATS_TOPIC_PREFIX"`
}

// IsDevelopment reports whether console logging should be used.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// OneBotWSEnabled returns true if a forward WebSocket endpoint is configured.
func (c *Config) OneBotWSEnabled() bool {
	return c.OneBotWSURL != ""
}

// OneBotHTTPEnabled returns true if only the HTTP API is configured.
func (c *Config) OneBotHTTPEnabled() bool {
	return c.OneBotWSURL == "" && c.OneBotHTTPURL != ""
}

// WebhookEnabled returns true if the HTTP-POST receiver should listen.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookAddr != ""
}

// NATSEnabled returns true if domain events go to NATS.
func (c *Config) NATSEnabled() bool {
	return c.NATSURL != ""
}

// SettingsPath returns the document location, derived from the data
// directory and store backend when WELCOME_STORE_PATH is unset.
func (c *Config) SettingsPath() string {
	if c.StorePath != "" {
		return c.StorePath
	}
	if c.Store == StoreSQLite {
		return filepath.Join(c.DataDir, "welcome.db")
	}
	return filepath.Join(c.DataDir, "config.json")
}

// Location resolves WELCOME_TIMEZONE.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("WELCOME_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("WELCOME_STORE must be %q or %q, got %q", StoreFile, StoreSQLite, c.Store)
	}
	if strings.TrimSpace(c.CommandName) == "" {
		return fmt.Errorf("WELCOME_COMMAND_NAME must not be empty")
	}
	switch c.MgmtAuthMode {
	case "none":
	case "api-key":
		if c.MgmtAPIKey == "" {
			return fmt.Errorf("MGMT_API_KEY is required when MGMT_AUTH_MODE=api-key")
		}
	case "jwt":
		if c.MgmtJWTSecret == "" {
			return fmt.Errorf("MGMT_JWT_SECRET is required when MGMT_AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("MGMT_AUTH_MODE must be none, api-key or jwt, got %q", c.MgmtAuthMode)
	}
	if c.EventBufferSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// LoadWithPrefix reads configuration with a prefix.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config with prefix %s: %w", prefix, err)
	}
	return &cfg, nil
}
