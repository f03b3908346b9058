// Package config loads the wall server's settings: a TOML file for the
// shape of the deployment, environment variables for secrets and the few
// values a container platform likes to inject.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full server configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Database     DatabaseConfig     `toml:"database"`
	Auth         AuthConfig         `toml:"auth"`
	Mail         MailConfig         `toml:"mail"`
	ContentStore ContentStoreConfig `toml:"content_store"`
	Wall         WallConfig         `toml:"wall"`
	Log          LogConfig          `toml:"log"`
}

type ServerConfig struct {
	Port                   int    `toml:"port"`
	StaticDir              string `toml:"static_dir,omitempty"` // served at /static when set
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `toml:"path"` // file path, or ":memory:"
}

type AuthConfig struct {
	JWTSecret     string `toml:"jwt_secret"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
	DefaultQuota  int    `toml:"default_quota"` // uploads granted to a new identity
}

// MailConfig uses a tagged union: Type decides which fields matter.
type MailConfig struct {
	Type string `toml:"type"` // "smtp" or "log"

	// SMTP fields (only used when Type == "smtp")
	Host     string `toml:"host,omitempty"`
	Port     int    `toml:"port,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	From     string `toml:"from,omitempty"`

	FromName          string   `toml:"from_name"`
	TimeoutSeconds    int      `toml:"timeout_seconds"`
	DeepValidation    bool     `toml:"deep_validation"`
	DisposableDomains []string `toml:"disposable_domains,omitempty"` // replaces the built-in list when set
}

// ContentStoreConfig uses a tagged union: Type decides which fields matter.
type ContentStoreConfig struct {
	Type           string `toml:"type"` // "memory", "telegram", or "s3"
	TimeoutSeconds int    `toml:"timeout_seconds"`

	// Telegram fields (only used when Type == "telegram")
	TelegramBotToken string `toml:"telegram_bot_token,omitempty"`
	TelegramChatID   string `toml:"telegram_chat_id,omitempty"`
	TelegramAPIBase  string `toml:"telegram_api_base,omitempty"`

	// S3 fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // for MinIO and other S3-compatible stores
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`
}

type WallConfig struct {
	CellWidth        int     `toml:"cell_width"`
	CellHeight       int     `toml:"cell_height"`
	CapacityFraction float64 `toml:"capacity_fraction"`
	DefaultWidth     int     `toml:"default_width"`  // viewport assumed until the display reports one
	DefaultHeight    int     `toml:"default_height"`
	ViewportWaitMs   int     `toml:"viewport_wait_ms"`
	SendBuffer       int     `toml:"send_buffer"` // per-display outbound queue length
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text or json
}

// Default returns a configuration that runs locally with no external
// services: in-memory content store, log-only mailer, file-backed SQLite.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                   8080,
			ShutdownTimeoutSeconds: 10,
		},
		Database: DatabaseConfig{
			Path: "data/wall.db",
		},
		Auth: AuthConfig{
			JWTSecret:     "dev-secret-change-me-in-production",
			TokenTTLHours: 24,
			DefaultQuota:  5,
		},
		Mail: MailConfig{
			Type:           "log",
			Port:           587,
			FromName:       "Photo Wall",
			TimeoutSeconds: 10,
			DeepValidation: true,
		},
		ContentStore: ContentStoreConfig{
			Type:           "memory",
			TimeoutSeconds: 30,
		},
		Wall: WallConfig{
			CellWidth:        240,
			CellHeight:       280,
			CapacityFraction: 0.8,
			DefaultWidth:     1920,
			DefaultHeight:    1080,
			ViewportWaitMs:   2000,
			SendBuffer:       256,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		add("database.path is required")
	}
	if len(c.Auth.JWTSecret) < 16 {
		add("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTLHours <= 0 {
		add("auth.token_ttl_hours must be positive")
	}
	if c.Auth.DefaultQuota <= 0 {
		add("auth.default_quota must be positive, got %d", c.Auth.DefaultQuota)
	}

	switch c.Mail.Type {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			add("mail: smtp requires host and from")
		}
	default:
		add("unknown mail type: %q", c.Mail.Type)
	}

	switch c.ContentStore.Type {
	case "memory":
	case "telegram":
		if c.ContentStore.TelegramBotToken == "" || c.ContentStore.TelegramChatID == "" {
			add("content_store: telegram requires telegram_bot_token and telegram_chat_id")
		}
	case "s3":
		if c.ContentStore.S3Bucket == "" {
			add("content_store: s3 requires s3_bucket")
		}
	default:
		add("unknown content store type: %q", c.ContentStore.Type)
	}
	if c.ContentStore.TimeoutSeconds <= 0 {
		add("content_store.timeout_seconds must be positive")
	}

	if c.Wall.CellWidth <= 0 || c.Wall.CellHeight <= 0 {
		add("wall cell size must be positive, got %dx%d", c.Wall.CellWidth, c.Wall.CellHeight)
	}
	if c.Wall.CapacityFraction <= 0 || c.Wall.CapacityFraction > 1 {
		add("wall.capacity_fraction must be in (0, 1], got %v", c.Wall.CapacityFraction)
	}
	if c.Wall.DefaultWidth <= 0 || c.Wall.DefaultHeight <= 0 {
		add("wall default viewport must be positive")
	}
	if c.Wall.SendBuffer <= 0 {
		add("wall.send_buffer must be positive")
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("unknown log format: %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// ContentStoreTimeout is the bound on a single content-store call.
func (c *Config) ContentStoreTimeout() time.Duration {
	return time.Duration(c.ContentStore.TimeoutSeconds) * time.Second
}

// MailTimeout is the bound on delivering one email.
func (c *Config) MailTimeout() time.Duration {
	return time.Duration(c.Mail.TimeoutSeconds) * time.Second
}

// TokenTTL is the lifetime of a session token.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// ShutdownTimeout is how long in-flight requests get to finish on SIGTERM.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// ViewportWait is how long a new display has to report its size.
func (c *Config) ViewportWait() time.Duration {
	return time.Duration(c.Wall.ViewportWaitMs) * time.Millisecond
}

// ApplyEnv overrides fields from environment variables looked up via
// getenv. Pass os.Getenv in production and a map lookup in tests.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a number", key, v))
				return
			}
			*dst = n
		}
	}

	num("PORT", &c.Server.Port)
	str("DB_PATH", &c.Database.Path)
	str("JWT_SECRET", &c.Auth.JWTSecret)

	str("SMTP_HOST", &c.Mail.Host)
	num("SMTP_PORT", &c.Mail.Port)
	str("SMTP_USER", &c.Mail.Username)
	str("SMTP_PASS", &c.Mail.Password)
	str("SMTP_FROM", &c.Mail.From)
	// A relay in the environment means real mail is wanted.
	if getenv("SMTP_HOST") != "" {
		c.Mail.Type = "smtp"
	}

	str("TELEGRAM_BOT_TOKEN", &c.ContentStore.TelegramBotToken)
	str("TELEGRAM_CHAT_ID", &c.ContentStore.TelegramChatID)

	str("S3_BUCKET", &c.ContentStore.S3Bucket)
	str("S3_REGION", &c.ContentStore.S3Region)
	str("S3_ENDPOINT", &c.ContentStore.S3Endpoint)
	str("AWS_ACCESS_KEY_ID", &c.ContentStore.S3AccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.ContentStore.S3SecretAccessKey)

	str("CONTENT_STORE", &c.ContentStore.Type)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r on top of Default, so a file only needs the
// keys it wants to change.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path when it is non-empty (Default otherwise), applies
// environment overrides, and validates the result.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = ReadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
