package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	HTTPAddr string `json:"http_addr" yaml:"http_addr"`

	DatabaseDriver string `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN    string `json:"database_dsn" yaml:"database_dsn"`
	RedisURL       string `json:"redis_url" yaml:"redis_url"`

	GoogleCloudProject    string `json:"google_cloud_project" yaml:"google_cloud_project"`
	GoogleCloudLocation   string `json:"google_cloud_location" yaml:"google_cloud_location"`
	GoogleCredentialsPath string `json:"google_credentials_path" yaml:"google_credentials_path"`
	VertexModel           string `json:"vertex_model" yaml:"vertex_model"`

	GmailCredentialsPath string `json:"gmail_credentials_path" yaml:"gmail_credentials_path"`
	GmailTokenPath       string `json:"gmail_token_path" yaml:"gmail_token_path"`
	GmailSender          string `json:"gmail_sender" yaml:"gmail_sender"`

	TelegramToken  string `json:"telegram_token" yaml:"telegram_token"`
	TelegramChatID int64  `json:"telegram_chat_id" yaml:"telegram_chat_id"`

	Workers                 int `json:"workers" yaml:"workers"`
	QueueSize               int `json:"queue_size" yaml:"queue_size"`
	NotifyConcurrency       int `json:"notify_concurrency" yaml:"notify_concurrency"`
	ShortlistTimeoutSeconds int `json:"shortlist_timeout_seconds" yaml:"shortlist_timeout_seconds"`

	RateLimitPerWindow     int `json:"rate_limit_per_window" yaml:"rate_limit_per_window"`
	RateLimitWindowSeconds int `json:"rate_limit_window_seconds" yaml:"rate_limit_window_seconds"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:                ":8080",
		DatabaseDriver:          "sqlite",
		DatabaseDSN:             "shortlist.db",
		GoogleCloudLocation:     "us-central1",
		VertexModel:             "gemini-1.5-flash",
		GmailTokenPath:          "token.json",
		Workers:                 4,
		QueueSize:               64,
		NotifyConcurrency:       8,
		ShortlistTimeoutSeconds: 300,
		RateLimitPerWindow:      5,
		RateLimitWindowSeconds:  60,
		LogLevel:                "info",
		LogFormat:               "text",
	}
}

// GetConfigPath returns the path to the configuration file
// On Windows: %APPDATA%/ShortlistAgent/config.json
// On Unix: ~/.config/ShortlistAgent/config.json
func GetConfigPath() (string, error) {
	var configDir string

	if os.Getenv("APPDATA") != "" {
		// Windows
		configDir = filepath.Join(os.Getenv("APPDATA"), "ShortlistAgent")
	} else {
		// Unix-like systems
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "ShortlistAgent")
	}

	return filepath.Join(configDir, "config.json"), nil
}

// Load reads .env, the config file at path (or the default path when empty),
// then applies environment overrides
func Load(path string) (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return nil, err
		}
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom loads configuration from a specific path. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveTo saves the configuration to a specific path
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv() error {
	setString(&c.HTTPAddr, "HTTP_ADDR")
	if port := os.Getenv("PORT"); port != "" {
		c.HTTPAddr = ":" + port
	}
	setString(&c.DatabaseDriver, "DATABASE_DRIVER")
	setString(&c.DatabaseDSN, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.GoogleCloudProject, "GOOGLE_CLOUD_PROJECT")
	setString(&c.GoogleCloudLocation, "GOOGLE_CLOUD_LOCATION")
	setString(&c.GoogleCredentialsPath, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.VertexModel, "VERTEX_MODEL")
	setString(&c.GmailCredentialsPath, "GMAIL_CREDENTIALS_PATH")
	setString(&c.GmailTokenPath, "GMAIL_TOKEN_PATH")
	setString(&c.GmailSender, "GMAIL_SENDER")
	setString(&c.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.TelegramChatID = id
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WORKERS", &c.Workers},
		{"QUEUE_SIZE", &c.QueueSize},
		{"NOTIFY_CONCURRENCY", &c.NotifyConcurrency},
		{"SHORTLIST_TIMEOUT_SECONDS", &c.ShortlistTimeoutSeconds},
		{"RATE_LIMIT_PER_WINDOW", &c.RateLimitPerWindow},
		{"RATE_LIMIT_WINDOW_SECONDS", &c.RateLimitWindowSeconds},
	}
	for _, it := range ints {
		raw := os.Getenv(it.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", it.key, err)
		}
		*it.dst = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "pgx", "postgres":
	default:
		return fmt.Errorf("database_driver must be sqlite, pgx or postgres, got %q", c.DatabaseDriver)
	}

	if c.DatabaseDSN == "" {
		return fmt.Errorf("database_dsn is required")
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	if c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1")
	}

	if c.NotifyConcurrency < 1 {
		return fmt.Errorf("notify_concurrency must be at least 1")
	}

	if c.ShortlistTimeoutSeconds < 0 {
		return fmt.Errorf("shortlist_timeout_seconds cannot be negative")
	}

	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("telegram_chat_id is required when telegram_token is set")
	}

	if c.GoogleCredentialsPath != "" {
		if _, err := os.Stat(c.GoogleCredentialsPath); err != nil {
			return fmt.Errorf("google credentials file not found: %w", err)
		}
	}

	if c.GmailCredentialsPath != "" {
		if _, err := os.Stat(c.GmailCredentialsPath); err != nil {
			return fmt.Errorf("gmail credentials file not found: %w", err)
		}
	}

	return nil
}

// ValidateScoring checks the settings needed to call Vertex AI
func (c *Config) ValidateScoring() error {
	if c.GoogleCloudProject == "" {
		return fmt.Errorf("google_cloud_project is required")
	}

	if c.GoogleCloudLocation == "" {
		return fmt.Errorf("google_cloud_location is required")
	}

	return nil
}

// ShortlistTimeout is the upper bound for one shortlisting run; zero means unbounded
func (c *Config) ShortlistTimeout() time.Duration {
	return time.Duration(c.ShortlistTimeoutSeconds) * time.Second
}

// RateLimitWindow is the window for RateLimitPerWindow
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
