package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envStatePath       = "PKGSYNC_CONFIG_PATH"
	envLogLevel        = "PKGSYNC_LOG_LEVEL"
	envUpdateTimeout   = "PKGSYNC_UPDATE_TIMEOUT"
	envManagersFile    = "PKGSYNC_MANAGERS_FILE"
	envMetricsTextfile = "PKGSYNC_METRICS_TEXTFILE"
	envSlackWebhookURL = "PKGSYNC_SLACK_WEBHOOK_URL"
	envWebhookURL      = "PKGSYNC_WEBHOOK_URL"
	envWebhookTemplate = "PKGSYNC_WEBHOOK_TEMPLATE"
)

const (
	defaultLogLevel      = "info"
	defaultUpdateTimeout = 60 * time.Second
	defaultStateRelPath  = ".config/package-sync/config.json"
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	StatePath       string
	LogLevel        string
	UpdateTimeout   time.Duration
	ManagersFile    string
	MetricsTextfile string
	SlackWebhookURL string
	WebhookURL      string
	WebhookTemplate string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:      defaultLogLevel,
		UpdateTimeout: defaultUpdateTimeout,
	}

	if value, ok := lookupTrimmed(envStatePath); ok && value != "" {
		cfg.StatePath = value
	}
	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return Config{}, err
		}
		cfg.StatePath = path
	}
	expanded, err := expandHome(cfg.StatePath)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envStatePath, err)
	}
	cfg.StatePath = expanded

	if value, ok := lookupTrimmed(envLogLevel); ok && value != "" {
		cfg.LogLevel = value
	}

	if value, ok := lookupTrimmed(envUpdateTimeout); ok && value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envUpdateTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envUpdateTimeout)
		}
		cfg.UpdateTimeout = timeout
	}

	if value, ok := lookupTrimmed(envManagersFile); ok && value != "" {
		path, err := expandHome(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envManagersFile, err)
		}
		cfg.ManagersFile = path
	}

	if value, ok := lookupTrimmed(envMetricsTextfile); ok {
		cfg.MetricsTextfile = value
	}

	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}

	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}

	// Templates may carry meaningful whitespace.
	if value, ok := os.LookupEnv(envWebhookTemplate); ok {
		cfg.WebhookTemplate = value
	}

	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}

	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// DefaultStatePath returns ~/.config/package-sync/config.json for the current user.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, defaultStateRelPath), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid %s: scheme must be http or https", name)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
