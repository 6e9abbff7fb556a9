package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// AccountConfig holds the configuration for a single mailbox account.
// CredentialKey names the entry in the credential provider that holds
// the account password; the raw secret never appears in the config file.
type AccountConfig struct {
	// ID is the unique identifier for this account.
	ID string `mapstructure:"id" yaml:"id"`

	// Address is the mailbox address (e.g. "sales@example.com").
	Address string `mapstructure:"address" yaml:"address"`

	// Host and Port locate the IMAP server. TLS is always required.
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`

	// Username is the IMAP login name.
	Username string `mapstructure:"username" yaml:"username"`

	// CredentialKey references the account password in the credential
	// provider.
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`

	// Active controls whether this account is synchronized.
	Active bool `mapstructure:"active" yaml:"active"`
}

// SyncConfig holds engine-wide synchronization settings.
type SyncConfig struct {
	// BackfillDays is the historical window fetched on first connect.
	BackfillDays int `mapstructure:"backfill_days" yaml:"backfill_days"`

	// ConnectTimeoutSec bounds the TLS dial and login handshake.
	ConnectTimeoutSec int `mapstructure:"connect_timeout_sec" yaml:"connect_timeout_sec"`

	// IdleKeepaliveMin is how often the IDLE command is re-issued so
	// servers that drop long-lived IDLE connections keep the session
	// alive. Distinct from the push-notification wait itself.
	IdleKeepaliveMin int `mapstructure:"idle_keepalive_min" yaml:"idle_keepalive_min"`

	// ReconnectMinSec and ReconnectMaxSec bound the capped-exponential
	// backoff between reconnect attempts.
	ReconnectMinSec int `mapstructure:"reconnect_min_sec" yaml:"reconnect_min_sec"`
	ReconnectMaxSec int `mapstructure:"reconnect_max_sec" yaml:"reconnect_max_sec"`
}

// ClassifierConfig holds settings for the LLM classifier.
type ClassifierConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`

	// MaxBodyChars caps how much body text is sent for classification.
	MaxBodyChars int `mapstructure:"max_body_chars" yaml:"max_body_chars"`

	// APIKeyCredential references the API key in the credential provider.
	APIKeyCredential string `mapstructure:"api_key_credential" yaml:"api_key_credential"`

	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// NotifyConfig holds downstream notification sinks. Empty URLs disable
// the corresponding sink.
type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url"`
	WebhookURL      string `mapstructure:"webhook_url" yaml:"webhook_url"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// StorageConfig locates the local message database.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Accounts   []AccountConfig  `mapstructure:"accounts" yaml:"accounts"`
	Sync       SyncConfig       `mapstructure:"sync" yaml:"sync"`
	Classifier ClassifierConfig `mapstructure:"classifier" yaml:"classifier"`
	Notify     NotifyConfig     `mapstructure:"notify" yaml:"notify"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/onebox/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "onebox", "config.yaml")
}

// DefaultStoragePath returns the default message database location.
func DefaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "onebox.db")
	}
	return filepath.Join(home, ".local", "share", "onebox", "messages.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Sync: SyncConfig{
			BackfillDays:      30,
			ConnectTimeoutSec: 30,
			IdleKeepaliveMin:  25,
			ReconnectMinSec:   2,
			ReconnectMaxSec:   60,
		},
		Classifier: ClassifierConfig{
			Model:        "claude-3-5-haiku-20241022",
			MaxTokens:    32,
			MaxBodyChars: 1000,
			TimeoutSec:   10,
		},
		Notify: NotifyConfig{
			TimeoutSec: 10,
		},
		Storage: StorageConfig{
			Path: DefaultStoragePath(),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Scalar settings can be overridden via ONEBOX_* environment
	// variables, e.g. ONEBOX_SYNC_BACKFILL_DAYS.
	v.SetEnvPrefix("ONEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("sync.backfill_days", 30)
	v.SetDefault("sync.connect_timeout_sec", 30)
	v.SetDefault("sync.idle_keepalive_min", 25)
	v.SetDefault("sync.reconnect_min_sec", 2)
	v.SetDefault("sync.reconnect_max_sec", 60)
	v.SetDefault("classifier.model", "claude-3-5-haiku-20241022")
	v.SetDefault("classifier.max_tokens", 32)
	v.SetDefault("classifier.max_body_chars", 1000)
	v.SetDefault("classifier.timeout_sec", 10)
	v.SetDefault("notify.timeout_sec", 10)
	v.SetDefault("storage.path", DefaultStoragePath())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	// Apply defaults for each account entry.
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Port == 0 {
			cfg.Accounts[i].Port = 993
		}
		if !cfg.Accounts[i].Active {
			// Viper unmarshals missing bools as false; treat unset as true.
			// We use the raw viper value to distinguish explicit false from absent.
			key := fmt.Sprintf("accounts.%d.active", i)
			if !v.IsSet(key) {
				cfg.Accounts[i].Active = true
			}
		}
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("accounts", cfg.Accounts)
	v.Set("sync", cfg.Sync)
	v.Set("classifier", cfg.Classifier)
	v.Set("notify", cfg.Notify)
	v.Set("storage", cfg.Storage)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
