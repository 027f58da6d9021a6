// ABOUTME: Configuration loading and parsing for the warden bot
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultWorkers       = 8
	DefaultShutdownGrace = 10 * time.Second
	DefaultDedupeTTL     = 10 * time.Minute
	DefaultDedupeSize    = 4096
	DefaultDriver        = "sqlite"
	DefaultMetricsAddr   = "127.0.0.1:9464"
	DefaultMetricsPath   = "/metrics"
)

// Config represents the complete warden configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Bot      BotConfig      `yaml:"bot"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver"`
}

// MatrixConfig holds Matrix homeserver configuration
type MatrixConfig struct {
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	DisplayName string   `yaml:"display_name"`
	Admins      []string `yaml:"admins"`    // user IDs allowed to run admin commands
	AutoJoin    bool     `yaml:"auto_join"` // accept room invites automatically

	Encryption EncryptionConfig `yaml:"encryption"`
}

// EncryptionConfig enables end-to-end encryption for Matrix rooms
type EncryptionConfig struct {
	Enabled     bool   `yaml:"enabled"`
	RecoveryKey string `yaml:"recovery_key"` // optional, enables cross-signing
	// DataDir holds the crypto store. Defaults to the database directory.
	DataDir string `yaml:"data_dir"`
}

// BotConfig holds dispatch engine settings
type BotConfig struct {
	Workers         int           `yaml:"workers"`
	ShutdownGrace   time.Duration `yaml:"-"`
	MentionPrefixes []string      `yaml:"mention_prefixes"`
	DedupeTTL       time.Duration `yaml:"-"`
	DedupeSize      int           `yaml:"dedupe_size"`

	// Raw string values for YAML unmarshaling
	ShutdownGraceRaw string `yaml:"shutdown_grace"`
	DedupeTTLRaw     string `yaml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives log output instead of stderr.
	File string `yaml:"file"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// DefaultPath returns the config file location: $WARDEN_CONFIG, then
// $XDG_CONFIG_HOME/warden/config.yaml, then ~/.config/warden/config.yaml.
func DefaultPath() string {
	if p := os.Getenv("WARDEN_CONFIG"); p != "" {
		return p
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "warden", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "warden", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	if c.Bot.Workers == 0 {
		c.Bot.Workers = DefaultWorkers
	}
	if c.Bot.ShutdownGrace == 0 {
		c.Bot.ShutdownGrace = DefaultShutdownGrace
	}
	if c.Bot.DedupeTTL == 0 {
		c.Bot.DedupeTTL = DefaultDedupeTTL
	}
	if c.Bot.DedupeSize == 0 {
		c.Bot.DedupeSize = DefaultDedupeSize
	}
	if len(c.Bot.MentionPrefixes) == 0 && c.Matrix.UserID != "" {
		c.Bot.MentionPrefixes = defaultMentionPrefixes(c.Matrix.UserID, c.Matrix.DisplayName)
	}
	if c.Matrix.Encryption.Enabled && c.Matrix.Encryption.DataDir == "" && c.Database.Path != "" {
		c.Matrix.Encryption.DataDir = filepath.Dir(c.Database.Path)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// defaultMentionPrefixes derives mention forms from the bot's identity:
// the full user ID, the @localpart and the display name. The bare localpart
// is left out since it is usually an ordinary word.
func defaultMentionPrefixes(userID, displayName string) []string {
	prefixes := []string{userID}
	local := strings.TrimPrefix(userID, "@")
	if i := strings.Index(local, ":"); i > 0 {
		local = local[:i]
	}
	if local != "" {
		prefixes = append(prefixes, "@"+local)
	}
	if displayName != "" && !strings.EqualFold(displayName, local) {
		prefixes = append(prefixes, displayName)
	}
	return prefixes
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if c.Matrix.Homeserver == "" {
		return errors.New("matrix.homeserver is required")
	}
	if c.Matrix.UserID == "" {
		return errors.New("matrix.user_id is required")
	}
	if !strings.HasPrefix(c.Matrix.UserID, "@") || !strings.Contains(c.Matrix.UserID, ":") {
		return fmt.Errorf("matrix.user_id %q must look like @user:server", c.Matrix.UserID)
	}
	if c.Matrix.AccessToken == "" {
		return errors.New("matrix.access_token is required")
	}

	if c.Bot.Workers < 1 {
		return fmt.Errorf("bot.workers must be at least 1, got %d", c.Bot.Workers)
	}
	if c.Bot.ShutdownGrace < 0 {
		return errors.New("bot.shutdown_grace must not be negative")
	}
	if c.Bot.DedupeSize < 0 {
		return errors.New("bot.dedupe_size must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not text or json", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Bot.ShutdownGraceRaw != "" {
		cfg.Bot.ShutdownGrace, err = time.ParseDuration(cfg.Bot.ShutdownGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_grace %q: %w", cfg.Bot.ShutdownGraceRaw, err)
		}
	}

	if cfg.Bot.DedupeTTLRaw != "" {
		cfg.Bot.DedupeTTL, err = time.ParseDuration(cfg.Bot.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Bot.DedupeTTLRaw, err)
		}
	}

	return nil
}
