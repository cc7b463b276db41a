package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/blake2b"
)

// Dir is the per-project state directory.
const Dir = ".csb"

// CurrentVersion is the config schema version.
const CurrentVersion = 1

// Config represents the complete CSB configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Scheduler SchedulerConfig `json:"scheduler" mapstructure:"scheduler"`
	Locales   []string        `json:"locales" mapstructure:"locales"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	Watch     WatchConfig     `json:"watch" mapstructure:"watch"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// SchedulerConfig contains compilation scheduling policy
type SchedulerConfig struct {
	Strategy                        string   `json:"strategy" mapstructure:"strategy"`
	Strict                          bool     `json:"strict" mapstructure:"strict"`
	Warnings                        bool     `json:"warnings" mapstructure:"warnings"`
	ShowDependencyWarnings          bool     `json:"showDependencyWarnings" mapstructure:"showDependencyWarnings"`
	DisableIncrementalOptimizations bool     `json:"disableIncrementalOptimizations" mapstructure:"disableIncrementalOptimizations"`
	DropUnresolvedExpressions       bool     `json:"dropUnresolvedExpressions" mapstructure:"dropUnresolvedExpressions"`
	MaxErrors                       int      `json:"maxErrors" mapstructure:"maxErrors"`
	RoundBudget                     float64  `json:"roundBudget" mapstructure:"roundBudget"`
	MarkupWeight                    float64  `json:"markupWeight" mapstructure:"markupWeight"`
	ScriptWeight                    float64  `json:"scriptWeight" mapstructure:"scriptWeight"`
	Factor                          float64  `json:"factor" mapstructure:"factor"`
	Builtins                        []string `json:"builtins" mapstructure:"builtins"`
}

// CacheConfig contains snapshot persistence configuration
type CacheConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Path        string `json:"path" mapstructure:"path"`
	Compression string `json:"compression" mapstructure:"compression"`
}

// WatchConfig contains watch mode configuration
type WatchConfig struct {
	DebounceMs int      `json:"debounceMs" mapstructure:"debounceMs"`
	Ignore     []string `json:"ignore" mapstructure:"ignore"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`

	// MaxSize rotates the log file past this size, e.g. "10MB"
	MaxSize    string `json:"maxSize" mapstructure:"maxSize"`
	MaxBackups int    `json:"maxBackups" mapstructure:"maxBackups"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Scheduler: SchedulerConfig{
			Strategy:                  "greedy",
			Strict:                    true,
			DropUnresolvedExpressions: true,
			MaxErrors:                 100,
			RoundBudget:               100,
			MarkupWeight:              4.5,
			ScriptWeight:              1,
			Factor:                    1000,
			Builtins:                  []string{},
		},
		Locales: []string{"en_US"},
		Cache: CacheConfig{
			Enabled:     true,
			Path:        filepath.Join(Dir, "snapshot.db"),
			Compression: "zstd",
		},
		Watch: WatchConfig{
			DebounceMs: 300,
			Ignore:     []string{Dir, ".git", "node_modules"},
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// EnvPrefix prefixes environment overrides, e.g. CSB_SCHEDULER_MAXERRORS.
const EnvPrefix = "CSB"

func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("version", cfg.Version)
	v.SetDefault("scheduler.strategy", cfg.Scheduler.Strategy)
	v.SetDefault("scheduler.strict", cfg.Scheduler.Strict)
	v.SetDefault("scheduler.warnings", cfg.Scheduler.Warnings)
	v.SetDefault("scheduler.showDependencyWarnings", cfg.Scheduler.ShowDependencyWarnings)
	v.SetDefault("scheduler.disableIncrementalOptimizations", cfg.Scheduler.DisableIncrementalOptimizations)
	v.SetDefault("scheduler.dropUnresolvedExpressions", cfg.Scheduler.DropUnresolvedExpressions)
	v.SetDefault("scheduler.maxErrors", cfg.Scheduler.MaxErrors)
	v.SetDefault("scheduler.roundBudget", cfg.Scheduler.RoundBudget)
	v.SetDefault("scheduler.markupWeight", cfg.Scheduler.MarkupWeight)
	v.SetDefault("scheduler.scriptWeight", cfg.Scheduler.ScriptWeight)
	v.SetDefault("scheduler.factor", cfg.Scheduler.Factor)
	v.SetDefault("scheduler.builtins", cfg.Scheduler.Builtins)
	v.SetDefault("locales", cfg.Locales)
	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.path", cfg.Cache.Path)
	v.SetDefault("cache.compression", cfg.Cache.Compression)
	v.SetDefault("watch.debounceMs", cfg.Watch.DebounceMs)
	v.SetDefault("watch.ignore", cfg.Watch.Ignore)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.maxSize", cfg.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", cfg.Logging.MaxBackups)
	return v
}

// LoadConfig loads configuration from .csb/config.json below root.
// A missing file yields the defaults. CSB_* environment variables override
// both.
func LoadConfig(root string) (*Config, error) {
	v := newViper(DefaultConfig())
	v.AddConfigPath(filepath.Join(root, Dir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadConfigFromPath loads configuration from an explicit file.
func LoadConfigFromPath(path string) (*Config, error) {
	v := newViper(DefaultConfig())
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration to .csb/config.json below root.
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), append(data, '\n'), 0644)
}

// SnapshotPath returns the snapshot database path, resolved against root.
func (c *Config) SnapshotPath(root string) string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(root, c.Cache.Path)
}

// Fingerprint hashes the settings that change compiled output. A snapshot
// written under another fingerprint is not reused.
func (c *Config) Fingerprint() string {
	data, _ := json.Marshal(struct {
		Strict   bool     `json:"strict"`
		Warnings bool     `json:"warnings"`
		Drop     bool     `json:"drop"`
		Locales  []string `json:"locales"`
		Builtins []string `json:"builtins"`
	}{
		Strict:   c.Scheduler.Strict,
		Warnings: c.Scheduler.Warnings,
		Drop:     c.Scheduler.DropUnresolvedExpressions,
		Locales:  c.Locales,
		Builtins: c.Scheduler.Builtins,
	})
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}

	s := c.Scheduler
	switch s.Strategy {
	case "greedy", "conservative":
	default:
		return &ConfigError{Field: "scheduler.strategy", Message: fmt.Sprintf("unknown strategy %q", s.Strategy)}
	}
	if s.MaxErrors <= 0 {
		return &ConfigError{Field: "scheduler.maxErrors", Message: "must be positive"}
	}
	if s.RoundBudget <= 0 {
		return &ConfigError{Field: "scheduler.roundBudget", Message: "must be positive"}
	}
	if s.MarkupWeight <= 0 || s.ScriptWeight <= 0 {
		return &ConfigError{Field: "scheduler.markupWeight", Message: "weights must be positive"}
	}
	if s.Factor <= 0 {
		return &ConfigError{Field: "scheduler.factor", Message: "must be positive"}
	}

	switch c.Cache.Compression {
	case "zstd", "none":
	default:
		return &ConfigError{Field: "cache.compression", Message: fmt.Sprintf("unsupported compression %q", c.Cache.Compression)}
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return &ConfigError{Field: "cache.path", Message: "required when the cache is enabled"}
	}

	if c.Watch.DebounceMs < 0 {
		return &ConfigError{Field: "watch.debounceMs", Message: "must not be negative"}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ConfigError{Field: "logging.level", Message: fmt.Sprintf("unknown level %q", c.Logging.Level)}
	}
	if c.Logging.MaxBackups < 0 {
		return &ConfigError{Field: "logging.maxBackups", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
