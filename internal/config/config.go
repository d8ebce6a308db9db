// Package config loads and validates the application configuration from a
// YAML file, environment variables, and CLI flag overrides via viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/halcyonsec/scangate/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig               `mapstructure:"logger" yaml:"logger"`
	Database  DatabaseConfig             `mapstructure:"database" yaml:"database"`
	Scanners  ScannersConfig             `mapstructure:"scanners" yaml:"scanners"`
	Gate      schemas.SecurityGatePolicy `mapstructure:"gate" yaml:"gate"`
	Scheduler SchedulerConfig            `mapstructure:"scheduler" yaml:"scheduler"`
	Source    SourceConfig               `mapstructure:"source" yaml:"source"`
}

// LoggerConfig controls the zap logger construction.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json".
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// LogFile enables an additional JSON file sink with rotation when set.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // Megabytes.
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // Days.
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" yaml:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// ToolConfig configures one external scanner binary.
type ToolConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Binary  string `mapstructure:"binary" yaml:"binary"` // Name or path of the executable.
	// Timeout bounds a single invocation so one hanging tool cannot stall the
	// whole scan.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ScannersConfig holds the per-tool settings for all adapters.
type ScannersConfig struct {
	Semgrep  ToolConfig `mapstructure:"semgrep" yaml:"semgrep"`
	Trivy    ToolConfig `mapstructure:"trivy" yaml:"trivy"`
	Gitleaks ToolConfig `mapstructure:"gitleaks" yaml:"gitleaks"`
	NPMAudit ToolConfig `mapstructure:"npm_audit" yaml:"npm_audit"`
	Bandit   ToolConfig `mapstructure:"bandit" yaml:"bandit"`

	// Concurrency bounds how many adapters run at once. Zero means all.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// TempDir is where adapters write their per-invocation report files.
	// Empty means os.TempDir().
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// SchedulerConfig controls the schedule engine.
type SchedulerConfig struct {
	// SweepInterval is how often the catch-up sweep looks for overdue
	// schedules.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	// SweepRate limits how many catch-up executions start per second.
	SweepRate float64 `mapstructure:"sweep_rate" yaml:"sweep_rate"`
}

// SourceConfig controls how source references are resolved to checkouts.
type SourceConfig struct {
	// CloneDir is the parent directory for temporary checkouts. Empty means
	// os.TempDir().
	CloneDir string `mapstructure:"clone_dir" yaml:"clone_dir"`
	// GitHubToken authenticates shorthand owner/repo lookups. Usually set via
	// the SCANGATE_GITHUB_TOKEN environment variable.
	GitHubToken  string        `mapstructure:"github_token" yaml:"github_token"`
	CloneTimeout time.Duration `mapstructure:"clone_timeout" yaml:"clone_timeout"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "scangate")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)

	// -- Scanners --
	v.SetDefault("scanners.concurrency", 0)
	v.SetDefault("scanners.temp_dir", "")
	v.SetDefault("scanners.semgrep.enabled", true)
	v.SetDefault("scanners.semgrep.binary", "semgrep")
	v.SetDefault("scanners.semgrep.timeout", "10m")
	v.SetDefault("scanners.trivy.enabled", true)
	v.SetDefault("scanners.trivy.binary", "trivy")
	v.SetDefault("scanners.trivy.timeout", "10m")
	v.SetDefault("scanners.gitleaks.enabled", true)
	v.SetDefault("scanners.gitleaks.binary", "gitleaks")
	v.SetDefault("scanners.gitleaks.timeout", "5m")
	v.SetDefault("scanners.npm_audit.enabled", true)
	v.SetDefault("scanners.npm_audit.binary", "npm")
	v.SetDefault("scanners.npm_audit.timeout", "5m")
	v.SetDefault("scanners.bandit.enabled", true)
	v.SetDefault("scanners.bandit.binary", "bandit")
	v.SetDefault("scanners.bandit.timeout", "5m")

	// -- Gate --
	def := schemas.DefaultGatePolicy()
	v.SetDefault("gate.block_on_critical", def.BlockOnCritical)
	v.SetDefault("gate.block_on_high", def.BlockOnHigh)
	v.SetDefault("gate.block_on_medium", def.BlockOnMedium)
	v.SetDefault("gate.block_on_low", def.BlockOnLow)
	v.SetDefault("gate.max_critical", def.MaxCritical)
	v.SetDefault("gate.max_high", def.MaxHigh)
	v.SetDefault("gate.max_medium", def.MaxMedium)
	v.SetDefault("gate.max_low", def.MaxLow)

	// -- Scheduler --
	v.SetDefault("scheduler.sweep_interval", "1m")
	v.SetDefault("scheduler.sweep_rate", 1.0)

	// -- Source --
	v.SetDefault("source.clone_dir", "")
	v.SetDefault("source.clone_timeout", "5m")
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with static defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	_ = v.BindEnv("source.github_token", "SCANGATE_GITHUB_TOKEN")
	_ = v.BindEnv("database.url", "SCANGATE_DATABASE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Source.GitHubToken == "" {
		cfg.Source.GitHubToken = os.Getenv("SCANGATE_GITHUB_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// DefaultConfigDir returns the per-user configuration directory,
// ~/.scangate, used when no explicit config file is given.
func DefaultConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".scangate"), nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Scanners.Concurrency < 0 {
		return fmt.Errorf("scanners.concurrency must not be negative")
	}
	for name, tc := range map[string]ToolConfig{
		"semgrep":   c.Scanners.Semgrep,
		"trivy":     c.Scanners.Trivy,
		"gitleaks":  c.Scanners.Gitleaks,
		"npm_audit": c.Scanners.NPMAudit,
		"bandit":    c.Scanners.Bandit,
	} {
		if tc.Enabled && tc.Binary == "" {
			return fmt.Errorf("scanners.%s.binary must be set when the tool is enabled", name)
		}
		if tc.Timeout < 0 {
			return fmt.Errorf("scanners.%s.timeout must not be negative", name)
		}
	}
	if c.Gate.MaxCritical < 0 || c.Gate.MaxHigh < 0 || c.Gate.MaxMedium < 0 || c.Gate.MaxLow < 0 {
		return fmt.Errorf("gate thresholds must not be negative")
	}
	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be a positive duration")
	}
	if c.Scheduler.SweepRate <= 0 {
		return fmt.Errorf("scheduler.sweep_rate must be positive")
	}
	return nil
}
