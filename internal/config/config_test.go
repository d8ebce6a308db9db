package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "scangate", cfg.Logger.ServiceName)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)

	assert.True(t, cfg.Scanners.Semgrep.Enabled)
	assert.Equal(t, "semgrep", cfg.Scanners.Semgrep.Binary)
	assert.Equal(t, 10*time.Minute, cfg.Scanners.Semgrep.Timeout)
	assert.Equal(t, "npm", cfg.Scanners.NPMAudit.Binary)
	assert.Equal(t, 5*time.Minute, cfg.Scanners.Gitleaks.Timeout)
	assert.Zero(t, cfg.Scanners.Concurrency)

	assert.True(t, cfg.Gate.BlockOnCritical)
	assert.False(t, cfg.Gate.BlockOnLow)
	assert.Equal(t, 0, cfg.Gate.MaxHigh)
	assert.Equal(t, 50, cfg.Gate.MaxMedium)
	assert.Equal(t, 100, cfg.Gate.MaxLow)

	assert.Equal(t, time.Minute, cfg.Scheduler.SweepInterval)
	assert.InDelta(t, 1.0, cfg.Scheduler.SweepRate, 0.001)
	assert.Equal(t, 5*time.Minute, cfg.Source.CloneTimeout)

	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("logger.level", "debug")
	v.Set("scanners.concurrency", 3)
	v.Set("scanners.bandit.enabled", false)
	v.Set("gate.max_high", 5)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 3, cfg.Scanners.Concurrency)
	assert.False(t, cfg.Scanners.Bandit.Enabled)
	assert.Equal(t, 5, cfg.Gate.MaxHigh)
}

func TestNewConfigFromViperEnvToken(t *testing.T) {
	t.Setenv("SCANGATE_GITHUB_TOKEN", "ghp_test123")

	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "ghp_test123", cfg.Source.GitHubToken)
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative concurrency",
			mutate:  func(c *Config) { c.Scanners.Concurrency = -1 },
			wantErr: "scanners.concurrency",
		},
		{
			name:    "enabled tool without binary",
			mutate:  func(c *Config) { c.Scanners.Trivy.Binary = "" },
			wantErr: "scanners.trivy.binary",
		},
		{
			name:    "negative tool timeout",
			mutate:  func(c *Config) { c.Scanners.Bandit.Timeout = -time.Second },
			wantErr: "scanners.bandit.timeout",
		},
		{
			name:    "negative gate threshold",
			mutate:  func(c *Config) { c.Gate.MaxMedium = -5 },
			wantErr: "gate thresholds",
		},
		{
			name:    "zero sweep interval",
			mutate:  func(c *Config) { c.Scheduler.SweepInterval = 0 },
			wantErr: "sweep_interval",
		},
		{
			name:    "negative sweep rate",
			mutate:  func(c *Config) { c.Scheduler.SweepRate = -1 },
			wantErr: "sweep_rate",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateDisabledToolWithoutBinary(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Scanners.Bandit.Enabled = false
	cfg.Scanners.Bandit.Binary = ""
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfigDir(t *testing.T) {
	dir, err := DefaultConfigDir()
	require.NoError(t, err)
	assert.Contains(t, dir, ".scangate")
}
