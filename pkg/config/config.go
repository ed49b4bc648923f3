// Package config loads the application configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/quantpond/mlbedge/pkg/staking"
)

// Config represents the complete application configuration.
type Config struct {
	Features  FeaturesConfig  `mapstructure:"features"`
	Staking   staking.Config  `mapstructure:"staking"`
	Data      DataConfig      `mapstructure:"data"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FeaturesConfig holds feature-builder parameters.
type FeaturesConfig struct {
	Windows []int `mapstructure:"windows"`
}

// DataConfig holds input file locations.
type DataConfig struct {
	GameLogDir   string `mapstructure:"game_log_dir"`
	ScheduleFile string `mapstructure:"schedule_file"`
	OddsFile     string `mapstructure:"odds_file"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// SnapshotsConfig throttles external as-of snapshot fetches.
type SnapshotsConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables. An
// empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("MLBEDGE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("features.windows", []int{3, 5, 10})

	def := staking.DefaultConfig()
	v.SetDefault("staking.bankroll_units", def.BankrollUnits)
	v.SetDefault("staking.kelly_fraction", def.KellyFraction)
	v.SetDefault("staking.min_edge", def.MinEdge)
	v.SetDefault("staking.min_ev", def.MinEV)
	v.SetDefault("staking.max_bankroll_fraction", def.MaxBankrollFraction)
	v.SetDefault("staking.round_to_units", def.RoundToUnits)

	v.SetDefault("data.game_log_dir", "./data/gamelogs")
	v.SetDefault("data.schedule_file", "./data/schedule.csv")
	v.SetDefault("data.odds_file", "./data/odds.csv")

	v.SetDefault("storage.db_path", "./data/mlbedge.db")

	v.SetDefault("snapshots.rate_per_second", 1.0)
	v.SetDefault("snapshots.burst", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if len(c.Features.Windows) == 0 {
		return fmt.Errorf("features.windows must contain at least one window")
	}
	seen := make(map[int]bool, len(c.Features.Windows))
	for _, w := range c.Features.Windows {
		if w < 1 {
			return fmt.Errorf("features.windows entries must be positive, got %d", w)
		}
		if seen[w] {
			return fmt.Errorf("features.windows contains duplicate window %d", w)
		}
		seen[w] = true
	}

	if err := c.Staking.Validate(); err != nil {
		return fmt.Errorf("staking: %w", err)
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	if c.Snapshots.RatePerSecond <= 0 {
		return fmt.Errorf("snapshots.rate_per_second must be positive")
	}
	if c.Snapshots.Burst < 1 {
		return fmt.Errorf("snapshots.burst must be at least 1")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
