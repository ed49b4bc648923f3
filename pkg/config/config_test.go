package config

import (
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpfile.Name()
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempConfig(t, `
features:
  windows: [3, 5, 10]

staking:
  bankroll_units: 200
  kelly_fraction: 0.5
  min_edge: 0.04

data:
  game_log_dir: "./testdata/gamelogs"

storage:
  db_path: "./data/test.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Features.Windows) != 3 || cfg.Features.Windows[0] != 3 {
		t.Errorf("unexpected windows: %v", cfg.Features.Windows)
	}
	if cfg.Staking.BankrollUnits != 200 {
		t.Errorf("unexpected bankroll: %v", cfg.Staking.BankrollUnits)
	}
	if cfg.Staking.KellyFraction != 0.5 {
		t.Errorf("unexpected kelly fraction: %v", cfg.Staking.KellyFraction)
	}
	// Unset staking keys keep their defaults.
	if cfg.Staking.MaxBankrollFraction != 0.02 {
		t.Errorf("unexpected max bankroll fraction: %v", cfg.Staking.MaxBankrollFraction)
	}
	if cfg.Storage.DBPath != "./data/test.db" {
		t.Errorf("unexpected db path: %q", cfg.Storage.DBPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("unexpected log level: %q", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with empty path: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
	if cfg.Staking.MinEdge != 0.06 {
		t.Errorf("unexpected default min edge: %v", cfg.Staking.MinEdge)
	}
	if cfg.Snapshots.RatePerSecond != 1.0 || cfg.Snapshots.Burst != 2 {
		t.Errorf("unexpected snapshot throttle defaults: %+v", cfg.Snapshots)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty windows", func(c *Config) { c.Features.Windows = nil }},
		{"zero window", func(c *Config) { c.Features.Windows = []int{0} }},
		{"duplicate window", func(c *Config) { c.Features.Windows = []int{3, 3} }},
		{"zero kelly fraction", func(c *Config) { c.Staking.KellyFraction = 0 }},
		{"zero bankroll", func(c *Config) { c.Staking.BankrollUnits = 0 }},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"zero snapshot rate", func(c *Config) { c.Snapshots.RatePerSecond = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
