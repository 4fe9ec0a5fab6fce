// Package config loads the agent's JSON configuration file from the user
// config directory, filling defaults for anything omitted.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the on-disk configuration for both the agent and the
// supervisor console.
type Config struct {
	// ServerURL is the FieldTrack backend base URL, without trailing slash.
	ServerURL string `json:"server_url"`

	// RedisAddr is the device-local Redis instance holding session and
	// active-task state (see cmd/statedev for development).
	RedisAddr string `json:"redis_addr"`

	// MetricsAddr is where the Prometheus endpoint listens.
	MetricsAddr string `json:"metrics_addr"`

	// HistoryDBPath is the sqlite completed-task cache location.
	HistoryDBPath string `json:"history_db_path"`

	// ReportIntervalSeconds is the location sampling cadence (10-30s range).
	ReportIntervalSeconds int `json:"report_interval_seconds"`

	// MinDisplacementMeters suppresses position submissions while parked.
	MinDisplacementMeters float64 `json:"min_displacement_meters"`

	// RefreshSchedule is the cron spec for the task-list refresh.
	RefreshSchedule string `json:"refresh_schedule"`

	// MessengerPollSeconds is the supervisor's position-feed poll cadence.
	MessengerPollSeconds int `json:"messenger_poll_seconds"`

	// FixedLatitude/FixedLongitude configure the fixed location source for
	// terminals without a receiver. ReplayFile takes precedence when set.
	FixedLatitude  float64 `json:"fixed_latitude"`
	FixedLongitude float64 `json:"fixed_longitude"`
	ReplayFile     string  `json:"replay_file,omitempty"`
}

// Default returns the configuration used when no file exists yet.
func Default() Config {
	return Config{
		ServerURL:             "http://localhost:8081",
		RedisAddr:             "127.0.0.1:6379",
		MetricsAddr:           ":9090",
		ReportIntervalSeconds: 15,
		MinDisplacementMeters: 15,
		RefreshSchedule:       "@every 30m",
		MessengerPollSeconds:  30,
	}
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "fieldtrack", "config.json"), nil
}

// DefaultHistoryPath returns the per-user completed-task cache location.
func DefaultHistoryPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "fieldtrack", "history.db"), nil
}

// EnsureDir creates the parent directory of path.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Load reads the config at path, returning defaults when the file does not
// exist. Omitted fields keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
