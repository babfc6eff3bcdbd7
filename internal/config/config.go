// Package config handles bujo configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Google Calendar
	Google GoogleConfig `json:"google"`

	// Timezone used for window calculations and naive timestamps
	Timezone string `json:"timezone"`
}

// ServerConfig for HTTP server
type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`
}

// GoogleConfig for the calendar provider
type GoogleConfig struct {
	ServiceAccountFile string `json:"service_account_file"`
	CalendarID         string `json:"calendar_id"`
}

// Default returns default configuration
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".bujo"),
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Google: GoogleConfig{
			ServiceAccountFile: "credentials/service-account.json",
			CalendarID:         "primary",
		},
		Timezone: "America/Lima",
	}
}

// Load loads config from file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnv()
			return cfg, nil // Use defaults
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides file values from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"); v != "" {
		c.Google.ServiceAccountFile = v
	}
	if v := os.Getenv("GOOGLE_CALENDAR_ID"); v != "" {
		c.Google.CalendarID = v
	}
	if v := os.Getenv("BUJO_TIMEZONE"); v != "" {
		c.Timezone = v
	}
}

// Location resolves the configured timezone, falling back to UTC when the
// name does not resolve.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Save saves config to file
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
