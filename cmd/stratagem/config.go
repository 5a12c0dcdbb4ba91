package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all stratagem configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	StreamEndpoint string `json:"stream_endpoint"`
	CountEndpoint  string `json:"count_endpoint"`
	AuthToken      string `json:"auth_token"`
	DBPath         string `json:"db_path"`
	LogLevel       string `json:"log_level"`
	RefreshCron    string `json:"refresh_cron"`
	DebounceMS     int    `json:"debounce_ms"`
}

func defaultConfig() Config {
	return Config{
		DBPath:      filepath.Join(stratagemDir(), "stratagem.db"),
		LogLevel:    "info",
		RefreshCron: "*/30 * * * *",
		DebounceMS:  250,
	}
}

func stratagemDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stratagem"
	}
	return filepath.Join(home, ".stratagem")
}

func settingsPath() string {
	return filepath.Join(stratagemDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("STRATAGEM_STREAM_ENDPOINT"); v != "" {
		cfg.StreamEndpoint = v
	}
	if v := os.Getenv("STRATAGEM_COUNT_ENDPOINT"); v != "" {
		cfg.CountEndpoint = v
	}
	if v := os.Getenv("STRATAGEM_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("STRATAGEM_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("STRATAGEM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STRATAGEM_REFRESH_CRON"); v != "" {
		cfg.RefreshCron = v
	}
	if v := os.Getenv("STRATAGEM_DEBOUNCE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DebounceMS = n
		}
	}

	return cfg
}
