package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "*/30 * * * *", cfg.RefreshCron)
	assert.Equal(t, 250, cfg.DebounceMS)
	assert.Contains(t, cfg.DBPath, "stratagem.db")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STRATAGEM_STREAM_ENDPOINT", "http://localhost:9000/stream")
	t.Setenv("STRATAGEM_LOG_LEVEL", "debug")
	t.Setenv("STRATAGEM_DEBOUNCE_MS", "500")

	cfg := loadConfig()
	assert.Equal(t, "http://localhost:9000/stream", cfg.StreamEndpoint)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 500, cfg.DebounceMS)
}

func TestLoadConfig_BadIntIgnored(t *testing.T) {
	t.Setenv("STRATAGEM_DEBOUNCE_MS", "not a number")

	cfg := loadConfig()
	assert.Equal(t, 250, cfg.DebounceMS)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
	assert.Equal(t, "INFO", parseLevel("unknown").String())
}
