package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/liveresolver/internal/errwrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:7878", cfg.Listen)
	assert.Equal(t, 1, cfg.MaxConcurrency)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`
listen           = "0.0.0.0:9000"
log_level        = "debug"
max_concurrency  = 4
metrics_enabled  = false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, FormatText, cfg.LogFormat, "unset attributes keep their defaults")
	assert.Equal(t, TransportSocketIO, cfg.Transport)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.hcl")
	require.NoError(t, os.WriteFile(unknown, []byte(`workers = 3`), 0o600))

	_, err := Load(unknown)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.hcl"))
	require.Error(t, err)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Config{
		Listen:          "nope",
		HealthcheckPort: -1,
		LogLevel:        "loud",
		LogFormat:       "xml",
		MaxConcurrency:  0,
		Transport:       TransportSocketIO,
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, errwrap.Errors(err), 5)

	cfg.Transport = "carrier-pigeon"
	assert.Contains(t, cfg.Validate().Error(), "invalid transport")
}

func TestValidate_StdioIgnoresListen(t *testing.T) {
	cfg := Default()
	cfg.Transport = TransportStdio
	cfg.Listen = ""
	require.NoError(t, cfg.Validate())
}

func TestNormalize(t *testing.T) {
	cfg := Config{LogLevel: " DEBUG", LogFormat: "JSON", Transport: "StdIO"}
	cfg.Normalize()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, FormatJSON, cfg.LogFormat)
	assert.Equal(t, TransportStdio, cfg.Transport)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}
