package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/specialistvlad/liveresolver/internal/errwrap"
)

const (
	// TransportSocketIO serves hosts over socket.io.
	TransportSocketIO = "socketio"
	// TransportStdio serves a single host over stdin and stdout.
	TransportStdio = "stdio"

	FormatText = "text"
	FormatJSON = "json"
)

// Config is the worker's process configuration.
type Config struct {
	// Listen is the socket.io listen address.
	Listen string
	// HealthcheckPort serves /health (and /metrics when enabled). 0
	// disables the server.
	HealthcheckPort int
	MetricsEnabled  bool
	LogLevel        string
	LogFormat       string
	// MaxConcurrency bounds the computations one resolver instance runs at
	// once.
	MaxConcurrency int
	Transport      string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:         "127.0.0.1:7878",
		MetricsEnabled: true,
		LogLevel:       "info",
		LogFormat:      FormatText,
		MaxConcurrency: 1,
		Transport:      TransportSocketIO,
	}
}

// fileConfig mirrors Config for HCL decoding. Unset attributes stay nil so
// they don't override defaults.
type fileConfig struct {
	Listen          *string `hcl:"listen,optional"`
	HealthcheckPort *int    `hcl:"healthcheck_port,optional"`
	MetricsEnabled  *bool   `hcl:"metrics_enabled,optional"`
	LogLevel        *string `hcl:"log_level,optional"`
	LogFormat       *string `hcl:"log_format,optional"`
	MaxConcurrency  *int    `hcl:"max_concurrency,optional"`
	Transport       *string `hcl:"transport,optional"`
}

// Load returns the defaults overlaid with the HCL file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var f fileConfig
	if err := hclsimple.DecodeFile(path, nil, &f); err != nil {
		return cfg, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	overlay(&cfg.Listen, f.Listen)
	overlay(&cfg.HealthcheckPort, f.HealthcheckPort)
	overlay(&cfg.MetricsEnabled, f.MetricsEnabled)
	overlay(&cfg.LogLevel, f.LogLevel)
	overlay(&cfg.LogFormat, f.LogFormat)
	overlay(&cfg.MaxConcurrency, f.MaxConcurrency)
	overlay(&cfg.Transport, f.Transport)
	return cfg, nil
}

func overlay[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// Normalize lower-cases the enumerated fields.
func (c *Config) Normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs error
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = errwrap.Append(errs, err)
	}
	switch c.LogFormat {
	case FormatText, FormatJSON:
	default:
		errs = errwrap.Append(errs, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", c.LogFormat))
	}
	switch c.Transport {
	case TransportSocketIO:
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			errs = errwrap.Append(errs, errwrap.Wrapf(err, "invalid listen address %q", c.Listen))
		}
	case TransportStdio:
	default:
		errs = errwrap.Append(errs, fmt.Errorf("invalid transport %q: must be 'socketio' or 'stdio'", c.Transport))
	}
	if c.HealthcheckPort < 0 || c.HealthcheckPort > 65535 {
		errs = errwrap.Append(errs, fmt.Errorf("invalid healthcheck port %d", c.HealthcheckPort))
	}
	if c.MaxConcurrency < 1 {
		errs = errwrap.Append(errs, fmt.Errorf("max concurrency must be at least 1, got %d", c.MaxConcurrency))
	}
	return errs
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", s)
	}
}
