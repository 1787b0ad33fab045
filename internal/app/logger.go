package app

import (
	"io"
	"log/slog"

	"github.com/specialistvlad/liveresolver/internal/config"
)

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances. Unknown
// levels fall back to info; config validation reports them earlier.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	level, err := config.ParseLevel(levelStr)
	if err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == config.FormatJSON {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
