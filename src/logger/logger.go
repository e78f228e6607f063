package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"famfin-server/src/config"

	"github.com/charmbracelet/log"
)

// Setup builds the process logger from cfg and installs it as both the
// charmbracelet/log default and the slog default.
func Setup(cfg config.LogConfig) *log.Logger {
	return setup(os.Stdout, cfg)
}

func setup(w io.Writer, cfg config.LogConfig) *log.Logger {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}

	formatter := log.TextFormatter
	if cfg.Format == "json" {
		formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})

	log.SetDefault(logger)
	slog.SetDefault(slog.New(logger))
	return logger
}
