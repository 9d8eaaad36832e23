// Package logger holds the process-wide structured logger. Logs go to
// stderr; stdout is reserved for command output such as the partition
// table and confirmation prompts.
package logger

import (
	"log/slog"
	"os"
)

var (
	level  slog.LevelVar
	logger *slog.Logger
)

func init() {
	level.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: &level,
	}))
}

func L() *slog.Logger {
	return logger
}

func SetLevel(l slog.Level) {
	level.Set(l)
}
