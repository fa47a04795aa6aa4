// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/exp/slog"
)

// ParseLevel maps a config level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "verbose":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

// LevelOff silences every record.
const LevelOff = slog.LevelError + 4

// New builds the process logger. Components derive from it with
// logger.With("component", ...).
func New(w io.Writer, level string) (*slog.Logger, error) {
	log, _, err := Leveled(w, level)
	return log, err
}

// Leveled is New with a level that can be changed while running.
func Leveled(w io.Writer, level string) (*slog.Logger, *slog.LevelVar, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	v := new(slog.LevelVar)
	v.Set(lvl)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: v})), v, nil
}

// ParseCommandLevel reads the level carried by a loglevel command:
// 0 none, 1 error, 2 warn, 3 info, 4 debug, 5 verbose, or a level name.
func ParseCommandLevel(payload string) (slog.Level, error) {
	s := strings.TrimSpace(payload)
	if n, err := strconv.Atoi(s); err == nil {
		switch n {
		case 0:
			return LevelOff, nil
		case 1:
			return slog.LevelError, nil
		case 2:
			return slog.LevelWarn, nil
		case 3:
			return slog.LevelInfo, nil
		case 4, 5:
			return slog.LevelDebug, nil
		default:
			return 0, fmt.Errorf("logging: invalid level %d (expected 0 to 5)", n)
		}
	}
	if s == "" {
		return 0, fmt.Errorf("logging: empty level")
	}
	return ParseLevel(s)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
