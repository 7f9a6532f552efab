// Package sysutil holds small process-level helpers shared by the entrypoint
// and the HTML form handlers.
package sysutil

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value and
// returns the level applied. Matching is case-insensitive; "warning" is an
// alias for warn, "off" disables logging, and anything unknown falls back
// to info.
func SetLogLevel(lvl string) zerolog.Level {
	level := zerolog.InfoLevel
	switch s := strings.ToLower(strings.TrimSpace(lvl)); s {
	case "", "info":
	case "warning":
		level = zerolog.WarnLevel
	case "off", "none":
		level = zerolog.Disabled
	default:
		if parsed, err := zerolog.ParseLevel(s); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// IsTruthy reports whether a checkbox or flag value means "set".
// Browsers submit "on" for a checked box without a value attribute.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on", "checked":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first value that is not blank, unmodified.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
