// Package logging builds the hclog loggers used across zircon.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultLevel is used when neither a flag, the environment nor the config
// file names a level.
const DefaultLevel = "warn"

// NewLogger creates a new hclog logger with standard settings
func NewLogger(name string, level string, output io.Writer) hclog.Logger {
	if output == nil {
		output = os.Stderr
	}

	jsonFormat := os.Getenv("ZIRCON_JSON_LOG") == "1"

	if !jsonFormat {
		output = NewPrefixWriter("💎 ", output)
	}

	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.LevelFromString(DefaultLevel)
	}

	opts := &hclog.LoggerOptions{
		Name:       name,
		Level:      lvl,
		JSONFormat: jsonFormat,
		Output:     output,
		TimeFormat: "2006-01-02T15:04:05Z", // UTC ISO format
		TimeFn: func() time.Time {
			return time.Now().UTC()
		},
	}

	return hclog.New(opts)
}

// GetLogLevel returns the level requested by ZIRCON_LOG_LEVEL, or fallback
// when the variable is unset.
func GetLogLevel(fallback string) string {
	if level := strings.TrimSpace(os.Getenv("ZIRCON_LOG_LEVEL")); level != "" {
		return level
	}
	if fallback == "" {
		return DefaultLevel
	}
	return fallback
}
