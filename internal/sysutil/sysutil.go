// Package sysutil holds process setup helpers for the server entrypoint.
package sysutil

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ParseLevel maps a LOG_LEVEL value (case-insensitive) to a zerolog level.
// Empty and unknown values mean info.
func ParseLevel(lvl string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetLogLevel sets the global zerolog level from a LOG_LEVEL value.
func SetLogLevel(lvl string) {
	zerolog.SetGlobalLevel(ParseLevel(lvl))
}

// LogOptions configures the process logger.
type LogOptions struct {
	Level   string
	Pretty  bool // console writer instead of JSON
	Out     io.Writer
	Service string
	Version string
}

// SetupLogging configures the global logger and returns it tagged with the
// service name and version.
func SetupLogging(o LogOptions) zerolog.Logger {
	SetLogLevel(o.Level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = o.Out
	if o.Pretty {
		w = zerolog.ConsoleWriter{Out: o.Out, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).With().
		Timestamp().
		Str("service", o.Service).
		Str("version", o.Version).
		Logger()
	return log.Logger
}

// FirstNonEmpty returns the first value that is not blank, or "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
