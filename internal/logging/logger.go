package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	EnvLevel  = "FBEDGE_LOG_LEVEL"
	EnvFormat = "FBEDGE_LOG_FORMAT"
)

// Init initializes the global logger from the environment.
// FBEDGE_LOG_LEVEL: debug, info, warn, error (default: info).
// FBEDGE_LOG_FORMAT: json for raw JSON lines, anything else for console output.
func Init() {
	InitWith(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Stderr)
}

// InitJSON initializes JSON logging regardless of FBEDGE_LOG_FORMAT, as
// CloudWatch expects from a Lambda.
func InitJSON() {
	InitWith(os.Getenv(EnvLevel), "json", os.Stdout)
}

// InitWith configures the global logger explicitly.
func InitWith(level, format string, w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(level))

	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
