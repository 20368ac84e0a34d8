package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar controls the log level: debug, info, warn, error (default: info).
const LevelEnvVar = "ENHANCER_LOG_LEVEL"

// Init initializes the global logger with configuration from environment variables.
// ENHANCER_LOG_FORMAT=json switches from the console writer to plain JSON lines.
func Init() {
	SetLevel(os.Getenv(LevelEnvVar))

	if strings.EqualFold(os.Getenv("ENHANCER_LOG_FORMAT"), "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// SetLevel sets the global level by name. Unknown names mean info.
func SetLevel(level string) {
	switch strings.ToLower(level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
