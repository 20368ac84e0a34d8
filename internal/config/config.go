// Package config loads client settings from ENHANCER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// History backends.
const (
	HistorySQLite = "sqlite"
	HistoryDynamo = "dynamo"
	HistoryNone   = "none"
)

// Defaults.
const (
	DefaultAPIURL          = "http://localhost:5000"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultPollMaxAttempts = 30
	DefaultSessionName     = "Untitled Session"
)

// Config holds runtime configuration for the enhance CLI.
type Config struct {
	APIURL         string
	APIKey         string
	SSMAPIKeyParam string
	SessionName    string

	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int

	History     string // sqlite, dynamo, none
	HistoryPath string
	DynamoTable string

	EventBus      string
	ArchiveBucket string
	Metrics       bool
}

// Load reads configuration from the environment. Values that are present
// but unparseable are reported rather than silently defaulted.
func Load() (Config, error) {
	var errs []error

	cfg := Config{
		APIURL:         strings.TrimRight(envStr("ENHANCER_API_URL", DefaultAPIURL), "/"),
		APIKey:         os.Getenv("ENHANCER_API_KEY"),
		SSMAPIKeyParam: os.Getenv("ENHANCER_SSM_API_KEY_PARAM"),
		SessionName:    envStr("ENHANCER_SESSION_NAME", DefaultSessionName),

		History:     strings.ToLower(envStr("ENHANCER_HISTORY", HistorySQLite)),
		HistoryPath: envStr("ENHANCER_HISTORY_PATH", defaultHistoryPath()),
		DynamoTable: os.Getenv("ENHANCER_DYNAMO_TABLE"),

		EventBus:      os.Getenv("ENHANCER_EVENT_BUS"),
		ArchiveBucket: os.Getenv("ENHANCER_ARCHIVE_BUCKET"),
	}

	var err error
	if cfg.HTTPTimeout, err = envDuration("ENHANCER_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.PollInterval, err = envDuration("ENHANCER_POLL_INTERVAL", DefaultPollInterval); err != nil {
		errs = append(errs, err)
	}
	if cfg.PollMaxAttempts, err = envInt("ENHANCER_POLL_MAX_ATTEMPTS", DefaultPollMaxAttempts); err != nil {
		errs = append(errs, err)
	}
	if cfg.Metrics, err = envBool("ENHANCER_METRICS", false); err != nil {
		errs = append(errs, err)
	}

	return cfg, errors.Join(errs...)
}

// Validate checks cross-field constraints. Call it after flag overrides
// have been applied.
func (c Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("api url is required"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval must be positive, got %s", c.PollInterval))
	}
	if c.PollMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("poll max attempts must be positive, got %d", c.PollMaxAttempts))
	}
	switch c.History {
	case HistorySQLite:
		if c.HistoryPath == "" {
			errs = append(errs, errors.New("history path is required for the sqlite backend"))
		}
	case HistoryDynamo:
		if c.DynamoTable == "" {
			errs = append(errs, errors.New("ENHANCER_DYNAMO_TABLE is required for the dynamo backend"))
		}
	case HistoryNone:
	default:
		errs = append(errs, fmt.Errorf("unknown history backend %q (want sqlite, dynamo or none)", c.History))
	}
	return errors.Join(errs...)
}

// NeedsAWS reports whether any configured feature talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.SSMAPIKeyParam != "" || c.History == HistoryDynamo || c.EventBus != "" || c.ArchiveBucket != ""
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "speech-enhancer-history.db"
	}
	return filepath.Join(home, ".speech-enhancer", "history.db")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}
