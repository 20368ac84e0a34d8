package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allVars = []string{
	"ENHANCER_API_URL", "ENHANCER_API_KEY", "ENHANCER_SSM_API_KEY_PARAM", "ENHANCER_SESSION_NAME",
	"ENHANCER_HTTP_TIMEOUT", "ENHANCER_POLL_INTERVAL", "ENHANCER_POLL_MAX_ATTEMPTS",
	"ENHANCER_HISTORY", "ENHANCER_HISTORY_PATH", "ENHANCER_DYNAMO_TABLE",
	"ENHANCER_EVENT_BUS", "ENHANCER_ARCHIVE_BUCKET", "ENHANCER_METRICS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("expected %s, got %s", DefaultAPIURL, cfg.APIURL)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", cfg.PollInterval)
	}
	if cfg.PollMaxAttempts != 30 {
		t.Errorf("expected 30, got %d", cfg.PollMaxAttempts)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.HTTPTimeout)
	}
	if cfg.History != HistorySQLite {
		t.Errorf("expected sqlite, got %s", cfg.History)
	}
	if cfg.HistoryPath != filepath.Join(home, ".speech-enhancer", "history.db") {
		t.Errorf("unexpected history path %s", cfg.HistoryPath)
	}
	if cfg.Metrics {
		t.Error("expected metrics off by default")
	}
	if cfg.NeedsAWS() {
		t.Error("expected defaults to need no AWS")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENHANCER_API_URL", "https://enhance.example.com/")
	t.Setenv("ENHANCER_POLL_INTERVAL", "2s")
	t.Setenv("ENHANCER_POLL_MAX_ATTEMPTS", "10")
	t.Setenv("ENHANCER_HISTORY", "DYNAMO")
	t.Setenv("ENHANCER_DYNAMO_TABLE", "enhancer-history")
	t.Setenv("ENHANCER_METRICS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIURL != "https://enhance.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.APIURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("expected 2s, got %s", cfg.PollInterval)
	}
	if cfg.PollMaxAttempts != 10 {
		t.Errorf("expected 10, got %d", cfg.PollMaxAttempts)
	}
	if cfg.History != HistoryDynamo {
		t.Errorf("expected dynamo, got %s", cfg.History)
	}
	if !cfg.Metrics {
		t.Error("expected metrics on")
	}
	if !cfg.NeedsAWS() {
		t.Error("expected dynamo history to need AWS")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoadReportsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENHANCER_POLL_INTERVAL", "soon")
	t.Setenv("ENHANCER_POLL_MAX_ATTEMPTS", "many")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for unparseable values")
	}
	if !strings.Contains(err.Error(), "ENHANCER_POLL_INTERVAL") || !strings.Contains(err.Error(), "ENHANCER_POLL_MAX_ATTEMPTS") {
		t.Errorf("expected both variables named, got %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	clearEnv(t)
	base, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := base
	cfg.PollInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected zero interval to be rejected")
	}

	cfg = base
	cfg.PollMaxAttempts = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected negative attempts to be rejected")
	}

	cfg = base
	cfg.History = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown backend to be rejected")
	}

	cfg = base
	cfg.History = HistoryDynamo
	cfg.DynamoTable = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected dynamo without table to be rejected")
	}

	cfg = base
	cfg.History = HistoryNone
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected none backend to validate, got %v", err)
	}
}
