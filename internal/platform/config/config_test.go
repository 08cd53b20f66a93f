package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnv_defaults(t *testing.T) {
	for _, k := range []string{"PORT", "MAX_INGEST_RPS", "SESSION_TTL", "INCLUDE_AUX_CHANNELS"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.MaxIngestRPS != 20 {
		t.Errorf("expected default rps 20, got %d", cfg.MaxIngestRPS)
	}
	if cfg.SessionTTL != 600*time.Second {
		t.Errorf("expected default ttl 600s, got %s", cfg.SessionTTL)
	}
	if !cfg.IncludeAuxChannels {
		t.Error("aux channels should default to on")
	}
}

func TestFromEnv_overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_INGEST_RPS", "5")
	t.Setenv("SESSION_TTL", "30")
	t.Setenv("SESSION_SWEEP_INTERVAL", "250ms")
	t.Setenv("INCLUDE_AUX_CHANNELS", "0")
	t.Setenv("ALERT_REPLACE_RATIO", "0.75")

	cfg := FromEnv()
	if cfg.Port != "9090" || cfg.MaxIngestRPS != 5 {
		t.Errorf("unexpected cfg: %+v", cfg)
	}
	if cfg.SessionTTL != 30*time.Second {
		t.Errorf("bare integer ttl should be seconds, got %s", cfg.SessionTTL)
	}
	if cfg.SessionSweepInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms sweep, got %s", cfg.SessionSweepInterval)
	}
	if cfg.IncludeAuxChannels {
		t.Error("INCLUDE_AUX_CHANNELS=0 should disable aux channels")
	}
	if cfg.AlertReplaceRatio != 0.75 {
		t.Errorf("expected 0.75, got %v", cfg.AlertReplaceRatio)
	}
}

func TestGetEnvInt_invalid_falls_back(t *testing.T) {
	t.Setenv("X_INT", "abc")
	if got := GetEnvInt("X_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestLoad_reads_dotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("RSL_TEST_KEY=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RSL_TEST_KEY", "")
	os.Unsetenv("RSL_TEST_KEY")

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("RSL_TEST_KEY", "none"); got != "from-file" {
		t.Errorf("expected value from .env, got %s", got)
	}
}

func TestLoad_missing_file(t *testing.T) {
	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}
}
