package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.PoolSize != 10 {
		t.Errorf("expected default pool size 10, got %d", cfg.PoolSize)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.MaxRetries)
	}
	if cfg.APITimeout != 15*time.Second {
		t.Errorf("expected default API timeout 15s, got %v", cfg.APITimeout)
	}
	if cfg.FetchDedupeWindow != 10*time.Second {
		t.Errorf("expected default dedupe window 10s, got %v", cfg.FetchDedupeWindow)
	}
	if !cfg.Security.EnableRateLimit {
		t.Error("expected rate limiting enabled by default")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TAB_KEYWORDS", "economy -crypto, AI , ")
	t.Setenv("REFRESH_INTERVAL", "5m")
	t.Setenv("RETENTION_DAYS", "7")
	t.Setenv("NAVER_CLIENT_ID", "id")
	t.Setenv("NAVER_CLIENT_SECRET", "secret")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if len(cfg.TabKeywords) != 2 {
		t.Fatalf("expected 2 tab keywords, got %v", cfg.TabKeywords)
	}
	if cfg.TabKeywords[0] != "economy -crypto" || cfg.TabKeywords[1] != "AI" {
		t.Errorf("unexpected tab keywords: %v", cfg.TabKeywords)
	}
	if cfg.RefreshInterval != 5*time.Minute {
		t.Errorf("expected refresh interval 5m, got %v", cfg.RefreshInterval)
	}
	if cfg.RetentionDays != 7 {
		t.Errorf("expected retention 7 days, got %d", cfg.RetentionDays)
	}
	if !cfg.HasCredentials() {
		t.Error("expected credentials to be set")
	}
}

func TestHasCredentials(t *testing.T) {
	cfg := &Config{ClientID: "id", ClientSecret: "  "}
	if cfg.HasCredentials() {
		t.Error("blank secret should not count as credentials")
	}
}

func TestInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("REFRESH_INTERVAL", "soon")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("expected fallback port 8080, got %d", cfg.Port)
	}
	if cfg.RefreshInterval != 10*time.Minute {
		t.Errorf("expected fallback refresh interval, got %v", cfg.RefreshInterval)
	}
}
