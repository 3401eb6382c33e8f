package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "testdata-missing.env")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.ServerPort != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.ServerPort)
	}
	if cfg.CodeMaxAttempts != 20 {
		t.Fatalf("expected 20 code attempts, got %d", cfg.CodeMaxAttempts)
	}
	if cfg.PasswordCost != 10 {
		t.Fatalf("expected bcrypt cost 10, got %d", cfg.PasswordCost)
	}
	if cfg.StoreDriver != "postgres" {
		t.Fatalf("expected postgres driver, got %s", cfg.StoreDriver)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ENV_FILE", "testdata-missing.env")

	cases := map[string]string{
		"SERVER_PORT":       "abc",
		"CODE_MAX_ATTEMPTS": "0",
		"STORE_DRIVER":      "sqlite",
		"TOKEN_TTL":         "forever",
		"BCRYPT_COST":       "3",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("ENV_FILE", "testdata-missing.env")
	t.Setenv("TRACKPARTNER_API", "http://example.test/")
	t.Setenv("POLL_INTERVAL", "10s")
	t.Setenv("TRACKPARTNER_HOME", "/tmp/tp")

	cfg, err := LoadClient()
	if err != nil {
		t.Fatalf("load client failed: %v", err)
	}
	if cfg.APIURL != "http://example.test" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.APIURL)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("expected 10s poll interval, got %v", cfg.PollInterval)
	}
	if cfg.TokenDir != "/tmp/tp" {
		t.Fatalf("unexpected token dir %s", cfg.TokenDir)
	}
}

func TestParseCSVEnv(t *testing.T) {
	t.Setenv("ORIGINS", " a , ,b ")
	got := parseCSVEnv("ORIGINS", nil)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected parse result %v", got)
	}
}
