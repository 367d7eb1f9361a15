package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	t.Setenv("API_BASE_URL", "http://localhost:8080")
}

func TestLoad_AllRequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.APIBaseURL != "http://localhost:8080" {
		t.Errorf("APIBaseURL = %q, want %q", cfg.APIBaseURL, "http://localhost:8080")
	}
}

func TestLoad_MissingRequiredVars_ReturnsError(t *testing.T) {
	t.Setenv("API_BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing API_BASE_URL, got nil")
	}
	if !strings.Contains(err.Error(), "API_BASE_URL") {
		t.Errorf("error should mention API_BASE_URL: %v", err)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 10*time.Second)
	}
	if cfg.RequestRate != 10 {
		t.Errorf("RequestRate = %v, want 10", cfg.RequestRate)
	}
	if cfg.RequestBurst != 20 {
		t.Errorf("RequestBurst = %d, want 20", cfg.RequestBurst)
	}
	if cfg.NotifyPollInterval != 60*time.Second {
		t.Errorf("NotifyPollInterval = %v, want %v", cfg.NotifyPollInterval, 60*time.Second)
	}
	if cfg.NotifyPageLimit != 20 {
		t.Errorf("NotifyPageLimit = %d, want 20", cfg.NotifyPageLimit)
	}
	if cfg.AlertDismissAfter != 5*time.Second {
		t.Errorf("AlertDismissAfter = %v, want %v", cfg.AlertDismissAfter, 5*time.Second)
	}
	if cfg.DevserverPort != "8080" {
		t.Errorf("DevserverPort = %q, want %q", cfg.DevserverPort, "8080")
	}
	if cfg.DevserverRateLimit != 120 {
		t.Errorf("DevserverRateLimit = %d, want 120", cfg.DevserverRateLimit)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.CredentialFile == "" {
		t.Error("CredentialFile should have a default path")
	}
}

func TestLoad_OverrideOptionalValues(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("REQUEST_TIMEOUT", "3s")
	t.Setenv("NOTIFY_POLL_INTERVAL", "30s")
	t.Setenv("NOTIFY_PAGE_LIMIT", "50")
	t.Setenv("CREDENTIAL_FILE", "/tmp/cred.json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 3*time.Second)
	}
	if cfg.NotifyPollInterval != 30*time.Second {
		t.Errorf("NotifyPollInterval = %v, want %v", cfg.NotifyPollInterval, 30*time.Second)
	}
	if cfg.NotifyPageLimit != 50 {
		t.Errorf("NotifyPageLimit = %d, want 50", cfg.NotifyPageLimit)
	}
	if cfg.CredentialFile != "/tmp/cred.json" {
		t.Errorf("CredentialFile = %q, want %q", cfg.CredentialFile, "/tmp/cred.json")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_InvalidOptionalValues_FallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("NOTIFY_PAGE_LIMIT", "abc")
	t.Setenv("REQUEST_RATE", "xyz")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want default %v", cfg.RequestTimeout, 10*time.Second)
	}
	if cfg.NotifyPageLimit != 20 {
		t.Errorf("NotifyPageLimit = %d, want default 20", cfg.NotifyPageLimit)
	}
	if cfg.RequestRate != 10 {
		t.Errorf("RequestRate = %v, want default 10", cfg.RequestRate)
	}
}
