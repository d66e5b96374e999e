package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mapLookup(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadFromDefaults(t *testing.T) {
	cfg := LoadFrom(mapLookup(nil))

	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Visa.BaseURL != "https://sandbox.api.visa.com" {
		t.Fatalf("unexpected visa base url %q", cfg.Visa.BaseURL)
	}
	if cfg.Visa.CallTimeout != 10*time.Second {
		t.Fatalf("expected 10s call timeout, got %v", cfg.Visa.CallTimeout)
	}
	if got := cfg.Reminder.DefaultDays; len(got) != 3 || got[0] != 7 || got[1] != 3 || got[2] != 1 {
		t.Fatalf("unexpected reminder days %v", got)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg := LoadFrom(mapLookup(map[string]string{
		"ENV":               "Production",
		"ALLOWED_ORIGINS":   "https://a.example, https://b.example ,",
		"VISA_BASE_URL":     "https://sandbox.example/",
		"VISA_CALL_TIMEOUT": "250ms",
		"VISA_MAX_ATTEMPTS": "5",
		"REMINDER_DAYS":     "14, 2, x, -1",
		"LOG_FORMAT":        "json",
	}))

	if !cfg.IsProduction() {
		t.Fatal("expected production environment")
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.Visa.BaseURL != "https://sandbox.example" {
		t.Fatalf("trailing slash should be trimmed, got %q", cfg.Visa.BaseURL)
	}
	if cfg.Visa.CallTimeout != 250*time.Millisecond || cfg.Visa.MaxAttempts != 5 {
		t.Fatalf("unexpected visa tuning %+v", cfg.Visa)
	}
	if got := cfg.Reminder.DefaultDays; len(got) != 2 || got[0] != 14 || got[1] != 2 {
		t.Fatalf("unexpected reminder days %v", got)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := LoadFrom(mapLookup(map[string]string{"PORT": "http"}))
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected invalid port error")
	}

	cfg = LoadFrom(mapLookup(map[string]string{"VISA_MAX_ATTEMPTS": "0"}))
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected max attempts error")
	}
}

func TestLoadFileEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "viego.yaml")
	body := "port: \"9090\"\nvisa_user_id: file-user\nreminder_days: \"5,2\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VISA_USER_ID", "env-user")
	t.Setenv("PORT", "")
	t.Setenv("REMINDER_DAYS", "")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port from file, got %q", cfg.Port)
	}
	if cfg.Visa.UserID != "env-user" {
		t.Fatalf("expected env to win, got %q", cfg.Visa.UserID)
	}
	if got := cfg.Reminder.DefaultDays; len(got) != 2 || got[0] != 5 {
		t.Fatalf("unexpected reminder days %v", got)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
