package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, name := range []string{
		"STORE_DRIVER", "HTTP_ADDR", "PORT", "DB_OP_TIMEOUT", "DB_MAX_OPEN_CONNS", "WEBHOOK_TIMEOUT",
		"SCHEDULE_TIMEZONE", "TRIGGER_SPEC", "REAPER_THRESHOLD", "CIRCUIT_BREAKER_THRESHOLD",
		"API_RATE_LIMIT", "WORDPRESS_RATE_LIMIT", "LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}

	cfg := Load()

	if cfg.StoreDriver != StoreDriverPostgres {
		t.Errorf("StoreDriver: expected postgres, got %q", cfg.StoreDriver)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr: expected :8080, got %q", cfg.HTTPAddr)
	}
	if cfg.DBOpTimeout != 5*time.Second {
		t.Errorf("DBOpTimeout: expected 5s, got %v", cfg.DBOpTimeout)
	}
	if cfg.DBMaxOpenConns != 25 {
		t.Errorf("DBMaxOpenConns: expected 25, got %d", cfg.DBMaxOpenConns)
	}
	if cfg.WebhookTimeout != 30*time.Second {
		t.Errorf("WebhookTimeout: expected 30s, got %v", cfg.WebhookTimeout)
	}
	if cfg.ScheduleLocation != time.UTC {
		t.Errorf("ScheduleLocation: expected UTC, got %v", cfg.ScheduleLocation)
	}
	if cfg.TriggerSpec != "@every 1m" {
		t.Errorf("TriggerSpec: expected @every 1m, got %q", cfg.TriggerSpec)
	}
	if cfg.ReaperThreshold != 30*time.Minute {
		t.Errorf("ReaperThreshold: expected 30m, got %v", cfg.ReaperThreshold)
	}
	if cfg.CircuitBreakerThreshold != 5 {
		t.Errorf("CircuitBreakerThreshold: expected 5, got %d", cfg.CircuitBreakerThreshold)
	}
	if cfg.APIRateLimit != 10 || cfg.WordPressRateLimit != 2 {
		t.Errorf("rate limits: expected 10 and 2, got %v and %v", cfg.APIRateLimit, cfg.WordPressRateLimit)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: expected json, got %q", cfg.LogFormat)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "3000")
	t.Setenv("DB_OP_TIMEOUT", "10s")
	t.Setenv("DB_MAX_OPEN_CONNS", "50")
	t.Setenv("SCHEDULE_TIMEZONE", "Asia/Tokyo")
	t.Setenv("TRIGGER_ENABLED", "true")
	t.Setenv("TRIGGER_CONCURRENCY", "8")
	t.Setenv("CIRCUIT_BREAKER_THRESHOLD", "0")
	t.Setenv("API_RATE_LIMIT", "0")
	t.Setenv("WORDPRESS_RATE_LIMIT", "0.5")

	cfg := Load()

	if cfg.StoreDriver != StoreDriverMemory || cfg.UsesPostgres() {
		t.Errorf("StoreDriver: expected memory, got %q", cfg.StoreDriver)
	}
	if cfg.HTTPAddr != ":3000" {
		t.Errorf("HTTPAddr: expected :3000 from PORT, got %q", cfg.HTTPAddr)
	}
	if cfg.DBOpTimeout != 10*time.Second {
		t.Errorf("DBOpTimeout: expected 10s, got %v", cfg.DBOpTimeout)
	}
	if cfg.DBMaxOpenConns != 50 {
		t.Errorf("DBMaxOpenConns: expected 50, got %d", cfg.DBMaxOpenConns)
	}
	if cfg.ScheduleLocation == nil || cfg.ScheduleLocation.String() != "Asia/Tokyo" {
		t.Errorf("ScheduleLocation: expected Asia/Tokyo, got %v", cfg.ScheduleLocation)
	}
	if !cfg.TriggerEnabled || cfg.TriggerConcurrency != 8 {
		t.Errorf("trigger: expected enabled with 8 workers, got %v/%d", cfg.TriggerEnabled, cfg.TriggerConcurrency)
	}
	if cfg.CircuitBreakerThreshold != 0 {
		t.Errorf("CircuitBreakerThreshold: expected explicit 0, got %d", cfg.CircuitBreakerThreshold)
	}
	if cfg.APIRateLimit != 0 {
		t.Errorf("APIRateLimit: expected 0, got %v", cfg.APIRateLimit)
	}
	if cfg.WordPressRateLimit != 0.5 {
		t.Errorf("WordPressRateLimit: expected 0.5, got %v", cfg.WordPressRateLimit)
	}
}

func TestLoad_InvalidIntegersFallBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"negative", "-1"},
		{"zero", "0"},
		{"non-numeric", "abc"},
		{"float", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REAPER_BATCH_SIZE", tt.value)

			cfg := Load()

			if cfg.ReaperBatchSize != 100 {
				t.Errorf("ReaperBatchSize: expected fallback to 100 for %q, got %d", tt.value, cfg.ReaperBatchSize)
			}
		})
	}
}

func TestMaskedJSON_MasksSecrets(t *testing.T) {
	cfg := Config{
		StoreDriver:    StoreDriverPostgres,
		DatabaseURL:    "postgres://user:pw@db/compass",
		N8NAPIKey:      "n8n-secret",
		AdminAPIKey:    "admin-secret",
		WebhookSecret:  "hmac-secret",
		DBOpTimeoutStr: "5s",
	}

	data, err := cfg.MaskedJSON()
	if err != nil {
		t.Fatalf("MaskedJSON failed: %v", err)
	}
	out := string(data)

	for _, secret := range []string{"user:pw", "n8n-secret", "admin-secret", "hmac-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("MaskedJSON leaked %q: %s", secret, out)
		}
	}
	for _, field := range []string{`"database_url": "postgres://***"`, `"n8n_api_key": "***"`, `"db_op_timeout": "5s"`, `"store_driver"`} {
		if !strings.Contains(out, field) {
			t.Errorf("MaskedJSON missing %s: %s", field, out)
		}
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"postgresql://u:p@h/db", "postgresql://***"},
		{"plain", "***"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.in); got != tt.want {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
