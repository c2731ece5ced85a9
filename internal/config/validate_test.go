package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		StoreDriver:      StoreDriverPostgres,
		DatabaseURL:      "postgres://localhost/compass",
		ScheduleTimezone: "UTC",
		TriggerSpec:      "@every 1m",
		ReaperSpec:       "@every 5m",
		MetricsPath:      "/metrics",
		LogLevel:         "info",
		LogFormat:        "json",
		DBOpTimeoutStr:   "5s",
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("valid config should not return error, got: %v", err)
	}
}

func TestValidate_MemoryStoreNeedsNoDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.StoreDriver = StoreDriverMemory
	cfg.DatabaseURL = ""

	if err := Validate(cfg); err != nil {
		t.Errorf("memory store should not need DATABASE_URL, got: %v", err)
	}
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should mention DATABASE_URL: %q", err.Error())
	}
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"store driver", func(c *Config) { c.StoreDriver = "sqlite" }, "STORE_DRIVER"},
		{"bad duration", func(c *Config) { c.DBOpTimeoutStr = "invalid" }, "invalid duration"},
		{"zero duration", func(c *Config) { c.WebhookTimeoutStr = "0s" }, "WEBHOOK_TIMEOUT: must be positive"},
		{"negative duration", func(c *Config) { c.ReaperThresholdStr = "-1m" }, "REAPER_THRESHOLD: must be positive"},
		{"timezone", func(c *Config) { c.ScheduleTimezone = "Mars/Olympus" }, "SCHEDULE_TIMEZONE"},
		{"webhook base url", func(c *Config) { c.N8NWebhookBaseURL = "ftp://n8n" }, "N8N_WEBHOOK_BASE_URL"},
		{"trigger spec", func(c *Config) { c.TriggerEnabled = true; c.TriggerSpec = "every minute" }, "TRIGGER_SPEC"},
		{"reaper spec", func(c *Config) { c.ReaperEnabled = true; c.ReaperSpec = "* * *" }, "REAPER_SPEC"},
		{"metrics path", func(c *Config) { c.MetricsEnabled = true; c.MetricsPath = "metrics" }, "METRICS_PATH"},
		{"breaker threshold", func(c *Config) { c.CircuitBreakerThreshold = -1 }, "CIRCUIT_BREAKER_THRESHOLD"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "LOG_LEVEL"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_DisabledSpecsAreIgnored(t *testing.T) {
	cfg := validConfig()
	cfg.TriggerSpec = "garbage"
	cfg.ReaperSpec = "garbage"

	if err := Validate(cfg); err != nil {
		t.Errorf("disabled trigger/reaper specs should not be validated, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.DatabaseURL = ""
	cfg.DBOpTimeoutStr = "invalid"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}

	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 2 {
		t.Errorf("expected 2 validation errors, got %d: %v", len(errs), errs)
	}
}

func TestValidationError_Format(t *testing.T) {
	err := ValidationError{Field: "DATABASE_URL", Message: "required"}
	if got, want := err.Error(), "DATABASE_URL: required"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidationErrors_Format(t *testing.T) {
	single := ValidationErrors{{Field: "F1", Message: "M1"}}
	if single.Error() != "F1: M1" {
		t.Errorf("single error = %q, want 'F1: M1'", single.Error())
	}

	multi := ValidationErrors{
		{Field: "F1", Message: "M1"},
		{Field: "F2", Message: "M2"},
	}
	got := multi.Error()
	if !strings.Contains(got, "2 validation errors") {
		t.Errorf("multi error should contain '2 validation errors': %q", got)
	}
	if !strings.Contains(got, "F1: M1") || !strings.Contains(got, "F2: M2") {
		t.Errorf("multi error should contain both errors: %q", got)
	}

	if (ValidationErrors{}).Error() != "" {
		t.Error("empty errors should return empty string")
	}
}
