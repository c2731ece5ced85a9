package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/cron"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			add("DATABASE_URL", "required when STORE_DRIVER is postgres")
		}
	case StoreDriverMemory:
	default:
		add("STORE_DRIVER", "must be 'postgres' or 'memory', got %q", cfg.StoreDriver)
	}

	for _, d := range cfg.durations() {
		if *d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		switch {
		case err != nil:
			add(d.env, "invalid duration: %v", err)
		case v <= 0:
			add(d.env, "must be positive")
		}
	}

	if _, err := time.LoadLocation(cfg.ScheduleTimezone); err != nil {
		add("SCHEDULE_TIMEZONE", "unknown time zone %q", cfg.ScheduleTimezone)
	}

	if cfg.N8NWebhookBaseURL != "" {
		if err := validateHTTPURL(cfg.N8NWebhookBaseURL); err != nil {
			add("N8N_WEBHOOK_BASE_URL", "%v", err)
		}
	}

	if cfg.TriggerEnabled {
		if err := cron.ValidateSpec(cfg.TriggerSpec); err != nil {
			add("TRIGGER_SPEC", "%v", err)
		}
	}
	if cfg.ReaperEnabled {
		if err := cron.ValidateSpec(cfg.ReaperSpec); err != nil {
			add("REAPER_SPEC", "%v", err)
		}
	}

	if cfg.MetricsEnabled && !strings.HasPrefix(cfg.MetricsPath, "/") {
		add("METRICS_PATH", "must start with '/', got %q", cfg.MetricsPath)
	}

	if cfg.CircuitBreakerThreshold < 0 {
		add("CIRCUIT_BREAKER_THRESHOLD", "must not be negative")
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		add("LOG_LEVEL", "unknown level %q", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		add("LOG_FORMAT", "must be 'json' or 'console', got %q", cfg.LogFormat)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
